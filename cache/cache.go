// Package cache implements the decoded-chunk cache: a byte-budgeted,
// FIFO-evicted map from (page generation, entry index)
// to a decoded column triple, so a hot chunk doesn't get re-decoded on
// every query that touches it.
package cache

import (
	"sync"

	"github.com/tsdbcore/akumu/internal/hash"
)

// Key identifies one decoded chunk: which page generation it came from
// (so a reused/rewritten page's old entries don't collide with its new
// ones) and a position identifying the chunk within that page (the
// session passes the chunk's starting byte offset in the page).
type Key struct {
	Generation uint64
	EntryIndex uint32
}

// NewKey builds a Key from a page id, its open count (bumped on reuse),
// and the chunk's position within it.
func NewKey(pageID uint64, pageOpenCount uint32, entryIndex uint32) Key {
	return Key{Generation: hash.Generation(pageID, pageOpenCount), EntryIndex: entryIndex}
}

// Chunk is the decoded column triple a cache entry holds.
type Chunk struct {
	IDs        []uint64
	Timestamps []int64
	Values     []float64
}

func (c *Chunk) size() int64 {
	return int64(len(c.IDs)*8 + len(c.Timestamps)*8 + len(c.Values)*8) //nolint:gosec
}

// Cache is a byte-budgeted FIFO cache of decoded chunks.
type Cache struct {
	mu sync.Mutex

	entries   map[Key]*Chunk
	fifo      []Key
	totalSize int64
	limit     int64
}

// New creates a Cache that evicts oldest-first once its resident decoded
// chunks would exceed limitBytes.
func New(limitBytes int64) *Cache {
	return &Cache{
		entries: make(map[Key]*Chunk),
		limit:   limitBytes,
	}
}

// Contains reports whether key is currently cached.
func (c *Cache) Contains(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[key]

	return ok
}

// Get returns the cached chunk for key, if present.
func (c *Cache) Get(key Key) (*Chunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	chunk, ok := c.entries[key]

	return chunk, ok
}

// Put inserts chunk under key, evicting the oldest entries first until
// the new total fits within the cache's byte budget. Re-inserting an
// already-cached key replaces its value without duplicating the fifo
// entry or double-counting its size.
func (c *Cache) Put(key Key, chunk *Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()

	szdelta := chunk.size()

	if old, ok := c.entries[key]; ok {
		c.totalSize -= old.size()
		delete(c.entries, key)
		c.removeFromFIFO(key)
	}

	for c.totalSize+szdelta > c.limit && len(c.fifo) > 0 {
		oldest := c.fifo[0]
		c.fifo = c.fifo[1:]
		if old, ok := c.entries[oldest]; ok {
			c.totalSize -= old.size()
			delete(c.entries, oldest)
		}
	}

	c.fifo = append(c.fifo, key)
	c.entries[key] = chunk
	c.totalSize += szdelta
}

func (c *Cache) removeFromFIFO(key Key) {
	for i, k := range c.fifo {
		if k == key {
			c.fifo = append(c.fifo[:i], c.fifo[i+1:]...)
			return
		}
	}
}

// Size returns the current resident byte size of all cached chunks.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.totalSize
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}
