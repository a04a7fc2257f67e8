// Package stringpool implements the bin-chunked, append-only string
// storage backing series names: every canonicalized
// series name is copied once into a pool bin and thereafter referenced by
// a stable 64-bit handle instead of a pointer, so the pool can be grown
// without invalidating anything any index or page entry has recorded.
package stringpool

import (
	"sync"
	"sync/atomic"

	"github.com/tsdbcore/akumu/internal/limits"
)

// Handle is a stable, process-lifetime reference into a Pool. The zero
// Handle never refers to real data — Add returns it only for a zero-length
// input.
type Handle uint64

// Pool is a bin-chunked append-only byte arena. Bins are never moved or
// resized after allocation, so a Handle returned by Add remains valid
// (and the byte slice returned by Str stable) for the Pool's lifetime.
type Pool struct {
	mu      sync.Mutex
	bins    [][]byte
	binSize int
	count   atomic.Int64
}

// New creates an empty Pool using the default bin size.
func New() *Pool {
	return &Pool{binSize: limits.MaxStringPoolBin}
}

// NewWithBinSize creates a Pool with a caller-specified bin size, mainly
// for tests that want to exercise bin rollover without allocating 8 MiB.
func NewWithBinSize(binSize int) *Pool {
	return &Pool{binSize: binSize}
}

// Add copies [begin:end) into the pool and returns a stable handle to it.
// A zero-length slice returns the null handle without touching the pool.
func (p *Pool) Add(s []byte) Handle {
	if len(s) == 0 {
		return 0
	}

	need := len(s) + 1 // +1 for the trailing NUL, kept for str() scanning parity with the original pool
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.bins) == 0 {
		p.bins = append(p.bins, make([]byte, 0, p.binSize))
	}

	bin := p.bins[len(p.bins)-1]
	binIndex := uint64(len(p.bins)) // 1-based
	if len(bin)+need > p.binSize {
		bin = make([]byte, 0, p.binSize)
		p.bins = append(p.bins, bin)
		binIndex = uint64(len(p.bins))
	}

	offset := uint64(len(bin)) //nolint:gosec
	bin = append(bin, s...)
	bin = append(bin, 0)
	p.bins[binIndex-1] = bin

	p.count.Add(1)

	return Handle(binIndex*uint64(p.binSize) + offset) //nolint:gosec
}

// Str resolves a handle back to the bytes originally passed to Add (the
// NUL terminator is not included). Returns ok=false for the null handle or
// any handle the pool does not recognize.
func (p *Pool) Str(h Handle) (value []byte, ok bool) {
	if h == 0 {
		return nil, false
	}

	ix := uint64(h) / uint64(p.binSize)
	offset := uint64(h) % uint64(p.binSize)

	p.mu.Lock()
	defer p.mu.Unlock()

	if ix == 0 || ix > uint64(len(p.bins)) {
		return nil, false
	}

	bin := p.bins[ix-1]
	if offset >= uint64(len(bin)) {
		return nil, false
	}

	end := offset
	for end < uint64(len(bin)) && bin[end] != 0 {
		end++
	}

	return bin[offset:end], true
}

// Size returns the number of strings stored in the pool.
func (p *Pool) Size() int64 { return p.count.Load() }

// MemUsed returns the total number of bytes currently held across all bins.
func (p *Pool) MemUsed() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := 0
	for _, bin := range p.bins {
		total += len(bin)
	}

	return total
}
