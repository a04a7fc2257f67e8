package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func makeChunk(n int) *Chunk {
	ids := make([]uint64, n)
	ts := make([]int64, n)
	vals := make([]float64, n)
	for i := range ids {
		ids[i] = uint64(i)
		ts[i] = int64(i)
		vals[i] = float64(i)
	}

	return &Chunk{IDs: ids, Timestamps: ts, Values: vals}
}

func TestPutGetContains(t *testing.T) {
	c := New(1 << 20)
	key := NewKey(1, 0, 0)

	require.False(t, c.Contains(key))

	c.Put(key, makeChunk(16))
	require.True(t, c.Contains(key))

	got, ok := c.Get(key)
	require.True(t, ok)
	require.Len(t, got.IDs, 16)
}

func TestPutEvictsOldestWhenOverBudget(t *testing.T) {
	chunkBytes := makeChunk(16).size()
	c := New(chunkBytes * 2)

	k1 := NewKey(1, 0, 0)
	k2 := NewKey(1, 0, 1)
	k3 := NewKey(1, 0, 2)

	c.Put(k1, makeChunk(16))
	c.Put(k2, makeChunk(16))
	require.Equal(t, 2, c.Len())

	c.Put(k3, makeChunk(16))
	require.Equal(t, 2, c.Len())
	require.False(t, c.Contains(k1))
	require.True(t, c.Contains(k2))
	require.True(t, c.Contains(k3))
}

func TestReinsertReplacesWithoutDuplicateEviction(t *testing.T) {
	chunkBytes := makeChunk(16).size()
	c := New(chunkBytes * 2)

	k1 := NewKey(1, 0, 0)
	c.Put(k1, makeChunk(16))
	c.Put(k1, makeChunk(16))

	require.Equal(t, 1, c.Len())
	require.Equal(t, chunkBytes, c.Size())
}

func TestGenerationChangesOnReuse(t *testing.T) {
	k1 := NewKey(1, 0, 0)
	k2 := NewKey(1, 1, 0)
	require.NotEqual(t, k1, k2)
}

func TestSizeTracksResidentBytes(t *testing.T) {
	c := New(1 << 20)
	c.Put(NewKey(1, 0, 0), makeChunk(16))
	c.Put(NewKey(1, 0, 1), makeChunk(16))

	require.Equal(t, makeChunk(16).size()*2, c.Size())
}
