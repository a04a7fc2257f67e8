package pool

import "sync"

// Slice pools reuse the timestamp/value scratch slices session.Flush copies
// a chunk.Writer's buffered tail into before writing raw page entries.
var (
	int64SlicePool = sync.Pool{
		New: func() any { return &[]int64{} },
	}
	float64SlicePool = sync.Pool{
		New: func() any { return &[]float64{} },
	}
)

// GetInt64Slice retrieves an int64 slice of length size from the pool,
// allocating a new one if the pooled slice's capacity is insufficient. The
// returned cleanup function must be called to return the slice to the pool.
func GetInt64Slice(size int) ([]int64, func()) {
	ptr, _ := int64SlicePool.Get().(*[]int64)
	slice := (*ptr)[:0]

	if cap(slice) < size {
		slice = make([]int64, size)
		*ptr = slice
	} else {
		slice = slice[:size]
		*ptr = slice
	}

	return slice, func() { int64SlicePool.Put(ptr) }
}

// GetFloat64Slice retrieves a float64 slice of length size from the pool,
// allocating a new one if the pooled slice's capacity is insufficient. The
// returned cleanup function must be called to return the slice to the pool.
func GetFloat64Slice(size int) ([]float64, func()) {
	ptr, _ := float64SlicePool.Get().(*[]float64)
	slice := (*ptr)[:0]

	if cap(slice) < size {
		slice = make([]float64, size)
		*ptr = slice
	} else {
		slice = slice[:size]
		*ptr = slice
	}

	return slice, func() { float64SlicePool.Put(ptr) }
}
