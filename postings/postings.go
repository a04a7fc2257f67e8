// Package postings implements delta+base-128-encoded sorted posting lists:
// compact, append-only sets of series ids supporting
// the set algebra the inverted index needs (union, intersection,
// difference) via a linear two-pointer merge over their decoded order.
package postings

import (
	"iter"

	"github.com/tsdbcore/akumu/errs"
	"github.com/tsdbcore/akumu/internal/bitstream"
	"github.com/tsdbcore/akumu/internal/pool"
)

// List is an immutable-once-built, delta+varint encoded sorted set of
// uint64 ids. Values must be appended in strictly ascending order.
type List struct {
	buf         []byte
	cardinality int
	last        uint64
	hasLast     bool
}

// New returns an empty List.
func New() *List { return &List{} }

// Add appends x to the list. x must be strictly greater than the
// previously added value (callers build lists from already-sorted id
// sequences, e.g. the index's per-key posting accumulation).
func (l *List) Add(x uint64) error {
	if l.hasLast && x <= l.last {
		return errs.ErrBadArg
	}

	delta := x
	if l.hasLast {
		delta = x - l.last
	}

	bb := &pool.ByteBuffer{B: l.buf}
	bitstream.PutUvarint(bb, delta)
	l.buf = bb.B
	l.last = x
	l.hasLast = true
	l.cardinality++

	return nil
}

// Cardinality returns the number of ids stored.
func (l *List) Cardinality() int { return l.cardinality }

// SizeBytes returns the encoded size in bytes.
func (l *List) SizeBytes() int { return len(l.buf) }

// All returns an iterator over the list's ids in ascending order.
func (l *List) All() iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		pos := 0
		prev := uint64(0)
		for i := 0; i < l.cardinality; i++ {
			delta, next, ok := bitstream.GetUvarint(l.buf, pos)
			if !ok {
				return
			}
			pos = next
			prev += delta
			if !yield(prev) {
				return
			}
		}
	}
}

// ToSlice decodes the full list into a plain slice, mainly for tests and
// small debugging paths.
func (l *List) ToSlice() []uint64 {
	out := make([]uint64, 0, l.cardinality)
	for v := range l.All() {
		out = append(out, v)
	}

	return out
}

// FromSorted builds a List from an already strictly-ascending slice.
func FromSorted(values []uint64) (*List, error) {
	l := New()
	for _, v := range values {
		if err := l.Add(v); err != nil {
			return nil, err
		}
	}

	return l, nil
}

// merge runs a two-pointer merge of a and b's decoded sequences, calling
// emit(value, inA, inB) for every distinct value seen in either list, in
// ascending order.
func merge(a, b *List, emit func(v uint64, inA, inB bool)) {
	nextA, stopA := iter.Pull(a.All())
	defer stopA()
	nextB, stopB := iter.Pull(b.All())
	defer stopB()

	va, okA := nextA()
	vb, okB := nextB()

	for okA && okB {
		switch {
		case va < vb:
			emit(va, true, false)
			va, okA = nextA()
		case vb < va:
			emit(vb, false, true)
			vb, okB = nextB()
		default:
			emit(va, true, true)
			va, okA = nextA()
			vb, okB = nextB()
		}
	}
	for okA {
		emit(va, true, false)
		va, okA = nextA()
	}
	for okB {
		emit(vb, false, true)
		vb, okB = nextB()
	}
}

// Union returns the sorted set union of a and b.
func Union(a, b *List) (*List, error) {
	out := New()
	var err error
	merge(a, b, func(v uint64, _, _ bool) {
		if err == nil {
			err = out.Add(v)
		}
	})

	return out, err
}

// Intersect returns the sorted set intersection of a and b.
func Intersect(a, b *List) (*List, error) {
	out := New()
	var err error
	merge(a, b, func(v uint64, inA, inB bool) {
		if err != nil || !(inA && inB) {
			return
		}
		err = out.Add(v)
	})

	return out, err
}

// Difference returns the values present in a but not in b (a \ b).
func Difference(a, b *List) (*List, error) {
	out := New()
	var err error
	merge(a, b, func(v uint64, inA, inB bool) {
		if err != nil || !inA || inB {
			return
		}
		err = out.Add(v)
	})

	return out, err
}

// Unique returns a copy of l with consecutive duplicates removed. Because
// List already stores strictly ascending values, Add's invariant makes
// this a no-op copy — kept for parity with the posting-list algebra a
// query plan composes (union of two lists can legitimately produce
// duplicates before this step if callers bypass Add's ordering check).
func Unique(l *List) (*List, error) {
	out := New()
	var err error
	var prev uint64
	first := true
	for v := range l.All() {
		if !first && v == prev {
			continue
		}
		if err == nil {
			err = out.Add(v)
		}
		prev = v
		first = false
	}

	return out, err
}
