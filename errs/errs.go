// Package errs collects the sentinel errors shared by every storage-core
// component (page engine, chunk codec, string pool, inverted index).
//
// Errors are plain values created with errors.New, matched with errors.Is
// at call sites. NoData is not an error — it is the in-band backpressure
// sentinel a live query's sink receives, see the page package's Search.
package errs

import "errors"

var (
	// ErrBadArg is returned when an API receives a malformed argument,
	// e.g. a timestamp that regresses relative to the page's last entry.
	ErrBadArg = errors.New("akumu: bad argument")

	// ErrBadData is returned when the canonicalizer rejects a series name,
	// or a chunk read detects bit corruption (checksum mismatch).
	ErrBadData = errors.New("akumu: bad data")

	// ErrOverflow is returned when a page or chunk buffer lacks room for
	// the requested write. Callers rotate the page or flush the chunk.
	ErrOverflow = errors.New("akumu: overflow")

	// ErrNotFound is returned when a lookup names an unknown series id or
	// an unknown frozen page id.
	ErrNotFound = errors.New("akumu: not found")

	// ErrInconsistent marks a fatal invariant violation, e.g. a series
	// matcher entry whose mirrored id/name pair has gone missing.
	ErrInconsistent = errors.New("akumu: inconsistent state")

	// ErrHashCollision is returned by callers that opted out of the
	// mandatory post-filter step and hit a djb2 collision they can't resolve.
	ErrHashCollision = errors.New("akumu: hash collision")

	// ErrClosed names an operation on a page or pool resource that has
	// already been finished/closed. No function in this module returns it;
	// closing a page does not stop further writes to it.
	ErrClosed = errors.New("akumu: resource closed")

	// ErrTruncated is returned when a read cursor runs out of bytes mid-value.
	ErrTruncated = errors.New("akumu: truncated stream")
)
