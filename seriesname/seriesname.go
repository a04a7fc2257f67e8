// Package seriesname canonicalizes series names of the form
// `metric tag1=value1 tag2=value2 ...` into a stable representation with
// tags sorted lexicographically by their `tag=value` span, so that two
// inputs naming the same series (modulo tag order) always produce
// identical bytes and therefore the same string pool handle and hash.
package seriesname

import (
	"bytes"
	"sort"

	"github.com/tsdbcore/akumu/errs"
	"github.com/tsdbcore/akumu/internal/limits"
)

// Canonicalize parses raw (`metric tag=value ...`) and returns the
// canonical form: the metric name followed by its tags re-ordered so that
// `tag=value` spans sort lexicographically, treating '=' as less than any
// other byte (so "host=" sorts before "host0", keeping a tag's value
// immediately adjacent to its key in the ordering).
//
// Returns errs.ErrBadData if raw is empty, longer than limits.MaxSeriesName,
// carries no tags, carries more than limits.MaxTags, or any tag span is
// malformed (missing '=', empty key, or empty value).
func Canonicalize(raw []byte) ([]byte, error) {
	raw = trimSpace(raw)
	if len(raw) == 0 {
		return nil, errs.ErrBadData
	}
	if len(raw) > limits.MaxSeriesName {
		return nil, errs.ErrBadData
	}

	metricEnd := bytes.IndexByte(raw, ' ')
	if metricEnd < 0 {
		// No tags at all.
		return nil, errs.ErrBadData
	}
	metric := raw[:metricEnd]
	if len(metric) == 0 {
		return nil, errs.ErrBadData
	}

	rest := trimSpace(raw[metricEnd:])
	if len(rest) == 0 {
		return nil, errs.ErrBadData
	}

	tags := make([][]byte, 0, 8)
	for len(rest) > 0 {
		if len(tags) >= limits.MaxTags {
			return nil, errs.ErrBadData
		}

		end := bytes.IndexByte(rest, ' ')
		var span []byte
		if end < 0 {
			span = rest
			rest = nil
		} else {
			span = rest[:end]
			rest = trimSpace(rest[end:])
		}

		if !validTagSpan(span) {
			return nil, errs.ErrBadData
		}
		tags = append(tags, span)
	}
	if len(tags) == 0 {
		return nil, errs.ErrBadData
	}

	sort.Slice(tags, func(i, j int) bool { return tagLess(tags[i], tags[j]) })

	out := make([]byte, 0, len(raw))
	out = append(out, metric...)
	for _, tag := range tags {
		out = append(out, ' ')
		out = append(out, tag...)
	}

	return out, nil
}

func validTagSpan(span []byte) bool {
	eq := bytes.IndexByte(span, '=')
	if eq <= 0 {
		return false // missing '=' or empty key
	}
	if eq == len(span)-1 {
		return false // empty value
	}

	return true
}

func trimSpace(b []byte) []byte {
	for len(b) > 0 && b[0] == ' ' {
		b = b[1:]
	}
	for len(b) > 0 && b[len(b)-1] == ' ' {
		b = b[:len(b)-1]
	}

	return b
}

// tagLess orders two `tag=value` spans lexicographically, with '=' sorting
// below every other byte, and a shorter span that is a strict prefix of a
// longer one sorting first.
func tagLess(lhs, rhs []byte) bool {
	n := len(lhs)
	if len(rhs) < n {
		n = len(rhs)
	}

	for i := 0; i < n; i++ {
		if lhs[i] == '=' || rhs[i] == '=' {
			return lhs[i] == '=' && rhs[i] != '='
		}
		if lhs[i] != rhs[i] {
			return lhs[i] < rhs[i]
		}
	}

	return len(lhs) < len(rhs)
}

// Metric returns the metric (first token) of an already-canonical name.
func Metric(canonical []byte) []byte {
	if end := bytes.IndexByte(canonical, ' '); end >= 0 {
		return canonical[:end]
	}

	return canonical
}

// Tags splits an already-canonical name's tags into their `tag=value`
// spans, in the canonical (sorted) order.
func Tags(canonical []byte) [][]byte {
	end := bytes.IndexByte(canonical, ' ')
	if end < 0 {
		return nil
	}

	rest := canonical[end+1:]
	tags := make([][]byte, 0, 8)
	for len(rest) > 0 {
		sp := bytes.IndexByte(rest, ' ')
		if sp < 0 {
			tags = append(tags, rest)
			break
		}
		tags = append(tags, rest[:sp])
		rest = rest[sp+1:]
	}

	return tags
}
