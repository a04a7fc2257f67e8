// Package index implements the inverted index over canonical series names:
// a metric-name posting map, a tag=value posting map,
// and a topology map (metric -> tag -> set of values) for prefix
// suggestions. Every posting list element is a stringpool.Handle pointing
// at the full canonical name, so a caller can always resolve a candidate
// id back to bytes and re-check it — required because the maps are keyed
// by a 64-bit djb2 hash of the metric or tag=value span, and hashes can
// collide across genuinely different strings.
package index

import (
	"sort"
	"sync"

	"github.com/tsdbcore/akumu/errs"
	"github.com/tsdbcore/akumu/internal/hash"
	"github.com/tsdbcore/akumu/postings"
	"github.com/tsdbcore/akumu/seriesname"
	"github.com/tsdbcore/akumu/stringpool"
)

// Index holds the postings and topology built from canonicalized series
// names. It does not assign external series/param ids — see the series
// package for that; Index only ever hands back stringpool.Handles, which
// resolve to the name bytes it owns.
type Index struct {
	mu sync.RWMutex

	pool *stringpool.Pool

	// exact canonical-name dedup, so re-appending the same name is a no-op
	byName map[string]stringpool.Handle

	metricPostings   map[uint64][]stringpool.Handle
	tagvaluePostings map[uint64][]stringpool.Handle

	// metric -> tag -> set of values, for suggestion queries
	topology map[string]map[string]map[string]struct{}
}

// New creates an empty Index.
func New() *Index {
	return &Index{
		pool:             stringpool.New(),
		byName:           make(map[string]stringpool.Handle),
		metricPostings:   make(map[uint64][]stringpool.Handle),
		tagvaluePostings: make(map[uint64][]stringpool.Handle),
		topology:         make(map[string]map[string]map[string]struct{}),
	}
}

// Append registers a canonical series name (as produced by
// seriesname.Canonicalize) and returns the handle it is stored under. If
// the exact name was already appended, the existing handle is returned.
func (ix *Index) Append(canonical []byte) (stringpool.Handle, error) {
	if len(canonical) == 0 {
		return 0, errs.ErrBadArg
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if h, ok := ix.byName[string(canonical)]; ok {
		return h, nil
	}

	h := ix.pool.Add(canonical)
	if h == 0 {
		return 0, errs.ErrBadData
	}

	ix.byName[string(canonical)] = h

	metric := seriesname.Metric(canonical)
	mhash := hash.DJB2(metric)
	ix.metricPostings[mhash] = append(ix.metricPostings[mhash], h)

	for _, tag := range seriesname.Tags(canonical) {
		thash := hash.DJB2(tag)
		ix.tagvaluePostings[thash] = append(ix.tagvaluePostings[thash], h)
	}

	ix.addTopology(string(metric), seriesname.Tags(canonical))

	return h, nil
}

func (ix *Index) addTopology(metric string, tags [][]byte) {
	tagmap, ok := ix.topology[metric]
	if !ok {
		tagmap = make(map[string]map[string]struct{})
		ix.topology[metric] = tagmap
	}

	for _, tag := range tags {
		key, value, ok := splitTagValue(tag)
		if !ok {
			continue
		}
		values, ok := tagmap[key]
		if !ok {
			values = make(map[string]struct{})
			tagmap[key] = values
		}
		values[value] = struct{}{}
	}
}

func splitTagValue(tag []byte) (key, value string, ok bool) {
	for i, b := range tag {
		if b == '=' {
			return string(tag[:i]), string(tag[i+1:]), true
		}
	}

	return "", "", false
}

// Resolve returns the canonical name bytes a handle points to.
func (ix *Index) Resolve(h stringpool.Handle) ([]byte, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	return ix.pool.Str(h)
}

// MetricQuery returns the (possibly hash-collision-tainted) posting list
// of handles whose metric hashes to the given metric name's djb2 hash.
// Callers must re-check Resolve(h)'s metric against the query before
// trusting a hit.
func (ix *Index) MetricQuery(metric []byte) (*postings.List, error) {
	return ix.queryByHash(ix.metricPostings, hash.DJB2(metric))
}

// TagValueQuery returns the posting list of handles whose tag=value span
// hashes to the given span's djb2 hash. Same collision caveat as
// MetricQuery.
func (ix *Index) TagValueQuery(tagValue []byte) (*postings.List, error) {
	return ix.queryByHash(ix.tagvaluePostings, hash.DJB2(tagValue))
}

func (ix *Index) queryByHash(table map[uint64][]stringpool.Handle, h uint64) (*postings.List, error) {
	ix.mu.RLock()
	handles := append([]stringpool.Handle(nil), table[h]...)
	ix.mu.RUnlock()

	sorted := make([]uint64, len(handles))
	for i, v := range handles {
		sorted[i] = uint64(v)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	deduped := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			deduped = append(deduped, v)
		}
	}

	return postings.FromSorted(deduped)
}

// ListMetricNames returns every distinct metric name recorded in the
// topology map, for suggestion queries.
func (ix *Index) ListMetricNames() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]string, 0, len(ix.topology))
	for m := range ix.topology {
		out = append(out, m)
	}
	sort.Strings(out)

	return out
}

// ListTags returns the distinct tag keys recorded for metric.
func (ix *Index) ListTags(metric string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	tagmap, ok := ix.topology[metric]
	if !ok {
		return nil
	}

	out := make([]string, 0, len(tagmap))
	for tag := range tagmap {
		out = append(out, tag)
	}
	sort.Strings(out)

	return out
}

// ListTagValues returns the distinct values recorded for metric/tag.
func (ix *Index) ListTagValues(metric, tag string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	tagmap, ok := ix.topology[metric]
	if !ok {
		return nil
	}
	values, ok := tagmap[tag]
	if !ok {
		return nil
	}

	out := make([]string, 0, len(values))
	for v := range values {
		out = append(out, v)
	}
	sort.Strings(out)

	return out
}

// Cardinality returns the number of distinct canonical names appended.
func (ix *Index) Cardinality() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	return len(ix.byName)
}

// MemoryUse returns the number of bytes held by the index's string pool.
// Posting lists, the topology map and Go's map overhead are not counted.
func (ix *Index) MemoryUse() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	return ix.pool.MemUsed()
}
