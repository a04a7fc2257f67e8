// Package query implements the inverted-index query node types. Each node
// is a small value-typed struct implementing Query's single Eval method —
// a tagged-variant, single-dispatch shape favoring composition over a
// class hierarchy.
//
// Every node resolves its postings hits back through the index's string
// pool and re-checks the match before returning it: postings are bucketed
// by a 64-bit hash of a metric or tag=value span, and two distinct spans
// can hash identically, so a raw postings hit is only ever a candidate.
package query

import (
	"github.com/tsdbcore/akumu/index"
	"github.com/tsdbcore/akumu/postings"
	"github.com/tsdbcore/akumu/seriesname"
	"github.com/tsdbcore/akumu/stringpool"
)

// Query evaluates against an index and returns the matching series'
// stringpool handles, already verified against hash collisions.
type Query interface {
	Eval(ix *index.Index) (*postings.List, error)
}

// IncludeAllTagsMatch selects series for Metric that carry every tag=value
// pair in Pairs.
type IncludeAllTagsMatch struct {
	Metric string
	Pairs  []string
}

func (q IncludeAllTagsMatch) Eval(ix *index.Index) (*postings.List, error) {
	results, err := ix.MetricQuery([]byte(q.Metric))
	if err != nil {
		return nil, err
	}

	for _, pair := range q.Pairs {
		hits, err := ix.TagValueQuery([]byte(pair))
		if err != nil {
			return nil, err
		}
		results, err = postings.Intersect(results, hits)
		if err != nil {
			return nil, err
		}
	}

	return filterList(ix, results, func(name []byte) bool {
		if string(seriesname.Metric(name)) != q.Metric {
			return false
		}
		return hasAllTags(name, q.Pairs)
	})
}

// IncludeAnyValue selects series for Metric where Tag takes any of Values.
type IncludeAnyValue struct {
	Metric string
	Tag    string
	Values []string
}

func (q IncludeAnyValue) Eval(ix *index.Index) (*postings.List, error) {
	metricHits, err := ix.MetricQuery([]byte(q.Metric))
	if err != nil {
		return nil, err
	}

	var tagHits *postings.List
	for _, v := range q.Values {
		hits, err := ix.TagValueQuery([]byte(q.Tag + "=" + v))
		if err != nil {
			return nil, err
		}
		if tagHits == nil {
			tagHits = hits
			continue
		}
		tagHits, err = postings.Union(tagHits, hits)
		if err != nil {
			return nil, err
		}
	}
	if tagHits == nil {
		tagHits = postings.New()
	}

	results, err := postings.Intersect(metricHits, tagHits)
	if err != nil {
		return nil, err
	}

	valueSet := make(map[string]struct{}, len(q.Values))
	for _, v := range q.Values {
		valueSet[v] = struct{}{}
	}

	return filterList(ix, results, func(name []byte) bool {
		if string(seriesname.Metric(name)) != q.Metric {
			return false
		}
		return tagValueIn(name, q.Tag, valueSet)
	})
}

// IncludeIfHasTag selects series for Metric that carry every tag in
// TagNames, with any value.
type IncludeIfHasTag struct {
	Metric   string
	TagNames []string
}

func (q IncludeIfHasTag) Eval(ix *index.Index) (*postings.List, error) {
	results, err := ix.MetricQuery([]byte(q.Metric))
	if err != nil {
		return nil, err
	}

	for _, tag := range q.TagNames {
		values := ix.ListTagValues(q.Metric, tag)
		if len(values) == 0 {
			return postings.New(), nil
		}

		var tagHits *postings.List
		for _, v := range values {
			hits, err := ix.TagValueQuery([]byte(tag + "=" + v))
			if err != nil {
				return nil, err
			}
			if tagHits == nil {
				tagHits = hits
				continue
			}
			tagHits, err = postings.Union(tagHits, hits)
			if err != nil {
				return nil, err
			}
		}

		results, err = postings.Intersect(results, tagHits)
		if err != nil {
			return nil, err
		}
	}

	return filterList(ix, results, func(name []byte) bool {
		if string(seriesname.Metric(name)) != q.Metric {
			return false
		}
		for _, tag := range q.TagNames {
			if !hasTagKey(name, tag) {
				return false
			}
		}
		return true
	})
}

// Exclude selects series for Metric that carry none of the tag=value
// pairs in Pairs.
type Exclude struct {
	Metric string
	Pairs  []string
}

func (q Exclude) Eval(ix *index.Index) (*postings.List, error) {
	results, err := ix.MetricQuery([]byte(q.Metric))
	if err != nil {
		return nil, err
	}

	for _, pair := range q.Pairs {
		hits, err := ix.TagValueQuery([]byte(pair))
		if err != nil {
			return nil, err
		}
		results, err = postings.Difference(results, hits)
		if err != nil {
			return nil, err
		}
	}

	return filterList(ix, results, func(name []byte) bool {
		return string(seriesname.Metric(name)) == q.Metric
	})
}

// JoinByMetrics selects series belonging to any of Metrics, with
// ExcludePairs removed from the result.
type JoinByMetrics struct {
	Metrics      []string
	ExcludePairs []string
}

func (q JoinByMetrics) Eval(ix *index.Index) (*postings.List, error) {
	var results *postings.List
	for _, m := range q.Metrics {
		hits, err := ix.MetricQuery([]byte(m))
		if err != nil {
			return nil, err
		}
		if results == nil {
			results = hits
			continue
		}
		results, err = postings.Union(results, hits)
		if err != nil {
			return nil, err
		}
	}
	if results == nil {
		results = postings.New()
	}

	for _, pair := range q.ExcludePairs {
		hits, err := ix.TagValueQuery([]byte(pair))
		if err != nil {
			return nil, err
		}
		var err2 error
		results, err2 = postings.Difference(results, hits)
		if err2 != nil {
			return nil, err2
		}
	}

	metricSet := make(map[string]struct{}, len(q.Metrics))
	for _, m := range q.Metrics {
		metricSet[m] = struct{}{}
	}

	return filterList(ix, results, func(name []byte) bool {
		_, ok := metricSet[string(seriesname.Metric(name))]
		if !ok {
			return false
		}
		return !hasAnyTag(name, q.ExcludePairs)
	})
}

func filterList(ix *index.Index, list *postings.List, keep func(name []byte) bool) (*postings.List, error) {
	out := postings.New()
	for h := range list.All() {
		name, ok := ix.Resolve(stringpool.Handle(h))
		if !ok || !keep(name) {
			continue
		}
		if err := out.Add(h); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func hasAllTags(name []byte, pairs []string) bool {
	tags := seriesname.Tags(name)
	for _, pair := range pairs {
		found := false
		for _, tag := range tags {
			if string(tag) == pair {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

func hasAnyTag(name []byte, pairs []string) bool {
	tags := seriesname.Tags(name)
	for _, pair := range pairs {
		for _, tag := range tags {
			if string(tag) == pair {
				return true
			}
		}
	}

	return false
}

func hasTagKey(name []byte, key string) bool {
	for _, tag := range seriesname.Tags(name) {
		for i, b := range tag {
			if b == '=' {
				if string(tag[:i]) == key {
					return true
				}
				break
			}
		}
	}

	return false
}

func tagValueIn(name []byte, key string, values map[string]struct{}) bool {
	for _, tag := range seriesname.Tags(name) {
		for i, b := range tag {
			if b == '=' {
				if string(tag[:i]) != key {
					break
				}
				_, ok := values[string(tag[i+1:])]
				return ok
			}
		}
	}

	return false
}
