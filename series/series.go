// Package series implements the bidirectional name/id matcher:
// SeriesMatcher owns the external, process-visible series id
// space, separate from the stringpool handles the inverted index
// keeps internally. Adding a name canonicalizes it, registers it with the
// index for querying, and assigns it a fresh external id in its own
// table; matching a query runs it against the index and resolves each
// result back through that same table.
package series

import (
	"sort"
	"strings"
	"sync"

	"github.com/tsdbcore/akumu/errs"
	"github.com/tsdbcore/akumu/index"
	"github.com/tsdbcore/akumu/query"
	"github.com/tsdbcore/akumu/seriesname"
	"github.com/tsdbcore/akumu/stringpool"
)

// Name is a resolved series: its canonical bytes and external id.
type Name struct {
	Bytes []byte
	ID    uint64
}

// SeriesMatcher assigns external series ids to canonicalized series names
// and answers name<->id and query lookups against them.
type SeriesMatcher struct {
	mu sync.Mutex

	index *index.Index

	byName map[string]uint64
	byID   map[uint64][]byte

	nextID uint64

	newNames []Name
}

// New creates a SeriesMatcher whose external ids start at startingID,
// which must be nonzero (0 is reserved to mean "not found").
func New(startingID uint64) (*SeriesMatcher, error) {
	if startingID == 0 {
		return nil, errs.ErrBadArg
	}

	return &SeriesMatcher{
		index:  index.New(),
		byName: make(map[string]uint64),
		byID:   make(map[uint64][]byte),
		nextID: startingID,
	}, nil
}

// Add canonicalizes raw, registers it with the index, and assigns it a
// fresh external id. Re-adding the same name is idempotent and returns
// the previously assigned id.
func (m *SeriesMatcher) Add(raw []byte) (uint64, error) {
	canonical, err := seriesname.Canonicalize(raw)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byName[string(canonical)]; ok {
		return id, nil
	}

	if _, err := m.index.Append(canonical); err != nil {
		return 0, err
	}

	id := m.nextID
	m.nextID++

	m.byName[string(canonical)] = id
	m.byID[id] = canonical
	m.newNames = append(m.newNames, Name{Bytes: canonical, ID: id})

	return id, nil
}

// AddWithID registers raw under an explicit external id, used to restore
// a matcher's state from a WAL or checkpoint rather than assigning a
// fresh id. It does not add the name to the "recently added" journal.
func (m *SeriesMatcher) AddWithID(raw []byte, id uint64) error {
	canonical, err := seriesname.Canonicalize(raw)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.index.Append(canonical); err != nil {
		return err
	}

	m.byName[string(canonical)] = id
	m.byID[id] = canonical
	if id >= m.nextID {
		m.nextID = id + 1
	}

	return nil
}

// Match returns the external id for an exact canonical series name, or
// (0, false) if it has never been added.
func (m *SeriesMatcher) Match(canonical []byte) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byName[string(canonical)]

	return id, ok
}

// IDToStr returns the canonical name bytes for an external id.
func (m *SeriesMatcher) IDToStr(id uint64) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name, ok := m.byID[id]

	return name, ok
}

// PullNewNames drains and returns the names added since the last call,
// for callers (e.g. a WAL writer) that need to persist new registrations
// without rescanning the whole table.
func (m *SeriesMatcher) PullNewNames() []Name {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.newNames
	m.newNames = nil

	return out
}

// AllIDs returns every registered external id, sorted ascending.
func (m *SeriesMatcher) AllIDs() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]uint64, 0, len(m.byID))
	for id := range m.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

// Search evaluates q against the index and resolves every match back to
// its external id via this matcher's own table.
func (m *SeriesMatcher) Search(q query.Query) ([]Name, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, err := q.Eval(m.index)
	if err != nil {
		return nil, err
	}

	var results []Name
	for h := range list.All() {
		name, ok := m.index.Resolve(stringpool.Handle(h))
		if !ok {
			continue
		}
		id, ok := m.byName[string(name)]
		if !ok {
			return nil, errs.ErrInconsistent
		}
		results = append(results, Name{Bytes: name, ID: id})
	}

	return results, nil
}

// SuggestMetric lists metric names starting with prefix.
func (m *SeriesMatcher) SuggestMetric(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return filterPrefix(m.index.ListMetricNames(), prefix)
}

// SuggestTags lists tag keys of metric starting with prefix.
func (m *SeriesMatcher) SuggestTags(metric, prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return filterPrefix(m.index.ListTags(metric), prefix)
}

// SuggestTagValues lists values of metric/tag starting with prefix.
func (m *SeriesMatcher) SuggestTagValues(metric, tag, prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return filterPrefix(m.index.ListTagValues(metric, tag), prefix)
}

func filterPrefix(values []string, prefix string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.HasPrefix(v, prefix) {
			out = append(out, v)
		}
	}

	return out
}
