package series

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tsdbcore/akumu/query"
	"github.com/tsdbcore/akumu/seriesname"
)

func TestAddAssignsIncreasingIDs(t *testing.T) {
	m, err := New(1)
	require.NoError(t, err)

	id1, err := m.Add([]byte("cpu.sys host=a"))
	require.NoError(t, err)
	id2, err := m.Add([]byte("cpu.sys host=b"))
	require.NoError(t, err)

	require.Equal(t, uint64(1), id1)
	require.Equal(t, uint64(2), id2)
}

func TestAddIsIdempotent(t *testing.T) {
	m, _ := New(1)

	id1, err := m.Add([]byte("cpu.sys host=a"))
	require.NoError(t, err)
	id2, err := m.Add([]byte("cpu.sys host=a"))
	require.NoError(t, err)

	require.Equal(t, id1, id2)
	require.Len(t, m.AllIDs(), 1)
}

func TestMatchAndIDToStr(t *testing.T) {
	m, _ := New(1)
	canonical, err := seriesname.Canonicalize([]byte("cpu.sys host=a"))
	require.NoError(t, err)

	id, err := m.Add(canonical)
	require.NoError(t, err)

	got, ok := m.Match(canonical)
	require.True(t, ok)
	require.Equal(t, id, got)

	name, ok := m.IDToStr(id)
	require.True(t, ok)
	require.Equal(t, string(canonical), string(name))

	_, ok = m.Match([]byte("nonexistent"))
	require.False(t, ok)
}

func TestNewRejectsZeroStartingID(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)
}

func TestPullNewNamesDrains(t *testing.T) {
	m, _ := New(1)
	m.Add([]byte("cpu.sys host=a"))
	m.Add([]byte("cpu.sys host=b"))

	names := m.PullNewNames()
	require.Len(t, names, 2)

	m.Add([]byte("cpu.sys host=a")) // idempotent, no new journal entry
	require.Empty(t, m.PullNewNames())
}

func TestSearchResolvesExternalIDs(t *testing.T) {
	m, _ := New(1)
	idA, _ := m.Add([]byte("cpu.sys host=a region=us"))
	m.Add([]byte("cpu.sys host=b region=us"))

	q := query.IncludeAllTagsMatch{Metric: "cpu.sys", Pairs: []string{"host=a"}}
	results, err := m.Search(q)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, idA, results[0].ID)
}

func TestSuggestMetricTagsValues(t *testing.T) {
	m, _ := New(1)
	m.Add([]byte("cpu.sys host=a region=us"))
	m.Add([]byte("cpu.user host=a"))
	m.Add([]byte("mem.free host=b"))

	require.ElementsMatch(t, []string{"cpu.sys", "cpu.user"}, m.SuggestMetric("cpu"))
	require.ElementsMatch(t, []string{"host", "region"}, m.SuggestTags("cpu.sys", ""))
	require.ElementsMatch(t, []string{"a"}, m.SuggestTagValues("cpu.sys", "host", "a"))
}
