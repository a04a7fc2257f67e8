package index

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tsdbcore/akumu/seriesname"
)

func canon(t *testing.T, raw string) []byte {
	t.Helper()
	c, err := seriesname.Canonicalize([]byte(raw))
	require.NoError(t, err)

	return c
}

func TestAppendIsIdempotent(t *testing.T) {
	ix := New()
	name := canon(t, "cpu.sys host=a region=us")

	h1, err := ix.Append(name)
	require.NoError(t, err)
	h2, err := ix.Append(name)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
	require.Equal(t, 1, ix.Cardinality())
}

func TestMetricQueryFindsAppendedNames(t *testing.T) {
	ix := New()
	a := canon(t, "cpu.sys host=a")
	b := canon(t, "cpu.sys host=b")
	c := canon(t, "mem.free host=a")

	ha, _ := ix.Append(a)
	hb, _ := ix.Append(b)
	_, _ = ix.Append(c)

	list, err := ix.MetricQuery([]byte("cpu.sys"))
	require.NoError(t, err)

	got := list.ToSlice()
	require.ElementsMatch(t, []uint64{uint64(ha), uint64(hb)}, got)
}

func TestTagValueQueryFindsAppendedNames(t *testing.T) {
	ix := New()
	a := canon(t, "cpu.sys host=a")
	b := canon(t, "mem.free host=a")
	ix.Append(canon(t, "cpu.sys host=b"))

	ha, _ := ix.Append(a)
	hb, _ := ix.Append(b)

	list, err := ix.TagValueQuery([]byte("host=a"))
	require.NoError(t, err)
	require.ElementsMatch(t, []uint64{uint64(ha), uint64(hb)}, list.ToSlice())
}

func TestResolveReturnsOriginalBytes(t *testing.T) {
	ix := New()
	name := canon(t, "cpu.sys host=a")
	h, err := ix.Append(name)
	require.NoError(t, err)

	got, ok := ix.Resolve(h)
	require.True(t, ok)
	require.Equal(t, string(name), string(got))
}

func TestTopologySuggestions(t *testing.T) {
	ix := New()
	ix.Append(canon(t, "cpu.sys host=a region=us"))
	ix.Append(canon(t, "cpu.sys host=b region=eu"))
	ix.Append(canon(t, "mem.free host=a"))

	require.Equal(t, []string{"cpu.sys", "mem.free"}, ix.ListMetricNames())
	require.Equal(t, []string{"host", "region"}, ix.ListTags("cpu.sys"))
	require.Equal(t, []string{"a", "b"}, ix.ListTagValues("cpu.sys", "host"))
}

func TestMetricQueriesAreIsolatedPerMetric(t *testing.T) {
	// Two distinct metric names each get their own posting list; a metric
	// query for one returns only that metric's series.
	ix := New()
	a := canon(t, "alpha.metric host=a")
	b := canon(t, "beta.metric host=a")
	ix.Append(a)
	ix.Append(b)

	// Not actually colliding here (djb2 of distinct short strings rarely
	// does), but exercising both lookups independently confirms each
	// metric's own query is isolated from the other's postings.
	la, err := ix.MetricQuery([]byte("alpha.metric"))
	require.NoError(t, err)
	lb, err := ix.MetricQuery([]byte("beta.metric"))
	require.NoError(t, err)
	require.Equal(t, 1, la.Cardinality())
	require.Equal(t, 1, lb.Cardinality())
}
