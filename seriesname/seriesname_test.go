package seriesname

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tsdbcore/akumu/internal/limits"
)

func TestCanonicalizeSortsTagsLexicographically(t *testing.T) {
	got, err := Canonicalize([]byte("cpu.sys host=alpha region=us-east os=linux"))
	require.NoError(t, err)
	require.Equal(t, "cpu.sys host=alpha os=linux region=us-east", string(got))
}

func TestCanonicalizeIsOrderIndependent(t *testing.T) {
	a, err := Canonicalize([]byte("cpu.sys host=a region=b"))
	require.NoError(t, err)
	b, err := Canonicalize([]byte("cpu.sys region=b host=a"))
	require.NoError(t, err)
	require.Equal(t, string(a), string(b))
}

func TestEqualsSortsBelowOtherBytes(t *testing.T) {
	// "host=" (bare key, empty value) is invalid on its own, so compare two
	// distinct valid keys that share a prefix: "host=x" must sort before
	// "hostA=y" because at the differing position '=' < 'A'.
	got, err := Canonicalize([]byte("m hostA=y host=x"))
	require.NoError(t, err)
	require.Equal(t, "m host=x hostA=y", string(got))
}

func TestCanonicalizeRejectsNoTags(t *testing.T) {
	_, err := Canonicalize([]byte("cpu.sys"))
	require.Error(t, err)
}

func TestCanonicalizeRejectsMalformedTag(t *testing.T) {
	_, err := Canonicalize([]byte("cpu.sys hostalpha"))
	require.Error(t, err)
}

func TestCanonicalizeRejectsEmptyKeyOrValue(t *testing.T) {
	_, err := Canonicalize([]byte("cpu.sys =alpha"))
	require.Error(t, err)

	_, err = Canonicalize([]byte("cpu.sys host="))
	require.Error(t, err)
}

func TestCanonicalizeRejectsTooManyTags(t *testing.T) {
	tags := make([]string, 0, limits.MaxTags+1)
	for i := 0; i < limits.MaxTags+1; i++ {
		tags = append(tags, "t"+string(rune('a'+i))+"=v")
	}
	name := "m " + strings.Join(tags, " ")

	_, err := Canonicalize([]byte(name))
	require.Error(t, err)
}

func TestCanonicalizeRejectsOversizeName(t *testing.T) {
	big := strings.Repeat("a", limits.MaxSeriesName+1)
	_, err := Canonicalize([]byte("m tag=" + big))
	require.Error(t, err)
}

func TestMetricAndTagsHelpers(t *testing.T) {
	canon, err := Canonicalize([]byte("cpu.sys host=alpha region=us-east"))
	require.NoError(t, err)

	require.Equal(t, "cpu.sys", string(Metric(canon)))
	tags := Tags(canon)
	require.Len(t, tags, 2)
	require.Equal(t, "host=alpha", string(tags[0]))
	require.Equal(t, "region=us-east", string(tags[1]))
}
