package stringpool

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddAndStrRoundTrip(t *testing.T) {
	p := New()

	h := p.Add([]byte("cpu.sys host=a"))
	require.NotZero(t, h)

	got, ok := p.Str(h)
	require.True(t, ok)
	require.Equal(t, "cpu.sys host=a", string(got))
	require.EqualValues(t, 1, p.Size())
}

func TestAddEmptyReturnsNullHandle(t *testing.T) {
	p := New()
	h := p.Add(nil)
	require.Zero(t, h)

	_, ok := p.Str(0)
	require.False(t, ok)
}

func TestStrRejectsUnknownHandle(t *testing.T) {
	p := New()
	p.Add([]byte("x"))

	_, ok := p.Str(Handle(0xFFFFFFFFFFFF))
	require.False(t, ok)
}

func TestBinRolloverKeepsHandlesStable(t *testing.T) {
	// Small bin size forces several rollovers quickly.
	p := NewWithBinSize(64)

	handles := make([]Handle, 0, 20)
	values := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		s := fmt.Sprintf("series.%02d tag=%02d", i, i)
		handles = append(handles, p.Add([]byte(s)))
		values = append(values, s)
	}

	for i, h := range handles {
		got, ok := p.Str(h)
		require.True(t, ok)
		require.Equal(t, values[i], string(got))
	}
}

func TestMemUsedGrowsWithAdds(t *testing.T) {
	p := New()
	before := p.MemUsed()
	p.Add([]byte("abc"))
	after := p.MemUsed()
	require.Greater(t, after, before)
}
