package predictor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFCMPredictsRepeatedValue(t *testing.T) {
	p := NewFCM()
	bits := math.Float64bits(3.14)

	p.Update(bits)
	p.Update(bits)
	p.Update(bits)

	// The context hash settles after two identical updates; the third
	// stores the value in that slot, so predicting a fourth repeat should
	// XOR to zero, i.e. the predictor's table entry matches exactly.
	pred := p.Predict()
	require.Equal(t, bits^pred, uint64(0))
}

func TestDFCMTracksLinearSeries(t *testing.T) {
	p := NewDFCM()
	var prev uint64
	for i := 1; i <= 5; i++ {
		v := math.Float64bits(float64(i))
		p.Update(v)
		prev = v
	}

	// The table should have learned the constant delta between float64(i)
	// and float64(i+1) is not tracked bit-exactly (floats aren't linear in
	// their bit pattern), but Predict must at least be deterministic and
	// reproducible from the same state.
	pred1 := p.Predict()
	pred2 := p.Predict()
	require.Equal(t, pred1, pred2)
	require.Equal(t, prev, p.lastValue)
}

func TestResetClearsState(t *testing.T) {
	p := NewFCM()
	p.Update(12345)
	require.NotZero(t, p.Predict())

	p.Reset()
	require.Zero(t, p.Predict())
}
