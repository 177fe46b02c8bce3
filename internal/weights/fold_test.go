package weights

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFoldShiftKnownValues(t *testing.T) {
	shift := []float32{2, -0.5, 0}
	variance := []float32{3, 0, 1}

	folded := FoldShift(shift, variance)

	assert.InDelta(t, 2*math.Sqrt(3+Epsilon), folded[0], 1e-6)
	assert.InDelta(t, -0.5*math.Sqrt(Epsilon), folded[1], 1e-9)
	assert.Equal(t, float32(0), folded[2])
}

func TestFoldUnfoldIdentity(t *testing.T) {
	shifts := []float32{0, 1, -1, 0.001, -123.5, 7e-3}
	variances := []float32{0, 1e-8, 0.25, 1, 40, 1e6}

	for _, s := range shifts {
		for _, v := range variances {
			folded := FoldShift([]float32{s}, []float32{v})
			back := UnfoldShift(folded, []float32{v})
			assert.InDelta(t, s, back[0], 1e-4*math.Max(1, math.Abs(float64(s))),
				"shift=%g variance=%g", s, v)
		}
	}
}

func TestFoldPanicsOnInvariantViolations(t *testing.T) {
	// A variance that drives variance+epsilon non-positive cannot come from
	// a running average of squares; it means corrupted state.
	require.Panics(t, func() { FoldShift([]float32{1}, []float32{-1}) })
	require.Panics(t, func() { UnfoldShift([]float32{1}, []float32{-1}) })

	require.Panics(t, func() { FoldShift([]float32{1, 2}, []float32{1}) })
	require.Panics(t, func() { UnfoldShift([]float32{1}, []float32{1, 2}) })
}
