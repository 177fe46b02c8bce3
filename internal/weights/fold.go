package weights

import "math"

// Epsilon is the numerical stabilizer every normalization layer uses.
const Epsilon = 1e-5

// FoldShift encodes a normalization layer's shift parameter as the legacy
// bias the exchange format carries:
//
//	encodedBias = shift * sqrt(runningVariance + epsilon)
//
// The format predates explicit normalization support; consumers interpret
// the shift as a bias scaled by the layer's standard deviation. The running
// mean is not part of the fold and travels in its own slot.
func FoldShift(shift, variance []float32) []float32 {
	if len(shift) != len(variance) {
		invariant("fold: shift length %d != variance length %d", len(shift), len(variance))
	}
	folded := make([]float32, len(shift))
	for i, s := range shift {
		folded[i] = s * stddev(variance[i])
	}
	return folded
}

// UnfoldShift reverses FoldShift:
//
//	shift = encodedBias / sqrt(runningVariance + epsilon)
func UnfoldShift(folded, variance []float32) []float32 {
	if len(folded) != len(variance) {
		invariant("unfold: bias length %d != variance length %d", len(folded), len(variance))
	}
	shift := make([]float32, len(folded))
	for i, b := range folded {
		shift[i] = b / stddev(variance[i])
	}
	return shift
}

// stddev returns sqrt(variance + epsilon). A non-positive radicand cannot
// occur with a non-negative running variance; it indicates corrupted state
// upstream.
func stddev(variance float32) float32 {
	v := variance + Epsilon
	if v <= 0 {
		invariant("fold: running variance %g makes variance+epsilon non-positive", variance)
	}
	return float32(math.Sqrt(float64(v)))
}
