package weights

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ganeshkrishnan1/lczero-training/internal/tensor"
)

// TestConvKernelToExchangeElementwise checks the axis permutation element by
// element: the wrong permutation still produces the right shape, so shape
// checks alone prove nothing.
func TestConvKernelToExchangeElementwise(t *testing.T) {
	// Deliberately asymmetric: kh=2, kw=3, in=4, out=5.
	kh, kw, in, out := 2, 3, 4, 5
	native := tensor.Shape{kh, kw, in, out}

	src := make([]float32, native.NumElements())
	for i := range src {
		src[i] = float32(i)
	}

	dst := ToExchange(ConvKernel, native, src)
	require.Len(t, dst, len(src))

	for y := 0; y < kh; y++ {
		for x := 0; x < kw; x++ {
			for c := 0; c < in; c++ {
				for o := 0; o < out; o++ {
					nativeIdx := ((y*kw+x)*in+c)*out + o
					exchangeIdx := ((o*in+c)*kh+y)*kw + x
					assert.Equal(t, src[nativeIdx], dst[exchangeIdx],
						"y=%d x=%d c=%d o=%d", y, x, c, o)
				}
			}
		}
	}
}

func TestConvKernelRoundTripIdentity(t *testing.T) {
	shapes := []tensor.Shape{
		{3, 3, 112, 64},
		{1, 1, 64, 32},
		{2, 3, 4, 5},
		{1, 1, 1, 1},
	}
	rng := rand.New(rand.NewSource(7))
	for _, native := range shapes {
		src := make([]float32, native.NumElements())
		for i := range src {
			src[i] = rng.Float32()
		}
		back := ToNative(ConvKernel, native, ToExchange(ConvKernel, native, src))
		assert.Equal(t, src, back, "shape %v", native)
	}
}

func TestDenseKernelTranspose(t *testing.T) {
	// Native [in=2, out=3]:
	//   [a b c]
	//   [d e f]
	// Exchange [out=3, in=2] row-major: a d b e c f.
	src := []float32{1, 2, 3, 4, 5, 6}
	dst := ToExchange(DenseKernel, tensor.Shape{2, 3}, src)
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, dst)

	back := ToNative(DenseKernel, tensor.Shape{2, 3}, dst)
	assert.Equal(t, src, back)
}

func TestOneDimensionalRolesCopiedVerbatim(t *testing.T) {
	src := []float32{0.5, -1.25, 3}
	for _, role := range []Role{Bias, NormShift, NormRunningMean, NormRunningVariance} {
		dst := ToExchange(role, tensor.Shape{3}, src)
		assert.Equal(t, src, dst, "role %s", role)

		// The copy must not alias the input.
		dst[0] = 99
		assert.Equal(t, float32(0.5), src[0], "role %s", role)
	}
}

func TestLayoutRejectsBadShapes(t *testing.T) {
	require.Panics(t, func() {
		ToExchange(ConvKernel, tensor.Shape{3, 3, 112}, make([]float32, 3*3*112))
	})
	require.Panics(t, func() {
		ToExchange(DenseKernel, tensor.Shape{2, 3, 4}, make([]float32, 24))
	})
	require.Panics(t, func() {
		ToExchange(DenseKernel, tensor.Shape{2, 3}, make([]float32, 5))
	})
}
