package weights

import (
	"github.com/ganeshkrishnan1/lczero-training/internal/tensor"
)

// ExchangeShape derives the on-disk shape for a tensor from its role and
// native shape.
//
//   - ConvKernel: native [kh, kw, in, out] becomes [out, in, kh, kw]
//     (cuDNN/Caffe order, which the external engine expects).
//   - DenseKernel: native [in, out] becomes [out, in].
//   - Everything else is one-dimensional and unchanged.
func ExchangeShape(role Role, native tensor.Shape) tensor.Shape {
	switch role {
	case ConvKernel:
		if len(native) != 4 {
			invariant("conv kernel native shape must have 4 axes, got %v", native)
		}
		return tensor.Shape{native[3], native[2], native[0], native[1]}
	case DenseKernel:
		if len(native) != 2 {
			invariant("dense kernel native shape must have 2 axes, got %v", native)
		}
		return tensor.Shape{native[1], native[0]}
	case Bias, NormShift, NormRunningMean, NormRunningVariance:
		return native.Clone()
	default:
		invariant("no exchange shape rule for role %d", role)
		return nil
	}
}

// ToExchange permutes native-layout values into exchange layout, returning a
// new slice. This is an axis permutation, not a reshape: element order
// changes for convolution and dense kernels.
func ToExchange(role Role, native tensor.Shape, values []float32) []float32 {
	checkLayoutInput(role, native, values)

	switch role {
	case ConvKernel:
		kh, kw, in, out := native[0], native[1], native[2], native[3]
		dst := make([]float32, len(values))
		// Native [kh, kw, in, out] row-major -> exchange [out, in, kh, kw].
		for y := 0; y < kh; y++ {
			for x := 0; x < kw; x++ {
				for c := 0; c < in; c++ {
					base := ((y*kw+x)*in + c) * out
					for o := 0; o < out; o++ {
						dst[((o*in+c)*kh+y)*kw+x] = values[base+o]
					}
				}
			}
		}
		return dst
	case DenseKernel:
		in, out := native[0], native[1]
		dst := make([]float32, len(values))
		for i := 0; i < in; i++ {
			for o := 0; o < out; o++ {
				dst[o*in+i] = values[i*out+o]
			}
		}
		return dst
	default:
		dst := make([]float32, len(values))
		copy(dst, values)
		return dst
	}
}

// ToNative permutes exchange-layout values back into native layout,
// returning a new slice. It is the exact inverse of ToExchange.
func ToNative(role Role, native tensor.Shape, values []float32) []float32 {
	checkLayoutInput(role, native, values)

	switch role {
	case ConvKernel:
		kh, kw, in, out := native[0], native[1], native[2], native[3]
		dst := make([]float32, len(values))
		for o := 0; o < out; o++ {
			for c := 0; c < in; c++ {
				base := ((o*in + c) * kh) * kw
				for y := 0; y < kh; y++ {
					for x := 0; x < kw; x++ {
						dst[((y*kw+x)*in+c)*out+o] = values[base+y*kw+x]
					}
				}
			}
		}
		return dst
	case DenseKernel:
		in, out := native[0], native[1]
		dst := make([]float32, len(values))
		for o := 0; o < out; o++ {
			for i := 0; i < in; i++ {
				dst[i*out+o] = values[o*in+i]
			}
		}
		return dst
	default:
		dst := make([]float32, len(values))
		copy(dst, values)
		return dst
	}
}

// checkLayoutInput validates role/shape/value agreement. A mismatch here is
// a topology/codec bug, not caller input.
func checkLayoutInput(role Role, native tensor.Shape, values []float32) {
	// ExchangeShape performs the per-role axis-count checks.
	_ = ExchangeShape(role, native)
	if len(values) != native.NumElements() {
		invariant("%s: value count %d does not match native shape %v", role, len(values), native)
	}
}
