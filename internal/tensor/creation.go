package tensor

import (
	"math"
	"math/rand"
)

// Zeros creates a tensor filled with zeros.
func Zeros(shape Shape) *Tensor {
	return New(shape)
}

// Full creates a tensor filled with the given value.
func Full(shape Shape, value float32) *Tensor {
	t := New(shape)
	for i := range t.data {
		t.data[i] = value
	}
	return t
}

// Ones creates a tensor filled with ones.
func Ones(shape Shape) *Tensor {
	return Full(shape, 1)
}

// Glorot creates a tensor initialized with truncated-normal Xavier values,
// stddev = sqrt(2 / sum(shape)).
//
// Samples further than two standard deviations from zero are redrawn, which
// matches the truncated-normal initialization the reference training setup
// uses for convolution and dense kernels.
func Glorot(shape Shape, rng *rand.Rand) *Tensor {
	sum := 0
	for _, dim := range shape {
		sum += dim
	}
	stddev := sqrtf(2 / float32(sum))

	t := New(shape)
	for i := range t.data {
		t.data[i] = truncNormal(rng, stddev)
	}
	return t
}

func sqrtf(v float32) float32 {
	return float32(math.Sqrt(float64(v)))
}

// truncNormal draws a normal sample with the given stddev, redrawing
// anything outside [-2*stddev, 2*stddev].
func truncNormal(rng *rand.Rand, stddev float32) float32 {
	for {
		v := float32(rng.NormFloat64()) * stddev
		if v >= -2*stddev && v <= 2*stddev {
			return v
		}
	}
}
