package nn

import (
	"math"

	"github.com/ganeshkrishnan1/lczero-training/internal/tensor"
)

// ReLU applies max(0, x) elementwise.
type ReLU struct {
	mask []bool // which inputs were positive in the last Forward
}

// NewReLU creates a ReLU activation.
func NewReLU() *ReLU {
	return &ReLU{}
}

// Forward applies the activation.
func (r *ReLU) Forward(x *tensor.Tensor) *tensor.Tensor {
	src := x.Data()
	y := tensor.New(x.Shape())
	dst := y.Data()
	r.mask = make([]bool, len(src))
	for i, v := range src {
		if v > 0 {
			dst[i] = v
			r.mask[i] = true
		}
	}
	return y
}

// Backward zeroes gradients where the forward input was non-positive.
func (r *ReLU) Backward(gradOut *tensor.Tensor) *tensor.Tensor {
	gout := gradOut.Data()
	gradIn := tensor.New(gradOut.Shape())
	gin := gradIn.Data()
	for i, on := range r.mask {
		if on {
			gin[i] = gout[i]
		}
	}
	return gradIn
}

// Tanh applies tanh elementwise.
type Tanh struct {
	output []float32 // cached forward output; tanh' = 1 - tanh^2
}

// NewTanh creates a Tanh activation.
func NewTanh() *Tanh {
	return &Tanh{}
}

// Forward applies the activation.
func (t *Tanh) Forward(x *tensor.Tensor) *tensor.Tensor {
	src := x.Data()
	y := tensor.New(x.Shape())
	dst := y.Data()
	for i, v := range src {
		dst[i] = float32(math.Tanh(float64(v)))
	}
	t.output = dst
	return y
}

// Backward applies the tanh derivative.
func (t *Tanh) Backward(gradOut *tensor.Tensor) *tensor.Tensor {
	gout := gradOut.Data()
	gradIn := tensor.New(gradOut.Shape())
	gin := gradIn.Data()
	for i, o := range t.output {
		gin[i] = gout[i] * (1 - o*o)
	}
	return gradIn
}
