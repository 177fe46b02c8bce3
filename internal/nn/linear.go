package nn

import (
	"fmt"
	"math/rand"

	"github.com/ganeshkrishnan1/lczero-training/internal/tensor"
)

// Linear is a fully connected layer with bias. The weight is held in the
// training-native [in, out] order; the weight codec transposes it for the
// exchange file.
type Linear struct {
	in  int
	out int

	weight *Parameter
	bias   *Parameter

	input *tensor.Tensor // cached forward input for the backward pass
}

// NewLinear creates a dense layer with Xavier-initialized weights and zero
// bias.
func NewLinear(in, out int, rng *rand.Rand) *Linear {
	if in <= 0 || out <= 0 {
		panic(fmt.Sprintf("linear: invalid geometry in=%d out=%d", in, out))
	}
	return &Linear{
		in:     in,
		out:    out,
		weight: NewParameter("dense_weight", tensor.Glorot(tensor.Shape{in, out}, rng)),
		bias:   NewParameter("dense_bias", tensor.Zeros(tensor.Shape{out})),
	}
}

// Weight returns the kernel parameter.
func (l *Linear) Weight() *Parameter {
	return l.weight
}

// Bias returns the bias parameter.
func (l *Linear) Bias() *Parameter {
	return l.bias
}

// Forward computes x·W + b. Input [n, in], output [n, out].
func (l *Linear) Forward(x *tensor.Tensor) *tensor.Tensor {
	shape := x.Shape()
	if len(shape) != 2 || shape[1] != l.in {
		panic(fmt.Sprintf("linear: expected input [n, %d], got %v", l.in, shape))
	}
	n := shape[0]
	l.input = x

	src := x.Data()
	w := l.weight.Tensor().Data()
	b := l.bias.Tensor().Data()

	y := tensor.New(tensor.Shape{n, l.out})
	dst := y.Data()
	for row := 0; row < n; row++ {
		for o := 0; o < l.out; o++ {
			sum := b[o]
			for i := 0; i < l.in; i++ {
				sum += src[row*l.in+i] * w[i*l.out+o]
			}
			dst[row*l.out+o] = sum
		}
	}
	return y
}

// Backward accumulates weight and bias gradients and returns the input
// gradient. Must follow a Forward call.
func (l *Linear) Backward(gradOut *tensor.Tensor) *tensor.Tensor {
	if l.input == nil {
		panic("linear: Backward called before Forward")
	}
	n := l.input.Shape()[0]

	src := l.input.Data()
	w := l.weight.Tensor().Data()
	wGrad := l.weight.Grad().Data()
	bGrad := l.bias.Grad().Data()
	gout := gradOut.Data()

	gradIn := tensor.New(tensor.Shape{n, l.in})
	gin := gradIn.Data()

	for row := 0; row < n; row++ {
		for o := 0; o < l.out; o++ {
			g := gout[row*l.out+o]
			if g == 0 {
				continue
			}
			bGrad[o] += g
			for i := 0; i < l.in; i++ {
				wGrad[i*l.out+o] += src[row*l.in+i] * g
				gin[row*l.in+i] += w[i*l.out+o] * g
			}
		}
	}
	return gradIn
}

// Parameters returns the trainable parameters.
func (l *Linear) Parameters() []*Parameter {
	return []*Parameter{l.weight, l.bias}
}
