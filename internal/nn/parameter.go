package nn

import (
	"github.com/ganeshkrishnan1/lczero-training/internal/tensor"
)

// Parameter is a trainable tensor together with its accumulated gradient.
type Parameter struct {
	name string
	t    *tensor.Tensor
	grad *tensor.Tensor
}

// NewParameter creates a parameter around an initialized tensor. The
// gradient buffer is allocated eagerly with the same shape so backward
// passes can accumulate into it without checks.
func NewParameter(name string, t *tensor.Tensor) *Parameter {
	return &Parameter{
		name: name,
		t:    t,
		grad: tensor.Zeros(t.Shape()),
	}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.Tensor {
	return p.t
}

// Grad returns the accumulated gradient tensor.
func (p *Parameter) Grad() *tensor.Tensor {
	return p.grad
}

// ZeroGrad clears the accumulated gradient. Call between training steps.
func (p *Parameter) ZeroGrad() {
	data := p.grad.Data()
	for i := range data {
		data[i] = 0
	}
}
