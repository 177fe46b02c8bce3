// Package optim implements the optimizer the training loop uses: stochastic
// gradient descent with Nesterov momentum and a piecewise-constant learning
// rate schedule.
package optim

import (
	"fmt"

	"github.com/ganeshkrishnan1/lczero-training/internal/nn"
	"github.com/ganeshkrishnan1/lczero-training/internal/tensor"
)

// SGD implements stochastic gradient descent with Nesterov momentum.
//
// Update rule:
//
//	velocity = momentum * velocity + gradient
//	param   -= lr * (gradient + momentum * velocity)
//
// With momentum 0 this reduces to plain SGD.
type SGD struct {
	params     []*nn.Parameter
	lr         float32
	momentum   float32
	velocities []*tensor.Tensor
}

// SGDConfig holds the optimizer configuration.
type SGDConfig struct {
	LR       float32 // initial learning rate
	Momentum float32 // momentum factor in [0, 1)
}

// NewSGD creates the optimizer over the given parameters.
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	if config.LR <= 0 {
		panic(fmt.Sprintf("sgd: learning rate must be positive, got %g", config.LR))
	}
	if config.Momentum < 0 || config.Momentum >= 1 {
		panic(fmt.Sprintf("sgd: momentum must be in [0, 1), got %g", config.Momentum))
	}

	velocities := make([]*tensor.Tensor, len(params))
	for i, p := range params {
		velocities[i] = tensor.Zeros(p.Tensor().Shape())
	}
	return &SGD{
		params:     params,
		lr:         config.LR,
		momentum:   config.Momentum,
		velocities: velocities,
	}
}

// Step applies one update from the gradients accumulated on the parameters.
func (s *SGD) Step() {
	for i, p := range s.params {
		w := p.Tensor().Data()
		g := p.Grad().Data()
		v := s.velocities[i].Data()

		if s.momentum == 0 {
			for j := range w {
				w[j] -= s.lr * g[j]
			}
			continue
		}

		// Nesterov: look ahead along the updated velocity.
		for j := range w {
			v[j] = s.momentum*v[j] + g[j]
			w[j] -= s.lr * (g[j] + s.momentum*v[j])
		}
	}
}

// Velocities exposes the momentum buffers, one per parameter in parameter
// order. Checkpointing reads and restores them through this slice.
func (s *SGD) Velocities() []*tensor.Tensor {
	return s.velocities
}

// ZeroGrad clears the gradients of all parameters.
func (s *SGD) ZeroGrad() {
	for _, p := range s.params {
		p.ZeroGrad()
	}
}

// LR returns the current learning rate.
func (s *SGD) LR() float32 {
	return s.lr
}

// SetLR updates the learning rate; the schedule calls this between steps.
func (s *SGD) SetLR(lr float32) {
	s.lr = lr
}
