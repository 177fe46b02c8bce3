package nn

import (
	"math/rand"

	"github.com/ganeshkrishnan1/lczero-training/internal/tensor"
)

// NormBundle is the explicit set of tensors one convolution block
// contributes to the exchange file: the kernel, the normalization shift and
// the running statistics, returned together rather than looked up by name in
// some shared namespace.
type NormBundle struct {
	Kernel      *tensor.Tensor
	Shift       *tensor.Tensor
	RunningMean *tensor.Tensor
	RunningVar  *tensor.Tensor
}

// ConvBlock is a convolution followed by batch normalization and ReLU.
type ConvBlock struct {
	conv *Conv2D
	norm *BatchNorm
	relu *ReLU
}

// NewConvBlock creates a convolution block.
func NewConvBlock(kernelSize, in, out int, rng *rand.Rand) *ConvBlock {
	return &ConvBlock{
		conv: NewConv2D(kernelSize, in, out, rng),
		norm: NewBatchNorm(out),
		relu: NewReLU(),
	}
}

// Forward runs conv, normalization and ReLU.
func (cb *ConvBlock) Forward(x *tensor.Tensor, training bool) *tensor.Tensor {
	return cb.relu.Forward(cb.norm.Forward(cb.conv.Forward(x), training))
}

// forwardLinear runs conv and normalization without the activation, for the
// second half of a residual block where ReLU comes after the skip addition.
func (cb *ConvBlock) forwardLinear(x *tensor.Tensor, training bool) *tensor.Tensor {
	return cb.norm.Forward(cb.conv.Forward(x), training)
}

// Backward runs the full block backward.
func (cb *ConvBlock) Backward(gradOut *tensor.Tensor) *tensor.Tensor {
	return cb.conv.Backward(cb.norm.Backward(cb.relu.Backward(gradOut)))
}

// backwardLinear skips the activation, matching forwardLinear.
func (cb *ConvBlock) backwardLinear(gradOut *tensor.Tensor) *tensor.Tensor {
	return cb.conv.Backward(cb.norm.Backward(gradOut))
}

// Bundle returns the block's exchange tensors.
func (cb *ConvBlock) Bundle() NormBundle {
	return NormBundle{
		Kernel:      cb.conv.Weight().Tensor(),
		Shift:       cb.norm.Shift().Tensor(),
		RunningMean: cb.norm.RunningMean(),
		RunningVar:  cb.norm.RunningVar(),
	}
}

// Parameters returns the trainable parameters.
func (cb *ConvBlock) Parameters() []*Parameter {
	return append(cb.conv.Parameters(), cb.norm.Parameters()...)
}

// Residual is two convolution blocks with a skip connection: the second
// block's output is added to the residual input before the final ReLU.
type Residual struct {
	first  *ConvBlock
	second *ConvBlock
	relu   *ReLU
}

// NewResidual creates a residual block with 3x3 convolutions.
func NewResidual(channels int, rng *rand.Rand) *Residual {
	return &Residual{
		first:  NewConvBlock(3, channels, channels, rng),
		second: NewConvBlock(3, channels, channels, rng),
		relu:   NewReLU(),
	}
}

// Forward computes relu(second(first(x)) + x).
func (r *Residual) Forward(x *tensor.Tensor, training bool) *tensor.Tensor {
	h := r.first.Forward(x, training)
	h = r.second.forwardLinear(h, training)

	sum := tensor.New(h.Shape())
	dst := sum.Data()
	a, b := h.Data(), x.Data()
	for i := range dst {
		dst[i] = a[i] + b[i]
	}
	return r.relu.Forward(sum)
}

// Backward propagates through both paths; the skip connection contributes
// the post-activation gradient directly to the input gradient.
func (r *Residual) Backward(gradOut *tensor.Tensor) *tensor.Tensor {
	g := r.relu.Backward(gradOut)
	gradIn := r.first.Backward(r.second.backwardLinear(g))

	gin, skip := gradIn.Data(), g.Data()
	for i := range gin {
		gin[i] += skip[i]
	}
	return gradIn
}

// Blocks returns the two convolution blocks in exchange order.
func (r *Residual) Blocks() [2]*ConvBlock {
	return [2]*ConvBlock{r.first, r.second}
}

// Parameters returns the trainable parameters.
func (r *Residual) Parameters() []*Parameter {
	return append(r.first.Parameters(), r.second.Parameters()...)
}
