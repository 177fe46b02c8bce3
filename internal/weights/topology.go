// Package weights implements the parameter-exchange protocol between the
// training representation and the external inference engine: the ordered
// topology of learnable tensors, the layout conversion between training and
// exchange axis orders, the folding of normalization statistics into the
// legacy bias encoding, the no-progress input-scale compensation, and the
// version-2 text codec itself.
package weights

import (
	"github.com/ganeshkrishnan1/lczero-training/internal/tensor"
)

// Architectural constants shared by the network and the exchange format.
const (
	// InputPlanes is the number of stacked input channels the network
	// consumes.
	InputPlanes = 112

	// BoardSize is the spatial edge length of every plane.
	BoardSize = 8

	// PolicyOutputs is the size of the move-probability distribution.
	PolicyOutputs = 1858

	// HeadChannels is the channel count of the policy and value head
	// convolutions.
	HeadChannels = 32

	// ValueHidden is the width of the value head's hidden dense layer.
	ValueHidden = 128

	// noProgressPlane is the input channel holding the no-progress
	// (rule-50) counter, zero-based within the InputPlanes dimension.
	noProgressPlane = 109
)

// Role tags a learnable tensor with its meaning. Conversion and folding
// dispatch on the role carried here, never on the number of axes.
type Role int

// Tensor roles in the exchange protocol.
const (
	ConvKernel Role = iota
	DenseKernel
	Bias
	NormShift
	NormRunningMean
	NormRunningVariance
)

// String returns a human-readable role name.
func (r Role) String() string {
	switch r {
	case ConvKernel:
		return "conv kernel"
	case DenseKernel:
		return "dense kernel"
	case Bias:
		return "bias"
	case NormShift:
		return "norm shift"
	case NormRunningMean:
		return "norm running mean"
	case NormRunningVariance:
		return "norm running variance"
	default:
		return "unknown"
	}
}

// Tensor describes one learnable parameter array: its role and the shape the
// training representation holds it in. The exchange shape is derived, never
// stored.
type Tensor struct {
	Role        Role
	NativeShape tensor.Shape
}

// ExchangeShape returns the shape the tensor takes in the weight file.
func (t Tensor) ExchangeShape() tensor.Shape {
	return ExchangeShape(t.Role, t.NativeShape)
}

// Topology is the fully-ordered sequence of learnable tensors for a network
// with a given filter count and residual block count. File position is the
// only identity the exchange format carries, so the ordering here is the
// contract: input convolution block, the residual tower, the policy head
// (convolution block + dense block), then the value head (convolution block
// + two dense blocks).
//
// A Topology is built once from configuration and never mutated.
type Topology struct {
	Filters int
	Blocks  int
	Tensors []Tensor
}

// NewTopology builds the tensor ordering for a network with the given filter
// and residual block counts. Calling it twice with the same arguments yields
// an identical ordering. Returns a ConfigError if filters <= 0 or blocks < 0.
func NewTopology(filters, blocks int) (*Topology, error) {
	if filters <= 0 {
		return nil, &ConfigError{Field: "filters", Value: filters, Reason: "must be positive"}
	}
	if blocks < 0 {
		return nil, &ConfigError{Field: "residual_blocks", Value: blocks, Reason: "must not be negative"}
	}

	t := &Topology{Filters: filters, Blocks: blocks}

	// Input convolution block.
	t.convBlock(3, InputPlanes, filters)

	// Residual tower: two convolution blocks per residual block.
	for i := 0; i < blocks; i++ {
		t.convBlock(3, filters, filters)
		t.convBlock(3, filters, filters)
	}

	// Policy head.
	t.convBlock(1, filters, HeadChannels)
	t.denseBlock(HeadChannels*BoardSize*BoardSize, PolicyOutputs)

	// Value head.
	t.convBlock(1, filters, HeadChannels)
	t.denseBlock(HeadChannels*BoardSize*BoardSize, ValueHidden)
	t.denseBlock(ValueHidden, 1)

	return t, nil
}

// convBlock appends one convolution block: the kernel in native
// [kh, kw, in, out] order followed by the normalization shift, running mean
// and running variance, each per output channel.
func (t *Topology) convBlock(kernelSize, in, out int) {
	t.Tensors = append(t.Tensors,
		Tensor{Role: ConvKernel, NativeShape: tensor.Shape{kernelSize, kernelSize, in, out}},
		Tensor{Role: NormShift, NativeShape: tensor.Shape{out}},
		Tensor{Role: NormRunningMean, NativeShape: tensor.Shape{out}},
		Tensor{Role: NormRunningVariance, NativeShape: tensor.Shape{out}},
	)
}

// denseBlock appends one dense block: the kernel in native [in, out] order
// followed by its bias.
func (t *Topology) denseBlock(in, out int) {
	t.Tensors = append(t.Tensors,
		Tensor{Role: DenseKernel, NativeShape: tensor.Shape{in, out}},
		Tensor{Role: Bias, NativeShape: tensor.Shape{out}},
	)
}

// NumTensors returns the number of learnable tensors: 4 for the input block,
// 8 per residual block, and 14 for the two heads.
func (t *Topology) NumTensors() int {
	return len(t.Tensors)
}
