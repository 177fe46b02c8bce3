package nn

import (
	"fmt"
	"math/rand"

	"github.com/ganeshkrishnan1/lczero-training/internal/tensor"
	"github.com/ganeshkrishnan1/lczero-training/internal/weights"
)

// Network is the residual policy/value network: an input convolution block,
// a residual tower, a policy head producing move logits and a value head
// producing a tanh evaluation.
type Network struct {
	topo *weights.Topology

	input *ConvBlock
	tower []*Residual

	policyConv *ConvBlock
	policyFC   *Linear

	valueConv *ConvBlock
	valueFC1  *Linear
	valueRelu *ReLU
	valueFC2  *Linear
	valueTanh *Tanh

	// Shapes cached between Forward and Backward.
	batch int
}

// NewNetwork builds a network with the given filter count and residual
// block count. The topology error surfaces invalid configuration before any
// allocation.
func NewNetwork(filters, blocks int, rng *rand.Rand) (*Network, error) {
	topo, err := weights.NewTopology(filters, blocks)
	if err != nil {
		return nil, err
	}

	n := &Network{
		topo:       topo,
		input:      NewConvBlock(3, weights.InputPlanes, filters, rng),
		policyConv: NewConvBlock(1, filters, weights.HeadChannels, rng),
		policyFC: NewLinear(
			weights.HeadChannels*weights.BoardSize*weights.BoardSize,
			weights.PolicyOutputs, rng),
		valueConv: NewConvBlock(1, filters, weights.HeadChannels, rng),
		valueFC1: NewLinear(
			weights.HeadChannels*weights.BoardSize*weights.BoardSize,
			weights.ValueHidden, rng),
		valueRelu: NewReLU(),
		valueFC2:  NewLinear(weights.ValueHidden, 1, rng),
		valueTanh: NewTanh(),
	}
	for i := 0; i < blocks; i++ {
		n.tower = append(n.tower, NewResidual(filters, rng))
	}
	return n, nil
}

// Topology returns the weight-exchange topology this network was built from.
func (n *Network) Topology() *weights.Topology {
	return n.topo
}

// Forward runs the network. planes may be [batch, 112, 8, 8] or the flat
// [batch, 112*64]; the returned policy logits are [batch, 1858] and the
// value [batch, 1] in (-1, 1).
func (n *Network) Forward(planes *tensor.Tensor, training bool) (policy, value *tensor.Tensor) {
	x := reshapePlanes(planes)
	n.batch = x.Shape()[0]

	flow := n.input.Forward(x, training)
	for _, res := range n.tower {
		flow = res.Forward(flow, training)
	}

	pol := n.policyConv.Forward(flow, training)
	policy = n.policyFC.Forward(flatten(pol))

	val := n.valueConv.Forward(flow, training)
	v := n.valueFC1.Forward(flatten(val))
	v = n.valueRelu.Forward(v)
	v = n.valueFC2.Forward(v)
	value = n.valueTanh.Forward(v)

	return policy, value
}

// Backward propagates the loss gradients through both heads and the tower,
// accumulating parameter gradients. Must follow a training-mode Forward.
func (n *Network) Backward(gradPolicy, gradValue *tensor.Tensor) {
	headShape := tensor.Shape{
		n.batch, weights.HeadChannels, weights.BoardSize, weights.BoardSize,
	}

	gp := n.policyFC.Backward(gradPolicy)
	gradFlow := n.policyConv.Backward(unflatten(gp, headShape))

	gv := n.valueTanh.Backward(gradValue)
	gv = n.valueFC2.Backward(gv)
	gv = n.valueRelu.Backward(gv)
	gv = n.valueFC1.Backward(gv)
	gradValueFlow := n.valueConv.Backward(unflatten(gv, headShape))

	// The two heads branch from the tower output; their gradients add.
	a, b := gradFlow.Data(), gradValueFlow.Data()
	for i := range a {
		a[i] += b[i]
	}

	for i := len(n.tower) - 1; i >= 0; i-- {
		gradFlow = n.tower[i].Backward(gradFlow)
	}
	n.input.Backward(gradFlow)
}

// convBlocks returns every convolution block in topology order.
func (n *Network) convBlocks() []*ConvBlock {
	blocks := []*ConvBlock{n.input}
	for _, res := range n.tower {
		pair := res.Blocks()
		blocks = append(blocks, pair[0], pair[1])
	}
	return blocks
}

// Tensors returns the live native-layout value slices in exact topology
// order: the training side of the exchange contract. The slices alias the
// network's parameters; the codec reads them without mutation.
func (n *Network) Tensors() [][]float32 {
	var out [][]float32

	appendBundle := func(b NormBundle) {
		out = append(out, b.Kernel.Data(), b.Shift.Data(), b.RunningMean.Data(), b.RunningVar.Data())
	}
	appendDense := func(l *Linear) {
		out = append(out, l.Weight().Tensor().Data(), l.Bias().Tensor().Data())
	}

	appendBundle(n.input.Bundle())
	for _, res := range n.tower {
		pair := res.Blocks()
		appendBundle(pair[0].Bundle())
		appendBundle(pair[1].Bundle())
	}
	appendBundle(n.policyConv.Bundle())
	appendDense(n.policyFC)
	appendBundle(n.valueConv.Bundle())
	appendDense(n.valueFC1)
	appendDense(n.valueFC2)

	if len(out) != n.topo.NumTensors() {
		panic(fmt.Sprintf("network: produced %d tensors, topology has %d", len(out), n.topo.NumTensors()))
	}
	return out
}

// SetTensors assigns imported native-layout values into the live parameters,
// in topology order. Nothing is assigned unless every slice matches its
// expected element count, so a failed import leaves the network untouched.
func (n *Network) SetTensors(values [][]float32) error {
	targets := n.Tensors()
	if len(values) != len(targets) {
		return fmt.Errorf("network: got %d tensors, expected %d", len(values), len(targets))
	}
	for i, v := range values {
		if len(v) != len(targets[i]) {
			return fmt.Errorf("network: tensor %d (%s) has %d values, expected %d",
				i, n.topo.Tensors[i].Role, len(v), len(targets[i]))
		}
	}
	for i, v := range values {
		copy(targets[i], v)
	}
	return nil
}

// Parameters returns every trainable parameter.
func (n *Network) Parameters() []*Parameter {
	params := n.input.Parameters()
	for _, res := range n.tower {
		params = append(params, res.Parameters()...)
	}
	params = append(params, n.policyConv.Parameters()...)
	params = append(params, n.policyFC.Parameters()...)
	params = append(params, n.valueConv.Parameters()...)
	params = append(params, n.valueFC1.Parameters()...)
	params = append(params, n.valueFC2.Parameters()...)
	return params
}

// ZeroGrad clears all accumulated gradients.
func (n *Network) ZeroGrad() {
	for _, p := range n.Parameters() {
		p.ZeroGrad()
	}
}

// KernelParameters returns the convolution and dense kernels, the parameter
// set the L2 regularizer applies to (shifts and biases are excluded).
func (n *Network) KernelParameters() []*Parameter {
	var kernels []*Parameter
	for _, cb := range n.convBlocks() {
		kernels = append(kernels, cb.conv.Weight())
	}
	kernels = append(kernels, n.policyFC.Weight(), n.valueFC1.Weight(), n.valueFC2.Weight())
	return kernels
}

// reshapePlanes accepts [n, planes, 8, 8] or [n, planes*64] input.
func reshapePlanes(planes *tensor.Tensor) *tensor.Tensor {
	shape := planes.Shape()
	want := weights.InputPlanes * weights.BoardSize * weights.BoardSize
	switch {
	case len(shape) == 4 && shape[1] == weights.InputPlanes &&
		shape[2] == weights.BoardSize && shape[3] == weights.BoardSize:
		return planes
	case len(shape) == 2 && shape[1] == want:
		return tensor.FromSlice(tensor.Shape{
			shape[0], weights.InputPlanes, weights.BoardSize, weights.BoardSize,
		}, planes.Data())
	default:
		panic(fmt.Sprintf("network: bad input plane shape %v", shape))
	}
}

// flatten views [n, c, h, w] as [n, c*h*w] without copying.
func flatten(t *tensor.Tensor) *tensor.Tensor {
	shape := t.Shape()
	return tensor.FromSlice(tensor.Shape{shape[0], shape.NumElements() / shape[0]}, t.Data())
}

// unflatten views [n, m] as the given 4-D shape without copying.
func unflatten(t *tensor.Tensor, shape tensor.Shape) *tensor.Tensor {
	return tensor.FromSlice(shape, t.Data())
}
