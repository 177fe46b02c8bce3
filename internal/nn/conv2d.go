package nn

import (
	"fmt"
	"math/rand"

	"github.com/ganeshkrishnan1/lczero-training/internal/tensor"
)

// Conv2D is a 2D convolution with stride 1 and SAME padding, no bias (a
// normalization layer always follows and supplies the shift).
//
// Input is NCHW [batch, in, h, w]. The kernel is held in the training-native
// HWIO order [kh, kw, in, out]; the weight codec converts it to the exchange
// order when a file is written.
type Conv2D struct {
	kernelSize  int
	inChannels  int
	outChannels int

	weight *Parameter

	input *tensor.Tensor // cached forward input for the backward pass
}

// NewConv2D creates a convolution layer with Xavier-initialized weights.
func NewConv2D(kernelSize, inChannels, outChannels int, rng *rand.Rand) *Conv2D {
	if kernelSize <= 0 || inChannels <= 0 || outChannels <= 0 {
		panic(fmt.Sprintf("conv2d: invalid geometry kernel=%d in=%d out=%d",
			kernelSize, inChannels, outChannels))
	}
	shape := tensor.Shape{kernelSize, kernelSize, inChannels, outChannels}
	return &Conv2D{
		kernelSize:  kernelSize,
		inChannels:  inChannels,
		outChannels: outChannels,
		weight:      NewParameter("conv_weight", tensor.Glorot(shape, rng)),
	}
}

// Weight returns the kernel parameter.
func (c *Conv2D) Weight() *Parameter {
	return c.weight
}

// Forward computes the convolution. Input [n, in, h, w], output
// [n, out, h, w]; SAME padding keeps the spatial size.
func (c *Conv2D) Forward(x *tensor.Tensor) *tensor.Tensor {
	shape := x.Shape()
	if len(shape) != 4 || shape[1] != c.inChannels {
		panic(fmt.Sprintf("conv2d: expected input [n, %d, h, w], got %v", c.inChannels, shape))
	}
	n, h, w := shape[0], shape[2], shape[3]
	c.input = x

	k := c.kernelSize
	pad := (k - 1) / 2
	in, out := c.inChannels, c.outChannels
	src := x.Data()
	kernel := c.weight.Tensor().Data()

	y := tensor.New(tensor.Shape{n, out, h, w})
	dst := y.Data()

	for b := 0; b < n; b++ {
		for o := 0; o < out; o++ {
			for row := 0; row < h; row++ {
				for col := 0; col < w; col++ {
					var sum float32
					for ky := 0; ky < k; ky++ {
						ir := row + ky - pad
						if ir < 0 || ir >= h {
							continue
						}
						for kx := 0; kx < k; kx++ {
							ic := col + kx - pad
							if ic < 0 || ic >= w {
								continue
							}
							for ch := 0; ch < in; ch++ {
								sum += src[((b*in+ch)*h+ir)*w+ic] * kernel[((ky*k+kx)*in+ch)*out+o]
							}
						}
					}
					dst[((b*out+o)*h+row)*w+col] = sum
				}
			}
		}
	}
	return y
}

// Backward accumulates the kernel gradient and returns the gradient with
// respect to the forward input. Must follow a Forward call.
func (c *Conv2D) Backward(gradOut *tensor.Tensor) *tensor.Tensor {
	if c.input == nil {
		panic("conv2d: Backward called before Forward")
	}
	shape := c.input.Shape()
	n, h, w := shape[0], shape[2], shape[3]
	k := c.kernelSize
	pad := (k - 1) / 2
	in, out := c.inChannels, c.outChannels

	src := c.input.Data()
	kernel := c.weight.Tensor().Data()
	kernelGrad := c.weight.Grad().Data()
	gout := gradOut.Data()

	gradIn := tensor.New(shape)
	gin := gradIn.Data()

	for b := 0; b < n; b++ {
		for o := 0; o < out; o++ {
			for row := 0; row < h; row++ {
				for col := 0; col < w; col++ {
					g := gout[((b*out+o)*h+row)*w+col]
					if g == 0 {
						continue
					}
					for ky := 0; ky < k; ky++ {
						ir := row + ky - pad
						if ir < 0 || ir >= h {
							continue
						}
						for kx := 0; kx < k; kx++ {
							ic := col + kx - pad
							if ic < 0 || ic >= w {
								continue
							}
							for ch := 0; ch < in; ch++ {
								srcIdx := ((b*in+ch)*h+ir)*w + ic
								kIdx := ((ky*k+kx)*in+ch)*out + o
								kernelGrad[kIdx] += src[srcIdx] * g
								gin[srcIdx] += kernel[kIdx] * g
							}
						}
					}
				}
			}
		}
	}
	return gradIn
}

// Parameters returns the trainable parameters.
func (c *Conv2D) Parameters() []*Parameter {
	return []*Parameter{c.weight}
}
