package nn

import (
	"fmt"
	"math"

	"github.com/ganeshkrishnan1/lczero-training/internal/tensor"
)

// Batch normalization constants. The shift is the only trained parameter;
// scale is fixed at 1 to match the exchange format's legacy bias encoding.
const (
	// BatchNormEpsilon is the numerical stabilizer, identical to the one
	// the weight codec folds into the exported bias.
	BatchNormEpsilon = 1e-5

	// batchNormMomentum is the running-statistics decay.
	batchNormMomentum = 0.99
)

// BatchNorm normalizes activations per channel over the batch and spatial
// dimensions, tracking running mean and variance for inference.
type BatchNorm struct {
	channels int

	shift       *Parameter     // beta; the only trained parameter
	runningMean *tensor.Tensor // updated during training, used at inference
	runningVar  *tensor.Tensor

	// Forward caches for the backward pass.
	input     *tensor.Tensor
	batchMean []float32
	batchVar  []float32
}

// NewBatchNorm creates a batch normalization layer for the given channel
// count. Shift starts at zero, running mean at zero, running variance at one.
func NewBatchNorm(channels int) *BatchNorm {
	if channels <= 0 {
		panic(fmt.Sprintf("batchnorm: invalid channel count %d", channels))
	}
	return &BatchNorm{
		channels:    channels,
		shift:       NewParameter("batchnorm_shift", tensor.Zeros(tensor.Shape{channels})),
		runningMean: tensor.Zeros(tensor.Shape{channels}),
		runningVar:  tensor.Ones(tensor.Shape{channels}),
	}
}

// Shift returns the trained shift parameter.
func (bn *BatchNorm) Shift() *Parameter {
	return bn.shift
}

// RunningMean returns the running mean tensor.
func (bn *BatchNorm) RunningMean() *tensor.Tensor {
	return bn.runningMean
}

// RunningVar returns the running variance tensor.
func (bn *BatchNorm) RunningVar() *tensor.Tensor {
	return bn.runningVar
}

// Forward normalizes x ([n, c, h, w]). In training mode batch statistics are
// used and the running statistics updated; in inference mode the running
// statistics are used directly.
func (bn *BatchNorm) Forward(x *tensor.Tensor, training bool) *tensor.Tensor {
	shape := x.Shape()
	if len(shape) != 4 || shape[1] != bn.channels {
		panic(fmt.Sprintf("batchnorm: expected input [n, %d, h, w], got %v", bn.channels, shape))
	}
	n, c, h, w := shape[0], shape[1], shape[2], shape[3]
	area := h * w
	count := n * area

	mean := make([]float32, c)
	variance := make([]float32, c)
	if training {
		src := x.Data()
		for ch := 0; ch < c; ch++ {
			var sum float64
			for b := 0; b < n; b++ {
				base := (b*c + ch) * area
				for i := 0; i < area; i++ {
					sum += float64(src[base+i])
				}
			}
			mean[ch] = float32(sum / float64(count))

			var sq float64
			m := float64(mean[ch])
			for b := 0; b < n; b++ {
				base := (b*c + ch) * area
				for i := 0; i < area; i++ {
					d := float64(src[base+i]) - m
					sq += d * d
				}
			}
			variance[ch] = float32(sq / float64(count))
		}

		rm := bn.runningMean.Data()
		rv := bn.runningVar.Data()
		for ch := 0; ch < c; ch++ {
			rm[ch] = rm[ch]*batchNormMomentum + mean[ch]*(1-batchNormMomentum)
			rv[ch] = rv[ch]*batchNormMomentum + variance[ch]*(1-batchNormMomentum)
		}

		bn.input = x
		bn.batchMean = mean
		bn.batchVar = variance
	} else {
		copy(mean, bn.runningMean.Data())
		copy(variance, bn.runningVar.Data())
	}

	y := tensor.New(shape)
	src := x.Data()
	dst := y.Data()
	beta := bn.shift.Tensor().Data()
	for ch := 0; ch < c; ch++ {
		invStd := float32(1 / math.Sqrt(float64(variance[ch])+BatchNormEpsilon))
		for b := 0; b < n; b++ {
			base := (b*c + ch) * area
			for i := 0; i < area; i++ {
				dst[base+i] = (src[base+i]-mean[ch])*invStd + beta[ch]
			}
		}
	}
	return y
}

// Backward accumulates the shift gradient and returns the input gradient.
// Must follow a training-mode Forward call.
func (bn *BatchNorm) Backward(gradOut *tensor.Tensor) *tensor.Tensor {
	if bn.input == nil {
		panic("batchnorm: Backward called before training-mode Forward")
	}
	shape := bn.input.Shape()
	n, c, h, w := shape[0], shape[1], shape[2], shape[3]
	area := h * w
	count := float64(n * area)

	src := bn.input.Data()
	gout := gradOut.Data()
	shiftGrad := bn.shift.Grad().Data()

	gradIn := tensor.New(shape)
	gin := gradIn.Data()

	for ch := 0; ch < c; ch++ {
		m := float64(bn.batchMean[ch])
		invStd := 1 / math.Sqrt(float64(bn.batchVar[ch])+BatchNormEpsilon)

		// Channel-wide sums for the mean/variance gradient terms.
		var sumG, sumGX float64
		for b := 0; b < n; b++ {
			base := (b*c + ch) * area
			for i := 0; i < area; i++ {
				g := float64(gout[base+i])
				sumG += g
				sumGX += g * (float64(src[base+i]) - m)
			}
		}
		shiftGrad[ch] += float32(sumG)

		// With scale fixed at 1:
		// dx = invStd * (g - sumG/count - (x-m)*invStd^2 * sumGX/count)
		for b := 0; b < n; b++ {
			base := (b*c + ch) * area
			for i := 0; i < area; i++ {
				g := float64(gout[base+i])
				xc := float64(src[base+i]) - m
				gin[base+i] = float32(invStd * (g - sumG/count - xc*invStd*invStd*sumGX/count))
			}
		}
	}
	return gradIn
}

// Parameters returns the trainable parameters (the shift only: running
// statistics are tracked, not trained).
func (bn *BatchNorm) Parameters() []*Parameter {
	return []*Parameter{bn.shift}
}
