package nn

import (
	"fmt"
	"math"

	"github.com/ganeshkrishnan1/lczero-training/internal/tensor"
)

// RegularizationScale is the L2 coefficient applied to convolution and
// dense kernels.
const RegularizationScale = 1e-4

// SoftmaxCrossEntropy computes the mean softmax cross-entropy between
// logits and target distributions, both [n, classes], and the gradient with
// respect to the logits.
func SoftmaxCrossEntropy(logits, targets *tensor.Tensor) (float32, *tensor.Tensor) {
	shape := logits.Shape()
	if !shape.Equal(targets.Shape()) || len(shape) != 2 {
		panic(fmt.Sprintf("cross entropy: logits %v vs targets %v", shape, targets.Shape()))
	}
	n, classes := shape[0], shape[1]

	src := logits.Data()
	tgt := targets.Data()
	grad := tensor.New(shape)
	g := grad.Data()

	var total float64
	for row := 0; row < n; row++ {
		base := row * classes

		// Shift by the row max for numerical stability.
		maxv := src[base]
		for i := 1; i < classes; i++ {
			if src[base+i] > maxv {
				maxv = src[base+i]
			}
		}
		var sum float64
		for i := 0; i < classes; i++ {
			sum += math.Exp(float64(src[base+i] - maxv))
		}
		logSum := math.Log(sum)

		for i := 0; i < classes; i++ {
			logProb := float64(src[base+i]-maxv) - logSum
			total -= float64(tgt[base+i]) * logProb
			// d/dlogit of mean CE: (softmax - target) / n.
			g[base+i] = float32((math.Exp(logProb) - float64(tgt[base+i])) / float64(n))
		}
	}
	return float32(total / float64(n)), grad
}

// MeanSquaredError computes the mean squared difference between predictions
// and targets ([n, 1]) and the gradient with respect to the predictions.
func MeanSquaredError(pred, targets *tensor.Tensor) (float32, *tensor.Tensor) {
	if !pred.Shape().Equal(targets.Shape()) {
		panic(fmt.Sprintf("mse: predictions %v vs targets %v", pred.Shape(), targets.Shape()))
	}
	p := pred.Data()
	tgt := targets.Data()
	n := len(p)

	grad := tensor.New(pred.Shape())
	g := grad.Data()

	var total float64
	for i := range p {
		d := float64(p[i] - tgt[i])
		total += d * d
		g[i] = float32(2 * d / float64(n))
	}
	return float32(total / float64(n)), grad
}

// Regularization returns the L2 penalty over the given kernels and
// accumulates its gradient contribution (2·scale·w) into each parameter.
func Regularization(kernels []*Parameter) float32 {
	var total float64
	for _, p := range kernels {
		w := p.Tensor().Data()
		g := p.Grad().Data()
		for i, v := range w {
			total += float64(v) * float64(v)
			g[i] += 2 * RegularizationScale * v
		}
	}
	return float32(RegularizationScale * total)
}

// Accuracy returns the fraction of rows where the logits' argmax matches
// the targets' argmax.
func Accuracy(logits, targets *tensor.Tensor) float32 {
	shape := logits.Shape()
	n, classes := shape[0], shape[1]
	src := logits.Data()
	tgt := targets.Data()

	correct := 0
	for row := 0; row < n; row++ {
		base := row * classes
		bestL, bestT := 0, 0
		for i := 1; i < classes; i++ {
			if src[base+i] > src[base+bestL] {
				bestL = i
			}
			if tgt[base+i] > tgt[base+bestT] {
				bestT = i
			}
		}
		if bestL == bestT {
			correct++
		}
	}
	return float32(correct) / float32(n)
}
