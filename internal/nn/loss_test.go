package nn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ganeshkrishnan1/lczero-training/internal/tensor"
)

func TestSoftmaxCrossEntropyUniformLogits(t *testing.T) {
	logits := tensor.Zeros(tensor.Shape{1, 4})
	targets := tensor.FromSlice(tensor.Shape{1, 4}, []float32{1, 0, 0, 0})

	loss, grad := SoftmaxCrossEntropy(logits, targets)

	assert.InDelta(t, math.Log(4), loss, 1e-6)
	// softmax = 0.25 everywhere; grad = softmax - target.
	assert.InDelta(t, 0.25-1, grad.Data()[0], 1e-6)
	assert.InDelta(t, 0.25, grad.Data()[1], 1e-6)
}

func TestSoftmaxCrossEntropyConfidentCorrect(t *testing.T) {
	logits := tensor.FromSlice(tensor.Shape{1, 3}, []float32{50, 0, 0})
	targets := tensor.FromSlice(tensor.Shape{1, 3}, []float32{1, 0, 0})

	loss, _ := SoftmaxCrossEntropy(logits, targets)
	assert.Less(t, loss, float32(1e-6))
}

func TestSoftmaxCrossEntropyGradientFiniteDifference(t *testing.T) {
	logits := tensor.FromSlice(tensor.Shape{2, 3}, []float32{0.5, -1, 2, 0, 0.25, -0.75})
	targets := tensor.FromSlice(tensor.Shape{2, 3}, []float32{0, 1, 0, 0.5, 0.5, 0})

	_, grad := SoftmaxCrossEntropy(logits, targets)

	const eps = 1e-3
	for idx := range logits.Data() {
		orig := logits.Data()[idx]
		logits.Data()[idx] = orig + eps
		plus, _ := SoftmaxCrossEntropy(logits, targets)
		logits.Data()[idx] = orig - eps
		minus, _ := SoftmaxCrossEntropy(logits, targets)
		logits.Data()[idx] = orig

		fd := float64(plus-minus) / (2 * eps)
		require.InDelta(t, fd, float64(grad.Data()[idx]), 1e-3, "logit %d", idx)
	}
}

func TestMeanSquaredError(t *testing.T) {
	pred := tensor.FromSlice(tensor.Shape{2, 1}, []float32{1, -1})
	targets := tensor.FromSlice(tensor.Shape{2, 1}, []float32{0, 1})

	loss, grad := MeanSquaredError(pred, targets)
	assert.InDelta(t, (1.0+4.0)/2, loss, 1e-6)
	assert.InDelta(t, 2.0*1/2, grad.Data()[0], 1e-6)
	assert.InDelta(t, 2.0*-2/2, grad.Data()[1], 1e-6)
}

func TestRegularization(t *testing.T) {
	p := NewParameter("w", tensor.FromSlice(tensor.Shape{2}, []float32{3, -4}))

	penalty := Regularization([]*Parameter{p})
	assert.InDelta(t, RegularizationScale*25, penalty, 1e-8)
	assert.InDelta(t, 2*RegularizationScale*3, p.Grad().Data()[0], 1e-8)
	assert.InDelta(t, 2*RegularizationScale*-4, p.Grad().Data()[1], 1e-8)
}

func TestAccuracy(t *testing.T) {
	logits := tensor.FromSlice(tensor.Shape{2, 3}, []float32{
		1, 5, 2, // argmax 1
		3, 0, 1, // argmax 0
	})
	targets := tensor.FromSlice(tensor.Shape{2, 3}, []float32{
		0, 1, 0, // match
		0, 0, 1, // miss
	})
	assert.Equal(t, float32(0.5), Accuracy(logits, targets))
}
