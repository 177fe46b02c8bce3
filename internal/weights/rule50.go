package weights

import (
	"github.com/ganeshkrishnan1/lczero-training/internal/tensor"
)

// NoProgressScale is the raw range of the no-progress counter. Training
// feeds the plane normalized to [0, 1]; the external engine feeds the raw
// count in [0, 99], so the first convolution's weights along that channel
// are shrunk by this factor on export and restored on import. Inference
// stays numerically equivalent without retraining or runtime rescaling.
const NoProgressScale = 99

// CompensateExport rescales the first convolution kernel, already in
// exchange layout, for the engine's unnormalized no-progress input: every
// weight addressing input channel 109 is divided by NoProgressScale.
//
// In the exchange-flat [out, in, kh, kw] array an entry belongs to an input
// channel by decomposing the flat index with the kernel position fastest
// (period kh*kw) and the input channel next, so the rule holds for any
// kernel size.
func CompensateExport(values []float32, exchange tensor.Shape) {
	scaleNoProgress(values, exchange, 1.0/NoProgressScale)
}

// CompensateImport reverses CompensateExport: weights addressing the
// no-progress channel are multiplied by NoProgressScale.
func CompensateImport(values []float32, exchange tensor.Shape) {
	scaleNoProgress(values, exchange, NoProgressScale)
}

func scaleNoProgress(values []float32, exchange tensor.Shape, factor float32) {
	if len(exchange) != 4 {
		invariant("no-progress compensation needs an exchange-shaped conv kernel, got %v", exchange)
	}
	in, kh, kw := exchange[1], exchange[2], exchange[3]
	if in != InputPlanes {
		invariant("no-progress compensation applies to the input convolution only, got %d input channels", in)
	}
	if len(values) != exchange.NumElements() {
		invariant("value count %d does not match exchange shape %v", len(values), exchange)
	}

	area := kh * kw
	for i := range values {
		if (i/area)%in == noProgressPlane {
			values[i] *= factor
		}
	}
}
