// Package data defines the minibatch boundary between the input pipeline
// and the training loop. The real self-play chunk pipeline lives outside
// this repository; the trainer only depends on the Source interface.
package data

import (
	"fmt"
	"math/rand"

	"github.com/ganeshkrishnan1/lczero-training/internal/tensor"
	"github.com/ganeshkrishnan1/lczero-training/internal/weights"
)

// Batch is one training minibatch: stacked input planes, the policy target
// distribution and the value target.
type Batch struct {
	Planes *tensor.Tensor // [n, 112, 8, 8]
	Policy *tensor.Tensor // [n, 1858]
	Value  *tensor.Tensor // [n, 1]
}

// Source supplies minibatches to the training loop.
type Source interface {
	Next(batchSize int) (*Batch, error)
}

// Sample is one stored position.
type Sample struct {
	Planes []float32 // 112*64, the no-progress plane normalized to [0, 1]
	Policy []float32 // 1858, a distribution
	Value  float32   // [-1, 1]
}

// Dataset is an in-memory Source that cycles through its samples in a
// shuffled order, reshuffling after each pass.
type Dataset struct {
	samples []Sample
	order   []int
	pos     int
	rng     *rand.Rand
}

// NewDataset builds a Dataset over the given samples.
func NewDataset(samples []Sample, rng *rand.Rand) (*Dataset, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("dataset: no samples")
	}
	planeLen := weights.InputPlanes * weights.BoardSize * weights.BoardSize
	for i, s := range samples {
		if len(s.Planes) != planeLen || len(s.Policy) != weights.PolicyOutputs {
			return nil, fmt.Errorf("dataset: sample %d has planes=%d policy=%d, expected %d and %d",
				i, len(s.Planes), len(s.Policy), planeLen, weights.PolicyOutputs)
		}
	}
	d := &Dataset{samples: samples, rng: rng}
	d.reshuffle()
	return d, nil
}

// NumSamples returns the number of stored positions.
func (d *Dataset) NumSamples() int {
	return len(d.samples)
}

// Next assembles the next minibatch, cycling and reshuffling as needed.
func (d *Dataset) Next(batchSize int) (*Batch, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("dataset: batch size must be positive, got %d", batchSize)
	}

	b := &Batch{
		Planes: tensor.New(tensor.Shape{
			batchSize, weights.InputPlanes, weights.BoardSize, weights.BoardSize,
		}),
		Policy: tensor.New(tensor.Shape{batchSize, weights.PolicyOutputs}),
		Value:  tensor.New(tensor.Shape{batchSize, 1}),
	}

	planeLen := weights.InputPlanes * weights.BoardSize * weights.BoardSize
	for i := 0; i < batchSize; i++ {
		if d.pos == len(d.order) {
			d.reshuffle()
		}
		s := d.samples[d.order[d.pos]]
		d.pos++

		copy(b.Planes.Data()[i*planeLen:(i+1)*planeLen], s.Planes)
		copy(b.Policy.Data()[i*weights.PolicyOutputs:(i+1)*weights.PolicyOutputs], s.Policy)
		b.Value.Data()[i] = s.Value
	}
	return b, nil
}

func (d *Dataset) reshuffle() {
	if d.order == nil {
		d.order = make([]int, len(d.samples))
		for i := range d.order {
			d.order[i] = i
		}
	}
	d.rng.Shuffle(len(d.order), func(i, j int) {
		d.order[i], d.order[j] = d.order[j], d.order[i]
	})
	d.pos = 0
}

// Synthetic generates n random positions: random plane activations, a
// one-hot policy and a ±1 value. Useful for smoke training and tests.
func Synthetic(n int, rng *rand.Rand) []Sample {
	planeLen := weights.InputPlanes * weights.BoardSize * weights.BoardSize
	samples := make([]Sample, n)
	for i := range samples {
		planes := make([]float32, planeLen)
		for j := range planes {
			if rng.Float32() < 0.1 {
				planes[j] = 1
			}
		}
		policy := make([]float32, weights.PolicyOutputs)
		policy[rng.Intn(weights.PolicyOutputs)] = 1

		value := float32(1)
		if rng.Float32() < 0.5 {
			value = -1
		}
		samples[i] = Sample{Planes: planes, Policy: policy, Value: value}
	}
	return samples
}
