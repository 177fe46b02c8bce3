package optim

import (
	"fmt"
	"sort"
)

// Schedule is a piecewise-constant learning rate over training steps:
// rate i applies while the step count is below boundary i, and the last
// rate applies from the final boundary onward.
type Schedule struct {
	rates      []float32
	boundaries []int
}

// NewSchedule builds a schedule from len(rates) rates and len(rates)-1
// ascending step boundaries.
func NewSchedule(rates []float32, boundaries []int) (*Schedule, error) {
	if len(rates) == 0 {
		return nil, fmt.Errorf("schedule: at least one learning rate required")
	}
	if len(boundaries) != len(rates)-1 {
		return nil, fmt.Errorf("schedule: %d rates need %d boundaries, got %d",
			len(rates), len(rates)-1, len(boundaries))
	}
	if !sort.IntsAreSorted(boundaries) {
		return nil, fmt.Errorf("schedule: boundaries must be ascending, got %v", boundaries)
	}
	for i, r := range rates {
		if r <= 0 {
			return nil, fmt.Errorf("schedule: learning rate %d must be positive, got %g", i, r)
		}
	}
	return &Schedule{rates: rates, boundaries: boundaries}, nil
}

// At returns the learning rate for the given step. A step equal to a
// boundary already uses the next rate.
func (s *Schedule) At(step int) float32 {
	idx := sort.SearchInts(s.boundaries, step+1)
	return s.rates[idx]
}
