package memory

import (
	"fmt"
	"math/rand"

	"github.com/samuelfneumann/trackrl/utils/intutils"
)

// SelectorType identifies a strategy for choosing which items of a
// replay memory to sample
type SelectorType string

const (
	// Uniform samples items uniformly randomly with replacement
	Uniform SelectorType = "uniform"

	// Fifo samples the oldest items first
	Fifo SelectorType = "fifo"
)

// CreateSelector is a factory method for creating a Selector of the
// given type
func CreateSelector(t SelectorType, batchSize int,
	seed int64) (Selector, error) {
	switch t {
	case Uniform:
		return NewUniformSelector(batchSize, seed), nil
	case Fifo:
		return NewFifoSelector(batchSize), nil
	default:
		return nil, fmt.Errorf("createSelector: no such selector type: %v",
			t)
	}
}

// Selector implements functionality for choosing which items should be
// sampled from a replay memory
type Selector interface {
	// choose selects item indices in [0, n) to sample
	choose(n int) []int

	// BatchSize returns the number of elements that will be selected
	BatchSize() int
}

// uniformSelector is a Selector which selects items from a replay
// memory uniformly randomly
type uniformSelector struct {
	samples int
	rng     *rand.Rand
}

// NewUniformSelector returns a new Selector which selects items
// uniformly randomly from a replay memory
func NewUniformSelector(samples int, seed int64) Selector {
	return &uniformSelector{
		samples: samples,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// BatchSize gets the number of samples in a batch drawn from the memory
func (u *uniformSelector) BatchSize() int {
	return u.samples
}

// choose selects a number of item indices at which to draw data from
// the memory
func (u *uniformSelector) choose(n int) []int {
	selected := make([]int, u.BatchSize())
	for i := range selected {
		selected[i] = u.rng.Intn(n)
	}
	return selected
}

// fifoSelector is a Selector which selects the oldest items of a
// replay memory first
type fifoSelector struct {
	samples int
}

// NewFifoSelector returns a new Selector which draws the oldest items
// from a replay memory
func NewFifoSelector(samples int) Selector {
	return &fifoSelector{samples: samples}
}

// BatchSize gets the number of samples in a batch drawn from the memory
func (f *fifoSelector) BatchSize() int {
	return f.samples
}

// choose selects a number of item indices at which to draw data from
// the memory
func (f *fifoSelector) choose(n int) []int {
	selected := make([]int, intutils.Min(f.BatchSize(), n))
	for i := range selected {
		selected[i] = i
	}
	return selected
}
