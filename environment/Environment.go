// Package environment outlines the interfaces and structs needed to implement
// concrete environments
package environment

import (
	"fmt"
	"time"

	"github.com/samuelfneumann/trackrl/timestep"
	"gonum.org/v1/gonum/mat"
)

// Starter implements a distribution of starting states and samples
// starting states for environments
type Starter interface {
	Start() *mat.VecDense
}

// Ender determines when episodes end. An Ender inspects a TimeStep
// and, if the episode should end at that step, modifies the TimeStep
// so that its StepType field is timestep.Last and its EndType is the
// appropriate ending type.
type Ender interface {
	End(*timestep.TimeStep) bool
}

// Task implements the reward scheme, starting states, and ending
// conditions for taking actions in some environment
type Task interface {
	Starter
	Ender

	// GetReward returns the reward for taking action in state,
	// resulting in nextState
	GetReward(state, action, nextState mat.Vector) float64

	// AtGoal returns whether the argument state is a goal state
	AtGoal(state mat.Matrix) bool

	// Min and Max return the minimum and maximum attainable rewards
	// over all timesteps
	Min() float64
	Max() float64

	RewardSpec() Spec
}

// Environment implements a simulated environment, which includes a
// Task to complete
type Environment interface {
	Task
	fmt.Stringer

	// Reset resets the environment between episodes and returns the
	// first TimeStep of the new episode
	Reset() timestep.TimeStep

	// Step takes one environmental step given an action and returns
	// the next TimeStep and whether it is the last in the episode
	Step(action *mat.VecDense) (timestep.TimeStep, bool, error)

	DiscountSpec() Spec
	ObservationSpec() Spec
	ActionSpec() Spec

	// CurrentTimeStep returns the last TimeStep of the environment
	CurrentTimeStep() timestep.TimeStep
}

// BenchmarkStats summarizes the observation capture times of an
// environment that measures them.
type BenchmarkStats struct {
	Samples int
	Mean    time.Duration
	StdDev  time.Duration
	Min     time.Duration
	Max     time.Duration
}

func (b BenchmarkStats) String() string {
	return fmt.Sprintf("observation capture | samples: %v  |  mean: %v  |  "+
		"std: %v  |  min: %v  |  max: %v", b.Samples, b.Mean, b.StdDev, b.Min,
		b.Max)
}

// Benchmarker is an Environment that times its observation capture
type Benchmarker interface {
	Environment
	Benchmarks() BenchmarkStats
}
