// Package timestep implements timesteps of the agent-environment interaction
package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// StepType denotes the type of step that a TimeStep can be, either the
// first environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// EndType denotes the way in which an episode ended. Episodes may end
// by reaching a terminal state or by being cut off at a step limit.
// Algorithms bootstrap differently in each case.
type EndType int

const (
	// Nil denotes an episode that has not yet ended
	Nil EndType = iota

	// TerminalStateReached denotes an episode that ended by reaching
	// a terminal state
	TerminalStateReached

	// Timeout denotes an episode that was cut off at a step limit
	Timeout
)

func (e EndType) String() string {
	switch e {
	case TerminalStateReached:
		return "TerminalStateReached"
	case Timeout:
		return "Timeout"
	default:
		return "Nil"
	}
}

// TimeStep packages together a single timestep in an environment
type TimeStep struct {
	StepType    StepType
	Reward      float64
	Discount    float64
	Observation *mat.VecDense
	Number      int
	endType     EndType
}

func New(t StepType, r, d float64, o *mat.VecDense, n int) TimeStep {
	return TimeStep{t, r, d, o, n, Nil}
}

// First returns whether a TimeStep is the first in an environment
func (t *TimeStep) First() bool {
	return t.StepType == First
}

// Mid returns whether a TimeStep is a middle step in an environment
func (t *TimeStep) Mid() bool {
	return t.StepType == Mid
}

// Last returns whether a TimeStep is the last step in an environment
func (t *TimeStep) Last() bool {
	return t.StepType == Last
}

// SetEnd records the way in which the episode ended. Enders call this
// when marking a TimeStep as the last in its episode.
func (t *TimeStep) SetEnd(e EndType) {
	t.endType = e
}

// EndType returns the way in which the episode ended, or Nil if the
// episode has not yet ended.
func (t *TimeStep) EndType() EndType {
	return t.endType
}

// TerminatedNaturally returns whether the TimeStep ended its episode
// by reaching a terminal state rather than by being cut off.
func (t *TimeStep) TerminatedNaturally() bool {
	return t.endType == TerminalStateReached
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  Reward:  %.2f  |  Discount: %.2f  |  " +
		"Step Number:  %v"

	return fmt.Sprintf(str, t.StepType, t.Reward, t.Discount, t.Number)
}
