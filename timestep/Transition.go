package timestep

import "gonum.org/v1/gonum/mat"

// Transition packages together a SARSA tuple of environmental
// interaction
type Transition struct {
	State      mat.Vector
	Action     mat.Vector
	Reward     float64
	Discount   float64
	NextState  mat.Vector
	NextAction mat.Vector
}

// NewTransition packages together two sequential timesteps and the
// actions taken at each into a Transition. The reward and discount of
// the transition are those received upon taking action in step.
func NewTransition(step TimeStep, action mat.Vector, nextStep TimeStep,
	nextAction mat.Vector) Transition {
	return Transition{
		State:      step.Observation,
		Action:     action,
		Reward:     nextStep.Reward,
		Discount:   nextStep.Discount,
		NextState:  nextStep.Observation,
		NextAction: nextAction,
	}
}
