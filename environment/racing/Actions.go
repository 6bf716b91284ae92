package racing

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/trackrl/environment"
	ts "github.com/samuelfneumann/trackrl/timestep"
	"github.com/samuelfneumann/trackrl/utils/floatutils"
)

// Continuous exposes a track racing environment with continuous
// actions. Actions are 2-dimensional vectors [steer, throttle], each
// dimension bounded by [MinContinuousAction, MaxContinuousAction].
// Positive steer turns the car left, positive throttle drives it
// forward, and negative throttle brakes and reverses. Actions outside
// the legal range are clipped.
//
// Continuous implements the environment.Environment interface.
type Continuous struct {
	racer
}

// ActionSpec returns the action specification of the environment
func (c *Continuous) ActionSpec() environment.Spec {
	shape := mat.NewVecDense(ActionDims, nil)
	lowerBound := mat.NewVecDense(ActionDims,
		[]float64{MinContinuousAction, MinContinuousAction})
	upperBound := mat.NewVecDense(ActionDims,
		[]float64{MaxContinuousAction, MaxContinuousAction})

	return environment.NewSpec(shape, environment.Action, lowerBound,
		upperBound, environment.Continuous)
}

// Step takes one environmental step given action a and returns the
// next timestep and whether it is the last in the episode
func (c *Continuous) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	if a.Len() != ActionDims {
		return ts.TimeStep{}, true, fmt.Errorf("step: actions should be "+
			"%v-dimensional \n\thave(%v)", ActionDims, a.Len())
	}

	steer := floatutils.Clip(a.AtVec(0), MinContinuousAction,
		MaxContinuousAction)
	throttle := floatutils.Clip(a.AtVec(1), MinContinuousAction,
		MaxContinuousAction)

	return c.step(a, steer, throttle)
}

// Discrete exposes a track racing environment with discrete actions.
// Actions are single integers in [MinDiscreteAction,
// MaxDiscreteAction] enumerating the 9 combinations of arrow presses:
//
//	Action	Steer	Throttle
//	  0		left	reverse
//	  1		none	reverse
//	  2		right	reverse
//	  3		left	coast
//	  4		none	coast
//	  5		right	coast
//	  6		left	forward
//	  7		none	forward
//	  8		right	forward
//
// Actions outside the legal range are errors.
//
// Discrete implements the environment.Environment interface.
type Discrete struct {
	racer
}

// ActionSpec returns the action specification of the environment
func (d *Discrete) ActionSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	lowerBound := mat.NewVecDense(1, []float64{float64(MinDiscreteAction)})
	upperBound := mat.NewVecDense(1, []float64{float64(MaxDiscreteAction)})

	return environment.NewSpec(shape, environment.Action, lowerBound,
		upperBound, environment.Discrete)
}

// Step takes one environmental step given action a and returns the
// next timestep and whether it is the last in the episode
func (d *Discrete) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	if a.Len() != 1 {
		return ts.TimeStep{}, true, fmt.Errorf("step: discrete actions "+
			"should be 1-dimensional \n\thave(%v)", a.Len())
	}

	action := int(a.AtVec(0))
	if action < MinDiscreteAction || action > MaxDiscreteAction {
		return ts.TimeStep{}, true, fmt.Errorf("step: illegal action %v "+
			"∉ [%v, %v]", action, MinDiscreteAction, MaxDiscreteAction)
	}

	// Left-to-right within each row, reverse-coast-forward across rows
	steer := 1 - float64(action%3)
	throttle := float64(action/3) - 1

	return d.step(a, steer, throttle)
}
