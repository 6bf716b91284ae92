package wrappers

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/trackrl/environment"
	"github.com/samuelfneumann/trackrl/timestep"
)

// ActionTail wraps an environment so that observations carry the last
// length actions taken, appended after the wrapped environment's own
// observation features from oldest to newest:
//
//	[inner observation..., a_{t-length+1}, ..., a_{t-1}, a_t]
//
// On reset the tail is filled with zero actions.
//
// Action histories matter when actions take effect with delay: the
// state an agent observes does not yet reflect its recent actions, so
// those actions are made part of the observation instead.
//
// ActionTail implements the environment.Environment interface.
type ActionTail struct {
	environment.Environment
	length     int
	actionDims int

	// tail holds the last length actions, oldest first
	tail     []float64
	lastStep timestep.TimeStep
}

// NewActionTail wraps env so that its observations carry the last
// length actions. The wrapped environment is reset, and the first
// augmented timestep is returned.
func NewActionTail(env environment.Environment, length int) (*ActionTail,
	timestep.TimeStep, error) {
	if length < 1 {
		return nil, timestep.TimeStep{}, fmt.Errorf("newActionTail: tail "+
			"length must be positive \n\twant(>= 1) \n\thave(%v)", length)
	}

	actionDims := env.ActionSpec().Shape.Len()
	a := &ActionTail{
		Environment: env,
		length:      length,
		actionDims:  actionDims,
		tail:        make([]float64, length*actionDims),
	}

	return a, a.Reset(), nil
}

// Tail returns the number of actions in each observation's tail and
// the dimensionality of each
func (a *ActionTail) Tail() (length, dims int) {
	return a.length, a.actionDims
}

// Reset resets the wrapped environment and zeroes the action tail
func (a *ActionTail) Reset() timestep.TimeStep {
	step := a.Environment.Reset()

	for i := range a.tail {
		a.tail[i] = 0
	}

	step.Observation = a.augmentedObs(step.Observation)
	a.lastStep = step
	return step
}

// Step takes one environmental step given action act and returns the
// next augmented timestep and whether it is the last in the episode
func (a *ActionTail) Step(act *mat.VecDense) (timestep.TimeStep, bool,
	error) {
	if act.Len() != a.actionDims {
		return timestep.TimeStep{}, true, fmt.Errorf("step: actions should "+
			"be %v-dimensional \n\thave(%v)", a.actionDims, act.Len())
	}

	step, done, err := a.Environment.Step(act)
	if err != nil {
		return step, done, err
	}

	// Shift the tail left one action and append the new action
	copy(a.tail, a.tail[a.actionDims:])
	for i := 0; i < a.actionDims; i++ {
		a.tail[(a.length-1)*a.actionDims+i] = act.AtVec(i)
	}

	step.Observation = a.augmentedObs(step.Observation)
	a.lastStep = step
	return step, done, nil
}

// CurrentTimeStep returns the last augmented TimeStep of the
// environment
func (a *ActionTail) CurrentTimeStep() timestep.TimeStep {
	return a.lastStep
}

// augmentedObs appends the action tail to an observation
func (a *ActionTail) augmentedObs(obs *mat.VecDense) *mat.VecDense {
	augmented := make([]float64, 0, obs.Len()+len(a.tail))
	for i := 0; i < obs.Len(); i++ {
		augmented = append(augmented, obs.AtVec(i))
	}
	augmented = append(augmented, a.tail...)
	return mat.NewVecDense(len(augmented), augmented)
}

// ObservationSpec returns the observation specification of the
// environment. The action tail's entries are bounded by the action
// specification's bounds.
func (a *ActionTail) ObservationSpec() environment.Spec {
	inner := a.Environment.ObservationSpec()
	action := a.Environment.ActionSpec()

	n := inner.Shape.Len() + a.length*a.actionDims
	lowerBound := make([]float64, 0, n)
	upperBound := make([]float64, 0, n)

	for i := 0; i < inner.Shape.Len(); i++ {
		lowerBound = append(lowerBound, inner.LowerBound.AtVec(i))
		upperBound = append(upperBound, inner.UpperBound.AtVec(i))
	}
	for i := 0; i < a.length; i++ {
		for j := 0; j < a.actionDims; j++ {
			lowerBound = append(lowerBound, action.LowerBound.AtVec(j))
			upperBound = append(upperBound, action.UpperBound.AtVec(j))
		}
	}

	return environment.NewSpec(mat.NewVecDense(n, nil),
		environment.Observation, mat.NewVecDense(n, lowerBound),
		mat.NewVecDense(n, upperBound), inner.Cardinality)
}

// String returns a string representation of the ActionTail environment
func (a *ActionTail) String() string {
	return fmt.Sprintf("Action Tail (length %v): %v", a.length,
		a.Environment)
}
