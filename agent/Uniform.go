package agent

import (
	"fmt"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/samuelfneumann/trackrl/environment"
	"github.com/samuelfneumann/trackrl/timestep"
)

// Uniform is an agent that selects actions uniformly randomly from the
// action space of an environment, ignoring every observation. It
// learns nothing. Uniform drives environment benchmarks and cold-start
// sample collection, where actions must be legal but need not be good.
type Uniform struct {
	actionDims int
	lower      []float64
	upper      []float64

	// Continuous action spaces sample per-dimension uniform
	// distributions; discrete action spaces draw integers in bounds
	continuous bool
	samplers   []distuv.Uniform
	rng        *rand.Rand

	eval bool
}

// NewUniform returns a new Uniform agent acting in the action space
// described by env
func NewUniform(env environment.Environment, seed uint64) (*Uniform, error) {
	actionSpec := env.ActionSpec()
	actionDims := actionSpec.Shape.Len()
	if actionDims < 1 {
		return nil, fmt.Errorf("newUniform: action spec has no dimensions")
	}

	lower := make([]float64, actionDims)
	upper := make([]float64, actionDims)
	for i := 0; i < actionDims; i++ {
		lower[i] = actionSpec.LowerBound.AtVec(i)
		upper[i] = actionSpec.UpperBound.AtVec(i)
		if lower[i] > upper[i] {
			return nil, fmt.Errorf("newUniform: lower bound exceeds "+
				"upper bound at dimension %v \n\twant(<= %v) \n\thave(%v)",
				i, upper[i], lower[i])
		}
	}

	u := &Uniform{
		actionDims: actionDims,
		lower:      lower,
		upper:      upper,
		continuous: actionSpec.Cardinality == environment.Continuous,
	}

	src := rand.NewSource(seed)
	if u.continuous {
		u.samplers = make([]distuv.Uniform, actionDims)
		for i := range u.samplers {
			u.samplers[i] = distuv.Uniform{
				Min: lower[i],
				Max: upper[i],
				Src: src,
			}
		}
	} else {
		u.rng = rand.New(src)
	}
	return u, nil
}

// SelectAction returns a uniformly random legal action
func (u *Uniform) SelectAction(t timestep.TimeStep) (mat.Vector, error) {
	action := mat.NewVecDense(u.actionDims, nil)
	for i := 0; i < u.actionDims; i++ {
		if u.continuous {
			action.SetVec(i, u.samplers[i].Rand())
		} else {
			n := int(u.upper[i]-u.lower[i]) + 1
			action.SetVec(i, u.lower[i]+float64(u.rng.Intn(n)))
		}
	}
	return action, nil
}

// Eval sets the agent to evaluation mode. A Uniform agent acts the
// same in both modes.
func (u *Uniform) Eval() { u.eval = true }

// Train sets the agent to training mode
func (u *Uniform) Train() { u.eval = false }

// IsEval returns whether the agent is in evaluation mode
func (u *Uniform) IsEval() bool { return u.eval }

// Step is a no-op
func (u *Uniform) Step() error { return nil }

// Observe is a no-op
func (u *Uniform) Observe(_ mat.Vector, _ timestep.TimeStep) error {
	return nil
}

// ObserveFirst is a no-op
func (u *Uniform) ObserveFirst(_ timestep.TimeStep) error { return nil }

// EndEpisode is a no-op
func (u *Uniform) EndEpisode() {}

// Weights returns an empty weight map: a Uniform agent has no
// parameters
func (u *Uniform) Weights() Weights { return Weights{} }

// SetWeights is a no-op so that a Uniform agent can stand in wherever
// a Weighted policy is required
func (u *Uniform) SetWeights(Weights) error { return nil }
