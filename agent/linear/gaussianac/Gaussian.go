// Package gaussianac implements the linear Gaussian actor-critic
// algorithm:
//
// https://hal.inria.fr/hal-00764281/PDF/DegrisACC2012.pdf
//
// The algorithm uses linear function approximation to learn both a
// linear state value function critic and a Gaussian policy actor. The
// policy may select n-dimensional actions, and both actor and critic
// gradients use eligibility traces.
package gaussianac

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/samuelfneumann/trackrl/agent"
	"github.com/samuelfneumann/trackrl/environment"
	"github.com/samuelfneumann/trackrl/timestep"
	"github.com/samuelfneumann/trackrl/utils/floatutils"
	"github.com/samuelfneumann/trackrl/utils/matutils"
)

// StdOffset ensures the policy standard deviation stays positive
const StdOffset float64 = 1e-3

const (
	// Keys for the weights map of the algorithm
	MeanWeightsKey   string = "mean"
	StdWeightsKey    string = "standard deviation"
	CriticWeightsKey string = "critic"
)

// Gaussian implements a multi-dimensional linear Gaussian policy.
// The policy uses linear function approximation to compute the mean
// and standard deviation of the policy. Actions are clipped to the
// action bounds of the environment, and in evaluation mode the policy
// deterministically returns its mean.
type Gaussian struct {
	meanWeights *mat.Dense
	stdWeights  *mat.Dense
	actionDims  int
	lower       []float64
	upper       []float64
	source      rand.Source
	eval        bool
}

// NewGaussian creates a new Gaussian policy acting in the action space
// of env
func NewGaussian(env environment.Environment, seed uint64) (*Gaussian,
	error) {
	actionSpec := env.ActionSpec()
	if actionSpec.Cardinality != environment.Continuous {
		return nil, fmt.Errorf("newGaussian: actions must be continuous")
	}

	// Calculate the dimension of actions and the number of features
	actionDims := actionSpec.Shape.Len()
	features := env.ObservationSpec().Shape.Len()

	lower := make([]float64, actionDims)
	upper := make([]float64, actionDims)
	for i := 0; i < actionDims; i++ {
		lower[i] = actionSpec.LowerBound.AtVec(i)
		upper[i] = actionSpec.UpperBound.AtVec(i)
	}

	return &Gaussian{
		meanWeights: mat.NewDense(actionDims, features, nil),
		stdWeights:  mat.NewDense(actionDims, features, nil),
		actionDims:  actionDims,
		lower:       lower,
		upper:       upper,
		source:      rand.NewSource(seed),
	}, nil
}

// Std gets the standard deviation of the policy given some state
// observation obs
func (g *Gaussian) Std(obs mat.Vector) *mat.VecDense {
	stdVec := mat.NewVecDense(g.actionDims, nil)
	stdVec.MulVec(g.stdWeights, obs)
	for i := 0; i < stdVec.Len(); i++ {
		std := math.Exp(stdVec.AtVec(i))
		stdVec.SetVec(i, std+StdOffset)
	}
	return stdVec
}

// Mean gets the mean of the policy given some state observation obs
func (g *Gaussian) Mean(obs mat.Vector) *mat.VecDense {
	mean := mat.NewVecDense(g.actionDims, nil)
	mean.MulVec(g.meanWeights, obs)
	return mean
}

// SelectAction selects an action from the policy for a given timestep.
// In evaluation mode the mean action is returned; otherwise the action
// is sampled from the policy. In both cases the action is clipped to
// the action bounds.
func (g *Gaussian) SelectAction(t timestep.TimeStep) (mat.Vector, error) {
	obs := t.Observation
	mean := g.Mean(obs)

	if g.eval {
		return g.clip(mean), nil
	}

	stdVec := g.Std(obs)
	std := mat.NewDiagDense(stdVec.Len(), stdVec.RawVector().Data)
	dist, ok := distmv.NewNormal(mean.RawVector().Data, std, g.source)
	if !ok {
		return nil, fmt.Errorf("selectAction: non-positive-definite "+
			"covariance %v", matutils.Format(std))
	}

	action := mat.NewVecDense(g.actionDims, dist.Rand(nil))
	return g.clip(action), nil
}

// clip clips an action in place to the action bounds
func (g *Gaussian) clip(action *mat.VecDense) *mat.VecDense {
	for i := 0; i < action.Len(); i++ {
		action.SetVec(i, floatutils.Clip(action.AtVec(i), g.lower[i],
			g.upper[i]))
	}
	return action
}

// Eval sets the policy to evaluation mode
func (g *Gaussian) Eval() { g.eval = true }

// Train sets the policy to training mode
func (g *Gaussian) Train() { g.eval = false }

// IsEval returns whether the policy is in evaluation mode
func (g *Gaussian) IsEval() bool { return g.eval }

// Weights gets and returns the weights of the policy
func (g *Gaussian) Weights() agent.Weights {
	weights := make(agent.Weights)

	weights[MeanWeightsKey] = g.meanWeights
	weights[StdWeightsKey] = g.stdWeights

	return weights
}

// SetWeights sets the weight pointers to point to a new set of weights.
func (g *Gaussian) SetWeights(weights agent.Weights) error {
	meanWeights, ok := weights[MeanWeightsKey]
	if !ok {
		return fmt.Errorf("setWeights: no weights named \"%v\"",
			MeanWeightsKey)
	}
	g.meanWeights = meanWeights

	stdWeights, ok := weights[StdWeightsKey]
	if !ok {
		return fmt.Errorf("setWeights: no weights named \"%v\"",
			StdWeightsKey)
	}
	g.stdWeights = stdWeights

	return nil
}
