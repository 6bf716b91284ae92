package gaussianac

import (
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/trackrl/agent"
	"github.com/samuelfneumann/trackrl/environment"
	ts "github.com/samuelfneumann/trackrl/timestep"
	"github.com/samuelfneumann/trackrl/utils/matutils"
	"github.com/samuelfneumann/trackrl/utils/matutils/initializers/weights"
)

// LinearGaussian implements the Linear-Gaussian Actor-Critic algorithm
// over n-dimensional continuous actions. The agent learns a linear
// state value function critic and the Gaussian policy actor of this
// package, using eligibility traces for both actor and critic
// gradients.
type LinearGaussian struct {
	*Gaussian

	step     ts.TimeStep
	action   *mat.VecDense
	nextStep ts.TimeStep

	// Weights for linear function approximation. The critic weights
	// are a vector view of the 1 x features matrix exposed through
	// Weights() so that updates write through to the map.
	criticWeightsMat *mat.Dense
	criticWeights    *mat.VecDense

	// Eligibility traces
	meanTrace   *mat.Dense
	stdTrace    *mat.Dense
	criticTrace *mat.VecDense

	actorLR      float64
	criticLR     float64
	decay        float64
	scaleActorLR bool
	features     int
	actionDims   int
}

// NewLinearGaussian returns a new LinearGaussian whose weights are
// initialized with init
func NewLinearGaussian(env environment.Environment, config Config,
	init weights.Initializer, seed uint64) (*LinearGaussian, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("newLinearGaussian: %v", err)
	}

	pol, err := NewGaussian(env, seed)
	if err != nil {
		return nil, fmt.Errorf("newLinearGaussian: %v", err)
	}

	// Store features and actions dimensions
	features := env.ObservationSpec().Shape.Len()
	actionDims := env.ActionSpec().Shape.Len()

	// Initialize the weights for the agent
	init.Initialize(pol.meanWeights)
	init.Initialize(pol.stdWeights)
	criticWeightsMat := mat.NewDense(1, features, nil)
	init.Initialize(criticWeightsMat)
	criticWeights := mat.NewVecDense(
		features,
		criticWeightsMat.RawMatrix().Data,
	)

	return &LinearGaussian{
		Gaussian: pol,

		criticWeightsMat: criticWeightsMat,
		criticWeights:    criticWeights,

		meanTrace:   mat.NewDense(actionDims, features, nil),
		stdTrace:    mat.NewDense(actionDims, features, nil),
		criticTrace: mat.NewVecDense(features, nil),

		actorLR:      config.ActorLearningRate,
		criticLR:     config.CriticLearningRate,
		decay:        config.Decay,
		scaleActorLR: config.ScaleActorLR,
		features:     features,
		actionDims:   actionDims,
	}, nil
}

// TdError computes the TD error of the algorithm at a given transition
func (l *LinearGaussian) TdError(t ts.Transition) float64 {
	stateValue := mat.Dot(l.criticWeights, t.State)
	nextStateValue := mat.Dot(l.criticWeights, t.NextState)

	return t.Reward + t.Discount*nextStateValue - stateValue
}

// Step updates the algorithm's weights
func (l *LinearGaussian) Step() error {
	// If in evaluation mode, do not step
	if l.IsEval() {
		return nil
	}

	state := l.step.Observation
	nextState := l.nextStep.Observation

	// Calculate TD error δ
	r := l.nextStep.Reward
	ℽ := l.nextStep.Discount
	stateValue := mat.Dot(l.criticWeights, state)
	nextStateValue := mat.Dot(l.criticWeights, nextState)
	δ := r + ℽ*nextStateValue - stateValue

	// Update the critic trace
	l.criticTrace.AddScaledVec(state, ℽ*l.decay, l.criticTrace)

	// Update critic weights
	l.criticWeights.AddScaledVec(l.criticWeights, l.criticLR*δ,
		l.criticTrace)

	// Variables needed for gradient computation
	mean := l.Gaussian.Mean(state)
	std := l.Gaussian.Std(state)
	action := l.action
	row, col := l.actionDims, l.features

	// Compute the gradient of the mean
	meanGradScale := mat.NewVecDense(l.actionDims, nil)
	meanGradScale.SubVec(action, mean)
	meanGradDiv := mat.NewVecDense(l.actionDims, nil)
	meanGradDiv.MulElemVec(std, std)
	meanGradScale.DivElemVec(meanGradScale, meanGradDiv)
	meanGrad := mat.NewDense(row, col, nil)
	meanGrad.Outer(1.0, meanGradScale, state)

	// Compute the gradient of the standard deviation
	stdGradScale := mat.NewVecDense(l.actionDims, nil)
	stdGradScale.SubVec(action, mean)
	stdGradScale.MulElemVec(stdGradScale, stdGradScale)
	stdGradDiv := mat.NewVecDense(l.actionDims, nil)
	stdGradDiv.MulElemVec(std, std)
	stdGradScale.DivElemVec(stdGradScale, stdGradDiv)
	stdGradScale.SubVec(stdGradScale, matutils.VecOnes(l.actionDims))
	stdGrad := mat.NewDense(row, col, nil)
	stdGrad.Outer(1.0, stdGradScale, state)

	// Calculate and update the actor traces
	addMeanTrace := mat.NewDense(row, col, nil)
	addMeanTrace.Scale(ℽ*l.decay, l.meanTrace)
	l.meanTrace.Add(meanGrad, addMeanTrace)

	addStdTrace := mat.NewDense(row, col, nil)
	addStdTrace.Scale(ℽ*l.decay, l.stdTrace)
	l.stdTrace.Add(stdGrad, addStdTrace)

	// Scaling the actor step size by the policy variance keeps early
	// updates small while the policy is still wide. The scaling is
	// applied per action dimension.
	meanTrace := l.meanTrace
	stdTrace := l.stdTrace
	if l.scaleActorLR {
		variance := mat.NewVecDense(l.actionDims, nil)
		variance.MulElemVec(std, std)
		scale := mat.NewDiagDense(l.actionDims, variance.RawVector().Data)

		scaledMeanTrace := mat.NewDense(row, col, nil)
		scaledMeanTrace.Mul(scale, l.meanTrace)
		meanTrace = scaledMeanTrace

		scaledStdTrace := mat.NewDense(row, col, nil)
		scaledStdTrace.Mul(scale, l.stdTrace)
		stdTrace = scaledStdTrace
	}

	// Update actor weights
	addMean := mat.NewDense(row, col, nil)
	addMean.Scale(l.actorLR*δ, meanTrace)
	l.meanWeights.Add(l.meanWeights, addMean)

	addStd := mat.NewDense(row, col, nil)
	addStd.Scale(l.actorLR*δ, stdTrace)
	l.stdWeights.Add(l.stdWeights, addStd)

	return nil
}

// Observe records the previously selected action and the timestep
// that it led to
func (l *LinearGaussian) Observe(a mat.Vector, nextStep ts.TimeStep) error {
	l.step = l.nextStep
	if vec, ok := a.(*mat.VecDense); ok {
		l.action = vec
	} else {
		l.action = mat.VecDenseCopyOf(a)
	}
	l.nextStep = nextStep
	return nil
}

// ObserveFirst observes the first timestep in an episode
func (l *LinearGaussian) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		fmt.Fprintf(os.Stderr, "warning: ObserveFirst() called on %v "+
			"timestep", t.StepType)
	}
	l.step = t
	l.nextStep = t
	return nil
}

// EndEpisode adjusts variables after an episode has completed
func (l *LinearGaussian) EndEpisode() {
	l.criticTrace.Zero()
	l.stdTrace.Zero()
	l.meanTrace.Zero()
}

// Weights gets and returns the weights of the agent
func (l *LinearGaussian) Weights() agent.Weights {
	weights := l.Gaussian.Weights()
	weights[CriticWeightsKey] = l.criticWeightsMat
	return weights
}

// SetWeights sets the weight pointers to point to a new set of weights
func (l *LinearGaussian) SetWeights(weights agent.Weights) error {
	if err := l.Gaussian.SetWeights(weights); err != nil {
		return err
	}

	criticWeights, ok := weights[CriticWeightsKey]
	if !ok {
		return fmt.Errorf("setWeights: no weights named \"%v\"",
			CriticWeightsKey)
	}
	if r, c := criticWeights.Dims(); r != 1 || c != l.features {
		return fmt.Errorf("setWeights: critic weights have dimensions "+
			"%v x %v \n\twant(1 x %v)", r, c, l.features)
	}

	l.criticWeightsMat = criticWeights
	l.criticWeights = mat.NewVecDense(
		l.features,
		criticWeights.RawMatrix().Data,
	)
	return nil
}
