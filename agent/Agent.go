// Package agent defines an agent interface
package agent

import (
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/trackrl/timestep"
)

// Agent determines the implementation details of an agent or algorithm
//
// An Agent is composed of a Learner, which learns weights, and a Policy
// which chooses actions in each state. The Policy chooses which actions
// are taken, and the Learner uses these actions to update the Policy.
type Agent interface {
	Learner
	Policy
}

// Learner implements a learning algorithm that defines how weights are
// updated.
type Learner interface {
	// Step performs a single update to the learner
	Step() error

	// Observe records that an action lead to some timestep
	Observe(action mat.Vector, nextObs timestep.TimeStep) error

	// ObserveFirst records the first timestep in an episode
	ObserveFirst(timestep.TimeStep) error

	// EndEpisode performs cleanup at the end of an episode
	EndEpisode()
}

// TdErrorer is a Learner that can return the TdError of some transition
type TdErrorer interface {
	Learner

	// TdError returns the TD error on a transition
	TdError(t timestep.Transition) float64
}

// Policy represents a policy that an agent can have.
//
// Policies determine how agents select actions. For a given agent, the
// Policy and Learner should have pointers to the same weights so that
// any changes the learner makes to the weights are reflected in the
// actions the Policy chooses
type Policy interface {
	// SelectAction returns an action at the given timestep
	SelectAction(t timestep.TimeStep) (mat.Vector, error)

	Eval()        // Set policy to evaluation mode
	Train()       // Set policy to training mode
	IsEval() bool // Indicates if in evaluation mode
}

// Weighted is satisfied by agents and policies whose parameters can be
// extracted and replaced wholesale. Weight broadcasts move Weights
// from a trainer into the rollout workers' policies, so anything
// driven by broadcast weights must be Weighted.
type Weighted interface {
	// Weights returns the parameters of the agent. The returned map
	// shares storage with the agent, so learning steps write through
	// to it.
	Weights() Weights

	// SetWeights replaces the parameters of the agent with the
	// argument weights. The replacement installs the argument
	// pointers wholesale rather than copying data.
	SetWeights(Weights) error
}
