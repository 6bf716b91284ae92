package gaussianac

import (
	"fmt"

	"github.com/samuelfneumann/trackrl/agent"
	"github.com/samuelfneumann/trackrl/environment"
	"github.com/samuelfneumann/trackrl/utils/matutils/initializers/weights"
)

// Config represents a configuration for a LinearGaussian agent
type Config struct {
	ActorLearningRate  float64
	CriticLearningRate float64
	Decay              float64
	ScaleActorLR       bool
}

// CreateAgent creates the agent from the Config. Agent weights are
// always initialized to zero using this function. To initialize from
// some other distribution, use the agent's constructor manually.
func (c Config) CreateAgent(env environment.Environment,
	seed uint64) (agent.Agent, error) {

	// Create the zero weight initializer
	rand := weights.NewZeroUV() // Zero RNG
	init := weights.NewLinearUV(rand)

	return NewLinearGaussian(env, c, init, seed)
}

// Validate ensures that the Config is valid
func (c Config) Validate() error {
	if c.ActorLearningRate < 0 {
		return fmt.Errorf("actor learning rate cannot be negative "+
			"\n\thave(%v)", c.ActorLearningRate)
	}
	if c.CriticLearningRate < 0 {
		return fmt.Errorf("critic learning rate cannot be negative "+
			"\n\thave(%v)", c.CriticLearningRate)
	}
	if c.Decay < 0 || c.Decay > 1 {
		return fmt.Errorf("trace decay must be in [0, 1] \n\thave(%v)",
			c.Decay)
	}
	return nil
}
