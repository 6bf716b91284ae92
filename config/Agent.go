package config

import (
	"fmt"

	"github.com/samuelfneumann/trackrl/agent"
	"github.com/samuelfneumann/trackrl/agent/linear/gaussianac"
	"github.com/samuelfneumann/trackrl/environment"
)

// LinearGaussianAgent is the linear Gaussian actor-critic, the only
// agent currently built in
const LinearGaussianAgent = "linear-gaussian"

// AgentConfig selects and parameterizes the learning agent
type AgentConfig struct {
	// Type selects the agent: "linear-gaussian"
	Type string `yaml:"type"`

	ActorLR  float64 `yaml:"actor_lr"`
	CriticLR float64 `yaml:"critic_lr"`

	// Decay is the eligibility trace decay rate
	Decay float64 `yaml:"decay"`

	// ScaleActorLR scales the actor's learning rate by the policy
	// variance, keeping early updates small while the policy is wide
	ScaleActorLR bool `yaml:"scale_actor_lr"`
}

func defaultAgent() AgentConfig {
	return AgentConfig{
		Type:         LinearGaussianAgent,
		ActorLR:      0.01,
		CriticLR:     0.1,
		Decay:        0.9,
		ScaleActorLR: true,
	}
}

// Validate returns an error if the AgentConfig names an unknown agent
// or carries illegal hyperparameters
func (c AgentConfig) Validate() error {
	switch c.Type {
	case LinearGaussianAgent:
		return c.gaussian().Validate()
	}
	return fmt.Errorf("no such agent: %v", c.Type)
}

// Create builds the configured agent acting on env
func (c AgentConfig) Create(env environment.Environment,
	seed uint64) (agent.Agent, error) {
	switch c.Type {
	case LinearGaussianAgent:
		a, err := c.gaussian().CreateAgent(env, seed)
		if err != nil {
			return nil, fmt.Errorf("create: %v", err)
		}
		return a, nil
	}
	return nil, fmt.Errorf("create: no such agent: %v", c.Type)
}

func (c AgentConfig) gaussian() gaussianac.Config {
	return gaussianac.Config{
		ActorLearningRate:  c.ActorLR,
		CriticLearningRate: c.CriticLR,
		Decay:              c.Decay,
		ScaleActorLR:       c.ScaleActorLR,
	}
}
