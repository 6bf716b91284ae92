package trainer

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/samuelfneumann/trackrl/agent"
	"github.com/samuelfneumann/trackrl/memory"
	ts "github.com/samuelfneumann/trackrl/timestep"
)

// TrainingAgent is an agent that learns from batches of replayed
// transitions. Train performs one training step on a batch and returns
// the scalar metrics of that step, keyed by metric name. Actor returns
// the weights that rollout policies need to act, in the form consumed
// by agent.Weighted.SetWeights.
type TrainingAgent interface {
	Train(batch memory.Batch) (map[string]float64, error)
	Actor() agent.Weights
}

// ActorSetter is implemented by TrainingAgents whose weights can be
// replaced wholesale. Checkpoint restoration requires it.
type ActorSetter interface {
	SetActor(agent.Weights) error
}

// WeightedAgent is an Agent whose parameters can be extracted and
// replaced for broadcasting and checkpointing.
type WeightedAgent interface {
	agent.Agent
	agent.Weighted
}

// learnerAgent adapts a step-based Agent into a TrainingAgent by
// replaying each batch transition through the agent's Learner.
type learnerAgent struct {
	agent WeightedAgent
}

// FromAgent returns a TrainingAgent which trains a on batches by
// replaying each transition through ObserveFirst, Observe, and Step.
// Eligibility traces are cleared between transitions since batch rows
// are sampled independently and carry no temporal relation to one
// another.
//
// When a implements agent.TdErrorer, the returned metrics include the
// mean TD error and mean squared TD error of the batch under the keys
// "td_error" and "critic_loss". The mean batch reward is always
// reported under "batch_reward".
func FromAgent(a WeightedAgent) TrainingAgent {
	a.Train()
	return &learnerAgent{agent: a}
}

// Train replays each transition in batch through the wrapped agent
func (l *learnerAgent) Train(batch memory.Batch) (map[string]float64,
	error) {
	if batch.Size < 1 {
		return nil, fmt.Errorf("train: cannot train on empty batch")
	}

	tdErrorer, hasTdError := l.agent.(agent.TdErrorer)
	var tdErrors []float64

	for i := 0; i < batch.Size; i++ {
		state := mat.NewVecDense(batch.ObsDims,
			batch.States[i*batch.ObsDims:(i+1)*batch.ObsDims])
		action := mat.NewVecDense(batch.ActionDims,
			batch.Actions[i*batch.ActionDims:(i+1)*batch.ActionDims])
		nextState := mat.NewVecDense(batch.ObsDims,
			batch.NextStates[i*batch.ObsDims:(i+1)*batch.ObsDims])
		nextAction := mat.NewVecDense(batch.ActionDims,
			batch.NextActions[i*batch.ActionDims:(i+1)*batch.ActionDims])
		reward := batch.Rewards[i]
		discount := batch.Discounts[i]

		if hasTdError {
			tdErrors = append(tdErrors, tdErrorer.TdError(ts.Transition{
				State:      state,
				Action:     action,
				Reward:     reward,
				Discount:   discount,
				NextState:  nextState,
				NextAction: nextAction,
			}))
		}

		first := ts.New(ts.First, 0, 1, state, 0)
		if err := l.agent.ObserveFirst(first); err != nil {
			return nil, fmt.Errorf("train: %v", err)
		}

		stepType := ts.Mid
		if batch.Dones[i] {
			stepType = ts.Last
		}
		next := ts.New(stepType, reward, discount, nextState, 1)
		if err := l.agent.Observe(action, next); err != nil {
			return nil, fmt.Errorf("train: %v", err)
		}

		if err := l.agent.Step(); err != nil {
			return nil, fmt.Errorf("train: %v", err)
		}
		l.agent.EndEpisode()
	}

	metrics := map[string]float64{
		"batch_reward": stat.Mean(batch.Rewards, nil),
	}
	if hasTdError {
		squared := make([]float64, len(tdErrors))
		for i, δ := range tdErrors {
			squared[i] = δ * δ
		}
		metrics["td_error"] = stat.Mean(tdErrors, nil)
		metrics["critic_loss"] = stat.Mean(squared, nil)
	}
	return metrics, nil
}

// Actor returns the wrapped agent's weights
func (l *learnerAgent) Actor() agent.Weights {
	return l.agent.Weights()
}

// SetActor replaces the wrapped agent's weights
func (l *learnerAgent) SetActor(weights agent.Weights) error {
	return l.agent.SetWeights(weights)
}
