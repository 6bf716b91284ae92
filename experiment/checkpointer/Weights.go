package checkpointer

import "github.com/samuelfneumann/trackrl/agent"

// weightsView is a Serializable view over the live weights of an
// agent. Encoding fetches the agent's current weights, so a
// Checkpointer holding the view always saves the newest values.
// Decoding installs the decoded weights back into the agent.
type weightsView struct {
	agent agent.Weighted
}

// Weights returns a Serializable view over the weights of an agent.
// Checkpointing the view saves whatever the agent's weights are at
// checkpoint time, and loading a checkpoint into the view restores
// those weights into the agent.
func Weights(a agent.Weighted) Serializable {
	return weightsView{agent: a}
}

func (w weightsView) GobEncode() ([]byte, error) {
	return w.agent.Weights().GobEncode()
}

func (w weightsView) GobDecode(data []byte) error {
	var weights agent.Weights
	if err := weights.GobDecode(data); err != nil {
		return err
	}
	return w.agent.SetWeights(weights)
}
