package trainer

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/trackrl/agent"
	"github.com/samuelfneumann/trackrl/memory"
	ts "github.com/samuelfneumann/trackrl/timestep"
)

// recordingLearner implements WeightedAgent and records the sequence
// of learner calls made against it
type recordingLearner struct {
	firsts   []ts.TimeStep
	actions  []mat.Vector
	nexts    []ts.TimeStep
	steps    int
	episodes int
	evalMode bool
	weights  agent.Weights
}

func newRecordingLearner() *recordingLearner {
	return &recordingLearner{
		weights: agent.Weights{
			"mean": mat.NewDense(1, 2, []float64{1, 2}),
		},
	}
}

func (r *recordingLearner) Step() error {
	r.steps++
	return nil
}

func (r *recordingLearner) Observe(action mat.Vector,
	next ts.TimeStep) error {
	r.actions = append(r.actions, action)
	r.nexts = append(r.nexts, next)
	return nil
}

func (r *recordingLearner) ObserveFirst(t ts.TimeStep) error {
	r.firsts = append(r.firsts, t)
	return nil
}

func (r *recordingLearner) EndEpisode() {
	r.episodes++
}

func (r *recordingLearner) SelectAction(ts.TimeStep) (mat.Vector, error) {
	return mat.NewVecDense(1, []float64{0}), nil
}

func (r *recordingLearner) Eval() { r.evalMode = true }

func (r *recordingLearner) Train() { r.evalMode = false }

func (r *recordingLearner) IsEval() bool { return r.evalMode }

func (r *recordingLearner) Weights() agent.Weights { return r.weights }

func (r *recordingLearner) SetWeights(weights agent.Weights) error {
	r.weights = weights
	return nil
}

// tdLearner is a recordingLearner with a fixed TD error
type tdLearner struct {
	*recordingLearner
	δ float64
}

func (l *tdLearner) TdError(ts.Transition) float64 { return l.δ }

func testBatch() memory.Batch {
	return memory.Batch{
		Size:        2,
		ObsDims:     2,
		ActionDims:  1,
		States:      []float64{1, 2, 3, 4},
		Actions:     []float64{10, 20},
		Rewards:     []float64{1, -1},
		Discounts:   []float64{0.9, 0},
		NextStates:  []float64{5, 6, 7, 8},
		NextActions: []float64{30, 40},
		Dones:       []bool{false, true},
	}
}

func TestFromAgentReplaysBatch(t *testing.T) {
	learner := newRecordingLearner()
	learner.Eval()

	ta := FromAgent(learner)
	if learner.IsEval() {
		t.Fatal("adapter left the agent in evaluation mode")
	}

	metrics, err := ta.Train(testBatch())
	if err != nil {
		t.Fatalf("could not train: %v", err)
	}

	if learner.steps != 2 || learner.episodes != 2 {
		t.Errorf("wrong learner call counts \n\twant(2 steps, 2 "+
			"episode ends) \n\thave(%v, %v)", learner.steps,
			learner.episodes)
	}

	// Each transition starts a fresh synthetic episode
	first := learner.firsts[0]
	if !first.First() || first.Discount != 1 || first.Reward != 0 {
		t.Errorf("wrong first timestep: %v", first)
	}
	wantState := mat.NewVecDense(2, []float64{1, 2})
	if !mat.Equal(first.Observation, wantState) {
		t.Errorf("wrong first state \n\twant(%v) \n\thave(%v)",
			mat.Formatted(wantState), mat.Formatted(first.Observation))
	}

	wantAction := mat.NewVecDense(1, []float64{10})
	if !mat.Equal(learner.actions[0], wantAction) {
		t.Errorf("wrong replayed action \n\twant(%v) \n\thave(%v)",
			mat.Formatted(wantAction), mat.Formatted(learner.actions[0]))
	}

	next := learner.nexts[0]
	if !next.Mid() || next.Reward != 1 || next.Discount != 0.9 {
		t.Errorf("wrong next timestep: %v", next)
	}
	wantNext := mat.NewVecDense(2, []float64{5, 6})
	if !mat.Equal(next.Observation, wantNext) {
		t.Errorf("wrong next state \n\twant(%v) \n\thave(%v)",
			mat.Formatted(wantNext), mat.Formatted(next.Observation))
	}

	// A done row replays as a terminal timestep
	last := learner.nexts[1]
	if !last.Last() || last.Reward != -1 || last.Discount != 0 {
		t.Errorf("wrong terminal timestep: %v", last)
	}

	if reward := metrics["batch_reward"]; reward != 0 {
		t.Errorf("wrong batch reward \n\twant(0) \n\thave(%v)", reward)
	}
	if _, ok := metrics["td_error"]; ok {
		t.Error("plain learner reported a TD error metric")
	}
}

func TestFromAgentTdErrorMetrics(t *testing.T) {
	learner := &tdLearner{
		recordingLearner: newRecordingLearner(),
		δ:                0.5,
	}

	metrics, err := FromAgent(learner).Train(testBatch())
	if err != nil {
		t.Fatalf("could not train: %v", err)
	}

	if metrics["td_error"] != 0.5 {
		t.Errorf("wrong td error \n\twant(0.5) \n\thave(%v)",
			metrics["td_error"])
	}
	if metrics["critic_loss"] != 0.25 {
		t.Errorf("wrong critic loss \n\twant(0.25) \n\thave(%v)",
			metrics["critic_loss"])
	}
}

func TestFromAgentEmptyBatch(t *testing.T) {
	if _, err := FromAgent(newRecordingLearner()).Train(memory.Batch{}); err == nil {
		t.Error("expected an error for an empty batch")
	}
}

func TestFromAgentActorRoundTrip(t *testing.T) {
	learner := newRecordingLearner()
	ta := FromAgent(learner)

	if _, ok := ta.Actor()["mean"]; !ok {
		t.Fatal("actor weights missing mean matrix")
	}

	installed := agent.Weights{
		"mean": mat.NewDense(1, 2, []float64{7, 8}),
	}
	setter, ok := ta.(ActorSetter)
	if !ok {
		t.Fatal("adapted agent cannot restore weights")
	}
	if err := setter.SetActor(installed); err != nil {
		t.Fatalf("could not set actor weights: %v", err)
	}
	if !mat.Equal(learner.weights["mean"], installed["mean"]) {
		t.Error("installed weights did not reach the wrapped agent")
	}
}
