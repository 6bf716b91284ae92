package checkpointer

import (
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/trackrl/agent"
	ts "github.com/samuelfneumann/trackrl/timestep"
)

// stubWeighted exposes fixed weights and records those installed into
// it.
type stubWeighted struct {
	weights   agent.Weights
	installed []agent.Weights
}

func (s *stubWeighted) Weights() agent.Weights {
	return s.weights
}

func (s *stubWeighted) SetWeights(w agent.Weights) error {
	s.installed = append(s.installed, w)
	return nil
}

func TestWeightsViewRoundTrip(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "weights")

	src := &stubWeighted{
		weights: agent.Weights{
			"mean": mat.NewDense(1, 2, []float64{0.5, -0.5}),
		},
	}

	check := NewNStep(2, Weights(src), FilenameEnumerator(0, prefix,
		".bin"))
	if err := check.Checkpoint(ts.New(ts.Mid, 0, 1, nil, 2)); err != nil {
		t.Fatalf("could not checkpoint weights: %v", err)
	}

	dst := &stubWeighted{}
	if err := Load(prefix+"1.bin", Weights(dst)); err != nil {
		t.Fatalf("could not load weights: %v", err)
	}

	if len(dst.installed) != 1 {
		t.Fatalf("loading should install weights exactly once, "+
			"installed %v times", len(dst.installed))
	}
	mean, ok := dst.installed[0]["mean"]
	if !ok {
		t.Fatal("installed weights should hold the mean matrix")
	}
	if !mat.Equal(mean, src.weights["mean"]) {
		t.Errorf("unexpected restored weights \n\twant(%v) \n\thave(%v)",
			mat.Formatted(src.weights["mean"]), mat.Formatted(mean))
	}
}
