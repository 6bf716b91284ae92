package agent

import (
	"bytes"
	"encoding/gob"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func testWeights() Weights {
	return Weights{
		"mean":   mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6}),
		"critic": mat.NewDense(1, 3, []float64{-1, 0, 1}),
	}
}

func TestWeightsClone(t *testing.T) {
	w := testWeights()
	clone := w.Clone()

	if len(clone) != len(w) {
		t.Fatalf("clone has %v entries, want %v", len(clone), len(w))
	}
	for name := range w {
		if clone[name] == w[name] {
			t.Errorf("clone shares the %q matrix with the original", name)
		}
		if !mat.Equal(clone[name], w[name]) {
			t.Errorf("clone differs from the original at %q", name)
		}
	}

	clone["mean"].Set(0, 0, 100)
	if w["mean"].At(0, 0) != 1 {
		t.Error("mutating the clone changed the original")
	}
}

func TestWeightsGobRoundTrip(t *testing.T) {
	w := testWeights()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(w); err != nil {
		t.Fatalf("could not encode weights: %v", err)
	}

	var decoded Weights
	if err := gob.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("could not decode weights: %v", err)
	}

	if len(decoded) != len(w) {
		t.Fatalf("decoded %v entries, want %v", len(decoded), len(w))
	}
	for name := range w {
		if decoded[name] == nil {
			t.Fatalf("decoded weights are missing %q", name)
		}
		if !mat.Equal(decoded[name], w[name]) {
			t.Errorf("decoded weights differ at %q", name)
		}
	}
}

func TestWeightsGobDeterministic(t *testing.T) {
	first, err := testWeights().GobEncode()
	if err != nil {
		t.Fatal(err)
	}
	second, err := testWeights().GobEncode()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Error("equal weights encoded to different bytes")
	}
}
