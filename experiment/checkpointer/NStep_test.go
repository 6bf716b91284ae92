package checkpointer

import (
	"bytes"
	"encoding/gob"
	"os"
	"path/filepath"
	"strings"
	"testing"

	ts "github.com/samuelfneumann/trackrl/timestep"
)

// blob is a Serializable payload for checkpoint tests
type blob struct {
	Values []float64
}

func (b *blob) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(b.Values); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b *blob) GobDecode(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(&b.Values)
}

// atStep builds a timestep with only the step number set
func atStep(number int) ts.TimeStep {
	return ts.New(ts.Mid, 0, 1, nil, number)
}

func TestNStepCheckpointInterval(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "object")

	check := NewNStep(3, &blob{Values: []float64{1}},
		FilenameEnumerator(0, prefix, ".bin"))

	for number := 1; number <= 10; number++ {
		if err := check.Checkpoint(atStep(number)); err != nil {
			t.Fatalf("could not checkpoint at step %v: %v", number, err)
		}
	}

	// Steps 3, 6, and 9 fall on the interval
	for i := 1; i <= 3; i++ {
		name := FilenameEnumerator(i-1, prefix, ".bin")()
		if _, err := os.Stat(name); err != nil {
			t.Errorf("checkpoint %v should exist: %v", name, err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("could not list checkpoint dir: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("unexpected checkpoint count \n\twant(3) \n\thave(%v)",
			len(entries))
	}
}

func TestNStepLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "object")

	saved := &blob{Values: []float64{1, 2.5, -3}}
	check := NewNStep(2, saved, FilenameEnumerator(0, prefix, ".bin"))
	if err := check.Checkpoint(atStep(2)); err != nil {
		t.Fatalf("could not checkpoint: %v", err)
	}

	var loaded blob
	if err := Load(prefix+"1.bin", &loaded); err != nil {
		t.Fatalf("could not load checkpoint: %v", err)
	}
	if len(loaded.Values) != len(saved.Values) {
		t.Fatalf("unexpected value count \n\twant(%v) \n\thave(%v)",
			len(saved.Values), len(loaded.Values))
	}
	for i, value := range saved.Values {
		if loaded.Values[i] != value {
			t.Errorf("unexpected value at %v \n\twant(%v) \n\thave(%v)",
				i, value, loaded.Values[i])
		}
	}
}

func TestFilenameEnumerator(t *testing.T) {
	name := FilenameEnumerator(5, "file", ".bin")
	if got := name(); got != "file6.bin" {
		t.Errorf("unexpected filename \n\twant(file6.bin) \n\thave(%v)",
			got)
	}
	if got := name(); got != "file7.bin" {
		t.Errorf("unexpected filename \n\twant(file7.bin) \n\thave(%v)",
			got)
	}
}

func TestFileTimer(t *testing.T) {
	name := FileTimer("weights", ".bin")

	got := name()
	if !strings.HasPrefix(got, "weights-") ||
		!strings.HasSuffix(got, ".bin") {
		t.Errorf("timed filename should keep prefix and extension, "+
			"got %v", got)
	}
}
