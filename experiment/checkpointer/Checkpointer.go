// Package checkpointer implements Checkpointers, which periodically
// save serializable objects to disk while an experiment runs
package checkpointer

import (
	"encoding/gob"
	"fmt"
	"os"

	ts "github.com/samuelfneumann/trackrl/timestep"
)

// Serializable is an object that can be saved/serialized and later
// restored
type Serializable interface {
	gob.GobEncoder
	gob.GobDecoder
}

// Checkpointer checkpoints/saves serializable objects based on
// timestep.TimeSteps
type Checkpointer interface {
	Checkpoint(ts.TimeStep) error
}

// Load restores a checkpointed object from the file at filename
func Load(filename string, into Serializable) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("load: could not read checkpoint: %v", err)
	}
	if err := into.GobDecode(data); err != nil {
		return fmt.Errorf("load: could not decode checkpoint: %v", err)
	}
	return nil
}
