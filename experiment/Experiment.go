// Package experiment implements single-process experiments that run
// an agent directly against an environment, without a relay or any
// remote workers. This is the standalone counterpart to the
// distributed trainer/worker loop and is useful for validating agents
// and environments before distributing them.
package experiment

import (
	"github.com/samuelfneumann/trackrl/experiment/tracker"
	ts "github.com/samuelfneumann/trackrl/timestep"
)

// Interface Experiment outlines structs that can run experiments.
// Experiments track environment TimeSteps, caching data from each
// TimeStep in RAM to be later saved to disk. The Save() method takes
// all cached data and saves it to disk, usually after the experiment
// has finished. The Run() method runs all episodes until the maximum
// timestep limit is reached, and the RunEpisode() method runs a
// single episode.
//
// In order to save data, Experiments use Trackers. Trackers determine
// which data generated during the experiment is saved. Experiments
// send each TimeStep to Trackers using the Tracker's Track() method.
// The Tracker then determines which data from the TimeStep it caches
// and saves. New Trackers can be registered with an Experiment
// through the constructor or through an Experiment's Register()
// method.
type Experiment interface {
	Run() error
	RunEpisode() (bool, error) // Returns whether the step limit was hit

	// Tracks the current timestep by sending it to Trackers
	track(ts.TimeStep)

	// Save all tracked data to disk
	Save() error

	// Adds a new tracker.Tracker to the (possibly already running)
	// experiment. Useful if data should be tracked only after a
	// specified event.
	Register(t tracker.Tracker)

	// Saves the current state of all checkpointed objects
	checkpoint(ts.TimeStep) error
}
