package experiment

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/trackrl/agent"
	env "github.com/samuelfneumann/trackrl/environment"
	"github.com/samuelfneumann/trackrl/experiment/checkpointer"
	"github.com/samuelfneumann/trackrl/experiment/tracker"
	ts "github.com/samuelfneumann/trackrl/timestep"
)

// Online is an Experiment that runs an agent online only. No offline
// evaluation is performed.
type Online struct {
	env.Environment
	agent.Agent
	maxSteps      uint
	currentSteps  uint
	trackers      []tracker.Tracker
	checkpointers []checkpointer.Checkpointer
}

// NewOnline creates and returns a new online experiment on a given
// environment with a given agent. The steps parameter determines how
// many timesteps the experiment is run for. The t parameter
// determines which data generated during the experiment is tracked
// and saved, and the c parameter determines which objects are
// checkpointed as the experiment progresses.
func NewOnline(e env.Environment, a agent.Agent, steps uint,
	t []tracker.Tracker, c []checkpointer.Checkpointer) *Online {
	return &Online{e, a, steps, 0, t, c}
}

// Register registers a tracker.Tracker with the Experiment so that
// data generated during the experiment can be tracked and saved
func (o *Online) Register(t tracker.Tracker) {
	o.trackers = append(o.trackers, t)
}

// RunEpisode runs a single episode of the experiment and returns
// whether the maximum timestep limit has been reached
func (o *Online) RunEpisode() (bool, error) {
	step := o.Environment.Reset()
	if err := o.Agent.ObserveFirst(step); err != nil {
		return false, fmt.Errorf("runEpisode: could not observe first "+
			"timestep: %v", err)
	}
	o.track(step)

	for !step.Last() && o.currentSteps < o.maxSteps {
		o.currentSteps++

		// Select an action and step in the environment
		action, err := o.Agent.SelectAction(step)
		if err != nil {
			return false, fmt.Errorf("runEpisode: could not select "+
				"action: %v", err)
		}

		step, _, err = o.Environment.Step(vecDense(action))
		if err != nil {
			return false, fmt.Errorf("runEpisode: could not step "+
				"environment: %v", err)
		}

		// Cache the environment step in each Tracker
		o.track(step)

		// Observe the timestep and step the agent
		if err := o.Agent.Observe(action, step); err != nil {
			return false, fmt.Errorf("runEpisode: could not observe "+
				"timestep: %v", err)
		}
		if err := o.Agent.Step(); err != nil {
			return false, fmt.Errorf("runEpisode: could not step "+
				"agent: %v", err)
		}

		if err := o.checkpoint(step); err != nil {
			return false, fmt.Errorf("runEpisode: %v", err)
		}
	}

	if step.Last() {
		o.Agent.EndEpisode()
	}

	// Return whether or not the max timestep limit has been reached
	return o.currentSteps >= o.maxSteps, nil
}

// Run runs the entire experiment for all timesteps
func (o *Online) Run() error {
	ended := false

	var err error
	for !ended {
		if ended, err = o.RunEpisode(); err != nil {
			return err
		}
	}
	return nil
}

// Save saves all the data cached by the Trackers to disk
func (o *Online) Save() error {
	for _, tr := range o.trackers {
		if err := tr.Save(); err != nil {
			return fmt.Errorf("save: %v", err)
		}
	}
	return nil
}

// track tracks the current timestep by caching its data in each
// Tracker
func (o *Online) track(t ts.TimeStep) {
	for _, tr := range o.trackers {
		tr.Track(t)
	}
}

// checkpoint runs each Checkpointer on the current timestep
func (o *Online) checkpoint(t ts.TimeStep) error {
	for _, c := range o.checkpointers {
		if err := c.Checkpoint(t); err != nil {
			return fmt.Errorf("checkpoint: %v", err)
		}
	}
	return nil
}

// vecDense converts an action to the *mat.VecDense needed to step in
// an environment
func vecDense(action mat.Vector) *mat.VecDense {
	if v, ok := action.(*mat.VecDense); ok {
		return v
	}
	return mat.VecDenseCopyOf(action)
}
