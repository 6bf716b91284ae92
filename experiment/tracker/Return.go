package tracker

import (
	"fmt"

	ts "github.com/samuelfneumann/trackrl/timestep"
)

// Return tracks and saves the episodic return in an experiment
type Return struct {
	lastTimeStep   int
	currentReturn  float64
	episodeReturns []float64
	filename       string
}

// NewReturn creates and returns a new *Return Tracker which saves its
// data at the file filename
func NewReturn(filename string) *Return {
	var t Return
	t.lastTimeStep = -1
	t.filename = filename
	return &t
}

// Track tracks the rewards seen on a timestep. By calling this method
// on every timestep, the Tracker stores all rewards seen in the
// episode and caches the cumulative reward for that episode as the
// episodic return. When a new episode starts, this method
// automatically detects it and accumulates the rewards for the new
// episode separately from the rewards seen on previous episodes.
//
// Track panics if it is called on non-sequential timesteps
func (r *Return) Track(step ts.TimeStep) {
	// Ensure that Track is called on sequential timesteps
	if r.lastTimeStep+1 != step.Number {
		panic(fmt.Sprintf("track: last two timesteps tracked are not "+
			"sequential: timestep %v --> timestep %v", r.lastTimeStep,
			step.Number))
	}

	r.currentReturn += step.Reward
	if !step.Last() {
		r.lastTimeStep = step.Number
	} else {
		// Episode has ended, cache the return and begin tracking the
		// return of a new episode
		r.episodeReturns = append(r.episodeReturns, r.currentReturn)
		r.currentReturn = 0.0
		r.lastTimeStep = -1
	}
}

// Save saves the episodic returns tracked by the Tracker to disk
func (r *Return) Save() error {
	return save(r.filename, r.episodeReturns)
}
