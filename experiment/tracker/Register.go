package tracker

import (
	"github.com/samuelfneumann/trackrl/environment"
	"github.com/samuelfneumann/trackrl/timestep"
)

// registeredTracker binds a Tracker to a specific Environment so that
// the Tracker tracks data from that Environment only.
// registeredTracker is itself a Tracker.
//
// The Track() and Save() methods of a registeredTracker call those of
// the embedded Tracker. The only difference is that Track() is called
// with the most recent TimeStep of the registered Environment, and
// the argument to registeredTracker.Track() is ignored. The logic of
// the embedded Tracker's Track() and Save() methods remains
// unmodified.
//
// This is useful when an experiment is run on an Environment wrapper
// but the data of the wrapped Environment is what should be tracked.
// For example, if an experiment is run on a reward-shaping wrapper,
// registering the wrapped Environment with a Return Tracker records
// the raw returns instead of the shaped ones.
type registeredTracker struct {
	Tracker
	env environment.Environment
}

// Register registers a Tracker with an Environment, tracking data
// from the registered Environment only. Register returns a copy of
// the argument Tracker that is registered with the argument
// Environment.
//
// Note: the underlying concrete type of the registered Tracker is
// lost when registering an Environment with a Tracker.
func Register(t Tracker, env environment.Environment) Tracker {
	return &registeredTracker{t, env}
}

// Track calls Track() on the embedded Tracker using the most recent
// TimeStep from the registered Environment.
//
// The TimeStep argument to this method is ignored and exists only so
// that registeredTracker satisfies the Tracker interface.
func (r *registeredTracker) Track(timestep.TimeStep) {
	r.Tracker.Track(r.env.CurrentTimeStep())
}
