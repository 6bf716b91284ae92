package tracker

import (
	ts "github.com/samuelfneumann/trackrl/timestep"
)

// EpisodeLength tracks and saves the lengths of episodes in an
// experiment
type EpisodeLength struct {
	episodeLengths []float64
	filename       string
}

// NewEpisodeLength returns a new *EpisodeLength Tracker which saves
// its data at the file filename
func NewEpisodeLength(filename string) *EpisodeLength {
	return &EpisodeLength{filename: filename}
}

// Track caches the episode length whenever the timestep passed to it
// is the last timestep in an episode. On all other timesteps this
// method is a no-op. Lengths are stored as float64 so that LoadData
// can decode the saved artifact.
func (e *EpisodeLength) Track(step ts.TimeStep) {
	if step.Last() {
		e.episodeLengths = append(e.episodeLengths, float64(step.Number))
	}
}

// Save saves the episode lengths tracked by the Tracker to disk
func (e *EpisodeLength) Save() error {
	return save(e.filename, e.episodeLengths)
}
