package tracker

import (
	"testing"

	"github.com/samuelfneumann/trackrl/environment"
	ts "github.com/samuelfneumann/trackrl/timestep"
)

// stubEnv is an Environment whose only meaningful method is
// CurrentTimeStep. Register never touches the rest of the interface.
type stubEnv struct {
	environment.Environment
	step ts.TimeStep
}

func (s *stubEnv) CurrentTimeStep() ts.TimeStep {
	return s.step
}

// recordingTracker records the timestep numbers it is asked to track
type recordingTracker struct {
	numbers []int
	saves   int
}

func (r *recordingTracker) Track(t ts.TimeStep) {
	r.numbers = append(r.numbers, t.Number)
}

func (r *recordingTracker) Save() error {
	r.saves++
	return nil
}

func TestRegisterTracksRegisteredEnvironment(t *testing.T) {
	env := &stubEnv{step: step(ts.Mid, 1, 4)}
	rec := &recordingTracker{}

	registered := Register(rec, env)

	// The argument timestep must be ignored in favour of the
	// registered environment's current timestep
	registered.Track(step(ts.Last, -1, 99))
	if len(rec.numbers) != 1 || rec.numbers[0] != 4 {
		t.Errorf("unexpected tracked steps \n\twant([4]) \n\thave(%v)",
			rec.numbers)
	}

	env.step = step(ts.Mid, 1, 5)
	registered.Track(ts.TimeStep{})
	if len(rec.numbers) != 2 || rec.numbers[1] != 5 {
		t.Errorf("unexpected tracked steps \n\twant([4 5]) \n\thave(%v)",
			rec.numbers)
	}

	if err := registered.Save(); err != nil {
		t.Fatalf("could not save: %v", err)
	}
	if rec.saves != 1 {
		t.Errorf("save should pass through to the embedded tracker, "+
			"saved %v times", rec.saves)
	}
}
