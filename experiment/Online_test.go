package experiment

import (
	"errors"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/trackrl/agent"
	env "github.com/samuelfneumann/trackrl/environment"
	"github.com/samuelfneumann/trackrl/experiment/checkpointer"
	"github.com/samuelfneumann/trackrl/experiment/tracker"
	ts "github.com/samuelfneumann/trackrl/timestep"
)

// walkEnv is a deterministic environment for tests. Every episode
// lasts length steps after the first timestep, every step pays a
// reward of one, and observations hold the step number.
type walkEnv struct {
	env.Environment
	length int

	step   ts.TimeStep
	resets int
	steps  int
	failOn int // step number whose Step call fails, 0 disables
}

func (w *walkEnv) Reset() ts.TimeStep {
	w.resets++
	w.step = ts.New(ts.First, 0, 1, mat.NewVecDense(1, []float64{0}), 0)
	return w.step
}

func (w *walkEnv) Step(*mat.VecDense) (ts.TimeStep, bool, error) {
	num := w.step.Number + 1
	if w.failOn > 0 && num == w.failOn {
		return ts.TimeStep{}, false, errors.New("step: wheels fell off")
	}
	w.steps++

	stepType := ts.Mid
	if num >= w.length {
		stepType = ts.Last
	}
	obs := mat.NewVecDense(1, []float64{float64(num)})
	w.step = ts.New(stepType, 1, 1, obs, num)
	return w.step, w.step.Last(), nil
}

// scriptedAgent always selects the same action and records the calls
// made to it.
type scriptedAgent struct {
	agent.Agent
	action *mat.VecDense

	firsts    []ts.TimeStep
	observed  []ts.TimeStep
	actions   []mat.Vector
	steps     int
	episodes  int
	selectErr error
}

func newScriptedAgent() *scriptedAgent {
	return &scriptedAgent{
		action: mat.NewVecDense(1, []float64{0.25}),
	}
}

func (s *scriptedAgent) ObserveFirst(t ts.TimeStep) error {
	s.firsts = append(s.firsts, t)
	return nil
}

func (s *scriptedAgent) SelectAction(ts.TimeStep) (mat.Vector, error) {
	if s.selectErr != nil {
		return nil, s.selectErr
	}
	return s.action, nil
}

func (s *scriptedAgent) Observe(action mat.Vector, t ts.TimeStep) error {
	s.actions = append(s.actions, action)
	s.observed = append(s.observed, t)
	return nil
}

func (s *scriptedAgent) Step() error {
	s.steps++
	return nil
}

func (s *scriptedAgent) EndEpisode() {
	s.episodes++
}

// countTracker counts Track and Save calls and remembers the last
// tracked timestep.
type countTracker struct {
	tracks  int
	saves   int
	last    ts.TimeStep
	saveErr error
}

func (c *countTracker) Track(t ts.TimeStep) {
	c.tracks++
	c.last = t
}

func (c *countTracker) Save() error {
	c.saves++
	return c.saveErr
}

// countCheckpointer records the timestep numbers it was asked to
// checkpoint on.
type countCheckpointer struct {
	numbers []int
	err     error
}

func (c *countCheckpointer) Checkpoint(t ts.TimeStep) error {
	if c.err != nil {
		return c.err
	}
	c.numbers = append(c.numbers, t.Number)
	return nil
}

func TestOnlineRunEpisode(t *testing.T) {
	environment := &walkEnv{length: 3}
	a := newScriptedAgent()
	track := &countTracker{}

	exp := NewOnline(environment, a, 10, []tracker.Tracker{track}, nil)

	ended, err := exp.RunEpisode()
	if err != nil {
		t.Fatalf("could not run episode: %v", err)
	}
	if ended {
		t.Error("episode should not have hit the step limit")
	}

	if environment.resets != 1 {
		t.Errorf("unexpected reset count \n\twant(1) \n\thave(%v)",
			environment.resets)
	}
	if len(a.firsts) != 1 || !a.firsts[0].First() {
		t.Errorf("agent should observe exactly one first timestep, "+
			"got %v", a.firsts)
	}
	if a.steps != 3 {
		t.Errorf("unexpected agent step count \n\twant(3) \n\thave(%v)",
			a.steps)
	}
	if a.episodes != 1 {
		t.Errorf("agent should end exactly one episode, ended %v",
			a.episodes)
	}
	if len(a.observed) != 3 || !a.observed[2].Last() {
		t.Errorf("agent should observe 3 timesteps ending in Last, "+
			"got %v", a.observed)
	}

	// The first timestep and every environment step should be tracked
	if track.tracks != 4 {
		t.Errorf("unexpected track count \n\twant(4) \n\thave(%v)",
			track.tracks)
	}
	if track.last.Number != 3 {
		t.Errorf("unexpected last tracked step \n\twant(3) \n\thave(%v)",
			track.last.Number)
	}
}

func TestOnlineRunStopsAtMaxSteps(t *testing.T) {
	environment := &walkEnv{length: 5}
	a := newScriptedAgent()
	track := &countTracker{}

	exp := NewOnline(environment, a, 7, []tracker.Tracker{track}, nil)
	if err := exp.Run(); err != nil {
		t.Fatalf("could not run experiment: %v", err)
	}

	if a.steps != 7 {
		t.Errorf("unexpected total steps \n\twant(7) \n\thave(%v)",
			a.steps)
	}
	if environment.resets != 2 {
		t.Errorf("unexpected reset count \n\twant(2) \n\thave(%v)",
			environment.resets)
	}

	// Only the first episode completed, the second was cut off by the
	// step limit
	if a.episodes != 1 {
		t.Errorf("unexpected completed episodes \n\twant(1) \n\thave(%v)",
			a.episodes)
	}

	// Each episode tracks its first timestep plus one per step
	if track.tracks != 9 {
		t.Errorf("unexpected track count \n\twant(9) \n\thave(%v)",
			track.tracks)
	}
}

func TestOnlineCheckpointsEveryStep(t *testing.T) {
	environment := &walkEnv{length: 4}
	a := newScriptedAgent()
	check := &countCheckpointer{}

	exp := NewOnline(environment, a, 10, nil,
		[]checkpointer.Checkpointer{check})

	if _, err := exp.RunEpisode(); err != nil {
		t.Fatalf("could not run episode: %v", err)
	}

	want := []int{1, 2, 3, 4}
	if len(check.numbers) != len(want) {
		t.Fatalf("unexpected checkpoint count \n\twant(%v) \n\thave(%v)",
			len(want), len(check.numbers))
	}
	for i, num := range want {
		if check.numbers[i] != num {
			t.Errorf("unexpected checkpoint step at %v \n\twant(%v) "+
				"\n\thave(%v)", i, num, check.numbers[i])
		}
	}

	check.err = errors.New("disk full")
	if _, err := exp.RunEpisode(); err == nil {
		t.Error("checkpoint errors should end the episode")
	}
}

func TestOnlineRunPropagatesStepError(t *testing.T) {
	environment := &walkEnv{length: 5, failOn: 2}
	a := newScriptedAgent()

	exp := NewOnline(environment, a, 10, nil, nil)
	if err := exp.Run(); err == nil {
		t.Fatal("environment step errors should stop the experiment")
	}
	if a.steps != 1 {
		t.Errorf("agent should have stepped once before the failure, "+
			"stepped %v times", a.steps)
	}
}

func TestOnlineRegisterAndSave(t *testing.T) {
	environment := &walkEnv{length: 2}
	a := newScriptedAgent()

	first := &countTracker{}
	second := &countTracker{}

	exp := NewOnline(environment, a, 10, []tracker.Tracker{first}, nil)
	exp.Register(second)

	if _, err := exp.RunEpisode(); err != nil {
		t.Fatalf("could not run episode: %v", err)
	}
	if first.tracks != second.tracks {
		t.Errorf("registered tracker should see every timestep: "+
			"%v != %v", first.tracks, second.tracks)
	}

	if err := exp.Save(); err != nil {
		t.Fatalf("could not save tracked data: %v", err)
	}
	if first.saves != 1 || second.saves != 1 {
		t.Errorf("both trackers should save exactly once, saved %v "+
			"and %v times", first.saves, second.saves)
	}

	second.saveErr = errors.New("read-only filesystem")
	if err := exp.Save(); err == nil {
		t.Error("tracker save errors should propagate")
	}
}

func TestOnlineWithReturnTracker(t *testing.T) {
	environment := &walkEnv{length: 3}
	a := newScriptedAgent()

	dir := t.TempDir()
	returnsFile := filepath.Join(dir, "returns.bin")
	lengthsFile := filepath.Join(dir, "lengths.bin")

	trackers := []tracker.Tracker{
		tracker.NewReturn(returnsFile),
		tracker.NewEpisodeLength(lengthsFile),
	}

	exp := NewOnline(environment, a, 6, trackers, nil)
	if err := exp.Run(); err != nil {
		t.Fatalf("could not run experiment: %v", err)
	}
	if err := exp.Save(); err != nil {
		t.Fatalf("could not save tracked data: %v", err)
	}

	returns, err := tracker.LoadData(returnsFile)
	if err != nil {
		t.Fatalf("could not load returns: %v", err)
	}
	lengths, err := tracker.LoadData(lengthsFile)
	if err != nil {
		t.Fatalf("could not load lengths: %v", err)
	}

	// Two full episodes of 3 steps, each step paying a reward of 1
	for name, data := range map[string][]float64{
		"returns": returns,
		"lengths": lengths,
	} {
		if len(data) != 2 {
			t.Fatalf("unexpected %v count \n\twant(2) \n\thave(%v)",
				name, len(data))
		}
		for i, value := range data {
			if value != 3 {
				t.Errorf("unexpected %v at episode %v \n\twant(3) "+
					"\n\thave(%v)", name, i, value)
			}
		}
	}
}
