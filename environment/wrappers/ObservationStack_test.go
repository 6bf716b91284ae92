package wrappers

import (
	"fmt"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/trackrl/environment"
	"github.com/samuelfneumann/trackrl/environment/racing"
	"github.com/samuelfneumann/trackrl/timestep"
	"github.com/samuelfneumann/trackrl/track"
)

// fakeFramed is a deterministic Framed environment for testing
// wrappers. Its observations are [t, 10t, 10t+1] where t is the step
// number: one scalar followed by a 2 x 1 frame. Episodes never end.
type fakeFramed struct {
	t        int
	lastStep timestep.TimeStep
}

func (f *fakeFramed) obs() *mat.VecDense {
	t := float64(f.t)
	return mat.NewVecDense(3, []float64{t, 10 * t, 10*t + 1})
}

func (f *fakeFramed) Reset() timestep.TimeStep {
	f.t = 0
	f.lastStep = timestep.New(timestep.First, 0, 1, f.obs(), 0)
	return f.lastStep
}

func (f *fakeFramed) Step(a *mat.VecDense) (timestep.TimeStep, bool,
	error) {
	f.t++
	f.lastStep = timestep.New(timestep.Mid, 1, 1, f.obs(), f.t)
	return f.lastStep, false, nil
}

func (f *fakeFramed) CurrentTimeStep() timestep.TimeStep { return f.lastStep }

func (f *fakeFramed) Scalars() int { return 1 }

func (f *fakeFramed) Frame() (int, int) { return 2, 1 }

func (f *fakeFramed) ObservationSpec() environment.Spec {
	return environment.NewSpec(mat.NewVecDense(3, nil),
		environment.Observation, mat.NewVecDense(3, nil),
		mat.NewVecDense(3, []float64{100, 1000, 1000}),
		environment.Continuous)
}

func (f *fakeFramed) ActionSpec() environment.Spec {
	return environment.NewSpec(mat.NewVecDense(2, nil),
		environment.Action, mat.NewVecDense(2, []float64{-1, -1}),
		mat.NewVecDense(2, []float64{1, 1}), environment.Continuous)
}

func (f *fakeFramed) DiscountSpec() environment.Spec {
	one := mat.NewVecDense(1, []float64{1})
	return environment.NewSpec(mat.NewVecDense(1, nil),
		environment.Discount, one, one, environment.Continuous)
}

func (f *fakeFramed) Start() *mat.VecDense { return mat.NewVecDense(1, nil) }

func (f *fakeFramed) End(*timestep.TimeStep) bool { return false }

func (f *fakeFramed) GetReward(_, _, _ mat.Vector) float64 { return 1 }

func (f *fakeFramed) AtGoal(mat.Matrix) bool { return false }

func (f *fakeFramed) Min() float64 { return 0 }

func (f *fakeFramed) Max() float64 { return 1 }

func (f *fakeFramed) RewardSpec() environment.Spec {
	one := mat.NewVecDense(1, []float64{1})
	return environment.NewSpec(mat.NewVecDense(1, nil), environment.Reward,
		mat.NewVecDense(1, nil), one, environment.Continuous)
}

func (f *fakeFramed) String() string { return fmt.Sprintf("Fake (t=%v)", f.t) }

// step advances env once with a zero action, failing the test on error
func step(t *testing.T, env environment.Environment,
	dims int) timestep.TimeStep {
	t.Helper()
	next, _, err := env.Step(mat.NewVecDense(dims, nil))
	if err != nil {
		t.Fatalf("could not step: %v", err)
	}
	return next
}

// wantObs fails the test when obs differs from want
func wantObs(t *testing.T, want []float64, obs *mat.VecDense) {
	t.Helper()
	if !mat.EqualApprox(mat.NewVecDense(len(want), want), obs, 1e-12) {
		t.Errorf("unexpected observation \n\twant(%v) \n\thave(%v)", want,
			obs.RawVector().Data)
	}
}

func TestObservationStackFirstStep(t *testing.T) {
	_, first, err := NewObservationStack(&fakeFramed{}, 3)
	if err != nil {
		t.Fatalf("could not create wrapper: %v", err)
	}

	// All three history slots hold the first frame
	wantObs(t, []float64{0, 0, 1, 0, 1, 0, 1}, first.Observation)
	if !first.First() {
		t.Error("first step does not have StepType First")
	}
}

func TestObservationStackShifts(t *testing.T) {
	stack, _, err := NewObservationStack(&fakeFramed{}, 3)
	if err != nil {
		t.Fatalf("could not create wrapper: %v", err)
	}

	next := step(t, stack, 2)
	wantObs(t, []float64{1, 0, 1, 0, 1, 10, 11}, next.Observation)

	next = step(t, stack, 2)
	wantObs(t, []float64{2, 0, 1, 10, 11, 20, 21}, next.Observation)

	// A fourth frame pushes the first out of the stack
	step(t, stack, 2)
	next = step(t, stack, 2)
	wantObs(t, []float64{4, 20, 21, 30, 31, 40, 41}, next.Observation)

	if stack.CurrentTimeStep().Number != next.Number {
		t.Error("CurrentTimeStep disagrees with the last returned step")
	}
}

func TestObservationStackReset(t *testing.T) {
	stack, _, err := NewObservationStack(&fakeFramed{}, 3)
	if err != nil {
		t.Fatalf("could not create wrapper: %v", err)
	}

	for i := 0; i < 4; i++ {
		step(t, stack, 2)
	}

	first := stack.Reset()
	if !first.First() {
		t.Error("reset did not return a First step")
	}
	wantObs(t, []float64{0, 0, 1, 0, 1, 0, 1}, first.Observation)
}

func TestObservationStackSpec(t *testing.T) {
	stack, _, err := NewObservationStack(&fakeFramed{}, 3)
	if err != nil {
		t.Fatalf("could not create wrapper: %v", err)
	}

	spec := stack.ObservationSpec()
	if spec.Shape.Len() != 7 {
		t.Fatalf("unexpected observation length \n\twant(%v) \n\thave(%v)",
			7, spec.Shape.Len())
	}

	// Scalar bounds once, frame bounds repeated per stacked frame
	if spec.UpperBound.AtVec(0) != 100 {
		t.Errorf("unexpected scalar upper bound \n\twant(%v) \n\thave(%v)",
			100.0, spec.UpperBound.AtVec(0))
	}
	for i := 1; i < 7; i++ {
		if spec.UpperBound.AtVec(i) != 1000 {
			t.Errorf("unexpected frame upper bound at %v \n\twant(%v) "+
				"\n\thave(%v)", i, 1000.0, spec.UpperBound.AtVec(i))
		}
	}

	if stack.Depth() != 3 {
		t.Errorf("unexpected depth \n\twant(%v) \n\thave(%v)", 3,
			stack.Depth())
	}
	if stack.Scalars() != 1 {
		t.Errorf("unexpected scalar count \n\twant(%v) \n\thave(%v)", 1,
			stack.Scalars())
	}
	if w, h := stack.Frame(); w != 2 || h != 1 {
		t.Errorf("unexpected frame dimensions \n\twant(%v x %v) "+
			"\n\thave(%v x %v)", 2, 1, w, h)
	}
}

func TestObservationStackValidatesDepth(t *testing.T) {
	if _, _, err := NewObservationStack(&fakeFramed{}, 0); err == nil {
		t.Error("depth 0 did not error")
	}
}

func TestObservationStackOnTrack(t *testing.T) {
	line := track.Hairpin(60, 12, 0.5)
	reward := track.NewRewardFunction(line, track.DefaultCaptureRadius,
		track.DefaultMaxForward, track.DefaultPointReward,
		track.DefaultFailAfter)
	task := racing.NewRace(environment.NewFixedStarter([]float64{0}),
		reward, 1000, 0)

	env, _, err := racing.NewLidarContinuous(line, racing.TrackWidth, task,
		0.99, 5, false)
	if err != nil {
		t.Fatalf("could not create environment: %v", err)
	}

	stack, first, err := NewObservationStack(env.(Framed), 4)
	if err != nil {
		t.Fatalf("could not create wrapper: %v", err)
	}

	wantLen := 1 + 4*5
	if first.Observation.Len() != wantLen {
		t.Fatalf("unexpected observation length \n\twant(%v) \n\thave(%v)",
			wantLen, first.Observation.Len())
	}
	if got := stack.ObservationSpec().Shape.Len(); got != wantLen {
		t.Errorf("observation spec disagrees with observation "+
			"\n\twant(%v) \n\thave(%v)", wantLen, got)
	}

	next := step(t, stack, 2)
	if next.Observation.Len() != wantLen {
		t.Errorf("unexpected observation length after step \n\twant(%v) "+
			"\n\thave(%v)", wantLen, next.Observation.Len())
	}
}
