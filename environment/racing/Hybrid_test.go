package racing

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/trackrl/environment"
	ts "github.com/samuelfneumann/trackrl/timestep"
	"github.com/samuelfneumann/trackrl/track"
)

// hybridEnv returns a continuous-action hybrid environment on the
// hairpin track with the given camera size
func hybridEnv(t *testing.T, cameraSize int,
	progress bool) (environment.Environment, ts.TimeStep) {
	t.Helper()

	line := track.Hairpin(60, 12, 0.5)
	reward := track.NewRewardFunction(line, track.DefaultCaptureRadius,
		track.DefaultMaxForward, track.DefaultPointReward,
		track.DefaultFailAfter)
	task := NewRace(environment.NewFixedStarter([]float64{0}), reward,
		1000, 0.1)

	env, first, err := NewHybridContinuous(line, TrackWidth, task, 0.99,
		cameraSize, progress)
	if err != nil {
		t.Fatalf("could not create environment: %v", err)
	}
	return env, first
}

func TestDrivetrain(t *testing.T) {
	tests := []struct {
		speed float64
		gear  float64
		rpm   float64
	}{
		{0, 1, 0},
		{2, 1, 0.5},
		{4, 2, 0},
		{6, 2, 0.5},
		{12, 4, 0},
		{18, 5, 0.5},
		{25, 5, 1}, // past the redline, rpm clamps
	}

	for _, test := range tests {
		gear, rpm := drivetrain(test.speed)
		if gear != test.gear {
			t.Errorf("unexpected gear at speed %v \n\twant(%v) "+
				"\n\thave(%v)", test.speed, test.gear, gear)
		}
		if math.Abs(rpm-test.rpm) > 1e-9 {
			t.Errorf("unexpected rpm at speed %v \n\twant(%v) "+
				"\n\thave(%v)", test.speed, test.rpm, rpm)
		}
	}
}

func TestHybridFirstStep(t *testing.T) {
	size := 32
	env, first := hybridEnv(t, size, false)

	wantLen := 3 + size*size
	if first.Observation.Len() != wantLen {
		t.Fatalf("unexpected observation length \n\twant(%v) \n\thave(%v)",
			wantLen, first.Observation.Len())
	}
	if got := env.ObservationSpec().Shape.Len(); got != wantLen {
		t.Errorf("observation spec disagrees with observation "+
			"\n\twant(%v) \n\thave(%v)", wantLen, got)
	}

	if speed := first.Observation.AtVec(0); speed != 0 {
		t.Errorf("unexpected starting speed \n\twant(%v) \n\thave(%v)",
			0.0, speed)
	}
	if gear := first.Observation.AtVec(1); gear != 1 {
		t.Errorf("unexpected starting gear \n\twant(%v) \n\thave(%v)",
			1.0, gear)
	}
	if rpm := first.Observation.AtVec(2); rpm != 0 {
		t.Errorf("unexpected starting rpm \n\twant(%v) \n\thave(%v)",
			0.0, rpm)
	}

	// Pixels are normalized grayscale; the walls beside the car must
	// show up bright against the dark background
	maxPixel := 0.0
	for i := 3; i < wantLen; i++ {
		pixel := first.Observation.AtVec(i)
		if pixel < 0 || pixel > 1 {
			t.Fatalf("pixel %v out of [0, 1]: %v", i-3, pixel)
		}
		if pixel > maxPixel {
			maxPixel = pixel
		}
	}
	if maxPixel < 0.5 {
		t.Errorf("camera frame shows no walls \n\twant(max pixel >= 0.5) "+
			"\n\thave(%v)", maxPixel)
	}
}

func TestHybridProgressScalar(t *testing.T) {
	size := 16
	_, first := hybridEnv(t, size, true)

	wantLen := 4 + size*size
	if first.Observation.Len() != wantLen {
		t.Fatalf("unexpected observation length \n\twant(%v) \n\thave(%v)",
			wantLen, first.Observation.Len())
	}
	if progress := first.Observation.AtVec(3); progress != 0 {
		t.Errorf("unexpected starting progress \n\twant(%v) \n\thave(%v)",
			0.0, progress)
	}
}

func TestHybridDrivesForward(t *testing.T) {
	env, _ := hybridEnv(t, 16, false)

	var step ts.TimeStep
	var total float64
	for i := 0; i < 40; i++ {
		var done bool
		var err error
		step, done, err = env.Step(fullThrottle())
		if err != nil {
			t.Fatalf("step %v: %v", i, err)
		}
		if done {
			t.Fatalf("episode ended unexpectedly at step %v", i)
		}
		total += step.Reward
	}

	if total <= 0 {
		t.Errorf("no reward after driving forward \n\twant(> 0) "+
			"\n\thave(%v)", total)
	}
	if speed := step.Observation.AtVec(0); speed <= 0.2 {
		t.Errorf("car barely moving after 2 seconds of full throttle "+
			"\n\twant(> 0.2) \n\thave(%v)", speed)
	}
	if gear := step.Observation.AtVec(1); gear < 2 {
		t.Errorf("car did not shift up \n\twant(>= 2) \n\thave(%v)", gear)
	}
}

func TestHybridObservationSpec(t *testing.T) {
	size := 16
	env, _ := hybridEnv(t, size, true)
	spec := env.ObservationSpec()

	if spec.Cardinality != environment.Continuous {
		t.Errorf("unexpected cardinality \n\twant(%v) \n\thave(%v)",
			environment.Continuous, spec.Cardinality)
	}

	// Gear is the only feature not bounded by [0, 1]
	if spec.LowerBound.AtVec(1) != 1 ||
		spec.UpperBound.AtVec(1) != float64(NumGears) {
		t.Errorf("unexpected gear bounds \n\twant([%v, %v]) "+
			"\n\thave([%v, %v])", 1, NumGears, spec.LowerBound.AtVec(1),
			spec.UpperBound.AtVec(1))
	}
	for _, i := range []int{0, 2, 3, 4, spec.Shape.Len() - 1} {
		if spec.LowerBound.AtVec(i) != 0 || spec.UpperBound.AtVec(i) != 1 {
			t.Errorf("unexpected bounds at %v \n\twant([%v, %v]) "+
				"\n\thave([%v, %v])", i, 0, 1, spec.LowerBound.AtVec(i),
				spec.UpperBound.AtVec(i))
		}
	}
}

func TestHybridCameraTooSmall(t *testing.T) {
	line := track.Hairpin(60, 12, 0.5)
	reward := track.NewRewardFunction(line, track.DefaultCaptureRadius,
		track.DefaultMaxForward, track.DefaultPointReward,
		track.DefaultFailAfter)
	task := NewRace(environment.NewFixedStarter([]float64{0}), reward,
		1000, 0)

	_, _, err := NewHybridContinuous(line, TrackWidth, task, 0.99, 4, false)
	if err == nil {
		t.Error("constructing with a 4 pixel camera did not error")
	}
}

func TestHybridScalarsAndFrame(t *testing.T) {
	size := 16
	env, _ := hybridEnv(t, size, false)

	framer := env.(interface {
		Scalars() int
		Frame() (int, int)
	})
	if got := framer.Scalars(); got != 3 {
		t.Errorf("unexpected scalar count \n\twant(%v) \n\thave(%v)", 3,
			got)
	}
	if w, h := framer.Frame(); w != size || h != size {
		t.Errorf("unexpected frame dimensions \n\twant(%v x %v) "+
			"\n\thave(%v x %v)", size, size, w, h)
	}
}

func TestHybridDiscrete(t *testing.T) {
	size := 16
	line := track.Hairpin(60, 12, 0.5)
	reward := track.NewRewardFunction(line, track.DefaultCaptureRadius,
		track.DefaultMaxForward, track.DefaultPointReward,
		track.DefaultFailAfter)
	task := NewRace(environment.NewFixedStarter([]float64{0}), reward,
		1000, 0)

	env, first, err := NewHybridDiscrete(line, TrackWidth, task, 0.99,
		size, false)
	if err != nil {
		t.Fatalf("could not create environment: %v", err)
	}
	if first.Observation.Len() != 3+size*size {
		t.Fatalf("unexpected observation length \n\twant(%v) \n\thave(%v)",
			3+size*size, first.Observation.Len())
	}

	if _, _, err := env.Step(mat.NewVecDense(1, []float64{7})); err != nil {
		t.Errorf("could not step: %v", err)
	}
}
