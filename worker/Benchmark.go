package worker

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/trackrl/environment"
)

// BenchmarkReport summarizes a benchmark run of the environment loop
type BenchmarkReport struct {
	// Steps is the number of environmental steps the benchmark covers
	Steps int

	// Elapsed is the wall-clock duration of the whole run, including
	// the simulated inference sleeps
	Elapsed time.Duration

	// StepDuration is Elapsed divided by Steps
	StepDuration time.Duration

	// ObsCapture holds the environment's own observation capture
	// timings when the environment measures them. Samples is zero
	// otherwise.
	ObsCapture environment.BenchmarkStats
}

func (b BenchmarkReport) String() string {
	str := fmt.Sprintf("benchmark | steps: %v  |  elapsed: %v  |  "+
		"time-step duration: %v", b.Steps,
		b.Elapsed.Truncate(time.Millisecond),
		b.StepDuration.Truncate(time.Microsecond))
	if b.ObsCapture.Samples > 0 {
		str += fmt.Sprintf("\n%v", b.ObsCapture)
	}
	return str
}

// RunEnvBenchmark measures the wall-clock cost of the collection loop
// by stepping the environment with random actions, sleeping a uniform
// duration in [actMin, actMax] before each step to simulate policy
// inference time. Episodes that end mid-benchmark are reset and the
// benchmark continues. The report includes the environment's own
// observation capture timings when it implements
// environment.Benchmarker.
func (w *RolloutWorker) RunEnvBenchmark(ctx context.Context, steps int,
	actMin, actMax time.Duration) (BenchmarkReport, error) {
	if steps < 2 {
		return BenchmarkReport{}, fmt.Errorf("runEnvBenchmark: step "+
			"count too small \n\twant(>= 2) \n\thave(%v)", steps)
	}
	if actMin < 0 || actMax < 0 {
		return BenchmarkReport{}, fmt.Errorf("runEnvBenchmark: "+
			"inference sleeps cannot be negative \n\thave(%v, %v)",
			actMin, actMax)
	}
	if actMax < actMin {
		actMin, actMax = actMax, actMin
	}

	start := time.Now()
	w.env.Reset()
	for i := 0; i < steps-1; i++ {
		if sleep := w.inferenceSleep(actMin, actMax); sleep > 0 {
			select {
			case <-ctx.Done():
				return BenchmarkReport{}, ctx.Err()
			case <-time.After(sleep):
			}
		}

		_, last, err := w.env.Step(w.randomAction())
		if err != nil {
			return BenchmarkReport{}, fmt.Errorf("runEnvBenchmark: %v",
				err)
		}
		if last {
			w.env.Reset()
		}
	}
	elapsed := time.Since(start)

	report := BenchmarkReport{
		Steps:        steps,
		Elapsed:      elapsed,
		StepDuration: elapsed / time.Duration(steps),
	}
	if bench, ok := w.env.(environment.Benchmarker); ok {
		report.ObsCapture = bench.Benchmarks()
	}
	return report, nil
}

// inferenceSleep draws a uniform duration in [actMin, actMax]
func (w *RolloutWorker) inferenceSleep(actMin,
	actMax time.Duration) time.Duration {
	if actMax == actMin {
		return actMin
	}
	return actMin + time.Duration(w.rng.Int63n(int64(actMax-actMin)))
}

// randomAction draws an action uniformly within the environment's
// action bounds
func (w *RolloutWorker) randomAction() *mat.VecDense {
	spec := w.env.ActionSpec()
	action := mat.NewVecDense(spec.Shape.Len(), nil)
	for i := 0; i < action.Len(); i++ {
		lower := spec.LowerBound.AtVec(i)
		upper := spec.UpperBound.AtVec(i)
		if spec.Cardinality == environment.Discrete {
			action.SetVec(i, lower+float64(w.rng.Intn(int(upper-lower)+1)))
		} else {
			action.SetVec(i, lower+w.rng.Float64()*(upper-lower))
		}
	}
	return action
}
