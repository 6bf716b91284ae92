package racing

import (
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/trackrl/environment"
	ts "github.com/samuelfneumann/trackrl/timestep"
	"github.com/samuelfneumann/trackrl/track"
)

// raceTask is a Task that needs access to the underlying track
// environment. Tasks of this kind get the environment registered on
// them at construction time and are reset alongside it.
type raceTask interface {
	environment.Task
	registerEnv(*base)
	reset(startIndex int)
	progress() float64
}

// Race implements the task of driving a track as fast as possible.
// Rewards are paid per centerline point passed since the previous
// timestep, as measured by a track.RewardFunction, so faster driving
// collects reward sooner. Touching a wall costs collisionPenalty on
// each step with contact, but does not end the episode.
//
// Episodes end in success when the car passes the final centerline
// point, in failure when the car goes too long without making
// progress, or in a timeout at the step limit.
//
// The Starter must return 1-dimensional vectors holding the fraction
// of the track, in [0, 1], at which the car starts. Starting partway
// along the track pays no reward for the points behind the car.
type Race struct {
	environment.Starter
	reward           *track.RewardFunction
	stepLimit        environment.Ender
	collisionPenalty float64

	failed bool
	env    *base
}

// NewRace returns a new Race task. The reward function measures
// progress along the track's centerline; cutoff bounds the episode
// length in steps; collisionPenalty is the per-step cost of wall
// contact and may be 0.
func NewRace(starter environment.Starter, reward *track.RewardFunction,
	cutoff int, collisionPenalty float64) *Race {
	return &Race{
		Starter:          starter,
		reward:           reward,
		stepLimit:        environment.NewStepLimit(cutoff),
		collisionPenalty: collisionPenalty,
	}
}

func (r *Race) registerEnv(b *base) {
	r.env = b
}

func (r *Race) reset(startIndex int) {
	r.reward.ResetAt(startIndex)
	r.failed = false
}

func (r *Race) progress() float64 {
	return r.reward.Progress()
}

// GetReward returns the reward for the step that just happened: the
// progress reward earned by the car's new position, less the
// collision penalty when the car is touching a wall. The state,
// action, and nextState arguments are ignored; the reward depends on
// the car's position in the world, which the task reads directly.
func (r *Race) GetReward(state, action, nextState mat.Vector) float64 {
	reward, done := r.reward.Update(r.env.Position())
	if done && !r.reward.AtEnd() {
		r.failed = true
	}

	if r.env.wallContact {
		reward -= r.collisionPenalty
	}
	return reward
}

// AtGoal returns whether the car has passed the final centerline
// point. The argument state is ignored; the task consults its reward
// function's cursor.
func (r *Race) AtGoal(state mat.Matrix) bool {
	return r.reward.AtEnd()
}

// Min returns the minimum attainable reward over all timesteps
func (r *Race) Min() float64 {
	return -r.collisionPenalty
}

// Max returns the maximum attainable reward over all timesteps
func (r *Race) Max() float64 {
	return r.reward.MaxStepReward()
}

// RewardSpec returns the reward specification of the Task
func (r *Race) RewardSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	lowerBound := mat.NewVecDense(1, []float64{r.Min()})
	upperBound := mat.NewVecDense(1, []float64{r.Max()})

	return environment.NewSpec(shape, environment.Reward, lowerBound,
		upperBound, environment.Continuous)
}

// End determines whether t is the last timestep in the episode,
// adjusting its StepType and EndType accordingly. Completing the
// track and stalling out are terminal states; the step limit is a
// timeout.
func (r *Race) End(t *ts.TimeStep) bool {
	if r.reward.AtEnd() || r.failed {
		t.StepType = ts.Last
		t.SetEnd(ts.TerminalStateReached)
		return true
	}
	return r.stepLimit.End(t)
}
