package track

import "fmt"

// Default RewardFunction parameters, tuned for centerlines sampled
// every DefaultMinSpacing metres and simulation at 20 frames per
// second.
const (
	// DefaultCaptureRadius is the largest distance, in metres, at
	// which a centerline point counts as passed.
	DefaultCaptureRadius float64 = 4.0

	// DefaultMaxForward is how many points ahead of the cursor a
	// single update searches.
	DefaultMaxForward int = 20

	// DefaultPointReward is the reward paid per centerline point
	// passed.
	DefaultPointReward float64 = 0.1

	// DefaultFailAfter is how many consecutive updates may pass
	// without progress before the episode ends in failure. At 20
	// frames per second this is 3.5 seconds of standing still.
	DefaultFailAfter int = 70
)

// RewardFunction measures progress along a centerline. It holds a
// cursor into the line; each Update moves the cursor to the nearest
// captured point ahead of it and pays a fixed reward per point
// passed. The cursor never moves backward, so reversing or circling
// earns nothing.
//
// An episode ends in failure when too many consecutive updates make
// no progress and in success when the cursor reaches the end of the
// line.
type RewardFunction struct {
	line *Centerline

	captureRadius float64
	maxForward    int
	pointReward   float64
	failAfter     int

	cursor     int
	noProgress int
	steps      int
}

// NewRewardFunction returns a RewardFunction over line. A single
// update searches maxForward points ahead of the cursor and captures
// the nearest one within captureRadius metres, paying pointReward per
// point passed. After failAfter consecutive updates without progress
// the episode is ended in failure, with a grace period of the same
// length at the start of each episode.
func NewRewardFunction(line *Centerline, captureRadius float64,
	maxForward int, pointReward float64, failAfter int) *RewardFunction {
	return &RewardFunction{
		line:          line,
		captureRadius: captureRadius,
		maxForward:    maxForward,
		pointReward:   pointReward,
		failAfter:     failAfter,
	}
}

// Update advances the cursor toward pos, returning the reward earned
// and whether the episode should end, either because the track was
// completed or because the car has gone too long without progress.
func (r *RewardFunction) Update(pos Point) (float64, bool) {
	r.steps++

	index, d := r.line.Closest(pos, r.cursor, r.maxForward)

	reward := 0.0
	if d <= r.captureRadius && index > r.cursor {
		reward = float64(index-r.cursor) * r.pointReward
		r.cursor = index
		r.noProgress = 0
	} else {
		r.noProgress++
	}

	if r.AtEnd() {
		return reward, true
	}
	if r.steps > r.failAfter && r.noProgress > r.failAfter {
		return reward, true
	}
	return reward, false
}

// AtEnd returns whether the cursor has reached the final centerline
// point, that is, whether the track has been completed.
func (r *RewardFunction) AtEnd() bool {
	return r.cursor >= r.line.Len()-1
}

// Cursor returns the centerline index the cursor currently sits at.
func (r *RewardFunction) Cursor() int {
	return r.cursor
}

// Progress returns the fraction of the centerline passed so far, in
// [0, 1].
func (r *RewardFunction) Progress() float64 {
	return r.line.Progress(r.cursor)
}

// MaxStepReward returns the largest reward a single Update can pay.
func (r *RewardFunction) MaxStepReward() float64 {
	return float64(r.maxForward) * r.pointReward
}

// Reset rewinds the cursor to the start of the centerline and clears
// the stall counters.
func (r *RewardFunction) Reset() {
	r.ResetAt(0)
}

// ResetAt rewinds the cursor to centerline index i and clears the
// stall counters. Episodes that start partway along the track reset
// here so that points behind the car pay nothing.
func (r *RewardFunction) ResetAt(i int) {
	if i < 0 || i >= r.line.Len() {
		panic(fmt.Sprintf("resetAt: index out of range \n\twant(0 <= i "+
			"< %v) \n\thave(%v)", r.line.Len(), i))
	}
	r.cursor = i
	r.noProgress = 0
	r.steps = 0
}
