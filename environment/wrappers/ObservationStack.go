package wrappers

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/trackrl/environment"
	"github.com/samuelfneumann/trackrl/timestep"
)

// Framed is an Environment whose observation vectors consist of a
// fixed prefix of scalar features followed by a flattened frame. The
// track racing environments are Framed: the LIDAR variant's frame is
// its beam fan, the hybrid variant's frame is its camera image.
type Framed interface {
	environment.Environment

	// Scalars returns the number of scalar features that prefix the
	// frame portion of each observation
	Scalars() int

	// Frame returns the width and height of the frame portion of each
	// observation
	Frame() (width, height int)
}

// ObservationStack wraps a Framed environment so that observations
// carry a history of the last depth frames instead of only the
// newest one. Stacked observations consist of the environment's
// scalar features, current values only, followed by depth frames from
// oldest to newest:
//
//	[scalars..., frame_{t-depth+1}, ..., frame_{t-1}, frame_t]
//
// On reset the history is filled with the first frame, so the first
// observation holds depth copies of it.
//
// Frame histories let an agent infer velocities and other temporal
// structure that a single frame cannot show.
//
// ObservationStack itself implements the Framed interface. Frame()
// reports the dimensions of a single frame; Depth() reports how many
// of them each observation holds.
type ObservationStack struct {
	Framed
	depth    int
	scalars  int
	frameLen int

	// history holds the last depth frames, oldest first
	history  []float64
	lastStep timestep.TimeStep
}

// NewObservationStack wraps env so that its observations carry the
// last depth frames. The wrapped environment is reset, and the first
// stacked timestep is returned.
func NewObservationStack(env Framed, depth int) (*ObservationStack,
	timestep.TimeStep, error) {
	if depth < 1 {
		return nil, timestep.TimeStep{}, fmt.Errorf("newObservationStack: "+
			"stack depth must be positive \n\twant(>= 1) \n\thave(%v)", depth)
	}

	w, h := env.Frame()
	if w*h < 1 {
		return nil, timestep.TimeStep{}, fmt.Errorf("newObservationStack: "+
			"environment has no frame to stack \n\thave(%v x %v)", w, h)
	}

	s := &ObservationStack{
		Framed:   env,
		depth:    depth,
		scalars:  env.Scalars(),
		frameLen: w * h,
		history:  make([]float64, depth*w*h),
	}

	return s, s.Reset(), nil
}

// Depth returns the number of frames in each stacked observation
func (s *ObservationStack) Depth() int {
	return s.depth
}

// Reset resets the wrapped environment and fills the frame history
// with the episode's first frame
func (s *ObservationStack) Reset() timestep.TimeStep {
	step := s.Framed.Reset()

	frame := s.currentFrame(step.Observation)
	for i := 0; i < s.depth; i++ {
		copy(s.history[i*s.frameLen:(i+1)*s.frameLen], frame)
	}

	step.Observation = s.stackedObs(step.Observation)
	s.lastStep = step
	return step
}

// Step takes one environmental step given action a and returns the
// next stacked timestep and whether it is the last in the episode
func (s *ObservationStack) Step(a *mat.VecDense) (timestep.TimeStep, bool,
	error) {
	step, done, err := s.Framed.Step(a)
	if err != nil {
		return step, done, err
	}

	// Shift the history left one frame and append the new frame
	copy(s.history, s.history[s.frameLen:])
	copy(s.history[(s.depth-1)*s.frameLen:],
		s.currentFrame(step.Observation))

	step.Observation = s.stackedObs(step.Observation)
	s.lastStep = step
	return step, done, nil
}

// CurrentTimeStep returns the last stacked TimeStep of the environment
func (s *ObservationStack) CurrentTimeStep() timestep.TimeStep {
	return s.lastStep
}

// currentFrame returns the frame portion of an unstacked observation
func (s *ObservationStack) currentFrame(obs *mat.VecDense) []float64 {
	if obs.Len() != s.scalars+s.frameLen {
		panic(fmt.Sprintf("currentFrame: illegal observation length "+
			"\n\twant(%v) \n\thave(%v)", s.scalars+s.frameLen, obs.Len()))
	}

	frame := make([]float64, s.frameLen)
	for i := range frame {
		frame[i] = obs.AtVec(s.scalars + i)
	}
	return frame
}

// stackedObs builds the stacked observation from an unstacked one and
// the current frame history
func (s *ObservationStack) stackedObs(obs *mat.VecDense) *mat.VecDense {
	stacked := make([]float64, 0, s.scalars+len(s.history))
	for i := 0; i < s.scalars; i++ {
		stacked = append(stacked, obs.AtVec(i))
	}
	stacked = append(stacked, s.history...)
	return mat.NewVecDense(len(stacked), stacked)
}

// ObservationSpec returns the observation specification of the
// environment. The scalar bounds are kept once; the frame bounds are
// repeated for each frame in the stack.
func (s *ObservationStack) ObservationSpec() environment.Spec {
	inner := s.Framed.ObservationSpec()

	n := s.scalars + s.depth*s.frameLen
	lowerBound := make([]float64, 0, n)
	upperBound := make([]float64, 0, n)

	for i := 0; i < s.scalars; i++ {
		lowerBound = append(lowerBound, inner.LowerBound.AtVec(i))
		upperBound = append(upperBound, inner.UpperBound.AtVec(i))
	}
	for i := 0; i < s.depth; i++ {
		for j := s.scalars; j < s.scalars+s.frameLen; j++ {
			lowerBound = append(lowerBound, inner.LowerBound.AtVec(j))
			upperBound = append(upperBound, inner.UpperBound.AtVec(j))
		}
	}

	return environment.NewSpec(mat.NewVecDense(n, nil),
		environment.Observation, mat.NewVecDense(n, lowerBound),
		mat.NewVecDense(n, upperBound), inner.Cardinality)
}

// String returns a string representation of the ObservationStack
// environment
func (s *ObservationStack) String() string {
	return fmt.Sprintf("Observation Stack (depth %v): %v", s.depth, s.Framed)
}
