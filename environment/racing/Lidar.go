package racing

import (
	"fmt"
	"math"

	"github.com/ByteArena/box2d"
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/trackrl/environment"
	ts "github.com/samuelfneumann/trackrl/timestep"
	"github.com/samuelfneumann/trackrl/track"
)

// lidar implements the LIDAR observation variant of the track racing
// environment. Observations are vectors consisting of the following
// features in the following order:
//
//	1. The car's speed as a fraction of MaxSpeed
//	   Bounds: [0, 1]
//	2. The fraction of the track completed, only present when the
//	   environment was constructed with trackProgress
//	   Bounds: [0, 1]
//	3. numBeams raycast distances to the nearest wall, fanned evenly
//	   across ForwardArc radians centered on the car's heading
//	   Bounds: [0, LidarRange]; beams that hit nothing report
//	   LidarRange
type lidar struct {
	*base
	numBeams int
}

// NewLidarContinuous returns a track racing environment with LIDAR
// observations and continuous [steer, throttle] actions. The track is
// the corridor of the given width around line.
func NewLidarContinuous(line *track.Centerline, width float64,
	task environment.Task, discount float64, numBeams int,
	trackProgress bool) (environment.Environment, ts.TimeStep, error) {
	l, err := newLidar(line, width, task, discount, numBeams,
		trackProgress)
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("newLidarContinuous: %v", err)
	}

	env := &Continuous{l}
	return env, env.Reset(), nil
}

// NewLidarDiscrete returns a track racing environment with LIDAR
// observations and the 9 discrete arrow-press actions.
func NewLidarDiscrete(line *track.Centerline, width float64,
	task environment.Task, discount float64, numBeams int,
	trackProgress bool) (environment.Environment, ts.TimeStep, error) {
	l, err := newLidar(line, width, task, discount, numBeams,
		trackProgress)
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("newLidarDiscrete: %v", err)
	}

	env := &Discrete{l}
	return env, env.Reset(), nil
}

func newLidar(line *track.Centerline, width float64,
	task environment.Task, discount float64, numBeams int,
	trackProgress bool) (*lidar, error) {
	if numBeams < 1 {
		return nil, fmt.Errorf("need at least 1 beam \n\twant(>= 1) "+
			"\n\thave(%v)", numBeams)
	}

	b, err := newBase(line, width, task, discount, trackProgress)
	if err != nil {
		return nil, err
	}

	l := &lidar{base: b, numBeams: numBeams}
	b.obs = l
	return l, nil
}

// Scalars returns the number of scalar features that prefix the beam
// portion of each observation
func (l *lidar) Scalars() int {
	if l.trackProgress {
		return 2
	}
	return 1
}

// Frame returns the dimensions of the beam portion of each
// observation
func (l *lidar) Frame() (int, int) {
	return l.numBeams, 1
}

func (l *lidar) obsLen() int {
	return l.Scalars() + l.numBeams
}

// observe builds the LIDAR observation for the car's current state
func (l *lidar) observe() *mat.VecDense {
	obs := make([]float64, 0, l.obsLen())
	obs = append(obs, l.Speed())
	if l.trackProgress {
		obs = append(obs, l.taskProgress())
	}

	pos := l.car.GetPosition()
	heading := l.car.GetAngle()
	for i := 0; i < l.numBeams; i++ {
		angle := heading
		if l.numBeams > 1 {
			angle += -ForwardArc/2 +
				ForwardArc*float64(i)/float64(l.numBeams-1)
		}
		obs = append(obs, l.rayDistance(pos, angle))
	}

	if len(obs) != l.obsLen() {
		panic(fmt.Sprintf("observe: illegal number of state observations "+
			"\n\twant(%v) \n\thave(%v)", l.obsLen(), len(obs)))
	}
	return mat.NewVecDense(len(obs), obs)
}

// rayDistance casts a single beam from the car and returns the
// distance to the nearest wall, or LidarRange if the beam escapes
func (l *lidar) rayDistance(from box2d.B2Vec2, angle float64) float64 {
	to := box2d.MakeB2Vec2(
		from.X+LidarRange*math.Cos(angle),
		from.Y+LidarRange*math.Sin(angle),
	)

	fraction := 1.0
	l.world.RayCast(func(fixture *box2d.B2Fixture, point box2d.B2Vec2,
		normal box2d.B2Vec2, hit float64) float64 {
		if fixture.GetBody() == l.car {
			return -1 // the beam passes through the car itself
		}
		if hit < fraction {
			fraction = hit
		}
		return hit
	}, from, to)

	return fraction * LidarRange
}

// ObservationSpec returns the observation specification of the
// environment
func (l *lidar) ObservationSpec() environment.Spec {
	n := l.obsLen()
	lowerBound := make([]float64, n)
	upperBound := make([]float64, n)

	for i := 0; i < l.Scalars(); i++ {
		upperBound[i] = 1
	}
	for i := l.Scalars(); i < n; i++ {
		upperBound[i] = LidarRange
	}

	return environment.NewSpec(mat.NewVecDense(n, nil),
		environment.Observation, mat.NewVecDense(n, lowerBound),
		mat.NewVecDense(n, upperBound), environment.Continuous)
}

func (l *lidar) String() string {
	pos := l.car.GetPosition()
	return fmt.Sprintf("Lidar Track Race  |  Position: (%.2f, %.2f)  |  "+
		"Speed: %.2f", pos.X, pos.Y, l.rawSpeed())
}
