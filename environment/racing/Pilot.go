package racing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/trackrl/track"
	"github.com/samuelfneumann/trackrl/utils/floatutils"
)

// Pilot driving parameters.
const (
	// DefaultLookahead is the number of centerline points ahead of the
	// car that a Pilot aims at.
	DefaultLookahead int = 8

	// DefaultCruiseSpeed is a Pilot's target speed as a fraction of
	// MaxSpeed.
	DefaultCruiseSpeed float64 = 0.3

	// fullLockError is the heading error, in radians, at which a Pilot
	// steers at full lock.
	fullLockError float64 = math.Pi / 4

	// pilotWindow is the number of centerline points scanned forward
	// of the cursor when locating the car.
	pilotWindow int = 20
)

// Pilot is a hand-written pure pursuit controller that drives the car
// along a track's centerline: it aims at a point a few centerline
// points ahead of the car and throttles up to a cruise speed, coasting
// above it. Pilots know nothing about walls; they exist to record
// centerlines and to sanity check new tracks, not to set lap times.
type Pilot struct {
	car  Car
	line *track.Centerline

	lookahead   int
	cruiseSpeed float64

	cursor int
}

// NewPilot returns a Pilot driving car along line, aiming lookahead
// centerline points ahead of the car and cruising at cruiseSpeed, a
// fraction of MaxSpeed.
func NewPilot(car Car, line *track.Centerline, lookahead int,
	cruiseSpeed float64) (*Pilot, error) {
	if car == nil {
		return nil, fmt.Errorf("newPilot: no car given")
	}
	if line == nil {
		return nil, fmt.Errorf("newPilot: no centerline given")
	}
	if lookahead < 1 {
		return nil, fmt.Errorf("newPilot: lookahead must be positive "+
			"\n\twant(>= 1) \n\thave(%v)", lookahead)
	}
	if cruiseSpeed <= 0 || cruiseSpeed > 1 {
		return nil, fmt.Errorf("newPilot: cruise speed must be in (0, 1] "+
			"\n\thave(%v)", cruiseSpeed)
	}

	return &Pilot{
		car:         car,
		line:        line,
		lookahead:   lookahead,
		cruiseSpeed: cruiseSpeed,
	}, nil
}

// Reset rewinds the Pilot to the start of the centerline. Call it
// whenever the environment resets.
func (p *Pilot) Reset() {
	p.cursor = 0
}

// Act returns the [steer, throttle] action aiming the car at the
// centerline point lookahead points beyond its current position.
func (p *Pilot) Act() *mat.VecDense {
	pos := p.car.Position()

	// The cursor trails the car and never moves backward
	closest, _ := p.line.Closest(pos, p.cursor, pilotWindow)
	if closest > p.cursor {
		p.cursor = closest
	}

	target := p.cursor + p.lookahead
	if target > p.line.Len()-1 {
		target = p.line.Len() - 1
	}

	aim := p.line.PointAt(target)
	desired := math.Atan2(aim.Y-pos.Y, aim.X-pos.X)
	steer := floatutils.Clip(
		angleError(desired, p.car.Heading())/fullLockError,
		MinContinuousAction, MaxContinuousAction)

	throttle := MaxContinuousAction
	if p.car.Speed() >= p.cruiseSpeed {
		throttle = 0
	}

	return mat.NewVecDense(ActionDims, []float64{steer, throttle})
}

// angleError returns the signed difference desired - actual,
// normalized to [-π, π]
func angleError(desired, actual float64) float64 {
	diff := math.Mod(desired-actual+math.Pi, 2*math.Pi)
	if diff < 0 {
		diff += 2 * math.Pi
	}
	return diff - math.Pi
}
