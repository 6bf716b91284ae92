// Package racing implements simulated top-down track racing
// environments. A track is a Centerline widened into left and right
// walls inside a Box2D world; the agent drives a car along the
// corridor and is rewarded for passing centerline points.
//
// Two observation variants are provided. Lidar observes the car's
// speed and a fan of raycast distance beams, the simplified
// observation space used in place of camera images. Hybrid observes
// speed, gear, and engine rpm along with a grayscale top-down camera
// frame. Both come with continuous and discrete action interfaces.
package racing

import (
	"fmt"
	"math"
	"time"

	"github.com/ByteArena/box2d"
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/trackrl/environment"
	ts "github.com/samuelfneumann/trackrl/timestep"
	"github.com/samuelfneumann/trackrl/track"
	"github.com/samuelfneumann/trackrl/utils/floatutils"
)

const (
	// FPS is the number of simulation frames per second. Each call to
	// Step advances the world by 1/FPS seconds.
	FPS float64 = 20

	// Physics solver iterations per step
	velocityIterations int = 8
	positionIterations int = 3

	// Car geometry and handling. The car is a box accelerated by a
	// forward drive force and rotated by a steering torque; lateral
	// velocity is damped each step so the car corners instead of
	// sliding like a puck.
	CarLength      float64 = 3.0 // metres
	CarWidth       float64 = 1.6 // metres
	CarDensity     float64 = 1.0
	CarFriction    float64 = 0.2
	DriveForce     float64 = 60.0 // newtons at full throttle
	SteerTorque    float64 = 30.0 // newton-metres at full lock
	LateralGrip    float64 = 0.9  // fraction of lateral speed killed per step
	LinearDamping  float64 = 0.6
	AngularDamping float64 = 3.0

	// MaxSpeed is the top speed of the car in metres per second.
	// Observed speeds are normalized by this value.
	MaxSpeed float64 = 20.0

	// ReverseMaxSpeed is the top speed when driving backward.
	ReverseMaxSpeed float64 = 10.0

	// TrackWidth is the default distance between the track walls.
	TrackWidth float64 = 6.0

	WallFriction float64 = 0.4

	// Lidar beam fan
	DefaultNumBeams int     = 19
	LidarRange      float64 = 30.0    // metres
	ForwardArc      float64 = math.Pi // radians covered by the beam fan

	// Hybrid camera
	DefaultCameraSize int     = 64
	CameraViewSpan    float64 = 40.0 // metres covered by a camera frame

	// Continuous actions are [steer, throttle], each in
	// [MinContinuousAction, MaxContinuousAction]
	ActionDims          int     = 2
	MinContinuousAction float64 = -1.0
	MaxContinuousAction float64 = 1.0

	// Discrete actions enumerate the 9 steer and throttle
	// combinations
	MinDiscreteAction int = 0
	MaxDiscreteAction int = 8
)

// observer builds the observation vector for one environment variant
// after each physics step
type observer interface {
	observe() *mat.VecDense
}

// racer is a track environment missing only its action interface. The
// Continuous and Discrete wrappers in this package supply one.
type racer interface {
	environment.Task
	fmt.Stringer
	Car

	Reset() ts.TimeStep
	ObservationSpec() environment.Spec
	DiscountSpec() environment.Spec
	CurrentTimeStep() ts.TimeStep
	Benchmarks() environment.BenchmarkStats

	// Scalars returns the number of scalar features that prefix the
	// frame portion of each observation
	Scalars() int

	// Frame returns the width and height of the frame portion of
	// each observation
	Frame() (width, height int)

	step(action *mat.VecDense, steer, throttle float64) (ts.TimeStep,
		bool, error)
}

// Car reports the car's kinematic state on the track plane. Both
// action variants of every track environment implement it, which lets
// hand-written controllers and track recorders follow the car without
// decoding observations.
type Car interface {
	// Position returns the car's position on the track plane
	Position() track.Point

	// Heading returns the car's heading in radians
	Heading() float64

	// Speed returns the car's speed as a fraction of MaxSpeed
	Speed() float64
}

// base implements the physics common to all track racing
// environments: the Box2D world, the walls built from a centerline,
// the car, and wall-contact detection. It does not construct
// observations; the Lidar and Hybrid variants each embed a base and
// supply an observer for their observation space.
//
// base does not implement environment.Environment on its own.
type base struct {
	environment.Task

	world box2d.B2World
	walls *box2d.B2Body
	car   *box2d.B2Body

	line  *track.Centerline
	width float64

	wallContact   bool
	trackProgress bool
	obs           observer

	discount float64
	lastStep ts.TimeStep

	// Observation capture timings
	obsCount       int
	obsSum         float64 // seconds
	obsSumSq       float64
	obsMin, obsMax time.Duration
}

// newBase returns a base environment for the track defined by line
// and width. When trackProgress is true, observations carry the
// fraction of the track completed as an extra scalar feature.
func newBase(line *track.Centerline, width float64, task environment.Task,
	discount float64, trackProgress bool) (*base, error) {
	if line == nil {
		return nil, fmt.Errorf("newBase: no centerline given")
	}
	if width <= 0 {
		return nil, fmt.Errorf("newBase: track width must be positive "+
			"\n\twant(> 0) \n\thave(%v)", width)
	}

	b := &base{
		line:          line,
		width:         width,
		discount:      discount,
		trackProgress: trackProgress,
	}

	// Top-down world, so no gravity
	b.world = box2d.MakeB2World(box2d.MakeB2Vec2(0, 0))
	b.buildWalls()
	b.buildCar()
	b.world.SetContactListener(newContactDetector(b))

	if t, ok := task.(raceTask); ok {
		t.registerEnv(b)
	}
	b.Task = task

	return b, nil
}

// buildWalls creates the static wall body, one edge fixture per wall
// segment
func (b *base) buildWalls() {
	def := box2d.NewB2BodyDef()
	def.Type = 0 // Static body
	b.walls = b.world.CreateBody(def)

	for _, seg := range trackSegments(b.line, b.width) {
		b.addWallEdge(seg[0], seg[1])
	}
}

// trackSegments returns the full wall geometry of a track: both
// offset walls plus, for open tracks, caps closing the corridor. Caps
// sit two car lengths beyond the track's ends so the car has room at
// the start and the finish.
func trackSegments(line *track.Centerline, width float64) [][2]track.Point {
	left, right := track.Walls(line, width)

	segments := make([][2]track.Point, 0, 2*len(left)+6)
	for _, side := range [][]track.Point{left, right} {
		for i := 0; i < len(side)-1; i++ {
			segments = append(segments, [2]track.Point{side[i], side[i+1]})
		}
	}

	if !line.Closed() {
		last := len(left) - 1
		segments = append(segments,
			capSegments(left[0], right[0], line.Heading(0), -1)...)
		segments = append(segments,
			capSegments(left[last], right[last],
				line.Heading(line.Len()-1), 1)...)
	}
	return segments
}

// capSegments closes one open end of the corridor between wall
// endpoints l and r: two short side extensions along the local
// heading and a cross piece joining them. The direction argument is
// -1 to extend behind the start and 1 to extend beyond the end.
func capSegments(l, r track.Point, heading,
	direction float64) [][2]track.Point {
	offset := 2 * CarLength
	dx := direction * offset * math.Cos(heading)
	dy := direction * offset * math.Sin(heading)

	lCap := track.Point{X: l.X + dx, Y: l.Y + dy}
	rCap := track.Point{X: r.X + dx, Y: r.Y + dy}

	return [][2]track.Point{{l, lCap}, {r, rCap}, {lCap, rCap}}
}

// addWallEdge attaches a single wall segment to the wall body
func (b *base) addWallEdge(p1, p2 track.Point) {
	edge := box2d.NewB2EdgeShape()
	edge.Set(box2d.MakeB2Vec2(p1.X, p1.Y), box2d.MakeB2Vec2(p2.X, p2.Y))

	fix := box2d.MakeB2FixtureDef()
	fix.Shape = edge
	fix.Density = 0.0
	fix.Friction = WallFriction
	b.walls.CreateFixtureFromDef(&fix)
}

// buildCar creates the car body at the start of the centerline
func (b *base) buildCar() {
	start := b.line.PointAt(0)

	def := box2d.NewB2BodyDef()
	def.Type = 2 // Dynamic body
	def.Position = box2d.MakeB2Vec2(start.X, start.Y)
	def.Angle = b.line.Heading(0)
	def.LinearDamping = LinearDamping
	def.AngularDamping = AngularDamping

	b.car = b.world.CreateBody(def)

	shape := box2d.NewB2PolygonShape()
	shape.SetAsBox(CarLength/2, CarWidth/2)

	fix := box2d.MakeB2FixtureDef()
	fix.Shape = shape
	fix.Density = CarDensity
	fix.Friction = CarFriction
	fix.Restitution = 0.1
	b.car.CreateFixtureFromDef(&fix)
}

// Reset resets the environment, placing the car on the centerline at
// the fraction of the track drawn from the Starter, facing along the
// direction of travel. The physics world is reused between episodes.
func (b *base) Reset() ts.TimeStep {
	start := b.Start()
	if start.Len() != 1 {
		panic(fmt.Sprintf("reset: starting state should be the fraction "+
			"of track completed \n\twant(len 1) \n\thave(len %v)",
			start.Len()))
	}

	fraction := floatutils.Clip(start.AtVec(0), 0, 1)
	index := int(fraction * float64(b.line.Len()-1))

	pos := b.line.PointAt(index)
	b.car.SetTransform(box2d.MakeB2Vec2(pos.X, pos.Y), b.line.Heading(index))
	b.car.SetLinearVelocity(box2d.MakeB2Vec2(0, 0))
	b.car.SetAngularVelocity(0)
	b.wallContact = false

	if t, ok := b.Task.(raceTask); ok {
		t.reset(index)
	}

	state := b.timedObserve()
	firstStep := ts.New(ts.First, 0, b.discount, state, 0)
	b.lastStep = firstStep

	return firstStep
}

// step drives the car with the given controls, advances the physics,
// and produces the next TimeStep. The caller has already decoded and
// clipped the action into steer and throttle.
func (b *base) step(action *mat.VecDense, steer,
	throttle float64) (ts.TimeStep, bool, error) {
	if b.lastStep.Last() {
		return ts.TimeStep{}, true, fmt.Errorf("step: cannot step "+
			"terminated episode, call Reset \n\tlast step: %v", b.lastStep)
	}

	b.drive(steer, throttle)
	b.world.Step(1.0/FPS, velocityIterations, positionIterations)

	state := b.timedObserve()
	reward := b.GetReward(b.lastStep.Observation, action, state)

	nextStep := ts.New(ts.Mid, reward, b.discount, state,
		b.lastStep.Number+1)
	b.End(&nextStep)

	b.lastStep = nextStep
	return nextStep, nextStep.Last(), nil
}

// drive applies the drive force, steering torque, and lateral slip
// damping for one frame
func (b *base) drive(steer, throttle float64) {
	forward := b.car.GetWorldVector(box2d.MakeB2Vec2(1, 0))
	vel := b.car.GetLinearVelocity()
	forwardSpeed := forward.X*vel.X + forward.Y*vel.Y

	// Drive force, cut once the car is at top speed
	if (throttle > 0 && forwardSpeed < MaxSpeed) ||
		(throttle < 0 && forwardSpeed > -ReverseMaxSpeed) {
		force := box2d.MakeB2Vec2(forward.X*throttle*DriveForce,
			forward.Y*throttle*DriveForce)
		b.car.ApplyForceToCenter(force, true)
	}

	// Steering torque scales with speed so a standing car cannot spin
	speedFactor := floatutils.Clip(math.Abs(forwardSpeed)/MaxSpeed, 0, 1)
	b.car.ApplyTorque(steer*SteerTorque*speedFactor, true)

	// Kill most of the lateral velocity to mimic tyre grip
	lateral := b.car.GetWorldVector(box2d.MakeB2Vec2(0, 1))
	lateralSpeed := lateral.X*vel.X + lateral.Y*vel.Y
	impulse := box2d.MakeB2Vec2(
		-lateral.X*lateralSpeed*LateralGrip*b.car.GetMass(),
		-lateral.Y*lateralSpeed*LateralGrip*b.car.GetMass(),
	)
	b.car.ApplyLinearImpulse(impulse, b.car.GetWorldCenter(), true)
}

// timedObserve builds the next observation while recording how long
// the capture took
func (b *base) timedObserve() *mat.VecDense {
	begin := time.Now()
	state := b.obs.observe()
	elapsed := time.Since(begin)

	seconds := elapsed.Seconds()
	b.obsCount++
	b.obsSum += seconds
	b.obsSumSq += seconds * seconds
	if b.obsCount == 1 || elapsed < b.obsMin {
		b.obsMin = elapsed
	}
	if elapsed > b.obsMax {
		b.obsMax = elapsed
	}

	return state
}

// Benchmarks returns summary statistics of the environment's
// observation capture times
func (b *base) Benchmarks() environment.BenchmarkStats {
	if b.obsCount == 0 {
		return environment.BenchmarkStats{}
	}

	mean := b.obsSum / float64(b.obsCount)
	variance := b.obsSumSq/float64(b.obsCount) - mean*mean
	if variance < 0 {
		variance = 0
	}

	return environment.BenchmarkStats{
		Samples: b.obsCount,
		Mean:    time.Duration(mean * float64(time.Second)),
		StdDev:  time.Duration(math.Sqrt(variance) * float64(time.Second)),
		Min:     b.obsMin,
		Max:     b.obsMax,
	}
}

// DiscountSpec returns the discounting specification of the
// environment
func (b *base) DiscountSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	bound := mat.NewVecDense(1, []float64{b.discount})

	return environment.NewSpec(shape, environment.Discount, bound, bound,
		environment.Continuous)
}

// CurrentTimeStep returns the last TimeStep of the environment
func (b *base) CurrentTimeStep() ts.TimeStep {
	return b.lastStep
}

// Speed returns the car's speed as a fraction of MaxSpeed, in [0, 1]
func (b *base) Speed() float64 {
	return floatutils.Clip(b.rawSpeed()/MaxSpeed, 0, 1)
}

// rawSpeed returns the car's speed in metres per second
func (b *base) rawSpeed() float64 {
	vel := b.car.GetLinearVelocity()
	return math.Hypot(vel.X, vel.Y)
}

// Position returns the car's position on the track plane
func (b *base) Position() track.Point {
	pos := b.car.GetPosition()
	return track.Point{X: pos.X, Y: pos.Y}
}

// Heading returns the car's heading in radians
func (b *base) Heading() float64 {
	return b.car.GetAngle()
}

// taskProgress returns the fraction of the track completed according
// to the Task, or 0 when the Task does not track progress
func (b *base) taskProgress() float64 {
	if t, ok := b.Task.(raceTask); ok {
		return t.progress()
	}
	return 0
}

func (b *base) String() string {
	pos := b.car.GetPosition()
	return fmt.Sprintf("Track Race  |  Position: (%.2f, %.2f)  |  "+
		"Speed: %.2f", pos.X, pos.Y, b.rawSpeed())
}

// contactDetector flags the car touching a wall. Wall contact does
// not end episodes; the Task decides what, if anything, it costs.
type contactDetector struct {
	env *base
}

func newContactDetector(e *base) *contactDetector {
	return &contactDetector{e}
}

func (c *contactDetector) BeginContact(contact box2d.B2ContactInterface) {
	if c.involvesCar(contact) {
		c.env.wallContact = true
	}
}

func (c *contactDetector) EndContact(contact box2d.B2ContactInterface) {
	if c.involvesCar(contact) {
		c.env.wallContact = false
	}
}

func (c *contactDetector) PreSolve(contact box2d.B2ContactInterface,
	oldManifold box2d.B2Manifold) {
}

func (c *contactDetector) PostSolve(contact box2d.B2ContactInterface,
	impulse *box2d.B2ContactImpulse) {
}

func (c *contactDetector) involvesCar(contact box2d.B2ContactInterface) bool {
	return c.env.car == contact.GetFixtureA().GetBody() ||
		c.env.car == contact.GetFixtureB().GetBody()
}
