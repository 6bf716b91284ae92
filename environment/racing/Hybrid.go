package racing

import (
	"fmt"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/trackrl/environment"
	ts "github.com/samuelfneumann/trackrl/timestep"
	"github.com/samuelfneumann/trackrl/track"
)

// NumGears is the number of gears in the fixed gearbox table.
const NumGears int = 5

// gearSpeeds holds the lower speed bound of each gear, in metres per
// second. The car shifts up as soon as its speed crosses the next
// bound.
var gearSpeeds = [NumGears]float64{0, 4, 8, 12, 16}

// Camera shades
var (
	cameraBackground = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	cameraWallShade  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	cameraCarShade   = color.RGBA{R: 128, G: 128, B: 128, A: 255}
)

// hybrid implements the camera observation variant of the track
// racing environment. Observations are vectors consisting of the
// following features in the following order:
//
//	1. The car's speed as a fraction of MaxSpeed
//	   Bounds: [0, 1]
//	2. The current gear
//	   Bounds: [1, NumGears]
//	3. The engine rpm as a fraction of the redline
//	   Bounds: [0, 1]
//	4. The fraction of the track completed, only present when the
//	   environment was constructed with trackProgress
//	   Bounds: [0, 1]
//	5. A flattened cameraSize x cameraSize grayscale top-down camera
//	   frame centered on the car and rotated so the car points up,
//	   row by row
//	   Bounds: [0, 1] per pixel
//
// Gear and rpm are derived from the car's speed through the fixed
// gearbox table gearSpeeds.
type hybrid struct {
	*base
	cameraSize int
	dc         *gg.Context
	segments   [][2]track.Point
}

// NewHybridContinuous returns a track racing environment with hybrid
// camera observations and continuous [steer, throttle] actions.
func NewHybridContinuous(line *track.Centerline, width float64,
	task environment.Task, discount float64, cameraSize int,
	trackProgress bool) (environment.Environment, ts.TimeStep, error) {
	h, err := newHybrid(line, width, task, discount, cameraSize,
		trackProgress)
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("newHybridContinuous: %v", err)
	}

	env := &Continuous{h}
	return env, env.Reset(), nil
}

// NewHybridDiscrete returns a track racing environment with hybrid
// camera observations and the 9 discrete arrow-press actions.
func NewHybridDiscrete(line *track.Centerline, width float64,
	task environment.Task, discount float64, cameraSize int,
	trackProgress bool) (environment.Environment, ts.TimeStep, error) {
	h, err := newHybrid(line, width, task, discount, cameraSize,
		trackProgress)
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("newHybridDiscrete: %v", err)
	}

	env := &Discrete{h}
	return env, env.Reset(), nil
}

func newHybrid(line *track.Centerline, width float64,
	task environment.Task, discount float64, cameraSize int,
	trackProgress bool) (*hybrid, error) {
	if cameraSize < 8 {
		return nil, fmt.Errorf("camera too small \n\twant(>= 8) "+
			"\n\thave(%v)", cameraSize)
	}

	b, err := newBase(line, width, task, discount, trackProgress)
	if err != nil {
		return nil, err
	}

	h := &hybrid{
		base:       b,
		cameraSize: cameraSize,
		dc:         gg.NewContext(cameraSize, cameraSize),
		segments:   trackSegments(line, width),
	}
	b.obs = h
	return h, nil
}

// Scalars returns the number of scalar features that prefix the
// camera frame in each observation
func (h *hybrid) Scalars() int {
	if h.trackProgress {
		return 4
	}
	return 3
}

// Frame returns the dimensions of the camera frame
func (h *hybrid) Frame() (int, int) {
	return h.cameraSize, h.cameraSize
}

func (h *hybrid) obsLen() int {
	return h.Scalars() + h.cameraSize*h.cameraSize
}

// observe builds the hybrid observation for the car's current state
func (h *hybrid) observe() *mat.VecDense {
	obs := make([]float64, 0, h.obsLen())

	gear, rpm := drivetrain(h.rawSpeed())
	obs = append(obs, h.Speed(), gear, rpm)
	if h.trackProgress {
		obs = append(obs, h.taskProgress())
	}
	obs = append(obs, h.renderCamera()...)

	if len(obs) != h.obsLen() {
		panic(fmt.Sprintf("observe: illegal number of state observations "+
			"\n\twant(%v) \n\thave(%v)", h.obsLen(), len(obs)))
	}
	return mat.NewVecDense(len(obs), obs)
}

// drivetrain returns the gear and normalized engine rpm implied by
// speed through the fixed gearbox table
func drivetrain(speed float64) (gear, rpm float64) {
	g := 0
	for i := range gearSpeeds {
		if speed >= gearSpeeds[i] {
			g = i
		}
	}

	low := gearSpeeds[g]
	high := MaxSpeed
	if g < NumGears-1 {
		high = gearSpeeds[g+1]
	}

	rpm = (speed - low) / (high - low)
	if rpm > 1 {
		rpm = 1
	}
	return float64(g + 1), rpm
}

// renderCamera rasterizes a grayscale top-down view centered on the
// car, rotated so the car points up, and returns the pixels row by
// row in [0, 1]
func (h *hybrid) renderCamera() []float64 {
	size := h.cameraSize
	dc := h.dc

	dc.SetColor(cameraBackground)
	dc.Clear()

	pos := h.Position()
	rot := math.Pi/2 - h.Heading()
	cosr, sinr := math.Cos(rot), math.Sin(rot)
	ppm := float64(size) / CameraViewSpan
	half := float64(size) / 2

	toPixel := func(p track.Point) (float64, float64) {
		relX, relY := p.X-pos.X, p.Y-pos.Y
		camX := relX*cosr - relY*sinr
		camY := relX*sinr + relY*cosr
		return half + camX*ppm, half - camY*ppm
	}

	// Walls within camera range
	dc.ClearPath()
	dc.SetColor(cameraWallShade)
	dc.SetLineWidth(2.0)
	for _, seg := range h.segments {
		if !nearCamera(seg, pos, CameraViewSpan) {
			continue
		}
		x1, y1 := toPixel(seg[0])
		x2, y2 := toPixel(seg[1])
		dc.DrawLine(x1, y1, x2, y2)
	}
	dc.Stroke()

	// The car sits at the centre pointing up
	dc.ClearPath()
	dc.SetColor(cameraCarShade)
	dc.DrawRectangle(half-CarWidth/2*ppm, half-CarLength/2*ppm,
		CarWidth*ppm, CarLength*ppm)
	dc.Fill()

	img := dc.Image()
	pixels := make([]float64, 0, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			gray := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			pixels = append(pixels, float64(gray.Y)/255)
		}
	}
	return pixels
}

// nearCamera returns whether either end of a segment sits within span
// metres of the camera centre
func nearCamera(seg [2]track.Point, pos track.Point, span float64) bool {
	for _, p := range seg {
		if math.Abs(p.X-pos.X) <= span && math.Abs(p.Y-pos.Y) <= span {
			return true
		}
	}
	return false
}

// ObservationSpec returns the observation specification of the
// environment
func (h *hybrid) ObservationSpec() environment.Spec {
	n := h.obsLen()
	lowerBound := make([]float64, n)
	upperBound := make([]float64, n)

	i := 0
	lowerBound[i], upperBound[i] = 0, 1 // speed
	i++
	lowerBound[i], upperBound[i] = 1, float64(NumGears) // gear
	i++
	lowerBound[i], upperBound[i] = 0, 1 // rpm
	i++
	if h.trackProgress {
		lowerBound[i], upperBound[i] = 0, 1
		i++
	}
	for ; i < n; i++ {
		lowerBound[i], upperBound[i] = 0, 1 // pixels
	}

	return environment.NewSpec(mat.NewVecDense(n, nil),
		environment.Observation, mat.NewVecDense(n, lowerBound),
		mat.NewVecDense(n, upperBound), environment.Continuous)
}

func (h *hybrid) String() string {
	pos := h.car.GetPosition()
	gear, rpm := drivetrain(h.rawSpeed())
	return fmt.Sprintf("Hybrid Track Race  |  Position: (%.2f, %.2f)  |  "+
		"Speed: %.2f  |  Gear: %v  |  RPM: %.2f", pos.X, pos.Y,
		h.rawSpeed(), gear, rpm)
}
