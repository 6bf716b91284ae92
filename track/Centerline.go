// Package track implements track geometry for simulated racing:
// centerlines of ordered points, progress-based reward functions,
// trajectory recording, and PNG rendering of tracks and runs.
package track

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/spatial/r2"
)

// Point is a position on the track plane, measured in metres.
type Point = r2.Vec

// closedTolerance is the largest distance between the first and last
// points of a centerline for the track to count as a closed loop.
const closedTolerance float64 = 1e-6

// Centerline is an ordered sequence of points tracing the middle of a
// track from start to finish. Consecutive points should be roughly
// evenly spaced; a Recorder produces such sequences from driven
// trajectories, and Oval and Hairpin generate them analytically.
type Centerline struct {
	points []Point
	cum    []float64 // cumulative arc length up to each point
}

// New returns a new Centerline through the given points. At least two
// points are required.
func New(points []Point) (*Centerline, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("new: centerline needs at least 2 points "+
			"\n\twant(>= 2) \n\thave(%v)", len(points))
	}

	pts := make([]Point, len(points))
	copy(pts, points)

	cum := make([]float64, len(pts))
	for i := 1; i < len(pts); i++ {
		cum[i] = cum[i-1] + dist(pts[i-1], pts[i])
	}

	return &Centerline{pts, cum}, nil
}

// dist returns the Euclidean distance between two points.
func dist(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Len returns the number of points on the centerline.
func (c *Centerline) Len() int {
	return len(c.points)
}

// Length returns the total arc length of the centerline in metres.
func (c *Centerline) Length() float64 {
	return c.cum[len(c.cum)-1]
}

// PointAt returns the point at index i on the centerline.
func (c *Centerline) PointAt(i int) Point {
	return c.points[i]
}

// Points returns a copy of the centerline's points.
func (c *Centerline) Points() []Point {
	pts := make([]Point, len(c.points))
	copy(pts, c.points)
	return pts
}

// Heading returns the direction of travel at point i, measured in
// radians counterclockwise from the positive x axis.
func (c *Centerline) Heading(i int) float64 {
	if i < 0 {
		i = 0
	}
	if i > len(c.points)-2 {
		i = len(c.points) - 2
	}
	from, to := c.points[i], c.points[i+1]
	return math.Atan2(to.Y-from.Y, to.X-from.X)
}

// Progress returns the fraction of the centerline passed at point i,
// from 0 at the first point to 1 at the last.
func (c *Centerline) Progress(i int) float64 {
	if i <= 0 {
		return 0
	}
	if i >= len(c.points)-1 {
		return 1
	}
	return float64(i) / float64(len(c.points)-1)
}

// Closest returns the index of the point nearest pos among the window
// points starting at index from, along with the distance to it. The
// scan never runs past the end of the centerline.
func (c *Centerline) Closest(pos Point, from, window int) (int, float64) {
	if from < 0 {
		from = 0
	}
	if from > len(c.points)-1 {
		from = len(c.points) - 1
	}
	last := from + window
	if last > len(c.points)-1 {
		last = len(c.points) - 1
	}

	best, bestDist := from, dist(pos, c.points[from])
	for i := from + 1; i <= last; i++ {
		if d := dist(pos, c.points[i]); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

// Closed returns whether the centerline forms a closed loop, that is,
// whether its first and last points coincide.
func (c *Centerline) Closed() bool {
	return dist(c.points[0], c.points[len(c.points)-1]) < closedTolerance
}

// Walls returns the left and right wall polylines obtained by
// offsetting the centerline by half of width on each side. Left is
// relative to the direction of travel.
func Walls(line *Centerline, width float64) (left, right []Point) {
	pts := line.points
	half := width / 2

	left = make([]Point, len(pts))
	right = make([]Point, len(pts))
	for i := range pts {
		nx, ny := normalAt(pts, i, line.Closed())
		left[i] = Point{X: pts[i].X + nx*half, Y: pts[i].Y + ny*half}
		right[i] = Point{X: pts[i].X - nx*half, Y: pts[i].Y - ny*half}
	}
	return left, right
}

// normalAt returns the unit normal of the polyline at index i,
// pointing to the left of the direction of travel. Closed polylines
// wrap their tangent around the seam so that both endpoints share a
// normal.
func normalAt(pts []Point, i int, closed bool) (float64, float64) {
	var tx, ty float64
	switch {
	case closed && (i == 0 || i == len(pts)-1):
		tx = pts[1].X - pts[len(pts)-2].X
		ty = pts[1].Y - pts[len(pts)-2].Y
	case i == 0:
		tx = pts[1].X - pts[0].X
		ty = pts[1].Y - pts[0].Y
	case i == len(pts)-1:
		tx = pts[i].X - pts[i-1].X
		ty = pts[i].Y - pts[i-1].Y
	default:
		tx = pts[i+1].X - pts[i-1].X
		ty = pts[i+1].Y - pts[i-1].Y
	}

	norm := math.Hypot(tx, ty)
	if norm == 0 {
		return 0, 0
	}
	// The unit tangent rotated a quarter turn counterclockwise
	return -ty / norm, tx / norm
}

// centerlineGob is the gob wire form of a Centerline. Arc lengths are
// recomputed on decode.
type centerlineGob struct {
	Points []Point
}

// GobEncode implements the gob.GobEncoder interface.
func (c *Centerline) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(centerlineGob{Points: c.points}); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode points: %v", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. Decoding a
// centerline with fewer than two points is an error.
func (c *Centerline) GobDecode(data []byte) error {
	dec := gob.NewDecoder(bytes.NewReader(data))

	var wire centerlineGob
	if err := dec.Decode(&wire); err != nil {
		return fmt.Errorf("gobdecode: could not decode points: %v", err)
	}

	line, err := New(wire.Points)
	if err != nil {
		return fmt.Errorf("gobdecode: %v", err)
	}
	*c = *line
	return nil
}

// Save writes the centerline to path as a gob file.
func (c *Centerline) Save(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save: could not create file: %v", err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(c); err != nil {
		return fmt.Errorf("save: could not encode centerline: %v", err)
	}
	return nil
}

// Load reads a centerline saved by Save.
func Load(path string) (*Centerline, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load: could not open file: %v", err)
	}
	defer file.Close()

	c := &Centerline{}
	if err := gob.NewDecoder(file).Decode(c); err != nil {
		return nil, fmt.Errorf("load: could not decode centerline: %v", err)
	}
	return c, nil
}
