package track

import (
	"fmt"
	"math"
)

// Builtin returns one of the built-in centerlines by name. The
// current builtins are "oval", a closed loop, and "hairpin", an open
// out-and-back track with a single 180 degree turn.
func Builtin(name string) (*Centerline, error) {
	switch name {
	case "oval":
		return Oval(40, 25, DefaultMinSpacing), nil
	case "hairpin":
		return Hairpin(60, 12, DefaultMinSpacing), nil
	default:
		return nil, fmt.Errorf("builtin: no such track: %v", name)
	}
}

// Oval returns a closed oval centerline with x radius rx and y radius
// ry, sampled roughly every spacing metres. The start sits at (rx, 0)
// heading counterclockwise.
func Oval(rx, ry, spacing float64) *Centerline {
	// Ramanujan's circumference approximation fixes the sample count
	h := (rx - ry) * (rx - ry) / ((rx + ry) * (rx + ry))
	circumference := math.Pi * (rx + ry) *
		(1 + 3*h/(10+math.Sqrt(4-3*h)))

	n := int(math.Ceil(circumference / spacing))
	if n < 8 {
		n = 8
	}

	pts := make([]Point, 0, n+1)
	for i := 0; i < n; i++ {
		theta := 2 * math.Pi * float64(i) / float64(n)
		pts = append(pts, Point{
			X: rx * math.Cos(theta),
			Y: ry * math.Sin(theta),
		})
	}
	pts = append(pts, pts[0])

	line, err := New(pts)
	if err != nil {
		panic(fmt.Sprintf("oval: %v", err))
	}
	return line
}

// Hairpin returns an open centerline that runs straight for length
// metres, turns 180 degrees around a half circle of the given radius,
// and runs straight back, sampled roughly every spacing metres. The
// start sits at the origin heading along the positive x axis.
func Hairpin(length, radius, spacing float64) *Centerline {
	pts := make([]Point, 0)

	// Outbound straight
	for x := 0.0; x < length; x += spacing {
		pts = append(pts, Point{X: x, Y: 0})
	}

	// Half circle centered at (length, radius)
	n := int(math.Ceil(math.Pi * radius / spacing))
	if n < 4 {
		n = 4
	}
	for i := 0; i <= n; i++ {
		theta := -math.Pi/2 + math.Pi*float64(i)/float64(n)
		pts = append(pts, Point{
			X: length + radius*math.Cos(theta),
			Y: radius + radius*math.Sin(theta),
		})
	}

	// Return straight
	for x := length - spacing; x > 0; x -= spacing {
		pts = append(pts, Point{X: x, Y: 2 * radius})
	}
	pts = append(pts, Point{X: 0, Y: 2 * radius})

	line, err := New(pts)
	if err != nil {
		panic(fmt.Sprintf("hairpin: %v", err))
	}
	return line
}
