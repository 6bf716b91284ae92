package track

import (
	"fmt"
	"image/color"
	"math"

	"github.com/fogleman/gg"
)

// Rendering parameters.
const (
	// pixelsPerMetre scales world coordinates to image coordinates.
	pixelsPerMetre float64 = 8.0

	// renderMargin is the padding, in metres, left around the track.
	renderMargin float64 = 4.0
)

// Rendering colours.
var (
	backgroundShade = color.RGBA{R: 30, G: 30, B: 30, A: 255}
	wallShade       = color.RGBA{R: 255, G: 166, B: 0, A: 255}
	centerShade     = color.RGBA{R: 110, G: 110, B: 110, A: 255}
	runShade        = color.RGBA{R: 128, G: 102, B: 230, A: 255}
	startShade      = color.RGBA{R: 77, G: 200, B: 77, A: 255}
)

// RenderTrack draws the track defined by line and its width to a PNG
// file at path.
func RenderTrack(line *Centerline, width float64, path string) error {
	dc, toPixel := trackContext(line, width)
	drawTrack(dc, toPixel, line, width)

	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("rendertrack: could not save image: %v", err)
	}
	return nil
}

// RenderRun draws the track and overlays a driven trajectory, saving
// the result to a PNG file at path.
func RenderRun(line *Centerline, width float64, trajectory []Point,
	path string) error {
	dc, toPixel := trackContext(line, width)
	drawTrack(dc, toPixel, line, width)
	drawPolyline(dc, toPixel, trajectory, runShade, 2.0)

	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("renderrun: could not save image: %v", err)
	}
	return nil
}

// trackContext returns a drawing context sized to fit line plus its
// walls, along with a mapping from world to pixel coordinates.
func trackContext(line *Centerline,
	width float64) (*gg.Context, func(Point) (float64, float64)) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range line.points {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	minX -= width/2 + renderMargin
	minY -= width/2 + renderMargin
	maxX += width/2 + renderMargin
	maxY += width/2 + renderMargin

	w := int(math.Ceil((maxX - minX) * pixelsPerMetre))
	h := int(math.Ceil((maxY - minY) * pixelsPerMetre))

	dc := gg.NewContext(w, h)
	dc.SetColor(backgroundShade)
	dc.Clear()

	// Image y runs downward, world y runs upward
	toPixel := func(p Point) (float64, float64) {
		x := (p.X - minX) * pixelsPerMetre
		y := float64(h) - (p.Y-minY)*pixelsPerMetre
		return x, y
	}
	return dc, toPixel
}

// drawTrack draws the walls, centerline, and start marker of a track.
func drawTrack(dc *gg.Context, toPixel func(Point) (float64, float64),
	line *Centerline, width float64) {
	left, right := Walls(line, width)
	drawPolyline(dc, toPixel, left, wallShade, 3.0)
	drawPolyline(dc, toPixel, right, wallShade, 3.0)
	drawPolyline(dc, toPixel, line.points, centerShade, 1.0)

	x, y := toPixel(line.points[0])
	dc.ClearPath()
	dc.SetColor(startShade)
	dc.DrawCircle(x, y, 4.0)
	dc.Fill()
}

// drawPolyline strokes pts as a connected line.
func drawPolyline(dc *gg.Context, toPixel func(Point) (float64, float64),
	pts []Point, shade color.Color, lineWidth float64) {
	if len(pts) < 2 {
		return
	}

	dc.ClearPath()
	dc.SetColor(shade)
	dc.SetLineWidth(lineWidth)
	for i := 0; i < len(pts)-1; i++ {
		x1, y1 := toPixel(pts[i])
		x2, y2 := toPixel(pts[i+1])
		dc.DrawLine(x1, y1, x2, y2)
	}
	dc.Stroke()
}
