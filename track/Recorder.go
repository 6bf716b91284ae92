package track

import "fmt"

// DefaultMinSpacing is the default distance, in metres, between
// consecutive recorded centerline points.
const DefaultMinSpacing float64 = 0.5

// Recorder builds a Centerline from a driven trajectory, keeping a
// point only once the car has moved at least MinSpacing metres from
// the last kept point. Driving a track once while recording produces
// the reward point sequence for that track.
type Recorder struct {
	minSpacing float64
	points     []Point
}

// NewRecorder returns a Recorder that keeps points at least
// minSpacing metres apart.
func NewRecorder(minSpacing float64) *Recorder {
	return &Recorder{minSpacing: minSpacing}
}

// Append offers pos to the recorder, returning whether it was kept.
func (r *Recorder) Append(pos Point) bool {
	if len(r.points) > 0 {
		last := r.points[len(r.points)-1]
		if dist(last, pos) < r.minSpacing {
			return false
		}
	}
	r.points = append(r.points, pos)
	return true
}

// Len returns the number of points kept so far.
func (r *Recorder) Len() int {
	return len(r.points)
}

// Snapshot returns the points recorded so far as a Centerline.
func (r *Recorder) Snapshot() (*Centerline, error) {
	line, err := New(r.points)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %v", err)
	}
	return line, nil
}
