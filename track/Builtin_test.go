package track

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestBuiltin(t *testing.T) {
	for _, name := range []string{"oval", "hairpin"} {
		line, err := Builtin(name)
		if err != nil {
			t.Errorf("track %v: %v", name, err)
			continue
		}
		if line.Len() < 2 {
			t.Errorf("track %v: too few points: %v", name, line.Len())
		}
	}

	if _, err := Builtin("mulholland"); err == nil {
		t.Error("unknown builtin track did not error")
	}
}

func TestOvalSpacing(t *testing.T) {
	spacing := 0.5
	line := Oval(40, 25, spacing)

	pts := line.Points()
	for i := 1; i < len(pts); i++ {
		d := dist(pts[i-1], pts[i])
		if d > 2*spacing || d == 0 {
			t.Errorf("segment %v has spacing %v, requested %v", i, d,
				spacing)
		}
	}
}

func TestHairpinGeometry(t *testing.T) {
	line := Hairpin(60, 12, 0.5)

	if line.Closed() {
		t.Error("hairpin should be an open track")
	}

	start, end := line.PointAt(0), line.PointAt(line.Len()-1)
	if start.X != 0 || start.Y != 0 {
		t.Errorf("unexpected start point \n\twant(%v) \n\thave(%v)",
			Point{}, start)
	}
	if math.Abs(end.X) > 1e-9 || math.Abs(end.Y-24) > 1e-9 {
		t.Errorf("unexpected end point \n\twant(%v) \n\thave(%v)",
			Point{X: 0, Y: 24}, end)
	}

	// Out, around the half circle, and back
	want := 60 + math.Pi*12 + 60
	if math.Abs(line.Length()-want) > want*0.05 {
		t.Errorf("unexpected length \n\twant(~%v) \n\thave(%v)", want,
			line.Length())
	}
}

func TestRenderTrack(t *testing.T) {
	line := Oval(40, 25, 0.5)
	path := filepath.Join(t.TempDir(), "oval.png")

	if err := RenderTrack(line, 6, path); err != nil {
		t.Fatalf("could not render track: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("rendered image missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("rendered image is empty")
	}
}

func TestRenderRun(t *testing.T) {
	line := Hairpin(60, 12, 0.5)
	trajectory := line.Points()[:40]
	path := filepath.Join(t.TempDir(), "run.png")

	if err := RenderRun(line, 6, trajectory, path); err != nil {
		t.Fatalf("could not render run: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("rendered image missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("rendered image is empty")
	}
}
