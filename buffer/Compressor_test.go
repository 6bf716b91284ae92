package buffer

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	ts "github.com/samuelfneumann/trackrl/timestep"
)

// testLayout lays out observations with 2 scalars, two stacked 3 x 1
// frames, and a 2-element action tail
var testLayout = Layout{Scalars: 2, FrameW: 3, FrameH: 1, Frames: 2,
	Tail: 2}

// testObs is an observation matching testLayout. The newest frame is
// [20, 21, 22].
func testObs() *mat.VecDense {
	return mat.NewVecDense(10, []float64{
		1, 2, // scalars
		10, 11, 12, // oldest frame
		20, 21, 22, // newest frame
		30, 31, // action tail
	})
}

func wantSlice(t *testing.T, name string, want, have []float64) {
	t.Helper()
	if len(want) != len(have) {
		t.Fatalf("unexpected %v length \n\twant(%v) \n\thave(%v)", name,
			len(want), len(have))
	}
	for i := range want {
		if math.Abs(want[i]-have[i]) > 1e-12 {
			t.Errorf("unexpected %v \n\twant(%v) \n\thave(%v)", name, want,
				have)
			return
		}
	}
}

func TestLidarCompressorKeepsLatestFrame(t *testing.T) {
	c, err := NewLidarCompressor(testLayout, false)
	if err != nil {
		t.Fatalf("could not create compressor: %v", err)
	}

	action := mat.NewVecDense(2, []float64{5, 6})
	step := ts.New(ts.Mid, 0.7, 1, testObs(), 3)

	s, err := c.Compress(action, step)
	if err != nil {
		t.Fatalf("could not compress: %v", err)
	}

	wantSlice(t, "action", []float64{5, 6}, s.Action)
	wantSlice(t, "scalars", []float64{1, 2}, s.Obs.Scalars)
	wantSlice(t, "frame", []float64{20, 21, 22}, s.Obs.Frame)
	if s.Obs.Encoded != nil {
		t.Error("lidar sample carries an encoded frame")
	}
	if s.Obs.FrameW != 3 || s.Obs.FrameH != 1 {
		t.Errorf("unexpected frame dimensions \n\twant(%v x %v) "+
			"\n\thave(%v x %v)", 3, 1, s.Obs.FrameW, s.Obs.FrameH)
	}
	if s.Reward != 0.7 {
		t.Errorf("unexpected reward \n\twant(%v) \n\thave(%v)", 0.7,
			s.Reward)
	}
	if s.Done {
		t.Error("mid-episode sample marked done")
	}
	if s.CRC != 0 {
		t.Errorf("checksum set with checksum debugging off \n\thave(%v)",
			s.CRC)
	}
}

func TestLidarCompressorMarksDone(t *testing.T) {
	c, err := NewLidarCompressor(testLayout, false)
	if err != nil {
		t.Fatalf("could not create compressor: %v", err)
	}

	step := ts.New(ts.Last, 1, 1, testObs(), 9)
	s, err := c.Compress(mat.NewVecDense(2, nil), step)
	if err != nil {
		t.Fatalf("could not compress: %v", err)
	}
	if !s.Done {
		t.Error("last step's sample not marked done")
	}
}

func TestLidarCompressorWrongObservationLength(t *testing.T) {
	c, err := NewLidarCompressor(testLayout, false)
	if err != nil {
		t.Fatalf("could not create compressor: %v", err)
	}

	step := ts.New(ts.Mid, 0, 1, mat.NewVecDense(5, nil), 0)
	if _, err := c.Compress(mat.NewVecDense(2, nil), step); err == nil {
		t.Error("wrong observation length did not error")
	}
}

func TestLidarCompressorCRC(t *testing.T) {
	c, err := NewLidarCompressor(testLayout, true)
	if err != nil {
		t.Fatalf("could not create compressor: %v", err)
	}

	action := mat.NewVecDense(2, []float64{5, 6})
	s, err := c.Compress(action, ts.New(ts.Mid, 0.7, 1, testObs(), 3))
	if err != nil {
		t.Fatalf("could not compress: %v", err)
	}

	if s.CRC == 0 {
		t.Fatal("checksum not set with checksum debugging on")
	}

	// The receiver recomputes the checksum from the sample's parts
	want := CRC(s.Action, s.Obs.Scalars, s.Obs.Frame, s.Reward, s.Done)
	if s.CRC != want {
		t.Errorf("checksum does not match its parts \n\twant(%v) "+
			"\n\thave(%v)", want, s.CRC)
	}

	// A different reward yields a different checksum
	other, err := c.Compress(action, ts.New(ts.Mid, 0.8, 1, testObs(), 3))
	if err != nil {
		t.Fatalf("could not compress: %v", err)
	}
	if other.CRC == s.CRC {
		t.Error("different samples share a checksum")
	}
}

func TestFrameCompressorRoundTrip(t *testing.T) {
	layout := Layout{Scalars: 1, FrameW: 4, FrameH: 2, Frames: 1}
	c, err := NewFrameCompressor(layout, true)
	if err != nil {
		t.Fatalf("could not create compressor: %v", err)
	}

	frame := []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9, 1, 0.33}
	obs := append([]float64{0.4}, frame...)
	step := ts.New(ts.Mid, 0.5, 1, mat.NewVecDense(len(obs), obs), 1)

	s, err := c.Compress(mat.NewVecDense(2, []float64{1, -1}), step)
	if err != nil {
		t.Fatalf("could not compress: %v", err)
	}

	if s.Obs.Frame != nil {
		t.Error("camera sample carries a raw frame")
	}
	if len(s.Obs.Encoded) == 0 {
		t.Fatal("camera sample carries no encoded frame")
	}

	decoded, w, h, err := DecodeFrame(s.Obs.Encoded)
	if err != nil {
		t.Fatalf("could not decode frame: %v", err)
	}
	if w != 4 || h != 2 {
		t.Errorf("unexpected frame dimensions \n\twant(%v x %v) "+
			"\n\thave(%v x %v)", 4, 2, w, h)
	}
	wantSlice(t, "frame", Quantize(frame), decoded)

	// The checksum must verify against the decoded frame
	want := CRC(s.Action, s.Obs.Scalars, decoded, s.Reward, s.Done)
	if s.CRC != want {
		t.Errorf("checksum does not survive the png round trip "+
			"\n\twant(%v) \n\thave(%v)", want, s.CRC)
	}
}

func TestQuantize(t *testing.T) {
	quantized := Quantize([]float64{-0.5, 0, 0.5, 1, 1.5})

	if quantized[0] != 0 || quantized[1] != 0 {
		t.Errorf("values at or below 0 should quantize to 0 \n\thave(%v)",
			quantized[:2])
	}
	if quantized[3] != 1 || quantized[4] != 1 {
		t.Errorf("values at or above 1 should quantize to 1 \n\thave(%v)",
			quantized[3:])
	}
	if want := 128.0 / 255; quantized[2] != want {
		t.Errorf("unexpected quantized value \n\twant(%v) \n\thave(%v)",
			want, quantized[2])
	}

	// Quantization is idempotent
	wantSlice(t, "quantized", quantized, Quantize(quantized))
}

func TestLayoutValidation(t *testing.T) {
	if _, err := NewLidarCompressor(Layout{Scalars: 1}, false); err == nil {
		t.Error("layout without frames did not error")
	}
	if _, err := NewFrameCompressor(Layout{Scalars: -1, FrameW: 2,
		FrameH: 2, Frames: 1}, false); err == nil {
		t.Error("layout with negative scalars did not error")
	}
}
