package buffer

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/trackrl/timestep"
)

// Layout describes how an environment's observation vectors are laid
// out, so that compressors can strip histories from them. Observations
// consist of Scalars scalar features, then Frames stacked frames of
// FrameW x FrameH features each from oldest to newest, then Tail
// trailing action features:
//
//	[scalars..., frame_1, ..., frame_Frames, tail...]
//
// A plain unwrapped environment has Frames = 1 and Tail = 0.
type Layout struct {
	Scalars int
	FrameW  int
	FrameH  int
	Frames  int
	Tail    int
}

// FrameLen returns the number of features in a single frame
func (l Layout) FrameLen() int {
	return l.FrameW * l.FrameH
}

// Len returns the observation length the layout describes
func (l Layout) Len() int {
	return l.Scalars + l.Frames*l.FrameLen() + l.Tail
}

// Validate returns an error when the layout cannot describe any
// observation
func (l Layout) Validate() error {
	if l.Scalars < 0 || l.Tail < 0 {
		return fmt.Errorf("layout: negative feature counts \n\thave(%+v)", l)
	}
	if l.Frames < 1 || l.FrameLen() < 1 {
		return fmt.Errorf("layout: need at least one non-empty frame "+
			"\n\thave(%+v)", l)
	}
	return nil
}

// latestFrame returns the newest frame portion of an observation
func (l Layout) latestFrame(obs mat.Vector) []float64 {
	start := l.Scalars + (l.Frames-1)*l.FrameLen()
	frame := make([]float64, l.FrameLen())
	for i := range frame {
		frame[i] = obs.AtVec(start + i)
	}
	return frame
}

// scalars returns the scalar prefix of an observation
func (l Layout) scalars(obs mat.Vector) []float64 {
	scalars := make([]float64, l.Scalars)
	for i := range scalars {
		scalars[i] = obs.AtVec(i)
	}
	return scalars
}

// A Compressor turns one environmental step into a compact Sample.
// The action argument is the action that produced the step, so the
// sample stores the action next to the observation that followed it.
type Compressor interface {
	Compress(action mat.Vector, step timestep.TimeStep) (Sample, error)
}

// LidarCompressor compresses steps from the LIDAR track environments.
// It keeps the scalar features and only the newest beam frame; frame
// histories and action tails are dropped and rebuilt trainer-side.
type LidarCompressor struct {
	layout   Layout
	crcDebug bool
}

// NewLidarCompressor returns a compressor for LIDAR observations laid
// out per layout. When crcDebug is true each sample carries an
// end-to-end checksum, which the trainer's memory verifies.
func NewLidarCompressor(layout Layout, crcDebug bool) (*LidarCompressor,
	error) {
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("newLidarCompressor: %v", err)
	}
	return &LidarCompressor{layout: layout, crcDebug: crcDebug}, nil
}

// Compress implements the Compressor interface
func (l *LidarCompressor) Compress(action mat.Vector,
	step timestep.TimeStep) (Sample, error) {
	if step.Observation.Len() != l.layout.Len() {
		return Sample{}, fmt.Errorf("compress: illegal observation length "+
			"\n\twant(%v) \n\thave(%v)", l.layout.Len(),
			step.Observation.Len())
	}

	act := vecSlice(action)
	scalars := l.layout.scalars(step.Observation)
	frame := l.layout.latestFrame(step.Observation)

	s := Sample{
		Action: act,
		Obs: ObsParts{
			Scalars: scalars,
			Frame:   frame,
			FrameW:  l.layout.FrameW,
			FrameH:  l.layout.FrameH,
		},
		Reward: step.Reward,
		Done:   step.Last(),
	}
	if l.crcDebug {
		s.CRC = CRC(act, scalars, frame, s.Reward, s.Done)
	}
	return s, nil
}

// FrameCompressor compresses steps from the camera track environments.
// It keeps the scalar features and PNG-compresses the newest camera
// frame; frame histories and action tails are dropped and rebuilt
// trainer-side.
type FrameCompressor struct {
	layout   Layout
	crcDebug bool
}

// NewFrameCompressor returns a compressor for camera observations laid
// out per layout. When crcDebug is true each sample carries an
// end-to-end checksum over the quantized frame, which the trainer's
// memory verifies after decoding.
func NewFrameCompressor(layout Layout, crcDebug bool) (*FrameCompressor,
	error) {
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("newFrameCompressor: %v", err)
	}
	return &FrameCompressor{layout: layout, crcDebug: crcDebug}, nil
}

// Compress implements the Compressor interface
func (f *FrameCompressor) Compress(action mat.Vector,
	step timestep.TimeStep) (Sample, error) {
	if step.Observation.Len() != f.layout.Len() {
		return Sample{}, fmt.Errorf("compress: illegal observation length "+
			"\n\twant(%v) \n\thave(%v)", f.layout.Len(),
			step.Observation.Len())
	}

	act := vecSlice(action)
	scalars := f.layout.scalars(step.Observation)
	frame := f.layout.latestFrame(step.Observation)

	encoded, err := EncodeFrame(frame, f.layout.FrameW, f.layout.FrameH)
	if err != nil {
		return Sample{}, fmt.Errorf("compress: %v", err)
	}

	s := Sample{
		Action: act,
		Obs: ObsParts{
			Scalars: scalars,
			Encoded: encoded,
			FrameW:  f.layout.FrameW,
			FrameH:  f.layout.FrameH,
		},
		Reward: step.Reward,
		Done:   step.Last(),
	}
	if f.crcDebug {
		s.CRC = CRC(act, scalars, Quantize(frame), s.Reward, s.Done)
	}
	return s, nil
}

// vecSlice copies a vector into a fresh slice
func vecSlice(v mat.Vector) []float64 {
	if v == nil {
		return nil
	}
	data := make([]float64, v.Len())
	for i := range data {
		data[i] = v.AtVec(i)
	}
	return data
}
