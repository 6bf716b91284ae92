// Package buffer implements rollout-side sample collection. Workers
// compress each environmental step into a compact Sample, batch the
// samples in a Buffer, and periodically ship the batch to the trainer,
// where a replay memory rebuilds full transitions.
//
// A Sample pairs an action with the observation that followed it. The
// pairing matters: observations are captured after their action is
// applied, so the observation is the environment's answer to the
// action, and training-side reconstruction relies on that ordering.
package buffer

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"image"
	"image/png"
	"math"

	"github.com/cespare/xxhash/v2"
)

// ObsParts is one observation split into its layout parts. Scalars
// always travel raw. For frame observations exactly one of Frame and
// Encoded is set: Frame carries raw features (LIDAR beams), Encoded
// carries a PNG-compressed grayscale camera frame.
type ObsParts struct {
	Scalars []float64
	Frame   []float64
	Encoded []byte
	FrameW  int
	FrameH  int
}

// Sample is one compressed environmental step: the action taken and
// the observation, reward, and episode-end flag that followed it.
// Histories (stacked frames, action tails) are stripped by the
// compressor; the trainer's memory rebuilds them from neighboring
// samples.
type Sample struct {
	Action []float64
	Obs    ObsParts
	Reward float64
	Done   bool

	// CRC is the end-to-end checksum of the sample's content, or 0
	// when checksum debugging is off
	CRC uint64
}

// crcPayload is the canonical content hashed into a Sample's CRC
type crcPayload struct {
	Action  []float64
	Scalars []float64
	Frame   []float64
	Reward  float64
	Done    bool
}

// CRC returns the checksum of a sample's canonical content. Camera
// frames must be passed in their quantized form (the values a PNG
// round-trip yields) so that the receiver can recompute the checksum
// after decoding.
func CRC(action, scalars, frame []float64, reward float64,
	done bool) uint64 {
	digest := xxhash.New()
	enc := gob.NewEncoder(digest)
	err := enc.Encode(crcPayload{
		Action:  action,
		Scalars: scalars,
		Frame:   frame,
		Reward:  reward,
		Done:    done,
	})
	if err != nil {
		// Encoding fixed concrete types cannot fail
		panic(fmt.Sprintf("crc: could not encode payload: %v", err))
	}
	return digest.Sum64()
}

// EncodeFrame compresses a frame of normalized grayscale features in
// [0, 1] into PNG bytes. Values are quantized to 8 bits; Quantize
// returns the values a decode will yield.
func EncodeFrame(frame []float64, w, h int) ([]byte, error) {
	if len(frame) != w*h {
		return nil, fmt.Errorf("encodeFrame: illegal frame length "+
			"\n\twant(%v) \n\thave(%v)", w*h, len(frame))
	}

	img := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range frame {
		img.Pix[i] = quantizeByte(v)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encodeFrame: could not encode png: %v", err)
	}
	return buf.Bytes(), nil
}

// DecodeFrame decompresses PNG bytes produced by EncodeFrame back into
// normalized grayscale features and the frame's dimensions
func DecodeFrame(data []byte) ([]float64, int, int, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decodeFrame: could not decode png: %v",
			err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	gray, ok := img.(*image.Gray)
	if !ok {
		return nil, 0, 0, fmt.Errorf("decodeFrame: not a grayscale frame "+
			"\n\thave(%T)", img)
	}

	frame := make([]float64, 0, w*h)
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+w]
		for _, p := range row {
			frame = append(frame, float64(p)/255)
		}
	}
	return frame, w, h, nil
}

// Quantize maps a frame through the 8-bit quantization a PNG
// round-trip applies, without encoding. Checksums of camera frames are
// computed over quantized values so both ends of the wire agree.
func Quantize(frame []float64) []float64 {
	quantized := make([]float64, len(frame))
	for i, v := range frame {
		quantized[i] = float64(quantizeByte(v)) / 255
	}
	return quantized
}

func quantizeByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Round(v * 255))
}
