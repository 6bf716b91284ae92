package relay

import (
	"errors"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/trackrl/agent"
)

func TestFrameRoundTrip(t *testing.T) {
	in := Frame{
		Kind:    KindPushSamples,
		Flags:   FlagBroadcast,
		Payload: []byte{1, 2, 3, 4, 5},
	}

	data, err := in.MarshalBinary()
	if err != nil {
		t.Fatalf("could not marshal frame: %v", err)
	}
	if len(data) != headerLen+len(in.Payload) {
		t.Errorf("wire frame has %v bytes, want %v", len(data),
			headerLen+len(in.Payload))
	}

	var out Frame
	if err := out.UnmarshalBinary(data); err != nil {
		t.Fatalf("could not unmarshal frame: %v", err)
	}
	if out.Kind != in.Kind {
		t.Errorf("kind is %v, want %v", out.Kind, in.Kind)
	}
	if !out.Broadcast() {
		t.Error("broadcast flag lost on the wire")
	}
	if string(out.Payload) != string(in.Payload) {
		t.Errorf("payload is %v, want %v", out.Payload, in.Payload)
	}
}

func TestFrameEmptyPayload(t *testing.T) {
	in := Frame{Kind: KindPing}

	data, err := in.MarshalBinary()
	if err != nil {
		t.Fatalf("could not marshal frame: %v", err)
	}

	var out Frame
	if err := out.UnmarshalBinary(data); err != nil {
		t.Fatalf("could not unmarshal frame: %v", err)
	}
	if out.Kind != KindPing {
		t.Errorf("kind is %v, want %v", out.Kind, KindPing)
	}
	if len(out.Payload) != 0 {
		t.Errorf("payload has %v bytes, want 0", len(out.Payload))
	}
}

func TestFrameChecksumMismatch(t *testing.T) {
	in := Frame{Kind: KindSampleSet, Payload: []byte{1, 2, 3}}
	data, err := in.MarshalBinary()
	if err != nil {
		t.Fatalf("could not marshal frame: %v", err)
	}

	// Corrupt one payload byte
	data[headerLen] ^= 0xFF

	var out Frame
	err = out.UnmarshalBinary(data)
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("corrupted payload produced %v, want %v", err,
			ErrChecksumMismatch)
	}
}

func TestFrameTruncated(t *testing.T) {
	in := Frame{Kind: KindSampleSet, Payload: []byte{1, 2, 3}}
	data, err := in.MarshalBinary()
	if err != nil {
		t.Fatalf("could not marshal frame: %v", err)
	}

	var out Frame
	if err := out.UnmarshalBinary(data[:len(data)-1]); err == nil {
		t.Error("truncated frame should not unmarshal")
	}
	if err := out.UnmarshalBinary(data[:headerLen-1]); err == nil {
		t.Error("frame shorter than its header should not unmarshal")
	}
}

func TestNewFramePayloadRoundTrip(t *testing.T) {
	f, err := newFrame(KindHello, 0, Hello{
		Role:    RoleWorker,
		Version: ProtocolVersion,
	})
	if err != nil {
		t.Fatalf("could not build frame: %v", err)
	}

	var hello Hello
	if err := decodePayload(f, KindHello, &hello); err != nil {
		t.Fatalf("could not decode payload: %v", err)
	}
	if hello.Role != RoleWorker {
		t.Errorf("role is %v, want %v", hello.Role, RoleWorker)
	}
	if hello.Version != ProtocolVersion {
		t.Errorf("version is %v, want %v", hello.Version, ProtocolVersion)
	}

	// Decoding as the wrong kind is rejected
	if err := decodePayload(f, KindHelloAck, &HelloAck{}); err == nil {
		t.Error("decoding the wrong kind should error")
	}
}

func TestWeightsBlobRoundTrip(t *testing.T) {
	in := agent.Weights{
		"mean":   mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6}),
		"critic": mat.NewDense(1, 3, []float64{-1, 0, 1}),
	}

	blob, err := EncodeWeights(in)
	if err != nil {
		t.Fatalf("could not encode weights: %v", err)
	}
	out, err := DecodeWeights(blob)
	if err != nil {
		t.Fatalf("could not decode weights: %v", err)
	}

	if len(out) != len(in) {
		t.Fatalf("decoded %v weight matrices, want %v", len(out), len(in))
	}
	for name, matrix := range in {
		decoded, ok := out[name]
		if !ok {
			t.Fatalf("decoded weights are missing %q", name)
		}
		if !mat.Equal(matrix, decoded) {
			t.Errorf("weights %q do not round trip", name)
		}
	}
}
