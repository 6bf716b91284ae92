package relay

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/google/uuid"

	"github.com/samuelfneumann/trackrl/agent"
	"github.com/samuelfneumann/trackrl/buffer"
)

// ProtocolVersion is declared in the handshake. Endpoints speaking a
// different version are rejected.
const ProtocolVersion uint8 = 1

// Kind identifies the message a frame carries
type Kind uint8

const (
	KindHello Kind = iota + 1
	KindHelloAck
	KindPushSamples
	KindSamplesAck
	KindPullSamples
	KindSampleSet
	KindPushWeights
	KindWeightsAck
	KindPullWeights
	KindWeightSet
	KindPing
	KindPong
)

func (k Kind) String() string {
	switch k {
	case KindHello:
		return "Hello"
	case KindHelloAck:
		return "HelloAck"
	case KindPushSamples:
		return "PushSamples"
	case KindSamplesAck:
		return "SamplesAck"
	case KindPullSamples:
		return "PullSamples"
	case KindSampleSet:
		return "SampleSet"
	case KindPushWeights:
		return "PushWeights"
	case KindWeightsAck:
		return "WeightsAck"
	case KindPullWeights:
		return "PullWeights"
	case KindWeightSet:
		return "WeightSet"
	case KindPing:
		return "Ping"
	case KindPong:
		return "Pong"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Role declares what an endpoint does: workers push samples and adopt
// weight broadcasts, the trainer drains samples and pushes weights
type Role uint8

const (
	RoleWorker Role = iota + 1
	RoleTrainer
)

func (r Role) String() string {
	switch r {
	case RoleWorker:
		return "worker"
	case RoleTrainer:
		return "trainer"
	}
	return fmt.Sprintf("Role(%d)", uint8(r))
}

// Hello opens every connection
type Hello struct {
	Role    Role
	Version uint8
}

// HelloAck accepts or rejects a Hello. On acceptance ID is the identity
// the server assigned to the connection.
type HelloAck struct {
	ID     uuid.UUID
	OK     bool
	Reason string
}

// PushSamples carries a worker's drained sample batch to the server
type PushSamples struct {
	Samples []buffer.Sample
}

// SamplesAck confirms how many samples the server queued
type SamplesAck struct {
	Received int
}

// SampleSet answers a PullSamples with everything queued since the
// last drain, in push order
type SampleSet struct {
	Samples []buffer.Sample
}

// PushWeights carries the trainer's encoded weights to the server. The
// server treats the blob as opaque bytes; only endpoints decode it.
type PushWeights struct {
	Blob []byte
}

// WeightsAck confirms a weight push with the version the server
// assigned to it
type WeightsAck struct {
	Version uint64
}

// WeightSet delivers the latest weights, either broadcast after a push
// or in reply to a PullWeights. Version 0 with a nil Blob means nothing
// has been pushed yet.
type WeightSet struct {
	Version uint64
	Blob    []byte
}

// newFrame gob-encodes payload into a frame of the given kind. A nil
// payload produces an empty frame for kinds that carry no data.
func newFrame(kind Kind, flags uint8, payload interface{}) (Frame, error) {
	f := Frame{Kind: kind, Flags: flags}
	if payload == nil {
		return f, nil
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
		return Frame{}, fmt.Errorf("newFrame: could not encode %v payload: "+
			"%v", kind, err)
	}
	f.Payload = buf.Bytes()
	return f, nil
}

// decodePayload gob-decodes a frame's payload into out, checking that
// the frame is of the expected kind
func decodePayload(f Frame, kind Kind, out interface{}) error {
	if f.Kind != kind {
		return fmt.Errorf("decodePayload: unexpected frame kind "+
			"\n\twant(%v) \n\thave(%v)", kind, f.Kind)
	}
	dec := gob.NewDecoder(bytes.NewReader(f.Payload))
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decodePayload: could not decode %v payload: %v",
			kind, err)
	}
	return nil
}

// EncodeWeights encodes agent weights into the opaque blob shipped in
// PushWeights and WeightSet frames
func EncodeWeights(weights agent.Weights) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(weights); err != nil {
		return nil, fmt.Errorf("encodeWeights: %v", err)
	}
	return buf.Bytes(), nil
}

// DecodeWeights decodes a blob produced by EncodeWeights
func DecodeWeights(blob []byte) (agent.Weights, error) {
	var weights agent.Weights
	dec := gob.NewDecoder(bytes.NewReader(blob))
	if err := dec.Decode(&weights); err != nil {
		return nil, fmt.Errorf("decodeWeights: %v", err)
	}
	return weights, nil
}
