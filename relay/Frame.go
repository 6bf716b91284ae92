package relay

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Wire format of one frame: a fixed header followed by the payload.
//
//	Kind     uint8
//	Flags    uint8
//	Length   uint32 (payload bytes, big endian)
//	Checksum uint64 (xxhash of the payload, big endian)
//	Payload  Length bytes of gob
const headerLen = 1 + 1 + 4 + 8

// MaxFrameSize bounds the payload of a single frame. Sample batches
// carry encoded camera frames, so the bound is generous.
const MaxFrameSize = 512 << 20

var (
	ErrChecksumMismatch = errors.New("frame checksum mismatch")
	ErrFrameTooLarge    = errors.New("frame payload too large")
	ErrConnectionClosed = errors.New("connection is closed")
	ErrNotConnected     = errors.New("client is not connected")
)

// Flags carried in a frame header
const (
	// FlagBroadcast marks a frame pushed by the server on its own
	// initiative rather than in reply to a request
	FlagBroadcast uint8 = 1 << iota
)

// Frame is one message on the wire: a kind, header flags, and an
// opaque gob payload
type Frame struct {
	Kind    Kind
	Flags   uint8
	Payload []byte
}

// Broadcast returns whether the frame was pushed by the server rather
// than sent in reply to a request
func (f Frame) Broadcast() bool { return f.Flags&FlagBroadcast != 0 }

// MarshalBinary encodes the frame into its wire format
func (f Frame) MarshalBinary() ([]byte, error) {
	if len(f.Payload) > MaxFrameSize {
		return nil, fmt.Errorf("marshalBinary: %w: %v bytes",
			ErrFrameTooLarge, len(f.Payload))
	}

	data := make([]byte, headerLen+len(f.Payload))
	data[0] = byte(f.Kind)
	data[1] = f.Flags
	binary.BigEndian.PutUint32(data[2:6], uint32(len(f.Payload)))
	binary.BigEndian.PutUint64(data[6:14], xxhash.Sum64(f.Payload))
	copy(data[headerLen:], f.Payload)
	return data, nil
}

// UnmarshalBinary decodes a frame from its wire format, verifying the
// payload checksum
func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) < headerLen {
		return fmt.Errorf("unmarshalBinary: frame shorter than its "+
			"header \n\twant(>=%v) \n\thave(%v)", headerLen, len(data))
	}

	length := binary.BigEndian.Uint32(data[2:6])
	if length > MaxFrameSize {
		return fmt.Errorf("unmarshalBinary: %w: %v bytes",
			ErrFrameTooLarge, length)
	}
	if uint32(len(data)-headerLen) != length {
		return fmt.Errorf("unmarshalBinary: frame length mismatch "+
			"\n\twant(%v) \n\thave(%v)", length, len(data)-headerLen)
	}

	payload := make([]byte, length)
	copy(payload, data[headerLen:])

	checksum := binary.BigEndian.Uint64(data[6:14])
	if xxhash.Sum64(payload) != checksum {
		return fmt.Errorf("unmarshalBinary: %w", ErrChecksumMismatch)
	}

	f.Kind = Kind(data[0])
	f.Flags = data[1]
	f.Payload = payload
	return nil
}

// header is the parsed fixed-size prefix of a frame, used by
// stream transports that read the payload separately
type header struct {
	kind     Kind
	flags    uint8
	length   uint32
	checksum uint64
}

func parseHeader(data []byte) (header, error) {
	if len(data) != headerLen {
		return header{}, fmt.Errorf("parseHeader: illegal header length "+
			"\n\twant(%v) \n\thave(%v)", headerLen, len(data))
	}

	h := header{
		kind:     Kind(data[0]),
		flags:    data[1],
		length:   binary.BigEndian.Uint32(data[2:6]),
		checksum: binary.BigEndian.Uint64(data[6:14]),
	}
	if h.length > MaxFrameSize {
		return header{}, fmt.Errorf("parseHeader: %w: %v bytes",
			ErrFrameTooLarge, h.length)
	}
	return h, nil
}

// verify checks a payload against the header's checksum
func (h header) verify(payload []byte) error {
	if xxhash.Sum64(payload) != h.checksum {
		return fmt.Errorf("verify: %w", ErrChecksumMismatch)
	}
	return nil
}
