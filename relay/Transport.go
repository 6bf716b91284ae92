package relay

import (
	"context"
	"fmt"
)

// Conn is a message-oriented connection carrying frames. ReadFrame and
// WriteFrame may be called from different goroutines; concurrent
// WriteFrame calls are serialized by the connection.
type Conn interface {
	ReadFrame() (Frame, error)
	WriteFrame(Frame) error
	Close() error
	RemoteAddr() string
}

// Listener accepts frame connections
type Listener interface {
	Accept() (Conn, error)
	Close() error

	// Addr returns the listener's bound address
	Addr() string
}

// Transport provides a way of carrying frames between endpoints. Two
// transports are available: raw TCP and WebSocket.
type Transport interface {
	Listen(ctx context.Context, addr string) (Listener, error)
	Dial(ctx context.Context, addr string) (Conn, error)
	fmt.Stringer
}

// TransportType selects a Transport implementation
type TransportType string

const (
	TCP       TransportType = "tcp"
	WebSocket TransportType = "websocket"
)

// NewTransport returns the transport named by t
func NewTransport(t TransportType) (Transport, error) {
	switch t {
	case TCP:
		return tcpTransport{}, nil
	case WebSocket:
		return wsTransport{}, nil
	}
	return nil, fmt.Errorf("newTransport: no such transport type: %v", t)
}
