package relay

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
)

// tcpTransport carries frames over raw TCP connections, each frame
// length-delimited by its header
type tcpTransport struct{}

func (tcpTransport) String() string { return string(TCP) }

func (tcpTransport) Listen(_ context.Context, addr string) (Listener,
	error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen: %v", err)
	}
	return &tcpListener{ln: ln}, nil
}

func (tcpTransport) Dial(ctx context.Context, addr string) (Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %v", err)
	}
	return newTCPConn(conn), nil
}

type tcpListener struct {
	ln net.Listener
}

func (l *tcpListener) Accept() (Conn, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return newTCPConn(conn), nil
}

func (l *tcpListener) Close() error { return l.ln.Close() }

func (l *tcpListener) Addr() string { return l.ln.Addr().String() }

// tcpConn frames a TCP byte stream. Reads are buffered; writes are
// serialized so replies and broadcasts can come from different
// goroutines.
type tcpConn struct {
	conn net.Conn
	br   *bufio.Reader

	wmu sync.Mutex
}

func newTCPConn(conn net.Conn) *tcpConn {
	return &tcpConn{
		conn: conn,
		br:   bufio.NewReaderSize(conn, 1<<16),
	}
}

func (c *tcpConn) ReadFrame() (Frame, error) {
	head := make([]byte, headerLen)
	if _, err := io.ReadFull(c.br, head); err != nil {
		return Frame{}, err
	}
	h, err := parseHeader(head)
	if err != nil {
		return Frame{}, err
	}

	payload := make([]byte, h.length)
	if _, err := io.ReadFull(c.br, payload); err != nil {
		return Frame{}, fmt.Errorf("readFrame: short payload: %v", err)
	}
	if err := h.verify(payload); err != nil {
		return Frame{}, err
	}

	return Frame{Kind: h.kind, Flags: h.flags, Payload: payload}, nil
}

func (c *tcpConn) WriteFrame(f Frame) error {
	data, err := f.MarshalBinary()
	if err != nil {
		return err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("writeFrame: %v", err)
	}
	return nil
}

func (c *tcpConn) Close() error { return c.conn.Close() }

func (c *tcpConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }
