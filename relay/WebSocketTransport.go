package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

// wsPath is the endpoint upgraded to a WebSocket on the listener's
// HTTP server
const wsPath = "/relay"

// wsTransport carries frames over WebSocket connections, one binary
// message per frame
type wsTransport struct{}

func (wsTransport) String() string { return string(WebSocket) }

func (wsTransport) Listen(_ context.Context, addr string) (Listener,
	error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen: %v", err)
	}

	l := &wsListener{
		ln:    ln,
		conns: make(chan Conn),
		done:  make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1 << 16,
			WriteBufferSize: 1 << 16,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(wsPath, l.upgrade)
	l.server = &http.Server{Handler: mux}

	go func() {
		err := l.server.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Close()
		}
	}()

	return l, nil
}

func (wsTransport) Dial(ctx context.Context, addr string) (Conn, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: wsPath}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(),
		nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %v", err)
	}
	return newWSConn(conn), nil
}

type wsListener struct {
	ln       net.Listener
	server   *http.Server
	upgrader websocket.Upgrader

	conns chan Conn

	once sync.Once
	done chan struct{}
}

// upgrade turns an HTTP request into a frame connection and hands it
// to Accept
func (l *wsListener) upgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	select {
	case l.conns <- newWSConn(conn):
	case <-l.done:
		conn.Close()
	}
}

func (l *wsListener) Accept() (Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, ErrConnectionClosed
	}
}

func (l *wsListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return l.server.Close()
}

func (l *wsListener) Addr() string { return l.ln.Addr().String() }

// wsConn frames a WebSocket connection, one binary message per frame
type wsConn struct {
	conn *websocket.Conn

	wmu sync.Mutex
}

func newWSConn(conn *websocket.Conn) *wsConn {
	conn.SetReadLimit(MaxFrameSize + headerLen)
	return &wsConn{conn: conn}
}

func (c *wsConn) ReadFrame() (Frame, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return Frame{}, err
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		var f Frame
		if err := f.UnmarshalBinary(data); err != nil {
			return Frame{}, err
		}
		return f, nil
	}
}

func (c *wsConn) WriteFrame(f Frame) error {
	data, err := f.MarshalBinary()
	if err != nil {
		return err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("writeFrame: %v", err)
	}
	return nil
}

func (c *wsConn) Close() error { return c.conn.Close() }

func (c *wsConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }
