// Package relay connects rollout workers to the trainer. Workers push
// compressed sample batches to a central server and receive weight
// broadcasts; the trainer drains the queued samples and pushes fresh
// weights. The server never interprets weights: it stores the latest
// encoded blob, stamps it with a monotonically increasing version, and
// fans it out.
//
// Frames travel over a pluggable Transport (raw TCP or WebSocket) and
// carry an xxhash checksum so corrupted payloads are detected at the
// receiving end.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/samuelfneumann/trackrl/buffer"
)

// DefaultMaxPendingSamples bounds the sample queue when no explicit
// bound is configured
const DefaultMaxPendingSamples = 100_000

// Server relays samples from workers to the trainer and weights from
// the trainer to workers
type Server struct {
	transport  Transport
	addr       string
	maxPending int
	log        *zap.Logger

	mu       sync.Mutex
	listener Listener
	pending  []buffer.Sample
	blob     []byte
	version  uint64
	workers  map[uuid.UUID]Conn
}

// NewServer creates a server relaying frames over the given transport.
// A maxPending of 0 or less falls back to DefaultMaxPendingSamples. A
// nil logger disables logging.
func NewServer(transport Transport, addr string, maxPending int,
	logger *zap.Logger) *Server {
	if maxPending <= 0 {
		maxPending = DefaultMaxPendingSamples
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		transport:  transport,
		addr:       addr,
		maxPending: maxPending,
		log:        logger,
		workers:    make(map[uuid.UUID]Conn),
	}
}

// Listen binds the server's listener without serving. Serve calls
// Listen when it was not called beforehand; calling it separately lets
// callers learn the bound address before serving.
func (s *Server) Listen(ctx context.Context) error {
	listener, err := s.transport.Listen(ctx, s.addr)
	if err != nil {
		return fmt.Errorf("listen: %v", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	return nil
}

// Addr returns the listener's bound address, or the configured address
// when the server is not yet listening
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr()
}

// Serve accepts and serves connections until ctx is cancelled
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		if err := s.Listen(ctx); err != nil {
			return err
		}
		s.mu.Lock()
		listener = s.listener
		s.mu.Unlock()
	}

	s.log.Info("relay listening",
		zap.String("addr", listener.Addr()),
		zap.Stringer("transport", s.transport),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return listener.Close()
	})
	g.Go(func() error {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("serve: accept: %v", err)
			}
			g.Go(func() error {
				s.handle(ctx, conn)
				return nil
			})
		}
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// handle serves one connection. Errors end the connection and are
// logged rather than returned so one bad client cannot stop the server.
func (s *Server) handle(ctx context.Context, conn Conn) {
	defer conn.Close()

	// Unblock pending reads when the server shuts down
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	id, role, err := s.handshake(conn)
	if err != nil {
		s.log.Warn("handshake failed",
			zap.String("remote", conn.RemoteAddr()),
			zap.Error(err),
		)
		return
	}

	log := s.log.With(
		zap.Stringer("role", role),
		zap.String("client", id.String()),
	)
	log.Info("client connected", zap.String("remote", conn.RemoteAddr()))

	if role == RoleWorker {
		s.mu.Lock()
		s.workers[id] = conn
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.workers, id)
			s.mu.Unlock()
		}()
	}

	for {
		f, err := conn.ReadFrame()
		if err != nil {
			if ctx.Err() == nil {
				log.Info("client disconnected", zap.Error(err))
			}
			return
		}

		if err := s.serveFrame(conn, f); err != nil {
			log.Warn("closing connection", zap.Error(err))
			return
		}
	}
}

// handshake reads the client's Hello and accepts or rejects it
func (s *Server) handshake(conn Conn) (uuid.UUID, Role, error) {
	f, err := conn.ReadFrame()
	if err != nil {
		return uuid.Nil, 0, err
	}

	var hello Hello
	if err := decodePayload(f, KindHello, &hello); err != nil {
		s.reject(conn, "malformed hello")
		return uuid.Nil, 0, err
	}

	if hello.Version != ProtocolVersion {
		reason := fmt.Sprintf("unsupported protocol version %v (server "+
			"speaks %v)", hello.Version, ProtocolVersion)
		s.reject(conn, reason)
		return uuid.Nil, 0, errors.New(reason)
	}
	if hello.Role != RoleWorker && hello.Role != RoleTrainer {
		reason := fmt.Sprintf("unknown role: %v", hello.Role)
		s.reject(conn, reason)
		return uuid.Nil, 0, errors.New(reason)
	}

	id := uuid.New()
	ack, err := newFrame(KindHelloAck, 0, HelloAck{ID: id, OK: true})
	if err != nil {
		return uuid.Nil, 0, err
	}
	if err := conn.WriteFrame(ack); err != nil {
		return uuid.Nil, 0, err
	}
	return id, hello.Role, nil
}

func (s *Server) reject(conn Conn, reason string) {
	f, err := newFrame(KindHelloAck, 0, HelloAck{OK: false, Reason: reason})
	if err == nil {
		conn.WriteFrame(f)
	}
}

func (s *Server) serveFrame(conn Conn, f Frame) error {
	switch f.Kind {
	case KindPushSamples:
		return s.pushSamples(conn, f)
	case KindPullSamples:
		return s.pullSamples(conn)
	case KindPushWeights:
		return s.pushWeights(conn, f)
	case KindPullWeights:
		return s.pullWeights(conn)
	case KindPing:
		return conn.WriteFrame(Frame{Kind: KindPong})
	}
	return fmt.Errorf("serveFrame: unexpected frame kind: %v", f.Kind)
}

// pushSamples queues a worker's batch, dropping the oldest samples
// when the queue outgrows its bound
func (s *Server) pushSamples(conn Conn, f Frame) error {
	var push PushSamples
	if err := decodePayload(f, KindPushSamples, &push); err != nil {
		return err
	}

	s.mu.Lock()
	s.pending = append(s.pending, push.Samples...)
	var dropped int
	if over := len(s.pending) - s.maxPending; over > 0 {
		// Drop references so the evicted samples can be collected
		for i := 0; i < over; i++ {
			s.pending[i] = buffer.Sample{}
		}
		s.pending = s.pending[over:]
		dropped = over
	}
	queued := len(s.pending)
	s.mu.Unlock()

	if dropped > 0 {
		s.log.Warn("sample queue full, dropped oldest",
			zap.Int("dropped", dropped),
			zap.Int("queued", queued),
		)
	}

	ack, err := newFrame(KindSamplesAck, 0,
		SamplesAck{Received: len(push.Samples)})
	if err != nil {
		return err
	}
	return conn.WriteFrame(ack)
}

// pullSamples drains the queue into a SampleSet reply. Samples are
// delivered once, in push order; an empty queue yields an empty set.
func (s *Server) pullSamples(conn Conn) error {
	s.mu.Lock()
	samples := s.pending
	s.pending = nil
	s.mu.Unlock()

	set, err := newFrame(KindSampleSet, 0, SampleSet{Samples: samples})
	if err != nil {
		return err
	}
	return conn.WriteFrame(set)
}

// pushWeights stores the trainer's blob under a new version, replies
// with the version, and broadcasts the weights to connected workers
func (s *Server) pushWeights(conn Conn, f Frame) error {
	var push PushWeights
	if err := decodePayload(f, KindPushWeights, &push); err != nil {
		return err
	}

	s.mu.Lock()
	s.blob = push.Blob
	s.version++
	version := s.version
	conns := make([]Conn, 0, len(s.workers))
	for _, worker := range s.workers {
		conns = append(conns, worker)
	}
	s.mu.Unlock()

	ack, err := newFrame(KindWeightsAck, 0, WeightsAck{Version: version})
	if err != nil {
		return err
	}
	if err := conn.WriteFrame(ack); err != nil {
		return err
	}

	set, err := newFrame(KindWeightSet, FlagBroadcast,
		WeightSet{Version: version, Blob: push.Blob})
	if err != nil {
		return err
	}
	for _, worker := range conns {
		if err := worker.WriteFrame(set); err != nil {
			s.log.Warn("could not broadcast weights",
				zap.String("remote", worker.RemoteAddr()),
				zap.Error(err),
			)
		}
	}

	s.log.Info("weights broadcast",
		zap.Uint64("version", version),
		zap.Int("workers", len(conns)),
	)
	return nil
}

// pullWeights replies with the latest stored weights, or version 0 and
// a nil blob when nothing has been pushed yet
func (s *Server) pullWeights(conn Conn) error {
	s.mu.Lock()
	blob, version := s.blob, s.version
	s.mu.Unlock()

	set, err := newFrame(KindWeightSet, 0,
		WeightSet{Version: version, Blob: blob})
	if err != nil {
		return err
	}
	return conn.WriteFrame(set)
}
