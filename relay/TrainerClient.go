package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/samuelfneumann/trackrl/agent"
	"github.com/samuelfneumann/trackrl/buffer"
)

// Reconnection backoff bounds shared by both clients
const (
	initialBackoff = 250 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// TrainerClient is the trainer's connection to the relay. It drains the
// relay's sample queue and pushes weights for broadcast, reconnecting
// with capped exponential backoff when the connection drops. Methods
// are safe for concurrent use; requests are served one at a time.
type TrainerClient struct {
	transport Transport
	addr      string
	log       *zap.Logger

	mu   sync.Mutex
	conn Conn
}

// NewTrainerClient creates a client that connects to the relay at addr
// over the given transport on first use. A nil logger disables logging.
func NewTrainerClient(transport Transport, addr string,
	logger *zap.Logger) *TrainerClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrainerClient{transport: transport, addr: addr, log: logger}
}

// RetrieveBuffer drains every sample queued at the relay since the last
// call, in push order. An empty queue yields an empty slice.
func (c *TrainerClient) RetrieveBuffer(ctx context.Context) ([]buffer.Sample,
	error) {
	reply, err := c.roundTrip(ctx, Frame{Kind: KindPullSamples})
	if err != nil {
		return nil, fmt.Errorf("retrieveBuffer: %w", err)
	}

	var set SampleSet
	if err := decodePayload(reply, KindSampleSet, &set); err != nil {
		return nil, fmt.Errorf("retrieveBuffer: %v", err)
	}
	return set.Samples, nil
}

// BroadcastModel ships weights to the relay, which stores them under a
// new version and broadcasts them to every connected worker
func (c *TrainerClient) BroadcastModel(ctx context.Context,
	weights agent.Weights) error {
	blob, err := EncodeWeights(weights)
	if err != nil {
		return fmt.Errorf("broadcastModel: %v", err)
	}
	f, err := newFrame(KindPushWeights, 0, PushWeights{Blob: blob})
	if err != nil {
		return fmt.Errorf("broadcastModel: %v", err)
	}

	reply, err := c.roundTrip(ctx, f)
	if err != nil {
		return fmt.Errorf("broadcastModel: %w", err)
	}

	var ack WeightsAck
	if err := decodePayload(reply, KindWeightsAck, &ack); err != nil {
		return fmt.Errorf("broadcastModel: %v", err)
	}
	c.log.Debug("model broadcast", zap.Uint64("version", ack.Version))
	return nil
}

// Ping checks that the relay answers
func (c *TrainerClient) Ping(ctx context.Context) error {
	reply, err := c.roundTrip(ctx, Frame{Kind: KindPing})
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if reply.Kind != KindPong {
		return fmt.Errorf("ping: unexpected frame kind "+
			"\n\twant(%v) \n\thave(%v)", KindPong, reply.Kind)
	}
	return nil
}

// Close drops the connection. The next request reconnects.
func (c *TrainerClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnect()
}

// roundTrip sends f and waits for the reply, reconnecting and retrying
// with capped exponential backoff until ctx is cancelled
func (c *TrainerClient) roundTrip(ctx context.Context, f Frame) (Frame,
	error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	backoff := initialBackoff
	for {
		reply, err := c.tryRoundTrip(ctx, f)
		if err == nil {
			return reply, nil
		}
		c.disconnect()
		if ctx.Err() != nil {
			return Frame{}, ctx.Err()
		}

		c.log.Warn("relay request failed, retrying",
			zap.Stringer("kind", f.Kind),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *TrainerClient) tryRoundTrip(ctx context.Context, f Frame) (Frame,
	error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return Frame{}, err
	}

	// Unblock the reply read if ctx is cancelled while waiting
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := conn.WriteFrame(f); err != nil {
		return Frame{}, err
	}
	return conn.ReadFrame()
}

func (c *TrainerClient) connect(ctx context.Context) (Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}

	conn, _, err := dialAndGreet(ctx, c.transport, c.addr, RoleTrainer)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.log.Info("connected to relay", zap.String("addr", c.addr))
	return conn, nil
}

func (c *TrainerClient) disconnect() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// dialAndGreet dials the relay and performs the handshake, returning
// the connection and the identity the server assigned
func dialAndGreet(ctx context.Context, transport Transport, addr string,
	role Role) (Conn, uuid.UUID, error) {
	conn, err := transport.Dial(ctx, addr)
	if err != nil {
		return nil, uuid.Nil, err
	}

	// Unblock the handshake read if ctx is cancelled mid-greeting
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	hello, err := newFrame(KindHello, 0,
		Hello{Role: role, Version: ProtocolVersion})
	if err != nil {
		conn.Close()
		return nil, uuid.Nil, err
	}
	if err := conn.WriteFrame(hello); err != nil {
		conn.Close()
		return nil, uuid.Nil, err
	}

	reply, err := conn.ReadFrame()
	if err != nil {
		conn.Close()
		return nil, uuid.Nil, err
	}
	var ack HelloAck
	if err := decodePayload(reply, KindHelloAck, &ack); err != nil {
		conn.Close()
		return nil, uuid.Nil, err
	}
	if !ack.OK {
		conn.Close()
		return nil, uuid.Nil, fmt.Errorf("greet: server rejected "+
			"connection: %v", ack.Reason)
	}
	return conn, ack.ID, nil
}
