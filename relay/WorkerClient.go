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

// WorkerClient is a rollout worker's connection to the relay. Run keeps
// a session alive and tracks the newest broadcast weights in the
// background; SendBuffer pushes sample batches; Weights and WaitWeights
// expose the latest weight set.
type WorkerClient struct {
	transport Transport
	addr      string
	log       *zap.Logger

	mu      sync.Mutex
	sess    *workerSession
	sessCh  chan struct{} // closed when a session becomes available
	weights agent.Weights
	version uint64
	updated chan struct{} // closed on each weight update, then swapped

	reqMu sync.Mutex // one request in flight at a time
}

// workerSession is one lifetime of the client's connection. A lost
// connection ends the session; Run then starts a new one.
type workerSession struct {
	conn  Conn
	id    uuid.UUID
	done  chan struct{}
	reply chan Frame

	// adopted records whether a weight set was accepted this session;
	// the first set of a session is accepted regardless of version
	// because a restarted server starts over at version 1. Guarded by
	// WorkerClient.mu.
	adopted bool
}

// NewWorkerClient creates a client that connects to the relay at addr
// over the given transport once Run is started. A nil logger disables
// logging.
func NewWorkerClient(transport Transport, addr string,
	logger *zap.Logger) *WorkerClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerClient{
		transport: transport,
		addr:      addr,
		log:       logger,
		sessCh:    make(chan struct{}),
		updated:   make(chan struct{}),
	}
}

// Run connects to the relay and serves the connection until ctx is
// cancelled, reconnecting with capped exponential backoff. It must be
// running for the other methods to make progress.
func (c *WorkerClient) Run(ctx context.Context) error {
	backoff := initialBackoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, id, err := dialAndGreet(ctx, c.transport, c.addr, RoleWorker)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("could not connect to relay",
				zap.String("addr", c.addr),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = initialBackoff

		c.log.Info("connected to relay",
			zap.String("addr", c.addr),
			zap.String("client", id.String()),
		)
		c.runSession(ctx, conn, id)
	}
}

// runSession reads frames until the connection drops, routing weight
// broadcasts to the weight state and replies to the pending request
func (c *WorkerClient) runSession(ctx context.Context, conn Conn,
	id uuid.UUID) {
	sess := &workerSession{
		conn:  conn,
		id:    id,
		done:  make(chan struct{}),
		reply: make(chan Frame, 1),
	}

	c.mu.Lock()
	c.sess = sess
	close(c.sessCh)
	c.mu.Unlock()

	// Unblock reads when ctx is cancelled
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-sess.done:
		}
	}()

	// Catch up on weights pushed while disconnected
	go c.catchUp(ctx, sess)

	for {
		f, err := conn.ReadFrame()
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn("relay connection lost", zap.Error(err))
			}
			break
		}

		if f.Broadcast() && f.Kind == KindWeightSet {
			var set WeightSet
			if err := decodePayload(f, KindWeightSet, &set); err != nil {
				c.log.Warn("malformed weight broadcast", zap.Error(err))
				continue
			}
			c.adopt(sess, set)
			continue
		}

		select {
		case sess.reply <- f:
		default:
			c.log.Warn("dropped unsolicited reply",
				zap.Stringer("kind", f.Kind))
		}
	}

	conn.Close()
	c.mu.Lock()
	c.sess = nil
	c.sessCh = make(chan struct{})
	c.mu.Unlock()
	close(sess.done)
}

// catchUp pulls the latest weights at the start of a session so a
// worker that was disconnected during a broadcast still sees it
func (c *WorkerClient) catchUp(ctx context.Context, sess *workerSession) {
	reply, err := c.requestOn(ctx, sess, Frame{Kind: KindPullWeights})
	if err != nil {
		if ctx.Err() == nil {
			c.log.Warn("could not pull weights", zap.Error(err))
		}
		return
	}

	var set WeightSet
	if err := decodePayload(reply, KindWeightSet, &set); err != nil {
		c.log.Warn("malformed weight set", zap.Error(err))
		return
	}
	c.adopt(sess, set)
}

// adopt installs a weight set unless it is stale. Within a session
// versions only move forward; the first set of a session is accepted
// unconditionally.
func (c *WorkerClient) adopt(sess *workerSession, set WeightSet) {
	if set.Version == 0 && set.Blob == nil {
		// Nothing has been broadcast yet
		return
	}

	weights, err := DecodeWeights(set.Blob)
	if err != nil {
		c.log.Warn("could not decode weights",
			zap.Uint64("version", set.Version),
			zap.Error(err),
		)
		return
	}

	c.mu.Lock()
	if sess.adopted && set.Version <= c.version {
		c.mu.Unlock()
		return
	}
	sess.adopted = true
	c.weights = weights
	c.version = set.Version
	close(c.updated)
	c.updated = make(chan struct{})
	c.mu.Unlock()

	c.log.Info("adopted weights", zap.Uint64("version", set.Version))
}

// SendBuffer pushes a drained sample batch to the relay, waiting for
// the acknowledgement. On failure the push is retried on the next
// session: a duplicate push is preferred over a lost batch.
func (c *WorkerClient) SendBuffer(ctx context.Context,
	samples []buffer.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	f, err := newFrame(KindPushSamples, 0, PushSamples{Samples: samples})
	if err != nil {
		return fmt.Errorf("sendBuffer: %v", err)
	}

	backoff := initialBackoff
	for {
		sess, err := c.currentSession(ctx)
		if err != nil {
			return fmt.Errorf("sendBuffer: %w", err)
		}

		reply, err := c.requestOn(ctx, sess, f)
		if err == nil {
			var ack SamplesAck
			if err := decodePayload(reply, KindSamplesAck, &ack); err != nil {
				return fmt.Errorf("sendBuffer: %v", err)
			}
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("sendBuffer: %w", ctx.Err())
		}

		c.log.Warn("sample push failed, retrying",
			zap.Int("samples", len(samples)),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("sendBuffer: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Weights returns the newest broadcast weights without blocking. Before
// the first broadcast it returns nil weights and version 0.
func (c *WorkerClient) Weights() (agent.Weights, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.weights, c.version
}

// WaitWeights blocks until weights with at least minVersion are known,
// returning them with their version
func (c *WorkerClient) WaitWeights(ctx context.Context,
	minVersion uint64) (agent.Weights, uint64, error) {
	for {
		c.mu.Lock()
		weights, version := c.weights, c.version
		ch := c.updated
		c.mu.Unlock()

		if weights != nil && version >= minVersion {
			return weights, version, nil
		}

		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-ch:
		}
	}
}

// currentSession returns the live session, blocking until one is
// established
func (c *WorkerClient) currentSession(ctx context.Context) (*workerSession,
	error) {
	for {
		c.mu.Lock()
		sess := c.sess
		ch := c.sessCh
		c.mu.Unlock()

		if sess != nil {
			return sess, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ch:
		}
	}
}

// requestOn sends f on the session and waits for the reply. Requests
// are serialized, so a reply always belongs to the newest request.
func (c *WorkerClient) requestOn(ctx context.Context, sess *workerSession,
	f Frame) (Frame, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	// Discard a reply left behind by an abandoned request
	select {
	case <-sess.reply:
	default:
	}

	if err := sess.conn.WriteFrame(f); err != nil {
		return Frame{}, err
	}

	select {
	case reply := <-sess.reply:
		return reply, nil
	case <-sess.done:
		return Frame{}, ErrConnectionClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}
