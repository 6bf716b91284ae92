// Package worker implements the collection half of the distributed
// loop. A RolloutWorker steps a simulated track environment with its
// current policy, compresses each step into a sample, and ships
// batches of samples to the relay server, adopting newly broadcast
// policy weights at episode and step boundaries.
package worker

import (
	"context"
	"fmt"
	"math/rand"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/trackrl/agent"
	"github.com/samuelfneumann/trackrl/buffer"
	"github.com/samuelfneumann/trackrl/environment"
)

// Policy selects actions and can have its parameters replaced by
// broadcast weights
type Policy interface {
	agent.Policy
	agent.Weighted
}

// Client is a RolloutWorker's connection to the relay: a sink for
// collected samples and a source of broadcast weights. A
// relay.WorkerClient satisfies it.
type Client interface {
	// SendBuffer ships samples to the relay, retrying until delivery
	// or cancellation
	SendBuffer(ctx context.Context, samples []buffer.Sample) error

	// Weights returns the most recently broadcast weights and their
	// version, or (nil, 0) when nothing has been broadcast yet
	Weights() (agent.Weights, uint64)
}

// RolloutWorker collects training samples by running episodes in an
// environment. The environment is stepped from the calling goroutine
// only, and broadcast weights are adopted solely between episodes and
// at step boundaries, so the policy never changes mid-inference.
//
// A RolloutWorker is not safe for concurrent use.
type RolloutWorker struct {
	env        environment.Environment
	policy     Policy
	compressor buffer.Compressor
	client     Client
	buf        *buffer.Buffer
	rng        *rand.Rand
	log        *zap.Logger

	// MaxSamplesPerEpisode flushes the sample buffer whenever it
	// reaches this size, bounding worker memory during long episodes.
	// Zero means flush only at episode ends.
	maxSamplesPerEpisode int

	// UpdateActorEvery adopts newly broadcast weights every this many
	// steps within an episode. Zero means adopt only between episodes.
	updateActorEvery int

	adoptedVersion uint64
}

// NewRolloutWorker returns a RolloutWorker which collects samples from
// env under policy, compresses them with compressor, and ships them
// through client
func NewRolloutWorker(env environment.Environment, policy Policy,
	compressor buffer.Compressor, client Client, maxSamplesPerEpisode,
	updateActorEvery int, seed int64,
	logger *zap.Logger) (*RolloutWorker, error) {
	if env == nil {
		return nil, fmt.Errorf("newRolloutWorker: no environment given")
	}
	if policy == nil {
		return nil, fmt.Errorf("newRolloutWorker: no policy given")
	}
	if compressor == nil {
		return nil, fmt.Errorf("newRolloutWorker: no compressor given")
	}
	if client == nil {
		return nil, fmt.Errorf("newRolloutWorker: no relay client given")
	}
	if maxSamplesPerEpisode < 0 || updateActorEvery < 0 {
		return nil, fmt.Errorf("newRolloutWorker: intervals cannot be "+
			"negative \n\thave(%v, %v)", maxSamplesPerEpisode,
			updateActorEvery)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RolloutWorker{
		env:                  env,
		policy:               policy,
		compressor:           compressor,
		client:               client,
		buf:                  buffer.NewBuffer(),
		rng:                  rand.New(rand.NewSource(seed)),
		log:                  logger,
		maxSamplesPerEpisode: maxSamplesPerEpisode,
		updateActorEvery:     updateActorEvery,
	}, nil
}

// adoptWeights installs the most recently broadcast weights into the
// policy if they differ from the currently adopted version
func (w *RolloutWorker) adoptWeights() error {
	weights, version := w.client.Weights()
	if weights == nil || version == w.adoptedVersion {
		return nil
	}

	if err := w.policy.SetWeights(weights); err != nil {
		return fmt.Errorf("adoptWeights: %v", err)
	}
	w.adoptedVersion = version
	w.log.Debug("adopted broadcast weights",
		zap.Uint64("version", version))
	return nil
}

// flush ships the buffered samples to the relay in collection order
func (w *RolloutWorker) flush(ctx context.Context) error {
	samples := w.buf.Drain()
	if len(samples) == 0 {
		return nil
	}

	if err := w.client.SendBuffer(ctx, samples); err != nil {
		return fmt.Errorf("flush: %v", err)
	}
	w.log.Debug("flushed samples", zap.Int("count", len(samples)))
	return nil
}

// CollectEpisode runs a single episode, compressing every step into
// the sample buffer. The buffer is flushed whenever it reaches
// MaxSamplesPerEpisode and once more at the episode's end, so samples
// always arrive at the relay in collection order.
func (w *RolloutWorker) CollectEpisode(ctx context.Context) error {
	step := w.env.Reset()
	num := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		action, err := w.policy.SelectAction(step)
		if err != nil {
			return fmt.Errorf("collectEpisode: %v", err)
		}

		next, last, err := w.env.Step(toVecDense(action))
		if err != nil {
			return fmt.Errorf("collectEpisode: %v", err)
		}

		// A sample pairs the action with the observation it produced
		sample, err := w.compressor.Compress(action, next)
		if err != nil {
			return fmt.Errorf("collectEpisode: %v", err)
		}
		w.buf.Append(sample)
		num++

		if w.maxSamplesPerEpisode > 0 &&
			w.buf.Len() >= w.maxSamplesPerEpisode {
			if err := w.flush(ctx); err != nil {
				return err
			}
		}

		if last {
			break
		}

		if w.updateActorEvery > 0 && num%w.updateActorEvery == 0 {
			if err := w.adoptWeights(); err != nil {
				return err
			}
		}
		step = next
	}

	return w.flush(ctx)
}

// Run collects training episodes, adopting newly broadcast weights
// between episodes. When episodes is positive, Run returns after that
// many episodes; otherwise it collects until ctx is cancelled.
func (w *RolloutWorker) Run(ctx context.Context, episodes int) error {
	w.policy.Train()

	for i := 0; episodes <= 0 || i < episodes; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := w.adoptWeights(); err != nil {
			return err
		}
		if err := w.CollectEpisode(ctx); err != nil {
			return err
		}

		stats := w.buf.Stats()
		for j := range stats.Returns {
			w.log.Info("episode complete",
				zap.Int("episode", i),
				zap.Float64("return", stats.Returns[j]),
				zap.Int("steps", stats.Lengths[j]),
				zap.Uint64("weightsVersion", w.adoptedVersion))
		}
	}
	return nil
}

// RunEval runs evaluation episodes and returns the per-episode returns
// and lengths. The policy runs in evaluation mode, no samples are
// pushed, and weights are adopted once before the first episode so
// that every episode evaluates the same policy.
func (w *RolloutWorker) RunEval(ctx context.Context,
	episodes int) ([]float64, []int, error) {
	if episodes < 1 {
		return nil, nil, fmt.Errorf("runEval: episode count must be "+
			"positive \n\twant(>= 1) \n\thave(%v)", episodes)
	}

	if err := w.adoptWeights(); err != nil {
		return nil, nil, err
	}

	w.policy.Eval()
	defer w.policy.Train()

	returns := make([]float64, 0, episodes)
	lengths := make([]int, 0, episodes)
	for i := 0; i < episodes; i++ {
		ret, steps, err := w.evalEpisode(ctx)
		if err != nil {
			return returns, lengths, err
		}
		returns = append(returns, ret)
		lengths = append(lengths, steps)

		w.log.Info("evaluation episode complete",
			zap.Int("episode", i),
			zap.Float64("return", ret),
			zap.Int("steps", steps),
			zap.Uint64("weightsVersion", w.adoptedVersion))
	}
	return returns, lengths, nil
}

// evalEpisode runs one episode without collecting samples
func (w *RolloutWorker) evalEpisode(ctx context.Context) (float64, int,
	error) {
	step := w.env.Reset()
	ret := 0.0
	steps := 0

	for {
		select {
		case <-ctx.Done():
			return ret, steps, ctx.Err()
		default:
		}

		action, err := w.policy.SelectAction(step)
		if err != nil {
			return ret, steps, fmt.Errorf("evalEpisode: %v", err)
		}

		next, last, err := w.env.Step(toVecDense(action))
		if err != nil {
			return ret, steps, fmt.Errorf("evalEpisode: %v", err)
		}
		ret += next.Reward
		steps++

		if last {
			return ret, steps, nil
		}
		step = next
	}
}

// toVecDense converts a vector to a *mat.VecDense without copying when
// possible
func toVecDense(v mat.Vector) *mat.VecDense {
	if vec, ok := v.(*mat.VecDense); ok {
		return vec
	}
	return mat.VecDenseCopyOf(v)
}
