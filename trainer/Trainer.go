// Package trainer implements the training half of the distributed
// loop. A Training drains collected samples from a relay server into
// a replay memory, steps a TrainingAgent over batches sampled from
// that memory, and broadcasts updated actor weights back through the
// relay for rollout workers to adopt.
//
// The training schedule is split into epochs of rounds of steps. Each
// round reports one row of statistics - durations, memory size, and
// per-step metric means - to a run store, and the whole Training
// checkpoints to disk between epochs so that an interrupted run
// resumes exactly where it stopped.
package trainer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/samuelfneumann/trackrl/relay"
	"github.com/samuelfneumann/trackrl/storage"
)

// Trainer wires a Training to a relay server
type Trainer struct {
	training *Training
	client   *relay.TrainerClient
	log      *zap.Logger
}

// New returns a Trainer which trains agent on samples drained from the
// relay server at addr over transport, recording per-round statistics
// under runID in store
func New(conf Config, transport relay.Transport, addr string,
	agent TrainingAgent, store storage.Store, runID uuid.UUID,
	logger *zap.Logger) (*Trainer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	training, err := NewTraining(conf, agent, store, runID, logger)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	training.showProgress = true

	return &Trainer{
		training: training,
		client:   relay.NewTrainerClient(transport, addr, logger),
		log:      logger,
	}, nil
}

// Run trains until the configured number of epochs completes or ctx
// is cancelled, checkpointing to checkpointPath. An empty
// checkpointPath uses a temporary file which is removed once training
// finishes.
func (t *Trainer) Run(ctx context.Context, checkpointPath string) error {
	defer t.client.Close()

	if err := t.client.Ping(ctx); err != nil {
		return fmt.Errorf("run: cannot reach relay: %v", err)
	}
	return t.training.Run(ctx, t.client, checkpointPath)
}
