package trainer

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/samuelfneumann/trackrl/agent"
	"github.com/samuelfneumann/trackrl/buffer"
	"github.com/samuelfneumann/trackrl/memory"
	"github.com/samuelfneumann/trackrl/storage"
	"github.com/samuelfneumann/trackrl/utils/progressbar"
)

// Interface is a Training's view of the relay: a source of collected
// samples and a sink for updated actor weights. A relay.TrainerClient
// satisfies it.
type Interface interface {
	// RetrieveBuffer drains and returns the samples collected since
	// the last call. An empty slice means no new samples.
	RetrieveBuffer(ctx context.Context) ([]buffer.Sample, error)

	// BroadcastModel pushes weights to every connected rollout worker
	BroadcastModel(ctx context.Context, weights agent.Weights) error
}

// Config describes a Training schedule
type Config struct {
	// Epochs is the total number of epochs to train for. Checkpoints
	// record completed epochs, so a resumed Training picks up where
	// the count left off.
	Epochs int

	// RoundsPerEpoch is the number of rounds per epoch. Each round
	// reports one row of statistics.
	RoundsPerEpoch int

	// StepsPerRound is the number of training steps per round
	StepsPerRound int

	// UpdateModelInterval is the number of training steps between
	// actor weight broadcasts
	UpdateModelInterval int

	// MaxTrainingStepsPerEnvStep caps the ratio of total training
	// steps to total collected samples. Training waits for new samples
	// whenever stepping again would exceed the cap.
	MaxTrainingStepsPerEnvStep float64

	// SleepBetweenRetrievals is how long to wait between polls of the
	// relay while the ratio cap or sample minimum blocks training
	SleepBetweenRetrievals time.Duration

	// StartTraining is the minimum number of collected samples before
	// the first training step
	StartTraining int

	// CheckpointInterval is the number of epochs between checkpoint
	// dumps
	CheckpointInterval int

	// Memory configures the replay memory
	Memory memory.Config
}

// Validate returns an error if the Config describes an illegal
// Training
func (c Config) Validate() error {
	if c.Epochs < 1 {
		return fmt.Errorf("epochs must be positive \n\twant(>= 1) "+
			"\n\thave(%v)", c.Epochs)
	}
	if c.RoundsPerEpoch < 1 {
		return fmt.Errorf("rounds per epoch must be positive "+
			"\n\twant(>= 1) \n\thave(%v)", c.RoundsPerEpoch)
	}
	if c.StepsPerRound < 1 {
		return fmt.Errorf("steps per round must be positive "+
			"\n\twant(>= 1) \n\thave(%v)", c.StepsPerRound)
	}
	if c.UpdateModelInterval < 1 {
		return fmt.Errorf("update model interval must be positive "+
			"\n\twant(>= 1) \n\thave(%v)", c.UpdateModelInterval)
	}
	if c.MaxTrainingStepsPerEnvStep <= 0 {
		return fmt.Errorf("max training steps per environment step "+
			"must be positive \n\twant(> 0) \n\thave(%v)",
			c.MaxTrainingStepsPerEnvStep)
	}
	if c.SleepBetweenRetrievals <= 0 {
		return fmt.Errorf("sleep between retrievals must be positive "+
			"\n\twant(> 0) \n\thave(%v)", c.SleepBetweenRetrievals)
	}
	if c.StartTraining < 1 {
		return fmt.Errorf("start training must be positive "+
			"\n\twant(>= 1) \n\thave(%v)", c.StartTraining)
	}
	return c.Memory.Validate()
}

// Training runs the offline training loop: it drains samples from a
// relay into a replay memory and steps a TrainingAgent over batches
// sampled from that memory, broadcasting updated actor weights at a
// fixed cadence. Epochs are split into rounds, and each round reports
// one row of statistics to the run store.
//
// Training-step pacing follows the collected sample count: the ratio
// of total training steps to total collected samples never exceeds
// MaxTrainingStepsPerEnvStep, so a trainer on fast hardware cannot
// race ahead of slow collection.
//
// A Training is not safe for concurrent use.
type Training struct {
	conf  Config
	agent TrainingAgent
	mem   *memory.Memory
	store storage.Store
	runID uuid.UUID
	log   *zap.Logger

	showProgress bool

	epoch        int
	totalUpdates int
	totalSamples int
}

// NewTraining returns a new Training which trains agent under conf,
// saving per-round statistics to store under runID
func NewTraining(conf Config, agent TrainingAgent, store storage.Store,
	runID uuid.UUID, logger *zap.Logger) (*Training, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("newTraining: %v", err)
	}
	if agent == nil {
		return nil, fmt.Errorf("newTraining: no training agent given")
	}
	if store == nil {
		return nil, fmt.Errorf("newTraining: no run store given")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	mem, err := memory.NewMemory(conf.Memory)
	if err != nil {
		return nil, fmt.Errorf("newTraining: %v", err)
	}

	return &Training{
		conf:  conf,
		agent: agent,
		mem:   mem,
		store: store,
		runID: runID,
		log:   logger,
	}, nil
}

// Epoch returns the number of completed epochs
func (t *Training) Epoch() int {
	return t.epoch
}

// TotalUpdates returns the number of training steps taken so far
func (t *Training) TotalUpdates() int {
	return t.totalUpdates
}

// TotalSamples returns the number of samples retrieved so far
func (t *Training) TotalSamples() int {
	return t.totalSamples
}

// updateBuffer drains newly collected samples from the relay into the
// replay memory
func (t *Training) updateBuffer(ctx context.Context, iface Interface) error {
	samples, err := iface.RetrieveBuffer(ctx)
	if err != nil {
		return fmt.Errorf("updateBuffer: %v", err)
	}
	if len(samples) == 0 {
		return nil
	}

	if err := t.mem.AppendBatch(samples); err != nil {
		return fmt.Errorf("updateBuffer: %v", err)
	}
	t.totalSamples += len(samples)
	return nil
}

// ready reports whether training may step again without starving or
// outpacing sample collection
func (t *Training) ready() bool {
	if t.totalSamples == 0 || t.totalSamples < t.conf.StartTraining {
		return false
	}
	ratio := float64(t.totalUpdates) / float64(t.totalSamples)
	return ratio <= t.conf.MaxTrainingStepsPerEnvStep
}

// checkRatio blocks until enough samples have been collected for the
// next training step, polling the relay while it waits
func (t *Training) checkRatio(ctx context.Context, iface Interface) error {
	if t.ready() {
		return nil
	}

	t.log.Debug("waiting for samples",
		zap.Int("totalSamples", t.totalSamples),
		zap.Int("totalUpdates", t.totalUpdates))
	for {
		if err := t.updateBuffer(ctx, iface); err != nil {
			return err
		}
		if t.ready() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.conf.SleepBetweenRetrievals):
		}
	}
}

// sampleBatch draws the next training batch, polling the relay until
// the memory holds enough transitions to fill one
func (t *Training) sampleBatch(ctx context.Context,
	iface Interface) (memory.Batch, error) {
	for {
		batch, err := t.mem.SampleBatch()
		if err == nil {
			return batch, nil
		}
		if !memory.IsEmptyMemory(err) &&
			!memory.IsInsufficientSamples(err) {
			return memory.Batch{}, fmt.Errorf("sampleBatch: %v", err)
		}

		if err := t.updateBuffer(ctx, iface); err != nil {
			return memory.Batch{}, err
		}
		if t.mem.Len() >= t.mem.BatchSize() {
			continue
		}

		select {
		case <-ctx.Done():
			return memory.Batch{}, ctx.Err()
		case <-time.After(t.conf.SleepBetweenRetrievals):
		}
	}
}

// runRound runs StepsPerRound training steps and returns the round's
// statistics. The time spent blocked on sample collection before the
// first step is reported as idle time.
func (t *Training) runRound(ctx context.Context, iface Interface,
	round int) (storage.RoundStats, error) {
	t.log.Info("round starting",
		zap.Int("epoch", t.epoch),
		zap.Int("round", round),
		zap.Int("memorySize", t.mem.Len()))

	start := time.Now()
	if err := t.checkRatio(ctx, iface); err != nil {
		return storage.RoundStats{}, err
	}
	idle := time.Since(start)

	if err := t.updateBuffer(ctx, iface); err != nil {
		return storage.RoundStats{}, err
	}

	metricSamples := make(map[string][]float64)
	for step := 0; step < t.conf.StepsPerRound; step++ {
		batch, err := t.sampleBatch(ctx, iface)
		if err != nil {
			return storage.RoundStats{}, err
		}

		metrics, err := t.agent.Train(batch)
		if err != nil {
			return storage.RoundStats{}, fmt.Errorf("runRound: %v", err)
		}
		for name, value := range metrics {
			if math.IsNaN(value) {
				continue
			}
			metricSamples[name] = append(metricSamples[name], value)
		}

		t.totalUpdates++
		if t.totalUpdates%t.conf.UpdateModelInterval == 0 {
			if err := iface.BroadcastModel(ctx,
				t.agent.Actor()); err != nil {
				return storage.RoundStats{},
					fmt.Errorf("runRound: %v", err)
			}
			t.log.Debug("broadcast model",
				zap.Int("totalUpdates", t.totalUpdates))
		}

		if err := t.checkRatio(ctx, iface); err != nil {
			return storage.RoundStats{}, err
		}
	}

	means := make(map[string]float64, len(metricSamples))
	for name, values := range metricSamples {
		means[name] = stat.Mean(values, nil)
	}

	returns := t.mem.TrainStats()
	return storage.RoundStats{
		Epoch:         t.epoch,
		Round:         round,
		MemorySize:    t.mem.Len(),
		RoundDuration: time.Since(start),
		IdleDuration:  idle,
		Metrics:       means,
		TrainReturn:   returns.MeanReturn,
	}, nil
}

// RunEpoch runs RoundsPerEpoch rounds of training and returns the
// per-round statistics, which are also saved to the run store. The
// epoch counter advances once all rounds complete.
func (t *Training) RunEpoch(ctx context.Context,
	iface Interface) ([]storage.RoundStats, error) {
	var bar *progressbar.ManualProgressBar
	if t.showProgress {
		bar = progressbar.NewManualProgressBar(40, t.conf.RoundsPerEpoch)
	}

	rounds := make([]storage.RoundStats, 0, t.conf.RoundsPerEpoch)
	for round := 0; round < t.conf.RoundsPerEpoch; round++ {
		stats, err := t.runRound(ctx, iface, round)
		if err != nil {
			return rounds, fmt.Errorf("runEpoch: %v", err)
		}
		rounds = append(rounds, stats)

		if err := t.store.SaveRoundStats(ctx, t.runID, stats); err != nil {
			t.log.Warn("could not save round statistics",
				zap.Error(err))
		}
		t.log.Info("round complete",
			zap.Int("epoch", t.epoch),
			zap.Int("round", round),
			zap.Int("memorySize", stats.MemorySize),
			zap.Duration("roundTime", stats.RoundDuration),
			zap.Duration("idleTime", stats.IdleDuration),
			zap.Float64("trainReturn", stats.TrainReturn))

		if bar != nil {
			bar.Increment()
			bar.Display()
		}
	}
	if bar != nil {
		fmt.Println()
	}

	t.epoch++
	return rounds, nil
}

// Run trains until the configured number of epochs completes or ctx is
// cancelled, dumping a checkpoint every CheckpointInterval epochs. A
// fresh Training dumps its starting state immediately; when the
// checkpoint file already exists, the Training resumes from it
// instead. An empty checkpointPath uses a temporary file which is
// removed once Run returns.
func (t *Training) Run(ctx context.Context, iface Interface,
	checkpointPath string) error {
	removeOnExit := false
	if checkpointPath == "" {
		checkpointPath = filepath.Join(os.TempDir(),
			fmt.Sprintf("trackrl-training-%v.ckpt", time.Now().UnixNano()))
		removeOnExit = true
	}
	defer func() {
		if removeOnExit {
			os.Remove(checkpointPath)
		}
	}()

	if _, err := os.Stat(checkpointPath); errors.Is(err, fs.ErrNotExist) {
		if err := t.dump(checkpointPath); err != nil {
			return fmt.Errorf("run: %v", err)
		}
	} else if err != nil {
		return fmt.Errorf("run: %v", err)
	} else {
		if err := t.load(checkpointPath); err != nil {
			return fmt.Errorf("run: %v", err)
		}
		t.log.Info("resumed from checkpoint",
			zap.String("path", checkpointPath),
			zap.Int("epoch", t.epoch),
			zap.Int("totalUpdates", t.totalUpdates),
			zap.Int("totalSamples", t.totalSamples))
	}

	interval := t.conf.CheckpointInterval
	if interval < 1 {
		interval = 1
	}

	for t.epoch < t.conf.Epochs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := t.RunEpoch(ctx, iface); err != nil {
			return fmt.Errorf("run: %v", err)
		}
		if t.epoch%interval == 0 {
			if err := t.dump(checkpointPath); err != nil {
				return fmt.Errorf("run: %v", err)
			}
		}
	}
	return nil
}

// checkpoint is the serialized form of a Training
type checkpoint struct {
	Conf         Config
	Epoch        int
	TotalUpdates int
	TotalSamples int
	Memory       *memory.Memory
	Weights      agent.Weights
}

// dump writes the Training's state to path
func (t *Training) dump(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("dump: %v", err)
	}
	defer file.Close()

	cp := checkpoint{
		Conf:         t.conf,
		Epoch:        t.epoch,
		TotalUpdates: t.totalUpdates,
		TotalSamples: t.totalSamples,
		Memory:       t.mem,
		Weights:      t.agent.Actor(),
	}
	if err := gob.NewEncoder(file).Encode(cp); err != nil {
		return fmt.Errorf("dump: %v", err)
	}
	return nil
}

// load replaces the Training's state with the checkpoint at path. The
// checkpointed configuration replaces the current one so that a
// resumed run behaves exactly as the interrupted one would have.
func (t *Training) load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("load: %v", err)
	}
	defer file.Close()

	var cp checkpoint
	if err := gob.NewDecoder(file).Decode(&cp); err != nil {
		return fmt.Errorf("load: %v", err)
	}

	if len(cp.Weights) > 0 {
		setter, ok := t.agent.(ActorSetter)
		if !ok {
			return fmt.Errorf("load: agent of type %T cannot restore "+
				"checkpointed weights", t.agent)
		}
		if err := setter.SetActor(cp.Weights); err != nil {
			return fmt.Errorf("load: %v", err)
		}
	}

	t.conf = cp.Conf
	t.epoch = cp.Epoch
	t.totalUpdates = cp.TotalUpdates
	t.totalSamples = cp.TotalSamples
	t.mem = cp.Memory
	return nil
}
