// Package config loads run configurations from YAML, layers TRACKRL_*
// environment variable overrides on top, and materializes the pieces
// the commands need: environments, agents, relay transports, and run
// stores. Every command reads the same file so that the relay, the
// trainer, and the rollout workers agree on the environment and the
// training schedule.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/samuelfneumann/trackrl/memory"
	"github.com/samuelfneumann/trackrl/relay"
	"github.com/samuelfneumann/trackrl/trainer"
)

// Config is the complete configuration of one training run
type Config struct {
	Run     RunConfig     `yaml:"run"`
	Relay   RelayConfig   `yaml:"relay"`
	Env     EnvConfig     `yaml:"env"`
	Agent   AgentConfig   `yaml:"agent"`
	Trainer TrainerConfig `yaml:"trainer"`
	Worker  WorkerConfig  `yaml:"worker"`
	Store   StoreConfig   `yaml:"store"`
}

// RunConfig identifies the run and where its artifacts live
type RunConfig struct {
	Name    string `yaml:"name" env:"TRACKRL_RUN_NAME"`
	Seed    int64  `yaml:"seed" env:"TRACKRL_SEED"`
	DataDir string `yaml:"data_dir" env:"TRACKRL_DATA_DIR"`
}

// RelayConfig locates the relay server
type RelayConfig struct {
	Transport relay.TransportType `yaml:"transport" env:"TRACKRL_RELAY_TRANSPORT"`
	Addr      string              `yaml:"addr" env:"TRACKRL_RELAY_ADDR"`

	// MaxPendingSamples bounds the relay's sample queue. Zero falls
	// back to the relay's default.
	MaxPendingSamples int `yaml:"max_pending_samples"`
}

// TrainerConfig holds the training schedule
type TrainerConfig struct {
	Epochs                     int                 `yaml:"epochs"`
	RoundsPerEpoch             int                 `yaml:"rounds_per_epoch"`
	StepsPerRound              int                 `yaml:"steps_per_round"`
	BatchSize                  int                 `yaml:"batch_size"`
	MemoryCapacity             int                 `yaml:"memory_capacity"`
	StartTraining              int                 `yaml:"start_training"`
	UpdateModelInterval        int                 `yaml:"update_model_interval"`
	MaxTrainingStepsPerEnvStep float64             `yaml:"max_training_steps_per_env_step"`
	SleepBetweenRetrievals     time.Duration       `yaml:"sleep_between_retrievals"`
	CheckpointInterval         int                 `yaml:"checkpoint_interval"`
	CheckpointPath             string              `yaml:"checkpoint_path" env:"TRACKRL_CHECKPOINT_PATH"`
	SampleMethod               memory.SelectorType `yaml:"sample_method"`

	// SpillDir, when set, is a directory where the replay memory
	// spills camera frames instead of holding them decoded in RAM
	SpillDir string `yaml:"spill_dir"`
}

// WorkerConfig holds the rollout worker knobs
type WorkerConfig struct {
	// MaxSamplesPerEpisode flushes the collection buffer mid-episode
	// once it holds this many samples. Zero flushes only at episode
	// end.
	MaxSamplesPerEpisode int `yaml:"max_samples_per_episode"`

	// UpdateActorEvery adopts freshly broadcast weights every this
	// many environment steps, in addition to between episodes. Zero
	// adopts between episodes only.
	UpdateActorEvery int `yaml:"update_actor_every"`

	// CRCDebug attaches an end-to-end checksum to every sample, which
	// the trainer's memory verifies on append
	CRCDebug bool `yaml:"crc_debug"`
}

// Default returns the configuration used when a YAML file sets
// nothing
func Default() Config {
	return Config{
		Run: RunConfig{
			Name:    "trackrl",
			DataDir: "data",
		},
		Relay: RelayConfig{
			Transport: relay.TCP,
			Addr:      "localhost:6666",
		},
		Env:   defaultEnv(),
		Agent: defaultAgent(),
		Trainer: TrainerConfig{
			Epochs:                     10,
			RoundsPerEpoch:             50,
			StepsPerRound:              2000,
			BatchSize:                  256,
			MemoryCapacity:             1_000_000,
			StartTraining:              256,
			UpdateModelInterval:        100,
			MaxTrainingStepsPerEnvStep: 1.0,
			SleepBetweenRetrievals:     100 * time.Millisecond,
			CheckpointInterval:         1,
			SampleMethod:               memory.Uniform,
		},
		Worker: WorkerConfig{
			MaxSamplesPerEpisode: 1000,
		},
		Store: defaultStore(),
	}
}

// Load reads the YAML file at path over the defaults, applies
// TRACKRL_* environment overrides, and validates the result. An empty
// path skips the file, so the run uses defaults plus overrides.
func Load(path string) (Config, error) {
	conf := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("load: could not read config: %v",
				err)
		}
		if err := yaml.Unmarshal(data, &conf); err != nil {
			return Config{}, fmt.Errorf("load: could not parse config: %v",
				err)
		}
	}

	if err := conf.FromEnv(); err != nil {
		return Config{}, fmt.Errorf("load: %v", err)
	}
	if err := conf.Validate(); err != nil {
		return Config{}, fmt.Errorf("load: %v", err)
	}
	return conf, nil
}

// FromEnv overrides the Config from TRACKRL_* environment variables
func (c *Config) FromEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("fromEnv: could not parse environment: %v", err)
	}
	return nil
}

// Validate returns an error describing the first illegal setting
// found. Unknown environment, agent, store, and transport names fail
// here rather than when the run is already underway.
func (c Config) Validate() error {
	if c.Run.Name == "" {
		return fmt.Errorf("validate: run name cannot be empty")
	}
	if _, err := relay.NewTransport(c.Relay.Transport); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if c.Relay.Addr == "" {
		return fmt.Errorf("validate: relay address cannot be empty")
	}

	if err := c.Env.Validate(); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if c.Env.Discrete && c.Agent.Type == LinearGaussianAgent {
		return fmt.Errorf("validate: agent %v needs continuous actions, "+
			"but the environment is discrete", c.Agent.Type)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if err := c.TrainingConfig().Validate(); err != nil {
		return fmt.Errorf("validate: %v", err)
	}

	if c.Worker.MaxSamplesPerEpisode < 0 {
		return fmt.Errorf("validate: max samples per episode cannot be "+
			"negative \n\thave(%v)", c.Worker.MaxSamplesPerEpisode)
	}
	if c.Worker.UpdateActorEvery < 0 {
		return fmt.Errorf("validate: update actor interval cannot be "+
			"negative \n\thave(%v)", c.Worker.UpdateActorEvery)
	}
	return nil
}

// TrainingConfig assembles the trainer's schedule from the trainer,
// environment, run, and worker sections
func (c Config) TrainingConfig() trainer.Config {
	return trainer.Config{
		Epochs:                     c.Trainer.Epochs,
		RoundsPerEpoch:             c.Trainer.RoundsPerEpoch,
		StepsPerRound:              c.Trainer.StepsPerRound,
		UpdateModelInterval:        c.Trainer.UpdateModelInterval,
		MaxTrainingStepsPerEnvStep: c.Trainer.MaxTrainingStepsPerEnvStep,
		SleepBetweenRetrievals:     c.Trainer.SleepBetweenRetrievals,
		StartTraining:              c.Trainer.StartTraining,
		CheckpointInterval:         c.Trainer.CheckpointInterval,
		Memory: memory.Config{
			Capacity:      c.Trainer.MemoryCapacity,
			BatchSize:     c.Trainer.BatchSize,
			HistoryLen:    c.Env.HistoryLen,
			ActionTailLen: c.Env.ActionTailLen,
			Discount:      c.Env.Discount,
			SampleMethod:  c.Trainer.SampleMethod,
			Seed:          c.Run.Seed,
			CRCDebug:      c.Worker.CRCDebug,
			SpillDir:      c.Trainer.SpillDir,
		},
	}
}

// Transport returns the relay transport the Config names
func (c Config) Transport() (relay.Transport, error) {
	return relay.NewTransport(c.Relay.Transport)
}

// Marshal renders the Config back to YAML, for recording alongside a
// run
func (c Config) Marshal() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal: could not encode config: %v", err)
	}
	return string(data), nil
}
