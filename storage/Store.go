// Package storage persists run metadata and training statistics. A
// training run is recorded once, then accumulates per-round statistics
// from the trainer and per-episode records from rollout and evaluation
// workers. Two implementations are provided: an in-memory store for
// tests and short-lived runs, and a SQLite store that survives process
// restarts so resumed runs append to their history.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Run identifies one training run and the configuration it started
// with
type Run struct {
	ID        uuid.UUID
	Name      string
	Config    string // the YAML configuration the run was started with
	CreatedAt time.Time
}

// RoundStats summarizes one training round: how long it ran, how long
// it idled waiting for samples, and the metric means the agent reported
type RoundStats struct {
	Epoch         int
	Round         int
	MemorySize    int
	RoundDuration time.Duration
	IdleDuration  time.Duration
	Metrics       map[string]float64
	TrainReturn   float64
	TestReturn    float64
}

// EpisodeRecord summarizes one collected or evaluated episode
type EpisodeRecord struct {
	Episode int
	Return  float64
	Steps   int
	Eval    bool
}

// Store persists runs and their statistics
type Store interface {
	Init(ctx context.Context) error

	SaveRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id uuid.UUID) (Run, bool, error)

	// ListRuns returns every recorded run, newest first
	ListRuns(ctx context.Context) ([]Run, error)

	// SaveRoundStats records one round. Saving the same
	// (run, epoch, round) again overwrites the earlier record.
	SaveRoundStats(ctx context.Context, run uuid.UUID,
		stats RoundStats) error
	RoundStatsFor(ctx context.Context, run uuid.UUID) ([]RoundStats, error)

	SaveEpisode(ctx context.Context, run uuid.UUID,
		episode EpisodeRecord) error
	EpisodesFor(ctx context.Context, run uuid.UUID) ([]EpisodeRecord, error)

	Close() error
}
