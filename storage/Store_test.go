package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

// testStore drives one Store implementation through the full surface
func testStore(t *testing.T, store Store) {
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	older := Run{
		ID:        uuid.New(),
		Name:      "lidar-baseline",
		Config:    "env:\n  name: lidar\n",
		CreatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	newer := Run{
		ID:        uuid.New(),
		Name:      "hybrid-long",
		Config:    "env:\n  name: hybrid\n",
		CreatedAt: time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC),
	}
	if err := store.SaveRun(ctx, older); err != nil {
		t.Fatalf("save run: %v", err)
	}
	if err := store.SaveRun(ctx, newer); err != nil {
		t.Fatalf("save run: %v", err)
	}

	loaded, ok, err := store.GetRun(ctx, older.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !ok {
		t.Fatalf("expected run %v", older.ID)
	}
	if loaded.Name != older.Name || loaded.Config != older.Config {
		t.Errorf("unexpected run loaded: %+v", loaded)
	}
	if loaded.CreatedAt.UnixNano() != older.CreatedAt.UnixNano() {
		t.Errorf("created at is %v, want %v", loaded.CreatedAt,
			older.CreatedAt)
	}

	if _, ok, err := store.GetRun(ctx, uuid.New()); err != nil || ok {
		t.Errorf("missing run should be (false, nil), got (%v, %v)", ok, err)
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("listed %v runs, want 2", len(runs))
	}
	if runs[0].ID != newer.ID || runs[1].ID != older.ID {
		t.Error("runs should be listed newest first")
	}

	// Round statistics: saving the same (epoch, round) twice keeps the
	// newer record
	stats := RoundStats{
		Epoch:         1,
		Round:         0,
		MemorySize:    512,
		RoundDuration: 3 * time.Second,
		IdleDuration:  250 * time.Millisecond,
		Metrics:       map[string]float64{"td_error": 0.5},
		TrainReturn:   -12.5,
	}
	if err := store.SaveRoundStats(ctx, older.ID, stats); err != nil {
		t.Fatalf("save round stats: %v", err)
	}
	stats.Metrics = map[string]float64{"td_error": 0.25}
	stats.TrainReturn = -10
	if err := store.SaveRoundStats(ctx, older.ID, stats); err != nil {
		t.Fatalf("save round stats again: %v", err)
	}
	second := RoundStats{Epoch: 1, Round: 1, MemorySize: 600,
		Metrics: map[string]float64{}}
	if err := store.SaveRoundStats(ctx, older.ID, second); err != nil {
		t.Fatalf("save second round: %v", err)
	}

	rounds, err := store.RoundStatsFor(ctx, older.ID)
	if err != nil {
		t.Fatalf("round stats for: %v", err)
	}
	if len(rounds) != 2 {
		t.Fatalf("loaded %v rounds, want 2", len(rounds))
	}
	if rounds[0].Round != 0 || rounds[1].Round != 1 {
		t.Error("rounds should be ordered by (epoch, round)")
	}
	if rounds[0].TrainReturn != -10 {
		t.Errorf("train return is %v, want -10 (second save wins)",
			rounds[0].TrainReturn)
	}
	if rounds[0].Metrics["td_error"] != 0.25 {
		t.Errorf("td_error is %v, want 0.25", rounds[0].Metrics["td_error"])
	}
	if rounds[0].RoundDuration != 3*time.Second {
		t.Errorf("round duration is %v, want 3s", rounds[0].RoundDuration)
	}
	if rounds[0].IdleDuration != 250*time.Millisecond {
		t.Errorf("idle duration is %v, want 250ms", rounds[0].IdleDuration)
	}

	// Statistics stay with their run
	otherRounds, err := store.RoundStatsFor(ctx, newer.ID)
	if err != nil {
		t.Fatalf("round stats for other run: %v", err)
	}
	if len(otherRounds) != 0 {
		t.Errorf("other run has %v rounds, want 0", len(otherRounds))
	}

	// Episodes: train and eval episode numbering are independent
	episodes := []EpisodeRecord{
		{Episode: 0, Return: -30, Steps: 200},
		{Episode: 1, Return: -20, Steps: 180},
		{Episode: 0, Return: -25, Steps: 190, Eval: true},
	}
	for _, episode := range episodes {
		if err := store.SaveEpisode(ctx, older.ID, episode); err != nil {
			t.Fatalf("save episode: %v", err)
		}
	}

	loadedEpisodes, err := store.EpisodesFor(ctx, older.ID)
	if err != nil {
		t.Fatalf("episodes for: %v", err)
	}
	if len(loadedEpisodes) != 3 {
		t.Fatalf("loaded %v episodes, want 3", len(loadedEpisodes))
	}
	var evalCount int
	for _, episode := range loadedEpisodes {
		if episode.Eval {
			evalCount++
			if episode.Return != -25 {
				t.Errorf("eval return is %v, want -25", episode.Return)
			}
		}
	}
	if evalCount != 1 {
		t.Errorf("loaded %v eval episodes, want 1", evalCount)
	}
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trackrl.db")
	testStore(t, NewSQLiteStore(path))
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "trackrl.db")

	store := NewSQLiteStore(path)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	run := Run{ID: uuid.New(), Name: "resumable", CreatedAt: time.Now()}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("save run: %v", err)
	}
	stats := RoundStats{Epoch: 0, Round: 3,
		Metrics: map[string]float64{"loss": 1}}
	if err := store.SaveRoundStats(ctx, run.ID, stats); err != nil {
		t.Fatalf("save round stats: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := NewSQLiteStore(path)
	if err := reopened.Init(ctx); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { reopened.Close() })

	if _, ok, err := reopened.GetRun(ctx, run.ID); err != nil || !ok {
		t.Fatalf("run should survive a reopen: (%v, %v)", ok, err)
	}
	rounds, err := reopened.RoundStatsFor(ctx, run.ID)
	if err != nil {
		t.Fatalf("round stats for: %v", err)
	}
	if len(rounds) != 1 || rounds[0].Round != 3 {
		t.Errorf("round stats should survive a reopen: %+v", rounds)
	}
}

func TestStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	err := store.SaveRun(context.Background(), Run{ID: uuid.New()})
	if err == nil {
		t.Error("saving before Init should error")
	}
}
