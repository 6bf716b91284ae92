package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists runs and statistics in a SQLite database file,
// so resumed runs append to the history recorded before the restart
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteStore creates a store backed by the database file at path.
// The file is created by Init when it does not exist.
func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("init: sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("init: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("init: %v", err)
	}
	if err := createTables(ctx, db); err != nil {
		db.Close()
		return fmt.Errorf("init: %v", err)
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run Run) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, name, config, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			config = excluded.config,
			created_at = excluded.created_at
	`, run.ID.String(), run.Name, run.Config, run.CreatedAt.UnixNano())
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id uuid.UUID) (Run, bool,
	error) {
	db, err := s.getDB()
	if err != nil {
		return Run{}, false, err
	}

	var run Run
	var rawID string
	var createdAt int64
	err = db.QueryRowContext(ctx, `
		SELECT id, name, config, created_at FROM runs WHERE id = ?
	`, id.String()).Scan(&rawID, &run.Name, &run.Config, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, false, nil
		}
		return Run{}, false, err
	}

	run.ID, err = uuid.Parse(rawID)
	if err != nil {
		return Run{}, false, fmt.Errorf("getRun: malformed run id %q: %v",
			rawID, err)
	}
	run.CreatedAt = time.Unix(0, createdAt)
	return run, true, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]Run, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, name, config, created_at FROM runs
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var rawID string
		var createdAt int64
		if err := rows.Scan(&rawID, &run.Name, &run.Config,
			&createdAt); err != nil {
			return nil, err
		}
		run.ID, err = uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("listRuns: malformed run id %q: %v",
				rawID, err)
		}
		run.CreatedAt = time.Unix(0, createdAt)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) SaveRoundStats(ctx context.Context, run uuid.UUID,
	stats RoundStats) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	metrics, err := json.Marshal(stats.Metrics)
	if err != nil {
		return fmt.Errorf("saveRoundStats: could not encode metrics: %v",
			err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO round_stats (run_id, epoch, round, memory_size,
			round_duration, idle_duration, metrics, train_return,
			test_return)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, epoch, round) DO UPDATE SET
			memory_size = excluded.memory_size,
			round_duration = excluded.round_duration,
			idle_duration = excluded.idle_duration,
			metrics = excluded.metrics,
			train_return = excluded.train_return,
			test_return = excluded.test_return
	`, run.String(), stats.Epoch, stats.Round, stats.MemorySize,
		int64(stats.RoundDuration), int64(stats.IdleDuration),
		string(metrics), stats.TrainReturn, stats.TestReturn)
	return err
}

func (s *SQLiteStore) RoundStatsFor(ctx context.Context,
	run uuid.UUID) ([]RoundStats, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT epoch, round, memory_size, round_duration, idle_duration,
			metrics, train_return, test_return
		FROM round_stats WHERE run_id = ?
		ORDER BY epoch, round
	`, run.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []RoundStats
	for rows.Next() {
		var round RoundStats
		var roundDur, idleDur int64
		var metrics string
		if err := rows.Scan(&round.Epoch, &round.Round, &round.MemorySize,
			&roundDur, &idleDur, &metrics, &round.TrainReturn,
			&round.TestReturn); err != nil {
			return nil, err
		}
		round.RoundDuration = time.Duration(roundDur)
		round.IdleDuration = time.Duration(idleDur)
		if err := json.Unmarshal([]byte(metrics),
			&round.Metrics); err != nil {
			return nil, fmt.Errorf("roundStatsFor: could not decode "+
				"metrics: %v", err)
		}
		stats = append(stats, round)
	}
	return stats, rows.Err()
}

func (s *SQLiteStore) SaveEpisode(ctx context.Context, run uuid.UUID,
	episode EpisodeRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO episodes (run_id, episode, episode_return, steps, eval)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, episode, eval) DO UPDATE SET
			episode_return = excluded.episode_return,
			steps = excluded.steps
	`, run.String(), episode.Episode, episode.Return, episode.Steps,
		episode.Eval)
	return err
}

func (s *SQLiteStore) EpisodesFor(ctx context.Context,
	run uuid.UUID) ([]EpisodeRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT episode, episode_return, steps, eval FROM episodes
		WHERE run_id = ?
		ORDER BY episode
	`, run.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var episodes []EpisodeRecord
	for rows.Next() {
		var episode EpisodeRecord
		if err := rows.Scan(&episode.Episode, &episode.Return,
			&episode.Steps, &episode.Eval); err != nil {
			return nil, err
		}
		episodes = append(episodes, episode)
	}
	return episodes, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			config TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS round_stats (
			run_id TEXT NOT NULL,
			epoch INTEGER NOT NULL,
			round INTEGER NOT NULL,
			memory_size INTEGER NOT NULL,
			round_duration INTEGER NOT NULL,
			idle_duration INTEGER NOT NULL,
			metrics TEXT NOT NULL,
			train_return REAL NOT NULL,
			test_return REAL NOT NULL,
			PRIMARY KEY (run_id, epoch, round)
		);
		CREATE TABLE IF NOT EXISTS episodes (
			run_id TEXT NOT NULL,
			episode INTEGER NOT NULL,
			episode_return REAL NOT NULL,
			steps INTEGER NOT NULL,
			eval INTEGER NOT NULL,
			PRIMARY KEY (run_id, episode, eval)
		);
	`)
	return err
}
