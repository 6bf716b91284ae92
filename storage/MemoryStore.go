package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
)

var errNotInitialized = errors.New("store is not initialized")

// MemoryStore keeps runs and statistics in process memory. It is safe
// for concurrent use and loses everything when the process exits.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[uuid.UUID]Run
	rounds      map[uuid.UUID][]RoundStats
	episodes    map[uuid.UUID][]EpisodeRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[uuid.UUID]Run)
	s.rounds = make(map[uuid.UUID][]RoundStats)
	s.episodes = make(map[uuid.UUID][]EpisodeRecord)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id uuid.UUID) (Run, bool,
	error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return Run{}, false, errNotInitialized
	}
	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, errNotInitialized
	}

	runs := make([]Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}

func (s *MemoryStore) SaveRoundStats(_ context.Context, run uuid.UUID,
	stats RoundStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}

	rounds := s.rounds[run]
	for i := range rounds {
		if rounds[i].Epoch == stats.Epoch && rounds[i].Round == stats.Round {
			rounds[i] = stats
			return nil
		}
	}
	s.rounds[run] = append(rounds, stats)
	return nil
}

func (s *MemoryStore) RoundStatsFor(_ context.Context,
	run uuid.UUID) ([]RoundStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, errNotInitialized
	}

	rounds := make([]RoundStats, len(s.rounds[run]))
	copy(rounds, s.rounds[run])
	sort.Slice(rounds, func(i, j int) bool {
		if rounds[i].Epoch != rounds[j].Epoch {
			return rounds[i].Epoch < rounds[j].Epoch
		}
		return rounds[i].Round < rounds[j].Round
	})
	return rounds, nil
}

func (s *MemoryStore) SaveEpisode(_ context.Context, run uuid.UUID,
	episode EpisodeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}

	episodes := s.episodes[run]
	for i := range episodes {
		if episodes[i].Episode == episode.Episode &&
			episodes[i].Eval == episode.Eval {
			episodes[i] = episode
			return nil
		}
	}
	s.episodes[run] = append(episodes, episode)
	return nil
}

func (s *MemoryStore) EpisodesFor(_ context.Context,
	run uuid.UUID) ([]EpisodeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, errNotInitialized
	}

	episodes := make([]EpisodeRecord, len(s.episodes[run]))
	copy(episodes, s.episodes[run])
	sort.Slice(episodes, func(i, j int) bool {
		return episodes[i].Episode < episodes[j].Episode
	})
	return episodes, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = false
	return nil
}
