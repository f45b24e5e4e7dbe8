package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/IshaanNene/finscrape/internal/types"
)

// MemoryStore keeps everything in process memory. It backs tests and the
// JSONL store's index.
type MemoryStore struct {
	mu      sync.RWMutex
	targets []types.Target
	records []types.Record
	byFP    map[string]int
	byID    map[string]int
	runs    map[string]types.RunLog
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byFP: make(map[string]int),
		byID: make(map[string]int),
		runs: make(map[string]types.RunLog),
	}
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) SyncTargets(_ context.Context, targets []types.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncTargets(targets)
	return nil
}

func (s *MemoryStore) syncTargets(targets []types.Target) {
	for _, t := range targets {
		replaced := false
		for i := range s.targets {
			if s.targets[i].ID == t.ID {
				s.targets[i] = t
				replaced = true
				break
			}
		}
		if !replaced {
			s.targets = append(s.targets, t)
		}
	}
}

func (s *MemoryStore) ActiveTargets(_ context.Context) ([]types.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Target
	for _, t := range s.targets {
		if t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

// Targets returns every stored target, active or not.
func (s *MemoryStore) Targets() []types.Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.Target(nil), s.targets...)
}

func (s *MemoryStore) Exists(_ context.Context, fingerprint string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byFP[fingerprint]
	return ok, nil
}

func (s *MemoryStore) Insert(_ context.Context, rec *types.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = NewID()
	}
	return s.insert(*rec), nil
}

func (s *MemoryStore) insert(rec types.Record) bool {
	if _, ok := s.byFP[rec.Fingerprint]; ok {
		return false
	}
	if rec.ID == "" {
		rec.ID = NewID()
	}
	s.records = append(s.records, rec)
	s.byFP[rec.Fingerprint] = len(s.records) - 1
	s.byID[rec.ID] = len(s.records) - 1
	return true
}

func (s *MemoryStore) StartRun(_ context.Context, run *types.RunLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.ID == "" {
		run.ID = NewID()
	}
	s.runs[run.ID] = *run
	return nil
}

func (s *MemoryStore) FinishRun(_ context.Context, run *types.RunLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = *run
	return nil
}

// Runs returns the recorded runs ordered by start time.
func (s *MemoryStore) Runs() []types.RunLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.RunLog, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Records returns a copy of every stored record in insertion order.
func (s *MemoryStore) Records() []types.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.Record(nil), s.records...)
}

func (s *MemoryStore) Pending(_ context.Context, limit int) ([]types.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Record
	for _, r := range s.records {
		if r.Consumed {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Ack(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ack(id)
}

func (s *MemoryStore) ack(id string) error {
	i, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("record %s: %w", id, types.ErrNotFound)
	}
	s.records[i].Consumed = true
	return nil
}

func (s *MemoryStore) Close() error { return nil }
