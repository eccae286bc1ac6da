package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"knapsweep/internal/model"
)

type runKey struct {
	group  string
	budget int
	index  int
}

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	sweeps      map[string]model.SweepRecord
	runs        map[string]map[runKey]model.RunRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.sweeps = make(map[string]model.SweepRecord)
	s.runs = make(map[string]map[runKey]model.RunRecord)
	return nil
}

func (s *MemoryStore) SaveSweep(_ context.Context, sweep model.SweepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	sweep.IncrementalBudgets = append([]int(nil), sweep.IncrementalBudgets...)
	s.sweeps[sweep.ID] = sweep
	return nil
}

func (s *MemoryStore) GetSweep(_ context.Context, id string) (model.SweepRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sweep, ok := s.sweeps[id]
	return sweep, ok, nil
}

func (s *MemoryStore) ListSweeps(_ context.Context) ([]model.SweepRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.SweepRecord, 0, len(s.sweeps))
	for _, sweep := range s.sweeps {
		out = append(out, sweep)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].StartedAtUTC, out[j].StartedAtUTC
		if model.TimestampAfter(a, b) {
			return true
		}
		if model.TimestampAfter(b, a) {
			return false
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) SaveRunResult(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	runs, ok := s.runs[run.SweepID]
	if !ok {
		runs = make(map[runKey]model.RunRecord)
		s.runs[run.SweepID] = runs
	}
	runs[runKey{group: run.Group, budget: run.GenerationBudget, index: run.RunIndex}] = run
	return nil
}

func (s *MemoryStore) ListRunResults(_ context.Context, sweepID string) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RunRecord, 0, len(s.runs[sweepID]))
	for _, run := range s.runs[sweepID] {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		return runLess(out[i], out[j])
	})
	return out, nil
}

func runLess(a, b model.RunRecord) bool {
	if ga, gb := groupOrder(a.Group), groupOrder(b.Group); ga != gb {
		return ga < gb
	}
	if a.Group != b.Group {
		return a.Group < b.Group
	}
	if a.GenerationBudget != b.GenerationBudget {
		return a.GenerationBudget < b.GenerationBudget
	}
	return a.RunIndex < b.RunIndex
}

func groupOrder(group string) int {
	if group == "baseline" {
		return 0
	}
	return 1
}
