package store

import (
	"context"
	"sort"
	"sync"

	"github.com/stratlab/backtest-engine/internal/model"
)

// MemoryStore implements Store with an in-memory map. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string]*model.BacktestResult
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		results: make(map[string]*model.BacktestResult),
	}
}

func (s *MemoryStore) SaveResult(_ context.Context, result *model.BacktestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	copy := *result
	s.results[result.BacktestID] = &copy
	return nil
}

func (s *MemoryStore) GetResult(_ context.Context, id string) (*model.BacktestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *r
	return &copy, nil
}

func (s *MemoryStore) ListResults(_ context.Context, limit int) ([]model.BacktestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]model.BacktestResult, 0, len(s.results))
	for _, r := range s.results {
		results = append(results, *r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].BacktestID > results[j].BacktestID
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *MemoryStore) ClearResults(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.results))
	s.results = make(map[string]*model.BacktestResult)
	return n, nil
}
