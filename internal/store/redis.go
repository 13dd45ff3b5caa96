package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stratlab/backtest-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and populate the cache; single
// result reads check Redis first then fall back to the primary. Backtest
// results are immutable once written, so cached entries never go stale.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (s *CachedStore) SaveResult(ctx context.Context, result *model.BacktestResult) error {
	if err := s.primary.SaveResult(ctx, result); err != nil {
		return err
	}
	s.cacheResult(ctx, result)
	return nil
}

func (s *CachedStore) GetResult(ctx context.Context, id string) (*model.BacktestResult, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, resultKey(id)).Bytes()
	if err == nil {
		var r model.BacktestResult
		if json.Unmarshal(data, &r) == nil {
			return &r, nil
		}
	}

	// Cache miss: read from primary.
	r, err := s.primary.GetResult(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheResult(ctx, r)
	return r, nil
}

// ListResults is not cached; listings change with every run.
func (s *CachedStore) ListResults(ctx context.Context, limit int) ([]model.BacktestResult, error) {
	return s.primary.ListResults(ctx, limit)
}

func (s *CachedStore) ClearResults(ctx context.Context) (int64, error) {
	n, err := s.primary.ClearResults(ctx)
	if err != nil {
		return 0, err
	}
	// Drop cached entries so cleared results stop resolving.
	iter := s.rdb.Scan(ctx, 0, resultKey("*"), 0).Iterator()
	for iter.Next(ctx) {
		s.rdb.Del(ctx, iter.Val())
	}
	return n, nil
}

func (s *CachedStore) cacheResult(ctx context.Context, r *model.BacktestResult) {
	if data, err := json.Marshal(r); err == nil {
		s.rdb.Set(ctx, resultKey(r.BacktestID), data, s.ttl)
	}
}

func resultKey(id string) string { return fmt.Sprintf("backtest:%s", id) }
