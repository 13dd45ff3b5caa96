// Package store defines the persistence interface for backtest history.
// Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing and development).
package store

import (
	"context"
	"errors"

	"github.com/stratlab/backtest-engine/internal/model"
)

// ErrNotFound is returned when no result exists for the requested ID.
var ErrNotFound = errors.New("store: backtest result not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// SaveResult persists a completed backtest result.
	SaveResult(ctx context.Context, result *model.BacktestResult) error

	// GetResult retrieves a result by its backtest ID.
	GetResult(ctx context.Context, id string) (*model.BacktestResult, error)

	// ListResults returns stored results, newest first. A limit of 0
	// means no limit.
	ListResults(ctx context.Context, limit int) ([]model.BacktestResult, error)

	// ClearResults deletes all stored results and reports how many
	// were removed.
	ClearResults(ctx context.Context) (int64, error)
}
