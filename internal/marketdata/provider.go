// Package marketdata defines the historical-data and quote collaborator
// used by the simulator and by live strategies. Implementations include
// an HTTP client for a bar-serving API and a static in-memory provider
// for tests and development.
package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/stratlab/backtest-engine/internal/model"
)

// ErrNoData is returned when a provider has no bars for the requested
// symbol and range. The orchestrator maps this to a failed result, not a
// crash.
var ErrNoData = errors.New("marketdata: no historical data available")

// Provider supplies historical bars and live quotes.
type Provider interface {
	// HistoricalBars returns bars for [start, end], sorted ascending by
	// timestamp. An empty response means no data, not an error.
	HistoricalBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]model.HistoricalBar, error)

	// Quote returns the latest quote for a symbol.
	Quote(ctx context.Context, symbol string) (model.Quote, error)
}
