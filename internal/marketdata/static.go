package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stratlab/backtest-engine/internal/model"
)

// StaticProvider serves bars and quotes from in-memory maps. Used for
// testing and development.
type StaticProvider struct {
	mu     sync.RWMutex
	bars   map[string][]model.HistoricalBar
	quotes map[string]model.Quote
}

// NewStaticProvider creates an empty static provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		bars:   make(map[string][]model.HistoricalBar),
		quotes: make(map[string]model.Quote),
	}
}

// SetBars replaces the bar series for a symbol.
func (p *StaticProvider) SetBars(symbol string, bars []model.HistoricalBar) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bars[symbol] = bars
}

// SetQuote sets the latest quote for a symbol.
func (p *StaticProvider) SetQuote(q model.Quote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes[q.Symbol] = q
}

func (p *StaticProvider) HistoricalBars(_ context.Context, symbol, _ string, start, end time.Time) ([]model.HistoricalBar, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []model.HistoricalBar
	for _, b := range p.bars[symbol] {
		if b.Timestamp.Before(start) || b.Timestamp.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (p *StaticProvider) Quote(_ context.Context, symbol string) (model.Quote, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	q, ok := p.quotes[symbol]
	if !ok {
		return model.Quote{}, fmt.Errorf("marketdata: no quote for %s", symbol)
	}
	return q, nil
}
