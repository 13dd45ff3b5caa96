// Package backtest drives bar-by-bar strategy simulation and
// multi-strategy comparison.
//
// The simulation loop is single-threaded and synchronous: bars are
// processed strictly in timestamp order, pending orders are routed
// before the strategy is consulted, and newly emitted intents are
// matched against the same bar (immediate-or-pending semantics).
// Cancellation is cooperative: the context is checked between bars,
// never mid-bar.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stratlab/backtest-engine/internal/analytics"
	"github.com/stratlab/backtest-engine/internal/ledger"
	"github.com/stratlab/backtest-engine/internal/marketdata"
	"github.com/stratlab/backtest-engine/internal/matching"
	"github.com/stratlab/backtest-engine/internal/metrics"
	"github.com/stratlab/backtest-engine/internal/model"
	"github.com/stratlab/backtest-engine/internal/strategy"
)

// Failure messages surfaced on BacktestResult.Error. Domain failures are
// results, not Go errors; nothing escapes Run as a panic or error value.
const (
	errNoData = "No historical data available"
)

// defaultSeed makes oscillating-strategy randomization reproducible in
// simulation unless the caller supplies its own seed.
const defaultSeed int64 = 1

// EventSink receives simulation events for streaming to clients. May be
// nil.
type EventSink interface {
	BacktestStarted(backtestID, strategyName, symbol string)
	BacktestFill(backtestID string, fill model.Fill)
	BacktestCompleted(result *model.BacktestResult)
}

// Request describes one simulation run.
type Request struct {
	StrategyName   string
	Symbol         string
	Bars           []model.HistoricalBar // used directly when non-nil
	StartDate      time.Time             // resolved via the provider when Bars is nil
	EndDate        time.Time
	Interval       string // provider interval; defaults to "1day"
	InitialCapital decimal.Decimal
	Params         strategy.Params
}

// Runner orchestrates simulations. Each run owns an independent
// portfolio and matching engine; concurrent runs never share state.
type Runner struct {
	provider marketdata.Provider
	sink     EventSink
}

// NewRunner creates a runner. provider may be nil when all requests
// carry explicit bar slices; sink may be nil.
func NewRunner(provider marketdata.Provider, sink EventSink) *Runner {
	return &Runner{provider: provider, sink: sink}
}

// Run executes one backtest and always returns a result: domain
// failures (unknown strategy, bad parameters, no data) come back as
// Success=false with Error set.
func (r *Runner) Run(ctx context.Context, req Request) *model.BacktestResult {
	started := time.Now()
	if req.Interval == "" {
		req.Interval = "1day"
	}

	bars := req.Bars
	if bars == nil && r.provider != nil {
		fetched, err := r.provider.HistoricalBars(ctx, req.Symbol, req.Interval, req.StartDate, req.EndDate)
		if err != nil && !errors.Is(err, marketdata.ErrNoData) {
			slog.Error("historical data fetch failed",
				"symbol", req.Symbol, "err", err)
		}
		bars = fetched
	}

	result := r.simulate(ctx, req, bars)
	result.CreatedAt = time.Now().UTC()

	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	metrics.BacktestsTotal.WithLabelValues(req.StrategyName, outcome).Inc()
	metrics.BacktestDuration.WithLabelValues(req.StrategyName).Observe(time.Since(started).Seconds())

	if result.Success {
		slog.Info("backtest completed",
			"id", result.BacktestID,
			"strategy", result.StrategyName,
			"symbol", result.Symbol,
			"trades", len(result.Trades),
			"total_return", result.TotalReturn,
		)
	} else {
		slog.Warn("backtest failed",
			"id", result.BacktestID,
			"strategy", result.StrategyName,
			"symbol", result.Symbol,
			"error", result.Error,
		)
	}

	if r.sink != nil {
		r.sink.BacktestCompleted(result)
	}
	return result
}

// simulate runs the bar loop and assembles the result.
func (r *Runner) simulate(ctx context.Context, req Request, bars []model.HistoricalBar) *model.BacktestResult {
	start, end := req.StartDate, req.EndDate
	if len(bars) > 0 {
		if start.IsZero() {
			start = bars[0].Timestamp
		}
		if end.IsZero() {
			end = bars[len(bars)-1].Timestamp
		}
	}

	result := &model.BacktestResult{
		BacktestID:     backtestID(req.StrategyName, req.Symbol, start, end),
		StrategyName:   req.StrategyName,
		Symbol:         req.Symbol,
		StartDate:      start,
		EndDate:        end,
		InitialCapital: req.InitialCapital,
		FinalCapital:   req.InitialCapital,
		Metrics:        model.Metrics{},
	}

	if len(bars) == 0 {
		result.Error = errNoData
		return result
	}

	strat, err := strategy.New(req.StrategyName)
	if err != nil {
		result.Error = fmt.Sprintf("Strategy %s not found", req.StrategyName)
		return result
	}

	params := r.prepareParams(req)
	if err := strat.Configure(params); err != nil {
		result.Error = err.Error()
		return result
	}

	if r.sink != nil {
		r.sink.BacktestStarted(result.BacktestID, req.StrategyName, req.Symbol)
	}

	// Process in timestamp order regardless of provider ordering.
	sorted := make([]model.HistoricalBar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	portfolio := ledger.NewPortfolio(req.InitialCapital)
	engine := matching.NewEngine(portfolio)

	var (
		trades      []model.Fill
		equityCurve []model.EquityPoint
		pending     []model.OrderIntent
		faults      int
	)

	for i, bar := range sorted {
		// Cooperative cancellation between bars.
		if ctx.Err() != nil {
			result.Error = "backtest cancelled"
			return result
		}

		// Earlier orders have priority: route the pending queue first.
		pending, trades = r.matchBatch(result.BacktestID, engine, pending, bar, trades)

		sctx := strategy.Context{
			Symbol:      req.Symbol,
			Bar:         bar,
			History:     sorted[:i+1],
			Cash:        portfolio.Cash(),
			PositionQty: portfolio.Quantity(req.Symbol),
		}

		// A per-bar fault never aborts the run: log it, count it, and
		// treat the bar as producing zero orders.
		stratResult, err := strat.Execute(sctx)
		if err != nil {
			faults++
			metrics.StrategyFaults.WithLabelValues(req.StrategyName).Inc()
			slog.Error("strategy evaluation fault",
				"strategy", req.StrategyName,
				"bar", bar.Timestamp,
				"err", err,
			)
			stratResult = strategy.Result{}
		}

		// New intents are matched against the same bar before moving on.
		if len(stratResult.Orders) > 0 {
			var carried []model.OrderIntent
			carried, trades = r.matchBatch(result.BacktestID, engine, stratResult.Orders, bar, trades)
			pending = append(pending, carried...)
		}

		positionValue := portfolio.PositionValue(req.Symbol, bar.Close)
		equityCurve = append(equityCurve, model.EquityPoint{
			Timestamp:      bar.Timestamp,
			PortfolioValue: portfolio.Cash().Add(positionValue),
			Cash:           portfolio.Cash(),
			PositionValue:  positionValue,
			ClosePrice:     bar.Close,
		})

		metrics.BarsProcessed.Inc()
	}

	finalValue := equityCurve[len(equityCurve)-1].PortfolioValue
	report := analytics.Analyze(trades, equityCurve)
	report.Metrics["strategy_faults"] = float64(faults)

	result.Success = true
	result.FinalCapital = finalValue
	result.TotalReturn = totalReturn(req.InitialCapital, finalValue)
	result.MaxDrawdown = report.MaxDrawdown
	result.SharpeRatio = report.SharpeRatio
	result.Metrics = report.Metrics
	result.Trades = trades
	result.EquityCurve = equityCurve
	return result
}

// matchBatch routes a batch of intents through the matching engine
// against one bar, in order. It returns the intents still pending and
// the extended trade list. Unsupported kinds are dropped (the engine
// logs them).
func (r *Runner) matchBatch(backtestID string, engine *matching.Engine, intents []model.OrderIntent, bar model.HistoricalBar, trades []model.Fill) ([]model.OrderIntent, []model.Fill) {
	var remaining []model.OrderIntent
	for _, intent := range intents {
		fill, keep, err := engine.Match(intent, bar)
		if err != nil {
			continue // unsupported kind: dropped without ledger effect
		}
		if fill != nil {
			trades = append(trades, *fill)
			metrics.SimulatedFills.WithLabelValues(fill.Side).Inc()
			if r.sink != nil {
				r.sink.BacktestFill(backtestID, *fill)
			}
		}
		if keep {
			remaining = append(remaining, intent)
		}
	}
	return remaining, trades
}

// prepareParams copies the request parameters, filling in the symbol
// and, for the oscillating strategy, a deterministic seed so simulated
// runs are reproducible unless the caller overrides it.
func (r *Runner) prepareParams(req Request) strategy.Params {
	params := make(strategy.Params, len(req.Params)+2)
	for k, v := range req.Params {
		params[k] = v
	}
	if _, ok := params["symbol"]; !ok {
		params["symbol"] = req.Symbol
	}
	if req.StrategyName == strategy.NameOscillating {
		if _, ok := params["seed"]; !ok {
			params["seed"] = defaultSeed
		}
	}
	return params
}

// totalReturn computes (final/initial - 1) * 100 as float64.
func totalReturn(initial, final decimal.Decimal) float64 {
	if !initial.IsPositive() {
		return 0
	}
	return final.Div(initial).InexactFloat64()*100 - 100
}

// backtestID builds the unique run identifier from strategy, symbol,
// date range, and a creation-time suffix.
func backtestID(strategyName, symbol string, start, end time.Time) string {
	suffix := strings.Split(uuid.New().String(), "-")[0]
	return fmt.Sprintf("%s_%s_%s_%s_%s",
		strategyName, symbol,
		start.Format("20060102"), end.Format("20060102"),
		suffix,
	)
}
