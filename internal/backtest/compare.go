package backtest

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stratlab/backtest-engine/internal/model"
	"github.com/stratlab/backtest-engine/internal/strategy"
)

// CompareRequest runs several strategies over an identical symbol, bar
// set, and starting capital so their metrics are directly comparable.
type CompareRequest struct {
	StrategyNames  []string
	Symbol         string
	Bars           []model.HistoricalBar
	StartDate      time.Time
	EndDate        time.Time
	Interval       string
	InitialCapital decimal.Decimal
	// Params maps strategy name to its parameter set. Missing entries
	// get an empty set.
	Params map[string]strategy.Params
}

// Metric ranking directions. Higher is better for everything except
// drawdown.
var (
	descendingMetrics = []string{"total_return", "sharpe_ratio", "win_rate", "profit_factor"}
	ascendingMetrics  = []string{"max_drawdown"}
)

// Compare runs each named strategy with an independent portfolio and
// ranks the successful runs per metric plus overall. Failed runs keep
// their failure result but are excluded from every ranking.
func (r *Runner) Compare(ctx context.Context, req CompareRequest) *model.ComparisonResult {
	comparison := &model.ComparisonResult{
		Results:        make(map[string]*model.BacktestResult, len(req.StrategyNames)),
		MetricRankings: make(map[string]map[string]int),
		Symbol:         req.Symbol,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		InitialCapital: req.InitialCapital,
	}

	for _, name := range req.StrategyNames {
		result := r.Run(ctx, Request{
			StrategyName:   name,
			Symbol:         req.Symbol,
			Bars:           req.Bars,
			StartDate:      req.StartDate,
			EndDate:        req.EndDate,
			Interval:       req.Interval,
			InitialCapital: req.InitialCapital,
			Params:         req.Params[name],
		})
		comparison.Results[name] = result
	}

	rankResults(comparison)
	return comparison
}

// metricValue extracts a ranking metric from a result. Top-level fields
// take precedence; everything else is looked up in the metrics map.
func metricValue(result *model.BacktestResult, metric string) float64 {
	switch metric {
	case "total_return":
		return result.TotalReturn
	case "sharpe_ratio":
		return result.SharpeRatio
	case "max_drawdown":
		return result.MaxDrawdown
	default:
		return result.Metrics[metric]
	}
}

// rankResults fills MetricRankings, OverallRanking, and BestStrategy
// from the successful runs. Per-metric ranks start at 1; the overall
// order is ascending rank sum with name as the tie break.
func rankResults(comparison *model.ComparisonResult) {
	var names []string
	for name, result := range comparison.Results {
		if result.Success {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return
	}
	sort.Strings(names)

	rankSum := make(map[string]int, len(names))

	rank := func(metric string, descending bool) {
		ordered := make([]string, len(names))
		copy(ordered, names)
		sort.SliceStable(ordered, func(i, j int) bool {
			vi := metricValue(comparison.Results[ordered[i]], metric)
			vj := metricValue(comparison.Results[ordered[j]], metric)
			if vi == vj {
				return ordered[i] < ordered[j]
			}
			if descending {
				return vi > vj
			}
			return vi < vj
		})
		ranks := make(map[string]int, len(ordered))
		for i, name := range ordered {
			ranks[name] = i + 1
			rankSum[name] += i + 1
		}
		comparison.MetricRankings[metric] = ranks
	}

	for _, metric := range descendingMetrics {
		rank(metric, true)
	}
	for _, metric := range ascendingMetrics {
		rank(metric, false)
	}

	overall := make([]string, len(names))
	copy(overall, names)
	sort.SliceStable(overall, func(i, j int) bool {
		if rankSum[overall[i]] == rankSum[overall[j]] {
			return overall[i] < overall[j]
		}
		return rankSum[overall[i]] < rankSum[overall[j]]
	})
	comparison.OverallRanking = overall
	comparison.BestStrategy = overall[0]
}
