package backtest_test

import (
	"context"
	"testing"

	"github.com/stratlab/backtest-engine/internal/backtest"
	"github.com/stratlab/backtest-engine/internal/model"
	"github.com/stratlab/backtest-engine/internal/strategy"
)

// trendBars is a simple up-trending series every strategy can run over.
func trendBars() []model.HistoricalBar {
	return []model.HistoricalBar{
		bar(0, 100, 101, 99, 100),
		bar(1, 100, 103, 99, 102),
		bar(2, 102, 105, 101, 104),
		bar(3, 104, 107, 103, 106),
		bar(4, 106, 109, 105, 108),
	}
}

func TestCompare_RunsEveryStrategy(t *testing.T) {
	comparison := newRunner().Compare(context.Background(), backtest.CompareRequest{
		StrategyNames:  []string{strategy.NameBasic, strategy.NameHighLow},
		Symbol:         "AAPL",
		Bars:           trendBars(),
		InitialCapital: d(10000),
		Params: map[string]strategy.Params{
			strategy.NameBasic: {"quantity": 10, "side": model.SideBuy},
			strategy.NameHighLow: {
				"quantity":       10,
				"low_threshold":  101,
				"high_threshold": 105,
			},
		},
	})

	if len(comparison.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(comparison.Results))
	}
	for name, result := range comparison.Results {
		if !result.Success {
			t.Errorf("strategy %s failed: %q", name, result.Error)
		}
	}
	if len(comparison.OverallRanking) != 2 {
		t.Fatalf("expected 2 ranked strategies, got %d", len(comparison.OverallRanking))
	}
	if comparison.BestStrategy != comparison.OverallRanking[0] {
		t.Error("best strategy must head the overall ranking")
	}
}

func TestCompare_RankingDirections(t *testing.T) {
	comparison := newRunner().Compare(context.Background(), backtest.CompareRequest{
		StrategyNames:  []string{strategy.NameBasic, strategy.NameHighLow},
		Symbol:         "AAPL",
		Bars:           trendBars(),
		InitialCapital: d(10000),
		Params: map[string]strategy.Params{
			strategy.NameBasic: {"quantity": 10, "side": model.SideBuy},
			strategy.NameHighLow: {
				"quantity":       10,
				"low_threshold":  101,
				"high_threshold": 105,
			},
		},
	})

	for _, metric := range []string{"total_return", "sharpe_ratio", "win_rate", "profit_factor", "max_drawdown"} {
		ranks, ok := comparison.MetricRankings[metric]
		if !ok {
			t.Fatalf("missing ranking for %s", metric)
		}
		if len(ranks) != 2 {
			t.Fatalf("metric %s: expected 2 ranked strategies, got %d", metric, len(ranks))
		}
		seen := map[int]bool{}
		for _, r := range ranks {
			if r < 1 || r > 2 {
				t.Errorf("metric %s: rank out of range: %d", metric, r)
			}
			seen[r] = true
		}
		if !seen[1] || !seen[2] {
			t.Errorf("metric %s: ranks must be a permutation of 1..n, got %v", metric, ranks)
		}
	}

	// Higher total return must rank first on that metric.
	basicReturn := comparison.Results[strategy.NameBasic].TotalReturn
	highlowReturn := comparison.Results[strategy.NameHighLow].TotalReturn
	ranks := comparison.MetricRankings["total_return"]
	if basicReturn > highlowReturn && ranks[strategy.NameBasic] != 1 {
		t.Errorf("total_return ranks descending: %v (returns %v vs %v)",
			ranks, basicReturn, highlowReturn)
	}
	if highlowReturn > basicReturn && ranks[strategy.NameHighLow] != 1 {
		t.Errorf("total_return ranks descending: %v (returns %v vs %v)",
			ranks, basicReturn, highlowReturn)
	}
}

func TestCompare_FailedRunsExcludedFromRanking(t *testing.T) {
	comparison := newRunner().Compare(context.Background(), backtest.CompareRequest{
		StrategyNames:  []string{strategy.NameBasic, "momentum"},
		Symbol:         "AAPL",
		Bars:           trendBars(),
		InitialCapital: d(10000),
		Params: map[string]strategy.Params{
			strategy.NameBasic: {"quantity": 10, "side": model.SideBuy},
		},
	})

	if len(comparison.Results) != 2 {
		t.Fatalf("failed runs must keep their result entry, got %d", len(comparison.Results))
	}
	if comparison.Results["momentum"].Success {
		t.Fatal("unknown strategy should produce a failed result")
	}
	if len(comparison.OverallRanking) != 1 || comparison.OverallRanking[0] != strategy.NameBasic {
		t.Errorf("only successful runs are ranked, got %v", comparison.OverallRanking)
	}
	if comparison.BestStrategy != strategy.NameBasic {
		t.Errorf("expected best strategy basic, got %q", comparison.BestStrategy)
	}
	for metric, ranks := range comparison.MetricRankings {
		if _, ok := ranks["momentum"]; ok {
			t.Errorf("failed strategy must not appear in %s ranking", metric)
		}
	}
}

func TestCompare_AllFailed(t *testing.T) {
	comparison := newRunner().Compare(context.Background(), backtest.CompareRequest{
		StrategyNames:  []string{"momentum", "meanrev"},
		Symbol:         "AAPL",
		Bars:           trendBars(),
		InitialCapital: d(10000),
	})

	if comparison.BestStrategy != "" {
		t.Errorf("no best strategy when every run fails, got %q", comparison.BestStrategy)
	}
	if len(comparison.OverallRanking) != 0 {
		t.Errorf("no overall ranking when every run fails, got %v", comparison.OverallRanking)
	}
}

func TestCompare_IdenticalStrategiesTieByName(t *testing.T) {
	// Two copies of the same configuration produce identical metrics, so
	// every rank falls back to the name tie-break.
	comparison := newRunner().Compare(context.Background(), backtest.CompareRequest{
		StrategyNames:  []string{strategy.NameHighLow, strategy.NameBasic},
		Symbol:         "AAPL",
		Bars: []model.HistoricalBar{
			bar(0, 100, 100, 100, 100), // nothing triggers: flat price, thresholds never hit
		},
		InitialCapital: d(10000),
		Params: map[string]strategy.Params{
			strategy.NameBasic: {"quantity": 10, "side": model.SideBuy, "order_type": model.KindLimit, "price": 50},
			strategy.NameHighLow: {
				"quantity":       10,
				"low_threshold":  50,
				"high_threshold": 200,
			},
		},
	})

	// Neither trades: all metrics equal, ties resolve alphabetically.
	if len(comparison.OverallRanking) != 2 {
		t.Fatalf("expected 2 ranked strategies, got %v", comparison.OverallRanking)
	}
	if comparison.OverallRanking[0] != strategy.NameBasic {
		t.Errorf("alphabetical tie-break expected basic first, got %v", comparison.OverallRanking)
	}
}
