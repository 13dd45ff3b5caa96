// Package model defines the core domain types shared across the backtest
// engine. All monetary values use shopspring/decimal — never float64 for
// money; float64 appears only in statistical metrics.
package model

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Order sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order kinds.
const (
	KindMarket = "MARKET"
	KindLimit  = "LIMIT"
)

// HistoricalBar is one OHLCV data point for a fixed time interval.
// Immutable once produced; the orchestrator requires strictly increasing
// timestamps.
type HistoricalBar struct {
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
	Open      decimal.Decimal `json:"open" db:"open"`
	High      decimal.Decimal `json:"high" db:"high"`
	Low       decimal.Decimal `json:"low" db:"low"`
	Close     decimal.Decimal `json:"close" db:"close"`
	Volume    int64           `json:"volume" db:"volume"`
}

// Quote is a point-in-time price snapshot for live execution.
type Quote struct {
	Symbol    string          `json:"symbol"`
	LastPrice decimal.Decimal `json:"last_price"`
	Timestamp time.Time       `json:"timestamp"`
}

// OrderIntent is an order request emitted by a strategy during one
// evaluation step. It is consumed exactly once by the matching engine:
// filled, clipped, or carried over as a pending limit order.
type OrderIntent struct {
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`        // BUY or SELL
	Quantity   int64           `json:"quantity"`    // shares, > 0
	Kind       string          `json:"kind"`        // MARKET or LIMIT
	LimitPrice decimal.Decimal `json:"limit_price"` // required iff Kind == LIMIT
	StrategyID string          `json:"strategy_id"`
	LadderID   string          `json:"ladder_id,omitempty"` // set for ladder batches
}

// Fill is the immutable record of an order execution. Appended to the
// trade ledger; never mutated after creation.
type Fill struct {
	ID        string          `json:"id" db:"id"`
	Symbol    string          `json:"symbol" db:"symbol"`
	Side      string          `json:"side" db:"side"`
	Quantity  int64           `json:"quantity" db:"quantity"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Value     decimal.Decimal `json:"value" db:"value"` // quantity * price
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// Position is a trader's holdings in one symbol. Quantity is signed
// (positive = long); CostBasis is the weighted-average cost per share.
type Position struct {
	Symbol    string          `json:"symbol"`
	Quantity  int64           `json:"quantity"`
	CostBasis decimal.Decimal `json:"cost_basis"`
}

// MarketValue returns the position's value at the given price.
func (p Position) MarketValue(price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(p.Quantity))
}

// EquityPoint is one entry of the equity curve: the portfolio snapshot
// taken at the close of one bar.
type EquityPoint struct {
	Timestamp      time.Time       `json:"timestamp"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
	Cash           decimal.Decimal `json:"cash"`
	PositionValue  decimal.Decimal `json:"position_value"`
	ClosePrice     decimal.Decimal `json:"close_price"`
}

// Metrics is the performance-metric map attached to a BacktestResult.
// Profit factor may legitimately be +Inf (no losing trades), which
// encoding/json rejects, so Metrics encodes non-finite values as the
// strings "inf", "-inf", and "nan".
type Metrics map[string]float64

// MarshalJSON implements json.Marshaler with non-finite value handling.
func (m Metrics) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch {
		case math.IsInf(v, 1):
			out[k] = "inf"
		case math.IsInf(v, -1):
			out[k] = "-inf"
		case math.IsNaN(v):
			out[k] = "nan"
		default:
			out[k] = v
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler, reversing MarshalJSON.
func (m *Metrics) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Metrics, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case float64:
			out[k] = t
		case string:
			switch t {
			case "inf":
				out[k] = math.Inf(1)
			case "-inf":
				out[k] = math.Inf(-1)
			case "nan":
				out[k] = math.NaN()
			default:
				if f, err := strconv.ParseFloat(t, 64); err == nil {
					out[k] = f
				}
			}
		}
	}
	*m = out
	return nil
}

// BacktestResult is the immutable outcome of one simulation run. Every
// call into the orchestrator produces one, including failures
// (Success=false with Error set).
type BacktestResult struct {
	BacktestID     string          `json:"backtest_id" db:"backtest_id"`
	Success        bool            `json:"success" db:"success"`
	Error          string          `json:"error,omitempty" db:"error"`
	StrategyName   string          `json:"strategy_name" db:"strategy_name"`
	Symbol         string          `json:"symbol" db:"symbol"`
	StartDate      time.Time       `json:"start_date" db:"start_date"`
	EndDate        time.Time       `json:"end_date" db:"end_date"`
	InitialCapital decimal.Decimal `json:"initial_capital" db:"initial_capital"`
	FinalCapital   decimal.Decimal `json:"final_capital" db:"final_capital"`
	TotalReturn    float64         `json:"total_return"` // percent
	MaxDrawdown    float64         `json:"max_drawdown"` // percent
	SharpeRatio    float64         `json:"sharpe_ratio"`
	Metrics        Metrics         `json:"metrics"`
	Trades         []Fill          `json:"trades"`
	EquityCurve    []EquityPoint   `json:"equity_curve"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// ComparisonResult ranks multiple strategies over a shared symbol, date
// range, and starting capital.
type ComparisonResult struct {
	Results        map[string]*BacktestResult `json:"results"`
	MetricRankings map[string]map[string]int  `json:"metric_rankings"` // metric → strategy → rank (1 = best)
	OverallRanking []string                   `json:"overall_ranking"` // best first
	BestStrategy   string                     `json:"best_strategy"`
	Symbol         string                     `json:"symbol"`
	StartDate      time.Time                  `json:"start_date"`
	EndDate        time.Time                  `json:"end_date"`
	InitialCapital decimal.Decimal            `json:"initial_capital"`
}
