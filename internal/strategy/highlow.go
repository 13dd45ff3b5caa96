package strategy

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/stratlab/backtest-engine/internal/model"
)

// HighLow buys when the price drops to or below a low threshold and
// sells when it rises to or above a high threshold. The last-action
// field prevents repeated identical actions while the price sits on one
// side of a threshold.
type HighLow struct {
	symbol        string
	quantity      int64
	lowThreshold  decimal.Decimal
	highThreshold decimal.Decimal
	lastAction    string
	running       bool
}

// NewHighLow creates an unconfigured high/low strategy.
func NewHighLow() *HighLow {
	return &HighLow{}
}

func (s *HighLow) Name() string { return NameHighLow }

func (s *HighLow) Configure(p Params) error {
	if v, ok := p.str("symbol"); ok {
		s.symbol = v
	}
	if v, ok := p.int64Val("quantity"); ok {
		s.quantity = v
	}
	if v, ok := p.decimalVal("low_threshold"); ok {
		s.lowThreshold = v
	}
	if v, ok := p.decimalVal("high_threshold"); ok {
		s.highThreshold = v
	}

	if s.symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrValidation)
	}
	if s.quantity <= 0 {
		return fmt.Errorf("%w: quantity must be greater than 0", ErrValidation)
	}
	if !s.lowThreshold.IsPositive() || !s.highThreshold.IsPositive() {
		return fmt.Errorf("%w: thresholds must be greater than 0", ErrValidation)
	}
	if s.lowThreshold.GreaterThanOrEqual(s.highThreshold) {
		return fmt.Errorf("%w: low threshold must be below high threshold", ErrValidation)
	}
	return nil
}

func (s *HighLow) Execute(ctx Context) (Result, error) {
	price := ctx.Price()

	if price.LessThanOrEqual(s.lowThreshold) && s.lastAction != model.SideBuy {
		s.lastAction = model.SideBuy
		slog.Info("highlow buy signal", "symbol", s.symbol, "price", price.String())
		return Result{
			Orders: []model.OrderIntent{{
				Symbol:     s.symbol,
				Side:       model.SideBuy,
				Quantity:   s.quantity,
				Kind:       model.KindMarket,
				StrategyID: s.Name(),
			}},
			Action: model.SideBuy,
		}, nil
	}

	if price.GreaterThanOrEqual(s.highThreshold) && s.lastAction != model.SideSell {
		s.lastAction = model.SideSell
		slog.Info("highlow sell signal", "symbol", s.symbol, "price", price.String())
		return Result{
			Orders: []model.OrderIntent{{
				Symbol:     s.symbol,
				Side:       model.SideSell,
				Quantity:   s.quantity,
				Kind:       model.KindMarket,
				StrategyID: s.Name(),
			}},
			Action: model.SideSell,
		}, nil
	}

	return Result{Action: "NONE"}, nil
}

func (s *HighLow) Start() { s.running = true }
func (s *HighLow) Stop()  { s.running = false }

func (s *HighLow) Status() map[string]any {
	return map[string]any{
		"name":           s.Name(),
		"running":        s.running,
		"symbol":         s.symbol,
		"low_threshold":  s.lowThreshold.String(),
		"high_threshold": s.highThreshold.String(),
		"last_action":    s.lastAction,
	}
}
