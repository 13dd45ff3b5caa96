package strategy

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/stratlab/backtest-engine/internal/model"
)

// Basic emits exactly one order intent per evaluation: a single buy or
// sell with the configured side, quantity, and kind.
type Basic struct {
	symbol   string
	quantity int64
	side     string
	kind     string
	price    decimal.Decimal
	running  bool
}

// NewBasic creates an unconfigured basic strategy.
func NewBasic() *Basic {
	return &Basic{kind: model.KindMarket}
}

func (s *Basic) Name() string { return NameBasic }

// Configure merges parameters and validates them: symbol required,
// quantity > 0, side BUY or SELL, price required for non-MARKET orders.
func (s *Basic) Configure(p Params) error {
	if v, ok := p.str("symbol"); ok {
		s.symbol = v
	}
	if v, ok := p.int64Val("quantity"); ok {
		s.quantity = v
	}
	if v, ok := p.str("side"); ok {
		s.side = v
	}
	if v, ok := p.str("order_type"); ok {
		s.kind = v
	}
	if v, ok := p.decimalVal("price"); ok {
		s.price = v
	}

	if s.symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrValidation)
	}
	if s.quantity <= 0 {
		return fmt.Errorf("%w: quantity must be greater than 0", ErrValidation)
	}
	if s.side != model.SideBuy && s.side != model.SideSell {
		return fmt.Errorf("%w: side must be BUY or SELL", ErrValidation)
	}
	if s.kind != model.KindMarket && s.price.IsZero() {
		return fmt.Errorf("%w: price is required for non-market orders", ErrValidation)
	}
	return nil
}

func (s *Basic) Execute(ctx Context) (Result, error) {
	intent := model.OrderIntent{
		Symbol:     s.symbol,
		Side:       s.side,
		Quantity:   s.quantity,
		Kind:       s.kind,
		StrategyID: s.Name(),
	}
	if s.kind != model.KindMarket {
		intent.LimitPrice = s.price
	}

	slog.Debug("basic strategy emitting order",
		"symbol", s.symbol, "side", s.side, "qty", s.quantity, "kind", s.kind)

	return Result{Orders: []model.OrderIntent{intent}, Action: s.side}, nil
}

func (s *Basic) Start() { s.running = true }
func (s *Basic) Stop()  { s.running = false }

func (s *Basic) Status() map[string]any {
	return map[string]any{
		"name":     s.Name(),
		"running":  s.running,
		"symbol":   s.symbol,
		"side":     s.side,
		"quantity": s.quantity,
	}
}
