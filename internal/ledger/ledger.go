// Package ledger implements portfolio accounting: cash plus per-symbol
// positions. The ledger never rejects a fill — it records only fills the
// matching engine has already validated and clipped, so all defensive
// clamping lives upstream.
package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/stratlab/backtest-engine/internal/model"
)

// Portfolio tracks cash and positions for one simulation run. It is owned
// exclusively by a single orchestrator loop and is not safe for concurrent
// use.
type Portfolio struct {
	cash      decimal.Decimal
	positions map[string]*model.Position
}

// NewPortfolio creates a portfolio with the given starting cash.
func NewPortfolio(initialCash decimal.Decimal) *Portfolio {
	return &Portfolio{
		cash:      initialCash,
		positions: make(map[string]*model.Position),
	}
}

// Cash returns the current cash balance.
func (p *Portfolio) Cash() decimal.Decimal {
	return p.cash
}

// Position returns the current position for a symbol. A flat symbol
// returns a zero-quantity position.
func (p *Portfolio) Position(symbol string) model.Position {
	if pos, ok := p.positions[symbol]; ok {
		return *pos
	}
	return model.Position{Symbol: symbol}
}

// Quantity returns the held quantity for a symbol.
func (p *Portfolio) Quantity(symbol string) int64 {
	if pos, ok := p.positions[symbol]; ok {
		return pos.Quantity
	}
	return 0
}

// ApplyFill mutates cash and the relevant position.
//
// Buys use weighted-average-cost accounting: the new cost basis is the
// quantity-weighted mean of the old basis and the fill price. Sells
// realize proportionally and leave the per-share basis unchanged; a
// position sold to zero resets its basis.
func (p *Portfolio) ApplyFill(fill model.Fill) {
	pos, ok := p.positions[fill.Symbol]
	if !ok {
		pos = &model.Position{Symbol: fill.Symbol}
		p.positions[fill.Symbol] = pos
	}

	qty := decimal.NewFromInt(fill.Quantity)
	value := fill.Price.Mul(qty)

	if fill.Side == model.SideBuy {
		oldQty := decimal.NewFromInt(pos.Quantity)
		newQty := oldQty.Add(qty)
		if newQty.IsPositive() {
			totalCost := pos.CostBasis.Mul(oldQty).Add(value)
			pos.CostBasis = totalCost.Div(newQty)
		}
		pos.Quantity += fill.Quantity
		p.cash = p.cash.Sub(value)
		return
	}

	pos.Quantity -= fill.Quantity
	if pos.Quantity == 0 {
		pos.CostBasis = decimal.Zero
	}
	p.cash = p.cash.Add(value)
}

// MarkToMarket returns the total portfolio value (cash plus all position
// value) pricing the given symbol at price. Does not mutate positions.
func (p *Portfolio) MarkToMarket(symbol string, price decimal.Decimal) decimal.Decimal {
	return p.cash.Add(p.PositionValue(symbol, price))
}

// PositionValue returns the market value of one symbol's position at the
// given price.
func (p *Portfolio) PositionValue(symbol string, price decimal.Decimal) decimal.Decimal {
	pos, ok := p.positions[symbol]
	if !ok {
		return decimal.Zero
	}
	return pos.MarketValue(price)
}

// Positions returns a snapshot of all non-flat positions.
func (p *Portfolio) Positions() []model.Position {
	out := make([]model.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		if pos.Quantity != 0 {
			out = append(out, *pos)
		}
	}
	return out
}
