// Package matching decides whether and at what price a pending order
// fills against one historical bar. Fill rules:
//
//   - MARKET orders always fill at the bar's open.
//   - LIMIT BUY fills when bar.Low <= limit, at min(open, limit).
//   - LIMIT SELL fills when bar.High >= limit, at max(open, limit).
//
// Quantities are clipped before filling so the ledger never goes
// negative: buys to floor(cash / fillPrice), sells to the held quantity.
// A zero clip leaves the order pending for a later bar.
package matching

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stratlab/backtest-engine/internal/ledger"
	"github.com/stratlab/backtest-engine/internal/model"
)

// ErrUnsupportedOrderKind is returned for any order kind other than
// MARKET or LIMIT. The caller drops the order without touching the
// ledger.
var ErrUnsupportedOrderKind = errors.New("matching: unsupported order kind")

// Engine matches order intents against bars for one portfolio.
type Engine struct {
	portfolio *ledger.Portfolio
}

// NewEngine creates a matching engine bound to one portfolio.
func NewEngine(p *ledger.Portfolio) *Engine {
	return &Engine{portfolio: p}
}

// Match processes one intent against one bar.
//
// It returns the resulting fill (nil if none this bar) and whether the
// intent should be retained as pending. Unsupported order kinds return
// ErrUnsupportedOrderKind with pending=false; the intent is discarded.
// A produced fill has already been applied to the portfolio.
func (e *Engine) Match(intent model.OrderIntent, bar model.HistoricalBar) (*model.Fill, bool, error) {
	var fillPrice decimal.Decimal

	switch intent.Kind {
	case model.KindMarket:
		fillPrice = bar.Open
	case model.KindLimit:
		if intent.Side == model.SideBuy {
			if bar.Low.GreaterThan(intent.LimitPrice) {
				return nil, true, nil
			}
			fillPrice = decimal.Min(bar.Open, intent.LimitPrice)
		} else {
			if bar.High.LessThan(intent.LimitPrice) {
				return nil, true, nil
			}
			fillPrice = decimal.Max(bar.Open, intent.LimitPrice)
		}
	default:
		slog.Warn("dropping order with unsupported kind",
			"kind", intent.Kind,
			"symbol", intent.Symbol,
			"strategy", intent.StrategyID,
		)
		return nil, false, ErrUnsupportedOrderKind
	}

	qty := e.clipQuantity(intent, fillPrice)
	if qty <= 0 {
		// Cannot fill this bar (no cash or no shares); retry later.
		return nil, true, nil
	}

	fill := model.Fill{
		ID:        uuid.New().String(),
		Symbol:    intent.Symbol,
		Side:      intent.Side,
		Quantity:  qty,
		Price:     fillPrice,
		Value:     fillPrice.Mul(decimal.NewFromInt(qty)),
		Timestamp: bar.Timestamp,
	}
	e.portfolio.ApplyFill(fill)

	return &fill, false, nil
}

// clipQuantity bounds the fill quantity so cash and positions stay
// non-negative. Buys are limited to floor(cash / price), sells to the
// currently held quantity.
func (e *Engine) clipQuantity(intent model.OrderIntent, price decimal.Decimal) int64 {
	qty := intent.Quantity

	if intent.Side == model.SideBuy {
		cost := price.Mul(decimal.NewFromInt(qty))
		if cost.GreaterThan(e.portfolio.Cash()) {
			qty = e.portfolio.Cash().Div(price).Floor().IntPart()
		}
		return qty
	}

	if held := e.portfolio.Quantity(intent.Symbol); qty > held {
		qty = held
	}
	return qty
}
