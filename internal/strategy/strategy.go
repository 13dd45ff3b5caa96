// Package strategy implements the trading-strategy contract shared
// between the simulator and live execution, plus the closed set of
// variants: basic, ladder, oscillating, highlow, and oto_ladder.
//
// A strategy is evaluated once per bar (simulation) or once per quote
// (live) and emits order intents; it never touches the ledger or the
// matching engine directly. Collaborators are injected at construction;
// there is no process-wide service lookup.
package strategy

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stratlab/backtest-engine/internal/model"
)

var (
	// ErrValidation marks bad strategy parameters. The orchestrator
	// surfaces it as a failed BacktestResult.
	ErrValidation = errors.New("strategy: invalid configuration")

	// ErrUnknownStrategy is returned by New for unregistered names.
	ErrUnknownStrategy = errors.New("strategy: unknown strategy")
)

// Context is the market view handed to a strategy for one evaluation.
type Context struct {
	Symbol  string
	Bar     model.HistoricalBar
	History []model.HistoricalBar // bars up to and including the current one

	// Portfolio snapshot at the start of the evaluation.
	Cash        decimal.Decimal
	PositionQty int64
}

// Price returns the evaluation price for threshold strategies: the
// current bar's close.
func (c Context) Price() decimal.Decimal {
	return c.Bar.Close
}

// Result is a strategy's output for one evaluation. A nil Orders slice
// means no action this step.
type Result struct {
	Orders []model.OrderIntent
	Action string // BUY, SELL, or NONE; last signal, for status reporting
}

// Strategy is the contract every variant implements. Configure merges
// parameters into persistent config and validates them; Execute is
// side-effect-free beyond the strategy's own fields.
type Strategy interface {
	Name() string
	Configure(p Params) error
	Execute(ctx Context) (Result, error)
	Start()
	Stop()
	Status() map[string]any
}

// Params is a loosely typed parameter bag, merged into a strategy's
// persistent config by Configure. Numeric values may arrive as int,
// int64, or float64 depending on the caller (JSON decodes to float64).
type Params map[string]any

func (p Params) str(key string) (string, bool) {
	v, ok := p[key].(string)
	return v, ok
}

func (p Params) int64Val(key string) (int64, bool) {
	switch v := p[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	return 0, false
}

func (p Params) float(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func (p Params) decimalVal(key string) (decimal.Decimal, bool) {
	switch v := p[key].(type) {
	case decimal.Decimal:
		return v, true
	case float64:
		return decimal.NewFromFloat(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case string:
		d, err := decimal.NewFromString(v)
		if err == nil {
			return d, true
		}
	}
	return decimal.Decimal{}, false
}

func (p Params) boolVal(key string) (bool, bool) {
	v, ok := p[key].(bool)
	return v, ok
}

func (p Params) duration(key string) (time.Duration, bool) {
	switch v := p[key].(type) {
	case time.Duration:
		return v, true
	case int:
		return time.Duration(v) * time.Second, true
	case int64:
		return time.Duration(v) * time.Second, true
	case float64:
		return time.Duration(v * float64(time.Second)), true
	}
	return 0, false
}

// Registered strategy names.
const (
	NameBasic       = "basic"
	NameLadder      = "ladder"
	NameOscillating = "oscillating"
	NameHighLow     = "highlow"
	NameOTOLadder   = "oto_ladder"
)

// New constructs a fresh, unconfigured strategy instance by name.
func New(name string) (Strategy, error) {
	switch name {
	case NameBasic:
		return NewBasic(), nil
	case NameLadder:
		return NewLadder(nil), nil
	case NameOscillating:
		return NewOscillating(nil), nil
	case NameHighLow:
		return NewHighLow(), nil
	case NameOTOLadder:
		return NewOTOLadder(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
}

// Names returns all registered strategy names, sorted.
func Names() []string {
	names := []string{NameBasic, NameLadder, NameOscillating, NameHighLow, NameOTOLadder}
	sort.Strings(names)
	return names
}
