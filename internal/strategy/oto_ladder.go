package strategy

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/stratlab/backtest-engine/internal/model"
)

// sellPercentage is the fraction of the initial share count sold at each
// step level.
const sellPercentage = 0.05

// OTOChain is the order triplet emitted when a new step level is
// reached: a sell at the step price that conceptually triggers a
// buy-back two steps lower, which triggers a take-profit one step above
// the buy-back.
type OTOChain struct {
	StepLevel       int             `json:"step_level"`
	SellPrice       decimal.Decimal `json:"sell_price"`
	BuyBackPrice    decimal.Decimal `json:"buy_back_price"`
	TakeProfitPrice decimal.Decimal `json:"take_profit_price"`
	Quantity        int64           `json:"quantity"`
}

// OTOLadder scales out of a position on the way up. Each time the price
// advances a full step above the highest level already acted on, it
// emits an OTO chain for 5% of the initial shares. An optional price
// target terminates the strategy once reached.
type OTOLadder struct {
	symbol        string
	startPrice    decimal.Decimal
	step          decimal.Decimal
	initialShares int64
	priceTarget   decimal.Decimal // zero = no target

	highestStepSold int
	targetReached   bool
	chains          []OTOChain
	running         bool
}

// NewOTOLadder creates an unconfigured OTO ladder strategy.
func NewOTOLadder() *OTOLadder {
	return &OTOLadder{
		step:            decimal.NewFromInt(5),
		highestStepSold: -1,
	}
}

func (s *OTOLadder) Name() string { return NameOTOLadder }

func (s *OTOLadder) Configure(p Params) error {
	if v, ok := p.str("symbol"); ok {
		s.symbol = v
	}
	if v, ok := p.decimalVal("start_price"); ok {
		s.startPrice = v
	}
	if v, ok := p.decimalVal("step"); ok {
		s.step = v
	}
	if v, ok := p.int64Val("initial_shares"); ok {
		s.initialShares = v
	}
	if v, ok := p.decimalVal("price_target"); ok {
		s.priceTarget = v
	}
	s.highestStepSold = -1
	s.targetReached = false
	s.chains = nil

	if s.symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrValidation)
	}
	if !s.step.IsPositive() {
		return fmt.Errorf("%w: step must be greater than 0", ErrValidation)
	}
	if s.initialShares <= 0 {
		return fmt.Errorf("%w: initial shares must be greater than 0", ErrValidation)
	}
	if !s.startPrice.IsPositive() {
		return fmt.Errorf("%w: start price must be greater than 0", ErrValidation)
	}
	if !s.priceTarget.IsZero() && s.priceTarget.LessThanOrEqual(s.startPrice) {
		return fmt.Errorf("%w: price target must be greater than start price", ErrValidation)
	}
	return nil
}

// SharesPerStep returns the share count sold at each step level.
func (s *OTOLadder) SharesPerStep() int64 {
	return decimal.NewFromInt(s.initialShares).
		Mul(decimal.NewFromFloat(sellPercentage)).
		Round(0).IntPart()
}

// StepLevel returns floor((price - start) / step) once the price has
// reached the start, or -1 below it.
func (s *OTOLadder) StepLevel(price decimal.Decimal) int {
	if price.LessThan(s.startPrice) {
		return -1
	}
	return int(price.Sub(s.startPrice).Div(s.step).Floor().IntPart())
}

// TargetReached reports whether the configured price target has been
// hit. Once true, Execute stops emitting intents.
func (s *OTOLadder) TargetReached() bool { return s.targetReached }

// Chains returns all OTO chains emitted so far.
func (s *OTOLadder) Chains() []OTOChain { return s.chains }

func (s *OTOLadder) Execute(ctx Context) (Result, error) {
	if s.targetReached {
		return Result{Action: "NONE"}, nil
	}

	price := ctx.Price()

	if !s.priceTarget.IsZero() && price.GreaterThanOrEqual(s.priceTarget) {
		s.targetReached = true
		slog.Info("oto ladder price target reached",
			"symbol", s.symbol,
			"price", price.String(),
			"target", s.priceTarget.String(),
		)
		return Result{Action: "NONE"}, nil
	}

	level := s.StepLevel(price)
	if level <= s.highestStepSold {
		return Result{Action: "NONE"}, nil
	}
	s.highestStepSold = level

	qty := s.SharesPerStep()
	if qty <= 0 {
		return Result{Action: "NONE"}, nil
	}

	sellPrice := s.startPrice.Add(s.step.Mul(decimal.NewFromInt(int64(level))))
	buyBackPrice := sellPrice.Sub(s.step.Mul(decimal.NewFromInt(2)))
	takeProfitPrice := buyBackPrice.Add(s.step)

	chain := OTOChain{
		StepLevel:       level,
		SellPrice:       sellPrice,
		BuyBackPrice:    buyBackPrice,
		TakeProfitPrice: takeProfitPrice,
		Quantity:        qty,
	}
	s.chains = append(s.chains, chain)

	slog.Info("oto ladder step reached",
		"symbol", s.symbol,
		"step_level", level,
		"sell", sellPrice.String(),
		"buy_back", buyBackPrice.String(),
		"take_profit", takeProfitPrice.String(),
	)

	orders := []model.OrderIntent{
		{
			Symbol:     s.symbol,
			Side:       model.SideSell,
			Quantity:   qty,
			Kind:       model.KindLimit,
			LimitPrice: sellPrice,
			StrategyID: s.Name(),
		},
		{
			Symbol:     s.symbol,
			Side:       model.SideBuy,
			Quantity:   qty,
			Kind:       model.KindLimit,
			LimitPrice: buyBackPrice,
			StrategyID: s.Name(),
		},
		{
			Symbol:     s.symbol,
			Side:       model.SideSell,
			Quantity:   qty,
			Kind:       model.KindLimit,
			LimitPrice: takeProfitPrice,
			StrategyID: s.Name(),
		},
	}

	return Result{Orders: orders, Action: model.SideSell}, nil
}

func (s *OTOLadder) Start() { s.running = true }
func (s *OTOLadder) Stop()  { s.running = false }

func (s *OTOLadder) Status() map[string]any {
	return map[string]any{
		"name":              s.Name(),
		"running":           s.running,
		"symbol":            s.symbol,
		"start_price":       s.startPrice.String(),
		"step":              s.step.String(),
		"initial_shares":    s.initialShares,
		"shares_per_step":   s.SharesPerStep(),
		"highest_step_sold": s.highestStepSold,
		"target_reached":    s.targetReached,
		"chains_emitted":    len(s.chains),
	}
}
