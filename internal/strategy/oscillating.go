package strategy

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stratlab/backtest-engine/internal/model"
)

// oscPosition is one FIFO entry in the oscillating strategy's open
// position queue.
type oscPosition struct {
	BuyPrice decimal.Decimal
	Quantity int64
	BuyTime  time.Time
}

// Oscillating buys and sells repeatedly as the price crosses thresholds
// computed around a reference price. After any action the thresholds are
// recentered on the fill price, so the strategy harvests range-bound
// movement. Selling is FIFO: the oldest open position goes first.
//
// All mutable state is guarded by a single mutex because live quotes
// arrive on a different goroutine than Start/Stop/Configure calls. In
// simulation only the orchestrator goroutine calls in, so the lock is
// uncontended.
type Oscillating struct {
	mu sync.Mutex

	symbol           string
	quantity         int64
	initialPrice     decimal.Decimal
	priceRange       decimal.Decimal
	isPercentage     bool
	useNormalDist    bool
	stdDev           float64
	minTradeInterval time.Duration
	maxPositions     int

	rng *rand.Rand

	buyThreshold  decimal.Decimal
	sellThreshold decimal.Decimal
	positions     []oscPosition
	lastTradeTime time.Time
	lastAction    string
	running       bool
	startedAt     time.Time
}

// NewOscillating creates an unconfigured oscillating strategy. rng may
// be nil, in which case a time-seeded source is used; backtests that
// enable normal-distribution randomization should inject a fixed-seed
// source (or pass a "seed" parameter) for reproducible runs.
func NewOscillating(rng *rand.Rand) *Oscillating {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Oscillating{
		priceRange:       decimal.NewFromFloat(0.01),
		isPercentage:     true,
		stdDev:           1.0,
		minTradeInterval: time.Minute,
		maxPositions:     3,
		rng:              rng,
	}
}

func (s *Oscillating) Name() string { return NameOscillating }

// Configure merges parameters and validates them. Recognized keys:
// symbol, quantity, initial_price, price_range, is_percentage,
// use_normal_dist, std_dev, min_trade_interval (seconds), max_positions,
// seed.
func (s *Oscillating) Configure(p Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := p.str("symbol"); ok {
		s.symbol = v
	}
	if v, ok := p.int64Val("quantity"); ok {
		s.quantity = v
	}
	if v, ok := p.decimalVal("initial_price"); ok {
		s.initialPrice = v
	}
	if v, ok := p.decimalVal("price_range"); ok {
		s.priceRange = v
	}
	if v, ok := p.boolVal("is_percentage"); ok {
		s.isPercentage = v
	}
	if v, ok := p.boolVal("use_normal_dist"); ok {
		s.useNormalDist = v
	}
	if v, ok := p.float("std_dev"); ok {
		s.stdDev = v
	}
	if v, ok := p.duration("min_trade_interval"); ok {
		s.minTradeInterval = v
	}
	if v, ok := p.int64Val("max_positions"); ok {
		s.maxPositions = int(v)
	}
	if v, ok := p.int64Val("seed"); ok {
		s.rng = rand.New(rand.NewSource(v))
	}

	if s.symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrValidation)
	}
	if s.quantity <= 0 {
		return fmt.Errorf("%w: quantity must be a positive integer", ErrValidation)
	}
	if !s.priceRange.IsPositive() {
		return fmt.Errorf("%w: price range must be positive", ErrValidation)
	}

	if s.initialPrice.IsPositive() {
		s.recalcThresholds(s.initialPrice)
	}
	return nil
}

// recalcThresholds centers the buy/sell thresholds around price. Callers
// must hold s.mu.
func (s *Oscillating) recalcThresholds(price decimal.Decimal) {
	var rangeAmount decimal.Decimal
	if s.isPercentage {
		rangeAmount = price.Mul(s.priceRange)
	} else {
		rangeAmount = s.priceRange
	}

	adjusted := rangeAmount
	if s.useNormalDist {
		factor := s.rng.NormFloat64() * s.stdDev
		adjusted = rangeAmount.Mul(decimal.NewFromFloat(0.5 + 0.5*factor))

		// The randomized range never shrinks below 10% of the base range.
		floor := rangeAmount.Mul(decimal.NewFromFloat(0.1))
		if adjusted.LessThan(floor) {
			adjusted = floor
		}
	}

	s.buyThreshold = price.Sub(adjusted)
	s.sellThreshold = price.Add(adjusted)

	slog.Debug("oscillating thresholds recalculated",
		"symbol", s.symbol,
		"buy", s.buyThreshold.String(),
		"sell", s.sellThreshold.String(),
	)
}

// Execute evaluates one tick. In simulation the tick price is the bar's
// close and the tick time is the bar's timestamp.
func (s *Oscillating) Execute(ctx Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	price := ctx.Price()
	if !price.IsPositive() {
		return Result{}, fmt.Errorf("%w: non-positive tick price", ErrValidation)
	}

	// First tick establishes the reference thresholds.
	if s.buyThreshold.IsZero() && s.sellThreshold.IsZero() {
		s.recalcThresholds(price)
		return Result{Action: "NONE"}, nil
	}

	now := ctx.Bar.Timestamp

	// Trade-interval gate.
	if !s.lastTradeTime.IsZero() && now.Sub(s.lastTradeTime) < s.minTradeInterval {
		return Result{Action: "NONE"}, nil
	}

	if price.LessThanOrEqual(s.buyThreshold) && len(s.positions) < s.maxPositions {
		s.positions = append(s.positions, oscPosition{
			BuyPrice: price,
			Quantity: s.quantity,
			BuyTime:  now,
		})
		s.lastTradeTime = now
		s.lastAction = model.SideBuy
		s.recalcThresholds(price)

		slog.Info("oscillating buy signal",
			"symbol", s.symbol, "price", price.String(), "positions", len(s.positions))

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

	if price.GreaterThanOrEqual(s.sellThreshold) && len(s.positions) > 0 {
		// FIFO: sell the oldest open position.
		oldest := s.positions[0]
		s.positions = s.positions[1:]
		s.lastTradeTime = now
		s.lastAction = model.SideSell
		s.recalcThresholds(price)

		profit := price.Sub(oldest.BuyPrice).Mul(decimal.NewFromInt(oldest.Quantity))
		slog.Info("oscillating sell signal",
			"symbol", s.symbol, "price", price.String(), "pnl", profit.String())

		return Result{
			Orders: []model.OrderIntent{{
				Symbol:     s.symbol,
				Side:       model.SideSell,
				Quantity:   oldest.Quantity,
				Kind:       model.KindMarket,
				StrategyID: s.Name(),
			}},
			Action: model.SideSell,
		}, nil
	}

	return Result{Action: "NONE"}, nil
}

// OnQuote adapts a live quote into an evaluation. Safe to call from the
// price-stream goroutine while another goroutine drives Start/Stop.
func (s *Oscillating) OnQuote(q model.Quote) (Result, error) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return Result{Action: "NONE"}, nil
	}

	return s.Execute(Context{
		Symbol: q.Symbol,
		Bar: model.HistoricalBar{
			Timestamp: q.Timestamp,
			Close:     q.LastPrice,
		},
	})
}

func (s *Oscillating) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.startedAt = time.Now().UTC()
}

func (s *Oscillating) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

// Thresholds returns the current buy/sell thresholds.
func (s *Oscillating) Thresholds() (buy, sell decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buyThreshold, s.sellThreshold
}

// OpenPositions returns the FIFO queue depth.
func (s *Oscillating) OpenPositions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.positions)
}

func (s *Oscillating) Status() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := map[string]any{
		"name":           s.Name(),
		"running":        s.running,
		"symbol":         s.symbol,
		"positions":      len(s.positions),
		"max_positions":  s.maxPositions,
		"buy_threshold":  s.buyThreshold.String(),
		"sell_threshold": s.sellThreshold.String(),
		"last_action":    s.lastAction,
	}
	if s.running && !s.startedAt.IsZero() {
		status["running_time"] = time.Since(s.startedAt).String()
	}
	return status
}
