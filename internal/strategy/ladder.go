package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stratlab/backtest-engine/internal/broker"
	"github.com/stratlab/backtest-engine/internal/model"
)

// ErrLadderNotFound is returned when cancelling an unknown ladder ID.
var ErrLadderNotFound = fmt.Errorf("strategy: ladder not found")

// LadderBatch records one placed ladder for later bulk cancellation.
type LadderBatch struct {
	ID          string            `json:"ladder_id"`
	Symbol      string            `json:"symbol"`
	Side        string            `json:"side"`
	Quantity    int64             `json:"quantity"`
	PriceStart  decimal.Decimal   `json:"price_start"`
	PriceEnd    decimal.Decimal   `json:"price_end"`
	Steps       int               `json:"steps"`
	PricePoints []decimal.Decimal `json:"price_points"`
	OrderIDs    []string          `json:"order_ids,omitempty"` // live mode only
	PlacedAt    time.Time         `json:"placed_at"`
	Active      bool              `json:"active"`
}

// CancelReport summarizes a bulk ladder cancellation.
type CancelReport struct {
	LadderID  string `json:"ladder_id"`
	Cancelled int    `json:"orders_cancelled"`
	Failed    int    `json:"orders_failed"`
}

// Ladder places limit orders at evenly spaced price points between a
// start and end price. Buy ladders run low-to-high (start < end), sell
// ladders high-to-low (start > end). Each batch is tracked under a
// generated ladder ID.
type Ladder struct {
	gateway broker.Gateway // live-mode cancellation; nil in simulation

	symbol     string
	quantity   int64
	side       string
	priceStart decimal.Decimal
	priceEnd   decimal.Decimal
	steps      int

	mu      sync.Mutex
	ladders map[string]*LadderBatch
	placed  bool
	running bool
}

// NewLadder creates an unconfigured ladder strategy. gateway may be nil
// when the strategy only runs in simulation.
func NewLadder(gateway broker.Gateway) *Ladder {
	return &Ladder{
		gateway: gateway,
		ladders: make(map[string]*LadderBatch),
	}
}

func (s *Ladder) Name() string { return NameLadder }

// Configure merges parameters and validates the ladder geometry.
func (s *Ladder) Configure(p Params) error {
	if v, ok := p.str("symbol"); ok {
		s.symbol = v
	}
	if v, ok := p.int64Val("quantity"); ok {
		s.quantity = v
	}
	if v, ok := p.str("side"); ok {
		s.side = v
	}
	if v, ok := p.decimalVal("price_start"); ok {
		s.priceStart = v
	}
	if v, ok := p.decimalVal("price_end"); ok {
		s.priceEnd = v
	}
	if v, ok := p.int64Val("steps"); ok {
		s.steps = int(v)
	}
	s.placed = false

	if s.symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrValidation)
	}
	if s.quantity <= 0 {
		return fmt.Errorf("%w: quantity must be greater than 0", ErrValidation)
	}
	if s.side != model.SideBuy && s.side != model.SideSell {
		return fmt.Errorf("%w: side must be BUY or SELL", ErrValidation)
	}
	if s.steps <= 0 {
		return fmt.Errorf("%w: steps must be greater than 0", ErrValidation)
	}
	if !s.priceStart.IsPositive() || !s.priceEnd.IsPositive() {
		return fmt.Errorf("%w: prices must be greater than 0", ErrValidation)
	}
	if s.side == model.SideBuy && s.priceStart.GreaterThanOrEqual(s.priceEnd) {
		return fmt.Errorf("%w: for buy ladders, start price must be lower than end price", ErrValidation)
	}
	if s.side == model.SideSell && s.priceStart.LessThanOrEqual(s.priceEnd) {
		return fmt.Errorf("%w: for sell ladders, start price must be higher than end price", ErrValidation)
	}
	return nil
}

// PricePoints computes the evenly spaced ladder prices, rounded to 2
// decimals. For a single step the ladder is just the start price; the
// first point always equals start and the last equals end.
func (s *Ladder) PricePoints() []decimal.Decimal {
	points := make([]decimal.Decimal, 0, s.steps)
	if s.steps == 1 {
		return append(points, s.priceStart.Round(2))
	}
	increment := s.priceEnd.Sub(s.priceStart).Div(decimal.NewFromInt(int64(s.steps - 1)))
	for i := 0; i < s.steps; i++ {
		points = append(points, s.priceStart.Add(increment.Mul(decimal.NewFromInt(int64(i)))).Round(2))
	}
	return points
}

// Execute emits one LIMIT intent per price point, all tagged with a new
// ladder ID. The batch is placed once per configuration; subsequent
// evaluations are no-ops so pending rungs can carry across bars.
func (s *Ladder) Execute(ctx Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.placed {
		return Result{Action: "NONE"}, nil
	}

	points := s.PricePoints()
	ladderID := uuid.New().String()

	batch := &LadderBatch{
		ID:          ladderID,
		Symbol:      s.symbol,
		Side:        s.side,
		Quantity:    s.quantity,
		PriceStart:  s.priceStart,
		PriceEnd:    s.priceEnd,
		Steps:       s.steps,
		PricePoints: points,
		PlacedAt:    ctx.Bar.Timestamp,
		Active:      true,
	}

	orders := make([]model.OrderIntent, 0, len(points))
	for _, price := range points {
		orders = append(orders, model.OrderIntent{
			Symbol:     s.symbol,
			Side:       s.side,
			Quantity:   s.quantity,
			Kind:       model.KindLimit,
			LimitPrice: price,
			StrategyID: s.Name(),
			LadderID:   ladderID,
		})
	}

	// Live mode: also submit through the gateway and remember order IDs
	// so CancelLadder can unwind the batch.
	if s.gateway != nil {
		for _, o := range orders {
			placed, err := s.gateway.PlaceOrder(context.Background(), broker.Order{
				Symbol:     o.Symbol,
				Side:       o.Side,
				Quantity:   o.Quantity,
				Kind:       o.Kind,
				LimitPrice: o.LimitPrice,
				Strategy:   s.Name(),
			})
			if err != nil {
				slog.Error("ladder order placement failed",
					"symbol", o.Symbol, "price", o.LimitPrice.String(), "err", err)
				continue
			}
			batch.OrderIDs = append(batch.OrderIDs, placed.ID)
		}
	}

	s.ladders[ladderID] = batch
	s.placed = true

	slog.Info("ladder placed",
		"ladder_id", ladderID,
		"symbol", s.symbol,
		"side", s.side,
		"steps", s.steps,
		"start", s.priceStart.String(),
		"end", s.priceEnd.String(),
	)

	return Result{Orders: orders, Action: s.side}, nil
}

// CancelLadder cancels every still-open order in a batch through the
// gateway and reports per-order success/failure counts.
func (s *Ladder) CancelLadder(ctx context.Context, ladderID string) (CancelReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.ladders[ladderID]
	if !ok {
		return CancelReport{}, fmt.Errorf("%w: %s", ErrLadderNotFound, ladderID)
	}

	report := CancelReport{LadderID: ladderID}
	if s.gateway != nil {
		for _, orderID := range batch.OrderIDs {
			if err := s.gateway.CancelOrder(ctx, orderID); err != nil {
				slog.Error("ladder cancel failed", "order_id", orderID, "err", err)
				report.Failed++
				continue
			}
			report.Cancelled++
		}
	}
	batch.Active = false

	return report, nil
}

// ActiveLadders returns a snapshot of all still-active batches.
func (s *Ladder) ActiveLadders() []LadderBatch {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []LadderBatch
	for _, b := range s.ladders {
		if b.Active {
			out = append(out, *b)
		}
	}
	return out
}

func (s *Ladder) Start() { s.running = true }
func (s *Ladder) Stop()  { s.running = false }

func (s *Ladder) Status() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := 0
	for _, b := range s.ladders {
		if b.Active {
			active++
		}
	}
	return map[string]any{
		"name":           s.Name(),
		"running":        s.running,
		"symbol":         s.symbol,
		"side":           s.side,
		"steps":          s.steps,
		"active_ladders": active,
	}
}
