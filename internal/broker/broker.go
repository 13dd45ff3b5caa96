// Package broker defines the order-submission gateway used by strategies
// in live mode. The simulator never touches this package; backtests fill
// orders through the matching engine instead.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses.
const (
	StatusOpen      = "OPEN"
	StatusFilled    = "FILLED"
	StatusCancelled = "CANCELLED"
)

// ErrOrderNotFound is returned when cancelling or querying an unknown
// order ID.
var ErrOrderNotFound = errors.New("broker: order not found")

// Order is a live order as tracked by the gateway.
type Order struct {
	ID         string          `json:"order_id"`
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	Quantity   int64           `json:"quantity"`
	Kind       string          `json:"kind"`
	LimitPrice decimal.Decimal `json:"limit_price,omitempty"`
	Strategy   string          `json:"strategy,omitempty"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Gateway is the order-submission collaborator contract. Implementations
// wrap a real brokerage API; PaperGateway provides an in-memory stand-in
// for development and tests.
type Gateway interface {
	// PlaceOrder submits an order and returns it with ID and status set.
	PlaceOrder(ctx context.Context, o Order) (Order, error)

	// CancelOrder cancels an open order by ID.
	CancelOrder(ctx context.Context, orderID string) error

	// Orders returns tracked orders, optionally filtered by status
	// (empty string = all).
	Orders(ctx context.Context, status string) ([]Order, error)
}
