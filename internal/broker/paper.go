package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PaperGateway implements Gateway with in-memory order tracking. Orders
// are accepted and held open; nothing ever fills. Used for development
// and for exercising ladder cancellation in tests.
type PaperGateway struct {
	mu     sync.RWMutex
	orders map[string]*Order
}

// NewPaperGateway creates an empty paper-trading gateway.
func NewPaperGateway() *PaperGateway {
	return &PaperGateway{orders: make(map[string]*Order)}
}

func (g *PaperGateway) PlaceOrder(_ context.Context, o Order) (Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	o.ID = uuid.New().String()
	o.Status = StatusOpen
	o.CreatedAt = time.Now().UTC()

	copy := o
	g.orders[o.ID] = &copy
	return o, nil
}

func (g *PaperGateway) CancelOrder(_ context.Context, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	o, ok := g.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if o.Status != StatusOpen {
		return fmt.Errorf("broker: order %s is %s, cannot cancel", orderID, o.Status)
	}
	o.Status = StatusCancelled
	return nil
}

func (g *PaperGateway) Orders(_ context.Context, status string) ([]Order, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Order
	for _, o := range g.orders {
		if status == "" || o.Status == status {
			out = append(out, *o)
		}
	}
	return out, nil
}
