// Package broker defines the brokerage boundary: order submission, account
// snapshots, and the streaming trade-update feed, with Alpaca and simulator
// implementations.
package broker

import (
	"context"
	"time"

	"helios/internal/domain"
)

// Broker abstracts brokerage operations for order execution and account state.
type Broker interface {
	// Name returns the broker identifier (e.g. "alpaca", "simulator").
	Name() string

	// SubmitOrder sends an order to the brokerage for execution and returns
	// the acknowledged order carrying the broker-assigned ID.
	SubmitOrder(ctx context.Context, order *domain.Order) (*domain.Order, error)

	// GetAccount returns a snapshot of the account's financial metrics.
	GetAccount(ctx context.Context) (*domain.AccountInfo, error)
}

// TradeUpdate is one typed notification from the broker's streaming feed.
type TradeUpdate struct {
	// Event is the broker's update kind: "new", "fill", "partial_fill",
	// "canceled", and so on.
	Event string

	OrderID    string
	Symbol     string
	Side       domain.Direction
	OrderQty   float64  // total ordered quantity
	FillQty    float64  // quantity of this fill, if any
	FillPrice  float64  // price of this fill, if any
	LimitPrice *float64 // order's limit price, if any
	Timestamp  time.Time
}

// TradeStream delivers trade updates to a handler until the context is
// cancelled or the connection fails.
type TradeStream interface {
	StreamTradeUpdates(ctx context.Context, handler func(TradeUpdate)) error
}
