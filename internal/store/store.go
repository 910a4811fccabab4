// Package store defines storage interfaces for persisting and retrieving
// orders, fills, positions, and historical bars, plus the SQLite and Parquet
// implementations behind them.
package store

import (
	"context"
	"time"

	"helios/internal/domain"
)

// OrderStore persists and retrieves order records.
type OrderStore interface {
	// CreateOrder inserts a new order row keyed by its broker-assigned ID.
	CreateOrder(ctx context.Context, order *domain.Order) error

	// GetOrder retrieves a single order by its broker-assigned ID.
	GetOrder(ctx context.Context, id string) (*domain.Order, error)

	// ListOrdersBySymbol returns all orders for a symbol, oldest first.
	ListOrdersBySymbol(ctx context.Context, symbol string) ([]domain.Order, error)

	// ListOrdersByStatus returns all orders in the given status, oldest first.
	ListOrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error)

	// UpdateOrderStatus sets the order's status and cumulative filled quantity.
	UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus, filledQty float64) error
}

// FillStore persists and retrieves fill records.
type FillStore interface {
	// CreateFill inserts a new fill row and returns its assigned ID.
	CreateFill(ctx context.Context, fill *domain.Fill) (int64, error)

	// ListFillsByOrder returns all fills recorded against a broker order ID.
	ListFillsByOrder(ctx context.Context, orderID string) ([]domain.Fill, error)
}

// PositionUpdate is a partial update applied to a persisted position. Nil
// fields are left untouched.
type PositionUpdate struct {
	Status          *domain.PositionStatus
	TakeProfit      *float64
	StopLoss        *float64
	ExitBy          *time.Time
	CloseTime       *time.Time
	ClosePrice      *float64
	CommissionClose *float64
}

// PositionStore persists and retrieves position records. Rows are never
// deleted by the engine; closed positions remain queryable by status.
type PositionStore interface {
	// CreatePosition inserts a new position row and returns it with the
	// store-assigned ID filled in.
	CreatePosition(ctx context.Context, pos *domain.Position) (*domain.Position, error)

	// UpdatePosition applies a partial update to the position with the given ID.
	UpdatePosition(ctx context.Context, id int64, upd PositionUpdate) error

	// GetPosition retrieves a position by its store-assigned ID.
	GetPosition(ctx context.Context, id int64) (*domain.Position, error)

	// GetOpenPositions returns all positions with status OPEN.
	GetOpenPositions(ctx context.Context) ([]domain.Position, error)

	// ListPositionsBySymbol returns all positions for a symbol, oldest first.
	ListPositionsBySymbol(ctx context.Context, symbol string) ([]domain.Position, error)

	// ListPositionsByStatus returns all positions in the given status.
	ListPositionsByStatus(ctx context.Context, status domain.PositionStatus) ([]domain.Position, error)
}

// BarStore persists and retrieves daily OHLCV bars.
type BarStore interface {
	// WriteBars persists a batch of bars.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the symbol within [start, end], oldest first.
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all symbols with stored bar data.
	ListSymbols(ctx context.Context) ([]string, error)
}
