// Package domain defines the core value objects of the trading engine: bars,
// signals, orders, fills, and positions, plus the enumerations they carry.
package domain

import (
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Enumerations
// ---------------------------------------------------------------------------

// Direction is the side of an order, fill, or position.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionLong || d == DirectionShort
}

// OrderType distinguishes market from limit orders.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderIntent records whether an order opens or closes a position.
type OrderIntent string

const (
	IntentOpen  OrderIntent = "OPEN"
	IntentClose OrderIntent = "CLOSE"
)

// OrderStatus is the persisted lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPartial   OrderStatus = "partially_filled"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PositionStatus is the persisted lifecycle state of a position.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "OPEN"
	PositionStatusClosed PositionStatus = "CLOSED"
)

// ---------------------------------------------------------------------------
// Value objects
// ---------------------------------------------------------------------------

// Bar is an immutable snapshot of one market interval.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Signal is a strategy's recommendation to act on a symbol. Value is
// interpreted by the portfolio (the target entry price for the built-in
// sizing rule).
type Signal struct {
	StrategyID string
	Symbol     string
	Value      float64
}

// Order is a request to trade. ID is assigned by the broker and stays empty
// until the order is acknowledged. LimitPrice must be set when Type is LIMIT;
// it is ignored for MARKET orders. StopPrice carries the stop level on
// stop-loss close orders.
type Order struct {
	ID         string
	Type       OrderType
	Symbol     string
	Qty        float64
	Direction  Direction
	LimitPrice *float64
	StopPrice  *float64
	Intent     OrderIntent
	Status     OrderStatus
	FilledQty  float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewMarketOrder builds a validated MARKET order.
func NewMarketOrder(symbol string, qty float64, dir Direction, intent OrderIntent) (*Order, error) {
	o := &Order{
		Type:      OrderTypeMarket,
		Symbol:    symbol,
		Qty:       qty,
		Direction: dir,
		Intent:    intent,
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// NewLimitOrder builds a validated LIMIT order at the given price.
func NewLimitOrder(symbol string, qty float64, dir Direction, price float64, intent OrderIntent) (*Order, error) {
	o := &Order{
		Type:       OrderTypeLimit,
		Symbol:     symbol,
		Qty:        qty,
		Direction:  dir,
		LimitPrice: &price,
		Intent:     intent,
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Validate checks the order's structural invariants.
func (o *Order) Validate() error {
	if o.Symbol == "" {
		return fmt.Errorf("order: symbol is required")
	}
	if o.Qty <= 0 {
		return fmt.Errorf("order %s: quantity must be positive, got %v", o.Symbol, o.Qty)
	}
	if !o.Direction.Valid() {
		return fmt.Errorf("order %s: unknown direction %q", o.Symbol, o.Direction)
	}
	switch o.Type {
	case OrderTypeLimit:
		if o.LimitPrice == nil {
			return fmt.Errorf("order %s: limit order requires a price", o.Symbol)
		}
		if *o.LimitPrice <= 0 {
			return fmt.Errorf("order %s: limit price must be positive, got %v", o.Symbol, *o.LimitPrice)
		}
	case OrderTypeMarket:
		// LimitPrice is ignored for market orders.
	default:
		return fmt.Errorf("order %s: unknown order type %q", o.Symbol, o.Type)
	}
	return nil
}

// Fill is a completed or partial execution of an order at a price. Side is
// the direction of the filled order.
type Fill struct {
	OrderID    string
	Symbol     string
	Qty        float64
	Side       Direction
	Price      float64
	Commission float64
	FilledAt   time.Time
}

// Validate checks the fill's structural invariants.
func (f *Fill) Validate() error {
	if f.Symbol == "" {
		return fmt.Errorf("fill: symbol is required")
	}
	if f.Qty <= 0 {
		return fmt.Errorf("fill %s: quantity must be positive, got %v", f.Symbol, f.Qty)
	}
	if !f.Side.Valid() {
		return fmt.Errorf("fill %s: unknown side %q", f.Symbol, f.Side)
	}
	if f.Price <= 0 {
		return fmt.Errorf("fill %s: price must be positive, got %v", f.Symbol, f.Price)
	}
	if f.Commission < 0 {
		return fmt.Errorf("fill %s: commission must be non-negative, got %v", f.Symbol, f.Commission)
	}
	return nil
}

// Position is the engine's record of a held quantity of a symbol. ID is the
// store-assigned identifier of the persisted row. The exit fields are derived
// metadata computed after the opening fill; the close fields are set when the
// position is closed.
type Position struct {
	ID         int64
	Symbol     string
	Status     PositionStatus
	Side       Direction
	Qty        float64
	EntryPrice float64
	EntryTime  time.Time

	TakeProfit *float64
	StopLoss   *float64
	ExitBy     *time.Time

	CloseTime       *time.Time
	ClosePrice      *float64
	CommissionClose *float64
}

// AccountInfo is a snapshot of the broker account's financial metrics.
type AccountInfo struct {
	Equity      float64
	Cash        float64
	BuyingPower float64
}
