// Package event defines the tagged envelopes that move through the dispatch
// queue, and the Context handle through which strategies and the portfolio
// publish events back into it.
package event

import (
	"fmt"
	"time"

	"helios/internal/domain"
)

// Type discriminates the four event kinds.
type Type string

const (
	TypeMarket Type = "MARKET"
	TypeSignal Type = "SIGNAL"
	TypeOrder  Type = "ORDER"
	TypeFill   Type = "FILL"
)

// Event is a discriminated envelope. Exactly one payload field is set,
// matching Type. Queue insertion order defines event ordering; Timestamp is
// metadata only.
type Event struct {
	Type      Type
	Timestamp time.Time

	Bars   map[string]domain.Bar // TypeMarket
	Signal *domain.Signal        // TypeSignal
	Order  *domain.Order         // TypeOrder
	Fill   *domain.Fill          // TypeFill
}

// NewMarketEvent builds a MARKET event. Bars may be empty (a bare market-open
// tick) but the timestamp must be valid.
func NewMarketEvent(ts time.Time, bars map[string]domain.Bar) (Event, error) {
	if err := checkTimestamp(ts); err != nil {
		return Event{}, err
	}
	return Event{Type: TypeMarket, Timestamp: ts, Bars: bars}, nil
}

// NewSignalEvent builds a SIGNAL event.
func NewSignalEvent(ts time.Time, sig domain.Signal) (Event, error) {
	if err := checkTimestamp(ts); err != nil {
		return Event{}, err
	}
	if sig.Symbol == "" {
		return Event{}, fmt.Errorf("signal event: symbol is required")
	}
	return Event{Type: TypeSignal, Timestamp: ts, Signal: &sig}, nil
}

// NewOrderEvent builds an ORDER event. The order must pass its own validation.
func NewOrderEvent(ts time.Time, order *domain.Order) (Event, error) {
	if err := checkTimestamp(ts); err != nil {
		return Event{}, err
	}
	if order == nil {
		return Event{}, fmt.Errorf("order event: nil order")
	}
	if err := order.Validate(); err != nil {
		return Event{}, fmt.Errorf("order event: %w", err)
	}
	return Event{Type: TypeOrder, Timestamp: ts, Order: order}, nil
}

// NewFillEvent builds a FILL event. The fill must pass its own validation.
func NewFillEvent(ts time.Time, fill domain.Fill) (Event, error) {
	if err := checkTimestamp(ts); err != nil {
		return Event{}, err
	}
	if err := fill.Validate(); err != nil {
		return Event{}, fmt.Errorf("fill event: %w", err)
	}
	return Event{Type: TypeFill, Timestamp: ts, Fill: &fill}, nil
}

// Validate checks that exactly the payload matching the discriminant is set.
func (e Event) Validate() error {
	if err := checkTimestamp(e.Timestamp); err != nil {
		return err
	}
	switch e.Type {
	case TypeMarket:
		if e.Signal != nil || e.Order != nil || e.Fill != nil {
			return fmt.Errorf("market event carries a foreign payload")
		}
	case TypeSignal:
		if e.Signal == nil {
			return fmt.Errorf("signal event missing payload")
		}
		if e.Bars != nil || e.Order != nil || e.Fill != nil {
			return fmt.Errorf("signal event carries a foreign payload")
		}
	case TypeOrder:
		if e.Order == nil {
			return fmt.Errorf("order event missing payload")
		}
		if e.Bars != nil || e.Signal != nil || e.Fill != nil {
			return fmt.Errorf("order event carries a foreign payload")
		}
	case TypeFill:
		if e.Fill == nil {
			return fmt.Errorf("fill event missing payload")
		}
		if e.Bars != nil || e.Signal != nil || e.Order != nil {
			return fmt.Errorf("fill event carries a foreign payload")
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

func checkTimestamp(ts time.Time) error {
	if ts.IsZero() || ts.Unix() < 0 {
		return fmt.Errorf("event: invalid timestamp %v", ts)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Sink and Context
// ---------------------------------------------------------------------------

// Sink accepts events for dispatch. The engine is the only production
// implementation.
type Sink interface {
	Publish(Event)
}

// Context is the per-run service handle injected into strategies and the
// portfolio. It exposes the current time and the event-publish capability.
type Context struct {
	sink Sink
	now  func() time.Time
}

// NewContext creates a Context for the given sink. A nil now function
// defaults to time.Now.
func NewContext(sink Sink, now func() time.Time) *Context {
	if now == nil {
		now = time.Now
	}
	return &Context{sink: sink, now: now}
}

// Publish forwards the event to the sink.
func (c *Context) Publish(e Event) {
	c.sink.Publish(e)
}

// Now returns the current engine time.
func (c *Context) Now() time.Time {
	return c.now()
}
