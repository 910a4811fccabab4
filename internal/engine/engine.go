// Package engine owns the event dispatch loop. External producers publish
// MARKET and FILL events; the engine drains its FIFO queue to quiescence,
// routing each event to the strategy, the portfolio, or the execution handler,
// and whatever those handlers publish is appended behind the events already
// queued. Dispatch is strictly single-threaded.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"helios/internal/alert"
	"helios/internal/broker"
	"helios/internal/domain"
	"helios/internal/event"
	"helios/internal/store"
)

// Strategy is the engine's view of a signal generator.
type Strategy interface {
	Name() string
	SetContext(ctx *event.Context)
	OnUpdate(ev event.Event)
}

// PortfolioHandler is the engine's view of the position manager.
type PortfolioHandler interface {
	SetContext(ctx *event.Context)
	OnSignal(sig domain.Signal)
	OnFill(fill domain.Fill)
	OnMarketUpdate(ev event.Event)
}

// ExecutionHandler forwards ORDER events to the brokerage.
type ExecutionHandler interface {
	Execute(ctx context.Context, order *domain.Order) error
}

// Options tunes the engine's scheduling and timeouts.
type Options struct {
	// Symbols is the watch list for the market-open event.
	Symbols []string

	// MarketTimezone locates the scheduler clock (default America/New_York).
	MarketTimezone string

	// CronSpec fires the market-open event (default 09:30 on weekdays).
	CronSpec string

	// CallTimeout bounds each store and broker call made from the dispatch
	// thread.
	CallTimeout time.Duration
}

func (o *Options) fillDefaults() {
	if o.MarketTimezone == "" {
		o.MarketTimezone = "America/New_York"
	}
	if o.CronSpec == "" {
		o.CronSpec = "30 9 * * 1-5"
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 10 * time.Second
	}
}

// Engine is the dispatch loop plus the plumbing that feeds it: a cron
// scheduler generating the daily market-open event and a bridge translating
// broker trade updates into persisted rows and FILL events.
type Engine struct {
	queue *queue

	// dispatchMu serializes drains. Handlers run only while it is held, so
	// they never see concurrent calls.
	dispatchMu sync.Mutex

	strategy  Strategy
	portfolio PortfolioHandler
	executor  ExecutionHandler

	orders   store.OrderStore
	fills    store.FillStore
	bars     store.BarStore
	stream   broker.TradeStream
	notifier alert.Notifier
	log      *slog.Logger
	opts     Options
	now      func() time.Time
}

// Compile-time interface check: the engine is the event sink handlers publish
// into.
var _ event.Sink = (*Engine)(nil)

// New creates an Engine. The strategy and portfolio are attached afterwards
// via SetStrategy and SetPortfolio; stream may be nil when no live feed is
// wired (tests, one-shot runs).
func New(
	orders store.OrderStore,
	fills store.FillStore,
	bars store.BarStore,
	executor ExecutionHandler,
	stream broker.TradeStream,
	notifier alert.Notifier,
	logger *slog.Logger,
	opts Options,
) *Engine {
	opts.fillDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = alert.Nop{}
	}
	return &Engine{
		queue:    newQueue(),
		orders:   orders,
		fills:    fills,
		bars:     bars,
		executor: executor,
		stream:   stream,
		notifier: notifier,
		log:      logger.With("component", "engine"),
		opts:     opts,
		now:      time.Now,
	}
}

// SetClock overrides the engine clock. Intended for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
	if e.strategy != nil {
		e.strategy.SetContext(event.NewContext(e, now))
	}
	if e.portfolio != nil {
		e.portfolio.SetContext(event.NewContext(e, now))
	}
}

// SetStrategy attaches the strategy and injects its run context.
func (e *Engine) SetStrategy(s Strategy) {
	e.strategy = s
	s.SetContext(event.NewContext(e, e.now))
}

// SetPortfolio attaches the portfolio and injects its run context.
func (e *Engine) SetPortfolio(p PortfolioHandler) {
	e.portfolio = p
	p.SetContext(event.NewContext(e, e.now))
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

// Publish appends a validated event to the queue. Invalid events are dropped
// with an error log; they never enter dispatch.
func (e *Engine) Publish(ev event.Event) {
	if err := ev.Validate(); err != nil {
		e.log.Error("event rejected", "type", ev.Type, "error", err)
		return
	}
	e.queue.push(ev)
}

// HandleUpdate publishes the event and drains the queue to quiescence. This
// is the entry point for external producers; everything a handler publishes
// during the drain is processed in the same pass, in FIFO order.
func (e *Engine) HandleUpdate(ev event.Event) {
	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()
	e.Publish(ev)
	e.drain()
}

// Drain processes queued events until the queue is empty. Safe to call when
// the queue is already empty.
func (e *Engine) Drain() {
	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()
	e.drain()
}

func (e *Engine) drain() {
	for {
		ev, ok := e.queue.pop()
		if !ok {
			return
		}
		e.dispatch(ev)
	}
}

// dispatch routes one event. A panicking handler is contained here so a bad
// event cannot take down the loop.
func (e *Engine) dispatch(ev event.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("handler panicked", "type", ev.Type, "panic", r)
			e.notifier.Notify(fmt.Sprintf("Handler panicked on %s event: %v", ev.Type, r))
		}
	}()

	switch ev.Type {
	case event.TypeMarket:
		if e.strategy != nil {
			e.strategy.OnUpdate(ev)
		}
		if e.portfolio != nil {
			e.portfolio.OnMarketUpdate(ev)
		}
	case event.TypeSignal:
		if e.portfolio != nil {
			e.portfolio.OnSignal(*ev.Signal)
		}
	case event.TypeOrder:
		e.executeOrder(ev.Order)
	case event.TypeFill:
		if e.portfolio != nil {
			e.portfolio.OnFill(*ev.Fill)
		}
	default:
		e.log.Warn("unroutable event", "type", ev.Type)
	}
}

func (e *Engine) executeOrder(order *domain.Order) {
	if e.executor == nil {
		e.log.Warn("order dropped: no execution handler", "symbol", order.Symbol)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.opts.CallTimeout)
	defer cancel()
	if err := e.executor.Execute(ctx, order); err != nil {
		e.log.Error("order execution failed", "symbol", order.Symbol, "error", err)
		e.notifier.Notify(fmt.Sprintf("Order execution failed for %s: %v", order.Symbol, err))
	}
}

// ---------------------------------------------------------------------------
// Market-open event
// ---------------------------------------------------------------------------

// GenerateMarketOpenEvent reads the most recent stored bar for each watched
// symbol, wraps them in a MARKET event, and runs a full dispatch pass.
// Symbols with no stored history are skipped with a warning.
func (e *Engine) GenerateMarketOpenEvent(ctx context.Context) error {
	now := e.now()
	barsBySymbol := make(map[string]domain.Bar)

	for _, sym := range e.opts.Symbols {
		rctx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
		bars, err := e.bars.ReadBars(rctx, sym, now.AddDate(0, 0, -7), now)
		cancel()
		if err != nil {
			e.log.Error("bar read failed for market open", "symbol", sym, "error", err)
			continue
		}
		if len(bars) == 0 {
			e.log.Warn("no recent bars for symbol", "symbol", sym)
			continue
		}
		latest := bars[0]
		for _, b := range bars[1:] {
			if b.Timestamp.After(latest.Timestamp) {
				latest = b
			}
		}
		barsBySymbol[sym] = latest
	}

	ev, err := event.NewMarketEvent(now, barsBySymbol)
	if err != nil {
		return fmt.Errorf("building market-open event: %w", err)
	}

	e.log.Info("market open", "symbols", len(barsBySymbol))
	e.HandleUpdate(ev)
	return nil
}

// ---------------------------------------------------------------------------
// Run loop
// ---------------------------------------------------------------------------

// Run starts the cron scheduler and the trade-update stream, then blocks
// until the context is cancelled or the stream fails.
func (e *Engine) Run(ctx context.Context) error {
	loc, err := time.LoadLocation(e.opts.MarketTimezone)
	if err != nil {
		return fmt.Errorf("loading market timezone %q: %w", e.opts.MarketTimezone, err)
	}

	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(e.opts.CronSpec, func() {
		if err := e.GenerateMarketOpenEvent(ctx); err != nil {
			e.log.Error("market-open event failed", "error", err)
			e.notifier.Notify(fmt.Sprintf("Market-open event failed: %v", err))
		}
	}); err != nil {
		return fmt.Errorf("scheduling market open: %w", err)
	}
	c.Start()
	defer c.Stop()

	e.log.Info("engine running", "schedule", e.opts.CronSpec, "timezone", e.opts.MarketTimezone)

	if e.stream == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	streamErr := make(chan error, 1)
	go func() {
		streamErr <- e.stream.StreamTradeUpdates(ctx, e.HandleTradeUpdate)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-streamErr:
		if err != nil {
			return fmt.Errorf("trade-update stream: %w", err)
		}
		return nil
	}
}

// ---------------------------------------------------------------------------
// Trade-update bridge
// ---------------------------------------------------------------------------

// HandleTradeUpdate translates one broker stream notification into persisted
// order and fill rows, and turns executions into FILL events. Malformed or
// unrecognised updates are logged and skipped; the bridge never panics out
// into the stream.
func (e *Engine) HandleTradeUpdate(u broker.TradeUpdate) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("trade-update handler panicked", "order_id", u.OrderID, "panic", r)
			e.notifier.Notify(fmt.Sprintf("Trade-update handler panicked for order %s: %v", u.OrderID, r))
		}
	}()

	switch u.Event {
	case "new", "accepted":
		e.recordNewOrder(u)
	case "fill", "partial_fill":
		e.recordFill(u)
	case "canceled", "cancelled", "rejected", "expired":
		e.recordTerminal(u)
	default:
		e.log.Debug("trade update ignored", "event", u.Event, "order_id", u.OrderID)
	}
}

func (e *Engine) recordNewOrder(u broker.TradeUpdate) {
	order := &domain.Order{
		ID:         u.OrderID,
		Symbol:     u.Symbol,
		Qty:        u.OrderQty,
		Direction:  u.Side,
		Type:       domain.OrderTypeMarket,
		LimitPrice: u.LimitPrice,
		Status:     domain.OrderStatusPending,
		CreatedAt:  u.Timestamp,
		UpdatedAt:  u.Timestamp,
	}
	if u.LimitPrice != nil {
		order.Type = domain.OrderTypeLimit
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.opts.CallTimeout)
	defer cancel()
	if err := e.orders.CreateOrder(ctx, order); err != nil {
		e.log.Error("order row not created", "order_id", u.OrderID, "error", err)
		e.notifier.Notify(fmt.Sprintf("Failed to record order %s for %s: %v", u.OrderID, u.Symbol, err))
		return
	}
	e.log.Info("order acknowledged", "order_id", u.OrderID, "symbol", u.Symbol, "qty", u.OrderQty)
	e.notifier.Notify(fmt.Sprintf("Order accepted: %s %s %.0f %s (order %s)", order.Direction, u.Symbol, u.OrderQty, order.Type, u.OrderID))
}

func (e *Engine) recordFill(u broker.TradeUpdate) {
	fill := domain.Fill{
		OrderID:  u.OrderID,
		Symbol:   u.Symbol,
		Qty:      u.FillQty,
		Side:     u.Side,
		Price:    u.FillPrice,
		FilledAt: u.Timestamp,
	}
	if err := fill.Validate(); err != nil {
		e.log.Error("fill update dropped", "order_id", u.OrderID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.opts.CallTimeout)
	defer cancel()
	if _, err := e.fills.CreateFill(ctx, &fill); err != nil {
		e.log.Error("fill row not created", "order_id", u.OrderID, "error", err)
		e.notifier.Notify(fmt.Sprintf("Failed to record fill on order %s: %v", u.OrderID, err))
	}

	status := domain.OrderStatusPartial
	filledQty := u.FillQty
	if u.Event == "fill" {
		status = domain.OrderStatusFilled
		filledQty = u.OrderQty
	}
	if err := e.orders.UpdateOrderStatus(ctx, u.OrderID, status, filledQty); err != nil {
		e.log.Error("order status not updated", "order_id", u.OrderID, "error", err)
	}

	e.notifier.Notify(fmt.Sprintf("%s %s: %.0f @ %.2f (order %s)", u.Event, u.Symbol, u.FillQty, u.FillPrice, u.OrderID))

	ev, err := event.NewFillEvent(u.Timestamp, fill)
	if err != nil {
		e.log.Error("fill event construction failed", "order_id", u.OrderID, "error", err)
		return
	}
	e.HandleUpdate(ev)
}

func (e *Engine) recordTerminal(u broker.TradeUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), e.opts.CallTimeout)
	defer cancel()
	if err := e.orders.UpdateOrderStatus(ctx, u.OrderID, domain.OrderStatusCancelled, u.FillQty); err != nil {
		e.log.Error("order status not updated", "order_id", u.OrderID, "error", err)
	}
	e.log.Warn("order terminated by broker", "order_id", u.OrderID, "event", u.Event)
	e.notifier.Notify(fmt.Sprintf("Order %s for %s %s", u.OrderID, u.Symbol, u.Event))
}
