package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"helios/internal/broker"
	"helios/internal/domain"
	"helios/internal/event"
)

var testNow = time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// fakeStrategy optionally emits one signal per symbol in emit on each market
// event, and appends to trace.
type fakeStrategy struct {
	ctx   *event.Context
	emit  []string
	trace *[]string
}

func (s *fakeStrategy) Name() string                { return "fake" }
func (s *fakeStrategy) SetContext(c *event.Context) { s.ctx = c }

func (s *fakeStrategy) OnUpdate(event.Event) {
	if s.trace != nil {
		*s.trace = append(*s.trace, "strategy:market")
	}
	for _, sym := range s.emit {
		ev, err := event.NewSignalEvent(s.ctx.Now(), domain.Signal{StrategyID: "fake", Symbol: sym, Value: 100})
		if err != nil {
			panic(err)
		}
		s.ctx.Publish(ev)
	}
}

// fakePortfolio records every callback and optionally emits an order per
// signal or panics on signals.
type fakePortfolio struct {
	ctx           *event.Context
	trace         *[]string
	signals       []domain.Signal
	fills         []domain.Fill
	orderOnSignal bool
	panicOnSignal bool
}

func (p *fakePortfolio) SetContext(c *event.Context) { p.ctx = c }

func (p *fakePortfolio) OnSignal(sig domain.Signal) {
	if p.panicOnSignal {
		panic("portfolio blew up")
	}
	p.signals = append(p.signals, sig)
	if p.trace != nil {
		*p.trace = append(*p.trace, "portfolio:signal:"+sig.Symbol)
	}
	if p.orderOnSignal {
		order, err := domain.NewLimitOrder(sig.Symbol, 10, domain.DirectionLong, sig.Value, domain.IntentOpen)
		if err != nil {
			panic(err)
		}
		ev, err := event.NewOrderEvent(p.ctx.Now(), order)
		if err != nil {
			panic(err)
		}
		p.ctx.Publish(ev)
	}
}

func (p *fakePortfolio) OnFill(fill domain.Fill) {
	p.fills = append(p.fills, fill)
	if p.trace != nil {
		*p.trace = append(*p.trace, "portfolio:fill:"+fill.Symbol)
	}
}

func (p *fakePortfolio) OnMarketUpdate(event.Event) {
	if p.trace != nil {
		*p.trace = append(*p.trace, "portfolio:market")
	}
}

type fakeExecutor struct {
	orders []*domain.Order
	err    error
}

func (x *fakeExecutor) Execute(_ context.Context, order *domain.Order) error {
	if x.err != nil {
		return x.err
	}
	x.orders = append(x.orders, order)
	return nil
}

type fakeOrderStore struct {
	created  []domain.Order
	statuses map[string]domain.OrderStatus
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{statuses: make(map[string]domain.OrderStatus)}
}

func (s *fakeOrderStore) CreateOrder(_ context.Context, order *domain.Order) error {
	if order.ID == "" {
		return fmt.Errorf("broker order ID is required")
	}
	s.created = append(s.created, *order)
	s.statuses[order.ID] = order.Status
	return nil
}

func (s *fakeOrderStore) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	for i := range s.created {
		if s.created[i].ID == id {
			o := s.created[i]
			return &o, nil
		}
	}
	return nil, fmt.Errorf("order %s not found", id)
}

func (s *fakeOrderStore) ListOrdersBySymbol(context.Context, string) ([]domain.Order, error) {
	return nil, nil
}

func (s *fakeOrderStore) ListOrdersByStatus(context.Context, domain.OrderStatus) ([]domain.Order, error) {
	return nil, nil
}

func (s *fakeOrderStore) UpdateOrderStatus(_ context.Context, id string, status domain.OrderStatus, _ float64) error {
	s.statuses[id] = status
	return nil
}

type fakeFillStore struct {
	fills []domain.Fill
}

func (s *fakeFillStore) CreateFill(_ context.Context, fill *domain.Fill) (int64, error) {
	s.fills = append(s.fills, *fill)
	return int64(len(s.fills)), nil
}

func (s *fakeFillStore) ListFillsByOrder(context.Context, string) ([]domain.Fill, error) {
	return nil, nil
}

type fakeBarStore struct {
	bars map[string][]domain.Bar
}

func (s *fakeBarStore) WriteBars(context.Context, []domain.Bar) error { return nil }

func (s *fakeBarStore) ReadBars(_ context.Context, symbol string, _, _ time.Time) ([]domain.Bar, error) {
	return s.bars[symbol], nil
}

func (s *fakeBarStore) ListSymbols(context.Context) ([]string, error) { return nil, nil }

type recordingNotifier struct {
	messages []string
}

func (n *recordingNotifier) Notify(msg string) { n.messages = append(n.messages, msg) }

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

func newTestEngine(opts Options) (*Engine, *fakeOrderStore, *fakeFillStore, *fakeExecutor, *recordingNotifier) {
	orders := newFakeOrderStore()
	fills := &fakeFillStore{}
	exec := &fakeExecutor{}
	notifier := &recordingNotifier{}
	e := New(orders, fills, &fakeBarStore{}, exec, nil, notifier, nil, opts)
	e.SetClock(func() time.Time { return testNow })
	return e, orders, fills, exec, notifier
}

func TestMarketEventRoutesStrategyThenPortfolio(t *testing.T) {
	e, _, _, _, _ := newTestEngine(Options{})
	var trace []string
	e.SetStrategy(&fakeStrategy{trace: &trace})
	e.SetPortfolio(&fakePortfolio{trace: &trace})
	e.SetClock(func() time.Time { return testNow })

	ev, _ := event.NewMarketEvent(testNow, nil)
	e.HandleUpdate(ev)

	if len(trace) != 2 || trace[0] != "strategy:market" || trace[1] != "portfolio:market" {
		t.Errorf("trace = %v, want [strategy:market portfolio:market]", trace)
	}
}

func TestCascadeDrainsToQuiescence(t *testing.T) {
	// One market event cascades: strategy emits a signal, the portfolio turns
	// it into an order, the executor receives it, all in a single drain.
	e, _, _, exec, _ := newTestEngine(Options{})
	var trace []string
	e.SetStrategy(&fakeStrategy{emit: []string{"AAPL"}, trace: &trace})
	e.SetPortfolio(&fakePortfolio{trace: &trace, orderOnSignal: true})
	e.SetClock(func() time.Time { return testNow })

	ev, _ := event.NewMarketEvent(testNow, nil)
	e.HandleUpdate(ev)

	if len(exec.orders) != 1 {
		t.Fatalf("executor received %d orders, want 1", len(exec.orders))
	}
	if exec.orders[0].Symbol != "AAPL" {
		t.Errorf("executed order for %q, want AAPL", exec.orders[0].Symbol)
	}
	if e.queue.len() != 0 {
		t.Errorf("queue holds %d events after drain, want 0", e.queue.len())
	}
}

func TestDispatchIsFIFO(t *testing.T) {
	// Two signals published during the market event are handled in publish
	// order, after the market event completes.
	e, _, _, _, _ := newTestEngine(Options{})
	var trace []string
	e.SetStrategy(&fakeStrategy{emit: []string{"AAPL", "MSFT"}, trace: &trace})
	e.SetPortfolio(&fakePortfolio{trace: &trace})
	e.SetClock(func() time.Time { return testNow })

	ev, _ := event.NewMarketEvent(testNow, nil)
	e.HandleUpdate(ev)

	want := []string{"strategy:market", "portfolio:market", "portfolio:signal:AAPL", "portfolio:signal:MSFT"}
	if len(trace) != len(want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Errorf("trace[%d] = %q, want %q", i, trace[i], want[i])
		}
	}
}

func TestPublishRejectsInvalidEvent(t *testing.T) {
	e, _, _, _, _ := newTestEngine(Options{})

	e.Publish(event.Event{Type: event.TypeSignal, Timestamp: testNow}) // missing payload
	e.Publish(event.Event{Type: event.TypeMarket})                     // zero timestamp

	if e.queue.len() != 0 {
		t.Errorf("queue holds %d events, want 0 (invalid events must be dropped)", e.queue.len())
	}
}

func TestPanickingHandlerIsContained(t *testing.T) {
	e, _, _, _, notifier := newTestEngine(Options{})
	p := &fakePortfolio{panicOnSignal: true}
	e.SetPortfolio(p)
	e.SetClock(func() time.Time { return testNow })

	bad := signalEvent(t, "AAPL")
	good, _ := event.NewFillEvent(testNow, domain.Fill{
		OrderID: "o1", Symbol: "MSFT", Qty: 10, Side: domain.DirectionLong, Price: 400,
	})
	e.Publish(bad)
	e.Publish(good)
	e.Drain()

	if len(p.fills) != 1 {
		t.Errorf("portfolio received %d fills, want 1 (drain must survive the panic)", len(p.fills))
	}
	if len(notifier.messages) == 0 {
		t.Error("panic produced no alert")
	}
}

func TestDrainEmptyQueueIsNoop(t *testing.T) {
	e, _, _, _, _ := newTestEngine(Options{})
	e.Drain()
	if e.queue.len() != 0 {
		t.Errorf("queue holds %d events, want 0", e.queue.len())
	}
}

func TestOrderExecutionFailureAlerts(t *testing.T) {
	e, _, _, exec, notifier := newTestEngine(Options{})
	exec.err = fmt.Errorf("broker rejected")

	order, _ := domain.NewMarketOrder("AAPL", 10, domain.DirectionLong, domain.IntentOpen)
	ev, _ := event.NewOrderEvent(testNow, order)
	e.HandleUpdate(ev)

	if len(notifier.messages) != 1 {
		t.Errorf("sent %d alerts, want 1", len(notifier.messages))
	}
}

// ---------------------------------------------------------------------------
// Market-open event
// ---------------------------------------------------------------------------

func TestGenerateMarketOpenEvent(t *testing.T) {
	orders := newFakeOrderStore()
	fills := &fakeFillStore{}
	bars := &fakeBarStore{bars: map[string][]domain.Bar{
		"AAPL": {
			{Symbol: "AAPL", Timestamp: testNow.AddDate(0, 0, -2), Close: 180},
			{Symbol: "AAPL", Timestamp: testNow.AddDate(0, 0, -1), Close: 185},
		},
		// MSFT has no stored history.
	}}
	notifier := &recordingNotifier{}
	e := New(orders, fills, bars, &fakeExecutor{}, nil, notifier, nil, Options{
		Symbols: []string{"AAPL", "MSFT"},
	})
	e.SetClock(func() time.Time { return testNow })

	var got []event.Event
	e.SetStrategy(&marketRecorder{events: &got})

	if err := e.GenerateMarketOpenEvent(context.Background()); err != nil {
		t.Fatalf("GenerateMarketOpenEvent: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("strategy saw %d market events, want 1", len(got))
	}
	ev := got[0]
	if len(ev.Bars) != 1 {
		t.Fatalf("event carries %d bars, want 1 (symbol without history is skipped)", len(ev.Bars))
	}
	if b, ok := ev.Bars["AAPL"]; !ok || b.Close != 185 {
		t.Errorf("event bar = %+v, want the latest AAPL bar (close 185)", ev.Bars["AAPL"])
	}
}

type marketRecorder struct {
	ctx    *event.Context
	events *[]event.Event
}

func (r *marketRecorder) Name() string                { return "recorder" }
func (r *marketRecorder) SetContext(c *event.Context) { r.ctx = c }
func (r *marketRecorder) OnUpdate(ev event.Event)     { *r.events = append(*r.events, ev) }

// ---------------------------------------------------------------------------
// Trade-update bridge
// ---------------------------------------------------------------------------

func TestHandleTradeUpdateNewOrder(t *testing.T) {
	e, orders, _, _, _ := newTestEngine(Options{})

	limit := 185.0
	e.HandleTradeUpdate(broker.TradeUpdate{
		Event: "new", OrderID: "o1", Symbol: "AAPL", Side: domain.DirectionLong,
		OrderQty: 100, LimitPrice: &limit, Timestamp: testNow,
	})

	if len(orders.created) != 1 {
		t.Fatalf("created %d order rows, want 1", len(orders.created))
	}
	o := orders.created[0]
	if o.Type != domain.OrderTypeLimit || o.LimitPrice == nil || *o.LimitPrice != 185.0 {
		t.Errorf("recorded order = %+v, want a limit order at 185.0", o)
	}
	if o.Status != domain.OrderStatusPending {
		t.Errorf("Status = %q, want pending", o.Status)
	}
}

func TestHandleTradeUpdateFill(t *testing.T) {
	e, orders, fills, _, _ := newTestEngine(Options{})
	p := &fakePortfolio{}
	e.SetPortfolio(p)
	e.SetClock(func() time.Time { return testNow })

	e.HandleTradeUpdate(broker.TradeUpdate{
		Event: "fill", OrderID: "o1", Symbol: "AAPL", Side: domain.DirectionLong,
		OrderQty: 100, FillQty: 100, FillPrice: 185.0, Timestamp: testNow,
	})

	if len(fills.fills) != 1 {
		t.Fatalf("created %d fill rows, want 1", len(fills.fills))
	}
	if orders.statuses["o1"] != domain.OrderStatusFilled {
		t.Errorf("order status = %q, want filled", orders.statuses["o1"])
	}
	if len(p.fills) != 1 {
		t.Fatalf("portfolio received %d fills, want 1", len(p.fills))
	}
	if p.fills[0].Price != 185.0 || p.fills[0].OrderID != "o1" {
		t.Errorf("dispatched fill = %+v", p.fills[0])
	}
}

func TestHandleTradeUpdatePartialFill(t *testing.T) {
	e, orders, fills, _, _ := newTestEngine(Options{})
	e.SetPortfolio(&fakePortfolio{})
	e.SetClock(func() time.Time { return testNow })

	e.HandleTradeUpdate(broker.TradeUpdate{
		Event: "partial_fill", OrderID: "o1", Symbol: "AAPL", Side: domain.DirectionLong,
		OrderQty: 100, FillQty: 40, FillPrice: 185.0, Timestamp: testNow,
	})

	if orders.statuses["o1"] != domain.OrderStatusPartial {
		t.Errorf("order status = %q, want partially_filled", orders.statuses["o1"])
	}
	if len(fills.fills) != 1 || fills.fills[0].Qty != 40 {
		t.Errorf("fill rows = %+v, want one row with qty 40", fills.fills)
	}
}

func TestHandleTradeUpdateMalformedFillDropped(t *testing.T) {
	e, _, fills, _, _ := newTestEngine(Options{})
	p := &fakePortfolio{}
	e.SetPortfolio(p)
	e.SetClock(func() time.Time { return testNow })

	// Zero quantity and price fail fill validation.
	e.HandleTradeUpdate(broker.TradeUpdate{
		Event: "fill", OrderID: "o1", Symbol: "AAPL", Side: domain.DirectionLong,
		Timestamp: testNow,
	})

	if len(fills.fills) != 0 {
		t.Errorf("created %d fill rows from a malformed update, want 0", len(fills.fills))
	}
	if len(p.fills) != 0 {
		t.Errorf("portfolio received %d fills from a malformed update, want 0", len(p.fills))
	}
}

func TestHandleTradeUpdateCancelled(t *testing.T) {
	e, orders, _, _, notifier := newTestEngine(Options{})

	e.HandleTradeUpdate(broker.TradeUpdate{
		Event: "canceled", OrderID: "o1", Symbol: "AAPL", Side: domain.DirectionLong,
		OrderQty: 100, Timestamp: testNow,
	})

	if orders.statuses["o1"] != domain.OrderStatusCancelled {
		t.Errorf("order status = %q, want cancelled", orders.statuses["o1"])
	}
	if len(notifier.messages) != 1 {
		t.Errorf("sent %d alerts, want 1", len(notifier.messages))
	}
}

func TestHandleTradeUpdateUnknownEventIgnored(t *testing.T) {
	e, orders, fills, _, _ := newTestEngine(Options{})

	e.HandleTradeUpdate(broker.TradeUpdate{Event: "replaced", OrderID: "o1", Timestamp: testNow})

	if len(orders.created) != 0 || len(fills.fills) != 0 {
		t.Error("unknown update kind mutated the stores")
	}
}
