// Package portfolio owns the set of open positions. It converts signals into
// entry orders, fills into position open/close mutations, and evaluates exit
// rules (stop-loss, take-profit, time-based) against every open position on
// each market update.
package portfolio

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"helios/internal/alert"
	"helios/internal/domain"
	"helios/internal/event"
	"helios/internal/store"
	"helios/internal/util"
)

// AccountSource provides the cash snapshot used for position sizing. The
// broker is the production implementation.
type AccountSource interface {
	GetAccount(ctx context.Context) (*domain.AccountInfo, error)
}

// Options tunes the portfolio's position management.
type Options struct {
	// MaxPositions caps concurrently open positions. Signals arriving at the
	// cap are dropped with an alert.
	MaxPositions int

	// ATRWindow is the number of trailing daily bars the volatility measure
	// is computed over.
	ATRWindow int

	// HoldingDays is the time-based exit horizon in trading days.
	HoldingDays int

	// CallTimeout bounds each persistence and account call.
	CallTimeout time.Duration
}

func (o *Options) fillDefaults() {
	if o.MaxPositions <= 0 {
		o.MaxPositions = 5
	}
	if o.ATRWindow <= 0 {
		o.ATRWindow = 14
	}
	if o.HoldingDays <= 0 {
		o.HoldingDays = 5
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 5 * time.Second
	}
}

// Portfolio tracks open positions and drives their lifecycle. All methods
// except the constructor are called only from within the dispatch loop, so
// the position map needs no locking.
type Portfolio struct {
	ctx       *event.Context
	positions map[string]*domain.Position

	store    store.PositionStore
	bars     store.BarStore
	account  AccountSource
	notifier alert.Notifier
	log      *slog.Logger
	opts     Options
}

// New creates a Portfolio and rehydrates its live position map from the
// persisted OPEN rows.
func New(ps store.PositionStore, bars store.BarStore, account AccountSource, notifier alert.Notifier, logger *slog.Logger, opts Options) (*Portfolio, error) {
	opts.fillDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = alert.Nop{}
	}

	p := &Portfolio{
		positions: make(map[string]*domain.Position),
		store:     ps,
		bars:      bars,
		account:   account,
		notifier:  notifier,
		log:       logger.With("component", "portfolio"),
		opts:      opts,
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.CallTimeout)
	defer cancel()
	open, err := ps.GetOpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading open positions: %w", err)
	}
	for i := range open {
		pos := open[i]
		p.positions[pos.Symbol] = &pos
	}

	p.log.Info("portfolio initialised", "open_positions", len(p.positions), "max_positions", opts.MaxPositions)
	return p, nil
}

// SetContext injects the per-run service handle.
func (p *Portfolio) SetContext(ctx *event.Context) {
	p.ctx = ctx
}

// OpenPositionCount returns the number of positions in the live map.
func (p *Portfolio) OpenPositionCount() int {
	return len(p.positions)
}

// ---------------------------------------------------------------------------
// Signal handling — admission control and sizing
// ---------------------------------------------------------------------------

// OnSignal converts a signal into an OPEN-intent limit order, subject to the
// open-position cap. Order quantity divides available cash evenly across the
// position slots still free at this instant, so later signals in the same
// run see a shrinking per-slot budget.
func (p *Portfolio) OnSignal(sig domain.Signal) {
	if len(p.positions) >= p.opts.MaxPositions {
		p.log.Warn("signal dropped: position cap reached",
			"symbol", sig.Symbol, "strategy", sig.StrategyID, "open", len(p.positions))
		p.notifier.Notify(fmt.Sprintf("Signal for %s dropped: %d positions already open", sig.Symbol, len(p.positions)))
		return
	}
	if _, open := p.positions[sig.Symbol]; open {
		p.log.Warn("signal dropped: position already open", "symbol", sig.Symbol)
		return
	}
	if sig.Value <= 0 {
		p.log.Warn("signal dropped: non-positive value", "symbol", sig.Symbol, "value", sig.Value)
		return
	}

	cctx, cancel := context.WithTimeout(context.Background(), p.opts.CallTimeout)
	defer cancel()
	acct, err := p.account.GetAccount(cctx)
	if err != nil {
		p.log.Error("signal dropped: account snapshot failed", "symbol", sig.Symbol, "error", err)
		p.notifier.Notify(fmt.Sprintf("Signal for %s dropped: account snapshot failed: %v", sig.Symbol, err))
		return
	}

	slots := p.opts.MaxPositions - len(p.positions)
	perSlot := math.Floor(acct.Cash / float64(slots))
	qty := math.Floor(perSlot / sig.Value)
	if qty < 1 {
		p.log.Warn("signal dropped: insufficient cash for one share",
			"symbol", sig.Symbol, "cash", acct.Cash, "slots", slots, "value", sig.Value)
		return
	}

	order, err := domain.NewLimitOrder(sig.Symbol, qty, domain.DirectionLong, sig.Value, domain.IntentOpen)
	if err != nil {
		p.log.Error("signal dropped: order construction failed", "symbol", sig.Symbol, "error", err)
		return
	}

	p.log.Info("entry order from signal",
		"symbol", sig.Symbol, "strategy", sig.StrategyID, "qty", qty, "limit", sig.Value)
	p.publishOrder(order)
}

// ---------------------------------------------------------------------------
// Fill handling — position open and close
// ---------------------------------------------------------------------------

// OnFill applies a fill to the live map. A fill for a symbol with no open
// position opens one on the fill's side; a fill opposite to an existing
// position closes it. A same-side fill on an open position is dropped
// (scaling in is not modelled).
func (p *Portfolio) OnFill(fill domain.Fill) {
	pos, open := p.positions[fill.Symbol]
	if !open {
		p.openPosition(fill)
		return
	}

	if pos.Side != fill.Side {
		p.closePosition(pos, fill)
		return
	}

	p.log.Warn("fill dropped: position already open on same side",
		"symbol", fill.Symbol, "side", fill.Side)
	p.notifier.Notify(fmt.Sprintf("Unexpected same-side fill for open position %s (%s)", fill.Symbol, fill.Side))
}

func (p *Portfolio) openPosition(fill domain.Fill) {
	pos := &domain.Position{
		Symbol:     fill.Symbol,
		Status:     domain.PositionStatusOpen,
		Side:       fill.Side,
		Qty:        fill.Qty,
		EntryPrice: fill.Price,
		EntryTime:  p.ctx.Now(),
	}

	var created *domain.Position
	err := p.withStore(func(ctx context.Context) error {
		var cerr error
		created, cerr = p.store.CreatePosition(ctx, pos)
		return cerr
	})
	if err != nil {
		p.log.Error("opening fill lost: position row not created", "symbol", fill.Symbol, "error", err)
		p.notifier.Notify(fmt.Sprintf("Failed to persist new position for %s: %v", fill.Symbol, err))
		return
	}

	p.positions[fill.Symbol] = created
	p.log.Info("position opened",
		"symbol", created.Symbol, "side", created.Side, "qty", created.Qty,
		"entry", created.EntryPrice, "position_id", created.ID)
	p.notifier.Notify(fmt.Sprintf("Opened %s position: %s %.0f @ %.2f", created.Side, created.Symbol, created.Qty, created.EntryPrice))

	if err := p.CalculateExit(created); err != nil {
		p.log.Error("exit levels not computed", "symbol", created.Symbol, "error", err)
		p.notifier.Notify(fmt.Sprintf("Exit levels for %s not computed: %v", created.Symbol, err))
	}

	p.CreateExits(created)
}

func (p *Portfolio) closePosition(pos *domain.Position, fill domain.Fill) {
	now := p.ctx.Now()
	status := domain.PositionStatusClosed
	upd := store.PositionUpdate{
		Status:          &status,
		CloseTime:       &now,
		ClosePrice:      &fill.Price,
		CommissionClose: &fill.Commission,
	}

	err := p.withStore(func(ctx context.Context) error {
		return p.store.UpdatePosition(ctx, pos.ID, upd)
	})
	if err != nil {
		// The broker has closed the position either way; keep the live map in
		// step with the broker and flag the stale row.
		p.log.Error("close not persisted; position row is stale",
			"symbol", pos.Symbol, "position_id", pos.ID, "error", err)
		p.notifier.Notify(fmt.Sprintf("Failed to persist close of %s (position %d): %v", pos.Symbol, pos.ID, err))
	}

	delete(p.positions, pos.Symbol)
	p.log.Info("position closed",
		"symbol", pos.Symbol, "position_id", pos.ID, "close_price", fill.Price)
	p.notifier.Notify(fmt.Sprintf("Closed %s position: %s %.0f @ %.2f", pos.Side, pos.Symbol, fill.Qty, fill.Price))
}

// ---------------------------------------------------------------------------
// Exit management
// ---------------------------------------------------------------------------

// CalculateExit derives the position's exit parameters from the trailing
// volatility of its symbol and persists them on the position row:
//
//	exit-by     entry time + HoldingDays trading days
//	LONG        take-profit = entry + ATR,  stop-loss = entry − 2·ATR
//	SHORT       take-profit = entry − ATR,  stop-loss = entry + 2·ATR
func (p *Portfolio) CalculateExit(pos *domain.Position) error {
	// Calendar window padded to cover weekends and holidays in the lookback.
	end := pos.EntryTime
	start := end.AddDate(0, 0, -(p.opts.ATRWindow*2 + 7))

	var bars []domain.Bar
	err := p.withStore(func(ctx context.Context) error {
		var berr error
		bars, berr = p.bars.ReadBars(ctx, pos.Symbol, start, end)
		return berr
	})
	if err != nil {
		return fmt.Errorf("reading bar history for %s: %w", pos.Symbol, err)
	}

	atr, err := AverageTrueRange(bars, p.opts.ATRWindow)
	if err != nil {
		return fmt.Errorf("volatility for %s: %w", pos.Symbol, err)
	}

	exitBy := util.AddTradingDays(pos.EntryTime, p.opts.HoldingDays)
	var takeProfit, stopLoss float64
	switch pos.Side {
	case domain.DirectionShort:
		takeProfit = pos.EntryPrice - atr
		stopLoss = pos.EntryPrice + 2*atr
	default:
		takeProfit = pos.EntryPrice + atr
		stopLoss = pos.EntryPrice - 2*atr
	}

	upd := store.PositionUpdate{TakeProfit: &takeProfit, StopLoss: &stopLoss, ExitBy: &exitBy}
	err = p.withStore(func(ctx context.Context) error {
		return p.store.UpdatePosition(ctx, pos.ID, upd)
	})
	if err != nil {
		return fmt.Errorf("persisting exit levels for %s: %w", pos.Symbol, err)
	}

	pos.TakeProfit = &takeProfit
	pos.StopLoss = &stopLoss
	pos.ExitBy = &exitBy

	p.log.Info("exit levels computed",
		"symbol", pos.Symbol, "atr", atr,
		"take_profit", takeProfit, "stop_loss", stopLoss, "exit_by", exitBy)
	return nil
}

// CreateExits evaluates the three exit triggers against the persisted
// position row and the current time. The triggers are independent and not
// mutually exclusive; one pass can emit up to three close orders, and
// downstream handling tolerates redundant closes.
func (p *Portfolio) CreateExits(pos *domain.Position) {
	var stored *domain.Position
	err := p.withStore(func(ctx context.Context) error {
		var gerr error
		stored, gerr = p.store.GetPosition(ctx, pos.ID)
		return gerr
	})
	if err != nil {
		p.log.Error("exit evaluation skipped: position row unreadable",
			"symbol", pos.Symbol, "position_id", pos.ID, "error", err)
		p.notifier.Notify(fmt.Sprintf("Exit evaluation for %s skipped: %v", pos.Symbol, err))
		return
	}

	now := p.ctx.Now()
	opposite := stored.Side.Opposite()

	// Time-based exit: holding horizon reached.
	if stored.ExitBy != nil && !now.Before(*stored.ExitBy) {
		order, err := domain.NewMarketOrder(stored.Symbol, stored.Qty, opposite, domain.IntentClose)
		if err != nil {
			p.log.Error("time exit order construction failed", "symbol", stored.Symbol, "error", err)
		} else {
			p.log.Info("time exit triggered", "symbol", stored.Symbol, "exit_by", *stored.ExitBy)
			p.publishOrder(order)
		}
	}

	// Take-profit: close with a limit at the target price.
	if stored.TakeProfit != nil {
		order, err := domain.NewLimitOrder(stored.Symbol, stored.Qty, opposite, *stored.TakeProfit, domain.IntentClose)
		if err != nil {
			p.log.Error("take-profit order construction failed", "symbol", stored.Symbol, "error", err)
		} else {
			p.publishOrder(order)
		}
	}

	// Stop-loss: close at market, carrying the stop level.
	if stored.StopLoss != nil {
		order, err := domain.NewMarketOrder(stored.Symbol, stored.Qty, opposite, domain.IntentClose)
		if err != nil {
			p.log.Error("stop-loss order construction failed", "symbol", stored.Symbol, "error", err)
		} else {
			order.StopPrice = stored.StopLoss
			p.publishOrder(order)
		}
	}
}

// OnMarketUpdate re-evaluates exit triggers for every open position. It runs
// once per market event.
func (p *Portfolio) OnMarketUpdate(_ event.Event) {
	symbols := make([]string, 0, len(p.positions))
	for sym := range p.positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		p.CreateExits(p.positions[sym])
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (p *Portfolio) publishOrder(order *domain.Order) {
	ev, err := event.NewOrderEvent(p.ctx.Now(), order)
	if err != nil {
		p.log.Error("order event construction failed", "symbol", order.Symbol, "error", err)
		return
	}
	p.ctx.Publish(ev)
}

// withStore runs fn with a bounded timeout and a short retry budget, so a
// transient persistence failure does not silently drop a position update.
func (p *Portfolio) withStore(fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.CallTimeout)
	defer cancel()
	return util.Retry(ctx, 3, 100*time.Millisecond, func() error {
		return fn(ctx)
	})
}
