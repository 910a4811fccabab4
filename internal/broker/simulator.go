package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"helios/internal/domain"
)

// Compile-time interface checks.
var _ Broker = (*SimulatorBroker)(nil)
var _ TradeStream = (*SimulatorBroker)(nil)

// SimulatorBroker implements Broker and TradeStream for paper trading and
// tests. Orders are acknowledged in memory; trade updates are injected with
// Push and delivered through StreamTradeUpdates like the live feed.
type SimulatorBroker struct {
	mu      sync.Mutex
	nextID  int
	orders  map[string]*domain.Order
	account domain.AccountInfo
	updates chan TradeUpdate
}

// NewSimulatorBroker creates a SimulatorBroker with the given starting cash.
func NewSimulatorBroker(cash float64) *SimulatorBroker {
	return &SimulatorBroker{
		orders:  make(map[string]*domain.Order),
		account: domain.AccountInfo{Equity: cash, Cash: cash, BuyingPower: cash},
		updates: make(chan TradeUpdate, 64),
	}
}

// Name returns "simulator".
func (b *SimulatorBroker) Name() string {
	return "simulator"
}

// SubmitOrder records the order and acknowledges it with a simulated ID.
func (b *SimulatorBroker) SubmitOrder(_ context.Context, order *domain.Order) (*domain.Order, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	ack := *order
	ack.ID = fmt.Sprintf("sim-%d", b.nextID)
	ack.Status = domain.OrderStatusPending
	now := time.Now()
	ack.CreatedAt = now
	ack.UpdatedAt = now

	b.orders[ack.ID] = &ack
	return &ack, nil
}

// GetAccount returns the simulated account snapshot.
func (b *SimulatorBroker) GetAccount(_ context.Context) (*domain.AccountInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acct := b.account
	return &acct, nil
}

// SetCash replaces the simulated cash balance.
func (b *SimulatorBroker) SetCash(cash float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.account.Cash = cash
}

// SubmittedOrders returns a copy of every order the simulator has seen.
func (b *SimulatorBroker) SubmittedOrders() []domain.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Order, 0, len(b.orders))
	for _, o := range b.orders {
		out = append(out, *o)
	}
	return out
}

// Push injects a trade update into the simulated stream.
func (b *SimulatorBroker) Push(u TradeUpdate) {
	b.updates <- u
}

// StreamTradeUpdates delivers pushed updates to handler until ctx is
// cancelled.
func (b *SimulatorBroker) StreamTradeUpdates(ctx context.Context, handler func(TradeUpdate)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u := <-b.updates:
			handler(u)
		}
	}
}
