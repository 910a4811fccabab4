package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"helios/internal/domain"
)

// Executor translates order events into broker submissions. It is the
// execution handler the dispatch loop routes ORDER events to.
type Executor struct {
	broker  Broker
	log     *slog.Logger
	timeout time.Duration
}

// NewExecutor creates an Executor over the given broker. Submissions are
// bounded by timeout so a stalled broker call cannot hang the dispatch
// thread indefinitely.
func NewExecutor(b Broker, timeout time.Duration, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Executor{
		broker:  b,
		log:     logger.With("component", "executor"),
		timeout: timeout,
	}
}

// Execute submits the order to the broker. The acknowledged broker ID and
// status are copied back onto the order.
func (x *Executor) Execute(ctx context.Context, order *domain.Order) error {
	cctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	ack, err := x.broker.SubmitOrder(cctx, order)
	if err != nil {
		return fmt.Errorf("executing %s %s order for %s: %w", order.Intent, order.Type, order.Symbol, err)
	}

	order.ID = ack.ID
	order.Status = ack.Status
	order.CreatedAt = ack.CreatedAt
	order.UpdatedAt = ack.UpdatedAt

	x.log.Info("order executed",
		"symbol", order.Symbol, "qty", order.Qty, "side", order.Direction,
		"type", order.Type, "intent", order.Intent, "order_id", order.ID)
	return nil
}
