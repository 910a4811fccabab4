package broker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"helios/internal/domain"
)

// Compile-time interface checks.
var _ Broker = (*AlpacaBroker)(nil)
var _ TradeStream = (*AlpacaBroker)(nil)

// AlpacaBroker implements Broker and TradeStream using the Alpaca brokerage
// API.
type AlpacaBroker struct {
	client *alpaca.Client
	log    *slog.Logger
}

// NewAlpacaBroker creates an AlpacaBroker configured with the given
// credentials and API endpoint. Use the paper-trading base URL for paper mode.
func NewAlpacaBroker(apiKey, apiSecret, baseURL string, logger *slog.Logger) *AlpacaBroker {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlpacaBroker{
		client: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		log: logger.With("broker", "alpaca"),
	}
}

// Name returns "alpaca".
func (b *AlpacaBroker) Name() string {
	return "alpaca"
}

// SubmitOrder sends the order to the Alpaca API and returns it with the
// broker-assigned ID and status filled in.
func (b *AlpacaBroker) SubmitOrder(_ context.Context, order *domain.Order) (*domain.Order, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}

	qty := decimal.NewFromFloat(order.Qty)
	req := alpaca.PlaceOrderRequest{
		Symbol:      order.Symbol,
		Qty:         &qty,
		Side:        toAlpacaSide(order.Direction),
		Type:        toAlpacaType(order.Type),
		TimeInForce: alpaca.Day,
	}
	if order.Type == domain.OrderTypeLimit {
		lp := decimal.NewFromFloat(*order.LimitPrice)
		req.LimitPrice = &lp
	}

	ack, err := b.client.PlaceOrder(req)
	if err != nil {
		return nil, fmt.Errorf("placing %s order for %s: %w", order.Type, order.Symbol, err)
	}

	submitted := *order
	submitted.ID = ack.ID
	submitted.Status = domain.OrderStatusPending
	submitted.CreatedAt = ack.CreatedAt
	submitted.UpdatedAt = ack.UpdatedAt

	b.log.Info("order submitted",
		"symbol", order.Symbol, "qty", order.Qty,
		"side", order.Direction, "type", order.Type, "order_id", ack.ID)
	return &submitted, nil
}

// GetAccount returns the current account snapshot from the Alpaca API.
func (b *AlpacaBroker) GetAccount(_ context.Context) (*domain.AccountInfo, error) {
	acct, err := b.client.GetAccount()
	if err != nil {
		return nil, fmt.Errorf("fetching account: %w", err)
	}
	return &domain.AccountInfo{
		Equity:      acct.Equity.InexactFloat64(),
		Cash:        acct.Cash.InexactFloat64(),
		BuyingPower: acct.BuyingPower.InexactFloat64(),
	}, nil
}

// StreamTradeUpdates subscribes to the Alpaca trade-update stream and invokes
// handler for each update until ctx is cancelled.
func (b *AlpacaBroker) StreamTradeUpdates(ctx context.Context, handler func(TradeUpdate)) error {
	return b.client.StreamTradeUpdates(ctx, func(u alpaca.TradeUpdate) {
		handler(fromAlpacaTradeUpdate(u))
	}, alpaca.StreamTradeUpdatesRequest{})
}

func toAlpacaSide(d domain.Direction) alpaca.Side {
	if d == domain.DirectionShort {
		return alpaca.Sell
	}
	return alpaca.Buy
}

func toAlpacaType(t domain.OrderType) alpaca.OrderType {
	if t == domain.OrderTypeLimit {
		return alpaca.Limit
	}
	return alpaca.Market
}

func fromAlpacaTradeUpdate(u alpaca.TradeUpdate) TradeUpdate {
	tu := TradeUpdate{
		Event:     u.Event,
		OrderID:   u.Order.ID,
		Symbol:    u.Order.Symbol,
		Side:      domain.DirectionLong,
		Timestamp: u.At,
	}
	if u.Order.Side == alpaca.Sell {
		tu.Side = domain.DirectionShort
	}
	if u.Order.Qty != nil {
		tu.OrderQty = u.Order.Qty.InexactFloat64()
	}
	if u.Qty != nil {
		tu.FillQty = u.Qty.InexactFloat64()
	}
	if u.Price != nil {
		tu.FillPrice = u.Price.InexactFloat64()
	}
	if u.Order.LimitPrice != nil {
		lp := u.Order.LimitPrice.InexactFloat64()
		tu.LimitPrice = &lp
	}
	return tu
}
