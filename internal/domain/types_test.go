package domain

import "testing"

func TestDirectionOpposite(t *testing.T) {
	if got := DirectionLong.Opposite(); got != DirectionShort {
		t.Errorf("DirectionLong.Opposite() = %q, want %q", got, DirectionShort)
	}
	if got := DirectionShort.Opposite(); got != DirectionLong {
		t.Errorf("DirectionShort.Opposite() = %q, want %q", got, DirectionLong)
	}
}

func TestNewLimitOrder(t *testing.T) {
	o, err := NewLimitOrder("AAPL", 100, DirectionLong, 185.5, IntentOpen)
	if err != nil {
		t.Fatalf("NewLimitOrder returned error: %v", err)
	}
	if o.Type != OrderTypeLimit {
		t.Errorf("Type = %q, want %q", o.Type, OrderTypeLimit)
	}
	if o.LimitPrice == nil || *o.LimitPrice != 185.5 {
		t.Errorf("LimitPrice = %v, want 185.5", o.LimitPrice)
	}
	if o.ID != "" {
		t.Errorf("ID = %q, want empty before broker acknowledgement", o.ID)
	}
}

func TestOrderValidate_LimitRequiresPrice(t *testing.T) {
	o := &Order{Type: OrderTypeLimit, Symbol: "AAPL", Qty: 10, Direction: DirectionLong}
	if err := o.Validate(); err == nil {
		t.Error("Validate accepted a limit order with no price")
	}
}

func TestOrderValidate_RejectsBadQty(t *testing.T) {
	if _, err := NewMarketOrder("AAPL", 0, DirectionLong, IntentOpen); err == nil {
		t.Error("NewMarketOrder accepted zero quantity")
	}
	if _, err := NewMarketOrder("AAPL", -5, DirectionShort, IntentClose); err == nil {
		t.Error("NewMarketOrder accepted negative quantity")
	}
}

func TestOrderValidate_MarketIgnoresPrice(t *testing.T) {
	price := 42.0
	o := &Order{Type: OrderTypeMarket, Symbol: "MSFT", Qty: 1, Direction: DirectionShort, LimitPrice: &price}
	if err := o.Validate(); err != nil {
		t.Errorf("Validate rejected a market order carrying a stale price: %v", err)
	}
}

func TestFillValidate(t *testing.T) {
	f := &Fill{OrderID: "abc", Symbol: "AAPL", Qty: 10, Side: DirectionLong, Price: 185.0, Commission: 0}
	if err := f.Validate(); err != nil {
		t.Fatalf("Validate returned error for a valid fill: %v", err)
	}

	bad := []Fill{
		{Symbol: "AAPL", Qty: 0, Side: DirectionLong, Price: 185.0},
		{Symbol: "AAPL", Qty: 10, Side: DirectionLong, Price: 0},
		{Symbol: "AAPL", Qty: 10, Side: DirectionLong, Price: 185.0, Commission: -1},
		{Symbol: "AAPL", Qty: 10, Side: "SIDEWAYS", Price: 185.0},
		{Qty: 10, Side: DirectionLong, Price: 185.0},
	}
	for i := range bad {
		if err := bad[i].Validate(); err == nil {
			t.Errorf("Validate accepted invalid fill #%d: %+v", i, bad[i])
		}
	}
}
