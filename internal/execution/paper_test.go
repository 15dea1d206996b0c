package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"limit_chaser/internal/domain"
	"limit_chaser/internal/quote"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func buy(qty int64, price string) domain.OrderRequest {
	return domain.OrderRequest{
		Instrument: domain.NewInstrument("AAPL", d(price)),
		Side:       domain.SideBuy,
		Quantity:   qty,
		Price:      d(price),
	}
}

func nextFill(t *testing.T, ch <-chan domain.VenueFill) domain.VenueFill {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(time.Second):
		t.Fatal("no fill delivered")
	}
	return domain.VenueFill{}
}

func TestPaperVenue_SubmitReplaceCancel(t *testing.T) {
	v := NewPaperVenue(PaperConfig{}, nil)
	ctx := context.Background()

	id, err := v.Submit(ctx, buy(100, "149.99"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	newID, err := v.Replace(ctx, id, 100, d("150.00"))
	if err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	if newID == id {
		t.Error("Replace must issue a new venue order id")
	}
	if st, _ := v.Status(ctx, id); st.Open {
		t.Error("Replaced order should be closed")
	}

	if _, err := v.Replace(ctx, id, 100, d("150.01")); !errors.Is(err, domain.ErrAlreadyTerminal) {
		t.Errorf("Expected ErrAlreadyTerminal, got %v", err)
	}
	if err := v.Cancel(ctx, newID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if err := v.Cancel(ctx, newID); !errors.Is(err, domain.ErrAlreadyTerminal) {
		t.Errorf("Expected ErrAlreadyTerminal, got %v", err)
	}
	if _, err := v.Status(ctx, "missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("Expected ErrOrderNotFound, got %v", err)
	}
}

func TestPaperVenue_RejectsBadOrders(t *testing.T) {
	v := NewPaperVenue(PaperConfig{}, nil)
	var rej *domain.RejectionError

	if _, err := v.Submit(context.Background(), buy(0, "1.00")); !errors.As(err, &rej) {
		t.Errorf("Expected rejection for zero quantity, got %v", err)
	}
	req := buy(10, "1.00")
	req.Price = decimal.Zero
	if _, err := v.Submit(context.Background(), req); !errors.As(err, &rej) {
		t.Errorf("Expected rejection for zero price, got %v", err)
	}
}

func TestPaperVenue_MarketableOrderFills(t *testing.T) {
	v := NewPaperVenue(PaperConfig{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fills, _ := v.SubscribeFills(ctx)

	id, _ := v.Submit(ctx, buy(100, "150.00"))

	// Not crossed, and touch fills are disabled.
	v.OnQuote(domain.Quote{Symbol: "AAPL", Bid: d("150.00"), Ask: d("150.02")})
	if st, _ := v.Status(ctx, id); st.FilledQuantity != 0 {
		t.Fatalf("Expected no fill, got %d", st.FilledQuantity)
	}

	v.OnQuote(domain.Quote{Symbol: "AAPL", Bid: d("149.98"), Ask: d("150.00")})
	f := nextFill(t, fills)
	if f.VenueOrderID != id || f.Fill.Quantity != 100 || !f.Fill.Price.Equal(d("150.00")) {
		t.Errorf("unexpected fill %+v", f)
	}
	st, _ := v.Status(ctx, id)
	if st.Open || st.FilledQuantity != 100 {
		t.Errorf("Expected fully filled closed order, got %+v", st)
	}
}

func TestPaperVenue_TouchAndPartialFills(t *testing.T) {
	v := NewPaperVenue(PaperConfig{FillProbability: 1, PartialFills: true, Seed: 7}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fills, _ := v.SubscribeFills(ctx)

	id, _ := v.Submit(ctx, buy(100, "150.00"))

	var total int64
	for i := 0; i < 200 && total < 100; i++ {
		v.OnQuote(domain.Quote{Symbol: "AAPL", Bid: d("150.00"), Ask: d("150.02")})
		total += nextFill(t, fills).Fill.Quantity
	}
	if total != 100 {
		t.Errorf("Expected touch fills to complete the order, got %d", total)
	}
	if st, _ := v.Status(ctx, id); st.Open {
		t.Error("Order should be closed once filled")
	}
}

func TestPaperVenue_Trade(t *testing.T) {
	v := NewPaperVenue(PaperConfig{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fills, _ := v.SubscribeFills(ctx)

	id, _ := v.Submit(ctx, buy(100, "149.99"))
	if err := v.Trade(id, 40); err != nil {
		t.Fatalf("Trade failed: %v", err)
	}
	if f := nextFill(t, fills); f.Fill.Quantity != 40 {
		t.Errorf("Expected 40, got %d", f.Fill.Quantity)
	}

	newID, _ := v.Replace(ctx, id, 60, d("150.00"))
	if err := v.Trade(newID, 1000); err != nil {
		t.Fatalf("Trade failed: %v", err)
	}
	if f := nextFill(t, fills); f.Fill.Quantity != 60 {
		t.Errorf("Trade should be capped at remaining, got %d", f.Fill.Quantity)
	}
}

func TestPaperVenue_SubscriptionClosesWithContext(t *testing.T) {
	v := NewPaperVenue(PaperConfig{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	fills, _ := v.SubscribeFills(ctx)
	cancel()

	select {
	case _, ok := <-fills:
		if ok {
			t.Error("Expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
}

func TestSimMarket_GetQuoteAndStep(t *testing.T) {
	book := quote.NewBook()
	m := NewSimMarket(map[string]SimSymbol{
		"aapl": {Bid: d("150.00"), Ask: d("150.02"), Size: 100},
	}, time.Millisecond, 1, book, nil, nil)

	if _, err := m.GetQuote(context.Background(), "MSFT"); !errors.Is(err, domain.ErrStaleQuote) {
		t.Errorf("Expected stale for unknown symbol, got %v", err)
	}

	before, err := m.GetQuote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetQuote failed: %v", err)
	}
	spread := before.Ask.Sub(before.Bid)

	for i := 0; i < 50; i++ {
		m.Step()
		q, _ := m.GetQuote(context.Background(), "AAPL")
		if !q.Ask.Sub(q.Bid).Equal(spread) {
			t.Fatalf("spread changed: %s", q.Ask.Sub(q.Bid))
		}
		if err := q.Validate(); err != nil {
			t.Fatalf("invalid simulated quote: %v", err)
		}
		if moved := q.Bid.Sub(before.Bid).Abs(); moved.GreaterThan(d("0.01")) {
			t.Fatalf("moved more than one tick: %s", moved)
		}
		before = q
	}

	top, ok := book.Top("AAPL")
	if !ok || !top.Bid.Equal(before.Bid) {
		t.Errorf("book not updated: %+v", top)
	}
	if got := m.Symbols(); len(got) != 1 || got[0] != "AAPL" {
		t.Errorf("unexpected symbols %v", got)
	}
}

func TestSimMarket_SetMatchesVenue(t *testing.T) {
	v := NewPaperVenue(PaperConfig{}, nil)
	m := NewSimMarket(map[string]SimSymbol{"AAPL": {Bid: d("150.00"), Ask: d("150.02")}}, 0, 1, nil, v, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fills, _ := v.SubscribeFills(ctx)

	id, _ := v.Submit(ctx, buy(10, "150.01"))
	m.Set(domain.Quote{Symbol: "AAPL", Bid: d("150.00"), Ask: d("150.01"), BidSize: 1, AskSize: 1})

	if f := nextFill(t, fills); f.VenueOrderID != id {
		t.Errorf("unexpected fill %+v", f)
	}
}
