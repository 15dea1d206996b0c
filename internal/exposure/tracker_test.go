package exposure

import (
	"sync"
	"testing"
	"time"

	"limit_chaser/internal/domain"
	"limit_chaser/internal/event"

	"github.com/shopspring/decimal"
)

type staticMarks map[string]decimal.Decimal

func (s staticMarks) Mark(symbol string) (decimal.Decimal, bool) {
	m, ok := s[symbol]
	return m, ok
}

func fillEv(handle, symbol string, side domain.Side, qty int64, price string) event.Event {
	return event.Event{
		Type:   event.TypeFill,
		Handle: handle,
		Symbol: symbol,
		Side:   side,
		Fill:   &domain.FillEvent{Quantity: qty, Price: decimal.RequireFromString(price), Time: time.Now()},
	}
}

func TestTracker_Position(t *testing.T) {
	tr := NewTracker(staticMarks{"AAPL": decimal.RequireFromString("151.00")})

	tr.Observe(fillEv("h1", "AAPL", domain.SideBuy, 40, "150.00"))
	tr.Observe(fillEv("h1", "AAPL", domain.SideBuy, 60, "149.99"))
	tr.Observe(fillEv("h2", "AAPL", domain.SideSell, 30, "151.00"))
	tr.Observe(event.Event{Type: event.TypeReplaced, Symbol: "AAPL"})

	pos := tr.Position("AAPL")
	if pos.NetQuantity != 70 || !pos.IsLong() {
		t.Errorf("Expected net long 70, got %d", pos.NetQuantity)
	}
	if pos.FillCount != 3 {
		t.Errorf("Expected 3 fills, got %d", pos.FillCount)
	}
	// (40*150.00 + 60*149.99 + 30*151.00) / 130
	want := decimal.RequireFromString("19529.4").Div(decimal.NewFromInt(130))
	if !pos.AvgFillPrice.Equal(want) {
		t.Errorf("Expected avg %s, got %s", want, pos.AvgFillPrice)
	}
	if !pos.HasMark || !pos.MarketValue.Equal(decimal.RequireFromString("10570")) {
		t.Errorf("Expected market value 10570, got %s", pos.MarketValue)
	}
}

func TestTracker_ShortAndFlat(t *testing.T) {
	tr := NewTracker(nil)

	tr.Observe(fillEv("h1", "MSFT", domain.SideSell, 10, "300"))
	if pos := tr.Position("MSFT"); !pos.IsShort() || pos.NetQuantity != -10 {
		t.Errorf("Expected short 10, got %d", pos.NetQuantity)
	}
	if pos := tr.Position("MSFT"); pos.HasMark {
		t.Error("no mark source: HasMark must be false")
	}

	tr.Observe(fillEv("h2", "MSFT", domain.SideBuy, 10, "299"))
	if pos := tr.Position("MSFT"); !pos.IsFlat() {
		t.Errorf("Expected flat, got %d", pos.NetQuantity)
	}

	if pos := tr.Position("NONE"); pos.FillCount != 0 || !pos.AvgFillPrice.IsZero() {
		t.Errorf("unknown symbol should be empty, got %+v", pos)
	}
	if syms := tr.Symbols(); len(syms) != 1 || syms[0] != "MSFT" {
		t.Errorf("unexpected symbols %v", syms)
	}
}

func TestTracker_ConcurrentReads(t *testing.T) {
	tr := NewTracker(nil)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Observe(fillEv("h", "AAPL", domain.SideBuy, 1, "1"))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = tr.Position("AAPL")
			}
		}()
	}
	wg.Wait()

	if pos := tr.Position("AAPL"); pos.NetQuantity != 400 {
		t.Errorf("Expected 400, got %d", pos.NetQuantity)
	}
}
