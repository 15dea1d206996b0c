package exposure

import (
	"sort"
	"sync"

	"limit_chaser/internal/domain"
	"limit_chaser/internal/event"

	"github.com/shopspring/decimal"
)

// Fill is one execution as seen by the tracker.
type Fill struct {
	Handle string
	Side   domain.Side
	domain.FillEvent
}

// Tracker derives per-symbol exposure from every fill recorded in this process.
// The history is append-only; positions are recomputed on each read.
type Tracker struct {
	mu    sync.RWMutex
	fills map[string][]Fill
	marks domain.MarkSource
}

// NewTracker creates a tracker valuing positions with marks. marks may be nil.
func NewTracker(marks domain.MarkSource) *Tracker {
	return &Tracker{
		fills: make(map[string][]Fill),
		marks: marks,
	}
}

// Observe consumes an order event; only fills matter.
func (t *Tracker) Observe(ev event.Event) {
	if ev.Type != event.TypeFill || ev.Fill == nil {
		return
	}
	t.Record(ev.Symbol, Fill{Handle: ev.Handle, Side: ev.Side, FillEvent: *ev.Fill})
}

// Record appends a fill for symbol.
func (t *Tracker) Record(symbol string, f Fill) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fills[symbol] = append(t.fills[symbol], f)
}

// Position returns the point-in-time exposure for symbol.
func (t *Tracker) Position(symbol string) domain.ExposurePosition {
	t.mu.RLock()
	fills := t.fills[symbol]
	t.mu.RUnlock()

	pos := domain.ExposurePosition{Symbol: symbol, FillCount: len(fills)}

	var totalQty int64
	notional := decimal.Zero
	for _, f := range fills {
		pos.NetQuantity += f.Side.Sign() * f.Quantity
		totalQty += f.Quantity
		notional = notional.Add(f.Price.Mul(decimal.NewFromInt(f.Quantity)))
	}
	if totalQty > 0 {
		pos.AvgFillPrice = notional.Div(decimal.NewFromInt(totalQty))
	}

	if t.marks != nil {
		if mark, ok := t.marks.Mark(symbol); ok {
			pos.Mark = mark
			pos.HasMark = true
			pos.MarketValue = mark.Mul(decimal.NewFromInt(pos.NetQuantity))
		}
	}
	return pos
}

// Fills returns a copy of the fill history for symbol.
func (t *Tracker) Fills(symbol string) []Fill {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Fill(nil), t.fills[symbol]...)
}

// Symbols lists every symbol with at least one fill.
func (t *Tracker) Symbols() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.fills))
	for s := range t.fills {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
