package quote

import (
	"sort"
	"sync"
	"time"

	"limit_chaser/internal/domain"

	"github.com/shopspring/decimal"
)

// BookSide selects the bid or ask side of a book.
type BookSide int

const (
	Bids BookSide = iota
	Asks
)

// Level is one price level of market depth.
type Level struct {
	Price decimal.Decimal `json:"price"`
	Size  int64           `json:"size"`
}

type depth struct {
	bids    map[string]Level
	asks    map[string]Level
	updated time.Time
	top     domain.Quote
	hasTop  bool
}

type listener struct {
	symbol string
	fn     func(domain.Quote)
}

// Book aggregates level-2 market depth per symbol and tells listeners when the top of book moves.
type Book struct {
	mu        sync.RWMutex
	books     map[string]*depth
	listeners map[int]listener
	nextID    int
}

// NewBook creates an empty book.
func NewBook() *Book {
	return &Book{
		books:     make(map[string]*depth),
		listeners: make(map[int]listener),
	}
}

// ApplySnapshot replaces all depth for symbol.
func (b *Book) ApplySnapshot(symbol string, bids, asks []Level, ts time.Time) {
	b.mu.Lock()
	d := b.get(symbol)
	d.bids = make(map[string]Level, len(bids))
	d.asks = make(map[string]Level, len(asks))
	for _, l := range bids {
		if l.Size > 0 {
			d.bids[l.Price.String()] = l
		}
	}
	for _, l := range asks {
		if l.Size > 0 {
			d.asks[l.Price.String()] = l
		}
	}
	changed, top := b.refresh(symbol, d, ts)
	b.mu.Unlock()

	if changed {
		b.notify(top)
	}
}

// ApplyDelta updates one level; a size of zero removes it.
func (b *Book) ApplyDelta(symbol string, side BookSide, price decimal.Decimal, size int64, ts time.Time) {
	b.mu.Lock()
	d := b.get(symbol)
	levels := d.bids
	if side == Asks {
		levels = d.asks
	}
	if size <= 0 {
		delete(levels, price.String())
	} else {
		levels[price.String()] = Level{Price: price, Size: size}
	}
	changed, top := b.refresh(symbol, d, ts)
	b.mu.Unlock()

	if changed {
		b.notify(top)
	}
}

// SetTop replaces the book with a single level per side, for level-1 feeds.
func (b *Book) SetTop(q domain.Quote) {
	b.ApplySnapshot(q.Symbol,
		[]Level{{Price: q.Bid, Size: q.BidSize}},
		[]Level{{Price: q.Ask, Size: q.AskSize}},
		q.Time)
}

// Top returns the best bid and ask for symbol. ok is false until both sides exist.
func (b *Book) Top(symbol string) (domain.Quote, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.books[symbol]
	if !ok || !d.hasTop {
		return domain.Quote{}, false
	}
	return d.top, true
}

// Depth returns up to n levels per side, best first.
func (b *Book) Depth(symbol string, n int) (bids, asks []Level) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.books[symbol]
	if !ok {
		return nil, nil
	}
	bids = sortedLevels(d.bids, true, n)
	asks = sortedLevels(d.asks, false, n)
	return bids, asks
}

// Mark returns the mid of the current top of book.
func (b *Book) Mark(symbol string) (decimal.Decimal, bool) {
	q, ok := b.Top(symbol)
	if !ok {
		return decimal.Zero, false
	}
	return q.Mid(), true
}

// Listen calls fn with the new top every time the top of book for symbol changes.
// The returned func removes the listener.
func (b *Book) Listen(symbol string, fn func(domain.Quote)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = listener{symbol: symbol, fn: fn}
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

func (b *Book) get(symbol string) *depth {
	d, ok := b.books[symbol]
	if !ok {
		d = &depth{bids: make(map[string]Level), asks: make(map[string]Level)}
		b.books[symbol] = d
	}
	return d
}

// refresh recomputes the top of book. Must be called with the write lock held.
func (b *Book) refresh(symbol string, d *depth, ts time.Time) (bool, domain.Quote) {
	d.updated = ts
	bestBid := sortedLevels(d.bids, true, 1)
	bestAsk := sortedLevels(d.asks, false, 1)
	if len(bestBid) == 0 || len(bestAsk) == 0 {
		d.hasTop = false
		return false, domain.Quote{}
	}

	top := domain.Quote{
		Symbol:  symbol,
		Bid:     bestBid[0].Price,
		BidSize: bestBid[0].Size,
		Ask:     bestAsk[0].Price,
		AskSize: bestAsk[0].Size,
		Time:    ts,
	}
	changed := !d.hasTop ||
		!d.top.Bid.Equal(top.Bid) || !d.top.Ask.Equal(top.Ask) ||
		d.top.BidSize != top.BidSize || d.top.AskSize != top.AskSize
	d.top = top
	d.hasTop = true
	return changed, top
}

func (b *Book) notify(top domain.Quote) {
	b.mu.RLock()
	fns := make([]func(domain.Quote), 0, len(b.listeners))
	for _, l := range b.listeners {
		if l.symbol == top.Symbol {
			fns = append(fns, l.fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(top)
	}
}

func sortedLevels(m map[string]Level, desc bool, n int) []Level {
	out := make([]Level, 0, len(m))
	for _, l := range m {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
