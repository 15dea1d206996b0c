package execution

import (
	"context"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"limit_chaser/internal/domain"
	"limit_chaser/internal/quote"
	"limit_chaser/internal/strategy"

	"github.com/shopspring/decimal"
)

// DefaultTickInterval is how often SimMarket moves prices.
const DefaultTickInterval = 250 * time.Millisecond

// SimSymbol seeds one simulated instrument.
type SimSymbol struct {
	Bid  decimal.Decimal
	Ask  decimal.Decimal
	Size int64
}

// SimMarket random-walks the top of book for a fixed set of symbols. Each step is pushed into
// the book and offered to the paper venue for matching. It implements domain.MarketData.
type SimMarket struct {
	interval time.Duration
	book     *quote.Book
	venue    *PaperVenue
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.RWMutex
	quotes map[string]domain.Quote
	rand   *rand.Rand
}

// NewSimMarket creates a market seeded with symbols. book and venue may be nil.
func NewSimMarket(symbols map[string]SimSymbol, interval time.Duration, seed int64, book *quote.Book, venue *PaperVenue, logger *slog.Logger) *SimMarket {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &SimMarket{
		interval: interval,
		book:     book,
		venue:    venue,
		logger:   logger.With("module", "sim_market"),
		now:      time.Now,
		quotes:   make(map[string]domain.Quote, len(symbols)),
		rand:     rand.New(rand.NewSource(seed)),
	}
	for sym, s := range symbols {
		size := s.Size
		if size <= 0 {
			size = 100
		}
		inst := domain.NewInstrument(sym, s.Bid)
		m.quotes[inst.Symbol] = domain.Quote{
			Symbol: inst.Symbol, Bid: s.Bid, BidSize: size, Ask: s.Ask, AskSize: size, Time: m.now(),
		}
	}
	return m
}

// GetQuote returns the current simulated top of book.
func (m *SimMarket) GetQuote(_ context.Context, symbol string) (domain.Quote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quotes[symbol]
	if !ok {
		return domain.Quote{}, &domain.StaleDataError{Symbol: symbol}
	}
	return q, nil
}

// Symbols lists the simulated symbols in sorted order.
func (m *SimMarket) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.quotes))
	for s := range m.quotes {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Run steps the market every interval until ctx ends.
func (m *SimMarket) Run(ctx context.Context) {
	m.publish(m.snapshot())

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Step()
		}
	}
}

// Step moves every symbol by at most one tick and publishes the result.
func (m *SimMarket) Step() {
	m.mu.Lock()
	syms := make([]string, 0, len(m.quotes))
	for s := range m.quotes {
		syms = append(syms, s)
	}
	sort.Strings(syms)

	now := m.now()
	moved := make([]domain.Quote, 0, len(syms))
	for _, sym := range syms {
		q := m.quotes[sym]
		tick := strategy.TickFor(domain.NewInstrument(sym, q.Bid), q)
		shift := tick.Mul(decimal.NewFromInt(int64(m.rand.Intn(3) - 1)))
		if q.Bid.Add(shift).LessThanOrEqual(tick) {
			shift = decimal.Zero
		}
		q.Bid = q.Bid.Add(shift)
		q.Ask = q.Ask.Add(shift)
		q.BidSize = 1 + m.rand.Int63n(max(q.BidSize, 1)*2)
		q.AskSize = 1 + m.rand.Int63n(max(q.AskSize, 1)*2)
		q.Time = now
		m.quotes[sym] = q
		moved = append(moved, q)
	}
	m.mu.Unlock()

	m.publish(moved)
}

// Set overrides the top of book for a symbol and publishes it.
func (m *SimMarket) Set(q domain.Quote) {
	if q.Time.IsZero() {
		q.Time = m.now()
	}
	m.mu.Lock()
	m.quotes[q.Symbol] = q
	m.mu.Unlock()
	m.publish([]domain.Quote{q})
}

func (m *SimMarket) snapshot() []domain.Quote {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Quote, 0, len(m.quotes))
	for _, q := range m.quotes {
		out = append(out, q)
	}
	return out
}

func (m *SimMarket) publish(quotes []domain.Quote) {
	for _, q := range quotes {
		if m.book != nil {
			m.book.SetTop(q)
		}
		if m.venue != nil {
			m.venue.OnQuote(q)
		}
	}
}
