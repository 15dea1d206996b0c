package quote

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"limit_chaser/internal/domain"

	"github.com/shopspring/decimal"
)

// DefaultPollInterval is how often a polling subscription asks for a quote.
const DefaultPollInterval = 500 * time.Millisecond

// Poller is the poll-mode QuoteSource: it asks MarketData on demand and, for subscriptions,
// on a fixed interval. Quotes older than maxAge are reported as stale, never returned.
type Poller struct {
	md       domain.MarketData
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu   sync.RWMutex
	last map[string]domain.Quote
}

// NewPoller creates a poller. maxAge <= 0 disables the age check.
func NewPoller(md domain.MarketData, interval, maxAge time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		md:       md,
		interval: interval,
		maxAge:   maxAge,
		now:      time.Now,
		logger:   slog.Default().With("module", "quote_poller"),
		last:     make(map[string]domain.Quote),
	}
}

// Latest fetches a fresh snapshot for symbol.
func (p *Poller) Latest(ctx context.Context, symbol string) (domain.Quote, error) {
	q, err := p.md.GetQuote(ctx, symbol)
	if err != nil {
		if errors.Is(err, domain.ErrStaleQuote) || domain.IsRetriable(err) {
			return domain.Quote{}, err
		}
		return domain.Quote{}, domain.NewTransientError("quote", err)
	}
	if p.maxAge > 0 {
		if age := q.Age(p.now()); age > p.maxAge {
			return domain.Quote{}, &domain.StaleDataError{Symbol: symbol, Age: age}
		}
	}
	if err := q.Validate(); err != nil {
		return domain.Quote{}, err
	}

	p.mu.Lock()
	p.last[symbol] = q
	p.mu.Unlock()
	return q, nil
}

// Subscribe polls symbol every interval until ctx ends. Delivery keeps only the newest update.
func (p *Poller) Subscribe(ctx context.Context, symbol string) (<-chan domain.QuoteUpdate, error) {
	out := make(chan domain.QuoteUpdate, 1)

	go func() {
		defer close(out)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				q, err := p.Latest(ctx, symbol)
				if err != nil && ctx.Err() != nil {
					return
				}
				if err != nil {
					p.logger.Debug("Quote poll failed", slog.String("symbol", symbol), slog.Any("error", err))
				}
				offer(out, domain.QuoteUpdate{Quote: q, Err: err})
			}
		}
	}()

	return out, nil
}

// Mark returns the mid of the last fresh quote seen for symbol.
func (p *Poller) Mark(symbol string) (decimal.Decimal, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	q, ok := p.last[symbol]
	if !ok {
		return decimal.Zero, false
	}
	return q.Mid(), true
}

// offer sends u, replacing any update the reader has not consumed yet.
// Only valid with a single producer per channel.
func offer(ch chan domain.QuoteUpdate, u domain.QuoteUpdate) {
	for {
		select {
		case ch <- u:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
