package quote

import (
	"context"
	"time"

	"limit_chaser/internal/domain"

	"github.com/shopspring/decimal"
)

// Stream is the push-mode QuoteSource backed by a Book. Each top-of-book change is one
// update; when nothing arrives within maxAge a stale update is emitted instead.
type Stream struct {
	book   *Book
	maxAge time.Duration
	now    func() time.Time
}

// NewStream creates a push source over book. maxAge <= 0 disables staleness reporting.
func NewStream(book *Book, maxAge time.Duration) *Stream {
	return &Stream{book: book, maxAge: maxAge, now: time.Now}
}

// Latest returns the current top of book, or a *StaleDataError.
func (s *Stream) Latest(_ context.Context, symbol string) (domain.Quote, error) {
	q, ok := s.book.Top(symbol)
	if !ok {
		return domain.Quote{}, &domain.StaleDataError{Symbol: symbol}
	}
	if s.maxAge > 0 {
		if age := q.Age(s.now()); age > s.maxAge {
			return domain.Quote{}, &domain.StaleDataError{Symbol: symbol, Age: age}
		}
	}
	if err := q.Validate(); err != nil {
		return domain.Quote{}, err
	}
	return q, nil
}

// Subscribe starts a fresh subscription for symbol; subscriptions are independent and can be
// restarted at will. The channel closes when ctx ends.
func (s *Stream) Subscribe(ctx context.Context, symbol string) (<-chan domain.QuoteUpdate, error) {
	pushes := make(chan domain.QuoteUpdate, 1)
	out := make(chan domain.QuoteUpdate, 1)

	unlisten := s.book.Listen(symbol, func(q domain.Quote) {
		offer(pushes, domain.QuoteUpdate{Quote: q, Err: q.Validate()})
	})

	go func() {
		defer close(out)
		defer unlisten()

		var staleC <-chan time.Time
		var timer *time.Timer
		if s.maxAge > 0 {
			timer = time.NewTimer(s.maxAge)
			defer timer.Stop()
			staleC = timer.C
		}

		for {
			select {
			case <-ctx.Done():
				return
			case u := <-pushes:
				if timer != nil {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(s.maxAge)
				}
				offer(out, u)
			case <-staleC:
				offer(out, domain.QuoteUpdate{Err: &domain.StaleDataError{Symbol: symbol, Age: s.maxAge}})
				timer.Reset(s.maxAge)
			}
		}
	}()

	return out, nil
}

// Mark returns the book mid for symbol.
func (s *Stream) Mark(symbol string) (decimal.Decimal, bool) {
	return s.book.Mark(symbol)
}
