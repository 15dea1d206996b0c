package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a top-of-book snapshot. Values are never mutated; later snapshots supersede it.
type Quote struct {
	Symbol  string          `json:"symbol"`
	Bid     decimal.Decimal `json:"bid"`
	BidSize int64           `json:"bid_size"`
	Ask     decimal.Decimal `json:"ask"`
	AskSize int64           `json:"ask_size"`
	Time    time.Time       `json:"time"`
}

// Validate checks the quote is usable for pricing: both sides positive and not crossed.
func (q Quote) Validate() error {
	if !q.Bid.IsPositive() || !q.Ask.IsPositive() {
		return fmt.Errorf("%w: %s bid=%s ask=%s", ErrInvalidQuote, q.Symbol, q.Bid, q.Ask)
	}
	if q.Bid.GreaterThan(q.Ask) {
		return fmt.Errorf("%w: %s crossed bid=%s ask=%s", ErrInvalidQuote, q.Symbol, q.Bid, q.Ask)
	}
	return nil
}

// Mid returns (bid+ask)/2.
func (q Quote) Mid() decimal.Decimal {
	return q.Bid.Add(q.Ask).Div(decimal.NewFromInt(2))
}

// Age returns how old the snapshot is relative to now. A zero timestamp is treated as infinitely old.
func (q Quote) Age(now time.Time) time.Duration {
	if q.Time.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return now.Sub(q.Time)
}

// QuoteUpdate is one delivery from a QuoteSource subscription.
// Err is set (typically a *StaleDataError) when no fresh quote is available.
type QuoteUpdate struct {
	Quote Quote
	Err   error
}
