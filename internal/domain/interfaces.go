package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Venue is the order venue. Implementations must honour ctx deadlines.
//
// Replace may be implemented as cancel+place; it returns the venue order id now resting,
// which can differ from the one passed in.
type Venue interface {
	Submit(ctx context.Context, req OrderRequest) (string, error)
	Replace(ctx context.Context, venueOrderID string, quantity int64, price decimal.Decimal) (string, error)
	Cancel(ctx context.Context, venueOrderID string) error
	Status(ctx context.Context, venueOrderID string) (VenueOrderStatus, error)
}

// FillFeed delivers asynchronous fill pushes in arrival order.
type FillFeed interface {
	SubscribeFills(ctx context.Context) (<-chan VenueFill, error)
}

// MarketData is the external quote collaborator. It returns a *StaleDataError when nothing is available.
type MarketData interface {
	GetQuote(ctx context.Context, symbol string) (Quote, error)
}

// QuoteSource is what the order manager consumes: an on-demand snapshot, or a subscription that
// yields a QuoteUpdate every time a cycle should run (timer in poll mode, push in stream mode).
type QuoteSource interface {
	Latest(ctx context.Context, symbol string) (Quote, error)
	Subscribe(ctx context.Context, symbol string) (<-chan QuoteUpdate, error)
}

// MarkSource gives a mark price for exposure valuation.
type MarkSource interface {
	Mark(symbol string) (decimal.Decimal, bool)
}
