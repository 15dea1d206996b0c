package strategy

import (
	"limit_chaser/internal/domain"

	"github.com/shopspring/decimal"
)

// Pricer decides the next limit price for a working order.
// It is called synchronously by the order manager and must be pure.
type Pricer interface {
	// Next returns the price for the phase following prev, and that phase.
	Next(side domain.Side, quote domain.Quote, tick decimal.Decimal, prev domain.Phase) (decimal.Decimal, domain.Phase)
}
