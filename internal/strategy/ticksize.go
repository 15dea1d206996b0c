package strategy

import (
	"limit_chaser/internal/domain"

	"github.com/shopspring/decimal"
)

var (
	// EquityTick is the increment for equities priced at or above one dollar.
	EquityTick = decimal.RequireFromString("0.01")
	// SubPennyTick covers sub-dollar equities and all options.
	SubPennyTick = decimal.RequireFromString("0.0001")

	one = decimal.NewFromInt(1)
)

// ResolveTickSize returns the minimal price increment for inst at referencePrice.
// Precondition: referencePrice > 0. Callers handle missing prices (see TickFor).
func ResolveTickSize(inst domain.Instrument, referencePrice decimal.Decimal) decimal.Decimal {
	if inst.Kind == domain.KindEquity && referencePrice.GreaterThanOrEqual(one) {
		return EquityTick
	}
	return SubPennyTick
}

// TickFor picks the reference price for a cycle: the quote's bid, then the instrument's
// reference price; with neither positive it falls back to the equity default.
func TickFor(inst domain.Instrument, quote domain.Quote) decimal.Decimal {
	switch {
	case quote.Bid.IsPositive():
		return ResolveTickSize(inst, quote.Bid)
	case inst.ReferencePrice.IsPositive():
		return ResolveTickSize(inst, inst.ReferencePrice)
	default:
		return EquityTick
	}
}
