package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide accepts "buy"/"sell" in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(SideBuy):
		return SideBuy, nil
	case string(SideSell):
		return SideSell, nil
	default:
		return "", fmt.Errorf("invalid side %q", s)
	}
}

// Sign returns +1 for buys and -1 for sells.
func (s Side) Sign() int64 {
	if s == SideSell {
		return -1
	}
	return 1
}

// Kind classifies an instrument for tick-size decisions.
type Kind string

const (
	KindEquity Kind = "EQUITY"
	KindOption Kind = "OPTION"
)

// occSymbol matches OCC option symbols, e.g. "AAPL  240119C00150000".
var occSymbol = regexp.MustCompile(`^[A-Z][A-Z0-9.]{0,5}\s*\d{6}[CP]\d{8}$`)

// ClassifySymbol is the single place a symbol string is turned into a Kind.
func ClassifySymbol(symbol string) Kind {
	if occSymbol.MatchString(strings.ToUpper(strings.TrimSpace(symbol))) {
		return KindOption
	}
	return KindEquity
}

// Instrument is immutable once an order references it.
type Instrument struct {
	Symbol         string          `json:"symbol"`
	Kind           Kind            `json:"kind"`
	ReferencePrice decimal.Decimal `json:"reference_price"`
}

// NewInstrument normalizes the symbol and classifies it.
func NewInstrument(symbol string, referencePrice decimal.Decimal) Instrument {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	return Instrument{
		Symbol:         sym,
		Kind:           ClassifySymbol(sym),
		ReferencePrice: referencePrice,
	}
}
