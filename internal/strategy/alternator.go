package strategy

import (
	"limit_chaser/internal/domain"

	"github.com/shopspring/decimal"
)

// Alternator flips between the top of book and AwayTicks ticks behind it.
type Alternator struct {
	// AwayTicks is how far behind the top the away price rests. Values below 1 mean 1.
	AwayTicks int
}

// NewAlternator creates an alternator resting awayTicks behind the top when away.
func NewAlternator(awayTicks int) Alternator {
	if awayTicks < 1 {
		awayTicks = 1
	}
	return Alternator{AwayTicks: awayTicks}
}

// Next alternates the phase on every call; whether the resulting price is worth a
// replace is the caller's decision.
//
//	buy:  AT_TOP -> bid, AWAY_FROM_TOP -> bid - n*tick (bid and AT_TOP if that is not positive)
//	sell: AT_TOP -> ask, AWAY_FROM_TOP -> ask + n*tick
func (a Alternator) Next(side domain.Side, quote domain.Quote, tick decimal.Decimal, prev domain.Phase) (decimal.Decimal, domain.Phase) {
	phase := prev.Next()
	n := a.AwayTicks
	if n < 1 {
		n = 1
	}
	offset := tick.Mul(decimal.NewFromInt(int64(n)))

	if side == domain.SideSell {
		if phase == domain.PhaseAtTop {
			return quote.Ask, phase
		}
		return quote.Ask.Add(offset), phase
	}

	if phase == domain.PhaseAtTop {
		return quote.Bid, phase
	}
	// No room below the bid: the order rests at the top instead.
	if away := quote.Bid.Sub(offset); away.IsPositive() {
		return away, phase
	}
	return quote.Bid, domain.PhaseAtTop
}
