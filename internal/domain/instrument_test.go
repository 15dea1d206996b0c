package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestClassifySymbol(t *testing.T) {
	tests := []struct {
		symbol string
		want   Kind
	}{
		{"AAPL", KindEquity},
		{"BRK.B", KindEquity},
		{"AAPL  240119C00150000", KindOption},
		{"SPY   250321P00500000", KindOption},
		{"spy250321p00500000", KindOption},
		{"AAPL240119", KindEquity},
	}
	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			if got := ClassifySymbol(tt.symbol); got != tt.want {
				t.Errorf("ClassifySymbol(%q) = %s, want %s", tt.symbol, got, tt.want)
			}
		})
	}
}

func TestParseSide(t *testing.T) {
	if s, err := ParseSide(" buy "); err != nil || s != SideBuy {
		t.Errorf("ParseSide(buy) = %v, %v", s, err)
	}
	if s, err := ParseSide("SELL"); err != nil || s != SideSell {
		t.Errorf("ParseSide(SELL) = %v, %v", s, err)
	}
	if _, err := ParseSide("short"); err == nil {
		t.Error("Expected error for unknown side")
	}
	if SideSell.Sign() != -1 || SideBuy.Sign() != 1 {
		t.Error("unexpected side sign")
	}
}

func TestQuote_Validate(t *testing.T) {
	now := time.Now()
	t.Run("well formed", func(t *testing.T) {
		q := Quote{Symbol: "AAPL", Bid: decimal.RequireFromString("150.00"), Ask: decimal.RequireFromString("150.02"), Time: now}
		if err := q.Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if !q.Mid().Equal(decimal.RequireFromString("150.01")) {
			t.Errorf("Expected mid 150.01, got %s", q.Mid())
		}
	})

	t.Run("crossed", func(t *testing.T) {
		q := Quote{Symbol: "AAPL", Bid: decimal.NewFromInt(151), Ask: decimal.NewFromInt(150)}
		if err := q.Validate(); !errors.Is(err, ErrInvalidQuote) {
			t.Errorf("Expected ErrInvalidQuote, got %v", err)
		}
	})

	t.Run("zero bid", func(t *testing.T) {
		q := Quote{Symbol: "AAPL", Ask: decimal.NewFromInt(150)}
		if err := q.Validate(); !errors.Is(err, ErrInvalidQuote) {
			t.Errorf("Expected ErrInvalidQuote, got %v", err)
		}
	})

	t.Run("zero timestamp is infinitely old", func(t *testing.T) {
		if (Quote{}).Age(now) < time.Hour {
			t.Error("Expected zero timestamp to be treated as stale")
		}
	})
}
