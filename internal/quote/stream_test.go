package quote

import (
	"context"
	"errors"
	"testing"
	"time"

	"limit_chaser/internal/domain"

	"github.com/shopspring/decimal"
)

func TestStream_LatestReportsMissingAsStale(t *testing.T) {
	s := NewStream(NewBook(), time.Second)
	if _, err := s.Latest(context.Background(), "AAPL"); !errors.Is(err, domain.ErrStaleQuote) {
		t.Errorf("Expected ErrStaleQuote, got %v", err)
	}
}

func TestStream_SubscribeDeliversPushes(t *testing.T) {
	book := NewBook()
	s := NewStream(book, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.Subscribe(ctx, "AAPL")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	book.SetTop(domain.Quote{
		Symbol: "AAPL", Bid: decimal.RequireFromString("150.00"), Ask: decimal.RequireFromString("150.02"),
		BidSize: 1, AskSize: 1, Time: time.Now(),
	})

	select {
	case u := <-ch:
		if u.Err != nil {
			t.Fatalf("unexpected error %v", u.Err)
		}
		if !u.Quote.Ask.Equal(decimal.RequireFromString("150.02")) {
			t.Errorf("unexpected ask %s", u.Quote.Ask)
		}
	case <-time.After(time.Second):
		t.Fatal("no push delivered")
	}

	q, err := s.Latest(ctx, "AAPL")
	if err != nil || !q.Bid.Equal(decimal.RequireFromString("150.00")) {
		t.Errorf("Latest = %v, %v", q.Bid, err)
	}
}

func TestStream_SubscribeReportsStaleWhenQuiet(t *testing.T) {
	s := NewStream(NewBook(), 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, _ := s.Subscribe(ctx, "AAPL")
	select {
	case u := <-ch:
		if !errors.Is(u.Err, domain.ErrStaleQuote) {
			t.Errorf("Expected stale update, got %+v", u)
		}
	case <-time.After(time.Second):
		t.Fatal("no stale update emitted")
	}
}

func TestStream_SubscriptionsAreRestartable(t *testing.T) {
	book := NewBook()
	s := NewStream(book, 0)

	ctx1, cancel1 := context.WithCancel(context.Background())
	ch1, _ := s.Subscribe(ctx1, "AAPL")
	cancel1()
	for range ch1 {
	}

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	ch2, _ := s.Subscribe(ctx2, "AAPL")
	book.SetTop(domain.Quote{Symbol: "AAPL", Bid: decimal.NewFromInt(1), Ask: decimal.NewFromInt(2), BidSize: 1, AskSize: 1, Time: time.Now()})

	select {
	case <-ch2:
	case <-time.After(time.Second):
		t.Fatal("restarted subscription received nothing")
	}
}
