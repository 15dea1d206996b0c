package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"limit_chaser/internal/domain"
	"limit_chaser/internal/engine"
	"limit_chaser/internal/event"
	"limit_chaser/internal/execution"
	"limit_chaser/internal/exposure"
	"limit_chaser/internal/quote"

	"github.com/shopspring/decimal"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// --- fakes ---

type staticQuotes struct{ q domain.Quote }

func (s staticQuotes) Latest(_ context.Context, symbol string) (domain.Quote, error) {
	q := s.q
	q.Symbol = symbol
	q.Time = time.Now()
	return q, nil
}

func (s staticQuotes) Subscribe(ctx context.Context, _ string) (<-chan domain.QuoteUpdate, error) {
	ch := make(chan domain.QuoteUpdate)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

type fixedVenue struct{}

func (fixedVenue) Submit(context.Context, domain.OrderRequest) (string, error) { return "V1", nil }
func (fixedVenue) Replace(_ context.Context, id string, _ int64, _ decimal.Decimal) (string, error) {
	return id, nil
}
func (fixedVenue) Cancel(context.Context, string) error { return nil }
func (fixedVenue) Status(_ context.Context, id string) (domain.VenueOrderStatus, error) {
	return domain.VenueOrderStatus{VenueOrderID: id, Open: true}, nil
}

type chanFeed chan domain.VenueFill

func (f chanFeed) SubscribeFills(context.Context) (<-chan domain.VenueFill, error) { return f, nil }

type fakeJournal struct {
	mu     sync.Mutex
	begun  []string
	events []event.Event
}

func (j *fakeJournal) Begin(o domain.WorkingOrder) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.begun = append(j.begun, o.Handle)
	return nil
}

func (j *fakeJournal) Follow(ctx context.Context, s *event.Stream, _ *slog.Logger) {
	for ev := range s.Cursor().All(ctx) {
		j.mu.Lock()
		j.events = append(j.events, ev)
		j.mu.Unlock()
	}
}

func (j *fakeJournal) count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.events)
}

// --- helpers ---

func waitState(t *testing.T, s *OrderService, handle string, want domain.LifecycleState) domain.WorkingOrder {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		o, err := s.Snapshot(handle)
		if err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
		if o.State == want {
			return o
		}
		if time.Now().After(deadline) {
			t.Fatalf("Expected state %s, got %s", want, o.State)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func paperService(t *testing.T) (*OrderService, *execution.PaperVenue, *fakeJournal) {
	t.Helper()
	venue := execution.NewPaperVenue(execution.PaperConfig{}, discard)
	market := execution.NewSimMarket(map[string]execution.SimSymbol{
		"AAPL": {Bid: d("150.00"), Ask: d("150.02"), Size: 100},
	}, time.Hour, 1, nil, venue, discard)
	poller := quote.NewPoller(market, 10*time.Millisecond, time.Minute)
	journal := &fakeJournal{}

	s, err := NewOrderService(Deps{
		Venue:   venue,
		Quotes:  poller,
		Fills:   venue,
		Tracker: exposure.NewTracker(poller),
		Journal: journal,
		Logger:  discard,
	}, Config{Engine: engine.Config{VenueTimeout: time.Second, PollInterval: 10 * time.Millisecond}})
	if err != nil {
		t.Fatalf("NewOrderService failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	t.Cleanup(func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 3*time.Second)
		defer done()
		s.Shutdown(shutdownCtx)
		cancel()
	})
	return s, venue, journal
}

// --- tests ---

func TestOrderService_StartFillAndExposure(t *testing.T) {
	s, venue, journal := paperService(t)

	handle, err := s.Start(context.Background(), "aapl", domain.SideBuy, 100)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	o := waitState(t, s, handle, domain.StateWorking)
	if o.Instrument.Symbol != "AAPL" || !o.Instrument.ReferencePrice.Equal(d("150.01")) {
		t.Errorf("unexpected instrument %+v", o.Instrument)
	}
	if err := s.Pause(handle); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}

	// A replace may still be landing; trade whichever id is resting.
	deadline := time.Now().Add(3 * time.Second)
	for {
		o, _ = s.Snapshot(handle)
		if venue.Trade(o.VenueOrderID, 100) == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("could not trade the resting order")
		}
		time.Sleep(5 * time.Millisecond)
	}

	o = waitState(t, s, handle, domain.StateFilled)
	if o.FilledQuantity != 100 {
		t.Errorf("Expected 100 filled, got %d", o.FilledQuantity)
	}

	pos := s.Exposure("AAPL")
	if pos.NetQuantity != 100 || pos.FillCount != 1 || !pos.HasMark {
		t.Errorf("unexpected exposure %+v", pos)
	}

	if len(journal.begun) != 1 || journal.begun[0] != handle {
		t.Errorf("journal not started for %s: %v", handle, journal.begun)
	}
	if journal.count() == 0 {
		t.Error("journal received no events")
	}
}

func TestOrderService_StopCancels(t *testing.T) {
	s, _, _ := paperService(t)

	handle, err := s.Start(context.Background(), "AAPL", domain.SideSell, 50)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitState(t, s, handle, domain.StateWorking)

	if err := s.Stop(handle); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	waitState(t, s, handle, domain.StateCancelled)

	if err := s.Stop(handle); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Errorf("Expected ErrIllegalTransition, got %v", err)
	}
	if err := s.Resume(handle); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Errorf("Expected ErrIllegalTransition, got %v", err)
	}
}

func TestOrderService_ValidationAndUnknownHandle(t *testing.T) {
	s, _, _ := paperService(t)

	tests := []struct {
		name   string
		symbol string
		side   domain.Side
		qty    int64
	}{
		{"empty symbol", " ", domain.SideBuy, 1},
		{"bad side", "AAPL", domain.Side("HOLD"), 1},
		{"zero quantity", "AAPL", domain.SideBuy, 0},
		{"negative quantity", "AAPL", domain.SideSell, -5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Start(context.Background(), tt.symbol, tt.side, tt.qty); !errors.Is(err, domain.ErrInvalidOrder) {
				t.Errorf("Expected ErrInvalidOrder, got %v", err)
			}
		})
	}

	for name, call := range map[string]func(string) error{
		"pause":  s.Pause,
		"resume": s.Resume,
		"stop":   s.Stop,
	} {
		if err := call("nope"); !errors.Is(err, domain.ErrUnknownHandle) {
			t.Errorf("%s: expected ErrUnknownHandle, got %v", name, err)
		}
	}
	if _, err := s.Events("nope"); !errors.Is(err, domain.ErrUnknownHandle) {
		t.Errorf("Expected ErrUnknownHandle, got %v", err)
	}
	if len(s.List()) != 0 {
		t.Error("Expected no orders")
	}
}

func TestOrderService_ListKeepsStartOrder(t *testing.T) {
	s, _, _ := paperService(t)

	first, _ := s.Start(context.Background(), "AAPL", domain.SideBuy, 10)
	second, _ := s.Start(context.Background(), "AAPL", domain.SideSell, 20)

	list := s.List()
	if len(list) != 2 || list[0].Handle != first || list[1].Handle != second {
		t.Errorf("unexpected list %+v", list)
	}
}

func TestOrderService_FillBeforeSubmitAck(t *testing.T) {
	feed := make(chanFeed, 1)
	s, err := NewOrderService(Deps{
		Venue:  fixedVenue{},
		Quotes: staticQuotes{q: domain.Quote{Bid: d("10.00"), Ask: d("10.02")}},
		Fills:  feed,
		Logger: discard,
	}, Config{})
	if err != nil {
		t.Fatalf("NewOrderService failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	feed <- domain.VenueFill{VenueOrderID: "V1", Fill: domain.FillEvent{Quantity: 100, Price: d("9.99")}}
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.mu.RLock()
		n := len(s.orphans)
		s.mu.RUnlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("fill was not buffered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	handle, err := s.Start(context.Background(), "XYZ", domain.SideBuy, 100)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	o := waitState(t, s, handle, domain.StateFilled)
	if o.FilledQuantity != 100 {
		t.Errorf("Expected 100 filled, got %d", o.FilledQuantity)
	}
	if pos := s.Exposure("xyz"); pos.NetQuantity != 100 {
		t.Errorf("Expected net 100, got %d", pos.NetQuantity)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.orphans) != 0 {
		t.Errorf("orphans not flushed: %d", len(s.orphans))
	}
}

func TestOrderService_ShutdownStopsOrders(t *testing.T) {
	s, err := NewOrderService(Deps{
		Venue:  fixedVenue{},
		Quotes: staticQuotes{q: domain.Quote{Bid: d("10.00"), Ask: d("10.02")}},
		Logger: discard,
	}, Config{})
	if err != nil {
		t.Fatalf("NewOrderService failed: %v", err)
	}

	handle, err := s.Start(context.Background(), "XYZ", domain.SideSell, 5)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitState(t, s, handle, domain.StateWorking)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	o, _ := s.Snapshot(handle)
	if o.State != domain.StateCancelled {
		t.Errorf("Expected CANCELLED, got %s", o.State)
	}
	if _, err := s.Start(context.Background(), "XYZ", domain.SideSell, 5); err == nil {
		t.Error("Start after shutdown should fail")
	}
}

func TestOrderService_LaunchFailureUnregisters(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(m *engine.Manager)
	}{
		{"stopped before launch", func(m *engine.Manager) { _ = m.Stop() }},
		{"already running", func(m *engine.Manager) {
			ctx, cancel := context.WithCancel(context.Background())
			t.Cleanup(cancel)
			_ = m.Start(ctx)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			journal := &fakeJournal{}
			quotes := staticQuotes{q: domain.Quote{Bid: d("10.00"), Ask: d("10.02")}}
			s, err := NewOrderService(Deps{Venue: fixedVenue{}, Quotes: quotes, Journal: journal, Logger: discard}, Config{})
			if err != nil {
				t.Fatalf("NewOrderService failed: %v", err)
			}
			m, err := engine.NewManager("h-1", domain.NewInstrument("XYZ", decimal.Zero), domain.SideBuy, 5,
				engine.Deps{Venue: fixedVenue{}, Quotes: quotes, Logger: discard}, engine.Config{})
			if err != nil {
				t.Fatalf("NewManager failed: %v", err)
			}
			tt.prepare(m)

			if err := s.launch(m); !errors.Is(err, domain.ErrIllegalTransition) {
				t.Fatalf("Expected ErrIllegalTransition, got %v", err)
			}
			if n := len(s.List()); n != 0 {
				t.Errorf("Expected no orders, got %d", n)
			}
			if _, err := s.Snapshot("h-1"); !errors.Is(err, domain.ErrUnknownHandle) {
				t.Errorf("Expected ErrUnknownHandle, got %v", err)
			}

			_ = m.Stop()
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := s.Shutdown(ctx); err != nil {
				t.Fatalf("Shutdown failed: %v", err)
			}
			journal.mu.Lock()
			begun := len(journal.begun)
			journal.mu.Unlock()
			if begun != 0 || journal.count() != 0 {
				t.Errorf("journal should not follow an order that never launched: begun=%d events=%d", begun, journal.count())
			}
		})
	}
}
