package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"limit_chaser/internal/domain"
	"limit_chaser/internal/engine"
	"limit_chaser/internal/event"
	"limit_chaser/internal/exposure"
	"limit_chaser/internal/infra"
	"limit_chaser/internal/strategy"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxOrphanFills bounds fills buffered for venue ids no manager has claimed yet.
const maxOrphanFills = 1024

// Journal persists order history. *storage.Journal implements it.
type Journal interface {
	Begin(o domain.WorkingOrder) error
	Follow(ctx context.Context, s *event.Stream, logger *slog.Logger)
}

// Watcher is told about every symbol an order is started for, so stream-mode feeds subscribe to it.
type Watcher interface {
	Watch(symbol string) error
}

// Deps are the collaborators shared by every order.
type Deps struct {
	Venue   domain.Venue
	Quotes  domain.QuoteSource
	Fills   domain.FillFeed // optional
	Watcher Watcher         // optional
	Tracker *exposure.Tracker
	Journal Journal // optional
	Metrics *infra.Metrics
	Logger  *slog.Logger
}

// Config tunes the service and the managers it creates.
type Config struct {
	Engine       engine.Config
	AwayTicks    int
	QuoteTimeout time.Duration // bound on the reference quote fetch in Start
}

type pendingFill struct {
	venueOrderID string
	fill         domain.FillEvent
}

// OrderService owns every order manager in the process. It creates managers, routes venue fill
// pushes to them by venue order id and answers control and exposure queries.
type OrderService struct {
	deps   Deps
	cfg    Config
	pricer strategy.Pricer
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	managers map[string]*engine.Manager
	order    []string
	byVenue  map[string]*engine.Manager
	orphans  []pendingFill

	// deliverMu serializes fill delivery so buffered fills never overtake live ones.
	deliverMu sync.Mutex
}

// NewOrderService creates a service. Venue and Quotes are required; a nil Tracker gets a fresh one.
func NewOrderService(deps Deps, cfg Config) (*OrderService, error) {
	if deps.Venue == nil || deps.Quotes == nil {
		return nil, errors.New("venue and quote source are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Tracker == nil {
		deps.Tracker = exposure.NewTracker(nil)
	}
	if cfg.AwayTicks <= 0 {
		cfg.AwayTicks = 1
	}
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = engine.DefaultVenueTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &OrderService{
		deps:     deps,
		cfg:      cfg,
		pricer:   strategy.NewAlternator(cfg.AwayTicks),
		logger:   deps.Logger.With("module", "order_service"),
		ctx:      ctx,
		cancel:   cancel,
		managers: make(map[string]*engine.Manager),
		byVenue:  make(map[string]*engine.Manager),
	}, nil
}

// Run routes fill pushes from the venue until ctx ends or the feed closes.
func (s *OrderService) Run(ctx context.Context) error {
	if s.deps.Fills == nil {
		<-ctx.Done()
		return nil
	}
	fills, err := s.deps.Fills.SubscribeFills(ctx)
	if err != nil {
		return fmt.Errorf("subscribe fills: %w", err)
	}
	s.logger.Info("Fill router started")
	for f := range fills {
		s.route(f)
	}
	s.logger.Info("Fill router stopped")
	return nil
}

// Start validates the request, creates a manager for it and starts the loop. ctx bounds only
// the reference quote lookup; the order lives until it is terminal or the service shuts down.
func (s *OrderService) Start(ctx context.Context, symbol string, side domain.Side, quantity int64) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	switch {
	case symbol == "":
		return "", fmt.Errorf("%w: symbol is required", domain.ErrInvalidOrder)
	case side != domain.SideBuy && side != domain.SideSell:
		return "", fmt.Errorf("%w: invalid side %q", domain.ErrInvalidOrder, side)
	case quantity <= 0:
		return "", fmt.Errorf("%w: quantity must be positive, got %d", domain.ErrInvalidOrder, quantity)
	}
	if s.ctx.Err() != nil {
		return "", errors.New("order service is shut down")
	}

	if s.deps.Watcher != nil {
		if err := s.deps.Watcher.Watch(symbol); err != nil {
			return "", fmt.Errorf("watch %s: %w", symbol, err)
		}
	}

	inst := domain.NewInstrument(symbol, s.referencePrice(ctx, symbol))
	handle := uuid.NewString()

	var m *engine.Manager
	m, err := engine.NewManager(handle, inst, side, quantity, engine.Deps{
		Venue:   s.deps.Venue,
		Quotes:  s.deps.Quotes,
		Pricer:  s.pricer,
		Logger:  s.deps.Logger,
		Metrics: s.deps.Metrics,
		Bind:    func(id string) { s.bind(m, id) },
	}, s.cfg.Engine)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidOrder, err)
	}

	m.Events().Observe(s.deps.Tracker.Observe)
	if err := s.launch(m); err != nil {
		return "", err
	}
	s.logger.Info("Order started",
		slog.String("handle", handle),
		slog.String("symbol", symbol),
		slog.String("side", string(side)),
		slog.Int64("quantity", quantity),
		slog.String("reference_price", inst.ReferencePrice.String()))
	return handle, nil
}

// launch registers m and starts its loop. The journal follows the order only once it runs;
// a manager that fails to start is unregistered again.
func (s *OrderService) launch(m *engine.Manager) error {
	handle := m.Handle()
	s.mu.Lock()
	s.managers[handle] = m
	s.order = append(s.order, handle)
	s.mu.Unlock()

	if err := m.Start(s.ctx); err != nil {
		s.mu.Lock()
		delete(s.managers, handle)
		s.order = slices.DeleteFunc(s.order, func(h string) bool { return h == handle })
		s.mu.Unlock()
		return err
	}

	if s.deps.Journal != nil {
		if err := s.deps.Journal.Begin(m.Snapshot()); err != nil {
			s.logger.Error("Journal begin failed", slog.String("handle", handle), slog.Any("error", err))
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.deps.Journal.Follow(s.ctx, m.Events(), s.logger)
		}()
	}
	return nil
}

// Pause suspends replacement for handle.
func (s *OrderService) Pause(handle string) error {
	m, err := s.get(handle)
	if err != nil {
		return err
	}
	return m.Pause()
}

// Resume lets a paused order alternate again.
func (s *OrderService) Resume(handle string) error {
	m, err := s.get(handle)
	if err != nil {
		return err
	}
	return m.Resume()
}

// Stop cancels the order behind handle.
func (s *OrderService) Stop(handle string) error {
	m, err := s.get(handle)
	if err != nil {
		return err
	}
	return m.Stop()
}

// Events returns the event stream for handle.
func (s *OrderService) Events(handle string) (*event.Stream, error) {
	m, err := s.get(handle)
	if err != nil {
		return nil, err
	}
	return m.Events(), nil
}

// Snapshot returns a copy of the order behind handle.
func (s *OrderService) Snapshot(handle string) (domain.WorkingOrder, error) {
	m, err := s.get(handle)
	if err != nil {
		return domain.WorkingOrder{}, err
	}
	return m.Snapshot(), nil
}

// List returns a snapshot of every order, oldest first.
func (s *OrderService) List() []domain.WorkingOrder {
	s.mu.RLock()
	ms := make([]*engine.Manager, 0, len(s.order))
	for _, h := range s.order {
		ms = append(ms, s.managers[h])
	}
	s.mu.RUnlock()

	out := make([]domain.WorkingOrder, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Snapshot())
	}
	return out
}

// Exposure returns the current position in symbol across all orders.
func (s *OrderService) Exposure(symbol string) domain.ExposurePosition {
	return s.deps.Tracker.Position(strings.ToUpper(strings.TrimSpace(symbol)))
}

// Shutdown stops every live order and waits for the managers to finish or ctx to end.
// Orders still resting when ctx ends are left at the venue.
func (s *OrderService) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	ms := make([]*engine.Manager, 0, len(s.managers))
	for _, m := range s.managers {
		ms = append(ms, m)
	}
	s.mu.RUnlock()

	for _, m := range ms {
		if err := m.Stop(); err != nil && !errors.Is(err, domain.ErrIllegalTransition) {
			s.logger.Warn("Stop on shutdown failed", slog.String("handle", m.Handle()), slog.Any("error", err))
		}
	}

	var err error
	for _, m := range ms {
		select {
		case <-m.Done():
		case <-ctx.Done():
			err = ctx.Err()
		}
		if err != nil {
			break
		}
	}

	s.cancel()
	s.wg.Wait()
	s.logger.Info("Order service shut down", slog.Int("orders", len(ms)))
	return err
}

func (s *OrderService) get(handle string) (*engine.Manager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.managers[handle]
	if !ok {
		return nil, fmt.Errorf("%s: %w", handle, domain.ErrUnknownHandle)
	}
	return m, nil
}

// referencePrice is the mid of the first fresh quote, or zero if none is available yet.
func (s *OrderService) referencePrice(ctx context.Context, symbol string) decimal.Decimal {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QuoteTimeout)
	defer cancel()
	q, err := s.deps.Quotes.Latest(ctx, symbol)
	if err != nil {
		s.logger.Debug("No reference quote", slog.String("symbol", symbol), slog.Any("error", err))
		return decimal.Zero
	}
	return q.Mid()
}

// bind claims venueOrderID for m and hands over any fills that arrived before the claim.
func (s *OrderService) bind(m *engine.Manager, venueOrderID string) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	s.byVenue[venueOrderID] = m
	var pending []pendingFill
	kept := s.orphans[:0]
	for _, p := range s.orphans {
		if p.venueOrderID == venueOrderID {
			pending = append(pending, p)
		} else {
			kept = append(kept, p)
		}
	}
	s.orphans = kept
	s.mu.Unlock()

	for _, p := range pending {
		m.OnFill(p.venueOrderID, p.fill)
	}
}

// route delivers one fill push to the manager owning its venue order id. Fills for ids not
// yet claimed are buffered; a submit ack can arrive after its first fill.
func (s *OrderService) route(f domain.VenueFill) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	m, ok := s.byVenue[f.VenueOrderID]
	if !ok {
		if len(s.orphans) >= maxOrphanFills {
			dropped := s.orphans[0]
			s.orphans = s.orphans[1:]
			s.logger.Warn("Orphan fill dropped", slog.String("venue_order_id", dropped.venueOrderID))
		}
		s.orphans = append(s.orphans, pendingFill{venueOrderID: f.VenueOrderID, fill: f.Fill})
	}
	s.mu.Unlock()

	if ok {
		m.OnFill(f.VenueOrderID, f.Fill)
	}
}
