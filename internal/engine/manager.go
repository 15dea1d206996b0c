package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"limit_chaser/internal/domain"
	"limit_chaser/internal/event"
	"limit_chaser/internal/infra"
	"limit_chaser/internal/strategy"

	"github.com/shopspring/decimal"
)

const (
	DefaultVenueTimeout   = 5 * time.Second
	DefaultPollInterval   = 500 * time.Millisecond
	DefaultStaleWarnAfter = 10
)

// Config tunes one Manager. Zero values take the defaults above.
type Config struct {
	VenueTimeout   time.Duration // bound on every venue round trip
	PollInterval   time.Duration // backoff before re-subscribing to quotes
	StaleWarnAfter int           // consecutive skipped cycles before a WARNING event
	DumpDir        string
}

func (c Config) withDefaults() Config {
	if c.VenueTimeout <= 0 {
		c.VenueTimeout = DefaultVenueTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.StaleWarnAfter <= 0 {
		c.StaleWarnAfter = DefaultStaleWarnAfter
	}
	return c
}

// Deps are the collaborators a Manager talks to.
type Deps struct {
	Venue   domain.Venue
	Quotes  domain.QuoteSource
	Pricer  strategy.Pricer
	Logger  *slog.Logger
	Metrics *infra.Metrics

	// Bind is called, outside the manager lock, with every venue order id the order acquires.
	Bind func(venueOrderID string)
}

// Manager drives one WorkingOrder from submission to a terminal state.
//
// A single loop goroutine owns all venue I/O, so at most one request is ever outstanding.
// Control calls and fill pushes arrive on other goroutines and mutate the order under mu;
// the loop re-reads the order under mu before committing the outcome of any round trip.
type Manager struct {
	cfg     Config
	venue   domain.Venue
	quotes  domain.QuoteSource
	pricer  strategy.Pricer
	bind    func(string)
	metrics *infra.Metrics
	logger  *slog.Logger
	events  *event.Stream
	symbol  string

	mu            sync.Mutex
	order         *domain.WorkingOrder
	started       bool
	stopRequested bool
	staleCycles   int

	wake     chan struct{}
	done     chan struct{}
	doneOnce sync.Once
}

// intent is a price the loop has decided to send.
type intent struct {
	price decimal.Decimal
	phase domain.Phase
	qty   int64
}

// NewManager creates an IDLE manager for quantity units of inst.
func NewManager(handle string, inst domain.Instrument, side domain.Side, quantity int64, deps Deps, cfg Config) (*Manager, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", quantity)
	}
	if deps.Venue == nil || deps.Quotes == nil {
		return nil, errors.New("venue and quote source are required")
	}
	if deps.Pricer == nil {
		deps.Pricer = strategy.NewAlternator(1)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		cfg:     cfg.withDefaults(),
		venue:   deps.Venue,
		quotes:  deps.Quotes,
		pricer:  deps.Pricer,
		bind:    deps.Bind,
		metrics: deps.Metrics,
		logger: logger.With(
			slog.String("module", "order_manager"),
			slog.String("handle", handle),
			slog.String("symbol", inst.Symbol),
		),
		events: event.NewStream(),
		symbol: inst.Symbol,
		order:  domain.NewWorkingOrder(handle, inst, side, quantity),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}, nil
}

// Handle returns the order handle.
func (m *Manager) Handle() string { return m.order.Handle }

// Events returns the order's event stream.
func (m *Manager) Events() *event.Stream { return m.events }

// Done is closed once the loop has exited.
func (m *Manager) Done() <-chan struct{} { return m.done }

// Snapshot returns a copy of the working order.
func (m *Manager) Snapshot() domain.WorkingOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Snapshot()
}

// Start launches the loop. The loop runs until the order is terminal or ctx ends;
// ending ctx leaves any resting order untouched.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started || m.stopRequested || m.order.State != domain.StateIdle {
		state := m.order.State
		m.mu.Unlock()
		return fmt.Errorf("start in state %s: %w", state, domain.ErrIllegalTransition)
	}
	m.started = true
	m.mu.Unlock()

	m.logger.Info("Order manager started",
		slog.String("side", string(m.order.Side)),
		slog.Int64("quantity", m.order.OriginalQuantity))
	m.metrics.ManagerStarted()
	go m.run(ctx)
	return nil
}

// Pause suspends replace decisions. The resting order stays where it is.
// Pausing an already paused order is a no-op.
func (m *Manager) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o := m.order
	if !o.State.CanPause() {
		return fmt.Errorf("pause in state %s: %w", o.State, domain.ErrIllegalTransition)
	}
	if o.Paused {
		return nil
	}
	o.Paused = true
	m.emit(event.Event{Type: event.TypePaused})
	m.logger.Info("Order paused")
	return nil
}

// Resume clears the pause flag; alternation continues from the current phase.
func (m *Manager) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o := m.order
	if o.State.IsTerminal() {
		return fmt.Errorf("resume in state %s: %w", o.State, domain.ErrIllegalTransition)
	}
	if !o.Paused {
		return nil
	}
	o.Paused = false
	m.emit(event.Event{Type: event.TypeResumed})
	m.logger.Info("Order resumed")
	return nil
}

// Stop requests cancellation. The cancel is issued by the loop once any outstanding
// round trip has resolved. Repeated calls are no-ops.
func (m *Manager) Stop() error {
	m.mu.Lock()
	o := m.order
	if o.State.IsTerminal() {
		m.mu.Unlock()
		return fmt.Errorf("stop in state %s: %w", o.State, domain.ErrIllegalTransition)
	}
	if m.stopRequested {
		m.mu.Unlock()
		m.wakeLoop()
		return nil
	}
	m.stopRequested = true
	m.logger.Info("Stop requested", slog.String("state", string(o.State)))

	if !m.started {
		m.transition(domain.StateCancelled, "stopped before start")
		m.mu.Unlock()
		m.finish()
		return nil
	}
	m.mu.Unlock()
	m.wakeLoop()
	return nil
}

// OnFill applies a fill pushed by the venue for venueOrderID. Fills for ids this order
// never owned, and fills arriving before submission or after a terminal state, are dropped.
func (m *Manager) OnFill(venueOrderID string, f domain.FillEvent) {
	defer m.wakeLoop()
	m.mu.Lock()
	defer m.mu.Unlock()

	o := m.order
	if o.State == domain.StateIdle || o.State.IsTerminal() {
		m.logger.Warn("Fill dropped",
			slog.String("venue_order_id", venueOrderID),
			slog.String("state", string(o.State)),
			slog.Int64("quantity", f.Quantity))
		return
	}
	if !o.Owns(venueOrderID) {
		m.logger.Warn("Fill for foreign venue order", slog.String("venue_order_id", venueOrderID))
		return
	}

	applied, ok, err := o.ApplyFill(venueOrderID, f)
	if err != nil {
		var iv *domain.InvariantViolation
		if errors.As(err, &iv) {
			m.fail(event.KindInvariant, err)
			return
		}
		m.logger.Warn("Malformed fill ignored", slog.Any("error", err))
		return
	}
	if !ok {
		m.logger.Debug("Fill already reconciled", slog.String("venue_order_id", venueOrderID))
		return
	}
	m.applied(applied, "")
}

func (m *Manager) run(ctx context.Context) {
	defer m.finish()
	defer m.metrics.ManagerFinished()
	defer m.recoverPanic()

	updates := m.subscribe(ctx)
	if !m.submit(ctx, &updates) {
		m.stop(ctx)
		return
	}

	for {
		if m.stop(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			m.logger.Info("Order manager loop stopping", slog.Any("reason", ctx.Err()))
			return
		case <-m.wake:
		case u, ok := <-updates:
			if !ok {
				updates = m.subscribe(ctx)
				continue
			}
			if in, ok := m.decide(u); ok {
				m.replace(ctx, in)
			}
		}
	}
}

// subscribe (re)opens the quote subscription, backing off between failures.
// It returns nil if ctx ends or a stop is requested first.
func (m *Manager) subscribe(ctx context.Context) <-chan domain.QuoteUpdate {
	for {
		ch, err := m.quotes.Subscribe(ctx, m.symbol)
		if err == nil {
			return ch
		}
		m.logger.Warn("Quote subscription failed", slog.Any("error", err))
		select {
		case <-ctx.Done():
			return nil
		case <-m.wake:
			if m.stopping() {
				return nil
			}
		case <-time.After(m.cfg.PollInterval):
		}
	}
}

// submit waits for a usable quote and places the initial order away from the top.
// It returns false if the order did not reach WORKING.
func (m *Manager) submit(ctx context.Context, updates *<-chan domain.QuoteUpdate) bool {
	q, ok := m.awaitQuote(ctx, updates)
	if !ok {
		return false
	}
	in, ok := m.beginSubmit(q)
	if !ok {
		return false
	}

	var id string
	err := m.call(ctx, "submit", func(ctx context.Context) (err error) {
		id, err = m.venue.Submit(ctx, domain.OrderRequest{
			Instrument: m.order.Instrument,
			Side:       m.order.Side,
			Quantity:   in.qty,
			Price:      in.price,
		})
		return err
	})
	if !m.commitSubmit(in, id, err) {
		return false
	}
	m.bindID(id)
	return true
}

func (m *Manager) awaitQuote(ctx context.Context, updates *<-chan domain.QuoteUpdate) (domain.Quote, bool) {
	if q, err := m.quotes.Latest(ctx, m.symbol); m.usable(q, err) {
		return q, true
	}
	for {
		// subscribe may have consumed the wake token of a stop.
		if m.stopping() {
			return domain.Quote{}, false
		}
		select {
		case <-ctx.Done():
			return domain.Quote{}, false
		case <-m.wake:
		case u, ok := <-*updates:
			if !ok {
				if *updates = m.subscribe(ctx); *updates == nil {
					return domain.Quote{}, false
				}
				continue
			}
			if m.usable(u.Quote, u.Err) {
				return u.Quote, true
			}
		}
	}
}

func (m *Manager) beginSubmit(q domain.Quote) (intent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o := m.order
	if m.stopRequested || o.State != domain.StateIdle {
		return intent{}, false
	}
	price, phase := m.pricer.Next(o.Side, q, strategy.TickFor(o.Instrument, q), domain.PhaseUnset)
	m.transition(domain.StateSubmitting, "")
	return intent{price: price, phase: phase, qty: o.RemainingQuantity()}, true
}

func (m *Manager) commitSubmit(in intent, id string, err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.metrics.RecordSubmit(errorKind(err))
		m.fail(errorKind(err), fmt.Errorf("submit: %w", err))
		return false
	}

	o := m.order
	o.Adopt(id)
	o.VenueOrderID = id
	o.CurrentPrice = in.price
	o.Phase = in.phase
	m.metrics.RecordSubmit("ack")
	m.emit(event.Event{Type: event.TypeSubmitted, Quantity: in.qty})
	m.logger.Info("Order submitted",
		slog.String("venue_order_id", id),
		slog.String("price", in.price.String()),
		slog.String("phase", in.phase.String()))
	m.transition(domain.StateWorking, "")
	return true
}

// decide runs the top of a replacement cycle. It returns the replace to issue, if any,
// with the order already moved to REPLACING.
func (m *Manager) decide(u domain.QuoteUpdate) (intent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o := m.order
	if o.State != domain.StateWorking || m.stopRequested {
		return intent{}, false
	}
	if o.Paused {
		m.metrics.RecordSkip("paused")
		return intent{}, false
	}
	if !m.checkQuote(u.Quote, u.Err) {
		return intent{}, false
	}

	in := m.next(u.Quote)
	if in.price.Equal(o.CurrentPrice) {
		m.metrics.RecordReplace("skipped_same_price")
		return intent{}, false
	}
	m.transition(domain.StateReplacing, "")
	return in, true
}

// next prices the phase after the current one. Caller holds mu.
func (m *Manager) next(q domain.Quote) intent {
	o := m.order
	price, phase := m.pricer.Next(o.Side, q, strategy.TickFor(o.Instrument, q), o.Phase)
	return intent{price: price, phase: phase, qty: o.RemainingQuantity()}
}

// replace issues the replace and at most one retry.
func (m *Manager) replace(ctx context.Context, in intent) {
	rejections := 0
	for attempt := 0; ; attempt++ {
		id := m.currentVenueID()

		var newID string
		err := m.call(ctx, "replace", func(ctx context.Context) (err error) {
			newID, err = m.venue.Replace(ctx, id, in.qty, in.price)
			return err
		})
		if err == nil {
			if newID == "" {
				newID = id
			}
			if m.commitReplace(in, newID) && newID != id {
				m.bindID(newID)
			}
			return
		}

		var retry bool
		if errorKind(err) == event.KindRejection {
			rejections++
			retry = m.replaceRejected(ctx, id, err, attempt, rejections)
		} else {
			retry = m.replaceFailed(err, attempt)
		}
		if !retry {
			return
		}
		if in, retry = m.recompute(ctx); !retry {
			return
		}
	}
}

func (m *Manager) commitReplace(in intent, newID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	o := m.order
	o.Adopt(newID)
	if o.State.IsTerminal() {
		m.logger.Info("Replace acknowledged after terminal state", slog.String("state", string(o.State)))
		return true
	}

	prevID := o.VenueOrderID
	o.VenueOrderID = newID
	o.CurrentPrice = in.price
	o.Phase = in.phase
	m.metrics.RecordReplace("ack")
	m.emit(event.Event{Type: event.TypeReplaced, Quantity: in.qty})
	m.logger.Info("Order replaced",
		slog.String("venue_order_id", newID),
		slog.String("prev_venue_order_id", prevID),
		slog.String("price", in.price.String()),
		slog.String("phase", in.phase.String()),
		slog.Int64("quantity", in.qty))
	m.transition(domain.StateWorking, "")
	return true
}

// replaceRejected re-queries the venue before deciding anything. It reports whether
// another attempt should be made.
func (m *Manager) replaceRejected(ctx context.Context, id string, cause error, attempt, rejections int) bool {
	m.mu.Lock()
	m.metrics.RecordReplace("rejected")
	m.report(event.TypeError, event.KindRejection, cause, "")
	m.mu.Unlock()

	var st domain.VenueOrderStatus
	serr := m.call(ctx, "status", func(ctx context.Context) (err error) {
		st, err = m.venue.Status(ctx, id)
		return err
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	o := m.order
	if o.State.IsTerminal() {
		return false
	}
	if serr != nil {
		m.logger.Warn("Status query after rejection failed", slog.Any("error", serr))
	} else if !m.reconcile(id, st) {
		return false
	}

	switch {
	case rejections >= 2:
		m.fail(event.KindRejection, fmt.Errorf("replace rejected twice: %w", cause))
		return false
	case attempt >= 1 || m.stopRequested || o.Paused:
		m.transition(domain.StateWorking, "replace abandoned")
		return false
	}
	return true
}

// replaceFailed handles a transient replace failure. It reports whether to retry.
func (m *Manager) replaceFailed(cause error, attempt int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.metrics.RecordReplace("transient")
	o := m.order
	if o.State.IsTerminal() {
		return false
	}
	if attempt >= 1 || m.stopRequested || o.Paused {
		m.report(event.TypeError, event.KindTransient, cause, "replace failed; order left resting")
		m.transition(domain.StateWorking, "replace abandoned")
		return false
	}
	m.report(event.TypeWarning, event.KindTransient, cause, "retrying replace with a fresh quote")
	return true
}

// recompute prices the retry from a fresh quote. With no fresh quote, or a fresh price equal
// to the resting one, the retry is abandoned.
func (m *Manager) recompute(ctx context.Context) (intent, bool) {
	q, err := m.quotes.Latest(ctx, m.symbol)

	m.mu.Lock()
	defer m.mu.Unlock()

	o := m.order
	if o.State != domain.StateReplacing {
		return intent{}, false
	}
	if !m.checkQuote(q, err) {
		m.transition(domain.StateWorking, "no fresh quote for retry")
		return intent{}, false
	}
	in := m.next(q)
	if in.price.Equal(o.CurrentPrice) {
		m.metrics.RecordReplace("skipped_same_price")
		m.transition(domain.StateWorking, "")
		return intent{}, false
	}
	return in, true
}

// stop performs a pending stop request. It reports whether the order is terminal.
func (m *Manager) stop(ctx context.Context) bool {
	id, pending := m.stopTarget()
	if !pending {
		return m.isTerminal()
	}

	err := m.call(ctx, "cancel", func(ctx context.Context) error {
		return m.venue.Cancel(ctx, id)
	})
	if err != nil && !errors.Is(err, domain.ErrAlreadyTerminal) {
		m.mu.Lock()
		if !m.order.State.IsTerminal() {
			m.fail(errorKind(err), fmt.Errorf("cancel: %w", err))
		}
		m.mu.Unlock()
		return true
	}

	var st domain.VenueOrderStatus
	serr := m.call(ctx, "status", func(ctx context.Context) (err error) {
		st, err = m.venue.Status(ctx, id)
		return err
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	o := m.order
	if o.State.IsTerminal() {
		return true
	}
	if serr != nil {
		m.logger.Warn("Status query after cancel failed", slog.Any("error", serr))
	} else if !m.reconcile(id, st) {
		return true
	}
	if o.RemainingQuantity() == 0 {
		m.transition(domain.StateFilled, "")
	} else {
		m.transition(domain.StateCancelled, "")
	}
	return true
}

// stopTarget returns the venue order to cancel for a pending stop. An order that never
// reached the venue is cancelled on the spot.
func (m *Manager) stopTarget() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o := m.order
	if !m.stopRequested || o.State.IsTerminal() {
		return "", false
	}
	if o.VenueOrderID == "" {
		m.transition(domain.StateCancelled, "stopped before submission")
		return "", false
	}
	return o.VenueOrderID, true
}

// reconcile applies the venue's cumulative fill for id. It returns false if the order
// is terminal afterwards. Caller holds mu.
func (m *Manager) reconcile(id string, st domain.VenueOrderStatus) bool {
	applied, ok, err := m.order.Reconcile(id, st.FilledQuantity, st.AvgPrice, time.Now())
	if err != nil {
		m.fail(event.KindInvariant, err)
		return false
	}
	if ok {
		m.applied(applied, "reconciled from venue status")
	}
	return !m.order.State.IsTerminal()
}

// applied publishes a recorded fill and completes the order when nothing remains. Caller holds mu.
func (m *Manager) applied(f domain.FillEvent, msg string) {
	o := m.order
	fill := f
	m.metrics.RecordFill(f.Quantity)
	m.emit(event.Event{Type: event.TypeFill, Fill: &fill, Quantity: f.Quantity, Message: msg})
	m.logger.Info("Fill applied",
		slog.Int64("quantity", f.Quantity),
		slog.String("price", f.Price.String()),
		slog.Int64("remaining", o.RemainingQuantity()))
	if o.RemainingQuantity() == 0 {
		m.transition(domain.StateFilled, "")
	}
}

// checkQuote accounts for an unusable quote. Caller holds mu.
func (m *Manager) checkQuote(q domain.Quote, err error) bool {
	if err == nil {
		err = q.Validate()
	}
	if err == nil {
		m.staleCycles = 0
		return true
	}

	reason := "stale"
	switch {
	case errors.Is(err, domain.ErrInvalidQuote):
		reason = "invalid_quote"
	case !errors.Is(err, domain.ErrStaleQuote):
		reason = "quote_error"
	}
	m.metrics.RecordSkip(reason)
	m.staleCycles++
	m.logger.Debug("Cycle skipped", slog.String("reason", reason), slog.Any("error", err))

	if m.staleCycles == m.cfg.StaleWarnAfter {
		msg := fmt.Sprintf("no usable quote for %d consecutive cycles", m.staleCycles)
		m.report(event.TypeWarning, event.KindStale, err, msg)
	}
	return false
}

func (m *Manager) usable(q domain.Quote, err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkQuote(q, err)
}

// call bounds one venue round trip by the venue timeout. A deadline is reported as transient.
func (m *Manager) call(ctx context.Context, op string, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, m.cfg.VenueTimeout)
	defer cancel()

	start := time.Now()
	err := fn(cctx)
	m.metrics.ObserveVenue(op, time.Since(start))
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !domain.IsRetriable(err) {
		return domain.NewTransientError(op, err)
	}
	return err
}

// transition moves the order to next and publishes the change. Caller holds mu.
func (m *Manager) transition(next domain.LifecycleState, msg string) {
	o := m.order
	prev := o.State
	if prev == next || prev.IsTerminal() {
		return
	}
	o.State = next
	m.emit(event.Event{Type: event.TypeStateChanged, PrevState: prev, Message: msg})

	attrs := []any{slog.String("from", string(prev)), slog.String("to", string(next))}
	if msg != "" {
		attrs = append(attrs, slog.String("reason", msg))
	}
	if next.IsTerminal() {
		m.logger.Info("Order finished", append(attrs, slog.Int64("filled", o.FilledQuantity))...)
		m.wakeLoop()
		return
	}
	m.logger.Debug("State changed", attrs...)
}

// fail reports err and moves the order to FAILED. No cancel is sent. Caller holds mu.
func (m *Manager) fail(kind string, err error) {
	m.report(event.TypeError, kind, err, "")
	m.transition(domain.StateFailed, err.Error())
}

// report publishes an error or warning event. Caller holds mu.
func (m *Manager) report(typ event.Type, kind string, err error, msg string) {
	if typ == event.TypeError {
		m.metrics.RecordError(kind)
		m.logger.Error("Order error", slog.String("kind", kind), slog.Any("error", err))
	} else {
		m.logger.Warn("Order warning", slog.String("kind", kind), slog.Any("error", err), slog.String("message", msg))
	}
	m.emit(event.Event{Type: typ, ErrorKind: kind, Error: err.Error(), Message: msg})
}

// emit stamps ev with the order's current view and appends it. Caller holds mu.
func (m *Manager) emit(ev event.Event) {
	o := m.order
	ev.Handle = o.Handle
	ev.Symbol = o.Instrument.Symbol
	ev.Side = o.Side
	ev.State = o.State
	ev.Paused = o.Paused
	if ev.Price.IsZero() {
		ev.Price = o.CurrentPrice
	}
	ev.Filled = o.FilledQuantity
	ev.Remaining = o.RemainingQuantity()
	ev.VenueOrderID = o.VenueOrderID
	m.events.Append(ev)
}

func (m *Manager) currentVenueID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.VenueOrderID
}

func (m *Manager) isTerminal() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.State.IsTerminal()
}

func (m *Manager) stopping() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopRequested || m.order.State.IsTerminal()
}

func (m *Manager) bindID(id string) {
	if m.bind != nil && id != "" {
		m.bind(id)
	}
}

func (m *Manager) wakeLoop() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) finish() {
	m.doneOnce.Do(func() {
		m.events.Close()
		close(m.done)
	})
}

// errorKind classifies a venue error for reporting and retry decisions.
func errorKind(err error) string {
	var rej *domain.RejectionError
	var iv *domain.InvariantViolation
	switch {
	case errors.As(err, &iv):
		return event.KindInvariant
	case errors.As(err, &rej), errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrAlreadyTerminal):
		return event.KindRejection
	default:
		return event.KindTransient
	}
}
