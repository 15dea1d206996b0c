package execution

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"limit_chaser/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaperConfig controls how resting paper orders get filled.
type PaperConfig struct {
	// FillProbability is the chance per quote that an order resting at the touch trades.
	// Marketable orders always trade.
	FillProbability float64
	// PartialFills lets a single trade take only part of the remaining quantity.
	PartialFills bool
	Seed         int64
}

type paperOrder struct {
	id       string
	symbol   string
	side     domain.Side
	quantity int64
	filled   int64
	price    decimal.Decimal
	open     bool
}

func (o *paperOrder) remaining() int64 { return o.quantity - o.filled }

type fillSub struct {
	ctx context.Context
	ch  chan domain.VenueFill
}

// PaperVenue simulates a venue in memory. Orders trade against the quotes passed to OnQuote.
// It implements domain.Venue and domain.FillFeed.
type PaperVenue struct {
	cfg    PaperConfig
	logger *slog.Logger

	mu     sync.Mutex
	orders map[string]*paperOrder
	rand   *rand.Rand

	subsMu sync.Mutex
	subs   []fillSub
}

// NewPaperVenue creates an empty paper venue.
func NewPaperVenue(cfg PaperConfig, logger *slog.Logger) *PaperVenue {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FillProbability < 0 {
		cfg.FillProbability = 0
	}
	if cfg.FillProbability > 1 {
		cfg.FillProbability = 1
	}
	return &PaperVenue{
		cfg:    cfg,
		logger: logger.With("module", "paper_venue"),
		orders: make(map[string]*paperOrder),
		rand:   rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Submit rests a new limit order.
func (v *PaperVenue) Submit(_ context.Context, req domain.OrderRequest) (string, error) {
	if req.Quantity <= 0 {
		return "", &domain.RejectionError{Op: "submit", Reason: fmt.Sprintf("invalid quantity %d", req.Quantity)}
	}
	if !req.Price.IsPositive() {
		return "", &domain.RejectionError{Op: "submit", Reason: "price must be positive"}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.place(req.Instrument.Symbol, req.Side, req.Quantity, req.Price)
	v.logger.Info("Paper order placed", "order_id", id, "symbol", req.Instrument.Symbol,
		"side", req.Side, "qty", req.Quantity, "price", req.Price.String())
	return id, nil
}

// Replace cancels venueOrderID and places quantity at price under a new id.
func (v *PaperVenue) Replace(_ context.Context, venueOrderID string, quantity int64, price decimal.Decimal) (string, error) {
	if quantity <= 0 || !price.IsPositive() {
		return "", &domain.RejectionError{Op: "replace", Reason: fmt.Sprintf("invalid quantity %d or price %s", quantity, price)}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	o, err := v.openOrder("replace", venueOrderID)
	if err != nil {
		return "", err
	}
	o.open = false
	return v.place(o.symbol, o.side, quantity, price), nil
}

// Cancel closes an open order.
func (v *PaperVenue) Cancel(_ context.Context, venueOrderID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, err := v.openOrder("cancel", venueOrderID)
	if err != nil {
		return err
	}
	o.open = false
	return nil
}

// Status reports the cumulative fill of venueOrderID.
func (v *PaperVenue) Status(_ context.Context, venueOrderID string) (domain.VenueOrderStatus, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.orders[venueOrderID]
	if !ok {
		return domain.VenueOrderStatus{}, fmt.Errorf("status %s: %w", venueOrderID, domain.ErrOrderNotFound)
	}
	return domain.VenueOrderStatus{
		VenueOrderID:   o.id,
		FilledQuantity: o.filled,
		AvgPrice:       o.price,
		Open:           o.open,
	}, nil
}

// SubscribeFills returns fills in the order they happen. The channel closes when ctx ends.
func (v *PaperVenue) SubscribeFills(ctx context.Context) (<-chan domain.VenueFill, error) {
	ch := make(chan domain.VenueFill, 256)
	v.subsMu.Lock()
	v.subs = append(v.subs, fillSub{ctx: ctx, ch: ch})
	v.subsMu.Unlock()

	go func() {
		<-ctx.Done()
		v.subsMu.Lock()
		defer v.subsMu.Unlock()
		for i, s := range v.subs {
			if s.ch == ch {
				v.subs = append(v.subs[:i], v.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}()
	return ch, nil
}

// OnQuote matches resting orders for q.Symbol against the new top of book.
func (v *PaperVenue) OnQuote(q domain.Quote) {
	v.mu.Lock()
	var fills []domain.VenueFill
	for _, o := range v.orders {
		if !o.open || o.symbol != q.Symbol {
			continue
		}
		qty := v.tradable(o, q)
		if qty == 0 {
			continue
		}
		o.filled += qty
		if o.remaining() == 0 {
			o.open = false
		}
		fills = append(fills, domain.VenueFill{
			VenueOrderID: o.id,
			Fill:         domain.FillEvent{Quantity: qty, Price: o.price, Time: q.Time},
		})
	}
	v.mu.Unlock()

	for _, f := range fills {
		v.logger.Info("Paper fill", "order_id", f.VenueOrderID, "qty", f.Fill.Quantity, "price", f.Fill.Price.String())
		v.publish(f)
	}
}

// Trade fills up to qty of venueOrderID at its resting price, regardless of the market.
func (v *PaperVenue) Trade(venueOrderID string, qty int64) error {
	v.mu.Lock()
	o, err := v.openOrder("trade", venueOrderID)
	if err != nil {
		v.mu.Unlock()
		return err
	}
	qty = min(qty, o.remaining())
	o.filled += qty
	if o.remaining() == 0 {
		o.open = false
	}
	f := domain.VenueFill{VenueOrderID: o.id, Fill: domain.FillEvent{Quantity: qty, Price: o.price}}
	v.mu.Unlock()

	v.publish(f)
	return nil
}

// tradable decides how much of o trades against q. Called with mu held.
func (v *PaperVenue) tradable(o *paperOrder, q domain.Quote) int64 {
	var crossed, touching bool
	if o.side == domain.SideBuy {
		crossed = q.Ask.IsPositive() && q.Ask.LessThanOrEqual(o.price)
		touching = o.price.Equal(q.Bid)
	} else {
		crossed = q.Bid.IsPositive() && q.Bid.GreaterThanOrEqual(o.price)
		touching = o.price.Equal(q.Ask)
	}

	switch {
	case crossed:
	case touching && v.rand.Float64() < v.cfg.FillProbability:
	default:
		return 0
	}

	qty := o.remaining()
	if v.cfg.PartialFills && qty > 1 {
		qty = 1 + v.rand.Int63n(qty)
	}
	return qty
}

func (v *PaperVenue) place(symbol string, side domain.Side, qty int64, price decimal.Decimal) string {
	id := uuid.NewString()
	v.orders[id] = &paperOrder{id: id, symbol: symbol, side: side, quantity: qty, price: price, open: true}
	return id
}

func (v *PaperVenue) openOrder(op, id string) (*paperOrder, error) {
	o, ok := v.orders[id]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", op, id, domain.ErrOrderNotFound)
	}
	if !o.open {
		return nil, fmt.Errorf("%s %s: %w", op, id, domain.ErrAlreadyTerminal)
	}
	return o, nil
}

// publish delivers f to every subscriber, waiting on slow readers rather than dropping.
func (v *PaperVenue) publish(f domain.VenueFill) {
	v.subsMu.Lock()
	defer v.subsMu.Unlock()
	for _, s := range v.subs {
		select {
		case s.ch <- f:
		case <-s.ctx.Done():
		}
	}
}
