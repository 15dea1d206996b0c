package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LifecycleState is the state of a WorkingOrder.
type LifecycleState string

const (
	StateIdle       LifecycleState = "IDLE"
	StateSubmitting LifecycleState = "SUBMITTING"
	StateWorking    LifecycleState = "WORKING"
	StateReplacing  LifecycleState = "REPLACING"
	StateFilled     LifecycleState = "FILLED"
	StateCancelled  LifecycleState = "CANCELLED"
	StateFailed     LifecycleState = "FAILED"
)

// IsTerminal reports whether no further transitions are possible.
func (s LifecycleState) IsTerminal() bool {
	return s == StateFilled || s == StateCancelled || s == StateFailed
}

// CanPause reports whether the pause flag may be set in this state.
func (s LifecycleState) CanPause() bool {
	return s == StateWorking || s == StateReplacing
}

// Phase says which of the two target prices the order is resting at.
type Phase int

const (
	// PhaseUnset means no price has been submitted yet.
	PhaseUnset Phase = iota
	PhaseAwayFromTop
	PhaseAtTop
)

func (p Phase) String() string {
	switch p {
	case PhaseAwayFromTop:
		return "AWAY_FROM_TOP"
	case PhaseAtTop:
		return "AT_TOP"
	default:
		return "UNSET"
	}
}

// Next returns the phase that follows p. An unset phase starts away from the top.
func (p Phase) Next() Phase {
	if p == PhaseAwayFromTop {
		return PhaseAtTop
	}
	return PhaseAwayFromTop
}

// FillEvent is an execution against the working order. Immutable once recorded.
type FillEvent struct {
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Time     time.Time       `json:"time"`
}

// VenueFill is a fill push from the venue, keyed by the venue order it executed against.
type VenueFill struct {
	VenueOrderID string
	Fill         FillEvent
}

// OrderRequest is what the manager asks the venue to place.
type OrderRequest struct {
	Instrument Instrument
	Side       Side
	Quantity   int64
	Price      decimal.Decimal
}

// VenueOrderStatus is the venue's view of one venue order.
type VenueOrderStatus struct {
	VenueOrderID   string
	FilledQuantity int64 // cumulative for this venue order id
	AvgPrice       decimal.Decimal
	Open           bool
}

// fillAccount tracks, per venue order id, how much quantity was pushed and how much was accounted.
// Accounted can run ahead of pushed after a status reconciliation.
type fillAccount struct {
	pushed    int64
	accounted int64
}

// WorkingOrder is the single order under management. It is owned by exactly one manager.
type WorkingOrder struct {
	Handle           string          `json:"handle"`
	Instrument       Instrument      `json:"instrument"`
	Side             Side            `json:"side"`
	OriginalQuantity int64           `json:"original_quantity"`
	FilledQuantity   int64           `json:"filled_quantity"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	VenueOrderID     string          `json:"venue_order_id,omitempty"`
	Phase            Phase           `json:"-"`
	PhaseName        string          `json:"phase"`
	State            LifecycleState  `json:"state"`
	Paused           bool            `json:"paused"`
	Fills            []FillEvent     `json:"fills"`

	accounts map[string]*fillAccount
}

// NewWorkingOrder creates an IDLE order for quantity units.
func NewWorkingOrder(handle string, inst Instrument, side Side, quantity int64) *WorkingOrder {
	return &WorkingOrder{
		Handle:           handle,
		Instrument:       inst,
		Side:             side,
		OriginalQuantity: quantity,
		Phase:            PhaseUnset,
		State:            StateIdle,
		accounts:         make(map[string]*fillAccount),
	}
}

// RemainingQuantity is always OriginalQuantity minus the sum of recorded fills.
func (o *WorkingOrder) RemainingQuantity() int64 {
	return o.OriginalQuantity - o.FilledQuantity
}

// Owns reports whether venueOrderID was issued for this order.
func (o *WorkingOrder) Owns(venueOrderID string) bool {
	_, ok := o.accounts[venueOrderID]
	return ok
}

// Adopt registers a venue order id as belonging to this order.
func (o *WorkingOrder) Adopt(venueOrderID string) {
	if _, ok := o.accounts[venueOrderID]; !ok {
		o.accounts[venueOrderID] = &fillAccount{}
	}
}

// ApplyFill records a pushed fill for venueOrderID. Quantity already covered by an earlier
// reconciliation is absorbed; the returned event is what was actually appended.
// A fill that would exceed OriginalQuantity is rejected with an *InvariantViolation and nothing is recorded.
func (o *WorkingOrder) ApplyFill(venueOrderID string, f FillEvent) (FillEvent, bool, error) {
	if f.Quantity <= 0 {
		return FillEvent{}, false, fmt.Errorf("non-positive fill quantity %d", f.Quantity)
	}
	acct := o.account(venueOrderID)
	pushed := acct.pushed + f.Quantity
	if pushed <= acct.accounted {
		acct.pushed = pushed
		return FillEvent{}, false, nil
	}
	excess := pushed - acct.accounted
	applied := FillEvent{Quantity: excess, Price: f.Price, Time: f.Time}
	if err := o.checkFill(excess); err != nil {
		return FillEvent{}, false, err
	}
	acct.pushed = pushed
	acct.accounted = pushed
	o.record(applied)
	return applied, true, nil
}

// Reconcile brings the accounted quantity of venueOrderID up to the venue's cumulative figure,
// synthesizing a fill at price for the difference.
func (o *WorkingOrder) Reconcile(venueOrderID string, cumulative int64, price decimal.Decimal, at time.Time) (FillEvent, bool, error) {
	acct := o.account(venueOrderID)
	if cumulative <= acct.accounted {
		return FillEvent{}, false, nil
	}
	diff := cumulative - acct.accounted
	if err := o.checkFill(diff); err != nil {
		return FillEvent{}, false, err
	}
	acct.accounted = cumulative
	applied := FillEvent{Quantity: diff, Price: price, Time: at}
	o.record(applied)
	return applied, true, nil
}

func (o *WorkingOrder) account(venueOrderID string) *fillAccount {
	acct, ok := o.accounts[venueOrderID]
	if !ok {
		acct = &fillAccount{}
		o.accounts[venueOrderID] = acct
	}
	return acct
}

func (o *WorkingOrder) checkFill(qty int64) error {
	if o.FilledQuantity+qty > o.OriginalQuantity {
		return &InvariantViolation{
			Handle: o.Handle,
			Detail: fmt.Sprintf("cumulative fills %d would exceed original quantity %d",
				o.FilledQuantity+qty, o.OriginalQuantity),
		}
	}
	return nil
}

func (o *WorkingOrder) record(f FillEvent) {
	o.Fills = append(o.Fills, f)
	o.FilledQuantity += f.Quantity
}

// Snapshot returns a detached copy safe to hand outside the owning manager.
func (o *WorkingOrder) Snapshot() WorkingOrder {
	cp := *o
	cp.Fills = append([]FillEvent(nil), o.Fills...)
	cp.PhaseName = o.Phase.String()
	cp.accounts = nil
	return cp
}
