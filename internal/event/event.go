package event

import (
	"time"

	"limit_chaser/internal/domain"

	"github.com/shopspring/decimal"
)

// Type identifies what an Event reports.
type Type string

const (
	TypeStateChanged Type = "STATE_CHANGED"
	TypeSubmitted    Type = "SUBMITTED"
	TypeReplaced     Type = "REPLACED"
	TypeFill         Type = "FILL"
	TypePaused       Type = "PAUSED"
	TypeResumed      Type = "RESUMED"
	TypeWarning      Type = "WARNING"
	TypeError        Type = "ERROR"
)

// Error kinds carried in Event.ErrorKind.
const (
	KindRejection = "rejection"
	KindTransient = "transient"
	KindStale     = "stale"
	KindInvariant = "invariant"
	KindInternal  = "internal"
)

// Event is one entry of a manager's append-only event stream.
type Event struct {
	Seq          uint64                `json:"seq"`
	Time         time.Time             `json:"time"`
	Handle       string                `json:"handle"`
	Symbol       string                `json:"symbol"`
	Side         domain.Side           `json:"side"`
	Type         Type                  `json:"type"`
	State        domain.LifecycleState `json:"state"`
	PrevState    domain.LifecycleState `json:"prev_state,omitempty"`
	Paused       bool                  `json:"paused"`
	Price        decimal.Decimal       `json:"price"`
	Quantity     int64                 `json:"quantity,omitempty"`
	Filled       int64                 `json:"filled"`
	Remaining    int64                 `json:"remaining"`
	VenueOrderID string                `json:"venue_order_id,omitempty"`
	Fill         *domain.FillEvent     `json:"fill,omitempty"`
	ErrorKind    string                `json:"error_kind,omitempty"`
	Error        string                `json:"error,omitempty"`
	Message      string                `json:"message,omitempty"`
}

// IsTerminal reports whether the event moved the order into a terminal state.
func (e Event) IsTerminal() bool {
	return e.Type == TypeStateChanged && e.State.IsTerminal()
}
