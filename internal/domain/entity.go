package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderRecord is the journal row for one managed order.
type OrderRecord struct {
	Handle         string          `gorm:"primaryKey" json:"handle"`
	Symbol         string          `gorm:"index" json:"symbol"`
	Kind           string          `json:"kind"`
	Side           string          `json:"side"`
	Quantity       int64           `json:"quantity"`
	FilledQuantity int64           `json:"filled_quantity"`
	State          string          `gorm:"index" json:"state"`
	VenueOrderID   string          `json:"venue_order_id"`
	Price          decimal.Decimal `gorm:"type:text" json:"price"`
	LastError      string          `json:"last_error"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// FillRecord is the journal row for one fill.
type FillRecord struct {
	ID       uint            `gorm:"primaryKey" json:"id"`
	Handle   string          `gorm:"index" json:"handle"`
	Seq      uint64          `json:"seq"` // event sequence that carried the fill
	Symbol   string          `gorm:"index" json:"symbol"`
	Side     string          `json:"side"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `gorm:"type:text" json:"price"`
	FilledAt time.Time       `json:"filled_at"`
}
