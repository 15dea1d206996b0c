package domain

import "github.com/shopspring/decimal"

// ExposurePosition is derived from fill history; it is never stored authoritatively.
type ExposurePosition struct {
	Symbol       string          `json:"symbol"`
	NetQuantity  int64           `json:"net_quantity"` // Positive for Long, Negative for Short.
	AvgFillPrice decimal.Decimal `json:"avg_fill_price"`
	FillCount    int             `json:"fill_count"`
	Mark         decimal.Decimal `json:"mark"`
	HasMark      bool            `json:"has_mark"`
	MarketValue  decimal.Decimal `json:"market_value"`
}

// IsLong checks if the position is Long.
func (p ExposurePosition) IsLong() bool {
	return p.NetQuantity > 0
}

// IsShort checks if the position is Short.
func (p ExposurePosition) IsShort() bool {
	return p.NetQuantity < 0
}

// IsFlat checks if there is no net position.
func (p ExposurePosition) IsFlat() bool {
	return p.NetQuantity == 0
}
