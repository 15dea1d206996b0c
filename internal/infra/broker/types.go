package broker

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

const (
	codeOK            = "0"
	codeOrderFinished = "ORDER_FINISHED"

	channelBook  = "book"
	channelFills = "fills"

	maxRetries   = 10
	baseDelay    = 1 * time.Second
	maxDelay     = 60 * time.Second
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
)

// envelope wraps every REST response.
type envelope struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data"`
}

type placeOrderRequest struct {
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`      // buy, sell
	OrderType     string          `json:"orderType"` // always limit
	Price         decimal.Decimal `json:"price"`
	Quantity      int64           `json:"quantity"`
	ClientOrderID string          `json:"clientOid"`
}

type replaceOrderRequest struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
}

type orderAck struct {
	OrderID string `json:"orderId"`
}

type orderStatus struct {
	OrderID        string          `json:"orderId"`
	Status         string          `json:"status"` // OPEN, PARTIALLY_FILLED, FILLED, CANCELLED, REJECTED
	FilledQuantity int64           `json:"filledQuantity"`
	AvgPrice       decimal.Decimal `json:"avgPrice"`
}

type quoteData struct {
	Symbol  string          `json:"symbol"`
	Bid     decimal.Decimal `json:"bid"`
	BidSize int64           `json:"bidSize"`
	Ask     decimal.Decimal `json:"ask"`
	AskSize int64           `json:"askSize"`
	Ts      int64           `json:"ts"` // ms
}

// Websocket frames

type subscribeRequest struct {
	Op   string         `json:"op"`
	Args []subscribeArg `json:"args"`
}

type subscribeArg struct {
	Channel string `json:"channel"`
	Symbol  string `json:"symbol,omitempty"`
}

type streamMessage struct {
	Channel string `json:"channel"`
	Action  string `json:"action"` // snapshot, update
	Symbol  string `json:"symbol"`
	Ts      int64  `json:"ts"` // ms

	Bids []levelData `json:"bids"`
	Asks []levelData `json:"asks"`

	Fills []fillData `json:"fills"`
}

type levelData struct {
	Price decimal.Decimal `json:"price"`
	Size  int64           `json:"size"`
}

type fillData struct {
	OrderID  string          `json:"orderId"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Ts       int64           `json:"ts"`
}

func calculateBackoff(retryCount int) time.Duration {
	// Cap retry count to prevent overflow (2^6 = 64 seconds > max 60s)
	if retryCount > 6 {
		return maxDelay
	}
	delay := baseDelay * time.Duration(math.Pow(2, float64(retryCount)))
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

func msTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Now()
	}
	return time.UnixMilli(ms)
}
