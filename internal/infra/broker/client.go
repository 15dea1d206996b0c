package broker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"limit_chaser/internal/domain"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ClientConfig configures the REST client.
type ClientConfig struct {
	BaseURL   string
	AccessKey string
	SecretKey string
	AccountID string
	RateLimit float64 // requests per second
	Burst     int
	Timeout   time.Duration
}

// Client is the broker REST API client. It implements domain.Venue and domain.MarketData.
type Client struct {
	baseURL    string
	account    string
	httpClient *http.Client
	signer     *Signer
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a new broker API client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		account: cfg.AccountID,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		signer:  NewSigner(cfg.AccessKey, cfg.SecretKey),
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With("module", "broker_client"),
	}
}

// Submit places a limit order and returns the venue order id.
func (c *Client) Submit(ctx context.Context, req domain.OrderRequest) (string, error) {
	body := placeOrderRequest{
		Symbol:        req.Instrument.Symbol,
		Side:          strings.ToLower(string(req.Side)),
		OrderType:     "limit",
		Price:         req.Price,
		Quantity:      req.Quantity,
		ClientOrderID: uuid.NewString(),
	}

	var ack orderAck
	if err := c.do(ctx, "submit", http.MethodPost, c.ordersPath(""), nil, body, &ack); err != nil {
		return "", err
	}
	c.logger.Info("Order placed", "order_id", ack.OrderID, "symbol", req.Instrument.Symbol, "price", req.Price.String())
	return ack.OrderID, nil
}

// Replace changes price and quantity. The venue implements it as cancel+place, so the
// returned id is the order now resting.
func (c *Client) Replace(ctx context.Context, venueOrderID string, quantity int64, price decimal.Decimal) (string, error) {
	body := replaceOrderRequest{Price: price, Quantity: quantity}

	var ack orderAck
	if err := c.do(ctx, "replace", http.MethodPut, c.ordersPath(venueOrderID), nil, body, &ack); err != nil {
		return "", err
	}
	if ack.OrderID == "" {
		ack.OrderID = venueOrderID
	}
	return ack.OrderID, nil
}

// Cancel cancels an open order. Cancelling a finished order returns domain.ErrAlreadyTerminal.
func (c *Client) Cancel(ctx context.Context, venueOrderID string) error {
	return c.do(ctx, "cancel", http.MethodDelete, c.ordersPath(venueOrderID), nil, nil, nil)
}

// Status returns the venue's view of an order.
func (c *Client) Status(ctx context.Context, venueOrderID string) (domain.VenueOrderStatus, error) {
	var st orderStatus
	if err := c.do(ctx, "status", http.MethodGet, c.ordersPath(venueOrderID), nil, nil, &st); err != nil {
		return domain.VenueOrderStatus{}, err
	}
	open := st.Status == "OPEN" || st.Status == "PARTIALLY_FILLED"
	return domain.VenueOrderStatus{
		VenueOrderID:   venueOrderID,
		FilledQuantity: st.FilledQuantity,
		AvgPrice:       st.AvgPrice,
		Open:           open,
	}, nil
}

// GetQuote returns the top of book for symbol. A missing or empty quote is a *domain.StaleDataError.
func (c *Client) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	var q quoteData
	err := c.do(ctx, "quote", http.MethodGet, "/v1/quotes/"+url.PathEscape(symbol), nil, nil, &q)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return domain.Quote{}, &domain.StaleDataError{Symbol: symbol}
	}
	if err != nil {
		return domain.Quote{}, err
	}
	if q.Bid.IsZero() && q.Ask.IsZero() {
		return domain.Quote{}, &domain.StaleDataError{Symbol: symbol}
	}
	return domain.Quote{
		Symbol:  symbol,
		Bid:     q.Bid,
		BidSize: q.BidSize,
		Ask:     q.Ask,
		AskSize: q.AskSize,
		Time:    msTime(q.Ts),
	}, nil
}

func (c *Client) ordersPath(id string) string {
	p := "/v1/accounts/" + url.PathEscape(c.account) + "/orders"
	if id != "" {
		p += "/" + url.PathEscape(id)
	}
	return p
}

// do sends one signed request and decodes the envelope's data into out.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.NewTransientError(op, fmt.Errorf("rate limiter: %w", err))
	}

	var bodyReader io.Reader
	var bodyStr string
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		bodyReader = bytes.NewReader(b)
		bodyStr = string(b)
	}

	queryStr := query.Encode()
	reqURL := c.baseURL + path
	if queryStr != "" {
		reqURL += "?" + queryStr
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	for k, v := range c.signer.GenerateHeaders(method, path, queryStr, bodyStr) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewTransientError(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewTransientError(op, err)
	}
	return decodeResponse(op, resp.StatusCode, raw, out)
}

// decodeResponse maps an HTTP response onto the domain error taxonomy.
func decodeResponse(op string, status int, raw []byte, out any) error {
	env := envelope{Data: out}
	decodeErr := json.Unmarshal(raw, &env)

	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return domain.NewTransientError(op, fmt.Errorf("status=%d body=%s", status, string(raw)))
	case status == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, domain.ErrOrderNotFound)
	case env.Code == codeOrderFinished:
		return fmt.Errorf("%s: %w", op, domain.ErrAlreadyTerminal)
	case status >= 400:
		reason := env.Msg
		if reason == "" {
			reason = fmt.Sprintf("status=%d", status)
		}
		return &domain.RejectionError{Op: op, Reason: reason}
	case len(raw) == 0:
		return nil
	case decodeErr != nil:
		return domain.NewTransientError(op, fmt.Errorf("failed to parse response: %w", decodeErr))
	case env.Code != codeOK:
		return &domain.RejectionError{Op: op, Reason: fmt.Sprintf("code=%s msg=%s", env.Code, env.Msg)}
	}
	return nil
}
