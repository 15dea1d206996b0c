package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"limit_chaser/internal/domain"
	"limit_chaser/internal/quote"

	"github.com/gorilla/websocket"
)

// StreamWorker keeps the venue websocket open: book updates go into a quote.Book and fill
// pushes go to fill subscribers. It implements domain.FillFeed.
type StreamWorker struct {
	url    string
	book   *quote.Book
	logger *slog.Logger

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	symbols   map[string]struct{}

	subsMu sync.Mutex
	subs   []fillSub

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type fillSub struct {
	ctx context.Context
	ch  chan domain.VenueFill
}

// NewStreamWorker creates a worker for wsURL feeding book.
func NewStreamWorker(wsURL string, book *quote.Book, logger *slog.Logger) *StreamWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamWorker{
		url:     wsURL,
		book:    book,
		logger:  logger.With("module", "broker_stream"),
		symbols: make(map[string]struct{}),
	}
}

// Connect starts the connection loop in the background.
func (w *StreamWorker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.connectionLoop(ctx)
	return nil
}

// Watch adds symbol to the book subscription, subscribing right away if connected.
func (w *StreamWorker) Watch(symbol string) error {
	w.mu.Lock()
	if _, ok := w.symbols[symbol]; ok {
		w.mu.Unlock()
		return nil
	}
	w.symbols[symbol] = struct{}{}
	connected := w.connected
	w.mu.Unlock()

	if !connected {
		return nil
	}
	return w.send(subscribeRequest{Op: "subscribe", Args: []subscribeArg{{Channel: channelBook, Symbol: symbol}}})
}

// SubscribeFills returns a channel of fill pushes in arrival order. It closes when ctx ends
// or the worker disconnects.
func (w *StreamWorker) SubscribeFills(ctx context.Context) (<-chan domain.VenueFill, error) {
	ch := make(chan domain.VenueFill, 256)
	w.subsMu.Lock()
	w.subs = append(w.subs, fillSub{ctx: ctx, ch: ch})
	w.subsMu.Unlock()
	return ch, nil
}

// IsConnected reports whether the socket is currently up.
func (w *StreamWorker) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

func (w *StreamWorker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	defer w.closeSubscribers()

	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			w.logger.Warn("Broker stream connection failed", slog.Any("error", err), slog.Int("retry", retryCount))
			retryCount++
			if retryCount > maxRetries {
				retryCount = 0 // keep retrying forever
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(calculateBackoff(retryCount)):
			}
			continue
		}
		retryCount = 0
		w.readLoop(ctx)
	}
}

func (w *StreamWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	args := []subscribeArg{{Channel: channelFills}}
	for sym := range w.symbols {
		args = append(args, subscribeArg{Channel: channelBook, Symbol: sym})
	}
	w.mu.Unlock()

	if err := w.send(subscribeRequest{Op: "subscribe", Args: args}); err != nil {
		w.closeConnection()
		return err
	}

	go w.pingLoop(ctx, conn)
	w.logger.Info("Broker stream connected", slog.Int("channels", len(args)))
	return nil
}

func (w *StreamWorker) send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return w.threadSafeWrite(websocket.TextMessage, b)
}

func (w *StreamWorker) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.RLock()
			current := w.conn
			w.mu.RUnlock()
			if current != conn {
				return
			}
			if err := w.threadSafeWrite(websocket.TextMessage, []byte("ping")); err != nil {
				return
			}
		}
	}
}

func (w *StreamWorker) threadSafeWrite(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.conn == nil {
		return errors.New("no conn")
	}
	return w.conn.WriteMessage(msgType, data)
}

func (w *StreamWorker) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		_, msg, err := conn.ReadMessage()
		if err != nil {
			w.logger.Warn("Broker stream read failed", slog.Any("error", err))
			w.closeConnection()
			return
		}
		if string(msg) == "pong" {
			continue
		}
		w.handleMessage(ctx, msg)
	}
}

func (w *StreamWorker) handleMessage(ctx context.Context, msg []byte) {
	var m streamMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		w.logger.Debug("Unparseable stream frame", slog.Any("error", err))
		return
	}

	switch m.Channel {
	case channelBook:
		w.applyBook(m)
	case channelFills:
		for _, f := range m.Fills {
			w.publish(ctx, domain.VenueFill{
				VenueOrderID: f.OrderID,
				Fill: domain.FillEvent{
					Quantity: f.Quantity,
					Price:    f.Price,
					Time:     msTime(f.Ts),
				},
			})
		}
	}
}

func (w *StreamWorker) applyBook(m streamMessage) {
	ts := msTime(m.Ts)
	if m.Action == "snapshot" {
		w.book.ApplySnapshot(m.Symbol, toLevels(m.Bids), toLevels(m.Asks), ts)
		return
	}
	for _, l := range m.Bids {
		w.book.ApplyDelta(m.Symbol, quote.Bids, l.Price, l.Size, ts)
	}
	for _, l := range m.Asks {
		w.book.ApplyDelta(m.Symbol, quote.Asks, l.Price, l.Size, ts)
	}
}

func toLevels(in []levelData) []quote.Level {
	out := make([]quote.Level, 0, len(in))
	for _, l := range in {
		out = append(out, quote.Level{Price: l.Price, Size: l.Size})
	}
	return out
}

// publish hands a fill to every live subscriber. Fills are never dropped; a slow
// subscriber holds up the read loop until it catches up or goes away.
func (w *StreamWorker) publish(ctx context.Context, f domain.VenueFill) {
	w.subsMu.Lock()
	defer w.subsMu.Unlock()

	live := w.subs[:0]
	for _, s := range w.subs {
		select {
		case s.ch <- f:
			live = append(live, s)
		case <-s.ctx.Done():
			close(s.ch)
		case <-ctx.Done():
			live = append(live, s)
		}
	}
	w.subs = live
}

func (w *StreamWorker) closeSubscribers() {
	w.subsMu.Lock()
	defer w.subsMu.Unlock()
	for _, s := range w.subs {
		close(s.ch)
	}
	w.subs = nil
}

func (w *StreamWorker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connected = false
}

// Disconnect stops the worker and waits for its goroutines.
func (w *StreamWorker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
}
