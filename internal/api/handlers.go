package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"limit_chaser/internal/domain"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	writeWait   = 10 * time.Second
	maxBodySize = 1 << 16
)

type startRequest struct {
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Quantity int64  `json:"quantity"`
}

type startResponse struct {
	Handle string `json:"handle"`
}

type listResponse struct {
	Orders []domain.WorkingOrder `json:"orders"`
	Total  int                   `json:"total"`
}

func (s *Server) startOrder(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: malformed body: %v", domain.ErrInvalidOrder, err))
		return
	}
	side, err := domain.ParseSide(req.Side)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", domain.ErrInvalidOrder, err))
		return
	}

	handle, err := s.orders.Start(r.Context(), req.Symbol, side, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, startResponse{Handle: handle})
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	orders := s.orders.List()
	writeJSON(w, http.StatusOK, listResponse{Orders: orders, Total: len(orders)})
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.orders.Snapshot(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// control adapts a pause/resume/stop call to a handler returning the order afterwards.
func (s *Server) control(fn func(handle string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handle := mux.Vars(r)["id"]
		if err := fn(handle); err != nil {
			writeError(w, err)
			return
		}
		o, err := s.orders.Snapshot(handle)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
	}
}

func (s *Server) getExposure(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(mux.Vars(r)["symbol"]))
	writeJSON(w, http.StatusOK, s.orders.Exposure(symbol))
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	orders, err := s.history.Orders()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) historyFills(w http.ResponseWriter, r *http.Request) {
	fills, err := s.history.Fills(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fills)
}

// streamEvents upgrades to a websocket and writes every event of the order as a JSON text
// frame, replaying from the start (or after ?since=) and following until the stream closes.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	handle := mux.Vars(r)["id"]
	stream, err := s.orders.Events(handle)
	if err != nil {
		writeError(w, err)
		return
	}
	var since uint64
	if v := r.URL.Query().Get("since"); v != "" {
		if since, err = strconv.ParseUint(v, 10, 64); err != nil {
			writeError(w, fmt.Errorf("%w: since must be a sequence number", domain.ErrInvalidOrder))
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reads only detect the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for ev := range stream.CursorAfter(since).All(ctx) {
		b, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("Event encode failed", slog.Any("error", err))
			return
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
	if ctx.Err() != nil {
		return
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "order finished"))
}
