package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"limit_chaser/internal/domain"
	"limit_chaser/internal/event"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Orders is the control surface the API drives. *service.OrderService implements it.
type Orders interface {
	Start(ctx context.Context, symbol string, side domain.Side, quantity int64) (string, error)
	Pause(handle string) error
	Resume(handle string) error
	Stop(handle string) error
	Events(handle string) (*event.Stream, error)
	Snapshot(handle string) (domain.WorkingOrder, error)
	List() []domain.WorkingOrder
	Exposure(symbol string) domain.ExposurePosition
}

// History serves journaled orders. *storage.Journal implements it.
type History interface {
	Orders() ([]domain.OrderRecord, error)
	Fills(handle string) ([]domain.FillRecord, error)
}

// Server is the HTTP control API.
type Server struct {
	orders   Orders
	history  History
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a server. history may be nil, in which case /history is not routed.
func NewServer(orders Orders, history History, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		orders:  orders,
		history: history,
		logger:  logger.With("module", "api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Routes builds the router.
//
//	POST /orders                  start an order {symbol, side, quantity}
//	GET  /orders                  list live orders
//	GET  /orders/{id}             order snapshot
//	POST /orders/{id}/pause       pause
//	POST /orders/{id}/resume      resume
//	POST /orders/{id}/stop        stop
//	GET  /orders/{id}/events      websocket event stream, ?since=<seq> to skip replay
//	GET  /exposure/{symbol}       position for symbol
//	GET  /history                 journaled orders
//	GET  /history/{id}/fills      journaled fills
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.recovery)
	r.Use(s.logging)

	r.HandleFunc("/orders", s.startOrder).Methods(http.MethodPost)
	r.HandleFunc("/orders", s.listOrders).Methods(http.MethodGet)
	r.HandleFunc("/orders/{id}", s.getOrder).Methods(http.MethodGet)
	r.HandleFunc("/orders/{id}/pause", s.control(s.orders.Pause)).Methods(http.MethodPost)
	r.HandleFunc("/orders/{id}/resume", s.control(s.orders.Resume)).Methods(http.MethodPost)
	r.HandleFunc("/orders/{id}/stop", s.control(s.orders.Stop)).Methods(http.MethodPost)
	r.HandleFunc("/orders/{id}/events", s.streamEvents).Methods(http.MethodGet)
	r.HandleFunc("/exposure/{symbol}", s.getExposure).Methods(http.MethodGet)

	if s.history != nil {
		r.HandleFunc("/history", s.listHistory).Methods(http.MethodGet)
		r.HandleFunc("/history/{id}/fills", s.historyFills).Methods(http.MethodGet)
	}
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidOrder):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownHandle):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrIllegalTransition):
		status = http.StatusConflict
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
