package infra

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the order engine's Prometheus collectors.
// All methods are safe on a nil *Metrics so components can run without observability wired.
type Metrics struct {
	submits        *prometheus.CounterVec
	replaces       *prometheus.CounterVec
	skippedCycles  *prometheus.CounterVec
	fills          prometheus.Counter
	filledQuantity prometheus.Counter
	errors         *prometheus.CounterVec
	activeManagers prometheus.Gauge
	venueLatency   *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		submits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "limit_chaser",
			Subsystem: "engine",
			Name:      "submits_total",
			Help:      "Initial order submissions by outcome",
		}, []string{"outcome"}),
		replaces: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "limit_chaser",
			Subsystem: "engine",
			Name:      "replaces_total",
			Help:      "Replace attempts by outcome",
		}, []string{"outcome"}), // ack, rejected, transient, skipped_same_price
		skippedCycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "limit_chaser",
			Subsystem: "engine",
			Name:      "skipped_cycles_total",
			Help:      "Replacement cycles skipped by reason",
		}, []string{"reason"}), // stale, invalid_quote, paused
		fills: f.NewCounter(prometheus.CounterOpts{
			Namespace: "limit_chaser",
			Subsystem: "engine",
			Name:      "fills_total",
			Help:      "Fill events applied to working orders",
		}),
		filledQuantity: f.NewCounter(prometheus.CounterOpts{
			Namespace: "limit_chaser",
			Subsystem: "engine",
			Name:      "filled_quantity_total",
			Help:      "Units filled across all working orders",
		}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "limit_chaser",
			Subsystem: "engine",
			Name:      "errors_total",
			Help:      "Errors reported by kind",
		}, []string{"kind"}),
		activeManagers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "limit_chaser",
			Subsystem: "engine",
			Name:      "active_managers",
			Help:      "Working orders not yet terminal",
		}),
		venueLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "limit_chaser",
			Subsystem: "venue",
			Name:      "round_trip_ms",
			Help:      "Venue round-trip latency in milliseconds",
			Buckets:   []float64{5, 10, 25, 50, 100, 200, 500, 1000, 2000, 5000},
		}, []string{"op"}),
	}
}

// RecordSubmit counts an initial submission.
func (m *Metrics) RecordSubmit(outcome string) {
	if m == nil {
		return
	}
	m.submits.WithLabelValues(outcome).Inc()
}

// RecordReplace counts a replace decision.
func (m *Metrics) RecordReplace(outcome string) {
	if m == nil {
		return
	}
	m.replaces.WithLabelValues(outcome).Inc()
}

// RecordSkip counts a skipped cycle.
func (m *Metrics) RecordSkip(reason string) {
	if m == nil {
		return
	}
	m.skippedCycles.WithLabelValues(reason).Inc()
}

// RecordFill counts an applied fill of qty units.
func (m *Metrics) RecordFill(qty int64) {
	if m == nil {
		return
	}
	m.fills.Inc()
	m.filledQuantity.Add(float64(qty))
}

// RecordError counts an error of the given kind.
func (m *Metrics) RecordError(kind string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(kind).Inc()
}

// ManagerStarted increments the active manager gauge.
func (m *Metrics) ManagerStarted() {
	if m == nil {
		return
	}
	m.activeManagers.Inc()
}

// ManagerFinished decrements the active manager gauge.
func (m *Metrics) ManagerFinished() {
	if m == nil {
		return
	}
	m.activeManagers.Dec()
}

// ObserveVenue records the latency of one venue round trip.
func (m *Metrics) ObserveVenue(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.venueLatency.WithLabelValues(op).Observe(float64(d.Microseconds()) / 1000)
}
