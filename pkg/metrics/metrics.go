// Package metrics instruments chat turns with Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Turn outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
)

// Metrics holds the chat instruments. A nil *Metrics records nothing.
type Metrics struct {
	turns        *prometheus.CounterVec
	errors       *prometheus.CounterVec
	streamBytes  prometheus.Counter
	activeTurns  prometheus.Gauge
	turnDuration prometheus.Histogram
}

// New registers the chat instruments with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		turns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "composer_chat_turns_total",
			Help: "Chat turns by outcome",
		}, []string{"outcome"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "composer_chat_errors_total",
			Help: "User-visible chat errors by kind",
		}, []string{"kind"}),
		streamBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "composer_chat_stream_bytes_total",
			Help: "Decoded bytes received from chat streams",
		}),
		activeTurns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "composer_chat_active_turns",
			Help: "Chat turns currently streaming",
		}),
		turnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "composer_chat_turn_duration_seconds",
			Help:    "Chat turn duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 11), // 100ms to ~100s
		}),
	}
}

func (m *Metrics) TurnStarted() {
	if m == nil {
		return
	}
	m.activeTurns.Inc()
}

// TurnFinished records the outcome and duration of a turn started at start.
func (m *Metrics) TurnFinished(outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.activeTurns.Dec()
	m.turns.WithLabelValues(outcome).Inc()
	m.turnDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) Error(kind string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(kind).Inc()
}

func (m *Metrics) StreamBytes(n int) {
	if m == nil {
		return
	}
	m.streamBytes.Add(float64(n))
}
