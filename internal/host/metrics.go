package host

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/flyter/internal/ir"
)

// Metrics are the host's prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	messages prometheus.Gauge
}

// NewMetrics creates the host collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flyter",
			Name:      "calls_total",
			Help:      "Ledger calls executed, by op and outcome.",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flyter",
			Name:      "call_duration_seconds",
			Help:      "Time spent executing a ledger call, including the store transaction.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"op"}),
		messages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flyter",
			Name:      "messages",
			Help:      "Highest assigned message id.",
		}),
	}
	reg.MustRegister(m.calls, m.duration, m.messages)
	return m
}

func (m *Metrics) observe(op ir.Op, outcome string, elapsed time.Duration, count ir.MessageID) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(string(op), outcome).Inc()
	m.duration.WithLabelValues(string(op)).Observe(elapsed.Seconds())
	if count > 0 {
		m.messages.Set(float64(count))
	}
}
