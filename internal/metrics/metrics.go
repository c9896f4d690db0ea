package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Webhook call outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
	OutcomeTimeout  = "timeout"
)

// Metrics groups the service's Prometheus collectors. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	WebhookCalls   *prometheus.CounterVec
	WebhookLatency *prometheus.HistogramVec
	AuthEvents     *prometheus.CounterVec
	RateLimited    prometheus.Counter
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer
// to expose them through promhttp.Handler.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		WebhookCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollsheet",
			Name:      "webhook_calls_total",
			Help:      "Outbound webhook calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		WebhookLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rollsheet",
			Name:      "webhook_duration_seconds",
			Help:      "Latency of outbound webhook calls.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"op"}),
		AuthEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollsheet",
			Name:      "auth_events_total",
			Help:      "Registrations and logins by outcome.",
		}, []string{"event", "outcome"}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rollsheet",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
	}
}

// ObserveWebhook records one outbound call.
func (m *Metrics) ObserveWebhook(op, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.WebhookCalls.WithLabelValues(op, outcome).Inc()
	m.WebhookLatency.WithLabelValues(op).Observe(took.Seconds())
}

// AuthEvent records a registration or login result.
func (m *Metrics) AuthEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.AuthEvents.WithLabelValues(event, outcome).Inc()
}

// Limited records a rate-limited request.
func (m *Metrics) Limited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}
