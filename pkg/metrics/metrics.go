// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// WebhooksTotal tracks webhook intake by outcome.
	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_webhooks_total",
			Help: "Webhook deliveries received, by outcome",
		},
		[]string{"outcome"},
	)

	// EnqueuesTotal tracks queue publishes by queue and status.
	EnqueuesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_enqueues_total",
			Help: "Messages published to a queue",
		},
		[]string{"queue", "status"},
	)

	// DispatchesTotal tracks alert dispatches by alert type.
	DispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_dispatches_total",
			Help: "Inbound queue messages dispatched, by alert type",
		},
		[]string{"alert_type"},
	)

	// ConsumerInFlight tracks queue messages currently being processed.
	ConsumerInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_consumer_in_flight",
			Help: "Queue messages currently being processed",
		},
		[]string{"queue"},
	)

	// ModelDuration tracks language model completion duration.
	ModelDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_model_duration_seconds",
			Help:    "Language model completion duration",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"model", "status"},
	)

	// ModelTokensTotal tracks model tokens processed.
	ModelTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_model_tokens_total",
			Help: "Total model tokens processed",
		},
		[]string{"model", "direction"},
	)

	// GatewaySendsTotal tracks sends to the messaging gateway by status code.
	GatewaySendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_gateway_sends_total",
			Help: "Messages sent to the external gateway, by status",
		},
		[]string{"status"},
	)

	// AppendsTotal tracks conversation log appends by role.
	AppendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_appends_total",
			Help: "Conversation log appends, by role",
		},
		[]string{"role"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordModelCall records metrics for a language model completion.
func RecordModelCall(model, status string, duration float64, tokensIn, tokensOut int) {
	ModelDuration.WithLabelValues(model, status).Observe(duration)
	ModelTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	ModelTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}
