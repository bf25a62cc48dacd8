package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the pipeline.
//
// All collectors register with the default registry and are served by the
// promhttp handler on /metrics.
type Metrics struct {
	// MessageCounter counts pipeline requests.
	// Labels: tenant, outcome (ok|rejected|rate_limited|error)
	MessageCounter *prometheus.CounterVec

	// LLMRequestDuration measures model collaborator latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts model calls.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// GuardRejections counts input-guard rejections by flag.
	// Labels: flag
	GuardRejections *prometheus.CounterVec

	// WebhookDeliveries counts webhook delivery outcomes per tenant.
	// Labels: tenant, status (sent|failed)
	WebhookDeliveries *prometheus.CounterVec

	// WebhookDeliveryDuration measures full per-subscription delivery time
	// including retries, in seconds. Labels: tenant
	WebhookDeliveryDuration *prometheus.HistogramVec

	// TaskCounter counts async tasks by terminal status.
	// Labels: status (succeeded|failed)
	TaskCounter *prometheus.CounterVec

	// HTTPRequestDuration measures HTTP handler latency in seconds.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all collectors. Call once at startup.
func NewMetrics() *Metrics {
	return &Metrics{
		MessageCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_messages_total",
				Help: "Pipeline requests by tenant and outcome",
			},
			[]string{"tenant", "outcome"},
		),

		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_llm_request_duration_seconds",
				Help:    "Model collaborator call latency",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_llm_requests_total",
				Help: "Model collaborator calls by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		GuardRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_guard_rejections_total",
				Help: "Input guard rejections by flag",
			},
			[]string{"flag"},
		),

		WebhookDeliveries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_webhook_deliveries_total",
				Help: "Webhook delivery outcomes by tenant",
			},
			[]string{"tenant", "status"},
		),

		WebhookDeliveryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_webhook_delivery_duration_seconds",
				Help:    "Per-subscription webhook delivery time including retries",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 120},
			},
			[]string{"tenant"},
		),

		TaskCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_tasks_total",
				Help: "Async tasks by terminal status",
			},
			[]string{"status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_http_request_duration_seconds",
				Help:    "HTTP handler latency",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"method", "path", "status_code"},
		),
	}
}
