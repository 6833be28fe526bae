// ABOUTME: Prometheus collectors for herald's HTTP, gateway, dispatch, and webhook activity
// ABOUTME: Collectors are package-level; Init registers them with the default registry

package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "herald_http_request_duration_seconds",
			Help:    "Histogram of response durations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	// GatewayCalls counts upstream gateway API calls per operation and outcome
	GatewayCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_gateway_calls_total",
			Help: "Number of upstream gateway API calls",
		},
		[]string{"operation", "outcome"},
	)

	GatewayCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "herald_gateway_call_duration_seconds",
			Help:    "Duration of upstream gateway API calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// BroadcastsFinished counts dispatch rollups by final status
	BroadcastsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_broadcasts_finished_total",
			Help: "Number of broadcasts finished by the dispatch engine, by final status",
		},
		[]string{"status"},
	)

	// Deliveries counts per-recipient send outcomes
	Deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_deliveries_total",
			Help: "Number of per-group delivery attempts, by outcome",
		},
		[]string{"status"},
	)

	// WebhookEvents counts inbound gateway webhook events by kind and what we did with them
	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_webhook_events_total",
			Help: "Number of inbound gateway webhook events",
		},
		[]string{"event", "outcome"},
	)

	// ConnectionStatus tracks local connection lifecycle writes
	ConnectionStatus = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_connection_status_writes_total",
			Help: "Number of connection lifecycle status writes",
		},
		[]string{"status"},
	)
)

// Init registers all collectors with the default Prometheus registry.
// Call once at startup; collectors work unregistered in tests.
func Init() {
	prometheus.MustRegister(
		HTTPRequests,
		RequestDuration,
		GatewayCalls,
		GatewayCallDuration,
		BroadcastsFinished,
		Deliveries,
		WebhookEvents,
		ConnectionStatus,
	)
}
