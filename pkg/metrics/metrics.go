package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API request metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unraid_api_requests_total",
			Help: "Total number of GraphQL requests by operation and outcome",
		},
		[]string{"operation", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "unraid_api_request_duration_seconds",
			Help:    "GraphQL request round-trip latency by operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Websocket metrics
	WSMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unraid_ws_messages_total",
			Help: "Total number of inbound websocket messages by type",
		},
		[]string{"type"},
	)

	WSConnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "unraid_ws_connects_total",
			Help: "Total number of successful websocket connections",
		},
	)

	// Coordinator metrics
	PollCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unraid_poll_cycles_total",
			Help: "Total number of poll cycles by outcome",
		},
		[]string{"status"},
	)

	EntitiesDiscovered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unraid_entities_discovered_total",
			Help: "Total number of newly discovered entities by category",
		},
		[]string{"category"},
	)

	SnapshotEntities = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "unraid_snapshot_entities",
			Help: "Number of entities in the current snapshot by category",
		},
		[]string{"category"},
	)
)

// Register registers all collectors with the default Prometheus registry.
// Safe to call only once.
func Register() {
	prometheus.MustRegister(
		APIRequestsTotal,
		APIRequestDuration,
		WSMessagesTotal,
		WSConnectsTotal,
		PollCyclesTotal,
		EntitiesDiscovered,
		SnapshotEntities,
	)
}

// Handler returns an HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
