package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "huddle_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Connection metrics
	Admissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_admissions_total",
			Help: "Connection admission attempts by outcome",
		},
		[]string{"outcome"}, // "admitted" or the rejection reason
	)

	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "huddle_active_connections",
			Help: "Connections currently joined to a room",
		},
	)

	// Messaging metrics
	MessagesRelayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_messages_relayed_total",
			Help: "Inbound chat messages relayed to a room",
		},
	)

	DeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_delivery_failures_total",
			Help: "Per-recipient broadcast delivery failures",
		},
	)

	// Assistant metrics
	AssistantRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_assistant_requests_total",
			Help: "Assistant augmentations by outcome",
		},
		[]string{"outcome"}, // "success", "fallback", "empty_prompt", "rate_limited"
	)

	AssistantRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_assistant_retries_total",
			Help: "Retries issued against the generative backend",
		},
	)

	AssistantLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "huddle_assistant_latency_seconds",
			Help:    "End-to-end augmentation latency including retries",
			Buckets: []float64{.25, .5, 1, 2, 4, 8, 16, 32},
		},
	)

	// Infrastructure metrics
	ProjectCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_project_cache_lookups_total",
			Help: "Project directory cache lookups by result",
		},
		[]string{"result"}, // "hit", "miss", "error"
	)

	SQLiteLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "huddle_sqlite_latency_seconds",
			Help:    "SQLite project query latency",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1},
		},
	)
)
