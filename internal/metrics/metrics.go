package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Client metrics collectors
var (
	// Ingestion

	IngestSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forge_ingest_sessions_total",
			Help: "Total number of ingestion sessions by outcome",
		},
		[]string{"outcome"},
	)

	IngestActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "forge_ingest_active_sessions",
			Help: "Number of ingestion sessions currently streaming",
		},
	)

	IngestBatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forge_ingest_batches_total",
			Help: "Total number of record batches delivered to consumers",
		},
	)

	IngestRecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forge_ingest_records_total",
			Help: "Total number of records decoded from generation streams",
		},
	)

	IngestBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forge_ingest_bytes_total",
			Help: "Total number of stream bytes read",
		},
	)

	IngestMalformedSegmentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forge_ingest_malformed_segments_total",
			Help: "Total number of malformed stream segments dropped",
		},
	)

	IngestSessionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "forge_ingest_session_duration_seconds",
			Help:    "Ingestion session duration in seconds",
			Buckets: []float64{.1, .5, 1, 5, 15, 60, 300, 900, 3600},
		},
	)

	// Status channel

	StatusConnectionStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "forge_status_connection_status",
			Help: "Status channel connection status (1=connected, 0=disconnected)",
		},
	)

	StatusReconnectAttempts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "forge_status_reconnect_attempts",
			Help: "Consecutive reconnect attempts since the last successful open",
		},
	)

	StatusReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forge_status_reconnects_total",
			Help: "Total number of scheduled status channel reconnects",
		},
	)

	StatusGiveUpsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forge_status_give_ups_total",
			Help: "Total number of times the status channel exhausted its reconnect budget",
		},
	)

	StatusMessagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forge_status_messages_total",
			Help: "Total number of status messages received",
		},
	)

	// Backend HTTP

	BackendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forge_backend_requests_total",
			Help: "Total number of backend HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forge_backend_request_duration_seconds",
			Help:    "Time until backend response headers arrive, in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)
