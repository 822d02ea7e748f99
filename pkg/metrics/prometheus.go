package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code", "role"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status_code"},
	)

	// Queue business metrics
	queueJoinsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_joins_total",
			Help: "Total number of customers joining a queue",
		},
		[]string{"shop_id"},
	)

	queueLeavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_leaves_total",
			Help: "Total number of customers leaving a queue before service",
		},
		[]string{"shop_id"},
	)

	queueDispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_dispatch_total",
			Help: "Total number of call-next attempts by result",
		},
		[]string{"shop_id", "result"},
	)

	queueCompletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_completions_total",
			Help: "Total number of entries reaching a terminal service status",
		},
		[]string{"shop_id", "status"},
	)

	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Current number of waiting entries per shop",
		},
		[]string{"shop_id"},
	)

	// Contention metrics
	claimRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_claim_retries_total",
			Help: "Conditional updates reattempted after losing a race",
		},
		[]string{"operation"},
	)

	claimRetriesExhaustedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_claim_retries_exhausted_total",
			Help: "Operations that surfaced contention after bounded retries",
		},
		[]string{"operation"},
	)

	sequenceViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_sequence_violations_total",
			Help: "Duplicate sequence insertions rejected by the store",
		},
		[]string{"shop_id"},
	)

	// Event metrics
	eventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_events_published_total",
			Help: "Queue events handed to the notification port",
		},
		[]string{"event"},
	)

	eventsBroadcastTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_events_broadcast_total",
			Help: "Queue events delivered to websocket subscribers",
		},
		[]string{"event"},
	)

	wsConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections_active",
			Help: "Number of open websocket subscriptions",
		},
	)
)

// HTTP metrics
func RecordHTTPRequest(method, endpoint, statusCode, role string, duration float64) {
	httpRequestsTotal.WithLabelValues(method, endpoint, statusCode, role).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, statusCode).Observe(duration)
}

// Queue metrics
func RecordJoin(shopID string) {
	queueJoinsTotal.WithLabelValues(shopID).Inc()
}

func RecordLeave(shopID string) {
	queueLeavesTotal.WithLabelValues(shopID).Inc()
}

func RecordDispatch(shopID, result string) {
	queueDispatchTotal.WithLabelValues(shopID, result).Inc()
}

func RecordCompletion(shopID, status string) {
	queueCompletionsTotal.WithLabelValues(shopID, status).Inc()
}

func SetQueueDepth(shopID string, depth float64) {
	queueDepth.WithLabelValues(shopID).Set(depth)
}

// Contention metrics
func RecordClaimRetry(operation string) {
	claimRetriesTotal.WithLabelValues(operation).Inc()
}

func RecordClaimRetryExhausted(operation string) {
	claimRetriesExhaustedTotal.WithLabelValues(operation).Inc()
}

func RecordSequenceViolation(shopID string) {
	sequenceViolationsTotal.WithLabelValues(shopID).Inc()
}

// Event metrics
func RecordEventPublished(event string) {
	eventsPublishedTotal.WithLabelValues(event).Inc()
}

func RecordEventBroadcast(event string) {
	eventsBroadcastTotal.WithLabelValues(event).Inc()
}

func SetWSConnectionsActive(count float64) {
	wsConnectionsActive.Set(count)
}
