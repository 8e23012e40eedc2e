package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AI invocation results.
const (
	AIResultSuccess  = "success"
	AIResultError    = "error"
	AIResultTimeout  = "timeout"
	AIResultCanceled = "canceled"
	AIResultSkipped  = "skipped"
)

// Broadcast message kinds.
const (
	KindHuman = "human"
	KindAI    = "ai"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collab_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Gateway metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collab_connections_active",
			Help: "Currently open WebSocket connections",
		},
	)

	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collab_rooms_active",
			Help: "Rooms with at least one member",
		},
	)

	AuthRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_auth_rejections_total",
			Help: "Connection attempts rejected during the handshake",
		},
		[]string{"reason"},
	)

	MessagesBroadcast = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_messages_broadcast_total",
			Help: "Messages fanned out to a room",
		},
		[]string{"kind"}, // "human" or "ai"
	)

	MessageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_message_errors_total",
			Help: "Inbound frames that could not be handled",
		},
		[]string{"event"},
	)

	SlowClientsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collab_slow_clients_dropped_total",
			Help: "Connections dropped because their send buffer was full",
		},
	)

	// Assistant metrics
	AIInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_ai_invocations_total",
			Help: "AI completion invocations by result",
		},
		[]string{"result"},
	)

	AILatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "collab_ai_latency_seconds",
			Help:    "AI completion latency",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
	)

	AIInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collab_ai_in_flight",
			Help: "AI completions currently running",
		},
	)

	// Supervision metrics
	SupervisedTaskFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_supervised_task_failures_total",
			Help: "Background tasks that panicked or returned an error",
		},
		[]string{"task"},
	)

	EventsPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collab_events_publish_failures_total",
			Help: "Room events that could not be published",
		},
	)
)
