package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Websocket metrics
	OpenConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "privchat_ws_open_connections",
			Help: "Currently open websocket connections",
		},
	)

	FramesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "privchat_ws_frames_rejected_total",
			Help: "Frames rejected during parse or validation",
		},
		[]string{"code"},
	)

	// Message metrics
	MessagesPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "privchat_messages_persisted_total",
			Help: "Messages accepted and persisted",
		},
	)

	MessagesDuplicate = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "privchat_messages_duplicate_total",
			Help: "Sends suppressed by the idempotency key",
		},
	)

	MessagesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "privchat_messages_delivered_total",
			Help: "Messages handed to recipient connections",
		},
		[]string{"path"}, // "immediate" or "retry"
	)

	// Delivery queue metrics
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "privchat_delivery_queue_depth",
			Help: "Messages currently waiting for retry",
		},
	)

	RetryAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "privchat_delivery_retry_attempts_total",
			Help: "Delivery attempts made by the retry loop",
		},
	)

	// Rate limit metrics
	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "privchat_rate_limited_total",
			Help: "Requests rejected by a rate limiter",
		},
		[]string{"limiter"}, // "message" or "auth"
	)

	// Presence metrics
	PresenceBroadcasts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "privchat_presence_broadcasts_total",
			Help: "Presence events fanned out to observers",
		},
	)
)
