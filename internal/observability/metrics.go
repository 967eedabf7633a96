package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inbox_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records repository latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inbox_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// MessagesSent counts messages appended, by message type.
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inbox_messages_sent_total",
		Help: "Total number of chat messages sent",
	}, []string{"message_type"})

	// DeliveryFanout records how many delivery rows one send produced.
	DeliveryFanout = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "inbox_delivery_fanout_size",
		Help:    "Number of delivery status rows created per message",
		Buckets: []float64{1, 2, 3, 5, 10, 25, 50, 100},
	})

	// ConversationsCreated counts new inbox entries, by conversation type.
	ConversationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inbox_conversations_created_total",
		Help: "Total number of conversations created",
	}, []string{"conversation_type"})

	// UnreadResets counts unread counter resets.
	UnreadResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inbox_unread_resets_total",
		Help: "Total number of conversation unread counter resets",
	})

	// CacheLookups counts cache hits and misses by cache name.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inbox_cache_lookups_total",
		Help: "Cache lookups by cache and result",
	}, []string{"cache", "result"})

	// AccessDenied counts gateway authorization failures by reason.
	AccessDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inbox_access_denied_total",
		Help: "Requests rejected by ownership or membership checks",
	}, []string{"reason"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
