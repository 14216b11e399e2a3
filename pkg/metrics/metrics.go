package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total number of events published to the bus",
		},
		[]string{"routing_key", "status"}, // status: success, failed
	)

	AuditRecordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_records_written_total",
			Help: "Total number of audit records written",
		},
		[]string{"action", "outcome"}, // outcome: inserted, duplicate
	)

	InstancesGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recurring_instances_generated_total",
			Help: "Total number of recurring task instances generated",
		},
		[]string{"frequency"},
	)

	RemindersPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reminders_published_total",
			Help: "Total number of reminder.due events published by the scheduler",
		},
	)

	NotificationsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_delivered_total",
			Help: "Total number of reminder notifications delivered",
		},
		[]string{"channel"}, // channel: live, email, dropped
	)

	DeadLetteredEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dead_lettered_events_total",
			Help: "Total number of events routed to the dead-letter store",
		},
		[]string{"routing_key"},
	)

	LiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "live_channel_connections",
			Help: "Current number of open live delivery channels",
		},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)
)

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

func IncrementEventsPublished(routingKey, status string) {
	EventsPublished.WithLabelValues(routingKey, status).Inc()
}

func IncrementAuditRecords(action, outcome string) {
	AuditRecordsWritten.WithLabelValues(action, outcome).Inc()
}

func IncrementInstancesGenerated(frequency string) {
	InstancesGenerated.WithLabelValues(frequency).Inc()
}

func IncrementNotificationsDelivered(channel string) {
	NotificationsDelivered.WithLabelValues(channel).Inc()
}

func IncrementDeadLettered(routingKey string) {
	DeadLetteredEvents.WithLabelValues(routingKey).Inc()
}
