package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		notificationsTotal,
		notificationQueueDepth,
	)
}

var (
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Operator notifications by level and delivery status.",
		},
		[]string{"level", "status"}, // status: sent|retried|dead|error
	)

	notificationQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_queue_depth",
			Help: "Notifications waiting in the queue.",
		},
	)
)

func IncNotification(level, status string) {
	notificationsTotal.WithLabelValues(norm(level), norm(status)).Inc()
}

func SetNotificationQueueDepth(n int64) {
	notificationQueueDepth.Set(float64(n))
}
