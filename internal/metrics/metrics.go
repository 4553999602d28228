package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coitrack_http_requests_total",
		Help: "Total HTTP requests by method, route and status code",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coitrack_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coitrack_compliance_transitions_total",
		Help: "COI state machine transitions by event and outcome",
	}, []string{"event", "outcome"})

	NotificationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coitrack_notification_failures_total",
		Help: "Post-commit notification dispatch failures",
	})
)

// RecordTransition bumps the transition counter for one submitted event.
func RecordTransition(event, outcome string) {
	TransitionsTotal.WithLabelValues(event, outcome).Inc()
}
