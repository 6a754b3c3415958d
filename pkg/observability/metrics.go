// Package observability provides Prometheus metrics and health endpoints for
// the support chat service.
package observability

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportflow_messages_total",
			Help: "Total number of persisted chat messages",
		},
		[]string{"sender"},
	)

	automatedRepliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportflow_automated_replies_total",
			Help: "Total number of automated replies by provenance",
		},
		[]string{"source"},
	)

	responderDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "supportflow_responder_duration_seconds",
			Help:    "Time spent producing an automated reply",
			Buckets: prometheus.DefBuckets,
		},
	)

	publishFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "supportflow_publish_failures_total",
			Help: "Total number of fanout publish failures (logged, never surfaced)",
		},
	)

	sessionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportflow_session_transitions_total",
			Help: "Total number of session status transitions",
		},
		[]string{"to"},
	)

	metricsOnce sync.Once
)

// InitMetrics registers all metrics with the default registry. Safe to call
// multiple times.
func InitMetrics() {
	metricsOnce.Do(func() {
		prometheus.MustRegister(
			messagesTotal,
			automatedRepliesTotal,
			responderDuration,
			publishFailuresTotal,
			sessionTransitionsTotal,
		)
	})
}

// MetricsHandler returns the Prometheus scrape handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordMessage counts a persisted message by sender type.
func RecordMessage(sender string) {
	messagesTotal.WithLabelValues(strings.ToLower(sender)).Inc()
}

// RecordAutomatedReply counts an automated reply by provenance source
// (generative, fallback, rules, waiting).
func RecordAutomatedReply(source string) {
	automatedRepliesTotal.WithLabelValues(source).Inc()
}

// ObserveResponderDuration records the time an automated reply took.
func ObserveResponderDuration(seconds float64) {
	responderDuration.Observe(seconds)
}

// RecordPublishFailure counts a swallowed fanout failure.
func RecordPublishFailure() {
	publishFailuresTotal.Inc()
}

// RecordTransition counts a session entering the given status.
func RecordTransition(to string) {
	sessionTransitionsTotal.WithLabelValues(to).Inc()
}
