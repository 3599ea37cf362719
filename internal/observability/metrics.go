package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mirrorWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "mirror",
		Name:      "writes_total",
		Help:      "Calendar mirror writes, labeled by operation.",
	}, []string{"op"})

	mirrorFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Name:      "mirror_sync_failures_total",
		Help:      "Calendar mirror writes that failed after the source write committed.",
	}, []string{"op"})

	sessionTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "sessions",
		Name:      "transitions_total",
		Help:      "Session lifecycle transitions, labeled by kind and transition.",
	}, []string{"kind", "transition"})

	cascadeDeletes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "cascade",
		Name:      "deletes_total",
		Help:      "Cascade delete attempts, labeled by source and outcome.",
	}, []string{"source", "outcome"})

	reschedules = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "calendar",
		Name:      "reschedules_total",
		Help:      "Calendar reschedules, labeled by whether the source entity followed.",
	}, []string{"propagated"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tracker",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency, labeled by method, route pattern and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

func init() {
	prometheus.MustRegister(mirrorWrites, mirrorFailures, sessionTransitions, cascadeDeletes, reschedules, httpDuration)
}

// RecordMirrorWrite counts a successful mirror write.
func RecordMirrorWrite(op string) {
	mirrorWrites.WithLabelValues(op).Inc()
}

// RecordMirrorFailure counts a failed mirror write.
func RecordMirrorFailure(op string) {
	mirrorFailures.WithLabelValues(op).Inc()
}

// MirrorFailures exposes the failure counter for tests.
func MirrorFailures(op string) prometheus.Counter {
	return mirrorFailures.WithLabelValues(op)
}

// RecordSessionTransition counts a lifecycle transition.
func RecordSessionTransition(kind, transition string) {
	sessionTransitions.WithLabelValues(kind, transition).Inc()
}

// SessionTransitions exposes the transition counter for tests.
func SessionTransitions(kind, transition string) prometheus.Counter {
	return sessionTransitions.WithLabelValues(kind, transition)
}

// RecordCascadeDelete counts a cascade delete outcome.
func RecordCascadeDelete(source, outcome string) {
	cascadeDeletes.WithLabelValues(source, outcome).Inc()
}

// RecordReschedule counts a calendar move.
func RecordReschedule(propagated bool) {
	reschedules.WithLabelValues(strconv.FormatBool(propagated)).Inc()
}

// ObserveHTTPRequest records one served request.
func ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
