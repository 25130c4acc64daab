package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hostbook"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status class.",
		},
		[]string{"endpoint", "code"},
	)

	bookingsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Bookings persisted in pending status.",
		},
	)

	bookingConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_conflicts_total",
			Help:      "Create attempts rejected because the slot was no longer free.",
		},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transitions_total",
			Help:      "Booking lifecycle transitions by name and result.",
		},
		[]string{"transition", "result"},
	)

	paymentCalls = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_call_duration_seconds",
			Help:      "Payment gateway call latency by operation and outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "outcome"},
	)

	releaseFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_release_failures_total",
			Help:      "Authorization releases that failed inline and were queued for retry.",
		},
	)

	releaseRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_release_retries_total",
			Help:      "Queued release attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			bookingsCreated,
			bookingConflicts,
			transitions,
			paymentCalls,
			releaseFailures,
			releaseRetries,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string, code int) {
	httpRequests.WithLabelValues(endpoint, statusClass(code)).Inc()
}

func IncBookingCreated() { bookingsCreated.Inc() }

func IncBookingConflict() { bookingConflicts.Inc() }

// ObserveTransition records a lifecycle transition; result is "ok", "noop" or an error kind.
func ObserveTransition(transition, result string) {
	transitions.WithLabelValues(transition, result).Inc()
}

func ObservePayment(operation string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	paymentCalls.WithLabelValues(operation, outcome).Observe(time.Since(started).Seconds())
}

func IncReleaseFailure() { releaseFailures.Inc() }

func IncReleaseRetry(outcome string) {
	releaseRetries.WithLabelValues(outcome).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
