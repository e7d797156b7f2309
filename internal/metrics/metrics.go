package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cuebook"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status code.",
		},
		[]string{"endpoint", "code"},
	)

	bookingsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Bookings created by source.",
		},
		[]string{"source"},
	)

	allocationConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocation_conflicts_total",
			Help:      "Allocation attempts that found no free table.",
		},
	)

	lifecycleTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_transitions_total",
			Help:      "Applied booking state transitions.",
		},
		[]string{"transition"},
	)

	settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Wallet settlements by kind.",
		},
		[]string{"kind"},
	)

	reconciliationRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_runs_total",
			Help:      "Completed reconciliation passes.",
		},
	)

	reconciliationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_failures_total",
			Help:      "Bookings the reconciler failed to process.",
		},
		[]string{"pass"},
	)

	outboxDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_deliveries_total",
			Help:      "Outbox delivery attempts by sink and result.",
		},
		[]string{"sink", "result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			bookingsCreated,
			allocationConflicts,
			lifecycleTransitions,
			settlements,
			reconciliationRuns,
			reconciliationFailures,
			outboxDeliveries,
		)
	})
}

func IncHTTP(endpoint, code string) {
	httpRequests.WithLabelValues(endpoint, code).Inc()
}

func IncBookingCreated(source string) {
	bookingsCreated.WithLabelValues(source).Inc()
}

func IncAllocationConflict() {
	allocationConflicts.Inc()
}

func IncTransition(transition string) {
	lifecycleTransitions.WithLabelValues(transition).Inc()
}

func IncSettlement(kind string) {
	settlements.WithLabelValues(kind).Inc()
}

func IncReconciliationRun() {
	reconciliationRuns.Inc()
}

func IncReconciliationFailure(pass string) {
	reconciliationFailures.WithLabelValues(pass).Inc()
}

func IncOutboxDelivery(sink, result string) {
	outboxDeliveries.WithLabelValues(sink, result).Inc()
}
