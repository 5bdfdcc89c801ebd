package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Purchase outcomes used as the "result" label.
const (
	ResultOK           = "ok"
	ResultSoldOut      = "insufficient_inventory"
	ResultInvalid      = "invalid_input"
	ResultNotFound     = "not_found"
	ResultStorageError = "storage_error"
)

// Seat release outcomes used as the "outcome" label.
const (
	ReleaseRestored = "restored"
	ReleaseQueued   = "queued"
	ReleaseLost     = "lost"
	ReleaseDropped  = "dropped"
)

var (
	// Purchases counts ticket purchase attempts by result.
	Purchases = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eventhub",
			Name:      "purchases_total",
			Help:      "Ticket purchase attempts by result",
		},
		[]string{"result"},
	)

	// SeatsSold counts seats taken by successful purchases.
	SeatsSold = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "eventhub",
			Name:      "seats_sold_total",
			Help:      "Seats sold across all events",
		},
	)

	// PurchaseRetries counts purchases repeated after a deadlock or lock timeout.
	PurchaseRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "eventhub",
			Name:      "purchase_retries_total",
			Help:      "Purchase attempts repeated after a retryable storage error",
		},
	)

	// SeatReleases counts compensating seat increments by outcome.  "lost"
	// means seats stayed decremented without a ticket and need manual repair.
	SeatReleases = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eventhub",
			Name:      "seat_releases_total",
			Help:      "Compensating seat releases by outcome",
		},
		[]string{"outcome"},
	)

	// ArtifactFailures counts QR/PDF generation failures by kind.
	ArtifactFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eventhub",
			Name:      "artifact_failures_total",
			Help:      "Ticket artifact generation failures",
		},
		[]string{"kind"},
	)

	// HTTPDuration observes request latency by route template.
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "eventhub",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
