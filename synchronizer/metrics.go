package synchronizer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("scrumchain.synchronizer")

var (
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scrumchain_ledger_submissions_total",
		Help: "Ledger submissions by entity kind, operation and result",
	}, []string{"kind", "op", "result"})

	confirmationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scrumchain_ledger_confirmations_total",
		Help: "Resolved ledger transactions by entity kind and outcome",
	}, []string{"kind", "outcome"})

	confirmationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scrumchain_ledger_confirmation_seconds",
		Help:    "Time from submission to receipt",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 9), // 250ms to ~64s
	}, []string{"kind"})

	sweepTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scrumchain_sweeper_records_total",
		Help: "Pending records examined by the sweeper, by outcome",
	}, []string{"outcome"})
)

// Outcome labels
const (
	outcomeConfirmed      = "confirmed"
	outcomeFailed         = "failed"
	outcomeUnknown        = "unknown"
	outcomeReconciliation = "reconciliation"
	outcomeExpired        = "expired"
)
