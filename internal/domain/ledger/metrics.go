package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "easydollars_ledger_operations_total",
		Help: "Money-movement operations by reason and outcome",
	}, []string{"reason", "outcome"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "easydollars_ledger_operation_duration_seconds",
		Help:    "Latency of money-movement operations including retries",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"reason"})

	transientRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "easydollars_ledger_transient_retries_total",
		Help: "Operations retried after a transient storage failure",
	})

	reconcileMismatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "easydollars_ledger_reconcile_mismatches",
		Help: "Balances that disagreed with their entry sum at the last reconciliation",
	})
)

func outcomeLabel(err error, replayed bool) string {
	switch {
	case err == nil && replayed:
		return "replayed"
	case err == nil:
		return "applied"
	default:
		return errorCode(err)
	}
}
