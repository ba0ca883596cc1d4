// Package jobs lists the background passes run by cmd/worker and, when
// enabled, by cmd/api.
package jobs

import (
	"context"

	"github.com/easydollars/easydollars-api/internal/config"
	"github.com/easydollars/easydollars-api/internal/domain/idempotency"
	"github.com/easydollars/easydollars-api/internal/domain/ledger"
	"github.com/easydollars/easydollars-api/internal/domain/referral"
	"github.com/easydollars/easydollars-api/internal/pkg/worker"
)

const (
	ReferralSweeper   = "referral_sweeper"
	StaleReservations = "stale_reservations"
	LedgerReconcile   = "ledger_reconcile"

	sweepBatch = 100
)

// Build returns the periodic jobs. Reconciliation scans every balance, so it
// runs at a tenth of the sweep frequency.
func Build(cfg *config.Config, awarder *referral.Awarder, registry *idempotency.Registry, store *ledger.Store) []worker.Job {
	return []worker.Job{
		{
			Name:     ReferralSweeper,
			Interval: cfg.WorkerInterval,
			Run: func(ctx context.Context) (int, error) {
				return awarder.SweepPending(ctx, sweepBatch)
			},
		},
		{
			Name:     StaleReservations,
			Interval: cfg.WorkerInterval,
			Run: func(ctx context.Context) (int, error) {
				return registry.FailStale(ctx, "")
			},
		},
		{
			Name:     LedgerReconcile,
			Interval: 10 * cfg.WorkerInterval,
			Run:      store.CheckConsistency,
		},
	}
}
