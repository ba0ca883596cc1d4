package ledger

import (
	"context"

	"github.com/rs/zerolog/log"
)

// CheckConsistency compares every materialized balance with the sum of its
// entries, exports the mismatch count and logs each mismatch. A non-zero
// count means the ledger invariant is broken and needs a human.
func (s *Store) CheckConsistency(ctx context.Context) (int, error) {
	mismatches, err := s.Reconcile(ctx)
	if err != nil {
		return 0, err
	}

	reconcileMismatches.Set(float64(len(mismatches)))
	for _, m := range mismatches {
		log.Error().
			Str("account_id", m.AccountID.String()).
			Str("currency", string(m.Currency)).
			Int64("materialized", m.Materialized).
			Int64("entry_sum", m.EntrySum).
			Msg("Balance does not match its ledger entries")
	}
	return len(mismatches), nil
}
