package idempotency

import "time"

type decision int

const (
	decisionReplay decision = iota + 1
	decisionBusy
	decisionReclaim
	decisionConflict
)

// decide classifies an existing record for a new request carrying hash,
// observed at now.
func decide(rec *Record, hash string, now time.Time, staleAfter time.Duration) decision {
	if rec.RequestHash != hash {
		return decisionConflict
	}

	switch rec.Status {
	case StatusCompleted:
		return decisionReplay
	case StatusFailed:
		return decisionReclaim
	default:
		if now.Sub(rec.LockedAt) >= staleAfter {
			return decisionReclaim
		}
		return decisionBusy
	}
}
