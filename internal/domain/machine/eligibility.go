package machine

import "time"

// claimWindow returns the start of the machine's current earning window and
// when it becomes claimable. The window starts at the last claim or, before
// any claim, at activation.
func claimWindow(m *Machine, interval time.Duration) (start, eligibleAt time.Time) {
	start = m.ActivatedAt.Time
	if m.LastClaimAt.Valid {
		start = m.LastClaimAt.Time
	}
	return start, start.Add(interval)
}

// checkClaim reports the window start for a claim at now, or an error when
// the machine cannot be claimed yet. The interval boundary is inclusive.
func checkClaim(m *Machine, now time.Time, interval time.Duration) (time.Time, error) {
	if !m.IsActive || !m.ActivatedAt.Valid {
		return time.Time{}, ErrNotActive
	}
	start, eligibleAt := claimWindow(m, interval)
	if now.Before(eligibleAt) {
		return time.Time{}, &NotEligibleError{NextClaimAt: eligibleAt}
	}
	return start, nil
}
