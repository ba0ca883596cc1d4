package machine

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckClaim(t *testing.T) {
	activated := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	active := func(lastClaim time.Time) *Machine {
		m := &Machine{IsActive: true, ActivatedAt: sql.NullTime{Time: activated, Valid: true}}
		if !lastClaim.IsZero() {
			m.LastClaimAt = sql.NullTime{Time: lastClaim, Valid: true}
		}
		return m
	}

	t.Run("inactive machine", func(t *testing.T) {
		_, err := checkClaim(&Machine{}, activated.Add(48*time.Hour), day)
		assert.ErrorIs(t, err, ErrNotActive)
	})

	t.Run("before first window elapses", func(t *testing.T) {
		_, err := checkClaim(active(time.Time{}), activated.Add(day-time.Second), day)
		var notEligible *NotEligibleError
		require.True(t, errors.As(err, &notEligible))
		assert.ErrorIs(t, err, ErrNotEligible)
		assert.Equal(t, activated.Add(day), notEligible.NextClaimAt)
	})

	t.Run("exactly at the boundary", func(t *testing.T) {
		start, err := checkClaim(active(time.Time{}), activated.Add(day), day)
		require.NoError(t, err)
		assert.Equal(t, activated, start)
	})

	t.Run("window starts at last claim", func(t *testing.T) {
		last := activated.Add(30 * time.Hour)
		_, err := checkClaim(active(last), activated.Add(50*time.Hour), day)
		assert.ErrorIs(t, err, ErrNotEligible)

		start, err := checkClaim(active(last), last.Add(day), day)
		require.NoError(t, err)
		assert.Equal(t, last, start)
	})
}

func TestClaimKeyIsStablePerWindow(t *testing.T) {
	m := &Machine{}
	m.ID[0] = 1
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	assert.Equal(t, ClaimKey(m.ID, start), ClaimKey(m.ID, start.In(time.FixedZone("WAT", 3600))))
	assert.NotEqual(t, ClaimKey(m.ID, start), ClaimKey(m.ID, start.Add(24*time.Hour)))
}

func TestLookupType(t *testing.T) {
	mt, ok := LookupType("pro")
	require.True(t, ok)
	assert.Equal(t, int64(160), mt.DailyRateED)

	_, ok = LookupType("quantum")
	assert.False(t, ok)
}
