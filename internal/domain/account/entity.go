package account

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Account is created at signup; its id is the auth provider's user id.
type Account struct {
	ID                uuid.UUID      `db:"id"`
	ReferralCode      string         `db:"referral_code"`
	ReferredBy        sql.NullString `db:"referred_by"`
	InstantWithdrawal bool           `db:"instant_withdrawal"`
	CreatedAt         time.Time      `db:"created_at"`
}
