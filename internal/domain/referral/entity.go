package referral

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Status of a referral
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Referral links a referrer to the account that signed up with their code.
type Referral struct {
	ID           uuid.UUID    `db:"id" json:"id"`
	ReferrerID   uuid.UUID    `db:"referrer_id" json:"referrer_id"`
	ReferredID   uuid.UUID    `db:"referred_id" json:"referred_id"`
	ReferralCode string       `db:"referral_code" json:"referral_code"`
	Status       Status       `db:"status" json:"status"`
	Bonus        int64        `db:"bonus" json:"bonus"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	CompletedAt  sql.NullTime `db:"completed_at" json:"-"`
}

// Outcome of an award attempt. Only OutcomeAwarded moves money.
type Outcome string

const (
	OutcomeAwarded          Outcome = "awarded"
	OutcomeNoReferral       Outcome = "no_referral"
	OutcomeNotEligible      Outcome = "not_eligible"
	OutcomeAlreadyCompleted Outcome = "already_completed"
)

// AwardResult reports what Award did.
type AwardResult struct {
	Outcome      Outcome   `json:"outcome"`
	ReferralID   uuid.UUID `json:"referral_id,omitempty"`
	Bonus        int64     `json:"bonus,omitempty"`
	MachineCount int       `json:"machine_count"`
}
