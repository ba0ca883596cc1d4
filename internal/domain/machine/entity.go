package machine

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Machine is the ownership record created when a purchase is confirmed.
type Machine struct {
	ID              uuid.UUID      `db:"id"`
	UserID          uuid.UUID      `db:"user_id"`
	MachineType     string         `db:"machine_type"`
	PaymentIntentID uuid.NullUUID  `db:"payment_intent_id"`
	PurchaseRef     sql.NullString `db:"purchase_ref"`
	PurchasedAt     time.Time      `db:"purchased_at"`
	ActivatedAt     sql.NullTime   `db:"activated_at"`
	LastClaimAt     sql.NullTime   `db:"last_claim_at"`
	TotalEarned     int64          `db:"total_earned"`
	IsActive        bool           `db:"is_active"`
}

// ClaimResult is returned by a successful claim.
type ClaimResult struct {
	MachineID   uuid.UUID `json:"machine_id"`
	Amount      int64     `json:"amount"`
	WindowStart time.Time `json:"window_start"`
	ClaimedAt   time.Time `json:"claimed_at"`
	NextClaimAt time.Time `json:"next_claim_at"`
	TotalEarned int64     `json:"total_earned"`
	BalanceED   int64     `json:"balance_ed"`
}
