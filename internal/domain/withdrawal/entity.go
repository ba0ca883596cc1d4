package withdrawal

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Status of a withdrawal request
type Status string

const (
	StatusPending        Status = "pending"
	StatusAwaitingReview Status = "awaiting_review"
	StatusApproved       Status = "approved"
	StatusRejected       Status = "rejected"
)

// Request is a user's ask to pay XAF out to a mobile money wallet.
// No funds are held while it waits; the debit happens at approval.
type Request struct {
	ID                uuid.UUID      `db:"id"`
	UserID            uuid.UUID      `db:"user_id"`
	Amount            int64          `db:"amount"`
	Method            string         `db:"method"`
	Destination       string         `db:"destination"`
	Status            Status         `db:"status"`
	LedgerOperationID uuid.NullUUID  `db:"ledger_operation_id"`
	ReviewedBy        uuid.NullUUID  `db:"reviewed_by"`
	RejectReason      sql.NullString `db:"reject_reason"`
	CreatedAt         time.Time      `db:"created_at"`
	DecidedAt         sql.NullTime   `db:"decided_at"`
}
