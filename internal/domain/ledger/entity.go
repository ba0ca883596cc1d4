package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Currency of a balance. Amounts are integers in the smallest unit.
type Currency string

const (
	XAF Currency = "XAF" // spendable
	ED  Currency = "ED"  // Easy Dollars token
)

func (c Currency) Valid() bool {
	return c == XAF || c == ED
}

// Reason codes recorded on every entry.
type Reason string

const (
	ReasonPurchase         Reason = "purchase"
	ReasonReferralBonus    Reason = "referral_bonus"
	ReasonDailyClaim       Reason = "daily_claim"
	ReasonConversionDebit  Reason = "conversion_debit"
	ReasonConversionCredit Reason = "conversion_credit"
	ReasonWithdrawal       Reason = "withdrawal"
)

// Kind says which balance invariant an operation must satisfy.
type Kind string

const (
	// KindTransfer moves value between accounts; legs sum to zero per currency.
	KindTransfer Kind = "transfer"
	// KindMint credits value that enters from outside the ledger (bonuses, earnings).
	KindMint Kind = "mint"
	// KindBurn debits value that leaves the ledger (withdrawals, balance purchases).
	KindBurn Kind = "burn"
	// KindExchange debits one currency and credits another on the same account.
	KindExchange Kind = "exchange"
)

// Leg is one signed balance change inside an operation.
type Leg struct {
	AccountID uuid.UUID `json:"account_id"`
	Currency  Currency  `json:"currency"`
	Amount    int64     `json:"amount"`
	Reason    Reason    `json:"reason"`
}

// Operation is the unit of work the Engine executes exactly once per Key.
type Operation struct {
	Key       string
	Kind      Kind
	Reference string
	Legs      []Leg

	// Precondition runs inside the operation's transaction after the key is
	// reserved and before any balance changes. Returning an error aborts the
	// whole operation.
	Precondition func(ctx context.Context, tx *sqlx.Tx) error
}

// Entry is an immutable ledger row.
type Entry struct {
	ID             uuid.UUID `db:"id" json:"id"`
	OperationID    uuid.UUID `db:"operation_id" json:"operation_id"`
	AccountID      uuid.UUID `db:"account_id" json:"account_id"`
	Currency       Currency  `db:"currency" json:"currency"`
	Amount         int64     `db:"amount" json:"amount"`
	Reason         Reason    `db:"reason" json:"reason"`
	IdempotencyKey string    `db:"idempotency_key" json:"idempotency_key"`
	Reference      string    `db:"reference" json:"reference,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Balance is the materialized balance of one account in one currency.
type Balance struct {
	AccountID uuid.UUID `db:"account_id" json:"account_id"`
	Currency  Currency  `db:"currency" json:"currency"`
	Amount    int64     `db:"amount" json:"amount"`
}

// Result is returned by Engine.Execute and stored as the idempotent outcome.
type Result struct {
	OperationID uuid.UUID `json:"operation_id"`
	Key         string    `json:"key"`
	Kind        Kind      `json:"kind"`
	Entries     []Entry   `json:"entries"`
	Balances    []Balance `json:"balances"`
	Replayed    bool      `json:"replayed,omitempty"`
}

// BalanceOf returns the post-operation balance for account and currency.
func (r *Result) BalanceOf(accountID uuid.UUID, currency Currency) (int64, bool) {
	for _, b := range r.Balances {
		if b.AccountID == accountID && b.Currency == currency {
			return b.Amount, true
		}
	}
	return 0, false
}

// Mismatch is a materialized balance that disagrees with its entry sum.
type Mismatch struct {
	AccountID    uuid.UUID `db:"account_id" json:"account_id"`
	Currency     Currency  `db:"currency" json:"currency"`
	Materialized int64     `db:"materialized" json:"materialized"`
	EntrySum     int64     `db:"entry_sum" json:"entry_sum"`
}
