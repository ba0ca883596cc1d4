package machine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/easydollars/easydollars-api/internal/pkg/database"
)

const queryTimeout = 3 * time.Second

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// CreateForPaymentTx records the machine bought through paymentIntentID.
// A second call for the same intent is a no-op and reports created=false.
func (r *Repository) CreateForPaymentTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, machineType string, paymentIntentID uuid.UUID) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO machines (id, user_id, machine_type, payment_intent_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (payment_intent_id) DO NOTHING
	`, uuid.New(), userID, machineType, paymentIntentID)
	if err != nil {
		return false, database.Classify(err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// CreateForPurchaseTx records a machine paid from the XAF balance.
func (r *Repository) CreateForPurchaseTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, machineType, purchaseRef string) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO machines (id, user_id, machine_type, purchase_ref)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (purchase_ref) DO NOTHING
	`, uuid.New(), userID, machineType, purchaseRef)
	if err != nil {
		return false, database.Classify(err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// CountByUserTx counts the machines a user owns as seen by tx.
func (r *Repository) CountByUserTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (int, error) {
	var n int
	err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM machines WHERE user_id = $1`, userID)
	return n, database.Classify(err)
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]Machine, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	machines := []Machine{}
	err := r.db.SelectContext(ctx, &machines, `
		SELECT * FROM machines WHERE user_id = $1 ORDER BY purchased_at DESC
	`, userID)
	if err != nil {
		return nil, database.Classify(err)
	}
	return machines, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Machine, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var m Machine
	err := r.db.GetContext(ctx, &m, `SELECT * FROM machines WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMachineNotFound
	}
	if err != nil {
		return nil, database.Classify(err)
	}
	return &m, nil
}

// lockOwnedTx locks the user's machine row for the rest of tx.
func (r *Repository) lockOwnedTx(ctx context.Context, tx *sqlx.Tx, userID, id uuid.UUID) (*Machine, error) {
	var m Machine
	err := tx.GetContext(ctx, &m, `
		SELECT * FROM machines WHERE id = $1 AND user_id = $2 FOR UPDATE
	`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMachineNotFound
	}
	if err != nil {
		return nil, database.Classify(err)
	}
	return &m, nil
}

// activate sets activated_at once. It reports false when the machine was
// already active.
func (r *Repository) activate(ctx context.Context, userID, id uuid.UUID, at time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE machines SET activated_at = $3, is_active = TRUE
		WHERE id = $1 AND user_id = $2 AND activated_at IS NULL
	`, id, userID, at)
	if err != nil {
		return false, database.Classify(err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *Repository) recordClaimTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, at time.Time, amount int64) (int64, error) {
	var total int64
	err := tx.GetContext(ctx, &total, `
		UPDATE machines SET last_claim_at = $2, total_earned = total_earned + $3
		WHERE id = $1
		RETURNING total_earned
	`, id, at, amount)
	return total, database.Classify(err)
}
