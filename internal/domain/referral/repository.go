package referral

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

var errNotFound = errors.New("referral not found")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// CreatePendingTx records a referral at signup.
func (r *Repository) CreatePendingTx(ctx context.Context, tx *sqlx.Tx, referrerID, referredID uuid.UUID, code string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO referrals (id, referrer_id, referred_id, referral_code, status, bonus)
		VALUES ($1, $2, $3, $4, 'pending', 0)
		ON CONFLICT (referred_id) DO NOTHING
	`, uuid.New(), referrerID, referredID, code)
	return database.Classify(err)
}

func (r *Repository) getByReferredTx(ctx context.Context, tx *sqlx.Tx, referredID uuid.UUID) (*Referral, error) {
	var ref Referral
	err := tx.GetContext(ctx, &ref, `SELECT * FROM referrals WHERE referred_id = $1 FOR UPDATE`, referredID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, database.Classify(err)
	}
	return &ref, nil
}

// completeTx is the single conditional transition pending -> completed.
// It reports false when the referral was no longer pending.
func (r *Repository) completeTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, bonus int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE referrals
		SET status = 'completed', bonus = $2, completed_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id, bonus)
	if err != nil {
		return false, database.Classify(err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// ListByReferrer returns the referrals a user has made, newest first.
func (r *Repository) ListByReferrer(ctx context.Context, referrerID uuid.UUID) ([]Referral, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	out := []Referral{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT * FROM referrals WHERE referrer_id = $1 ORDER BY created_at DESC
	`, referrerID)
	return out, database.Classify(err)
}

// ListAwardable returns referred users whose referral is still pending but
// who already own exactly one machine.
func (r *Repository) ListAwardable(ctx context.Context, limit int) ([]uuid.UUID, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, `
		SELECT r.referred_id
		FROM referrals r
		WHERE r.status = 'pending'
		  AND (SELECT COUNT(*) FROM machines m WHERE m.user_id = r.referred_id) = 1
		ORDER BY r.created_at
		LIMIT $1
	`, limit)
	return ids, database.Classify(err)
}
