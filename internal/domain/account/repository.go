package account

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

// CreateTx inserts the account unless it already exists. It reports whether a
// row was inserted.
func (r *Repository) CreateTx(ctx context.Context, tx *sqlx.Tx, a *Account) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (id, referral_code, referred_by, instant_withdrawal)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, a.ID, a.ReferralCode, a.ReferredBy, a.InstantWithdrawal)
	if err != nil {
		return false, database.Classify(err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return r.get(ctx, r.db, `SELECT * FROM accounts WHERE id = $1`, id)
}

func (r *Repository) GetByReferralCodeTx(ctx context.Context, tx *sqlx.Tx, code string) (*Account, error) {
	return r.get(ctx, tx, `SELECT * FROM accounts WHERE referral_code = $1`, code)
}

func (r *Repository) get(ctx context.Context, q sqlx.QueryerContext, query string, arg interface{}) (*Account, error) {
	var a Account
	err := sqlx.GetContext(ctx, q, &a, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, database.Classify(err)
	}
	return &a, nil
}

func (r *Repository) SetInstantWithdrawal(ctx context.Context, id uuid.UUID, instant bool) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `UPDATE accounts SET instant_withdrawal = $2 WHERE id = $1`, id, instant)
	if err != nil {
		return database.Classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAccountNotFound
	}
	return nil
}
