package withdrawal

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

// Create inserts req unless a request with the same id exists. It reports
// false when the row was already there.
func (r *Repository) Create(ctx context.Context, req *Request) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	err := r.db.GetContext(ctx, &req.CreatedAt, `
		INSERT INTO withdrawal_requests (id, user_id, amount, method, destination, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
		RETURNING created_at
	`, req.ID, req.UserID, req.Amount, req.Method, req.Destination, req.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, database.Classify(err)
	}
	return true, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var req Request
	err := r.db.GetContext(ctx, &req, `SELECT * FROM withdrawal_requests WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, database.Classify(err)
	}
	return &req, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Request, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	items := []*Request{}
	err := r.db.SelectContext(ctx, &items, `
		SELECT * FROM withdrawal_requests
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, database.Classify(err)
	}
	return items, nil
}

// ListAwaitingReview returns the admin queue, oldest first.
func (r *Repository) ListAwaitingReview(ctx context.Context, limit, offset int) ([]*Request, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	items := []*Request{}
	err := r.db.SelectContext(ctx, &items, `
		SELECT * FROM withdrawal_requests
		WHERE status = 'awaiting_review'
		ORDER BY created_at
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, database.Classify(err)
	}
	return items, nil
}

func (r *Repository) lockTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*Request, error) {
	var req Request
	err := tx.GetContext(ctx, &req, `SELECT * FROM withdrawal_requests WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, database.Classify(err)
	}
	return &req, nil
}

func (r *Repository) approveTx(ctx context.Context, tx *sqlx.Tx, id, operationID uuid.UUID, reviewer uuid.NullUUID) (*Request, error) {
	var req Request
	err := tx.GetContext(ctx, &req, `
		UPDATE withdrawal_requests
		SET status = 'approved', ledger_operation_id = $2, reviewed_by = $3, decided_at = now()
		WHERE id = $1 AND status IN ('pending', 'awaiting_review')
		RETURNING *
	`, id, operationID, reviewer)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, database.Classify(err)
	}
	return &req, nil
}

// reject is conditional on the request being undecided. It reports false
// when no row changed.
func (r *Repository) reject(ctx context.Context, id, reviewer uuid.UUID, reason string) (*Request, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var req Request
	err := r.db.GetContext(ctx, &req, `
		UPDATE withdrawal_requests
		SET status = 'rejected', reviewed_by = $2, reject_reason = $3, decided_at = now()
		WHERE id = $1 AND status IN ('pending', 'awaiting_review')
		RETURNING *
	`, id, reviewer, reason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, database.Classify(err)
	}
	return &req, true, nil
}

func (r *Repository) moveToReview(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		UPDATE withdrawal_requests SET status = 'awaiting_review'
		WHERE id = $1 AND status = 'pending'
	`, id)
	return database.Classify(err)
}
