package payment

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

// Repository defines payment intent data access
type Repository interface {
	CreateOrGet(ctx context.Context, intent *Intent) (*Intent, error)
	SetProviderHandle(ctx context.Context, id uuid.UUID, handle string) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Intent, error)
	GetByExternalIDForUpdate(ctx context.Context, tx *sqlx.Tx, externalID string) (*Intent, error)
	Settle(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status Status, providerTxID string, raw []byte) (bool, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates payment intent repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

// CreateOrGet inserts the intent unless one with the same external id exists,
// and returns whichever row is stored.
func (r *repository) CreateOrGet(ctx context.Context, intent *Intent) (*Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_intents (id, external_id, user_id, machine_type, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending')
		ON CONFLICT (external_id) DO NOTHING
	`, intent.ID, intent.ExternalID, intent.UserID, intent.MachineType, intent.Amount, intent.Currency)
	if err != nil {
		return nil, database.Classify(err)
	}

	var stored Intent
	err = r.db.GetContext(ctx, &stored, `SELECT * FROM payment_intents WHERE external_id = $1`, intent.ExternalID)
	if err != nil {
		return nil, database.Classify(err)
	}
	return &stored, nil
}

func (r *repository) SetProviderHandle(ctx context.Context, id uuid.UUID, handle string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `UPDATE payment_intents SET provider_handle = $2 WHERE id = $1`, id, handle)
	return database.Classify(err)
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	intents := []*Intent{}
	err := r.db.SelectContext(ctx, &intents, `
		SELECT * FROM payment_intents
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, database.Classify(err)
	}
	return intents, nil
}

func (r *repository) GetByExternalIDForUpdate(ctx context.Context, tx *sqlx.Tx, externalID string) (*Intent, error) {
	var intent Intent
	err := tx.GetContext(ctx, &intent, `SELECT * FROM payment_intents WHERE external_id = $1 FOR UPDATE`, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrIntentNotFound
	}
	if err != nil {
		return nil, database.Classify(err)
	}
	return &intent, nil
}

// Settle is the single conditional transition out of pending. It reports
// false when the intent was no longer pending.
func (r *repository) Settle(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status Status, providerTxID string, raw []byte) (bool, error) {
	var rawArg interface{}
	if len(raw) > 0 {
		rawArg = string(raw)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE payment_intents
		SET status = $2, provider_tx_id = $3, raw_callback = $4, settled_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id, status, providerTxID, rawArg)
	if err != nil {
		return false, database.Classify(err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}
