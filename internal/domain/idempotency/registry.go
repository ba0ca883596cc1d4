package idempotency

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/easydollars/easydollars-api/internal/pkg/database"
)

const queryTimeout = 3 * time.Second

// Registry records which money-moving requests were already processed.
type Registry struct {
	db         *sqlx.DB
	staleAfter time.Duration
}

func NewRegistry(db *sqlx.DB, staleAfter time.Duration) *Registry {
	return &Registry{db: db, staleAfter: staleAfter}
}

// CheckAndReserve claims key for the caller in its own statement. A caller
// that gets a non-replayed reservation must call Complete or Release.
func (r *Registry) CheckAndReserve(ctx context.Context, key, scope, requestHash string) (*Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return r.reserve(ctx, r.db, key, scope, requestHash, false)
}

// ReserveTx claims key inside tx. A concurrent transaction holding the same
// key blocks this call until it commits or rolls back.
func (r *Registry) ReserveTx(ctx context.Context, tx *sqlx.Tx, key, scope, requestHash string) (*Reservation, error) {
	return r.reserve(ctx, tx, key, scope, requestHash, true)
}

func (r *Registry) reserve(ctx context.Context, q sqlx.ExtContext, key, scope, requestHash string, lock bool) (*Reservation, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO idempotency_keys (key, scope, request_hash, status, locked_at)
		VALUES ($1, $2, $3, 'in_progress', clock_timestamp())
		ON CONFLICT (key) DO NOTHING
	`, key, scope, requestHash)
	if err != nil {
		return nil, database.Classify(fmt.Errorf("reserve %s: %w", key, err))
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return &Reservation{Key: key}, nil
	}

	var row struct {
		Record
		Now time.Time `db:"db_now"`
	}
	query := `
		SELECT key, scope, request_hash, status, outcome, locked_at, completed_at, created_at,
		       clock_timestamp() AS db_now
		FROM idempotency_keys
		WHERE key = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	if err := sqlx.GetContext(ctx, q, &row, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Released between our insert and read; the caller retries.
			return nil, ErrInProgress
		}
		return nil, database.Classify(fmt.Errorf("read %s: %w", key, err))
	}

	switch decide(&row.Record, requestHash, row.Now, r.staleAfter) {
	case decisionReplay:
		return &Reservation{Key: key, Replayed: true, Outcome: row.Outcome}, nil
	case decisionConflict:
		log.Warn().
			Str("key", key).
			Str("scope", scope).
			Msg("Idempotency key reused with different parameters")
		return nil, ErrConflict
	case decisionBusy:
		return nil, ErrInProgress
	}

	res, err = q.ExecContext(ctx, `
		UPDATE idempotency_keys
		SET status = 'in_progress', locked_at = clock_timestamp(), outcome = NULL, completed_at = NULL
		WHERE key = $1 AND status = $2 AND locked_at = $3
	`, key, row.Status, row.LockedAt)
	if err != nil {
		return nil, database.Classify(fmt.Errorf("reclaim %s: %w", key, err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrInProgress
	}

	log.Warn().
		Str("key", key).
		Str("scope", row.Scope).
		Str("previous_status", string(row.Status)).
		Time("locked_at", row.LockedAt).
		Msg("Reclaimed stale idempotency reservation; audit the previous attempt")

	return &Reservation{Key: key, Reclaimed: true}, nil
}

// Complete stores outcome for key and marks it processed.
func (r *Registry) Complete(ctx context.Context, key string, outcome interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return r.complete(ctx, r.db, key, outcome)
}

// CompleteTx is Complete inside tx; the outcome commits with the operation.
func (r *Registry) CompleteTx(ctx context.Context, tx *sqlx.Tx, key string, outcome interface{}) error {
	return r.complete(ctx, tx, key, outcome)
}

func (r *Registry) complete(ctx context.Context, q sqlx.ExecerContext, key string, outcome interface{}) error {
	raw, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encode outcome for %s: %w", key, err)
	}

	res, err := q.ExecContext(ctx, `
		UPDATE idempotency_keys
		SET status = 'completed', outcome = $2::jsonb, completed_at = now()
		WHERE key = $1 AND status = 'in_progress'
	`, key, string(raw))
	if err != nil {
		return database.Classify(fmt.Errorf("complete %s: %w", key, err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotReserved
	}
	return nil
}

// Release drops an in-progress reservation so the request can be retried.
func (r *Registry) Release(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE key = $1 AND status = 'in_progress'`, key)
	if err != nil {
		return database.Classify(fmt.Errorf("release %s: %w", key, err))
	}
	return nil
}

// Get returns the record for key.
func (r *Registry) Get(ctx context.Context, key string) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var rec Record
	err := r.db.GetContext(ctx, &rec, `
		SELECT key, scope, request_hash, status, outcome, locked_at, completed_at, created_at
		FROM idempotency_keys WHERE key = $1
	`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotReserved
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// FailStale marks reservations held longer than the stale threshold as failed
// so a retry can reclaim them. Each one is logged for manual audit. An empty
// scope matches every key.
func (r *Registry) FailStale(ctx context.Context, scope string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var stale []struct {
		Key      string    `db:"key"`
		Scope    string    `db:"scope"`
		LockedAt time.Time `db:"locked_at"`
	}
	err := r.db.SelectContext(ctx, &stale, `
		UPDATE idempotency_keys
		SET status = 'failed'
		WHERE status = 'in_progress'
		  AND locked_at < now() - make_interval(secs => $1)
		  AND ($2 = '' OR scope = $2)
		RETURNING key, scope, locked_at
	`, r.staleAfter.Seconds(), scope)
	if err != nil {
		return 0, database.Classify(fmt.Errorf("fail stale reservations: %w", err))
	}

	for _, s := range stale {
		log.Warn().
			Str("key", s.Key).
			Str("scope", s.Scope).
			Time("locked_at", s.LockedAt).
			Msg("Stale idempotency reservation marked failed; audit the abandoned attempt")
	}
	return len(stale), nil
}
