package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"

	"github.com/easydollars/easydollars-api/internal/domain/idempotency"
	"github.com/easydollars/easydollars-api/internal/pkg/database"
	"github.com/easydollars/easydollars-api/internal/pkg/feed"
	"github.com/easydollars/easydollars-api/internal/pkg/logger"
)

const registryScope = "ledger"

// Registry is the part of the idempotency registry the engine needs.
type Registry interface {
	ReserveTx(ctx context.Context, tx *sqlx.Tx, key, scope, requestHash string) (*idempotency.Reservation, error)
	CompleteTx(ctx context.Context, tx *sqlx.Tx, key string, outcome interface{}) error
}

// Emitter receives committed operations for the transaction feed.
type Emitter interface {
	Emit(ctx context.Context, events ...feed.Event)
}

// Engine is the single path through which balances change.
type Engine struct {
	db       *sqlx.DB
	store    *Store
	registry Registry
	emitter  Emitter
	timeout  time.Duration
	retries  uint64
}

func NewEngine(db *sqlx.DB, store *Store, registry Registry, emitter Emitter, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Engine{
		db:       db,
		store:    store,
		registry: registry,
		emitter:  emitter,
		timeout:  timeout,
		retries:  3,
	}
}

// Execute runs op in its own transaction, retrying transient failures with
// backoff under the same idempotency key. A retry after a commit whose
// acknowledgement was lost lands on the stored outcome.
func (e *Engine) Execute(ctx context.Context, op Operation) (*Result, error) {
	if err := validate(op); err != nil {
		return nil, err
	}

	start := time.Now()
	reason := reasonLabel(op)

	var result *Result
	backoff := retry.WithMaxRetries(e.retries, retry.NewExponential(50*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, err := e.executeOnce(ctx, op)
		if err != nil {
			if errors.Is(err, ErrTransient) {
				transientRetries.Inc()
				logger.FromContext(ctx).Warn().Err(err).Str("key", op.Key).Msg("Transient ledger failure, retrying")
				return retry.RetryableError(err)
			}
			return err
		}
		result = res
		return nil
	})

	operationDuration.WithLabelValues(reason).Observe(time.Since(start).Seconds())
	operationsTotal.WithLabelValues(reason, outcomeLabel(err, result != nil && result.Replayed)).Inc()

	if err != nil {
		return nil, err
	}
	e.Publish(ctx, result)
	return result, nil
}

func (e *Engine) executeOnce(ctx context.Context, op Operation) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var result *Result
	err := database.WithTx(ctx, e.db, func(tx *sqlx.Tx) error {
		var err error
		result, err = e.ExecuteTx(ctx, tx, op)
		return err
	})
	if err != nil {
		return nil, database.Classify(err)
	}
	return result, nil
}

// ExecuteTx runs op inside a caller-owned transaction so that the caller's
// own state change commits or rolls back together with the ledger write.
// Callers should Publish the result after committing.
func (e *Engine) ExecuteTx(ctx context.Context, tx *sqlx.Tx, op Operation) (*Result, error) {
	if err := validate(op); err != nil {
		return nil, err
	}

	reservation, err := e.registry.ReserveTx(ctx, tx, op.Key, registryScope, idempotency.Hash(op.Kind, op.Legs))
	switch {
	case errors.Is(err, idempotency.ErrConflict):
		log.Error().Str("key", op.Key).Msg("Ledger idempotency key reused for a different operation")
		return nil, fmt.Errorf("%w: %s", ErrConflict, op.Key)
	case errors.Is(err, idempotency.ErrInProgress):
		return nil, fmt.Errorf("%w: %s is in progress", ErrTransient, op.Key)
	case err != nil:
		return nil, err
	}

	if reservation.Replayed {
		var stored Result
		if err := reservation.Decode(&stored); err != nil {
			return nil, fmt.Errorf("decode stored outcome for %s: %w", op.Key, err)
		}
		stored.Replayed = true
		return &stored, nil
	}

	if op.Precondition != nil {
		if err := op.Precondition(ctx, tx); err != nil {
			return nil, err
		}
	}

	opID := uuid.New()
	entries, balances, err := e.store.ApplyEntriesTx(ctx, tx, opID, op.Key, op.Reference, op.Legs)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		opID = entries[0].OperationID
	}

	result := &Result{
		OperationID: opID,
		Key:         op.Key,
		Kind:        op.Kind,
		Entries:     entries,
		Balances:    balances,
	}
	if err := e.registry.CompleteTx(ctx, tx, op.Key, result); err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info().
		Str("key", op.Key).
		Str("kind", string(op.Kind)).
		Str("operation_id", opID.String()).
		Int("entries", len(entries)).
		Msg("Ledger operation applied")

	return result, nil
}

// Publish hands a committed result to the feed. Replays are not re-announced.
func (e *Engine) Publish(ctx context.Context, result *Result) {
	if e.emitter == nil || result == nil || result.Replayed {
		return
	}
	events := make([]feed.Event, 0, len(result.Entries))
	for _, entry := range result.Entries {
		events = append(events, feed.Event{
			ID:          entry.ID,
			OperationID: entry.OperationID,
			UserID:      entry.AccountID,
			Currency:    string(entry.Currency),
			Amount:      entry.Amount,
			Reason:      string(entry.Reason),
			Reference:   entry.Reference,
			CreatedAt:   entry.CreatedAt,
		})
	}
	e.emitter.Emit(ctx, events...)
}

// Balance returns the current balance of account in currency.
func (e *Engine) Balance(ctx context.Context, accountID uuid.UUID, currency Currency) (int64, error) {
	return e.store.GetBalance(ctx, accountID, currency)
}

// Balances returns both balances of an account.
func (e *Engine) Balances(ctx context.Context, accountID uuid.UUID) (map[Currency]int64, error) {
	return e.store.GetBalances(ctx, accountID)
}

func reasonLabel(op Operation) string {
	if len(op.Legs) == 0 {
		return "unknown"
	}
	return string(op.Legs[0].Reason)
}
