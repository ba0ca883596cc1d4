package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/easydollars/easydollars-api/internal/pkg/database"
)

const queryTimeout = 3 * time.Second

// Store persists balances and the append-only entry log.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// ApplyEntries applies legs as one atomic unit in its own transaction.
func (s *Store) ApplyEntries(ctx context.Context, opKey, reference string, legs []Leg) ([]Entry, []Balance, error) {
	var (
		entries  []Entry
		balances []Balance
	)
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		entries, balances, err = s.ApplyEntriesTx(ctx, tx, uuid.New(), opKey, reference, legs)
		return err
	})
	return entries, balances, err
}

// ApplyEntriesTx locks every touched balance in a fixed order, checks that no
// balance goes negative, then writes the entries and the new balances.
//
// If entries for opKey already exist they are returned unchanged and no
// balance is touched.
func (s *Store) ApplyEntriesTx(ctx context.Context, tx *sqlx.Tx, operationID uuid.UUID, opKey, reference string, legs []Leg) ([]Entry, []Balance, error) {
	keys := lockOrder(legs)

	current := make(map[balanceKey]int64, len(keys))
	for _, k := range keys {
		amount, err := s.lockBalance(ctx, tx, k)
		if err != nil {
			return nil, nil, err
		}
		current[k] = amount
	}

	existing, err := s.entriesByKeyPrefix(ctx, tx, opKey, len(legs))
	if err != nil {
		return nil, nil, err
	}
	if len(existing) > 0 {
		if len(existing) != len(legs) {
			return nil, nil, fmt.Errorf("%w: %d of %d entries for %s exist", ErrConflict, len(existing), len(legs), opKey)
		}
		return existing, snapshot(keys, current), nil
	}

	next, err := plan(current, legs)
	if err != nil {
		return nil, nil, err
	}

	entries := make([]Entry, 0, len(legs))
	for i, leg := range legs {
		e := Entry{
			ID:             uuid.New(),
			OperationID:    operationID,
			AccountID:      leg.AccountID,
			Currency:       leg.Currency,
			Amount:         leg.Amount,
			Reason:         leg.Reason,
			IdempotencyKey: entryKey(opKey, i),
			Reference:      reference,
		}
		err := tx.GetContext(ctx, &e.CreatedAt, `
			INSERT INTO ledger_entries (id, operation_id, account_id, currency, amount, reason, idempotency_key, reference)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
			RETURNING created_at
		`, e.ID, e.OperationID, e.AccountID, e.Currency, e.Amount, e.Reason, e.IdempotencyKey, e.Reference)
		if err != nil {
			return nil, nil, database.Classify(fmt.Errorf("insert entry %s: %w", e.IdempotencyKey, err))
		}
		entries = append(entries, e)
	}

	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, `
			UPDATE balances SET amount = $3, updated_at = now()
			WHERE account_id = $1 AND currency = $2
		`, k.AccountID, k.Currency, next[k]); err != nil {
			return nil, nil, database.Classify(fmt.Errorf("update balance %s: %w", k, err))
		}
	}

	return entries, snapshot(keys, next), nil
}

func (s *Store) lockBalance(ctx context.Context, tx *sqlx.Tx, k balanceKey) (int64, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO balances (account_id, currency, amount)
		VALUES ($1, $2, 0)
		ON CONFLICT (account_id, currency) DO NOTHING
	`, k.AccountID, k.Currency); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return 0, fmt.Errorf("%w: %s", ErrAccountNotFound, k.AccountID)
		}
		return 0, database.Classify(fmt.Errorf("ensure balance %s: %w", k, err))
	}

	var amount int64
	err := tx.GetContext(ctx, &amount, `
		SELECT amount FROM balances WHERE account_id = $1 AND currency = $2 FOR UPDATE
	`, k.AccountID, k.Currency)
	if err != nil {
		return 0, database.Classify(fmt.Errorf("lock balance %s: %w", k, err))
	}
	return amount, nil
}

func (s *Store) entriesByKeyPrefix(ctx context.Context, q sqlx.QueryerContext, opKey string, n int) ([]Entry, error) {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = entryKey(opKey, i)
	}

	var entries []Entry
	err := sqlx.SelectContext(ctx, q, &entries, `
		SELECT id, operation_id, account_id, currency, amount, reason, idempotency_key,
		       COALESCE(reference, '') AS reference, created_at
		FROM ledger_entries
		WHERE idempotency_key = ANY($1)
		ORDER BY idempotency_key
	`, pq.Array(keys))
	if err != nil {
		return nil, database.Classify(fmt.Errorf("lookup entries for %s: %w", opKey, err))
	}
	return entries, nil
}

func snapshot(keys []balanceKey, amounts map[balanceKey]int64) []Balance {
	out := make([]Balance, 0, len(keys))
	for _, k := range keys {
		out = append(out, Balance{AccountID: k.AccountID, Currency: k.Currency, Amount: amounts[k]})
	}
	return out
}

// GetBalance returns the materialized balance; a missing row is zero.
func (s *Store) GetBalance(ctx context.Context, accountID uuid.UUID, currency Currency) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var amount int64
	err := s.db.GetContext(ctx, &amount, `
		SELECT COALESCE((SELECT amount FROM balances WHERE account_id = $1 AND currency = $2), 0)
	`, accountID, currency)
	if err != nil {
		return 0, database.Classify(err)
	}
	return amount, nil
}

// GetBalances returns both currency balances for an account.
func (s *Store) GetBalances(ctx context.Context, accountID uuid.UUID) (map[Currency]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var rows []Balance
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT account_id, currency, amount FROM balances WHERE account_id = $1
	`, accountID); err != nil {
		return nil, database.Classify(err)
	}

	out := map[Currency]int64{XAF: 0, ED: 0}
	for _, b := range rows {
		out[b.Currency] = b.Amount
	}
	return out, nil
}

// ListEntries returns an account's entries, newest first.
func (s *Store) ListEntries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]Entry, int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM ledger_entries WHERE account_id = $1`, accountID); err != nil {
		return nil, 0, database.Classify(err)
	}

	entries := []Entry{}
	err := s.db.SelectContext(ctx, &entries, `
		SELECT id, operation_id, account_id, currency, amount, reason, idempotency_key,
		       COALESCE(reference, '') AS reference, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC, idempotency_key DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, 0, database.Classify(err)
	}
	return entries, total, nil
}

// Reconcile compares every materialized balance with the sum of its entries.
func (s *Store) Reconcile(ctx context.Context) ([]Mismatch, error) {
	var out []Mismatch
	err := s.db.SelectContext(ctx, &out, `
		SELECT b.account_id, b.currency, b.amount AS materialized, COALESCE(e.total, 0) AS entry_sum
		FROM balances b
		LEFT JOIN (
			SELECT account_id, currency, SUM(amount)::BIGINT AS total
			FROM ledger_entries
			GROUP BY account_id, currency
		) e ON e.account_id = b.account_id AND e.currency = b.currency
		WHERE b.amount <> COALESCE(e.total, 0)
	`)
	if err != nil {
		return nil, database.Classify(fmt.Errorf("reconcile: %w", err))
	}
	return out, nil
}
