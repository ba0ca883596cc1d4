package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easydollars/easydollars-api/internal/domain/ledger"
)

func TestReconcileFindsDriftedBalance(t *testing.T) {
	db, engine, store, _ := setupEngine(t)
	ctx := context.Background()
	acc := createAccount(t, db)
	mint(t, engine, acc, ledger.ED, 300)

	_, err := db.Exec(`UPDATE balances SET amount = 999 WHERE account_id = $1 AND currency = 'ED'`, acc)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = db.Exec(`UPDATE balances SET amount = 300 WHERE account_id = $1 AND currency = 'ED'`, acc)
	})

	mismatches, err := store.Reconcile(ctx)
	require.NoError(t, err)

	var found *ledger.Mismatch
	for i := range mismatches {
		if mismatches[i].AccountID == acc {
			found = &mismatches[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, ledger.ED, found.Currency)
	assert.Equal(t, int64(999), found.Materialized)
	assert.Equal(t, int64(300), found.EntrySum)

	n, err := store.CheckConsistency(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
}
