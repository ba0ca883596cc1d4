package withdrawal_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easydollars/easydollars-api/internal/domain/account"
	"github.com/easydollars/easydollars-api/internal/domain/idempotency"
	"github.com/easydollars/easydollars-api/internal/domain/ledger"
	"github.com/easydollars/easydollars-api/internal/domain/withdrawal"
	"github.com/easydollars/easydollars-api/internal/pkg/database/dbtest"
)

type env struct {
	db       *sqlx.DB
	engine   *ledger.Engine
	accounts *account.Repository
	svc      *withdrawal.Service
}

func setup(t *testing.T) *env {
	t.Helper()
	db := dbtest.Setup(t)
	store := ledger.NewStore(db)
	engine := ledger.NewEngine(db, store, idempotency.NewRegistry(db, time.Minute), nil, 5*time.Second)
	accounts := account.NewRepository(db)
	return &env{
		db:       db,
		engine:   engine,
		accounts: accounts,
		svc:      withdrawal.NewService(db, withdrawal.NewRepository(db), accounts, engine, 1000),
	}
}

func (e *env) fundedAccount(t *testing.T, xaf int64) uuid.UUID {
	t.Helper()
	id := dbtest.CreateAccount(t, e.db)
	_, err := e.engine.Execute(context.Background(), ledger.Operation{
		Key:  "seed:" + uuid.NewString(),
		Kind: ledger.KindMint,
		Legs: []ledger.Leg{{AccountID: id, Currency: ledger.XAF, Amount: xaf, Reason: ledger.ReasonReferralBonus}},
	})
	require.NoError(t, err)
	return id
}

func payout(amount int64) withdrawal.CreateRequest {
	return withdrawal.CreateRequest{Amount: amount, Method: "mtn_momo", Destination: "237670000000"}
}

func TestRequestQueuesForReview(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	user := e.fundedAccount(t, 5000)

	_, err := e.svc.Request(ctx, user, payout(999), uuid.NewString())
	assert.ErrorIs(t, err, withdrawal.ErrBelowMinimum)

	_, err = e.svc.Request(ctx, user, payout(6000), uuid.NewString())
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	w, err := e.svc.Request(ctx, user, payout(3000), uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, withdrawal.StatusAwaitingReview, w.Status)

	balance, err := e.engine.Balance(ctx, user, ledger.XAF)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), balance, "no funds are held before approval")

	admin := uuid.New()
	approved, err := e.svc.Approve(ctx, w.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, withdrawal.StatusApproved, approved.Status)
	assert.True(t, approved.LedgerOperationID.Valid)

	again, err := e.svc.Approve(ctx, w.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, approved.LedgerOperationID, again.LedgerOperationID)

	balance, err = e.engine.Balance(ctx, user, ledger.XAF)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), balance)

	_, err = e.svc.Reject(ctx, w.ID, admin, "too late")
	assert.ErrorIs(t, err, withdrawal.ErrInvalidTransition)
}

func TestApprovalWithoutFundsStaysInReview(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	user := e.fundedAccount(t, 3000)

	first, err := e.svc.Request(ctx, user, payout(2000), "first")
	require.NoError(t, err)
	second, err := e.svc.Request(ctx, user, payout(2000), "second")
	require.NoError(t, err)

	_, err = e.svc.Approve(ctx, first.ID, uuid.New())
	require.NoError(t, err)

	_, err = e.svc.Approve(ctx, second.ID, uuid.New())
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	pending, err := e.svc.ListByUser(ctx, user, 10, 0)
	require.NoError(t, err)
	statuses := map[uuid.UUID]withdrawal.Status{}
	for _, w := range pending {
		statuses[w.ID] = w.Status
	}
	assert.Equal(t, withdrawal.StatusAwaitingReview, statuses[second.ID])

	rejected, err := e.svc.Reject(ctx, second.ID, uuid.New(), "insufficient balance")
	require.NoError(t, err)
	assert.Equal(t, withdrawal.StatusRejected, rejected.Status)

	_, err = e.svc.Approve(ctx, second.ID, uuid.New())
	assert.ErrorIs(t, err, withdrawal.ErrInvalidTransition)
}

func TestConcurrentApprovalsDebitOnce(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	user := e.fundedAccount(t, 10000)

	w, err := e.svc.Request(ctx, user, payout(4000), uuid.NewString())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.svc.Approve(ctx, w.ID, uuid.New())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	balance, err := e.engine.Balance(ctx, user, ledger.XAF)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), balance)
}

func TestInstantTierApprovesImmediately(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	user := e.fundedAccount(t, 5000)
	require.NoError(t, e.accounts.SetInstantWithdrawal(ctx, user, true))

	w, err := e.svc.Request(ctx, user, payout(1500), uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, withdrawal.StatusApproved, w.Status)
	assert.False(t, w.ReviewedBy.Valid)

	balance, err := e.engine.Balance(ctx, user, ledger.XAF)
	require.NoError(t, err)
	assert.Equal(t, int64(3500), balance)
}

func TestInstantRequestSubmittedTwiceDebitsOnce(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	user := e.fundedAccount(t, 5000)
	require.NoError(t, e.accounts.SetInstantWithdrawal(ctx, user, true))

	first, err := e.svc.Request(ctx, user, payout(1500), "tap-1")
	require.NoError(t, err)
	assert.Equal(t, withdrawal.StatusApproved, first.Status)

	again, err := e.svc.Request(ctx, user, payout(1500), "tap-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.LedgerOperationID, again.LedgerOperationID)

	balance, err := e.engine.Balance(ctx, user, ledger.XAF)
	require.NoError(t, err)
	assert.Equal(t, int64(3500), balance)

	_, err = e.svc.Request(ctx, user, payout(2000), "tap-1")
	assert.ErrorIs(t, err, ledger.ErrConflict)

	_, err = e.svc.Request(ctx, user, payout(1500), "")
	assert.ErrorIs(t, err, withdrawal.ErrMissingNonce)

	mine, err := e.svc.ListByUser(ctx, user, 10, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestConcurrentRequestsWithSameKeyFileOnce(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	user := e.fundedAccount(t, 10000)
	require.NoError(t, e.accounts.SetInstantWithdrawal(ctx, user, true))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.svc.Request(ctx, user, payout(2000), "double-submit")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	balance, err := e.engine.Balance(ctx, user, ledger.XAF)
	require.NoError(t, err)
	assert.Equal(t, int64(8000), balance)
}
