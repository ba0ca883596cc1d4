package withdrawal_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easydollars/easydollars-api/internal/domain/ledger"
	"github.com/easydollars/easydollars-api/internal/domain/withdrawal"
	"github.com/easydollars/easydollars-api/internal/middleware"
	"github.com/easydollars/easydollars-api/internal/pkg/jwt"
)

type fakeWithdrawalService struct {
	requestErr error
	reviewer   uuid.UUID
	nonce      string
}

func (f *fakeWithdrawalService) Request(_ context.Context, userID uuid.UUID, req withdrawal.CreateRequest, nonce string) (*withdrawal.Request, error) {
	if f.requestErr != nil {
		return nil, f.requestErr
	}
	f.nonce = nonce
	return &withdrawal.Request{ID: uuid.New(), UserID: userID, Amount: req.Amount, Status: withdrawal.StatusAwaitingReview}, nil
}

func (f *fakeWithdrawalService) Approve(_ context.Context, id, reviewerID uuid.UUID) (*withdrawal.Request, error) {
	f.reviewer = reviewerID
	return &withdrawal.Request{ID: id, Status: withdrawal.StatusApproved}, nil
}

func (f *fakeWithdrawalService) Reject(_ context.Context, id, reviewerID uuid.UUID, _ string) (*withdrawal.Request, error) {
	return &withdrawal.Request{ID: id, Status: withdrawal.StatusRejected}, nil
}

func (f *fakeWithdrawalService) ListPending(context.Context, int, int) ([]*withdrawal.Request, error) {
	return []*withdrawal.Request{}, nil
}

func (f *fakeWithdrawalService) ListByUser(context.Context, uuid.UUID, int, int) ([]*withdrawal.Request, error) {
	return []*withdrawal.Request{}, nil
}

func do(t *testing.T, svc withdrawal.WithdrawalService, role, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return doWithKey(t, svc, role, method, path, body, "key-1")
}

func doWithKey(t *testing.T, svc withdrawal.WithdrawalService, role, method, path, body, key string) *httptest.ResponseRecorder {
	t.Helper()
	jwtSvc := jwt.NewService("withdrawal-secret")
	token, err := jwtSvc.Issue(uuid.New(), role, time.Hour)
	require.NoError(t, err)

	h := withdrawal.NewHandler(svc)
	auth := middleware.Auth(jwtSvc)
	r := chi.NewRouter()
	r.Mount("/withdrawals", h.Routes(auth))
	r.Mount("/admin/withdrawals", h.AdminRoutes(auth))

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Authorization", "Bearer "+token)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreateWithdrawal(t *testing.T) {
	svc := &fakeWithdrawalService{}
	rec := do(t, svc, "", http.MethodPost, "/withdrawals",
		`{"amount":2000,"method":"orange_money","destination":"237690000000"}`)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "key-1", svc.nonce)

	rec = doWithKey(t, &fakeWithdrawalService{}, "", http.MethodPost, "/withdrawals",
		`{"amount":2000,"method":"orange_money","destination":"237690000000"}`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Idempotency-Key")

	rec = do(t, &fakeWithdrawalService{requestErr: ledger.ErrConflict}, "", http.MethodPost, "/withdrawals",
		`{"amount":2000,"method":"orange_money","destination":"237690000000"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, &fakeWithdrawalService{}, "", http.MethodPost, "/withdrawals",
		`{"amount":2000,"method":"bank","destination":"237690000000"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, &fakeWithdrawalService{requestErr: ledger.ErrInsufficientFunds}, "", http.MethodPost, "/withdrawals",
		`{"amount":2000,"method":"mtn_momo","destination":"237670000000"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "INSUFFICIENT_FUNDS")
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	path := "/admin/withdrawals/" + uuid.NewString() + "/approve"

	rec := do(t, &fakeWithdrawalService{}, "", http.MethodPost, path, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	svc := &fakeWithdrawalService{}
	rec = do(t, svc, middleware.RoleAdmin, http.MethodPost, path, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, uuid.Nil, svc.reviewer)
}

func TestRejectNeedsReason(t *testing.T) {
	path := "/admin/withdrawals/" + uuid.NewString() + "/reject"

	rec := do(t, &fakeWithdrawalService{}, middleware.RoleAdmin, http.MethodPost, path, `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, &fakeWithdrawalService{}, middleware.RoleAdmin, http.MethodPost, path, `{"reason":"duplicate"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}
