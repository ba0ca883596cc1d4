package payment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easydollars/easydollars-api/internal/domain/ledger"
	"github.com/easydollars/easydollars-api/internal/domain/payment"
	"github.com/easydollars/easydollars-api/internal/middleware"
	"github.com/easydollars/easydollars-api/internal/pkg/jwt"
	"github.com/easydollars/easydollars-api/internal/pkg/mobilemoney"
)

type fakePaymentService struct {
	webhookOut   *payment.WebhookOutcome
	webhookErr   error
	purchaseErr  error
	gotNonce     string
	gotSignature string
}

func (f *fakePaymentService) Purchase(_ context.Context, _ uuid.UUID, machineType string, method payment.Method, nonce string) (*payment.PurchaseResponse, error) {
	f.gotNonce = nonce
	if f.purchaseErr != nil {
		return nil, f.purchaseErr
	}
	return &payment.PurchaseResponse{Method: method, MachineType: machineType, Status: payment.StatusPending, PaymentURL: "https://pay"}, nil
}

func (f *fakePaymentService) History(context.Context, uuid.UUID, int, int) ([]*payment.Intent, error) {
	return []*payment.Intent{}, nil
}

func (f *fakePaymentService) HandleWebhook(_ context.Context, _ []byte, signature string) (*payment.WebhookOutcome, error) {
	f.gotSignature = signature
	return f.webhookOut, f.webhookErr
}

func newRouter(svc payment.PaymentService, jwtSvc *jwt.Service) http.Handler {
	h := payment.NewHandler(svc)
	r := chi.NewRouter()
	r.Mount("/webhooks", h.WebhookRoutes())
	r.With(middleware.Auth(jwtSvc)).Post("/machines/purchase", h.Purchase)
	return r
}

func postWebhook(t *testing.T, svc *fakePaymentService) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewBufferString(`{"transactionId":"tx-1"}`))
	req.Header.Set(mobilemoney.SignatureHeader, "abc")
	rec := httptest.NewRecorder()
	newRouter(svc, jwt.NewService("x")).ServeHTTP(rec, req)
	return rec
}

func TestWebhookDuplicateAcknowledged(t *testing.T) {
	svc := &fakePaymentService{webhookOut: &payment.WebhookOutcome{Received: true, Duplicate: true, Status: "successful"}}
	rec := postWebhook(t, svc)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", svc.gotSignature)

	var body struct {
		Data payment.WebhookOutcome `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.Data.Received)
	assert.True(t, body.Data.Duplicate)
}

func TestWebhookErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{payment.ErrInvalidSignature, http.StatusUnauthorized},
		{payment.ErrCallbackInProgress, http.StatusConflict},
		{payment.ErrPayloadMismatch, http.StatusConflict},
		{payment.ErrIntentNotFound, http.StatusNotFound},
		{payment.ErrInvalidTransition, http.StatusUnprocessableEntity},
		{ledger.ErrTransient, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		rec := postWebhook(t, &fakePaymentService{webhookErr: tc.err})
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
	}
}

func TestPurchaseRequiresIdempotencyKey(t *testing.T) {
	jwtSvc := jwt.NewService("payment-secret")
	token, err := jwtSvc.Issue(uuid.New(), "", time.Hour)
	require.NoError(t, err)
	svc := &fakePaymentService{}

	send := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/machines/purchase", bytes.NewBufferString(`{"machine_type":"starter","method":"mobile_money"}`))
		req.Header.Set("Authorization", "Bearer "+token)
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		rec := httptest.NewRecorder()
		newRouter(svc, jwtSvc).ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnprocessableEntity, send("").Code)

	rec := send("nonce-1")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "nonce-1", svc.gotNonce)
}

func TestPurchaseInsufficientFunds(t *testing.T) {
	jwtSvc := jwt.NewService("payment-secret")
	token, _ := jwtSvc.Issue(uuid.New(), "", time.Hour)

	req := httptest.NewRequest(http.MethodPost, "/machines/purchase", bytes.NewBufferString(`{"machine_type":"starter","method":"balance"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Idempotency-Key", "k")
	rec := httptest.NewRecorder()
	newRouter(&fakePaymentService{purchaseErr: ledger.ErrInsufficientFunds}, jwtSvc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "INSUFFICIENT_FUNDS")
}
