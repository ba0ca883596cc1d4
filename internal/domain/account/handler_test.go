package account_test

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

	"github.com/easydollars/easydollars-api/internal/domain/account"
	"github.com/easydollars/easydollars-api/internal/domain/ledger"
	"github.com/easydollars/easydollars-api/internal/middleware"
	"github.com/easydollars/easydollars-api/internal/pkg/jwt"
)

type fakeAccountService struct {
	signupRef string
	tier      map[uuid.UUID]bool
}

func (f *fakeAccountService) Signup(_ context.Context, userID uuid.UUID, referredBy string) (*account.Account, error) {
	f.signupRef = referredBy
	return &account.Account{ID: userID, ReferralCode: "XYZ789", CreatedAt: time.Now()}, nil
}

func (f *fakeAccountService) Get(_ context.Context, userID uuid.UUID) (*account.Account, map[ledger.Currency]int64, error) {
	return &account.Account{ID: userID, ReferralCode: "XYZ789"}, map[ledger.Currency]int64{ledger.XAF: 1000, ledger.ED: 5}, nil
}

func (f *fakeAccountService) SetInstantWithdrawal(_ context.Context, userID uuid.UUID, instant bool) error {
	if f.tier == nil {
		f.tier = map[uuid.UUID]bool{}
	}
	f.tier[userID] = instant
	return nil
}

func newAccountRouter(svc account.AccountService, jwtSvc *jwt.Service) http.Handler {
	h := account.NewHandler(svc)
	r := chi.NewRouter()
	auth := middleware.Auth(jwtSvc)
	r.Mount("/accounts", h.Routes(auth))
	r.Mount("/admin/accounts", h.AdminRoutes(auth))
	return r
}

func TestSignupPassesReferralCode(t *testing.T) {
	jwtSvc := jwt.NewService("account-secret")
	token, _ := jwtSvc.Issue(uuid.New(), "", time.Hour)
	svc := &fakeAccountService{}

	body, _ := json.Marshal(map[string]string{"referred_by": "ABC123"})
	req := httptest.NewRequest(http.MethodPost, "/accounts/signup", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	newAccountRouter(svc, jwtSvc).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.signupRef != "ABC123" {
		t.Fatalf("expected referral code to reach the service, got %q", svc.signupRef)
	}
}

func TestSignupRejectsMalformedCode(t *testing.T) {
	jwtSvc := jwt.NewService("account-secret")
	token, _ := jwtSvc.Issue(uuid.New(), "", time.Hour)

	body, _ := json.Marshal(map[string]string{"referred_by": "AB-1"})
	req := httptest.NewRequest(http.MethodPost, "/accounts/signup", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	newAccountRouter(&fakeAccountService{}, jwtSvc).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestSetTierRequiresAdmin(t *testing.T) {
	jwtSvc := jwt.NewService("account-secret")
	svc := &fakeAccountService{}
	router := newAccountRouter(svc, jwtSvc)
	target := uuid.New()

	for _, tc := range []struct {
		role string
		want int
	}{
		{"", http.StatusForbidden},
		{middleware.RoleAdmin, http.StatusOK},
	} {
		token, _ := jwtSvc.Issue(uuid.New(), tc.role, time.Hour)
		req := httptest.NewRequest(http.MethodPatch, "/admin/accounts/"+target.String()+"/tier", bytes.NewBufferString(`{"instant_withdrawal":true}`))
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("role %q: expected %d, got %d", tc.role, tc.want, rec.Code)
		}
	}

	if !svc.tier[target] {
		t.Fatal("expected admin to enable instant withdrawal")
	}
}
