package machine_test

import (
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

	"github.com/easydollars/easydollars-api/internal/domain/machine"
	"github.com/easydollars/easydollars-api/internal/middleware"
	"github.com/easydollars/easydollars-api/internal/pkg/jwt"
)

type fakeMachineService struct {
	claimErr error
}

func (f *fakeMachineService) List(context.Context, uuid.UUID) ([]machine.Machine, error) {
	return []machine.Machine{{ID: uuid.New(), MachineType: "elite"}}, nil
}

func (f *fakeMachineService) Activate(_ context.Context, userID, id uuid.UUID) (*machine.Machine, error) {
	return &machine.Machine{ID: id, UserID: userID, MachineType: "starter", IsActive: true}, nil
}

func (f *fakeMachineService) Claim(_ context.Context, _ uuid.UUID, id uuid.UUID) (*machine.ClaimResult, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	return &machine.ClaimResult{MachineID: id, Amount: 50}, nil
}

func serve(t *testing.T, svc machine.MachineService, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	jwtSvc := jwt.NewService("machine-secret")
	token, err := jwtSvc.Issue(uuid.New(), "", time.Hour)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Mount("/machines", machine.NewHandler(svc, 24*time.Hour).Routes(middleware.Auth(jwtSvc)))

	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCatalogIsPublic(t *testing.T) {
	r := chi.NewRouter()
	r.Mount("/machines", machine.NewHandler(&fakeMachineService{}, 24*time.Hour).Routes(middleware.Auth(jwt.NewService("x"))))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/machines/catalog", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data []machine.MachineType `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Len(t, body.Data, len(machine.Catalog()))
}

func TestListRequiresAuth(t *testing.T) {
	r := chi.NewRouter()
	r.Mount("/machines", machine.NewHandler(&fakeMachineService{}, 24*time.Hour).Routes(middleware.Auth(jwt.NewService("x"))))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/machines", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestClaimSuccess(t *testing.T) {
	rec := serve(t, &fakeMachineService{}, http.MethodPost, "/machines/"+uuid.NewString()+"/claim")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Data machine.ClaimResult `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, int64(50), body.Data.Amount)
}

func TestClaimNotEligibleReportsNextClaim(t *testing.T) {
	next := time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC)
	rec := serve(t, &fakeMachineService{claimErr: &machine.NotEligibleError{NextClaimAt: next}},
		http.MethodPost, "/machines/"+uuid.NewString()+"/claim")

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body struct {
		Error struct {
			Code    string            `json:"code"`
			Details map[string]string `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "NOT_ELIGIBLE", body.Error.Code)
	assert.Equal(t, "2026-05-02T09:30:00Z", body.Error.Details["next_claim_at"])
}

func TestClaimUnknownMachine(t *testing.T) {
	rec := serve(t, &fakeMachineService{claimErr: machine.ErrMachineNotFound},
		http.MethodPost, "/machines/"+uuid.NewString()+"/claim")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClaimRejectsBadID(t *testing.T) {
	rec := serve(t, &fakeMachineService{}, http.MethodPost, "/machines/not-a-uuid/claim")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
