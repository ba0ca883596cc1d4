package account

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/easydollars/easydollars-api/internal/domain/ledger"
	"github.com/easydollars/easydollars-api/internal/middleware"
	"github.com/easydollars/easydollars-api/internal/pkg/response"
	"github.com/easydollars/easydollars-api/internal/pkg/validator"
)

// AccountService is what the handler needs from Service.
type AccountService interface {
	Signup(ctx context.Context, userID uuid.UUID, referredBy string) (*Account, error)
	Get(ctx context.Context, userID uuid.UUID) (*Account, map[ledger.Currency]int64, error)
	SetInstantWithdrawal(ctx context.Context, userID uuid.UUID, instant bool) error
}

type Handler struct {
	svc AccountService
}

func NewHandler(svc AccountService) *Handler {
	return &Handler{svc: svc}
}

// Signup handles POST /accounts/signup
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req SignupRequest
	if r.ContentLength != 0 {
		if err := response.DecodeJSON(r.Body, &req); err != nil {
			response.BadRequest(w, "Invalid JSON body")
			return
		}
	}
	if errs := validator.Validate(req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	acc, err := h.svc.Signup(r.Context(), userID, req.ReferredBy)
	if err != nil {
		ledger.WriteError(w, r, err)
		return
	}

	response.Created(w, AccountResponseFromEntity(acc))
}

// Me handles GET /accounts/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	acc, balances, err := h.svc.Get(r.Context(), userID)
	if errors.Is(err, ErrAccountNotFound) {
		response.NotFound(w, "Account not found, sign up first")
		return
	}
	if err != nil {
		ledger.WriteError(w, r, err)
		return
	}

	resp := AccountResponseFromEntity(acc)
	resp.Balances = &Balances{XAF: balances[ledger.XAF], ED: balances[ledger.ED]}
	response.OK(w, resp)
}

// SetTier handles PATCH /admin/accounts/{id}/tier
func (h *Handler) SetTier(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid account ID")
		return
	}

	var req SetTierRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	if err := h.svc.SetInstantWithdrawal(r.Context(), id, *req.InstantWithdrawal); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			response.NotFound(w, "Account not found")
			return
		}
		ledger.WriteError(w, r, err)
		return
	}

	response.OK(w, map[string]interface{}{"id": id, "instant_withdrawal": *req.InstantWithdrawal})
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/signup", h.Signup)
	r.Get("/me", h.Me)
	return r
}

// AdminRoutes are mounted under /admin/accounts
func (h *Handler) AdminRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(middleware.RequireAdmin())
	r.Patch("/{id}/tier", h.SetTier)
	return r
}
