package withdrawal

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/easydollars/easydollars-api/internal/domain/account"
	"github.com/easydollars/easydollars-api/internal/domain/ledger"
	"github.com/easydollars/easydollars-api/internal/middleware"
	"github.com/easydollars/easydollars-api/internal/pkg/response"
	"github.com/easydollars/easydollars-api/internal/pkg/validator"
)

// WithdrawalService is what the handler needs from Service
type WithdrawalService interface {
	Request(ctx context.Context, userID uuid.UUID, req CreateRequest, nonce string) (*Request, error)
	Approve(ctx context.Context, id, reviewerID uuid.UUID) (*Request, error)
	Reject(ctx context.Context, id, reviewerID uuid.UUID, reason string) (*Request, error)
	ListPending(ctx context.Context, limit, offset int) ([]*Request, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Request, error)
}

type Handler struct {
	svc WithdrawalService
}

func NewHandler(svc WithdrawalService) *Handler {
	return &Handler{svc: svc}
}

// Create handles POST /withdrawals
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	nonce := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if nonce == "" {
		response.ValidationError(w, map[string]string{"Idempotency-Key": "This header is required"})
		return
	}

	var req CreateRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	out, err := h.svc.Request(r.Context(), userID, req, nonce)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, RequestResponseFromEntity(out))
}

// List handles GET /withdrawals
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, offset := pagination(r)
	items, err := h.svc.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, listResponse(items))
}

// ListPending handles GET /admin/withdrawals
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	items, err := h.svc.ListPending(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, listResponse(items))
}

// Approve handles POST /admin/withdrawals/{id}/approve
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid withdrawal ID")
		return
	}

	out, err := h.svc.Approve(r.Context(), id, middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, RequestResponseFromEntity(out))
}

// Reject handles POST /admin/withdrawals/{id}/reject
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid withdrawal ID")
		return
	}

	var req RejectRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	out, err := h.svc.Reject(r.Context(), id, middleware.GetUserID(r.Context()), req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, RequestResponseFromEntity(out))
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrBelowMinimum):
		response.ValidationError(w, map[string]string{"amount": err.Error()})
	case errors.Is(err, ErrMissingNonce):
		response.ValidationError(w, map[string]string{"Idempotency-Key": "This header is required"})
	case errors.Is(err, ErrRequestNotFound):
		response.NotFound(w, "Withdrawal request not found")
	case errors.Is(err, account.ErrAccountNotFound):
		response.NotFound(w, "Account not found, sign up first")
	case errors.Is(err, ErrInvalidTransition):
		response.Conflict(w, err.Error())
	default:
		ledger.WriteError(w, r, err)
	}
}

func pagination(r *http.Request) (limit, offset int) {
	limit = 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/", h.Create)
	r.Get("/", h.List)
	return r
}

// AdminRoutes are mounted under /admin/withdrawals
func (h *Handler) AdminRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(middleware.RequireAdmin())
	r.Get("/", h.ListPending)
	r.Post("/{id}/approve", h.Approve)
	r.Post("/{id}/reject", h.Reject)
	return r
}
