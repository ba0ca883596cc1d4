package conversion

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/easydollars/easydollars-api/internal/domain/ledger"
	"github.com/easydollars/easydollars-api/internal/middleware"
	"github.com/easydollars/easydollars-api/internal/pkg/response"
	"github.com/easydollars/easydollars-api/internal/pkg/validator"
)

// ConvertRequest is the body of POST /conversions
type ConvertRequest struct {
	AmountED int64 `json:"amount_ed" validate:"required,gt=0"`
}

// Converter is what the handler needs from Service
type Converter interface {
	Convert(ctx context.Context, userID uuid.UUID, amountED int64, nonce string) (*Result, error)
}

type Handler struct {
	svc Converter
}

func NewHandler(svc Converter) *Handler {
	return &Handler{svc: svc}
}

// Convert handles POST /conversions
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
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

	var req ConvertRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	res, err := h.svc.Convert(r.Context(), userID, req.AmountED, nonce)
	if err != nil {
		if errors.Is(err, ErrBelowMinimum) {
			response.ValidationError(w, map[string]string{"amount_ed": err.Error()})
			return
		}
		ledger.WriteError(w, r, err)
		return
	}
	response.OK(w, res)
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/", h.Convert)
	return r
}
