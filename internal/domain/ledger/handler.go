package ledger

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/easydollars/easydollars-api/internal/middleware"
	"github.com/easydollars/easydollars-api/internal/pkg/logger"
	"github.com/easydollars/easydollars-api/internal/pkg/response"
)

// Reader is the read side of the store used by the HTTP handler.
type Reader interface {
	GetBalances(ctx context.Context, accountID uuid.UUID) (map[Currency]int64, error)
	ListEntries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]Entry, int, error)
}

type Handler struct {
	store Reader
}

func NewHandler(store Reader) *Handler {
	return &Handler{store: store}
}

// BalancesResponse is the wire shape of an account's balances.
type BalancesResponse struct {
	XAF int64 `json:"xaf"`
	ED  int64 `json:"ed"`
}

// Balances handles GET /ledger/balances
func (h *Handler) Balances(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	balances, err := h.store.GetBalances(r.Context(), userID)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	response.OK(w, BalancesResponse{XAF: balances[XAF], ED: balances[ED]})
}

// Entries handles GET /ledger/entries?limit=&offset=
func (h *Handler) Entries(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit := queryInt(r, "limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	entries, total, err := h.store.ListEntries(r.Context(), userID, limit, offset)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	response.WithMeta(w, entries, response.Meta{
		Total:  total,
		Limit:  limit,
		Offset: offset,
		More:   offset+len(entries) < total,
	})
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/balances", h.Balances)
	r.Get("/entries", h.Entries)
	return r
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// WriteError maps engine errors onto the response envelope. Unknown errors
// are logged and reported as internal errors.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		response.InsufficientFunds(w, "Insufficient balance for this operation")
	case errors.Is(err, ErrPreconditionFailed):
		response.PreconditionFailed(w, "PRECONDITION_FAILED", err.Error())
	case errors.Is(err, ErrConflict):
		logger.FromContext(r.Context()).Error().Err(err).Msg("Idempotency conflict")
		response.Conflict(w, "This request key was already used for a different operation")
	case errors.Is(err, ErrAccountNotFound):
		response.NotFound(w, "Account not found")
	case errors.Is(err, ErrInvalidOperation):
		response.BadRequest(w, err.Error())
	case errors.Is(err, ErrTransient):
		logger.FromContext(r.Context()).Warn().Err(err).Msg("Transient failure surfaced to client")
		response.TryAgain(w)
	default:
		logger.FromContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		response.InternalError(w)
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrPreconditionFailed):
		return "precondition_failed"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, ErrInvalidOperation):
		return "invalid"
	default:
		return "error"
	}
}
