package machine

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/easydollars/easydollars-api/internal/domain/ledger"
	"github.com/easydollars/easydollars-api/internal/middleware"
	"github.com/easydollars/easydollars-api/internal/pkg/response"
)

// MachineService is what the handler needs from Service.
type MachineService interface {
	List(ctx context.Context, userID uuid.UUID) ([]Machine, error)
	Activate(ctx context.Context, userID, machineID uuid.UUID) (*Machine, error)
	Claim(ctx context.Context, userID, machineID uuid.UUID) (*ClaimResult, error)
}

type Handler struct {
	svc      MachineService
	interval time.Duration
}

func NewHandler(svc MachineService, interval time.Duration) *Handler {
	return &Handler{svc: svc, interval: interval}
}

// Catalog handles GET /machines/catalog
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	response.OK(w, Catalog())
}

// List handles GET /machines
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	machines, err := h.svc.List(r.Context(), userID)
	if err != nil {
		ledger.WriteError(w, r, err)
		return
	}

	items := make([]*MachineResponse, len(machines))
	for i := range machines {
		items[i] = MachineResponseFromEntity(&machines[i], h.interval)
	}
	response.OK(w, items)
}

// Activate handles POST /machines/{id}/activate
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}
	machineID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid machine ID")
		return
	}

	m, err := h.svc.Activate(r.Context(), userID, machineID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, MachineResponseFromEntity(m, h.interval))
}

// Claim handles POST /machines/{id}/claim
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}
	machineID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid machine ID")
		return
	}

	res, err := h.svc.Claim(r.Context(), userID, machineID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, res)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var notEligible *NotEligibleError
	switch {
	case errors.As(err, &notEligible):
		response.ErrorWithDetails(w, http.StatusUnprocessableEntity, "NOT_ELIGIBLE", "Claim window has not elapsed yet",
			map[string]string{"next_claim_at": notEligible.NextClaimAt.Format(time.RFC3339)})
	case errors.Is(err, ErrMachineNotFound):
		response.NotFound(w, "Machine not found")
	case errors.Is(err, ErrNotActive):
		response.PreconditionFailed(w, "NOT_ACTIVE", "Machine must be activated before claiming")
	default:
		ledger.WriteError(w, r, err)
	}
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/catalog", h.Catalog)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", h.List)
		r.Post("/{id}/activate", h.Activate)
		r.Post("/{id}/claim", h.Claim)
	})
	return r
}
