package referral

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/easydollars/easydollars-api/internal/domain/ledger"
	"github.com/easydollars/easydollars-api/internal/middleware"
	"github.com/easydollars/easydollars-api/internal/pkg/response"
)

// Lister reads a user's referrals.
type Lister interface {
	ListByReferrer(ctx context.Context, referrerID uuid.UUID) ([]Referral, error)
}

type Handler struct {
	referrals Lister
}

func NewHandler(referrals Lister) *Handler {
	return &Handler{referrals: referrals}
}

// List handles GET /referrals
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	refs, err := h.referrals.ListByReferrer(r.Context(), userID)
	if err != nil {
		ledger.WriteError(w, r, err)
		return
	}

	var earned int64
	for _, ref := range refs {
		earned += ref.Bonus
	}
	response.OK(w, map[string]interface{}{
		"referrals":    refs,
		"total_earned": earned,
	})
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/", h.List)
	return r
}
