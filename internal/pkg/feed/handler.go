package feed

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/easydollars/easydollars-api/internal/middleware"
	"github.com/easydollars/easydollars-api/internal/pkg/logger"
	"github.com/easydollars/easydollars-api/internal/pkg/response"
)

// Reader reads a user's cached feed.
type Reader interface {
	Recent(ctx context.Context, userID uuid.UUID, limit int) ([]Event, error)
}

type Handler struct {
	feed Reader
}

func NewHandler(feed Reader) *Handler {
	return &Handler{feed: feed}
}

// Recent handles GET /feed?limit=
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}

	events, err := h.feed.Recent(r.Context(), userID, limit)
	if err != nil {
		// the feed is a cache; an outage shows as an empty feed
		logger.FromContext(r.Context()).Warn().Err(err).Msg("Feed read failed")
		events = []Event{}
	}
	response.OK(w, events)
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/", h.Recent)
	return r
}
