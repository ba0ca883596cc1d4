package payment

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/easydollars/easydollars-api/internal/domain/ledger"
	"github.com/easydollars/easydollars-api/internal/domain/machine"
	"github.com/easydollars/easydollars-api/internal/middleware"
	"github.com/easydollars/easydollars-api/internal/pkg/logger"
	"github.com/easydollars/easydollars-api/internal/pkg/mobilemoney"
	"github.com/easydollars/easydollars-api/internal/pkg/response"
	"github.com/easydollars/easydollars-api/internal/pkg/validator"
)

const maxWebhookBody = 64 << 10

// PaymentService is what the handler needs from Service
type PaymentService interface {
	Purchase(ctx context.Context, userID uuid.UUID, machineType string, method Method, nonce string) (*PurchaseResponse, error)
	History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Intent, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookOutcome, error)
}

// Handler handles payment HTTP requests
type Handler struct {
	service PaymentService
}

// NewHandler creates payment handler
func NewHandler(service PaymentService) *Handler {
	return &Handler{service: service}
}

// Purchase handles POST /machines/purchase
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
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

	var req PurchaseRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	out, err := h.service.Purchase(r.Context(), userID, req.MachineType, req.Method, nonce)
	if err != nil {
		if errors.Is(err, machine.ErrUnknownType) {
			response.ValidationError(w, map[string]string{"machine_type": "Unknown machine type"})
			return
		}
		ledger.WriteError(w, r, err)
		return
	}

	if out.Method == MethodMobileMoney && out.Status == StatusPending {
		response.Accepted(w, out)
		return
	}
	response.OK(w, out)
}

// History handles GET /payments
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit := 20
	offset := 0
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

	intents, err := h.service.History(r.Context(), userID, limit, offset)
	if err != nil {
		ledger.WriteError(w, r, err)
		return
	}
	response.OK(w, intents)
}

// Webhook handles POST /webhooks/payment
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(w, "Unreadable body")
		return
	}

	outcome, err := h.service.HandleWebhook(r.Context(), body, r.Header.Get(mobilemoney.SignatureHeader))
	if err != nil {
		log := logger.FromContext(r.Context())
		switch {
		case errors.Is(err, ErrInvalidSignature):
			response.Unauthorized(w, "Invalid signature")
		case errors.Is(err, ErrInvalidPayload):
			response.BadRequest(w, err.Error())
		case errors.Is(err, ErrCallbackInProgress):
			response.Conflict(w, "Callback is being processed, retry later")
		case errors.Is(err, ErrIntentNotFound):
			response.NotFound(w, "Unknown externalId")
		case errors.Is(err, ErrInvalidTransition):
			response.PreconditionFailed(w, "INVALID_TRANSITION", err.Error())
		case errors.Is(err, ErrPayloadMismatch):
			log.Error().Err(err).Msg("Payment callback does not match intent")
			response.Conflict(w, "Callback does not match the payment intent")
		default:
			ledger.WriteError(w, r, err)
		}
		return
	}

	response.OK(w, outcome)
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/", h.History)
	return r
}

// WebhookRoutes are mounted under /webhooks and carry no JWT
func (h *Handler) WebhookRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/payment", h.Webhook)
	return r
}
