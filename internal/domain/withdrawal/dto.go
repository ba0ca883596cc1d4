package withdrawal

import (
	"time"

	"github.com/google/uuid"
)

type CreateRequest struct {
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Method      string `json:"method" validate:"required,payout_method"`
	Destination string `json:"destination" validate:"required,min=6,max=32"`
}

type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type RequestResponse struct {
	ID                uuid.UUID  `json:"id"`
	UserID            uuid.UUID  `json:"user_id"`
	Amount            int64      `json:"amount"`
	Method            string     `json:"method"`
	Destination       string     `json:"destination"`
	Status            Status     `json:"status"`
	LedgerOperationID *uuid.UUID `json:"ledger_operation_id,omitempty"`
	RejectReason      string     `json:"reject_reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	DecidedAt         *time.Time `json:"decided_at,omitempty"`
}

func RequestResponseFromEntity(r *Request) *RequestResponse {
	resp := &RequestResponse{
		ID:           r.ID,
		UserID:       r.UserID,
		Amount:       r.Amount,
		Method:       r.Method,
		Destination:  r.Destination,
		Status:       r.Status,
		RejectReason: r.RejectReason.String,
		CreatedAt:    r.CreatedAt,
	}
	if r.LedgerOperationID.Valid {
		resp.LedgerOperationID = &r.LedgerOperationID.UUID
	}
	if r.DecidedAt.Valid {
		resp.DecidedAt = &r.DecidedAt.Time
	}
	return resp
}

func listResponse(items []*Request) []*RequestResponse {
	out := make([]*RequestResponse, len(items))
	for i, r := range items {
		out[i] = RequestResponseFromEntity(r)
	}
	return out
}
