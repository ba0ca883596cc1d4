package payment

import "github.com/google/uuid"

// PurchaseRequest is the body of POST /machines/purchase
type PurchaseRequest struct {
	MachineType string `json:"machine_type" validate:"required"`
	Method      Method `json:"method" validate:"required,purchase_method"`
}

// PurchaseResponse carries either the mobile money payment handle or the
// new balance after an in-app purchase.
type PurchaseResponse struct {
	Method      Method     `json:"method"`
	MachineType string     `json:"machine_type"`
	Amount      int64      `json:"amount"`
	IntentID    *uuid.UUID `json:"intent_id,omitempty"`
	ExternalID  string     `json:"external_id,omitempty"`
	Status      Status     `json:"status"`
	PaymentURL  string     `json:"payment_url,omitempty"`
	BalanceXAF  *int64     `json:"balance_xaf,omitempty"`
	Replayed    bool       `json:"replayed,omitempty"`
}
