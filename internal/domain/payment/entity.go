package payment

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status represents payment intent status
type Status string

const (
	StatusPending    Status = "pending"
	StatusSuccessful Status = "successful"
	StatusFailed     Status = "failed"
)

// Method is how a machine purchase is paid
type Method string

const (
	MethodMobileMoney Method = "mobile_money"
	MethodBalance     Method = "balance"
)

// JSONRawMessage handles NULL json fields from DB
type JSONRawMessage []byte

func (j *JSONRawMessage) Scan(src any) error {
	if src == nil {
		*j = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = []byte(v)
	default:
		return fmt.Errorf("unsupported type: %T", src)
	}
	return nil
}

func (j JSONRawMessage) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// Intent is a machine purchase awaiting confirmation from the mobile money provider
type Intent struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	ExternalID     string         `db:"external_id" json:"external_id"`
	ProviderTxID   sql.NullString `db:"provider_tx_id" json:"-"`
	UserID         uuid.UUID      `db:"user_id" json:"user_id"`
	MachineType    string         `db:"machine_type" json:"machine_type"`
	Amount         int64          `db:"amount" json:"amount"`
	Currency       string         `db:"currency" json:"currency"`
	Status         Status         `db:"status" json:"status"`
	ProviderHandle sql.NullString `db:"provider_handle" json:"-"`
	RawCallback    JSONRawMessage `db:"raw_callback" json:"-"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	SettledAt      sql.NullTime   `db:"settled_at" json:"-"`
}

// WebhookOutcome is both the webhook response body and the outcome stored
// against the callback's idempotency key.
type WebhookOutcome struct {
	Received  bool   `json:"received"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Status    string `json:"status,omitempty"`
	Rejected  string `json:"rejected,omitempty"`
	Code      string `json:"code,omitempty"`
}
