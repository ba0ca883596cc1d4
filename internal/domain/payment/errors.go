package payment

import (
	"errors"
	"fmt"

	"github.com/easydollars/easydollars-api/internal/domain/ledger"
)

var (
	ErrIntentNotFound     = errors.New("payment intent not found")
	ErrInvalidTransition  = errors.New("payment intent is already settled differently")
	ErrPayloadMismatch    = fmt.Errorf("%w: callback does not match payment intent", ledger.ErrConflict)
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrInvalidPayload     = errors.New("invalid webhook payload")
	ErrCallbackInProgress = errors.New("callback is being processed")
	ErrUnknownMethod      = errors.New("unknown purchase method")
	ErrMissingNonce       = errors.New("idempotency key is required")
)
