package conversion

import "errors"

var (
	ErrBelowMinimum = errors.New("amount is below the conversion minimum")
	ErrMissingNonce = errors.New("idempotency key is required")
)
