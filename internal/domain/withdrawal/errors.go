package withdrawal

import "errors"

var (
	ErrRequestNotFound   = errors.New("withdrawal request not found")
	ErrInvalidTransition = errors.New("withdrawal request is already decided")
	ErrBelowMinimum      = errors.New("amount is below the withdrawal minimum")
	ErrMissingNonce      = errors.New("idempotency key is required")
)
