package idempotency

import "errors"

var (
	ErrConflict    = errors.New("idempotency key reused with different parameters")
	ErrInProgress  = errors.New("operation with this idempotency key is in progress")
	ErrEmptyKey    = errors.New("idempotency key is required")
	ErrNotReserved = errors.New("idempotency key is not reserved")
)
