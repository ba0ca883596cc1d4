package ledger

import (
	"errors"

	"github.com/easydollars/easydollars-api/internal/pkg/database"
)

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrConflict           = errors.New("idempotency key already used for a different operation")
	ErrInvalidOperation   = errors.New("invalid ledger operation")
	ErrAccountNotFound    = errors.New("account not found")

	// ErrTransient is safe to retry with the same idempotency key.
	ErrTransient = database.ErrTransient
)
