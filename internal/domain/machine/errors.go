package machine

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrMachineNotFound = errors.New("machine not found")
	ErrUnknownType     = errors.New("unknown machine type")
	ErrNotActive       = errors.New("machine is not active")
	ErrNotEligible     = errors.New("claim not yet eligible")
)

// NotEligibleError carries the earliest time the next claim is allowed.
type NotEligibleError struct {
	NextClaimAt time.Time
}

func (e *NotEligibleError) Error() string {
	return fmt.Sprintf("%s: next claim at %s", ErrNotEligible, e.NextClaimAt.Format(time.RFC3339))
}

func (e *NotEligibleError) Unwrap() error {
	return ErrNotEligible
}
