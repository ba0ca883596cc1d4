package account

import "errors"

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrCodeExhausted   = errors.New("could not allocate a unique referral code")
)
