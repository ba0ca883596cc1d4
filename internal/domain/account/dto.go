package account

import (
	"time"

	"github.com/google/uuid"
)

// SignupRequest is the body of POST /accounts/signup
type SignupRequest struct {
	ReferredBy string `json:"referred_by" validate:"omitempty,min=4,max=16,alphanum"`
}

// SetTierRequest is the body of PATCH /admin/accounts/{id}/tier
type SetTierRequest struct {
	InstantWithdrawal *bool `json:"instant_withdrawal" validate:"required"`
}

// AccountResponse is the public view of an account
type AccountResponse struct {
	ID                uuid.UUID `json:"id"`
	ReferralCode      string    `json:"referral_code"`
	ReferredBy        string    `json:"referred_by,omitempty"`
	InstantWithdrawal bool      `json:"instant_withdrawal"`
	CreatedAt         time.Time `json:"created_at"`
	Balances          *Balances `json:"balances,omitempty"`
}

// Balances of an account in both currencies
type Balances struct {
	XAF int64 `json:"xaf"`
	ED  int64 `json:"ed"`
}

func AccountResponseFromEntity(a *Account) *AccountResponse {
	return &AccountResponse{
		ID:                a.ID,
		ReferralCode:      a.ReferralCode,
		ReferredBy:        a.ReferredBy.String,
		InstantWithdrawal: a.InstantWithdrawal,
		CreatedAt:         a.CreatedAt,
	}
}
