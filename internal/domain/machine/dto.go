package machine

import (
	"time"

	"github.com/google/uuid"
)

type MachineResponse struct {
	ID          uuid.UUID  `json:"id"`
	MachineType string     `json:"machine_type"`
	DailyRateED int64      `json:"daily_rate_ed"`
	PurchasedAt time.Time  `json:"purchased_at"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
	LastClaimAt *time.Time `json:"last_claim_at,omitempty"`
	NextClaimAt *time.Time `json:"next_claim_at,omitempty"`
	TotalEarned int64      `json:"total_earned"`
	IsActive    bool       `json:"is_active"`
}

func MachineResponseFromEntity(m *Machine, interval time.Duration) *MachineResponse {
	resp := &MachineResponse{
		ID:          m.ID,
		MachineType: m.MachineType,
		PurchasedAt: m.PurchasedAt,
		TotalEarned: m.TotalEarned,
		IsActive:    m.IsActive,
	}
	if mt, ok := LookupType(m.MachineType); ok {
		resp.DailyRateED = mt.DailyRateED
	}
	if m.ActivatedAt.Valid {
		resp.ActivatedAt = &m.ActivatedAt.Time
		_, next := claimWindow(m, interval)
		resp.NextClaimAt = &next
	}
	if m.LastClaimAt.Valid {
		resp.LastClaimAt = &m.LastClaimAt.Time
	}
	return resp
}
