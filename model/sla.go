package model

import "time"

// SLA statuses.
const (
	SLAWithin    = "WITHIN_SLA"
	SLANearDue   = "NEAR_DUE"
	SLAOverdue   = "OVERDUE"
	SLAPaused    = "PAUSED"
	SLACompleted = "COMPLETED"
)

// ProtocolSLA tracks the business-day deadline of one protocol.
type ProtocolSLA struct {
	ID              string     `json:"id"`
	TenantID        string     `json:"tenant_id"`
	ProtocolID      string     `json:"protocol_id"`
	WorkingDays     int        `json:"working_days"`
	StartDate       time.Time  `json:"start_date"`
	DueDate         time.Time  `json:"due_date"`
	Status          string     `json:"status"`
	PausedAt        *time.Time `json:"paused_at,omitempty"`
	PauseReason     string     `json:"pause_reason,omitempty"`
	TotalPausedDays int        `json:"total_paused_days"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Version         int        `json:"version"`
}

// IsOpen reports whether the SLA still counts time.
func (s *ProtocolSLA) IsOpen() bool {
	return s.Status != SLACompleted && s.Status != SLAPaused
}

// SLAStats aggregates the SLAs of a tenant.
type SLAStats struct {
	Total         int     `json:"total"`
	WithinSLA     int     `json:"within_sla"`
	NearDue       int     `json:"near_due"`
	Overdue       int     `json:"overdue"`
	Paused        int     `json:"paused"`
	Completed     int     `json:"completed"`
	CompletedLate int     `json:"completed_late"`
	OnTimeRate    float64 `json:"on_time_rate"`
}
