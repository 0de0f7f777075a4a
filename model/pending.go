package model

import "time"

// Pending types.
const (
	PendingDocument    = "DOCUMENT"
	PendingInformation = "INFORMATION"
	PendingCorrection  = "CORRECTION"
	PendingValidation  = "VALIDATION"
	PendingPayment     = "PAYMENT"
)

// PendingTypes lists every accepted pending type.
var PendingTypes = []string{PendingDocument, PendingInformation, PendingCorrection, PendingValidation, PendingPayment}

// Pending statuses.
const (
	PendingOpen       = "OPEN"
	PendingInProgress = "IN_PROGRESS"
	PendingResolved   = "RESOLVED"
	PendingCancelled  = "CANCELLED"
	PendingExpired    = "EXPIRED"
)

// PendingMachine is the lifecycle of a pending.
var PendingMachine = NewStatusMachine("pending", PendingOpen,
	[]string{PendingResolved, PendingCancelled, PendingExpired},
	map[string][]string{
		PendingOpen:       {PendingInProgress, PendingResolved, PendingCancelled, PendingExpired},
		PendingInProgress: {PendingResolved, PendingCancelled, PendingExpired},
	})

// Pending is an open item the citizen or staff must resolve before a
// protocol can move on.
type Pending struct {
	ID             string     `gorm:"primaryKey;type:uuid" json:"id"`
	TenantID       string     `gorm:"index;not null"       json:"tenant_id"`
	ProtocolID     string     `gorm:"index;not null"       json:"protocol_id"`
	Type           string     `gorm:"not null"             json:"type"`
	Title          string     `gorm:"not null"             json:"title"`
	Description    string     `gorm:"type:text"            json:"description"`
	Status         string     `gorm:"index;not null"       json:"status"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	BlocksProgress bool       `gorm:"not null;default:true" json:"blocks_progress"`
	Resolution     string     `json:"resolution,omitempty"`
	CancelReason   string     `json:"cancel_reason,omitempty"`
	CreatedBy      string     `json:"created_by,omitempty"`
	ResolvedBy     string     `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsOpen reports whether the pending still needs attention.
func (p *Pending) IsOpen() bool {
	return p.Status == PendingOpen || p.Status == PendingInProgress
}
