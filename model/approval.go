package model

import "time"

// ApprovalDecision is an authorized approve or reject at a gate.
type ApprovalDecision struct {
	Approved       bool     `json:"approved"`
	Justification  string   `json:"justification"`
	EstimatedValue *float64 `json:"estimated_value,omitempty"`
	IdempotencyKey string   `json:"-"`
}

// ApprovalSubject is the current state of the entity a gate decides on.
type ApprovalSubject struct {
	ID         string
	ProtocolID string
	Status     string
	Version    int
}

// ApprovalOutcome records a decision and the transition it caused.
type ApprovalOutcome struct {
	GateID         string    `json:"gate_id"`
	SubjectID      string    `json:"subject_id"`
	ProtocolID     string    `json:"protocol_id,omitempty"`
	Approved       bool      `json:"approved"`
	FromStatus     string    `json:"from_status"`
	ToStatus       string    `json:"to_status"`
	Justification  string    `json:"justification"`
	EstimatedValue *float64  `json:"estimated_value,omitempty"`
	DecidedBy      string    `json:"decided_by"`
	DecidedByName  string    `json:"decided_by_name,omitempty"`
	DecidedAt      time.Time `json:"decided_at"`
}
