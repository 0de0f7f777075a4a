package model

import (
	"time"

	"gorm.io/datatypes"
)

// Interaction types.
const (
	InteractionComment             = "COMMENT"
	InteractionMessage             = "MESSAGE"
	InteractionStatusChange        = "STATUS_CHANGE"
	InteractionAssignment          = "ASSIGNMENT"
	InteractionDocumentUpload      = "DOCUMENT_UPLOAD"
	InteractionDocumentRequest     = "DOCUMENT_REQUEST"
	InteractionNotification        = "NOTIFICATION"
	InteractionPendingCreated      = "PENDING_CREATED"
	InteractionPendingResolved     = "PENDING_RESOLVED"
	InteractionInspectionScheduled = "INSPECTION_SCHEDULED"
	InteractionInspectionCompleted = "INSPECTION_COMPLETED"
	InteractionApproval            = "APPROVAL"
	InteractionRejection           = "REJECTION"
	InteractionCancellation        = "CANCELLATION"
	InteractionNote                = "NOTE"
	InteractionSystem              = "SYSTEM"
)

// InteractionTypes lists every accepted interaction type.
var InteractionTypes = []string{
	InteractionComment, InteractionMessage, InteractionStatusChange,
	InteractionAssignment, InteractionDocumentUpload, InteractionDocumentRequest,
	InteractionNotification, InteractionPendingCreated, InteractionPendingResolved,
	InteractionInspectionScheduled, InteractionInspectionCompleted,
	InteractionApproval, InteractionRejection, InteractionCancellation,
	InteractionNote, InteractionSystem,
}

// Interaction visibility.
const (
	VisibilityPublic   = "PUBLIC"
	VisibilityInternal = "INTERNAL"
	VisibilityPrivate  = "PRIVATE"
)

// Interaction is one append-only entry in a protocol's log. Only IsRead and
// ReadAt change after creation.
type Interaction struct {
	ID         string         `gorm:"primaryKey;type:uuid"  json:"id"`
	TenantID   string         `gorm:"index;not null"        json:"tenant_id"`
	ProtocolID string         `gorm:"index;not null"        json:"protocol_id"`
	Type       string         `gorm:"not null"              json:"type"`
	Message    string         `gorm:"type:text;not null"    json:"message"`
	AuthorType AuthorType     `gorm:"not null"              json:"author_type"`
	AuthorID   string         `json:"author_id,omitempty"`
	AuthorName string         `json:"author_name,omitempty"`
	Visibility string         `gorm:"not null"              json:"visibility"`
	Audience   AuthorType     `gorm:"not null"              json:"audience"`
	IsRead     bool           `gorm:"not null;default:false" json:"is_read"`
	ReadAt     *time.Time     `json:"read_at,omitempty"`
	ReadBy     string         `json:"read_by,omitempty"`
	Metadata   datatypes.JSON `gorm:"type:jsonb"            json:"metadata,omitempty"`
	CreatedAt  time.Time      `gorm:"index"                 json:"created_at"`
}

// NewInteraction describes an entry to append.
type NewInteraction struct {
	ProtocolID string         `json:"protocol_id"`
	Type       string         `json:"type"`
	Message    string         `json:"message"`
	Visibility string         `json:"visibility,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
