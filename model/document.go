package model

import "time"

// Document statuses. APPROVED, REJECTED and EXPIRED are terminal for an
// instance; a new upload after REJECTED or EXPIRED creates a new instance.
const (
	DocumentPending     = "PENDING"
	DocumentUploaded    = "UPLOADED"
	DocumentUnderReview = "UNDER_REVIEW"
	DocumentApproved    = "APPROVED"
	DocumentRejected    = "REJECTED"
	DocumentExpired     = "EXPIRED"
)

// DocumentMachine is the lifecycle of one document instance.
var DocumentMachine = NewStatusMachine("document", DocumentPending,
	[]string{DocumentApproved, DocumentRejected, DocumentExpired},
	map[string][]string{
		DocumentPending:     {DocumentUploaded, DocumentExpired},
		DocumentUploaded:    {DocumentUploaded, DocumentUnderReview, DocumentApproved, DocumentRejected, DocumentExpired},
		DocumentUnderReview: {DocumentApproved, DocumentRejected, DocumentExpired},
	})

// ProtocolDocument tracks one required or supplied document of a protocol.
type ProtocolDocument struct {
	ID              string     `gorm:"primaryKey;type:uuid"            json:"id"`
	TenantID        string     `gorm:"index;not null"                  json:"tenant_id"`
	ProtocolID      string     `gorm:"index;not null"                  json:"protocol_id"`
	DocumentType    string     `gorm:"index;not null"                  json:"document_type"`
	Description     string     `json:"description,omitempty"`
	IsRequired      bool       `gorm:"not null;default:true"           json:"is_required"`
	Status          string     `gorm:"not null"                        json:"status"`
	FileName        string     `json:"file_name,omitempty"`
	FileURL         string     `json:"file_url,omitempty"`
	FileSize        int64      `json:"file_size,omitempty"`
	MimeType        string     `json:"mime_type,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	UploadedAt      *time.Time `json:"uploaded_at,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	ReviewedBy      string     `json:"reviewed_by,omitempty"`
	ValidUntil      *time.Time `json:"valid_until,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// DocumentFile is the metadata of an uploaded file. The binary itself lives
// in external storage addressed by FileURL.
type DocumentFile struct {
	FileName   string     `json:"file_name"`
	FileURL    string     `json:"file_url"`
	FileSize   int64      `json:"file_size"`
	MimeType   string     `json:"mime_type"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

// RequiredDocumentsCheck summarises the required documents of a protocol.
type RequiredDocumentsCheck struct {
	Complete bool     `json:"complete"`
	Missing  []string `json:"missing"`
	Pending  []string `json:"pending"`
	Rejected []string `json:"rejected"`
	Approved []string `json:"approved"`
}
