package model

import (
	"time"

	"gorm.io/datatypes"
)

// Custom field types.
const (
	FieldText    = "text"
	FieldNumber  = "number"
	FieldDate    = "date"
	FieldBoolean = "boolean"
	FieldSelect  = "select"
)

// FieldTypes lists the supported custom field types.
var FieldTypes = []string{FieldText, FieldNumber, FieldDate, FieldBoolean, FieldSelect}

// CustomField describes one field of a custom table schema.
type CustomField struct {
	Name      string   `json:"name"`
	Label     string   `json:"label"`
	Type      string   `json:"type"`
	Required  bool     `json:"required,omitempty"`
	Options   []string `json:"options,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	MaxLength int      `json:"max_length,omitempty"`
}

// DisplayLabel returns the label, falling back to the field name.
func (f CustomField) DisplayLabel() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

// CustomSchema is the field list of a custom table.
type CustomSchema struct {
	Fields []CustomField `json:"fields"`
}

// CustomDataTable is an admin-defined data capture schema.
type CustomDataTable struct {
	ID          string                           `gorm:"primaryKey;type:uuid"                json:"id"`
	TenantID    string                           `gorm:"uniqueIndex:idx_custom_table_name;not null" json:"tenant_id"`
	TableName   string                           `gorm:"uniqueIndex:idx_custom_table_name;not null" json:"table_name"`
	DisplayName string                           `gorm:"not null"                            json:"display_name"`
	Description string                           `json:"description,omitempty"`
	ModuleType  string                           `gorm:"index;not null"                      json:"module_type"`
	Schema      datatypes.JSONType[CustomSchema] `gorm:"type:jsonb;not null"                 json:"schema"`
	IsActive    bool                             `gorm:"not null;default:true"               json:"is_active"`
	CreatedBy   string                           `json:"created_by,omitempty"`
	CreatedAt   time.Time                        `json:"created_at"`
	UpdatedAt   time.Time                        `json:"updated_at"`
}

// Fields returns the schema fields.
func (t *CustomDataTable) Fields() []CustomField {
	return t.Schema.Data().Fields
}

// CustomDataRecord is one row captured against a custom table.
type CustomDataRecord struct {
	ID         string                             `gorm:"primaryKey;type:uuid" json:"id"`
	TenantID   string                             `gorm:"index;not null"       json:"tenant_id"`
	TableID    string                             `gorm:"index;not null"       json:"table_id"`
	ProtocolID string                             `gorm:"index"                json:"protocol_id,omitempty"`
	ServiceID  string                             `gorm:"index"                json:"service_id,omitempty"`
	Data       datatypes.JSONType[map[string]any] `gorm:"type:jsonb;not null"  json:"data"`
	CreatedBy  string                             `json:"created_by,omitempty"`
	CreatedAt  time.Time                          `gorm:"index"                json:"created_at"`
	UpdatedAt  time.Time                          `json:"updated_at"`
}

// CustomTableFilter restricts table listings.
type CustomTableFilter struct {
	ModuleType string
	Search     string
	Offset     int
	Limit      int
}

// CustomRecordFilter restricts record listings.
type CustomRecordFilter struct {
	ProtocolID string
	ServiceID  string
	Offset     int
	Limit      int
}

// CustomDataStats summarises the custom module subsystem.
type CustomDataStats struct {
	TotalTables  int            `json:"total_tables"`
	TotalRecords int            `json:"total_records"`
	ByModule     map[string]int `json:"by_module"`
}
