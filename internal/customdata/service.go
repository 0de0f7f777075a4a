package customdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/pitabwire/digiurban/internal/observability"
	"github.com/pitabwire/digiurban/model"
)

// Service manages custom tables and their records.
type Service struct {
	store   Store
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a custom data service.
func NewService(store Store, metrics *observability.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   store,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// TableInput describes a table to create.
type TableInput struct {
	TableName   string              `json:"table_name"`
	DisplayName string              `json:"display_name"`
	Description string              `json:"description,omitempty"`
	ModuleType  string              `json:"module_type"`
	Schema      *model.CustomSchema `json:"schema"`
}

// CreateTable defines a new custom table.
func (s *Service) CreateTable(ctx context.Context, rctx *model.RequestContext, in TableInput) (model.CustomDataTable, error) {
	if strings.TrimSpace(in.TableName) == "" || strings.TrimSpace(in.DisplayName) == "" ||
		strings.TrimSpace(in.ModuleType) == "" || in.Schema == nil {
		return model.CustomDataTable{}, model.NewValidationMessage(
			"Campos obrigatórios: tableName, displayName, moduleType, schema")
	}
	if !tableNamePattern.MatchString(in.TableName) {
		return model.CustomDataTable{}, model.NewFieldValidationError("table_name", "INVALID",
			"tableName deve conter apenas letras minúsculas, números e underscore")
	}
	if details := ValidateSchema(*in.Schema); len(details) > 0 {
		return model.CustomDataTable{}, model.NewValidationError(details)
	}

	now := s.now()
	t := model.CustomDataTable{
		ID:          uuid.New().String(),
		TenantID:    rctx.TenantID,
		TableName:   in.TableName,
		DisplayName: strings.TrimSpace(in.DisplayName),
		Description: in.Description,
		ModuleType:  in.ModuleType,
		Schema:      datatypes.NewJSONType(*in.Schema),
		IsActive:    true,
		CreatedBy:   rctx.SubjectID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateTable(ctx, t); err != nil {
		return model.CustomDataTable{}, err
	}
	observability.RequestLogger(ctx, s.logger).Info("custom table created",
		zap.String("table_id", t.ID),
		zap.String("table_name", t.TableName),
		zap.Int("fields", len(in.Schema.Fields)),
	)
	return t, nil
}

// GetTable returns one table.
func (s *Service) GetTable(ctx context.Context, rctx *model.RequestContext, id string) (model.CustomDataTable, error) {
	return s.store.GetTable(ctx, rctx.TenantID, id)
}

// ListTables returns one page of tables.
func (s *Service) ListTables(ctx context.Context, rctx *model.RequestContext, f model.CustomTableFilter) ([]model.CustomDataTable, int, error) {
	return s.store.ListTables(ctx, rctx.TenantID, f)
}

// TableUpdate carries the mutable table attributes. Nil fields are kept.
type TableUpdate struct {
	DisplayName *string             `json:"display_name,omitempty"`
	Description *string             `json:"description,omitempty"`
	Schema      *model.CustomSchema `json:"schema,omitempty"`
	IsActive    *bool               `json:"is_active,omitempty"`
}

// UpdateTable changes a table's display attributes, schema or activity.
// Existing records are not revalidated against a new schema.
func (s *Service) UpdateTable(ctx context.Context, rctx *model.RequestContext, id string, in TableUpdate) (model.CustomDataTable, error) {
	t, err := s.store.GetTable(ctx, rctx.TenantID, id)
	if err != nil {
		return model.CustomDataTable{}, err
	}
	if in.DisplayName != nil {
		if strings.TrimSpace(*in.DisplayName) == "" {
			return model.CustomDataTable{}, model.NewFieldValidationError("display_name", "REQUIRED", "Nome de exibição é obrigatório")
		}
		t.DisplayName = strings.TrimSpace(*in.DisplayName)
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.Schema != nil {
		if details := ValidateSchema(*in.Schema); len(details) > 0 {
			return model.CustomDataTable{}, model.NewValidationError(details)
		}
		t.Schema = datatypes.NewJSONType(*in.Schema)
	}
	if in.IsActive != nil {
		t.IsActive = *in.IsActive
	}
	t.UpdatedAt = s.now()
	if err := s.store.UpdateTable(ctx, t); err != nil {
		return model.CustomDataTable{}, err
	}
	return t, nil
}

// DeleteTable removes a table that holds no records.
func (s *Service) DeleteTable(ctx context.Context, rctx *model.RequestContext, id string) error {
	if _, err := s.store.GetTable(ctx, rctx.TenantID, id); err != nil {
		return err
	}
	n, err := s.store.CountRecords(ctx, rctx.TenantID, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return model.NewConflictError(fmt.Sprintf(
			"Não é possível deletar tabela com %d registro(s). Delete os registros primeiro.", n))
	}
	return s.store.DeleteTable(ctx, rctx.TenantID, id)
}

// RecordInput describes record contents.
type RecordInput struct {
	ProtocolID string         `json:"protocol_id,omitempty"`
	ServiceID  string         `json:"service_id,omitempty"`
	Data       map[string]any `json:"data"`
}

// CreateRecord validates data against the table schema and stores it.
func (s *Service) CreateRecord(ctx context.Context, rctx *model.RequestContext, tableID string, in RecordInput) (model.CustomDataRecord, error) {
	t, err := s.store.GetTable(ctx, rctx.TenantID, tableID)
	if err != nil {
		return model.CustomDataRecord{}, err
	}
	if !t.IsActive {
		return model.CustomDataRecord{}, model.NewBadRequestError("Tabela inativa não aceita novos registros")
	}
	if err := s.validate(t, in.Data); err != nil {
		return model.CustomDataRecord{}, err
	}

	now := s.now()
	r := model.CustomDataRecord{
		ID:         uuid.New().String(),
		TenantID:   rctx.TenantID,
		TableID:    t.ID,
		ProtocolID: in.ProtocolID,
		ServiceID:  in.ServiceID,
		Data:       datatypes.NewJSONType(in.Data),
		CreatedBy:  rctx.SubjectID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateRecord(ctx, r); err != nil {
		return model.CustomDataRecord{}, err
	}
	return r, nil
}

// GetRecord returns one record.
func (s *Service) GetRecord(ctx context.Context, rctx *model.RequestContext, id string) (model.CustomDataRecord, error) {
	return s.store.GetRecord(ctx, rctx.TenantID, id)
}

// ListRecords returns one page of a table's records.
func (s *Service) ListRecords(ctx context.Context, rctx *model.RequestContext, tableID string, f model.CustomRecordFilter) ([]model.CustomDataRecord, int, error) {
	if _, err := s.store.GetTable(ctx, rctx.TenantID, tableID); err != nil {
		return nil, 0, err
	}
	return s.store.ListRecords(ctx, rctx.TenantID, tableID, f)
}

// UpdateRecord replaces a record's data after validating it.
func (s *Service) UpdateRecord(ctx context.Context, rctx *model.RequestContext, id string, data map[string]any) (model.CustomDataRecord, error) {
	r, err := s.store.GetRecord(ctx, rctx.TenantID, id)
	if err != nil {
		return model.CustomDataRecord{}, err
	}
	t, err := s.store.GetTable(ctx, rctx.TenantID, r.TableID)
	if err != nil {
		return model.CustomDataRecord{}, err
	}
	if err := s.validate(t, data); err != nil {
		return model.CustomDataRecord{}, err
	}
	r.Data = datatypes.NewJSONType(data)
	r.UpdatedAt = s.now()
	if err := s.store.UpdateRecord(ctx, r); err != nil {
		return model.CustomDataRecord{}, err
	}
	return r, nil
}

// DeleteRecord removes one record.
func (s *Service) DeleteRecord(ctx context.Context, rctx *model.RequestContext, id string) error {
	return s.store.DeleteRecord(ctx, rctx.TenantID, id)
}

// Stats summarises the tenant's custom tables.
func (s *Service) Stats(ctx context.Context, rctx *model.RequestContext) (model.CustomDataStats, error) {
	return s.store.Stats(ctx, rctx.TenantID)
}

func (s *Service) validate(t model.CustomDataTable, data map[string]any) error {
	if data == nil {
		return model.NewFieldValidationError("data", "REQUIRED", `Campo "data" é obrigatório`)
	}
	details := ValidateRecord(t.Fields(), data)
	if len(details) == 0 {
		return nil
	}
	s.metrics.RecordCustomRecordValidationFailure(t.TableName)
	if len(details) == 1 {
		return model.NewFieldValidationError(details[0].Field, details[0].Code, details[0].Message)
	}
	return model.NewValidationError(details)
}
