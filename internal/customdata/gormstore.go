package customdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/pitabwire/digiurban/model"
)

// GormStore is a Store backed by gorm. Schemas and record data live in
// jsonb columns.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a gorm-backed custom data store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (g *GormStore) CreateTable(ctx context.Context, t model.CustomDataTable) error {
	err := g.db.WithContext(ctx).Create(&t).Error
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return errTableExists(t.TableName)
	}
	if err != nil {
		return fmt.Errorf("insert custom table: %w", err)
	}
	return nil
}

func (g *GormStore) GetTable(ctx context.Context, tenantID, id string) (model.CustomDataTable, error) {
	var t model.CustomDataTable
	err := g.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.CustomDataTable{}, errTableNotFound()
	}
	if err != nil {
		return model.CustomDataTable{}, fmt.Errorf("query custom table: %w", err)
	}
	return t, nil
}

func (g *GormStore) ListTables(ctx context.Context, tenantID string, f model.CustomTableFilter) ([]model.CustomDataTable, int, error) {
	q := g.db.WithContext(ctx).Model(&model.CustomDataTable{}).Where("tenant_id = ?", tenantID)
	if f.ModuleType != "" {
		q = q.Where("module_type = ?", f.ModuleType)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where("table_name ILIKE ? OR display_name ILIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count custom tables: %w", err)
	}
	q = q.Order("created_at DESC").Offset(f.Offset)
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []model.CustomDataTable
	if err := q.Find(&out).Error; err != nil {
		return nil, 0, fmt.Errorf("query custom tables: %w", err)
	}
	return out, int(total), nil
}

func (g *GormStore) UpdateTable(ctx context.Context, t model.CustomDataTable) error {
	res := g.db.WithContext(ctx).
		Model(&model.CustomDataTable{}).
		Where("tenant_id = ? AND id = ?", t.TenantID, t.ID).
		Select("*").
		Omit("created_at", "created_by").
		Updates(&t)
	if res.Error != nil {
		return fmt.Errorf("update custom table: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errTableNotFound()
	}
	return nil
}

func (g *GormStore) DeleteTable(ctx context.Context, tenantID, id string) error {
	res := g.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).Delete(&model.CustomDataTable{})
	if res.Error != nil {
		return fmt.Errorf("delete custom table: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errTableNotFound()
	}
	return nil
}

func (g *GormStore) CreateRecord(ctx context.Context, r model.CustomDataRecord) error {
	if err := g.db.WithContext(ctx).Create(&r).Error; err != nil {
		return fmt.Errorf("insert custom record: %w", err)
	}
	return nil
}

func (g *GormStore) GetRecord(ctx context.Context, tenantID, id string) (model.CustomDataRecord, error) {
	var r model.CustomDataRecord
	err := g.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.CustomDataRecord{}, errRecordNotFound()
	}
	if err != nil {
		return model.CustomDataRecord{}, fmt.Errorf("query custom record: %w", err)
	}
	return r, nil
}

func (g *GormStore) ListRecords(ctx context.Context, tenantID, tableID string, f model.CustomRecordFilter) ([]model.CustomDataRecord, int, error) {
	q := g.db.WithContext(ctx).Model(&model.CustomDataRecord{}).Where("tenant_id = ? AND table_id = ?", tenantID, tableID)
	if f.ProtocolID != "" {
		q = q.Where("protocol_id = ?", f.ProtocolID)
	}
	if f.ServiceID != "" {
		q = q.Where("service_id = ?", f.ServiceID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count custom records: %w", err)
	}
	q = q.Order("created_at DESC").Offset(f.Offset)
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []model.CustomDataRecord
	if err := q.Find(&out).Error; err != nil {
		return nil, 0, fmt.Errorf("query custom records: %w", err)
	}
	return out, int(total), nil
}

func (g *GormStore) UpdateRecord(ctx context.Context, r model.CustomDataRecord) error {
	res := g.db.WithContext(ctx).
		Model(&model.CustomDataRecord{}).
		Where("tenant_id = ? AND id = ?", r.TenantID, r.ID).
		Select("*").
		Omit("created_at", "created_by").
		Updates(&r)
	if res.Error != nil {
		return fmt.Errorf("update custom record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errRecordNotFound()
	}
	return nil
}

func (g *GormStore) DeleteRecord(ctx context.Context, tenantID, id string) error {
	res := g.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).Delete(&model.CustomDataRecord{})
	if res.Error != nil {
		return fmt.Errorf("delete custom record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errRecordNotFound()
	}
	return nil
}

func (g *GormStore) CountRecords(ctx context.Context, tenantID, tableID string) (int, error) {
	var n int64
	err := g.db.WithContext(ctx).Model(&model.CustomDataRecord{}).
		Where("tenant_id = ? AND table_id = ?", tenantID, tableID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count custom records: %w", err)
	}
	return int(n), nil
}

func (g *GormStore) Stats(ctx context.Context, tenantID string) (model.CustomDataStats, error) {
	st := model.CustomDataStats{ByModule: map[string]int{}}

	var rows []struct {
		ModuleType string
		Count      int
	}
	err := g.db.WithContext(ctx).Model(&model.CustomDataTable{}).
		Select("module_type, COUNT(*) AS count").
		Where("tenant_id = ?", tenantID).
		Group("module_type").
		Scan(&rows).Error
	if err != nil {
		return st, fmt.Errorf("count custom tables: %w", err)
	}
	for _, r := range rows {
		st.ByModule[r.ModuleType] = r.Count
		st.TotalTables += r.Count
	}

	var records int64
	if err := g.db.WithContext(ctx).Model(&model.CustomDataRecord{}).Where("tenant_id = ?", tenantID).Count(&records).Error; err != nil {
		return st, fmt.Errorf("count custom records: %w", err)
	}
	st.TotalRecords = int(records)
	return st, nil
}
