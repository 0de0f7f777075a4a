package pending

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/pitabwire/digiurban/model"
)

// GormStore is a Store backed by gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a gorm-backed pending store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Create(ctx context.Context, p model.Pending) error {
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return fmt.Errorf("insert pending: %w", err)
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, tenantID, id string) (model.Pending, error) {
	var p model.Pending
	err := s.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Pending{}, errNotFound()
	}
	if err != nil {
		return model.Pending{}, fmt.Errorf("query pending: %w", err)
	}
	return p, nil
}

func (s *GormStore) Update(ctx context.Context, p model.Pending) error {
	res := s.db.WithContext(ctx).
		Model(&model.Pending{}).
		Where("tenant_id = ? AND id = ?", p.TenantID, p.ID).
		Select("*").
		Updates(&p)
	if res.Error != nil {
		return fmt.Errorf("update pending: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errNotFound()
	}
	return nil
}

func (s *GormStore) ListByProtocol(ctx context.Context, tenantID, protocolID, status string) ([]model.Pending, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ? AND protocol_id = ?", tenantID, protocolID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []model.Pending
	if err := q.Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query pendings: %w", err)
	}
	return out, nil
}

func (s *GormStore) ListOverdue(ctx context.Context, tenantID string, now time.Time) ([]model.Pending, error) {
	q := s.db.WithContext(ctx).
		Where("status IN ?", []string{model.PendingOpen, model.PendingInProgress}).
		Where("due_date IS NOT NULL AND due_date < ?", now)
	if tenantID != "" {
		q = q.Where("tenant_id = ?", tenantID)
	}
	var out []model.Pending
	if err := q.Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query overdue pendings: %w", err)
	}
	return out, nil
}
