package document

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/pitabwire/digiurban/model"
)

// GormStore is a Store backed by gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a gorm-backed document store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Create(ctx context.Context, doc model.ProtocolDocument) error {
	if err := s.db.WithContext(ctx).Create(&doc).Error; err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, tenantID, id string) (model.ProtocolDocument, error) {
	var doc model.ProtocolDocument
	err := s.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.ProtocolDocument{}, errNotFound()
	}
	if err != nil {
		return model.ProtocolDocument{}, fmt.Errorf("query document: %w", err)
	}
	return doc, nil
}

func (s *GormStore) Update(ctx context.Context, doc model.ProtocolDocument) error {
	res := s.db.WithContext(ctx).
		Model(&model.ProtocolDocument{}).
		Where("tenant_id = ? AND id = ?", doc.TenantID, doc.ID).
		Select("*").
		Updates(&doc)
	if res.Error != nil {
		return fmt.Errorf("update document: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errNotFound()
	}
	return nil
}

func (s *GormStore) ListByProtocol(ctx context.Context, tenantID, protocolID string) ([]model.ProtocolDocument, error) {
	var out []model.ProtocolDocument
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND protocol_id = ?", tenantID, protocolID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	return out, nil
}

func (s *GormStore) Delete(ctx context.Context, tenantID, id string) error {
	res := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&model.ProtocolDocument{})
	if res.Error != nil {
		return fmt.Errorf("delete document: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errNotFound()
	}
	return nil
}
