package interaction

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

// NewGormStore creates a gorm-backed interaction store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Create(ctx context.Context, in model.Interaction) error {
	if err := s.db.WithContext(ctx).Create(&in).Error; err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, tenantID, id string) (model.Interaction, error) {
	var in model.Interaction
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&in).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Interaction{}, model.NewNotFoundError("Interação não encontrada")
	}
	if err != nil {
		return model.Interaction{}, fmt.Errorf("query interaction: %w", err)
	}
	return in, nil
}

func (s *GormStore) ListByProtocol(ctx context.Context, tenantID, protocolID string, f Filter) ([]model.Interaction, error) {
	var out []model.Interaction
	err := s.scope(ctx, tenantID, protocolID, f).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	return out, nil
}

func (s *GormStore) MarkRead(ctx context.Context, tenantID, id, readerID string, at time.Time) (model.Interaction, error) {
	err := s.db.WithContext(ctx).
		Model(&model.Interaction{}).
		Where("tenant_id = ? AND id = ? AND is_read = ?", tenantID, id, false).
		Updates(map[string]any{"is_read": true, "read_at": at, "read_by": readerID}).Error
	if err != nil {
		return model.Interaction{}, fmt.Errorf("mark interaction read: %w", err)
	}
	return s.Get(ctx, tenantID, id)
}

func (s *GormStore) MarkAllRead(ctx context.Context, tenantID, protocolID string, f Filter, readerID string, at time.Time) (int, error) {
	f.UnreadOnly = true
	res := s.scope(ctx, tenantID, protocolID, f).
		Model(&model.Interaction{}).
		Updates(map[string]any{"is_read": true, "read_at": at, "read_by": readerID})
	if res.Error != nil {
		return 0, fmt.Errorf("mark interactions read: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *GormStore) CountUnread(ctx context.Context, tenantID, protocolID string, f Filter) (int, error) {
	f.UnreadOnly = true
	var n int64
	if err := s.scope(ctx, tenantID, protocolID, f).Model(&model.Interaction{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count unread interactions: %w", err)
	}
	return int(n), nil
}

func (s *GormStore) scope(ctx context.Context, tenantID, protocolID string, f Filter) *gorm.DB {
	q := s.db.WithContext(ctx).Where("tenant_id = ? AND protocol_id = ?", tenantID, protocolID)
	if len(f.Visibilities) > 0 {
		q = q.Where("visibility IN ?", f.Visibilities)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Audience != "" {
		q = q.Where("audience = ?", f.Audience)
	}
	if f.UnreadOnly {
		q = q.Where("is_read = ?", false)
	}
	return q
}
