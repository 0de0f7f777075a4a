package tfd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pitabwire/digiurban/model"
)

// GormStore is a Store backed by gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a gorm-backed TFD store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func byAgenda(db *gorm.DB) *gorm.DB {
	return db.Order("data_agendamento ASC")
}

func (g *GormStore) Create(ctx context.Context, s model.Solicitacao) error {
	s.Viagens = nil
	if err := g.db.WithContext(ctx).Omit(clause.Associations).Create(&s).Error; err != nil {
		return fmt.Errorf("insert solicitacao: %w", err)
	}
	return nil
}

func (g *GormStore) Get(ctx context.Context, tenantID, id string) (model.Solicitacao, error) {
	var s model.Solicitacao
	err := g.db.WithContext(ctx).
		Preload("Viagens", byAgenda).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Solicitacao{}, errNotFound()
	}
	if err != nil {
		return model.Solicitacao{}, fmt.Errorf("query solicitacao: %w", err)
	}
	return s, nil
}

func (g *GormStore) List(ctx context.Context, tenantID string, f model.TFDFilter) ([]model.Solicitacao, int, error) {
	q := g.db.WithContext(ctx).Model(&model.Solicitacao{}).Where("tenant_id = ?", tenantID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.CitizenID != "" {
		q = q.Where("citizen_id = ?", f.CitizenID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count solicitacoes: %w", err)
	}

	q = q.Order("created_at DESC").Offset(f.Offset)
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []model.Solicitacao
	if err := q.Find(&out).Error; err != nil {
		return nil, 0, fmt.Errorf("query solicitacoes: %w", err)
	}
	return out, int(total), nil
}

func (g *GormStore) Update(ctx context.Context, s model.Solicitacao) error {
	expected := s.Version
	s.Version++
	s.Viagens = nil
	res := g.db.WithContext(ctx).
		Model(&model.Solicitacao{}).
		Where("tenant_id = ? AND id = ? AND version = ?", s.TenantID, s.ID, expected).
		Select("*").
		Omit("created_at", clause.Associations).
		Updates(&s)
	if res.Error != nil {
		return fmt.Errorf("update solicitacao: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.NewConflictError(
			fmt.Sprintf("Solicitação %s foi alterada por outra operação", s.ID))
	}
	return nil
}

func (g *GormStore) CreateViagem(ctx context.Context, v model.Viagem) error {
	if err := g.db.WithContext(ctx).Create(&v).Error; err != nil {
		return fmt.Errorf("insert viagem: %w", err)
	}
	return nil
}

func (g *GormStore) GetViagem(ctx context.Context, tenantID, id string) (model.Viagem, error) {
	var v model.Viagem
	err := g.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Viagem{}, errViagemNotFound()
	}
	if err != nil {
		return model.Viagem{}, fmt.Errorf("query viagem: %w", err)
	}
	return v, nil
}

func (g *GormStore) UpdateViagem(ctx context.Context, v model.Viagem) error {
	res := g.db.WithContext(ctx).
		Model(&model.Viagem{}).
		Where("tenant_id = ? AND id = ?", v.TenantID, v.ID).
		Select("*").
		Omit("created_at").
		Updates(&v)
	if res.Error != nil {
		return fmt.Errorf("update viagem: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errViagemNotFound()
	}
	return nil
}

func (g *GormStore) CreatedBetween(ctx context.Context, tenantID string, from, to time.Time) ([]model.Solicitacao, error) {
	var out []model.Solicitacao
	err := g.db.WithContext(ctx).
		Preload("Viagens", byAgenda).
		Where("tenant_id = ? AND created_at BETWEEN ? AND ?", tenantID, from, to).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("query relatorio tfd: %w", err)
	}
	return out, nil
}
