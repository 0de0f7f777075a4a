package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/pitabwire/digiurban/model"
)

// GormStore is a Store backed by gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a gorm-backed stock store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (g *GormStore) CreateMedicamento(ctx context.Context, m model.Medicamento) error {
	err := g.db.WithContext(ctx).Create(&m).Error
	if isUniqueViolation(err) {
		return errMedicamentoDuplicado()
	}
	if err != nil {
		return fmt.Errorf("insert medicamento: %w", err)
	}
	return nil
}

func (g *GormStore) GetMedicamento(ctx context.Context, tenantID, id string) (model.Medicamento, error) {
	var m model.Medicamento
	err := g.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Medicamento{}, errMedicamentoNotFound()
	}
	if err != nil {
		return model.Medicamento{}, fmt.Errorf("query medicamento: %w", err)
	}
	return m, nil
}

func (g *GormStore) ListMedicamentos(ctx context.Context, tenantID, search string) ([]model.Medicamento, error) {
	q := g.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if search != "" {
		like := "%" + search + "%"
		q = q.Where("nome ILIKE ? OR principio_ativo ILIKE ?", like, like)
	}
	var out []model.Medicamento
	if err := q.Order("nome ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query medicamentos: %w", err)
	}
	return out, nil
}

func (g *GormStore) CreateEstoque(ctx context.Context, e model.Estoque) error {
	err := g.db.WithContext(ctx).Create(&e).Error
	if isUniqueViolation(err) {
		return errLoteDuplicado()
	}
	if err != nil {
		return fmt.Errorf("insert estoque: %w", err)
	}
	return nil
}

func (g *GormStore) GetEstoque(ctx context.Context, tenantID, id string) (model.Estoque, error) {
	var e model.Estoque
	err := g.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Estoque{}, errEstoqueNotFound()
	}
	if err != nil {
		return model.Estoque{}, fmt.Errorf("query estoque: %w", err)
	}
	return e, nil
}

func (g *GormStore) UpdateEstoque(ctx context.Context, e model.Estoque) error {
	expected := e.Version
	e.Version++
	res := g.db.WithContext(ctx).
		Model(&model.Estoque{}).
		Where("tenant_id = ? AND id = ? AND version = ?", e.TenantID, e.ID, expected).
		Select("*").
		Omit("created_at").
		Updates(&e)
	if res.Error != nil {
		return fmt.Errorf("update estoque: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.NewConflictError(
			fmt.Sprintf("Estoque %s foi alterado por outra operação", e.Lote))
	}
	return nil
}

func (g *GormStore) ListEstoque(ctx context.Context, tenantID string, f EstoqueFilter) ([]model.Estoque, error) {
	q := g.db.WithContext(ctx).Model(&model.Estoque{})
	if tenantID != "" {
		q = q.Where("tenant_id = ?", tenantID)
	}
	if f.MedicamentoID != "" {
		q = q.Where("medicamento_id = ?", f.MedicamentoID)
	}
	if f.UnidadeID != "" {
		q = q.Where("unidade_id = ?", f.UnidadeID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.ValidadeAte != nil {
		q = q.Where("data_validade <= ?", *f.ValidadeAte)
	}
	var out []model.Estoque
	if err := q.Order("data_validade ASC, lote ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query estoques: %w", err)
	}
	return out, nil
}

func (g *GormStore) CreateDispensacao(ctx context.Context, d model.Dispensacao) error {
	if err := g.db.WithContext(ctx).Create(&d).Error; err != nil {
		return fmt.Errorf("insert dispensacao: %w", err)
	}
	return nil
}

func (g *GormStore) GetDispensacao(ctx context.Context, tenantID, id string) (model.Dispensacao, error) {
	var d model.Dispensacao
	err := g.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Dispensacao{}, errDispensacaoNotFound()
	}
	if err != nil {
		return model.Dispensacao{}, fmt.Errorf("query dispensacao: %w", err)
	}
	return d, nil
}

func (g *GormStore) UpdateDispensacao(ctx context.Context, d model.Dispensacao) error {
	expected := d.Version
	d.Version++
	res := g.db.WithContext(ctx).
		Model(&model.Dispensacao{}).
		Where("tenant_id = ? AND id = ? AND version = ?", d.TenantID, d.ID, expected).
		Select("*").
		Omit("created_at").
		Updates(&d)
	if res.Error != nil {
		return fmt.Errorf("update dispensacao: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := g.db.WithContext(ctx).Model(&model.Dispensacao{}).
		Where("tenant_id = ? AND id = ?", d.TenantID, d.ID).Count(&count).Error; err != nil {
		return fmt.Errorf("query dispensacao: %w", err)
	}
	if count == 0 {
		return errDispensacaoNotFound()
	}
	return errDispensacaoAlterada()
}

// Transaction runs fn inside a database transaction.
func (g *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (g *GormStore) ListDispensacoes(ctx context.Context, tenantID string, f DispensacaoFilter) ([]model.Dispensacao, error) {
	q := g.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.MedicamentoID != "" {
		q = q.Where("medicamento_id = ?", f.MedicamentoID)
	}
	if f.CitizenID != "" {
		q = q.Where("citizen_id = ?", f.CitizenID)
	}
	if f.DispensadoDe != nil {
		q = q.Where("dispensado_em >= ?", *f.DispensadoDe)
	}
	if f.DispensadoAte != nil {
		q = q.Where("dispensado_em <= ?", *f.DispensadoAte)
	}
	var out []model.Dispensacao
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query dispensacoes: %w", err)
	}
	return out, nil
}
