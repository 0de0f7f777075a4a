// Package stock tracks medication lots held by health units and the
// dispensations that draw from them.
package stock

import (
	"context"
	"time"

	"github.com/pitabwire/digiurban/model"
)

// EstoqueFilter narrows a lot listing. Zero fields match everything.
type EstoqueFilter struct {
	MedicamentoID string
	UnidadeID     string
	Statuses      []string
	ValidadeAte   *time.Time
}

// DispensacaoFilter narrows a dispensation listing.
type DispensacaoFilter struct {
	Status        string
	MedicamentoID string
	CitizenID     string
	// DispensadoDe and DispensadoAte bound DispensadoEm inclusively.
	DispensadoDe  *time.Time
	DispensadoAte *time.Time
}

// Store persists medications, lots and dispensations.
type Store interface {
	// CreateMedicamento fails with CONFLICT when the tenant already has a
	// medication with the same name and active ingredient.
	CreateMedicamento(ctx context.Context, m model.Medicamento) error
	GetMedicamento(ctx context.Context, tenantID, id string) (model.Medicamento, error)
	ListMedicamentos(ctx context.Context, tenantID, search string) ([]model.Medicamento, error)

	// CreateEstoque fails with CONFLICT when the lot already exists at the
	// unit for the medication.
	CreateEstoque(ctx context.Context, e model.Estoque) error
	GetEstoque(ctx context.Context, tenantID, id string) (model.Estoque, error)

	// UpdateEstoque replaces the lot when e.Version matches and bumps the
	// stored version. A mismatch is a CONFLICT.
	UpdateEstoque(ctx context.Context, e model.Estoque) error

	// ListEstoque returns lots ordered by expiry, earliest first. An empty
	// tenantID lists every tenant.
	ListEstoque(ctx context.Context, tenantID string, f EstoqueFilter) ([]model.Estoque, error)

	CreateDispensacao(ctx context.Context, d model.Dispensacao) error
	GetDispensacao(ctx context.Context, tenantID, id string) (model.Dispensacao, error)

	// UpdateDispensacao replaces the dispensation when d.Version matches and
	// bumps the stored version. A mismatch is a CONFLICT.
	UpdateDispensacao(ctx context.Context, d model.Dispensacao) error
	ListDispensacoes(ctx context.Context, tenantID string, f DispensacaoFilter) ([]model.Dispensacao, error)

	// Transaction runs fn against a Store whose writes commit together when
	// fn returns nil and are discarded otherwise.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

func errMedicamentoNotFound() error {
	return model.NewNotFoundError("Medicamento não encontrado")
}

func errEstoqueNotFound() error {
	return model.NewNotFoundError("Estoque não encontrado")
}

func errDispensacaoNotFound() error {
	return model.NewNotFoundError("Dispensação não encontrada")
}

func errDispensacaoAlterada() error {
	return model.NewConflictError("Dispensação foi alterada por outra operação")
}

func errLoteDuplicado() error {
	return model.NewConflictError("Já existe estoque cadastrado para este lote nesta unidade")
}

func errMedicamentoDuplicado() error {
	return model.NewConflictError("Medicamento com este nome e princípio ativo já existe")
}
