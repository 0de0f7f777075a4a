// Package customdata lets administrators define data capture tables per
// module and stores the records captured against them.
package customdata

import (
	"context"
	"fmt"

	"github.com/pitabwire/digiurban/model"
)

// Store persists custom tables and records.
type Store interface {
	// CreateTable fails with CONFLICT when the tenant already has a table
	// with the same name.
	CreateTable(ctx context.Context, t model.CustomDataTable) error
	GetTable(ctx context.Context, tenantID, id string) (model.CustomDataTable, error)
	ListTables(ctx context.Context, tenantID string, f model.CustomTableFilter) ([]model.CustomDataTable, int, error)
	UpdateTable(ctx context.Context, t model.CustomDataTable) error
	DeleteTable(ctx context.Context, tenantID, id string) error

	CreateRecord(ctx context.Context, r model.CustomDataRecord) error
	GetRecord(ctx context.Context, tenantID, id string) (model.CustomDataRecord, error)
	ListRecords(ctx context.Context, tenantID, tableID string, f model.CustomRecordFilter) ([]model.CustomDataRecord, int, error)
	UpdateRecord(ctx context.Context, r model.CustomDataRecord) error
	DeleteRecord(ctx context.Context, tenantID, id string) error
	CountRecords(ctx context.Context, tenantID, tableID string) (int, error)

	Stats(ctx context.Context, tenantID string) (model.CustomDataStats, error)
}

func errTableNotFound() error {
	return model.NewNotFoundError("Tabela não encontrada")
}

func errRecordNotFound() error {
	return model.NewNotFoundError("Registro não encontrado")
}

func errTableExists(name string) error {
	return model.NewConflictError(fmt.Sprintf("Tabela %q já existe", name))
}
