// Package tfd runs TFD (tratamento fora do domicílio) solicitations from
// document analysis through medical regulation, management approval and the
// trips that carry patients to treatment.
package tfd

import (
	"context"
	"time"

	"github.com/pitabwire/digiurban/model"
)

// Store persists solicitations and their trips.
type Store interface {
	Create(ctx context.Context, s model.Solicitacao) error

	// Get returns the solicitation with its trips ordered by schedule.
	Get(ctx context.Context, tenantID, id string) (model.Solicitacao, error)

	// List returns one page of solicitations, newest first, and the total
	// number matching f. Trips are not loaded.
	List(ctx context.Context, tenantID string, f model.TFDFilter) ([]model.Solicitacao, int, error)

	// Update replaces the solicitation when s.Version matches the stored
	// version and bumps the stored version. A mismatch is a CONFLICT.
	Update(ctx context.Context, s model.Solicitacao) error

	CreateViagem(ctx context.Context, v model.Viagem) error
	GetViagem(ctx context.Context, tenantID, id string) (model.Viagem, error)
	UpdateViagem(ctx context.Context, v model.Viagem) error

	// CreatedBetween returns the solicitations created in [from, to] with
	// their trips.
	CreatedBetween(ctx context.Context, tenantID string, from, to time.Time) ([]model.Solicitacao, error)
}

func errNotFound() error {
	return model.NewNotFoundError("Solicitação não encontrada")
}

func errViagemNotFound() error {
	return model.NewNotFoundError("Viagem não encontrada")
}
