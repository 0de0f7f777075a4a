// Package protocol owns the protocol aggregate: numbering, status
// transitions, assignment, evaluation, history and search.
package protocol

import (
	"context"
	"time"

	"github.com/pitabwire/digiurban/model"
)

// Store persists protocols, their history and evaluations.
type Store interface {
	// Create persists a new protocol. CONFLICT if the number is taken.
	Create(ctx context.Context, p model.Protocol) error

	Get(ctx context.Context, tenantID, id string) (model.Protocol, error)
	GetByNumber(ctx context.Context, tenantID, number string) (model.Protocol, error)

	// List returns one page of matching protocols, newest first, and the
	// total number of matches.
	List(ctx context.Context, tenantID string, f model.ProtocolFilters) ([]model.Protocol, int, error)

	// Update persists p with optimistic locking on Version.
	Update(ctx context.Context, p model.Protocol) error

	// NextSequence returns the next protocol sequence of a tenant's year,
	// starting at 1.
	NextSequence(ctx context.Context, tenantID string, year int) (int, error)

	AppendHistory(ctx context.Context, tenantID string, h model.ProtocolHistory) error

	// History returns a protocol's history, newest first.
	History(ctx context.Context, tenantID, protocolID string) ([]model.ProtocolHistory, error)

	// CreateEvaluation stores the rating of a protocol. CONFLICT if the
	// protocol was already rated.
	CreateEvaluation(ctx context.Context, tenantID string, e model.ProtocolEvaluation) error

	// DepartmentStats counts a department's protocols created in [from, to].
	DepartmentStats(ctx context.Context, tenantID, departmentID string, from, to *time.Time) (model.DepartmentStats, error)
}

func errNotFound() error {
	return model.NewNotFoundError("Protocolo não encontrado")
}

func errAlreadyRated() error {
	return model.NewConflictError("Protocolo já foi avaliado")
}
