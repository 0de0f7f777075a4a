// Package document tracks the documents requested from and supplied by
// citizens for each protocol.
package document

import (
	"context"

	"github.com/pitabwire/digiurban/model"
)

// Store persists protocol documents.
type Store interface {
	Create(ctx context.Context, doc model.ProtocolDocument) error
	Get(ctx context.Context, tenantID, id string) (model.ProtocolDocument, error)
	Update(ctx context.Context, doc model.ProtocolDocument) error

	// ListByProtocol returns a protocol's documents ordered by creation time.
	ListByProtocol(ctx context.Context, tenantID, protocolID string) ([]model.ProtocolDocument, error)

	Delete(ctx context.Context, tenantID, id string) error
}
