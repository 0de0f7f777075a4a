// Package pending manages the open items that hold a protocol back until
// they are resolved.
package pending

import (
	"context"
	"time"

	"github.com/pitabwire/digiurban/model"
)

// Store persists pendings.
type Store interface {
	Create(ctx context.Context, p model.Pending) error
	Get(ctx context.Context, tenantID, id string) (model.Pending, error)
	Update(ctx context.Context, p model.Pending) error

	// ListByProtocol returns a protocol's pendings ordered by creation time.
	// An empty status matches every status.
	ListByProtocol(ctx context.Context, tenantID, protocolID, status string) ([]model.Pending, error)

	// ListOverdue returns open pendings due before now. An empty tenantID
	// scans every tenant.
	ListOverdue(ctx context.Context, tenantID string, now time.Time) ([]model.Pending, error)
}
