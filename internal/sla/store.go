// Package sla tracks the business-day deadline of each protocol.
package sla

import (
	"context"

	"github.com/pitabwire/digiurban/model"
)

// Store persists protocol SLAs. There is at most one SLA per protocol.
type Store interface {
	// Create persists a new SLA. CONFLICT if the protocol already has one.
	Create(ctx context.Context, s model.ProtocolSLA) error

	GetByProtocol(ctx context.Context, tenantID, protocolID string) (model.ProtocolSLA, error)

	// Update persists s with optimistic locking on Version.
	Update(ctx context.Context, s model.ProtocolSLA) error

	// List returns SLAs with one of statuses, or all when statuses is empty.
	// An empty tenantID lists every tenant.
	List(ctx context.Context, tenantID string, statuses []string) ([]model.ProtocolSLA, error)

	Delete(ctx context.Context, tenantID, protocolID string) error
}
