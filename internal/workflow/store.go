package workflow

import (
	"context"

	"github.com/pitabwire/digiurban/model"
)

// InstanceStore persists protocol stage instances and their audit trail.
// There is at most one instance per protocol.
type InstanceStore interface {
	// Create persists a new instance. CONFLICT if the protocol already has one.
	Create(ctx context.Context, wf model.ProtocolWorkflow) error

	// GetByProtocol retrieves the instance of a protocol, scoped to tenant.
	GetByProtocol(ctx context.Context, tenantID, protocolID string) (model.ProtocolWorkflow, error)

	// Update persists an updated instance with optimistic locking. The
	// instance's Version must match the stored version.
	Update(ctx context.Context, wf model.ProtocolWorkflow) error

	// AppendEvent adds an event to the instance's audit trail.
	AppendEvent(ctx context.Context, event model.WorkflowEvent) error

	// GetEvents retrieves all events for an instance, ordered by timestamp.
	GetEvents(ctx context.Context, tenantID, workflowID string) ([]model.WorkflowEvent, error)

	// CountByStatus counts a tenant's instances per status.
	CountByStatus(ctx context.Context, tenantID string) (model.StageCounts, error)

	// Delete removes an instance and its events.
	Delete(ctx context.Context, tenantID, protocolID string) error
}

// TemplateStore persists tenant-specific workflow templates.
type TemplateStore interface {
	// Get retrieves a tenant template. NOT_FOUND if the tenant has none.
	Get(ctx context.Context, tenantID, moduleType string) (model.WorkflowTemplate, error)

	// List returns all templates stored for a tenant.
	List(ctx context.Context, tenantID string) ([]model.WorkflowTemplate, error)

	// Save creates or replaces a template. When expectedVersion is non-zero
	// the stored version must match it. Returns the stored template.
	Save(ctx context.Context, tenantID string, tpl model.WorkflowTemplate, expectedVersion int) (model.WorkflowTemplate, error)

	// Delete removes a tenant template.
	Delete(ctx context.Context, tenantID, moduleType string) error
}
