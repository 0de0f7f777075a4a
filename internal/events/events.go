// Package events publishes domain events (protocol, approval, SLA and stock
// changes) to interested consumers. Publishing is fire-and-forget for the
// caller: a failed publish is logged and counted, never returned.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/digiurban/internal/observability"
)

// Event types.
const (
	ProtocolCreated       = "protocol.created"
	ProtocolStatusChanged = "protocol.status_changed"
	ProtocolAssigned      = "protocol.assigned"
	ApprovalDecided       = "approval.decided"
	StageCompleted        = "workflow.stage_completed"
	WorkflowCompleted     = "workflow.completed"
	SLAOverdue            = "sla.overdue"
	StockLow              = "stock.low"
	StockExpired          = "stock.expired"
	DispensationConfirmed = "dispensation.confirmed"
	TFDStatusChanged      = "tfd.status_changed"
)

// Event is one domain event envelope.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	TenantID   string         `json:"tenant_id"`
	SubjectID  string         `json:"subject_id"`
	ActorID    string         `json:"actor_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

// Publisher delivers events to a transport.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// Bus stamps events and hands them to a Publisher. A nil *Bus discards
// everything.
type Bus struct {
	pub     Publisher
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewBus creates a Bus over pub.
func NewBus(pub Publisher, logger *zap.Logger, metrics *observability.Metrics) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{pub: pub, logger: logger, metrics: metrics}
}

// Emit publishes an event of the given type about subjectID.
func (b *Bus) Emit(ctx context.Context, eventType, tenantID, subjectID, actorID string, data map[string]any) {
	if b == nil || b.pub == nil {
		return
	}
	evt := Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		TenantID:   tenantID,
		SubjectID:  subjectID,
		ActorID:    actorID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
	if err := b.pub.Publish(ctx, evt); err != nil {
		b.metrics.RecordEventPublished(eventType, "error")
		observability.RequestLogger(ctx, b.logger).Warn("event publish failed",
			zap.String("event_type", eventType),
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
		return
	}
	b.metrics.RecordEventPublished(eventType, "ok")
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish discards evt.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close does nothing.
func (NopPublisher) Close() error { return nil }

// MemoryPublisher keeps published events in memory. For testing and for
// single-process deployments without a broker.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryPublisher creates an empty MemoryPublisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish appends evt.
func (p *MemoryPublisher) Publish(_ context.Context, evt Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

// Close does nothing.
func (p *MemoryPublisher) Close() error { return nil }

// Events returns a copy of the published events, optionally filtered by type.
func (p *MemoryPublisher) Events(eventType string) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Event
	for _, e := range p.events {
		if eventType == "" || e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
