// Package approval applies authorized approve/reject decisions at the gates
// declared in the definitions. A gate names the statuses it decides from,
// the status each outcome leads to and the capability required to decide.
package approval

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/pitabwire/digiurban/internal/events"
	"github.com/pitabwire/digiurban/internal/idempotency"
	"github.com/pitabwire/digiurban/internal/observability"
	"github.com/pitabwire/digiurban/model"
)

// Target is an aggregate that gates can move between statuses.
type Target interface {
	Load(ctx context.Context, rctx *model.RequestContext, subjectID string) (model.ApprovalSubject, error)

	// ApplyDecision transitions subject to status to. It must fail with
	// CONFLICT when the subject changed since Load.
	ApplyDecision(
		ctx context.Context,
		rctx *model.RequestContext,
		gate model.GateDefinition,
		subject model.ApprovalSubject,
		to string,
		d model.ApprovalDecision,
	) error
}

// GateSource provides gate definitions.
type GateSource interface {
	GetGate(id string) (model.GateDefinition, bool)
	AllGates() []model.GateDefinition
}

// InteractionPoster appends entries to a protocol's interaction log.
type InteractionPoster interface {
	Post(ctx context.Context, rctx *model.RequestContext, in model.NewInteraction) (model.Interaction, error)
}

// Deps holds the collaborators of a Service.
type Deps struct {
	Gates          GateSource
	CapResolver    model.CapabilityResolver
	Interactions   InteractionPoster
	Idempotency    idempotency.Store
	IdempotencyTTL time.Duration
	Bus            *events.Bus
	Metrics        *observability.Metrics
	Logger         *zap.Logger
}

// Service decides approval gates.
type Service struct {
	gates        GateSource
	targets      map[string]Target
	capResolver  model.CapabilityResolver
	interactions InteractionPoster
	idem         idempotency.Store
	idemTTL      time.Duration
	bus          *events.Bus
	metrics      *observability.Metrics
	logger       *zap.Logger
	now          func() time.Time
}

// NewService creates an approval service. Targets are added with Register.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		gates:        deps.Gates,
		targets:      make(map[string]Target),
		capResolver:  deps.CapResolver,
		interactions: deps.Interactions,
		idem:         deps.Idempotency,
		idemTTL:      deps.IdempotencyTTL,
		bus:          deps.Bus,
		metrics:      deps.Metrics,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Register binds the aggregate behind a status machine name.
func (s *Service) Register(machine string, t Target) {
	s.targets[machine] = t
}

// Gates lists every declared gate.
func (s *Service) Gates() []model.GateDefinition {
	return s.gates.AllGates()
}

// replayKey is what a retried decision must match to be replayed.
type replayKey struct {
	SubjectID      string   `json:"subject_id"`
	Approved       bool     `json:"approved"`
	Justification  string   `json:"justification"`
	EstimatedValue *float64 `json:"estimated_value,omitempty"`
}

// Decide applies an approve or reject decision at gateID on subjectID. With
// an idempotency key a retried identical decision returns the stored
// outcome, and a different decision under the same key is a CONFLICT.
func (s *Service) Decide(
	ctx context.Context,
	rctx *model.RequestContext,
	gateID, subjectID string,
	d model.ApprovalDecision,
) (model.ApprovalOutcome, error) {
	gate, ok := s.gates.GetGate(gateID)
	if !ok {
		return model.ApprovalOutcome{}, model.NewNotFoundError(
			fmt.Sprintf("Etapa de aprovação %s não encontrada", gateID))
	}
	if err := s.requireCapability(rctx, gate.Capability); err != nil {
		return model.ApprovalOutcome{}, err
	}
	if err := validate(gate, d); err != nil {
		return model.ApprovalOutcome{}, err
	}
	target, ok := s.targets[gate.Machine]
	if !ok {
		return model.ApprovalOutcome{}, fmt.Errorf("approval: no target registered for machine %q", gate.Machine)
	}

	key := ""
	if d.IdempotencyKey != "" {
		key = idempotency.Key(rctx.TenantID, gateID, d.IdempotencyKey)
	}
	input := replayKey{SubjectID: subjectID, Approved: d.Approved, Justification: d.Justification, EstimatedValue: d.EstimatedValue}
	return idempotency.Do(ctx, s.idem, key, input, s.idemTTL, func() (model.ApprovalOutcome, error) {
		return s.decide(ctx, rctx, gate, target, subjectID, d)
	})
}

func validate(gate model.GateDefinition, d model.ApprovalDecision) error {
	if strings.TrimSpace(d.Justification) == "" {
		return model.NewFieldValidationError("justification", "REQUIRED", "Justificativa é obrigatória")
	}
	if d.Approved && gate.RequireEstimate && (d.EstimatedValue == nil || *d.EstimatedValue <= 0) {
		return model.NewFieldValidationError("estimated_value", "INVALID", "Valor estimado deve ser maior que zero")
	}
	return nil
}

func (s *Service) decide(
	ctx context.Context,
	rctx *model.RequestContext,
	gate model.GateDefinition,
	target Target,
	subjectID string,
	d model.ApprovalDecision,
) (out model.ApprovalOutcome, err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "approval.decide",
		observability.AttrGateID.String(gate.ID),
		attribute.String("approval.subject", subjectID),
		attribute.Bool("approval.approved", d.Approved),
	)
	defer func() {
		if err == nil {
			span.SetAttributes(observability.AttrOutcome.String(out.ToStatus))
		}
		observability.EndSpanWithError(span, err)
	}()

	subject, err := target.Load(ctx, rctx, subjectID)
	if err != nil {
		return model.ApprovalOutcome{}, err
	}
	if !slices.Contains(gate.From, subject.Status) {
		return model.ApprovalOutcome{}, model.NewInvalidTransitionError(
			fmt.Sprintf("%s não pode ser decidida com status %s", gate.Name, subject.Status))
	}
	to := gate.OnReject
	if d.Approved {
		to = gate.OnApprove
	}
	if m, ok := model.MachineByName(gate.Machine); ok && !m.CanTransition(subject.Status, to) {
		return model.ApprovalOutcome{}, model.NewInvalidTransitionError(
			fmt.Sprintf("Transição de %s para %s não permitida", subject.Status, to))
	}

	if err := target.ApplyDecision(ctx, rctx, gate, subject, to, d); err != nil {
		return model.ApprovalOutcome{}, err
	}

	out = model.ApprovalOutcome{
		GateID:         gate.ID,
		SubjectID:      subject.ID,
		ProtocolID:     subject.ProtocolID,
		Approved:       d.Approved,
		FromStatus:     subject.Status,
		ToStatus:       to,
		Justification:  d.Justification,
		EstimatedValue: d.EstimatedValue,
		DecidedBy:      rctx.SubjectID,
		DecidedByName:  rctx.DisplayName(),
		DecidedAt:      s.now(),
	}
	s.record(ctx, rctx, gate, out)

	result := "rejected"
	if d.Approved {
		result = "approved"
	}
	s.metrics.RecordApprovalDecision(gate.ID, result, time.Since(start))
	s.bus.Emit(ctx, events.ApprovalDecided, rctx.TenantID, subject.ID, rctx.SubjectID, map[string]any{
		"gate_id":     gate.ID,
		"protocol_id": subject.ProtocolID,
		"approved":    d.Approved,
		"from":        out.FromStatus,
		"to":          out.ToStatus,
	})
	observability.RequestLogger(ctx, s.logger).Info("approval decided",
		zap.String("gate_id", gate.ID),
		zap.String("subject_id", subject.ID),
		zap.String("from", out.FromStatus),
		zap.String("to", out.ToStatus),
		zap.Bool("approved", d.Approved),
	)
	return out, nil
}

func (s *Service) record(ctx context.Context, rctx *model.RequestContext, gate model.GateDefinition, out model.ApprovalOutcome) {
	if s.interactions == nil || out.ProtocolID == "" {
		return
	}
	kind, verb := model.InteractionRejection, "reprovada"
	if out.Approved {
		kind, verb = model.InteractionApproval, "aprovada"
	}
	visibility := gate.Visibility
	if visibility == "" {
		visibility = model.VisibilityPublic
	}
	meta := map[string]any{
		"gate_id":     gate.ID,
		"subject_id":  out.SubjectID,
		"from_status": out.FromStatus,
		"to_status":   out.ToStatus,
		"approver_id": out.DecidedBy,
	}
	if out.EstimatedValue != nil {
		meta["estimated_value"] = *out.EstimatedValue
	}
	_, err := s.interactions.Post(ctx, rctx, model.NewInteraction{
		ProtocolID: out.ProtocolID,
		Type:       kind,
		Message:    fmt.Sprintf("%s %s por %s: %s", gate.Name, verb, out.DecidedByName, out.Justification),
		Visibility: visibility,
		Metadata:   meta,
	})
	if err != nil {
		observability.RequestLogger(ctx, s.logger).Warn("record approval interaction failed",
			zap.String("gate_id", gate.ID),
			zap.String("protocol_id", out.ProtocolID),
			zap.Error(err),
		)
	}
}

func (s *Service) requireCapability(rctx *model.RequestContext, capability string) error {
	if s.capResolver == nil || capability == "" {
		return nil
	}
	caps, err := s.capResolver.Resolve(rctx)
	if err != nil {
		return fmt.Errorf("resolve capabilities: %w", err)
	}
	if !caps.Has(capability) {
		return model.NewForbiddenError(fmt.Sprintf("capacidade %q necessária", capability))
	}
	return nil
}
