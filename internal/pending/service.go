package pending

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/digiurban/model"
)

// InteractionPoster appends entries to a protocol's interaction log.
type InteractionPoster interface {
	Post(ctx context.Context, rctx *model.RequestContext, in model.NewInteraction) (model.Interaction, error)
}

// Service manages protocol pendings.
type Service struct {
	store        Store
	interactions InteractionPoster
	logger       *zap.Logger
	now          func() time.Time
}

// NewService creates a pending service. interactions may be nil.
func NewService(store Store, interactions InteractionPoster, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:        store,
		interactions: interactions,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput describes a new pending. BlocksProgress defaults to true.
type CreateInput struct {
	Type           string     `json:"type"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	DueDate        *time.Time `json:"due_date"`
	BlocksProgress *bool      `json:"blocks_progress"`
}

// Create opens a pending on a protocol.
func (s *Service) Create(ctx context.Context, rctx *model.RequestContext, protocolID string, in CreateInput) (model.Pending, error) {
	if strings.TrimSpace(in.Type) == "" || strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Description) == "" {
		return model.Pending{}, model.NewValidationMessage("Tipo, título e descrição são obrigatórios")
	}
	if !slices.Contains(model.PendingTypes, in.Type) {
		return model.Pending{}, model.NewFieldValidationError("type", "INVALID",
			fmt.Sprintf("Tipo de pendência inválido: %s", in.Type))
	}

	blocks := true
	if in.BlocksProgress != nil {
		blocks = *in.BlocksProgress
	}
	now := s.now()
	p := model.Pending{
		ID:             uuid.New().String(),
		TenantID:       rctx.TenantID,
		ProtocolID:     protocolID,
		Type:           in.Type,
		Title:          in.Title,
		Description:    in.Description,
		Status:         model.PendingOpen,
		DueDate:        in.DueDate,
		BlocksProgress: blocks,
		CreatedBy:      rctx.SubjectID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return model.Pending{}, err
	}

	s.post(ctx, rctx, p, model.InteractionPendingCreated, fmt.Sprintf("Pendência registrada: %s", p.Title))
	return p, nil
}

// Start marks an open pending as being worked on.
func (s *Service) Start(ctx context.Context, rctx *model.RequestContext, id string) (model.Pending, error) {
	return s.transition(ctx, rctx, id, model.PendingInProgress, nil)
}

// Resolve closes a pending with its resolution.
func (s *Service) Resolve(ctx context.Context, rctx *model.RequestContext, id, resolution string) (model.Pending, error) {
	if strings.TrimSpace(resolution) == "" {
		return model.Pending{}, model.NewFieldValidationError("resolution", "REQUIRED", "Resolução é obrigatória")
	}
	p, err := s.transition(ctx, rctx, id, model.PendingResolved, func(p *model.Pending, now time.Time) {
		p.Resolution = resolution
		p.ResolvedBy = rctx.SubjectID
		p.ResolvedAt = &now
	})
	if err != nil {
		return model.Pending{}, err
	}
	s.post(ctx, rctx, p, model.InteractionPendingResolved, fmt.Sprintf("Pendência resolvida: %s", p.Title))
	return p, nil
}

// Cancel withdraws a pending. A reason is required.
func (s *Service) Cancel(ctx context.Context, rctx *model.RequestContext, id, reason string) (model.Pending, error) {
	if strings.TrimSpace(reason) == "" {
		return model.Pending{}, model.NewFieldValidationError("reason", "REQUIRED", "Motivo do cancelamento é obrigatório")
	}
	return s.transition(ctx, rctx, id, model.PendingCancelled, func(p *model.Pending, _ time.Time) {
		p.CancelReason = reason
	})
}

func (s *Service) transition(
	ctx context.Context,
	rctx *model.RequestContext,
	id, to string,
	apply func(p *model.Pending, now time.Time),
) (model.Pending, error) {
	p, err := s.store.Get(ctx, rctx.TenantID, id)
	if err != nil {
		return model.Pending{}, err
	}
	if !model.PendingMachine.CanTransition(p.Status, to) {
		return model.Pending{}, model.NewInvalidTransitionError(
			fmt.Sprintf("Pendência com status %s não pode passar para %s", p.Status, to),
		)
	}

	now := s.now()
	p.Status = to
	p.UpdatedAt = now
	if apply != nil {
		apply(&p, now)
	}
	if err := s.store.Update(ctx, p); err != nil {
		return model.Pending{}, err
	}
	return p, nil
}

// Get returns one pending.
func (s *Service) Get(ctx context.Context, rctx *model.RequestContext, id string) (model.Pending, error) {
	return s.store.Get(ctx, rctx.TenantID, id)
}

// List returns a protocol's pendings, optionally filtered by status.
func (s *Service) List(ctx context.Context, rctx *model.RequestContext, protocolID, status string) ([]model.Pending, error) {
	return s.store.ListByProtocol(ctx, rctx.TenantID, protocolID, status)
}

// Blocking returns the open pendings that block the protocol.
func (s *Service) Blocking(ctx context.Context, tenantID, protocolID string) ([]model.Pending, error) {
	all, err := s.store.ListByProtocol(ctx, tenantID, protocolID, "")
	if err != nil {
		return nil, err
	}
	out := []model.Pending{}
	for _, p := range all {
		if p.IsOpen() && p.BlocksProgress {
			out = append(out, p)
		}
	}
	return out, nil
}

// HasBlocking reports whether any open pending blocks the protocol.
func (s *Service) HasBlocking(ctx context.Context, tenantID, protocolID string) (bool, error) {
	blocking, err := s.Blocking(ctx, tenantID, protocolID)
	if err != nil {
		return false, err
	}
	return len(blocking) > 0, nil
}

// CountByStatus counts a protocol's pendings per status.
func (s *Service) CountByStatus(ctx context.Context, rctx *model.RequestContext, protocolID string) (map[string]int, error) {
	all, err := s.store.ListByProtocol(ctx, rctx.TenantID, protocolID, "")
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, p := range all {
		counts[p.Status]++
	}
	return counts, nil
}

// CheckExpired moves open pendings past their due date to EXPIRED. An empty
// tenantID scans every tenant. It returns the number expired.
func (s *Service) CheckExpired(ctx context.Context, tenantID string, now time.Time) (int, error) {
	overdue, err := s.store.ListOverdue(ctx, tenantID, now)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range overdue {
		p.Status = model.PendingExpired
		p.UpdatedAt = now
		if err := s.store.Update(ctx, p); err != nil {
			s.logger.Warn("expire pending failed", zap.String("pending_id", p.ID), zap.Error(err))
			continue
		}
		n++
	}
	if n > 0 {
		s.logger.Info("pendings expired", zap.String("tenant_id", tenantID), zap.Int("count", n))
	}
	return n, nil
}

func (s *Service) post(ctx context.Context, rctx *model.RequestContext, p model.Pending, kind, msg string) {
	if s.interactions == nil {
		return
	}
	_, err := s.interactions.Post(ctx, rctx, model.NewInteraction{
		ProtocolID: p.ProtocolID,
		Type:       kind,
		Message:    msg,
		Visibility: model.VisibilityPublic,
		Metadata:   map[string]any{"pending_id": p.ID, "pending_type": p.Type},
	})
	if err != nil {
		s.logger.Warn("record pending interaction failed",
			zap.String("protocol_id", p.ProtocolID),
			zap.String("pending_id", p.ID),
			zap.Error(err),
		)
	}
}
