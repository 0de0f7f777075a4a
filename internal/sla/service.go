package sla

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/pitabwire/digiurban/internal/calendar"
	"github.com/pitabwire/digiurban/internal/events"
	"github.com/pitabwire/digiurban/internal/observability"
	"github.com/pitabwire/digiurban/model"
)

// DefaultNearDueDays is the number of business days left at which an SLA
// turns NEAR_DUE.
const DefaultNearDueDays = 3

// Deps holds the collaborators of a Service. Only Store is required.
type Deps struct {
	Store       Store
	Calendar    *calendar.Calendar
	NearDueDays int
	Bus         *events.Bus
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// Service opens, pauses and closes protocol SLAs and keeps their status
// current.
type Service struct {
	store       Store
	cal         *calendar.Calendar
	nearDueDays int
	bus         *events.Bus
	metrics     *observability.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates an SLA service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	near := deps.NearDueDays
	if near <= 0 {
		near = DefaultNearDueDays
	}
	return &Service{
		store:       deps.Store,
		cal:         deps.Calendar,
		nearDueDays: near,
		bus:         deps.Bus,
		metrics:     deps.Metrics,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create opens the SLA of a protocol. startDate defaults to now.
func (s *Service) Create(ctx context.Context, rctx *model.RequestContext, protocolID string, workingDays int, startDate *time.Time) (model.ProtocolSLA, error) {
	if workingDays <= 0 {
		return model.ProtocolSLA{}, model.NewFieldValidationError("working_days", "INVALID",
			"Prazo em dias úteis deve ser maior que zero")
	}
	now := s.now()
	start := now
	if startDate != nil && !startDate.IsZero() {
		start = startDate.UTC()
	}

	sla := model.ProtocolSLA{
		ID:          uuid.New().String(),
		TenantID:    rctx.TenantID,
		ProtocolID:  protocolID,
		WorkingDays: workingDays,
		StartDate:   start,
		DueDate:     s.cal.AddBusinessDays(start, workingDays),
		Status:      model.SLAWithin,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
	sla.Status = s.evaluate(sla, now)
	if err := s.store.Create(ctx, sla); err != nil {
		return model.ProtocolSLA{}, err
	}
	s.logger.Debug("sla opened",
		zap.String("protocol_id", protocolID),
		zap.Int("working_days", workingDays),
		zap.Time("due_date", sla.DueDate),
	)
	return sla, nil
}

// Get returns the SLA of a protocol with its status evaluated at the
// current time.
func (s *Service) Get(ctx context.Context, rctx *model.RequestContext, protocolID string) (model.ProtocolSLA, error) {
	sla, err := s.store.GetByProtocol(ctx, rctx.TenantID, protocolID)
	if err != nil {
		return model.ProtocolSLA{}, err
	}
	sla.Status = s.evaluate(sla, s.now())
	return sla, nil
}

// Pause stops the clock of an open SLA.
func (s *Service) Pause(ctx context.Context, rctx *model.RequestContext, protocolID, reason string) (model.ProtocolSLA, error) {
	if strings.TrimSpace(reason) == "" {
		return model.ProtocolSLA{}, model.NewFieldValidationError("reason", "REQUIRED", "Motivo da pausa é obrigatório")
	}
	sla, err := s.store.GetByProtocol(ctx, rctx.TenantID, protocolID)
	if err != nil {
		return model.ProtocolSLA{}, err
	}
	if !sla.IsOpen() {
		return model.ProtocolSLA{}, model.NewInvalidTransitionError(
			fmt.Sprintf("SLA não pode ser pausado. Status: %s", sla.Status))
	}

	now := s.now()
	sla.Status = model.SLAPaused
	sla.PausedAt = &now
	sla.PauseReason = reason
	if err := s.persist(ctx, &sla, now); err != nil {
		return model.ProtocolSLA{}, err
	}
	s.metrics.RecordSLAStatusChange(model.SLAPaused)
	return sla, nil
}

// Resume restarts a paused SLA. The due date moves forward by the business
// days spent paused.
func (s *Service) Resume(ctx context.Context, rctx *model.RequestContext, protocolID string) (model.ProtocolSLA, error) {
	sla, err := s.store.GetByProtocol(ctx, rctx.TenantID, protocolID)
	if err != nil {
		return model.ProtocolSLA{}, err
	}
	if sla.Status != model.SLAPaused || sla.PausedAt == nil {
		return model.ProtocolSLA{}, model.NewInvalidTransitionError(
			fmt.Sprintf("SLA não está pausado. Status: %s", sla.Status))
	}

	now := s.now()
	if paused := s.cal.BusinessDaysBetween(*sla.PausedAt, now); paused > 0 {
		sla.DueDate = s.cal.AddBusinessDays(sla.DueDate, paused)
		sla.TotalPausedDays += paused
	}
	sla.PausedAt = nil
	sla.PauseReason = ""
	sla.Status = model.SLAWithin
	sla.Status = s.evaluate(sla, now)
	if err := s.persist(ctx, &sla, now); err != nil {
		return model.ProtocolSLA{}, err
	}
	s.metrics.RecordSLAStatusChange(sla.Status)
	return sla, nil
}

// Complete stops the SLA for good. Completing twice is a no-op.
func (s *Service) Complete(ctx context.Context, rctx *model.RequestContext, protocolID string) (model.ProtocolSLA, error) {
	sla, err := s.store.GetByProtocol(ctx, rctx.TenantID, protocolID)
	if err != nil {
		return model.ProtocolSLA{}, err
	}
	if sla.Status == model.SLACompleted {
		return sla, nil
	}

	now := s.now()
	sla.Status = model.SLACompleted
	sla.CompletedAt = &now
	sla.PausedAt = nil
	if err := s.persist(ctx, &sla, now); err != nil {
		return model.ProtocolSLA{}, err
	}
	s.metrics.RecordSLAStatusChange(model.SLACompleted)
	if now.After(sla.DueDate) {
		s.logger.Info("sla completed late",
			zap.String("tenant_id", sla.TenantID),
			zap.String("protocol_id", protocolID),
			zap.Time("due_date", sla.DueDate),
		)
	}
	return sla, nil
}

// Delete removes the SLA of a protocol.
func (s *Service) Delete(ctx context.Context, rctx *model.RequestContext, protocolID string) error {
	return s.store.Delete(ctx, rctx.TenantID, protocolID)
}

var openStatuses = []string{model.SLAWithin, model.SLANearDue, model.SLAOverdue}

// Refresh re-evaluates every running SLA at now and persists the ones whose
// status changed. SLAs that just became overdue publish sla.overdue. An
// empty tenantID scans every tenant. It returns the number of SLAs changed.
func (s *Service) Refresh(ctx context.Context, tenantID string, now time.Time) (int, error) {
	ctx, span := observability.StartSpan(ctx, "sla.refresh", observability.AttrTenantID.String(tenantID))
	start := time.Now()

	running, err := s.store.List(ctx, tenantID, openStatuses)
	if err != nil {
		observability.EndSpanWithError(span, err)
		return 0, err
	}

	changed := 0
	for _, sla := range running {
		status := s.evaluate(sla, now)
		if status == sla.Status {
			continue
		}
		previous := sla.Status
		sla.Status = status
		if err := s.persist(ctx, &sla, now); err != nil {
			s.logger.Warn("sla refresh update failed",
				zap.String("tenant_id", sla.TenantID),
				zap.String("protocol_id", sla.ProtocolID),
				zap.Error(err),
			)
			continue
		}
		changed++
		s.metrics.RecordSLAStatusChange(status)
		if status == model.SLAOverdue {
			s.bus.Emit(ctx, events.SLAOverdue, sla.TenantID, sla.ProtocolID, "system", map[string]any{
				"previous_status": previous,
				"due_date":        sla.DueDate,
				"working_days":    sla.WorkingDays,
			})
		}
	}

	s.metrics.RecordSLAScan(time.Since(start))
	span.SetAttributes(attribute.Int("sla.scanned", len(running)), attribute.Int("sla.changed", changed))
	observability.EndSpanWithError(span, nil)
	if changed > 0 {
		s.logger.Info("sla statuses refreshed",
			zap.String("tenant_id", tenantID),
			zap.Int("scanned", len(running)),
			zap.Int("changed", changed),
		)
	}
	return changed, nil
}

// Overdue lists the tenant's running SLAs that are past their due date.
func (s *Service) Overdue(ctx context.Context, rctx *model.RequestContext) ([]model.ProtocolSLA, error) {
	running, err := s.store.List(ctx, rctx.TenantID, openStatuses)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := []model.ProtocolSLA{}
	for _, sla := range running {
		if sla.Status = s.evaluate(sla, now); sla.Status == model.SLAOverdue {
			out = append(out, sla)
		}
	}
	return out, nil
}

// NearDue lists running SLAs that are not yet overdue and have at most days
// business days left. days <= 0 uses the configured threshold.
func (s *Service) NearDue(ctx context.Context, rctx *model.RequestContext, days int) ([]model.ProtocolSLA, error) {
	if days <= 0 {
		days = s.nearDueDays
	}
	running, err := s.store.List(ctx, rctx.TenantID, openStatuses)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := []model.ProtocolSLA{}
	for _, sla := range running {
		if now.After(sla.DueDate) {
			continue
		}
		if s.cal.BusinessDaysBetween(now, sla.DueDate) <= days {
			sla.Status = s.evaluate(sla, now)
			out = append(out, sla)
		}
	}
	return out, nil
}

// Stats aggregates the tenant's SLAs.
func (s *Service) Stats(ctx context.Context, rctx *model.RequestContext) (model.SLAStats, error) {
	all, err := s.store.List(ctx, rctx.TenantID, nil)
	if err != nil {
		return model.SLAStats{}, err
	}
	now := s.now()
	var st model.SLAStats
	for _, sla := range all {
		st.Total++
		switch s.evaluate(sla, now) {
		case model.SLAWithin:
			st.WithinSLA++
		case model.SLANearDue:
			st.NearDue++
		case model.SLAOverdue:
			st.Overdue++
		case model.SLAPaused:
			st.Paused++
		case model.SLACompleted:
			st.Completed++
			if sla.CompletedAt != nil && sla.CompletedAt.After(sla.DueDate) {
				st.CompletedLate++
			}
		}
	}
	if st.Completed > 0 {
		st.OnTimeRate = float64(st.Completed-st.CompletedLate) / float64(st.Completed) * 100
	}
	return st, nil
}

// evaluate returns the status sla has at now. Paused and completed SLAs keep
// their status.
func (s *Service) evaluate(sla model.ProtocolSLA, now time.Time) string {
	switch sla.Status {
	case model.SLACompleted, model.SLAPaused:
		return sla.Status
	}
	if now.After(sla.DueDate) {
		return model.SLAOverdue
	}
	if s.cal.BusinessDaysBetween(now, sla.DueDate) <= s.nearDueDays {
		return model.SLANearDue
	}
	return model.SLAWithin
}

func (s *Service) persist(ctx context.Context, sla *model.ProtocolSLA, now time.Time) error {
	sla.UpdatedAt = now
	if err := s.store.Update(ctx, *sla); err != nil {
		return err
	}
	sla.Version++
	return nil
}
