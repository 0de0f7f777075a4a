package protocol

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/pitabwire/digiurban/internal/events"
	"github.com/pitabwire/digiurban/internal/observability"
	"github.com/pitabwire/digiurban/internal/search"
	"github.com/pitabwire/digiurban/model"
)

// WorkflowApplier instantiates and stops protocol stage workflows.
type WorkflowApplier interface {
	Apply(ctx context.Context, rctx *model.RequestContext, p model.Protocol) (model.ProtocolWorkflow, model.WorkflowTemplate, error)
	Cancel(ctx context.Context, rctx *model.RequestContext, protocolID, reason string) (model.ProtocolWorkflow, error)
	Conclude(ctx context.Context, rctx *model.RequestContext, protocolID, reason string) (model.ProtocolWorkflow, error)
}

// SLATracker opens and closes protocol SLAs.
type SLATracker interface {
	Create(ctx context.Context, rctx *model.RequestContext, protocolID string, workingDays int, startDate *time.Time) (model.ProtocolSLA, error)
	Complete(ctx context.Context, rctx *model.RequestContext, protocolID string) (model.ProtocolSLA, error)
}

// InteractionPoster appends entries to a protocol's interaction log.
type InteractionPoster interface {
	Post(ctx context.Context, rctx *model.RequestContext, in model.NewInteraction) (model.Interaction, error)
}

// Deps holds the collaborators of a Service. Only Store is required.
type Deps struct {
	Store        Store
	Workflows    WorkflowApplier
	SLAs         SLATracker
	Interactions InteractionPoster
	Index        search.Index
	Bus          *events.Bus
	Metrics      *observability.Metrics
	Logger       *zap.Logger
}

// Service manages protocols.
type Service struct {
	store        Store
	workflows    WorkflowApplier
	slas         SLATracker
	interactions InteractionPoster
	index        search.Index
	bus          *events.Bus
	metrics      *observability.Metrics
	logger       *zap.Logger
	now          func() time.Time
}

// NewService creates a protocol service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:        deps.Store,
		workflows:    deps.Workflows,
		slas:         deps.SLAs,
		interactions: deps.Interactions,
		index:        deps.Index,
		bus:          deps.Bus,
		metrics:      deps.Metrics,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput describes a new protocol. Priority defaults to 3.
type CreateInput struct {
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Priority     int            `json:"priority"`
	CitizenID    string         `json:"citizen_id"`
	ServiceID    string         `json:"service_id"`
	DepartmentID string         `json:"department_id"`
	ModuleType   string         `json:"module_type"`
	FormData     map[string]any `json:"form_data"`
	DueDate      *time.Time     `json:"due_date"`
}

const defaultPriority = 3

func (in *CreateInput) validate() error {
	var details []model.FieldError
	required := []struct{ field, value string }{
		{"title", in.Title},
		{"citizen_id", in.CitizenID},
		{"service_id", in.ServiceID},
		{"department_id", in.DepartmentID},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			details = append(details, model.FieldError{Field: r.field, Code: "REQUIRED", Message: "Campo obrigatório"})
		}
	}
	if in.Priority < 1 || in.Priority > 5 {
		details = append(details, model.FieldError{Field: "priority", Code: "INVALID", Message: "Prioridade deve estar entre 1 e 5"})
	}
	if len(details) > 0 {
		return model.NewValidationError(details)
	}
	return nil
}

// Create registers a protocol in VINCULADO, applies its workflow and opens
// its SLA. Citizens always create protocols for themselves. Workflow and SLA
// failures are logged and do not fail the creation.
func (s *Service) Create(ctx context.Context, rctx *model.RequestContext, in CreateInput) (model.Protocol, error) {
	if rctx.IsCitizen() {
		in.CitizenID = rctx.SubjectID
	}
	if in.Priority == 0 {
		in.Priority = defaultPriority
	}
	if err := in.validate(); err != nil {
		return model.Protocol{}, err
	}

	now := s.now()
	seq, err := s.store.NextSequence(ctx, rctx.TenantID, now.Year())
	if err != nil {
		return model.Protocol{}, err
	}
	p := model.Protocol{
		ID:           uuid.New().String(),
		TenantID:     rctx.TenantID,
		Number:       FormatNumber(now.Year(), seq),
		Title:        strings.TrimSpace(in.Title),
		Description:  in.Description,
		Status:       model.ProtocolVinculado,
		Priority:     in.Priority,
		CitizenID:    in.CitizenID,
		ServiceID:    in.ServiceID,
		DepartmentID: in.DepartmentID,
		ModuleType:   in.ModuleType,
		FormData:     in.FormData,
		DueDate:      in.DueDate,
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return model.Protocol{}, err
	}
	s.appendHistory(ctx, rctx, p.ID, model.ActionForStatus(p.Status), "", p.Status,
		model.DefaultComment(p.Status), now)

	logger := observability.RequestLogger(ctx, s.logger).With(
		zap.String("protocol_id", p.ID),
		zap.String("number", p.Number),
	)
	s.startWorkflow(ctx, rctx, p, logger)
	s.reindex(ctx, p)
	s.metrics.RecordProtocolCreated(moduleKey(p.ModuleType))
	s.bus.Emit(ctx, events.ProtocolCreated, p.TenantID, p.ID, rctx.SubjectID, map[string]any{
		"number":        p.Number,
		"module_type":   p.ModuleType,
		"department_id": p.DepartmentID,
		"citizen_id":    p.CitizenID,
	})
	logger.Info("protocol created", zap.String("module_type", p.ModuleType))
	logger.Debug("protocol form data", observability.FormDataField(p.FormData))
	return p, nil
}

// FormatNumber renders a protocol number as YYYY-NNNNNN.
func FormatNumber(year, seq int) string {
	return fmt.Sprintf("%d-%06d", year, seq)
}

func (s *Service) startWorkflow(ctx context.Context, rctx *model.RequestContext, p model.Protocol, logger *zap.Logger) {
	if s.workflows == nil {
		return
	}
	_, tpl, err := s.workflows.Apply(ctx, rctx, p)
	if err != nil {
		logger.Warn("apply workflow failed", zap.String("module_type", p.ModuleType), zap.Error(err))
		return
	}
	if s.slas == nil {
		return
	}
	days := tpl.DefaultSLA
	if days <= 0 {
		days = tpl.TotalSLADays()
	}
	if days <= 0 {
		return
	}
	start := p.CreatedAt
	if _, err := s.slas.Create(ctx, rctx, p.ID, days, &start); err != nil {
		logger.Warn("open sla failed", zap.Int("working_days", days), zap.Error(err))
	}
}

// Get returns a protocol. Citizens only see their own protocols.
func (s *Service) Get(ctx context.Context, rctx *model.RequestContext, id string) (model.Protocol, error) {
	p, err := s.store.Get(ctx, rctx.TenantID, id)
	if err != nil {
		return model.Protocol{}, err
	}
	return p, checkOwner(rctx, p)
}

// GetByNumber returns a protocol by its public number.
func (s *Service) GetByNumber(ctx context.Context, rctx *model.RequestContext, number string) (model.Protocol, error) {
	p, err := s.store.GetByNumber(ctx, rctx.TenantID, number)
	if err != nil {
		return model.Protocol{}, err
	}
	return p, checkOwner(rctx, p)
}

func checkOwner(rctx *model.RequestContext, p model.Protocol) error {
	if rctx.IsCitizen() && p.CitizenID != rctx.SubjectID {
		return errNotFound()
	}
	return nil
}

// List returns one page of protocols. Citizens are restricted to their own.
func (s *Service) List(ctx context.Context, rctx *model.RequestContext, f model.ProtocolFilters) ([]model.Protocol, int, error) {
	if rctx.IsCitizen() {
		f.CitizenID = rctx.SubjectID
	}
	return s.store.List(ctx, rctx.TenantID, f)
}

// History returns the status trail of a protocol, newest first.
func (s *Service) History(ctx context.Context, rctx *model.RequestContext, id string) ([]model.ProtocolHistory, error) {
	if _, err := s.Get(ctx, rctx, id); err != nil {
		return nil, err
	}
	return s.store.History(ctx, rctx.TenantID, id)
}

// UpdateStatus moves a protocol to newStatus following the caller's
// transition table. Moving to the current status is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, rctx *model.RequestContext, id, newStatus, comment string) (model.Protocol, error) {
	if !slices.Contains(model.ProtocolStatuses, newStatus) {
		return model.Protocol{}, model.NewFieldValidationError("status", "INVALID",
			fmt.Sprintf("Status inválido: %s", newStatus))
	}
	p, err := s.Get(ctx, rctx, id)
	if err != nil {
		return model.Protocol{}, err
	}
	if p.Status == newStatus {
		return p, nil
	}
	if !model.ProtocolTransitionAllowed(rctx.Actor(), p.Status, newStatus) {
		return model.Protocol{}, model.NewInvalidTransitionError(
			fmt.Sprintf("Transição de %s para %s não permitida", p.Status, newStatus))
	}

	if strings.TrimSpace(comment) == "" {
		comment = model.DefaultComment(newStatus)
	}
	from := p.Status
	if err := s.changeStatus(ctx, rctx, &p, newStatus, model.ActionForStatus(newStatus), comment); err != nil {
		return model.Protocol{}, err
	}
	s.post(ctx, rctx, p, model.InteractionStatusChange, model.VisibilityPublic,
		fmt.Sprintf("Status alterado de %s para %s: %s", from, newStatus, comment),
		map[string]any{"from": from, "to": newStatus})
	return p, nil
}

// changeStatus persists the transition and runs its side effects: history,
// metrics, SLA completion on terminal statuses, workflow cancellation,
// reindexing and the status_changed event.
func (s *Service) changeStatus(ctx context.Context, rctx *model.RequestContext, p *model.Protocol, to, action, comment string) (err error) {
	now := s.now()
	from := p.Status
	ctx, span := observability.StartSpan(ctx, "protocol.change_status", append(observability.ProtocolAttributes(*p),
		attribute.String("protocol.from", from),
		attribute.String("protocol.to", to),
	)...)
	defer func() { observability.EndSpanWithError(span, err) }()

	p.Status = to
	p.UpdatedAt = now
	switch {
	case to == model.ProtocolConcluido:
		p.ConcludedAt = &now
	case from == model.ProtocolConcluido:
		p.ConcludedAt = nil
	}
	if err = s.store.Update(ctx, *p); err != nil {
		return err
	}
	p.Version++

	s.appendHistory(ctx, rctx, p.ID, action, from, to, comment, now)
	s.metrics.RecordProtocolTransition(from, to)

	logger := observability.RequestLogger(ctx, s.logger).With(zap.String("protocol_id", p.ID))
	if model.ProtocolMachine.IsTerminal(to) && s.slas != nil {
		if _, err := s.slas.Complete(ctx, rctx, p.ID); err != nil && !model.IsCode(err, model.ErrNotFound) {
			logger.Warn("complete sla failed", zap.Error(err))
		}
	}
	if s.workflows != nil {
		switch to {
		case model.ProtocolCancelado:
			if _, err := s.workflows.Cancel(ctx, rctx, p.ID, comment); err != nil && !model.IsCode(err, model.ErrNotFound) {
				logger.Warn("cancel workflow failed", zap.Error(err))
			}
		case model.ProtocolConcluido:
			if _, err := s.workflows.Conclude(ctx, rctx, p.ID, comment); err != nil && !model.IsCode(err, model.ErrNotFound) {
				logger.Warn("conclude workflow failed", zap.Error(err))
			}
		}
	}

	s.reindex(ctx, *p)
	s.bus.Emit(ctx, events.ProtocolStatusChanged, p.TenantID, p.ID, rctx.SubjectID, map[string]any{
		"number": p.Number,
		"from":   from,
		"to":     to,
	})
	return nil
}

// Assign hands an open protocol to a staff member.
func (s *Service) Assign(ctx context.Context, rctx *model.RequestContext, id, userID string) (model.Protocol, error) {
	if strings.TrimSpace(userID) == "" {
		return model.Protocol{}, model.NewFieldValidationError("user_id", "REQUIRED", "Usuário responsável é obrigatório")
	}
	p, err := s.Get(ctx, rctx, id)
	if err != nil {
		return model.Protocol{}, err
	}
	if p.IsTerminal() {
		return model.Protocol{}, model.NewInvalidTransitionError(
			fmt.Sprintf("Protocolo encerrado não pode ser atribuído. Status: %s", p.Status))
	}

	now := s.now()
	previous := p.AssignedUserID
	p.AssignedUserID = userID
	p.UpdatedAt = now
	if err := s.store.Update(ctx, p); err != nil {
		return model.Protocol{}, err
	}
	p.Version++

	msg := fmt.Sprintf("Protocolo atribuído ao usuário %s", userID)
	s.appendHistory(ctx, rctx, p.ID, model.HistoryAssigned, "", "", msg, now)
	s.post(ctx, rctx, p, model.InteractionAssignment, model.VisibilityInternal, msg,
		map[string]any{"assigned_user_id": userID, "previous_user_id": previous})
	s.bus.Emit(ctx, events.ProtocolAssigned, p.TenantID, p.ID, rctx.SubjectID, map[string]any{
		"assigned_user_id": userID,
	})
	return p, nil
}

// EvaluationInput is a citizen's rating. WouldRecommend defaults to true.
type EvaluationInput struct {
	Rating         int    `json:"rating"`
	Comment        string `json:"comment"`
	WouldRecommend *bool  `json:"would_recommend"`
}

// Evaluate rates a concluded protocol. A protocol is rated once.
func (s *Service) Evaluate(ctx context.Context, rctx *model.RequestContext, id string, in EvaluationInput) (model.ProtocolEvaluation, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return model.ProtocolEvaluation{}, model.NewFieldValidationError("rating", "INVALID", "Avaliação deve estar entre 1 e 5")
	}
	p, err := s.Get(ctx, rctx, id)
	if err != nil {
		return model.ProtocolEvaluation{}, err
	}
	if p.Status != model.ProtocolConcluido {
		return model.ProtocolEvaluation{}, model.NewInvalidTransitionError("Apenas protocolos concluídos podem ser avaliados")
	}

	recommend := true
	if in.WouldRecommend != nil {
		recommend = *in.WouldRecommend
	}
	now := s.now()
	e := model.ProtocolEvaluation{
		ID:             uuid.New().String(),
		ProtocolID:     p.ID,
		Rating:         in.Rating,
		Comment:        in.Comment,
		WouldRecommend: recommend,
		EvaluatedBy:    rctx.SubjectID,
		CreatedAt:      now,
	}
	if err := s.store.CreateEvaluation(ctx, rctx.TenantID, e); err != nil {
		return model.ProtocolEvaluation{}, err
	}
	s.appendHistory(ctx, rctx, p.ID, model.HistoryRated, "", "",
		fmt.Sprintf("Protocolo avaliado com nota %d", in.Rating), now)
	return e, nil
}

// DepartmentStats counts a department's protocols created in [from, to].
func (s *Service) DepartmentStats(ctx context.Context, rctx *model.RequestContext, departmentID string, from, to *time.Time) (model.DepartmentStats, error) {
	if strings.TrimSpace(departmentID) == "" {
		return model.DepartmentStats{}, model.NewFieldValidationError("department_id", "REQUIRED", "Departamento é obrigatório")
	}
	return s.store.DepartmentStats(ctx, rctx.TenantID, departmentID, from, to)
}

// Search looks protocols up through the search index. Citizens only find
// their own protocols.
func (s *Service) Search(ctx context.Context, rctx *model.RequestContext, q search.Query) ([]model.Protocol, int, error) {
	if s.index == nil {
		return nil, 0, model.NewBadRequestError("Busca indisponível")
	}
	q.TenantID = rctx.TenantID
	if rctx.IsCitizen() {
		q.CitizenID = rctx.SubjectID
	}

	ctx, span := observability.StartSpan(ctx, "protocol.search", observability.AttrQuery.String(q.Text))
	hits, err := s.index.Search(ctx, q)
	observability.EndSpanWithError(span, err)
	if err != nil {
		return nil, 0, fmt.Errorf("search protocols: %w", err)
	}
	s.metrics.RecordSearch(hits.Took)

	out := make([]model.Protocol, 0, len(hits.IDs))
	for _, id := range hits.IDs {
		p, err := s.store.Get(ctx, rctx.TenantID, id)
		if model.IsCode(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, hits.Total, nil
}

// Reindex pushes every protocol of the tenant to the search index. It
// returns the number of protocols indexed.
func (s *Service) Reindex(ctx context.Context, tenantID string) (int, error) {
	if s.index == nil {
		return 0, nil
	}
	all, _, err := s.store.List(ctx, tenantID, model.ProtocolFilters{})
	if err != nil {
		return 0, err
	}
	for _, p := range all {
		if err := s.index.Upsert(ctx, toDocument(p)); err != nil {
			s.metrics.RecordSearchIndexError()
			return 0, fmt.Errorf("reindex protocol %s: %w", p.ID, err)
		}
	}
	return len(all), nil
}

func (s *Service) reindex(ctx context.Context, p model.Protocol) {
	if s.index == nil {
		return
	}
	if err := s.index.Upsert(ctx, toDocument(p)); err != nil {
		s.metrics.RecordSearchIndexError()
		observability.RequestLogger(ctx, s.logger).Warn("index protocol failed",
			zap.String("protocol_id", p.ID),
			zap.Error(err),
		)
	}
}

func toDocument(p model.Protocol) search.Document {
	return search.Document{
		ID:           p.ID,
		TenantID:     p.TenantID,
		Number:       p.Number,
		Title:        p.Title,
		Description:  p.Description,
		Status:       p.Status,
		CitizenID:    p.CitizenID,
		DepartmentID: p.DepartmentID,
		ModuleType:   p.ModuleType,
		CreatedAt:    p.CreatedAt.Unix(),
	}
}

func (s *Service) appendHistory(ctx context.Context, rctx *model.RequestContext, protocolID, action, from, to, comment string, at time.Time) {
	h := model.ProtocolHistory{
		ID:         uuid.New().String(),
		ProtocolID: protocolID,
		Action:     action,
		OldStatus:  from,
		NewStatus:  to,
		Comment:    comment,
		UserID:     rctx.SubjectID,
		Timestamp:  at,
	}
	if err := s.store.AppendHistory(ctx, rctx.TenantID, h); err != nil {
		observability.RequestLogger(ctx, s.logger).Warn("append protocol history failed",
			zap.String("protocol_id", protocolID),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

func (s *Service) post(ctx context.Context, rctx *model.RequestContext, p model.Protocol, kind, visibility, msg string, meta map[string]any) {
	if s.interactions == nil {
		return
	}
	_, err := s.interactions.Post(ctx, rctx, model.NewInteraction{
		ProtocolID: p.ID,
		Type:       kind,
		Message:    msg,
		Visibility: visibility,
		Metadata:   meta,
	})
	if err != nil {
		observability.RequestLogger(ctx, s.logger).Warn("record protocol interaction failed",
			zap.String("protocol_id", p.ID),
			zap.String("type", kind),
			zap.Error(err),
		)
	}
}
