package workflow

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/digiurban/internal/calendar"
	"github.com/pitabwire/digiurban/internal/events"
	"github.com/pitabwire/digiurban/internal/observability"
	"github.com/pitabwire/digiurban/model"
)

// DocumentChecker reports which document types of a protocol are approved.
type DocumentChecker interface {
	ApprovedTypes(ctx context.Context, tenantID, protocolID string) ([]string, error)
}

// PendingChecker reports whether a protocol has open pendings that block
// progress.
type PendingChecker interface {
	HasBlocking(ctx context.Context, tenantID, protocolID string) (bool, error)
}

// ProtocolReader loads protocols.
type ProtocolReader interface {
	Get(ctx context.Context, tenantID, id string) (model.Protocol, error)
}

// InteractionRecorder appends system entries to a protocol's log.
type InteractionRecorder interface {
	RecordSystem(ctx context.Context, tenantID string, in model.NewInteraction) (model.Interaction, error)
}

// EngineDeps groups the collaborators of the Engine. Documents, Pendings,
// Interactions, Bus and Metrics are optional.
type EngineDeps struct {
	Templates    *Templates
	Store        InstanceStore
	Calendar     *calendar.Calendar
	CapResolver  model.CapabilityResolver
	Protocols    ProtocolReader
	Documents    DocumentChecker
	Pendings     PendingChecker
	Interactions InteractionRecorder
	Bus          *events.Bus
	Metrics      *observability.Metrics
	Logger       *zap.Logger
}

// Engine manages the stage instances of protocols.
type Engine struct {
	templates    *Templates
	store        InstanceStore
	calendar     *calendar.Calendar
	capResolver  model.CapabilityResolver
	protocols    ProtocolReader
	documents    DocumentChecker
	pendings     PendingChecker
	interactions InteractionRecorder
	bus          *events.Bus
	metrics      *observability.Metrics
	logger       *zap.Logger
	now          func() time.Time
}

// NewEngine creates a new stage engine.
func NewEngine(deps EngineDeps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		templates:    deps.Templates,
		store:        deps.Store,
		calendar:     deps.Calendar,
		capResolver:  deps.CapResolver,
		protocols:    deps.Protocols,
		documents:    deps.Documents,
		pendings:     deps.Pendings,
		interactions: deps.Interactions,
		bus:          deps.Bus,
		metrics:      deps.Metrics,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Position describes where a protocol stands in its workflow.
type Position struct {
	Stage    *model.ProtocolStage `json:"stage"`
	Index    int                  `json:"index"`
	Total    int                  `json:"total"`
	Status   string               `json:"status"`
	Deadline model.StageDeadline  `json:"deadline"`
}

// Completion summarizes the progress of a workflow.
type Completion struct {
	Completed bool     `json:"completed"`
	Status    string   `json:"status"`
	Total     int      `json:"total"`
	Done      int      `json:"done"`
	Progress  int      `json:"progress"`
	Remaining []string `json:"remaining"`
}

// Apply instantiates the protocol's workflow template, falling back to the
// generic template, and enters the first stage. The template is returned so
// the caller can open the protocol SLA.
func (e *Engine) Apply(
	ctx context.Context,
	rctx *model.RequestContext,
	protocol model.Protocol,
) (model.ProtocolWorkflow, model.WorkflowTemplate, error) {
	tpl, err := e.templates.Resolve(ctx, rctx.TenantID, protocol.ModuleType)
	if err != nil {
		return model.ProtocolWorkflow{}, model.WorkflowTemplate{}, err
	}

	now := e.now()
	startedAt := protocol.CreatedAt
	if startedAt.IsZero() {
		startedAt = now
	}

	stages := make([]model.ProtocolStage, len(tpl.Stages))
	for i, st := range tpl.Stages {
		stages[i] = model.ProtocolStage{
			Name:              st.Name,
			Order:             st.Order,
			SLADays:           st.SLADays,
			CanSkip:           st.CanSkip,
			SkipCondition:     st.SkipCondition,
			RequiredActions:   append([]string(nil), st.RequiredActions...),
			RequiredDocuments: append([]string(nil), st.RequiredDocuments...),
			Status:            model.StageStatusPending,
		}
	}

	wf := model.ProtocolWorkflow{
		ID:         uuid.New().String(),
		TenantID:   rctx.TenantID,
		ProtocolID: protocol.ID,
		ModuleType: tpl.ModuleType,
		Stages:     stages,
		Status:     model.WorkflowStatusActive,
		StartedAt:  startedAt,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}
	e.enterStage(&wf, 0, now)

	if err := e.store.Create(ctx, wf); err != nil {
		return model.ProtocolWorkflow{}, model.WorkflowTemplate{}, err
	}

	first := wf.Current()
	e.record(ctx, rctx, wf, first.Name, model.StageEventEntered, nil, "",
		fmt.Sprintf("Fluxo %q aplicado. Etapa atual: %s", tpl.Name, first.Name))
	return wf, tpl, nil
}

// Get returns the stage instance of a protocol.
func (e *Engine) Get(ctx context.Context, rctx *model.RequestContext, protocolID string) (model.ProtocolWorkflow, error) {
	return e.store.GetByProtocol(ctx, rctx.TenantID, protocolID)
}

// Current returns the active stage of a protocol with its deadlines.
func (e *Engine) Current(ctx context.Context, rctx *model.RequestContext, protocolID string) (Position, error) {
	wf, err := e.store.GetByProtocol(ctx, rctx.TenantID, protocolID)
	if err != nil {
		return Position{}, err
	}
	return e.position(wf), nil
}

// RecordAction marks a required action of the current stage as done.
func (e *Engine) RecordAction(
	ctx context.Context,
	rctx *model.RequestContext,
	protocolID, action string,
) (model.ProtocolWorkflow, error) {
	wf, err := e.loadActive(ctx, rctx, protocolID, model.CapStageAdvance)
	if err != nil {
		return model.ProtocolWorkflow{}, err
	}

	stage := wf.Current()
	action = strings.TrimSpace(action)
	if !slices.Contains(stage.RequiredActions, action) {
		return model.ProtocolWorkflow{}, model.NewFieldValidationError("action", "INVALID",
			fmt.Sprintf("Ação %q não é exigida pela etapa %s", action, stage.Name))
	}
	if slices.Contains(stage.CompletedActions, action) {
		return wf, nil
	}
	stage.CompletedActions = append(stage.CompletedActions, action)

	if err := e.persist(ctx, &wf); err != nil {
		return model.ProtocolWorkflow{}, err
	}
	e.record(ctx, rctx, wf, stage.Name, model.StageEventAction, map[string]any{"action": action}, "",
		fmt.Sprintf("Ação %q registrada na etapa %s", action, stage.Name))
	return wf, nil
}

// Advance completes the current stage and enters the next one. The stage's
// required actions and documents must be satisfied and no blocking pending
// may be open.
func (e *Engine) Advance(
	ctx context.Context,
	rctx *model.RequestContext,
	protocolID, result, notes string,
) (model.ProtocolWorkflow, error) {
	wf, err := e.loadActive(ctx, rctx, protocolID, model.CapStageAdvance)
	if err != nil {
		return model.ProtocolWorkflow{}, err
	}

	stage := wf.Current()
	missing, err := e.unmetRequirements(ctx, rctx.TenantID, protocolID, stage)
	if err != nil {
		return model.ProtocolWorkflow{}, err
	}
	if len(missing) > 0 {
		return model.ProtocolWorkflow{}, model.NewRequirementsNotMetError("Requisitos da etapa não atendidos", missing)
	}

	now := e.now()
	stage.Status = model.StageStatusCompleted
	stage.CompletedAt = &now
	stage.Result = result
	stage.Notes = notes
	completedName := stage.Name

	next := e.nextStage(&wf, now)
	if err := e.persist(ctx, &wf); err != nil {
		return model.ProtocolWorkflow{}, err
	}

	e.record(ctx, rctx, wf, completedName, model.StageEventCompleted,
		map[string]any{"result": result}, notes,
		fmt.Sprintf("Etapa %s concluída", completedName))
	e.bus.Emit(ctx, events.StageCompleted, wf.TenantID, wf.ProtocolID, rctx.SubjectID,
		map[string]any{"stage": completedName, "module_type": wf.ModuleType})
	e.afterNext(ctx, rctx, wf, next)
	return wf, nil
}

// Skip bypasses the current stage. The stage must allow skipping, a reason
// is required and the caller needs the skip capability.
func (e *Engine) Skip(
	ctx context.Context,
	rctx *model.RequestContext,
	protocolID, reason string,
) (model.ProtocolWorkflow, error) {
	wf, err := e.loadActive(ctx, rctx, protocolID, model.CapStageSkip)
	if err != nil {
		return model.ProtocolWorkflow{}, err
	}

	stage := wf.Current()
	if !stage.CanSkip {
		return model.ProtocolWorkflow{}, model.NewInvalidTransitionError(
			fmt.Sprintf("Etapa %s não pode ser pulada", stage.Name),
		)
	}
	if strings.TrimSpace(reason) == "" {
		return model.ProtocolWorkflow{}, model.NewFieldValidationError("reason", "REQUIRED",
			"Motivo é obrigatório para pular a etapa")
	}

	now := e.now()
	stage.Status = model.StageStatusSkipped
	stage.CompletedAt = &now
	stage.Reason = reason
	skippedName := stage.Name

	next := e.nextStage(&wf, now)
	if err := e.persist(ctx, &wf); err != nil {
		return model.ProtocolWorkflow{}, err
	}

	e.record(ctx, rctx, wf, skippedName, model.StageEventSkipped, nil, reason,
		fmt.Sprintf("Etapa %s pulada: %s", skippedName, reason))
	e.afterNext(ctx, rctx, wf, next)
	return wf, nil
}

// Fail marks the current stage and the workflow as failed.
func (e *Engine) Fail(
	ctx context.Context,
	rctx *model.RequestContext,
	protocolID, reason string,
) (model.ProtocolWorkflow, error) {
	if strings.TrimSpace(reason) == "" {
		return model.ProtocolWorkflow{}, model.NewFieldValidationError("reason", "REQUIRED",
			"Motivo da falha é obrigatório")
	}
	wf, err := e.loadActive(ctx, rctx, protocolID, model.CapStageAdvance)
	if err != nil {
		return model.ProtocolWorkflow{}, err
	}

	stage := wf.Current()
	stage.Status = model.StageStatusFailed
	stage.Reason = reason
	wf.Status = model.WorkflowStatusFailed

	if err := e.persist(ctx, &wf); err != nil {
		return model.ProtocolWorkflow{}, err
	}
	e.record(ctx, rctx, wf, stage.Name, model.StageEventFailed, nil, reason,
		fmt.Sprintf("Etapa %s falhou: %s", stage.Name, reason))
	return wf, nil
}

// Retry reopens the failed stage with a fresh start and due date.
func (e *Engine) Retry(ctx context.Context, rctx *model.RequestContext, protocolID string) (model.ProtocolWorkflow, error) {
	if err := e.requireCapability(rctx, model.CapStageAdvance); err != nil {
		return model.ProtocolWorkflow{}, err
	}
	if err := e.requireOpenProtocol(ctx, rctx.TenantID, protocolID); err != nil {
		return model.ProtocolWorkflow{}, err
	}
	wf, err := e.store.GetByProtocol(ctx, rctx.TenantID, protocolID)
	if err != nil {
		return model.ProtocolWorkflow{}, err
	}
	stage := wf.Current()
	if wf.Status != model.WorkflowStatusFailed || stage == nil || stage.Status != model.StageStatusFailed {
		return model.ProtocolWorkflow{}, model.NewInvalidTransitionError(
			fmt.Sprintf("Apenas etapas com falha podem ser reabertas. Status do fluxo: %s", wf.Status),
		)
	}

	stage.Reason = ""
	wf.Status = model.WorkflowStatusActive
	e.enterStage(&wf, wf.CurrentIndex, e.now())

	if err := e.persist(ctx, &wf); err != nil {
		return model.ProtocolWorkflow{}, err
	}
	e.record(ctx, rctx, wf, stage.Name, model.StageEventRetried, nil, "",
		fmt.Sprintf("Etapa %s reaberta", stage.Name))
	return wf, nil
}

// Cancel stops the workflow of a cancelled protocol. Cancelling a cancelled
// workflow is a no-op.
func (e *Engine) Cancel(
	ctx context.Context,
	rctx *model.RequestContext,
	protocolID, reason string,
) (model.ProtocolWorkflow, error) {
	wf, err := e.store.GetByProtocol(ctx, rctx.TenantID, protocolID)
	if err != nil {
		return model.ProtocolWorkflow{}, err
	}
	switch wf.Status {
	case model.WorkflowStatusCancelled:
		return wf, nil
	case model.WorkflowStatusCompleted:
		return model.ProtocolWorkflow{}, model.NewInvalidTransitionError("Fluxo de etapas já concluído")
	}

	wf.Status = model.WorkflowStatusCancelled
	stageName := ""
	if st := wf.Current(); st != nil {
		stageName = st.Name
	}
	if err := e.persist(ctx, &wf); err != nil {
		return model.ProtocolWorkflow{}, err
	}
	e.record(ctx, rctx, wf, stageName, model.WorkflowEventCancel, nil, reason, "Fluxo de etapas cancelado")
	return wf, nil
}

// Conclude closes the workflow of a concluded protocol. Every stage not yet
// completed or skipped is marked skipped with reason and the workflow
// completes. Workflows already completed or cancelled are left as they are.
func (e *Engine) Conclude(
	ctx context.Context,
	rctx *model.RequestContext,
	protocolID, reason string,
) (model.ProtocolWorkflow, error) {
	wf, err := e.store.GetByProtocol(ctx, rctx.TenantID, protocolID)
	if err != nil {
		return model.ProtocolWorkflow{}, err
	}
	if wf.Status != model.WorkflowStatusActive && wf.Status != model.WorkflowStatusFailed {
		return wf, nil
	}
	if strings.TrimSpace(reason) == "" {
		reason = "Protocolo concluído"
	}

	now := e.now()
	for i := range wf.Stages {
		st := &wf.Stages[i]
		if st.Status == model.StageStatusCompleted || st.Status == model.StageStatusSkipped {
			continue
		}
		st.Status = model.StageStatusSkipped
		st.Reason = reason
		st.CompletedAt = &now
	}
	wf.CurrentIndex = len(wf.Stages)
	wf.Status = model.WorkflowStatusCompleted

	if err := e.persist(ctx, &wf); err != nil {
		return model.ProtocolWorkflow{}, err
	}
	e.record(ctx, rctx, wf, "", model.WorkflowEventDone, nil, reason,
		"Fluxo de etapas encerrado com a conclusão do protocolo")
	return wf, nil
}

// CheckCompletion reports how far the protocol's workflow has progressed.
func (e *Engine) CheckCompletion(ctx context.Context, rctx *model.RequestContext, protocolID string) (Completion, error) {
	wf, err := e.store.GetByProtocol(ctx, rctx.TenantID, protocolID)
	if err != nil {
		return Completion{}, err
	}

	c := Completion{
		Completed: wf.Status == model.WorkflowStatusCompleted,
		Status:    wf.Status,
		Total:     len(wf.Stages),
		Remaining: []string{},
	}
	for _, st := range wf.Stages {
		switch st.Status {
		case model.StageStatusCompleted, model.StageStatusSkipped:
			c.Done++
		default:
			c.Remaining = append(c.Remaining, st.Name)
		}
	}
	if c.Total > 0 {
		c.Progress = c.Done * 100 / c.Total
	}
	return c, nil
}

// CountByStatus counts the tenant's workflows per status.
func (e *Engine) CountByStatus(ctx context.Context, rctx *model.RequestContext) (model.StageCounts, error) {
	return e.store.CountByStatus(ctx, rctx.TenantID)
}

// Events returns the audit trail of a protocol's workflow.
func (e *Engine) Events(ctx context.Context, rctx *model.RequestContext, protocolID string) ([]model.WorkflowEvent, error) {
	wf, err := e.store.GetByProtocol(ctx, rctx.TenantID, protocolID)
	if err != nil {
		return nil, err
	}
	return e.store.GetEvents(ctx, rctx.TenantID, wf.ID)
}

func (e *Engine) loadActive(
	ctx context.Context,
	rctx *model.RequestContext,
	protocolID, capability string,
) (model.ProtocolWorkflow, error) {
	if err := e.requireCapability(rctx, capability); err != nil {
		return model.ProtocolWorkflow{}, err
	}
	if err := e.requireOpenProtocol(ctx, rctx.TenantID, protocolID); err != nil {
		return model.ProtocolWorkflow{}, err
	}
	wf, err := e.store.GetByProtocol(ctx, rctx.TenantID, protocolID)
	if err != nil {
		return model.ProtocolWorkflow{}, err
	}
	if wf.Status != model.WorkflowStatusActive || wf.Current() == nil {
		return model.ProtocolWorkflow{}, model.NewInvalidTransitionError(
			fmt.Sprintf("Fluxo de etapas não está ativo. Status: %s", wf.Status),
		)
	}
	return wf, nil
}

// requireOpenProtocol rejects stage changes on a protocol in a final status.
func (e *Engine) requireOpenProtocol(ctx context.Context, tenantID, protocolID string) error {
	if e.protocols == nil {
		return nil
	}
	protocol, err := e.protocols.Get(ctx, tenantID, protocolID)
	if err != nil {
		return err
	}
	if protocol.IsTerminal() {
		return model.NewInvalidTransitionError(
			fmt.Sprintf("Protocolo em status final %s não admite mudança de etapa", protocol.Status),
		)
	}
	return nil
}

func (e *Engine) requireCapability(rctx *model.RequestContext, capability string) error {
	if e.capResolver == nil {
		return nil
	}
	caps, err := e.capResolver.Resolve(rctx)
	if err != nil {
		return fmt.Errorf("resolve capabilities: %w", err)
	}
	if !caps.Has(capability) {
		return model.NewForbiddenError(fmt.Sprintf("capacidade %q necessária", capability))
	}
	return nil
}

func (e *Engine) unmetRequirements(
	ctx context.Context,
	tenantID, protocolID string,
	stage *model.ProtocolStage,
) ([]model.FieldError, error) {
	var missing []model.FieldError
	for _, action := range stage.RequiredActions {
		if !slices.Contains(stage.CompletedActions, action) {
			missing = append(missing, model.FieldError{
				Field:   "required_actions",
				Code:    "MISSING",
				Message: fmt.Sprintf("Ação pendente: %s", action),
			})
		}
	}

	if len(stage.RequiredDocuments) > 0 {
		var approved []string
		if e.documents != nil {
			var err error
			approved, err = e.documents.ApprovedTypes(ctx, tenantID, protocolID)
			if err != nil {
				return nil, fmt.Errorf("check documents: %w", err)
			}
		}
		for _, doc := range stage.RequiredDocuments {
			if !slices.Contains(approved, doc) {
				missing = append(missing, model.FieldError{
					Field:   "required_documents",
					Code:    "MISSING",
					Message: fmt.Sprintf("Documento não aprovado: %s", doc),
				})
			}
		}
	}

	if e.pendings != nil {
		blocking, err := e.pendings.HasBlocking(ctx, tenantID, protocolID)
		if err != nil {
			return nil, fmt.Errorf("check pendings: %w", err)
		}
		if blocking {
			missing = append(missing, model.FieldError{
				Field:   "pendings",
				Code:    "BLOCKING",
				Message: "Existem pendências bloqueantes em aberto",
			})
		}
	}
	return missing, nil
}

// enterStage puts stage idx in progress with a due date counted from now.
func (e *Engine) enterStage(wf *model.ProtocolWorkflow, idx int, now time.Time) {
	wf.CurrentIndex = idx
	st := &wf.Stages[idx]
	due := e.calendar.AddBusinessDays(now, st.SLADays)
	st.Status = model.StageStatusInProgress
	st.StartedAt = &now
	st.DueDate = &due
	st.CompletedAt = nil
}

// nextStage moves past the current stage. It returns the entered stage, or
// nil when the workflow completed.
func (e *Engine) nextStage(wf *model.ProtocolWorkflow, now time.Time) *model.ProtocolStage {
	idx := wf.CurrentIndex + 1
	if idx >= len(wf.Stages) {
		wf.CurrentIndex = len(wf.Stages)
		wf.Status = model.WorkflowStatusCompleted
		return nil
	}
	e.enterStage(wf, idx, now)
	return wf.Current()
}

func (e *Engine) afterNext(ctx context.Context, rctx *model.RequestContext, wf model.ProtocolWorkflow, next *model.ProtocolStage) {
	if next != nil {
		e.record(ctx, rctx, wf, next.Name, model.StageEventEntered, nil, "",
			fmt.Sprintf("Etapa atual: %s", next.Name))
		return
	}
	e.record(ctx, rctx, wf, "", model.WorkflowEventDone, nil, "", "Todas as etapas foram concluídas")
	e.bus.Emit(ctx, events.WorkflowCompleted, wf.TenantID, wf.ProtocolID, rctx.SubjectID,
		map[string]any{"module_type": wf.ModuleType})
}

// persist stores wf with optimistic locking and bumps its in-memory version.
func (e *Engine) persist(ctx context.Context, wf *model.ProtocolWorkflow) error {
	if err := e.store.Update(ctx, *wf); err != nil {
		return err
	}
	wf.Version++
	wf.UpdatedAt = e.now()
	return nil
}

// record writes the audit event and the public system interaction of a
// transition. Side-log failures are logged and not returned.
func (e *Engine) record(
	ctx context.Context,
	rctx *model.RequestContext,
	wf model.ProtocolWorkflow,
	stage, event string,
	data map[string]any,
	comment, message string,
) {
	if err := e.store.AppendEvent(ctx, model.WorkflowEvent{
		ID:         uuid.New().String(),
		WorkflowID: wf.ID,
		Stage:      stage,
		Event:      event,
		ActorID:    rctx.SubjectID,
		Data:       data,
		Comment:    comment,
		Timestamp:  e.now(),
	}); err != nil {
		e.logger.Warn("append workflow event failed",
			zap.String("protocol_id", wf.ProtocolID),
			zap.String("event", event),
			zap.Error(err),
		)
	}

	e.metrics.RecordStageTransition(wf.ModuleType, event)

	if e.interactions == nil {
		return
	}
	meta := map[string]any{"event": event, "workflow_id": wf.ID}
	if stage != "" {
		meta["stage"] = stage
	}
	if _, err := e.interactions.RecordSystem(ctx, wf.TenantID, model.NewInteraction{
		ProtocolID: wf.ProtocolID,
		Type:       model.InteractionSystem,
		Message:    message,
		Visibility: model.VisibilityPublic,
		Metadata:   meta,
	}); err != nil {
		e.logger.Warn("record workflow interaction failed",
			zap.String("protocol_id", wf.ProtocolID),
			zap.String("event", event),
			zap.Error(err),
		)
	}
}

func (e *Engine) position(wf model.ProtocolWorkflow) Position {
	pos := Position{
		Index:  wf.CurrentIndex,
		Total:  len(wf.Stages),
		Status: wf.Status,
	}
	if st := wf.Current(); st != nil {
		stage := *st
		pos.Stage = &stage
		pos.Deadline.StageDue = st.DueDate
	}

	last := wf.CurrentIndex
	if last >= len(wf.Stages) {
		last = len(wf.Stages) - 1
	}
	total := 0
	for i := 0; i <= last; i++ {
		total += wf.Stages[i].SLADays
	}
	if last >= 0 {
		cumulative := e.calendar.AddBusinessDays(wf.StartedAt, total)
		pos.Deadline.Cumulative = &cumulative
	}
	return pos
}
