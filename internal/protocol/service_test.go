package protocol

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pitabwire/digiurban/internal/events"
	"github.com/pitabwire/digiurban/internal/search"
	"github.com/pitabwire/digiurban/model"
)

type stubWorkflows struct {
	applied   []string
	cancelled []string
	concluded []string
	applyErr  error
	sla       int
}

func (w *stubWorkflows) Apply(_ context.Context, _ *model.RequestContext, p model.Protocol) (model.ProtocolWorkflow, model.WorkflowTemplate, error) {
	if w.applyErr != nil {
		return model.ProtocolWorkflow{}, model.WorkflowTemplate{}, w.applyErr
	}
	w.applied = append(w.applied, p.ID)
	return model.ProtocolWorkflow{ProtocolID: p.ID}, model.WorkflowTemplate{ModuleType: model.GenericModuleType, DefaultSLA: w.sla}, nil
}

func (w *stubWorkflows) Cancel(_ context.Context, _ *model.RequestContext, protocolID, _ string) (model.ProtocolWorkflow, error) {
	w.cancelled = append(w.cancelled, protocolID)
	return model.ProtocolWorkflow{}, nil
}

func (w *stubWorkflows) Conclude(_ context.Context, _ *model.RequestContext, protocolID, _ string) (model.ProtocolWorkflow, error) {
	w.concluded = append(w.concluded, protocolID)
	return model.ProtocolWorkflow{}, nil
}

type stubSLAs struct {
	opened    map[string]int
	completed []string
}

func (s *stubSLAs) Create(_ context.Context, _ *model.RequestContext, protocolID string, days int, _ *time.Time) (model.ProtocolSLA, error) {
	s.opened[protocolID] = days
	return model.ProtocolSLA{ProtocolID: protocolID}, nil
}

func (s *stubSLAs) Complete(_ context.Context, _ *model.RequestContext, protocolID string) (model.ProtocolSLA, error) {
	s.completed = append(s.completed, protocolID)
	return model.ProtocolSLA{}, nil
}

type recordingPoster struct {
	posted []model.NewInteraction
}

func (p *recordingPoster) Post(_ context.Context, _ *model.RequestContext, in model.NewInteraction) (model.Interaction, error) {
	p.posted = append(p.posted, in)
	return model.Interaction{}, nil
}

type fixture struct {
	svc       *Service
	store     *MemoryStore
	workflows *stubWorkflows
	slas      *stubSLAs
	poster    *recordingPoster
	pub       *events.MemoryPublisher
}

func newFixture() *fixture {
	f := &fixture{
		store:     NewMemoryStore(),
		workflows: &stubWorkflows{sla: 15},
		slas:      &stubSLAs{opened: map[string]int{}},
		poster:    &recordingPoster{},
		pub:       events.NewMemoryPublisher(),
	}
	f.svc = NewService(Deps{
		Store:        f.store,
		Workflows:    f.workflows,
		SLAs:         f.slas,
		Interactions: f.poster,
		Index:        search.NewMemoryIndex(),
		Bus:          events.NewBus(f.pub, nil, nil),
	})
	t := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
	return f
}

func staff() *model.RequestContext {
	return &model.RequestContext{SubjectID: "servidor-1", TenantID: "prefeitura-1", Roles: []string{"ATENDENTE"}}
}

func admin() *model.RequestContext {
	return &model.RequestContext{SubjectID: "admin-1", TenantID: "prefeitura-1", Roles: []string{model.RoleAdmin}}
}

func citizen(id string) *model.RequestContext {
	return &model.RequestContext{SubjectID: id, TenantID: "prefeitura-1", Roles: []string{model.RoleCitizen}}
}

func validInput() CreateInput {
	return CreateInput{
		Title:        "Poda de árvore",
		Description:  "Árvore encostando na rede elétrica",
		CitizenID:    "cidadao-1",
		ServiceID:    "svc-poda",
		DepartmentID: "meio-ambiente",
		ModuleType:   "PODA_ARVORES",
	}
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	if !model.IsCode(err, code) {
		t.Fatalf("error = %v, want code %s", err, code)
	}
}

func (f *fixture) create(t *testing.T) model.Protocol {
	t.Helper()
	p, err := f.svc.Create(context.Background(), staff(), validInput())
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	return p
}

func TestService_Create_validation(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(context.Background(), staff(), CreateInput{})
	assertCode(t, err, model.ErrValidationError)
	var env *model.ErrorEnvelope
	if errors.As(err, &env) && len(env.Details) != 4 {
		t.Errorf("details = %+v, want 4 missing fields", env.Details)
	}

	in := validInput()
	in.Priority = 7
	_, err = f.svc.Create(context.Background(), staff(), in)
	assertCode(t, err, model.ErrValidationError)
}

func TestService_Create(t *testing.T) {
	f := newFixture()
	p := f.create(t)
	second := f.create(t)

	if p.Number != "2026-000001" || second.Number != "2026-000002" {
		t.Errorf("numbers = %s, %s", p.Number, second.Number)
	}
	if p.Status != model.ProtocolVinculado || p.Priority != defaultPriority || p.Version != 1 {
		t.Errorf("protocol = %+v", p)
	}
	if len(f.workflows.applied) != 2 || f.slas.opened[p.ID] != 15 {
		t.Errorf("workflows = %v, slas = %v", f.workflows.applied, f.slas.opened)
	}

	history, _ := f.svc.History(context.Background(), staff(), p.ID)
	if len(history) != 1 || history[0].Action != "CRIACAO" || history[0].NewStatus != model.ProtocolVinculado {
		t.Errorf("history = %+v", history)
	}
	if n := len(f.pub.Events(events.ProtocolCreated)); n != 2 {
		t.Errorf("created events = %d, want 2", n)
	}

	found, total, err := f.svc.Search(context.Background(), staff(), search.Query{Text: "000002"})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if total != 1 || found[0].ID != second.ID {
		t.Errorf("search = %+v", found)
	}
}

func TestService_Create_citizenOwnsProtocol(t *testing.T) {
	f := newFixture()
	in := validInput()
	in.CitizenID = "someone-else"

	p, err := f.svc.Create(context.Background(), citizen("cidadao-9"), in)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if p.CitizenID != "cidadao-9" {
		t.Errorf("CitizenID = %s, want cidadao-9", p.CitizenID)
	}
}

func TestService_Create_workflowFailureDoesNotFail(t *testing.T) {
	f := newFixture()
	f.workflows.applyErr = errors.New("template store down")

	p := f.create(t)
	if _, ok := f.slas.opened[p.ID]; ok {
		t.Error("sla opened without a workflow template")
	}
	if _, err := f.svc.Get(context.Background(), staff(), p.ID); err != nil {
		t.Errorf("protocol not stored: %v", err)
	}
}

func TestService_Get_citizenSeesOwnOnly(t *testing.T) {
	f := newFixture()
	p := f.create(t)

	if _, err := f.svc.Get(context.Background(), citizen("cidadao-1"), p.ID); err != nil {
		t.Errorf("owner Get error: %v", err)
	}
	_, err := f.svc.Get(context.Background(), citizen("cidadao-2"), p.ID)
	assertCode(t, err, model.ErrNotFound)
	_, err = f.svc.GetByNumber(context.Background(), citizen("cidadao-2"), p.Number)
	assertCode(t, err, model.ErrNotFound)

	items, total, _ := f.svc.List(context.Background(), citizen("cidadao-2"), model.ProtocolFilters{})
	if total != 0 || len(items) != 0 {
		t.Errorf("foreign citizen listed %d protocols", total)
	}
}

func TestService_UpdateStatus_transitionTable(t *testing.T) {
	tests := []struct {
		name  string
		rctx  *model.RequestContext
		setup []string
		to    string
		code  string
	}{
		{"staff starts", staff(), nil, model.ProtocolProgresso, ""},
		{"citizen cannot start", citizen("cidadao-1"), nil, model.ProtocolProgresso, model.ErrInvalidTransition},
		{"citizen cancels", citizen("cidadao-1"), nil, model.ProtocolCancelado, ""},
		{"citizen answers pendency", citizen("cidadao-1"), []string{model.ProtocolPendencia}, model.ProtocolProgresso, ""},
		{"staff cannot reopen", staff(), []string{model.ProtocolConcluido}, model.ProtocolProgresso, model.ErrInvalidTransition},
		{"admin reopens", admin(), []string{model.ProtocolConcluido}, model.ProtocolProgresso, ""},
		{"unknown status", staff(), nil, "ARQUIVADO", model.ErrValidationError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			ctx := context.Background()
			p := f.create(t)
			for _, st := range tt.setup {
				if _, err := f.svc.UpdateStatus(ctx, staff(), p.ID, st, ""); err != nil {
					t.Fatalf("setup %s: %v", st, err)
				}
			}

			got, err := f.svc.UpdateStatus(ctx, tt.rctx, p.ID, tt.to, "")
			if tt.code != "" {
				assertCode(t, err, tt.code)
				return
			}
			if err != nil {
				t.Fatalf("UpdateStatus error: %v", err)
			}
			if got.Status != tt.to {
				t.Errorf("Status = %s, want %s", got.Status, tt.to)
			}
		})
	}
}

func TestService_UpdateStatus_sameStatusIsNoop(t *testing.T) {
	f := newFixture()
	p := f.create(t)

	got, err := f.svc.UpdateStatus(context.Background(), staff(), p.ID, model.ProtocolVinculado, "")
	if err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}
	if got.Version != p.Version {
		t.Errorf("Version = %d, want %d", got.Version, p.Version)
	}
	history, _ := f.svc.History(context.Background(), staff(), p.ID)
	if len(history) != 1 {
		t.Errorf("history entries = %d, want 1", len(history))
	}
	if len(f.pub.Events(events.ProtocolStatusChanged)) != 0 {
		t.Error("no-op update published an event")
	}
}

func TestService_UpdateStatus_sideEffects(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	done := f.create(t)
	dropped := f.create(t)

	concluded, err := f.svc.UpdateStatus(ctx, staff(), done.ID, model.ProtocolConcluido, "")
	if err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}
	if concluded.ConcludedAt == nil || concluded.Version != 2 {
		t.Errorf("concluded = %+v", concluded)
	}
	history, _ := f.svc.History(ctx, staff(), done.ID)
	if history[0].Action != "CONCLUSAO" || history[0].Comment != "Protocolo concluído com sucesso" || history[0].OldStatus != model.ProtocolVinculado {
		t.Errorf("latest history = %+v", history[0])
	}

	if _, err := f.svc.UpdateStatus(ctx, staff(), dropped.ID, model.ProtocolCancelado, "Duplicado"); err != nil {
		t.Fatalf("cancel error: %v", err)
	}

	if len(f.slas.completed) != 2 {
		t.Errorf("slas completed = %v, want both", f.slas.completed)
	}
	if len(f.workflows.cancelled) != 1 || f.workflows.cancelled[0] != dropped.ID {
		t.Errorf("workflows cancelled = %v", f.workflows.cancelled)
	}
	if len(f.workflows.concluded) != 1 || f.workflows.concluded[0] != done.ID {
		t.Errorf("workflows concluded = %v", f.workflows.concluded)
	}
	if len(f.poster.posted) != 2 || f.poster.posted[0].Type != model.InteractionStatusChange || f.poster.posted[0].Visibility != model.VisibilityPublic {
		t.Errorf("posted = %+v", f.poster.posted)
	}
	if n := len(f.pub.Events(events.ProtocolStatusChanged)); n != 2 {
		t.Errorf("status events = %d, want 2", n)
	}
}

func TestService_UpdateStatus_staleVersionConflicts(t *testing.T) {
	f := newFixture()
	p := f.create(t)

	stale := p
	stale.Status = model.ProtocolPendencia
	if _, err := f.svc.UpdateStatus(context.Background(), staff(), p.ID, model.ProtocolProgresso, ""); err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}
	assertCode(t, f.store.Update(context.Background(), stale), model.ErrConflict)
}

func TestService_Assign(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.create(t)

	_, err := f.svc.Assign(ctx, staff(), p.ID, "")
	assertCode(t, err, model.ErrValidationError)

	got, err := f.svc.Assign(ctx, staff(), p.ID, "servidor-7")
	if err != nil {
		t.Fatalf("Assign error: %v", err)
	}
	if got.AssignedUserID != "servidor-7" {
		t.Errorf("AssignedUserID = %s", got.AssignedUserID)
	}
	if len(f.poster.posted) != 1 || f.poster.posted[0].Type != model.InteractionAssignment || f.poster.posted[0].Visibility != model.VisibilityInternal {
		t.Errorf("posted = %+v", f.poster.posted)
	}
	history, _ := f.svc.History(ctx, staff(), p.ID)
	if history[0].Action != model.HistoryAssigned {
		t.Errorf("latest history = %+v", history[0])
	}

	mine, total, _ := f.svc.List(ctx, staff(), model.ProtocolFilters{AssignedUserID: "servidor-7"})
	if total != 1 || mine[0].ID != p.ID {
		t.Errorf("assigned list = %+v", mine)
	}

	_, _ = f.svc.UpdateStatus(ctx, staff(), p.ID, model.ProtocolCancelado, "")
	_, err = f.svc.Assign(ctx, staff(), p.ID, "servidor-8")
	assertCode(t, err, model.ErrInvalidTransition)
}

func TestService_Evaluate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.create(t)
	owner := citizen("cidadao-1")

	_, err := f.svc.Evaluate(ctx, owner, p.ID, EvaluationInput{Rating: 5})
	assertCode(t, err, model.ErrInvalidTransition)

	_, _ = f.svc.UpdateStatus(ctx, staff(), p.ID, model.ProtocolConcluido, "")

	_, err = f.svc.Evaluate(ctx, owner, p.ID, EvaluationInput{Rating: 0})
	assertCode(t, err, model.ErrValidationError)

	e, err := f.svc.Evaluate(ctx, owner, p.ID, EvaluationInput{Rating: 4, Comment: "Rápido"})
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if !e.WouldRecommend || e.EvaluatedBy != "cidadao-1" {
		t.Errorf("evaluation = %+v", e)
	}

	_, err = f.svc.Evaluate(ctx, owner, p.ID, EvaluationInput{Rating: 1})
	assertCode(t, err, model.ErrConflict)
}

func TestService_DepartmentStats(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.create(t)
	_ = f.create(t)
	generic := validInput()
	generic.ModuleType = ""
	_, _ = f.svc.Create(ctx, staff(), generic)
	other := validInput()
	other.DepartmentID = "saude"
	_, _ = f.svc.Create(ctx, staff(), other)
	_, _ = f.svc.UpdateStatus(ctx, staff(), a.ID, model.ProtocolProgresso, "")

	st, err := f.svc.DepartmentStats(ctx, staff(), "meio-ambiente", nil, nil)
	if err != nil {
		t.Fatalf("DepartmentStats error: %v", err)
	}
	if st.Total != 3 || st.ByStatus[model.ProtocolVinculado] != 2 || st.ByStatus[model.ProtocolProgresso] != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.ByModule["PODA_ARVORES"] != 2 || st.ByModule[model.GenericModuleType] != 1 {
		t.Errorf("by module = %v", st.ByModule)
	}

	future := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	empty, _ := f.svc.DepartmentStats(ctx, staff(), "meio-ambiente", &future, nil)
	if empty.Total != 0 {
		t.Errorf("future window total = %d", empty.Total)
	}
}

func TestService_List_pagination(t *testing.T) {
	f := newFixture()
	for range 5 {
		f.create(t)
	}

	page, total, err := f.svc.List(context.Background(), staff(), model.ProtocolFilters{Offset: 2, Limit: 2})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if total != 5 || len(page) != 2 {
		t.Fatalf("total = %d, page = %d", total, len(page))
	}
	if page[0].Number != "2026-000003" || page[1].Number != "2026-000002" {
		t.Errorf("page = %s, %s", page[0].Number, page[1].Number)
	}
}

func TestService_Search_citizenScoped(t *testing.T) {
	f := newFixture()
	_ = f.create(t)
	mine := validInput()
	mine.CitizenID = "cidadao-2"
	_, _ = f.svc.Create(context.Background(), staff(), mine)

	found, total, err := f.svc.Search(context.Background(), citizen("cidadao-2"), search.Query{Text: "árvore"})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if total != 1 || found[0].CitizenID != "cidadao-2" {
		t.Errorf("found = %+v", found)
	}
}

func TestGateTarget(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.create(t)
	target := f.svc.GateTarget()
	gate := model.GateDefinition{ID: "protocolo.aprovacao", Name: "Aprovação de protocolo"}

	subject, err := target.Load(ctx, staff(), p.ID)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if subject.Status != model.ProtocolVinculado || subject.ProtocolID != p.ID {
		t.Errorf("subject = %+v", subject)
	}

	stale := subject
	stale.Version = 99
	err = target.ApplyDecision(ctx, staff(), gate, stale, model.ProtocolConcluido, model.ApprovalDecision{Approved: true})
	assertCode(t, err, model.ErrConflict)

	decision := model.ApprovalDecision{Approved: true, Justification: "Serviço executado"}
	if err := target.ApplyDecision(ctx, staff(), gate, subject, model.ProtocolConcluido, decision); err != nil {
		t.Fatalf("ApplyDecision error: %v", err)
	}
	got, _ := f.svc.Get(ctx, staff(), p.ID)
	if got.Status != model.ProtocolConcluido || got.ConcludedAt == nil {
		t.Errorf("protocol = %+v", got)
	}
	history, _ := f.svc.History(ctx, staff(), p.ID)
	if history[0].Action != model.HistoryApproved || history[0].Comment != "[Aprovação de protocolo] Serviço executado" {
		t.Errorf("latest history = %+v", history[0])
	}
}
