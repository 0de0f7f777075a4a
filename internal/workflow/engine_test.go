package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pitabwire/digiurban/internal/definition"
	"github.com/pitabwire/digiurban/internal/events"
	"github.com/pitabwire/digiurban/internal/observability"
	"github.com/pitabwire/digiurban/model"
)

// --- Test helpers ---

func testRctx() *model.RequestContext {
	return &model.RequestContext{
		SubjectID: "servidor-ana",
		TenantID:  "prefeitura-1",
		Email:     "ana@prefeitura.gov.br",
		Roles:     []string{"ATENDENTE"},
	}
}

// mockCapResolver always returns the given capabilities.
type mockCapResolver struct {
	caps model.CapabilitySet
}

func (m *mockCapResolver) Resolve(_ *model.RequestContext) (model.CapabilitySet, error) {
	return m.caps, nil
}
func (m *mockCapResolver) Invalidate(_, _ string) {}

type mockProtocols struct {
	protocols map[string]model.Protocol
}

func (m *mockProtocols) Get(_ context.Context, _, id string) (model.Protocol, error) {
	p, ok := m.protocols[id]
	if !ok {
		return model.Protocol{}, model.NewNotFoundError("Protocolo não encontrado")
	}
	return p, nil
}

type mockDocuments struct {
	approved []string
	err      error
}

func (m *mockDocuments) ApprovedTypes(context.Context, string, string) ([]string, error) {
	return m.approved, m.err
}

type mockPendings struct {
	blocking bool
}

func (m *mockPendings) HasBlocking(context.Context, string, string) (bool, error) {
	return m.blocking, nil
}

type mockInteractions struct {
	recorded []model.NewInteraction
}

func (m *mockInteractions) RecordSystem(_ context.Context, _ string, in model.NewInteraction) (model.Interaction, error) {
	m.recorded = append(m.recorded, in)
	return model.Interaction{ID: "int-1", ProtocolID: in.ProtocolID, Type: in.Type}, nil
}

func testDefinitions() []model.DomainDefinition {
	return []model.DomainDefinition{
		{
			Domain: "geral",
			Workflows: []model.WorkflowTemplate{
				{
					ModuleType: model.GenericModuleType,
					Name:       "Fluxo genérico",
					DefaultSLA: 15,
					Stages: []model.StageTemplate{
						{Name: "Análise", Order: 1, SLADays: 5},
						{Name: "Execução", Order: 2, SLADays: 10},
					},
				},
			},
		},
		{
			Domain: "agricultura",
			Workflows: []model.WorkflowTemplate{
				{
					ModuleType: "CADASTRO_PRODUTOR",
					Name:       "Cadastro de produtor",
					DefaultSLA: 8,
					Stages: []model.StageTemplate{
						{Name: "Conferência", Order: 1, SLADays: 2, RequiredActions: []string{"conferir_dados"}, RequiredDocuments: []string{"RG"}},
						{Name: "Vistoria", Order: 2, SLADays: 5, CanSkip: true},
						{Name: "Emissão", Order: 3, SLADays: 1},
					},
				},
			},
		},
	}
}

type engineFixture struct {
	engine       *Engine
	store        *MemoryInstanceStore
	protocols    *mockProtocols
	documents    *mockDocuments
	pendings     *mockPendings
	interactions *mockInteractions
	publisher    *events.MemoryPublisher
	metrics      *observability.Metrics
}

func newFixture(caps model.CapabilitySet) *engineFixture {
	f := &engineFixture{
		store:        NewMemoryInstanceStore(),
		protocols:    &mockProtocols{protocols: map[string]model.Protocol{}},
		documents:    &mockDocuments{},
		pendings:     &mockPendings{},
		interactions: &mockInteractions{},
		publisher:    events.NewMemoryPublisher(),
		metrics:      observability.InitMetrics(prometheus.NewRegistry()),
	}
	reg := definition.NewRegistry(testDefinitions())
	f.engine = NewEngine(EngineDeps{
		Templates:    NewTemplates(reg, NewMemoryTemplateStore(), nil),
		Store:        f.store,
		CapResolver:  &mockCapResolver{caps: caps},
		Protocols:    f.protocols,
		Documents:    f.documents,
		Pendings:     f.pendings,
		Interactions: f.interactions,
		Bus:          events.NewBus(f.publisher, nil, f.metrics),
		Metrics:      f.metrics,
	})
	return f
}

func allCaps() model.CapabilitySet {
	return model.CapabilitySet{"workflow:stage:*": true}
}

func (f *engineFixture) protocol(id, moduleType string) model.Protocol {
	p := model.Protocol{
		ID:         id,
		TenantID:   "prefeitura-1",
		Status:     model.ProtocolVinculado,
		ModuleType: moduleType,
		CreatedAt:  time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), // Monday
	}
	f.protocols.protocols[id] = p
	return p
}

func (f *engineFixture) apply(t *testing.T, id, moduleType string) model.ProtocolWorkflow {
	t.Helper()
	wf, _, err := f.engine.Apply(context.Background(), testRctx(), f.protocol(id, moduleType))
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	return wf
}

// --- Apply ---

func TestEngine_Apply_specificTemplate(t *testing.T) {
	f := newFixture(allCaps())
	wf, tpl, err := f.engine.Apply(context.Background(), testRctx(), f.protocol("p-1", "CADASTRO_PRODUTOR"))
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if tpl.DefaultSLA != 8 {
		t.Errorf("DefaultSLA = %d, want 8", tpl.DefaultSLA)
	}
	if len(wf.Stages) != 3 {
		t.Fatalf("stages = %d, want 3", len(wf.Stages))
	}
	if wf.Stages[0].Status != model.StageStatusInProgress {
		t.Errorf("first stage = %s, want IN_PROGRESS", wf.Stages[0].Status)
	}
	for _, st := range wf.Stages[1:] {
		if st.Status != model.StageStatusPending {
			t.Errorf("stage %s = %s, want PENDING", st.Name, st.Status)
		}
	}
	if wf.Stages[0].DueDate == nil || wf.Stages[0].StartedAt == nil {
		t.Error("first stage must carry start and due dates")
	}
	if len(f.interactions.recorded) != 1 || f.interactions.recorded[0].Visibility != model.VisibilityPublic {
		t.Errorf("interactions = %+v, want one PUBLIC system entry", f.interactions.recorded)
	}
}

func TestEngine_Apply_fallsBackToGeneric(t *testing.T) {
	f := newFixture(allCaps())
	wf := f.apply(t, "p-1", "MODULO_SEM_FLUXO")
	if wf.ModuleType != model.GenericModuleType {
		t.Errorf("ModuleType = %s, want %s", wf.ModuleType, model.GenericModuleType)
	}
	if wf.Stages[0].Name != "Análise" {
		t.Errorf("first stage = %s", wf.Stages[0].Name)
	}
}

func TestEngine_Apply_twiceConflicts(t *testing.T) {
	f := newFixture(allCaps())
	p := f.protocol("p-1", "")
	if _, _, err := f.engine.Apply(context.Background(), testRctx(), p); err != nil {
		t.Fatalf("first Apply error: %v", err)
	}
	_, _, err := f.engine.Apply(context.Background(), testRctx(), p)
	assertCode(t, err, model.ErrConflict)
}

// --- Current ---

func TestEngine_Current_deadlines(t *testing.T) {
	f := newFixture(allCaps())
	f.engine.now = func() time.Time { return time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC) } // Wednesday
	f.apply(t, "p-1", "CADASTRO_PRODUTOR")

	pos, err := f.engine.Current(context.Background(), testRctx(), "p-1")
	if err != nil {
		t.Fatalf("Current error: %v", err)
	}
	if pos.Index != 0 || pos.Total != 3 || pos.Stage.Name != "Conferência" {
		t.Errorf("position = %+v", pos)
	}
	// Two business days after Wednesday.
	wantStage := time.Date(2026, 3, 6, 10, 0, 0, 0, time.UTC)
	if !pos.Deadline.StageDue.Equal(wantStage) {
		t.Errorf("StageDue = %v, want %v", pos.Deadline.StageDue, wantStage)
	}
	// Two business days after the protocol was created on Monday.
	wantCumulative := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	if !pos.Deadline.Cumulative.Equal(wantCumulative) {
		t.Errorf("Cumulative = %v, want %v", pos.Deadline.Cumulative, wantCumulative)
	}
}

// --- RecordAction / Advance ---

func TestEngine_RecordAction_unknown(t *testing.T) {
	f := newFixture(allCaps())
	f.apply(t, "p-1", "CADASTRO_PRODUTOR")

	_, err := f.engine.RecordAction(context.Background(), testRctx(), "p-1", "assinar")
	assertCode(t, err, model.ErrValidationError)
}

func TestEngine_Advance_requirementsNotMet(t *testing.T) {
	f := newFixture(allCaps())
	f.apply(t, "p-1", "CADASTRO_PRODUTOR")
	f.pendings.blocking = true

	_, err := f.engine.Advance(context.Background(), testRctx(), "p-1", "ok", "")
	assertCode(t, err, model.ErrRequirementsNotMet)

	var envErr *model.ErrorEnvelope
	if !errors.As(err, &envErr) {
		t.Fatal("expected envelope")
	}
	fields := map[string]bool{}
	for _, d := range envErr.Details {
		fields[d.Field] = true
	}
	for _, want := range []string{"required_actions", "required_documents", "pendings"} {
		if !fields[want] {
			t.Errorf("details missing %s: %+v", want, envErr.Details)
		}
	}

	wf, _ := f.store.GetByProtocol(context.Background(), "prefeitura-1", "p-1")
	if wf.CurrentIndex != 0 || wf.Version != 1 {
		t.Errorf("instance changed on failed advance: index=%d version=%d", wf.CurrentIndex, wf.Version)
	}
}

func TestEngine_Advance_throughAllStages(t *testing.T) {
	f := newFixture(allCaps())
	ctx := context.Background()
	f.apply(t, "p-1", "CADASTRO_PRODUTOR")
	f.documents.approved = []string{"RG"}

	if _, err := f.engine.RecordAction(ctx, testRctx(), "p-1", "conferir_dados"); err != nil {
		t.Fatalf("RecordAction error: %v", err)
	}
	wf, err := f.engine.Advance(ctx, testRctx(), "p-1", "dados conferidos", "ok")
	if err != nil {
		t.Fatalf("Advance error: %v", err)
	}
	if wf.CurrentIndex != 1 || wf.Stages[0].Status != model.StageStatusCompleted {
		t.Fatalf("after first advance: index=%d stage0=%s", wf.CurrentIndex, wf.Stages[0].Status)
	}
	if wf.Stages[0].Result != "dados conferidos" || wf.Stages[0].CompletedAt == nil {
		t.Errorf("completed stage = %+v", wf.Stages[0])
	}
	if wf.Stages[1].Status != model.StageStatusInProgress {
		t.Errorf("stage1 = %s, want IN_PROGRESS", wf.Stages[1].Status)
	}

	for i := 0; i < 2; i++ {
		if wf, err = f.engine.Advance(ctx, testRctx(), "p-1", "", ""); err != nil {
			t.Fatalf("Advance %d error: %v", i+2, err)
		}
	}
	if wf.Status != model.WorkflowStatusCompleted {
		t.Errorf("Status = %s, want completed", wf.Status)
	}
	if wf.Current() != nil {
		t.Error("completed workflow has no current stage")
	}

	_, err = f.engine.Advance(ctx, testRctx(), "p-1", "", "")
	assertCode(t, err, model.ErrInvalidTransition)

	if n := len(f.publisher.Events(events.WorkflowCompleted)); n != 1 {
		t.Errorf("workflow.completed events = %d, want 1", n)
	}
	if n := len(f.publisher.Events(events.StageCompleted)); n != 3 {
		t.Errorf("stage_completed events = %d, want 3", n)
	}
	if v := testutil.ToFloat64(f.metrics.StageTransitionsTotal.WithLabelValues("CADASTRO_PRODUTOR", model.WorkflowEventDone)); v != 1 {
		t.Errorf("workflow_completed metric = %v, want 1", v)
	}
}

func TestEngine_Advance_terminalProtocol(t *testing.T) {
	f := newFixture(allCaps())
	f.apply(t, "p-1", "")
	p := f.protocols.protocols["p-1"]
	p.Status = model.ProtocolConcluido
	f.protocols.protocols["p-1"] = p

	_, err := f.engine.Advance(context.Background(), testRctx(), "p-1", "", "")
	assertCode(t, err, model.ErrInvalidTransition)
}

func TestEngine_mutationsRejectedOnConcludedProtocol(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		call func(e *Engine) error
	}{
		{"skip", func(e *Engine) error {
			_, err := e.Skip(ctx, testRctx(), "p-1", "qualquer")
			return err
		}},
		{"record action", func(e *Engine) error {
			_, err := e.RecordAction(ctx, testRctx(), "p-1", "conferir_dados")
			return err
		}},
		{"fail", func(e *Engine) error {
			_, err := e.Fail(ctx, testRctx(), "p-1", "motivo")
			return err
		}},
		{"retry", func(e *Engine) error {
			_, err := e.Retry(ctx, testRctx(), "p-1")
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(allCaps())
			f.apply(t, "p-1", "CADASTRO_PRODUTOR")
			f.documents.approved = []string{"RG"}
			_, _ = f.engine.RecordAction(ctx, testRctx(), "p-1", "conferir_dados")
			if _, err := f.engine.Advance(ctx, testRctx(), "p-1", "", ""); err != nil {
				t.Fatalf("Advance error: %v", err)
			}
			if tt.name == "retry" {
				if _, err := f.engine.Fail(ctx, testRctx(), "p-1", "vistoria reprovada"); err != nil {
					t.Fatalf("Fail error: %v", err)
				}
			}
			p := f.protocols.protocols["p-1"]
			p.Status = model.ProtocolConcluido
			f.protocols.protocols["p-1"] = p

			assertCode(t, tt.call(f.engine), model.ErrInvalidTransition)

			wf, _ := f.engine.Get(ctx, testRctx(), "p-1")
			if wf.CurrentIndex != 1 {
				t.Errorf("CurrentIndex = %d, want 1 (Vistoria)", wf.CurrentIndex)
			}
		})
	}
}

func TestEngine_Conclude(t *testing.T) {
	f := newFixture(allCaps())
	ctx := context.Background()
	f.apply(t, "p-1", "CADASTRO_PRODUTOR")
	f.documents.approved = []string{"RG"}
	_, _ = f.engine.RecordAction(ctx, testRctx(), "p-1", "conferir_dados")
	if _, err := f.engine.Advance(ctx, testRctx(), "p-1", "", ""); err != nil {
		t.Fatalf("Advance error: %v", err)
	}

	wf, err := f.engine.Conclude(ctx, testRctx(), "p-1", "")
	if err != nil {
		t.Fatalf("Conclude error: %v", err)
	}
	if wf.Status != model.WorkflowStatusCompleted || wf.Current() != nil {
		t.Errorf("workflow = %s at %d", wf.Status, wf.CurrentIndex)
	}
	if wf.Stages[0].Status != model.StageStatusCompleted {
		t.Errorf("completed stage rewritten: %+v", wf.Stages[0])
	}
	for _, st := range wf.Stages[1:] {
		if st.Status != model.StageStatusSkipped || st.Reason != "Protocolo concluído" {
			t.Errorf("stage %s = %s (%q), want skipped", st.Name, st.Status, st.Reason)
		}
	}

	again, err := f.engine.Conclude(ctx, testRctx(), "p-1", "")
	if err != nil {
		t.Fatalf("second Conclude error: %v", err)
	}
	if again.Version != wf.Version {
		t.Errorf("second conclude persisted a change: version %d -> %d", wf.Version, again.Version)
	}
}

func TestEngine_Advance_forbidden(t *testing.T) {
	f := newFixture(model.CapabilitySet{})
	f.apply(t, "p-1", "")

	_, err := f.engine.Advance(context.Background(), testRctx(), "p-1", "", "")
	assertCode(t, err, model.ErrForbidden)
}

// --- Skip ---

func TestEngine_Skip(t *testing.T) {
	tests := []struct {
		name     string
		caps     model.CapabilitySet
		atStage  int
		reason   string
		wantCode string
	}{
		{"not skippable", allCaps(), 0, "motivo", model.ErrInvalidTransition},
		{"no reason", allCaps(), 1, " ", model.ErrValidationError},
		{"no capability", model.CapabilitySet{"workflow:stage:advance": true}, 1, "motivo", model.ErrForbidden},
		{"skipped", allCaps(), 1, "vistoria dispensada", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(allCaps())
			ctx := context.Background()
			f.apply(t, "p-1", "CADASTRO_PRODUTOR")
			if tt.atStage == 1 {
				f.documents.approved = []string{"RG"}
				_, _ = f.engine.RecordAction(ctx, testRctx(), "p-1", "conferir_dados")
				if _, err := f.engine.Advance(ctx, testRctx(), "p-1", "", ""); err != nil {
					t.Fatalf("Advance error: %v", err)
				}
			}
			f.engine.capResolver = &mockCapResolver{caps: tt.caps}

			wf, err := f.engine.Skip(ctx, testRctx(), "p-1", tt.reason)
			if tt.wantCode != "" {
				assertCode(t, err, tt.wantCode)
				return
			}
			if err != nil {
				t.Fatalf("Skip error: %v", err)
			}
			if wf.Stages[1].Status != model.StageStatusSkipped || wf.Stages[1].Reason != tt.reason {
				t.Errorf("skipped stage = %+v", wf.Stages[1])
			}
			if wf.CurrentIndex != 2 {
				t.Errorf("CurrentIndex = %d, want 2", wf.CurrentIndex)
			}
		})
	}
}

// --- Fail / Retry / Cancel ---

func TestEngine_FailAndRetry(t *testing.T) {
	f := newFixture(allCaps())
	ctx := context.Background()
	f.apply(t, "p-1", "")

	_, err := f.engine.Fail(ctx, testRctx(), "p-1", "")
	assertCode(t, err, model.ErrValidationError)

	_, err = f.engine.Retry(ctx, testRctx(), "p-1")
	assertCode(t, err, model.ErrInvalidTransition)

	wf, err := f.engine.Fail(ctx, testRctx(), "p-1", "vistoria reprovada")
	if err != nil {
		t.Fatalf("Fail error: %v", err)
	}
	if wf.Status != model.WorkflowStatusFailed || wf.Stages[0].Status != model.StageStatusFailed {
		t.Errorf("after fail: workflow=%s stage=%s", wf.Status, wf.Stages[0].Status)
	}

	_, err = f.engine.Advance(ctx, testRctx(), "p-1", "", "")
	assertCode(t, err, model.ErrInvalidTransition)

	f.engine.now = func() time.Time { return time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC) }
	wf, err = f.engine.Retry(ctx, testRctx(), "p-1")
	if err != nil {
		t.Fatalf("Retry error: %v", err)
	}
	st := wf.Stages[0]
	if wf.Status != model.WorkflowStatusActive || st.Status != model.StageStatusInProgress {
		t.Errorf("after retry: workflow=%s stage=%s", wf.Status, st.Status)
	}
	if st.Reason != "" || !st.StartedAt.Equal(time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("retried stage = %+v", st)
	}
}

func TestEngine_Cancel(t *testing.T) {
	f := newFixture(allCaps())
	ctx := context.Background()
	f.apply(t, "p-1", "")

	wf, err := f.engine.Cancel(ctx, testRctx(), "p-1", "cancelado pelo cidadão")
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if wf.Status != model.WorkflowStatusCancelled {
		t.Errorf("Status = %s, want cancelled", wf.Status)
	}

	again, err := f.engine.Cancel(ctx, testRctx(), "p-1", "")
	if err != nil {
		t.Fatalf("second Cancel error: %v", err)
	}
	if again.Version != wf.Version {
		t.Errorf("second cancel persisted a change: version %d -> %d", wf.Version, again.Version)
	}
}

// --- Completion / counts / events ---

func TestEngine_CheckCompletion(t *testing.T) {
	f := newFixture(allCaps())
	ctx := context.Background()
	f.apply(t, "p-1", "")
	_, _ = f.engine.Advance(ctx, testRctx(), "p-1", "", "")

	c, err := f.engine.CheckCompletion(ctx, testRctx(), "p-1")
	if err != nil {
		t.Fatalf("CheckCompletion error: %v", err)
	}
	if c.Completed || c.Done != 1 || c.Total != 2 || c.Progress != 50 {
		t.Errorf("completion = %+v", c)
	}
	if len(c.Remaining) != 1 || c.Remaining[0] != "Execução" {
		t.Errorf("Remaining = %v", c.Remaining)
	}
}

func TestEngine_CountByStatusAndEvents(t *testing.T) {
	f := newFixture(allCaps())
	ctx := context.Background()
	f.apply(t, "p-1", "")
	f.apply(t, "p-2", "")
	_, _ = f.engine.Cancel(ctx, testRctx(), "p-2", "")

	counts, err := f.engine.CountByStatus(ctx, testRctx())
	if err != nil {
		t.Fatalf("CountByStatus error: %v", err)
	}
	if counts[model.WorkflowStatusActive] != 1 || counts[model.WorkflowStatusCancelled] != 1 {
		t.Errorf("counts = %v", counts)
	}

	evts, err := f.engine.Events(ctx, testRctx(), "p-2")
	if err != nil {
		t.Fatalf("Events error: %v", err)
	}
	if len(evts) != 2 || evts[0].Event != model.StageEventEntered || evts[1].Event != model.WorkflowEventCancel {
		t.Errorf("events = %+v", evts)
	}
}
