package definition

import (
	"testing"

	"github.com/pitabwire/digiurban/model"
)

func validDomain() model.DomainDefinition {
	return model.DomainDefinition{
		Domain:  "saude",
		Version: "1.0.0",
		Workflows: []model.WorkflowTemplate{
			{ModuleType: "EXAMES", DefaultSLA: 30, Stages: []model.StageTemplate{{Name: "Validação", Order: 1, SLADays: 3}}},
		},
		Gates: []model.GateDefinition{
			{
				ID: "tfd.aprovacao_gestao", Machine: model.MachineTFD, Capability: model.CapTFDGestao,
				From:      []string{model.TFDAprovadoRegulacao},
				OnApprove: model.TFDAgendado, OnReject: model.TFDCancelado,
			},
		},
	}
}

func hasCode(errs []VError, code string) bool {
	for _, e := range errs {
		if e.Code == code {
			return true
		}
	}
	return false
}

func TestValidator_valid(t *testing.T) {
	if errs := NewValidator().Validate([]model.DomainDefinition{validDomain()}); len(errs) != 0 {
		t.Errorf("Validate() = %v, want no errors", errs)
	}
}

func TestValidator_workflow_rules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.WorkflowTemplate)
		code   string
	}{
		{"zero stages", func(w *model.WorkflowTemplate) { w.Stages = nil }, "REQUIRED"},
		{"empty stage name", func(w *model.WorkflowTemplate) { w.Stages[0].Name = " " }, "REQUIRED"},
		{"zero sla", func(w *model.WorkflowTemplate) { w.Stages[0].SLADays = 0 }, "INVALID"},
		{"negative sla", func(w *model.WorkflowTemplate) { w.Stages[0].SLADays = -2 }, "INVALID"},
		{"duplicate order", func(w *model.WorkflowTemplate) {
			w.Stages = append(w.Stages, model.StageTemplate{Name: "B", Order: 1, SLADays: 1})
		}, "DUPLICATE"},
		{"missing module type", func(w *model.WorkflowTemplate) { w.ModuleType = "" }, "REQUIRED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDomain()
			tt.mutate(&def.Workflows[0])
			errs := NewValidator().Validate([]model.DomainDefinition{def})
			if !hasCode(errs, tt.code) {
				t.Errorf("Validate() = %v, want code %s", errs, tt.code)
			}
		})
	}
}

func TestValidator_gate_rules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.GateDefinition)
		code   string
	}{
		{"missing id", func(g *model.GateDefinition) { g.ID = "" }, "REQUIRED"},
		{"missing capability", func(g *model.GateDefinition) { g.Capability = "" }, "REQUIRED"},
		{"unknown machine", func(g *model.GateDefinition) { g.Machine = "obras" }, "INVALID_ENUM"},
		{"foreign status", func(g *model.GateDefinition) { g.OnApprove = model.ProtocolConcluido }, "INVALID_STATUS"},
		{"terminal from", func(g *model.GateDefinition) { g.From = []string{model.TFDRealizado} }, "TERMINAL_STATUS"},
		{"no from", func(g *model.GateDefinition) { g.From = nil }, "REQUIRED"},
		{"bad visibility", func(g *model.GateDefinition) { g.Visibility = "SECRET" }, "INVALID_ENUM"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDomain()
			tt.mutate(&def.Gates[0])
			errs := NewValidator().Validate([]model.DomainDefinition{def})
			if !hasCode(errs, tt.code) {
				t.Errorf("Validate() = %v, want code %s", errs, tt.code)
			}
		})
	}
}

func TestValidator_duplicates_across_files(t *testing.T) {
	a, b := validDomain(), validDomain()
	b.Domain = "outro"
	errs := NewValidator().Validate([]model.DomainDefinition{a, b})
	dups := 0
	for _, e := range errs {
		if e.Code == "DUPLICATE" {
			dups++
		}
	}
	if dups != 2 {
		t.Errorf("duplicate errors = %d, want 2 (module type and gate)", dups)
	}
}
