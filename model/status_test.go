package model

import "testing"

func TestProtocolTransitionAllowed(t *testing.T) {
	tests := []struct {
		name  string
		actor Actor
		from  string
		to    string
		want  bool
	}{
		{"citizen cancels new protocol", ActorCitizen, ProtocolVinculado, ProtocolCancelado, true},
		{"citizen cannot start progress", ActorCitizen, ProtocolVinculado, ProtocolProgresso, false},
		{"citizen answers pending", ActorCitizen, ProtocolPendencia, ProtocolProgresso, true},
		{"citizen cannot conclude", ActorCitizen, ProtocolProgresso, ProtocolConcluido, false},
		{"staff starts progress", ActorUser, ProtocolVinculado, ProtocolProgresso, true},
		{"staff concludes", ActorUser, ProtocolProgresso, ProtocolConcluido, true},
		{"staff cannot reopen concluded", ActorUser, ProtocolConcluido, ProtocolProgresso, false},
		{"staff cannot reopen cancelled", ActorUser, ProtocolCancelado, ProtocolVinculado, false},
		{"admin reopens concluded", ActorAdmin, ProtocolConcluido, ProtocolProgresso, true},
		{"super admin reopens cancelled", ActorSuperAdmin, ProtocolCancelado, ProtocolVinculado, true},
		{"unknown status rejected", ActorAdmin, ProtocolVinculado, "EM_ANALISE", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ProtocolTransitionAllowed(tt.actor, tt.from, tt.to); got != tt.want {
				t.Errorf("ProtocolTransitionAllowed(%s, %s→%s) = %v, want %v", tt.actor, tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestStatusMachine_TFD(t *testing.T) {
	if !TFDMachine.Valid(TFDEmViagem) {
		t.Error("EM_VIAGEM should be a TFD state")
	}
	if TFDMachine.Valid(ProtocolPendencia) {
		t.Error("PENDENCIA should not be a TFD state")
	}
	if !TFDMachine.IsTerminal(TFDRealizado) || TFDMachine.IsTerminal(TFDAgendado) {
		t.Error("terminal set should be REALIZADO and CANCELADO")
	}
	for _, s := range []string{
		TFDAguardandoAnaliseDocumental, TFDDocumentacaoPendente, TFDAguardandoRegulacaoMedica,
		TFDAprovadoRegulacao, TFDAguardandoAprovacaoGestao, TFDAgendado, TFDEmViagem,
	} {
		if !TFDMachine.CanTransition(s, TFDCancelado) {
			t.Errorf("%s should allow cancellation", s)
		}
	}
	if TFDMachine.CanTransition(TFDRealizado, TFDCancelado) {
		t.Error("REALIZADO should not allow cancellation")
	}
}

func TestStatusMachine_Next_returns_copy(t *testing.T) {
	next := DispensacaoMachine.Next(DispensacaoAguardando)
	next[0] = "X"
	if DispensacaoMachine.Next(DispensacaoAguardando)[0] == "X" {
		t.Error("Next() exposed internal table")
	}
}

func TestActionForStatus(t *testing.T) {
	if got := ActionForStatus(ProtocolConcluido); got != "CONCLUSAO" {
		t.Errorf("ActionForStatus(CONCLUIDO) = %q", got)
	}
	if got := ActionForStatus("OUTRO"); got != "MUDANCA_STATUS" {
		t.Errorf("ActionForStatus(OUTRO) = %q", got)
	}
	if got := DefaultComment("OUTRO"); got != "Status alterado para OUTRO" {
		t.Errorf("DefaultComment(OUTRO) = %q", got)
	}
}

func TestWorkflowTemplate_TotalSLADays(t *testing.T) {
	tpl := WorkflowTemplate{Stages: []StageTemplate{{SLADays: 5}, {SLADays: 7}, {SLADays: 3}}}
	if got := tpl.TotalSLADays(); got != 15 {
		t.Errorf("TotalSLADays() = %d, want 15", got)
	}
}
