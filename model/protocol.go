package model

import (
	"slices"
	"time"
)

// Protocol statuses.
const (
	ProtocolVinculado   = "VINCULADO"
	ProtocolProgresso   = "PROGRESSO"
	ProtocolAtualizacao = "ATUALIZACAO"
	ProtocolPendencia   = "PENDENCIA"
	ProtocolConcluido   = "CONCLUIDO"
	ProtocolCancelado   = "CANCELADO"
)

// ProtocolStatuses lists every protocol status.
var ProtocolStatuses = []string{
	ProtocolVinculado, ProtocolProgresso, ProtocolAtualizacao,
	ProtocolPendencia, ProtocolConcluido, ProtocolCancelado,
}

// ProtocolMachine is the generic protocol lifecycle as seen by department
// staff. Citizens use a narrower table, administrators may move freely.
var ProtocolMachine = NewStatusMachine("protocol", ProtocolVinculado,
	[]string{ProtocolConcluido, ProtocolCancelado},
	map[string][]string{
		ProtocolVinculado:   {ProtocolProgresso, ProtocolPendencia, ProtocolAtualizacao, ProtocolConcluido, ProtocolCancelado},
		ProtocolPendencia:   {ProtocolProgresso, ProtocolAtualizacao, ProtocolConcluido, ProtocolCancelado},
		ProtocolProgresso:   {ProtocolPendencia, ProtocolAtualizacao, ProtocolConcluido, ProtocolCancelado},
		ProtocolAtualizacao: {ProtocolProgresso, ProtocolPendencia, ProtocolConcluido, ProtocolCancelado},
	})

var citizenProtocolMachine = NewStatusMachine("protocol.citizen", ProtocolVinculado,
	[]string{ProtocolConcluido, ProtocolCancelado},
	map[string][]string{
		ProtocolVinculado:   {ProtocolCancelado},
		ProtocolPendencia:   {ProtocolProgresso, ProtocolCancelado},
		ProtocolAtualizacao: {ProtocolProgresso, ProtocolCancelado},
		ProtocolProgresso:   {ProtocolCancelado},
	})

// ProtocolTransitionAllowed applies the per-actor transition table.
func ProtocolTransitionAllowed(actor Actor, from, to string) bool {
	if !slices.Contains(ProtocolStatuses, to) {
		return false
	}
	switch actor {
	case ActorAdmin, ActorSuperAdmin:
		return true
	case ActorUser:
		return ProtocolMachine.CanTransition(from, to)
	case ActorCitizen:
		return citizenProtocolMachine.CanTransition(from, to)
	default:
		return false
	}
}

var statusToAction = map[string]string{
	ProtocolVinculado:   "CRIACAO",
	ProtocolProgresso:   "INICIO_EXECUCAO",
	ProtocolPendencia:   "PENDENCIA_IDENTIFICADA",
	ProtocolAtualizacao: "ATUALIZACAO_SOLICITADA",
	ProtocolConcluido:   "CONCLUSAO",
	ProtocolCancelado:   "CANCELAMENTO",
}

var defaultComments = map[string]string{
	ProtocolVinculado:   "Protocolo criado e vinculado ao departamento",
	ProtocolProgresso:   "Protocolo em andamento",
	ProtocolPendencia:   "Protocolo com pendências",
	ProtocolAtualizacao: "Aguardando atualização",
	ProtocolConcluido:   "Protocolo concluído com sucesso",
	ProtocolCancelado:   "Protocolo cancelado",
}

// ActionForStatus returns the history action recorded when a protocol
// enters status.
func ActionForStatus(status string) string {
	if a, ok := statusToAction[status]; ok {
		return a
	}
	return "MUDANCA_STATUS"
}

// DefaultComment returns the history comment used when the caller gives none.
func DefaultComment(status string) string {
	if c, ok := defaultComments[status]; ok {
		return c
	}
	return "Status alterado para " + status
}

// History actions not tied to a status.
const (
	HistoryAssigned = "ATRIBUICAO"
	HistoryApproved = "APPROVED"
	HistoryRejected = "REJECTED"
	HistoryRated    = "AVALIACAO"
)

// Protocol is a citizen service request.
type Protocol struct {
	ID             string         `json:"id"`
	TenantID       string         `json:"tenant_id"`
	Number         string         `json:"number"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Status         string         `json:"status"`
	Priority       int            `json:"priority"`
	CitizenID      string         `json:"citizen_id"`
	ServiceID      string         `json:"service_id"`
	DepartmentID   string         `json:"department_id"`
	ModuleType     string         `json:"module_type,omitempty"`
	AssignedUserID string         `json:"assigned_user_id,omitempty"`
	FormData       map[string]any `json:"form_data,omitempty"`
	DueDate        *time.Time     `json:"due_date,omitempty"`
	ConcludedAt    *time.Time     `json:"concluded_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Version        int            `json:"version"`
}

// IsTerminal reports whether the protocol reached a terminal status.
func (p *Protocol) IsTerminal() bool {
	return ProtocolMachine.IsTerminal(p.Status)
}

// ProtocolHistory is one entry of the protocol status trail.
type ProtocolHistory struct {
	ID         string    `json:"id"`
	ProtocolID string    `json:"protocol_id"`
	Action     string    `json:"action"`
	OldStatus  string    `json:"old_status,omitempty"`
	NewStatus  string    `json:"new_status,omitempty"`
	Comment    string    `json:"comment,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ProtocolEvaluation is the citizen's rating of a concluded protocol.
type ProtocolEvaluation struct {
	ID             string    `json:"id"`
	ProtocolID     string    `json:"protocol_id"`
	Rating         int       `json:"rating"`
	Comment        string    `json:"comment,omitempty"`
	WouldRecommend bool      `json:"would_recommend"`
	EvaluatedBy    string    `json:"evaluated_by"`
	CreatedAt      time.Time `json:"created_at"`
}

// ProtocolFilters restricts protocol listings.
type ProtocolFilters struct {
	Status         string
	DepartmentID   string
	ModuleType     string
	CitizenID      string
	AssignedUserID string
	CreatedFrom    *time.Time
	CreatedTo      *time.Time
	Offset         int
	Limit          int
}

// DepartmentStats aggregates protocols of one department.
type DepartmentStats struct {
	DepartmentID string         `json:"department_id"`
	Total        int            `json:"total"`
	ByStatus     map[string]int `json:"by_status"`
	ByModule     map[string]int `json:"by_module"`
}
