package model

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// GenericModuleType is the template applied when a module has none of its own.
const GenericModuleType = "GENERICO"

// Workflow instance status constants.
const (
	WorkflowStatusActive    = "active"
	WorkflowStatusCompleted = "completed"
	WorkflowStatusFailed    = "failed"
	WorkflowStatusCancelled = "cancelled"
)

// Stage status constants.
const (
	StageStatusPending    = "PENDING"
	StageStatusInProgress = "IN_PROGRESS"
	StageStatusCompleted  = "COMPLETED"
	StageStatusSkipped    = "SKIPPED"
	StageStatusFailed     = "FAILED"
)

// Workflow audit events.
const (
	StageEventEntered   = "stage_entered"
	StageEventCompleted = "stage_completed"
	StageEventSkipped   = "stage_skipped"
	StageEventFailed    = "stage_failed"
	StageEventRetried   = "stage_retried"
	StageEventAction    = "action_recorded"
	WorkflowEventDone   = "workflow_completed"
	WorkflowEventCancel = "workflow_cancelled"
)

// StageTemplate describes one stage of a module workflow.
type StageTemplate struct {
	Name              string   `yaml:"name"               json:"name"`
	Order             int      `yaml:"order"              json:"order"`
	SLADays           int      `yaml:"sla_days"           json:"sla_days"`
	Description       string   `yaml:"description"        json:"description,omitempty"`
	CanSkip           bool     `yaml:"can_skip"           json:"can_skip"`
	SkipCondition     string   `yaml:"skip_condition"     json:"skip_condition,omitempty"`
	RequiredActions   []string `yaml:"required_actions"   json:"required_actions,omitempty"`
	RequiredDocuments []string `yaml:"required_documents" json:"required_documents,omitempty"`
}

// WorkflowTemplate is the ordered stage list configured for a module type.
type WorkflowTemplate struct {
	ModuleType  string          `yaml:"module_type" json:"module_type"`
	Name        string          `yaml:"name"        json:"name"`
	Description string          `yaml:"description" json:"description,omitempty"`
	DefaultSLA  int             `yaml:"default_sla" json:"default_sla"`
	Stages      []StageTemplate `yaml:"stages"      json:"stages"`
	UpdatedAt   time.Time       `yaml:"-"           json:"updated_at"`
	Version     int             `yaml:"-"           json:"version"`
}

// TotalSLADays sums the stage SLAs.
func (t *WorkflowTemplate) TotalSLADays() int {
	total := 0
	for _, s := range t.Stages {
		total += s.SLADays
	}
	return total
}

// Validate checks the template shape. A template needs at least one stage,
// and every stage needs a name and a positive SLA.
func (t *WorkflowTemplate) Validate() []FieldError {
	var errs []FieldError
	if strings.TrimSpace(t.ModuleType) == "" {
		errs = append(errs, FieldError{Field: "module_type", Code: "REQUIRED", Message: "moduleType é obrigatório"})
	}
	if len(t.Stages) == 0 {
		errs = append(errs, FieldError{Field: "stages", Code: "REQUIRED", Message: "O fluxo deve ter pelo menos uma etapa"})
	}
	if t.DefaultSLA < 0 {
		errs = append(errs, FieldError{Field: "default_sla", Code: "INVALID", Message: "SLA padrão não pode ser negativo"})
	}
	orders := make(map[int]bool, len(t.Stages))
	for i, st := range t.Stages {
		field := fmt.Sprintf("stages[%d]", i)
		if strings.TrimSpace(st.Name) == "" {
			errs = append(errs, FieldError{Field: field + ".name", Code: "REQUIRED", Message: "Nome da etapa é obrigatório"})
		}
		if st.SLADays <= 0 {
			errs = append(errs, FieldError{Field: field + ".sla_days", Code: "INVALID", Message: "SLA da etapa deve ser maior que zero"})
		}
		if st.Order != 0 {
			if orders[st.Order] {
				errs = append(errs, FieldError{Field: field + ".order", Code: "DUPLICATE", Message: fmt.Sprintf("Ordem %d repetida", st.Order)})
			}
			orders[st.Order] = true
		}
	}
	return errs
}

// Renumber sorts stages by order, placing stages without an order last, and
// assigns contiguous orders starting at 1.
func (t *WorkflowTemplate) Renumber() {
	key := func(o int) int {
		if o <= 0 {
			return math.MaxInt
		}
		return o
	}
	sort.SliceStable(t.Stages, func(i, j int) bool {
		return key(t.Stages[i].Order) < key(t.Stages[j].Order)
	})
	for i := range t.Stages {
		t.Stages[i].Order = i + 1
	}
}

// Clone returns a deep copy of the template.
func (t WorkflowTemplate) Clone() WorkflowTemplate {
	out := t
	out.Stages = make([]StageTemplate, len(t.Stages))
	for i, st := range t.Stages {
		st.RequiredActions = append([]string(nil), st.RequiredActions...)
		st.RequiredDocuments = append([]string(nil), st.RequiredDocuments...)
		out.Stages[i] = st
	}
	return out
}

// ProtocolStage is a stage instantiated for one protocol.
type ProtocolStage struct {
	Name              string     `json:"name"`
	Order             int        `json:"order"`
	SLADays           int        `json:"sla_days"`
	CanSkip           bool       `json:"can_skip"`
	SkipCondition     string     `json:"skip_condition,omitempty"`
	RequiredActions   []string   `json:"required_actions,omitempty"`
	CompletedActions  []string   `json:"completed_actions,omitempty"`
	RequiredDocuments []string   `json:"required_documents,omitempty"`
	Status            string     `json:"status"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	DueDate           *time.Time `json:"due_date,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	Result            string     `json:"result,omitempty"`
	Notes             string     `json:"notes,omitempty"`
	Reason            string     `json:"reason,omitempty"`
}

// ProtocolWorkflow is the stage instance list of one protocol.
type ProtocolWorkflow struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	ProtocolID   string          `json:"protocol_id"`
	ModuleType   string          `json:"module_type"`
	Stages       []ProtocolStage `json:"stages"`
	CurrentIndex int             `json:"current_index"`
	Status       string          `json:"status"`
	StartedAt    time.Time       `json:"started_at"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Version      int             `json:"version"`
}

// Current returns the active stage, or nil once the instance finished.
func (w *ProtocolWorkflow) Current() *ProtocolStage {
	if w.CurrentIndex < 0 || w.CurrentIndex >= len(w.Stages) {
		return nil
	}
	return &w.Stages[w.CurrentIndex]
}

// StageDeadline reports both deadline views of the active stage.
type StageDeadline struct {
	StageDue   *time.Time `json:"stage_due,omitempty"`
	Cumulative *time.Time `json:"cumulative,omitempty"`
}

// WorkflowEvent records an event in a protocol workflow's audit trail.
type WorkflowEvent struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflow_id"`
	Stage      string         `json:"stage"`
	Event      string         `json:"event"`
	ActorID    string         `json:"actor_id"`
	Data       map[string]any `json:"data,omitempty"`
	Comment    string         `json:"comment,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// StageCounts counts workflow instances by status.
type StageCounts map[string]int
