package workflow

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/pitabwire/digiurban/internal/definition"
	"github.com/pitabwire/digiurban/model"
)

// Templates manages the workflow templates of a tenant. Tenant templates
// shadow the defaults shipped in the definition registry.
type Templates struct {
	registry *definition.Registry
	store    TemplateStore
	logger   *zap.Logger
}

// NewTemplates creates a template service.
func NewTemplates(registry *definition.Registry, store TemplateStore, logger *zap.Logger) *Templates {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Templates{registry: registry, store: store, logger: logger}
}

// Get returns the template configured for moduleType, with no fallback.
func (t *Templates) Get(ctx context.Context, tenantID, moduleType string) (model.WorkflowTemplate, error) {
	tpl, err := t.store.Get(ctx, tenantID, moduleType)
	if err == nil {
		return tpl, nil
	}
	if !model.IsCode(err, model.ErrNotFound) {
		return model.WorkflowTemplate{}, err
	}
	if def, ok := t.registry.GetWorkflow(moduleType); ok {
		return def, nil
	}
	return model.WorkflowTemplate{}, model.NewNotFoundError(
		fmt.Sprintf("Workflow não encontrado para %s", moduleType),
	)
}

// Resolve returns the template for moduleType, falling back to GENERICO.
func (t *Templates) Resolve(ctx context.Context, tenantID, moduleType string) (model.WorkflowTemplate, error) {
	if moduleType != "" {
		tpl, err := t.Get(ctx, tenantID, moduleType)
		if err == nil {
			return tpl, nil
		}
		if !model.IsCode(err, model.ErrNotFound) {
			return model.WorkflowTemplate{}, err
		}
	}
	tpl, err := t.Get(ctx, tenantID, model.GenericModuleType)
	if err != nil {
		return model.WorkflowTemplate{}, model.NewNotFoundError(
			fmt.Sprintf("Nenhum workflow configurado para %s e fluxo genérico ausente", moduleType),
		)
	}
	return tpl, nil
}

// List merges tenant templates with the defaults they do not shadow.
func (t *Templates) List(ctx context.Context, tenantID string) ([]model.WorkflowTemplate, error) {
	own, err := t.store.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(own))
	out := make([]model.WorkflowTemplate, 0, len(own))
	for _, tpl := range own {
		seen[tpl.ModuleType] = true
		out = append(out, tpl)
	}
	for _, def := range t.registry.AllWorkflows() {
		if !seen[def.ModuleType] {
			out = append(out, def)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModuleType < out[j].ModuleType })
	return out, nil
}

// Save validates, renumbers and stores a tenant template. A non-zero
// expectedVersion must match the stored version.
func (t *Templates) Save(ctx context.Context, tenantID string, tpl model.WorkflowTemplate, expectedVersion int) (model.WorkflowTemplate, error) {
	if errs := tpl.Validate(); len(errs) > 0 {
		return model.WorkflowTemplate{}, model.NewValidationError(errs)
	}
	tpl = tpl.Clone()
	tpl.Renumber()
	if tpl.DefaultSLA == 0 {
		tpl.DefaultSLA = tpl.TotalSLADays()
	}

	saved, err := t.store.Save(ctx, tenantID, tpl, expectedVersion)
	if err != nil {
		return model.WorkflowTemplate{}, err
	}
	t.logger.Info("workflow template saved",
		zap.String("tenant_id", tenantID),
		zap.String("module_type", saved.ModuleType),
		zap.Int("stages", len(saved.Stages)),
		zap.Int("version", saved.Version),
	)
	return saved, nil
}

// Delete removes the tenant copy of a template; the shipped default, if
// any, becomes visible again.
func (t *Templates) Delete(ctx context.Context, tenantID, moduleType string) error {
	return t.store.Delete(ctx, tenantID, moduleType)
}

// Direction of a stage move.
const (
	MoveUp   = "up"
	MoveDown = "down"
)

// MoveStage swaps the stage at order with its neighbour. Moving the first
// stage up or the last stage down leaves the template unchanged.
func (t *Templates) MoveStage(ctx context.Context, tenantID, moduleType string, order int, direction string) (model.WorkflowTemplate, error) {
	tpl, err := t.Get(ctx, tenantID, moduleType)
	if err != nil {
		return model.WorkflowTemplate{}, err
	}
	idx := stageIndex(tpl, order)
	if idx < 0 {
		return model.WorkflowTemplate{}, model.NewNotFoundError(fmt.Sprintf("Etapa %d não encontrada", order))
	}

	var other int
	switch direction {
	case MoveUp:
		other = idx - 1
	case MoveDown:
		other = idx + 1
	default:
		return model.WorkflowTemplate{}, model.NewBadRequestError(
			fmt.Sprintf("direção inválida %q", direction),
		)
	}
	if other < 0 || other >= len(tpl.Stages) {
		return tpl, nil
	}

	tpl.Stages[idx], tpl.Stages[other] = tpl.Stages[other], tpl.Stages[idx]
	for i := range tpl.Stages {
		tpl.Stages[i].Order = i + 1
	}
	return t.Save(ctx, tenantID, tpl, tpl.Version)
}

// DeleteStage removes the stage at order and renumbers the rest.
func (t *Templates) DeleteStage(ctx context.Context, tenantID, moduleType string, order int) (model.WorkflowTemplate, error) {
	tpl, err := t.Get(ctx, tenantID, moduleType)
	if err != nil {
		return model.WorkflowTemplate{}, err
	}
	idx := stageIndex(tpl, order)
	if idx < 0 {
		return model.WorkflowTemplate{}, model.NewNotFoundError(fmt.Sprintf("Etapa %d não encontrada", order))
	}
	if len(tpl.Stages) == 1 {
		return model.WorkflowTemplate{}, model.NewFieldValidationError(
			"stages", "REQUIRED", "O fluxo deve ter pelo menos uma etapa",
		)
	}

	tpl.Stages = append(tpl.Stages[:idx], tpl.Stages[idx+1:]...)
	for i := range tpl.Stages {
		tpl.Stages[i].Order = i + 1
	}
	return t.Save(ctx, tenantID, tpl, tpl.Version)
}

// AddStage inserts stage at its order, or appends it when the order is zero
// or past the end, then renumbers.
func (t *Templates) AddStage(ctx context.Context, tenantID, moduleType string, stage model.StageTemplate) (model.WorkflowTemplate, error) {
	tpl, err := t.Get(ctx, tenantID, moduleType)
	if err != nil {
		return model.WorkflowTemplate{}, err
	}

	pos := len(tpl.Stages)
	if stage.Order > 0 && stage.Order <= len(tpl.Stages) {
		pos = stage.Order - 1
	}
	tpl.Stages = append(tpl.Stages, model.StageTemplate{})
	copy(tpl.Stages[pos+1:], tpl.Stages[pos:])
	tpl.Stages[pos] = stage
	for i := range tpl.Stages {
		tpl.Stages[i].Order = i + 1
	}
	return t.Save(ctx, tenantID, tpl, tpl.Version)
}

func stageIndex(tpl model.WorkflowTemplate, order int) int {
	for i, st := range tpl.Stages {
		if st.Order == order {
			return i
		}
	}
	return -1
}
