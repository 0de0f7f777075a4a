package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pitabwire/digiurban/model"
)

func scopedKey(tenantID, id string) string {
	return tenantID + "/" + id
}

// MemoryInstanceStore is an in-memory InstanceStore.
type MemoryInstanceStore struct {
	mu        sync.RWMutex
	instances map[string]model.ProtocolWorkflow // key: tenant/protocol
	events    map[string][]model.WorkflowEvent  // key: workflow ID
}

// NewMemoryInstanceStore creates a new in-memory instance store.
func NewMemoryInstanceStore() *MemoryInstanceStore {
	return &MemoryInstanceStore{
		instances: make(map[string]model.ProtocolWorkflow),
		events:    make(map[string][]model.WorkflowEvent),
	}
}

// Create persists a new instance.
func (s *MemoryInstanceStore) Create(_ context.Context, wf model.ProtocolWorkflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := scopedKey(wf.TenantID, wf.ProtocolID)
	if _, exists := s.instances[key]; exists {
		return model.NewConflictError(
			fmt.Sprintf("Protocolo %s já possui fluxo de etapas", wf.ProtocolID),
		)
	}

	s.instances[key] = cloneWorkflow(wf)
	return nil
}

// GetByProtocol retrieves the instance of a protocol, scoped to tenant.
func (s *MemoryInstanceStore) GetByProtocol(_ context.Context, tenantID, protocolID string) (model.ProtocolWorkflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, exists := s.instances[scopedKey(tenantID, protocolID)]
	if !exists {
		return model.ProtocolWorkflow{}, model.NewNotFoundError("Fluxo de etapas não encontrado para o protocolo")
	}
	return cloneWorkflow(wf), nil
}

// Update persists an updated instance with optimistic locking.
func (s *MemoryInstanceStore) Update(_ context.Context, wf model.ProtocolWorkflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := scopedKey(wf.TenantID, wf.ProtocolID)
	existing, exists := s.instances[key]
	if !exists {
		return model.NewNotFoundError("Fluxo de etapas não encontrado para o protocolo")
	}
	if existing.Version != wf.Version {
		return model.NewConflictError(
			fmt.Sprintf("workflow %q version conflict (expected %d, got %d)", wf.ID, wf.Version, existing.Version),
		)
	}

	wf.Version++
	wf.UpdatedAt = time.Now().UTC()
	s.instances[key] = cloneWorkflow(wf)
	return nil
}

// AppendEvent adds an event to the audit trail.
func (s *MemoryInstanceStore) AppendEvent(_ context.Context, event model.WorkflowEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[event.WorkflowID] = append(s.events[event.WorkflowID], event)
	return nil
}

// GetEvents retrieves all events for an instance, ordered by timestamp.
func (s *MemoryInstanceStore) GetEvents(_ context.Context, tenantID, workflowID string) ([]model.WorkflowEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found := false
	for _, wf := range s.instances {
		if wf.ID == workflowID && wf.TenantID == tenantID {
			found = true
			break
		}
	}
	if !found {
		return nil, model.NewNotFoundError("Fluxo de etapas não encontrado")
	}

	result := make([]model.WorkflowEvent, len(s.events[workflowID]))
	copy(result, s.events[workflowID])
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

// CountByStatus counts a tenant's instances per status.
func (s *MemoryInstanceStore) CountByStatus(_ context.Context, tenantID string) (model.StageCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := model.StageCounts{}
	for _, wf := range s.instances {
		if wf.TenantID == tenantID {
			counts[wf.Status]++
		}
	}
	return counts, nil
}

// Delete removes an instance and its events.
func (s *MemoryInstanceStore) Delete(_ context.Context, tenantID, protocolID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := scopedKey(tenantID, protocolID)
	wf, exists := s.instances[key]
	if !exists {
		return model.NewNotFoundError("Fluxo de etapas não encontrado para o protocolo")
	}
	delete(s.instances, key)
	delete(s.events, wf.ID)
	return nil
}

// Len returns the total number of instances. For testing.
func (s *MemoryInstanceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.instances)
}

func cloneWorkflow(wf model.ProtocolWorkflow) model.ProtocolWorkflow {
	out := wf
	out.Stages = make([]model.ProtocolStage, len(wf.Stages))
	for i, st := range wf.Stages {
		st.RequiredActions = append([]string(nil), st.RequiredActions...)
		st.CompletedActions = append([]string(nil), st.CompletedActions...)
		st.RequiredDocuments = append([]string(nil), st.RequiredDocuments...)
		out.Stages[i] = st
	}
	return out
}

// MemoryTemplateStore is an in-memory TemplateStore.
type MemoryTemplateStore struct {
	mu        sync.RWMutex
	templates map[string]model.WorkflowTemplate // key: tenant/moduleType
}

// NewMemoryTemplateStore creates a new in-memory template store.
func NewMemoryTemplateStore() *MemoryTemplateStore {
	return &MemoryTemplateStore{templates: make(map[string]model.WorkflowTemplate)}
}

// Get retrieves a tenant template.
func (s *MemoryTemplateStore) Get(_ context.Context, tenantID, moduleType string) (model.WorkflowTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tpl, ok := s.templates[scopedKey(tenantID, moduleType)]
	if !ok {
		return model.WorkflowTemplate{}, model.NewNotFoundError(
			fmt.Sprintf("Workflow não encontrado para %s", moduleType),
		)
	}
	return tpl.Clone(), nil
}

// List returns the tenant's templates sorted by module type.
func (s *MemoryTemplateStore) List(_ context.Context, tenantID string) ([]model.WorkflowTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := tenantID + "/"
	var out []model.WorkflowTemplate
	for key, tpl := range s.templates {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			out = append(out, tpl.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModuleType < out[j].ModuleType })
	return out, nil
}

// Save creates or replaces a template.
func (s *MemoryTemplateStore) Save(_ context.Context, tenantID string, tpl model.WorkflowTemplate, expectedVersion int) (model.WorkflowTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := scopedKey(tenantID, tpl.ModuleType)
	existing, exists := s.templates[key]
	current := 0
	if exists {
		current = existing.Version
	}
	if expectedVersion != 0 && expectedVersion != current {
		return model.WorkflowTemplate{}, model.NewConflictError(
			fmt.Sprintf("workflow %q version conflict (expected %d, got %d)", tpl.ModuleType, expectedVersion, current),
		)
	}

	tpl = tpl.Clone()
	tpl.Version = current + 1
	tpl.UpdatedAt = time.Now().UTC()
	s.templates[key] = tpl
	return tpl.Clone(), nil
}

// Delete removes a tenant template.
func (s *MemoryTemplateStore) Delete(_ context.Context, tenantID, moduleType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := scopedKey(tenantID, moduleType)
	if _, ok := s.templates[key]; !ok {
		return model.NewNotFoundError(fmt.Sprintf("Workflow não encontrado para %s", moduleType))
	}
	delete(s.templates, key)
	return nil
}
