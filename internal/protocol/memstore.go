package protocol

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pitabwire/digiurban/model"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu          sync.RWMutex
	protocols   map[string]model.Protocol // key: id
	sequences   map[string]int            // key: tenant/year
	history     map[string][]model.ProtocolHistory
	evaluations map[string]model.ProtocolEvaluation // key: protocol id
}

// NewMemoryStore creates a new in-memory protocol store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		protocols:   make(map[string]model.Protocol),
		sequences:   make(map[string]int),
		history:     make(map[string][]model.ProtocolHistory),
		evaluations: make(map[string]model.ProtocolEvaluation),
	}
}

func (m *MemoryStore) Create(_ context.Context, p model.Protocol) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.protocols[p.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("Protocolo %s já existe", p.ID))
	}
	for _, other := range m.protocols {
		if other.TenantID == p.TenantID && other.Number == p.Number {
			return model.NewConflictError(fmt.Sprintf("Número de protocolo %s já utilizado", p.Number))
		}
	}
	m.protocols[p.ID] = cloneProtocol(p)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, tenantID, id string) (model.Protocol, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.protocols[id]
	if !ok || p.TenantID != tenantID {
		return model.Protocol{}, errNotFound()
	}
	return cloneProtocol(p), nil
}

func (m *MemoryStore) GetByNumber(_ context.Context, tenantID, number string) (model.Protocol, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.protocols {
		if p.TenantID == tenantID && p.Number == number {
			return cloneProtocol(p), nil
		}
	}
	return model.Protocol{}, errNotFound()
}

func (m *MemoryStore) List(_ context.Context, tenantID string, f model.ProtocolFilters) ([]model.Protocol, int, error) {
	m.mu.RLock()
	var matched []model.Protocol
	for _, p := range m.protocols {
		if p.TenantID == tenantID && matches(p, f) {
			matched = append(matched, cloneProtocol(p))
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].Number > matched[j].Number
	})

	total := len(matched)
	offset := min(max(f.Offset, 0), total)
	end := total
	if f.Limit > 0 {
		end = min(offset+f.Limit, total)
	}
	return matched[offset:end], total, nil
}

func matches(p model.Protocol, f model.ProtocolFilters) bool {
	switch {
	case f.Status != "" && p.Status != f.Status:
		return false
	case f.DepartmentID != "" && p.DepartmentID != f.DepartmentID:
		return false
	case f.ModuleType != "" && p.ModuleType != f.ModuleType:
		return false
	case f.CitizenID != "" && p.CitizenID != f.CitizenID:
		return false
	case f.AssignedUserID != "" && p.AssignedUserID != f.AssignedUserID:
		return false
	case f.CreatedFrom != nil && p.CreatedAt.Before(*f.CreatedFrom):
		return false
	case f.CreatedTo != nil && p.CreatedAt.After(*f.CreatedTo):
		return false
	}
	return true
}

func (m *MemoryStore) Update(_ context.Context, p model.Protocol) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.protocols[p.ID]
	if !ok || existing.TenantID != p.TenantID {
		return errNotFound()
	}
	if existing.Version != p.Version {
		return model.NewConflictError(
			fmt.Sprintf("Protocolo %s foi alterado por outra operação (versão %d, atual %d)", p.Number, p.Version, existing.Version),
		)
	}
	p.Version++
	p.UpdatedAt = time.Now().UTC()
	m.protocols[p.ID] = cloneProtocol(p)
	return nil
}

func (m *MemoryStore) NextSequence(_ context.Context, tenantID string, year int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := fmt.Sprintf("%s/%d", tenantID, year)
	m.sequences[k]++
	return m.sequences[k], nil
}

func (m *MemoryStore) AppendHistory(_ context.Context, tenantID string, h model.ProtocolHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.protocols[h.ProtocolID]
	if !ok || p.TenantID != tenantID {
		return errNotFound()
	}
	m.history[h.ProtocolID] = append(m.history[h.ProtocolID], h)
	return nil
}

func (m *MemoryStore) History(_ context.Context, tenantID, protocolID string) ([]model.ProtocolHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.protocols[protocolID]
	if !ok || p.TenantID != tenantID {
		return nil, errNotFound()
	}
	entries := m.history[protocolID]
	out := make([]model.ProtocolHistory, len(entries))
	for i, h := range entries {
		out[len(entries)-1-i] = h
	}
	return out, nil
}

func (m *MemoryStore) CreateEvaluation(_ context.Context, tenantID string, e model.ProtocolEvaluation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.protocols[e.ProtocolID]
	if !ok || p.TenantID != tenantID {
		return errNotFound()
	}
	if _, rated := m.evaluations[e.ProtocolID]; rated {
		return errAlreadyRated()
	}
	m.evaluations[e.ProtocolID] = e
	return nil
}

func (m *MemoryStore) DepartmentStats(_ context.Context, tenantID, departmentID string, from, to *time.Time) (model.DepartmentStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := model.DepartmentStats{
		DepartmentID: departmentID,
		ByStatus:     map[string]int{},
		ByModule:     map[string]int{},
	}
	f := model.ProtocolFilters{DepartmentID: departmentID, CreatedFrom: from, CreatedTo: to}
	for _, p := range m.protocols {
		if p.TenantID != tenantID || !matches(p, f) {
			continue
		}
		st.Total++
		st.ByStatus[p.Status]++
		st.ByModule[moduleKey(p.ModuleType)]++
	}
	return st, nil
}

func moduleKey(moduleType string) string {
	if moduleType == "" {
		return model.GenericModuleType
	}
	return moduleType
}

func cloneProtocol(p model.Protocol) model.Protocol {
	if p.FormData != nil {
		data := make(map[string]any, len(p.FormData))
		for k, v := range p.FormData {
			data[k] = v
		}
		p.FormData = data
	}
	return p
}
