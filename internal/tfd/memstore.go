package tfd

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/pitabwire/digiurban/model"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	items   map[string]model.Solicitacao
	viagens map[string]model.Viagem
}

// NewMemoryStore creates an empty in-memory TFD store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:   make(map[string]model.Solicitacao),
		viagens: make(map[string]model.Viagem),
	}
}

func (m *MemoryStore) Create(_ context.Context, s model.Solicitacao) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[s.ID]; exists {
		return model.NewConflictError("Solicitação já existe")
	}
	s.Viagens = nil
	m.items[s.ID] = s
	return nil
}

func (m *MemoryStore) Get(_ context.Context, tenantID, id string) (model.Solicitacao, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.items[id]
	if !ok || s.TenantID != tenantID {
		return model.Solicitacao{}, errNotFound()
	}
	s.Viagens = m.viagensOf(id)
	return s, nil
}

func (m *MemoryStore) viagensOf(solicitacaoID string) []model.Viagem {
	var out []model.Viagem
	for _, v := range m.viagens {
		if v.SolicitacaoID == solicitacaoID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DataAgendamento.Before(out[j].DataAgendamento) })
	return out
}

func (m *MemoryStore) List(_ context.Context, tenantID string, f model.TFDFilter) ([]model.Solicitacao, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []model.Solicitacao
	for _, s := range m.items {
		if s.TenantID != tenantID {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		if f.CitizenID != "" && s.CitizenID != f.CitizenID {
			continue
		}
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := len(all)
	if f.Offset >= total {
		return []model.Solicitacao{}, total, nil
	}
	all = all[f.Offset:]
	if f.Limit > 0 && f.Limit < len(all) {
		all = all[:f.Limit]
	}
	return slices.Clone(all), total, nil
}

func (m *MemoryStore) Update(_ context.Context, s model.Solicitacao) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.items[s.ID]
	if !ok || existing.TenantID != s.TenantID {
		return errNotFound()
	}
	if existing.Version != s.Version {
		return model.NewConflictError(
			fmt.Sprintf("Solicitação %s foi alterada por outra operação", s.ID))
	}
	s.Version++
	s.Viagens = nil
	m.items[s.ID] = s
	return nil
}

func (m *MemoryStore) CreateViagem(_ context.Context, v model.Viagem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.items[v.SolicitacaoID]
	if !ok || s.TenantID != v.TenantID {
		return errNotFound()
	}
	m.viagens[v.ID] = v
	return nil
}

func (m *MemoryStore) GetViagem(_ context.Context, tenantID, id string) (model.Viagem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.viagens[id]
	if !ok || v.TenantID != tenantID {
		return model.Viagem{}, errViagemNotFound()
	}
	return v, nil
}

func (m *MemoryStore) UpdateViagem(_ context.Context, v model.Viagem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.viagens[v.ID]
	if !ok || existing.TenantID != v.TenantID {
		return errViagemNotFound()
	}
	m.viagens[v.ID] = v
	return nil
}

func (m *MemoryStore) CreatedBetween(_ context.Context, tenantID string, from, to time.Time) ([]model.Solicitacao, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Solicitacao
	for _, s := range m.items {
		if s.TenantID != tenantID || s.CreatedAt.Before(from) || s.CreatedAt.After(to) {
			continue
		}
		s.Viagens = m.viagensOf(s.ID)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
