package sla

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
	mu   sync.RWMutex
	slas map[string]model.ProtocolSLA // key: tenant/protocol
}

// NewMemoryStore creates a new in-memory SLA store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slas: make(map[string]model.ProtocolSLA)}
}

func key(tenantID, protocolID string) string {
	return tenantID + "/" + protocolID
}

func (m *MemoryStore) Create(_ context.Context, s model.ProtocolSLA) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(s.TenantID, s.ProtocolID)
	if _, exists := m.slas[k]; exists {
		return model.NewConflictError("SLA já existe para este protocolo")
	}
	m.slas[k] = s
	return nil
}

func (m *MemoryStore) GetByProtocol(_ context.Context, tenantID, protocolID string) (model.ProtocolSLA, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.slas[key(tenantID, protocolID)]
	if !ok {
		return model.ProtocolSLA{}, errNotFound()
	}
	return s, nil
}

func (m *MemoryStore) Update(_ context.Context, s model.ProtocolSLA) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(s.TenantID, s.ProtocolID)
	existing, ok := m.slas[k]
	if !ok {
		return errNotFound()
	}
	if existing.Version != s.Version {
		return model.NewConflictError(
			fmt.Sprintf("SLA %q version conflict (expected %d, got %d)", s.ID, s.Version, existing.Version),
		)
	}
	s.Version++
	s.UpdatedAt = time.Now().UTC()
	m.slas[k] = s
	return nil
}

func (m *MemoryStore) List(_ context.Context, tenantID string, statuses []string) ([]model.ProtocolSLA, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.ProtocolSLA
	for _, s := range m.slas {
		if tenantID != "" && s.TenantID != tenantID {
			continue
		}
		if len(statuses) > 0 && !slices.Contains(statuses, s.Status) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, tenantID, protocolID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(tenantID, protocolID)
	if _, ok := m.slas[k]; !ok {
		return errNotFound()
	}
	delete(m.slas, k)
	return nil
}

func errNotFound() error {
	return model.NewNotFoundError("SLA não encontrado para o protocolo")
}
