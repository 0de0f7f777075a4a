package pending

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pitabwire/digiurban/model"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu       sync.RWMutex
	pendings map[string]model.Pending
}

// NewMemoryStore creates a new in-memory pending store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pendings: make(map[string]model.Pending)}
}

func (s *MemoryStore) Create(_ context.Context, p model.Pending) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pendings[p.ID]; exists {
		return model.NewConflictError("pendência já existe")
	}
	s.pendings[p.ID] = p
	return nil
}

func (s *MemoryStore) Get(_ context.Context, tenantID, id string) (model.Pending, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pendings[id]
	if !ok || p.TenantID != tenantID {
		return model.Pending{}, errNotFound()
	}
	return p, nil
}

func (s *MemoryStore) Update(_ context.Context, p model.Pending) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.pendings[p.ID]
	if !ok || existing.TenantID != p.TenantID {
		return errNotFound()
	}
	s.pendings[p.ID] = p
	return nil
}

func (s *MemoryStore) ListByProtocol(_ context.Context, tenantID, protocolID, status string) ([]model.Pending, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Pending
	for _, p := range s.pendings {
		if p.TenantID != tenantID || p.ProtocolID != protocolID {
			continue
		}
		if status != "" && p.Status != status {
			continue
		}
		out = append(out, p)
	}
	sortByCreation(out)
	return out, nil
}

func (s *MemoryStore) ListOverdue(_ context.Context, tenantID string, now time.Time) ([]model.Pending, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Pending
	for _, p := range s.pendings {
		if tenantID != "" && p.TenantID != tenantID {
			continue
		}
		if p.IsOpen() && p.DueDate != nil && p.DueDate.Before(now) {
			out = append(out, p)
		}
	}
	sortByCreation(out)
	return out, nil
}

func sortByCreation(ps []model.Pending) {
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].CreatedAt.Before(ps[j].CreatedAt) })
}

func errNotFound() error {
	return model.NewNotFoundError("Pendência não encontrada")
}
