package interaction

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/pitabwire/digiurban/model"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]model.Interaction
}

// NewMemoryStore creates a new in-memory interaction store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]model.Interaction)}
}

func (s *MemoryStore) Create(_ context.Context, in model.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[in.ID]; exists {
		return model.NewConflictError("interação já registrada")
	}
	s.entries[in.ID] = in
	return nil
}

func (s *MemoryStore) Get(_ context.Context, tenantID, id string) (model.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	in, ok := s.entries[id]
	if !ok || in.TenantID != tenantID {
		return model.Interaction{}, model.NewNotFoundError("Interação não encontrada")
	}
	return in, nil
}

func (s *MemoryStore) ListByProtocol(_ context.Context, tenantID, protocolID string, f Filter) ([]model.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.match(tenantID, protocolID, f)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, tenantID, id, readerID string, at time.Time) (model.Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, ok := s.entries[id]
	if !ok || in.TenantID != tenantID {
		return model.Interaction{}, model.NewNotFoundError("Interação não encontrada")
	}
	if !in.IsRead {
		in.IsRead = true
		in.ReadAt = &at
		in.ReadBy = readerID
		s.entries[id] = in
	}
	return in, nil
}

func (s *MemoryStore) MarkAllRead(_ context.Context, tenantID, protocolID string, f Filter, readerID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f.UnreadOnly = true
	n := 0
	for _, in := range s.match(tenantID, protocolID, f) {
		in.IsRead = true
		in.ReadAt = &at
		in.ReadBy = readerID
		s.entries[in.ID] = in
		n++
	}
	return n, nil
}

func (s *MemoryStore) CountUnread(_ context.Context, tenantID, protocolID string, f Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f.UnreadOnly = true
	return len(s.match(tenantID, protocolID, f)), nil
}

// match must be called with the lock held.
func (s *MemoryStore) match(tenantID, protocolID string, f Filter) []model.Interaction {
	var out []model.Interaction
	for _, in := range s.entries {
		if in.TenantID != tenantID || in.ProtocolID != protocolID {
			continue
		}
		if len(f.Visibilities) > 0 && !slices.Contains(f.Visibilities, in.Visibility) {
			continue
		}
		if f.Type != "" && in.Type != f.Type {
			continue
		}
		if f.Audience != "" && in.Audience != f.Audience {
			continue
		}
		if f.UnreadOnly && in.IsRead {
			continue
		}
		out = append(out, in)
	}
	return out
}
