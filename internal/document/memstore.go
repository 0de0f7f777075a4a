package document

import (
	"context"
	"sort"
	"sync"

	"github.com/pitabwire/digiurban/model"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]model.ProtocolDocument
}

// NewMemoryStore creates a new in-memory document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]model.ProtocolDocument)}
}

func (s *MemoryStore) Create(_ context.Context, doc model.ProtocolDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[doc.ID]; exists {
		return model.NewConflictError("documento já existe")
	}
	s.docs[doc.ID] = doc
	return nil
}

func (s *MemoryStore) Get(_ context.Context, tenantID, id string) (model.ProtocolDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok || doc.TenantID != tenantID {
		return model.ProtocolDocument{}, errNotFound()
	}
	return doc, nil
}

func (s *MemoryStore) Update(_ context.Context, doc model.ProtocolDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.docs[doc.ID]
	if !ok || existing.TenantID != doc.TenantID {
		return errNotFound()
	}
	s.docs[doc.ID] = doc
	return nil
}

func (s *MemoryStore) ListByProtocol(_ context.Context, tenantID, protocolID string) ([]model.ProtocolDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.ProtocolDocument
	for _, doc := range s.docs {
		if doc.TenantID == tenantID && doc.ProtocolID == protocolID {
			out = append(out, doc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok || doc.TenantID != tenantID {
		return errNotFound()
	}
	delete(s.docs, id)
	return nil
}

func errNotFound() error {
	return model.NewNotFoundError("Documento não encontrado")
}
