package search

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryIndex is an in-process Index doing case-insensitive substring
// matching. Results are ordered by number, newest first.
type MemoryIndex struct {
	mu   sync.RWMutex
	docs map[string]Document // key: tenant/id
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: make(map[string]Document)}
}

func (m *MemoryIndex) Upsert(_ context.Context, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.TenantID+"/"+doc.ID] = doc
	return nil
}

func (m *MemoryIndex) Delete(_ context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, tenantID+"/"+id)
	return nil
}

func (m *MemoryIndex) Search(_ context.Context, q Query) (Hits, error) {
	start := time.Now()
	text := strings.ToLower(strings.TrimSpace(q.Text))

	m.mu.RLock()
	var matched []Document
	for _, d := range m.docs {
		if d.TenantID != q.TenantID || !matchesFilters(d, q) {
			continue
		}
		if text != "" && !containsText(d, text) {
			continue
		}
		matched = append(matched, d)
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].Number > matched[j].Number })

	total := len(matched)
	limit := normalizeLimit(q.Limit)
	offset := max(q.Offset, 0)
	if offset > total {
		offset = total
	}
	end := min(offset+limit, total)

	ids := make([]string, 0, end-offset)
	for _, d := range matched[offset:end] {
		ids = append(ids, d.ID)
	}
	return Hits{IDs: ids, Total: total, Took: time.Since(start)}, nil
}

func matchesFilters(d Document, q Query) bool {
	switch {
	case q.Status != "" && d.Status != q.Status:
		return false
	case q.DepartmentID != "" && d.DepartmentID != q.DepartmentID:
		return false
	case q.ModuleType != "" && d.ModuleType != q.ModuleType:
		return false
	case q.CitizenID != "" && d.CitizenID != q.CitizenID:
		return false
	}
	return true
}

func containsText(d Document, text string) bool {
	for _, field := range []string{d.Number, d.Title, d.Description} {
		if strings.Contains(strings.ToLower(field), text) {
			return true
		}
	}
	return false
}
