package customdata

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pitabwire/digiurban/model"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	tables  map[string]model.CustomDataTable
	records map[string]model.CustomDataRecord
}

// NewMemoryStore creates an empty in-memory custom data store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables:  make(map[string]model.CustomDataTable),
		records: make(map[string]model.CustomDataRecord),
	}
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func (m *MemoryStore) CreateTable(_ context.Context, t model.CustomDataTable) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.tables {
		if existing.TenantID == t.TenantID && existing.TableName == t.TableName {
			return errTableExists(t.TableName)
		}
	}
	m.tables[t.ID] = t
	return nil
}

func (m *MemoryStore) GetTable(_ context.Context, tenantID, id string) (model.CustomDataTable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tables[id]
	if !ok || t.TenantID != tenantID {
		return model.CustomDataTable{}, errTableNotFound()
	}
	return t, nil
}

func (m *MemoryStore) ListTables(_ context.Context, tenantID string, f model.CustomTableFilter) ([]model.CustomDataTable, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	search := strings.ToLower(f.Search)
	var all []model.CustomDataTable
	for _, t := range m.tables {
		if t.TenantID != tenantID {
			continue
		}
		if f.ModuleType != "" && t.ModuleType != f.ModuleType {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(t.TableName), search) &&
			!strings.Contains(strings.ToLower(t.DisplayName), search) {
			continue
		}
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return page(all, f.Offset, f.Limit), len(all), nil
}

func (m *MemoryStore) UpdateTable(_ context.Context, t model.CustomDataTable) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.tables[t.ID]
	if !ok || existing.TenantID != t.TenantID {
		return errTableNotFound()
	}
	m.tables[t.ID] = t
	return nil
}

func (m *MemoryStore) DeleteTable(_ context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[id]
	if !ok || t.TenantID != tenantID {
		return errTableNotFound()
	}
	delete(m.tables, id)
	return nil
}

func (m *MemoryStore) CreateRecord(_ context.Context, r model.CustomDataRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[r.TableID]
	if !ok || t.TenantID != r.TenantID {
		return errTableNotFound()
	}
	m.records[r.ID] = r
	return nil
}

func (m *MemoryStore) GetRecord(_ context.Context, tenantID, id string) (model.CustomDataRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok || r.TenantID != tenantID {
		return model.CustomDataRecord{}, errRecordNotFound()
	}
	return r, nil
}

func (m *MemoryStore) ListRecords(_ context.Context, tenantID, tableID string, f model.CustomRecordFilter) ([]model.CustomDataRecord, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []model.CustomDataRecord
	for _, r := range m.records {
		if r.TenantID != tenantID || r.TableID != tableID {
			continue
		}
		if f.ProtocolID != "" && r.ProtocolID != f.ProtocolID {
			continue
		}
		if f.ServiceID != "" && r.ServiceID != f.ServiceID {
			continue
		}
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return page(all, f.Offset, f.Limit), len(all), nil
}

func (m *MemoryStore) UpdateRecord(_ context.Context, r model.CustomDataRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.records[r.ID]
	if !ok || existing.TenantID != r.TenantID {
		return errRecordNotFound()
	}
	m.records[r.ID] = r
	return nil
}

func (m *MemoryStore) DeleteRecord(_ context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok || r.TenantID != tenantID {
		return errRecordNotFound()
	}
	delete(m.records, id)
	return nil
}

func (m *MemoryStore) CountRecords(_ context.Context, tenantID, tableID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, r := range m.records {
		if r.TenantID == tenantID && r.TableID == tableID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Stats(_ context.Context, tenantID string) (model.CustomDataStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := model.CustomDataStats{ByModule: map[string]int{}}
	for _, t := range m.tables {
		if t.TenantID == tenantID {
			st.TotalTables++
			st.ByModule[t.ModuleType]++
		}
	}
	for _, r := range m.records {
		if r.TenantID == tenantID {
			st.TotalRecords++
		}
	}
	return st, nil
}
