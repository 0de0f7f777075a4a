package stock

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/pitabwire/digiurban/model"
)

// MemoryStore is an in-memory Store. Transactions run one at a time and
// roll back the rows they wrote when fn fails.
type MemoryStore struct {
	txMu         sync.Mutex
	mu           sync.RWMutex
	medicamentos map[string]model.Medicamento
	estoques     map[string]model.Estoque
	dispensacoes map[string]model.Dispensacao
}

// NewMemoryStore creates an empty in-memory stock store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		medicamentos: make(map[string]model.Medicamento),
		estoques:     make(map[string]model.Estoque),
		dispensacoes: make(map[string]model.Dispensacao),
	}
}

func (m *MemoryStore) CreateMedicamento(_ context.Context, med model.Medicamento) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.medicamentos {
		if existing.TenantID == med.TenantID &&
			strings.EqualFold(existing.Nome, med.Nome) &&
			strings.EqualFold(existing.PrincipioAtivo, med.PrincipioAtivo) {
			return errMedicamentoDuplicado()
		}
	}
	m.medicamentos[med.ID] = med
	return nil
}

func (m *MemoryStore) GetMedicamento(_ context.Context, tenantID, id string) (model.Medicamento, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	med, ok := m.medicamentos[id]
	if !ok || med.TenantID != tenantID {
		return model.Medicamento{}, errMedicamentoNotFound()
	}
	return med, nil
}

func (m *MemoryStore) ListMedicamentos(_ context.Context, tenantID, search string) ([]model.Medicamento, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	search = strings.ToLower(search)
	out := []model.Medicamento{}
	for _, med := range m.medicamentos {
		if med.TenantID != tenantID {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(med.Nome), search) &&
			!strings.Contains(strings.ToLower(med.PrincipioAtivo), search) {
			continue
		}
		out = append(out, med)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nome < out[j].Nome })
	return out, nil
}

func (m *MemoryStore) CreateEstoque(_ context.Context, e model.Estoque) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.estoques {
		if existing.TenantID == e.TenantID && existing.MedicamentoID == e.MedicamentoID &&
			existing.UnidadeID == e.UnidadeID && existing.Lote == e.Lote {
			return errLoteDuplicado()
		}
	}
	m.estoques[e.ID] = e
	return nil
}

func (m *MemoryStore) GetEstoque(_ context.Context, tenantID, id string) (model.Estoque, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.estoques[id]
	if !ok || e.TenantID != tenantID {
		return model.Estoque{}, errEstoqueNotFound()
	}
	return e, nil
}

func (m *MemoryStore) UpdateEstoque(_ context.Context, e model.Estoque) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.estoques[e.ID]
	if !ok || existing.TenantID != e.TenantID {
		return errEstoqueNotFound()
	}
	if existing.Version != e.Version {
		return model.NewConflictError(
			fmt.Sprintf("Estoque %s foi alterado por outra operação", e.Lote))
	}
	e.Version++
	m.estoques[e.ID] = e
	return nil
}

func (m *MemoryStore) ListEstoque(_ context.Context, tenantID string, f EstoqueFilter) ([]model.Estoque, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []model.Estoque{}
	for _, e := range m.estoques {
		if tenantID != "" && e.TenantID != tenantID {
			continue
		}
		if f.MedicamentoID != "" && e.MedicamentoID != f.MedicamentoID {
			continue
		}
		if f.UnidadeID != "" && e.UnidadeID != f.UnidadeID {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, e.Status) {
			continue
		}
		if f.ValidadeAte != nil && e.DataValidade.After(*f.ValidadeAte) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DataValidade.Equal(out[j].DataValidade) {
			return out[i].DataValidade.Before(out[j].DataValidade)
		}
		return out[i].Lote < out[j].Lote
	})
	return out, nil
}

func (m *MemoryStore) CreateDispensacao(_ context.Context, d model.Dispensacao) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.dispensacoes[d.ID]; exists {
		return model.NewConflictError("Dispensação já existe")
	}
	m.dispensacoes[d.ID] = d
	return nil
}

func (m *MemoryStore) GetDispensacao(_ context.Context, tenantID, id string) (model.Dispensacao, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.dispensacoes[id]
	if !ok || d.TenantID != tenantID {
		return model.Dispensacao{}, errDispensacaoNotFound()
	}
	return d, nil
}

func (m *MemoryStore) UpdateDispensacao(_ context.Context, d model.Dispensacao) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.dispensacoes[d.ID]
	if !ok || existing.TenantID != d.TenantID {
		return errDispensacaoNotFound()
	}
	if existing.Version != d.Version {
		return errDispensacaoAlterada()
	}
	d.Version++
	m.dispensacoes[d.ID] = d
	return nil
}

func (m *MemoryStore) ListDispensacoes(_ context.Context, tenantID string, f DispensacaoFilter) ([]model.Dispensacao, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []model.Dispensacao{}
	for _, d := range m.dispensacoes {
		if d.TenantID != tenantID {
			continue
		}
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		if f.MedicamentoID != "" && d.MedicamentoID != f.MedicamentoID {
			continue
		}
		if f.CitizenID != "" && d.CitizenID != f.CitizenID {
			continue
		}
		if f.DispensadoDe != nil && (d.DispensadoEm == nil || d.DispensadoEm.Before(*f.DispensadoDe)) {
			continue
		}
		if f.DispensadoAte != nil && (d.DispensadoEm == nil || d.DispensadoEm.After(*f.DispensadoAte)) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	tx := &memoryTx{MemoryStore: m}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// memoryTx records the prior state of every row it writes so a failed
// transaction can restore it.
type memoryTx struct {
	*MemoryStore
	undo []func()
}

func (t *memoryTx) UpdateEstoque(ctx context.Context, e model.Estoque) error {
	t.mu.RLock()
	prev := t.estoques[e.ID]
	t.mu.RUnlock()
	if err := t.MemoryStore.UpdateEstoque(ctx, e); err != nil {
		return err
	}
	t.undo = append(t.undo, func() { t.estoques[prev.ID] = prev })
	return nil
}

func (t *memoryTx) CreateDispensacao(ctx context.Context, d model.Dispensacao) error {
	if err := t.MemoryStore.CreateDispensacao(ctx, d); err != nil {
		return err
	}
	t.undo = append(t.undo, func() { delete(t.dispensacoes, d.ID) })
	return nil
}

func (t *memoryTx) UpdateDispensacao(ctx context.Context, d model.Dispensacao) error {
	t.mu.RLock()
	prev := t.dispensacoes[d.ID]
	t.mu.RUnlock()
	if err := t.MemoryStore.UpdateDispensacao(ctx, d); err != nil {
		return err
	}
	t.undo = append(t.undo, func() { t.dispensacoes[prev.ID] = prev })
	return nil
}

// Transaction on an open transaction joins it.
func (t *memoryTx) Transaction(_ context.Context, fn func(tx Store) error) error {
	return fn(t)
}

func (t *memoryTx) rollback() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}
