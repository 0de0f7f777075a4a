package definition

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/pitabwire/digiurban/model"
)

// snapshot is an immutable collection of all definitions indexed by key.
type snapshot struct {
	domains   map[string]model.DomainDefinition
	workflows map[string]model.WorkflowTemplate
	gates     map[string]model.GateDefinition
	checksum  string
}

// Registry is a read-optimized, thread-safe store of all loaded definitions.
// It uses atomic pointer swap for lock-free concurrent reads.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry from the given definitions.
func NewRegistry(defs []model.DomainDefinition) *Registry {
	r := &Registry{}
	r.Replace(defs)
	return r
}

// Replace atomically swaps the registry contents with a new snapshot built
// from the given definitions. Later definitions win on duplicate keys; the
// validator reports duplicates before this point.
func (r *Registry) Replace(defs []model.DomainDefinition) {
	s := &snapshot{
		domains:   make(map[string]model.DomainDefinition, len(defs)),
		workflows: make(map[string]model.WorkflowTemplate),
		gates:     make(map[string]model.GateDefinition),
	}

	var checksumParts []string

	for _, def := range defs {
		s.domains[def.Domain] = def
		checksumParts = append(checksumParts, def.Checksum)

		for _, w := range def.Workflows {
			tpl := w.Clone()
			tpl.Renumber()
			s.workflows[tpl.ModuleType] = tpl
		}
		for _, g := range def.Gates {
			s.gates[g.ID] = g
		}
	}

	sort.Strings(checksumParts)
	combined := strings.Join(checksumParts, ":")
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(combined)))

	r.snap.Store(s)
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// GetDomain returns the domain definition with the given name.
func (r *Registry) GetDomain(domain string) (model.DomainDefinition, bool) {
	d, ok := r.current().domains[domain]
	return d, ok
}

// GetWorkflow returns a copy of the template configured for moduleType.
func (r *Registry) GetWorkflow(moduleType string) (model.WorkflowTemplate, bool) {
	w, ok := r.current().workflows[moduleType]
	if !ok {
		return model.WorkflowTemplate{}, false
	}
	return w.Clone(), true
}

// AllWorkflows returns every template sorted by module type.
func (r *Registry) AllWorkflows() []model.WorkflowTemplate {
	s := r.current()
	out := make([]model.WorkflowTemplate, 0, len(s.workflows))
	for _, w := range s.workflows {
		out = append(out, w.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModuleType < out[j].ModuleType })
	return out
}

// GetGate returns the gate definition with the given ID.
func (r *Registry) GetGate(id string) (model.GateDefinition, bool) {
	g, ok := r.current().gates[id]
	return g, ok
}

// AllGates returns every gate sorted by ID.
func (r *Registry) AllGates() []model.GateDefinition {
	s := r.current()
	out := make([]model.GateDefinition, 0, len(s.gates))
	for _, g := range s.gates {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Checksum returns the combined checksum of all loaded definitions.
func (r *Registry) Checksum() string {
	return r.current().checksum
}

// Count returns the number of loaded domains.
func (r *Registry) Count() int {
	return len(r.current().domains)
}
