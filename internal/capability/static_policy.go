package capability

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pitabwire/digiurban/model"
)

type tenantPolicy struct {
	Roles map[string][]string `yaml:"roles"`
}

type policyFile struct {
	Roles   map[string][]string     `yaml:"roles"`
	Tenants map[string]tenantPolicy `yaml:"tenants"`
}

// StaticPolicyEvaluator grants capabilities from a YAML file mapping roles
// to capability strings. A tenant section adds grants for that tenant only.
type StaticPolicyEvaluator struct {
	path   string
	mu     sync.RWMutex
	policy policyFile
}

// NewStaticPolicyEvaluator loads the policy file at path.
func NewStaticPolicyEvaluator(path string) (*StaticPolicyEvaluator, error) {
	e := &StaticPolicyEvaluator{path: path}
	if err := e.Sync(); err != nil {
		return nil, err
	}
	return e, nil
}

// ResolveCapabilities returns the union of the global and tenant grants of
// every role the caller holds.
func (e *StaticPolicyEvaluator) ResolveCapabilities(rctx *model.RequestContext) (model.CapabilitySet, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	caps := make(model.CapabilitySet)
	tenant := e.policy.Tenants[rctx.TenantID]
	for _, role := range rctx.Roles {
		for _, c := range e.policy.Roles[role] {
			caps[c] = true
		}
		for _, c := range tenant.Roles[role] {
			caps[c] = true
		}
	}
	return caps, nil
}

// Roles lists the globally configured role names.
func (e *StaticPolicyEvaluator) Roles() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.policy.Roles))
	for r := range e.policy.Roles {
		out = append(out, r)
	}
	return out
}

// Sync reloads the policy file. A file that fails to parse leaves the
// current policy in place.
func (e *StaticPolicyEvaluator) Sync() error {
	data, err := os.ReadFile(e.path)
	if err != nil {
		return fmt.Errorf("capability: reading policy file %s: %w", e.path, err)
	}

	var p policyFile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("capability: parsing policy file %s: %w", e.path, err)
	}
	if len(p.Roles) == 0 {
		return fmt.Errorf("capability: policy file %s grants no roles", e.path)
	}

	e.mu.Lock()
	e.policy = p
	e.mu.Unlock()
	return nil
}
