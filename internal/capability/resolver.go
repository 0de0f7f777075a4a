// Package capability resolves the capabilities a caller holds from their
// roles and caches the result per subject and tenant.
package capability

import (
	"strings"
	"sync"
	"time"

	"github.com/pitabwire/digiurban/internal/observability"
	"github.com/pitabwire/digiurban/model"
)

type cacheEntry struct {
	caps    model.CapabilitySet
	expires time.Time
}

// Resolver implements model.CapabilityResolver with an in-memory TTL cache.
type Resolver struct {
	evaluator model.PolicyEvaluator
	ttl       time.Duration
	metrics   *observability.Metrics
	now       func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewResolver creates a Resolver. metrics may be nil.
func NewResolver(evaluator model.PolicyEvaluator, ttl time.Duration, metrics *observability.Metrics) *Resolver {
	return &Resolver{
		evaluator: evaluator,
		ttl:       ttl,
		metrics:   metrics,
		now:       time.Now,
		cache:     make(map[string]cacheEntry),
	}
}

// The role list is part of the key so a token carrying new roles is not
// served stale grants.
func cacheKey(rctx *model.RequestContext) string {
	return rctx.SubjectID + ":" + rctx.TenantID + ":" + strings.Join(rctx.Roles, ",")
}

// Resolve returns the capability set of the caller.
func (r *Resolver) Resolve(rctx *model.RequestContext) (model.CapabilitySet, error) {
	key := cacheKey(rctx)
	now := r.now()

	r.mu.RLock()
	entry, ok := r.cache[key]
	r.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		r.metrics.RecordCapabilityCacheHit()
		return entry.caps, nil
	}
	r.metrics.RecordCapabilityCacheMiss()

	caps, err := r.evaluator.ResolveCapabilities(rctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[key] = cacheEntry{caps: caps, expires: now.Add(r.ttl)}
	r.mu.Unlock()
	return caps, nil
}

// Invalidate drops cached capabilities of one subject in one tenant.
func (r *Resolver) Invalidate(subjectID, tenantID string) {
	prefix := subjectID + ":" + tenantID + ":"
	r.mu.Lock()
	for key := range r.cache {
		if strings.HasPrefix(key, prefix) {
			delete(r.cache, key)
		}
	}
	r.mu.Unlock()
}

// Reload re-reads the policy source and empties the cache.
func (r *Resolver) Reload() error {
	if err := r.evaluator.Sync(); err != nil {
		return err
	}
	r.mu.Lock()
	r.cache = make(map[string]cacheEntry)
	r.mu.Unlock()
	return nil
}
