package model

import "strings"

// Capabilities checked by the service. Policies may grant wildcards such as
// "tfd:*" or "*".
const (
	CapProtocolCreate       = "protocols:create"
	CapProtocolRead         = "protocols:read"
	CapProtocolUpdateStatus = "protocols:status:update"
	CapProtocolAssign       = "protocols:assign"
	CapProtocolEvaluate     = "protocols:evaluate"
	CapProtocolStats        = "protocols:stats:view"
	CapProtocolApprove      = "protocols:approve"

	CapWorkflowManage = "workflows:manage"
	CapStageAdvance   = "workflow:stage:advance"
	CapStageSkip      = "workflow:stage:skip"

	CapDocumentUpload = "documents:upload"
	CapDocumentReview = "documents:review"

	CapInteractionPost     = "interactions:post"
	CapInteractionInternal = "interactions:internal"

	CapPendingManage = "pendings:manage"
	CapSLAManage     = "sla:manage"

	CapTFDRequest    = "tfd:request"
	CapTFDManage     = "tfd:manage"
	CapTFDDocumental = "tfd:analise_documental:decide"
	CapTFDRegulacao  = "tfd:regulacao_medica:decide"
	CapTFDGestao     = "tfd:aprovacao_gestao:decide"

	CapStockManage   = "stock:manage"
	CapStockDispense = "stock:dispense"

	CapCustomTableManage = "customdata:tables:manage"
	CapCustomRecordWrite = "customdata:records:write"
	CapCustomRecordRead  = "customdata:records:read"
)

// CapabilitySet is a set of capabilities granted to a user. Each key is a
// capability string (e.g. "protocols:read") and may include wildcards
// (e.g. "tfd:*").
type CapabilitySet map[string]bool

// Has returns true if the set contains the exact capability or a wildcard
// that matches it.
func (cs CapabilitySet) Has(cap string) bool {
	if cs[cap] {
		return true
	}
	for pattern := range cs {
		if matchWildcard(pattern, cap) {
			return true
		}
	}
	return false
}

// HasAll returns true if the set matches all given capabilities.
func (cs CapabilitySet) HasAll(caps ...string) bool {
	for _, cap := range caps {
		if !cs.Has(cap) {
			return false
		}
	}
	return true
}

// HasAny returns true if the set matches at least one of the given
// capabilities.
func (cs CapabilitySet) HasAny(caps ...string) bool {
	for _, cap := range caps {
		if cs.Has(cap) {
			return true
		}
	}
	return false
}

// matchWildcard returns true if pattern (which may end in "*") matches cap.
//
//	"*"          matches anything
//	"tfd:*"      matches "tfd:regulacao_medica:decide"
//	"tfd:manage" does NOT match "tfd:manage:all"
func matchWildcard(pattern, cap string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.HasSuffix(pattern, ":*") {
		return false
	}
	prefix := pattern[:len(pattern)-1]
	return strings.HasPrefix(cap, prefix)
}

// CapabilityResolver resolves the full capability set for a request context.
type CapabilityResolver interface {
	Resolve(rctx *RequestContext) (CapabilitySet, error)

	// Invalidate clears cached capabilities for the given user and tenant.
	Invalidate(subjectID, tenantID string)
}

// PolicyEvaluator resolves capabilities from roles and tenant configuration.
type PolicyEvaluator interface {
	ResolveCapabilities(rctx *RequestContext) (CapabilitySet, error)

	// Sync refreshes policy data from its source.
	Sync() error
}
