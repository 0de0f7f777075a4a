package model

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// Role names recognised by the actor classification.
const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleAdmin      = "ADMIN"
	RoleCitizen    = "CITIZEN"
)

// Actor is the coarse class of the caller used by status transition tables.
type Actor string

const (
	ActorCitizen    Actor = "CITIZEN"
	ActorUser       Actor = "USER"
	ActorAdmin      Actor = "ADMIN"
	ActorSuperAdmin Actor = "SUPER_ADMIN"
)

// IsAdmin reports whether the actor may override terminal statuses.
func (a Actor) IsAdmin() bool {
	return a == ActorAdmin || a == ActorSuperAdmin
}

// AuthorType identifies who wrote an interaction entry.
type AuthorType string

const (
	AuthorCitizen AuthorType = "CITIZEN"
	AuthorServer  AuthorType = "SERVER"
	AuthorSystem  AuthorType = "SYSTEM"
)

// RequestContext carries identity, tenancy and tracing information for the
// lifetime of an authenticated request. It is immutable after construction and
// safe for concurrent reads.
type RequestContext struct {
	SubjectID     string
	Email         string
	Name          string
	TenantID      string
	Roles         []string
	Claims        map[string]any
	CorrelationID string
	TraceID       string
	SpanID        string
	Locale        string
}

// Validate checks that all mandatory fields are present.
// SubjectID and TenantID must be non-empty.
func (rc *RequestContext) Validate() error {
	var errs []error
	if rc.SubjectID == "" {
		errs = append(errs, fmt.Errorf("SubjectID is required"))
	}
	if rc.TenantID == "" {
		errs = append(errs, fmt.Errorf("TenantID is required"))
	}
	return errors.Join(errs...)
}

// HasRole returns true if the RequestContext contains the given role.
func (rc *RequestContext) HasRole(role string) bool {
	return slices.Contains(rc.Roles, role)
}

// Claim returns the value of the given claim key, or nil if not present.
func (rc *RequestContext) Claim(key string) any {
	if rc.Claims == nil {
		return nil
	}
	return rc.Claims[key]
}

// Actor classifies the caller. SUPER_ADMIN outranks ADMIN; any other role
// except CITIZEN counts as municipal staff.
func (rc *RequestContext) Actor() Actor {
	switch {
	case rc.HasRole(RoleSuperAdmin):
		return ActorSuperAdmin
	case rc.HasRole(RoleAdmin):
		return ActorAdmin
	}
	for _, r := range rc.Roles {
		if r != RoleCitizen {
			return ActorUser
		}
	}
	return ActorCitizen
}

// IsCitizen reports whether the caller acts as a citizen.
func (rc *RequestContext) IsCitizen() bool {
	return rc.Actor() == ActorCitizen
}

// Author maps the caller to the interaction author type.
func (rc *RequestContext) Author() AuthorType {
	if rc.IsCitizen() {
		return AuthorCitizen
	}
	return AuthorServer
}

// DisplayName returns the best human readable name for the caller.
func (rc *RequestContext) DisplayName() string {
	switch {
	case rc.Name != "":
		return rc.Name
	case rc.Email != "":
		return rc.Email
	default:
		return rc.SubjectID
	}
}

type contextKey struct{}

// WithRequestContext attaches a RequestContext to the given context.
func WithRequestContext(ctx context.Context, rctx *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rctx)
}

// RequestContextFrom extracts the RequestContext from the context, or returns nil
// if not present.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rctx, _ := ctx.Value(contextKey{}).(*RequestContext)
	return rctx
}

// MustRequestContext extracts the RequestContext from the context, panicking if
// it is not present. Only call it behind the authentication middleware.
func MustRequestContext(ctx context.Context) *RequestContext {
	rctx := RequestContextFrom(ctx)
	if rctx == nil {
		panic("model: RequestContext not found in context")
	}
	return rctx
}

// SystemContext returns the request context used by scheduled jobs.
func SystemContext(tenantID string) *RequestContext {
	return &RequestContext{
		SubjectID: "system",
		Name:      "Sistema",
		TenantID:  tenantID,
		Roles:     []string{RoleSuperAdmin},
	}
}
