package model

import (
	"context"
	"testing"
)

func TestRequestContext_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rc      *RequestContext
		wantErr bool
	}{
		{"valid context", &RequestContext{SubjectID: "user-1", TenantID: "pref-1"}, false},
		{"missing SubjectID", &RequestContext{TenantID: "pref-1"}, true},
		{"missing TenantID", &RequestContext{SubjectID: "user-1"}, true},
		{"missing both", &RequestContext{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rc.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRequestContext_Actor(t *testing.T) {
	tests := []struct {
		roles []string
		want  Actor
	}{
		{nil, ActorCitizen},
		{[]string{RoleCitizen}, ActorCitizen},
		{[]string{"SECRETARIO_SAUDE"}, ActorUser},
		{[]string{RoleCitizen, "ATENDENTE"}, ActorUser},
		{[]string{"ATENDENTE", RoleAdmin}, ActorAdmin},
		{[]string{RoleAdmin, RoleSuperAdmin}, ActorSuperAdmin},
	}
	for _, tt := range tests {
		rc := &RequestContext{Roles: tt.roles}
		if got := rc.Actor(); got != tt.want {
			t.Errorf("Actor(%v) = %q, want %q", tt.roles, got, tt.want)
		}
	}
}

func TestRequestContext_Author(t *testing.T) {
	if got := (&RequestContext{Roles: []string{RoleCitizen}}).Author(); got != AuthorCitizen {
		t.Errorf("citizen Author() = %q, want %q", got, AuthorCitizen)
	}
	if got := (&RequestContext{Roles: []string{"ATENDENTE"}}).Author(); got != AuthorServer {
		t.Errorf("staff Author() = %q, want %q", got, AuthorServer)
	}
}

func TestRequestContext_DisplayName(t *testing.T) {
	rc := &RequestContext{SubjectID: "u-1"}
	if got := rc.DisplayName(); got != "u-1" {
		t.Errorf("DisplayName() = %q, want u-1", got)
	}
	rc.Email = "maria@prefeitura.gov.br"
	if got := rc.DisplayName(); got != rc.Email {
		t.Errorf("DisplayName() = %q, want email", got)
	}
	rc.Name = "Maria"
	if got := rc.DisplayName(); got != "Maria" {
		t.Errorf("DisplayName() = %q, want Maria", got)
	}
}

func TestRequestContext_Claim(t *testing.T) {
	rc := &RequestContext{Claims: map[string]any{"tenant_id": "pref-1"}}
	if got := rc.Claim("tenant_id"); got != "pref-1" {
		t.Errorf("Claim(tenant_id) = %v, want pref-1", got)
	}
	if got := (&RequestContext{}).Claim("any"); got != nil {
		t.Errorf("Claim on nil claims = %v, want nil", got)
	}
}

func TestWithRequestContext_roundtrip(t *testing.T) {
	rctx := &RequestContext{SubjectID: "user-1", TenantID: "pref-1"}
	ctx := WithRequestContext(context.Background(), rctx)
	if got := RequestContextFrom(ctx); got != rctx {
		t.Errorf("RequestContextFrom() = %v, want %v", got, rctx)
	}
	if got := MustRequestContext(ctx); got != rctx {
		t.Errorf("MustRequestContext() = %v, want %v", got, rctx)
	}
	if got := RequestContextFrom(context.Background()); got != nil {
		t.Errorf("RequestContextFrom(empty) = %v, want nil", got)
	}
}

func TestMustRequestContext_absent_panics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("MustRequestContext(empty context) did not panic")
		}
	}()
	MustRequestContext(context.Background())
}

func TestSystemContext(t *testing.T) {
	rc := SystemContext("pref-1")
	if rc.TenantID != "pref-1" || !rc.Actor().IsAdmin() {
		t.Errorf("SystemContext() = %+v, want admin in pref-1", rc)
	}
}
