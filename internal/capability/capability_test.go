package capability

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pitabwire/digiurban/internal/observability"
	"github.com/pitabwire/digiurban/model"
)

func testRctx(tenant string, roles ...string) *model.RequestContext {
	return &model.RequestContext{SubjectID: "user-1", TenantID: tenant, Roles: roles}
}

func TestStaticPolicyEvaluator_ResolveCapabilities(t *testing.T) {
	e, err := NewStaticPolicyEvaluator("testdata/policies.yaml")
	if err != nil {
		t.Fatalf("NewStaticPolicyEvaluator() error = %v", err)
	}

	tests := []struct {
		name   string
		rctx   *model.RequestContext
		cap    string
		expect bool
	}{
		{"citizen creates", testRctx("prefeitura-1", model.RoleCitizen), model.CapProtocolCreate, true},
		{"citizen cannot assign", testRctx("prefeitura-1", model.RoleCitizen), model.CapProtocolAssign, false},
		{"attendant wildcard", testRctx("prefeitura-1", "ATENDENTE"), model.CapProtocolUpdateStatus, true},
		{"attendant no stock", testRctx("prefeitura-1", "ATENDENTE"), model.CapStockDispense, false},
		{"admin star", testRctx("prefeitura-2", model.RoleAdmin), model.CapTFDGestao, true},
		{"tenant grant", testRctx("prefeitura-1", "FARMACEUTICO"), model.CapStockDispense, true},
		{"tenant grant elsewhere", testRctx("prefeitura-2", "FARMACEUTICO"), model.CapStockDispense, false},
		{"combined roles", testRctx("prefeitura-1", model.RoleCitizen, "FARMACEUTICO"), model.CapStockManage, true},
		{"unknown role", testRctx("prefeitura-1", "VISITANTE"), model.CapProtocolRead, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caps, err := e.ResolveCapabilities(tt.rctx)
			if err != nil {
				t.Fatalf("ResolveCapabilities() error = %v", err)
			}
			if got := caps.Has(tt.cap); got != tt.expect {
				t.Errorf("Has(%s) = %v, want %v", tt.cap, got, tt.expect)
			}
		})
	}
}

func TestStaticPolicyEvaluator_BadFiles(t *testing.T) {
	if _, err := NewStaticPolicyEvaluator("testdata/nonexistent.yaml"); err == nil {
		t.Error("expected error for missing policy file")
	}

	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(empty, []byte("tenants: {}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewStaticPolicyEvaluator(empty); err == nil {
		t.Error("expected error for policy without roles")
	}
}

func TestStaticPolicyEvaluator_SyncKeepsPolicyOnParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	if err := os.WriteFile(path, []byte("roles:\n  CITIZEN: [protocols:read]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	e, err := NewStaticPolicyEvaluator(path)
	if err != nil {
		t.Fatalf("NewStaticPolicyEvaluator() error = %v", err)
	}
	if err := os.WriteFile(path, []byte("roles: [\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := e.Sync(); err == nil {
		t.Fatal("Sync() should fail on broken YAML")
	}
	caps, _ := e.ResolveCapabilities(testRctx("t", model.RoleCitizen))
	if !caps.Has(model.CapProtocolRead) {
		t.Error("previous policy should remain after a failed sync")
	}
	if roles := e.Roles(); len(roles) != 1 || roles[0] != model.RoleCitizen {
		t.Errorf("Roles() = %v", roles)
	}
}

type mockEvaluator struct {
	calls   int
	err     error
	syncErr error
}

func (m *mockEvaluator) ResolveCapabilities(*model.RequestContext) (model.CapabilitySet, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return model.CapabilitySet{model.CapProtocolRead: true}, nil
}

func (m *mockEvaluator) Sync() error { return m.syncErr }

func newTestResolver(e model.PolicyEvaluator, ttl time.Duration) (*Resolver, *observability.Metrics, *time.Time) {
	metrics := observability.InitMetrics(prometheus.NewRegistry())
	r := NewResolver(e, ttl, metrics)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	return r, metrics, &now
}

func TestResolver_cache(t *testing.T) {
	mock := &mockEvaluator{}
	r, metrics, now := newTestResolver(mock, time.Minute)
	rctx := testRctx("prefeitura-1", "ATENDENTE")

	for range 3 {
		caps, err := r.Resolve(rctx)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if !caps.Has(model.CapProtocolRead) {
			t.Fatal("missing protocols:read")
		}
	}
	if mock.calls != 1 {
		t.Errorf("evaluator calls = %d, want 1", mock.calls)
	}
	if got := testutil.ToFloat64(metrics.CapabilityCacheHitsTotal); got != 2 {
		t.Errorf("cache hits = %v, want 2", got)
	}

	*now = now.Add(2 * time.Minute)
	_, _ = r.Resolve(rctx)
	if mock.calls != 2 {
		t.Errorf("evaluator calls after expiry = %d, want 2", mock.calls)
	}

	_, _ = r.Resolve(testRctx("prefeitura-1", "ATENDENTE", model.RoleAdmin))
	if mock.calls != 3 {
		t.Errorf("evaluator calls for new role set = %d, want 3", mock.calls)
	}
	if got := testutil.ToFloat64(metrics.CapabilityCacheMissesTotal); got != 3 {
		t.Errorf("cache misses = %v, want 3", got)
	}
}

func TestResolver_Invalidate(t *testing.T) {
	mock := &mockEvaluator{}
	r, _, _ := newTestResolver(mock, time.Minute)
	_, _ = r.Resolve(testRctx("prefeitura-1", "ATENDENTE"))
	_, _ = r.Resolve(testRctx("prefeitura-2", "ATENDENTE"))

	r.Invalidate("user-1", "prefeitura-1")

	_, _ = r.Resolve(testRctx("prefeitura-1", "ATENDENTE"))
	_, _ = r.Resolve(testRctx("prefeitura-2", "ATENDENTE"))
	if mock.calls != 3 {
		t.Errorf("evaluator calls = %d, want 3", mock.calls)
	}
}

func TestResolver_errorsAreNotCached(t *testing.T) {
	mock := &mockEvaluator{err: errors.New("policy unavailable")}
	r, _, _ := newTestResolver(mock, time.Minute)
	rctx := testRctx("prefeitura-1", "ATENDENTE")

	if _, err := r.Resolve(rctx); err == nil {
		t.Fatal("expected error")
	}
	mock.err = nil
	if _, err := r.Resolve(rctx); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if mock.calls != 2 {
		t.Errorf("evaluator calls = %d, want 2", mock.calls)
	}
}

func TestResolver_Reload(t *testing.T) {
	mock := &mockEvaluator{}
	r, _, _ := newTestResolver(mock, time.Minute)
	rctx := testRctx("prefeitura-1", "ATENDENTE")
	_, _ = r.Resolve(rctx)

	mock.syncErr = errors.New("boom")
	if err := r.Reload(); err == nil {
		t.Fatal("Reload() should surface sync errors")
	}
	_, _ = r.Resolve(rctx)
	if mock.calls != 1 {
		t.Errorf("failed reload should keep the cache, calls = %d", mock.calls)
	}

	mock.syncErr = nil
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	_, _ = r.Resolve(rctx)
	if mock.calls != 2 {
		t.Errorf("calls after reload = %d, want 2", mock.calls)
	}
}

func TestStaticPolicyEvaluator_shippedPolicy(t *testing.T) {
	e, err := NewStaticPolicyEvaluator("../../configs/policies.yaml")
	if err != nil {
		t.Fatalf("NewStaticPolicyEvaluator() error = %v", err)
	}

	citizen, _ := e.ResolveCapabilities(testRctx("prefeitura-1", model.RoleCitizen))
	for _, c := range []string{model.CapProtocolCreate, model.CapTFDRequest, model.CapProtocolEvaluate} {
		if !citizen.Has(c) {
			t.Errorf("citizen lacks %s", c)
		}
	}
	for _, c := range []string{model.CapProtocolApprove, model.CapTFDManage, model.CapStockDispense} {
		if citizen.Has(c) {
			t.Errorf("citizen holds %s", c)
		}
	}

	regulador, _ := e.ResolveCapabilities(testRctx("prefeitura-1", "REGULADOR_TFD"))
	if regulador.Has(model.CapTFDGestao) {
		t.Error("regulador should not decide the management gate")
	}
}
