package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pitabwire/digiurban/internal/config"
	"github.com/pitabwire/digiurban/model"
)

func TestRecovery_logsAndReturnsInternal(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	h := Recovery(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/protocols", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if code := errorCode(t, rec); code != model.ErrInternalError {
		t.Errorf("code = %s, want INTERNAL_ERROR", code)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Errorf("panic not logged: %v", logs.All())
	}
}

func TestCORS(t *testing.T) {
	cfg := config.CORSConfig{
		AllowedOrigins: []string{"https://portal.prefeitura.gov.br"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization"},
		MaxAge:         600,
	}
	h := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{"allowed origin", http.MethodGet, "https://portal.prefeitura.gov.br", http.StatusTeapot, "https://portal.prefeitura.gov.br"},
		{"other origin", http.MethodGet, "https://evil.example", http.StatusTeapot, ""},
		{"preflight", http.MethodOptions, "https://portal.prefeitura.gov.br", http.StatusNoContent, "https://portal.prefeitura.gov.br"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("allow origin = %q, want %q", got, tt.wantAllow)
			}
		})
	}
}

func TestRequestID_propagatesInbound(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = CorrelationIDFrom(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-Id", "corr-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "corr-123" || rec.Header().Get("X-Correlation-Id") != "corr-123" {
		t.Errorf("correlation id = %q, header %q", seen, rec.Header().Get("X-Correlation-Id"))
	}
}

func TestBuildRequestContext(t *testing.T) {
	var got *model.RequestContext
	h := BuildRequestContext(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = model.RequestContextFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithClaims(req.Context(), map[string]any{
		"sub":       "servidor-1",
		"email":     "ana@prefeitura.gov.br",
		"tenant_id": "prefeitura-1",
		"roles":     []any{"ATENDENTE", "ADMIN"},
	}))
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got == nil {
		t.Fatal("request context not installed")
	}
	if got.SubjectID != "servidor-1" || got.TenantID != "prefeitura-1" || !got.HasRole("ADMIN") {
		t.Errorf("rctx = %+v", got)
	}
}

func TestClaimStringSlice(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want []string
	}{
		{"strings", []string{"A"}, []string{"A"}},
		{"any", []any{"A", 1, "B"}, []string{"A", "B"}},
		{"comma", "A,B", []string{"A", "B"}},
		{"empty", "", nil},
		{"missing", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := claimStringSlice(map[string]any{"roles": tt.v}, "roles")
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequireCapability(t *testing.T) {
	h := RequireCapability(model.CapStockManage, model.CapStockDispense)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(caps model.CapabilitySet) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if caps != nil {
			req = req.WithContext(context.WithValue(req.Context(), capabilitiesKey{}, caps))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := serve(nil); code != http.StatusForbidden {
		t.Errorf("no caps status = %d, want 403", code)
	}
	if code := serve(model.CapabilitySet{"stock:*": true}); code != http.StatusOK {
		t.Errorf("wildcard status = %d, want 200", code)
	}
	if code := serve(model.CapabilitySet{model.CapStockDispense: true}); code != http.StatusOK {
		t.Errorf("any-of status = %d, want 200", code)
	}
}

func TestRequestLogging_usesRoutePattern(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := chi.NewRouter()
	r.Use(RequestLogging(zap.New(core)))
	r.Get("/api/protocols/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/protocols/abc", nil))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Level != zapcore.WarnLevel {
		t.Errorf("level = %s, want warn", e.Level)
	}
	if route := e.ContextMap()["route"]; route != "/api/protocols/{id}" {
		t.Errorf("route = %v", route)
	}
}
