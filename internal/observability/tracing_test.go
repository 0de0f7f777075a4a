package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/pitabwire/digiurban/internal/config"
	"github.com/pitabwire/digiurban/model"
)

// setupTestTracer installs an always-sampling provider backed by an
// in-memory exporter.
func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})
	return exporter
}

func spanAttrMap(s tracetest.SpanStub) map[string]string {
	m := make(map[string]string, len(s.Attributes))
	for _, kv := range s.Attributes {
		m[string(kv.Key)] = kv.Value.Emit()
	}
	return m
}

func TestInitTracing_disabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), config.TracingConfig{}, "portal", "test")
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func TestInitTracing_stdout(t *testing.T) {
	cfg := config.TracingConfig{Enabled: true, Exporter: "stdout", SamplingRate: 1}
	shutdown, err := InitTracing(context.Background(), cfg, "portal", "test")
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func TestInitTracing_unsupportedExporter(t *testing.T) {
	cfg := config.TracingConfig{Enabled: true, Exporter: "zipkin"}
	if _, err := InitTracing(context.Background(), cfg, "portal", "test"); err == nil {
		t.Fatal("InitTracing() with unsupported exporter should fail")
	}
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{0, "TraceIDRatioBased{0.1}"},
		{0.5, "TraceIDRatioBased{0.5}"},
		{1, "AlwaysOnSampler"},
		{3, "AlwaysOnSampler"},
	}
	for _, tt := range tests {
		desc := newSampler(config.TracingConfig{SamplingRate: tt.rate}).Description()
		if !strings.HasPrefix(desc, "ParentBased{root:"+tt.want) {
			t.Errorf("rate %v: sampler = %q, want ParentBased %s", tt.rate, desc, tt.want)
		}
	}
}

func TestStartSpan_attributesAndParent(t *testing.T) {
	exporter := setupTestTracer(t)

	ctx, parent := StartSpan(context.Background(), "approval.decide",
		AttrGateID.String("tfd.regulacao_medica"))
	_, child := StartSpan(ctx, "tfd.transition")
	child.End()
	parent.End()

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	gotChild, gotParent := spans[0], spans[1]
	if gotChild.Parent.SpanID() != gotParent.SpanContext.SpanID() {
		t.Error("child span should reference the parent span")
	}
	if v := spanAttrMap(gotParent)["digiurban.gate_id"]; v != "tfd.regulacao_medica" {
		t.Errorf("gate_id = %q", v)
	}
}

func TestEndSpanWithError(t *testing.T) {
	exporter := setupTestTracer(t)

	_, span := StartSpan(context.Background(), "stock.dispensar")
	EndSpanWithError(span, errors.New("sem estoque"))
	_, ok := StartSpan(context.Background(), "stock.confirmar")
	EndSpanWithError(ok, nil)

	spans := exporter.GetSpans()
	if spans[0].Status.Code != codes.Error || len(spans[0].Events) == 0 {
		t.Errorf("failed span status = %v, events = %d", spans[0].Status.Code, len(spans[0].Events))
	}
	if spans[1].Status.Code == codes.Error {
		t.Error("nil error should not set error status")
	}
}

func TestTraceAndSpanIDFromContext(t *testing.T) {
	setupTestTracer(t)

	if TraceIDFromContext(context.Background()) != "" {
		t.Error("trace id without span should be empty")
	}
	ctx, span := StartSpan(context.Background(), "op")
	defer span.End()
	if len(TraceIDFromContext(ctx)) != 32 {
		t.Errorf("trace id = %q, want 32 hex chars", TraceIDFromContext(ctx))
	}
	if len(SpanIDFromContext(ctx)) != 16 {
		t.Errorf("span id = %q, want 16 hex chars", SpanIDFromContext(ctx))
	}
}

func TestTracingMiddleware_namesSpanAfterRoute(t *testing.T) {
	exporter := setupTestTracer(t)

	r := chi.NewRouter()
	r.Use(TracingMiddleware)
	r.Get("/api/protocols/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/protocols/p-1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name != "GET /api/protocols/{id}" {
		t.Errorf("span name = %q", s.Name)
	}
	if s.SpanKind != trace.SpanKindServer {
		t.Errorf("span kind = %v, want Server", s.SpanKind)
	}
	attrs := spanAttrMap(s)
	if attrs["http.route"] != "/api/protocols/{id}" {
		t.Errorf("http.route = %q", attrs["http.route"])
	}
	if attrs["http.response.status_code"] != "200" {
		t.Errorf("status attribute = %q", attrs["http.response.status_code"])
	}
}

func TestTracingMiddleware_500_setsErrorStatus(t *testing.T) {
	exporter := setupTestTracer(t)

	handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/estoque", nil))

	spans := exporter.GetSpans()
	if spans[0].Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", spans[0].Status.Code)
	}
	if spans[0].Name != "POST /api/estoque" {
		t.Errorf("span name = %q, want raw path without router", spans[0].Name)
	}
}

func TestTracingMiddleware_continuesTraceparent(t *testing.T) {
	exporter := setupTestTracer(t)

	handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/api/protocols", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	s := exporter.GetSpans()[0]
	if s.SpanContext.TraceID().String() != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace id = %s, want inbound trace id", s.SpanContext.TraceID())
	}
	if rec.Header().Get("traceparent") == "" {
		t.Error("response should carry traceparent")
	}
}

func TestStartSpan_tagsRequestContext(t *testing.T) {
	exporter := setupTestTracer(t)

	ctx := model.WithRequestContext(context.Background(), &model.RequestContext{
		TenantID:  "prefeitura-1",
		SubjectID: "servidor-7",
	})
	p := model.Protocol{ID: "p-1", ModuleType: "saude.tfd"}
	_, span := StartSpan(ctx, "protocol.change_status", ProtocolAttributes(p)...)
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	attrs := spanAttrMap(spans[0])
	want := map[string]string{
		"digiurban.tenant_id":   "prefeitura-1",
		"digiurban.subject_id":  "servidor-7",
		"digiurban.protocol_id": "p-1",
		"digiurban.module_type": "saude.tfd",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("%s = %q, want %q", k, attrs[k], v)
		}
	}
}

func TestTracingMiddleware_skipsProbes(t *testing.T) {
	exporter := setupTestTracer(t)

	handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if trace.SpanContextFromContext(r.Context()).IsValid() {
			t.Error("probe request should not carry a span")
		}
	}))
	for _, path := range []string{"/health", "/ready", "/metrics"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	if n := len(exporter.GetSpans()); n != 0 {
		t.Errorf("spans = %d, want 0 for probe paths", n)
	}
}
