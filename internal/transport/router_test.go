package transport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pitabwire/digiurban/internal/approval"
	"github.com/pitabwire/digiurban/internal/calendar"
	"github.com/pitabwire/digiurban/internal/config"
	"github.com/pitabwire/digiurban/internal/customdata"
	"github.com/pitabwire/digiurban/internal/definition"
	"github.com/pitabwire/digiurban/internal/document"
	"github.com/pitabwire/digiurban/internal/events"
	"github.com/pitabwire/digiurban/internal/idempotency"
	"github.com/pitabwire/digiurban/internal/interaction"
	"github.com/pitabwire/digiurban/internal/observability"
	"github.com/pitabwire/digiurban/internal/pending"
	"github.com/pitabwire/digiurban/internal/protocol"
	"github.com/pitabwire/digiurban/internal/search"
	"github.com/pitabwire/digiurban/internal/sla"
	"github.com/pitabwire/digiurban/internal/workflow"
	"github.com/pitabwire/digiurban/model"
)

var testSecret = []byte("segredo-de-teste")

// roleResolver grants capabilities per role.
type roleResolver map[string]model.CapabilitySet

func (r roleResolver) Resolve(rctx *model.RequestContext) (model.CapabilitySet, error) {
	out := model.CapabilitySet{}
	for _, role := range rctx.Roles {
		for c := range r[role] {
			out[c] = true
		}
	}
	return out, nil
}

func (r roleResolver) Invalidate(_, _ string) {}

func testResolver() roleResolver {
	return roleResolver{
		"CITIZEN": {
			model.CapProtocolCreate:  true,
			model.CapProtocolRead:    true,
			model.CapInteractionPost: true,
		},
		"ATENDENTE": {
			"protocols:*":              true,
			"workflow:stage:*":         true,
			"interactions:*":           true,
			model.CapSLAManage:         true,
			model.CapCustomTableManage: true,
			"customdata:records:*":     true,
		},
	}
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Identity.Algorithms = []string{"HS256"}
	return cfg
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	defs, err := definition.NewLoader().LoadAll([]string{"../../definitions"})
	if err != nil {
		t.Fatalf("load definitions: %v", err)
	}
	registry := definition.NewRegistry(defs)
	cal, err := calendar.New(nil)
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	metrics := observability.InitMetrics(prometheus.NewRegistry())
	bus := events.NewBus(events.NewMemoryPublisher(), nil, metrics)
	resolver := testResolver()

	protocolStore := protocol.NewMemoryStore()
	interactions := interaction.NewService(interaction.NewMemoryStore(), protocolStore, nil)
	documents := document.NewService(document.NewMemoryStore(), interactions, nil)
	pendings := pending.NewService(pending.NewMemoryStore(), interactions, nil)
	templates := workflow.NewTemplates(registry, workflow.NewMemoryTemplateStore(), nil)
	engine := workflow.NewEngine(workflow.EngineDeps{
		Templates:    templates,
		Store:        workflow.NewMemoryInstanceStore(),
		Calendar:     cal,
		CapResolver:  resolver,
		Protocols:    protocolStore,
		Documents:    documents,
		Pendings:     pendings,
		Interactions: interactions,
		Bus:          bus,
		Metrics:      metrics,
	})
	slas := sla.NewService(sla.Deps{Store: sla.NewMemoryStore(), Calendar: cal, Bus: bus, Metrics: metrics})
	protocols := protocol.NewService(protocol.Deps{
		Store:        protocolStore,
		Workflows:    engine,
		SLAs:         slas,
		Interactions: interactions,
		Index:        search.NewMemoryIndex(),
		Bus:          bus,
		Metrics:      metrics,
	})
	approvals := approval.NewService(approval.Deps{
		Gates:          registry,
		CapResolver:    resolver,
		Interactions:   interactions,
		Idempotency:    idempotency.NewMemoryStore(),
		IdempotencyTTL: time.Hour,
		Bus:            bus,
		Metrics:        metrics,
	})
	approvals.Register(model.MachineProtocol, protocols.GateTarget())

	cfg := testConfig()
	return NewRouter(Dependencies{
		Config:             cfg,
		Metrics:            metrics,
		Authenticate:       JWTAuthenticator(cfg.Identity, HMACKeyfunc(testSecret)),
		CapabilityResolver: resolver,
		Protocols:          protocols,
		Workflows:          engine,
		Templates:          templates,
		SLAs:               slas,
		Documents:          documents,
		Interactions:       interactions,
		Pendings:           pendings,
		Approvals:          approvals,
		CustomData:         customdata.NewService(customdata.NewMemoryStore(), metrics, nil),
		MetricsHandler:     observability.Handler(),
	})
}

func signToken(t *testing.T, sub string, roles ...string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":       sub,
		"name":      "Usuário " + sub,
		"tenant_id": "prefeitura-1",
		"roles":     roles,
		"exp":       time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

type call struct {
	method  string
	path    string
	body    any
	token   string
	headers map[string]string
}

func do(t *testing.T, h http.Handler, c call) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		if err := json.NewEncoder(&buf).Encode(c.body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(c.method, c.path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[errorResponse](t, rec).Error.Code
}

func TestRouter_publicEndpoints(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, call{method: http.MethodGet, path: "/health"})
	if rec.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Correlation-Id") == "" {
		t.Error("missing X-Correlation-Id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}

	rec = do(t, h, call{method: http.MethodGet, path: "/metrics"})
	if rec.Code != http.StatusOK {
		t.Errorf("/metrics status = %d, want 200", rec.Code)
	}
}

func TestRouter_authentication(t *testing.T) {
	h := newTestRouter(t)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"valid", "Bearer " + signToken(t, "servidor-1", "ATENDENTE"), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			rec := do(t, h, call{method: http.MethodGet, path: "/api/protocols", headers: headers})
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
			if tt.want == http.StatusUnauthorized && errorCode(t, rec) != model.ErrUnauthorized {
				t.Errorf("code = %s, want UNAUTHORIZED", errorCode(t, rec))
			}
		})
	}
}

func TestRouter_tokenWithoutTenantRejected(t *testing.T) {
	h := newTestRouter(t)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "servidor-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, _ := token.SignedString(testSecret)

	rec := do(t, h, call{method: http.MethodGet, path: "/api/protocols", token: signed})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRouter_capabilityGuards(t *testing.T) {
	h := newTestRouter(t)
	citizen := signToken(t, "cidadao-1", "CITIZEN")

	rec := do(t, h, call{method: http.MethodGet, path: "/api/workflows", token: citizen})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if code := errorCode(t, rec); code != model.ErrForbidden {
		t.Errorf("code = %s, want FORBIDDEN", code)
	}

	rec = do(t, h, call{method: http.MethodGet, path: "/api/workflows", token: signToken(t, "admin", "ATENDENTE")})
	if rec.Code != http.StatusForbidden {
		t.Errorf("attendant without workflows:manage got %d, want 403", rec.Code)
	}
}

func TestRouter_validationError(t *testing.T) {
	h := newTestRouter(t)
	rec := do(t, h, call{
		method: http.MethodPost, path: "/api/protocols",
		token: signToken(t, "servidor-1", "ATENDENTE"),
		body:  map[string]any{"title": "Poda de árvore"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decode[errorResponse](t, rec)
	if resp.Error.Code != model.ErrValidationError {
		t.Errorf("code = %s, want VALIDATION_ERROR", resp.Error.Code)
	}
	if len(resp.Error.Details) == 0 {
		t.Error("expected field details")
	}
}

func TestRouter_malformedBody(t *testing.T) {
	h := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/protocols", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+signToken(t, "servidor-1", "ATENDENTE"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != model.ErrBadRequest {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestRouter_protocolFlow(t *testing.T) {
	h := newTestRouter(t)
	staff := signToken(t, "servidor-1", "ATENDENTE")
	citizen := signToken(t, "cidadao-1", "CITIZEN")

	rec := do(t, h, call{method: http.MethodPost, path: "/api/protocols", token: citizen, body: map[string]any{
		"title":         "Poda de árvore",
		"description":   "Galho sobre a fiação",
		"service_id":    "poda",
		"department_id": "meio-ambiente",
	}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body = %s", rec.Code, rec.Body.String())
	}
	created := decode[model.Protocol](t, rec)
	if created.CitizenID != "cidadao-1" || created.Status != model.ProtocolVinculado {
		t.Fatalf("created = %+v", created)
	}

	rec = do(t, h, call{method: http.MethodGet, path: "/api/protocols?page=1&page_size=10", token: staff})
	page := decode[Page[model.Protocol]](t, rec)
	if page.TotalCount != 1 || len(page.Data) != 1 || page.PageSize != 10 {
		t.Fatalf("page = %+v", page)
	}

	rec = do(t, h, call{method: http.MethodGet, path: "/api/protocols/by-number/" + created.Number, token: staff})
	if rec.Code != http.StatusOK {
		t.Fatalf("by-number status = %d", rec.Code)
	}

	rec = do(t, h, call{method: http.MethodGet, path: "/api/protocols/" + created.ID + "/stages/current", token: staff})
	if rec.Code != http.StatusOK {
		t.Fatalf("current stage status = %d body = %s", rec.Code, rec.Body.String())
	}
	pos := decode[workflow.Position](t, rec)
	if pos.Stage == nil || pos.Stage.Name != "Análise Inicial" || pos.Total != 3 {
		t.Errorf("position = %+v", pos)
	}

	rec = do(t, h, call{method: http.MethodGet, path: "/api/protocols/" + created.ID + "/sla", token: staff})
	if rec.Code != http.StatusOK {
		t.Fatalf("sla status = %d body = %s", rec.Code, rec.Body.String())
	}
	if s := decode[model.ProtocolSLA](t, rec); s.WorkingDays != 15 {
		t.Errorf("sla working days = %d, want 15", s.WorkingDays)
	}

	rec = do(t, h, call{method: http.MethodPost, path: "/api/protocols/" + created.ID + "/approve", token: citizen,
		body: map[string]string{"justification": "ok"}})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("citizen approve status = %d, want 403", rec.Code)
	}

	approve := call{
		method: http.MethodPost, path: "/api/protocols/" + created.ID + "/approve", token: staff,
		body:    map[string]string{"justification": "Serviço executado"},
		headers: map[string]string{"X-Idempotency-Key": "aprov-1"},
	}
	rec = do(t, h, approve)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve status = %d body = %s", rec.Code, rec.Body.String())
	}
	out := decode[model.ApprovalOutcome](t, rec)
	if out.ToStatus != model.ProtocolConcluido || out.FromStatus != model.ProtocolVinculado {
		t.Errorf("outcome = %+v", out)
	}

	rec = do(t, h, approve)
	if rec.Code != http.StatusOK {
		t.Fatalf("replayed approve status = %d body = %s", rec.Code, rec.Body.String())
	}
	if replay := decode[model.ApprovalOutcome](t, rec); !replay.DecidedAt.Equal(out.DecidedAt) {
		t.Errorf("replay decided at %v, want %v", replay.DecidedAt, out.DecidedAt)
	}

	rec = do(t, h, call{method: http.MethodGet, path: "/api/protocols/" + created.ID + "/history", token: staff})
	history := decode[[]model.ProtocolHistory](t, rec)
	if len(history) != 2 {
		t.Errorf("history entries = %d, want 2", len(history))
	}

	rec = do(t, h, call{method: http.MethodGet, path: "/api/protocols/" + created.ID + "/sla", token: staff})
	if s := decode[model.ProtocolSLA](t, rec); s.Status != model.SLACompleted {
		t.Errorf("sla status after conclusion = %s, want COMPLETED", s.Status)
	}
}

func TestRouter_notFound(t *testing.T) {
	h := newTestRouter(t)
	rec := do(t, h, call{method: http.MethodGet, path: "/api/protocols/nao-existe", token: signToken(t, "servidor-1", "ATENDENTE")})
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != model.ErrNotFound {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestRouter_customData(t *testing.T) {
	h := newTestRouter(t)
	staff := signToken(t, "servidor-1", "ATENDENTE")

	rec := do(t, h, call{method: http.MethodPost, path: "/api/custom-modules/tables", token: staff, body: map[string]any{
		"table_name":   "vistoria_arvore",
		"display_name": "Vistoria de árvore",
		"module_type":  "MEIO_AMBIENTE",
		"schema": map[string]any{"fields": []map[string]any{
			{"name": "especie", "label": "Espécie", "type": "text", "required": true},
			{"name": "altura", "label": "Altura", "type": "number"},
		}},
	}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create table status = %d body = %s", rec.Code, rec.Body.String())
	}
	table := decode[model.CustomDataTable](t, rec)

	records := "/api/custom-modules/tables/" + table.ID + "/records"
	rec = do(t, h, call{method: http.MethodPost, path: records, token: staff, body: map[string]any{
		"data": map[string]any{"altura": 12},
	}})
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != model.ErrValidationError {
		t.Fatalf("invalid record status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, call{method: http.MethodPost, path: records, token: staff, body: map[string]any{
		"data": map[string]any{"especie": "Ipê", "altura": 12},
	}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create record status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, call{method: http.MethodGet, path: records, token: staff})
	if page := decode[Page[model.CustomDataRecord]](t, rec); page.TotalCount != 1 {
		t.Errorf("records total = %d, want 1", page.TotalCount)
	}

	rec = do(t, h, call{method: http.MethodDelete, path: "/api/custom-modules/tables/" + table.ID, token: staff})
	if rec.Code != http.StatusConflict {
		t.Errorf("delete table with records status = %d, want 409", rec.Code)
	}
}
