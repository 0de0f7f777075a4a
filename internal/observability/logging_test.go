package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/digiurban/internal/config"
	"github.com/pitabwire/digiurban/model"
)

func newTestLogger(buf *bytes.Buffer) *zap.Logger {
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "msg",
		EncodeLevel: zapcore.LowercaseLevelEncoder,
		EncodeTime:  zapcore.ISO8601TimeEncoder,
	})
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(buf), zapcore.DebugLevel))
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}
	return entry
}

func TestNewLogger_levels(t *testing.T) {
	tests := []struct {
		level     string
		enabled   zapcore.Level
		disabled  zapcore.Level
		checkDown bool
	}{
		{"debug", zapcore.DebugLevel, 0, false},
		{"info", zapcore.InfoLevel, zapcore.DebugLevel, true},
		{"warn", zapcore.WarnLevel, zapcore.InfoLevel, true},
		{"error", zapcore.ErrorLevel, zapcore.WarnLevel, true},
		{"bogus", zapcore.InfoLevel, zapcore.DebugLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := NewLogger(config.ObservabilityConfig{LogLevel: tt.level})
			if err != nil {
				t.Fatalf("NewLogger(%q) error = %v", tt.level, err)
			}
			defer logger.Sync()

			if !logger.Core().Enabled(tt.enabled) {
				t.Errorf("%v should be enabled", tt.enabled)
			}
			if tt.checkDown && logger.Core().Enabled(tt.disabled) {
				t.Errorf("%v should not be enabled", tt.disabled)
			}
		})
	}
}

func TestLoggerFrom(t *testing.T) {
	logger := zap.NewNop()
	fallback := zap.NewNop()

	if got := LoggerFrom(WithLogger(context.Background(), logger), fallback); got != logger {
		t.Error("LoggerFrom should return the stored logger")
	}
	if got := LoggerFrom(context.Background(), fallback); got != fallback {
		t.Error("LoggerFrom should return fallback when no logger in context")
	}
}

func TestRequestLogger_enrichesWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	rctx := &model.RequestContext{
		TenantID:      "prefeitura-a",
		SubjectID:     "servidor-7",
		Roles:         []string{"SECRETARIO_SAUDE"},
		CorrelationID: "corr-abc",
		TraceID:       "trace-xyz",
	}
	ctx := model.WithRequestContext(context.Background(), rctx)

	RequestLogger(ctx, logger).Info("protocol updated")

	entry := decodeEntry(t, &buf)
	checks := map[string]string{
		"tenant_id":      "prefeitura-a",
		"subject_id":     "servidor-7",
		"correlation_id": "corr-abc",
		"trace_id":       "trace-xyz",
		"actor":          "USER",
		"msg":            "protocol updated",
		"level":          "info",
	}
	for key, want := range checks {
		got, ok := entry[key].(string)
		if !ok {
			t.Errorf("missing field %q in log entry", key)
			continue
		}
		if got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
}

func TestRequestLogger_withoutOptionalFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	ctx := model.WithRequestContext(context.Background(), &model.RequestContext{
		TenantID:  "prefeitura-a",
		SubjectID: "cidadao-1",
	})
	RequestLogger(ctx, logger).Info("no trace")

	entry := decodeEntry(t, &buf)
	if _, exists := entry["trace_id"]; exists {
		t.Error("trace_id should not be present when empty")
	}
	if entry["actor"] != "CITIZEN" {
		t.Errorf("actor = %v, want CITIZEN", entry["actor"])
	}
}

func TestRequestLogger_noRequestContext(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	RequestLogger(context.Background(), logger).Info("scheduler tick")

	entry := decodeEntry(t, &buf)
	if entry["msg"] != "scheduler tick" {
		t.Errorf("msg = %q, want scheduler tick", entry["msg"])
	}
	if _, exists := entry["tenant_id"]; exists {
		t.Error("tenant_id should not be present without RequestContext")
	}
}

func TestRedactBody(t *testing.T) {
	body := map[string]any{
		"nome":  "Maria",
		"cpf":   "123.456.789-00",
		"email": "maria@example.com",
		"token": "abc.def.ghi",
		"responsavel": map[string]any{
			"nome":       "José",
			"cartao_sus": "898001",
		},
	}

	redacted := RedactBody(body, []string{"email"})

	if redacted["nome"] != "Maria" {
		t.Errorf("nome = %v, want Maria", redacted["nome"])
	}
	for _, key := range []string{"cpf", "email", "token"} {
		if redacted[key] != redactedValue {
			t.Errorf("%s = %v, want [REDACTED]", key, redacted[key])
		}
	}
	nested, ok := redacted["responsavel"].(map[string]any)
	if !ok {
		t.Fatal("responsavel should be a nested map")
	}
	if nested["cartao_sus"] != redactedValue || nested["nome"] != "José" {
		t.Errorf("nested = %v", nested)
	}
	if body["cpf"] != "123.456.789-00" {
		t.Errorf("original body was mutated: cpf = %v", body["cpf"])
	}
	if RedactBody(nil, nil) != nil {
		t.Error("RedactBody(nil) should be nil")
	}
}

func TestRedactBody_caseAndLists(t *testing.T) {
	body := map[string]any{
		"CPF": "123.456.789-00",
		"dependentes": []any{
			map[string]any{"nome": "Ana", "Cartao_SUS": "898002"},
			"texto livre",
		},
		"Telefone": "61 99999-0000",
	}

	redacted := RedactBody(body, []string{"telefone"})

	if redacted["CPF"] != redactedValue {
		t.Errorf("CPF = %v, want %s", redacted["CPF"], redactedValue)
	}
	if redacted["Telefone"] != redactedValue {
		t.Errorf("Telefone = %v, want %s", redacted["Telefone"], redactedValue)
	}
	items, ok := redacted["dependentes"].([]any)
	if !ok || len(items) != 2 {
		t.Fatalf("dependentes = %v", redacted["dependentes"])
	}
	first := items[0].(map[string]any)
	if first["Cartao_SUS"] != redactedValue || first["nome"] != "Ana" {
		t.Errorf("dependentes[0] = %v", first)
	}
	if items[1] != "texto livre" {
		t.Errorf("dependentes[1] = %v", items[1])
	}
}

func TestFormDataField(t *testing.T) {
	var buf bytes.Buffer
	newTestLogger(&buf).Debug("form", FormDataField(map[string]any{"cpf": "1", "bairro": "Centro"}))

	entry := decodeEntry(t, &buf)
	form, ok := entry["form_data"].(map[string]any)
	if !ok {
		t.Fatalf("form_data = %v", entry["form_data"])
	}
	if form["cpf"] != redactedValue || form["bairro"] != "Centro" {
		t.Errorf("form_data = %v", form)
	}
}
