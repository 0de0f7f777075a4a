package observability

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/digiurban/internal/config"
	"github.com/pitabwire/digiurban/model"
)

type loggerKey struct{}

const redactedValue = "[REDACTED]"

// NewLogger builds the portal's JSON logger writing to stdout.
//
// Level conventions:
//   - error: infrastructure failures and 5xx responses
//   - warn:  4xx responses and post-commit side effects that failed
//     (event publish, search indexing, SLA opening)
//   - info:  request end, status transitions, gate decisions, scheduled scans
//   - debug: cache operations and redacted form payloads
//
// An unparseable level falls back to info.
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if parsed, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		level = parsed
	}

	return zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         "json",
		EncoderConfig:    portalEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}.Build()
}

func portalEncoderConfig() zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.MillisDurationEncoder
	return enc
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the context logger, or fallback when there is none.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// RequestLogger returns the context logger tagged with the caller's tenant,
// subject, actor and correlation identifiers.
func RequestLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	logger := LoggerFrom(ctx, fallback)
	rctx := model.RequestContextFrom(ctx)
	if rctx == nil {
		return logger
	}

	fields := make([]zap.Field, 0, 5)
	fields = append(fields,
		zap.String("tenant_id", rctx.TenantID),
		zap.String("subject_id", rctx.SubjectID),
		zap.String("actor", string(rctx.Actor())),
		zap.String("correlation_id", rctx.CorrelationID),
	)
	if rctx.TraceID != "" {
		fields = append(fields, zap.String("trace_id", rctx.TraceID))
	}
	return logger.With(fields...)
}

// Citizen identifiers and credentials never reach the logs.
var personalDataKeys = []string{
	"cpf", "rg", "cns", "cartao_sus", "nis", "titulo_eleitor",
	"senha", "password", "pin", "secret", "token",
	"access_token", "refresh_token", "api_key", "authorization",
}

// RedactBody copies a form payload, masking values whose key is a known
// personal-data or credential name, or one of extra. Keys match without
// regard to case. Nested objects and lists of objects are walked.
func RedactBody(body map[string]any, extra []string) map[string]any {
	if body == nil {
		return nil
	}
	keys := make(map[string]struct{}, len(personalDataKeys)+len(extra))
	for _, k := range personalDataKeys {
		keys[k] = struct{}{}
	}
	for _, k := range extra {
		keys[strings.ToLower(k)] = struct{}{}
	}
	return redactMap(body, keys)
}

func redactMap(body map[string]any, keys map[string]struct{}) map[string]any {
	out := make(map[string]any, len(body))
	for k, v := range body {
		if _, masked := keys[strings.ToLower(k)]; masked {
			out[k] = redactedValue
			continue
		}
		out[k] = redactValue(v, keys)
	}
	return out
}

func redactValue(v any, keys map[string]struct{}) any {
	switch val := v.(type) {
	case map[string]any:
		return redactMap(val, keys)
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = redactValue(item, keys)
		}
		return items
	default:
		return v
	}
}

// FormDataField logs a citizen form payload with personal data masked.
func FormDataField(data map[string]any) zap.Field {
	return zap.Any("form_data", RedactBody(data, nil))
}
