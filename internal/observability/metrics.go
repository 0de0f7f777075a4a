package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets  = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	innerDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
	bodySizeBuckets      = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments of the portal. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Protocol metrics
	ProtocolsCreatedTotal    *prometheus.CounterVec
	ProtocolTransitionsTotal *prometheus.CounterVec
	StageTransitionsTotal    *prometheus.CounterVec

	// Approval metrics
	ApprovalDecisionsTotal   *prometheus.CounterVec
	ApprovalDecisionDuration *prometheus.HistogramVec

	// SLA metrics
	SLAStatusChangesTotal *prometheus.CounterVec
	SLAScanDuration       prometheus.Histogram

	// Stock metrics
	StockMovementsTotal *prometheus.CounterVec
	DispensationsTotal  *prometheus.CounterVec

	// Custom data metrics
	CustomRecordValidationFailures *prometheus.CounterVec

	// Event metrics
	EventsPublishedTotal *prometheus.CounterVec

	// Cache metrics
	CapabilityCacheHitsTotal   prometheus.Counter
	CapabilityCacheMissesTotal prometheus.Counter

	// System metrics
	DefinitionReloadTotal *prometheus.CounterVec
	DefinitionsLoaded     prometheus.Gauge
	SearchDuration        prometheus.Histogram
	SearchIndexErrors     prometheus.Counter
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "digiurban_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "digiurban_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "digiurban_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "digiurban_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		ProtocolsCreatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "digiurban_protocols_created_total",
			Help: "Total number of protocols created.",
		}, []string{"module_type"}),
		ProtocolTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "digiurban_protocol_transitions_total",
			Help: "Total number of protocol status transitions.",
		}, []string{"from", "to"}),
		StageTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "digiurban_stage_transitions_total",
			Help: "Total number of workflow stage transitions.",
		}, []string{"module_type", "event"}),

		ApprovalDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "digiurban_approval_decisions_total",
			Help: "Total number of approval gate decisions.",
		}, []string{"gate", "outcome"}),
		ApprovalDecisionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "digiurban_approval_decision_duration_seconds",
			Help:    "Approval gate decision duration in seconds.",
			Buckets: innerDurationBuckets,
		}, []string{"gate"}),

		SLAStatusChangesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "digiurban_sla_status_changes_total",
			Help: "Total number of SLA status changes.",
		}, []string{"status"}),
		SLAScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "digiurban_sla_scan_duration_seconds",
			Help:    "SLA refresh scan duration in seconds.",
			Buckets: innerDurationBuckets,
		}),

		StockMovementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "digiurban_stock_movements_total",
			Help: "Total number of stock quantity movements.",
		}, []string{"kind"}),
		DispensationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "digiurban_dispensations_total",
			Help: "Total number of dispensation status changes.",
		}, []string{"status"}),

		CustomRecordValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "digiurban_custom_record_validation_failures_total",
			Help: "Total number of custom record validation failures.",
		}, []string{"table"}),

		EventsPublishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "digiurban_events_published_total",
			Help: "Total number of domain events published.",
		}, []string{"type", "status"}),

		CapabilityCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "digiurban_capability_cache_hits_total",
			Help: "Total capability cache hits.",
		}),
		CapabilityCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "digiurban_capability_cache_misses_total",
			Help: "Total capability cache misses.",
		}),

		DefinitionReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "digiurban_definition_reload_total",
			Help: "Total definition reloads.",
		}, []string{"status"}),
		DefinitionsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "digiurban_definitions_loaded",
			Help: "Number of loaded definition files.",
		}),
		SearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "digiurban_search_duration_seconds",
			Help:    "Protocol search duration in seconds.",
			Buckets: innerDurationBuckets,
		}),
		SearchIndexErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "digiurban_search_index_errors_total",
			Help: "Total protocol indexing failures.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		m.ProtocolsCreatedTotal,
		m.ProtocolTransitionsTotal,
		m.StageTransitionsTotal,
		m.ApprovalDecisionsTotal,
		m.ApprovalDecisionDuration,
		m.SLAStatusChangesTotal,
		m.SLAScanDuration,
		m.StockMovementsTotal,
		m.DispensationsTotal,
		m.CustomRecordValidationFailures,
		m.EventsPublishedTotal,
		m.CapabilityCacheHitsTotal,
		m.CapabilityCacheMissesTotal,
		m.DefinitionReloadTotal,
		m.DefinitionsLoaded,
		m.SearchDuration,
		m.SearchIndexErrors,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	if m == nil {
		return
	}
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordProtocolCreated records a protocol creation.
func (m *Metrics) RecordProtocolCreated(moduleType string) {
	if m == nil {
		return
	}
	m.ProtocolsCreatedTotal.WithLabelValues(moduleType).Inc()
}

// RecordProtocolTransition records a protocol status change.
func (m *Metrics) RecordProtocolTransition(from, to string) {
	if m == nil {
		return
	}
	m.ProtocolTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordStageTransition records a workflow stage event.
func (m *Metrics) RecordStageTransition(moduleType, event string) {
	if m == nil {
		return
	}
	m.StageTransitionsTotal.WithLabelValues(moduleType, event).Inc()
}

// RecordApprovalDecision records an approval gate decision.
func (m *Metrics) RecordApprovalDecision(gateID, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ApprovalDecisionsTotal.WithLabelValues(gateID, outcome).Inc()
	m.ApprovalDecisionDuration.WithLabelValues(gateID).Observe(duration.Seconds())
}

// RecordSLAStatusChange records an SLA entering a status.
func (m *Metrics) RecordSLAStatusChange(status string) {
	if m == nil {
		return
	}
	m.SLAStatusChangesTotal.WithLabelValues(status).Inc()
}

// RecordSLAScan records the duration of an SLA refresh scan.
func (m *Metrics) RecordSLAScan(duration time.Duration) {
	if m == nil {
		return
	}
	m.SLAScanDuration.Observe(duration.Seconds())
}

// RecordStockMovement records a stock quantity movement. Kind is one of
// "entrada", "saida", "estorno", "bloqueio" or "vencimento".
func (m *Metrics) RecordStockMovement(kind string) {
	if m == nil {
		return
	}
	m.StockMovementsTotal.WithLabelValues(kind).Inc()
}

// RecordDispensation records a dispensation entering a status.
func (m *Metrics) RecordDispensation(status string) {
	if m == nil {
		return
	}
	m.DispensationsTotal.WithLabelValues(status).Inc()
}

// RecordCustomRecordValidationFailure records a rejected custom record.
func (m *Metrics) RecordCustomRecordValidationFailure(table string) {
	if m == nil {
		return
	}
	m.CustomRecordValidationFailures.WithLabelValues(table).Inc()
}

// RecordEventPublished records a domain event publish attempt.
func (m *Metrics) RecordEventPublished(eventType, status string) {
	if m == nil {
		return
	}
	m.EventsPublishedTotal.WithLabelValues(eventType, status).Inc()
}

// RecordCapabilityCacheHit records a capability cache hit.
func (m *Metrics) RecordCapabilityCacheHit() {
	if m == nil {
		return
	}
	m.CapabilityCacheHitsTotal.Inc()
}

// RecordCapabilityCacheMiss records a capability cache miss.
func (m *Metrics) RecordCapabilityCacheMiss() {
	if m == nil {
		return
	}
	m.CapabilityCacheMissesTotal.Inc()
}

// RecordDefinitionReload records a definition reload.
func (m *Metrics) RecordDefinitionReload(status string) {
	if m == nil {
		return
	}
	m.DefinitionReloadTotal.WithLabelValues(status).Inc()
}

// SetDefinitionsLoaded sets the number of loaded definition files.
func (m *Metrics) SetDefinitionsLoaded(count float64) {
	if m == nil {
		return
	}
	m.DefinitionsLoaded.Set(count)
}

// RecordSearch records a protocol search.
func (m *Metrics) RecordSearch(duration time.Duration) {
	if m == nil {
		return
	}
	m.SearchDuration.Observe(duration.Seconds())
}

// RecordSearchIndexError records a failed index write.
func (m *Metrics) RecordSearchIndexError() {
	if m == nil {
		return
	}
	m.SearchIndexErrors.Inc()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := newResponseRecorder(w)

		next.ServeHTTP(sw, r)

		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, routePattern(r), sw.status, time.Since(start), reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	pattern = strings.ReplaceAll(pattern, "/*/", "/")
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// responseRecorder captures the status code and body size of a response
// for the metrics and tracing middleware.
type responseRecorder struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (w *responseRecorder) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseRecorder) Write(b []byte) (int, error) {
	w.written = true
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
