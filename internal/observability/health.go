package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Set at build time with -ldflags "-X".
var (
	Version = "dev"
	Commit  = "unknown"
)

// Readiness states reported by /readyz.
const (
	StatusReady    = "ready"
	StatusDegraded = "degraded"
	StatusNotReady = "not_ready"
)

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// ReadinessResponse is the readiness payload.
type ReadinessResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// CheckResult is the outcome of one probe. Optional probes are flagged so
// operators can tell degraded service from an outage.
type CheckResult struct {
	Status    string `json:"status"`
	Optional  bool   `json:"optional,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthChecker can verify its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

// HealthCheck calls f.
func (f HealthCheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// ReadinessChecks lists the probes behind /readyz.
//
// A failing Dependencies entry (postgres, redis) takes the portal out of
// rotation. A failing Optional entry (kafka behind the breaker, meilisearch)
// only marks it degraded: protocols are still served, events and search
// catch up later.
type ReadinessChecks struct {
	DefinitionsLoaded func() bool
	Dependencies      map[string]HealthChecker
	Optional          map[string]HealthChecker
}

const checkTimeout = 2 * time.Second

// HandleHealth serves the liveness probe.
func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeHealthJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: Version, Commit: Commit})
	}
}

// HandleReady serves the readiness probe. Probes run concurrently, each
// under its own timeout.
func HandleReady(checks ReadinessChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := probeAll(r.Context(), checks)
		status := readinessStatus(results)

		code := http.StatusOK
		if status == StatusNotReady {
			code = http.StatusServiceUnavailable
		}
		writeHealthJSON(w, code, ReadinessResponse{Status: status, Checks: results})
	}
}

func probeAll(ctx context.Context, checks ReadinessChecks) map[string]CheckResult {
	results := make(map[string]CheckResult, 1+len(checks.Dependencies)+len(checks.Optional))
	if checks.DefinitionsLoaded != nil && checks.DefinitionsLoaded() {
		results["definitions"] = CheckResult{Status: "ok"}
	} else {
		results["definitions"] = CheckResult{Status: "error", Error: "nenhuma definição de domínio carregada"}
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	launch := func(probes map[string]HealthChecker, optional bool) {
		for name, checker := range probes {
			if checker == nil {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				res := runCheck(ctx, checker)
				res.Optional = optional
				mu.Lock()
				results[name] = res
				mu.Unlock()
			}()
		}
	}
	launch(checks.Dependencies, false)
	launch(checks.Optional, true)
	wg.Wait()
	return results
}

func readinessStatus(results map[string]CheckResult) string {
	status := StatusReady
	for _, res := range results {
		if res.Status == "ok" {
			continue
		}
		if !res.Optional {
			return StatusNotReady
		}
		status = StatusDegraded
	}
	return status
}

func runCheck(parent context.Context, checker HealthChecker) CheckResult {
	ctx, cancel := context.WithTimeout(parent, checkTimeout)
	defer cancel()

	start := time.Now()
	err := checker.HealthCheck(ctx)
	res := CheckResult{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = "error"
		res.Error = err.Error()
	}
	return res
}

func writeHealthJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
