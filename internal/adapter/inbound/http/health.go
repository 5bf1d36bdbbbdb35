package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/auditdesk/auditdesk/internal/domain/schedule"
)

// healthTimeout bounds each component probe.
const healthTimeout = 2 * time.Second

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`            // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`            // Component check results
	Version string            `json:"version,omitempty"` // Optional version info
}

// Pinger is implemented by stores backed by a database connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker verifies component health.
type HealthChecker struct {
	rules   schedule.RuleStore
	db      Pinger
	version string
}

// NewHealthChecker creates a HealthChecker with optional components.
// Pass nil for components that aren't available.
func NewHealthChecker(rules schedule.RuleStore, db Pinger, version string) *HealthChecker {
	return &HealthChecker{rules: rules, db: db, version: version}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check(ctx context.Context) HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.db != nil {
		pctx, cancel := context.WithTimeout(ctx, healthTimeout)
		err := h.db.Ping(pctx)
		cancel()
		if err != nil {
			checks["database"] = "error: " + err.Error()
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "not configured"
	}

	if h.rules != nil {
		total := 0
		var failed error
		for _, kind := range schedule.Kinds {
			lctx, cancel := context.WithTimeout(ctx, healthTimeout)
			rules, err := h.rules.ListRules(lctx, kind)
			cancel()
			if err != nil {
				failed = err
				break
			}
			total += len(rules)
		}
		if failed != nil {
			checks["rule_store"] = "error: " + failed.Error()
			healthy = false
		} else {
			checks["rule_store"] = fmt.Sprintf("ok: %d rules", total)
		}
	} else {
		checks["rule_store"] = "not configured"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}
