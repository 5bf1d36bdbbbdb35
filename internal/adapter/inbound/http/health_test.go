package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/auditdesk/auditdesk/internal/adapter/outbound/memory"
	"github.com/auditdesk/auditdesk/internal/domain/schedule"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type brokenStore struct{ *memory.MemoryRuleStore }

func (brokenStore) ListRules(context.Context, schedule.Kind) ([]schedule.AccessRule, error) {
	return nil, errors.New("connection refused")
}

func TestHealthChecker_Healthy(t *testing.T) {
	store := memory.NewRuleStore()
	store.AddRule(&schedule.AccessRule{ID: "g", Name: "g", Kind: schedule.KindGlobal, Scope: schedule.ScopeAlways})
	store.AddRule(&schedule.AccessRule{ID: "c", Name: "c", Kind: schedule.KindComponent, Component: "x", Scope: schedule.ScopeAlways})

	hc := NewHealthChecker(store, stubPinger{}, "test-version")
	health := hc.Check(context.Background())

	if health.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", health.Status)
	}
	if health.Version != "test-version" {
		t.Errorf("Version = %q, want test-version", health.Version)
	}
	if health.Checks["rule_store"] != "ok: 2 rules" {
		t.Errorf("rule_store = %q", health.Checks["rule_store"])
	}
	if health.Checks["database"] != "ok" {
		t.Errorf("database = %q", health.Checks["database"])
	}
	if health.Checks["goroutines"] == "" {
		t.Error("expected goroutines check")
	}
}

func TestHealthChecker_NilComponents(t *testing.T) {
	hc := NewHealthChecker(nil, nil, "")
	health := hc.Check(context.Background())

	if health.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", health.Status)
	}
	for _, name := range []string{"rule_store", "database"} {
		if health.Checks[name] != "not configured" {
			t.Errorf("%s = %q, want 'not configured'", name, health.Checks[name])
		}
	}
}

func TestHealthChecker_Unhealthy(t *testing.T) {
	tests := []struct {
		name  string
		store schedule.RuleStore
		db    Pinger
		check string
	}{
		{name: "database down", store: memory.NewRuleStore(), db: stubPinger{err: errors.New("disk I/O error")}, check: "database"},
		{name: "store failing", store: brokenStore{memory.NewRuleStore()}, check: "rule_store"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthChecker(tt.store, tt.db, "")

			rec := httptest.NewRecorder()
			hc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != http.StatusServiceUnavailable {
				t.Errorf("status = %d, want 503", rec.Code)
			}
			var resp HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != "unhealthy" {
				t.Errorf("Status = %q, want unhealthy", resp.Status)
			}
			if resp.Checks[tt.check] == "" || resp.Checks[tt.check][:6] != "error:" {
				t.Errorf("%s = %q, want error", tt.check, resp.Checks[tt.check])
			}
		})
	}
}

func TestHealthChecker_HandlerOK(t *testing.T) {
	hc := NewHealthChecker(memory.NewRuleStore(), nil, "1.0.0")

	rec := httptest.NewRecorder()
	hc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}
