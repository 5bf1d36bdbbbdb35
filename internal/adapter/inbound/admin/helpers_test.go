package admin

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/auditdesk/auditdesk/internal/adapter/outbound/memory"
	"github.com/auditdesk/auditdesk/internal/adapter/outbound/state"
	"github.com/auditdesk/auditdesk/internal/adapter/outbound/xlsx"
	"github.com/auditdesk/auditdesk/internal/domain/auth"
	"github.com/auditdesk/auditdesk/internal/domain/schedule"
	"github.com/auditdesk/auditdesk/internal/service"
)

const (
	adminKey = "ad_test_admin_key"
	guardKey = "ad_test_guard_key"
)

var testNow = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC) // a Monday

type testEnv struct {
	handler http.Handler
	api     *AdminAPIHandler
	store   *memory.MemoryRuleStore
	state   *state.FileStateStore
}

// newTestEnv builds the API over an in-memory store, a temporary state file
// and two keys: one admin and one guard.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	stateStore := state.NewFileStateStore(filepath.Join(t.TempDir(), "state.json"), logger)
	store := memory.NewRuleStore()
	clock := schedule.FixedClock{T: testNow}

	keys, err := auth.NewKeyRing([]auth.Key{
		{Name: "ops", Hash: "sha256:" + auth.HashKey(adminKey), Role: auth.RoleAdmin},
		{Name: "edge", Hash: "sha256:" + auth.HashKey(guardKey), Role: auth.RoleGuard},
	})
	if err != nil {
		t.Fatalf("NewKeyRing: %v", err)
	}

	access := service.NewAccessService(store, logger, service.WithClock(clock))
	ruleAdmin := service.NewRuleAdminService(store, logger,
		service.WithStateStore(stateStore),
		service.WithAdminClock(clock),
	)
	api := NewAdminAPIHandler(
		WithAccessService(access),
		WithRuleAdminService(ruleAdmin),
		WithKeyRing(keys),
		WithExportOptions(xlsx.ExportOptions{Protect: true}),
		WithAPILogger(logger),
	)
	api.now = func() time.Time { return testNow }

	return &testEnv{handler: api.Routes(), api: api, store: store, state: stateStore}
}

// do sends a request from addr ("" means loopback) with an optional
// bearer key and JSON body.
func (e *testEnv) do(t *testing.T, method, path, addr, key string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rdr)
	if addr == "" {
		addr = "127.0.0.1:40000"
	}
	req.RemoteAddr = addr
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body %q)", err, rec.Body.String())
	}
}

func addRule(e *testEnv, r *schedule.AccessRule) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = testNow.Add(-time.Hour)
	}
	e.store.AddRule(r)
}
