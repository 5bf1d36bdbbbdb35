package admin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/auditdesk/auditdesk/internal/domain/schedule"
)

func TestRuleHandlers_CRUD(t *testing.T) {
	env := newTestEnv(t)

	// Create.
	rec := env.do(t, http.MethodPost, "/admin/api/rules/component", "", "", map[string]interface{}{
		"name":       "Reports after hours",
		"component":  "reports",
		"scope":      "windowed",
		"start_time": "22:00",
		"end_time":   "06:00",
		"timezone":   "Asia/Jakarta",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d (body %s)", rec.Code, rec.Body.String())
	}
	var created schedule.AccessRule
	decodeJSON(t, rec, &created)
	if created.ID == "" || !created.Enabled || created.Kind != schedule.KindComponent {
		t.Fatalf("unexpected created rule %+v", created)
	}
	if loc := rec.Header().Get("Location"); loc != "/admin/api/rules/component/"+created.ID {
		t.Errorf("Location = %q", loc)
	}

	// Get.
	rec = env.do(t, http.MethodGet, "/admin/api/rules/component/"+created.ID, "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	// Wrong kind is not found.
	rec = env.do(t, http.MethodGet, "/admin/api/rules/global/"+created.ID, "", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get under wrong kind status = %d, want 404", rec.Code)
	}

	// Update.
	rec = env.do(t, http.MethodPut, "/admin/api/rules/component/"+created.ID, "", "", map[string]interface{}{
		"name":      "Reports always",
		"component": "reports",
		"scope":     "always",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d (body %s)", rec.Code, rec.Body.String())
	}
	var updated schedule.AccessRule
	decodeJSON(t, rec, &updated)
	if updated.Scope != schedule.ScopeAlways || updated.StartTime != "" {
		t.Errorf("unexpected updated rule %+v", updated)
	}

	// Toggle.
	rec = env.do(t, http.MethodPost, "/admin/api/rules/component/"+created.ID+"/toggle", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle status = %d", rec.Code)
	}
	var toggled schedule.AccessRule
	decodeJSON(t, rec, &toggled)
	if toggled.Enabled {
		t.Error("expected rule disabled after toggle")
	}

	// Delete.
	rec = env.do(t, http.MethodDelete, "/admin/api/rules/component/"+created.ID, "", "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodDelete, "/admin/api/rules/component/"+created.ID, "", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}

	appState, err := env.state.Load()
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if len(appState.Rules) != 0 {
		t.Errorf("state still holds %d rules", len(appState.Rules))
	}
}

func TestRuleHandlers_CreateValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name       string
		path       string
		body       interface{}
		wantStatus int
	}{
		{
			name:       "bad kind",
			path:       "/admin/api/rules/team",
			body:       map[string]interface{}{"name": "x", "scope": "always"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown field",
			path:       "/admin/api/rules/global",
			body:       map[string]interface{}{"name": "x", "scope": "always", "priority": 3},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad time",
			path:       "/admin/api/rules/global",
			body:       map[string]interface{}{"name": "x", "scope": "windowed", "start_time": "9", "end_time": "17:00"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown zone",
			path:       "/admin/api/rules/global",
			body:       map[string]interface{}{"name": "x", "scope": "always", "timezone": "Nowhere/City"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "duplicate id",
			path:       "/admin/api/rules/global",
			body:       map[string]interface{}{"id": "existing", "name": "x", "scope": "always"},
			wantStatus: http.StatusConflict,
		},
	}

	addRule(env, &schedule.AccessRule{ID: "existing", Name: "existing", Kind: schedule.KindGlobal, Enabled: true, Scope: schedule.ScopeAlways})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.path, "", "", tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestRuleHandlers_ListETag(t *testing.T) {
	env := newTestEnv(t)
	addRule(env, &schedule.AccessRule{ID: "g1", Name: "g1", Kind: schedule.KindGlobal, Enabled: true, Scope: schedule.ScopeAlways})

	rec := env.do(t, http.MethodGet, "/admin/api/rules/global", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var rules []schedule.AccessRule
	etag := rec.Header().Get("ETag")
	decodeJSON(t, rec, &rules)
	if len(rules) != 1 || etag == "" {
		t.Fatalf("rules = %v, etag = %q", rules, etag)
	}

	r2 := listIfNoneMatch(env, etag)
	if r2.Code != http.StatusNotModified {
		t.Errorf("conditional list status = %d, want 304", r2.Code)
	}

	if _, err := env.api.ruleAdminService.Toggle(context.Background(), schedule.KindGlobal, "g1"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	r3 := listIfNoneMatch(env, etag)
	if r3.Code != http.StatusOK {
		t.Errorf("list after change status = %d, want 200", r3.Code)
	}

	rec = env.do(t, http.MethodGet, "/admin/api/rules/component", "", "", nil)
	if body := rec.Body.String(); body != "[]\n" {
		t.Errorf("empty list body = %q, want []", body)
	}
}

func listIfNoneMatch(env *testEnv, etag string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/admin/api/rules/global", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	req.Header.Set("If-None-Match", etag)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}
