package admin

import (
	"net/http"
	"testing"

	"github.com/auditdesk/auditdesk/internal/adapter/outbound/xlsx"
	"github.com/auditdesk/auditdesk/internal/domain/schedule"
)

func TestHandleExportRules(t *testing.T) {
	env := newTestEnv(t)
	addRule(env, &schedule.AccessRule{
		ID: "office", Name: "Office", Kind: schedule.KindGlobal, Enabled: true,
		Scope: schedule.ScopeWindowed, StartTime: "09:00", EndTime: "17:00", Timezone: "UTC",
		AllowedDays: []string{"monday", "tuesday"},
	})
	addRule(env, &schedule.AccessRule{
		ID: "reports", Name: "Reports", Kind: schedule.KindComponent, Component: "reports",
		Scope: schedule.ScopeAlways,
	})

	rec := env.do(t, http.MethodGet, "/admin/api/rules/export.xlsx", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="access-rules-20240101.xlsx"` {
		t.Errorf("Content-Disposition = %q", cd)
	}

	rules, err := xlsx.Import(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("imported %d rules, want 2", len(rules))
	}
	byID := map[string]schedule.AccessRule{}
	for _, r := range rules {
		byID[r.ID] = r
	}
	if got := byID["office"]; got.Kind != schedule.KindGlobal || len(got.AllowedDays) != 2 || !got.Enabled {
		t.Errorf("office rule = %+v", got)
	}
	if got := byID["reports"]; got.Kind != schedule.KindComponent || got.Component != "reports" || got.Enabled {
		t.Errorf("reports rule = %+v", got)
	}
}

func TestHandleExportRules_ProtectParam(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/admin/api/rules/export.xlsx?protect=false", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("protect=false status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/admin/api/rules/export.xlsx?protect=maybe", "", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("protect=maybe status = %d, want 400", rec.Code)
	}
}

func TestHandleExportRules_RequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/admin/api/rules/export.xlsx", remoteAddr, guardKey, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}
