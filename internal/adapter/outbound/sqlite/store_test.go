package sqlite

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/auditdesk/auditdesk/internal/domain/schedule"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "rules.db"), testLogger())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testRule(id string, kind schedule.Kind, component string, enabled bool, age time.Duration) *schedule.AccessRule {
	return &schedule.AccessRule{
		ID:          id,
		Name:        "rule " + id,
		Kind:        kind,
		Component:   component,
		Enabled:     enabled,
		Scope:       schedule.ScopeWindowed,
		StartTime:   "22:00",
		EndTime:     "06:00",
		Timezone:    "Asia/Jakarta",
		AllowedDays: []string{"monday", "tuesday"},
		CreatedAt:   base.Add(-age),
		UpdatedAt:   base,
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	want := testRule("g1", schedule.KindGlobal, "", true, 0)
	want.DisplayName = "Night shift"
	want.Condition = `weekday != "sunday"`
	if err := s.SaveRule(ctx, want); err != nil {
		t.Fatalf("SaveRule() error: %v", err)
	}

	got, err := s.GetRule(ctx, schedule.KindGlobal, "g1")
	if err != nil {
		t.Fatalf("GetRule() error: %v", err)
	}
	if got.Kind != schedule.KindGlobal || got.Scope != schedule.ScopeWindowed {
		t.Errorf("kind/scope = %s/%s", got.Kind, got.Scope)
	}
	if got.DisplayName != "Night shift" || got.Condition != want.Condition || got.Timezone != "Asia/Jakarta" {
		t.Errorf("fields not round-tripped: %+v", got)
	}
	if len(got.AllowedDays) != 2 || got.AllowedDays[0] != "monday" {
		t.Errorf("AllowedDays = %v", got.AllowedDays)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
	}

	if _, err := s.GetRule(ctx, schedule.KindComponent, "g1"); !errors.Is(err, schedule.ErrRuleNotFound) {
		t.Errorf("GetRule(wrong kind) error = %v, want ErrRuleNotFound", err)
	}
}

func TestStore_Upsert(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	r := testRule("g1", schedule.KindGlobal, "", true, 0)
	if err := s.SaveRule(ctx, r); err != nil {
		t.Fatalf("SaveRule() error: %v", err)
	}
	r.Enabled = false
	r.AllowedDays = nil
	if err := s.SaveRule(ctx, r); err != nil {
		t.Fatalf("SaveRule(update) error: %v", err)
	}

	got, err := s.GetRule(ctx, schedule.KindGlobal, "g1")
	if err != nil {
		t.Fatalf("GetRule() error: %v", err)
	}
	if got.Enabled || got.AllowedDays != nil {
		t.Errorf("update not applied: %+v", got)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestStore_ListEnabledRules(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for _, r := range []*schedule.AccessRule{
		testRule("g-old", schedule.KindGlobal, "", true, 2*time.Hour),
		testRule("g-new", schedule.KindGlobal, "", true, time.Hour),
		testRule("g-off", schedule.KindGlobal, "", false, 0),
		testRule("c-rep", schedule.KindComponent, "Reports", true, 0),
		testRule("c-let", schedule.KindComponent, "letters", true, 0),
	} {
		if err := s.SaveRule(ctx, r); err != nil {
			t.Fatalf("SaveRule(%s) error: %v", r.ID, err)
		}
	}

	global, err := s.ListEnabledRules(ctx, schedule.KindGlobal, "")
	if err != nil {
		t.Fatalf("ListEnabledRules() error: %v", err)
	}
	if len(global) != 2 || global[0].ID != "g-new" || global[1].ID != "g-old" {
		t.Errorf("global rules = %+v, want [g-new g-old]", global)
	}

	comp, err := s.ListEnabledRules(ctx, schedule.KindComponent, "reports")
	if err != nil {
		t.Fatalf("ListEnabledRules() error: %v", err)
	}
	if len(comp) != 1 || comp[0].ID != "c-rep" || comp[0].Kind != schedule.KindComponent {
		t.Errorf("component rules = %+v, want [c-rep]", comp)
	}

	all, err := s.ListRules(ctx, schedule.KindGlobal)
	if err != nil {
		t.Fatalf("ListRules() error: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListRules() returned %d rules, want 3", len(all))
	}
}

func TestStore_DuplicateAcrossKinds(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.SaveRule(ctx, testRule("x", schedule.KindGlobal, "", true, 0)); err != nil {
		t.Fatalf("SaveRule() error: %v", err)
	}
	err := s.SaveRule(ctx, testRule("x", schedule.KindComponent, "reports", true, 0))
	if !errors.Is(err, schedule.ErrDuplicateRule) {
		t.Errorf("SaveRule(dup) error = %v, want ErrDuplicateRule", err)
	}
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.SaveRule(ctx, testRule("c1", schedule.KindComponent, "reports", true, 0)); err != nil {
		t.Fatalf("SaveRule() error: %v", err)
	}
	if err := s.DeleteRule(ctx, schedule.KindComponent, "c1"); err != nil {
		t.Fatalf("DeleteRule() error: %v", err)
	}
	if err := s.DeleteRule(ctx, schedule.KindComponent, "c1"); !errors.Is(err, schedule.ErrRuleNotFound) {
		t.Errorf("second DeleteRule() error = %v, want ErrRuleNotFound", err)
	}
}

func TestStore_ClosedDatabaseErrors(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_ = s.Close()

	if _, err := s.ListEnabledRules(ctx, schedule.KindGlobal, ""); err == nil {
		t.Error("expected error from closed database")
	}
}

func TestStore_UnknownKind(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.ListRules(context.Background(), schedule.Kind("weekly")); err == nil {
		t.Error("expected error for unknown kind")
	}
}
