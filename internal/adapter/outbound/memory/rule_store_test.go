package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/auditdesk/auditdesk/internal/domain/schedule"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func rule(id string, kind schedule.Kind, component string, enabled bool, age time.Duration) *schedule.AccessRule {
	return &schedule.AccessRule{
		ID:        id,
		Name:      id,
		Kind:      kind,
		Component: component,
		Enabled:   enabled,
		Scope:     schedule.ScopeAlways,
		CreatedAt: base.Add(-age),
	}
}

func ids(rules []schedule.AccessRule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.ID
	}
	return out
}

func TestRuleStore_ListEnabledRules(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewRuleStore()
	store.AddRule(rule("g-old", schedule.KindGlobal, "", true, 2*time.Hour))
	store.AddRule(rule("g-new", schedule.KindGlobal, "", true, time.Hour))
	store.AddRule(rule("g-off", schedule.KindGlobal, "", false, 0))
	store.AddRule(rule("c-reports", schedule.KindComponent, "Reports", true, 0))
	store.AddRule(rule("c-letters", schedule.KindComponent, "letters", true, 0))

	tests := []struct {
		name      string
		kind      schedule.Kind
		component string
		want      []string
	}{
		{name: "global newest first without disabled", kind: schedule.KindGlobal, want: []string{"g-new", "g-old"}},
		{name: "component filtered case-insensitively", kind: schedule.KindComponent, component: "reports", want: []string{"c-reports"}},
		{name: "unknown component", kind: schedule.KindComponent, component: "charts", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := store.ListEnabledRules(ctx, tt.kind, tt.component)
			if err != nil {
				t.Fatalf("ListEnabledRules() error: %v", err)
			}
			gotIDs := ids(got)
			if len(gotIDs) != len(tt.want) {
				t.Fatalf("ListEnabledRules() = %v, want %v", gotIDs, tt.want)
			}
			for i := range gotIDs {
				if gotIDs[i] != tt.want[i] {
					t.Errorf("ListEnabledRules()[%d] = %q, want %q", i, gotIDs[i], tt.want[i])
				}
			}
		})
	}
}

func TestRuleStore_ListRulesIncludesDisabled(t *testing.T) {
	t.Parallel()

	store := NewRuleStore()
	store.AddRule(rule("on", schedule.KindGlobal, "", true, time.Hour))
	store.AddRule(rule("off", schedule.KindGlobal, "", false, 0))

	got, err := store.ListRules(context.Background(), schedule.KindGlobal)
	if err != nil {
		t.Fatalf("ListRules() error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "off" {
		t.Errorf("ListRules() = %v, want [off on]", ids(got))
	}
}

func TestRuleStore_GetSaveDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewRuleStore()

	if _, err := store.GetRule(ctx, schedule.KindGlobal, "missing"); !errors.Is(err, schedule.ErrRuleNotFound) {
		t.Errorf("GetRule(missing) error = %v, want ErrRuleNotFound", err)
	}

	r := rule("r1", schedule.KindGlobal, "", true, 0)
	r.AllowedDays = []string{"monday"}
	if err := store.SaveRule(ctx, r); err != nil {
		t.Fatalf("SaveRule() error: %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	r.AllowedDays[0] = "sunday"
	got, err := store.GetRule(ctx, schedule.KindGlobal, "r1")
	if err != nil {
		t.Fatalf("GetRule() error: %v", err)
	}
	if got.AllowedDays[0] != "monday" {
		t.Errorf("stored AllowedDays = %v, want [monday]", got.AllowedDays)
	}

	// Same ID under another kind is rejected.
	dup := rule("r1", schedule.KindComponent, "reports", true, 0)
	if err := store.SaveRule(ctx, dup); !errors.Is(err, schedule.ErrDuplicateRule) {
		t.Errorf("SaveRule(dup) error = %v, want ErrDuplicateRule", err)
	}

	if err := store.DeleteRule(ctx, schedule.KindComponent, "r1"); !errors.Is(err, schedule.ErrRuleNotFound) {
		t.Errorf("DeleteRule(wrong kind) error = %v, want ErrRuleNotFound", err)
	}
	if err := store.DeleteRule(ctx, schedule.KindGlobal, "r1"); err != nil {
		t.Fatalf("DeleteRule() error: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d after delete, want 0", store.Len())
	}
}

func TestRuleStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewRuleStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			r := rule(string(rune('a'+i%26))+"-rule", schedule.KindGlobal, "", true, time.Duration(i)*time.Minute)
			_ = store.SaveRule(ctx, r)
		}(i)
		go func() {
			defer wg.Done()
			_, _ = store.ListEnabledRules(ctx, schedule.KindGlobal, "")
		}()
	}
	wg.Wait()

	if store.Len() != 26 {
		t.Errorf("Len() = %d, want 26", store.Len())
	}
}
