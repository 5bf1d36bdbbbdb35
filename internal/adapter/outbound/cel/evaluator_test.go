package cel

import (
	"strings"
	"testing"
	"time"

	"github.com/auditdesk/auditdesk/internal/domain/schedule"
)

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}
	return eval
}

func mondayNoon() schedule.ConditionInput {
	return schedule.ConditionInput{
		Kind:        "component",
		Component:   "reports-export",
		Weekday:     "monday",
		MinuteOfDay: 12 * 60,
		RequestTime: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		Timezone:    "UTC",
	}
}

func TestValidate(t *testing.T) {
	eval := newTestEvaluator(t)

	tests := []struct {
		name    string
		expr    string
		wantErr string
	}{
		{name: "simple", expr: `weekday == "monday"`},
		{name: "functions", expr: `glob("reports*", component) && in_window(minute_of_day, "09:00", "17:00")`},
		{name: "timestamp", expr: `request_time > timestamp("2023-01-01T00:00:00Z")`},
		{name: "empty", expr: "", wantErr: "empty"},
		{name: "syntax", expr: `this is not valid CEL !!!`, wantErr: "invalid CEL expression"},
		{name: "unknown variable", expr: `tool_name == "x"`, wantErr: "invalid CEL expression"},
		{name: "non bool", expr: `minute_of_day + 1`, wantErr: "must return bool"},
		{name: "too long", expr: strings.Repeat("a", maxExpressionLength+1), wantErr: "too long"},
		{name: "too deep", expr: strings.Repeat("(", 60) + "true" + strings.Repeat(")", 60), wantErr: "nesting too deep"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.Validate(tt.expr)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate(%q) error: %v", tt.expr, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate(%q) error = %v, want containing %q", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestMatches(t *testing.T) {
	eval := newTestEvaluator(t)

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{name: "weekday match", expr: `weekday == "monday"`, want: true},
		{name: "weekday set", expr: `weekday in ["saturday", "sunday"]`, want: false},
		{name: "glob component", expr: `glob("REPORTS-*", component)`, want: true},
		{name: "clock comparison", expr: `minute_of_day >= clock("12:00")`, want: true},
		{name: "lunch break excluded", expr: `!in_window(minute_of_day, "11:30", "13:00")`, want: false},
		{name: "wrapping window", expr: `in_window(minute_of_day, "22:00", "06:00")`, want: false},
		{name: "kind", expr: `kind == "component" && timezone == "UTC"`, want: true},
		{name: "strings ext", expr: `component.startsWith("reports")`, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eval.Matches(tt.expr, mondayNoon())
			if err != nil {
				t.Fatalf("Matches(%q) error: %v", tt.expr, err)
			}
			if got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestMatches_RuntimeError(t *testing.T) {
	eval := newTestEvaluator(t)

	_, err := eval.Matches(`minute_of_day > clock("noon")`, mondayNoon())
	if err == nil {
		t.Fatal("expected evaluation error for bad clock literal")
	}
}

func TestProgramCache(t *testing.T) {
	eval := newTestEvaluator(t)

	expr := `weekday == "monday"`
	for i := 0; i < 3; i++ {
		if _, err := eval.Matches(expr, mondayNoon()); err != nil {
			t.Fatalf("Matches() error: %v", err)
		}
	}
	eval.mu.RLock()
	n := len(eval.programs)
	eval.mu.RUnlock()
	if n != 1 {
		t.Errorf("expected 1 cached program, got %d", n)
	}
}

func TestConditionsInEvaluation(t *testing.T) {
	eval := newTestEvaluator(t)

	rule := schedule.AccessRule{
		ID:        "weekday-only",
		Kind:      schedule.KindComponent,
		Component: "reports-export",
		Enabled:   true,
		Scope:     schedule.ScopeAlways,
		Condition: `!(weekday in ["saturday", "sunday"])`,
	}
	opts := schedule.Options{Conditions: eval}

	monday := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if d := schedule.Evaluate([]schedule.AccessRule{rule}, monday, opts); d.MatchedRule == nil {
		t.Errorf("expected rule to match on monday, got %+v", d)
	}

	saturday := time.Date(2024, 1, 6, 12, 0, 0, 0, time.UTC)
	d := schedule.Evaluate([]schedule.AccessRule{rule}, saturday, opts)
	if d.MatchedRule != nil || d.Reason != schedule.ReasonNoApplicable {
		t.Errorf("expected rule to be skipped on saturday, got %+v", d)
	}
}
