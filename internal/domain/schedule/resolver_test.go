package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubConditions matches conditions of the form "weekday:<name>".
type stubConditions struct{}

func (stubConditions) Validate(expr string) error {
	if len(expr) < len("weekday:") || expr[:len("weekday:")] != "weekday:" {
		return errors.New("unsupported expression")
	}
	return nil
}

func (stubConditions) Matches(expr string, in ConditionInput) (bool, error) {
	if expr == "weekday:explode" {
		return false, errors.New("boom")
	}
	return expr[len("weekday:"):] == in.Weekday, nil
}

var _ ConditionEvaluator = stubConditions{}

func always(id string, created time.Time) AccessRule {
	return AccessRule{ID: id, Name: id, Kind: KindGlobal, Enabled: true, Scope: ScopeAlways, CreatedAt: created}
}

func TestEvaluate_EmptyRulesFailOpen(t *testing.T) {
	t.Parallel()

	d := Evaluate(nil, at(1, 3, 0), Options{})
	assert.True(t, d.Allowed)
	assert.Equal(t, OutcomeAllowed, d.Outcome)
	assert.Contains(t, d.Reason, "no rules configured")
	assert.Nil(t, d.MatchedRule)
}

func TestEvaluate_DisabledRulesIgnored(t *testing.T) {
	t.Parallel()

	closed := windowed("closed", "09:00", "10:00", "monday")
	closed.Enabled = false
	d := Evaluate([]AccessRule{closed}, at(1, 20, 0), Options{})
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonNoRules, d.Reason)
}

func TestEvaluate_FirstAllowWins(t *testing.T) {
	t.Parallel()

	older := windowed("b", "09:00", "10:00", "monday")
	older.CreatedAt = at(1, 0, 0).Add(-48 * time.Hour)
	newer := always("a", at(1, 0, 0))
	rules := []AccessRule{newer, older}

	d := Evaluate(rules, at(1, 20, 0), Options{})
	require.True(t, d.Allowed)
	require.NotNil(t, d.MatchedRule)
	assert.Equal(t, "a", d.MatchedRule.ID)
	assert.Equal(t, OutcomeAllowed, d.Outcome)
}

func TestEvaluate_LaterRuleCanAllow(t *testing.T) {
	t.Parallel()

	rules := []AccessRule{
		windowed("morning", "06:00", "08:00"),
		windowed("evening", "18:00", "22:00"),
	}
	d := Evaluate(rules, at(1, 19, 0), Options{})
	require.True(t, d.Allowed)
	assert.Equal(t, "evening", d.MatchedRule.ID)
}

func TestEvaluate_DenialReasonFromFirstRule(t *testing.T) {
	t.Parallel()

	rules := []AccessRule{
		windowed("first", "06:00", "07:00"),
		// Closer to allowing, but the message still comes from the first rule.
		windowed("second", "20:30", "22:00"),
	}
	d := Evaluate(rules, at(1, 20, 0), Options{})
	assert.False(t, d.Allowed)
	assert.Equal(t, OutcomeDenied, d.Outcome)
	assert.Equal(t, "access is only available between 06:00 and 07:00", d.Reason)
	assert.Nil(t, d.MatchedRule)
}

func TestEvaluate_InvalidRulesReported(t *testing.T) {
	t.Parallel()

	bad := windowed("bad", "late", "07:00")
	bad.Name = "Broken window"
	good := windowed("good", "06:00", "07:00")

	d := Evaluate([]AccessRule{bad, good}, at(1, 6, 30), Options{})
	assert.True(t, d.Allowed)
	assert.Equal(t, OutcomeConfigError, d.Outcome)
	require.Len(t, d.RuleErrors, 1)
	assert.Equal(t, "bad", d.RuleErrors[0].RuleID)
	assert.Equal(t, "Broken window", d.RuleErrors[0].RuleName)
	assert.Equal(t, "start_time", d.RuleErrors[0].Field)
	assert.Equal(t, "good", d.MatchedRule.ID)

	d = Evaluate([]AccessRule{bad, good}, at(1, 12, 0), Options{})
	assert.False(t, d.Allowed)
	assert.Equal(t, OutcomeConfigError, d.Outcome)
}

func TestEvaluate_AllInvalidFailsOpen(t *testing.T) {
	t.Parallel()

	bad := windowed("bad", "09:00", "17:00")
	bad.Timezone = "Atlantis/Central"
	d := Evaluate([]AccessRule{bad}, at(1, 20, 0), Options{})
	assert.True(t, d.Allowed)
	assert.Equal(t, OutcomeConfigError, d.Outcome)
	assert.Equal(t, ReasonUnverified, d.Reason)
	require.Len(t, d.RuleErrors, 1)
	assert.Equal(t, "timezone", d.RuleErrors[0].Field)
}

func TestEvaluate_Conditions(t *testing.T) {
	t.Parallel()

	opts := Options{Conditions: stubConditions{}}
	mondays := always("mondays", at(1, 0, 0))
	mondays.Condition = "weekday:monday"
	fallback := windowed("fallback", "09:00", "10:00")

	t.Run("condition holds", func(t *testing.T) {
		t.Parallel()
		d := Evaluate([]AccessRule{mondays, fallback}, at(1, 20, 0), opts)
		require.True(t, d.Allowed)
		assert.Equal(t, "mondays", d.MatchedRule.ID)
	})

	t.Run("condition false skips rule", func(t *testing.T) {
		t.Parallel()
		d := Evaluate([]AccessRule{mondays, fallback}, at(2, 20, 0), opts)
		assert.False(t, d.Allowed)
		assert.Equal(t, "access is only available between 09:00 and 10:00", d.Reason)
	})

	t.Run("no applicable rules allows", func(t *testing.T) {
		t.Parallel()
		d := Evaluate([]AccessRule{mondays}, at(2, 20, 0), opts)
		assert.True(t, d.Allowed)
		assert.Equal(t, ReasonNoApplicable, d.Reason)
	})

	t.Run("runtime error is a rule error", func(t *testing.T) {
		t.Parallel()
		exploding := always("x", at(1, 0, 0))
		exploding.Condition = "weekday:explode"
		d := Evaluate([]AccessRule{exploding, fallback}, at(1, 9, 30), opts)
		assert.True(t, d.Allowed)
		assert.Equal(t, OutcomeConfigError, d.Outcome)
		require.Len(t, d.RuleErrors, 1)
		assert.Equal(t, "condition", d.RuleErrors[0].Field)
	})
}

func TestEvaluate_Deterministic(t *testing.T) {
	t.Parallel()

	rules := []AccessRule{
		windowed("night", "22:00", "06:00", "monday", "tuesday"),
		windowed("office", "09:00", "17:00", "monday"),
	}
	for h := 0; h < 24; h++ {
		now := at(1, h, 45)
		first := Evaluate(rules, now, Options{})
		second := Evaluate(rules, now, Options{})
		if diff := cmp.Diff(first, second); diff != "" {
			t.Fatalf("hour %d: decisions differ (-first +second):\n%s", h, diff)
		}
	}
}

func TestFailOpen(t *testing.T) {
	t.Parallel()

	now := at(1, 0, 0)
	d := FailOpen(errors.New("connection refused"), now)
	assert.True(t, d.Allowed)
	assert.Equal(t, OutcomeFailOpen, d.Outcome)
	assert.Equal(t, "unable to verify access schedule", d.Reason)
	assert.Equal(t, "connection refused", d.Cause)
	assert.Equal(t, now, d.EvaluatedAt)
}

func TestSortNewestFirst(t *testing.T) {
	t.Parallel()

	rules := []AccessRule{
		always("old", at(1, 0, 0)),
		always("new", at(3, 0, 0)),
		always("mid-b", at(2, 0, 0)),
		always("mid-a", at(2, 0, 0)),
	}
	SortNewestFirst(rules)
	ids := make([]string, len(rules))
	for i, r := range rules {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"new", "mid-b", "mid-a", "old"}, ids)
}
