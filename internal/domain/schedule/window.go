package schedule

import (
	"errors"
	"fmt"
	"time"
)

// Reasons reported to callers.
const (
	ReasonAlwaysAvailable = "always available"
	ReasonNoRules         = "no rules configured"
	ReasonNoApplicable    = "no applicable rules"
	ReasonUnverified      = "unable to verify access schedule"
	ReasonWithinWindow    = "within access window"
)

// ConditionInput is the context a rule condition is evaluated against.
type ConditionInput struct {
	Kind        string
	Component   string
	Weekday     string
	MinuteOfDay int
	RequestTime time.Time
	Timezone    string
}

// ConditionEvaluator compiles and runs per-rule condition expressions.
type ConditionEvaluator interface {
	Validate(expr string) error
	Matches(expr string, in ConditionInput) (bool, error)
}

// Options control rule compilation.
type Options struct {
	// DefaultZone is used for rules without a timezone. Nil means UTC.
	DefaultZone *time.Location
	// Policies holds per-kind day semantics.
	Policies Policies
	// Conditions evaluates rule conditions. Rules with a condition are
	// reported as invalid when nil.
	Conditions ConditionEvaluator
	// Component is the component being checked, exposed to conditions.
	Component string
}

// Verdict is the outcome of evaluating a single rule.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// CompiledRule is an AccessRule with its times, zone and days parsed.
type CompiledRule struct {
	Rule     AccessRule
	Location *time.Location
	Start    int
	End      int

	policy    KindPolicy
	days      [7]bool
	component string
	cond      ConditionEvaluator
}

// Compile validates rule and parses it for evaluation.
func Compile(rule AccessRule, opts Options) (*CompiledRule, error) {
	c := &CompiledRule{
		Rule:      rule,
		Location:  opts.DefaultZone,
		policy:    opts.Policies.For(rule.Kind),
		component: opts.Component,
		cond:      opts.Conditions,
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.component == "" {
		c.component = rule.Component
	}
	fail := func(field string, err error) (*CompiledRule, error) {
		return nil, &ConfigError{RuleID: rule.ID, RuleName: rule.Label(), Field: field, Err: err}
	}

	if rule.Timezone != "" {
		loc, err := LoadZone(rule.Timezone)
		if err != nil {
			return fail("timezone", err)
		}
		c.Location = loc
	}

	switch rule.Scope {
	case ScopeAlways:
	case ScopeWindowed:
		start, err := ParseClockTime(rule.StartTime)
		if err != nil {
			return fail("start_time", err)
		}
		end, err := ParseClockTime(rule.EndTime)
		if err != nil {
			return fail("end_time", err)
		}
		c.Start, c.End = start, end
		if c.policy.EvaluateDays {
			for _, d := range rule.AllowedDays {
				wd, err := ParseWeekday(d)
				if err != nil {
					return fail("allowed_days", err)
				}
				c.days[wd] = true
			}
			if len(rule.AllowedDays) == 0 && c.policy.EmptyMeansEveryDay {
				c.days = [7]bool{true, true, true, true, true, true, true}
			}
		}
	default:
		return fail("scope", fmt.Errorf("unknown scope %q", rule.Scope))
	}

	if rule.Condition != "" {
		if c.cond == nil {
			return fail("condition", errors.New("conditions are not supported"))
		}
		if err := c.cond.Validate(rule.Condition); err != nil {
			return fail("condition", err)
		}
	}
	return c, nil
}

// Always reports whether the rule grants access around the clock.
func (c *CompiledRule) Always() bool { return c.Rule.Scope == ScopeAlways }

// Wraps reports whether the window crosses midnight.
func (c *CompiledRule) Wraps() bool { return c.Start > c.End }

// DayAllowed reports whether the rule admits weekday d.
func (c *CompiledRule) DayAllowed(d time.Weekday) bool {
	if !c.policy.EvaluateDays {
		return true
	}
	return c.days[d]
}

// Local projects t onto the rule's zone.
func (c *CompiledRule) Local(t time.Time) LocalTime {
	return Normalize(c.Location, t)
}

// Evaluate decides whether lt falls inside the rule. Both window
// endpoints are inclusive.
func (c *CompiledRule) Evaluate(lt LocalTime) Verdict {
	if c.Always() {
		return Verdict{Allowed: true, Reason: ReasonAlwaysAvailable}
	}
	if wd, err := ParseWeekday(lt.Weekday); err != nil || !c.DayAllowed(wd) {
		return Verdict{Reason: "access is not available on " + lt.Weekday}
	}
	var in bool
	if c.Wraps() {
		in = lt.Minutes >= c.Start || lt.Minutes <= c.End
	} else {
		in = c.Start <= lt.Minutes && lt.Minutes <= c.End
	}
	if in {
		return Verdict{Allowed: true, Reason: ReasonWithinWindow}
	}
	return Verdict{Reason: fmt.Sprintf("access is only available between %s and %s",
		FormatClock(c.Start), FormatClock(c.End))}
}

// Applies reports whether the rule's condition holds at t. Rules without a
// condition always apply.
func (c *CompiledRule) Applies(t time.Time) (bool, error) {
	if c.Rule.Condition == "" {
		return true, nil
	}
	lt := c.Local(t)
	ok, err := c.cond.Matches(c.Rule.Condition, ConditionInput{
		Kind:        string(c.Rule.Kind),
		Component:   c.component,
		Weekday:     lt.Weekday,
		MinuteOfDay: lt.Minutes,
		RequestTime: t,
		Timezone:    c.Location.String(),
	})
	if err != nil {
		return false, &ConfigError{RuleID: c.Rule.ID, RuleName: c.Rule.Label(), Field: "condition", Err: err}
	}
	return ok, nil
}

// EvaluateWindow compiles rule with the given policy and evaluates it at lt.
func EvaluateWindow(rule AccessRule, lt LocalTime, policy KindPolicy) (Verdict, error) {
	c, err := Compile(rule, Options{
		DefaultZone: lt.Instant.Location(),
		Policies:    Policies{rule.Kind: policy},
	})
	if err != nil {
		return Verdict{}, err
	}
	return c.Evaluate(lt), nil
}
