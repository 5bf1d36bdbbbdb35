package schedule

import "time"

// ProjectionLayout formats projected instants for display.
const ProjectionLayout = "Monday, Jan 2 2006 at 15:04 MST"

// maxDayOffset is the last day offset scanned. Offset 7 reaches the same
// weekday next week when today's window has already started.
const maxDayOffset = 7

// maxGapMinutes bounds the forward search past a start that falls in a
// daylight-saving gap.
const maxGapMinutes = 180

// Projection is the next time access opens.
type Projection struct {
	// Always is set when an enabled rule grants access around the clock.
	Always bool `json:"always"`
	// At is the earliest start instant, zero when no rule has one.
	At time.Time `json:"at,omitempty"`
	// NextTime is At rendered with ProjectionLayout in the rule's zone.
	NextTime string      `json:"next_time,omitempty"`
	Rule     *AccessRule `json:"rule,omitempty"`
	// RuleErrors lists rules skipped because they are invalid.
	RuleErrors []RuleError `json:"rule_errors,omitempty"`
}

// Found reports whether a start instant was projected.
func (p Projection) Found() bool { return !p.At.IsZero() }

// NextStart returns the first window start at or after now, scanning the
// rule's zone day by day. ok is false for always rules and rules with no
// matching day.
func (c *CompiledRule) NextStart(now time.Time) (time.Time, bool) {
	if c.Always() {
		return time.Time{}, false
	}
	local := now.In(c.Location)
	y, m, d := local.Date()
	for offset := 0; offset <= maxDayOffset; offset++ {
		candidate := time.Date(y, m, d+offset, c.Start/60, c.Start%60, 0, 0, c.Location)
		if !c.DayAllowed(candidate.Weekday()) {
			continue
		}
		candidate, ok := c.firstOpen(candidate)
		if !ok {
			continue
		}
		if candidate.Before(now) {
			continue
		}
		if ok, err := c.Applies(candidate); err != nil || !ok {
			continue
		}
		return candidate, true
	}
	return time.Time{}, false
}

// firstOpen returns t when it lands on the window start. Otherwise t was
// shifted by a daylight-saving gap and the first open minute after it is
// returned, if any.
func (c *CompiledRule) firstOpen(t time.Time) (time.Time, bool) {
	if c.Local(t).Minutes == c.Start {
		return t, true
	}
	for i := 1; i <= maxGapMinutes; i++ {
		next := t.Add(time.Duration(i) * time.Minute)
		if c.Evaluate(c.Local(next)).Allowed {
			return next, true
		}
	}
	return time.Time{}, false
}

// Project returns the soonest instant at which any enabled rule opens.
func Project(rules []AccessRule, now time.Time, opts Options) Projection {
	compiled, errs := CompileAll(rules, opts)
	p := ProjectCompiled(compiled, now)
	p.RuleErrors = errs
	return p
}

// ProjectCompiled is Project over already-compiled rules.
func ProjectCompiled(rules []*CompiledRule, now time.Time) Projection {
	var (
		best     time.Time
		bestRule *CompiledRule
	)
	for _, c := range rules {
		if c.Always() {
			if ok, err := c.Applies(now); err != nil || !ok {
				continue
			}
			rule := c.Rule.Clone()
			return Projection{Always: true, Rule: &rule, NextTime: ReasonAlwaysAvailable}
		}
		at, ok := c.NextStart(now)
		if !ok {
			continue
		}
		if bestRule == nil || at.Before(best) {
			best, bestRule = at, c
		}
	}
	if bestRule == nil {
		return Projection{}
	}
	rule := bestRule.Rule.Clone()
	return Projection{
		At:       best,
		NextTime: best.Format(ProjectionLayout),
		Rule:     &rule,
	}
}
