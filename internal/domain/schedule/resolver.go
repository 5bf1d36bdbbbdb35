package schedule

import "time"

// Outcome tags how a Decision was reached.
type Outcome string

const (
	OutcomeAllowed     Outcome = "allowed"
	OutcomeDenied      Outcome = "denied"
	OutcomeFailOpen    Outcome = "fail_open"
	OutcomeConfigError Outcome = "config_error"
)

// Decision is the result of an access check. It is always populated, even
// when rules could not be fetched or parsed.
type Decision struct {
	Allowed     bool        `json:"allowed"`
	Outcome     Outcome     `json:"outcome"`
	Reason      string      `json:"reason"`
	MatchedRule *AccessRule `json:"matched_rule,omitempty"`
	RuleErrors  []RuleError `json:"rule_errors,omitempty"`
	// Cause carries the error text behind a fail-open decision.
	Cause       string    `json:"cause,omitempty"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// FailOpen builds the decision returned when rules cannot be verified.
func FailOpen(err error, at time.Time) Decision {
	d := Decision{
		Allowed:     true,
		Outcome:     OutcomeFailOpen,
		Reason:      ReasonUnverified,
		EvaluatedAt: at,
	}
	if err != nil {
		d.Cause = err.Error()
	}
	return d
}

// CompileAll compiles every enabled rule, collecting errors for invalid ones.
// Input order is preserved.
func CompileAll(rules []AccessRule, opts Options) ([]*CompiledRule, []RuleError) {
	var (
		compiled []*CompiledRule
		errs     []RuleError
	)
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		c, err := Compile(r, opts)
		if err != nil {
			errs = append(errs, ruleErrorFrom(err))
			continue
		}
		compiled = append(compiled, c)
	}
	return compiled, errs
}

// Resolve applies first-allow-wins over rules in order. When nothing allows,
// the denial reason comes from the first applicable rule in the list.
func Resolve(rules []*CompiledRule, at time.Time) Decision {
	d := Decision{EvaluatedAt: at}
	if len(rules) == 0 {
		d.Allowed = true
		d.Outcome = OutcomeAllowed
		d.Reason = ReasonNoRules
		return d
	}

	var first *Verdict
	for _, c := range rules {
		ok, err := c.Applies(at)
		if err != nil {
			d.RuleErrors = append(d.RuleErrors, ruleErrorFrom(err))
			continue
		}
		if !ok {
			continue
		}
		v := c.Evaluate(c.Local(at))
		if v.Allowed {
			rule := c.Rule.Clone()
			d.Allowed = true
			d.Outcome = OutcomeAllowed
			d.Reason = v.Reason
			d.MatchedRule = &rule
			return d
		}
		if first == nil {
			first = &v
		}
	}

	if first == nil {
		d.Allowed = true
		d.Outcome = OutcomeAllowed
		d.Reason = ReasonNoApplicable
		if len(d.RuleErrors) > 0 {
			d.Reason = ReasonUnverified
		}
		return d
	}
	d.Outcome = OutcomeDenied
	d.Reason = first.Reason
	return d
}

// Evaluate compiles rules and resolves them at instant at. Invalid rules
// are excluded and listed in RuleErrors, and the outcome becomes
// OutcomeConfigError. If every rule is invalid the decision fails open.
func Evaluate(rules []AccessRule, at time.Time, opts Options) Decision {
	enabled := 0
	for _, r := range rules {
		if r.Enabled {
			enabled++
		}
	}
	compiled, errs := CompileAll(rules, opts)
	if enabled > 0 && len(compiled) == 0 {
		d := FailOpen(nil, at)
		d.Outcome = OutcomeConfigError
		d.RuleErrors = errs
		return d
	}

	d := Resolve(compiled, at)
	if len(errs) > 0 {
		d.RuleErrors = append(errs, d.RuleErrors...)
	}
	if len(d.RuleErrors) > 0 {
		d.Outcome = OutcomeConfigError
	}
	return d
}
