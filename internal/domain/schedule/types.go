// Package schedule contains domain types for time-windowed access rules.
//
// Two rule kinds share one type: global data access schedules, which gate the
// whole dashboard, and component access controls, which gate a single feature.
// They differ only in how weekday restrictions are treated (see KindPolicy).
package schedule

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies which family of rules a rule belongs to.
type Kind string

const (
	// KindGlobal is a data access schedule that applies to the whole dashboard.
	KindGlobal Kind = "global"
	// KindComponent is an access control scoped to one named component.
	KindComponent Kind = "component"
)

// Kinds lists every known kind in display order.
var Kinds = []Kind{KindGlobal, KindComponent}

// ParseKind converts a string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindGlobal:
		return KindGlobal, nil
	case KindComponent:
		return KindComponent, nil
	}
	return "", fmt.Errorf("unknown rule kind %q", s)
}

// Scope controls whether a rule is time-windowed.
type Scope string

const (
	// ScopeAlways grants access around the clock.
	ScopeAlways Scope = "always"
	// ScopeWindowed grants access only inside [StartTime, EndTime].
	ScopeWindowed Scope = "windowed"
)

// AccessRule is a named, enabled/disabled, time-windowed or always-on access policy.
type AccessRule struct {
	// ID is the opaque identifier of the rule.
	ID string `json:"id" yaml:"id,omitempty"`
	// Name is the administrative name.
	Name string `json:"name" yaml:"name"`
	// DisplayName is the label shown to dashboard users. Falls back to Name.
	DisplayName string `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	// Kind is the rule family.
	Kind Kind `json:"kind" yaml:"kind"`
	// Component is the guarded component name. Only meaningful for KindComponent.
	Component string `json:"component,omitempty" yaml:"component,omitempty"`
	// Enabled rules take part in evaluation; disabled rules are ignored entirely.
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Scope is ScopeAlways or ScopeWindowed.
	Scope Scope `json:"scope" yaml:"scope"`
	// StartTime is the window start, "HH:MM" or "HH:MM:SS" local wall clock.
	StartTime string `json:"start_time,omitempty" yaml:"start_time,omitempty"`
	// EndTime is the window end, inclusive. May be earlier than StartTime
	// for windows that cross midnight.
	EndTime string `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	// Timezone is the IANA zone used to localize the check instant.
	Timezone string `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	// AllowedDays holds lowercase weekday names, e.g. "monday".
	AllowedDays []string `json:"allowed_days,omitempty" yaml:"allowed_days,omitempty"`
	// Condition is an optional CEL expression that must hold for the rule to apply.
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
	// CreatedAt orders rules: the newest rule is tried first.
	CreatedAt time.Time `json:"created_at" yaml:"created_at,omitempty"`
	// UpdatedAt is when the rule was last modified.
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at,omitempty"`
}

// Label returns the most human-friendly name available for the rule.
func (r AccessRule) Label() string {
	switch {
	case r.DisplayName != "":
		return r.DisplayName
	case r.Name != "":
		return r.Name
	}
	return r.ID
}

// Clone returns a copy that shares no slices with r.
func (r AccessRule) Clone() AccessRule {
	c := r
	if r.AllowedDays != nil {
		c.AllowedDays = append([]string(nil), r.AllowedDays...)
	}
	return c
}

// KindPolicy captures the per-kind differences between rule families.
type KindPolicy struct {
	// EvaluateDays enables the AllowedDays check. When false the rule is
	// day-independent and AllowedDays is ignored.
	EvaluateDays bool `json:"evaluate_days"`
	// EmptyMeansEveryDay treats an empty AllowedDays set as all seven days.
	// When false an empty set matches no day.
	EmptyMeansEveryDay bool `json:"empty_means_every_day"`
}

// DefaultKindPolicy returns the observed behavior for each kind: global
// schedules check days and default to every day, component controls have no
// day concept.
func DefaultKindPolicy(k Kind) KindPolicy {
	if k == KindComponent {
		return KindPolicy{EvaluateDays: false, EmptyMeansEveryDay: true}
	}
	return KindPolicy{EvaluateDays: true, EmptyMeansEveryDay: true}
}

// Policies maps kinds to their KindPolicy.
type Policies map[Kind]KindPolicy

// For returns the policy for k, or DefaultKindPolicy(k) when unset.
func (p Policies) For(k Kind) KindPolicy {
	if kp, ok := p[k]; ok {
		return kp
	}
	return DefaultKindPolicy(k)
}

// Target names what an access check is for.
type Target struct {
	Kind      Kind   `json:"kind"`
	Component string `json:"component,omitempty"`
}

// Validate reports whether the target can be looked up.
func (t Target) Validate() error {
	switch t.Kind {
	case KindGlobal:
		return nil
	case KindComponent:
		if strings.TrimSpace(t.Component) == "" {
			return fmt.Errorf("component name is required for %s checks", KindComponent)
		}
		return nil
	}
	return fmt.Errorf("unknown rule kind %q", t.Kind)
}

// String returns "global" or "component:<name>".
func (t Target) String() string {
	if t.Kind == KindComponent {
		return string(t.Kind) + ":" + t.Component
	}
	return string(t.Kind)
}
