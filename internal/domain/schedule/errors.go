package schedule

import (
	"errors"
	"fmt"
)

var (
	// ErrRuleNotFound is returned when a rule ID does not exist in the store.
	ErrRuleNotFound = errors.New("rule not found")
	// ErrDuplicateRule is returned when saving a rule whose ID collides with a rule of another kind.
	ErrDuplicateRule = errors.New("rule id already used by another kind")
)

// ConfigError describes bad rule data: an unparseable time, an unknown zone,
// an unknown weekday or an invalid condition.
type ConfigError struct {
	RuleID   string
	RuleName string
	Field    string
	Err      error
}

func (e *ConfigError) Error() string {
	name := e.RuleName
	if name == "" {
		name = e.RuleID
	}
	return fmt.Sprintf("rule %q: %s: %v", name, e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// RuleError is the serializable form of a ConfigError attached to a Decision.
type RuleError struct {
	RuleID   string `json:"rule_id"`
	RuleName string `json:"rule_name"`
	Field    string `json:"field"`
	Message  string `json:"message"`
}

func ruleErrorFrom(err error) RuleError {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return RuleError{RuleID: ce.RuleID, RuleName: ce.RuleName, Field: ce.Field, Message: ce.Err.Error()}
	}
	return RuleError{Message: err.Error()}
}
