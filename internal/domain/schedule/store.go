package schedule

import (
	"context"
	"sort"
)

// Repository is the read side consumed by the evaluator.
type Repository interface {
	// ListEnabledRules returns enabled rules of kind, newest first by
	// CreatedAt. component filters component rules and is ignored for
	// global rules.
	ListEnabledRules(ctx context.Context, kind Kind, component string) ([]AccessRule, error)
}

// RuleStore persists rules for administration.
type RuleStore interface {
	Repository

	// ListRules returns all rules of kind, enabled or not, newest first.
	ListRules(ctx context.Context, kind Kind) ([]AccessRule, error)

	// GetRule returns ErrRuleNotFound when id is unknown for kind.
	GetRule(ctx context.Context, kind Kind, id string) (*AccessRule, error)

	// SaveRule creates or replaces the rule with the same ID.
	SaveRule(ctx context.Context, rule *AccessRule) error

	// DeleteRule returns ErrRuleNotFound when id is unknown for kind.
	DeleteRule(ctx context.Context, kind Kind, id string) error
}

// SortNewestFirst orders rules by CreatedAt descending, breaking ties by ID
// so that ordering is stable across stores.
func SortNewestFirst(rules []AccessRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.After(rules[j].CreatedAt)
		}
		return rules[i].ID > rules[j].ID
	})
}
