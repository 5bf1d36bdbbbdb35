// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/auditdesk/auditdesk/internal/domain/schedule"
)

// MemoryRuleStore implements schedule.RuleStore with per-kind maps.
// Thread-safe for concurrent access. Rules are copied on the way in and out.
type MemoryRuleStore struct {
	rules map[schedule.Kind]map[string]*schedule.AccessRule // kind -> ID -> rule
	mu    sync.RWMutex
}

// NewRuleStore creates a new in-memory rule store.
func NewRuleStore() *MemoryRuleStore {
	return &MemoryRuleStore{
		rules: make(map[schedule.Kind]map[string]*schedule.AccessRule),
	}
}

// ListEnabledRules returns enabled rules of kind, newest first. For component
// rules only those guarding component are returned (case-insensitive).
func (s *MemoryRuleStore) ListEnabledRules(ctx context.Context, kind schedule.Kind, component string) ([]schedule.AccessRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []schedule.AccessRule
	for _, r := range s.rules[kind] {
		if !r.Enabled {
			continue
		}
		if kind == schedule.KindComponent && !strings.EqualFold(r.Component, component) {
			continue
		}
		result = append(result, r.Clone())
	}
	schedule.SortNewestFirst(result)
	return result, nil
}

// ListRules returns every rule of kind, newest first.
func (s *MemoryRuleStore) ListRules(ctx context.Context, kind schedule.Kind) ([]schedule.AccessRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]schedule.AccessRule, 0, len(s.rules[kind]))
	for _, r := range s.rules[kind] {
		result = append(result, r.Clone())
	}
	schedule.SortNewestFirst(result)
	return result, nil
}

// GetRule returns a rule by kind and ID.
// Returns schedule.ErrRuleNotFound if it doesn't exist.
func (s *MemoryRuleStore) GetRule(ctx context.Context, kind schedule.Kind, id string) (*schedule.AccessRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[kind][id]
	if !ok {
		return nil, schedule.ErrRuleNotFound
	}
	c := r.Clone()
	return &c, nil
}

// SaveRule creates or updates a rule.
func (s *MemoryRuleStore) SaveRule(ctx context.Context, r *schedule.AccessRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, byID := range s.rules {
		if _, ok := byID[r.ID]; ok && k != r.Kind {
			return schedule.ErrDuplicateRule
		}
	}
	s.put(r)
	return nil
}

// AddRule adds a rule (for testing/seeding).
func (s *MemoryRuleStore) AddRule(r *schedule.AccessRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(r)
}

func (s *MemoryRuleStore) put(r *schedule.AccessRule) {
	byID, ok := s.rules[r.Kind]
	if !ok {
		byID = make(map[string]*schedule.AccessRule)
		s.rules[r.Kind] = byID
	}
	c := r.Clone()
	byID[r.ID] = &c
}

// DeleteRule removes a rule by kind and ID.
// Returns schedule.ErrRuleNotFound if it doesn't exist.
func (s *MemoryRuleStore) DeleteRule(ctx context.Context, kind schedule.Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[kind][id]; !ok {
		return schedule.ErrRuleNotFound
	}
	delete(s.rules[kind], id)
	return nil
}

// Len returns the number of stored rules across kinds.
func (s *MemoryRuleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, byID := range s.rules {
		n += len(byID)
	}
	return n
}

// Compile-time interface verification.
var _ schedule.RuleStore = (*MemoryRuleStore)(nil)
