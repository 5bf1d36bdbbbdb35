package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/auditdesk/auditdesk/internal/adapter/outbound/state"
	"github.com/auditdesk/auditdesk/internal/domain/schedule"
)

// ErrInvalidRule wraps every validation failure returned by RuleAdminService.
var ErrInvalidRule = errors.New("invalid rule")

// RuleAdminService provides CRUD operations on access rules with
// validation and, for the file-backed driver, persistence to state.json.
type RuleAdminService struct {
	store      schedule.RuleStore
	stateStore *state.FileStateStore
	opts       schedule.Options
	clock      schedule.Clock
	logger     *slog.Logger
	mu         sync.Mutex // serializes state writes
}

// AdminOption configures RuleAdminService.
type AdminOption func(*RuleAdminService)

// WithStateStore persists every mutation to the given state file.
func WithStateStore(st *state.FileStateStore) AdminOption {
	return func(s *RuleAdminService) {
		s.stateStore = st
	}
}

// WithRuleOptions sets the compile options used to validate rules.
func WithRuleOptions(opts schedule.Options) AdminOption {
	return func(s *RuleAdminService) {
		s.opts = opts
	}
}

// WithAdminClock sets the clock used for rule timestamps.
func WithAdminClock(c schedule.Clock) AdminOption {
	return func(s *RuleAdminService) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewRuleAdminService creates a new RuleAdminService.
func NewRuleAdminService(store schedule.RuleStore, logger *slog.Logger, opts ...AdminOption) *RuleAdminService {
	s := &RuleAdminService{
		store:  store,
		clock:  schedule.SystemClock{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns every rule of kind, newest first.
func (s *RuleAdminService) List(ctx context.Context, kind schedule.Kind) ([]schedule.AccessRule, error) {
	rules, err := s.store.ListRules(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("list %s rules: %w", kind, err)
	}
	return rules, nil
}

// All returns the rules of every kind, grouped by kind.
func (s *RuleAdminService) All(ctx context.Context) ([]schedule.AccessRule, error) {
	var out []schedule.AccessRule
	for _, k := range schedule.Kinds {
		rules, err := s.List(ctx, k)
		if err != nil {
			return nil, err
		}
		out = append(out, rules...)
	}
	return out, nil
}

// Get returns a single rule.
// Returns schedule.ErrRuleNotFound if it does not exist.
func (s *RuleAdminService) Get(ctx context.Context, kind schedule.Kind, id string) (*schedule.AccessRule, error) {
	r, err := s.store.GetRule(ctx, kind, id)
	if err != nil {
		if errors.Is(err, schedule.ErrRuleNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return r, nil
}

// Create validates and stores a new rule. A missing ID is generated and a
// zero CreatedAt is set to now, so imported rules keep their history.
func (s *RuleAdminService) Create(ctx context.Context, r *schedule.AccessRule) (*schedule.AccessRule, error) {
	rule := normalize(*r)
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	} else if _, err := s.store.GetRule(ctx, rule.Kind, rule.ID); err == nil {
		return nil, fmt.Errorf("%w: %s", schedule.ErrDuplicateRule, rule.ID)
	}

	now := s.clock.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	if err := s.Validate(rule); err != nil {
		return nil, err
	}
	if err := s.store.SaveRule(ctx, &rule); err != nil {
		return nil, fmt.Errorf("save rule: %w", err)
	}
	if err := s.persistState(ctx); err != nil {
		if delErr := s.store.DeleteRule(ctx, rule.Kind, rule.ID); delErr != nil {
			s.logger.Error("failed to roll back unpersisted rule", "id", rule.ID, "error", delErr)
		}
		return nil, fmt.Errorf("persist state: %w", err)
	}

	s.logger.Info("access rule created",
		"id", rule.ID,
		"kind", rule.Kind,
		"name", rule.Name,
		"component", rule.Component,
		"scope", rule.Scope,
	)
	return &rule, nil
}

// Update replaces the editable fields of an existing rule. ID, Kind and
// CreatedAt are preserved.
func (s *RuleAdminService) Update(ctx context.Context, kind schedule.Kind, id string, r *schedule.AccessRule) (*schedule.AccessRule, error) {
	existing, err := s.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	rule := normalize(*r)
	rule.ID = existing.ID
	rule.Kind = existing.Kind
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = s.clock.Now().UTC()

	if err := s.Validate(rule); err != nil {
		return nil, err
	}
	if err := s.store.SaveRule(ctx, &rule); err != nil {
		return nil, fmt.Errorf("save rule: %w", err)
	}
	if err := s.persistState(ctx); err != nil {
		if rbErr := s.store.SaveRule(ctx, existing); rbErr != nil {
			s.logger.Error("failed to roll back unpersisted rule", "id", rule.ID, "error", rbErr)
		}
		return nil, fmt.Errorf("persist state: %w", err)
	}

	s.logger.Info("access rule updated", "id", rule.ID, "kind", rule.Kind, "name", rule.Name)
	return &rule, nil
}

// SetEnabled switches a rule on or off.
func (s *RuleAdminService) SetEnabled(ctx context.Context, kind schedule.Kind, id string, enabled bool) (*schedule.AccessRule, error) {
	rule, err := s.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if rule.Enabled == enabled {
		return rule, nil
	}
	rule.Enabled = enabled
	rule.UpdatedAt = s.clock.Now().UTC()

	if err := s.store.SaveRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("save rule: %w", err)
	}
	if err := s.persistState(ctx); err != nil {
		return nil, fmt.Errorf("persist state: %w", err)
	}

	s.logger.Info("access rule toggled", "id", rule.ID, "kind", rule.Kind, "enabled", enabled)
	return rule, nil
}

// Toggle flips the enabled flag of a rule.
func (s *RuleAdminService) Toggle(ctx context.Context, kind schedule.Kind, id string) (*schedule.AccessRule, error) {
	rule, err := s.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	return s.SetEnabled(ctx, kind, id, !rule.Enabled)
}

// Delete removes a rule.
func (s *RuleAdminService) Delete(ctx context.Context, kind schedule.Kind, id string) error {
	if err := s.store.DeleteRule(ctx, kind, id); err != nil {
		if errors.Is(err, schedule.ErrRuleNotFound) {
			return err
		}
		return fmt.Errorf("delete rule: %w", err)
	}
	if err := s.persistState(ctx); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}

	s.logger.Info("access rule deleted", "id", id, "kind", kind)
	return nil
}

// Validate checks a rule before it is stored. Weekday names are checked
// even for kinds that do not evaluate them.
func (s *RuleAdminService) Validate(r schedule.AccessRule) error {
	if _, err := schedule.ParseKind(string(r.Kind)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	if r.Kind == schedule.KindComponent && strings.TrimSpace(r.Component) == "" {
		return fmt.Errorf("%w: component is required for %s rules", ErrInvalidRule, schedule.KindComponent)
	}
	if r.Kind == schedule.KindGlobal && r.Component != "" {
		return fmt.Errorf("%w: component is only valid for %s rules", ErrInvalidRule, schedule.KindComponent)
	}
	for _, d := range r.AllowedDays {
		if _, err := schedule.ParseWeekday(d); err != nil {
			return fmt.Errorf("%w: allowed_days: %v", ErrInvalidRule, err)
		}
	}
	if _, err := schedule.Compile(r, s.opts); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return nil
}

// Import creates every rule in rules. Existing IDs are replaced when
// replace is set and skipped otherwise. Every rule is validated before any
// is saved, so a bad rule leaves the store untouched. State is written once.
func (s *RuleAdminService) Import(ctx context.Context, rules []schedule.AccessRule, replace bool) (created, skipped int, err error) {
	pending := make([]schedule.AccessRule, 0, len(rules))
	for i := range rules {
		rule := normalize(rules[i])
		if rule.ID != "" {
			if _, err := s.store.GetRule(ctx, rule.Kind, rule.ID); err == nil && !replace {
				skipped++
				continue
			}
		} else {
			rule.ID = uuid.New().String()
		}
		now := s.clock.Now().UTC()
		if rule.CreatedAt.IsZero() {
			rule.CreatedAt = now
		}
		rule.UpdatedAt = now

		if err := s.Validate(rule); err != nil {
			return 0, 0, fmt.Errorf("rule %d (%s): %w", i+1, rule.Label(), err)
		}
		pending = append(pending, rule)
	}

	var saveErr error
	for i := range pending {
		if err := s.store.SaveRule(ctx, &pending[i]); err != nil {
			saveErr = fmt.Errorf("rule %s: save: %w", pending[i].Label(), err)
			break
		}
		created++
	}
	// Rules saved before a store failure are still served, so they are
	// persisted either way.
	if created > 0 {
		if err := s.persistState(ctx); err != nil {
			return created, skipped, fmt.Errorf("persist state: %w", err)
		}
	}
	if saveErr != nil {
		return created, skipped, saveErr
	}
	s.logger.Info("access rules imported", "created", created, "skipped", skipped)
	return created, skipped, nil
}

// Seed imports rules only when the store holds no rules at all.
func (s *RuleAdminService) Seed(ctx context.Context, rules []schedule.AccessRule) (int, error) {
	if len(rules) == 0 {
		return 0, nil
	}
	existing, err := s.All(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		s.logger.Debug("rule store not empty, skipping seed rules", "rules", len(existing))
		return 0, nil
	}
	created, _, err := s.Import(ctx, rules, false)
	return created, err
}

// LoadRulesFromState copies rule entries from state.json into the store.
// IDs already present (e.g. seeded from config) are left untouched.
// Invalid entries are logged and skipped.
func (s *RuleAdminService) LoadRulesFromState(ctx context.Context, appState *state.AppState) (int, error) {
	loaded := 0
	for _, entry := range appState.Rules {
		rule := entry.Rule()
		if _, err := s.store.GetRule(ctx, rule.Kind, rule.ID); err == nil {
			continue
		}
		if err := s.store.SaveRule(ctx, &rule); err != nil {
			s.logger.Error("failed to load rule from state", "id", rule.ID, "error", err)
			continue
		}
		if err := s.Validate(rule); err != nil {
			s.logger.Warn("loaded rule from state is invalid", "id", rule.ID, "error", err)
		}
		loaded++
	}
	if loaded > 0 {
		s.logger.Info("loaded rules from state", "rules", loaded)
	}
	return loaded, nil
}

// persistState writes every rule to state.json. It is a no-op without a
// state store.
func (s *RuleAdminService) persistState(ctx context.Context) error {
	if s.stateStore == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rules, err := s.All(ctx)
	if err != nil {
		return fmt.Errorf("list rules for persistence: %w", err)
	}
	entries := make([]state.RuleEntry, 0, len(rules))
	for _, r := range rules {
		entries = append(entries, state.EntryFromRule(r))
	}

	appState, err := s.stateStore.Load()
	if err != nil {
		return fmt.Errorf("load state for persistence: %w", err)
	}
	appState.Rules = entries

	if err := s.stateStore.Save(appState); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// normalize trims names and lowercases enumerations.
func normalize(r schedule.AccessRule) schedule.AccessRule {
	r = r.Clone()
	r.Name = strings.TrimSpace(r.Name)
	r.DisplayName = strings.TrimSpace(r.DisplayName)
	r.Component = strings.TrimSpace(r.Component)
	r.Kind = schedule.Kind(strings.ToLower(strings.TrimSpace(string(r.Kind))))
	r.Scope = schedule.Scope(strings.ToLower(strings.TrimSpace(string(r.Scope))))
	r.Timezone = strings.TrimSpace(r.Timezone)
	for i, d := range r.AllowedDays {
		r.AllowedDays[i] = strings.ToLower(strings.TrimSpace(d))
	}
	if r.Scope == schedule.ScopeAlways {
		r.StartTime, r.EndTime = "", ""
	}
	return r
}
