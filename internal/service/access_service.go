// Package service contains application services.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/auditdesk/auditdesk/internal/domain/schedule"
)

// DefaultFetchTimeout bounds a single repository fetch.
const DefaultFetchTimeout = 5 * time.Second

// ErrFetchTimeout is reported as the cause when the repository does not
// answer within the fetch timeout.
var ErrFetchTimeout = errors.New("schedule repository timed out")

// DecisionRecorder receives every decision produced by AccessService.
type DecisionRecorder interface {
	RecordDecision(target schedule.Target, d schedule.Decision)
}

// NextAccess is the answer to "when does access open next".
type NextAccess struct {
	// NextTime is the human-readable form of At, or "always available".
	NextTime string               `json:"next_time,omitempty"`
	At       time.Time            `json:"at,omitempty"`
	Rule     *schedule.AccessRule `json:"rule,omitempty"`
	Always   bool                 `json:"always"`
	// RuleErrors lists rules skipped because they are invalid.
	RuleErrors []schedule.RuleError `json:"rule_errors,omitempty"`
	// Cause is set when rules could not be fetched.
	Cause string `json:"cause,omitempty"`
}

// AccessService answers access checks for global schedules and component
// controls. Rules are fetched fresh from the repository on every call.
type AccessService struct {
	repo         schedule.Repository
	opts         schedule.Options
	clock        schedule.Clock
	fetchTimeout time.Duration
	recorder     DecisionRecorder
	tracer       trace.Tracer
	logger       *slog.Logger
}

// AccessOption configures AccessService.
type AccessOption func(*AccessService)

// WithClock sets the clock used when a check has no explicit instant.
func WithClock(c schedule.Clock) AccessOption {
	return func(s *AccessService) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithFetchTimeout bounds each repository fetch. Non-positive values disable the bound.
func WithFetchTimeout(d time.Duration) AccessOption {
	return func(s *AccessService) {
		s.fetchTimeout = d
	}
}

// WithDefaultZone sets the zone for rules that carry none.
func WithDefaultZone(loc *time.Location) AccessOption {
	return func(s *AccessService) {
		s.opts.DefaultZone = loc
	}
}

// WithPolicies overrides the per-kind day semantics.
func WithPolicies(p schedule.Policies) AccessOption {
	return func(s *AccessService) {
		s.opts.Policies = p
	}
}

// WithConditions enables per-rule condition expressions.
func WithConditions(c schedule.ConditionEvaluator) AccessOption {
	return func(s *AccessService) {
		s.opts.Conditions = c
	}
}

// WithRecorder registers a recorder for decisions.
func WithRecorder(r DecisionRecorder) AccessOption {
	return func(s *AccessService) {
		s.recorder = r
	}
}

// WithTracer sets the tracer used for check spans.
func WithTracer(t trace.Tracer) AccessOption {
	return func(s *AccessService) {
		if t != nil {
			s.tracer = t
		}
	}
}

// NewAccessService creates an AccessService reading rules from repo.
func NewAccessService(repo schedule.Repository, logger *slog.Logger, opts ...AccessOption) *AccessService {
	s := &AccessService{
		repo:         repo,
		opts:         schedule.Options{DefaultZone: time.UTC},
		clock:        schedule.SystemClock{},
		fetchTimeout: DefaultFetchTimeout,
		tracer:       otel.Tracer(tracerName),
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the current instant from the service clock.
func (s *AccessService) Now() time.Time {
	return s.clock.Now()
}

// CheckAccess decides whether target is accessible at instant at. A zero at
// means now. It never fails: repository errors and panics resolve to a
// fail-open decision.
func (s *AccessService) CheckAccess(ctx context.Context, target schedule.Target, at time.Time) (d schedule.Decision) {
	if at.IsZero() {
		at = s.clock.Now()
	}

	ctx, span := s.tracer.Start(ctx, "AccessService.CheckAccess",
		trace.WithAttributes(attribute.String("target", target.String())))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("evaluator panic: %v", r)
			s.logger.Error("access check panicked, failing open", "target", target.String(), "error", err)
			span.SetStatus(codes.Error, err.Error())
			d = schedule.FailOpen(err, at)
		}
		span.SetAttributes(
			attribute.String("outcome", string(d.Outcome)),
			attribute.Bool("allowed", d.Allowed),
		)
		if s.recorder != nil {
			s.recorder.RecordDecision(target, d)
		}
	}()

	if err := target.Validate(); err != nil {
		d = schedule.FailOpen(err, at)
		d.Outcome = schedule.OutcomeConfigError
		return d
	}

	rules, err := s.fetch(ctx, target)
	if err != nil {
		s.logger.Warn("failed to fetch access rules, failing open",
			"target", target.String(), "error", err)
		span.RecordError(err)
		return schedule.FailOpen(err, at)
	}

	d = schedule.Evaluate(rules, at, s.optionsFor(target))
	s.logRuleErrors(target, d.RuleErrors)
	s.logger.Debug("access checked",
		"target", target.String(),
		"allowed", d.Allowed,
		"outcome", d.Outcome,
		"reason", d.Reason,
		"rules", len(rules),
	)
	return d
}

// NextAccessTime projects the next instant at which target becomes
// accessible, at or after at. A zero at means now.
func (s *AccessService) NextAccessTime(ctx context.Context, target schedule.Target, at time.Time) (next NextAccess) {
	if at.IsZero() {
		at = s.clock.Now()
	}

	ctx, span := s.tracer.Start(ctx, "AccessService.NextAccessTime",
		trace.WithAttributes(attribute.String("target", target.String())))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("projector panic: %v", r)
			s.logger.Error("next access projection panicked", "target", target.String(), "error", err)
			span.SetStatus(codes.Error, err.Error())
			next = NextAccess{Cause: err.Error()}
		}
	}()

	if err := target.Validate(); err != nil {
		return NextAccess{Cause: err.Error()}
	}

	rules, err := s.fetch(ctx, target)
	if err != nil {
		s.logger.Warn("failed to fetch access rules for projection",
			"target", target.String(), "error", err)
		span.RecordError(err)
		return NextAccess{Cause: err.Error()}
	}

	p := schedule.Project(rules, at, s.optionsFor(target))
	s.logRuleErrors(target, p.RuleErrors)
	span.SetAttributes(attribute.Bool("always", p.Always), attribute.Bool("found", p.Found()))

	return NextAccess{
		NextTime:   p.NextTime,
		At:         p.At,
		Rule:       p.Rule,
		Always:     p.Always,
		RuleErrors: p.RuleErrors,
	}
}

type fetchResult struct {
	rules []schedule.AccessRule
	err   error
}

// fetch lists rules for target, giving up after fetchTimeout even when the
// repository ignores its context.
func (s *AccessService) fetch(ctx context.Context, target schedule.Target) ([]schedule.AccessRule, error) {
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}

	ch := make(chan fetchResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- fetchResult{err: fmt.Errorf("repository panic: %v", r)}
			}
		}()
		rules, err := s.repo.ListEnabledRules(ctx, target.Kind, target.Component)
		ch <- fetchResult{rules: rules, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %w", ErrFetchTimeout, res.err)
			}
			return nil, fmt.Errorf("list %s rules: %w", target.Kind, res.err)
		}
		return res.rules, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrFetchTimeout, s.fetchTimeout)
		}
		return nil, ctx.Err()
	}
}

func (s *AccessService) optionsFor(target schedule.Target) schedule.Options {
	opts := s.opts
	opts.Component = target.Component
	return opts
}

func (s *AccessService) logRuleErrors(target schedule.Target, errs []schedule.RuleError) {
	for _, re := range errs {
		s.logger.Warn("invalid access rule skipped",
			"target", target.String(),
			"rule_id", re.RuleID,
			"rule_name", re.RuleName,
			"field", re.Field,
			"error", re.Message,
		)
	}
}
