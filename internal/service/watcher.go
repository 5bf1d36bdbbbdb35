package service

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/auditdesk/auditdesk/internal/domain/schedule"
)

// DefaultPollInterval is how often the watcher re-evaluates its targets.
const DefaultPollInterval = 60 * time.Second

// AccessObserver is notified of the current open state of a target after
// every poll.
type AccessObserver interface {
	ObserveAccess(target schedule.Target, open bool)
}

// Transition describes a change in a target's decision between polls.
type Transition struct {
	Target   schedule.Target
	WasOpen  bool
	Decision schedule.Decision
	// First is set for the initial evaluation of a target.
	First bool
}

// Opened reports whether access went from closed to open.
func (t Transition) Opened() bool { return !t.First && !t.WasOpen && t.Decision.Allowed }

// Closed reports whether access went from open to closed.
func (t Transition) Closed() bool { return !t.First && t.WasOpen && !t.Decision.Allowed }

type watchState struct {
	fingerprint uint64
	open        bool
}

// Watcher periodically re-evaluates a fixed set of targets and reports
// changes. Evaluations carry no ordering guarantee relative to rule edits.
type Watcher struct {
	access   *AccessService
	targets  []schedule.Target
	interval time.Duration
	observer AccessObserver
	onChange func(Transition)
	logger   *slog.Logger

	mu    sync.Mutex
	state map[string]watchState
}

// WatcherOption configures Watcher.
type WatcherOption func(*Watcher)

// WithPollInterval sets the polling interval.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithObserver registers an observer of open states.
func WithObserver(o AccessObserver) WatcherOption {
	return func(w *Watcher) {
		w.observer = o
	}
}

// WithChangeHandler registers fn to run for every changed decision,
// including the first evaluation of each target.
func WithChangeHandler(fn func(Transition)) WatcherOption {
	return func(w *Watcher) {
		w.onChange = fn
	}
}

// NewWatcher creates a Watcher for targets.
func NewWatcher(access *AccessService, targets []schedule.Target, logger *slog.Logger, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		access:   access,
		targets:  append([]schedule.Target(nil), targets...),
		interval: DefaultPollInterval,
		logger:   logger,
		state:    make(map[string]watchState),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls immediately and then on every interval until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("access watcher started", "targets", len(w.targets), "interval", w.interval)
	defer w.logger.Info("access watcher stopped")

	w.Poll(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll evaluates every target once and returns the transitions observed.
func (w *Watcher) Poll(ctx context.Context) []Transition {
	var out []Transition
	for _, target := range w.targets {
		if ctx.Err() != nil {
			return out
		}
		d := w.access.CheckAccess(ctx, target, time.Time{})
		if w.observer != nil {
			w.observer.ObserveAccess(target, d.Allowed)
		}
		if t, changed := w.record(target, d); changed {
			out = append(out, t)
			w.report(t)
		}
	}
	return out
}

func (w *Watcher) record(target schedule.Target, d schedule.Decision) (Transition, bool) {
	fp := fingerprint(d)
	key := target.String()

	w.mu.Lock()
	defer w.mu.Unlock()

	prev, seen := w.state[key]
	w.state[key] = watchState{fingerprint: fp, open: d.Allowed}
	if seen && prev.fingerprint == fp {
		return Transition{}, false
	}
	return Transition{Target: target, WasOpen: prev.open, Decision: d, First: !seen}, true
}

func (w *Watcher) report(t Transition) {
	attrs := []any{
		"target", t.Target.String(),
		"allowed", t.Decision.Allowed,
		"outcome", t.Decision.Outcome,
		"reason", t.Decision.Reason,
	}
	switch {
	case t.Opened():
		w.logger.Info("access opened", attrs...)
	case t.Closed():
		w.logger.Info("access closed", attrs...)
	default:
		w.logger.Debug("access decision changed", attrs...)
	}
	if w.onChange != nil {
		w.onChange(t)
	}
}

// fingerprint hashes the parts of a decision that matter to watchers.
func fingerprint(d schedule.Decision) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(strconv.FormatBool(d.Allowed))
	_, _ = h.WriteString("\x00" + string(d.Outcome))
	_, _ = h.WriteString("\x00" + d.Reason)
	if d.MatchedRule != nil {
		_, _ = h.WriteString("\x00" + d.MatchedRule.ID)
	}
	for _, re := range d.RuleErrors {
		_, _ = h.WriteString("\x00" + re.RuleID + re.Field)
	}
	return h.Sum64()
}
