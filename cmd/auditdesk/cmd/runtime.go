package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/auditdesk/auditdesk/internal/adapter/outbound/cel"
	"github.com/auditdesk/auditdesk/internal/adapter/outbound/memory"
	"github.com/auditdesk/auditdesk/internal/adapter/outbound/sqlite"
	"github.com/auditdesk/auditdesk/internal/adapter/outbound/state"
	"github.com/auditdesk/auditdesk/internal/config"
	"github.com/auditdesk/auditdesk/internal/domain/schedule"
	"github.com/auditdesk/auditdesk/internal/service"
)

// app holds the wired services shared by the commands.
type app struct {
	cfg        *config.Config
	store      schedule.RuleStore
	db         *sqlite.Store
	stateStore *state.FileStateStore
	access     *service.AccessService
	admin      *service.RuleAdminService
	logger     *slog.Logger
}

// newApp opens the configured rule store, restores persisted rules, applies
// seed rules to an empty store and builds the services.
// The boot sequence:
//  1. open the store (state file, sqlite or memory)
//  2. restore rules from state.json (state driver only)
//  3. seed rules when the store is empty
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, accessOpts ...service.AccessOption) (*app, error) {
	conditions, err := cel.NewEvaluator()
	if err != nil {
		return nil, err
	}
	ruleOpts := schedule.Options{
		DefaultZone: cfg.DefaultLocation(),
		Policies:    cfg.Policies(),
		Conditions:  conditions,
	}

	a := &app{cfg: cfg, logger: logger}

	var adminOpts []service.AdminOption
	switch cfg.Storage.Driver {
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.Storage.SQLiteDSN, logger)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.store = db
	case "memory":
		a.store = memory.NewRuleStore()
	default:
		a.store = memory.NewRuleStore()
		a.stateStore = state.NewFileStateStore(cfg.Storage.StatePath, logger)
		adminOpts = append(adminOpts, service.WithStateStore(a.stateStore))
	}
	adminOpts = append(adminOpts, service.WithRuleOptions(ruleOpts))
	a.admin = service.NewRuleAdminService(a.store, logger, adminOpts...)

	if a.stateStore != nil {
		appState, err := a.stateStore.Load()
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to load state: %w", err)
		}
		n, err := a.admin.LoadRulesFromState(ctx, appState)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to restore rules: %w", err)
		}
		logger.Info("state loaded", "path", a.stateStore.Path(), "rules", n)
	}

	if len(cfg.SeedRules) > 0 {
		seeds := make([]schedule.AccessRule, 0, len(cfg.SeedRules))
		for _, rc := range cfg.SeedRules {
			seeds = append(seeds, rc.Rule())
		}
		n, err := a.admin.Seed(ctx, seeds)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to seed rules: %w", err)
		}
		if n > 0 {
			logger.Info("seeded rules from config", "rules", n)
		}
	}

	opts := []service.AccessOption{
		service.WithFetchTimeout(cfg.FetchTimeout()),
		service.WithDefaultZone(ruleOpts.DefaultZone),
		service.WithPolicies(ruleOpts.Policies),
		service.WithConditions(conditions),
	}
	a.access = service.NewAccessService(a.store, logger, append(opts, accessOpts...)...)
	return a, nil
}

// Close releases the database handle, if any.
func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close database", "error", err)
		}
	}
}

// commandApp loads config and wires the app for one-shot commands.
// Info logs are suppressed so they do not drown the command output.
func commandApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig(false)
	if err != nil {
		return nil, err
	}
	if parseLogLevel(cfg.Server.LogLevel) == slog.LevelInfo {
		cfg.Server.LogLevel = "warn"
	}
	return newApp(ctx, cfg, newLogger(os.Stderr, cfg))
}
