package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/auditdesk/auditdesk/internal/adapter/inbound/admin"
	"github.com/auditdesk/auditdesk/internal/adapter/inbound/http"
	"github.com/auditdesk/auditdesk/internal/adapter/outbound/xlsx"
	"github.com/auditdesk/auditdesk/internal/config"
	"github.com/auditdesk/auditdesk/internal/domain/auth"
	"github.com/auditdesk/auditdesk/internal/service"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the API server and schedule watcher",
	Long: `Start the auditdesk API server.

The server answers access checks on /api/v1/access/check and
/api/v1/access/next, serves rule administration under /admin/api/rules,
and exposes /health and /metrics. A watcher re-evaluates the configured
targets every schedule.poll_interval and logs when access opens or closes.

Examples:
  # Start with config file settings
  auditdesk start

  # Start in development mode (debug logs, in-memory store, always-open rule)
  auditdesk start --dev

  # Start with a specific config file
  auditdesk --config /path/to/auditdesk.yaml start`,
	RunE: runStart,
}

var devMode bool

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging, seeded always-open rule)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(devMode)
	if err != nil {
		return err
	}

	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logger := newLogger(os.Stderr, cfg)
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}
	if cfg.DevMode {
		logger.Warn("development mode enabled: do not use in production")
	}

	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("auditdesk stopped")
	return nil
}

// run wires all components together and blocks until ctx is cancelled or
// the server or watcher fails.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	tp, shutdownTracing, err := service.NewTracerProvider(cfg.Telemetry.Traces, Version, os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	reg := http.NewRegistry()
	metrics := http.NewMetrics(reg)

	a, err := newApp(ctx, cfg, logger,
		service.WithRecorder(metrics),
		service.WithTracer(service.Tracer(tp)),
	)
	if err != nil {
		return err
	}
	defer a.Close()

	keys, err := auth.NewKeyRing(cfg.Keys())
	if err != nil {
		return fmt.Errorf("invalid api keys: %w", err)
	}
	if keys.Len() == 0 {
		logger.Info("no api keys configured; only localhost callers are served")
	}

	api := admin.NewAdminAPIHandler(
		admin.WithAccessService(a.access),
		admin.WithRuleAdminService(a.admin),
		admin.WithKeyRing(keys),
		admin.WithExportOptions(xlsx.ExportOptions{
			Protect:  cfg.Export.Protect,
			Password: cfg.Export.SheetPassword,
		}),
		admin.WithAPILogger(logger),
	)

	var pinger http.Pinger
	if a.db != nil {
		pinger = a.db
	}
	server := http.NewServer(api.Routes(),
		http.WithAddr(cfg.Server.HTTPAddr),
		http.WithReadTimeout(cfg.ReadTimeout()),
		http.WithLogger(logger),
		http.WithMetrics(reg, metrics),
		http.WithHealthChecker(http.NewHealthChecker(a.store, pinger, Version)),
	)

	watcher := service.NewWatcher(a.access, cfg.Targets(), logger,
		service.WithPollInterval(cfg.PollInterval()),
		service.WithObserver(metrics),
	)

	printBanner(cfg, a)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })
	return g.Wait()
}

// printBanner writes a short startup summary to stderr.
func printBanner(cfg *config.Config, a *app) {
	all, _ := a.admin.All(context.Background())
	fmt.Fprintf(os.Stderr, "\n  auditdesk %s\n", Version)
	fmt.Fprintf(os.Stderr, "  API:      http://%s/api/v1/access/check\n", cfg.Server.HTTPAddr)
	fmt.Fprintf(os.Stderr, "  Storage:  %s\n", storageLabel(cfg))
	fmt.Fprintf(os.Stderr, "  Rules:    %d\n", len(all))
	fmt.Fprintf(os.Stderr, "  Timezone: %s\n", cfg.Schedule.DefaultTimezone)
	if cfg.DevMode {
		fmt.Fprintf(os.Stderr, "  Mode:     development\n")
	}
	fmt.Fprintln(os.Stderr)
}

func storageLabel(cfg *config.Config) string {
	switch cfg.Storage.Driver {
	case "sqlite":
		return "sqlite " + cfg.Storage.SQLiteDSN
	case "memory":
		return "memory (not persisted)"
	default:
		return "state " + cfg.Storage.StatePath
	}
}

// pidFilePath returns the standard location for the auditdesk PID file.
func pidFilePath() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".auditdesk", "server.pid")
	}
	return filepath.Join(os.TempDir(), "auditdesk-server.pid")
}

// writePIDFile writes the current process PID to the given path, creating
// parent directories as needed.
func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}
