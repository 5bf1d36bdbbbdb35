// Package cmd provides the CLI commands for auditdesk.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/auditdesk/auditdesk/internal/config"
)

var cfgFile string
var stateFilePath string

var rootCmd = &cobra.Command{
	Use:   "auditdesk",
	Short: "auditdesk - access schedules for audit records",
	Long: `auditdesk decides whether the audit records, or one of their
components, may be opened right now, based on time-window rules.

Quick start:
  1. Create a config file: auditdesk.yaml
  2. Run: auditdesk start

Configuration:
  Config is loaded from auditdesk.yaml in the current directory,
  $HOME/.auditdesk/, or /etc/auditdesk/.

  Environment variables can override config values with the AUDITDESK_ prefix.
  Example: AUDITDESK_SERVER_HTTP_ADDR=:9090

Commands:
  start       Start the API server and schedule watcher
  stop        Stop the running server
  check       Check access for a target once
  next        Show when a target next becomes accessible
  watch       Watch targets and print access transitions
  rules       List, import and export rules
  reset       Reset to clean state (remove state.json)
  hash-key    Generate an Argon2id hash for an API key
  version     Print version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./auditdesk.yaml)")
	rootCmd.PersistentFlags().StringVar(&stateFilePath, "state", "", "path to state.json file (overrides storage.state_path)")
}

func initConfig() {
	config.InitViper(cfgFile)
}

// loadConfig reads and validates the configuration, applying the --state
// override and dev mode.
func loadConfig(dev bool) (*config.Config, error) {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dev {
		cfg.DevMode = true
		// SetDefaults already picked the state driver; dev mode prefers memory
		// unless the file chose a driver.
		if !viper.IsSet("storage.driver") {
			cfg.Storage.Driver = "memory"
		}
	}
	if stateFilePath != "" {
		cfg.Storage.StatePath = stateFilePath
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// newLogger builds the stderr text logger. Stdout is kept for command output.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
