// Package config provides configuration types for the auditdesk access-schedule service.
//
// Configuration is file-based (auditdesk.yaml) with environment overrides.
// Rules themselves live in the configured store; the file only carries
// seed rules applied to an empty store.
package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/auditdesk/auditdesk/internal/domain/auth"
	"github.com/auditdesk/auditdesk/internal/domain/schedule"
)

// Config is the top-level configuration.
type Config struct {
	// Server configures the HTTP server listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Storage selects where rules are kept.
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Schedule configures evaluation defaults and per-kind day semantics.
	Schedule ScheduleConfig `yaml:"schedule" mapstructure:"schedule"`

	// Auth configures API keys for remote callers.
	// Optional: when empty, only localhost callers are served.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Telemetry configures tracing output.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// Export configures the spreadsheet export.
	Export ExportConfig `yaml:"export" mapstructure:"export"`

	// SeedRules are inserted when the store holds no rules at boot.
	SeedRules []RuleConfig `yaml:"seed_rules" mapstructure:"seed_rules" validate:"omitempty,dive"`

	// DevMode enables verbose logging and seeds an always-open global rule.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on. Defaults to "127.0.0.1:8080".
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// ReadTimeout bounds reading a request (e.g. "10s").
	ReadTimeout string `yaml:"read_timeout" mapstructure:"read_timeout" validate:"omitempty,duration"`
}

// StorageConfig selects the rule store.
type StorageConfig struct {
	// Driver is "state" (JSON file), "sqlite" or "memory".
	Driver string `yaml:"driver" mapstructure:"driver" validate:"omitempty,oneof=state sqlite memory"`

	// StatePath is the state file used by the "state" driver.
	StatePath string `yaml:"state_path" mapstructure:"state_path"`

	// SQLiteDSN is the database used by the "sqlite" driver.
	SQLiteDSN string `yaml:"sqlite_dsn" mapstructure:"sqlite_dsn"`

	// FetchTimeout bounds a single rule fetch. A fetch that times out fails open.
	FetchTimeout string `yaml:"fetch_timeout" mapstructure:"fetch_timeout" validate:"omitempty,duration"`
}

// ScheduleConfig configures evaluation.
type ScheduleConfig struct {
	// DefaultTimezone applies to rules without a timezone.
	DefaultTimezone string `yaml:"default_timezone" mapstructure:"default_timezone" validate:"omitempty,iana_zone"`

	// PollInterval is how often the watcher re-evaluates targets.
	PollInterval string `yaml:"poll_interval" mapstructure:"poll_interval" validate:"omitempty,duration"`

	// Kinds overrides per-kind day semantics.
	Kinds KindsConfig `yaml:"kinds" mapstructure:"kinds"`

	// Watch lists the targets the watcher polls.
	Watch []TargetConfig `yaml:"watch" mapstructure:"watch" validate:"omitempty,dive"`
}

// KindsConfig holds per-kind policy overrides.
type KindsConfig struct {
	Global    *KindPolicyConfig `yaml:"global" mapstructure:"global"`
	Component *KindPolicyConfig `yaml:"component" mapstructure:"component"`
}

// KindPolicyConfig mirrors schedule.KindPolicy.
type KindPolicyConfig struct {
	EvaluateDays       bool `yaml:"evaluate_days" mapstructure:"evaluate_days"`
	EmptyMeansEveryDay bool `yaml:"empty_means_every_day" mapstructure:"empty_means_every_day"`
}

// TargetConfig names a watched target.
type TargetConfig struct {
	Kind      string `yaml:"kind" mapstructure:"kind" validate:"required,oneof=global component"`
	Component string `yaml:"component" mapstructure:"component" validate:"required_if=Kind component"`
}

// AuthConfig holds API keys.
type AuthConfig struct {
	APIKeys []APIKeyConfig `yaml:"api_keys" mapstructure:"api_keys" validate:"omitempty,dive"`
}

// APIKeyConfig configures one API key.
type APIKeyConfig struct {
	// Name labels the key in logs.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`
	// KeyHash is an Argon2id PHC hash (see `auditdesk hash-key`) or "sha256:<hex>".
	KeyHash string `yaml:"key_hash" mapstructure:"key_hash" validate:"required,key_hash"`
	// Role is "admin" or "guard".
	Role string `yaml:"role" mapstructure:"role" validate:"required,oneof=admin guard"`
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	// Traces is "none" or "stdout".
	Traces string `yaml:"traces" mapstructure:"traces" validate:"omitempty,oneof=none stdout"`
}

// ExportConfig configures the spreadsheet export.
type ExportConfig struct {
	// Protect locks exported sheets by default.
	Protect bool `yaml:"protect" mapstructure:"protect"`
	// SheetPassword unlocks protected sheets.
	SheetPassword string `yaml:"sheet_password" mapstructure:"sheet_password"`
}

// RuleConfig is a seed rule.
type RuleConfig struct {
	ID          string   `yaml:"id" mapstructure:"id"`
	Name        string   `yaml:"name" mapstructure:"name" validate:"required"`
	DisplayName string   `yaml:"display_name" mapstructure:"display_name"`
	Kind        string   `yaml:"kind" mapstructure:"kind" validate:"required,oneof=global component"`
	Component   string   `yaml:"component" mapstructure:"component" validate:"required_if=Kind component"`
	Enabled     *bool    `yaml:"enabled" mapstructure:"enabled"`
	Scope       string   `yaml:"scope" mapstructure:"scope" validate:"required,oneof=always windowed"`
	StartTime   string   `yaml:"start_time" mapstructure:"start_time" validate:"omitempty,clock_time"`
	EndTime     string   `yaml:"end_time" mapstructure:"end_time" validate:"omitempty,clock_time"`
	Timezone    string   `yaml:"timezone" mapstructure:"timezone" validate:"omitempty,iana_zone"`
	AllowedDays []string `yaml:"allowed_days" mapstructure:"allowed_days" validate:"omitempty,dive,weekday"`
	Condition   string   `yaml:"condition" mapstructure:"condition"`
}

// Rule converts the seed to a domain rule. IDs and timestamps are assigned
// by the caller when empty.
func (r RuleConfig) Rule() schedule.AccessRule {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return schedule.AccessRule{
		ID:          r.ID,
		Name:        r.Name,
		DisplayName: r.DisplayName,
		Kind:        schedule.Kind(r.Kind),
		Component:   r.Component,
		Enabled:     enabled,
		Scope:       schedule.Scope(r.Scope),
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		Timezone:    r.Timezone,
		AllowedDays: append([]string(nil), r.AllowedDays...),
		Condition:   r.Condition,
	}
}

// SetDevDefaults applies development defaults. Applied before validation.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	c.Server.LogLevel = "debug"

	if len(c.SeedRules) == 0 {
		c.SeedRules = []RuleConfig{{
			Name:  "dev-always-open",
			Kind:  string(schedule.KindGlobal),
			Scope: string(schedule.ScopeAlways),
		}}
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	// Bind to localhost only; remote callers need an explicit http_addr.
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "10s"
	}

	if c.Storage.Driver == "" && !c.DevMode {
		c.Storage.Driver = "state"
	}
	if c.Storage.StatePath == "" {
		c.Storage.StatePath = "./state.json"
	}
	if c.Storage.SQLiteDSN == "" {
		c.Storage.SQLiteDSN = "./auditdesk.db"
	}
	if c.Storage.FetchTimeout == "" {
		c.Storage.FetchTimeout = "5s"
	}

	if c.Schedule.DefaultTimezone == "" {
		c.Schedule.DefaultTimezone = "UTC"
	}
	if c.Schedule.PollInterval == "" {
		c.Schedule.PollInterval = "60s"
	}
	if len(c.Schedule.Watch) == 0 {
		c.Schedule.Watch = []TargetConfig{{Kind: string(schedule.KindGlobal)}}
	}

	if c.Telemetry.Traces == "" {
		c.Telemetry.Traces = "none"
	}

	// Exports are protected unless explicitly disabled.
	if !viper.IsSet("export.protect") {
		c.Export.Protect = true
	}
}

// Policies returns the per-kind day semantics, with overrides applied.
func (c *Config) Policies() schedule.Policies {
	p := schedule.Policies{
		schedule.KindGlobal:    schedule.DefaultKindPolicy(schedule.KindGlobal),
		schedule.KindComponent: schedule.DefaultKindPolicy(schedule.KindComponent),
	}
	if o := c.Schedule.Kinds.Global; o != nil {
		p[schedule.KindGlobal] = schedule.KindPolicy{EvaluateDays: o.EvaluateDays, EmptyMeansEveryDay: o.EmptyMeansEveryDay}
	}
	if o := c.Schedule.Kinds.Component; o != nil {
		p[schedule.KindComponent] = schedule.KindPolicy{EvaluateDays: o.EvaluateDays, EmptyMeansEveryDay: o.EmptyMeansEveryDay}
	}
	return p
}

// DefaultLocation loads the default timezone. Validate guarantees it loads.
func (c *Config) DefaultLocation() *time.Location {
	loc, err := schedule.LoadZone(c.Schedule.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Targets returns the watched targets.
func (c *Config) Targets() []schedule.Target {
	out := make([]schedule.Target, 0, len(c.Schedule.Watch))
	for _, w := range c.Schedule.Watch {
		out = append(out, schedule.Target{Kind: schedule.Kind(w.Kind), Component: w.Component})
	}
	return out
}

// Keys converts the configured API keys.
func (c *Config) Keys() []auth.Key {
	out := make([]auth.Key, 0, len(c.Auth.APIKeys))
	for _, k := range c.Auth.APIKeys {
		out = append(out, auth.Key{Name: k.Name, Hash: k.KeyHash, Role: auth.Role(k.Role)})
	}
	return out
}

// FetchTimeout returns storage.fetch_timeout, 5s when unparseable.
func (c *Config) FetchTimeout() time.Duration {
	return parseDuration(c.Storage.FetchTimeout, 5*time.Second)
}

// PollInterval returns schedule.poll_interval, 60s when unparseable.
func (c *Config) PollInterval() time.Duration {
	return parseDuration(c.Schedule.PollInterval, 60*time.Second)
}

// ReadTimeout returns server.read_timeout, 10s when unparseable.
func (c *Config) ReadTimeout() time.Duration {
	return parseDuration(c.Server.ReadTimeout, 10*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
