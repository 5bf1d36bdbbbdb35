package config

import (
	"strings"
	"testing"
)

// minimalValidConfig returns a minimal valid Config for testing.
func minimalValidConfig() *Config {
	cfg := &Config{
		Auth: AuthConfig{APIKeys: []APIKeyConfig{{
			Name:    "dashboard",
			KeyHash: "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
			Role:    "guard",
		}}},
		SeedRules: []RuleConfig{{
			Name:        "office",
			Kind:        "global",
			Scope:       "windowed",
			StartTime:   "08:00",
			EndTime:     "17:00",
			Timezone:    "Asia/Jakarta",
			AllowedDays: []string{"monday", "friday"},
		}},
	}
	cfg.SetDefaults()
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()

	if err := minimalValidConfig().Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown default timezone",
			mutate:  func(c *Config) { c.Schedule.DefaultTimezone = "Mars/Base" },
			wantErr: "IANA timezone",
		},
		{
			name:    "bad poll interval",
			mutate:  func(c *Config) { c.Schedule.PollInterval = "often" },
			wantErr: "positive duration",
		},
		{
			name:    "bad storage driver",
			mutate:  func(c *Config) { c.Storage.Driver = "postgres" },
			wantErr: "must be one of",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Server.LogLevel = "verbose" },
			wantErr: "must be one of",
		},
		{
			name:    "bad key hash",
			mutate:  func(c *Config) { c.Auth.APIKeys[0].KeyHash = "plaintext" },
			wantErr: "argon2id",
		},
		{
			name:    "bad key role",
			mutate:  func(c *Config) { c.Auth.APIKeys[0].Role = "owner" },
			wantErr: "must be one of",
		},
		{
			name: "duplicate key name",
			mutate: func(c *Config) {
				c.Auth.APIKeys = append(c.Auth.APIKeys, c.Auth.APIKeys[0])
			},
			wantErr: "duplicate name",
		},
		{
			name:    "seed start time",
			mutate:  func(c *Config) { c.SeedRules[0].StartTime = "8am" },
			wantErr: "HH:MM",
		},
		{
			name:    "seed weekday",
			mutate:  func(c *Config) { c.SeedRules[0].AllowedDays = []string{"someday"} },
			wantErr: "weekday name",
		},
		{
			name:    "seed windowed without end",
			mutate:  func(c *Config) { c.SeedRules[0].EndTime = "" },
			wantErr: "need start_time and end_time",
		},
		{
			name: "component seed without component",
			mutate: func(c *Config) {
				c.SeedRules[0].Kind = "component"
			},
			wantErr: "Component is required",
		},
		{
			name: "duplicate seed id",
			mutate: func(c *Config) {
				c.SeedRules[0].ID = "a"
				c.SeedRules = append(c.SeedRules, c.SeedRules[0])
			},
			wantErr: "duplicate id",
		},
		{
			name:    "watch component without name",
			mutate:  func(c *Config) { c.Schedule.Watch = []TargetConfig{{Kind: "component"}} },
			wantErr: "Component is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := minimalValidConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want containing %q", err, tt.wantErr)
			}
		})
	}
}
