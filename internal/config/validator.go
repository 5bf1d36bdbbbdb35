package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/auditdesk/auditdesk/internal/domain/auth"
	"github.com/auditdesk/auditdesk/internal/domain/schedule"
)

// RegisterCustomValidators registers auditdesk-specific validation rules.
func RegisterCustomValidators(v *validator.Validate) error {
	custom := map[string]validator.Func{
		"iana_zone":  validateZone,
		"clock_time": validateClockTime,
		"weekday":    validateWeekday,
		"duration":   validateDuration,
		"key_hash":   validateKeyHash,
	}
	for tag, fn := range custom {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %s validator: %w", tag, err)
		}
	}
	return nil
}

func validateZone(fl validator.FieldLevel) bool {
	_, err := schedule.LoadZone(fl.Field().String())
	return err == nil
}

func validateClockTime(fl validator.FieldLevel) bool {
	_, err := schedule.ParseClockTime(fl.Field().String())
	return err == nil
}

func validateWeekday(fl validator.FieldLevel) bool {
	_, err := schedule.ParseWeekday(fl.Field().String())
	return err == nil
}

func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d > 0
}

func validateKeyHash(fl validator.FieldLevel) bool {
	return auth.DetectHashType(fl.Field().String()) != "unknown"
}

// Validate validates the Config using struct tags and cross-field rules.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateSeedRuleIDs(); err != nil {
		return err
	}
	if err := c.validateKeyNames(); err != nil {
		return err
	}
	return nil
}

// validateSeedRuleIDs rejects duplicate explicit seed IDs and windowed
// seeds without both window ends.
func (c *Config) validateSeedRuleIDs() error {
	seen := make(map[string]struct{}, len(c.SeedRules))
	for i, r := range c.SeedRules {
		if r.Scope == string(schedule.ScopeWindowed) && (r.StartTime == "" || r.EndTime == "") {
			return fmt.Errorf("seed_rules[%d]: windowed rules need start_time and end_time", i)
		}
		if r.ID == "" {
			continue
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("seed_rules[%d]: duplicate id %q", i, r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}

func (c *Config) validateKeyNames() error {
	seen := make(map[string]struct{}, len(c.Auth.APIKeys))
	for i, k := range c.Auth.APIKeys {
		if _, dup := seen[k.Name]; dup {
			return fmt.Errorf("auth.api_keys[%d]: duplicate name %q", i, k.Name)
		}
		seen[k.Name] = struct{}{}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()

	switch e.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "iana_zone":
		return fmt.Sprintf("%s must be an IANA timezone such as Asia/Jakarta", field)
	case "clock_time":
		return fmt.Sprintf("%s must be HH:MM or HH:MM:SS", field)
	case "weekday":
		return fmt.Sprintf("%s must be a weekday name", field)
	case "duration":
		return fmt.Sprintf("%s must be a positive duration such as 30s", field)
	case "key_hash":
		return fmt.Sprintf("%s must be an argon2id or sha256: hash", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
