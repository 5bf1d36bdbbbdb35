// Package state provides file-based persistence for auditdesk access rules.
//
// The state.json file holds every global schedule and component access
// control so that rules survive restarts when no database is configured.
package state

import (
	"time"

	"github.com/auditdesk/auditdesk/internal/domain/schedule"
)

// CurrentVersion is the schema version written by this package.
const CurrentVersion = "1"

// AppState is the top-level structure persisted in state.json.
type AppState struct {
	// Version is the schema version for forward compatibility.
	Version string `json:"version"`

	// Rules holds rules of every kind.
	Rules []RuleEntry `json:"rules"`

	// CreatedAt is when this state file was first created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when this state file was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// RuleEntry is the on-disk form of an access rule.
type RuleEntry struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name,omitempty"`
	Kind        string    `json:"kind"`
	Component   string    `json:"component,omitempty"`
	Enabled     bool      `json:"enabled"`
	Scope       string    `json:"scope"`
	StartTime   string    `json:"start_time,omitempty"`
	EndTime     string    `json:"end_time,omitempty"`
	Timezone    string    `json:"timezone,omitempty"`
	AllowedDays []string  `json:"allowed_days,omitempty"`
	Condition   string    `json:"condition,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EntryFromRule converts a domain rule to its persisted form.
func EntryFromRule(r schedule.AccessRule) RuleEntry {
	return RuleEntry{
		ID:          r.ID,
		Name:        r.Name,
		DisplayName: r.DisplayName,
		Kind:        string(r.Kind),
		Component:   r.Component,
		Enabled:     r.Enabled,
		Scope:       string(r.Scope),
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		Timezone:    r.Timezone,
		AllowedDays: append([]string(nil), r.AllowedDays...),
		Condition:   r.Condition,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// Rule converts the entry back to a domain rule.
func (e RuleEntry) Rule() schedule.AccessRule {
	return schedule.AccessRule{
		ID:          e.ID,
		Name:        e.Name,
		DisplayName: e.DisplayName,
		Kind:        schedule.Kind(e.Kind),
		Component:   e.Component,
		Enabled:     e.Enabled,
		Scope:       schedule.Scope(e.Scope),
		StartTime:   e.StartTime,
		EndTime:     e.EndTime,
		Timezone:    e.Timezone,
		AllowedDays: append([]string(nil), e.AllowedDays...),
		Condition:   e.Condition,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}
