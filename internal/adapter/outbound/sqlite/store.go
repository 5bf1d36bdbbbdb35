// Package sqlite stores access rules in a SQLite database using the pure-Go
// modernc.org/sqlite driver. Global schedules and component access controls
// live in separate tables, matching the dashboard's hosted schema.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/auditdesk/auditdesk/internal/domain/schedule"
)

const (
	globalTable    = "data_access_schedules"
	componentTable = "component_access_controls"
)

const columns = `id, name, display_name, component_name, is_enabled, scope,
	start_time, end_time, timezone, allowed_days, condition_expr, created_at, updated_at`

const schema = `
CREATE TABLE IF NOT EXISTS %[1]s (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	display_name   TEXT NOT NULL DEFAULT '',
	component_name TEXT NOT NULL DEFAULT '',
	is_enabled     INTEGER NOT NULL DEFAULT 1,
	scope          TEXT NOT NULL,
	start_time     TEXT NOT NULL DEFAULT '',
	end_time       TEXT NOT NULL DEFAULT '',
	timezone       TEXT NOT NULL DEFAULT '',
	allowed_days   TEXT NOT NULL DEFAULT '[]',
	condition_expr TEXT NOT NULL DEFAULT '',
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS %[1]s_created_idx ON %[1]s (created_at DESC);
`

// Store implements schedule.RuleStore on SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at dsn and applies the schema.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// between our own goroutines.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	for _, table := range []string{globalTable, componentTable} {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(schema, table)); err != nil {
			return fmt.Errorf("create %s: %w", table, err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func tableFor(kind schedule.Kind) (string, error) {
	switch kind {
	case schedule.KindGlobal:
		return globalTable, nil
	case schedule.KindComponent:
		return componentTable, nil
	}
	return "", fmt.Errorf("unknown rule kind %q", kind)
}

// ListEnabledRules returns enabled rules newest first. Component names are
// compared case-insensitively.
func (s *Store) ListEnabledRules(ctx context.Context, kind schedule.Kind, component string) ([]schedule.AccessRule, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE is_enabled = 1", columns, table)
	var args []any
	if kind == schedule.KindComponent {
		q += " AND component_name = ? COLLATE NOCASE"
		args = append(args, component)
	}
	q += " ORDER BY created_at DESC, id DESC"
	return s.query(ctx, kind, q, args...)
}

// ListRules returns every rule of kind, newest first.
func (s *Store) ListRules(ctx context.Context, kind schedule.Kind) ([]schedule.AccessRule, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY created_at DESC, id DESC", columns, table)
	return s.query(ctx, kind, q)
}

// GetRule returns schedule.ErrRuleNotFound when id is unknown.
func (s *Store) GetRule(ctx context.Context, kind schedule.Kind, id string) (*schedule.AccessRule, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", columns, table)
	rules, err := s.query(ctx, kind, q, id)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, schedule.ErrRuleNotFound
	}
	return &rules[0], nil
}

// SaveRule upserts r into its kind's table.
func (s *Store) SaveRule(ctx context.Context, r *schedule.AccessRule) error {
	table, err := tableFor(r.Kind)
	if err != nil {
		return err
	}
	other := componentTable
	if table == componentTable {
		other = globalTable
	}

	days, err := json.Marshal(nonNil(r.AllowedDays))
	if err != nil {
		return fmt.Errorf("encode allowed days: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var n int
	if err := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE id = ?", other), r.ID).Scan(&n); err != nil {
		return fmt.Errorf("check id: %w", err)
	}
	if n > 0 {
		return schedule.ErrDuplicateRule
	}

	q := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	display_name = excluded.display_name,
	component_name = excluded.component_name,
	is_enabled = excluded.is_enabled,
	scope = excluded.scope,
	start_time = excluded.start_time,
	end_time = excluded.end_time,
	timezone = excluded.timezone,
	allowed_days = excluded.allowed_days,
	condition_expr = excluded.condition_expr,
	created_at = excluded.created_at,
	updated_at = excluded.updated_at`, table, columns)
	if _, err := tx.ExecContext(ctx, q,
		r.ID, r.Name, r.DisplayName, r.Component, r.Enabled, string(r.Scope),
		r.StartTime, r.EndTime, r.Timezone, string(days), r.Condition,
		r.CreatedAt.UnixNano(), r.UpdatedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("save rule %s: %w", r.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("rule saved", "table", table, "rule_id", r.ID)
	return nil
}

// DeleteRule returns schedule.ErrRuleNotFound when id is unknown.
func (s *Store) DeleteRule(ctx context.Context, kind schedule.Kind, id string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id)
	if err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	if n == 0 {
		return schedule.ErrRuleNotFound
	}
	return nil
}

// Count returns the number of rules across both tables.
func (s *Store) Count(ctx context.Context) (int, error) {
	var total int
	for _, table := range []string{globalTable, componentTable} {
		var n int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return 0, fmt.Errorf("count %s: %w", table, err)
		}
		total += n
	}
	return total, nil
}

func (s *Store) query(ctx context.Context, kind schedule.Kind, q string, args ...any) ([]schedule.AccessRule, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s rules: %w", kind, err)
	}
	defer func() { _ = rows.Close() }()

	var out []schedule.AccessRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		r.Kind = kind
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rules: %w", kind, err)
	}
	return out, nil
}

func scanRule(rows *sql.Rows) (schedule.AccessRule, error) {
	var (
		r                schedule.AccessRule
		scope, days      string
		created, updated int64
	)
	if err := rows.Scan(&r.ID, &r.Name, &r.DisplayName, &r.Component, &r.Enabled, &scope,
		&r.StartTime, &r.EndTime, &r.Timezone, &days, &r.Condition, &created, &updated); err != nil {
		return r, fmt.Errorf("scan rule: %w", err)
	}
	r.Scope = schedule.Scope(scope)
	r.CreatedAt = time.Unix(0, created).UTC()
	r.UpdatedAt = time.Unix(0, updated).UTC()
	if days = strings.TrimSpace(days); days != "" {
		if err := json.Unmarshal([]byte(days), &r.AllowedDays); err != nil {
			return r, fmt.Errorf("decode allowed days of %s: %w", r.ID, err)
		}
	}
	if len(r.AllowedDays) == 0 {
		r.AllowedDays = nil
	}
	return r, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ schedule.RuleStore = (*Store)(nil)
