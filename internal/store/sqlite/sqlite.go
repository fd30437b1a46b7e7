// Package sqlite implements the store interfaces on a local SQLite file
// using the pure-Go driver. A single shared connection serialises all
// writers, which eliminates SQLITE_BUSY under concurrent goroutines.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/nextlevelbuilder/goswarm/internal/store"
)

// DB wraps the shared SQLite handle. It implements every store interface;
// store.Stores slices it into per-entity views.
type DB struct {
	db     *sql.DB
	logger *slog.Logger
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets a structured logger. Without one the default slog logger
// is used.
func WithLogger(l *slog.Logger) Option {
	return func(d *DB) { d.logger = l }
}

// Open opens (or creates) the database file at path.
func Open(path string, opts ...Option) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	d := &DB{db: db, logger: slog.Default()}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Init applies the schema. All statements are idempotent; there is no
// separate migration step.
func (d *DB) Init(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			sender TEXT NOT NULL,
			recipient TEXT NOT NULL,
			type TEXT NOT NULL,
			content TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			context TEXT,
			response_to TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT,
			domain TEXT,
			priority INTEGER NOT NULL DEFAULT 3,
			assigned_to TEXT,
			created_by TEXT,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			started_at INTEGER,
			completed_at INTEGER,
			due_at INTEGER,
			requirements TEXT,
			result TEXT,
			confidence REAL NOT NULL DEFAULT 0,
			parent_task_id TEXT,
			learnings TEXT,
			follow_ups TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_assignee ON tasks(assigned_to)`,
		`CREATE TABLE IF NOT EXISTS decisions (
			id TEXT PRIMARY KEY,
			task_id TEXT,
			type TEXT NOT NULL,
			participants TEXT,
			positions TEXT,
			final_decision TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			reasoning TEXT,
			dissent TEXT,
			escalated INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_task ON decisions(task_id)`,
		`CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			task_id TEXT,
			agent_ids TEXT,
			description TEXT,
			reasoning TEXT,
			details TEXT,
			severity TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			related_ids TEXT,
			escalated INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_task ON audit_events(task_id)`,
		`CREATE TABLE IF NOT EXISTS tool_blobs (
			id TEXT PRIMARY KEY,
			tool_name TEXT NOT NULL,
			output TEXT NOT NULL,
			summary TEXT,
			session_key TEXT,
			access_count INTEGER NOT NULL DEFAULT 0,
			char_count INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS routine_jobs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			schedule TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			last_run_at INTEGER,
			last_result TEXT,
			last_error TEXT
		)`,
	}
	for _, stmt := range ddl {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Stores returns the per-entity views over this database.
func (d *DB) Stores() store.Stores {
	return store.Stores{
		Messages:  d,
		Tasks:     d,
		Decisions: d,
		Blobs:     d,
		Jobs:      d,
	}
}

// Close closes the underlying database handle.
func (d *DB) Close() error {
	return d.db.Close()
}

// marshalJSON encodes v to a nullable TEXT column. Empty slices and maps
// store as NULL.
func marshalJSON(v any) *string {
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" || string(data) == "[]" || string(data) == "{}" {
		return nil
	}
	s := string(data)
	return &s
}

// decodeJSON decodes a nullable TEXT column best-effort. Corrupt rows yield
// the zero value with a warning; the read itself does not fail.
func (d *DB) decodeJSON(col sql.NullString, dst any, table, id string) {
	if !col.Valid || col.String == "" {
		return
	}
	if err := json.Unmarshal([]byte(col.String), dst); err != nil {
		d.logger.Warn("store: corrupt row column, using empty default",
			"table", table, "id", id, "error", err)
	}
}
