// Package store persists users, framework sessions and research records in
// SQLite. Every user-owned row carries a user_id and every query filters on it.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row does not exist or belongs to another user.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when a unique constraint rejects a write.
var ErrConflict = errors.New("record already exists")

// DB wraps a SQLite database connection
type DB struct {
	conn *sql.DB
	Path string
}

// Open opens a SQLite database with WAL mode and foreign keys enabled and
// applies pending migrations.
func Open(ctx context.Context, path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite serializes writers anyway; one connection also keeps ":memory:" coherent.
	conn.SetMaxOpenConns(1)

	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	d := &DB{conn: conn, Path: path}
	if err := d.Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn returns the underlying sql.DB for custom queries
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// Ping checks the connection is usable
func (d *DB) Ping(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id              TEXT PRIMARY KEY,
		username        TEXT NOT NULL UNIQUE,
		email           TEXT NOT NULL UNIQUE,
		full_name       TEXT NOT NULL DEFAULT '',
		hashed_password TEXT NOT NULL DEFAULT '',
		role            TEXT NOT NULL DEFAULT 'analyst',
		is_active       INTEGER NOT NULL DEFAULT 1,
		created_at      TEXT NOT NULL,
		last_login      TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS account_hashes (
		hash_digest TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at  TEXT NOT NULL,
		expires_at  TEXT NOT NULL,
		revoked_at  TEXT,
		last_used   TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_account_hashes_user ON account_hashes(user_id)`,
	`CREATE TABLE IF NOT EXISTS framework_sessions (
		id             TEXT PRIMARY KEY,
		user_id        TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title          TEXT NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		framework_type TEXT NOT NULL,
		status         TEXT NOT NULL DEFAULT 'draft',
		data           TEXT NOT NULL DEFAULT '{}',
		version        INTEGER NOT NULL DEFAULT 1,
		tags           TEXT NOT NULL DEFAULT '[]',
		ai_suggestions TEXT,
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_user_type ON framework_sessions(user_id, framework_type)`,
	`CREATE TABLE IF NOT EXISTS processed_urls (
		id             TEXT PRIMARY KEY,
		user_id        TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		url            TEXT NOT NULL,
		domain         TEXT NOT NULL DEFAULT '',
		title          TEXT NOT NULL DEFAULT '',
		description    TEXT NOT NULL DEFAULT '',
		author         TEXT NOT NULL DEFAULT '',
		published_date TEXT NOT NULL DEFAULT '',
		site_name      TEXT NOT NULL DEFAULT '',
		content_type   TEXT NOT NULL DEFAULT '',
		status_code    INTEGER NOT NULL DEFAULT 0,
		word_count     INTEGER NOT NULL DEFAULT 0,
		archived_url   TEXT NOT NULL DEFAULT '',
		reliability    REAL NOT NULL DEFAULT 0,
		error          TEXT NOT NULL DEFAULT '',
		created_at     TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_processed_urls_user ON processed_urls(user_id)`,
	`CREATE TABLE IF NOT EXISTS citations (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		source_type   TEXT NOT NULL,
		title         TEXT NOT NULL,
		authors       TEXT NOT NULL DEFAULT '[]',
		year          TEXT NOT NULL DEFAULT '',
		publisher     TEXT NOT NULL DEFAULT '',
		container     TEXT NOT NULL DEFAULT '',
		volume        TEXT NOT NULL DEFAULT '',
		issue         TEXT NOT NULL DEFAULT '',
		pages         TEXT NOT NULL DEFAULT '',
		url           TEXT NOT NULL DEFAULT '',
		doi           TEXT NOT NULL DEFAULT '',
		accessed_date TEXT NOT NULL DEFAULT '',
		notes         TEXT NOT NULL DEFAULT '',
		created_at    TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_citations_user ON citations(user_id)`,
	`CREATE TABLE IF NOT EXISTS research_jobs (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		job_type      TEXT NOT NULL,
		status        TEXT NOT NULL DEFAULT 'pending',
		progress      REAL NOT NULL DEFAULT 0,
		message       TEXT NOT NULL DEFAULT '',
		input_data    TEXT NOT NULL DEFAULT '{}',
		result_data   TEXT NOT NULL DEFAULT '{}',
		error_message TEXT NOT NULL DEFAULT '',
		retry_count   INTEGER NOT NULL DEFAULT 0,
		max_retries   INTEGER NOT NULL DEFAULT 3,
		created_at    TEXT NOT NULL,
		started_at    TEXT,
		completed_at  TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_research_jobs_user ON research_jobs(user_id)`,
}

// Migrate creates the schema. Statements are idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := d.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying migration %d: %w", i, err)
		}
	}
	return nil
}

// Fixed-width so that text ordering matches chronological ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// checkAffected turns a zero-row write into ErrNotFound.
func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
