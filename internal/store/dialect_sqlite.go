package store

import (
	"context"
	"database/sql"
	"strings"

	"restbase/internal/config"
)

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
// SQLite is the lightweight file-backed engine: a single pooled connection
// with WAL enabled so concurrent readers are not starved by the writer.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) DSN(cfg config.DatabaseConfig) string {
	if cfg.Name == ":memory:" {
		return ":memory:"
	}
	return cfg.Path + "/" + cfg.Name + ".db"
}

func (d *SQLiteDialect) Placeholder(int) string { return "?" }

func (d *SQLiteDialect) Configure(ctx context.Context, db *sql.DB, cfg config.DatabaseConfig) error {
	// Single writer; database/sql serializes all access through one conn.
	db.SetMaxOpenConns(1)
	if cfg.Name != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			return err
		}
	}
	_, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON")
	return err
}

func (d *SQLiteDialect) SystemTables() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS roles (
			id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			is_default BOOLEAN NOT NULL DEFAULT 0,
			can_read BOOLEAN NOT NULL DEFAULT 0,
			can_write BOOLEAN NOT NULL DEFAULT 0,
			can_delete BOOLEAN NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			role_id INTEGER REFERENCES roles (id)
		)`,
		`CREATE TABLE IF NOT EXISTS storage (
			id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
			file_name TEXT NOT NULL,
			unique_name VARCHAR(36) NOT NULL UNIQUE,
			uploaded_by INTEGER NOT NULL REFERENCES users (id)
		)`,
		`CREATE TABLE IF NOT EXISTS queries (
			id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			exec_type TEXT NOT NULL DEFAULT 'get' CHECK (exec_type IN ('get', 'post', 'put', 'delete')),
			query TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS role_access (
			role_id INTEGER NOT NULL REFERENCES roles (id),
			query_id INTEGER NOT NULL REFERENCES queries (id) ON DELETE CASCADE,
			UNIQUE (role_id, query_id)
		)`,
		`CREATE TABLE IF NOT EXISTS webhooks (
			id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			exec_type TEXT NOT NULL DEFAULT 'post' CHECK (exec_type IN ('get', 'post', 'put', 'delete')),
			url TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL DEFAULT 'before' CHECK (action IN ('before', 'after')),
			condition_expr TEXT NOT NULL DEFAULT '',
			args TEXT NOT NULL DEFAULT '{}',
			is_returned BOOLEAN NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS webhook_query (
			webhook_id INTEGER NOT NULL REFERENCES webhooks (id) ON DELETE CASCADE,
			query_id INTEGER NOT NULL REFERENCES queries (id) ON DELETE CASCADE,
			UNIQUE (webhook_id, query_id)
		)`,
		`CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			up_query TEXT NOT NULL DEFAULT '',
			down_query TEXT NOT NULL DEFAULT '',
			executed BOOLEAN NOT NULL DEFAULT 0
		)`,
	}
}

func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed") && strings.Contains(msg, "unique") {
		return ErrUniqueViolation
	}
	return err
}
