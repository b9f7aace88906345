package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"restbase/internal/config"
)

// PostgresDialect implements Dialect for PostgreSQL via the pgx stdlib
// driver, with a sized connection pool.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) DSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)
}

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *PostgresDialect) Configure(_ context.Context, db *sql.DB, cfg config.DatabaseConfig) error {
	if cfg.PoolSize > 0 {
		db.SetMaxOpenConns(cfg.PoolSize)
		db.SetMaxIdleConns(cfg.PoolSize)
	}
	return nil
}

func (d *PostgresDialect) SystemTables() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS roles (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			is_default BOOLEAN NOT NULL DEFAULT false,
			can_read BOOLEAN NOT NULL DEFAULT false,
			can_write BOOLEAN NOT NULL DEFAULT false,
			can_delete BOOLEAN NOT NULL DEFAULT false
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			role_id BIGINT REFERENCES roles (id)
		)`,
		`CREATE TABLE IF NOT EXISTS storage (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			file_name TEXT NOT NULL,
			unique_name VARCHAR(36) NOT NULL UNIQUE,
			uploaded_by BIGINT NOT NULL REFERENCES users (id)
		)`,
		`CREATE TABLE IF NOT EXISTS queries (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			exec_type TEXT NOT NULL DEFAULT 'get' CHECK (exec_type IN ('get', 'post', 'put', 'delete')),
			query TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS role_access (
			role_id BIGINT NOT NULL REFERENCES roles (id),
			query_id BIGINT NOT NULL REFERENCES queries (id) ON DELETE CASCADE,
			UNIQUE (role_id, query_id)
		)`,
		`CREATE TABLE IF NOT EXISTS webhooks (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			exec_type TEXT NOT NULL DEFAULT 'post' CHECK (exec_type IN ('get', 'post', 'put', 'delete')),
			url TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL DEFAULT 'before' CHECK (action IN ('before', 'after')),
			condition_expr TEXT NOT NULL DEFAULT '',
			args TEXT NOT NULL DEFAULT '{}',
			is_returned BOOLEAN NOT NULL DEFAULT false
		)`,
		`CREATE TABLE IF NOT EXISTS webhook_query (
			webhook_id BIGINT NOT NULL REFERENCES webhooks (id) ON DELETE CASCADE,
			query_id BIGINT NOT NULL REFERENCES queries (id) ON DELETE CASCADE,
			UNIQUE (webhook_id, query_id)
		)`,
		`CREATE TABLE IF NOT EXISTS migrations (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			up_query TEXT NOT NULL DEFAULT '',
			down_query TEXT NOT NULL DEFAULT '',
			executed BOOLEAN NOT NULL DEFAULT false
		)`,
	}
}

func (d *PostgresDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrUniqueViolation
	}
	return err
}
