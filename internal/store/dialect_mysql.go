package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"restbase/internal/config"
)

// MySQLDialect implements Dialect for MySQL via go-sql-driver/mysql, with a
// sized connection pool.
type MySQLDialect struct{}

func (d *MySQLDialect) Name() string       { return "mysql" }
func (d *MySQLDialect) DriverName() string { return "mysql" }

func (d *MySQLDialect) DSN(cfg config.DatabaseConfig) string {
	// parseTime makes DATE/DATETIME scan as time.Time instead of []byte.
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)
}

func (d *MySQLDialect) Placeholder(int) string { return "?" }

func (d *MySQLDialect) Configure(_ context.Context, db *sql.DB, cfg config.DatabaseConfig) error {
	if cfg.PoolSize > 0 {
		db.SetMaxOpenConns(cfg.PoolSize)
		db.SetMaxIdleConns(cfg.PoolSize)
	}
	db.SetConnMaxLifetime(time.Hour)
	return nil
}

func (d *MySQLDialect) SystemTables() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS roles (
			id INTEGER NOT NULL PRIMARY KEY AUTO_INCREMENT,
			name VARCHAR(255) NOT NULL UNIQUE,
			is_default BOOLEAN NOT NULL DEFAULT 0,
			can_read BOOLEAN NOT NULL DEFAULT 0,
			can_write BOOLEAN NOT NULL DEFAULT 0,
			can_delete BOOLEAN NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER NOT NULL PRIMARY KEY AUTO_INCREMENT,
			email VARCHAR(100) NOT NULL UNIQUE,
			password VARCHAR(255) NOT NULL,
			role_id INTEGER,
			FOREIGN KEY (role_id) REFERENCES roles (id)
		)`,
		`CREATE TABLE IF NOT EXISTS storage (
			id INTEGER NOT NULL PRIMARY KEY AUTO_INCREMENT,
			file_name VARCHAR(255) NOT NULL,
			unique_name VARCHAR(36) NOT NULL UNIQUE,
			uploaded_by INTEGER NOT NULL,
			FOREIGN KEY (uploaded_by) REFERENCES users (id)
		)`,
		`CREATE TABLE IF NOT EXISTS queries (
			id INTEGER NOT NULL PRIMARY KEY AUTO_INCREMENT,
			name VARCHAR(255) NOT NULL UNIQUE,
			exec_type VARCHAR(50) NOT NULL DEFAULT 'get' CHECK (exec_type IN ('get', 'post', 'put', 'delete')),
			query TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS role_access (
			role_id INTEGER NOT NULL,
			query_id INTEGER NOT NULL,
			FOREIGN KEY (role_id) REFERENCES roles (id),
			FOREIGN KEY (query_id) REFERENCES queries (id) ON DELETE CASCADE,
			UNIQUE (role_id, query_id)
		)`,
		`CREATE TABLE IF NOT EXISTS webhooks (
			id INTEGER NOT NULL PRIMARY KEY AUTO_INCREMENT,
			name VARCHAR(255) NOT NULL UNIQUE,
			exec_type VARCHAR(50) NOT NULL DEFAULT 'post' CHECK (exec_type IN ('get', 'post', 'put', 'delete')),
			url VARCHAR(2048) NOT NULL DEFAULT '',
			action VARCHAR(10) NOT NULL DEFAULT 'before' CHECK (action IN ('before', 'after')),
			condition_expr TEXT,
			args JSON,
			is_returned BOOLEAN NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS webhook_query (
			webhook_id INTEGER NOT NULL,
			query_id INTEGER NOT NULL,
			FOREIGN KEY (webhook_id) REFERENCES webhooks (id) ON DELETE CASCADE,
			FOREIGN KEY (query_id) REFERENCES queries (id) ON DELETE CASCADE,
			UNIQUE (webhook_id, query_id)
		)`,
		`CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER NOT NULL PRIMARY KEY AUTO_INCREMENT,
			name VARCHAR(255) NOT NULL UNIQUE,
			up_query TEXT,
			down_query TEXT,
			executed BOOLEAN NOT NULL DEFAULT 0
		)`,
	}
}

func (d *MySQLDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return ErrUniqueViolation
	}
	return err
}
