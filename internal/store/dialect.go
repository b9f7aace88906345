package store

import (
	"context"
	"database/sql"

	"restbase/internal/config"
)

// Dialect abstracts the differences between the supported engines. Only the
// adapter layer varies per engine; the request pipeline never branches on
// the driver.
type Dialect interface {
	// Name returns "sqlite", "mysql" or "postgres".
	Name() string

	// DriverName returns the database/sql driver name to open.
	DriverName() string

	// DSN builds the driver-specific data source name.
	DSN(cfg config.DatabaseConfig) string

	// Placeholder returns the parameter placeholder for the given 1-based
	// index. Compiled templates carry the neutral "?" marker; the store
	// rewrites markers through this at execution time.
	Placeholder(index int) string

	// Configure applies pool sizing and per-connection settings right after
	// the connection is opened.
	Configure(ctx context.Context, db *sql.DB, cfg config.DatabaseConfig) error

	// SystemTables returns the DDL statements for the system schema.
	SystemTables() []string

	// MapError inspects a driver error and returns a well-known sentinel
	// error if applicable.
	MapError(err error) error
}

// NewDialect creates a Dialect for the given driver name.
func NewDialect(driver string) Dialect {
	switch driver {
	case "mysql":
		return &MySQLDialect{}
	case "postgres":
		return &PostgresDialect{}
	default:
		return &SQLiteDialect{}
	}
}
