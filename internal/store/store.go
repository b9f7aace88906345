// Package store is the backend adapter: it binds typed cells to one
// concrete engine's prepared-statement API and decodes result rows back
// into cells using column-type introspection.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql" // register mysql driver
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver
	_ "modernc.org/sqlite"             // register sqlite as database/sql driver

	"restbase/internal/cell"
	"restbase/internal/config"
)

var ErrNotFound = errors.New("not found")
var ErrUniqueViolation = errors.New("unique constraint violation")

// Fault is a connectivity failure captured at startup. It is stored on the
// adapter instead of raised, so the owning process can report it without
// crashing; every operation on a faulted store fails fast with it.
type Fault struct {
	Code    string
	Message string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// Store wraps one engine's connection pool behind the typed-cell API.
type Store struct {
	db      *sql.DB
	dialect Dialect
	fault   *Fault
}

// New eagerly establishes the connection and creates the system tables.
// It always returns a usable *Store: on failure the fault is recorded and
// surfaced by every subsequent call.
func New(ctx context.Context, cfg config.DatabaseConfig) *Store {
	dialect := NewDialect(cfg.Driver)
	s := &Store{dialect: dialect}

	db, err := sql.Open(dialect.DriverName(), dialect.DSN(cfg))
	if err != nil {
		s.fault = &Fault{Code: "CONNECTIVITY_FAULT", Message: fmt.Sprintf("open database: %v", err)}
		return s
	}
	s.db = db

	if err := dialect.Configure(ctx, db, cfg); err != nil {
		s.fault = &Fault{Code: "CONNECTIVITY_FAULT", Message: fmt.Sprintf("configure connection: %v", err)}
		return s
	}
	if err := db.PingContext(ctx); err != nil {
		s.fault = &Fault{Code: "CONNECTIVITY_FAULT", Message: fmt.Sprintf("ping: %v", err)}
		return s
	}
	for _, ddl := range dialect.SystemTables() {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			s.fault = &Fault{Code: "CONNECTIVITY_FAULT", Message: fmt.Sprintf("create system tables: %v", err)}
			return s
		}
	}

	return s
}

// Fault returns the stored startup fault, or nil when the store is healthy.
func (s *Store) Fault() *Fault { return s.fault }

// Dialect returns the active dialect.
func (s *Store) Dialect() Dialect { return s.dialect }

// Close closes the connection pool.
func (s *Store) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

func (s *Store) guard() error {
	if s.fault != nil {
		return s.fault
	}
	return nil
}

// QueryAll executes a read statement and decodes every row.
func (s *Store) QueryAll(ctx context.Context, sqlStr string, args []cell.Cell) ([]cell.Row, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	bound, err := bind(args)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.expandMarkers(sqlStr), bound...)
	if err != nil {
		return nil, s.dialect.MapError(err)
	}
	defer rows.Close()
	return DecodeRows(rows)
}

// QueryOne executes a read statement expected to yield one row.
func (s *Store) QueryOne(ctx context.Context, sqlStr string, args []cell.Cell) (cell.Row, error) {
	out, err := s.QueryAll(ctx, sqlStr, args)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out[0], nil
}

// Exec executes a write statement and returns the affected-row count.
func (s *Store) Exec(ctx context.Context, sqlStr string, args []cell.Cell) (int64, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}
	bound, err := bind(args)
	if err != nil {
		return 0, err
	}
	result, err := s.db.ExecContext(ctx, s.expandMarkers(sqlStr), bound...)
	if err != nil {
		return 0, s.dialect.MapError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// bind encodes every cell before the driver sees any of them; the first
// failure aborts the whole statement so it never runs partially bound.
func bind(args []cell.Cell) ([]any, error) {
	bound := make([]any, len(args))
	for i, c := range args {
		v, err := c.Encode()
		if err != nil {
			return nil, fmt.Errorf("bind parameter %d: %w", i+1, err)
		}
		bound[i] = v
	}
	return bound, nil
}

// DecodeRows converts a result set into typed-cell rows. The cell variant
// for each column comes from the driver's reported type name, never from
// the runtime value.
func DecodeRows(rows *sql.Rows) ([]cell.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("get columns: %w", err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("get column types: %w", err)
	}

	var out []cell.Row
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		row := make(cell.Row, len(columns))
		for i, col := range columns {
			c, err := cell.Decode(types[i].DatabaseTypeName(), values[i])
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", col, err)
			}
			row[col] = c
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// expandMarkers rewrites the neutral "?" markers into the dialect's
// placeholder form, counting left to right and skipping quoted literals.
func (s *Store) expandMarkers(sqlStr string) string {
	if s.dialect.Placeholder(1) == "?" {
		return sqlStr
	}

	var out strings.Builder
	out.Grow(len(sqlStr) + 8)
	n := 0
	var quote byte
	for i := 0; i < len(sqlStr); i++ {
		ch := sqlStr[i]
		if quote != 0 {
			out.WriteByte(ch)
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
			out.WriteByte(ch)
		case '?':
			n++
			out.WriteString(s.dialect.Placeholder(n))
		default:
			out.WriteByte(ch)
		}
	}
	return out.String()
}
