package store

import (
	"context"
	"errors"
	"testing"

	"restbase/internal/cell"
	"restbase/internal/config"
)

func memoryStore(t *testing.T) *Store {
	t.Helper()
	s := New(context.Background(), config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"})
	if fault := s.Fault(); fault != nil {
		t.Fatalf("store faulted: %v", fault)
	}
	t.Cleanup(s.Close)
	return s
}

func TestStore_ExecAndQueryRoundTrip(t *testing.T) {
	s := memoryStore(t)
	ctx := context.Background()

	n, err := s.Exec(ctx,
		"INSERT INTO roles(name, is_default) VALUES (?, ?)",
		[]cell.Cell{cell.Str("editor"), cell.Bool(true)})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 affected row, got %d", n)
	}

	rows, err := s.QueryAll(ctx,
		"SELECT id, name, is_default FROM roles WHERE name=?",
		[]cell.Cell{cell.Str("editor")})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	if row["id"].Kind() != cell.KindInteger {
		t.Fatalf("id decoded as %s", row["id"].Kind())
	}
	if row["name"].Text() != "editor" {
		t.Fatalf("name = %q", row["name"].Text())
	}
	if row["is_default"].Kind() != cell.KindBool || !row["is_default"].Boolean() {
		t.Fatalf("is_default = (%s, %v)", row["is_default"].Kind(), row["is_default"].Boolean())
	}
}

func TestStore_QueryOneNotFound(t *testing.T) {
	s := memoryStore(t)
	_, err := s.QueryOne(context.Background(),
		"SELECT id FROM roles WHERE name=?", []cell.Cell{cell.Str("ghost")})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_UniqueViolationMapped(t *testing.T) {
	s := memoryStore(t)
	ctx := context.Background()

	if _, err := s.Exec(ctx, "INSERT INTO roles(name) VALUES (?)",
		[]cell.Cell{cell.Str("dup")}); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	_, err := s.Exec(ctx, "INSERT INTO roles(name) VALUES (?)",
		[]cell.Cell{cell.Str("dup")})
	if !errors.Is(err, ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got %v", err)
	}
}

func TestStore_NullRoundTrip(t *testing.T) {
	s := memoryStore(t)
	ctx := context.Background()

	if _, err := s.Exec(ctx,
		"INSERT INTO users(email, password, role_id) VALUES (?, ?, ?)",
		[]cell.Cell{cell.Str("a@b.c"), cell.Str("x"), cell.Null(cell.KindInteger)}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	row, err := s.QueryOne(ctx,
		"SELECT role_id FROM users WHERE email=?", []cell.Cell{cell.Str("a@b.c")})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if !row["role_id"].IsNull() || row["role_id"].Kind() != cell.KindInteger {
		t.Fatalf("role_id = (%s, null=%v)", row["role_id"].Kind(), row["role_id"].IsNull())
	}
}

func TestStore_StructuredBindRejected(t *testing.T) {
	s := memoryStore(t)
	_, err := s.Exec(context.Background(),
		"INSERT INTO roles(name) VALUES (?)",
		[]cell.Cell{cell.Array([]cell.Cell{cell.Int(1)})})
	if !errors.Is(err, cell.ErrUnsupportedBind) {
		t.Fatalf("expected ErrUnsupportedBind, got %v", err)
	}
}

// A store that cannot reach its database carries the fault and fails every
// operation with it instead of panicking or retrying.
func TestStore_FaultFailsFast(t *testing.T) {
	s := New(context.Background(), config.DatabaseConfig{
		Driver: "sqlite",
		Name:   "nope",
		Path:   "/proc/definitely-missing",
	})
	defer s.Close()

	fault := s.Fault()
	if fault == nil {
		t.Fatal("expected startup fault")
	}
	if fault.Code != "CONNECTIVITY_FAULT" {
		t.Fatalf("fault code = %s", fault.Code)
	}

	if _, err := s.QueryAll(context.Background(), "SELECT 1", nil); !errors.Is(err, fault) {
		t.Fatalf("expected stored fault, got %v", err)
	}
	if _, err := s.Exec(context.Background(), "SELECT 1", nil); !errors.Is(err, fault) {
		t.Fatalf("expected stored fault, got %v", err)
	}
}

func TestExpandMarkers_Postgres(t *testing.T) {
	s := &Store{dialect: &PostgresDialect{}}
	got := s.expandMarkers(`INSERT INTO t(a, b, c) VALUES (?, '?', ?)`)
	want := `INSERT INTO t(a, b, c) VALUES ($1, '?', $2)`
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestExpandMarkers_NoOpForNativeMarker(t *testing.T) {
	s := &Store{dialect: &SQLiteDialect{}}
	in := "SELECT * FROM t WHERE a=? AND b=?"
	if got := s.expandMarkers(in); got != in {
		t.Fatalf("sqlite expansion changed text: %s", got)
	}
}
