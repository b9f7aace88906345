package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"restbase/internal/auth"
	"restbase/internal/cell"
	"restbase/internal/config"
	"restbase/internal/engine"
	"restbase/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server:    config.ServerConfig{Port: 0, GracePeriodSec: 1},
		Database:  config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"},
		Storage:   config.StorageConfig{LocalPath: t.TempDir()},
		JWTSecret: "test-secret",
	}
}

func testApp(t *testing.T) (*App, *store.Store) {
	t.Helper()
	cfg := testConfig(t)
	s := store.New(context.Background(), cfg.Database)
	if fault := s.Fault(); fault != nil {
		t.Fatalf("store faulted: %v", fault)
	}
	t.Cleanup(s.Close)

	app, err := New(cfg, s)
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	return app, s
}

func TestHealth(t *testing.T) {
	app, _ := testApp(t)
	req, _ := http.NewRequest("GET", "/health", nil)
	resp, err := app.Fiber().Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestHealth_ReportsStoredFault(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Path = "/proc/definitely-missing"
	cfg.Database.Name = "nope"
	s := store.New(context.Background(), cfg.Database)
	defer s.Close()
	if s.Fault() == nil {
		t.Fatal("expected startup fault")
	}

	app, err := New(cfg, s)
	if err != nil {
		t.Fatalf("build app: %v", err)
	}

	req, _ := http.NewRequest("GET", "/health", nil)
	resp, err := app.Fiber().Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 503 {
		t.Fatalf("status %d, want 503", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	var er engine.ErrorResponse
	if err := json.Unmarshal(b, &er); err != nil || er.Error == nil {
		t.Fatalf("not an error response: %s", b)
	}
	if er.Error.Code != "CONNECTIVITY_FAULT" {
		t.Fatalf("code = %s", er.Error.Code)
	}
}

// An end-to-end pass through the assembled app: register, seed an endpoint
// via SQL, call it with the issued token.
func TestFullRequestFlow(t *testing.T) {
	app, s := testApp(t)
	ctx := context.Background()

	if _, err := s.Exec(ctx, "INSERT INTO roles(name, is_default) VALUES (?, ?)",
		[]cell.Cell{cell.Str("member"), cell.Bool(true)}); err != nil {
		t.Fatalf("seed role: %v", err)
	}
	if _, err := s.Exec(ctx, "CREATE TABLE notes (id INTEGER PRIMARY KEY, owner INTEGER, body TEXT)", nil); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := s.Exec(ctx,
		"INSERT INTO queries(name, exec_type, query) VALUES (?, ?, ?)",
		[]cell.Cell{cell.Str("notes/create"), cell.Str("post"),
			cell.Str("INSERT INTO notes(owner, body) VALUES (${.USER_ID}, ${body})")}); err != nil {
		t.Fatalf("seed query: %v", err)
	}

	reg, _ := http.NewRequest("POST", "/auth/register",
		strings.NewReader(`{"email":"ada@example.com","password":"hunter2"}`))
	reg.Header.Set("Content-Type", "application/json")
	resp, err := app.Fiber().Test(reg, -1)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if resp.StatusCode != 201 {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("register status %d: %s", resp.StatusCode, b)
	}
	var issued struct {
		Token string `json:"token"`
	}
	b, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(b, &issued); err != nil || issued.Token == "" {
		t.Fatalf("bad register response: %s", b)
	}

	call, _ := http.NewRequest("POST", "/api/notes_create",
		strings.NewReader(`{"body":"from the top"}`))
	call.Header.Set("Content-Type", "application/json")
	call.Header.Set("Authorization", "Bearer "+issued.Token)
	resp, err = app.Fiber().Test(call, -1)
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("call status %d: %s", resp.StatusCode, b)
	}

	ident, err := auth.ParseToken(issued.Token, "test-secret")
	if err != nil {
		t.Fatalf("token invalid: %v", err)
	}
	row, err := s.QueryOne(ctx, "SELECT owner, body FROM notes", nil)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if row["owner"].Int64() != ident.ID || row["body"].Text() != "from the top" {
		t.Fatalf("bound (%d, %q), want (%d, %q)",
			row["owner"].Int64(), row["body"].Text(), ident.ID, "from the top")
	}
}

func TestAdminSurfaceGated(t *testing.T) {
	app, _ := testApp(t)
	req, _ := http.NewRequest("GET", "/api/_admin/queries", nil)
	resp, err := app.Fiber().Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 401 {
		t.Fatalf("status %d, want 401", resp.StatusCode)
	}
}
