package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"restbase/internal/config"
	"restbase/internal/engine"
	"restbase/internal/store"
)

func TestLocalStorage_SaveOpenDelete(t *testing.T) {
	local, err := NewLocalStorage(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	ctx := context.Background()

	if err := local.Save(ctx, "abc-123", 5, strings.NewReader("hello")); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	f, err := local.Open(ctx, "abc-123")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	b, _ := io.ReadAll(f)
	f.Close()
	if string(b) != "hello" {
		t.Fatalf("got %q", b)
	}

	if err := local.Delete(ctx, "abc-123"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := local.Open(ctx, "abc-123"); err == nil {
		t.Fatal("file still readable after delete")
	}
	// deleting again is a no-op
	if err := local.Delete(ctx, "abc-123"); err != nil {
		t.Fatalf("second delete failed: %v", err)
	}
}

func TestLocalStorage_SizeLimit(t *testing.T) {
	local, err := NewLocalStorage(t.TempDir(), 4)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	err = local.Save(context.Background(), "big", 5, strings.NewReader("hello"))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

// fixture holds one store plus its disk layout; appAs builds an app over it
// for a given caller, so tests can exercise two identities against shared
// state.
type fixture struct {
	s     *store.Store
	local *LocalStorage
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.New(context.Background(), config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"})
	if fault := s.Fault(); fault != nil {
		t.Fatalf("store faulted: %v", fault)
	}
	t.Cleanup(s.Close)

	if _, err := s.Exec(context.Background(),
		"INSERT INTO users(email, password) VALUES ('a@b.c', 'x')", nil); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	local, err := NewLocalStorage(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("init storage: %v", err)
	}
	return &fixture{s: s, local: local}
}

func (f *fixture) appAs(ident *engine.Identity) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if appErr, ok := err.(*engine.AppError); ok {
				return c.Status(appErr.Status).JSON(engine.ErrorResponse{Error: appErr})
			}
			return c.Status(500).SendString(err.Error())
		},
	})
	identMW := func(c *fiber.Ctx) error {
		if ident != nil {
			c.Locals("identity", ident)
		}
		return c.Next()
	}
	requireMW := func(c *fiber.Ctx) error {
		if engine.GetIdentity(c) == nil {
			return engine.UnauthorizedError("missing auth token")
		}
		return c.Next()
	}
	RegisterStorageRoutes(app, NewHandler(f.s, f.local), identMW, requireMW)
	return app
}

func multipartUpload(t *testing.T, app *fiber.App, filename, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	fw.Write([]byte(content)) //nolint:errcheck
	w.Close()

	req, _ := http.NewRequest("POST", "/api/_storage/", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func TestUploadAndDownload(t *testing.T) {
	f := newFixture(t)
	app := f.appAs(&engine.Identity{ID: 1, Email: "a@b.c"})

	resp := multipartUpload(t, app, "notes.txt", "file body")
	if resp.StatusCode != 201 {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("upload status %d: %s", resp.StatusCode, b)
	}

	row, err := f.s.QueryOne(context.Background(),
		"SELECT file_name, unique_name, uploaded_by FROM storage", nil)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if row["file_name"].Text() != "notes.txt" || row["uploaded_by"].Int64() != 1 {
		t.Fatalf("record = %v", row)
	}
	uniqueName := row["unique_name"].Text()
	if uniqueName == "notes.txt" || uniqueName == "" {
		t.Fatalf("unique name must not be the original: %q", uniqueName)
	}

	req, _ := http.NewRequest("GET", "/api/_storage/"+uniqueName, nil)
	dl, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if dl.StatusCode != 200 {
		t.Fatalf("download status %d", dl.StatusCode)
	}
	b, _ := io.ReadAll(dl.Body)
	if string(b) != "file body" {
		t.Fatalf("got %q", b)
	}
	if !strings.Contains(dl.Header.Get("Content-Disposition"), "notes.txt") {
		t.Fatalf("disposition = %q", dl.Header.Get("Content-Disposition"))
	}
}

func TestUpload_RequiresIdentity(t *testing.T) {
	f := newFixture(t)
	app := f.appAs(nil)
	resp := multipartUpload(t, app, "x.txt", "x")
	if resp.StatusCode != 401 {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestDelete_OnlyUploader(t *testing.T) {
	f := newFixture(t)
	uploader := f.appAs(&engine.Identity{ID: 1, Email: "a@b.c"})

	resp := multipartUpload(t, uploader, "x.txt", "x")
	if resp.StatusCode != 201 {
		t.Fatalf("upload status %d", resp.StatusCode)
	}
	row, err := f.s.QueryOne(context.Background(), "SELECT unique_name FROM storage", nil)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	uniqueName := row["unique_name"].Text()

	// someone else cannot delete it
	stranger := f.appAs(&engine.Identity{ID: 2, Email: "b@b.c"})
	req, _ := http.NewRequest("DELETE", "/api/_storage/"+uniqueName, nil)
	del, err := stranger.Test(req, -1)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if del.StatusCode != 403 {
		t.Fatalf("stranger delete status %d, want 403", del.StatusCode)
	}

	// the uploader can
	req, _ = http.NewRequest("DELETE", "/api/_storage/"+uniqueName, nil)
	del, err = uploader.Test(req, -1)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if del.StatusCode != 204 {
		t.Fatalf("delete status %d", del.StatusCode)
	}

	rows, err := f.s.QueryAll(context.Background(), "SELECT id FROM storage", nil)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(rows) != 0 {
		t.Fatal("record still present after delete")
	}
}
