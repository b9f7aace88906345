package admin

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"restbase/internal/engine"
	"restbase/internal/store"
)

func adminApp(t *testing.T, ident *engine.Identity) *fiber.App {
	t.Helper()
	svc := testService(t)

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
	gateMW := func(c *fiber.Ctx) error {
		id := engine.GetIdentity(c)
		if id == nil {
			return engine.UnauthorizedError("missing auth token")
		}
		if id.RoleName != "admin" {
			return engine.ForbiddenError("role admin required")
		}
		return c.Next()
	}
	RegisterAdminRoutes(app, &Handler{svc: svc, migrator: store.NewMigrator(svc.store)}, identMW, gateMW)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, _ := http.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, b
}

func TestAdminRoutes_RequireAdminRole(t *testing.T) {
	app := adminApp(t, nil)
	resp, _ := do(t, app, "GET", "/api/_admin/queries", "")
	if resp.StatusCode != 401 {
		t.Fatalf("anonymous status %d", resp.StatusCode)
	}

	app = adminApp(t, &engine.Identity{ID: 1, Email: "u@x.y", RoleName: "member"})
	resp, _ = do(t, app, "GET", "/api/_admin/queries", "")
	if resp.StatusCode != 403 {
		t.Fatalf("member status %d", resp.StatusCode)
	}
}

func TestAdminRoutes_QueryLifecycle(t *testing.T) {
	app := adminApp(t, &engine.Identity{ID: 1, Email: "a@x.y", RoleName: "admin"})

	resp, body := do(t, app, "POST", "/api/_admin/queries", `{"name":"todos/list"}`)
	if resp.StatusCode != 201 {
		t.Fatalf("create status %d: %s", resp.StatusCode, body)
	}

	resp, body = do(t, app, "PUT", "/api/_admin/queries/1",
		`{"name":"todos/list","exec_type":"get","query":"SELECT 1 AS one"}`)
	if resp.StatusCode != 204 {
		t.Fatalf("update status %d: %s", resp.StatusCode, body)
	}

	resp, body = do(t, app, "GET", "/api/_admin/queries/1", "")
	if resp.StatusCode != 200 || !strings.Contains(string(body), "todos/list") {
		t.Fatalf("get status %d: %s", resp.StatusCode, body)
	}

	resp, _ = do(t, app, "DELETE", "/api/_admin/queries/1", "")
	if resp.StatusCode != 204 {
		t.Fatalf("delete status %d", resp.StatusCode)
	}
	resp, _ = do(t, app, "GET", "/api/_admin/queries/1", "")
	if resp.StatusCode != 404 {
		t.Fatalf("get after delete status %d", resp.StatusCode)
	}
}

func TestAdminRoutes_MigrationsUpDown(t *testing.T) {
	app := adminApp(t, &engine.Identity{ID: 1, Email: "a@x.y", RoleName: "admin"})

	resp, body := do(t, app, "POST", "/api/_admin/migrations", `{"name":"create_todos"}`)
	if resp.StatusCode != 201 {
		t.Fatalf("create status %d: %s", resp.StatusCode, body)
	}
	resp, body = do(t, app, "PUT", "/api/_admin/migrations/1",
		`{"name":"create_todos","up_query":"CREATE TABLE todos (id INTEGER PRIMARY KEY)","down_query":"DROP TABLE todos"}`)
	if resp.StatusCode != 204 {
		t.Fatalf("update status %d: %s", resp.StatusCode, body)
	}

	resp, body = do(t, app, "POST", "/api/_admin/migrations/up", "")
	if resp.StatusCode != 200 || !strings.Contains(string(body), `"applied":1`) {
		t.Fatalf("up status %d: %s", resp.StatusCode, body)
	}
	resp, body = do(t, app, "POST", "/api/_admin/migrations/down", "")
	if resp.StatusCode != 200 || !strings.Contains(string(body), `"reverted":1`) {
		t.Fatalf("down status %d: %s", resp.StatusCode, body)
	}
}
