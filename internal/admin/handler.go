package admin

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"restbase/internal/engine"
	"restbase/internal/store"
)

type Handler struct {
	svc      *Service
	migrator *store.Migrator
}

func NewHandler(s *store.Store) *Handler {
	return &Handler{svc: NewService(s), migrator: store.NewMigrator(s)}
}

// RegisterAdminRoutes mounts the management API. Callers are expected to
// guard the group with the auth middleware plus an admin role check.
func RegisterAdminRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	g := app.Group("/api/_admin")
	for _, m := range middleware {
		g.Use(m)
	}

	g.Get("/queries", h.listQueries)
	g.Post("/queries", h.createQuery)
	g.Get("/queries/:id", h.getQuery)
	g.Put("/queries/:id", h.updateQuery)
	g.Delete("/queries/:id", h.deleteQuery)
	g.Put("/queries/:id/access", h.setQueryAccess)
	g.Post("/queries/:id/webhooks/:webhookId", h.attachWebhook)
	g.Delete("/queries/:id/webhooks/:webhookId", h.detachWebhook)

	g.Get("/roles", h.listRoles)
	g.Post("/roles", h.createRole)
	g.Put("/roles/:id", h.updateRole)
	g.Delete("/roles/:id", h.deleteRole)

	g.Get("/users", h.listUsers)
	g.Put("/users/:id/role", h.setUserRole)
	g.Delete("/users/:id/role", h.clearUserRole)
	g.Delete("/users/:id", h.deleteUser)

	g.Get("/webhooks", h.listWebhooks)
	g.Post("/webhooks", h.createWebhook)
	g.Put("/webhooks/:id", h.updateWebhook)
	g.Delete("/webhooks/:id", h.deleteWebhook)

	g.Get("/migrations", h.listMigrations)
	g.Post("/migrations", h.createMigration)
	g.Put("/migrations/:id", h.updateMigration)
	g.Delete("/migrations/:id", h.deleteMigration)
	g.Post("/migrations/up", h.migrateUp)
	g.Post("/migrations/down", h.migrateDown)
}

type namedRequest struct {
	Name string `json:"name"`
}

type createdResponse struct {
	ID int64 `json:"id"`
}

func (h *Handler) listQueries(c *fiber.Ctx) error {
	queries, err := h.svc.ListQueries(c.Context())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(queries)
}

func (h *Handler) getQuery(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return engine.BindFault("invalid id")
	}
	q, err := h.svc.GetQuery(c.Context(), int64(id))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(q)
}

func (h *Handler) createQuery(c *fiber.Ctx) error {
	var req namedRequest
	if err := c.BodyParser(&req); err != nil || req.Name == "" {
		return engine.BindFault("name is required")
	}
	id, err := h.svc.CreateQuery(c.Context(), req.Name)
	if err != nil {
		return mapError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(createdResponse{ID: id})
}

func (h *Handler) updateQuery(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return engine.BindFault("invalid id")
	}
	var q Query
	if err := c.BodyParser(&q); err != nil {
		return engine.BindFault("invalid body")
	}
	q.ID = int64(id)
	if err := h.svc.UpdateQuery(c.Context(), q); err != nil {
		return mapError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) deleteQuery(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return engine.BindFault("invalid id")
	}
	if err := h.svc.DeleteQuery(c.Context(), int64(id)); err != nil {
		return mapError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) setQueryAccess(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return engine.BindFault("invalid id")
	}
	var req struct {
		RoleIDs []int64 `json:"role_ids"`
	}
	if err := c.BodyParser(&req); err != nil {
		return engine.BindFault("invalid body")
	}
	if err := h.svc.SetQueryAccess(c.Context(), int64(id), req.RoleIDs); err != nil {
		return mapError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) attachWebhook(c *fiber.Ctx) error {
	queryID, err := c.ParamsInt("id")
	if err != nil {
		return engine.BindFault("invalid id")
	}
	webhookID, err := c.ParamsInt("webhookId")
	if err != nil {
		return engine.BindFault("invalid webhook id")
	}
	if err := h.svc.AttachWebhook(c.Context(), int64(webhookID), int64(queryID)); err != nil {
		return mapError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) detachWebhook(c *fiber.Ctx) error {
	queryID, err := c.ParamsInt("id")
	if err != nil {
		return engine.BindFault("invalid id")
	}
	webhookID, err := c.ParamsInt("webhookId")
	if err != nil {
		return engine.BindFault("invalid webhook id")
	}
	if err := h.svc.DetachWebhook(c.Context(), int64(webhookID), int64(queryID)); err != nil {
		return mapError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) listRoles(c *fiber.Ctx) error {
	roles, err := h.svc.ListRoles(c.Context())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(roles)
}

func (h *Handler) createRole(c *fiber.Ctx) error {
	var req namedRequest
	if err := c.BodyParser(&req); err != nil || req.Name == "" {
		return engine.BindFault("name is required")
	}
	id, err := h.svc.CreateRole(c.Context(), req.Name)
	if err != nil {
		return mapError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(createdResponse{ID: id})
}

func (h *Handler) updateRole(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return engine.BindFault("invalid id")
	}
	var role Role
	if err := c.BodyParser(&role); err != nil {
		return engine.BindFault("invalid body")
	}
	role.ID = int64(id)
	if err := h.svc.UpdateRole(c.Context(), role); err != nil {
		return mapError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) deleteRole(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return engine.BindFault("invalid id")
	}
	if err := h.svc.DeleteRole(c.Context(), int64(id)); err != nil {
		return mapError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) listUsers(c *fiber.Ctx) error {
	users, err := h.svc.ListUsers(c.Context())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(users)
}

func (h *Handler) setUserRole(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return engine.BindFault("invalid id")
	}
	var req struct {
		RoleID int64 `json:"role_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return engine.BindFault("invalid body")
	}
	if err := h.svc.SetUserRole(c.Context(), int64(id), req.RoleID); err != nil {
		return mapError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) clearUserRole(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return engine.BindFault("invalid id")
	}
	if err := h.svc.ClearUserRole(c.Context(), int64(id)); err != nil {
		return mapError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) deleteUser(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return engine.BindFault("invalid id")
	}
	if err := h.svc.DeleteUser(c.Context(), int64(id)); err != nil {
		return mapError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) listWebhooks(c *fiber.Ctx) error {
	webhooks, err := h.svc.ListWebhooks(c.Context())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(webhooks)
}

func (h *Handler) createWebhook(c *fiber.Ctx) error {
	var req namedRequest
	if err := c.BodyParser(&req); err != nil || req.Name == "" {
		return engine.BindFault("name is required")
	}
	id, err := h.svc.CreateWebhook(c.Context(), req.Name)
	if err != nil {
		return mapError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(createdResponse{ID: id})
}

func (h *Handler) updateWebhook(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return engine.BindFault("invalid id")
	}
	var w Webhook
	if err := c.BodyParser(&w); err != nil {
		return engine.BindFault("invalid body")
	}
	w.ID = int64(id)
	if err := h.svc.UpdateWebhook(c.Context(), w); err != nil {
		return mapError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) deleteWebhook(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return engine.BindFault("invalid id")
	}
	if err := h.svc.DeleteWebhook(c.Context(), int64(id)); err != nil {
		return mapError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) listMigrations(c *fiber.Ctx) error {
	migrations, err := h.migrator.All(c.Context())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(migrations)
}

func (h *Handler) createMigration(c *fiber.Ctx) error {
	var req namedRequest
	if err := c.BodyParser(&req); err != nil || req.Name == "" {
		return engine.BindFault("name is required")
	}
	id, err := h.svc.CreateMigration(c.Context(), req.Name)
	if err != nil {
		return mapError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(createdResponse{ID: id})
}

func (h *Handler) updateMigration(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return engine.BindFault("invalid id")
	}
	var m store.Migration
	if err := c.BodyParser(&m); err != nil {
		return engine.BindFault("invalid body")
	}
	m.ID = int64(id)
	if err := h.svc.UpdateMigration(c.Context(), m); err != nil {
		return mapError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) deleteMigration(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return engine.BindFault("invalid id")
	}
	if err := h.svc.DeleteMigration(c.Context(), int64(id)); err != nil {
		return mapError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) migrateUp(c *fiber.Ctx) error {
	n, err := h.migrator.Up(c.Context())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"applied": n})
}

func (h *Handler) migrateDown(c *fiber.Ctx) error {
	n, err := h.migrator.Down(c.Context())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"reverted": n})
}

func mapError(err error) error {
	var fault *store.Fault
	if errors.As(err, &fault) {
		return engine.ConnectivityFault(fault.Message)
	}
	if errors.Is(err, store.ErrNotFound) {
		return engine.NewAppError("NOT_FOUND", fiber.StatusNotFound, "no such record")
	}
	if errors.Is(err, store.ErrUniqueViolation) {
		return engine.NewAppError("CONFLICT", fiber.StatusConflict, "name already in use")
	}
	return engine.ExecutionFault(err)
}
