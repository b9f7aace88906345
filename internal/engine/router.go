package engine

import "github.com/gofiber/fiber/v2"

func RegisterDynamicRoutes(app *fiber.App, h *Handler, mw ...fiber.Handler) {
	api := app.Group("/api", mw...)

	api.Get("/:name", h.Serve)
	api.Post("/:name", h.Serve)
	api.Put("/:name", h.Serve)
	api.Delete("/:name", h.Serve)
}
