// Package server assembles the fiber application: middleware, the fixed
// auth/admin/storage surfaces and the dynamic query endpoints, plus the
// lifecycle around them.
package server

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"restbase/internal/admin"
	"restbase/internal/auth"
	"restbase/internal/config"
	"restbase/internal/engine"
	"restbase/internal/storage"
	"restbase/internal/store"
)

// App owns the HTTP listener. Reconfigure drains the old listener within
// the configured grace period and brings up a new one, so admin-side
// config edits take effect without killing in-flight requests abruptly.
type App struct {
	cfg   *config.Config
	store *store.Store
	local *storage.LocalStorage
	fiber *fiber.App
}

func New(cfg *config.Config, st *store.Store) (*App, error) {
	local, err := storage.NewLocalStorage(cfg.Storage.LocalPath, cfg.Storage.MaxFileSize)
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, store: st, local: local}
	a.fiber = a.build()
	return a, nil
}

func (a *App) build() *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	if len(a.cfg.Server.AllowedOrigins) > 0 {
		app.Use(cors.New(cors.Config{
			AllowOrigins: strings.Join(a.cfg.Server.AllowedOrigins, ","),
			AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		}))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		if fault := a.store.Fault(); fault != nil {
			return engine.ConnectivityFault(fault.Message)
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	authHandler := auth.NewHandler(a.store, a.cfg.JWTSecret)
	auth.RegisterAuthRoutes(app, authHandler)

	authMW := auth.Middleware(a.cfg.JWTSecret)

	adminHandler := admin.NewHandler(a.store)
	admin.RegisterAdminRoutes(app, adminHandler, authMW, auth.RequireRole("admin"))

	storageHandler := storage.NewHandler(a.store, a.local)
	storage.RegisterStorageRoutes(app, storageHandler, authMW, auth.RequireIdentity())

	engineHandler := engine.NewHandler(a.store)
	engine.RegisterDynamicRoutes(app, engineHandler, authMW)

	return app
}

// Run blocks on the listener until it is shut down.
func (a *App) Run() error {
	addr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	log.Printf("listening on %s", addr)
	return a.fiber.Listen(addr)
}

// Reconfigure swaps in a new configuration. The old listener drains for at
// most the grace period; Run must be called again afterwards.
func (a *App) Reconfigure(cfg *config.Config) error {
	grace := time.Duration(cfg.Server.GracePeriodSec) * time.Second
	if grace <= 0 {
		grace = 10 * time.Second
	}
	if err := a.fiber.ShutdownWithTimeout(grace); err != nil {
		return fmt.Errorf("drain listener: %w", err)
	}

	local, err := storage.NewLocalStorage(cfg.Storage.LocalPath, cfg.Storage.MaxFileSize)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.local = local
	a.fiber = a.build()
	return nil
}

// Shutdown drains the listener within the grace period.
func (a *App) Shutdown() error {
	grace := time.Duration(a.cfg.Server.GracePeriodSec) * time.Second
	if grace <= 0 {
		grace = 10 * time.Second
	}
	return a.fiber.ShutdownWithTimeout(grace)
}

// Fiber exposes the underlying app, mainly for in-process test dispatch.
func (a *App) Fiber() *fiber.App {
	return a.fiber
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}

	var appErr *engine.AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(engine.ErrorResponse{Error: appErr})
	}

	log.Printf("ERROR: %v", err)
	return c.Status(code).JSON(engine.ErrorResponse{
		Error: engine.NewAppError("INTERNAL", code, err.Error()),
	})
}
