package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"restbase/internal/engine"
)

// Middleware resolves an optional Bearer token into the request identity.
// Anonymous requests pass through: public endpoints need no identity, and
// role gating happens per query definition in the engine.
func Middleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return c.Next()
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return engine.UnauthorizedError("invalid auth header format")
		}

		ident, err := ParseToken(parts[1], secret)
		if err != nil {
			return engine.UnauthorizedError("invalid or expired token")
		}

		c.Locals("identity", ident)
		return c.Next()
	}
}

// RequireIdentity rejects anonymous requests. Used for the storage and
// admin surfaces, which never serve public callers.
func RequireIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if engine.GetIdentity(c) == nil {
			return engine.UnauthorizedError("missing auth token")
		}
		return c.Next()
	}
}

// RequireRole rejects callers whose resolved role is not the named one.
func RequireRole(name string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ident := engine.GetIdentity(c)
		if ident == nil {
			return engine.UnauthorizedError("missing auth token")
		}
		if ident.RoleName != name {
			return engine.ForbiddenError("role " + name + " required")
		}
		return c.Next()
	}
}
