package auth

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"restbase/internal/cell"
	"restbase/internal/engine"
	"restbase/internal/store"
)

// Handler exposes credential issuance. The engine itself never sees
// passwords; it only consumes the identity a token resolves to.
type Handler struct {
	store     *store.Store
	jwtSecret string
}

func NewHandler(s *store.Store, jwtSecret string) *Handler {
	return &Handler{store: s, jwtSecret: jwtSecret}
}

func RegisterAuthRoutes(app *fiber.App, h *Handler) {
	auth := app.Group("/auth")
	auth.Post("/register", h.Register)
	auth.Post("/login", h.Login)
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Token string `json:"token"`
}

// Register handles POST /auth/register. New users carry no role row; they
// resolve to the current default role at read time.
func (h *Handler) Register(c *fiber.Ctx) error {
	var body credentials
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "invalid request body")
	}
	if body.Email == "" || body.Password == "" {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "email and password are required")
	}

	hash, err := HashPassword(body.Password)
	if err != nil {
		return err
	}

	_, err = h.store.Exec(c.Context(),
		"INSERT INTO users(email, password) VALUES (?, ?)",
		[]cell.Cell{cell.Str(body.Email), cell.Str(hash)})
	if err != nil {
		if errors.Is(err, store.ErrUniqueViolation) {
			return engine.NewAppError("CONFLICT", 409, "email already registered")
		}
		return err
	}

	return h.respondWithToken(c, body.Email)
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *fiber.Ctx) error {
	var body credentials
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "invalid request body")
	}

	user, hash, err := h.findUserByEmail(c.Context(), body.Email)
	if err != nil {
		return engine.UnauthorizedError("invalid email or password")
	}
	if !CheckPassword(body.Password, hash) {
		return engine.UnauthorizedError("invalid email or password")
	}

	token, err := GenerateToken(user, h.jwtSecret)
	if err != nil {
		return err
	}
	return c.JSON(tokenResponse{ID: user.ID, Email: user.Email, Token: token})
}

func (h *Handler) respondWithToken(c *fiber.Ctx, email string) error {
	user, _, err := h.findUserByEmail(c.Context(), email)
	if err != nil {
		return err
	}
	token, err := GenerateToken(user, h.jwtSecret)
	if err != nil {
		return err
	}
	return c.Status(201).JSON(tokenResponse{ID: user.ID, Email: user.Email, Token: token})
}

// findUserByEmail loads a user and resolves a missing role to the system's
// current default role. The resolution is computed per read, never stored.
func (h *Handler) findUserByEmail(ctx context.Context, email string) (*engine.Identity, string, error) {
	row, err := h.store.QueryOne(ctx,
		"SELECT id, email, password, role_id FROM users WHERE email=?",
		[]cell.Cell{cell.Str(email)})
	if err != nil {
		return nil, "", err
	}

	ident := &engine.Identity{
		ID:    row["id"].Int64(),
		Email: row["email"].Text(),
	}

	var roleRow cell.Row
	if row["role_id"].IsNull() {
		roleRow, err = h.store.QueryOne(ctx,
			"SELECT id, name FROM roles WHERE is_default=?",
			[]cell.Cell{cell.Bool(true)})
	} else {
		roleRow, err = h.store.QueryOne(ctx,
			"SELECT id, name FROM roles WHERE id=?",
			[]cell.Cell{cell.Int(row["role_id"].Int64())})
	}
	switch {
	case err == nil:
		ident.RoleID = roleRow["id"].Int64()
		ident.RoleName = roleRow["name"].Text()
	case errors.Is(err, store.ErrNotFound):
		// no role assigned and no default configured: identity stays roleless
	default:
		return nil, "", err
	}
	return ident, row["password"].Text(), nil
}
