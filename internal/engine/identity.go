package engine

import (
	"github.com/gofiber/fiber/v2"

	"restbase/internal/cell"
)

// Identity is the authenticated caller as produced by the identity
// resolver. The engine never inspects credentials; it consumes exactly this
// shape.
type Identity struct {
	ID       int64
	Email    string
	RoleID   int64
	RoleName string
}

// Reserved placeholder names resolvable only from the identity, never from
// client-supplied request data.
const (
	ClaimUserID    = ".USER_ID"
	ClaimUserEmail = ".USER_EMAIL"
	ClaimUserRole  = ".USER_ROLE"
)

// Claims returns the fixed identity-claim table for this identity.
func (id *Identity) Claims() map[string]cell.Cell {
	return map[string]cell.Cell{
		ClaimUserID:    cell.Int(id.ID),
		ClaimUserEmail: cell.Str(id.Email),
		ClaimUserRole:  cell.Str(id.RoleName),
	}
}

// GetIdentity extracts the authenticated identity from a request, or nil
// for an anonymous caller.
func GetIdentity(c *fiber.Ctx) *Identity {
	ident, _ := c.Locals("identity").(*Identity)
	return ident
}
