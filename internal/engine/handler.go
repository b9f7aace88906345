// Package engine runs the dynamic query pipeline: an inbound request is
// matched to a stored query definition, its template compiled, every
// placeholder resolved to a typed cell, webhooks dispatched around the
// execution, and the result serialized back.
package engine

import (
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"restbase/internal/cell"
	"restbase/internal/store"
	"restbase/internal/template"
)

type Handler struct {
	store *store.Store
}

func NewHandler(s *store.Store) *Handler {
	return &Handler{store: s}
}

// Serve handles one dynamic endpoint request: MATCH, RESOLVE, before-hooks,
// EXECUTE, after-hooks, RESPOND. Any fault short-circuits to the response.
func (h *Handler) Serve(c *fiber.Ctx) error {
	ctx := c.Context()

	// Multi-segment query names travel through one path parameter with '_'
	// standing in for '/'.
	name := strings.ReplaceAll(c.Params("name"), "_", "/")

	q, err := h.queryByName(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFoundError(name)
		}
		return mapStoreError(err)
	}
	if q.ExecType != strings.ToLower(c.Method()) {
		log.Printf("endpoint %s: verb %s does not match %s", name, c.Method(), q.ExecType)
		return NotFoundError(name)
	}

	ident := GetIdentity(c)
	if len(q.RoleAccess) > 0 {
		if ident == nil {
			return UnauthorizedError("endpoint requires authentication")
		}
		if !containsID(q.RoleAccess, ident.RoleID) {
			return UnauthorizedError("role not allowed for this endpoint")
		}
	}

	params, rewritten, err := template.Compile(q.Query)
	if err != nil {
		return CompileFault(err)
	}

	payload, appErr := requestPayload(c, q.ExecType)
	if appErr != nil {
		return appErr
	}

	values, args, appErr := resolveArgs(params, ident, payload)
	if appErr != nil {
		return appErr
	}

	if appErr := h.dispatch(ctx, q.ID, PhaseBefore, values); appErr != nil {
		return appErr
	}

	var result cell.Cell
	var rows []cell.Row
	var affected int64
	if q.ExecType == "get" {
		rows, err = h.store.QueryAll(ctx, rewritten, args)
		if err != nil {
			return mapStoreError(err)
		}
		if rows == nil {
			rows = []cell.Row{}
		}
		result = cell.FromRows(rows)
	} else {
		affected, err = h.store.Exec(ctx, rewritten, args)
		if err != nil {
			return mapStoreError(err)
		}
		result = cell.Int(affected)
	}

	// After-hooks see the main result under the synthetic "res" name.
	values["res"] = result
	if appErr := h.dispatch(ctx, q.ID, PhaseAfter, values); appErr != nil {
		return appErr
	}

	if q.ExecType == "get" {
		return c.JSON(rows)
	}
	return c.JSON(affected)
}

// resolveArgs produces the ordered bind list plus the name->cell map used
// by webhook substitution. Reserved '.'-prefixed names resolve only from
// the identity-claim table; everything else from the request payload. An
// unresolvable name is a hard binding fault.
func resolveArgs(params []string, ident *Identity, payload map[string]cell.Cell) (map[string]cell.Cell, []cell.Cell, *AppError) {
	values := make(map[string]cell.Cell, len(params)+4)
	var claims map[string]cell.Cell
	if ident != nil {
		claims = ident.Claims()
		for k, v := range claims {
			values[k] = v
		}
	}

	args := make([]cell.Cell, 0, len(params))
	for _, p := range params {
		var v cell.Cell
		var ok bool
		if strings.HasPrefix(p, ".") {
			if ident == nil {
				return nil, nil, UnauthorizedError("endpoint uses identity claims; authentication required")
			}
			v, ok = claims[template.ClaimKey(p)]
			if !ok {
				return nil, nil, BindFault("unknown identity claim " + p)
			}
		} else {
			v, ok = payload[p]
			if !ok {
				return nil, nil, MissingParameter(p)
			}
			values[p] = v
		}
		args = append(args, v)
	}
	return values, args, nil
}

// requestPayload merges client-supplied request data into typed cells: the
// JSON body for write verbs, sniffed query-string pairs for the read verb.
func requestPayload(c *fiber.Ctx, execType string) (map[string]cell.Cell, *AppError) {
	payload := make(map[string]cell.Cell)

	if execType == "get" {
		for k, v := range c.Queries() {
			payload[k] = cell.Sniff(v)
		}
		return payload, nil
	}

	if len(c.Body()) == 0 {
		return payload, nil
	}
	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return nil, NewAppError("INVALID_PAYLOAD", 400, "invalid JSON body")
	}
	for k, v := range body {
		payload[k] = cell.FromAny(v)
	}
	return payload, nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// mapStoreError translates adapter errors into pipeline faults.
func mapStoreError(err error) *AppError {
	var fault *store.Fault
	if errors.As(err, &fault) {
		return ConnectivityFault(fault.Message)
	}
	if errors.Is(err, store.ErrNotFound) {
		return &AppError{Code: "NOT_FOUND", Status: 404, Message: "no matching row"}
	}
	if errors.Is(err, cell.ErrUnsupportedBind) || errors.Is(err, cell.ErrUnsupportedColumn) {
		return BindFault(err.Error())
	}
	return ExecutionFault(err)
}
