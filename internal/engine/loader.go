package engine

import (
	"context"

	"restbase/internal/cell"
)

// QueryDef is a stored query definition: the routing key, its verb, the SQL
// template and the role whitelist. An empty RoleAccess list means the
// endpoint is public.
type QueryDef struct {
	ID         int64
	Name       string
	ExecType   string
	Query      string
	RoleAccess []int64
}

// Webhook is an outbound call attached to a query, run before or after the
// main execution in declaration order.
type Webhook struct {
	ID         int64
	Name       string
	ExecType   string
	URL        string
	Action     string
	Condition  string
	Args       string
	IsReturned bool
}

func (h *Handler) queryByName(ctx context.Context, name string) (*QueryDef, error) {
	row, err := h.store.QueryOne(ctx,
		"SELECT id, name, exec_type, query FROM queries WHERE name=?",
		[]cell.Cell{cell.Str(name)})
	if err != nil {
		return nil, err
	}

	q := &QueryDef{
		ID:       row["id"].Int64(),
		Name:     row["name"].Text(),
		ExecType: row["exec_type"].Text(),
		Query:    row["query"].Text(),
	}

	access, err := h.store.QueryAll(ctx,
		"SELECT role_id FROM role_access WHERE query_id=?",
		[]cell.Cell{cell.Int(q.ID)})
	if err != nil {
		return nil, err
	}
	for _, r := range access {
		q.RoleAccess = append(q.RoleAccess, r["role_id"].Int64())
	}

	return q, nil
}

// webhooksForQuery returns the hooks attached to a query in declaration
// order (ascending id).
func (h *Handler) webhooksForQuery(ctx context.Context, queryID int64) ([]Webhook, error) {
	rows, err := h.store.QueryAll(ctx,
		`SELECT webhooks.id AS id, name, exec_type, url, action, condition_expr, args, is_returned
		 FROM webhooks
		 INNER JOIN webhook_query ON webhooks.id = webhook_id
		 WHERE query_id=?
		 ORDER BY webhooks.id`,
		[]cell.Cell{cell.Int(queryID)})
	if err != nil {
		return nil, err
	}

	hooks := make([]Webhook, 0, len(rows))
	for _, r := range rows {
		hooks = append(hooks, Webhook{
			ID:         r["id"].Int64(),
			Name:       r["name"].Text(),
			ExecType:   r["exec_type"].Text(),
			URL:        r["url"].Text(),
			Action:     r["action"].Text(),
			Condition:  r["condition_expr"].Text(),
			Args:       jsonColumnText(r["args"]),
			IsReturned: flagColumn(r["is_returned"]),
		})
	}
	return hooks, nil
}

// jsonColumnText reads the args template, which sqlite stores as TEXT and
// mysql as JSON.
func jsonColumnText(c cell.Cell) string {
	if c.IsNull() {
		return ""
	}
	if c.Kind() == cell.KindString {
		return c.Text()
	}
	b, err := c.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(b)
}

// flagColumn reads a boolean column that sqlite and mysql report as an
// integer type.
func flagColumn(c cell.Cell) bool {
	if c.IsNull() {
		return false
	}
	switch c.Kind() {
	case cell.KindBool:
		return c.Boolean()
	case cell.KindInteger:
		return c.Int64() != 0
	case cell.KindUnsigned:
		return c.Uint64() != 0
	}
	return false
}
