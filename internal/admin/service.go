// Package admin is the typed administrative surface over the system
// tables: CRUD on query definitions, roles, users, webhooks and
// migrations. Every operation is a thin pass-through to the adapter with a
// fixed SQL string and typed-cell arguments; the terminal UI consumes it.
package admin

import (
	"context"

	"restbase/internal/cell"
	"restbase/internal/store"
)

type Service struct {
	store *store.Store
}

func NewService(s *store.Store) *Service {
	return &Service{store: s}
}

type Query struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	ExecType   string  `json:"exec_type"`
	Query      string  `json:"query"`
	RoleAccess []int64 `json:"role_access"`
}

type Role struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
	CanRead   bool   `json:"can_read"`
	CanWrite  bool   `json:"can_write"`
	CanDelete bool   `json:"can_delete"`
}

type User struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	RoleID   *int64 `json:"role_id"`
	RoleName string `json:"role"`
}

type Webhook struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	ExecType   string `json:"exec_type"`
	URL        string `json:"url"`
	Action     string `json:"action"`
	Condition  string `json:"condition"`
	Args       string `json:"args"`
	IsReturned bool   `json:"is_returned"`
}

// --- queries ---

func (s *Service) ListQueries(ctx context.Context) ([]Query, error) {
	rows, err := s.store.QueryAll(ctx,
		"SELECT id, name, exec_type, query FROM queries ORDER BY id", nil)
	if err != nil {
		return nil, err
	}
	out := make([]Query, 0, len(rows))
	for _, r := range rows {
		out = append(out, queryFromRow(r))
	}
	return out, nil
}

func (s *Service) GetQuery(ctx context.Context, id int64) (*Query, error) {
	row, err := s.store.QueryOne(ctx,
		"SELECT id, name, exec_type, query FROM queries WHERE id=?",
		[]cell.Cell{cell.Int(id)})
	if err != nil {
		return nil, err
	}
	q := queryFromRow(row)

	access, err := s.store.QueryAll(ctx,
		"SELECT role_id FROM role_access WHERE query_id=? ORDER BY role_id",
		[]cell.Cell{cell.Int(id)})
	if err != nil {
		return nil, err
	}
	for _, r := range access {
		q.RoleAccess = append(q.RoleAccess, r["role_id"].Int64())
	}
	return &q, nil
}

func (s *Service) CreateQuery(ctx context.Context, name string) (int64, error) {
	_, err := s.store.Exec(ctx,
		"INSERT INTO queries(name) VALUES (?)",
		[]cell.Cell{cell.Str(name)})
	if err != nil {
		return 0, err
	}
	return s.idByName(ctx, "queries", name)
}

func (s *Service) UpdateQuery(ctx context.Context, q Query) error {
	_, err := s.store.Exec(ctx,
		"UPDATE queries SET name=?, exec_type=?, query=? WHERE id=?",
		[]cell.Cell{cell.Str(q.Name), cell.Str(q.ExecType), cell.Str(q.Query), cell.Int(q.ID)})
	return err
}

// DeleteQuery removes a query definition; role_access and webhook
// attachments cascade.
func (s *Service) DeleteQuery(ctx context.Context, id int64) error {
	_, err := s.store.Exec(ctx,
		"DELETE FROM queries WHERE id=?", []cell.Cell{cell.Int(id)})
	return err
}

// SetQueryAccess replaces the role whitelist of a query.
func (s *Service) SetQueryAccess(ctx context.Context, queryID int64, roleIDs []int64) error {
	_, err := s.store.Exec(ctx,
		"DELETE FROM role_access WHERE query_id=?", []cell.Cell{cell.Int(queryID)})
	if err != nil {
		return err
	}
	for _, roleID := range roleIDs {
		_, err := s.store.Exec(ctx,
			"INSERT INTO role_access(role_id, query_id) VALUES (?, ?)",
			[]cell.Cell{cell.Int(roleID), cell.Int(queryID)})
		if err != nil {
			return err
		}
	}
	return nil
}

// --- roles ---

func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.store.QueryAll(ctx,
		"SELECT id, name, is_default, can_read, can_write, can_delete FROM roles ORDER BY id", nil)
	if err != nil {
		return nil, err
	}
	out := make([]Role, 0, len(rows))
	for _, r := range rows {
		out = append(out, roleFromRow(r))
	}
	return out, nil
}

func (s *Service) CreateRole(ctx context.Context, name string) (int64, error) {
	_, err := s.store.Exec(ctx,
		"INSERT INTO roles(name) VALUES (?)", []cell.Cell{cell.Str(name)})
	if err != nil {
		return 0, err
	}
	return s.idByName(ctx, "roles", name)
}

// UpdateRole edits a role. At most one role holds is_default: promoting a
// role clears the flag everywhere else first.
func (s *Service) UpdateRole(ctx context.Context, role Role) error {
	if role.IsDefault {
		_, err := s.store.Exec(ctx,
			"UPDATE roles SET is_default=? WHERE id<>?",
			[]cell.Cell{cell.Bool(false), cell.Int(role.ID)})
		if err != nil {
			return err
		}
	}
	_, err := s.store.Exec(ctx,
		"UPDATE roles SET name=?, is_default=?, can_read=?, can_write=?, can_delete=? WHERE id=?",
		[]cell.Cell{
			cell.Str(role.Name), cell.Bool(role.IsDefault),
			cell.Bool(role.CanRead), cell.Bool(role.CanWrite), cell.Bool(role.CanDelete),
			cell.Int(role.ID),
		})
	return err
}

func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	_, err := s.store.Exec(ctx,
		"DELETE FROM roles WHERE id=?", []cell.Cell{cell.Int(id)})
	return err
}

// --- users ---

// ListUsers resolves each user's effective role: a user without one falls
// back to the current default role, computed at read time.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	roles, err := s.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(roles))
	var defaultName string
	for _, r := range roles {
		names[r.ID] = r.Name
		if r.IsDefault {
			defaultName = r.Name
		}
	}

	rows, err := s.store.QueryAll(ctx,
		"SELECT id, email, role_id FROM users ORDER BY id", nil)
	if err != nil {
		return nil, err
	}
	out := make([]User, 0, len(rows))
	for _, r := range rows {
		u := User{ID: r["id"].Int64(), Email: r["email"].Text()}
		if r["role_id"].IsNull() {
			u.RoleName = defaultName
		} else {
			id := r["role_id"].Int64()
			u.RoleID = &id
			u.RoleName = names[id]
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *Service) SetUserRole(ctx context.Context, userID, roleID int64) error {
	_, err := s.store.Exec(ctx,
		"UPDATE users SET role_id=? WHERE id=?",
		[]cell.Cell{cell.Int(roleID), cell.Int(userID)})
	return err
}

// ClearUserRole detaches a user from their role so default resolution
// applies again.
func (s *Service) ClearUserRole(ctx context.Context, userID int64) error {
	_, err := s.store.Exec(ctx,
		"UPDATE users SET role_id=NULL WHERE id=?",
		[]cell.Cell{cell.Int(userID)})
	return err
}

func (s *Service) DeleteUser(ctx context.Context, userID int64) error {
	_, err := s.store.Exec(ctx,
		"DELETE FROM users WHERE id=?", []cell.Cell{cell.Int(userID)})
	return err
}

// --- webhooks ---

func (s *Service) ListWebhooks(ctx context.Context) ([]Webhook, error) {
	rows, err := s.store.QueryAll(ctx,
		"SELECT id, name, exec_type, url, action, condition_expr, args, is_returned FROM webhooks ORDER BY id", nil)
	if err != nil {
		return nil, err
	}
	out := make([]Webhook, 0, len(rows))
	for _, r := range rows {
		out = append(out, webhookFromRow(r))
	}
	return out, nil
}

func (s *Service) CreateWebhook(ctx context.Context, name string) (int64, error) {
	_, err := s.store.Exec(ctx,
		"INSERT INTO webhooks(name) VALUES (?)", []cell.Cell{cell.Str(name)})
	if err != nil {
		return 0, err
	}
	return s.idByName(ctx, "webhooks", name)
}

func (s *Service) UpdateWebhook(ctx context.Context, w Webhook) error {
	_, err := s.store.Exec(ctx,
		"UPDATE webhooks SET name=?, exec_type=?, url=?, action=?, condition_expr=?, args=?, is_returned=? WHERE id=?",
		[]cell.Cell{
			cell.Str(w.Name), cell.Str(w.ExecType), cell.Str(w.URL), cell.Str(w.Action),
			cell.Str(w.Condition), cell.Str(w.Args), cell.Bool(w.IsReturned),
			cell.Int(w.ID),
		})
	return err
}

func (s *Service) DeleteWebhook(ctx context.Context, id int64) error {
	_, err := s.store.Exec(ctx,
		"DELETE FROM webhooks WHERE id=?", []cell.Cell{cell.Int(id)})
	return err
}

// AttachWebhook binds a webhook to a query definition.
func (s *Service) AttachWebhook(ctx context.Context, webhookID, queryID int64) error {
	_, err := s.store.Exec(ctx,
		"INSERT INTO webhook_query(webhook_id, query_id) VALUES (?, ?)",
		[]cell.Cell{cell.Int(webhookID), cell.Int(queryID)})
	return err
}

func (s *Service) DetachWebhook(ctx context.Context, webhookID, queryID int64) error {
	_, err := s.store.Exec(ctx,
		"DELETE FROM webhook_query WHERE webhook_id=? AND query_id=?",
		[]cell.Cell{cell.Int(webhookID), cell.Int(queryID)})
	return err
}

// --- migrations ---

func (s *Service) CreateMigration(ctx context.Context, name string) (int64, error) {
	_, err := s.store.Exec(ctx,
		"INSERT INTO migrations(name) VALUES (?)", []cell.Cell{cell.Str(name)})
	if err != nil {
		return 0, err
	}
	return s.idByName(ctx, "migrations", name)
}

func (s *Service) UpdateMigration(ctx context.Context, m store.Migration) error {
	_, err := s.store.Exec(ctx,
		"UPDATE migrations SET name=?, up_query=?, down_query=? WHERE id=?",
		[]cell.Cell{cell.Str(m.Name), cell.Str(m.UpQuery), cell.Str(m.DownQuery), cell.Int(m.ID)})
	return err
}

func (s *Service) DeleteMigration(ctx context.Context, id int64) error {
	_, err := s.store.Exec(ctx,
		"DELETE FROM migrations WHERE id=?", []cell.Cell{cell.Int(id)})
	return err
}

// --- helpers ---

// idByName reads back a generated id through the unique name column; the
// mysql engine has no INSERT .. RETURNING.
func (s *Service) idByName(ctx context.Context, table, name string) (int64, error) {
	row, err := s.store.QueryOne(ctx,
		"SELECT id FROM "+table+" WHERE name=?", []cell.Cell{cell.Str(name)})
	if err != nil {
		return 0, err
	}
	return row["id"].Int64(), nil
}

func queryFromRow(r cell.Row) Query {
	return Query{
		ID:       r["id"].Int64(),
		Name:     r["name"].Text(),
		ExecType: r["exec_type"].Text(),
		Query:    r["query"].Text(),
	}
}

func roleFromRow(r cell.Row) Role {
	return Role{
		ID:        r["id"].Int64(),
		Name:      r["name"].Text(),
		IsDefault: flag(r["is_default"]),
		CanRead:   flag(r["can_read"]),
		CanWrite:  flag(r["can_write"]),
		CanDelete: flag(r["can_delete"]),
	}
}

func webhookFromRow(r cell.Row) Webhook {
	w := Webhook{
		ID:         r["id"].Int64(),
		Name:       r["name"].Text(),
		ExecType:   r["exec_type"].Text(),
		URL:        r["url"].Text(),
		Action:     r["action"].Text(),
		IsReturned: flag(r["is_returned"]),
	}
	if !r["condition_expr"].IsNull() {
		w.Condition = r["condition_expr"].Text()
	}
	if !r["args"].IsNull() {
		if r["args"].Kind() == cell.KindString {
			w.Args = r["args"].Text()
		} else if b, err := r["args"].MarshalJSON(); err == nil {
			w.Args = string(b)
		}
	}
	return w
}

// flag reads a boolean column that sqlite and mysql report as an integer.
func flag(c cell.Cell) bool {
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
