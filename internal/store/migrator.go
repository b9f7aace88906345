package store

import (
	"context"
	"fmt"

	"restbase/internal/cell"
)

// Migration is one versioned schema change. Monotonic id order defines the
// apply and rollback order; the executed flag is the single source of truth
// and is never recomputed from the live schema.
type Migration struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	UpQuery   string `json:"up_query"`
	DownQuery string `json:"down_query"`
	Executed  bool   `json:"executed"`
}

// Migrator applies and rolls back stored migrations through the adapter's
// execute primitive; it performs no DDL parsing of its own.
type Migrator struct {
	store *Store
}

func NewMigrator(store *Store) *Migrator {
	return &Migrator{store: store}
}

// All lists every migration in id order.
func (m *Migrator) All(ctx context.Context) ([]Migration, error) {
	rows, err := m.store.QueryAll(ctx,
		"SELECT id, name, up_query, down_query, executed FROM migrations ORDER BY id", nil)
	if err != nil {
		return nil, err
	}
	return migrationsFromRows(rows), nil
}

// Pending lists unapplied migrations ascending by id.
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	rows, err := m.store.QueryAll(ctx,
		"SELECT id, name, up_query, down_query, executed FROM migrations WHERE executed=? ORDER BY id ASC",
		[]cell.Cell{cell.Bool(false)})
	if err != nil {
		return nil, err
	}
	return migrationsFromRows(rows), nil
}

// Applied lists applied migrations descending by id (rollback order).
func (m *Migrator) Applied(ctx context.Context) ([]Migration, error) {
	rows, err := m.store.QueryAll(ctx,
		"SELECT id, name, up_query, down_query, executed FROM migrations WHERE executed=? ORDER BY id DESC",
		[]cell.Cell{cell.Bool(true)})
	if err != nil {
		return nil, err
	}
	return migrationsFromRows(rows), nil
}

// Up applies every pending migration in order and returns how many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	pending, err := m.Pending(ctx)
	if err != nil {
		return 0, err
	}
	for i, mig := range pending {
		if err := m.apply(ctx, mig, true); err != nil {
			return i, fmt.Errorf("migration %q: %w", mig.Name, err)
		}
	}
	return len(pending), nil
}

// Down rolls back every applied migration in reverse order.
func (m *Migrator) Down(ctx context.Context) (int, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return 0, err
	}
	for i, mig := range applied {
		if err := m.apply(ctx, mig, false); err != nil {
			return i, fmt.Errorf("rollback %q: %w", mig.Name, err)
		}
	}
	return len(applied), nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration, up bool) error {
	query := mig.UpQuery
	if !up {
		query = mig.DownQuery
	}
	if query != "" {
		if _, err := m.store.Exec(ctx, query, nil); err != nil {
			return err
		}
	}
	_, err := m.store.Exec(ctx,
		"UPDATE migrations SET executed=? WHERE id=?",
		[]cell.Cell{cell.Bool(up), cell.Int(mig.ID)})
	return err
}

func migrationsFromRows(rows []cell.Row) []Migration {
	out := make([]Migration, 0, len(rows))
	for _, r := range rows {
		out = append(out, Migration{
			ID:        r["id"].Int64(),
			Name:      r["name"].Text(),
			UpQuery:   r["up_query"].Text(),
			DownQuery: r["down_query"].Text(),
			Executed:  rowBool(r["executed"]),
		})
	}
	return out
}

// rowBool reads a flag column that sqlite and mysql report as an integer.
func rowBool(c cell.Cell) bool {
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
