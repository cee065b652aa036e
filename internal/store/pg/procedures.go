package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"medidesk.org/internal/clinic"
	"medidesk.org/internal/ids"
)

// Procedures implements clinic.ProcedureStore.
type Procedures struct {
	db *sql.DB
}

var _ clinic.ProcedureStore = (*Procedures)(nil)

// Procedures returns the catalog store bound to the shared pool.
func (s *Store) Procedures() *Procedures { return &Procedures{db: s.db} }

func (p *Procedures) CreateCategory(ctx context.Context, c *clinic.ProcedureCategory) error {
	if c.ID == "" {
		c.ID = ids.New()
	}
	_, err := p.db.ExecContext(ctx, `
		insert into procedure_categories (id, name, description, priority, active)
		values ($1, $2, $3, $4, $5)
	`, c.ID, c.Name, c.Description, c.Priority, c.Active)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return clinic.ErrAlreadyExists
	}
	return err
}

func (p *Procedures) FindCategory(ctx context.Context, id string) (*clinic.ProcedureCategory, error) {
	row := p.db.QueryRowContext(ctx, `
		select id, name, description, priority, active, created_at, updated_at
		from procedure_categories where id = $1
	`, id)
	var c clinic.ProcedureCategory
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Priority, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, clinic.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (p *Procedures) ListCategories(ctx context.Context, activeOnly bool) ([]*clinic.ProcedureCategory, error) {
	query := `select id, name, description, priority, active, created_at, updated_at from procedure_categories`
	if activeOnly {
		query += ` where active = true`
	}
	query += ` order by priority asc, name asc`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*clinic.ProcedureCategory
	for rows.Next() {
		var c clinic.ProcedureCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Priority, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (p *Procedures) UpdateCategory(ctx context.Context, c *clinic.ProcedureCategory) error {
	res, err := p.db.ExecContext(ctx, `
		update procedure_categories
		set name = $1, description = $2, priority = $3, active = $4, updated_at = now()
		where id = $5
	`, c.Name, c.Description, c.Priority, c.Active, c.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (p *Procedures) CreateType(ctx context.Context, t *clinic.ProcedureType) error {
	if t.ID == "" {
		t.ID = ids.New()
	}
	intervals, err := json.Marshal(t.CheckupIntervals)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		insert into procedure_types (id, category_id, name, description, duration_minutes, base_price, currency, checkup_intervals, active)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.ID, t.CategoryID, t.Name, t.Description, t.DurationMinutes, t.BasePrice, t.Currency, intervals, t.Active)
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return clinic.ErrAlreadyExists
		case pgErrForeignKeyViolation:
			return clinic.ErrNotFound
		}
	}
	return err
}

const procedureTypeColumns = `id, category_id, name, description, duration_minutes, base_price, currency,
	checkup_intervals, active, created_at, updated_at`

func (p *Procedures) FindType(ctx context.Context, id string) (*clinic.ProcedureType, error) {
	row := p.db.QueryRowContext(ctx,
		`select `+procedureTypeColumns+` from procedure_types where id = $1`, id)
	return scanProcedureType(row)
}

func (p *Procedures) ListTypes(ctx context.Context, categoryID string, activeOnly bool) ([]*clinic.ProcedureType, error) {
	var (
		where []string
		args  []any
	)
	if categoryID != "" {
		args = append(args, categoryID)
		where = append(where, fmt.Sprintf("category_id = $%d", len(args)))
	}
	if activeOnly {
		where = append(where, "active = true")
	}
	query := `select ` + procedureTypeColumns + ` from procedure_types`
	for i, cond := range where {
		if i == 0 {
			query += ` where ` + cond
		} else {
			query += ` and ` + cond
		}
	}
	query += ` order by name asc`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*clinic.ProcedureType
	for rows.Next() {
		t, err := scanProcedureType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Procedures) UpdateType(ctx context.Context, t *clinic.ProcedureType) error {
	intervals, err := json.Marshal(t.CheckupIntervals)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, `
		update procedure_types
		set name = $1, description = $2, duration_minutes = $3, base_price = $4, currency = $5,
			checkup_intervals = $6, active = $7, updated_at = now()
		where id = $8
	`, t.Name, t.Description, t.DurationMinutes, t.BasePrice, t.Currency, intervals, t.Active, t.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanProcedureType(row rowScanner) (*clinic.ProcedureType, error) {
	var (
		t         clinic.ProcedureType
		intervals []byte
	)
	err := row.Scan(&t.ID, &t.CategoryID, &t.Name, &t.Description, &t.DurationMinutes,
		&t.BasePrice, &t.Currency, &intervals, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, clinic.ErrNotFound
		}
		return nil, err
	}
	if len(intervals) > 0 {
		if err := json.Unmarshal(intervals, &t.CheckupIntervals); err != nil {
			return nil, fmt.Errorf("decode checkup intervals: %w", err)
		}
	}
	return &t, nil
}
