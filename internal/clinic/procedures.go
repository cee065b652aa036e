package clinic

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ProcedureStore persists the procedure catalog.
type ProcedureStore interface {
	CreateCategory(ctx context.Context, c *ProcedureCategory) error
	FindCategory(ctx context.Context, id string) (*ProcedureCategory, error)
	ListCategories(ctx context.Context, activeOnly bool) ([]*ProcedureCategory, error)
	UpdateCategory(ctx context.Context, c *ProcedureCategory) error

	CreateType(ctx context.Context, t *ProcedureType) error
	FindType(ctx context.Context, id string) (*ProcedureType, error)
	ListTypes(ctx context.Context, categoryID string, activeOnly bool) ([]*ProcedureType, error)
	UpdateType(ctx context.Context, t *ProcedureType) error
}

// Procedures maintains the catalog of procedure categories and types.
type Procedures struct {
	store ProcedureStore
	now   func() time.Time
}

// NewProcedures constructs the catalog service.
func NewProcedures(store ProcedureStore) *Procedures {
	return &Procedures{store: store, now: time.Now}
}

// CreateCategory adds a catalog category.
func (s *Procedures) CreateCategory(ctx context.Context, c *ProcedureCategory) (*ProcedureCategory, error) {
	if strings.TrimSpace(c.Name) == "" {
		return nil, fmt.Errorf("%w: category name is required", ErrInvalidInput)
	}
	now := s.now().UTC()
	c.Active = true
	c.CreatedAt = now
	c.UpdatedAt = now
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Categories lists catalog categories, optionally only active ones.
func (s *Procedures) Categories(ctx context.Context, activeOnly bool) ([]*ProcedureCategory, error) {
	return s.store.ListCategories(ctx, activeOnly)
}

// UpdateCategory replaces mutable category fields.
func (s *Procedures) UpdateCategory(ctx context.Context, id string, name, description *string, priority *int, active *bool) (*ProcedureCategory, error) {
	c, err := s.store.FindCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	if name != nil {
		if strings.TrimSpace(*name) == "" {
			return nil, fmt.Errorf("%w: category name is required", ErrInvalidInput)
		}
		c.Name = *name
	}
	if description != nil {
		c.Description = *description
	}
	if priority != nil {
		c.Priority = *priority
	}
	if active != nil {
		c.Active = *active
	}
	c.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateCategory(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// CreateType adds a procedure type under an existing category.
func (s *Procedures) CreateType(ctx context.Context, t *ProcedureType) (*ProcedureType, error) {
	if strings.TrimSpace(t.Name) == "" {
		return nil, fmt.Errorf("%w: procedure name is required", ErrInvalidInput)
	}
	if t.DurationMinutes <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidInput)
	}
	if t.BasePrice < 0 {
		return nil, fmt.Errorf("%w: price cannot be negative", ErrInvalidInput)
	}
	if _, err := s.store.FindCategory(ctx, t.CategoryID); err != nil {
		return nil, err
	}
	if err := validIntervals(t.CheckupIntervals); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	t.Active = true
	t.CreatedAt = now
	t.UpdatedAt = now
	if err := s.store.CreateType(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// FindType returns one procedure type. It also satisfies the scheduler's
// ProcedureCatalog interface.
func (s *Procedures) FindType(ctx context.Context, id string) (*ProcedureType, error) {
	return s.store.FindType(ctx, id)
}

// Types lists procedure types, optionally narrowed to one category.
func (s *Procedures) Types(ctx context.Context, categoryID string, activeOnly bool) ([]*ProcedureType, error) {
	return s.store.ListTypes(ctx, categoryID, activeOnly)
}

// TypeUpdate carries optional procedure-type mutations; nil means keep.
type TypeUpdate struct {
	Name             *string
	Description      *string
	DurationMinutes  *int
	BasePrice        *int64
	CheckupIntervals []CheckupInterval
	Active           *bool
}

// UpdateType replaces mutable procedure-type fields.
func (s *Procedures) UpdateType(ctx context.Context, id string, upd TypeUpdate) (*ProcedureType, error) {
	t, err := s.store.FindType(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		if strings.TrimSpace(*upd.Name) == "" {
			return nil, fmt.Errorf("%w: procedure name is required", ErrInvalidInput)
		}
		t.Name = *upd.Name
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.DurationMinutes != nil {
		if *upd.DurationMinutes <= 0 {
			return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidInput)
		}
		t.DurationMinutes = *upd.DurationMinutes
	}
	if upd.BasePrice != nil {
		if *upd.BasePrice < 0 {
			return nil, fmt.Errorf("%w: price cannot be negative", ErrInvalidInput)
		}
		t.BasePrice = *upd.BasePrice
	}
	if upd.CheckupIntervals != nil {
		if err := validIntervals(upd.CheckupIntervals); err != nil {
			return nil, err
		}
		t.CheckupIntervals = upd.CheckupIntervals
	}
	if upd.Active != nil {
		t.Active = *upd.Active
	}
	t.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateType(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func validIntervals(ivs []CheckupInterval) error {
	for _, iv := range ivs {
		if strings.TrimSpace(iv.Stage) == "" {
			return fmt.Errorf("%w: checkup stage name is required", ErrInvalidInput)
		}
		if iv.MinDays < 0 || iv.MaxDays < iv.MinDays {
			return fmt.Errorf("%w: checkup interval %s has an invalid day range", ErrInvalidInput, iv.Stage)
		}
		if iv.RecommendedDays < iv.MinDays || iv.RecommendedDays > iv.MaxDays {
			return fmt.Errorf("%w: checkup interval %s recommends a day outside its range", ErrInvalidInput, iv.Stage)
		}
	}
	return nil
}
