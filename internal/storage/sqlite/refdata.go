package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/qoldau/qoldau/internal/storage"
	"github.com/qoldau/qoldau/internal/types"
)

// defaultModelName identifies the classifier version recorded with every
// prediction when no explicit model row exists yet.
const (
	defaultModelName    = "baseline-classifier"
	defaultModelVersion = "1.0"
)

// GetOrCreateCategory resolves a category by folded name, creating it on
// first use.
func (s *Store) GetOrCreateCategory(ctx context.Context, name string) (*types.Category, error) {
	folded := fold(name)
	if folded == "" {
		return nil, fmt.Errorf("category name is empty: %w", storage.ErrInvalidInput)
	}
	if c, err := s.categoryByFoldedName(ctx, folded); err == nil {
		return c, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	c := &types.Category{ID: uuid.NewString(), Name: name, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, name_folded, description, sla_minutes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, folded, c.Description, nil, fmtTime(c.CreatedAt))
	if err != nil {
		// Lost a creation race: another writer inserted the same name.
		if werr := wrapDBError("insert category", err); errors.Is(werr, storage.ErrConflict) {
			return s.categoryByFoldedName(ctx, folded)
		} else {
			return nil, werr
		}
	}
	return c, nil
}

func (s *Store) categoryByFoldedName(ctx context.Context, folded string) (*types.Category, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, sla_minutes, created_at
		FROM categories WHERE name_folded = ?`, folded)
	c, err := scanCategory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("category %s: %w", folded, storage.ErrNotFound)
		}
		return nil, wrapDBError("get category", err)
	}
	return c, nil
}

// ListCategories returns all categories ordered by name.
func (s *Store) ListCategories(ctx context.Context) ([]*types.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, sla_minutes, created_at
		FROM categories ORDER BY name`)
	if err != nil {
		return nil, wrapDBError("list categories", err)
	}
	defer rows.Close()

	var out []*types.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, wrapDBError("scan category", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetOrCreateDepartment resolves a department (routing queue) by name,
// creating it on first use.
func (s *Store) GetOrCreateDepartment(ctx context.Context, name string) (*types.Department, error) {
	if name == "" {
		return nil, fmt.Errorf("department name is empty: %w", storage.ErrInvalidInput)
	}
	if d, err := s.departmentByName(ctx, name); err == nil {
		return d, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	d := &types.Department{ID: uuid.NewString(), Name: name, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO departments (id, name, created_at) VALUES (?, ?, ?)`,
		d.ID, d.Name, fmtTime(d.CreatedAt))
	if err != nil {
		if werr := wrapDBError("insert department", err); errors.Is(werr, storage.ErrConflict) {
			return s.departmentByName(ctx, name)
		} else {
			return nil, werr
		}
	}
	return d, nil
}

func (s *Store) departmentByName(ctx context.Context, name string) (*types.Department, error) {
	var d types.Department
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM departments WHERE name = ?`, name).
		Scan(&d.ID, &d.Name, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("department %s: %w", name, storage.ErrNotFound)
		}
		return nil, wrapDBError("get department", err)
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDepartments returns all departments ordered by name.
func (s *Store) ListDepartments(ctx context.Context) ([]*types.Department, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM departments ORDER BY name`)
	if err != nil {
		return nil, wrapDBError("list departments", err)
	}
	defer rows.Close()

	var out []*types.Department
	for rows.Next() {
		var d types.Department
		var createdAt string
		if err := rows.Scan(&d.ID, &d.Name, &createdAt); err != nil {
			return nil, wrapDBError("scan department", err)
		}
		if d.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// GetOrCreateDefaultModel lazily creates the classifier model row every
// prediction references.
func (s *Store) GetOrCreateDefaultModel(ctx context.Context) (*types.MLModel, error) {
	var m types.MLModel
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, version, description, created_at
		FROM ml_models WHERE name = ? AND version = ?`,
		defaultModelName, defaultModelVersion).
		Scan(&m.ID, &m.Name, &m.Version, &m.Description, &createdAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		m = types.MLModel{
			ID:        uuid.NewString(),
			Name:      defaultModelName,
			Version:   defaultModelVersion,
			CreatedAt: time.Now().UTC(),
		}
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO ml_models (id, name, version, description, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			m.ID, m.Name, m.Version, m.Description, fmtTime(m.CreatedAt))
		if err != nil {
			if werr := wrapDBError("insert model", err); errors.Is(werr, storage.ErrConflict) {
				return s.GetOrCreateDefaultModel(ctx)
			} else {
				return nil, werr
			}
		}
		return &m, nil
	case err != nil:
		return nil, wrapDBError("get model", err)
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func scanCategory(row rowScanner) (*types.Category, error) {
	var c types.Category
	var slaMinutes sql.NullInt64
	var createdAt string
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &slaMinutes, &createdAt); err != nil {
		return nil, err
	}
	if slaMinutes.Valid {
		v := int(slaMinutes.Int64)
		c.SLAMinutes = &v
	}
	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &c, nil
}
