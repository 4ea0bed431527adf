package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"payledger/internal/core"
)

func (q *Queries) CreateCategory(ctx context.Context, name string, now time.Time) (core.Category, error) {
	id, err := q.insert(ctx, `INSERT INTO categories (name, created_at) VALUES (?, ?)`, name, formatTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return core.Category{}, &core.ConflictError{Entity: "category", Reason: "name already exists"}
		}
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}
	return core.Category{ID: id, Name: name}, nil
}

func (q *Queries) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := q.query(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := []core.Category{}
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *Queries) CategoryExists(ctx context.Context, id int64) (bool, error) {
	return q.exists(ctx, `SELECT COUNT(*) FROM categories WHERE id = ?`, id)
}

func (q *Queries) CreateProject(ctx context.Context, name string, now time.Time) (core.Project, error) {
	id, err := q.insert(ctx, `INSERT INTO projects (name, created_at) VALUES (?, ?)`, name, formatTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return core.Project{}, &core.ConflictError{Entity: "project", Reason: "name already exists"}
		}
		return core.Project{}, fmt.Errorf("insert project: %w", err)
	}
	return core.Project{ID: id, Name: name}, nil
}

func (q *Queries) ListProjects(ctx context.Context) ([]core.Project, error) {
	rows, err := q.query(ctx, `SELECT id, name FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	out := []core.Project{}
	for rows.Next() {
		var p core.Project
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *Queries) ProjectExists(ctx context.Context, id int64) (bool, error) {
	return q.exists(ctx, `SELECT COUNT(*) FROM projects WHERE id = ?`, id)
}

func (q *Queries) exists(ctx context.Context, query string, id int64) (bool, error) {
	var n int64
	if err := q.queryRow(ctx, query, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// isUniqueViolation recognizes duplicate-key errors from either driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
