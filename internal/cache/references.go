package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// ExistsFunc reports whether a reference row exists in the store.
type ExistsFunc func(ctx context.Context, id int64) (bool, error)

// References caches positive existence checks for categories and projects.
// Misses are never cached so a newly created reference is visible at once.
type References struct {
	entries  *LRUCache[bool]
	category ExistsFunc
	project  ExistsFunc
}

func NewReferences(size int, ttl time.Duration, category, project ExistsFunc) *References {
	return &References{
		entries:  NewLRUCache[bool](size, ttl),
		category: category,
		project:  project,
	}
}

func (r *References) CategoryExists(ctx context.Context, id int64) (bool, error) {
	return r.check(ctx, "category", id, r.category)
}

func (r *References) ProjectExists(ctx context.Context, id int64) (bool, error) {
	return r.check(ctx, "project", id, r.project)
}

// Cleaner exposes the underlying cache to a Janitor.
func (r *References) Cleaner() Cleaner {
	return r.entries
}

func (r *References) check(ctx context.Context, kind string, id int64, load ExistsFunc) (bool, error) {
	key := kind + ":" + strconv.FormatInt(id, 10)
	if _, ok := r.entries.Get(key); ok {
		return true, nil
	}
	exists, err := load(ctx, id)
	if err != nil {
		return false, fmt.Errorf("check %s %d: %w", kind, id, err)
	}
	if exists {
		r.entries.Set(key, true)
	}
	return exists, nil
}
