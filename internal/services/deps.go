package services

import (
	"context"
	"errors"

	"payledger/internal/audit"
	"payledger/internal/core"
	"payledger/internal/storage"
)

// ReferenceChecker answers category and project existence. *cache.References
// satisfies it.
type ReferenceChecker interface {
	CategoryExists(ctx context.Context, id int64) (bool, error)
	ProjectExists(ctx context.Context, id int64) (bool, error)
}

// Deps are shared by every service. Events may be nil; Refs defaults to
// uncached store lookups.
type Deps struct {
	Store  *storage.Store
	Clock  core.Clock
	Events EventPublisher
	Refs   ReferenceChecker
}

type base struct {
	store    *storage.Store
	clock    core.Clock
	events   EventPublisher
	refs     ReferenceChecker
	recorder *audit.Recorder
}

func newBase(d Deps) base {
	clock := d.Clock
	if clock == nil {
		clock = core.SystemClock{}
	}
	refs := d.Refs
	if refs == nil && d.Store != nil {
		refs = d.Store.Queries()
	}
	return base{
		store:    d.Store,
		clock:    clock,
		events:   d.Events,
		refs:     refs,
		recorder: audit.NewRecorder(clock),
	}
}

// writeAudit persists one entry built from the change.
func (b base) writeAudit(ctx context.Context, q *storage.Queries, c audit.Change) error {
	if _, err := q.InsertAudit(ctx, b.recorder.Record(c)); err != nil {
		return err
	}
	return nil
}

var errUnknownReference = errors.New("referenced record does not exist")

func (b base) checkReferences(ctx context.Context, categoryID, projectID int64) error {
	if categoryID > 0 {
		ok, err := b.refs.CategoryExists(ctx, categoryID)
		if err != nil {
			return err
		}
		if !ok {
			return core.NewValidationError("category_id", errUnknownReference)
		}
	}
	if projectID > 0 {
		ok, err := b.refs.ProjectExists(ctx, projectID)
		if err != nil {
			return err
		}
		if !ok {
			return core.NewValidationError("project_id", errUnknownReference)
		}
	}
	return nil
}

// liveObligation loads and locks an obligation, treating soft-deleted rows as missing.
func liveObligation(ctx context.Context, q *storage.Queries, id int64) (core.Obligation, error) {
	o, err := q.GetObligation(ctx, id, true)
	if err != nil {
		return o, err
	}
	if o.Deleted {
		return o, &core.NotFoundError{Entity: "obligation", ID: id}
	}
	return o, nil
}
