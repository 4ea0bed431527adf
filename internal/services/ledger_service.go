package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"payledger/internal/amqp"
	"payledger/internal/audit"
	"payledger/internal/core"
	"payledger/internal/storage"
)

// NewObligation is the create request. Paid and status are not accepted.
type NewObligation struct {
	Name             string              `json:"name"`
	CategoryID       int64               `json:"category_id"`
	ProjectID        int64               `json:"project_id"`
	Total            core.Money          `json:"total"`
	Kind             core.ObligationKind `json:"kind"`
	StartDate        core.Date           `json:"start_date"`
	EndDate          core.Date           `json:"end_date"`
	Priority         int                 `json:"priority"`
	PeriodicAmount   core.Money          `json:"periodic_amount"`
	AgreedPaymentDay int                 `json:"agreed_payment_day"`
	EstimatedAmount  core.Money          `json:"estimated_amount"`
	Notes            string              `json:"notes"`
	GenerateSchedule bool                `json:"generate_schedule"`
}

// ObligationPatch carries the fields of a partial update; nil means unchanged.
type ObligationPatch struct {
	Name             *string              `json:"name"`
	CategoryID       *int64               `json:"category_id"`
	ProjectID        *int64               `json:"project_id"`
	Total            *core.Money          `json:"total"`
	Kind             *core.ObligationKind `json:"kind"`
	StartDate        *core.Date           `json:"start_date"`
	EndDate          *core.Date           `json:"end_date"`
	Priority         *int                 `json:"priority"`
	PeriodicAmount   *core.Money          `json:"periodic_amount"`
	AgreedPaymentDay *int                 `json:"agreed_payment_day"`
	EstimatedAmount  *core.Money          `json:"estimated_amount"`
	Notes            *string              `json:"notes"`
}

func (p ObligationPatch) apply(o *core.Obligation) {
	if p.Name != nil {
		o.Name = *p.Name
	}
	if p.CategoryID != nil {
		o.CategoryID = *p.CategoryID
	}
	if p.ProjectID != nil {
		o.ProjectID = *p.ProjectID
	}
	if p.Total != nil {
		o.Total = *p.Total
	}
	if p.Kind != nil {
		o.Kind = *p.Kind
	}
	if p.StartDate != nil {
		o.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		o.EndDate = *p.EndDate
	}
	if p.Priority != nil {
		o.Priority = *p.Priority
	}
	if p.PeriodicAmount != nil {
		o.PeriodicAmount = *p.PeriodicAmount
	}
	if p.AgreedPaymentDay != nil {
		o.AgreedPaymentDay = *p.AgreedPaymentDay
	}
	if p.EstimatedAmount != nil {
		o.EstimatedAmount = *p.EstimatedAmount
	}
	if p.Notes != nil {
		o.Notes = *p.Notes
	}
}

// LedgerService owns the obligation lifecycle: create, edit, soft delete and
// restore, each audited in the same transaction as the write.
type LedgerService struct {
	base
}

func NewLedgerService(d Deps) *LedgerService {
	return &LedgerService{base: newBase(d)}
}

// Create stores a new unpaid obligation. With GenerateSchedule set the
// schedule rows are written in the same transaction.
func (s *LedgerService) Create(ctx context.Context, in NewObligation, actor string) (core.Obligation, []core.Schedule, error) {
	now := s.clock.Now().UTC()
	o := core.Obligation{
		Name:             in.Name,
		CategoryID:       in.CategoryID,
		ProjectID:        in.ProjectID,
		Total:            in.Total,
		Kind:             in.Kind,
		StartDate:        in.StartDate,
		EndDate:          in.EndDate,
		Priority:         in.Priority,
		PeriodicAmount:   in.PeriodicAmount,
		AgreedPaymentDay: in.AgreedPaymentDay,
		EstimatedAmount:  in.EstimatedAmount,
		Notes:            in.Notes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	o.Reconcile(core.Money{})

	if err := o.Validate(); err != nil {
		return core.Obligation{}, nil, err
	}
	if in.GenerateSchedule && !o.Kind.Schedulable() {
		return core.Obligation{}, nil, core.NewValidationError("generate_schedule", errors.New("single obligations have no schedule"))
	}
	if err := s.checkReferences(ctx, o.CategoryID, o.ProjectID); err != nil {
		return core.Obligation{}, nil, err
	}

	var rows []core.Schedule
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		id, err := q.InsertObligation(ctx, o)
		if err != nil {
			return err
		}
		o.ID = id
		o.Version = 1

		if err := s.writeAudit(ctx, q, audit.Change{
			Table:    core.TableObligations,
			RecordID: id,
			Action:   core.ActionCreate,
			After:    o.Fields(),
			Actor:    actor,
		}); err != nil {
			return err
		}

		if in.GenerateSchedule {
			rows, err = insertGenerated(ctx, q, s.base, o, now, actor)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return core.Obligation{}, nil, fmt.Errorf("create obligation: %w", err)
	}

	slog.InfoContext(ctx, "Obligation created",
		"obligation_id", o.ID,
		"kind", o.Kind,
		"total_cents", o.Total.Cents,
		"schedule_rows", len(rows))

	publish(ctx, s.events, amqp.NewLedgerEvent(amqp.EventObligationCreated, o.ID, o.Version).
		With("total", o.Total.String()).
		With("kind", string(o.Kind)))

	return o, rows, nil
}

// Update applies a partial edit. An edit that changes nothing writes no audit
// entry and returns the current row.
func (s *LedgerService) Update(ctx context.Context, id int64, patch ObligationPatch, actor, reason string) (core.Obligation, error) {
	var categoryID, projectID int64
	if patch.CategoryID != nil {
		categoryID = *patch.CategoryID
	}
	if patch.ProjectID != nil {
		projectID = *patch.ProjectID
	}
	if err := s.checkReferences(ctx, categoryID, projectID); err != nil {
		return core.Obligation{}, err
	}

	var (
		next    core.Obligation
		changed bool
	)
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		cur, err := liveObligation(ctx, q, id)
		if err != nil {
			return err
		}

		next = cur
		patch.apply(&next)
		next.Reconcile(cur.Paid)
		if err := next.Validate(); err != nil {
			return err
		}

		before, after := cur.Fields(), next.Fields()
		if len(audit.Diff(before, after)) == 0 {
			next = cur
			return nil
		}
		changed = true

		next.UpdatedAt = s.clock.Now().UTC()
		if err := q.UpdateObligation(ctx, next); err != nil {
			return err
		}
		next.Version++

		return s.writeAudit(ctx, q, audit.Change{
			Table:    core.TableObligations,
			RecordID: id,
			Action:   core.ActionUpdate,
			Before:   before,
			After:    after,
			Actor:    actor,
			Reason:   reason,
		})
	})
	if err != nil {
		return core.Obligation{}, fmt.Errorf("update obligation %d: %w", id, err)
	}

	if changed {
		publish(ctx, s.events, amqp.NewLedgerEvent(amqp.EventObligationUpdated, id, next.Version))
	}
	return next, nil
}

// SoftDelete hides the obligation from listings and aggregations. Its
// payments and schedules are kept.
func (s *LedgerService) SoftDelete(ctx context.Context, id int64, actor, reason string) (core.Obligation, error) {
	o, err := s.toggleDeleted(ctx, id, true, actor, reason)
	if err != nil {
		return o, err
	}
	slog.InfoContext(ctx, "Obligation deleted", "obligation_id", id, "actor", actor)
	publish(ctx, s.events, amqp.NewLedgerEvent(amqp.EventObligationDeleted, id, o.Version))
	return o, nil
}

func (s *LedgerService) Restore(ctx context.Context, id int64, actor, reason string) (core.Obligation, error) {
	o, err := s.toggleDeleted(ctx, id, false, actor, reason)
	if err != nil {
		return o, err
	}
	slog.InfoContext(ctx, "Obligation restored", "obligation_id", id, "actor", actor)
	publish(ctx, s.events, amqp.NewLedgerEvent(amqp.EventObligationRestored, id, o.Version))
	return o, nil
}

func (s *LedgerService) toggleDeleted(ctx context.Context, id int64, deleted bool, actor, reason string) (core.Obligation, error) {
	var o core.Obligation
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		cur, err := q.GetObligation(ctx, id, true)
		if err != nil {
			return err
		}
		switch {
		case deleted && cur.Deleted:
			return &core.NotFoundError{Entity: "obligation", ID: id}
		case !deleted && !cur.Deleted:
			return &core.ConflictError{Entity: "obligation", ID: id, Reason: "obligation is not deleted"}
		}

		now := s.clock.Now().UTC()
		o = cur
		o.Deleted = deleted
		o.UpdatedAt = now
		action := core.ActionRestore
		if deleted {
			action = core.ActionDelete
			o.DeletedReason = reason
			o.DeletedBy = actor
			o.DeletedAt = &now
		} else {
			o.DeletedReason = ""
			o.DeletedBy = ""
			o.DeletedAt = nil
		}

		if err := q.UpdateObligation(ctx, o); err != nil {
			return err
		}
		o.Version++

		return s.writeAudit(ctx, q, audit.Change{
			Table:    core.TableObligations,
			RecordID: id,
			Action:   action,
			Before:   cur.Fields(),
			After:    o.Fields(),
			Actor:    actor,
			Reason:   reason,
		})
	})
	if err != nil {
		return core.Obligation{}, fmt.Errorf("toggle obligation %d: %w", id, err)
	}
	return o, nil
}

// Get returns a live obligation, or a soft-deleted one when includeDeleted is set.
func (s *LedgerService) Get(ctx context.Context, id int64, includeDeleted bool) (core.Obligation, error) {
	o, err := s.store.Queries().GetObligation(ctx, id, false)
	if err != nil {
		return o, err
	}
	if o.Deleted && !includeDeleted {
		return core.Obligation{}, &core.NotFoundError{Entity: "obligation", ID: id}
	}
	return o, nil
}

func (s *LedgerService) List(ctx context.Context, filter storage.ObligationFilter) ([]core.Obligation, error) {
	return s.store.Queries().ListObligations(ctx, filter)
}

// AuditTrail returns the entries of one record, oldest first.
func (s *LedgerService) AuditTrail(ctx context.Context, table string, id int64) ([]core.AuditEntry, error) {
	return s.store.Queries().ListAudit(ctx, table, id)
}
