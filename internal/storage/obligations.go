package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"payledger/internal/core"
)

const obligationColumns = `id, name, category_id, project_id, total_cents, paid_cents, kind,
	start_date, end_date, priority, status, periodic_amount_cents, agreed_payment_day,
	estimated_amount_cents, notes, deleted, deleted_reason, deleted_by, deleted_at,
	version, created_at, updated_at`

func scanObligation(row scanner) (core.Obligation, error) {
	var (
		o                    core.Obligation
		projectID            sql.NullInt64
		kind, status         string
		start, end           string
		deletedAt            sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&o.ID, &o.Name, &o.CategoryID, &projectID, &o.Total.Cents, &o.Paid.Cents, &kind,
		&start, &end, &o.Priority, &status, &o.PeriodicAmount.Cents, &o.AgreedPaymentDay,
		&o.EstimatedAmount.Cents, &o.Notes, &o.Deleted, &o.DeletedReason, &o.DeletedBy, &deletedAt,
		&o.Version, &createdAt, &updatedAt)
	if err != nil {
		return o, err
	}
	o.ProjectID = projectID.Int64
	o.Kind = core.ObligationKind(kind)
	o.Status = core.Status(status)
	if o.StartDate, err = parseDate(start); err != nil {
		return o, err
	}
	if o.EndDate, err = parseDate(end); err != nil {
		return o, err
	}
	if o.DeletedAt, err = parseTimePtr(deletedAt); err != nil {
		return o, err
	}
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return o, err
	}
	if o.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return o, err
	}
	return o, nil
}

// InsertObligation stores a new obligation with version 1 and returns its id.
func (q *Queries) InsertObligation(ctx context.Context, o core.Obligation) (int64, error) {
	id, err := q.insert(ctx, `INSERT INTO payment_items (name, category_id, project_id, total_cents,
		paid_cents, kind, start_date, end_date, priority, status, periodic_amount_cents,
		agreed_payment_day, estimated_amount_cents, notes, deleted, deleted_reason, deleted_by,
		version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', '', 1, ?, ?)`,
		o.Name, o.CategoryID, nullID(o.ProjectID), o.Total.Cents, o.Paid.Cents, string(o.Kind),
		formatDate(o.StartDate), formatDate(o.EndDate), o.Priority, string(o.Status),
		o.PeriodicAmount.Cents, o.AgreedPaymentDay, o.EstimatedAmount.Cents, o.Notes, false,
		formatTime(o.CreatedAt), formatTime(o.UpdatedAt))
	if err != nil {
		return 0, fmt.Errorf("insert obligation: %w", err)
	}
	return id, nil
}

// GetObligation loads an obligation including soft-deleted rows. With lock set
// the row is locked for the rest of the transaction where the dialect supports it.
func (q *Queries) GetObligation(ctx context.Context, id int64, lock bool) (core.Obligation, error) {
	query := `SELECT ` + obligationColumns + ` FROM payment_items WHERE id = ?`
	if lock {
		query += q.dialect.ForUpdate()
	}
	o, err := scanObligation(q.queryRow(ctx, query, id))
	if err != nil {
		return o, notFound(err, "obligation", id)
	}
	return o, nil
}

// UpdateObligation writes every mutable column guarded by the expected version
// and bumps the version. A stale version yields a ConflictError.
func (q *Queries) UpdateObligation(ctx context.Context, o core.Obligation) error {
	res, err := q.exec(ctx, `UPDATE payment_items SET name = ?, category_id = ?, project_id = ?,
		total_cents = ?, paid_cents = ?, kind = ?, start_date = ?, end_date = ?, priority = ?,
		status = ?, periodic_amount_cents = ?, agreed_payment_day = ?, estimated_amount_cents = ?,
		notes = ?, deleted = ?, deleted_reason = ?, deleted_by = ?, deleted_at = ?,
		version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		o.Name, o.CategoryID, nullID(o.ProjectID), o.Total.Cents, o.Paid.Cents, string(o.Kind),
		formatDate(o.StartDate), formatDate(o.EndDate), o.Priority, string(o.Status),
		o.PeriodicAmount.Cents, o.AgreedPaymentDay, o.EstimatedAmount.Cents, o.Notes,
		o.Deleted, o.DeletedReason, o.DeletedBy, formatTimePtr(o.DeletedAt),
		formatTime(o.UpdatedAt), o.ID, o.Version)
	if err != nil {
		return fmt.Errorf("update obligation %d: %w", o.ID, err)
	}
	return checkVersioned(res, "obligation", o.ID)
}

// ObligationFilter narrows ListObligations. Zero values mean "any".
type ObligationFilter struct {
	Kind           core.ObligationKind
	Status         core.Status
	CategoryID     int64
	ProjectID      int64
	IncludeDeleted bool
}

func (q *Queries) ListObligations(ctx context.Context, f ObligationFilter) ([]core.Obligation, error) {
	var (
		where []string
		args  []any
	)
	if !f.IncludeDeleted {
		where = append(where, "NOT deleted")
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.CategoryID > 0 {
		where = append(where, "category_id = ?")
		args = append(args, f.CategoryID)
	}
	if f.ProjectID > 0 {
		where = append(where, "project_id = ?")
		args = append(args, f.ProjectID)
	}

	query := `SELECT ` + obligationColumns + ` FROM payment_items`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY priority DESC, start_date, id"

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list obligations: %w", err)
	}
	defer rows.Close()

	out := []core.Obligation{}
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan obligation: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
