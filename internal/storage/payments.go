package storage

import (
	"context"
	"database/sql"
	"fmt"

	"payledger/internal/core"
)

const paymentColumns = `id, item_id, amount_cents, paid_on, method, receipt_ref, notes,
	schedule_id, voided, void_reason, voided_at, created_at`

func scanPayment(row scanner) (core.Payment, error) {
	var (
		p          core.Payment
		paidOn     string
		scheduleID sql.NullInt64
		voidedAt   sql.NullString
		createdAt  string
	)
	err := row.Scan(&p.ID, &p.ObligationID, &p.Amount.Cents, &paidOn, &p.Method, &p.ReceiptRef,
		&p.Notes, &scheduleID, &p.Voided, &p.VoidReason, &voidedAt, &createdAt)
	if err != nil {
		return p, err
	}
	p.ScheduleID = scheduleID.Int64
	if p.PaidOn, err = parseDate(paidOn); err != nil {
		return p, err
	}
	if p.VoidedAt, err = parseTimePtr(voidedAt); err != nil {
		return p, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return p, err
	}
	return p, nil
}

func scanPayments(rows *sql.Rows) ([]core.Payment, error) {
	defer rows.Close()
	out := []core.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *Queries) InsertPayment(ctx context.Context, p core.Payment) (int64, error) {
	id, err := q.insert(ctx, `INSERT INTO payment_events (item_id, amount_cents, paid_on, method,
		receipt_ref, notes, schedule_id, voided, void_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', ?)`,
		p.ObligationID, p.Amount.Cents, formatDate(p.PaidOn), p.Method, p.ReceiptRef, p.Notes,
		nullID(p.ScheduleID), false, formatTime(p.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("insert payment: %w", err)
	}
	return id, nil
}

func (q *Queries) GetPayment(ctx context.Context, id int64) (core.Payment, error) {
	p, err := scanPayment(q.queryRow(ctx, `SELECT `+paymentColumns+` FROM payment_events WHERE id = ?`, id))
	if err != nil {
		return p, notFound(err, "payment", id)
	}
	return p, nil
}

// UpdatePayment rewrites the mutable columns of a payment event, including its
// void marker.
func (q *Queries) UpdatePayment(ctx context.Context, p core.Payment) error {
	res, err := q.exec(ctx, `UPDATE payment_events SET amount_cents = ?, paid_on = ?, method = ?,
		receipt_ref = ?, notes = ?, schedule_id = ?, voided = ?, void_reason = ?, voided_at = ?
		WHERE id = ?`,
		p.Amount.Cents, formatDate(p.PaidOn), p.Method, p.ReceiptRef, p.Notes, nullID(p.ScheduleID),
		p.Voided, p.VoidReason, formatTimePtr(p.VoidedAt), p.ID)
	if err != nil {
		return fmt.Errorf("update payment %d: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &core.NotFoundError{Entity: "payment", ID: p.ID}
	}
	return nil
}

// ListPaymentsByObligation returns every payment event of an obligation,
// voided ones included, oldest first.
func (q *Queries) ListPaymentsByObligation(ctx context.Context, obligationID int64) ([]core.Payment, error) {
	rows, err := q.query(ctx, `SELECT `+paymentColumns+` FROM payment_events
		WHERE item_id = ? ORDER BY paid_on, id`, obligationID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return scanPayments(rows)
}

// ListPaymentsPaidBetween returns non-voided payments with from <= paid_on < to.
func (q *Queries) ListPaymentsPaidBetween(ctx context.Context, from, to core.Date) ([]core.Payment, error) {
	rows, err := q.query(ctx, `SELECT `+paymentColumns+` FROM payment_events
		WHERE NOT voided AND paid_on >= ? AND paid_on < ? ORDER BY paid_on, id`,
		formatDate(from), formatDate(to))
	if err != nil {
		return nil, fmt.Errorf("list payments in range: %w", err)
	}
	return scanPayments(rows)
}

// SumPayments totals the non-voided payments of an obligation.
func (q *Queries) SumPayments(ctx context.Context, obligationID int64) (core.Money, error) {
	var cents int64
	err := q.queryRow(ctx, `SELECT CAST(COALESCE(SUM(amount_cents), 0) AS BIGINT)
		FROM payment_events WHERE item_id = ? AND NOT voided`, obligationID).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum payments: %w", err)
	}
	return core.Cents(cents), nil
}
