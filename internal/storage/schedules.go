package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"payledger/internal/core"
)

const scheduleColumns = `id, item_id, due_date, amount_cents, tag, notes, realized, payment_id, created_at`

func scanSchedule(row scanner) (core.Schedule, error) {
	var (
		s         core.Schedule
		due       string
		paymentID sql.NullInt64
		createdAt string
	)
	err := row.Scan(&s.ID, &s.ObligationID, &due, &s.Amount.Cents, &s.Tag, &s.Notes, &s.Realized,
		&paymentID, &createdAt)
	if err != nil {
		return s, err
	}
	s.PaymentID = paymentID.Int64
	if s.DueDate, err = parseDate(due); err != nil {
		return s, err
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return s, err
	}
	return s, nil
}

func scanSchedules(rows *sql.Rows) ([]core.Schedule, error) {
	defer rows.Close()
	out := []core.Schedule{}
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (q *Queries) InsertSchedule(ctx context.Context, s core.Schedule) (int64, error) {
	id, err := q.insert(ctx, `INSERT INTO payment_schedules (item_id, due_date, amount_cents, tag,
		notes, realized, payment_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ObligationID, formatDate(s.DueDate), s.Amount.Cents, s.Tag, s.Notes, s.Realized,
		nullID(s.PaymentID), formatTime(s.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("insert schedule: %w", err)
	}
	return id, nil
}

func (q *Queries) GetSchedule(ctx context.Context, id int64) (core.Schedule, error) {
	s, err := scanSchedule(q.queryRow(ctx, `SELECT `+scheduleColumns+` FROM payment_schedules WHERE id = ?`, id))
	if err != nil {
		return s, notFound(err, "schedule", id)
	}
	return s, nil
}

func (q *Queries) ListSchedulesByObligation(ctx context.Context, obligationID int64) ([]core.Schedule, error) {
	rows, err := q.query(ctx, `SELECT `+scheduleColumns+` FROM payment_schedules
		WHERE item_id = ? ORDER BY due_date, id`, obligationID)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return scanSchedules(rows)
}

// ListSchedules returns rows with from <= due_date < to belonging to live obligations.
func (q *Queries) ListSchedules(ctx context.Context, from, to core.Date) ([]core.Schedule, error) {
	rows, err := q.query(ctx, `SELECT s.id, s.item_id, s.due_date, s.amount_cents, s.tag, s.notes,
		s.realized, s.payment_id, s.created_at
		FROM payment_schedules s JOIN payment_items i ON i.id = s.item_id
		WHERE NOT i.deleted AND s.due_date >= ? AND s.due_date < ?
		ORDER BY s.due_date, s.id`, formatDate(from), formatDate(to))
	if err != nil {
		return nil, fmt.Errorf("list schedules in range: %w", err)
	}
	return scanSchedules(rows)
}

// ListAllSchedules returns every row of live obligations.
func (q *Queries) ListAllSchedules(ctx context.Context) ([]core.Schedule, error) {
	rows, err := q.query(ctx, `SELECT s.id, s.item_id, s.due_date, s.amount_cents, s.tag, s.notes,
		s.realized, s.payment_id, s.created_at
		FROM payment_schedules s JOIN payment_items i ON i.id = s.item_id
		WHERE NOT i.deleted ORDER BY s.due_date, s.id`)
	if err != nil {
		return nil, fmt.Errorf("list all schedules: %w", err)
	}
	return scanSchedules(rows)
}

// ListOpenSchedulesBefore returns unrealized rows of live obligations due before day.
func (q *Queries) ListOpenSchedulesBefore(ctx context.Context, day core.Date) ([]core.Schedule, error) {
	rows, err := q.query(ctx, `SELECT s.id, s.item_id, s.due_date, s.amount_cents, s.tag, s.notes,
		s.realized, s.payment_id, s.created_at
		FROM payment_schedules s JOIN payment_items i ON i.id = s.item_id
		WHERE NOT i.deleted AND NOT s.realized AND s.due_date < ?
		ORDER BY s.due_date, s.id`, formatDate(day))
	if err != nil {
		return nil, fmt.Errorf("list open schedules: %w", err)
	}
	return scanSchedules(rows)
}

// MarkScheduleRealized links a schedule row to the payment that settled it.
func (q *Queries) MarkScheduleRealized(ctx context.Context, scheduleID, paymentID int64) error {
	res, err := q.exec(ctx, `UPDATE payment_schedules SET realized = ?, payment_id = ?
		WHERE id = ? AND NOT realized`, true, paymentID, scheduleID)
	if err != nil {
		return fmt.Errorf("realize schedule %d: %w", scheduleID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &core.ConflictError{Entity: "schedule", ID: scheduleID, Reason: "already realized"}
	}
	return nil
}

// UnrealizeSchedules clears the realized flag of rows settled by paymentID.
func (q *Queries) UnrealizeSchedules(ctx context.Context, paymentID int64) error {
	_, err := q.exec(ctx, `UPDATE payment_schedules SET realized = ?, payment_id = NULL
		WHERE payment_id = ?`, false, paymentID)
	if err != nil {
		return fmt.Errorf("unrealize schedules of payment %d: %w", paymentID, err)
	}
	return nil
}

// FindOpenScheduleInMonth returns the earliest unrealized row of the obligation
// dated in the month of day. ok is false when none exists.
func (q *Queries) FindOpenScheduleInMonth(ctx context.Context, obligationID int64, day core.Date) (core.Schedule, bool, error) {
	from, to := MonthRange(day.Year(), day.Month())
	s, err := scanSchedule(q.queryRow(ctx, `SELECT `+scheduleColumns+` FROM payment_schedules
		WHERE item_id = ? AND NOT realized AND due_date >= ? AND due_date < ?
		ORDER BY due_date, id LIMIT 1`, obligationID, formatDate(from), formatDate(to)))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Schedule{}, false, nil
	}
	if err != nil {
		return core.Schedule{}, false, fmt.Errorf("find open schedule: %w", err)
	}
	return s, true, nil
}

func (q *Queries) DeleteUnrealizedSchedules(ctx context.Context, obligationID int64) (int64, error) {
	res, err := q.exec(ctx, `DELETE FROM payment_schedules WHERE item_id = ? AND NOT realized`, obligationID)
	if err != nil {
		return 0, fmt.Errorf("delete schedules: %w", err)
	}
	return res.RowsAffected()
}

func (q *Queries) CountRealizedSchedules(ctx context.Context, obligationID int64) (int64, error) {
	var n int64
	err := q.queryRow(ctx, `SELECT COUNT(*) FROM payment_schedules WHERE item_id = ? AND realized`,
		obligationID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count realized schedules: %w", err)
	}
	return n, nil
}

// Coverage is the scheduled total and row count of one obligation.
type Coverage struct {
	Total core.Money
	Rows  int
}

// ScheduleCoverage returns coverage keyed by obligation id. Obligations
// without rows are absent.
func (q *Queries) ScheduleCoverage(ctx context.Context) (map[int64]Coverage, error) {
	rows, err := q.query(ctx, `SELECT item_id, CAST(COALESCE(SUM(amount_cents), 0) AS BIGINT), COUNT(*)
		FROM payment_schedules GROUP BY item_id`)
	if err != nil {
		return nil, fmt.Errorf("schedule coverage: %w", err)
	}
	defer rows.Close()

	out := map[int64]Coverage{}
	for rows.Next() {
		var (
			id    int64
			cents int64
			n     int
		)
		if err := rows.Scan(&id, &cents, &n); err != nil {
			return nil, err
		}
		out[id] = Coverage{Total: core.Cents(cents), Rows: n}
	}
	return out, rows.Err()
}
