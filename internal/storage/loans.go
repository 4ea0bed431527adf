package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"payledger/internal/core"
)

const loanColumns = `id, kind, counterparty, contact, principal_cents, interest_rate, frequency,
	payment_amount_cents, start_date, end_date, status, total_paid_cents, notes, version,
	created_at, updated_at`

func scanLoan(row scanner) (core.LoanRecord, error) {
	var (
		l                        core.LoanRecord
		kind, freq, status, rate string
		start, end               string
		createdAt, updatedAt     string
	)
	err := row.Scan(&l.ID, &kind, &l.Counterparty, &l.Contact, &l.Principal.Cents, &rate, &freq,
		&l.PaymentAmount.Cents, &start, &end, &status, &l.TotalPaid.Cents, &l.Notes, &l.Version,
		&createdAt, &updatedAt)
	if err != nil {
		return l, err
	}
	l.Kind = core.LoanKind(kind)
	l.Frequency = core.Frequency(freq)
	l.Status = core.LoanStatus(status)
	if l.InterestRate, err = decimal.NewFromString(rate); err != nil {
		return l, fmt.Errorf("parse stored rate %q: %w", rate, err)
	}
	if l.StartDate, err = parseDate(start); err != nil {
		return l, err
	}
	if l.EndDate, err = parseDate(end); err != nil {
		return l, err
	}
	if l.CreatedAt, err = parseTime(createdAt); err != nil {
		return l, err
	}
	if l.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return l, err
	}
	return l, nil
}

func (q *Queries) InsertLoan(ctx context.Context, l core.LoanRecord) (int64, error) {
	id, err := q.insert(ctx, `INSERT INTO loan_records (kind, counterparty, contact, principal_cents,
		interest_rate, frequency, payment_amount_cents, start_date, end_date, status,
		total_paid_cents, notes, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		string(l.Kind), l.Counterparty, l.Contact, l.Principal.Cents, l.InterestRate.String(),
		string(l.Frequency), l.PaymentAmount.Cents, formatDate(l.StartDate), formatDate(l.EndDate),
		string(l.Status), l.TotalPaid.Cents, l.Notes, formatTime(l.CreatedAt), formatTime(l.UpdatedAt))
	if err != nil {
		return 0, fmt.Errorf("insert loan: %w", err)
	}
	return id, nil
}

func (q *Queries) GetLoan(ctx context.Context, id int64, lock bool) (core.LoanRecord, error) {
	query := `SELECT ` + loanColumns + ` FROM loan_records WHERE id = ?`
	if lock {
		query += q.dialect.ForUpdate()
	}
	l, err := scanLoan(q.queryRow(ctx, query, id))
	if err != nil {
		return l, notFound(err, "loan", id)
	}
	return l, nil
}

// ListLoans filters by status when status is non-empty.
func (q *Queries) ListLoans(ctx context.Context, status core.LoanStatus) ([]core.LoanRecord, error) {
	query := `SELECT ` + loanColumns + ` FROM loan_records`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	rows, err := q.query(ctx, query+` ORDER BY start_date, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	defer rows.Close()

	out := []core.LoanRecord{}
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (q *Queries) UpdateLoan(ctx context.Context, l core.LoanRecord) error {
	res, err := q.exec(ctx, `UPDATE loan_records SET counterparty = ?, contact = ?, status = ?,
		total_paid_cents = ?, notes = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		l.Counterparty, l.Contact, string(l.Status), l.TotalPaid.Cents, l.Notes,
		formatTime(l.UpdatedAt), l.ID, l.Version)
	if err != nil {
		return fmt.Errorf("update loan %d: %w", l.ID, err)
	}
	return checkVersioned(res, "loan", l.ID)
}

func (q *Queries) InsertLoanSchedule(ctx context.Context, e core.LoanScheduleEntry) (int64, error) {
	id, err := q.insert(ctx, `INSERT INTO loan_schedules (loan_id, due_date, amount_cents, paid,
		paid_date, paid_amount_cents) VALUES (?, ?, ?, ?, '', 0)`,
		e.LoanID, formatDate(e.DueDate), e.Amount.Cents, false)
	if err != nil {
		return 0, fmt.Errorf("insert loan schedule: %w", err)
	}
	return id, nil
}

const loanScheduleColumns = `id, loan_id, due_date, amount_cents, paid, paid_date, paid_amount_cents`

func scanLoanSchedule(row scanner) (core.LoanScheduleEntry, error) {
	var (
		e             core.LoanScheduleEntry
		due, paidDate string
	)
	if err := row.Scan(&e.ID, &e.LoanID, &due, &e.Amount.Cents, &e.Paid, &paidDate, &e.PaidAmount.Cents); err != nil {
		return e, err
	}
	var err error
	if e.DueDate, err = parseDate(due); err != nil {
		return e, err
	}
	if e.PaidDate, err = parseDate(paidDate); err != nil {
		return e, err
	}
	return e, nil
}

func (q *Queries) ListLoanSchedule(ctx context.Context, loanID int64) ([]core.LoanScheduleEntry, error) {
	rows, err := q.query(ctx, `SELECT `+loanScheduleColumns+` FROM loan_schedules
		WHERE loan_id = ? ORDER BY due_date, id`, loanID)
	if err != nil {
		return nil, fmt.Errorf("list loan schedule: %w", err)
	}
	defer rows.Close()

	out := []core.LoanScheduleEntry{}
	for rows.Next() {
		e, err := scanLoanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan loan schedule: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// FirstUnpaidLoanSchedule returns the earliest unpaid entry. ok is false when
// every entry is paid.
func (q *Queries) FirstUnpaidLoanSchedule(ctx context.Context, loanID int64) (core.LoanScheduleEntry, bool, error) {
	e, err := scanLoanSchedule(q.queryRow(ctx, `SELECT `+loanScheduleColumns+` FROM loan_schedules
		WHERE loan_id = ? AND NOT paid ORDER BY due_date, id LIMIT 1`, loanID))
	if errors.Is(err, sql.ErrNoRows) {
		return e, false, nil
	}
	if err != nil {
		return e, false, fmt.Errorf("first unpaid loan schedule: %w", err)
	}
	return e, true, nil
}

func (q *Queries) MarkLoanSchedulePaid(ctx context.Context, id int64, paidOn core.Date, amount core.Money) error {
	_, err := q.exec(ctx, `UPDATE loan_schedules SET paid = ?, paid_date = ?, paid_amount_cents = ?
		WHERE id = ?`, true, formatDate(paidOn), amount.Cents, id)
	if err != nil {
		return fmt.Errorf("mark loan schedule %d paid: %w", id, err)
	}
	return nil
}

// SumLoanSchedule totals every scheduled amount of the loan.
func (q *Queries) SumLoanSchedule(ctx context.Context, loanID int64) (core.Money, error) {
	var cents int64
	err := q.queryRow(ctx, `SELECT CAST(COALESCE(SUM(amount_cents), 0) AS BIGINT)
		FROM loan_schedules WHERE loan_id = ?`, loanID).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum loan schedule: %w", err)
	}
	return core.Cents(cents), nil
}

// SumLoanPayments totals history rows of the given payment type.
func (q *Queries) SumLoanPayments(ctx context.Context, loanID int64, paymentType string) (core.Money, error) {
	var cents int64
	err := q.queryRow(ctx, `SELECT CAST(COALESCE(SUM(amount_cents), 0) AS BIGINT)
		FROM loan_payment_history WHERE loan_id = ? AND payment_type = ?`, loanID, paymentType).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum loan payments: %w", err)
	}
	return core.Cents(cents), nil
}

const loanPaymentColumns = `id, loan_id, schedule_id, amount_cents, paid_on, payment_type, method,
	remaining_principal_cents, remaining_interest_cents, verified, verified_by, verified_at,
	notes, created_at`

func scanLoanPayment(row scanner) (core.LoanPayment, error) {
	var (
		p          core.LoanPayment
		scheduleID sql.NullInt64
		paidOn     string
		verifiedAt sql.NullString
		createdAt  string
	)
	err := row.Scan(&p.ID, &p.LoanID, &scheduleID, &p.Amount.Cents, &paidOn, &p.PaymentType, &p.Method,
		&p.RemainingPrincipal.Cents, &p.RemainingInterest.Cents, &p.Verified, &p.VerifiedBy,
		&verifiedAt, &p.Notes, &createdAt)
	if err != nil {
		return p, err
	}
	p.ScheduleID = scheduleID.Int64
	if p.PaidOn, err = parseDate(paidOn); err != nil {
		return p, err
	}
	if p.VerifiedAt, err = parseTimePtr(verifiedAt); err != nil {
		return p, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return p, err
	}
	return p, nil
}

func (q *Queries) InsertLoanPayment(ctx context.Context, p core.LoanPayment) (int64, error) {
	id, err := q.insert(ctx, `INSERT INTO loan_payment_history (loan_id, schedule_id, amount_cents,
		paid_on, payment_type, method, remaining_principal_cents, remaining_interest_cents,
		verified, verified_by, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?)`,
		p.LoanID, nullID(p.ScheduleID), p.Amount.Cents, formatDate(p.PaidOn), p.PaymentType,
		p.Method, p.RemainingPrincipal.Cents, p.RemainingInterest.Cents, false, p.Notes,
		formatTime(p.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("insert loan payment: %w", err)
	}
	return id, nil
}

func (q *Queries) GetLoanPayment(ctx context.Context, id int64) (core.LoanPayment, error) {
	p, err := scanLoanPayment(q.queryRow(ctx, `SELECT `+loanPaymentColumns+`
		FROM loan_payment_history WHERE id = ?`, id))
	if err != nil {
		return p, notFound(err, "loan payment", id)
	}
	return p, nil
}

func (q *Queries) ListLoanPayments(ctx context.Context, loanID int64) ([]core.LoanPayment, error) {
	rows, err := q.query(ctx, `SELECT `+loanPaymentColumns+` FROM loan_payment_history
		WHERE loan_id = ? ORDER BY paid_on, id`, loanID)
	if err != nil {
		return nil, fmt.Errorf("list loan payments: %w", err)
	}
	defer rows.Close()

	out := []core.LoanPayment{}
	for rows.Next() {
		p, err := scanLoanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan loan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// VerifyLoanPayment marks an unverified history row as verified. A row that
// is already verified yields a ConflictError.
func (q *Queries) VerifyLoanPayment(ctx context.Context, p core.LoanPayment) error {
	res, err := q.exec(ctx, `UPDATE loan_payment_history SET verified = ?, verified_by = ?, verified_at = ?
		WHERE id = ? AND NOT verified`, true, p.VerifiedBy, formatTimePtr(p.VerifiedAt), p.ID)
	if err != nil {
		return fmt.Errorf("verify loan payment %d: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &core.ConflictError{Entity: "loan payment", ID: p.ID, Reason: "already verified"}
	}
	return nil
}

// LoanPaymentStats groups history rows by method. A zero loanID covers every loan.
func (q *Queries) LoanPaymentStats(ctx context.Context, loanID int64) ([]core.LoanPaymentStats, error) {
	query := `SELECT method, COUNT(*), CAST(COALESCE(SUM(amount_cents), 0) AS BIGINT),
		CAST(COALESCE(SUM(CASE WHEN verified THEN 1 ELSE 0 END), 0) AS BIGINT)
		FROM loan_payment_history`
	var args []any
	if loanID > 0 {
		query += ` WHERE loan_id = ?`
		args = append(args, loanID)
	}
	rows, err := q.query(ctx, query+` GROUP BY method ORDER BY method`, args...)
	if err != nil {
		return nil, fmt.Errorf("loan payment stats: %w", err)
	}
	defer rows.Close()

	out := []core.LoanPaymentStats{}
	for rows.Next() {
		var (
			s        core.LoanPaymentStats
			verified int64
		)
		if err := rows.Scan(&s.Method, &s.Count, &s.Total.Cents, &verified); err != nil {
			return nil, err
		}
		s.Verified = int(verified)
		s.Pending = s.Count - s.Verified
		out = append(out, s)
	}
	return out, rows.Err()
}
