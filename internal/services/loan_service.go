package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"payledger/internal/amqp"
	"payledger/internal/audit"
	"payledger/internal/core"
	"payledger/internal/schedule"
	"payledger/internal/storage"
)

// NewLoan is the create request for a loan or investment record.
type NewLoan struct {
	Kind          core.LoanKind   `json:"kind"`
	Counterparty  string          `json:"counterparty"`
	Contact       string          `json:"contact"`
	Principal     core.Money      `json:"principal"`
	InterestRate  decimal.Decimal `json:"interest_rate"`
	Frequency     core.Frequency  `json:"frequency"`
	PaymentAmount core.Money      `json:"payment_amount"`
	StartDate     core.Date       `json:"start_date"`
	EndDate       core.Date       `json:"end_date"`
	Notes         string          `json:"notes"`
}

// LoanPatch edits descriptive fields. Terms are fixed once the schedule exists.
type LoanPatch struct {
	Counterparty *string `json:"counterparty"`
	Contact      *string `json:"contact"`
	Notes        *string `json:"notes"`
}

type NewLoanPayment struct {
	Amount      core.Money `json:"amount"`
	PaidOn      core.Date  `json:"paid_on"`
	PaymentType string     `json:"payment_type"`
	Method      string     `json:"method"`
	Notes       string     `json:"notes"`
	ScheduleID  int64      `json:"schedule_id"`
}

// LoanDetail bundles a record with its payment plan.
type LoanDetail struct {
	Loan     core.LoanRecord          `json:"loan"`
	Schedule []core.LoanScheduleEntry `json:"schedule"`
}

type LoanService struct {
	base
}

func NewLoanService(d Deps) *LoanService {
	return &LoanService{base: newBase(d)}
}

// Create stores an active record and its generated payment plan.
func (s *LoanService) Create(ctx context.Context, in NewLoan, actor string) (LoanDetail, error) {
	now := s.clock.Now().UTC()
	l := core.LoanRecord{
		Kind:          in.Kind,
		Counterparty:  strings.TrimSpace(in.Counterparty),
		Contact:       in.Contact,
		Principal:     in.Principal,
		InterestRate:  in.InterestRate,
		Frequency:     in.Frequency,
		PaymentAmount: in.PaymentAmount,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		Status:        core.LoanActive,
		Notes:         in.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := l.Validate(); err != nil {
		return LoanDetail{}, err
	}
	plan, err := schedule.ForLoan(l)
	if err != nil {
		return LoanDetail{}, err
	}

	err = s.store.InTx(ctx, func(q *storage.Queries) error {
		id, err := q.InsertLoan(ctx, l)
		if err != nil {
			return err
		}
		l.ID = id
		l.Version = 1
		for i := range plan {
			plan[i].LoanID = id
			if plan[i].ID, err = q.InsertLoanSchedule(ctx, plan[i]); err != nil {
				return err
			}
		}
		return s.writeAudit(ctx, q, audit.Change{
			Table:    core.TableLoans,
			RecordID: id,
			Action:   core.ActionCreate,
			After:    l.Fields(),
			Actor:    actor,
		})
	})
	if err != nil {
		return LoanDetail{}, fmt.Errorf("create loan: %w", err)
	}

	slog.InfoContext(ctx, "Loan record created",
		"loan_id", l.ID,
		"kind", l.Kind,
		"principal_cents", l.Principal.Cents,
		"entries", len(plan))
	return LoanDetail{Loan: l, Schedule: plan}, nil
}

func (s *LoanService) Get(ctx context.Context, id int64) (LoanDetail, error) {
	q := s.store.Queries()
	l, err := q.GetLoan(ctx, id, false)
	if err != nil {
		return LoanDetail{}, err
	}
	plan, err := q.ListLoanSchedule(ctx, id)
	if err != nil {
		return LoanDetail{}, err
	}
	return LoanDetail{Loan: l, Schedule: plan}, nil
}

func (s *LoanService) List(ctx context.Context, status core.LoanStatus) ([]core.LoanRecord, error) {
	return s.store.Queries().ListLoans(ctx, status)
}

func (s *LoanService) Schedule(ctx context.Context, id int64) ([]core.LoanScheduleEntry, error) {
	q := s.store.Queries()
	if _, err := q.GetLoan(ctx, id, false); err != nil {
		return nil, err
	}
	return q.ListLoanSchedule(ctx, id)
}

func (s *LoanService) Payments(ctx context.Context, id int64) ([]core.LoanPayment, error) {
	q := s.store.Queries()
	if _, err := q.GetLoan(ctx, id, false); err != nil {
		return nil, err
	}
	return q.ListLoanPayments(ctx, id)
}

func (s *LoanService) Update(ctx context.Context, id int64, patch LoanPatch, actor, reason string) (core.LoanRecord, error) {
	var next core.LoanRecord
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		cur, err := q.GetLoan(ctx, id, true)
		if err != nil {
			return err
		}
		next = cur
		if patch.Counterparty != nil {
			next.Counterparty = strings.TrimSpace(*patch.Counterparty)
		}
		if patch.Contact != nil {
			next.Contact = *patch.Contact
		}
		if patch.Notes != nil {
			next.Notes = *patch.Notes
		}
		if err := next.Validate(); err != nil {
			return err
		}
		before, after := cur.Fields(), next.Fields()
		if len(audit.Diff(before, after)) == 0 {
			return nil
		}
		next.UpdatedAt = s.clock.Now().UTC()
		if err := q.UpdateLoan(ctx, next); err != nil {
			return err
		}
		next.Version++
		return s.writeAudit(ctx, q, audit.Change{
			Table:    core.TableLoans,
			RecordID: id,
			Action:   core.ActionUpdate,
			Before:   before,
			After:    after,
			Actor:    actor,
			Reason:   reason,
		})
	})
	if err != nil {
		return core.LoanRecord{}, fmt.Errorf("update loan %d: %w", id, err)
	}
	return next, nil
}

// Cancel is the only way to remove a record. Completed records cannot be cancelled.
func (s *LoanService) Cancel(ctx context.Context, id int64, actor, reason string) (core.LoanRecord, error) {
	var l core.LoanRecord
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		cur, err := q.GetLoan(ctx, id, true)
		if err != nil {
			return err
		}
		if cur.Status != core.LoanActive {
			return &core.ConflictError{Entity: "loan", ID: id, Reason: "loan is " + string(cur.Status)}
		}
		l = cur
		l.Status = core.LoanCancelled
		l.UpdatedAt = s.clock.Now().UTC()
		if err := q.UpdateLoan(ctx, l); err != nil {
			return err
		}
		l.Version++
		return s.writeAudit(ctx, q, audit.Change{
			Table:    core.TableLoans,
			RecordID: id,
			Action:   core.ActionDelete,
			Before:   cur.Fields(),
			After:    l.Fields(),
			Actor:    actor,
			Reason:   reason,
		})
	})
	if err != nil {
		return core.LoanRecord{}, fmt.Errorf("cancel loan %d: %w", id, err)
	}
	slog.InfoContext(ctx, "Loan record cancelled", "loan_id", id, "actor", actor)
	return l, nil
}

// ApplyPayment records a loan payment with principal and interest snapshots.
// Every payment counts toward TotalPaid, which may not exceed the larger of the
// plan total and the principal. The record completes once TotalPaid reaches the
// principal. The payment type only drives the interest snapshot and stats.
func (s *LoanService) ApplyPayment(ctx context.Context, loanID int64, in NewLoanPayment, actor string) (core.LoanPayment, core.LoanRecord, error) {
	p := core.LoanPayment{
		LoanID:      loanID,
		ScheduleID:  in.ScheduleID,
		Amount:      in.Amount,
		PaidOn:      in.PaidOn,
		PaymentType: in.PaymentType,
		Method:      in.Method,
		Notes:       in.Notes,
		CreatedAt:   s.clock.Now().UTC(),
	}
	if err := p.Validate(); err != nil {
		return core.LoanPayment{}, core.LoanRecord{}, err
	}

	var l core.LoanRecord
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		cur, err := q.GetLoan(ctx, loanID, true)
		if err != nil {
			return err
		}
		if cur.Status != core.LoanActive {
			return &core.ConflictError{Entity: "loan", ID: loanID, Reason: "loan is " + string(cur.Status)}
		}
		l = cur

		planned, err := q.SumLoanSchedule(ctx, loanID)
		if err != nil {
			return err
		}
		payable := core.MaxMoney(planned, l.Principal)
		if l.TotalPaid.Add(p.Amount).Cents > payable.Cents {
			return &core.OverpaymentError{
				Remaining: core.MaxMoney(payable.Sub(l.TotalPaid), core.Money{}),
				Attempted: p.Amount,
			}
		}
		l.TotalPaid = l.TotalPaid.Add(p.Amount)

		interestPaid, err := q.SumLoanPayments(ctx, loanID, core.PaymentTypeInterest)
		if err != nil {
			return err
		}
		if p.PaymentType == core.PaymentTypeInterest {
			interestPaid = interestPaid.Add(p.Amount)
		}
		expectedInterest := core.MaxMoney(planned.Sub(l.Principal), core.Money{})
		p.RemainingPrincipal = l.RemainingPrincipal()
		p.RemainingInterest = core.MaxMoney(expectedInterest.Sub(interestPaid), core.Money{})

		entry, err := s.loanEntry(ctx, q, loanID, p.ScheduleID)
		if err != nil {
			return err
		}
		if entry != nil {
			p.ScheduleID = entry.ID
			if err := q.MarkLoanSchedulePaid(ctx, entry.ID, p.PaidOn, p.Amount); err != nil {
				return err
			}
		}

		if p.ID, err = q.InsertLoanPayment(ctx, p); err != nil {
			return err
		}

		before := cur.Fields()
		if l.TotalPaid.Cents >= l.Principal.Cents {
			l.Status = core.LoanCompleted
		}
		l.UpdatedAt = p.CreatedAt
		if err := q.UpdateLoan(ctx, l); err != nil {
			return err
		}
		l.Version++

		if err := s.writeAudit(ctx, q, audit.Change{
			Table:    core.TableLoanPayments,
			RecordID: p.ID,
			Action:   core.ActionCreate,
			After:    loanPaymentFields(p),
			Actor:    actor,
		}); err != nil {
			return err
		}
		return s.writeAudit(ctx, q, audit.Change{
			Table:    core.TableLoans,
			RecordID: loanID,
			Action:   core.ActionUpdate,
			Before:   before,
			After:    l.Fields(),
			Actor:    actor,
			Reason:   "payment applied",
		})
	})
	if err != nil {
		return core.LoanPayment{}, core.LoanRecord{}, fmt.Errorf("apply payment to loan %d: %w", loanID, err)
	}

	slog.InfoContext(ctx, "Loan payment applied",
		"loan_id", loanID,
		"payment_id", p.ID,
		"amount_cents", p.Amount.Cents,
		"payment_type", p.PaymentType,
		"remaining_principal_cents", p.RemainingPrincipal.Cents)

	publish(ctx, s.events, amqp.NewLedgerEvent(amqp.EventLoanPaymentApplied, p.ID, l.Version).
		With("loan_id", loanID).
		With("amount", p.Amount.String()))
	if l.Status == core.LoanCompleted {
		publish(ctx, s.events, amqp.NewLedgerEvent(amqp.EventLoanCompleted, loanID, l.Version))
	}
	return p, l, nil
}

// loanEntry picks the plan entry a payment settles: the explicit one, else
// the earliest unpaid. It returns nil when every entry is paid.
func (s *LoanService) loanEntry(ctx context.Context, q *storage.Queries, loanID, scheduleID int64) (*core.LoanScheduleEntry, error) {
	if scheduleID == 0 {
		e, ok, err := q.FirstUnpaidLoanSchedule(ctx, loanID)
		if err != nil || !ok {
			return nil, err
		}
		return &e, nil
	}

	plan, err := q.ListLoanSchedule(ctx, loanID)
	if err != nil {
		return nil, err
	}
	for i := range plan {
		if plan[i].ID != scheduleID {
			continue
		}
		if plan[i].Paid {
			return nil, &core.ConflictError{Entity: "loan schedule", ID: scheduleID, Reason: "already paid"}
		}
		return &plan[i], nil
	}
	return nil, core.NewValidationError("schedule_id", errors.New("schedule entry belongs to another loan"))
}

// VerifyPayment marks a history row as checked by verifier.
func (s *LoanService) VerifyPayment(ctx context.Context, loanID, paymentID int64, verifier string) (core.LoanPayment, error) {
	if strings.TrimSpace(verifier) == "" {
		return core.LoanPayment{}, core.NewValidationError("verified_by", core.ErrEmptyName)
	}
	var p core.LoanPayment
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		var err error
		p, err = q.GetLoanPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.LoanID != loanID {
			return &core.NotFoundError{Entity: "loan payment", ID: paymentID}
		}
		before := loanPaymentFields(p)
		now := s.clock.Now().UTC()
		p.Verified = true
		p.VerifiedBy = verifier
		p.VerifiedAt = &now
		if err := q.VerifyLoanPayment(ctx, p); err != nil {
			return err
		}
		return s.writeAudit(ctx, q, audit.Change{
			Table:    core.TableLoanPayments,
			RecordID: paymentID,
			Action:   core.ActionVerify,
			Before:   before,
			After:    loanPaymentFields(p),
			Actor:    verifier,
		})
	})
	if err != nil {
		return core.LoanPayment{}, fmt.Errorf("verify loan payment %d: %w", paymentID, err)
	}
	return p, nil
}

// Stats groups history rows by method. A zero loanID covers every record.
func (s *LoanService) Stats(ctx context.Context, loanID int64) ([]core.LoanPaymentStats, error) {
	if loanID > 0 {
		if _, err := s.store.Queries().GetLoan(ctx, loanID, false); err != nil {
			return nil, err
		}
	}
	return s.store.Queries().LoanPaymentStats(ctx, loanID)
}

func loanPaymentFields(p core.LoanPayment) map[string]any {
	return map[string]any{
		"loan_id":             p.LoanID,
		"schedule_id":         p.ScheduleID,
		"amount":              p.Amount.String(),
		"paid_on":             p.PaidOn.String(),
		"payment_type":        p.PaymentType,
		"method":              p.Method,
		"remaining_principal": p.RemainingPrincipal.String(),
		"remaining_interest":  p.RemainingInterest.String(),
		"verified":            p.Verified,
		"verified_by":         p.VerifiedBy,
		"notes":               p.Notes,
	}
}
