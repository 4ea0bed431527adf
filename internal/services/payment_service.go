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

// NewPayment is a payment application request.
type NewPayment struct {
	Amount     core.Money `json:"amount"`
	PaidOn     core.Date  `json:"paid_on"`
	Method     string     `json:"method"`
	ReceiptRef string     `json:"receipt_ref"`
	Notes      string     `json:"notes"`
	ScheduleID int64      `json:"schedule_id"`
}

// PaymentPatch edits a payment event; nil means unchanged.
type PaymentPatch struct {
	Amount     *core.Money `json:"amount"`
	PaidOn     *core.Date  `json:"paid_on"`
	Method     *string     `json:"method"`
	ReceiptRef *string     `json:"receipt_ref"`
	Notes      *string     `json:"notes"`
}

// PaymentService applies, edits and reverses payment events. Every mutation
// locks the obligation, re-sums its non-voided events inside the transaction
// and writes paid and status back under a version check.
type PaymentService struct {
	base
}

func NewPaymentService(d Deps) *PaymentService {
	return &PaymentService{base: newBase(d)}
}

// Apply records a payment. It fails with OverpaymentError when the payment
// would take paid past total, and with ConflictError when a concurrent writer
// changed the obligation first.
func (s *PaymentService) Apply(ctx context.Context, obligationID int64, in NewPayment, actor string) (core.Payment, core.Obligation, error) {
	now := s.clock.Now().UTC()
	p := core.Payment{
		ObligationID: obligationID,
		Amount:       in.Amount,
		PaidOn:       in.PaidOn,
		Method:       in.Method,
		ReceiptRef:   in.ReceiptRef,
		Notes:        in.Notes,
		ScheduleID:   in.ScheduleID,
		CreatedAt:    now,
	}
	if err := p.Validate(); err != nil {
		return core.Payment{}, core.Obligation{}, err
	}

	var o core.Obligation
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		var err error
		o, err = liveObligation(ctx, q, obligationID)
		if err != nil {
			return err
		}

		paid, err := q.SumPayments(ctx, obligationID)
		if err != nil {
			return err
		}
		if err := checkOverpayment(o.Total, paid, p.Amount); err != nil {
			return err
		}

		if err := s.correlate(ctx, q, &p); err != nil {
			return err
		}

		p.ID, err = q.InsertPayment(ctx, p)
		if err != nil {
			return err
		}
		if p.ScheduleID != 0 {
			if err := q.MarkScheduleRealized(ctx, p.ScheduleID, p.ID); err != nil {
				return err
			}
		}

		if err := s.writeAudit(ctx, q, audit.Change{
			Table:    core.TablePayments,
			RecordID: p.ID,
			Action:   core.ActionCreate,
			After:    p.Fields(),
			Actor:    actor,
		}); err != nil {
			return err
		}

		return s.reconcile(ctx, q, &o, actor, "payment applied")
	})
	if err != nil {
		return core.Payment{}, core.Obligation{}, fmt.Errorf("apply payment to obligation %d: %w", obligationID, err)
	}

	slog.InfoContext(ctx, "Payment applied",
		"obligation_id", obligationID,
		"payment_id", p.ID,
		"amount_cents", p.Amount.Cents,
		"status", o.Status)

	publish(ctx, s.events, amqp.NewLedgerEvent(amqp.EventPaymentApplied, p.ID, o.Version).
		With("obligation_id", obligationID).
		With("amount", p.Amount.String()).
		With("status", string(o.Status)))

	return p, o, nil
}

// correlate resolves the schedule row a payment settles: the explicit id when
// given, else the earliest open row of the obligation in the payment's month
// provided the payment covers the row's amount.
func (s *PaymentService) correlate(ctx context.Context, q *storage.Queries, p *core.Payment) error {
	if p.ScheduleID != 0 {
		row, err := q.GetSchedule(ctx, p.ScheduleID)
		if err != nil {
			return err
		}
		if row.ObligationID != p.ObligationID {
			return core.NewValidationError("schedule_id", errors.New("schedule belongs to another obligation"))
		}
		if row.Realized {
			return &core.ConflictError{Entity: "schedule", ID: row.ID, Reason: "already realized"}
		}
		return nil
	}

	row, ok, err := q.FindOpenScheduleInMonth(ctx, p.ObligationID, p.PaidOn)
	if err != nil {
		return err
	}
	if ok && p.Amount.Cents >= row.Amount.Cents {
		p.ScheduleID = row.ID
	}
	return nil
}

// reconcile re-sums non-voided events, re-checks paid <= total and writes
// paid and status under the version check. It audits only a real change.
func (s *PaymentService) reconcile(ctx context.Context, q *storage.Queries, o *core.Obligation, actor, reason string) error {
	paid, err := q.SumPayments(ctx, o.ID)
	if err != nil {
		return err
	}
	if paid.Cents > o.Total.Cents {
		return &core.OverpaymentError{Remaining: core.Money{}, Attempted: paid.Sub(o.Total)}
	}

	before := o.Fields()
	o.Reconcile(paid)
	o.UpdatedAt = s.clock.Now().UTC()
	if err := q.UpdateObligation(ctx, *o); err != nil {
		return err
	}
	o.Version++

	after := o.Fields()
	if len(audit.Diff(before, after)) == 0 {
		return nil
	}
	return s.writeAudit(ctx, q, audit.Change{
		Table:    core.TableObligations,
		RecordID: o.ID,
		Action:   core.ActionUpdate,
		Before:   before,
		After:    after,
		Actor:    actor,
		Reason:   reason,
	})
}

func checkOverpayment(total, paid, amount core.Money) error {
	if paid.Add(amount).Cents > total.Cents {
		return &core.OverpaymentError{
			Remaining: core.MaxMoney(total.Sub(paid), core.Money{}),
			Attempted: amount,
		}
	}
	return nil
}

// Reverse voids a payment event, detaches and reopens the schedule row it
// settled and re-derives the obligation's paid amount.
func (s *PaymentService) Reverse(ctx context.Context, paymentID int64, actor, reason string) (core.Payment, core.Obligation, error) {
	var (
		p core.Payment
		o core.Obligation
	)
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		var err error
		p, err = q.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.Voided {
			return &core.ConflictError{Entity: "payment", ID: paymentID, Reason: "already reversed"}
		}
		o, err = liveObligation(ctx, q, p.ObligationID)
		if err != nil {
			return err
		}

		before := p.Fields()
		now := s.clock.Now().UTC()
		p.Voided = true
		p.VoidReason = reason
		p.VoidedAt = &now
		p.ScheduleID = 0
		if err := q.UpdatePayment(ctx, p); err != nil {
			return err
		}
		if err := q.UnrealizeSchedules(ctx, p.ID); err != nil {
			return err
		}
		if err := s.writeAudit(ctx, q, audit.Change{
			Table:    core.TablePayments,
			RecordID: p.ID,
			Action:   core.ActionDelete,
			Before:   before,
			After:    p.Fields(),
			Actor:    actor,
			Reason:   reason,
		}); err != nil {
			return err
		}

		return s.reconcile(ctx, q, &o, actor, "payment reversed")
	})
	if err != nil {
		return core.Payment{}, core.Obligation{}, fmt.Errorf("reverse payment %d: %w", paymentID, err)
	}

	slog.InfoContext(ctx, "Payment reversed",
		"payment_id", paymentID,
		"obligation_id", o.ID,
		"status", o.Status)

	publish(ctx, s.events, amqp.NewLedgerEvent(amqp.EventPaymentReversed, p.ID, o.Version).
		With("obligation_id", o.ID).
		With("status", string(o.Status)))

	return p, o, nil
}

// Update edits a non-voided payment and reconciles its obligation.
func (s *PaymentService) Update(ctx context.Context, paymentID int64, patch PaymentPatch, actor, reason string) (core.Payment, core.Obligation, error) {
	var (
		next    core.Payment
		o       core.Obligation
		changed bool
	)
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		cur, err := q.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if cur.Voided {
			return &core.ConflictError{Entity: "payment", ID: paymentID, Reason: "payment is reversed"}
		}
		o, err = liveObligation(ctx, q, cur.ObligationID)
		if err != nil {
			return err
		}

		next = cur
		if patch.Amount != nil {
			next.Amount = *patch.Amount
		}
		if patch.PaidOn != nil {
			next.PaidOn = *patch.PaidOn
		}
		if patch.Method != nil {
			next.Method = *patch.Method
		}
		if patch.ReceiptRef != nil {
			next.ReceiptRef = *patch.ReceiptRef
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
		changed = true

		paid, err := q.SumPayments(ctx, o.ID)
		if err != nil {
			return err
		}
		if err := checkOverpayment(o.Total, paid.Sub(cur.Amount), next.Amount); err != nil {
			return err
		}

		if err := q.UpdatePayment(ctx, next); err != nil {
			return err
		}
		if err := s.writeAudit(ctx, q, audit.Change{
			Table:    core.TablePayments,
			RecordID: next.ID,
			Action:   core.ActionUpdate,
			Before:   before,
			After:    after,
			Actor:    actor,
			Reason:   reason,
		}); err != nil {
			return err
		}
		return s.reconcile(ctx, q, &o, actor, "payment updated")
	})
	if err != nil {
		return core.Payment{}, core.Obligation{}, fmt.Errorf("update payment %d: %w", paymentID, err)
	}

	if changed {
		publish(ctx, s.events, amqp.NewLedgerEvent(amqp.EventPaymentUpdated, next.ID, o.Version).
			With("obligation_id", o.ID))
	}

	return next, o, nil
}

// ForObligation lists every event of an obligation, voided ones included.
func (s *PaymentService) ForObligation(ctx context.Context, obligationID int64) ([]core.Payment, error) {
	q := s.store.Queries()
	if _, err := q.GetObligation(ctx, obligationID, false); err != nil {
		return nil, err
	}
	return q.ListPaymentsByObligation(ctx, obligationID)
}
