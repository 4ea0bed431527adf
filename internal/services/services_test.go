package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"payledger/internal/amqp"
	"payledger/internal/core"
	"payledger/internal/overdue"
	"payledger/internal/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testClock = core.FixedClock{T: time.Date(2025, 6, 20, 10, 0, 0, 0, time.UTC)}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.LedgerEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e *amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	deps      Deps
	events    *recordingPublisher
	ledger    *LedgerService
	payments  *PaymentService
	schedules *ScheduleService
	loans     *LoanService
	views     *ViewService
	refs      *ReferenceService
	category  int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	events := &recordingPublisher{}
	d := Deps{Store: store, Clock: testClock, Events: events}
	f := &fixture{
		deps:      d,
		events:    events,
		ledger:    NewLedgerService(d),
		payments:  NewPaymentService(d),
		schedules: NewScheduleService(d),
		loans:     NewLoanService(d),
		views:     NewViewService(d),
		refs:      NewReferenceService(d),
	}
	cat, err := f.refs.CreateCategory(context.Background(), "Household")
	require.NoError(t, err)
	f.category = cat.ID
	return f
}

func (f *fixture) obligation(t *testing.T, in NewObligation) core.Obligation {
	t.Helper()
	if in.Name == "" {
		in.Name = "Rent"
	}
	if in.CategoryID == 0 {
		in.CategoryID = f.category
	}
	if in.Kind == "" {
		in.Kind = core.KindSingle
	}
	if in.StartDate.IsZero() {
		in.StartDate = core.NewDate(2025, 6, 1)
	}
	o, _, err := f.ledger.Create(context.Background(), in, "alice")
	require.NoError(t, err)
	return o
}

func pay(amount int64, day core.Date) NewPayment {
	return NewPayment{Amount: core.Cents(amount), PaidOn: day, Method: "transfer"}
}

func TestApplyPayment_PartialThenOverpayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.obligation(t, NewObligation{Total: core.Cents(100000)})

	_, got, err := f.payments.Apply(ctx, o.ID, pay(70000, core.NewDate(2025, 6, 5)), "alice")
	require.NoError(t, err)
	assert.Equal(t, core.StatusPartial, got.Status)
	assert.Equal(t, int64(30000), got.Remaining().Cents)

	_, _, err = f.payments.Apply(ctx, o.ID, pay(40000, core.NewDate(2025, 6, 6)), "alice")
	over, ok := core.AsOverpayment(err)
	require.True(t, ok, "expected OverpaymentError, got %v", err)
	assert.Equal(t, int64(30000), over.Remaining.Cents)

	stored, err := f.ledger.Get(ctx, o.ID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(70000), stored.Paid.Cents)
	assert.Equal(t, core.StatusPartial, stored.Status)
}

func TestApplyPayment_ExactTotalMarksPaid(t *testing.T) {
	f := newFixture(t)
	o := f.obligation(t, NewObligation{Total: core.Cents(100000)})

	_, got, err := f.payments.Apply(context.Background(), o.ID, pay(100000, core.NewDate(2025, 6, 5)), "alice")
	require.NoError(t, err)
	assert.Equal(t, core.StatusPaid, got.Status)
	assert.Contains(t, f.events.types(), amqp.EventPaymentApplied)
}

func TestApplyPayment_ConcurrentNeverOverpays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.obligation(t, NewObligation{Total: core.Cents(1000)})

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.payments.Apply(ctx, o.ID, pay(200, core.NewDate(2025, 6, 10)), "worker")
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			_, over := core.AsOverpayment(err)
			assert.True(t, over || core.IsConflict(err), "unexpected error: %v", err)
		}()
	}
	wg.Wait()

	stored, err := f.ledger.Get(ctx, o.ID, false)
	require.NoError(t, err)
	sum, err := f.deps.Store.Queries().SumPayments(ctx, o.ID)
	require.NoError(t, err)

	assert.Equal(t, sum, stored.Paid, "paid must equal the sum of events")
	assert.LessOrEqual(t, stored.Paid.Cents, stored.Total.Cents)
	assert.Equal(t, succeeded*200, stored.Paid.Cents)
	assert.Equal(t, core.DeriveStatus(stored.Paid, stored.Total), stored.Status)
}

func TestReversePayment_ReopensScheduleAndStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.obligation(t, NewObligation{
		Total:            core.Cents(30000),
		Kind:             core.KindInstallment,
		StartDate:        core.NewDate(2025, 6, 1),
		EndDate:          core.NewDate(2025, 8, 31),
		GenerateSchedule: true,
	})

	p, got, err := f.payments.Apply(ctx, o.ID, pay(10000, core.NewDate(2025, 6, 3)), "alice")
	require.NoError(t, err)
	require.NotZero(t, p.ScheduleID, "payment should correlate with the June row")
	assert.Equal(t, core.StatusPartial, got.Status)

	_, got, err = f.payments.Reverse(ctx, p.ID, "alice", "bounced")
	require.NoError(t, err)
	assert.Equal(t, core.StatusUnpaid, got.Status)
	assert.True(t, got.Paid.IsZero())

	rows, err := f.schedules.ForObligation(ctx, o.ID)
	require.NoError(t, err)
	for _, r := range rows {
		assert.False(t, r.Realized)
	}

	_, _, err = f.payments.Reverse(ctx, p.ID, "alice", "again")
	assert.True(t, core.IsConflict(err))
}

func TestReversePayment_AllowsScheduleRegeneration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.obligation(t, NewObligation{
		Total:            core.Cents(30000),
		Kind:             core.KindInstallment,
		StartDate:        core.NewDate(2025, 6, 1),
		EndDate:          core.NewDate(2025, 8, 31),
		GenerateSchedule: true,
	})

	p, _, err := f.payments.Apply(ctx, o.ID, pay(10000, core.NewDate(2025, 6, 3)), "alice")
	require.NoError(t, err)
	require.NotZero(t, p.ScheduleID)

	reversed, _, err := f.payments.Reverse(ctx, p.ID, "alice", "bounced")
	require.NoError(t, err)
	assert.Zero(t, reversed.ScheduleID)

	rows, err := f.schedules.Generate(ctx, o.ID, true, "alice")
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	history, err := f.payments.ForObligation(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Voided)
	assert.Zero(t, history[0].ScheduleID)
}

func TestApplyPayment_PartialDoesNotRealizeSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.obligation(t, NewObligation{
		Total:            core.Cents(30000),
		Kind:             core.KindInstallment,
		StartDate:        core.NewDate(2025, 6, 1),
		EndDate:          core.NewDate(2025, 8, 31),
		GenerateSchedule: true,
	})

	p, _, err := f.payments.Apply(ctx, o.ID, pay(100, core.NewDate(2025, 6, 3)), "alice")
	require.NoError(t, err)
	assert.Zero(t, p.ScheduleID)

	rows, err := f.schedules.ForObligation(ctx, o.ID)
	require.NoError(t, err)
	for _, r := range rows {
		assert.False(t, r.Realized, "row %s", r.DueDate)
	}

	p, _, err = f.payments.Apply(ctx, o.ID, pay(10000, core.NewDate(2025, 6, 10)), "alice")
	require.NoError(t, err)
	assert.Equal(t, rows[0].ID, p.ScheduleID)
}

func TestUpdatePayment_RechecksOverpayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.obligation(t, NewObligation{Total: core.Cents(1000)})

	p, _, err := f.payments.Apply(ctx, o.ID, pay(400, core.NewDate(2025, 6, 2)), "alice")
	require.NoError(t, err)
	_, _, err = f.payments.Apply(ctx, o.ID, pay(300, core.NewDate(2025, 6, 3)), "alice")
	require.NoError(t, err)

	tooMuch := core.Cents(800)
	_, _, err = f.payments.Update(ctx, p.ID, PaymentPatch{Amount: &tooMuch}, "alice", "typo")
	over, ok := core.AsOverpayment(err)
	require.True(t, ok)
	assert.Equal(t, int64(700), over.Remaining.Cents)

	fixed := core.Cents(700)
	_, got, err := f.payments.Update(ctx, p.ID, PaymentPatch{Amount: &fixed}, "alice", "typo")
	require.NoError(t, err)
	assert.Equal(t, core.StatusPaid, got.Status)
}

func TestUpdateObligation_AuditsOnlyChangedFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.obligation(t, NewObligation{Total: core.Cents(1000)})

	same := o.Name
	_, err := f.ledger.Update(ctx, o.ID, ObligationPatch{Name: &same}, "bob", "noop")
	require.NoError(t, err)

	total := core.Cents(1500)
	updated, err := f.ledger.Update(ctx, o.ID, ObligationPatch{Total: &total}, "bob", "renegotiated")
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	trail, err := f.ledger.AuditTrail(ctx, core.TableObligations, o.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2, "create plus one real update")
	assert.Equal(t, core.ActionUpdate, trail[1].Action)
	assert.Equal(t, []string{"total"}, trail[1].ChangedFields)
	assert.Equal(t, "renegotiated", trail[1].Reason)
}

func TestUpdateObligation_TotalBelowPaidRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.obligation(t, NewObligation{Total: core.Cents(1000)})
	_, _, err := f.payments.Apply(ctx, o.ID, pay(600, core.NewDate(2025, 6, 2)), "alice")
	require.NoError(t, err)

	lower := core.Cents(500)
	_, err = f.ledger.Update(ctx, o.ID, ObligationPatch{Total: &lower}, "bob", "")
	assert.True(t, core.IsValidation(err))
}

func TestSoftDeleteRestoreRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.obligation(t, NewObligation{Total: core.Cents(1000), Priority: 3})
	before := o.Fields()

	_, err := f.ledger.SoftDelete(ctx, o.ID, "bob", "duplicate")
	require.NoError(t, err)

	_, err = f.ledger.Get(ctx, o.ID, false)
	assert.True(t, core.IsNotFound(err))
	list, err := f.ledger.List(ctx, storage.ObligationFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	restored, err := f.ledger.Restore(ctx, o.ID, "bob", "not a duplicate")
	require.NoError(t, err)
	assert.Equal(t, before, restored.Fields())

	trail, err := f.ledger.AuditTrail(ctx, core.TableObligations, o.ID)
	require.NoError(t, err)
	actions := make([]core.AuditAction, len(trail))
	for i, e := range trail {
		actions[i] = e.Action
	}
	assert.Equal(t, []core.AuditAction{core.ActionCreate, core.ActionDelete, core.ActionRestore}, actions)
}

func TestCreateObligation_UnknownCategory(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.ledger.Create(context.Background(), NewObligation{
		Name:       "Ghost",
		CategoryID: 999,
		Total:      core.Cents(100),
		Kind:       core.KindSingle,
		StartDate:  core.NewDate(2025, 6, 1),
	}, "alice")
	assert.True(t, core.IsValidation(err))
}

func TestGenerateSchedule_RefusesWithoutReplace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.obligation(t, NewObligation{
		Name:           "Loan",
		Total:          core.Cents(120000),
		Kind:           core.KindLoan,
		PeriodicAmount: core.Cents(10600),
		StartDate:      core.NewDate(2025, 1, 1),
	})

	rows, err := f.schedules.Generate(ctx, o.ID, false, "alice")
	require.NoError(t, err)
	require.Len(t, rows, 12)
	assert.Equal(t, core.TagPrincipal, rows[0].Tag)
	assert.Equal(t, core.TagInterest, rows[11].Tag)

	_, err = f.schedules.Generate(ctx, o.ID, false, "alice")
	assert.True(t, core.IsConflict(err))

	rows, err = f.schedules.Generate(ctx, o.ID, true, "alice")
	require.NoError(t, err)
	assert.Len(t, rows, 12)

	_, _, err = f.payments.Apply(ctx, o.ID, NewPayment{
		Amount: core.Cents(10600), PaidOn: core.NewDate(2025, 1, 3), Method: "cash", ScheduleID: rows[0].ID,
	}, "alice")
	require.NoError(t, err)
	_, err = f.schedules.Generate(ctx, o.ID, true, "alice")
	assert.True(t, core.IsConflict(err), "realized rows block regeneration")
}

func TestAddManualSchedule_WarnsWhenOverScheduled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.obligation(t, NewObligation{Total: core.Cents(1000)})

	_, warnings, err := f.schedules.AddManual(ctx, o.ID, NewSchedule{DueDate: core.NewDate(2025, 7, 1), Amount: core.Cents(800)}, "alice")
	require.NoError(t, err)
	assert.Empty(t, warnings)

	row, warnings, err := f.schedules.AddManual(ctx, o.ID, NewSchedule{DueDate: core.NewDate(2025, 8, 1), Amount: core.Cents(300)}, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{WarningOverScheduled}, warnings)
	assert.Equal(t, core.TagManual, row.Tag)
}

func TestOverdueView_PriorMonths(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.obligation(t, NewObligation{Total: core.Cents(5000), StartDate: core.NewDate(2025, 4, 15)})
	f.obligation(t, NewObligation{Name: "Internet", Total: core.Cents(3000), StartDate: core.NewDate(2025, 6, 10)})

	view, err := f.views.Overdue(ctx, core.Date{})
	require.NoError(t, err)
	assert.Equal(t, core.NewDate(2025, 6, 20), view.Today)
	require.Len(t, view.PriorMonths, 1)
	assert.Equal(t, o.ID, view.PriorMonths[0].Obligation.ID)
	require.Len(t, view.CurrentMonth, 1)
	assert.Equal(t, "Internet", view.CurrentMonth[0].Obligation.Name)
}

func TestForecast_CarriedOverPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.obligation(t, NewObligation{Total: core.Cents(5000), StartDate: core.NewDate(2025, 4, 15)})
	_, _, err := f.payments.Apply(ctx, o.ID, pay(2000, core.NewDate(2025, 6, 3)), "alice")
	require.NoError(t, err)

	first, err := f.views.Forecast(ctx, 2025, 6)
	require.NoError(t, err)
	require.Len(t, first.PaidCarriedOver.Items, 1)
	assert.Equal(t, "2025-04", first.PaidCarriedOver.Items[0].Origin)
	assert.Empty(t, first.PaidThisMonth.Items)

	second, err := f.views.Forecast(ctx, 2025, 6)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = f.views.Forecast(ctx, 2025, 13)
	assert.True(t, core.IsValidation(err))
}

func TestLoanPayments_CompleteLoan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	detail, err := f.loans.Create(ctx, NewLoan{
		Kind:         core.LoanKindLoan,
		Counterparty: "Marco",
		Principal:    core.Cents(120000),
		Frequency:    core.FrequencyMonthly,
		StartDate:    core.NewDate(2025, 1, 1),
	}, "alice")
	require.NoError(t, err)
	require.Len(t, detail.Schedule, 12)

	p, loan, err := f.loans.ApplyPayment(ctx, detail.Loan.ID, NewLoanPayment{
		Amount: core.Cents(20000), PaidOn: core.NewDate(2025, 2, 1), PaymentType: core.PaymentTypePrincipal, Method: "cash",
	}, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100000), p.RemainingPrincipal.Cents)
	assert.Equal(t, detail.Schedule[0].ID, p.ScheduleID)
	assert.Equal(t, core.LoanActive, loan.Status)

	_, _, err = f.loans.ApplyPayment(ctx, detail.Loan.ID, NewLoanPayment{
		Amount: core.Cents(200000), PaidOn: core.NewDate(2025, 3, 1), PaymentType: core.PaymentTypePrincipal, Method: "cash",
	}, "alice")
	over, ok := core.AsOverpayment(err)
	require.True(t, ok)
	assert.Equal(t, int64(100000), over.Remaining.Cents)

	_, loan, err = f.loans.ApplyPayment(ctx, detail.Loan.ID, NewLoanPayment{
		Amount: core.Cents(100000), PaidOn: core.NewDate(2025, 3, 1), PaymentType: core.PaymentTypePrincipal, Method: "transfer",
	}, "alice")
	require.NoError(t, err)
	assert.Equal(t, core.LoanCompleted, loan.Status)
	assert.Contains(t, f.events.types(), amqp.EventLoanCompleted)

	_, _, err = f.loans.ApplyPayment(ctx, detail.Loan.ID, NewLoanPayment{
		Amount: core.Cents(1), PaidOn: core.NewDate(2025, 4, 1), PaymentType: core.PaymentTypeInterest, Method: "cash",
	}, "alice")
	assert.True(t, core.IsConflict(err), "completed loans reject payments")

	_, err = f.loans.VerifyPayment(ctx, detail.Loan.ID, p.ID, "bob")
	require.NoError(t, err)
	stats, err := f.loans.Stats(ctx, detail.Loan.ID)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, core.LoanPaymentStats{Method: "cash", Count: 1, Total: core.Cents(20000), Verified: 1}, stats[0])
	assert.Equal(t, 1, stats[1].Pending)
}

func TestLoanPayments_FixedPlanPaidToCompletion(t *testing.T) {
	for _, paymentType := range []string{core.PaymentTypePrincipal, core.PaymentTypeInterest} {
		t.Run(paymentType, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			detail, err := f.loans.Create(ctx, NewLoan{
				Kind:          core.LoanKindLoan,
				Counterparty:  "Giulia",
				Principal:     core.Cents(12000000),
				InterestRate:  decimal.NewFromInt(11),
				Frequency:     core.FrequencyMonthly,
				PaymentAmount: core.Cents(1060000),
				StartDate:     core.NewDate(2025, 1, 1),
			}, "alice")
			require.NoError(t, err)
			require.Len(t, detail.Schedule, 12)

			var loan core.LoanRecord
			for i, row := range detail.Schedule {
				var p core.LoanPayment
				p, loan, err = f.loans.ApplyPayment(ctx, detail.Loan.ID, NewLoanPayment{
					Amount: row.Amount, PaidOn: row.DueDate, PaymentType: paymentType, Method: "transfer",
				}, "alice")
				require.NoError(t, err, "installment %d", i+1)
				assert.Equal(t, row.ID, p.ScheduleID)
				assert.Equal(t, core.MaxMoney(loan.Principal.Sub(loan.TotalPaid), core.Money{}), p.RemainingPrincipal)
				if i < len(detail.Schedule)-1 {
					assert.Equal(t, core.LoanActive, loan.Status, "installment %d", i+1)
				}
			}

			assert.Equal(t, core.LoanCompleted, loan.Status)
			assert.Equal(t, int64(12720000), loan.TotalPaid.Cents)
			assert.True(t, loan.RemainingPrincipal().IsZero())
		})
	}
}

func TestLoanCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	detail, err := f.loans.Create(ctx, NewLoan{
		Kind: core.LoanKindInvestment, Counterparty: "Fund", Principal: core.Cents(50000),
		Frequency: core.FrequencyAtMaturity, StartDate: core.NewDate(2025, 1, 1), EndDate: core.NewDate(2026, 1, 1),
	}, "alice")
	require.NoError(t, err)
	require.Len(t, detail.Schedule, 1)

	l, err := f.loans.Cancel(ctx, detail.Loan.ID, "alice", "closed early")
	require.NoError(t, err)
	assert.Equal(t, core.LoanCancelled, l.Status)

	_, _, err = f.loans.ApplyPayment(ctx, detail.Loan.ID, NewLoanPayment{
		Amount: core.Cents(100), PaidOn: core.NewDate(2025, 2, 1), PaymentType: core.PaymentTypePrincipal, Method: "cash",
	}, "alice")
	assert.True(t, core.IsConflict(err))
}

type captureSender struct {
	report overdue.Report
	late   []core.Schedule
	calls  int
}

func (c *captureSender) SendOverdueDigest(_ context.Context, report overdue.Report, late []core.Schedule) error {
	c.calls++
	c.report = report
	c.late = late
	return nil
}

func TestDigestProcessor_PublishesAndSends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.obligation(t, NewObligation{Total: core.Cents(5000), StartDate: core.NewDate(2025, 4, 15)})

	sender := &captureSender{}
	proc := NewDigestProcessor(f.views, f.events, sender)
	view, err := proc.Process(ctx, core.NewDate(2025, 6, 20))
	require.NoError(t, err)

	assert.Len(t, view.PriorMonths, 1)
	assert.Equal(t, 1, sender.calls)
	assert.Contains(t, f.events.types(), amqp.EventOverdueReport)
}
