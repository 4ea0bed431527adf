package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"payledger/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedObligation(t *testing.T, q *Queries, total int64) core.Obligation {
	t.Helper()
	ctx := context.Background()
	cat, err := q.CreateCategory(ctx, "Housing-"+time.Now().Format("150405.000000000"), testNow)
	require.NoError(t, err)
	o := core.Obligation{
		Name:       "Rent",
		CategoryID: cat.ID,
		Total:      core.Cents(total),
		Kind:       core.KindSingle,
		StartDate:  core.NewDate(2025, 3, 1),
		Priority:   2,
		Status:     core.StatusUnpaid,
		CreatedAt:  testNow,
		UpdatedAt:  testNow,
	}
	o.ID, err = q.InsertObligation(ctx, o)
	require.NoError(t, err)
	o.Version = 1
	return o
}

func TestObligationRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	o := seedObligation(t, s.Queries(), 100000)

	got, err := s.Queries().GetObligation(ctx, o.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "Rent", got.Name)
	assert.Equal(t, int64(100000), got.Total.Cents)
	assert.Equal(t, core.NewDate(2025, 3, 1), got.StartDate)
	assert.True(t, got.EndDate.IsZero())
	assert.Equal(t, int64(1), got.Version)
	assert.False(t, got.Deleted)
	assert.Equal(t, testNow, got.CreatedAt)
}

func TestGetObligationNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Queries().GetObligation(context.Background(), 999, false)
	assert.True(t, core.IsNotFound(err))
}

func TestUpdateObligationVersionConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	o := seedObligation(t, s.Queries(), 100000)

	o.Reconcile(core.Cents(40000))
	o.UpdatedAt = testNow.Add(time.Minute)
	require.NoError(t, s.Queries().UpdateObligation(ctx, o))

	// Same stale version again.
	err := s.Queries().UpdateObligation(ctx, o)
	assert.True(t, core.IsConflict(err))

	got, err := s.Queries().GetObligation(ctx, o.ID, false)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPartial, got.Status)
	assert.Equal(t, int64(2), got.Version)
}

func TestListObligationsHidesDeleted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	q := s.Queries()
	live := seedObligation(t, q, 1000)
	gone := seedObligation(t, q, 2000)

	gone.Deleted = true
	gone.DeletedReason = "duplicate"
	deletedAt := testNow
	gone.DeletedAt = &deletedAt
	require.NoError(t, q.UpdateObligation(ctx, gone))

	list, err := q.ListObligations(ctx, ObligationFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, live.ID, list[0].ID)

	all, err := q.ListObligations(ctx, ObligationFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPaymentsSumSkipsVoided(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	q := s.Queries()
	o := seedObligation(t, q, 100000)

	for _, cents := range []int64{30000, 20000} {
		_, err := q.InsertPayment(ctx, core.Payment{
			ObligationID: o.ID,
			Amount:       core.Cents(cents),
			PaidOn:       core.NewDate(2025, 3, 5),
			Method:       "transfer",
			CreatedAt:    testNow,
		})
		require.NoError(t, err)
	}

	payments, err := q.ListPaymentsByObligation(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)

	voided := payments[1]
	voided.Voided = true
	voided.VoidReason = "bounced"
	voided.VoidedAt = &testNow
	require.NoError(t, q.UpdatePayment(ctx, voided))

	sum, err := q.SumPayments(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30000), sum.Cents)

	inMonth, err := q.ListPaymentsPaidBetween(ctx, core.NewDate(2025, 3, 1), core.NewDate(2025, 4, 1))
	require.NoError(t, err)
	assert.Len(t, inMonth, 1)
}

func TestScheduleRealizeAndCoverage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	q := s.Queries()
	o := seedObligation(t, q, 30000)

	var ids []int64
	for m := 3; m <= 5; m++ {
		id, err := q.InsertSchedule(ctx, core.Schedule{
			ObligationID: o.ID,
			DueDate:      core.NewDate(2025, m, 15),
			Amount:       core.Cents(10000),
			Tag:          core.TagRecurring,
			CreatedAt:    testNow,
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	open, ok, err := q.FindOpenScheduleInMonth(ctx, o.ID, core.NewDate(2025, 4, 2))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ids[1], open.ID)

	require.NoError(t, q.MarkScheduleRealized(ctx, ids[1], 42))
	assert.True(t, core.IsConflict(q.MarkScheduleRealized(ctx, ids[1], 43)))

	_, ok, err = q.FindOpenScheduleInMonth(ctx, o.ID, core.NewDate(2025, 4, 2))
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := q.CountRealizedSchedules(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	cov, err := q.ScheduleCoverage(ctx)
	require.NoError(t, err)
	assert.Equal(t, Coverage{Total: core.Cents(30000), Rows: 3}, cov[o.ID])

	overdue, err := q.ListOpenSchedulesBefore(ctx, core.NewDate(2025, 5, 1))
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, ids[0], overdue[0].ID)

	require.NoError(t, q.UnrealizeSchedules(ctx, 42))
	deleted, err := q.DeleteUnrealizedSchedules(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
}

func TestInTxRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	o := seedObligation(t, s.Queries(), 1000)

	err := s.InTx(ctx, func(q *Queries) error {
		if _, err := q.InsertPayment(ctx, core.Payment{
			ObligationID: o.ID, Amount: core.Cents(500), PaidOn: core.NewDate(2025, 3, 1),
			Method: "cash", CreatedAt: testNow,
		}); err != nil {
			return err
		}
		return &core.ConflictError{Entity: "obligation", ID: o.ID, Reason: "forced"}
	})
	require.Error(t, err)

	sum, err := s.Queries().SumPayments(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, sum.IsZero())
}

func TestLoanLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	q := s.Queries()

	l := core.LoanRecord{
		Kind:         core.LoanKindLoan,
		Counterparty: "Marco",
		Principal:    core.Cents(120000),
		Frequency:    core.FrequencyMonthly,
		StartDate:    core.NewDate(2025, 1, 1),
		Status:       core.LoanActive,
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
	id, err := q.InsertLoan(ctx, l)
	require.NoError(t, err)

	for m := 2; m <= 3; m++ {
		_, err := q.InsertLoanSchedule(ctx, core.LoanScheduleEntry{LoanID: id, DueDate: core.NewDate(2025, m, 1), Amount: core.Cents(61000)})
		require.NoError(t, err)
	}
	total, err := q.SumLoanSchedule(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(122000), total.Cents)

	first, ok, err := q.FirstUnpaidLoanSchedule(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, core.NewDate(2025, 2, 1), first.DueDate)

	pid, err := q.InsertLoanPayment(ctx, core.LoanPayment{
		LoanID: id, ScheduleID: first.ID, Amount: core.Cents(61000), PaidOn: core.NewDate(2025, 2, 1),
		PaymentType: core.PaymentTypePrincipal, Method: "cash",
		RemainingPrincipal: core.Cents(59000), CreatedAt: testNow,
	})
	require.NoError(t, err)
	require.NoError(t, q.MarkLoanSchedulePaid(ctx, first.ID, core.NewDate(2025, 2, 1), core.Cents(61000)))

	p, err := q.GetLoanPayment(ctx, pid)
	require.NoError(t, err)
	p.VerifiedBy = "bob"
	p.VerifiedAt = &testNow
	require.NoError(t, q.VerifyLoanPayment(ctx, p))
	assert.True(t, core.IsConflict(q.VerifyLoanPayment(ctx, p)))

	stats, err := q.LoanPaymentStats(ctx, id)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, core.LoanPaymentStats{Method: "cash", Count: 1, Total: core.Cents(61000), Verified: 1}, stats[0])

	got, err := q.GetLoan(ctx, id, false)
	require.NoError(t, err)
	assert.True(t, got.InterestRate.IsZero())
	got.Status = core.LoanCancelled
	require.NoError(t, q.UpdateLoan(ctx, got))
	assert.True(t, core.IsConflict(q.UpdateLoan(ctx, got)))
}

func TestAuditRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	q := s.Queries()

	_, err := q.InsertAudit(ctx, core.AuditEntry{
		TableName:     core.TableObligations,
		RecordID:      3,
		Action:        core.ActionUpdate,
		OldValues:     map[string]any{"total": "10.00"},
		NewValues:     map[string]any{"total": "12.00"},
		ChangedFields: []string{"total"},
		Actor:         "alice",
		CreatedAt:     testNow,
	})
	require.NoError(t, err)

	trail, err := q.ListAudit(ctx, core.TableObligations, 3)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, "12.00", trail[0].NewValues["total"])
	assert.Equal(t, []string{"total"}, trail[0].ChangedFields)
}

func TestBudgetPlansByMonth(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	q := s.Queries()

	_, err := q.InsertBudgetPlan(ctx, core.BudgetPlan{
		Name:        "Q1",
		PeriodStart: core.NewDate(2025, 1, 1),
		PeriodEnd:   core.NewDate(2025, 3, 31),
		Items:       []core.BudgetItem{{Name: "Groceries", Amount: core.Cents(40000)}},
	}, testNow)
	require.NoError(t, err)

	from, to := MonthRange(2025, 3)
	plans, err := q.ListBudgetPlans(ctx, from, to)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	require.Len(t, plans[0].Items, 1)

	from, to = MonthRange(2025, 4)
	plans, err = q.ListBudgetPlans(ctx, from, to)
	require.NoError(t, err)
	assert.Empty(t, plans)
}
