package forecast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payledger/internal/core"
)

func fixture() Input {
	return Input{
		Year:  2025,
		Month: 5,
		Budgets: []core.BudgetPlan{
			{ID: 1, Name: "Q2", PeriodStart: core.NewDate(2025, 4, 1), PeriodEnd: core.NewDate(2025, 6, 30),
				Items: []core.BudgetItem{{ID: 10, Name: "food", Amount: core.Cents(40000)}}},
			{ID: 2, Name: "Q1", PeriodStart: core.NewDate(2025, 1, 1), PeriodEnd: core.NewDate(2025, 3, 31),
				Items: []core.BudgetItem{{ID: 20, Name: "food", Amount: core.Cents(99900)}}},
		},
		Obligations: []core.Obligation{
			// due two months earlier, paid off this month
			{ID: 1, Name: "Plumber", Kind: core.KindSingle, Total: core.Cents(30000), Paid: core.Cents(30000),
				Status: core.StatusPaid, StartDate: core.NewDate(2025, 3, 10)},
			// due this month, never scheduled
			{ID: 2, Name: "Insurance", Kind: core.KindSingle, Total: core.Cents(50000), Status: core.StatusUnpaid,
				StartDate: core.NewDate(2025, 1, 1), EndDate: core.NewDate(2025, 5, 25), EstimatedAmount: core.Cents(48000)},
			// scheduled installment
			{ID: 3, Name: "Laptop", Kind: core.KindInstallment, Total: core.Cents(120000), Status: core.StatusPartial,
				Paid: core.Cents(40000), StartDate: core.NewDate(2025, 3, 5), EndDate: core.NewDate(2025, 5, 5)},
			// recurring rent
			{ID: 4, Name: "Rent", Kind: core.KindRecurringMonthly, Total: core.Cents(80000), PeriodicAmount: core.Cents(80000),
				Status: core.StatusPartial, Paid: core.Cents(80000), StartDate: core.NewDate(2025, 1, 1)},
			// deleted obligation is ignored everywhere
			{ID: 5, Name: "Gone", Kind: core.KindSingle, Total: core.Cents(1000), StartDate: core.NewDate(2025, 5, 2), Deleted: true},
		},
		Schedules: []core.Schedule{
			{ID: 30, ObligationID: 3, DueDate: core.NewDate(2025, 3, 5), Amount: core.Cents(40000), Realized: true, PaymentID: 300},
			{ID: 31, ObligationID: 3, DueDate: core.NewDate(2025, 4, 5), Amount: core.Cents(40000)},
			{ID: 32, ObligationID: 3, DueDate: core.NewDate(2025, 5, 5), Amount: core.Cents(40000)},
		},
		Payments: []core.Payment{
			{ID: 100, ObligationID: 1, Amount: core.Cents(30000), PaidOn: core.NewDate(2025, 5, 3)},
			{ID: 101, ObligationID: 4, Amount: core.Cents(80000), PaidOn: core.NewDate(2025, 5, 1)},
			{ID: 102, ObligationID: 4, Amount: core.Cents(5000), PaidOn: core.NewDate(2025, 5, 2), Voided: true},
			{ID: 103, ObligationID: 5, Amount: core.Cents(1000), PaidOn: core.NewDate(2025, 5, 2)},
		},
	}
}

func TestBuild_CarriedOverIsNotPaidThisMonth(t *testing.T) {
	f := Build(fixture())

	require.Len(t, f.PaidCarriedOver.Items, 1)
	carried := f.PaidCarriedOver.Items[0]
	assert.Equal(t, int64(100), carried.ID)
	assert.Equal(t, "2025-03", carried.Origin)
	for _, it := range f.PaidThisMonth.Items {
		assert.NotEqual(t, int64(100), it.ID)
	}
}

func TestBuild_Buckets(t *testing.T) {
	f := Build(fixture())

	assert.Equal(t, "2025-05", f.Month)
	assert.Equal(t, int64(40000), f.Budgeted.Total.Cents)
	require.Len(t, f.Scheduled.Items, 1)
	assert.Equal(t, int64(32), f.Scheduled.Items[0].ID)

	require.Len(t, f.EstimatedDue.Items, 1)
	assert.Equal(t, int64(2), f.EstimatedDue.Items[0].ID)
	assert.Equal(t, int64(48000), f.EstimatedDue.Total.Cents)

	require.Len(t, f.Recurring.Items, 1)
	assert.Equal(t, int64(80000), f.Recurring.Total.Cents)

	require.Len(t, f.PaidThisMonth.Items, 1)
	assert.Equal(t, int64(101), f.PaidThisMonth.Items[0].ID)

	want := int64(40000 + 40000 + 48000 + 80000 + 80000 + 30000)
	assert.Equal(t, want, f.GrandTotal.Cents)
}

func TestBuild_IsIdempotent(t *testing.T) {
	in := fixture()
	assert.Equal(t, Build(in), Build(in))
}

func TestBuild_ScheduledPaymentUsesScheduleDueDate(t *testing.T) {
	in := fixture()
	in.Payments = []core.Payment{
		{ID: 200, ObligationID: 3, ScheduleID: 31, Amount: core.Cents(40000), PaidOn: core.NewDate(2025, 5, 9)},
		{ID: 201, ObligationID: 3, ScheduleID: 32, Amount: core.Cents(40000), PaidOn: core.NewDate(2025, 5, 9)},
	}
	f := Build(in)

	require.Len(t, f.PaidCarriedOver.Items, 1)
	assert.Equal(t, int64(200), f.PaidCarriedOver.Items[0].ID)
	assert.Equal(t, "2025-04", f.PaidCarriedOver.Items[0].Origin)
	require.Len(t, f.PaidThisMonth.Items, 1)
	assert.Equal(t, int64(201), f.PaidThisMonth.Items[0].ID)
}

func TestBuild_RecurringOutsideRangeIsSkipped(t *testing.T) {
	in := Input{
		Year:  2025,
		Month: 5,
		Obligations: []core.Obligation{
			{ID: 1, Name: "Gym", Kind: core.KindRecurringMonthly, Total: core.Cents(3000),
				StartDate: core.NewDate(2025, 1, 1), EndDate: core.NewDate(2025, 4, 30)},
			{ID: 2, Name: "Phone", Kind: core.KindRecurringMonthly, Total: core.Cents(2000),
				StartDate: core.NewDate(2025, 5, 31)},
		},
	}
	f := Build(in)
	require.Len(t, f.Recurring.Items, 1)
	assert.Equal(t, int64(2), f.Recurring.Items[0].ID)
	assert.Equal(t, int64(2000), f.Recurring.Total.Cents)
}
