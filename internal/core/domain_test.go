package core

import (
	"errors"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestMonthDateClampsToMonthEnd(t *testing.T) {
	cases := []struct {
		year, month, day int
		want             Date
	}{
		{2024, 2, 31, NewDate(2024, 2, 29)},
		{2025, 2, 31, NewDate(2025, 2, 28)},
		{2025, 4, 31, NewDate(2025, 4, 30)},
		{2025, 13, 15, NewDate(2026, 1, 15)},
		{2025, 1, 31, NewDate(2025, 1, 31)},
	}
	for _, tc := range cases {
		if got := MonthDate(tc.year, tc.month, tc.day); !got.Equal(tc.want.Time) {
			t.Fatalf("MonthDate(%d,%d,%d) = %s, want %s", tc.year, tc.month, tc.day, got, tc.want)
		}
	}
	if got := NewDate(2025, 1, 31).AddMonths(1); !got.Equal(NewDate(2025, 2, 28).Time) {
		t.Fatalf("AddMonths overflowed: %s", got)
	}
}

func TestDeriveStatus(t *testing.T) {
	total := Cents(100000)
	cases := []struct {
		paid int64
		want Status
	}{
		{0, StatusUnpaid},
		{1, StatusPartial},
		{70000, StatusPartial},
		{100000, StatusPaid},
		{100001, StatusPaid},
	}
	for _, tc := range cases {
		if got := DeriveStatus(Cents(tc.paid), total); got != tc.want {
			t.Fatalf("DeriveStatus(%d) = %s, want %s", tc.paid, got, tc.want)
		}
	}
}

func TestObligationReconcileAndRemaining(t *testing.T) {
	o := Obligation{Total: Cents(100000)}
	o.Reconcile(Cents(70000))
	if o.Status != StatusPartial {
		t.Fatalf("status = %s, want partial", o.Status)
	}
	if o.Remaining().Cents != 30000 {
		t.Fatalf("remaining = %d, want 30000", o.Remaining().Cents)
	}
}

func TestObligationValidate(t *testing.T) {
	good := Obligation{
		Name:       "Rent",
		CategoryID: 1,
		Total:      Cents(100000),
		Kind:       KindSingle,
		StartDate:  NewDate(2025, 1, 1),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name  string
		mut   func(*Obligation)
		field string
		err   error
	}{
		{"empty name", func(o *Obligation) { o.Name = "  " }, "name", ErrEmptyName},
		{"zero total", func(o *Obligation) { o.Total = Money{} }, "total", ErrInvalidAmount},
		{"missing category", func(o *Obligation) { o.CategoryID = 0 }, "category_id", ErrInvalidReference},
		{"bad kind", func(o *Obligation) { o.Kind = "weekly" }, "kind", ErrInvalidKind},
		{"end before start", func(o *Obligation) { o.EndDate = NewDate(2024, 12, 31) }, "end_date", ErrDateOrder},
		{"agreed day", func(o *Obligation) { o.AgreedPaymentDay = 32 }, "agreed_payment_day", ErrInvalidDay},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := good
			tc.mut(&o)
			err := o.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tc.field || !errors.Is(err, tc.err) {
				t.Fatalf("got field=%s err=%v, want field=%s err=%v", verr.Field, verr.Err, tc.field, tc.err)
			}
		})
	}
}

func TestEffectiveDate(t *testing.T) {
	o := Obligation{StartDate: NewDate(2025, 1, 10)}
	if !o.EffectiveDate().Equal(o.StartDate.Time) {
		t.Fatalf("expected start date when end is empty")
	}
	o.EndDate = NewDate(2025, 3, 10)
	if !o.EffectiveDate().Equal(o.EndDate.Time) {
		t.Fatalf("expected end date when set")
	}
}

func TestBudgetPlanCovers(t *testing.T) {
	plan := BudgetPlan{PeriodStart: NewDate(2025, 1, 15), PeriodEnd: NewDate(2025, 3, 1)}
	cases := []struct {
		month Date
		want  bool
	}{
		{NewDate(2024, 12, 1), false},
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 3, 1), true},
		{NewDate(2025, 4, 1), false},
	}
	for _, tc := range cases {
		if got := plan.Covers(tc.month); got != tc.want {
			t.Fatalf("Covers(%s) = %v, want %v", tc.month, got, tc.want)
		}
	}
}
