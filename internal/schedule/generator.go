package schedule

import (
	"errors"

	"payledger/internal/core"
)

var ErrNotSchedulable = errors.New("obligation kind does not produce a schedule")

// Entry is one generated period before it is stored.
type Entry struct {
	DueDate core.Date
	Amount  core.Money
	Tag     string
}

// ForObligation emits one entry per calendar month from start to end inclusive.
// Without an end date the series covers one year. Installment and loan kinds tag
// the first period principal and the rest interest; recurring kinds tag all
// periods uniformly.
func ForObligation(o core.Obligation) ([]Entry, error) {
	if !o.Kind.Schedulable() {
		return nil, core.NewValidationError("kind", ErrNotSchedulable)
	}
	if err := o.StartDate.Validate(); err != nil {
		return nil, core.NewValidationError("start_date", err)
	}

	end := o.EndDate
	if end.IsZero() {
		end = DefaultEnd(o.StartDate)
	}

	dates := dueDates(MonthStepper{Step: 1}, o.StartDate, end, o.AgreedPaymentDay, 0)
	amounts := periodAmounts(o, len(dates))

	entries := make([]Entry, len(dates))
	for i, due := range dates {
		entries[i] = Entry{DueDate: due, Amount: amounts[i], Tag: tagFor(o.Kind, i)}
	}
	return entries, nil
}

func periodAmounts(o core.Obligation, n int) []core.Money {
	if o.PeriodicAmount.Cents > 0 || o.Kind == core.KindRecurringMonthly {
		amount := o.PeriodicAmount
		if amount.IsZero() {
			amount = o.Total
		}
		out := make([]core.Money, n)
		for i := range out {
			out[i] = amount
		}
		return out
	}
	return split(o.Total, n)
}

func tagFor(kind core.ObligationKind, i int) string {
	if kind == core.KindRecurringMonthly {
		return core.TagRecurring
	}
	if i == 0 {
		return core.TagPrincipal
	}
	return core.TagInterest
}

// Remaining is total minus the sum of existing schedule amounts. It may be
// negative when an obligation is over-scheduled.
func Remaining(total core.Money, existing []core.Schedule) core.Money {
	scheduled := core.Money{}
	for _, s := range existing {
		scheduled = scheduled.Add(s.Amount)
	}
	return total.Sub(scheduled)
}

// FullyScheduled reports whether schedule rows cover the whole total.
func FullyScheduled(total, scheduled core.Money, rows int) bool {
	return rows > 0 && scheduled.Cents >= total.Cents
}
