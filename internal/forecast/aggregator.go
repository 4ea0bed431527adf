// Package forecast aggregates obligations, schedules, budgets and payments
// into a month-scoped view. Nothing here is persisted or cached.
package forecast

import (
	"sort"

	"payledger/internal/core"
)

// Item is one line of a forecast bucket.
type Item struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Amount    core.Money `json:"amount"`
	Date      *core.Date `json:"date,omitempty"`
	ProjectID int64      `json:"project_id,omitempty"`
	Origin    string     `json:"origin,omitempty"`
}

// Bucket is a total with its itemized detail.
type Bucket struct {
	Total core.Money `json:"total"`
	Items []Item     `json:"items"`
}

func (b *Bucket) add(it Item) {
	b.Items = append(b.Items, it)
	b.Total = b.Total.Add(it.Amount)
}

// Forecast is the derived month view.
type Forecast struct {
	Month           string     `json:"month"`
	Budgeted        Bucket     `json:"budgeted"`
	Scheduled       Bucket     `json:"scheduled"`
	EstimatedDue    Bucket     `json:"estimated_due"`
	Recurring       Bucket     `json:"recurring"`
	PaidThisMonth   Bucket     `json:"paid_this_month"`
	PaidCarriedOver Bucket     `json:"paid_carried_over"`
	GrandTotal      core.Money `json:"grand_total"`
}

// Input is everything the aggregator reads for one month. Obligations must
// include every live obligation referenced by Schedules and Payments.
type Input struct {
	Year        int
	Month       int
	Budgets     []core.BudgetPlan
	Obligations []core.Obligation
	Schedules   []core.Schedule
	Payments    []core.Payment
}

// Build computes the forecast. It is a pure function of its input.
func Build(in Input) Forecast {
	monthStart := core.NewDate(in.Year, in.Month, 1)
	f := Forecast{
		Month:           monthStart.MonthKey(),
		Budgeted:        Bucket{Items: []Item{}},
		Scheduled:       Bucket{Items: []Item{}},
		EstimatedDue:    Bucket{Items: []Item{}},
		Recurring:       Bucket{Items: []Item{}},
		PaidThisMonth:   Bucket{Items: []Item{}},
		PaidCarriedOver: Bucket{Items: []Item{}},
	}

	obligations := make(map[int64]core.Obligation, len(in.Obligations))
	for _, o := range in.Obligations {
		if !o.Deleted {
			obligations[o.ID] = o
		}
	}
	schedules := make(map[int64]core.Schedule, len(in.Schedules))
	hasSchedule := make(map[int64]bool)
	for _, s := range in.Schedules {
		schedules[s.ID] = s
		hasSchedule[s.ObligationID] = true
	}

	for _, plan := range in.Budgets {
		if !plan.Covers(monthStart) {
			continue
		}
		for _, bi := range plan.Items {
			f.Budgeted.add(Item{
				ID:        bi.ID,
				Name:      plan.Name + ": " + bi.Name,
				Amount:    bi.Amount,
				ProjectID: plan.ProjectID,
			})
		}
	}

	for _, s := range in.Schedules {
		o, live := obligations[s.ObligationID]
		if !live || s.Realized || !s.DueDate.SameMonth(monthStart) {
			continue
		}
		f.Scheduled.add(Item{
			ID:        s.ID,
			Name:      o.Name,
			Amount:    s.Amount,
			Date:      datePtr(s.DueDate),
			ProjectID: o.ProjectID,
		})
	}

	for _, o := range obligations {
		switch o.Kind {
		case core.KindSingle, core.KindInstallment:
			due := o.EffectiveDate()
			if o.Status == core.StatusPaid || hasSchedule[o.ID] || !due.SameMonth(monthStart) {
				continue
			}
			amount := o.EstimatedAmount
			if amount.IsZero() {
				amount = o.Remaining()
			}
			f.EstimatedDue.add(Item{ID: o.ID, Name: o.Name, Amount: amount, Date: datePtr(due), ProjectID: o.ProjectID})
		case core.KindRecurringMonthly:
			if !coversMonth(o, monthStart) {
				continue
			}
			amount := o.PeriodicAmount
			if amount.IsZero() {
				amount = o.Total
			}
			f.Recurring.add(Item{ID: o.ID, Name: o.Name, Amount: amount, ProjectID: o.ProjectID})
		}
	}

	for _, p := range in.Payments {
		o, live := obligations[p.ObligationID]
		if !live || p.Voided || !p.PaidOn.SameMonth(monthStart) {
			continue
		}
		due := DueDateOf(p, o, schedules)
		item := Item{ID: p.ID, Name: o.Name, Amount: p.Amount, Date: datePtr(p.PaidOn), ProjectID: o.ProjectID}
		if due.Before(monthStart) {
			item.Origin = due.MonthKey()
			f.PaidCarriedOver.add(item)
		} else {
			f.PaidThisMonth.add(item)
		}
	}

	for _, b := range []*Bucket{&f.Budgeted, &f.Scheduled, &f.EstimatedDue, &f.Recurring, &f.PaidThisMonth, &f.PaidCarriedOver} {
		sortItems(b.Items)
		f.GrandTotal = f.GrandTotal.Add(b.Total)
	}
	return f
}

// DueDateOf resolves the due date a payment settles: the correlated schedule
// date, the payment date for recurring obligations, else the obligation's
// effective date.
func DueDateOf(p core.Payment, o core.Obligation, schedules map[int64]core.Schedule) core.Date {
	if p.ScheduleID != 0 {
		if s, ok := schedules[p.ScheduleID]; ok {
			return s.DueDate
		}
	}
	if o.Kind == core.KindRecurringMonthly {
		return p.PaidOn
	}
	return o.EffectiveDate()
}

func coversMonth(o core.Obligation, monthStart core.Date) bool {
	nextMonth := monthStart.AddMonths(1)
	if !o.StartDate.Before(nextMonth) {
		return false
	}
	return o.EndDate.IsZero() || !o.EndDate.Before(monthStart)
}

func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch {
		case a.Date == nil && b.Date != nil:
			return false
		case a.Date != nil && b.Date == nil:
			return true
		case a.Date != nil && b.Date != nil && !a.Date.Equal(b.Date.Time):
			return a.Date.Before(*b.Date)
		}
		return a.ID < b.ID
	})
}

func datePtr(d core.Date) *core.Date {
	return &d
}
