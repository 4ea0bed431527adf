// Package overdue partitions open obligations into current-month and
// prior-months overdue lists relative to a reference date.
package overdue

import (
	"sort"

	"payledger/internal/core"
	"payledger/internal/schedule"
)

// Candidate is an obligation together with its schedule coverage.
type Candidate struct {
	Obligation     core.Obligation
	ScheduledTotal core.Money
	ScheduleRows   int
}

// Item is one overdue obligation in a report.
type Item struct {
	Obligation    core.Obligation `json:"obligation"`
	EffectiveDate core.Date       `json:"effective_date"`
	Remaining     core.Money      `json:"remaining"`
	DaysOverdue   int             `json:"days_overdue"`
}

// Report holds two disjoint lists.
type Report struct {
	Today        core.Date  `json:"today"`
	MonthStart   core.Date  `json:"month_start"`
	CurrentMonth []Item     `json:"current_month"`
	PriorMonths  []Item     `json:"prior_months"`
	Total        core.Money `json:"total"`
}

// IsCandidate reports whether an obligation takes part in classification:
// open, live and not fully scheduled.
func IsCandidate(c Candidate) bool {
	o := c.Obligation
	if o.Deleted || o.Status == core.StatusPaid {
		return false
	}
	return !schedule.FullyScheduled(o.Total, c.ScheduledTotal, c.ScheduleRows)
}

// IsDue reports whether the obligation's end date, or its start date when it
// has no end date, is before today.
func IsDue(o core.Obligation, today core.Date) bool {
	if !o.EndDate.IsZero() {
		return o.EndDate.Before(today)
	}
	return o.StartDate.Before(today)
}

// Classify partitions candidates. An obligation lands in exactly one list or neither.
func Classify(today, monthStart core.Date, candidates []Candidate) Report {
	report := Report{
		Today:        today,
		MonthStart:   monthStart,
		CurrentMonth: []Item{},
		PriorMonths:  []Item{},
	}
	for _, c := range candidates {
		if !IsCandidate(c) || !IsDue(c.Obligation, today) {
			continue
		}
		eff := c.Obligation.EffectiveDate()
		item := Item{
			Obligation:    c.Obligation,
			EffectiveDate: eff,
			Remaining:     c.Obligation.Remaining(),
			DaysOverdue:   int(today.Sub(eff.Time).Hours() / 24),
		}
		switch {
		case eff.Before(monthStart):
			report.PriorMonths = append(report.PriorMonths, item)
		case eff.Before(today):
			report.CurrentMonth = append(report.CurrentMonth, item)
		default:
			continue
		}
		report.Total = report.Total.Add(item.Remaining)
	}
	sortItems(report.CurrentMonth)
	sortItems(report.PriorMonths)
	return report
}

// ClassifyAt derives the month start from today.
func ClassifyAt(today core.Date, candidates []Candidate) Report {
	return Classify(today, today.MonthStart(), candidates)
}

// sortItems orders by priority (higher first), then oldest effective date, then id.
func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Obligation.Priority != b.Obligation.Priority {
			return a.Obligation.Priority > b.Obligation.Priority
		}
		if !a.EffectiveDate.Equal(b.EffectiveDate.Time) {
			return a.EffectiveDate.Before(b.EffectiveDate)
		}
		return a.Obligation.ID < b.Obligation.ID
	})
}

// OverdueSchedules returns unrealized schedule rows dated before today.
func OverdueSchedules(today core.Date, rows []core.Schedule) []core.Schedule {
	out := []core.Schedule{}
	for _, s := range rows {
		if s.Overdue(today) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate.Time) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
