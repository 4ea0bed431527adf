// Package schedule generates deterministic payment schedules.
//
// Each payment frequency has its own Stepper strategy that computes the n-th
// due date of a series; the registry below maps frequencies to strategies.
package schedule

import (
	"fmt"

	"payledger/internal/core"
)

// MaxPeriods caps every generated series.
const MaxPeriods = 120

// Stepper is the strategy interface for periodic due dates.
type Stepper interface {
	// DueDate returns the n-th due date counted from anchor. A non-zero day
	// forces the day of month, clamped to the month's last day.
	DueDate(anchor core.Date, n int, day int) core.Date
	// Months is the length of one period in calendar months.
	Months() int
}

// MonthStepper advances by a fixed number of calendar months.
type MonthStepper struct {
	Step int
}

func (s MonthStepper) DueDate(anchor core.Date, n int, day int) core.Date {
	if day == 0 {
		day = anchor.Day()
	}
	return core.MonthDate(anchor.Year(), anchor.Month()+n*s.Step, day)
}

func (s MonthStepper) Months() int { return s.Step }

var steppers = map[core.Frequency]Stepper{
	core.FrequencyMonthly:   MonthStepper{Step: 1},
	core.FrequencyQuarterly: MonthStepper{Step: 3},
	core.FrequencyAnnual:    MonthStepper{Step: 12},
}

// GetStepper returns the strategy for a frequency. At-maturity has none.
func GetStepper(frequency core.Frequency) (Stepper, error) {
	s, ok := steppers[frequency]
	if !ok {
		return nil, fmt.Errorf("no stepper for frequency: %s", frequency)
	}
	return s, nil
}

// RegisterStepper adds or replaces the strategy for a frequency.
func RegisterStepper(frequency core.Frequency, s Stepper) {
	steppers[frequency] = s
}

// dueDates walks the series from index first while due dates stay on or before end.
// A forced day that lands before anchor in the first period is skipped.
func dueDates(s Stepper, anchor, end core.Date, day, first int) []core.Date {
	var dates []core.Date
	for n := first; len(dates) < MaxPeriods; n++ {
		due := s.DueDate(anchor, n, day)
		if due.After(end) {
			break
		}
		if due.Before(anchor) {
			continue
		}
		dates = append(dates, due)
	}
	return dates
}

// DefaultEnd is one year after start, exclusive of the anniversary.
func DefaultEnd(start core.Date) core.Date {
	return core.DateOf(start.AddMonths(12).AddDate(0, 0, -1))
}

func monthsBetween(a, b core.Date) int {
	return (b.Year()-a.Year())*12 + b.Month() - a.Month()
}

// split divides total into n cents-exact parts; the remainder lands on the last part.
func split(total core.Money, n int) []core.Money {
	if n <= 0 {
		return nil
	}
	base := total.Cents / int64(n)
	parts := make([]core.Money, n)
	for i := range parts {
		parts[i] = core.Cents(base)
	}
	parts[n-1] = core.Cents(base + total.Cents%int64(n))
	return parts
}
