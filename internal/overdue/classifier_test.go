package overdue

import (
	"testing"

	"payledger/internal/core"
)

func obligation(id int64, start, end core.Date) core.Obligation {
	return core.Obligation{
		ID:        id,
		Name:      "item",
		Kind:      core.KindSingle,
		Total:     core.Cents(100000),
		Status:    core.StatusUnpaid,
		StartDate: start,
		EndDate:   end,
	}
}

func ids(items []Item) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it.Obligation.ID
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestClassify_DueTwoMonthsAgoIsPriorMonths(t *testing.T) {
	today := core.NewDate(2025, 5, 20)
	due := core.NewDate(2025, 3, 15)
	report := ClassifyAt(today, []Candidate{{Obligation: obligation(1, due, core.Date{})}})

	if len(report.PriorMonths) != 1 || report.PriorMonths[0].Obligation.ID != 1 {
		t.Fatalf("prior months = %v, want [1]", ids(report.PriorMonths))
	}
	if len(report.CurrentMonth) != 0 {
		t.Fatalf("current month = %v, want empty", ids(report.CurrentMonth))
	}
	if report.Total.Cents != 100000 {
		t.Fatalf("total = %s, want 1000.00", report.Total)
	}
}

func TestClassify_Partition(t *testing.T) {
	today := core.NewDate(2025, 5, 20)
	paid := obligation(5, core.NewDate(2025, 1, 1), core.Date{})
	paid.Status = core.StatusPaid
	deleted := obligation(6, core.NewDate(2025, 1, 1), core.Date{})
	deleted.Deleted = true

	candidates := []Candidate{
		{Obligation: obligation(1, core.NewDate(2025, 5, 3), core.Date{})},                  // current month, start only
		{Obligation: obligation(2, core.NewDate(2025, 1, 1), core.NewDate(2025, 5, 19))},    // current month via end date
		{Obligation: obligation(3, core.NewDate(2025, 1, 1), core.NewDate(2025, 4, 30))},    // prior months
		{Obligation: obligation(4, core.NewDate(2025, 1, 1), core.NewDate(2025, 5, 20))},    // due today, not overdue
		{Obligation: paid},
		{Obligation: deleted},
		{Obligation: obligation(7, core.NewDate(2025, 2, 1), core.Date{}), ScheduledTotal: core.Cents(100000), ScheduleRows: 2}, // fully scheduled
		{Obligation: obligation(8, core.NewDate(2025, 2, 1), core.Date{}), ScheduledTotal: core.Cents(50000), ScheduleRows: 1},  // partly scheduled
		{Obligation: obligation(9, core.NewDate(2025, 6, 1), core.Date{})},                  // future
	}

	report := ClassifyAt(today, candidates)

	current := map[int64]bool{}
	for _, id := range ids(report.CurrentMonth) {
		current[id] = true
	}
	for _, id := range ids(report.PriorMonths) {
		if current[id] {
			t.Fatalf("obligation %d appears in both lists", id)
		}
	}

	if got := ids(report.CurrentMonth); !equalIDs(got, []int64{1, 2}) {
		t.Fatalf("current = %v, want [1 2]", got)
	}
	if got := ids(report.PriorMonths); !equalIDs(got, []int64{8, 3}) {
		t.Fatalf("prior = %v, want [8 3]", got)
	}

	// Union equals the due-candidate set.
	due := 0
	for _, c := range candidates {
		if IsCandidate(c) && IsDue(c.Obligation, today) {
			due++
		}
	}
	if due != len(report.CurrentMonth)+len(report.PriorMonths) {
		t.Fatalf("union size = %d, want %d", len(report.CurrentMonth)+len(report.PriorMonths), due)
	}
}

func TestClassify_OrdersByPriorityThenDate(t *testing.T) {
	today := core.NewDate(2025, 5, 20)
	low := obligation(1, core.NewDate(2025, 1, 1), core.Date{})
	high := obligation(2, core.NewDate(2025, 3, 1), core.Date{})
	high.Priority = 5
	older := obligation(3, core.NewDate(2024, 12, 1), core.Date{})

	report := ClassifyAt(today, []Candidate{{Obligation: low}, {Obligation: high}, {Obligation: older}})
	if got := ids(report.PriorMonths); !equalIDs(got, []int64{2, 3, 1}) {
		t.Fatalf("order = %v, want [2 3 1]", got)
	}
}

func TestOverdueSchedules(t *testing.T) {
	today := core.NewDate(2025, 5, 20)
	rows := []core.Schedule{
		{ID: 1, DueDate: core.NewDate(2025, 5, 1)},
		{ID: 2, DueDate: core.NewDate(2025, 4, 1)},
		{ID: 3, DueDate: core.NewDate(2025, 4, 1), Realized: true},
		{ID: 4, DueDate: core.NewDate(2025, 5, 20)},
	}
	got := OverdueSchedules(today, rows)
	if len(got) != 2 || got[0].ID != 2 || got[1].ID != 1 {
		t.Fatalf("OverdueSchedules() = %+v", got)
	}
}
