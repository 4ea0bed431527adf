package schedule

import (
	"testing"

	"github.com/shopspring/decimal"

	"payledger/internal/core"
)

func TestAnnuityPayment(t *testing.T) {
	pmt, err := AnnuityPayment(core.Cents(120000), decimal.NewFromInt(12), 1, 12)
	if err != nil {
		t.Fatalf("AnnuityPayment() error = %v", err)
	}
	if pmt == nil || pmt.Cents != 10662 {
		t.Fatalf("AnnuityPayment() = %v, want 106.62", pmt)
	}

	zero, err := AnnuityPayment(core.Cents(120000), decimal.Zero, 1, 12)
	if err != nil || zero != nil {
		t.Fatalf("zero rate should yield nil payment, got %v (err=%v)", zero, err)
	}
}

func TestForLoan_MonthlyZeroRateSplitsPrincipal(t *testing.T) {
	l := core.LoanRecord{
		Principal:    core.Cents(120000),
		InterestRate: decimal.Zero,
		Frequency:    core.FrequencyMonthly,
		StartDate:    core.NewDate(2025, 1, 15),
	}
	entries, err := ForLoan(l)
	if err != nil {
		t.Fatalf("ForLoan() error = %v", err)
	}
	if len(entries) != 12 {
		t.Fatalf("got %d entries, want 12", len(entries))
	}
	if !entries[0].DueDate.Equal(core.NewDate(2025, 2, 15).Time) {
		t.Errorf("first due = %s, want 2025-02-15", entries[0].DueDate)
	}
	if !entries[11].DueDate.Equal(core.NewDate(2026, 1, 15).Time) {
		t.Errorf("last due = %s, want 2026-01-15", entries[11].DueDate)
	}
	for i, e := range entries {
		if e.Amount.Cents != 10000 {
			t.Errorf("entry %d amount = %s, want 100.00", i, e.Amount)
		}
	}
}

func TestForLoan_QuarterlyUsesFixedPayment(t *testing.T) {
	l := core.LoanRecord{
		Principal:     core.Cents(100000),
		InterestRate:  decimal.NewFromInt(5),
		Frequency:     core.FrequencyQuarterly,
		PaymentAmount: core.Cents(26000),
		StartDate:     core.NewDate(2025, 1, 1),
	}
	entries, err := ForLoan(l)
	if err != nil {
		t.Fatalf("ForLoan() error = %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("got %d entries, want 4", len(entries))
	}
	for _, e := range entries {
		if e.Amount.Cents != 26000 {
			t.Fatalf("amount = %s, want 260.00", e.Amount)
		}
	}
}

func TestForLoan_AtMaturityAddsSimpleInterest(t *testing.T) {
	l := core.LoanRecord{
		Principal:    core.Cents(100000),
		InterestRate: decimal.NewFromInt(10),
		Frequency:    core.FrequencyAtMaturity,
		StartDate:    core.NewDate(2025, 1, 1),
		EndDate:      core.NewDate(2026, 1, 1),
	}
	entries, err := ForLoan(l)
	if err != nil {
		t.Fatalf("ForLoan() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Amount.Cents != 110000 {
		t.Fatalf("amount = %s, want 1100.00", entries[0].Amount)
	}
	if !entries[0].DueDate.Equal(l.EndDate.Time) {
		t.Fatalf("due = %s, want end date", entries[0].DueDate)
	}
}
