package schedule

import (
	"github.com/shopspring/decimal"

	"payledger/internal/core"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
)

// ForLoan builds the payment plan of a loan or investment record. Periodic
// frequencies start one period after the start date and run through the end
// date (default: one year). At-maturity records get one entry on the end date.
func ForLoan(l core.LoanRecord) ([]core.LoanScheduleEntry, error) {
	if err := l.StartDate.Validate(); err != nil {
		return nil, core.NewValidationError("start_date", err)
	}

	if l.Frequency == core.FrequencyAtMaturity {
		if l.EndDate.IsZero() {
			return nil, core.NewValidationError("end_date", core.ErrDateOrder)
		}
		amount := l.PaymentAmount
		if amount.IsZero() {
			var err error
			amount, err = maturityAmount(l)
			if err != nil {
				return nil, err
			}
		}
		return []core.LoanScheduleEntry{{LoanID: l.ID, DueDate: l.EndDate, Amount: amount}}, nil
	}

	stepper, err := GetStepper(l.Frequency)
	if err != nil {
		return nil, core.NewValidationError("frequency", core.ErrInvalidFrequency)
	}

	end := l.EndDate
	if end.IsZero() {
		end = l.StartDate.AddMonths(12)
	}
	dates := dueDates(stepper, l.StartDate, end, 0, 1)
	if len(dates) == 0 {
		return nil, nil
	}

	var amounts []core.Money
	if l.PaymentAmount.Cents > 0 {
		amounts = make([]core.Money, len(dates))
		for i := range amounts {
			amounts[i] = l.PaymentAmount
		}
	} else {
		pmt, err := AnnuityPayment(l.Principal, l.InterestRate, stepper.Months(), len(dates))
		if err != nil {
			return nil, err
		}
		if pmt == nil {
			amounts = split(l.Principal, len(dates))
		} else {
			amounts = make([]core.Money, len(dates))
			for i := range amounts {
				amounts[i] = *pmt
			}
		}
	}

	entries := make([]core.LoanScheduleEntry, len(dates))
	for i, due := range dates {
		entries[i] = core.LoanScheduleEntry{LoanID: l.ID, DueDate: due, Amount: amounts[i]}
	}
	return entries, nil
}

// AnnuityPayment returns the level payment P*r / (1 - (1+r)^-n) for a period
// rate derived from the annual percent rate. A zero rate returns nil so the
// caller can split principal evenly.
func AnnuityPayment(principal core.Money, annualPercent decimal.Decimal, periodMonths, n int) (*core.Money, error) {
	if n <= 0 {
		return nil, core.NewValidationError("periods", core.ErrInvalidAmount)
	}
	if annualPercent.IsZero() {
		return nil, nil
	}
	r := annualPercent.Div(hundred).Mul(decimal.NewFromInt(int64(periodMonths))).Div(twelve)
	growth := one.Add(r).Pow(decimal.NewFromInt(int64(n)))
	denom := one.Sub(one.Div(growth))
	pmt, err := core.MoneyFromDecimal(principal.Decimal().Mul(r).Div(denom))
	if err != nil {
		return nil, err
	}
	return &pmt, nil
}

func maturityAmount(l core.LoanRecord) (core.Money, error) {
	months := decimal.NewFromInt(int64(monthsBetween(l.StartDate, l.EndDate)))
	interest := l.Principal.Decimal().Mul(l.InterestRate).Div(hundred).Mul(months).Div(twelve)
	return core.MoneyFromDecimal(l.Principal.Decimal().Add(interest))
}
