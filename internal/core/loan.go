package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	LoanKindLoan       LoanKind = "loan"
	LoanKindInvestment LoanKind = "investment"
)

const (
	FrequencyMonthly    Frequency = "monthly"
	FrequencyQuarterly  Frequency = "quarterly"
	FrequencyAnnual     Frequency = "annual"
	FrequencyAtMaturity Frequency = "at_maturity"
)

const (
	LoanActive    LoanStatus = "active"
	LoanCompleted LoanStatus = "completed"
	LoanCancelled LoanStatus = "cancelled"
)

const (
	PaymentTypePrincipal = "principal"
	PaymentTypeInterest  = "interest"
)

var (
	ErrInvalidFrequency = errors.New("invalid payment frequency")
	ErrInvalidRate      = errors.New("invalid interest rate")
	ErrInvalidLoanKind  = errors.New("invalid record kind")
	ErrInvalidPayType   = errors.New("invalid payment type")
	ErrEmptyCounterpart = errors.New("empty counterparty")
)

type (
	LoanKind   string
	Frequency  string
	LoanStatus string

	// LoanRecord is an informal loan or investment. It is cancelled, never deleted.
	LoanRecord struct {
		ID            int64           `json:"id"`
		Kind          LoanKind        `json:"kind"`
		Counterparty  string          `json:"counterparty"`
		Contact       string          `json:"contact,omitempty"`
		Principal     Money           `json:"principal"`
		InterestRate  decimal.Decimal `json:"interest_rate"`
		Frequency     Frequency       `json:"frequency"`
		PaymentAmount Money           `json:"payment_amount"`
		StartDate     Date            `json:"start_date"`
		EndDate       Date            `json:"end_date"`
		Status        LoanStatus      `json:"status"`
		TotalPaid     Money           `json:"total_paid"`
		Notes         string          `json:"notes,omitempty"`
		Version       int64           `json:"version"`
		CreatedAt     time.Time       `json:"created_at"`
		UpdatedAt     time.Time       `json:"updated_at"`
	}

	LoanScheduleEntry struct {
		ID         int64 `json:"id"`
		LoanID     int64 `json:"loan_id"`
		DueDate    Date  `json:"due_date"`
		Amount     Money `json:"amount"`
		Paid       bool  `json:"paid"`
		PaidDate   Date  `json:"paid_date"`
		PaidAmount Money `json:"paid_amount"`
	}

	// LoanPayment is a history row with point-in-time balance snapshots.
	LoanPayment struct {
		ID                 int64      `json:"id"`
		LoanID             int64      `json:"loan_id"`
		ScheduleID         int64      `json:"schedule_id,omitempty"`
		Amount             Money      `json:"amount"`
		PaidOn             Date       `json:"paid_on"`
		PaymentType        string     `json:"payment_type"`
		Method             string     `json:"method"`
		RemainingPrincipal Money      `json:"remaining_principal"`
		RemainingInterest  Money      `json:"remaining_interest"`
		Verified           bool       `json:"verified"`
		VerifiedBy         string     `json:"verified_by,omitempty"`
		VerifiedAt         *time.Time `json:"verified_at,omitempty"`
		Notes              string     `json:"notes,omitempty"`
		CreatedAt          time.Time  `json:"created_at"`
	}

	// LoanPaymentStats aggregates history rows by payment method.
	LoanPaymentStats struct {
		Method   string `json:"method"`
		Count    int    `json:"count"`
		Total    Money  `json:"total"`
		Verified int    `json:"verified"`
		Pending  int    `json:"pending"`
	}
)

func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyMonthly, FrequencyQuarterly, FrequencyAnnual, FrequencyAtMaturity:
		return true
	}
	return false
}

// RemainingPrincipal is max(0, principal - paid).
func (l LoanRecord) RemainingPrincipal() Money {
	return MaxMoney(l.Principal.Sub(l.TotalPaid), Money{})
}

func (l LoanRecord) Validate() error {
	if l.Kind != LoanKindLoan && l.Kind != LoanKindInvestment {
		return NewValidationError("kind", ErrInvalidLoanKind)
	}
	if strings.TrimSpace(l.Counterparty) == "" {
		return NewValidationError("counterparty", ErrEmptyCounterpart)
	}
	if err := l.Principal.Validate(); err != nil {
		return NewValidationError("principal", err)
	}
	if l.InterestRate.IsNegative() || l.InterestRate.GreaterThan(decimal.NewFromInt(100)) {
		return NewValidationError("interest_rate", ErrInvalidRate)
	}
	if !l.Frequency.IsValid() {
		return NewValidationError("frequency", ErrInvalidFrequency)
	}
	if l.PaymentAmount.Cents < 0 {
		return NewValidationError("payment_amount", ErrInvalidAmount)
	}
	if err := l.StartDate.Validate(); err != nil {
		return NewValidationError("start_date", err)
	}
	if !l.EndDate.IsZero() && l.EndDate.Before(l.StartDate) {
		return NewValidationError("end_date", ErrDateOrder)
	}
	if l.Frequency == FrequencyAtMaturity && l.EndDate.IsZero() {
		return NewValidationError("end_date", errors.New("end date is required for at-maturity records"))
	}
	return nil
}

// Fields returns the audited field set of the loan record.
func (l LoanRecord) Fields() map[string]any {
	return map[string]any{
		"kind":           string(l.Kind),
		"counterparty":   l.Counterparty,
		"contact":        l.Contact,
		"principal":      l.Principal.String(),
		"interest_rate":  l.InterestRate.String(),
		"frequency":      string(l.Frequency),
		"payment_amount": l.PaymentAmount.String(),
		"start_date":     l.StartDate.String(),
		"end_date":       l.EndDate.String(),
		"status":         string(l.Status),
		"total_paid":     l.TotalPaid.String(),
		"notes":          l.Notes,
	}
}

func (p LoanPayment) Validate() error {
	if err := p.Amount.Validate(); err != nil {
		return NewValidationError("amount", err)
	}
	if err := p.PaidOn.Validate(); err != nil {
		return NewValidationError("paid_on", err)
	}
	if p.PaymentType != PaymentTypePrincipal && p.PaymentType != PaymentTypeInterest {
		return NewValidationError("payment_type", ErrInvalidPayType)
	}
	if strings.TrimSpace(p.Method) == "" {
		return NewValidationError("method", ErrEmptyMethod)
	}
	return nil
}
