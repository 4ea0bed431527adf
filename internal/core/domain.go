package core

import (
	"errors"
	"strings"
	"time"
)

const (
	KindSingle           ObligationKind = "single"
	KindRecurringMonthly ObligationKind = "recurring_monthly"
	KindInstallment      ObligationKind = "installment"
	KindLoan             ObligationKind = "loan"
)

const (
	StatusUnpaid  Status = "unpaid"
	StatusPartial Status = "partial"
	StatusPaid    Status = "paid"
)

const (
	TagPrincipal = "principal"
	TagInterest  = "interest"
	TagRecurring = "recurring"
	TagManual    = "manual"
)

type (
	ObligationKind string

	Status string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Obligation is a payable item. Paid and Status are owned by reconciliation;
	// callers never set them directly.
	Obligation struct {
		ID               int64          `json:"id"`
		Name             string         `json:"name"`
		CategoryID       int64          `json:"category_id"`
		ProjectID        int64          `json:"project_id,omitempty"`
		Total            Money          `json:"total"`
		Paid             Money          `json:"paid"`
		Kind             ObligationKind `json:"kind"`
		StartDate        Date           `json:"start_date"`
		EndDate          Date           `json:"end_date"`
		Priority         int            `json:"priority"`
		Status           Status         `json:"status"`
		PeriodicAmount   Money          `json:"periodic_amount"`
		AgreedPaymentDay int            `json:"agreed_payment_day,omitempty"`
		EstimatedAmount  Money          `json:"estimated_amount"`
		Notes            string         `json:"notes,omitempty"`
		Deleted          bool           `json:"deleted"`
		DeletedReason    string         `json:"deleted_reason,omitempty"`
		DeletedBy        string         `json:"deleted_by,omitempty"`
		DeletedAt        *time.Time     `json:"deleted_at,omitempty"`
		Version          int64          `json:"version"`
		CreatedAt        time.Time      `json:"created_at"`
		UpdatedAt        time.Time      `json:"updated_at"`
	}

	// Payment is a realized payment event against an obligation.
	Payment struct {
		ID           int64      `json:"id"`
		ObligationID int64      `json:"obligation_id"`
		Amount       Money      `json:"amount"`
		PaidOn       Date       `json:"paid_on"`
		Method       string     `json:"method"`
		ReceiptRef   string     `json:"receipt_ref,omitempty"`
		Notes        string     `json:"notes,omitempty"`
		ScheduleID   int64      `json:"schedule_id,omitempty"`
		Voided       bool       `json:"voided"`
		VoidReason   string     `json:"void_reason,omitempty"`
		VoidedAt     *time.Time `json:"voided_at,omitempty"`
		CreatedAt    time.Time  `json:"created_at"`
	}

	// Schedule is a planned payment for an obligation.
	Schedule struct {
		ID           int64     `json:"id"`
		ObligationID int64     `json:"obligation_id"`
		DueDate      Date      `json:"due_date"`
		Amount       Money     `json:"amount"`
		Tag          string    `json:"tag"`
		Notes        string    `json:"notes,omitempty"`
		Realized     bool      `json:"realized"`
		PaymentID    int64     `json:"payment_id,omitempty"`
		CreatedAt    time.Time `json:"created_at"`
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidKind      = errors.New("invalid obligation kind")
	ErrInvalidReference = errors.New("invalid reference")
	ErrEmptyName        = errors.New("empty name")
	ErrEmptyMethod      = errors.New("empty payment method")
	ErrDateOrder        = errors.New("end date must not be before start date")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a YYYY-MM-DD string. The empty string yields the zero Date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// IsEmpty returns true if the date is zero (optional dates)
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}

// MonthKey formats the date's month as YYYY-MM.
func (d Date) MonthKey() string {
	return d.Format("2006-01")
}

// MonthStart returns the first day of the date's month.
func (d Date) MonthStart() Date {
	return NewDate(d.Year(), d.Month(), 1)
}

// Before reports whether d is strictly before o.
func (d Date) Before(o Date) bool {
	return d.Time.Before(o.Time)
}

// After reports whether d is strictly after o.
func (d Date) After(o Date) bool {
	return d.Time.After(o.Time)
}

// SameMonth reports whether d and o fall in the same calendar month.
func (d Date) SameMonth(o Date) bool {
	return d.Year() == o.Year() && d.Month() == o.Month()
}

// DaysIn returns the number of days in the given month.
func DaysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// MonthDate builds a date in the given month, clamping day to the month's last day.
// Month may overflow 12; it is normalized first.
func MonthDate(year, month, day int) Date {
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	last := DaysIn(first.Year(), int(first.Month()))
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return NewDate(first.Year(), int(first.Month()), day)
}

// AddMonths moves d by n calendar months keeping day, clamped to month end.
func (d Date) AddMonths(n int) Date {
	return MonthDate(d.Year(), d.Month()+n, d.Day())
}

// DeriveStatus is the only rule that produces an obligation status.
func DeriveStatus(paid, total Money) Status {
	switch {
	case paid.Cents <= 0:
		return StatusUnpaid
	case paid.Cents >= total.Cents:
		return StatusPaid
	default:
		return StatusPartial
	}
}

// Reconcile sets the paid amount and recomputes status.
func (o *Obligation) Reconcile(paid Money) {
	o.Paid = paid
	o.Status = DeriveStatus(o.Paid, o.Total)
}

// Remaining returns the amount still payable, never negative.
func (o Obligation) Remaining() Money {
	return MaxMoney(o.Total.Sub(o.Paid), Money{})
}

// EffectiveDate is the end date when set, else the start date.
func (o Obligation) EffectiveDate() Date {
	if !o.EndDate.IsZero() {
		return o.EndDate
	}
	return o.StartDate
}

func (k ObligationKind) IsValid() bool {
	switch k {
	case KindSingle, KindRecurringMonthly, KindInstallment, KindLoan:
		return true
	}
	return false
}

// Schedulable reports whether the kind produces periodic schedules.
func (k ObligationKind) Schedulable() bool {
	return k == KindRecurringMonthly || k == KindInstallment || k == KindLoan
}

func (o Obligation) Validate() error {
	if len(strings.TrimSpace(o.Name)) == 0 {
		return NewValidationError("name", ErrEmptyName)
	}
	if len(o.Name) > 200 {
		return NewValidationError("name", errors.New("name too long (max 200 characters)"))
	}
	if o.CategoryID <= 0 {
		return NewValidationError("category_id", ErrInvalidReference)
	}
	if o.ProjectID < 0 {
		return NewValidationError("project_id", ErrInvalidReference)
	}
	if o.Total.Cents <= 0 {
		return NewValidationError("total", ErrInvalidAmount)
	}
	if o.PeriodicAmount.Cents < 0 {
		return NewValidationError("periodic_amount", ErrInvalidAmount)
	}
	if o.EstimatedAmount.Cents < 0 {
		return NewValidationError("estimated_amount", ErrInvalidAmount)
	}
	if !o.Kind.IsValid() {
		return NewValidationError("kind", ErrInvalidKind)
	}
	if err := o.StartDate.Validate(); err != nil {
		return NewValidationError("start_date", err)
	}
	if !o.EndDate.IsZero() && o.EndDate.Before(o.StartDate) {
		return NewValidationError("end_date", ErrDateOrder)
	}
	if o.AgreedPaymentDay < 0 || o.AgreedPaymentDay > 31 {
		return NewValidationError("agreed_payment_day", ErrInvalidDay)
	}
	if o.Paid.Cents > o.Total.Cents {
		return NewValidationError("total", errors.New("total cannot be lower than the amount already paid"))
	}
	return nil
}

// Fields returns the audited field set of the obligation.
func (o Obligation) Fields() map[string]any {
	return map[string]any{
		"name":               o.Name,
		"category_id":        o.CategoryID,
		"project_id":         o.ProjectID,
		"total":              o.Total.String(),
		"paid":               o.Paid.String(),
		"kind":               string(o.Kind),
		"start_date":         o.StartDate.String(),
		"end_date":           o.EndDate.String(),
		"priority":           o.Priority,
		"status":             string(o.Status),
		"periodic_amount":    o.PeriodicAmount.String(),
		"agreed_payment_day": o.AgreedPaymentDay,
		"estimated_amount":   o.EstimatedAmount.String(),
		"notes":              o.Notes,
		"deleted":            o.Deleted,
		"deleted_reason":     o.DeletedReason,
		"deleted_by":         o.DeletedBy,
	}
}

func (p Payment) Validate() error {
	if p.ObligationID <= 0 {
		return NewValidationError("obligation_id", ErrInvalidReference)
	}
	if err := p.Amount.Validate(); err != nil {
		return NewValidationError("amount", err)
	}
	if err := p.PaidOn.Validate(); err != nil {
		return NewValidationError("paid_on", err)
	}
	if strings.TrimSpace(p.Method) == "" {
		return NewValidationError("method", ErrEmptyMethod)
	}
	return nil
}

// Fields returns the audited field set of the payment.
func (p Payment) Fields() map[string]any {
	return map[string]any{
		"obligation_id": p.ObligationID,
		"amount":        p.Amount.String(),
		"paid_on":       p.PaidOn.String(),
		"method":        p.Method,
		"receipt_ref":   p.ReceiptRef,
		"notes":         p.Notes,
		"schedule_id":   p.ScheduleID,
		"voided":        p.Voided,
		"void_reason":   p.VoidReason,
	}
}

func (s Schedule) Validate() error {
	if err := s.DueDate.Validate(); err != nil {
		return NewValidationError("due_date", err)
	}
	if err := s.Amount.Validate(); err != nil {
		return NewValidationError("amount", err)
	}
	return nil
}

// Overdue is computed at read time and never stored.
func (s Schedule) Overdue(today Date) bool {
	return !s.Realized && s.DueDate.Before(today)
}
