package core

import (
	"strings"
)

// Category and Project are referential data; the ledger only checks existence.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Project struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// BudgetPlan covers an inclusive date period and feeds the monthly forecast.
type BudgetPlan struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	ProjectID   int64        `json:"project_id,omitempty"`
	PeriodStart Date         `json:"period_start"`
	PeriodEnd   Date         `json:"period_end"`
	Items       []BudgetItem `json:"items"`
}

type BudgetItem struct {
	ID     int64  `json:"id"`
	PlanID int64  `json:"plan_id"`
	Name   string `json:"name"`
	Amount Money  `json:"amount"`
}

// Covers reports whether the plan period overlaps the month starting at monthStart.
func (p BudgetPlan) Covers(monthStart Date) bool {
	monthEnd := monthStart.AddMonths(1)
	return p.PeriodStart.Before(monthEnd) && !p.PeriodEnd.Before(monthStart)
}

func (p BudgetPlan) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return NewValidationError("name", ErrEmptyName)
	}
	if err := p.PeriodStart.Validate(); err != nil {
		return NewValidationError("period_start", err)
	}
	if err := p.PeriodEnd.Validate(); err != nil {
		return NewValidationError("period_end", err)
	}
	if p.PeriodEnd.Before(p.PeriodStart) {
		return NewValidationError("period_end", ErrDateOrder)
	}
	if p.ProjectID < 0 {
		return NewValidationError("project_id", ErrInvalidReference)
	}
	for _, item := range p.Items {
		if strings.TrimSpace(item.Name) == "" {
			return NewValidationError("items.name", ErrEmptyName)
		}
		if err := item.Amount.Validate(); err != nil {
			return NewValidationError("items.amount", err)
		}
	}
	return nil
}
