package services

import (
	"context"
	"fmt"
	"strings"

	"payledger/internal/core"
	"payledger/internal/storage"
)

// ReferenceService manages categories, projects and budget plans.
type ReferenceService struct {
	base
}

func NewReferenceService(d Deps) *ReferenceService {
	return &ReferenceService{base: newBase(d)}
}

func (s *ReferenceService) CreateCategory(ctx context.Context, name string) (core.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Category{}, core.NewValidationError("name", core.ErrEmptyName)
	}
	c, err := s.store.Queries().CreateCategory(ctx, name, s.clock.Now())
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (s *ReferenceService) Categories(ctx context.Context) ([]core.Category, error) {
	return s.store.Queries().ListCategories(ctx)
}

func (s *ReferenceService) CreateProject(ctx context.Context, name string) (core.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Project{}, core.NewValidationError("name", core.ErrEmptyName)
	}
	p, err := s.store.Queries().CreateProject(ctx, name, s.clock.Now())
	if err != nil {
		return core.Project{}, fmt.Errorf("create project: %w", err)
	}
	return p, nil
}

func (s *ReferenceService) Projects(ctx context.Context) ([]core.Project, error) {
	return s.store.Queries().ListProjects(ctx)
}

// CreateBudget stores a plan with its items in one transaction.
func (s *ReferenceService) CreateBudget(ctx context.Context, plan core.BudgetPlan) (core.BudgetPlan, error) {
	plan.Name = strings.TrimSpace(plan.Name)
	if err := plan.Validate(); err != nil {
		return core.BudgetPlan{}, err
	}
	if err := s.checkReferences(ctx, 0, plan.ProjectID); err != nil {
		return core.BudgetPlan{}, err
	}
	if plan.Items == nil {
		plan.Items = []core.BudgetItem{}
	}

	var stored core.BudgetPlan
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		var err error
		stored, err = q.InsertBudgetPlan(ctx, plan, s.clock.Now())
		return err
	})
	if err != nil {
		return core.BudgetPlan{}, fmt.Errorf("create budget plan: %w", err)
	}
	return stored, nil
}

// Budgets lists every plan with its items.
func (s *ReferenceService) Budgets(ctx context.Context) ([]core.BudgetPlan, error) {
	return s.store.Queries().ListBudgetPlans(ctx, core.Date{}, core.Date{})
}
