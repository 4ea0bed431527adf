package services

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"payledger/internal/core"
	"payledger/internal/forecast"
	"payledger/internal/overdue"
	"payledger/internal/storage"
)

// OverdueView is the overdue report plus the schedule rows already past due.
type OverdueView struct {
	overdue.Report
	OverdueSchedules []core.Schedule `json:"overdue_schedules"`
}

// ViewService computes the derived read models. Nothing here is cached.
type ViewService struct {
	base
}

func NewViewService(d Deps) *ViewService {
	return &ViewService{base: newBase(d)}
}

// Overdue classifies open obligations as of today. A zero today uses the clock.
func (s *ViewService) Overdue(ctx context.Context, today core.Date) (OverdueView, error) {
	if today.IsZero() {
		today = core.Today(s.clock)
	}

	q := s.store.Queries()
	var (
		obligations []core.Obligation
		coverage    map[int64]storage.Coverage
		late        []core.Schedule
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		obligations, err = q.ListObligations(gctx, storage.ObligationFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		coverage, err = q.ScheduleCoverage(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		late, err = q.ListOpenSchedulesBefore(gctx, today)
		return err
	})
	if err := g.Wait(); err != nil {
		return OverdueView{}, fmt.Errorf("load overdue inputs: %w", err)
	}

	candidates := make([]overdue.Candidate, 0, len(obligations))
	for _, o := range obligations {
		c := coverage[o.ID]
		candidates = append(candidates, overdue.Candidate{
			Obligation:     o,
			ScheduledTotal: c.Total,
			ScheduleRows:   c.Rows,
		})
	}

	return OverdueView{
		Report:           overdue.ClassifyAt(today, candidates),
		OverdueSchedules: overdue.OverdueSchedules(today, late),
	}, nil
}

// Forecast builds the month view for year and month.
func (s *ViewService) Forecast(ctx context.Context, year, month int) (forecast.Forecast, error) {
	if month < 1 || month > 12 {
		return forecast.Forecast{}, core.NewValidationError("month", core.ErrInvalidMonth)
	}
	if year < 1 {
		return forecast.Forecast{}, core.NewValidationError("year", errors.New("invalid year"))
	}

	from, to := storage.MonthRange(year, month)
	q := s.store.Queries()
	in := forecast.Input{Year: year, Month: month}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		in.Budgets, err = q.ListBudgetPlans(gctx, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		in.Obligations, err = q.ListObligations(gctx, storage.ObligationFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		in.Schedules, err = q.ListAllSchedules(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		in.Payments, err = q.ListPaymentsPaidBetween(gctx, from, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return forecast.Forecast{}, fmt.Errorf("load forecast inputs: %w", err)
	}

	return forecast.Build(in), nil
}
