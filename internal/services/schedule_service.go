package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"payledger/internal/audit"
	"payledger/internal/core"
	"payledger/internal/schedule"
	"payledger/internal/storage"
)

// WarningOverScheduled is returned when a manual row pushes the scheduled
// total past the obligation total.
const WarningOverScheduled = "over_scheduled"

// NewSchedule is a manual schedule row.
type NewSchedule struct {
	DueDate core.Date  `json:"due_date"`
	Amount  core.Money `json:"amount"`
	Notes   string     `json:"notes"`
}

type ScheduleService struct {
	base
}

func NewScheduleService(d Deps) *ScheduleService {
	return &ScheduleService{base: newBase(d)}
}

// Generate writes the periodic schedule of an obligation. Existing rows make
// it a ConflictError unless replace is set; replace drops unrealized rows and
// refuses when any row has been realized.
func (s *ScheduleService) Generate(ctx context.Context, obligationID int64, replace bool, actor string) ([]core.Schedule, error) {
	now := s.clock.Now().UTC()
	var rows []core.Schedule
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		o, err := liveObligation(ctx, q, obligationID)
		if err != nil {
			return err
		}

		existing, err := q.ListSchedulesByObligation(ctx, obligationID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			if !replace {
				return &core.ConflictError{Entity: "obligation", ID: obligationID, Reason: "schedule already exists, pass replace to regenerate"}
			}
			realized, err := q.CountRealizedSchedules(ctx, obligationID)
			if err != nil {
				return err
			}
			if realized > 0 {
				return &core.ConflictError{Entity: "obligation", ID: obligationID, Reason: "schedule has realized rows"}
			}
			if _, err := q.DeleteUnrealizedSchedules(ctx, obligationID); err != nil {
				return err
			}
		}

		rows, err = insertGenerated(ctx, q, s.base, o, now, actor)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("generate schedule for obligation %d: %w", obligationID, err)
	}

	slog.InfoContext(ctx, "Schedule generated",
		"obligation_id", obligationID,
		"rows", len(rows),
		"replace", replace)
	return rows, nil
}

// insertGenerated stores the generated rows of o inside the caller's transaction.
func insertGenerated(ctx context.Context, q *storage.Queries, b base, o core.Obligation, now time.Time, actor string) ([]core.Schedule, error) {
	entries, err := schedule.ForObligation(o)
	if err != nil {
		return nil, err
	}

	rows := make([]core.Schedule, 0, len(entries))
	for _, e := range entries {
		row := core.Schedule{
			ObligationID: o.ID,
			DueDate:      e.DueDate,
			Amount:       e.Amount,
			Tag:          e.Tag,
			CreatedAt:    now,
		}
		row.ID, err = q.InsertSchedule(ctx, row)
		if err != nil {
			return nil, err
		}
		if err := b.writeAudit(ctx, q, audit.Change{
			Table:    core.TableSchedules,
			RecordID: row.ID,
			Action:   core.ActionCreate,
			After:    scheduleFields(row),
			Actor:    actor,
		}); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// AddManual stores one hand-entered row. Scheduling past the obligation total
// is allowed and reported through warnings.
func (s *ScheduleService) AddManual(ctx context.Context, obligationID int64, in NewSchedule, actor string) (core.Schedule, []string, error) {
	row := core.Schedule{
		ObligationID: obligationID,
		DueDate:      in.DueDate,
		Amount:       in.Amount,
		Tag:          core.TagManual,
		Notes:        in.Notes,
		CreatedAt:    s.clock.Now().UTC(),
	}
	if err := row.Validate(); err != nil {
		return core.Schedule{}, nil, err
	}

	warnings := []string{}
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		o, err := liveObligation(ctx, q, obligationID)
		if err != nil {
			return err
		}
		existing, err := q.ListSchedulesByObligation(ctx, obligationID)
		if err != nil {
			return err
		}
		if remaining := schedule.Remaining(o.Total, existing); row.Amount.Cents > remaining.Cents {
			warnings = append(warnings, WarningOverScheduled)
		}

		row.ID, err = q.InsertSchedule(ctx, row)
		if err != nil {
			return err
		}
		return s.writeAudit(ctx, q, audit.Change{
			Table:    core.TableSchedules,
			RecordID: row.ID,
			Action:   core.ActionCreate,
			After:    scheduleFields(row),
			Actor:    actor,
		})
	})
	if err != nil {
		return core.Schedule{}, nil, fmt.Errorf("add schedule to obligation %d: %w", obligationID, err)
	}

	if len(warnings) > 0 {
		slog.WarnContext(ctx, "Obligation over-scheduled",
			"obligation_id", obligationID,
			"schedule_id", row.ID,
			"amount_cents", row.Amount.Cents)
	}
	return row, warnings, nil
}

// ForObligation lists the rows of a live obligation.
func (s *ScheduleService) ForObligation(ctx context.Context, obligationID int64) ([]core.Schedule, error) {
	q := s.store.Queries()
	o, err := q.GetObligation(ctx, obligationID, false)
	if err != nil {
		return nil, err
	}
	if o.Deleted {
		return nil, &core.NotFoundError{Entity: "obligation", ID: obligationID}
	}
	return q.ListSchedulesByObligation(ctx, obligationID)
}

// Between lists rows of live obligations with from <= due date < to.
func (s *ScheduleService) Between(ctx context.Context, from, to core.Date) ([]core.Schedule, error) {
	if from.IsZero() || to.IsZero() {
		return nil, core.NewValidationError("from", errors.New("from and to are required"))
	}
	if to.Before(from) {
		return nil, core.NewValidationError("to", core.ErrDateOrder)
	}
	return s.store.Queries().ListSchedules(ctx, from, to)
}

func scheduleFields(s core.Schedule) map[string]any {
	return map[string]any{
		"obligation_id": s.ObligationID,
		"due_date":      s.DueDate.String(),
		"amount":        s.Amount.String(),
		"tag":           s.Tag,
		"notes":         s.Notes,
	}
}
