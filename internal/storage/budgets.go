package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"payledger/internal/core"
)

// InsertBudgetPlan stores a plan and its items and returns the stored plan.
func (q *Queries) InsertBudgetPlan(ctx context.Context, p core.BudgetPlan, now time.Time) (core.BudgetPlan, error) {
	id, err := q.insert(ctx, `INSERT INTO budget_plans (name, project_id, period_start, period_end, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.Name, nullID(p.ProjectID), formatDate(p.PeriodStart), formatDate(p.PeriodEnd), formatTime(now))
	if err != nil {
		return p, fmt.Errorf("insert budget plan: %w", err)
	}
	p.ID = id
	for i := range p.Items {
		p.Items[i].PlanID = id
		itemID, err := q.insert(ctx, `INSERT INTO budget_items (plan_id, name, amount_cents) VALUES (?, ?, ?)`,
			id, p.Items[i].Name, p.Items[i].Amount.Cents)
		if err != nil {
			return p, fmt.Errorf("insert budget item: %w", err)
		}
		p.Items[i].ID = itemID
	}
	return p, nil
}

// ListBudgetPlans returns plans overlapping [from, to), items included. Zero
// dates return every plan.
func (q *Queries) ListBudgetPlans(ctx context.Context, from, to core.Date) ([]core.BudgetPlan, error) {
	query := `SELECT id, name, project_id, period_start, period_end FROM budget_plans`
	var args []any
	if !from.IsZero() && !to.IsZero() {
		query += ` WHERE period_start < ? AND period_end >= ?`
		args = append(args, formatDate(to), formatDate(from))
	}
	rows, err := q.query(ctx, query+` ORDER BY period_start, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list budget plans: %w", err)
	}

	plans := []core.BudgetPlan{}
	index := map[int64]int{}
	for rows.Next() {
		var (
			p          core.BudgetPlan
			projectID  sql.NullInt64
			start, end string
		)
		if err := rows.Scan(&p.ID, &p.Name, &projectID, &start, &end); err != nil {
			rows.Close()
			return nil, err
		}
		p.ProjectID = projectID.Int64
		if p.PeriodStart, err = parseDate(start); err != nil {
			rows.Close()
			return nil, err
		}
		if p.PeriodEnd, err = parseDate(end); err != nil {
			rows.Close()
			return nil, err
		}
		p.Items = []core.BudgetItem{}
		index[p.ID] = len(plans)
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if len(plans) == 0 {
		return plans, nil
	}

	items, err := q.query(ctx, `SELECT id, plan_id, name, amount_cents FROM budget_items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list budget items: %w", err)
	}
	defer items.Close()
	for items.Next() {
		var it core.BudgetItem
		if err := items.Scan(&it.ID, &it.PlanID, &it.Name, &it.Amount.Cents); err != nil {
			return nil, err
		}
		if i, ok := index[it.PlanID]; ok {
			plans[i].Items = append(plans[i].Items, it)
		}
	}
	return plans, items.Err()
}
