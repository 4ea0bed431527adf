package services

import (
	"context"
	"fmt"
	"log/slog"

	"payledger/internal/amqp"
	"payledger/internal/core"
	"payledger/internal/overdue"
)

// DigestSender delivers the overdue digest. *notify.Mailer satisfies it.
type DigestSender interface {
	SendOverdueDigest(ctx context.Context, report overdue.Report, late []core.Schedule) error
}

// DigestProcessor runs the periodic overdue check: classify, log, publish an
// overdue.report event and mail a digest when a sender is configured.
type DigestProcessor struct {
	views  *ViewService
	events EventPublisher
	sender DigestSender
}

func NewDigestProcessor(views *ViewService, events EventPublisher, sender DigestSender) *DigestProcessor {
	return &DigestProcessor{
		views:  views,
		events: events,
		sender: sender,
	}
}

// Process classifies as of today and returns the view it reported on.
func (p *DigestProcessor) Process(ctx context.Context, today core.Date) (OverdueView, error) {
	if p.views == nil {
		return OverdueView{}, fmt.Errorf("processor not properly initialized")
	}

	view, err := p.views.Overdue(ctx, today)
	if err != nil {
		return OverdueView{}, fmt.Errorf("classify overdue: %w", err)
	}

	slog.InfoContext(ctx, "Overdue check complete",
		"today", view.Today.String(),
		"current_month", len(view.CurrentMonth),
		"prior_months", len(view.PriorMonths),
		"overdue_schedules", len(view.OverdueSchedules),
		"total_cents", view.Total.Cents)

	publish(ctx, p.events, amqp.NewLedgerEvent(amqp.EventOverdueReport, 0, 0).
		With("today", view.Today.String()).
		With("current_month", len(view.CurrentMonth)).
		With("prior_months", len(view.PriorMonths)).
		With("total", view.Total.String()))

	if p.sender == nil {
		return view, nil
	}
	if len(view.CurrentMonth)+len(view.PriorMonths)+len(view.OverdueSchedules) == 0 {
		slog.DebugContext(ctx, "Nothing overdue, digest not sent")
		return view, nil
	}
	if err := p.sender.SendOverdueDigest(ctx, view.Report, view.OverdueSchedules); err != nil {
		// The report is still valid; only delivery failed.
		slog.ErrorContext(ctx, "Failed to send overdue digest", "error", err)
		return view, fmt.Errorf("send digest: %w", err)
	}
	return view, nil
}
