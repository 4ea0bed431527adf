// Package notify e-mails the overdue digest.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"

	"payledger/internal/core"
	"payledger/internal/overdue"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer sends digests over SMTP. send is replaced in tests.
type Mailer struct {
	cfg        SMTPConfig
	recipients []string
	send       func(e *email.Email) error
}

func NewMailer(cfg SMTPConfig, recipients []string) *Mailer {
	m := &Mailer{cfg: cfg, recipients: recipients}
	m.send = func(e *email.Email) error {
		addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
		var auth smtp.Auth
		if cfg.Username != "" {
			auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
		}
		return e.Send(addr, auth)
	}
	return m
}

// SendOverdueDigest mails one summary of the report to every recipient.
func (m *Mailer) SendOverdueDigest(ctx context.Context, report overdue.Report, schedules []core.Schedule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := email.NewEmail()
	e.From = m.cfg.From
	e.To = m.recipients
	e.Subject = DigestSubject(report)
	e.Text = []byte(DigestBody(report, schedules))

	if err := m.send(e); err != nil {
		slog.ErrorContext(ctx, "Failed to send overdue digest", "recipients", len(m.recipients), "error", err)
		return fmt.Errorf("send overdue digest: %w", err)
	}
	slog.InfoContext(ctx, "Overdue digest sent", "recipients", len(m.recipients), "subject", e.Subject)
	return nil
}

func DigestSubject(report overdue.Report) string {
	n := len(report.CurrentMonth) + len(report.PriorMonths)
	return fmt.Sprintf("Overdue payments %s: %d open, %s outstanding", report.Today, n, report.Total)
}

// DigestBody renders the plain-text digest.
func DigestBody(report overdue.Report, schedules []core.Schedule) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Overdue summary as of %s\n\n", report.Today)

	section := func(title string, items []overdue.Item) {
		fmt.Fprintf(&b, "%s (%d)\n", title, len(items))
		for _, it := range items {
			fmt.Fprintf(&b, "  - %s: %s remaining, due %s (%d days)\n",
				it.Obligation.Name, it.Remaining, it.EffectiveDate, it.DaysOverdue)
		}
		b.WriteString("\n")
	}
	section("Earlier months", report.PriorMonths)
	section("This month", report.CurrentMonth)

	if len(schedules) > 0 {
		fmt.Fprintf(&b, "Missed installments (%d)\n", len(schedules))
		for _, s := range schedules {
			fmt.Fprintf(&b, "  - obligation %d: %s due %s\n", s.ObligationID, s.Amount, s.DueDate)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Total outstanding: %s\n", report.Total)
	return b.String()
}
