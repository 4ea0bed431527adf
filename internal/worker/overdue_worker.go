// Package worker schedules the background overdue check.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"payledger/internal/core"
	"payledger/internal/services"
)

// Processor is the unit of work run on every tick.
type Processor interface {
	Process(ctx context.Context, today core.Date) (services.OverdueView, error)
}

// OverdueWorker runs the processor on a cron schedule. Runs never overlap.
type OverdueWorker struct {
	cron      *cron.Cron
	processor Processor
	clock     core.Clock
	timeout   time.Duration

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	lastRun time.Time
	lastErr error
}

// NewOverdueWorker parses spec as a standard five-field cron expression.
func NewOverdueWorker(spec string, processor Processor, clock core.Clock) (*OverdueWorker, error) {
	if clock == nil {
		clock = core.SystemClock{}
	}
	w := &OverdueWorker{
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		processor: processor,
		clock:     clock,
		timeout:   5 * time.Minute,
	}
	if _, err := w.cron.AddFunc(spec, w.tick); err != nil {
		return nil, fmt.Errorf("parse overdue schedule %q: %w", spec, err)
	}
	return w, nil
}

// Start begins scheduling; ctx bounds every run.
func (w *OverdueWorker) Start(ctx context.Context) {
	w.mu.Lock()
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.cron.Start()
	slog.InfoContext(ctx, "Overdue worker started", "next_run", w.NextRun())
}

// Stop halts scheduling and waits for an in-flight run.
func (w *OverdueWorker) Stop() {
	done := w.cron.Stop()
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Unlock()
	<-done.Done()
	slog.Info("Overdue worker stopped")
}

// RunNow performs one check immediately, e.g. on startup.
func (w *OverdueWorker) RunNow(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	today := core.Today(w.clock)
	_, err := w.processor.Process(ctx, today)

	w.mu.Lock()
	w.lastRun = w.clock.Now()
	w.lastErr = err
	w.mu.Unlock()

	if err != nil {
		slog.ErrorContext(ctx, "Overdue check failed", "today", today.String(), "error", err)
		return err
	}
	return nil
}

func (w *OverdueWorker) tick() {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	_ = w.RunNow(ctx)
}

func (w *OverdueWorker) NextRun() time.Time {
	entries := w.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// LastRun reports when the last check finished and its error.
func (w *OverdueWorker) LastRun() (time.Time, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastRun, w.lastErr
}
