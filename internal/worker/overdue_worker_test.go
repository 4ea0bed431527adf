package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payledger/internal/core"
	"payledger/internal/services"
)

type fakeProcessor struct {
	mu    sync.Mutex
	days  []core.Date
	err   error
	calls chan struct{}
}

func (p *fakeProcessor) Process(ctx context.Context, today core.Date) (services.OverdueView, error) {
	p.mu.Lock()
	p.days = append(p.days, today)
	p.mu.Unlock()
	if p.calls != nil {
		p.calls <- struct{}{}
	}
	return services.OverdueView{}, p.err
}

var clock = core.FixedClock{T: time.Date(2025, 6, 20, 7, 0, 0, 0, time.UTC)}

func TestNewOverdueWorker_RejectsBadSchedule(t *testing.T) {
	_, err := NewOverdueWorker("whenever", &fakeProcessor{}, clock)
	require.Error(t, err)
}

func TestOverdueWorker_RunNow(t *testing.T) {
	p := &fakeProcessor{}
	w, err := NewOverdueWorker("0 7 * * *", p, clock)
	require.NoError(t, err)

	require.NoError(t, w.RunNow(context.Background()))
	assert.Equal(t, []core.Date{core.NewDate(2025, 6, 20)}, p.days)

	last, lastErr := w.LastRun()
	assert.Equal(t, clock.T, last)
	assert.NoError(t, lastErr)
}

func TestOverdueWorker_RunNowRecordsFailure(t *testing.T) {
	p := &fakeProcessor{err: errors.New("db down")}
	w, err := NewOverdueWorker("@daily", p, clock)
	require.NoError(t, err)

	assert.Error(t, w.RunNow(context.Background()))
	_, lastErr := w.LastRun()
	assert.EqualError(t, lastErr, "db down")
}

func TestOverdueWorker_ScheduledTick(t *testing.T) {
	p := &fakeProcessor{calls: make(chan struct{}, 4)}
	w, err := NewOverdueWorker("@every 1s", p, clock)
	require.NoError(t, err)

	w.Start(context.Background())
	defer w.Stop()
	assert.False(t, w.NextRun().IsZero())

	select {
	case <-p.calls:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled run did not happen")
	}
}
