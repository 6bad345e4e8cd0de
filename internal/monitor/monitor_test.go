package monitor_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lmevald/lmevald/internal/model"
	"github.com/lmevald/lmevald/internal/monitor"
	"github.com/stretchr/testify/require"
)

type listerFunc func(ctx context.Context, includeFinished bool) ([]model.JobSummary, error)

func (f listerFunc) List(ctx context.Context, includeFinished bool) ([]model.JobSummary, error) {
	return f(ctx, includeFinished)
}

func TestReport(t *testing.T) {
	t.Parallel()
	jobs := []model.JobSummary{
		{JobID: 1, Status: model.JobStatusRunning, InferenceProgressPct: 42},
	}
	lister := listerFunc(func(_ context.Context, includeFinished bool) ([]model.JobSummary, error) {
		require.False(t, includeFinished)
		return jobs, nil
	})

	m, err := monitor.New(t.Context(), model.Monitor{Cron: "*/5 * * * *"}, lister)
	require.NoError(t, err)
	active, err := m.Report(t.Context())
	require.NoError(t, err)
	require.Equal(t, jobs, active)

	failing := listerFunc(func(context.Context, bool) ([]model.JobSummary, error) {
		return nil, context.Canceled
	})
	m, err = monitor.New(t.Context(), model.Monitor{Duration: "PT1H"}, failing)
	require.NoError(t, err)
	_, err = m.Report(t.Context())
	require.ErrorIs(t, err, context.Canceled)
}

func TestNew_Fail(t *testing.T) {
	t.Parallel()
	var testCases = []struct {
		scenario string
		given    model.Monitor
	}{
		{"empty", model.Monitor{}},
		{"both", model.Monitor{Cron: "@daily", Duration: "PT1M"}},
		{"bad cron", model.Monitor{Cron: "61 * * * *"}},
		{"bad duration", model.Monitor{Duration: "1 minute"}},
	}
	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			_, err := monitor.New(t.Context(), tc.given, listerFunc(nil))
			require.Error(t, err)
		})
	}
}

func TestRun(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	lister := listerFunc(func(context.Context, bool) ([]model.JobSummary, error) {
		calls.Add(1)
		return nil, nil
	})

	m, err := monitor.New(t.Context(), model.Monitor{Duration: "PT0.05S"}, lister)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	errc := make(chan error, 1)
	go func() {
		errc <- m.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return calls.Load() >= 2
	}, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		require.True(t, err == nil || errors.Is(err, context.Canceled), "unexpected error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop")
	}
}
