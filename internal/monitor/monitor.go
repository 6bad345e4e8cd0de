// Package monitor periodically logs the jobs which are still running.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	gocron "github.com/go-co-op/gocron/v2"

	"github.com/lmevald/lmevald/internal/model"
)

// Lister is implemented by service.Registry.
type Lister interface {
	List(ctx context.Context, includeFinished bool) ([]model.JobSummary, error)
}

type Monitor struct {
	lister    Lister
	scheduler gocron.Scheduler
}

// New prepares a scheduler reporting on cfg's cron or duration schedule.
// The scheduler is not started until Run is called.
func New(ctx context.Context, cfg model.Monitor, lister Lister) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var job gocron.JobDefinition
	switch {
	case cfg.Cron != "":
		job = gocron.CronJob(cfg.Cron, false)
		slog.DebugContext(ctx, "monitor scheduled", "cron", cfg.Cron)
	case cfg.Duration != "":
		d, err := model.ParseISODuration(cfg.Duration)
		if err != nil {
			return nil, fmt.Errorf("parsing service.monitor.duration: %w", err)
		}
		job = gocron.DurationJob(d)
		slog.DebugContext(ctx, "monitor scheduled", "duration", d.String())
	default:
		return nil, errors.New("both cron and duration are empty")
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("initializing gocron scheduler: %w", err)
	}

	m := &Monitor{
		lister:    lister,
		scheduler: s,
	}
	_, err = s.NewJob(
		job,
		gocron.NewTask(func() {
			_, _ = m.Report(ctx)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("initializing gocron job: %w", err)
	}
	return m, nil
}

// Run starts the scheduler and blocks until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	m.scheduler.Start()
	<-ctx.Done()
	if err := m.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("shutting down gocron: %w", err)
	}
	return nil
}

// Report logs one record per active job and returns them.
func (m *Monitor) Report(ctx context.Context) ([]model.JobSummary, error) {
	active, err := m.lister.List(ctx, false)
	if err != nil {
		slog.ErrorContext(ctx, "listing jobs", "error", err)
		return nil, err
	}
	slog.InfoContext(ctx, "active jobs", "count", len(active))
	for _, job := range active {
		slog.InfoContext(ctx, "job",
			"job_id", job.JobID,
			"status", job.Status,
			"inference_progress_pct", job.InferenceProgressPct,
			"started", job.Timestamp,
		)
	}
	return active, nil
}
