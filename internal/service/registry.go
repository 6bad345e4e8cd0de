package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"regexp"
	"slices"
	"sync"

	"github.com/lmevald/lmevald/internal/model"
	"github.com/lmevald/lmevald/internal/parallel"
)

var (
	ErrNotFound    = errors.New("job not found")
	ErrDuplicateID = errors.New("job id already registered")
)

// refreshLimit bounds concurrent job refreshes in List.
const refreshLimit = 4

// Registry maps process identifiers to jobs. It is safe for concurrent use.
type Registry struct {
	launcher Launcher
	marker   *regexp.Regexp

	mx   sync.RWMutex
	jobs map[int]*Job
}

// NewRegistry returns an empty registry. marker is the progress marker
// pattern with one capture group holding the percentage.
func NewRegistry(launcher Launcher, marker *regexp.Regexp) *Registry {
	return &Registry{
		launcher: launcher,
		marker:   marker,
		jobs:     make(map[int]*Job),
	}
}

// Launch spawns the command and registers it. The job is reachable by the
// returned id as soon as Launch returns.
func (r *Registry) Launch(ctx context.Context, cmd Command) (int, error) {
	proc, err := r.launcher.Launch(ctx, cmd)
	if err != nil {
		return 0, err
	}
	job := newJob(proc, cmd.Line)

	r.mx.Lock()
	if _, ok := r.jobs[job.ID()]; ok {
		r.mx.Unlock()
		// the OS reused the pid of a reaped job which is still registered
		if _, err := proc.Terminate(); err != nil {
			slog.ErrorContext(ctx, "terminating duplicate job", "job_id", job.ID(), "error", err)
		}
		return 0, fmt.Errorf("%w: %d", ErrDuplicateID, job.ID())
	}
	r.jobs[job.ID()] = job
	r.mx.Unlock()

	slog.InfoContext(ctx, "job launched", "job_id", job.ID())
	return job.ID(), nil
}

func (r *Registry) lookup(id int) (*Job, error) {
	r.mx.RLock()
	defer r.mx.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return job, nil
}

// Get refreshes the job and returns its detail.
func (r *Registry) Get(id int) (model.JobDetail, error) {
	job, err := r.lookup(id)
	if err != nil {
		return model.JobDetail{}, err
	}
	return job.refresh(r.marker), nil
}

// List refreshes every job and returns summaries ordered by id. Jobs with an
// exit code are skipped unless includeFinished is set.
func (r *Registry) List(ctx context.Context, includeFinished bool) ([]model.JobSummary, error) {
	refresh := func(_ context.Context, job *Job) (model.JobSummary, error) {
		return job.refresh(r.marker).Summary(), nil
	}

	ret := make([]model.JobSummary, 0, r.Len())
	for summary, err := range parallel.NewMap(ctx, refreshLimit, refresh).Iter(r.all()) {
		if err != nil {
			return nil, err
		}
		if !includeFinished && summary.ExitCode != nil {
			continue
		}
		ret = append(ret, summary)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slices.SortFunc(ret, func(a, b model.JobSummary) int {
		return a.JobID - b.JobID
	})
	return ret, nil
}

// all iterates over a snapshot of registered jobs.
func (r *Registry) all() iter.Seq2[*Job, error] {
	r.mx.RLock()
	jobs := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, job)
	}
	r.mx.RUnlock()

	return func(yield func(*Job, error) bool) {
		for _, job := range jobs {
			if !yield(job, nil) {
				return
			}
		}
	}
}

// Stop terminates the job if it is still running. It returns false when
// the job had already finished, which is not an error.
func (r *Registry) Stop(ctx context.Context, id int) (bool, error) {
	job, err := r.lookup(id)
	if err != nil {
		return false, err
	}
	terminated, err := job.stop()
	if err != nil {
		return false, err
	}
	if terminated {
		slog.InfoContext(ctx, "job terminated", "job_id", id)
	}
	return terminated, nil
}

// Delete stops the job if needed and forgets it, including its output.
func (r *Registry) Delete(ctx context.Context, id int) error {
	job, err := r.lookup(id)
	if err != nil {
		return err
	}
	if _, err := r.Stop(ctx, id); err != nil {
		return err
	}

	r.mx.Lock()
	defer r.mx.Unlock()
	if r.jobs[id] != job {
		// deleted concurrently
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	delete(r.jobs, id)
	slog.InfoContext(ctx, "job deleted", "job_id", id)
	return nil
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return len(r.jobs)
}

// Close is called on shutdown. With terminate set, running processes get
// SIGTERM and are killed if they do not exit before ctx is done. Otherwise
// they are left running and become unmanaged. Jobs stay registered.
func (r *Registry) Close(ctx context.Context, terminate bool) error {
	var running []*Job
	for job := range r.all() {
		if exited, _ := job.proc.Poll(); !exited {
			running = append(running, job)
		}
	}
	if len(running) == 0 {
		return nil
	}
	if !terminate {
		slog.WarnContext(ctx, "leaving jobs running", "count", len(running))
		return nil
	}

	var errs []error
	for _, job := range running {
		if _, err := job.stop(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, job := range running {
		select {
		case <-job.proc.Done():
		case <-ctx.Done():
			slog.WarnContext(ctx, "killing job", "job_id", job.ID())
			if err := job.proc.Kill(); err != nil {
				errs = append(errs, fmt.Errorf("killing job %d: %w", job.ID(), err))
			}
			<-job.proc.Done()
		}
	}
	return errors.Join(errs...)
}
