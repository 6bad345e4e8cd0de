package service

import (
	"regexp"
	"sync"
	"time"

	"github.com/lmevald/lmevald/internal/model"
)

// Job is one registered invocation of the wrapped tool.
type Job struct {
	pid      int
	argument string
	proc     Process

	mx       sync.Mutex
	stdout   []string
	stderr   []string
	progress int
	stopped  bool
}

func newJob(proc Process, argument string) *Job {
	return &Job{
		pid:      proc.PID(),
		argument: argument,
		proc:     proc,
	}
}

func (j *Job) ID() int {
	return j.pid
}

// refresh pulls new output, rescans it for progress and recomputes status
// from a fresh poll. Only lines drained by this call are scanned: older
// lines already contributed to the stored progress.
func (j *Job) refresh(marker *regexp.Regexp) model.JobDetail {
	j.mx.Lock()
	defer j.mx.Unlock()

	// poll first: a process seen as exited has its output fully flushed
	exited, code := j.proc.Poll()
	stdout, stderr := j.proc.Drain()
	j.stdout = append(j.stdout, stdout...)
	j.stderr = append(j.stderr, stderr...)
	if pct, ok := scanProgress(stderr, marker); ok {
		j.progress = pct
	}

	status, exitCode := jobStatus(exited, code, j.stopped)
	return model.JobDetail{
		JobSummary: model.JobSummary{
			JobID:                j.pid,
			Argument:             j.argument,
			Status:               status,
			Timestamp:            j.proc.Started().UTC().Format(time.RFC3339),
			ExitCode:             exitCode,
			InferenceProgressPct: j.progress,
		},
		Stdout: append([]string{}, j.stdout...),
		Stderr: append([]string{}, j.stderr...),
	}
}

// stop terminates a running process and marks the job as Stopped. Stopping
// a finished job changes nothing.
func (j *Job) stop() (bool, error) {
	j.mx.Lock()
	defer j.mx.Unlock()
	terminated, err := j.proc.Terminate()
	if err != nil {
		return false, err
	}
	if terminated {
		j.stopped = true
	}
	return terminated, nil
}
