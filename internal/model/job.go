package model

// JobStatus is derived on every inspection from a fresh poll of the process.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "Queued"
	JobStatusRunning   JobStatus = "Running"
	JobStatusCompleted JobStatus = "Completed"
	JobStatusFailed    JobStatus = "Failed"
	JobStatusStopped   JobStatus = "Stopped"
)

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusStopped:
		return true
	default:
		return false
	}
}

// JobSummary is the list view of a job.
type JobSummary struct {
	JobID                int       `json:"job_id"`
	Argument             string    `json:"argument"`
	Status               JobStatus `json:"status"`
	Timestamp            string    `json:"timestamp"` // RFC 3339 start time
	ExitCode             *int      `json:"exit_code"` // nil while running
	InferenceProgressPct int       `json:"inference_progress_pct"`
}

// JobDetail is a JobSummary plus the output accumulated so far.
type JobDetail struct {
	JobSummary
	Stdout []string `json:"stdout"`
	Stderr []string `json:"stderr"`
}

// Summary drops the accumulated output.
func (d JobDetail) Summary() JobSummary {
	return d.JobSummary
}

// JobList is the body of GET /jobs.
type JobList struct {
	Jobs []JobSummary `json:"jobs"`
}
