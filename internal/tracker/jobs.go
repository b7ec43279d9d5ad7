package tracker

import "time"

// JobKind selects what a refresh job scrapes.
type JobKind string

// Supported job kinds.
const (
	JobKindRefreshAll JobKind = "refresh_all"
	JobKindRefreshOne JobKind = "refresh_one"
)

// JobStatus represents the lifecycle state of a refresh job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// Job represents the metadata persisted for each submitted refresh request.
type Job struct {
	ID        string       `json:"id"`
	Kind      JobKind      `json:"kind"`
	TargetID  string       `json:"target_id,omitempty"`
	Status    JobStatus    `json:"status"`
	Submitted time.Time    `json:"submitted_at"`
	Started   *time.Time   `json:"started_at,omitempty"`
	Finished  *time.Time   `json:"finished_at,omitempty"`
	ErrorText string       `json:"error_text,omitempty"`
	Counters  JobCounters  `json:"counters"`
	Progress  *JobProgress `json:"progress,omitempty"`
	Report    *BatchReport `json:"report,omitempty"`
}

// JobProgress is the live position of a running job. It trails the worker
// slightly because progress events are delivered asynchronously.
type JobProgress struct {
	Total     int       `json:"total"`
	Done      int       `json:"done"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobCounters tracks success/failure stats per job.
type JobCounters struct {
	Succeeded       int `json:"succeeded"`
	Failed          int `json:"failed"`
	PersistFailures int `json:"persist_failures"`
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Kind      JobKind
	TargetID  string
	Submitted int64
}

// BatchCompleted is published after a refresh job applies its report.
type BatchCompleted struct {
	JobID      string            `json:"job_id"`
	Kind       JobKind           `json:"kind"`
	Status     JobStatus         `json:"status"`
	Totals     Totals            `json:"totals"`
	Failures   map[ErrorKind]int `json:"failures,omitempty"`
	FinishedAt time.Time         `json:"finished_at"`
}
