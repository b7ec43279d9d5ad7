package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone an Event reports.
type Stage string

// Supported progress stages.
const (
	StageJobStart   Stage = "job_start"
	StageTargetDone Stage = "target_done"
	StageJobDone    Stage = "job_done"
)

// ResultSuccess marks a target_done event for a successful scrape. Failures
// carry the error kind instead.
const ResultSuccess = "success"

// Event is one progress milestone of a refresh job.
type Event struct {
	JobID string
	// TS is the emitter's timestamp.
	TS    time.Time
	Stage Stage
	// Total is the number of targets in the job; set on job_start.
	Total int
	// Index is the 1-based position of the target for target_done.
	Index    int
	TargetID string
	// Result is ResultSuccess or the failure kind for target_done, and the
	// final job status for job_done.
	Result string
	Dur    time.Duration
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart:
		if e.Total < 0 {
			return errors.New("job start requires total >= 0")
		}
	case StageTargetDone:
		if e.Index <= 0 {
			return errors.New("target done requires a 1-based index")
		}
		if e.Result == "" {
			return errors.New("target done requires a result")
		}
	case StageJobDone:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
