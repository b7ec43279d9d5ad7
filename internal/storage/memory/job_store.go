package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/follower-tracker/internal/tracker"
)

// JobStore keeps refresh jobs and their reports in memory.
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[string]tracker.Job
	clock tracker.Clock
}

// NewJobStore constructs a JobStore. A nil clock uses UTC wall time.
func NewJobStore(clock tracker.Clock) *JobStore {
	if clock == nil {
		clock = utcClock{}
	}
	return &JobStore{
		jobs:  make(map[string]tracker.Job),
		clock: clock,
	}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job tracker.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJobStatus updates the status and counters for a job, stamping start and finish times.
func (s *JobStore) UpdateJobStatus(
	_ context.Context,
	jobID string,
	status tracker.JobStatus,
	errText string,
	counters tracker.JobCounters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, tracker.ErrNotFound)
	}
	job.Status = status
	job.ErrorText = errText
	job.Counters = counters
	now := s.clock.Now()
	if status == tracker.JobStatusRunning && job.Started == nil {
		job.Started = &now
	}
	if isTerminal(status) {
		job.Finished = &now
	}
	s.jobs[jobID] = job
	return nil
}

// SaveReport attaches a batch report to a job.
func (s *JobStore) SaveReport(_ context.Context, jobID string, report tracker.BatchReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, tracker.ErrNotFound)
	}
	job.Report = &report
	s.jobs[jobID] = job
	return nil
}

// UpdateProgress replaces the live progress of a job.
func (s *JobStore) UpdateProgress(_ context.Context, jobID string, p tracker.JobProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, tracker.ErrNotFound)
	}
	job.Progress = &p
	s.jobs[jobID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (tracker.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return tracker.Job{}, fmt.Errorf("job %s: %w", jobID, tracker.ErrNotFound)
	}
	return job, nil
}

func isTerminal(status tracker.JobStatus) bool {
	switch status {
	case tracker.JobStatusSucceeded, tracker.JobStatusFailed, tracker.JobStatusCanceled:
		return true
	default:
		return false
	}
}

type utcClock struct{}

func (utcClock) Now() time.Time {
	return time.Now().UTC()
}
