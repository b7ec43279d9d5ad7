package sinks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/follower-tracker/internal/progress"
	"github.com/JakeFAU/follower-tracker/internal/tracker"
)

// ProgressWriter stores the live progress of a job.
type ProgressWriter interface {
	UpdateProgress(ctx context.Context, jobID string, p tracker.JobProgress) error
}

// JobSink folds events into per-job counters and writes them after every batch.
type JobSink struct {
	writer ProgressWriter

	mu   sync.Mutex
	jobs map[string]*tracker.JobProgress
}

// NewJobSink builds a sink writing to w.
func NewJobSink(w ProgressWriter) *JobSink {
	return &JobSink{writer: w, jobs: make(map[string]*tracker.JobProgress)}
}

// Consume applies the batch and writes the progress of every job it touched.
// Jobs that reached job_done are forgotten after the write.
func (s *JobSink) Consume(ctx context.Context, batch []progress.Event) error {
	s.mu.Lock()
	touched := make(map[string]tracker.JobProgress)
	var done []string
	for _, evt := range batch {
		p := s.jobs[evt.JobID]
		if p == nil {
			p = &tracker.JobProgress{}
			s.jobs[evt.JobID] = p
		}
		switch evt.Stage {
		case progress.StageJobStart:
			p.Total = evt.Total
		case progress.StageTargetDone:
			p.Done++
			if evt.Result == progress.ResultSuccess {
				p.Succeeded++
			} else {
				p.Failed++
			}
		case progress.StageJobDone:
			done = append(done, evt.JobID)
		}
		p.UpdatedAt = evt.TS
		touched[evt.JobID] = *p
	}
	for _, id := range done {
		delete(s.jobs, id)
	}
	s.mu.Unlock()

	var errs []error
	for id, p := range touched {
		if err := s.writer.UpdateProgress(ctx, id, p); err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Close forgets all in-flight jobs.
func (s *JobSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make(map[string]*tracker.JobProgress)
	return nil
}
