package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/follower-tracker/internal/tracker"
)

func (s *Server) refreshAll(w http.ResponseWriter, r *http.Request) {
	s.submitRefresh(w, r, tracker.JobKindRefreshAll, "")
}

func (s *Server) refreshProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.profiles.GetProfile(r.Context(), id); err != nil {
		s.writeStoreError(w, err, "profile")
		return
	}
	s.submitRefresh(w, r, tracker.JobKindRefreshOne, id)
}

func (s *Server) submitRefresh(w http.ResponseWriter, r *http.Request, kind tracker.JobKind, targetID string) {
	jobID, err := s.enqueueJob(r.Context(), kind, targetID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusServiceUnavailable
		}
		s.logger.Error("enqueue refresh failed", zap.String("kind", string(kind)), zap.Error(err))
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobStore.GetJob(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		s.writeStoreError(w, err, "job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) enqueueJob(ctx context.Context, kind tracker.JobKind, targetID string) (string, error) {
	jobID, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	now := s.clock.Now()
	job := tracker.Job{
		ID:        jobID,
		Kind:      kind,
		TargetID:  targetID,
		Status:    tracker.JobStatusQueued,
		Submitted: now,
	}
	if err := s.jobStore.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	queueCtx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()
	item := tracker.QueueItem{
		JobID:     jobID,
		Kind:      kind,
		TargetID:  targetID,
		Submitted: now.Unix(),
	}
	if err := s.queue.Enqueue(queueCtx, item); err != nil {
		if statusErr := s.jobStore.UpdateJobStatus(ctx, jobID, tracker.JobStatusFailed, "queue full", tracker.JobCounters{}); statusErr != nil {
			s.logger.Warn("mark unqueued job failed", zap.String("job_id", jobID), zap.Error(statusErr))
		}
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return jobID, nil
}
