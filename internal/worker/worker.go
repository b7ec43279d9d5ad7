// Package worker executes refresh jobs: it loads targets, scrapes them, and
// writes the successful results back to the profile store.
package worker

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/follower-tracker/internal/batch"
	"github.com/JakeFAU/follower-tracker/internal/metrics"
	"github.com/JakeFAU/follower-tracker/internal/progress"
	"github.com/JakeFAU/follower-tracker/internal/telemetry"
	"github.com/JakeFAU/follower-tracker/internal/tracker"
)

// Scraper scrapes one target.
type Scraper interface {
	ScrapeOne(ctx context.Context, target tracker.Target) tracker.Outcome
}

// BatchRunner scrapes a list of targets sequentially.
type BatchRunner interface {
	RunObserved(ctx context.Context, targets []tracker.Target, observe batch.Observer) tracker.BatchReport
}

// Config controls Worker behavior.
type Config struct {
	// Topic receives a BatchCompleted event per job; empty disables publishing.
	Topic string
	// Progress receives job and per-target events; nil disables them.
	Progress progress.Emitter
}

// Worker consumes queue items and executes refresh jobs.
type Worker struct {
	queue     tracker.Queue
	jobStore  tracker.JobStore
	profiles  tracker.ProfileStore
	scraper   Scraper
	runner    BatchRunner
	publisher tracker.Publisher
	ids       tracker.IDGenerator
	clock     tracker.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	queue tracker.Queue,
	jobStore tracker.JobStore,
	profiles tracker.ProfileStore,
	scraper Scraper,
	runner BatchRunner,
	publisher tracker.Publisher,
	ids tracker.IDGenerator,
	clock tracker.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     queue,
		jobStore:  jobStore,
		profiles:  profiles,
		scraper:   scraper,
		runner:    runner,
		publisher: publisher,
		ids:       ids,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			return
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID), zap.String("kind", string(item.Kind)))
		w.Process(ctx, item)
	}
}

// Process runs one job to a terminal status. Final bookkeeping still happens
// when ctx is canceled mid-batch so the job never stays "running".
func (w *Worker) Process(ctx context.Context, item tracker.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	ctx, span := telemetry.Tracer().Start(ctx, "job.process", trace.WithAttributes(
		attribute.String("tracker.job_id", item.JobID),
		attribute.String("tracker.job_kind", string(item.Kind)),
	))
	defer span.End()

	logger := w.logger.With(zap.String("job_id", item.JobID), zap.String("kind", string(item.Kind)))
	if err := w.jobStore.UpdateJobStatus(ctx, item.JobID, tracker.JobStatusRunning, "", tracker.JobCounters{}); err != nil {
		logger.Error("update job status failed", zap.Error(err))
		return
	}

	// Persistence after a shutdown signal must still reach the stores.
	finalCtx := context.WithoutCancel(ctx)

	targets, err := w.loadTargets(ctx, item)
	if err != nil {
		logger.Error("load targets failed", zap.Error(err))
		w.finish(finalCtx, logger, item, tracker.JobStatusFailed, err.Error(), tracker.JobCounters{}, nil)
		return
	}

	w.emit(progress.Event{JobID: item.JobID, Stage: progress.StageJobStart, Total: len(targets)})
	report := w.scrape(ctx, item, targets)
	counters := w.apply(finalCtx, logger, report)
	if err := w.jobStore.SaveReport(finalCtx, item.JobID, report); err != nil {
		logger.Error("save report failed", zap.Error(err))
	}

	status, errText := deriveFinalStatus(ctx, report)
	w.finish(finalCtx, logger, item, status, errText, counters, &report)
}

func (w *Worker) loadTargets(ctx context.Context, item tracker.QueueItem) ([]tracker.Target, error) {
	switch item.Kind {
	case tracker.JobKindRefreshOne:
		profile, err := w.profiles.GetProfile(ctx, item.TargetID)
		if err != nil {
			return nil, fmt.Errorf("load profile %s: %w", item.TargetID, err)
		}
		return []tracker.Target{profile.Target()}, nil
	case tracker.JobKindRefreshAll, "":
		targets, err := w.profiles.ListTargets(ctx)
		if err != nil {
			return nil, fmt.Errorf("list targets: %w", err)
		}
		return targets, nil
	default:
		return nil, fmt.Errorf("unknown job kind %q", item.Kind)
	}
}

// scrape runs a single-target job without batch pacing.
func (w *Worker) scrape(ctx context.Context, item tracker.QueueItem, targets []tracker.Target) tracker.BatchReport {
	observe := func(index, _ int, entry tracker.Entry) {
		result := progress.ResultSuccess
		if !entry.Outcome.OK() {
			result = string(entry.Outcome.Kind())
		}
		w.emit(progress.Event{
			JobID:    item.JobID,
			Stage:    progress.StageTargetDone,
			Index:    index,
			TargetID: entry.TargetID,
			Result:   result,
			Dur:      entry.Outcome.Duration,
		})
	}
	if item.Kind != tracker.JobKindRefreshOne {
		return w.runner.RunObserved(ctx, targets, observe)
	}
	report := tracker.NewBatchReport(len(targets))
	report.StartedAt = w.clock.Now()
	for i, target := range targets {
		report.Add(target, w.scraper.ScrapeOne(ctx, target))
		observe(i+1, len(targets), report.PerTarget[i])
	}
	report.FinishedAt = w.clock.Now()
	return report
}

// apply persists every successful outcome. Failed outcomes produce no writes.
func (w *Worker) apply(ctx context.Context, logger *zap.Logger, report tracker.BatchReport) tracker.JobCounters {
	counters := tracker.JobCounters{
		Succeeded: report.Totals.SuccessCount,
		Failed:    report.Totals.ErrorCount,
	}
	for _, entry := range report.Successes() {
		if err := w.persist(ctx, entry); err != nil {
			counters.PersistFailures++
			logger.Error("persist scrape result failed", zap.String("target_id", entry.TargetID), zap.Error(err))
		}
	}
	return counters
}

func (w *Worker) persist(ctx context.Context, entry tracker.Entry) error {
	profile := entry.Outcome.Profile
	if profile.HasAvatar() {
		if err := w.profiles.UpdateAvatar(ctx, entry.TargetID, profile.AvatarURL); err != nil {
			return fmt.Errorf("update avatar: %w", err)
		}
	}
	id, err := w.ids.NewID()
	if err != nil {
		return fmt.Errorf("generate count id: %w", err)
	}
	err = w.profiles.AppendFollowerCount(ctx, tracker.FollowerCount{
		ID:         id,
		ProfileID:  entry.TargetID,
		Count:      profile.FollowerCount,
		RecordedAt: w.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("append follower count: %w", err)
	}
	return nil
}

func (w *Worker) finish(
	ctx context.Context,
	logger *zap.Logger,
	item tracker.QueueItem,
	status tracker.JobStatus,
	errText string,
	counters tracker.JobCounters,
	report *tracker.BatchReport,
) {
	if err := w.jobStore.UpdateJobStatus(ctx, item.JobID, status, errText, counters); err != nil {
		logger.Error("final job status update failed", zap.Error(err))
	}
	metrics.ObserveJob(string(status))
	w.emit(progress.Event{JobID: item.JobID, Stage: progress.StageJobDone, Result: string(status)})
	logger.Info("job finished",
		zap.String("status", string(status)),
		zap.Int("succeeded", counters.Succeeded),
		zap.Int("failed", counters.Failed),
		zap.Int("persist_failures", counters.PersistFailures),
	)
	w.publishCompleted(ctx, logger, item, status, report)
}

func (w *Worker) publishCompleted(
	ctx context.Context,
	logger *zap.Logger,
	item tracker.QueueItem,
	status tracker.JobStatus,
	report *tracker.BatchReport,
) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	event := tracker.BatchCompleted{
		JobID:      item.JobID,
		Kind:       item.Kind,
		Status:     status,
		FinishedAt: w.clock.Now(),
	}
	if report != nil {
		event.Totals = report.Totals
		if failures := report.FailuresByKind(); len(failures) > 0 {
			event.Failures = failures
		}
	}
	id, err := w.publisher.Publish(ctx, w.cfg.Topic, event)
	if err != nil {
		logger.Error("publish batch completed failed", zap.Error(err))
		return
	}
	logger.Debug("batch completed published", zap.String("message_id", id))
}

func (w *Worker) emit(evt progress.Event) {
	if w.cfg.Progress == nil {
		return
	}
	evt.TS = w.clock.Now()
	w.cfg.Progress.Emit(evt)
}

func deriveFinalStatus(ctx context.Context, report tracker.BatchReport) (tracker.JobStatus, string) {
	switch {
	case ctx.Err() != nil:
		return tracker.JobStatusCanceled, "job canceled"
	case report.Totals.Count > 0 && report.Totals.SuccessCount == 0:
		return tracker.JobStatusFailed, fmt.Sprintf("all %d targets failed", report.Totals.Count)
	default:
		return tracker.JobStatusSucceeded, ""
	}
}
