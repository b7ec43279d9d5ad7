// Package batch scrapes a list of targets one at a time, pausing between
// items and recording every outcome, so one bad profile never aborts the run.
package batch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/follower-tracker/internal/clock/system"
	"github.com/JakeFAU/follower-tracker/internal/logging"
	"github.com/JakeFAU/follower-tracker/internal/metrics"
	"github.com/JakeFAU/follower-tracker/internal/tracker"
)

// DefaultDelay is the pause after each scraped target.
const DefaultDelay = 2 * time.Second

// Scraper scrapes a single target.
type Scraper interface {
	ScrapeOne(ctx context.Context, target tracker.Target) tracker.Outcome
}

// PauseFunc waits for d or until ctx is done.
type PauseFunc func(ctx context.Context, d time.Duration) error

// Observer is told about each report entry as it is recorded. index is 1-based.
type Observer func(index, total int, entry tracker.Entry)

// Config controls batch pacing.
type Config struct {
	Delay time.Duration
	// Pause defaults to a context-aware sleep; tests pass a no-op.
	Pause PauseFunc
	Clock tracker.Clock
}

// Runner executes batches sequentially.
type Runner struct {
	scraper Scraper
	delay   time.Duration
	pause   PauseFunc
	clock   tracker.Clock
	logger  *zap.Logger
}

// NewRunner constructs a Runner. A zero Delay selects DefaultDelay; use a
// no-op Pause to disable pacing.
func NewRunner(scraper Scraper, cfg Config, logger *zap.Logger) *Runner {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.Pause == nil {
		cfg.Pause = system.Sleep
	}
	if cfg.Clock == nil {
		cfg.Clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		scraper: scraper,
		delay:   cfg.Delay,
		pause:   cfg.Pause,
		clock:   cfg.Clock,
		logger:  logger,
	}
}

// Run scrapes every target in order and returns a report with exactly one
// entry per target. If ctx ends mid-batch the remaining targets are recorded
// as unknown failures.
func (r *Runner) Run(ctx context.Context, targets []tracker.Target) tracker.BatchReport {
	return r.RunObserved(ctx, targets, nil)
}

// RunObserved is Run with a per-entry callback. observe may be nil.
func (r *Runner) RunObserved(ctx context.Context, targets []tracker.Target, observe Observer) tracker.BatchReport {
	if observe == nil {
		observe = func(int, int, tracker.Entry) {}
	}
	record := func(report *tracker.BatchReport, target tracker.Target, outcome tracker.Outcome) {
		report.Add(target, outcome)
		observe(len(report.PerTarget), len(targets), report.PerTarget[len(report.PerTarget)-1])
	}
	report := tracker.NewBatchReport(len(targets))
	report.StartedAt = r.clock.Now()
	r.logger.Info("batch started", zap.Int("targets", len(targets)))

	for i, target := range targets {
		if ctx.Err() != nil {
			for _, rest := range targets[i:] {
				record(&report, rest, tracker.Failure(tracker.KindUnknown, "batch canceled"))
			}
			r.logger.Warn("batch canceled", zap.Int("remaining", len(targets)-i))
			break
		}

		outcome := r.scrapeOne(ctx, target)
		record(&report, target, outcome)
		r.logItem(i, len(targets), target, outcome)

		if err := r.pause(ctx, r.delay); err != nil {
			r.logger.Debug("inter-target pause interrupted", zap.Error(err))
		}
	}

	report.FinishedAt = r.clock.Now()
	metrics.ObserveBatch(report.Totals.SuccessCount, report.Totals.ErrorCount, report.FinishedAt.Sub(report.StartedAt))
	r.logger.Info("batch finished",
		zap.Int("count", report.Totals.Count),
		zap.Int("succeeded", report.Totals.SuccessCount),
		zap.Int("failed", report.Totals.ErrorCount),
	)
	return report
}

func (r *Runner) scrapeOne(ctx context.Context, target tracker.Target) (out tracker.Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.ForTarget(r.logger, target.ID, target.ProfileURL).Error("target panicked", zap.Any("panic", rec))
			out = tracker.Failure(tracker.KindUnknown, fmt.Sprintf("panic: %v", rec))
		}
	}()
	return r.scraper.ScrapeOne(ctx, target)
}

func (r *Runner) logItem(i, n int, target tracker.Target, outcome tracker.Outcome) {
	fields := []zap.Field{
		zap.Int("index", i+1),
		zap.Int("of", n),
		zap.String("target_id", target.ID),
		zap.String("name", target.DisplayName),
		zap.Duration("duration", outcome.Duration),
	}
	if outcome.OK() {
		r.logger.Info("target scraped", append(fields, zap.Int64("follower_count", outcome.Profile.FollowerCount))...)
		return
	}
	r.logger.Warn("target failed", append(fields, zap.String("kind", string(outcome.Kind())), zap.Error(outcome.Err))...)
}
