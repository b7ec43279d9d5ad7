// Package scrape runs the single-profile pipeline: validate the URL, open an
// isolated session, load and classify the page, then extract the follower
// count and avatar.
package scrape

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/follower-tracker/internal/extract"
	"github.com/JakeFAU/follower-tracker/internal/logging"
	"github.com/JakeFAU/follower-tracker/internal/metrics"
	"github.com/JakeFAU/follower-tracker/internal/pagestate"
	"github.com/JakeFAU/follower-tracker/internal/snapshot"
	"github.com/JakeFAU/follower-tracker/internal/telemetry"
	"github.com/JakeFAU/follower-tracker/internal/tracker"
)

var usernamePath = regexp.MustCompile(`^/([^/]+)/?$`)

// Waiter delays a request to a URL, typically a per-host rate limiter.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Scraper turns one Target into one Outcome.
type Scraper struct {
	launcher   tracker.Launcher
	classifier *pagestate.Classifier
	engine     *extract.Engine
	limiter    Waiter
	archiver   *snapshot.Archiver
	tracer     trace.Tracer
	logger     *zap.Logger
}

// Option customizes a Scraper.
type Option func(*Scraper)

// WithTracer overrides the tracer used for scrape spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Scraper) {
		s.tracer = t
	}
}

// WithLimiter makes every scrape wait on w before opening a session.
func WithLimiter(w Waiter) Option {
	return func(s *Scraper) {
		s.limiter = w
	}
}

// WithArchiver stores the page HTML when a loaded page yields no count.
func WithArchiver(a *snapshot.Archiver) Option {
	return func(s *Scraper) {
		s.archiver = a
	}
}

// New constructs a Scraper.
func New(
	launcher tracker.Launcher,
	classifier *pagestate.Classifier,
	engine *extract.Engine,
	logger *zap.Logger,
	opts ...Option,
) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if classifier == nil {
		classifier = pagestate.New(pagestate.Config{}, logger)
	}
	if engine == nil {
		engine = extract.NewEngine(logger)
	}
	s := &Scraper{
		launcher:   launcher,
		classifier: classifier,
		engine:     engine,
		tracer:     telemetry.Tracer(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ParseUsername extracts the account name from a profile URL of the form
// https://host/<username>/. Anything else is an invalid_url error.
func ParseUsername(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", tracker.WrapError(tracker.KindInvalidURL, err, fmt.Sprintf("parse %q", rawURL))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", tracker.NewError(tracker.KindInvalidURL, fmt.Sprintf("unsupported scheme in %q", rawURL))
	}
	if u.Host == "" {
		return "", tracker.NewError(tracker.KindInvalidURL, fmt.Sprintf("missing host in %q", rawURL))
	}
	m := usernamePath.FindStringSubmatch(u.Path)
	if m == nil {
		return "", tracker.NewError(tracker.KindInvalidURL, fmt.Sprintf("path of %q is not a single profile segment", rawURL))
	}
	return m[1], nil
}

// ScrapeOne scrapes a single target. It never panics and always returns an
// Outcome; the browser session, when one was opened, is released before return.
func (s *Scraper) ScrapeOne(ctx context.Context, target tracker.Target) (out tracker.Outcome) {
	start := time.Now()
	logger := logging.ForTarget(s.logger, target.ID, target.ProfileURL)
	ctx, span := s.tracer.Start(ctx, "scrape.profile", trace.WithAttributes(
		attribute.String("tracker.target_id", target.ID),
		attribute.String("tracker.profile_url", target.ProfileURL),
	))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("scrape panicked", zap.Any("panic", r))
			out = tracker.Failure(tracker.KindUnknown, fmt.Sprintf("panic: %v", r))
		}
		out.Duration = time.Since(start)
		result := metrics.ResultSuccess
		if !out.OK() {
			result = string(out.Kind())
			span.SetStatus(codes.Error, out.Err.Error())
		}
		span.SetAttributes(attribute.String("tracker.result", result))
		span.End()
		metrics.ObserveScrape(result, out.Duration)
	}()

	username, err := ParseUsername(target.ProfileURL)
	if err != nil {
		logger.Warn("invalid profile url", zap.Error(err))
		return tracker.FailureFromError(err)
	}
	logger = logger.With(zap.String("username", username))

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, target.ProfileURL); err != nil {
			return tracker.FailureFromError(tracker.WrapError(tracker.KindUnknown, err, "rate limit wait"))
		}
	}

	session, err := s.launcher.Acquire(ctx)
	if err != nil {
		logger.Error("acquire browser session failed", zap.Error(err))
		return tracker.FailureFromError(tracker.WrapError(tracker.KindUnknown, err, "acquire browser session"))
	}
	defer func() {
		if err := session.Release(); err != nil {
			logger.Warn("release browser session failed", zap.Error(err))
		}
	}()

	out = s.scrapeSession(ctx, session, target.ProfileURL, username, logger)
	if out.OK() {
		metrics.SetFollowerCount(username, out.Profile.FollowerCount)
		logger.Info("profile scraped",
			zap.Int64("follower_count", out.Profile.FollowerCount),
			zap.Bool("private", out.Profile.IsPrivate),
			zap.Bool("avatar", out.Profile.HasAvatar()),
		)
	} else {
		logger.Warn("profile scrape failed", zap.String("kind", string(out.Kind())), zap.Error(out.Err))
	}
	return out
}

func (s *Scraper) scrapeSession(
	ctx context.Context,
	session tracker.Session,
	profileURL string,
	username string,
	logger *zap.Logger,
) tracker.Outcome {
	load, err := session.Navigate(ctx, profileURL)
	if err != nil {
		return tracker.FailureFromError(err)
	}
	metrics.ObserveContentAttempts(load.Attempts)
	logger.Debug("page loaded", zap.Int("status", load.Status), zap.Int("attempt", load.Attempts))

	page := session.Page()
	state, err := s.classifier.Classify(ctx, page)
	if err != nil {
		return tracker.FailureFromError(tracker.WrapError(tracker.KindUnknown, err, "classify page"))
	}
	switch state {
	case pagestate.LoginWall:
		return tracker.Failure(tracker.KindLoginWall, fmt.Sprintf("redirected to login at %s", page.URL()))
	case pagestate.NotFound:
		return tracker.Failure(tracker.KindNotFound, fmt.Sprintf("profile %s is not available", username))
	}
	private := state == pagestate.Private

	count, source := s.engine.FollowerCount(ctx, page)
	if count == 0 && !private {
		out := tracker.Failure(tracker.KindExtractionFailure, "no follower count found on loaded page")
		uri, err := s.archiver.Archive(ctx, username, page)
		if err != nil {
			logger.Warn("archive page snapshot failed", zap.Error(err))
		}
		out.SnapshotURI = uri
		return out
	}
	logger.Debug("follower count extracted", zap.String("strategy", source), zap.Int64("count", count))

	return tracker.Success(tracker.ExtractedProfile{
		Username:      username,
		FollowerCount: count,
		AvatarURL:     s.engine.AvatarURL(ctx, page),
		IsPrivate:     private,
	})
}
