// Package server wires configuration into a runnable tracker application.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/follower-tracker/internal/api"
	"github.com/JakeFAU/follower-tracker/internal/batch"
	"github.com/JakeFAU/follower-tracker/internal/browser"
	"github.com/JakeFAU/follower-tracker/internal/clock/system"
	"github.com/JakeFAU/follower-tracker/internal/config"
	"github.com/JakeFAU/follower-tracker/internal/dispatcher"
	"github.com/JakeFAU/follower-tracker/internal/extract"
	"github.com/JakeFAU/follower-tracker/internal/hash/sha256"
	"github.com/JakeFAU/follower-tracker/internal/id/uuid"
	"github.com/JakeFAU/follower-tracker/internal/logging"
	"github.com/JakeFAU/follower-tracker/internal/metrics"
	"github.com/JakeFAU/follower-tracker/internal/pagestate"
	"github.com/JakeFAU/follower-tracker/internal/policy/ratelimit"
	"github.com/JakeFAU/follower-tracker/internal/progress"
	progresssinks "github.com/JakeFAU/follower-tracker/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/follower-tracker/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/follower-tracker/internal/publisher/pubsub"
	queuememory "github.com/JakeFAU/follower-tracker/internal/queue/memory"
	"github.com/JakeFAU/follower-tracker/internal/scrape"
	"github.com/JakeFAU/follower-tracker/internal/snapshot"
	gcsstorage "github.com/JakeFAU/follower-tracker/internal/storage/gcs"
	localstorage "github.com/JakeFAU/follower-tracker/internal/storage/local"
	memorystorage "github.com/JakeFAU/follower-tracker/internal/storage/memory"
	pgstore "github.com/JakeFAU/follower-tracker/internal/storage/postgres"
	"github.com/JakeFAU/follower-tracker/internal/telemetry"
	"github.com/JakeFAU/follower-tracker/internal/tracker"
	"github.com/JakeFAU/follower-tracker/internal/worker"
)

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	apiServer    *api.Server
	dispatch     *dispatcher.Dispatcher
	queue        *queuememory.Queue
	worker       *worker.Worker
	scraper      *scrape.Scraper
	jobStore     *memorystorage.JobStore
	profiles     tracker.ProfileStore
	ids          tracker.IDGenerator
	clock        tracker.Clock
	pubsubClient *pubsub.Client
	gcpPublisher *gcppublisher.Publisher
	storage      *storage.Client
	tracer       *sdktrace.TracerProvider
	progressHub  *progress.Hub
	closeOnce    sync.Once
}

// Build creates the application's dependencies and replaces the global zap logger.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{
		cfg:    cfg,
		logger: logger,
		ids:    uuid.New(),
		clock:  system.New(),
	}
	logger.Info("building application",
		zap.Int("port", cfg.Server.Port),
		zap.String("browser_mode", cfg.Browser.Mode),
		zap.String("storage_backend", cfg.Storage.Backend),
	)

	if err = setupTelemetry(ctx, app); err != nil {
		return nil, err
	}
	blobs, err := setupStorage(ctx, app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	if err = setupDatabase(ctx, app); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	if err = setupScraper(app, blobs); err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	app.jobStore = memorystorage.NewJobStore(app.clock)
	var emitter progress.Emitter
	if cfg.Progress.Enabled {
		app.progressHub = setupProgress(app)
		emitter = app.progressHub
	}
	app.queue = queuememory.NewQueue(cfg.Batch.QueueDepth)
	runner := batch.NewRunner(app.scraper, batch.Config{Delay: cfg.Batch.Delay, Clock: app.clock}, logger.Named("batch"))
	app.worker = worker.New(
		app.queue,
		app.jobStore,
		app.profiles,
		app.scraper,
		runner,
		publisher,
		app.ids,
		app.clock,
		worker.Config{Topic: cfg.PubSub.TopicName, Progress: emitter},
		logger.Named("worker"),
	)
	app.dispatch = dispatcher.New(app.queue, app.worker)

	app.apiServer = api.NewServer(
		app.profiles,
		app.jobStore,
		app.dispatch,
		app.scraper,
		app.ids,
		app.clock,
		app.ready,
		cfg,
		logger.Named("api"),
	)
	return app, nil
}

// Handler exposes the HTTP API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Profiles returns the configured profile store.
func (a *App) Profiles() tracker.ProfileStore {
	return a.profiles
}

// Run serves HTTP and processes queued jobs until ctx is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started")
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	a.queue.Close()
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("dispatcher did not stop before shutdown timeout")
	}
	return a.Close()
}

// RefreshAll runs a refresh_all job synchronously and returns the finished job.
func (a *App) RefreshAll(ctx context.Context) (tracker.Job, error) {
	return a.runJob(ctx, tracker.JobKindRefreshAll, "")
}

// RefreshProfile runs a refresh_one job synchronously for profileID.
func (a *App) RefreshProfile(ctx context.Context, profileID string) (tracker.Job, error) {
	return a.runJob(ctx, tracker.JobKindRefreshOne, profileID)
}

func (a *App) runJob(ctx context.Context, kind tracker.JobKind, targetID string) (tracker.Job, error) {
	jobID, err := a.ids.NewID()
	if err != nil {
		return tracker.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	now := a.clock.Now()
	job := tracker.Job{ID: jobID, Kind: kind, TargetID: targetID, Status: tracker.JobStatusQueued, Submitted: now}
	if err := a.jobStore.CreateJob(ctx, job); err != nil {
		return tracker.Job{}, fmt.Errorf("create job: %w", err)
	}
	a.worker.Process(ctx, tracker.QueueItem{JobID: jobID, Kind: kind, TargetID: targetID, Submitted: now.Unix()})
	return a.jobStore.GetJob(context.WithoutCancel(ctx), jobID)
}

// AddProfile registers a profile to track. The URL must name a single profile page.
func (a *App) AddProfile(ctx context.Context, name, profileURL string) (tracker.Profile, error) {
	if _, err := scrape.ParseUsername(profileURL); err != nil {
		return tracker.Profile{}, err
	}
	id, err := a.ids.NewID()
	if err != nil {
		return tracker.Profile{}, fmt.Errorf("generate profile id: %w", err)
	}
	profile := tracker.Profile{
		ID:         id,
		Name:       strings.TrimSpace(name),
		ProfileURL: profileURL,
		CreatedAt:  a.clock.Now().UTC(),
	}
	if err := a.profiles.CreateProfile(ctx, profile); err != nil {
		return tracker.Profile{}, fmt.Errorf("create profile: %w", err)
	}
	return profile, nil
}

// ScrapeURL scrapes one profile page without persisting anything.
func (a *App) ScrapeURL(ctx context.Context, profileURL string) tracker.Outcome {
	return a.scraper.ScrapeOne(ctx, tracker.Target{ProfileURL: profileURL})
}

// Close releases infrastructure clients and flushes the logger. Repeated calls are no-ops.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		if a.queue != nil {
			a.queue.Close()
		}
		if a.progressHub != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := a.progressHub.Close(ctx); err != nil {
				a.logger.Warn("progress hub close failed", zap.Error(err))
			}
			cancel()
		}
		a.closeInfrastructure()
		a.logger.Info("shutdown complete")
		if err := a.logger.Sync(); err != nil {
			a.logger.Debug("logger sync failed", zap.Error(err))
		}
	})
	return nil
}

func (a *App) closeInfrastructure() {
	if a.gcpPublisher != nil {
		a.gcpPublisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.profiles != nil {
		if err := a.profiles.Close(); err != nil {
			a.logger.Warn("profile store close failed", zap.Error(err))
		}
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
}

func (a *App) ready(ctx context.Context) error {
	if _, err := a.profiles.ListTargets(ctx); err != nil {
		return fmt.Errorf("profile store: %w", err)
	}
	return nil
}

func setupProgress(app *App) *progress.Hub {
	sinkList := []progress.Sink{progresssinks.NewJobSink(app.jobStore)}
	if app.cfg.Progress.LogEvents {
		sinkList = append(sinkList, progresssinks.NewLogSink(app.logger.Named("progress")))
	}
	hub := progress.NewHub(progress.Config{
		BufferSize:   app.cfg.Progress.BufferSize,
		MaxBatchWait: app.cfg.Progress.MaxBatchWait,
		Logger:       app.logger.Named("progress_hub"),
	}, sinkList...)
	app.logger.Info("progress hub initialized", zap.Int("sinks", len(sinkList)))
	return hub
}

func setupTelemetry(ctx context.Context, app *App) error {
	if !app.cfg.Telemetry.Enabled {
		return nil
	}
	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: app.cfg.Telemetry.ServiceName,
		ProjectID:   app.cfg.Telemetry.ProjectID,
		SampleRatio: app.cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracer = tp
	app.logger.Info("tracing enabled",
		zap.String("project", app.cfg.Telemetry.ProjectID),
		zap.Float64("sample_ratio", app.cfg.Telemetry.SampleRatio),
	)
	return nil
}

func setupStorage(ctx context.Context, app *App) (tracker.BlobStore, error) {
	switch app.cfg.Storage.Backend {
	case config.StorageGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.storage = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: app.cfg.Storage.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Info("using GCS snapshot storage", zap.String("bucket", app.cfg.Storage.Bucket))
		return blobs, nil
	case config.StorageLocal:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: app.cfg.Storage.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Info("using local snapshot storage", zap.String("path", app.cfg.Storage.Local.BaseDir))
		return blobs, nil
	default:
		app.logger.Info("using in-memory snapshot storage")
		return memorystorage.NewBlobStore(), nil
	}
}

func setupDatabase(ctx context.Context, app *App) error {
	if app.cfg.Database.DSN == "" {
		app.logger.Warn("no database DSN configured, profiles are kept in memory")
		app.profiles = memorystorage.NewProfileStore()
		return nil
	}
	store, err := pgstore.NewProfileStore(ctx, pgstore.Config{
		DSN:             app.cfg.Database.DSN,
		MaxConns:        app.cfg.Database.MaxConns,
		MinConns:        app.cfg.Database.MinConns,
		MaxConnLifetime: app.cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("profile store init failed: %w", err)
	}
	app.profiles = store
	if app.cfg.Database.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("profile store migrate failed: %w", err)
		}
	}
	app.logger.Info("postgres profile store initialized", zap.Bool("auto_migrate", app.cfg.Database.AutoMigrate))
	return nil
}

func setupPublisher(ctx context.Context, app *App) (tracker.Publisher, error) {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Info("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubClient = client
	app.gcpPublisher = gcppublisher.New(client)
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return app.gcpPublisher, nil
}

func setupScraper(app *App, blobs tracker.BlobStore) error {
	mode, err := browser.ParseMode(app.cfg.Browser.Mode)
	if err != nil {
		return err
	}
	bc := app.cfg.Browser
	launcher, err := browser.NewLauncher(browser.Config{
		Mode:               mode,
		ExecPath:           bc.ExecPath,
		RemoteURL:          bc.RemoteURL,
		UserAgent:          bc.UserAgent,
		NavigationTimeout:  bc.NavTimeout,
		ContentRetries:     bc.ContentRetries,
		ContentBackoff:     bc.ContentBackoff,
		ContentWaitTimeout: bc.ContentWaitTimeout,
		ContentMarkers:     bc.ContentMarkers,
		ViewportWidth:      bc.ViewportWidth,
		ViewportHeight:     bc.ViewportHeight,
	}, app.logger.Named("browser"))
	if err != nil {
		return fmt.Errorf("browser launcher init failed: %w", err)
	}

	opts := []scrape.Option{
		scrape.WithArchiver(snapshot.New(blobs, sha256.New(), app.cfg.Storage.Prefix, app.logger.Named("snapshot"))),
	}
	if app.cfg.RateLimit.Enabled {
		opts = append(opts, scrape.WithLimiter(ratelimit.New(ratelimit.Config{
			Interval: app.cfg.RateLimit.Interval,
			Burst:    app.cfg.RateLimit.Burst,
		})))
		app.logger.Info("rate limiter enabled",
			zap.Duration("interval", app.cfg.RateLimit.Interval),
			zap.Int("burst", app.cfg.RateLimit.Burst),
		)
	}

	classifier := pagestate.New(pagestate.Config{LoginPath: bc.LoginPath}, app.logger.Named("pagestate"))
	engine := extract.NewEngine(app.logger.Named("extract"))
	app.scraper = scrape.New(launcher, classifier, engine, app.logger.Named("scrape"), opts...)
	app.logger.Info("scraper ready", zap.String("mode", launcher.Mode()))
	return nil
}
