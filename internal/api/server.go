package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/follower-tracker/internal/config"
	"github.com/JakeFAU/follower-tracker/internal/metrics"
	"github.com/JakeFAU/follower-tracker/internal/tracker"
)

const (
	defaultRequestTimeout = 30 * time.Second
	enqueueTimeout        = 5 * time.Second
	maxBodyBytes          = 1 << 20
)

// Enqueuer accepts refresh jobs for the worker.
type Enqueuer interface {
	Enqueue(ctx context.Context, item tracker.QueueItem) error
}

// Scraper runs a single synchronous scrape.
type Scraper interface {
	ScrapeOne(ctx context.Context, target tracker.Target) tracker.Outcome
}

// ReadyFunc reports whether downstream dependencies can serve traffic.
type ReadyFunc func(ctx context.Context) error

// Server wires HTTP handlers to the stores, the job queue and the scraper.
type Server struct {
	router   chi.Router
	profiles tracker.ProfileStore
	jobStore tracker.JobStore
	queue    Enqueuer
	scraper  Scraper
	idGen    tracker.IDGenerator
	clock    tracker.Clock
	ready    ReadyFunc
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. ready may be nil.
func NewServer(
	profiles tracker.ProfileStore,
	jobStore tracker.JobStore,
	queue Enqueuer,
	scraper Scraper,
	idGen tracker.IDGenerator,
	clock tracker.Clock,
	ready ReadyFunc,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		profiles: profiles,
		jobStore: jobStore,
		queue:    queue,
		scraper:  scraper,
		idGen:    idGen,
		clock:    clock,
		ready:    ready,
		logger:   logger,
	}
	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(timeout))
			r.Route("/profiles", func(r chi.Router) {
				r.Get("/", s.listProfiles)
				r.Post("/", s.createProfile)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.getProfile)
					r.Get("/history", s.getHistory)
					r.Post("/counts", s.addCount)
					r.Put("/avatar", s.updateAvatar)
					r.Post("/refresh", s.refreshProfile)
				})
			})
			r.Post("/refresh", s.refreshAll)
			r.Get("/jobs/{job_id}", s.getJob)
		})
		// A test scrape can outlast the request timeout while the browser polls for content.
		r.Post("/scrape/test", s.scrapeTest)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// writeStoreError maps store sentinel errors onto HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, err error, what string) {
	switch {
	case errors.Is(err, tracker.ErrNotFound):
		writeError(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, tracker.ErrConflict):
		writeError(w, http.StatusConflict, what+" already exists")
	default:
		s.logger.Error("store operation failed", zap.String("entity", what), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
