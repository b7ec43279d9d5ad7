package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/follower-tracker/internal/config"
	"github.com/JakeFAU/follower-tracker/internal/dispatcher"
	queueMemory "github.com/JakeFAU/follower-tracker/internal/queue/memory"
	"github.com/JakeFAU/follower-tracker/internal/storage/memory"
	"github.com/JakeFAU/follower-tracker/internal/tracker"
)

type testEnv struct {
	server   *Server
	profiles *memory.ProfileStore
	jobs     *memory.JobStore
	queue    *queueMemory.Queue
	scraper  *fakeScraper
	now      time.Time
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: now}
	env := &testEnv{
		profiles: memory.NewProfileStore(),
		jobs:     memory.NewJobStore(clock),
		queue:    queueMemory.NewQueue(1),
		scraper:  &fakeScraper{},
		now:      now,
	}
	cfg := config.Config{Server: config.ServerConfig{Port: 8080, RequestTimeout: 5 * time.Second}}
	if mutate != nil {
		mutate(&cfg)
	}
	env.server = NewServer(
		env.profiles,
		env.jobs,
		dispatcher.New(env.queue),
		env.scraper,
		&fakeIDGen{},
		clock,
		nil,
		cfg,
		zap.NewNop(),
	)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestServer_ReadyzReportsFailures(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.server.ready = func(context.Context) error { return errors.New("db down") }
	rec := env.do(t, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	env.server.ready = nil
	rec = env.do(t, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.do(t, http.MethodGet, "/healthz", "")
	rec := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_RefreshAllEnqueuesJob(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/v1/refresh", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	decodeBody(t, rec, &resp)
	jobID := resp["job_id"]
	require.NotEmpty(t, jobID)

	item, err := env.queue.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, jobID, item.JobID)
	assert.Equal(t, tracker.JobKindRefreshAll, item.Kind)

	rec = env.do(t, http.MethodGet, "/v1/jobs/"+jobID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var jobResp struct {
		Job tracker.Job `json:"job"`
	}
	decodeBody(t, rec, &jobResp)
	assert.Equal(t, tracker.JobStatusQueued, jobResp.Job.Status)
	assert.Equal(t, env.now, jobResp.Job.Submitted)
}

func TestServer_RefreshQueueFull(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(c *config.Config) { c.Server.RequestTimeout = 10 * time.Second })
	require.NoError(t, env.queue.Enqueue(context.Background(), tracker.QueueItem{JobID: "blocking"}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/v1/refresh", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_RefreshProfile(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/v1/profiles/missing/refresh", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, env.profiles.CreateProfile(context.Background(), tracker.Profile{
		ID: "p1", Name: "One", ProfileURL: "https://www.instagram.com/one/", CreatedAt: env.now,
	}))
	rec = env.do(t, http.MethodPost, "/v1/profiles/p1/refresh", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	item, err := env.queue.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tracker.JobKindRefreshOne, item.Kind)
	assert.Equal(t, "p1", item.TargetID)
}

func TestServer_GetJobNotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/v1/jobs/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ScrapeTest(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.scraper.outcome = tracker.Success(tracker.ExtractedProfile{Username: "someone", FollowerCount: 321})

	rec := env.do(t, http.MethodPost, "/v1/scrape/test", `{"profile_url":"https://www.instagram.com/someone/"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		OK      bool            `json:"ok"`
		Outcome tracker.Outcome `json:"outcome"`
	}
	decodeBody(t, rec, &resp)
	assert.True(t, resp.OK)
	require.NotNil(t, resp.Outcome.Profile)
	assert.Equal(t, int64(321), resp.Outcome.Profile.FollowerCount)
	assert.Equal(t, []string{"https://www.instagram.com/someone/"}, env.scraper.urls())

	targets, err := env.profiles.ListTargets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, targets, "test scrapes must not persist")

	rec = env.do(t, http.MethodPost, "/v1/scrape/test", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ScrapeTestReportsFailureKind(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.scraper.outcome = tracker.Failure(tracker.KindLoginWall, "redirected to login")

	rec := env.do(t, http.MethodPost, "/v1/scrape/test", `{"profile_url":"https://www.instagram.com/someone/"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"login_wall"`)
	assert.Contains(t, rec.Body.String(), `"ok":false`)
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(c *config.Config) {
		c.Auth = config.AuthConfig{Enabled: true, APIKey: "secret"}
	})

	rec := env.do(t, http.MethodGet, "/v1/profiles", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/profiles", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code, "probes stay unauthenticated")
}

func TestServer_RecoversHandlerPanics(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.scraper.panicMsg = "boom"
	rec := env.do(t, http.MethodPost, "/v1/scrape/test", `{"profile_url":"https://www.instagram.com/someone/"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/healthz", "")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "caller-id")
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, "caller-id", rec.Header().Get("X-Request-ID"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rw.Hijack()
	require.EqualError(t, err, "hijacker not supported")

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.NoError(t, h.CloseClient())
	require.NotNil(t, buf)
}

// --- helpers/fakes ---

type fakeIDGen struct {
	mu sync.Mutex
	n  int
}

func (f *fakeIDGen) NewID() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	return fmt.Sprintf("id-%d", f.n), nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type fakeScraper struct {
	mu       sync.Mutex
	outcome  tracker.Outcome
	panicMsg string
	seen     []string
}

func (f *fakeScraper) ScrapeOne(_ context.Context, target tracker.Target) tracker.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.seen = append(f.seen, target.ProfileURL)
	return f.outcome
}

func (f *fakeScraper) urls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}
