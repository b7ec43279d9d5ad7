package scrape_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/JakeFAU/follower-tracker/internal/browser"
	"github.com/JakeFAU/follower-tracker/internal/hash/sha256"
	"github.com/JakeFAU/follower-tracker/internal/scrape"
	"github.com/JakeFAU/follower-tracker/internal/snapshot"
	"github.com/JakeFAU/follower-tracker/internal/storage/memory"
	"github.com/JakeFAU/follower-tracker/internal/tracker"
)

const (
	profileURL = "https://www.instagram.com/someone/"

	publicPage = `<html><body><main><header>
<img alt="someone's profile picture" src="https://cdn.example.com/someone.jpg">
<a href="/someone/followers/"><span title="1,234">1,234</span> followers</a>
</header></main></body></html>`

	privatePage = `<html><body><main><h2>This account is private</h2></main></body></html>`

	driftedPage = `<html><body><main><h2>Welcome back</h2></main></body></html>`

	missingPage = `<html><body><main><h2>Sorry, this page isn't available.</h2></main></body></html>`
)

type fakeSession struct {
	url         string
	body        string
	navigateErr error
	panicMsg    string
	released    int
	page        tracker.Page
}

func (s *fakeSession) Navigate(_ context.Context, _ string) (tracker.LoadResult, error) {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.navigateErr != nil {
		return tracker.LoadResult{}, s.navigateErr
	}
	page, err := browser.NewDocumentPage(s.url, s.body)
	if err != nil {
		return tracker.LoadResult{}, err
	}
	s.page = page
	return tracker.LoadResult{Status: 200, FinalURL: s.url, Attempts: 1}, nil
}

func (s *fakeSession) Page() tracker.Page {
	return s.page
}

func (s *fakeSession) Release() error {
	s.released++
	return nil
}

type fakeLauncher struct {
	mu         sync.Mutex
	newSession func() *fakeSession
	acquireErr error
	sessions   []*fakeSession
}

func (l *fakeLauncher) Acquire(context.Context) (tracker.Session, error) {
	if l.acquireErr != nil {
		return nil, l.acquireErr
	}
	s := l.newSession()
	l.mu.Lock()
	l.sessions = append(l.sessions, s)
	l.mu.Unlock()
	return s, nil
}

func (l *fakeLauncher) Mode() string {
	return "fake"
}

func pageLauncher(url, body string) *fakeLauncher {
	return &fakeLauncher{newSession: func() *fakeSession {
		return &fakeSession{url: url, body: body}
	}}
}

func assertAllReleased(t *testing.T, l *fakeLauncher) {
	t.Helper()
	for i, s := range l.sessions {
		assert.Equal(t, 1, s.released, "session %d release count", i)
	}
}

type recordingLimiter struct {
	calls []string
	err   error
}

func (r *recordingLimiter) Wait(_ context.Context, rawURL string) error {
	r.calls = append(r.calls, rawURL)
	return r.err
}

func TestParseUsername(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "https://www.instagram.com/someone/", want: "someone"},
		{raw: "https://www.instagram.com/some.one", want: "some.one"},
		{raw: "https://www.instagram.com/someone/?hl=en", want: "someone"},
		{raw: "https://www.instagram.com/", wantErr: true},
		{raw: "https://www.instagram.com/someone/reels/", wantErr: true},
		{raw: "ftp://www.instagram.com/someone/", wantErr: true},
		{raw: "/someone/", wantErr: true},
		{raw: "::not a url", wantErr: true},
	}
	for _, tt := range tests {
		got, err := scrape.ParseUsername(tt.raw)
		if tt.wantErr {
			require.Error(t, err, tt.raw)
			assert.Equal(t, tracker.KindInvalidURL, tracker.KindOf(err), tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got)
	}
}

func TestScrapeOneSuccess(t *testing.T) {
	t.Parallel()

	launcher := pageLauncher(profileURL, publicPage)
	s := scrape.New(launcher, nil, nil, nil)

	out := s.ScrapeOne(context.Background(), tracker.Target{ID: "p1", ProfileURL: profileURL})
	require.True(t, out.OK(), "unexpected failure: %v", out.Err)
	assert.Equal(t, tracker.ExtractedProfile{
		Username:      "someone",
		FollowerCount: 1234,
		AvatarURL:     "https://cdn.example.com/someone.jpg",
	}, *out.Profile)
	assert.Positive(t, out.Duration)
	assertAllReleased(t, launcher)
}

func TestScrapeOnePrivateWithoutCountSucceeds(t *testing.T) {
	t.Parallel()

	launcher := pageLauncher(profileURL, privatePage)
	out := scrape.New(launcher, nil, nil, nil).ScrapeOne(context.Background(), tracker.Target{ProfileURL: profileURL})

	require.True(t, out.OK())
	assert.True(t, out.Profile.IsPrivate)
	assert.Zero(t, out.Profile.FollowerCount)
	assertAllReleased(t, launcher)
}

func TestScrapeOneLoadedWithoutCountIsExtractionFailure(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	archiver := snapshot.New(blobs, sha256.New(), "snapshots", nil)
	launcher := pageLauncher(profileURL, driftedPage)
	s := scrape.New(launcher, nil, nil, nil, scrape.WithArchiver(archiver))

	out := s.ScrapeOne(context.Background(), tracker.Target{ProfileURL: profileURL})
	require.False(t, out.OK())
	assert.Equal(t, tracker.KindExtractionFailure, out.Kind())
	require.NotEmpty(t, out.SnapshotURI)
	require.Len(t, blobs.Paths(), 1)
	assert.Equal(t, "memory://"+blobs.Paths()[0], out.SnapshotURI)
	assertAllReleased(t, launcher)
}

func TestScrapeOneClassifiedFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		body string
		want tracker.ErrorKind
	}{
		{
			name: "login wall",
			url:  "https://www.instagram.com/accounts/login/?next=/someone/",
			body: publicPage,
			want: tracker.KindLoginWall,
		},
		{
			name: "not found",
			url:  profileURL,
			body: missingPage,
			want: tracker.KindNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			launcher := pageLauncher(tt.url, tt.body)
			out := scrape.New(launcher, nil, nil, nil).ScrapeOne(context.Background(), tracker.Target{ProfileURL: profileURL})
			assert.Equal(t, tt.want, out.Kind())
			assert.Nil(t, out.Profile)
			assertAllReleased(t, launcher)
		})
	}
}

func TestScrapeOneInvalidURLSkipsBrowser(t *testing.T) {
	t.Parallel()

	launcher := pageLauncher(profileURL, publicPage)
	limiter := &recordingLimiter{}
	s := scrape.New(launcher, nil, nil, nil, scrape.WithLimiter(limiter))

	out := s.ScrapeOne(context.Background(), tracker.Target{ProfileURL: "https://www.instagram.com/a/b/c"})
	assert.Equal(t, tracker.KindInvalidURL, out.Kind())
	assert.Empty(t, launcher.sessions)
	assert.Empty(t, limiter.calls)
}

func TestScrapeOneNavigationFailureKeepsStatus(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{newSession: func() *fakeSession {
		return &fakeSession{navigateErr: tracker.PageLoadError(404, nil, "unexpected status")}
	}}
	out := scrape.New(launcher, nil, nil, nil).ScrapeOne(context.Background(), tracker.Target{ProfileURL: profileURL})

	assert.Equal(t, tracker.KindPageLoadFailure, out.Kind())
	assert.Equal(t, 404, out.Err.Status)
	assertAllReleased(t, launcher)
}

func TestScrapeOneAcquireFailureIsUnknown(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{acquireErr: errors.New("chrome not found")}
	out := scrape.New(launcher, nil, nil, nil).ScrapeOne(context.Background(), tracker.Target{ProfileURL: profileURL})

	assert.Equal(t, tracker.KindUnknown, out.Kind())
	assert.ErrorContains(t, out.Err, "acquire browser session")
}

func TestScrapeOneRecoversPanics(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{newSession: func() *fakeSession {
		return &fakeSession{panicMsg: "boom"}
	}}
	out := scrape.New(launcher, nil, nil, nil).ScrapeOne(context.Background(), tracker.Target{ProfileURL: profileURL})

	assert.Equal(t, tracker.KindUnknown, out.Kind())
	assert.Contains(t, out.Err.Message, "boom")
	assertAllReleased(t, launcher)
}

func TestScrapeOneLimiter(t *testing.T) {
	t.Parallel()

	launcher := pageLauncher(profileURL, publicPage)
	limiter := &recordingLimiter{}
	out := scrape.New(launcher, nil, nil, nil, scrape.WithLimiter(limiter)).
		ScrapeOne(context.Background(), tracker.Target{ProfileURL: profileURL})
	require.True(t, out.OK())
	assert.Equal(t, []string{profileURL}, limiter.calls)

	blocked := &recordingLimiter{err: context.Canceled}
	launcher = pageLauncher(profileURL, publicPage)
	out = scrape.New(launcher, nil, nil, nil, scrape.WithLimiter(blocked)).
		ScrapeOne(context.Background(), tracker.Target{ProfileURL: profileURL})
	assert.Equal(t, tracker.KindUnknown, out.Kind())
	assert.Empty(t, launcher.sessions)
}

func TestScrapeOneIsDeterministic(t *testing.T) {
	t.Parallel()

	launcher := pageLauncher(profileURL, publicPage)
	s := scrape.New(launcher, nil, nil, nil)
	first := s.ScrapeOne(context.Background(), tracker.Target{ProfileURL: profileURL})
	second := s.ScrapeOne(context.Background(), tracker.Target{ProfileURL: profileURL})

	require.True(t, first.OK())
	require.True(t, second.OK())
	assert.Equal(t, *first.Profile, *second.Profile)
	assert.Len(t, launcher.sessions, 2)
	assertAllReleased(t, launcher)
}

func TestScrapeOneRecordsSpan(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := tp.Tracer("test")

	ok := scrape.New(pageLauncher(profileURL, publicPage), nil, nil, nil, scrape.WithTracer(tracer))
	ok.ScrapeOne(context.Background(), tracker.Target{ID: "p1", ProfileURL: profileURL})
	bad := scrape.New(pageLauncher(profileURL, missingPage), nil, nil, nil, scrape.WithTracer(tracer))
	bad.ScrapeOne(context.Background(), tracker.Target{ID: "p2", ProfileURL: profileURL})

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "scrape.profile", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Contains(t, spans[1].Attributes(), attribute.String("tracker.result", string(tracker.KindNotFound)))
}
