package browser

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/follower-tracker/internal/tracker"
)

// staticLauncher serves sessions backed by plain HTTP fetches. No JavaScript runs,
// so it only sees server-rendered markup.
type staticLauncher struct {
	cfg    Config
	logger *zap.Logger
	base   *colly.Collector
}

func newStaticLauncher(cfg Config, logger *zap.Logger) *staticLauncher {
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.UserAgent(cfg.UserAgent),
	)
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.NavigationTimeout)
	return &staticLauncher{cfg: cfg, logger: logger.Named("static"), base: c}
}

func (l *staticLauncher) Mode() string {
	return string(ModeStatic)
}

// Acquire returns a session with its own cookie-less collector clone.
func (l *staticLauncher) Acquire(_ context.Context) (tracker.Session, error) {
	blank, err := NewDocumentPage("about:blank", "")
	if err != nil {
		return nil, err
	}
	return &staticSession{cfg: l.cfg, logger: l.logger, base: l.base, page: blank}, nil
}

type staticSession struct {
	cfg    Config
	logger *zap.Logger
	base   *colly.Collector

	mu       sync.RWMutex
	page     *DocumentPage
	released bool
}

type staticResponse struct {
	status   int
	finalURL string
	body     string
}

func (s *staticSession) Page() tracker.Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.page
}

// Navigate fetches url, re-fetching until the content markers appear or the
// retry budget is spent.
func (s *staticSession) Navigate(ctx context.Context, url string) (tracker.LoadResult, error) {
	s.mu.RLock()
	released := s.released
	s.mu.RUnlock()
	if released {
		return tracker.LoadResult{}, tracker.NewError(tracker.KindUnknown, "session already released")
	}
	var status int
	for attempt := 1; attempt <= s.cfg.ContentRetries; attempt++ {
		resp, err := s.fetch(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return tracker.LoadResult{}, tracker.WrapError(tracker.KindUnknown, ctx.Err(), "navigation canceled")
			}
			return tracker.LoadResult{}, tracker.PageLoadError(resp.status, err, "navigation failed: "+err.Error())
		}
		status = resp.status
		if status < 200 || status >= 300 {
			return tracker.LoadResult{Status: status}, tracker.PageLoadError(status, nil,
				fmt.Sprintf("unexpected status %d", status))
		}

		page, err := NewDocumentPage(resp.finalURL, resp.body)
		if err != nil {
			return tracker.LoadResult{Status: status}, tracker.WrapError(tracker.KindUnknown, err, "parse page")
		}
		if page.HasAny(s.cfg.ContentMarkers) {
			s.mu.Lock()
			s.page = page
			s.mu.Unlock()
			return tracker.LoadResult{Status: status, FinalURL: resp.finalURL, Attempts: attempt}, nil
		}

		s.logger.Debug("content markers not ready",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.cfg.ContentRetries),
		)
		if attempt < s.cfg.ContentRetries {
			if err := s.cfg.Pause(ctx, s.cfg.ContentBackoff); err != nil {
				return tracker.LoadResult{Status: status}, tracker.WrapError(tracker.KindUnknown, err, "content wait canceled")
			}
		}
	}
	return tracker.LoadResult{Status: status, Attempts: s.cfg.ContentRetries}, tracker.NewError(tracker.KindContentNotReady,
		fmt.Sprintf("content markers missing after %d attempts", s.cfg.ContentRetries))
}

func (s *staticSession) fetch(ctx context.Context, url string) (staticResponse, error) {
	var (
		result   staticResponse
		fetchErr error
	)
	collector := s.base.Clone()
	collector.OnRequest(func(r *colly.Request) {
		for key, value := range s.cfg.Headers {
			r.Headers.Set(key, value)
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		result = staticResponse{
			status:   r.StatusCode,
			finalURL: r.Request.URL.String(),
			body:     string(r.Body),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return staticResponse{}, fmt.Errorf("static fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return result, fmt.Errorf("colly visit failed: %w", err)
		}
		if fetchErr != nil {
			return result, fmt.Errorf("colly response failed: %w", fetchErr)
		}
		return result, nil
	}
}

// Release marks the session closed; later navigations fail.
func (s *staticSession) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	return nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
