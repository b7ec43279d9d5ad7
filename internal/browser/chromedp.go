package browser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/follower-tracker/internal/tracker"
)

const hideWebdriverScript = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

// chromeLauncher starts a fresh browser (or a fresh browser context on a remote
// browser) for every session.
type chromeLauncher struct {
	cfg    Config
	logger *zap.Logger
}

func newChromeLauncher(cfg Config, logger *zap.Logger) *chromeLauncher {
	return &chromeLauncher{cfg: cfg, logger: logger.Named("chrome")}
}

func (l *chromeLauncher) Mode() string {
	return string(l.cfg.Mode)
}

// Acquire starts the browser and returns a session bound to a new tab.
func (l *chromeLauncher) Acquire(ctx context.Context) (tracker.Session, error) {
	var (
		cancels []context.CancelFunc
		tabCtx  context.Context
	)
	cleanup := func() {
		for i := len(cancels) - 1; i >= 0; i-- {
			cancels[i]()
		}
	}

	if l.cfg.Mode == ModeRestricted && l.cfg.RemoteURL != "" {
		allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.WithoutCancel(ctx), l.cfg.RemoteURL)
		browserCtx, browserCancel := chromedp.NewContext(allocCtx)
		cancels = append(cancels, allocCancel, browserCancel)
		if err := chromedp.Run(browserCtx); err != nil {
			cleanup()
			return nil, fmt.Errorf("connect remote browser: %w", err)
		}
		var tabCancel context.CancelFunc
		tabCtx, tabCancel = chromedp.NewContext(browserCtx, chromedp.WithNewBrowserContext())
		cancels = append(cancels, tabCancel)
	} else {
		allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), execOptions(l.cfg)...)
		var tabCancel context.CancelFunc
		tabCtx, tabCancel = chromedp.NewContext(allocCtx)
		cancels = append(cancels, allocCancel, tabCancel)
	}

	if err := chromedp.Run(tabCtx); err != nil {
		cleanup()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	s := &chromeSession{
		cfg:     l.cfg,
		logger:  l.logger,
		tabCtx:  tabCtx,
		cleanup: cleanup,
		meta:    newResponseMeta(),
	}
	s.page = &chromePage{session: s}
	chromedp.ListenTarget(tabCtx, s.meta.captureEvent)
	l.logger.Debug("browser session acquired", zap.String("mode", string(l.cfg.Mode)))
	return s, nil
}

// chromeFlags returns the command line switches for the exec allocator.
func chromeFlags(cfg Config) map[string]any {
	flags := map[string]any{
		"headless":                 true,
		"no-sandbox":               true,
		"disable-setuid-sandbox":   true,
		"disable-dev-shm-usage":    true,
		"disable-gpu":              true,
		"disable-blink-features":   "AutomationControlled",
		"disable-features":         "VizDisplayCompositor,site-per-process",
		"disable-web-security":     true,
		"enable-automation":        false,
		"hide-scrollbars":          true,
		"mute-audio":               true,
		"no-first-run":             true,
		"no-default-browser-check": true,
	}
	if cfg.Mode == ModeRestricted {
		flags["single-process"] = true
		flags["no-zygote"] = true
		flags["disable-extensions"] = true
	}
	return flags
}

func execOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	flags := chromeFlags(cfg)
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}
	opts = append(opts,
		chromedp.UserAgent(cfg.UserAgent),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

type chromeSession struct {
	cfg     Config
	logger  *zap.Logger
	tabCtx  context.Context
	cleanup func()
	meta    *responseMeta
	page    *chromePage

	releaseOnce sync.Once
	releaseErr  error
}

func (s *chromeSession) Page() tracker.Page {
	return s.page
}

// Navigate loads url under the navigation timeout, checks the document status and
// then polls for content markers.
func (s *chromeSession) Navigate(ctx context.Context, url string) (tracker.LoadResult, error) {
	s.meta.reset()

	navCtx, cancel := context.WithTimeout(s.tabCtx, s.cfg.NavigationTimeout)
	defer cancel()
	stopForward := forwardCancel(ctx, cancel)
	defer stopForward()

	if err := chromedp.Run(navCtx, s.setupAction(), chromedp.Navigate(url)); err != nil {
		switch {
		case ctx.Err() != nil:
			return tracker.LoadResult{}, tracker.WrapError(tracker.KindUnknown, ctx.Err(), "navigation canceled")
		case errors.Is(navCtx.Err(), context.DeadlineExceeded):
			return tracker.LoadResult{}, tracker.PageLoadError(0, err,
				fmt.Sprintf("navigation timed out after %s", s.cfg.NavigationTimeout))
		default:
			return tracker.LoadResult{}, tracker.PageLoadError(s.meta.statusCode(), err, "navigation failed: "+err.Error())
		}
	}

	status, err := s.meta.documentStatus()
	if err != nil {
		return tracker.LoadResult{Status: status}, err
	}

	attempts, err := s.waitForContent(ctx)
	if err != nil {
		return tracker.LoadResult{Status: status, Attempts: attempts}, err
	}

	var finalURL string
	if err := s.run(ctx, chromedp.Location(&finalURL)); err != nil {
		finalURL = s.meta.url(url)
	}
	s.page.setURL(finalURL)
	return tracker.LoadResult{Status: status, FinalURL: finalURL, Attempts: attempts}, nil
}

func (s *chromeSession) waitForContent(ctx context.Context) (int, error) {
	for attempt := 1; attempt <= s.cfg.ContentRetries; attempt++ {
		waitCtx, cancel := context.WithTimeout(s.tabCtx, s.cfg.ContentWaitTimeout)
		stopForward := forwardCancel(ctx, cancel)
		err := chromedp.Run(waitCtx, chromedp.WaitReady(s.cfg.ContentMarkers, chromedp.ByQuery))
		stopForward()
		cancel()
		if err == nil {
			return attempt, nil
		}
		if ctx.Err() != nil {
			return attempt, tracker.WrapError(tracker.KindUnknown, ctx.Err(), "content wait canceled")
		}
		s.logger.Debug("content markers not ready",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.cfg.ContentRetries),
			zap.Error(err),
		)
		if attempt < s.cfg.ContentRetries {
			if err := s.cfg.Pause(ctx, s.cfg.ContentBackoff); err != nil {
				return attempt, tracker.WrapError(tracker.KindUnknown, err, "content wait canceled")
			}
		}
	}
	return s.cfg.ContentRetries, tracker.NewError(tracker.KindContentNotReady,
		fmt.Sprintf("content markers missing after %d attempts", s.cfg.ContentRetries))
}

func (s *chromeSession) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		if len(s.cfg.Headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(s.cfg.Headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		err := emulation.SetDeviceMetricsOverride(int64(s.cfg.ViewportWidth), int64(s.cfg.ViewportHeight), 1, false).Do(ctx)
		if err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		if _, err := cdppage.AddScriptToEvaluateOnNewDocument(hideWebdriverScript).Do(ctx); err != nil {
			return fmt.Errorf("mask webdriver: %w", err)
		}
		return nil
	})
}

// run executes actions on the tab, bounded by the content wait timeout and ctx.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.tabCtx, s.cfg.ContentWaitTimeout)
	defer cancel()
	stopForward := forwardCancel(ctx, cancel)
	defer stopForward()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

// Release closes the tab and the browser. Later calls return the first result.
func (s *chromeSession) Release() error {
	s.releaseOnce.Do(func() {
		if err := chromedp.Cancel(s.tabCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.releaseErr = fmt.Errorf("close browser: %w", err)
		}
		s.cleanup()
		s.logger.Debug("browser session released")
	})
	return s.releaseErr
}

type responseMeta struct {
	mu       sync.RWMutex
	captured bool
	status   int
	finalURL string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) reset() {
	m.mu.Lock()
	m.captured = false
	m.status = 0
	m.finalURL = ""
	m.mu.Unlock()
}

// capture keeps the first document response of a navigation; redirects do not
// emit ResponseReceived, so this is the final hop.
func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.captured {
		return
	}
	m.captured = true
	m.status = int(event.Response.Status)
	m.finalURL = event.Response.URL
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) statusCode() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// documentStatus fails the navigation when no document response was seen or
// its status is outside 2xx.
func (m *responseMeta) documentStatus() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.captured {
		return 0, tracker.PageLoadError(0, nil, "no document response")
	}
	if m.status < 200 || m.status >= 300 {
		return m.status, tracker.PageLoadError(m.status, nil, fmt.Sprintf("unexpected status %d", m.status))
	}
	return m.status, nil
}

func (m *responseMeta) url(fallback string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.finalURL == "" {
		return fallback
	}
	return m.finalURL
}

func toNetworkHeaders(h map[string]string) network.Headers {
	headers := network.Headers{}
	for key, value := range h {
		headers[key] = value
	}
	return headers
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
