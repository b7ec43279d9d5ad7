// Package browser provides isolated page sessions for scraping profile pages.
//
// Sessions are created by a Launcher whose mode is fixed at construction:
// local and restricted drive headless Chrome through chromedp, static fetches
// server-rendered HTML with colly and parses it with goquery.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/follower-tracker/internal/clock/system"
)

// Mode selects the session backend.
type Mode string

// Supported launcher modes.
const (
	ModeLocal      Mode = "local"
	ModeRestricted Mode = "restricted"
	ModeStatic     Mode = "static"
)

// ParseMode validates a configured mode string.
func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case ModeLocal, ModeRestricted, ModeStatic:
		return Mode(raw), nil
	case "":
		return ModeLocal, nil
	default:
		return "", fmt.Errorf("unknown browser mode %q", raw)
	}
}

// Default values applied to zero Config fields.
const (
	DefaultUserAgent          = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultNavigationTimeout  = 30 * time.Second
	DefaultContentRetries     = 3
	DefaultContentBackoff     = 2 * time.Second
	DefaultContentWaitTimeout = 10 * time.Second
	DefaultContentMarkers     = `article, main, [data-testid], section[role="main"]`
	DefaultViewportWidth      = 1366
	DefaultViewportHeight     = 768
)

// PauseFunc waits between content polls. It must return early when ctx is done.
type PauseFunc func(ctx context.Context, d time.Duration) error

// Config controls session behavior.
type Config struct {
	Mode Mode
	// ExecPath overrides the Chrome binary for local and restricted modes.
	ExecPath string
	// RemoteURL points restricted mode at an already running browser (DevTools websocket or http endpoint).
	RemoteURL          string
	UserAgent          string
	Headers            map[string]string
	NavigationTimeout  time.Duration
	ContentRetries     int
	ContentBackoff     time.Duration
	ContentWaitTimeout time.Duration
	ContentMarkers     string
	ViewportWidth      int
	ViewportHeight     int
	Pause              PauseFunc
}

// DefaultHeaders are sent with every navigation.
func DefaultHeaders() map[string]string {
	return map[string]string{
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.5",
		"DNT":                       "1",
		"Upgrade-Insecure-Requests": "1",
	}
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModeLocal
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Headers == nil {
		c.Headers = DefaultHeaders()
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = DefaultNavigationTimeout
	}
	if c.ContentRetries <= 0 {
		c.ContentRetries = DefaultContentRetries
	}
	if c.ContentBackoff < 0 {
		c.ContentBackoff = 0
	}
	if c.ContentWaitTimeout <= 0 {
		c.ContentWaitTimeout = DefaultContentWaitTimeout
	}
	if c.ContentMarkers == "" {
		c.ContentMarkers = DefaultContentMarkers
	}
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = DefaultViewportWidth
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = DefaultViewportHeight
	}
	if c.Pause == nil {
		c.Pause = system.Sleep
	}
	return c
}
