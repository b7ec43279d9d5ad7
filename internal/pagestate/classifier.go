// Package pagestate classifies a loaded profile page before extraction.
package pagestate

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/follower-tracker/internal/tracker"
)

// State is the classification of a loaded profile page.
type State string

// Page states, listed in classification precedence.
const (
	LoginWall State = "login_wall"
	NotFound  State = "not_found"
	Private   State = "private"
	Loaded    State = "loaded"
)

// Config holds the signals used for classification.
type Config struct {
	// LoginPath is matched against the resolved URL.
	LoginPath string
	// MarkerSelector scopes the elements searched for marker text. The visible
	// body text is scanned as well, so markers in other elements still count.
	MarkerSelector  string
	NotFoundMarkers []string
	PrivateMarkers  []string
}

// DefaultConfig returns the markers observed on the live site.
func DefaultConfig() Config {
	return Config{
		LoginPath:       "/accounts/login",
		MarkerSelector:  "h1, h2, h3, span, p",
		NotFoundMarkers: []string{"Sorry, this page isn't available"},
		PrivateMarkers:  []string{"This account is private", "This Account is Private"},
	}
}

// Classifier maps a page to a State.
type Classifier struct {
	cfg    Config
	logger *zap.Logger
}

// New builds a Classifier, filling empty config fields with defaults.
func New(cfg Config, logger *zap.Logger) *Classifier {
	def := DefaultConfig()
	if cfg.LoginPath == "" {
		cfg.LoginPath = def.LoginPath
	}
	if cfg.MarkerSelector == "" {
		cfg.MarkerSelector = def.MarkerSelector
	}
	if len(cfg.NotFoundMarkers) == 0 {
		cfg.NotFoundMarkers = def.NotFoundMarkers
	}
	if len(cfg.PrivateMarkers) == 0 {
		cfg.PrivateMarkers = def.PrivateMarkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{cfg: cfg, logger: logger}
}

// Classify returns the page state. The page must already have passed the
// content-ready check; classification on a half-rendered page is unreliable.
func (c *Classifier) Classify(ctx context.Context, page tracker.Page) (State, error) {
	if strings.Contains(page.URL(), c.cfg.LoginPath) {
		return LoginWall, nil
	}

	texts, err := c.visibleTexts(ctx, page)
	if err != nil {
		return "", err
	}
	switch {
	case containsAny(texts, c.cfg.NotFoundMarkers):
		return NotFound, nil
	case containsAny(texts, c.cfg.PrivateMarkers):
		return Private, nil
	default:
		return Loaded, nil
	}
}

func (c *Classifier) visibleTexts(ctx context.Context, page tracker.Page) ([]string, error) {
	elements, err := page.Query(ctx, c.cfg.MarkerSelector)
	if err != nil {
		return nil, fmt.Errorf("query state markers: %w", err)
	}
	texts := make([]string, 0, len(elements))
	for _, el := range elements {
		if el.Visible && el.Text != "" {
			texts = append(texts, normalize(el.Text))
		}
	}
	body, err := page.BodyText(ctx)
	if err != nil {
		return nil, fmt.Errorf("read body text: %w", err)
	}
	if body != "" {
		texts = append(texts, normalize(body))
	}
	c.logger.Debug("state markers scanned", zap.Int("elements", len(texts)))
	return texts, nil
}

func containsAny(texts []string, markers []string) bool {
	for _, marker := range markers {
		needle := normalize(marker)
		for _, text := range texts {
			if strings.Contains(text, needle) {
				return true
			}
		}
	}
	return false
}

func normalize(s string) string {
	s = strings.NewReplacer("\u2019", "'", "\u00a0", " ").Replace(s)
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
