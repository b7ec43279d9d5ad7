package extract

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/follower-tracker/internal/tracker"
)

// Engine evaluates ordered strategies against a page.
type Engine struct {
	followers []Strategy
	avatars   []Strategy
	logger    *zap.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithFollowerStrategies replaces the follower count strategies.
func WithFollowerStrategies(strategies ...Strategy) Option {
	return func(e *Engine) {
		e.followers = append([]Strategy(nil), strategies...)
	}
}

// WithAvatarStrategies replaces the avatar strategies.
func WithAvatarStrategies(strategies ...Strategy) Option {
	return func(e *Engine) {
		e.avatars = append([]Strategy(nil), strategies...)
	}
}

// NewEngine builds an Engine with the default strategies.
func NewEngine(logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		followers: DefaultFollowerStrategies(),
		avatars:   DefaultAvatarStrategies(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FollowerCount returns the first positive count produced by the strategies, falling
// back to a scan of the page text. It returns 0 and an empty source when nothing matched;
// the caller decides whether that is a failure.
func (e *Engine) FollowerCount(ctx context.Context, page tracker.Page) (int64, string) {
	for _, strategy := range e.followers {
		if ctx.Err() != nil {
			return 0, ""
		}
		text, ok := e.firstCandidate(ctx, page, strategy)
		if !ok {
			continue
		}
		count, err := ParseCount(text)
		if err != nil || count <= 0 {
			e.logger.Debug("strategy text not a count",
				zap.String("strategy", strategy.Name),
				zap.String("text", text),
			)
			continue
		}
		return count, strategy.Name
	}

	body, err := page.BodyText(ctx)
	if err != nil {
		e.logger.Debug("body text unavailable", zap.Error(err))
		return 0, ""
	}
	for _, match := range bodyFollowersPattern.FindAllStringSubmatch(body, -1) {
		count, err := ParseCount(match[1])
		if err == nil && count > 0 {
			return count, BodyTextSource
		}
	}
	return 0, ""
}

// AvatarURL returns the first https image source produced by the avatar strategies,
// or "" when none is found.
func (e *Engine) AvatarURL(ctx context.Context, page tracker.Page) string {
	for _, strategy := range e.avatars {
		if ctx.Err() != nil {
			return ""
		}
		src, ok := e.firstCandidate(ctx, page, strategy)
		if !ok {
			continue
		}
		if strings.HasPrefix(src, "https://") {
			return src
		}
	}
	return ""
}

// firstCandidate returns the value of the first visible element the strategy matches.
func (e *Engine) firstCandidate(ctx context.Context, page tracker.Page, strategy Strategy) (string, bool) {
	elements, err := page.Query(ctx, strategy.Locator.Selector)
	if err != nil {
		e.logger.Debug("strategy query failed",
			zap.String("strategy", strategy.Name),
			zap.Error(err),
		)
		return "", false
	}
	for _, el := range elements {
		if !el.Visible {
			continue
		}
		if strategy.Locator.Text != nil && !strategy.Locator.Text.MatchString(el.Text) {
			continue
		}
		if strategy.Attribute != "" {
			if value := strings.TrimSpace(el.Attr(strategy.Attribute)); value != "" {
				return value, true
			}
		}
		if text := strings.TrimSpace(el.Text); text != "" {
			return text, true
		}
	}
	return "", false
}
