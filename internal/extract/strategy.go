package extract

import "regexp"

// Locator selects candidate elements: a CSS selector plus an optional text filter.
type Locator struct {
	Selector string
	Text     *regexp.Regexp
}

// Strategy is one way of finding a value on the page. Attribute, when set, is
// preferred over the element text.
type Strategy struct {
	Name      string
	Locator   Locator
	Attribute string
}

// BodyTextSource names the whole-page text fallback in extraction results.
const BodyTextSource = "body_text"

var bodyFollowersPattern = regexp.MustCompile(`(?i)(\d{1,3}(?:,\d{3})*|\d+(?:\.\d+)?[KMB]?)\s+followers`)

// DefaultFollowerStrategies returns the follower count strategies in priority order.
// New markup variants are handled by appending to this list.
func DefaultFollowerStrategies() []Strategy {
	return []Strategy{
		{
			Name:      "followers_link_title",
			Locator:   Locator{Selector: `a[href*="/followers/"] span[title]`},
			Attribute: "title",
		},
		{
			Name:    "followers_link_text",
			Locator: Locator{Selector: `a[href*="/followers/"] span`},
		},
		{
			Name:      "span_title_followers",
			Locator:   Locator{Selector: `span[title*="followers"]`},
			Attribute: "title",
		},
		{
			Name:    "span_text_followers",
			Locator: Locator{Selector: "span", Text: regexp.MustCompile(`(?i)followers`)},
		},
		{
			Name:    "followers_link_any",
			Locator: Locator{Selector: `a[href*="/followers"]`, Text: regexp.MustCompile(`\d`)},
		},
	}
}

// DefaultAvatarStrategies returns the avatar image strategies in priority order.
func DefaultAvatarStrategies() []Strategy {
	selectors := []struct{ name, selector string }{
		{"header_profile_picture", `header img[alt*="profile picture"]`},
		{"header_avatar", `header img[alt*="avatar"]`},
		{"profile_picture", `img[alt*="profile picture"]`},
		{"article_header_img", "article header img"},
		{"rounded_img", `img[style*="border-radius"]`},
		{"testid_profile_img", `img[data-testid*="profile"]`},
	}
	out := make([]Strategy, 0, len(selectors))
	for _, s := range selectors {
		out = append(out, Strategy{Name: s.name, Locator: Locator{Selector: s.selector}, Attribute: "src"})
	}
	return out
}
