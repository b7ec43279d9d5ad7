package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/follower-tracker/internal/tracker"
)

// maxQueryResults caps how many elements a single query serializes out of the page.
const maxQueryResults = 100

const queryScript = `(() => {
	const nodes = Array.from(document.querySelectorAll(%s)).slice(0, %d);
	return nodes.map((el) => {
		const rect = el.getBoundingClientRect();
		const style = window.getComputedStyle(el);
		const attrs = {};
		for (const attr of el.attributes) {
			attrs[attr.name] = attr.value;
		}
		return {
			text: (el.innerText || el.textContent || "").trim(),
			attrs: attrs,
			visible: rect.width > 0 && rect.height > 0 &&
				style.visibility !== "hidden" && style.display !== "none" && style.opacity !== "0",
		};
	});
})()`

const bodyTextScript = `document.body ? document.body.innerText : ""`

// chromePage reads the live DOM of a session's tab.
type chromePage struct {
	session *chromeSession

	mu       sync.RWMutex
	finalURL string
}

func (p *chromePage) setURL(u string) {
	p.mu.Lock()
	p.finalURL = u
	p.mu.Unlock()
}

func (p *chromePage) URL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.finalURL
}

func (p *chromePage) Query(ctx context.Context, selector string) ([]tracker.Element, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return nil, fmt.Errorf("encode selector: %w", err)
	}
	var elements []tracker.Element
	script := fmt.Sprintf(queryScript, quoted, maxQueryResults)
	if err := p.session.run(ctx, chromedp.Evaluate(script, &elements)); err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return elements, nil
}

func (p *chromePage) BodyText(ctx context.Context) (string, error) {
	var text string
	if err := p.session.run(ctx, chromedp.Evaluate(bodyTextScript, &text)); err != nil {
		return "", fmt.Errorf("read body text: %w", err)
	}
	return text, nil
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.session.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return html, nil
}
