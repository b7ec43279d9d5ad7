package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/JakeFAU/follower-tracker/internal/tracker"
)

var hiddenTags = map[string]bool{
	"head":     true,
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"meta":     true,
	"link":     true,
	"title":    true,
}

// DocumentPage is a tracker.Page over a parsed HTML document. It has no layout engine,
// so visibility is approximated from markup: hidden attributes, aria-hidden, inline
// display/visibility styles and non-rendered tags on the element or any ancestor.
type DocumentPage struct {
	url string
	doc *goquery.Document
}

// NewDocumentPage parses body as the page served at url.
func NewDocumentPage(url string, body string) (*DocumentPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &DocumentPage{url: url, doc: doc}, nil
}

// URL returns the resolved page URL.
func (p *DocumentPage) URL() string {
	return p.url
}

// Query returns the elements matching selector in document order.
func (p *DocumentPage) Query(_ context.Context, selector string) ([]tracker.Element, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	var out []tracker.Element
	p.doc.FindMatcher(sel).Each(func(_ int, s *goquery.Selection) {
		out = append(out, tracker.Element{
			Text:    strings.TrimSpace(s.Text()),
			Attrs:   attrs(s),
			Visible: visible(s),
		})
	})
	return out, nil
}

// BodyText returns the text of the body without script, style or hidden content.
func (p *DocumentPage) BodyText(_ context.Context) (string, error) {
	body := p.doc.Find("body").Clone()
	body.Find("*").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return hiddenTags[s.Nodes[0].Data] || hiddenNode(s.Nodes[0])
	}).Remove()
	return strings.Join(strings.Fields(body.Text()), " "), nil
}

// HTML returns the serialized document.
func (p *DocumentPage) HTML(_ context.Context) (string, error) {
	out, err := p.doc.Html()
	if err != nil {
		return "", fmt.Errorf("render document: %w", err)
	}
	return out, nil
}

// HasAny reports whether any of the comma separated selectors matches.
func (p *DocumentPage) HasAny(selector string) bool {
	return p.doc.Find(selector).Length() > 0
}

func attrs(s *goquery.Selection) map[string]string {
	if len(s.Nodes) == 0 {
		return nil
	}
	out := make(map[string]string, len(s.Nodes[0].Attr))
	for _, a := range s.Nodes[0].Attr {
		out[a.Key] = a.Val
	}
	return out
}

func visible(s *goquery.Selection) bool {
	if len(s.Nodes) == 0 {
		return false
	}
	for node := s.Nodes[0]; node != nil; node = node.Parent {
		if node.Type != html.ElementNode {
			continue
		}
		if hiddenTags[node.Data] || hiddenNode(node) {
			return false
		}
	}
	return true
}

func hiddenNode(node *html.Node) bool {
	for _, a := range node.Attr {
		switch strings.ToLower(a.Key) {
		case "hidden":
			return true
		case "aria-hidden":
			if strings.EqualFold(a.Val, "true") {
				return true
			}
		case "style":
			style := strings.ReplaceAll(strings.ToLower(a.Val), " ", "")
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		}
	}
	return false
}
