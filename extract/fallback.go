package extract

import (
	"context"
	"fmt"
	nurl "net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/use-agent/skimmer/models"
)

// contentMatchers is the selector chain the fallback walks, most specific
// first. The first match with enough text wins.
var contentMatchers = []cascadia.Selector{
	cascadia.MustCompile("article"),
	cascadia.MustCompile("main"),
	cascadia.MustCompile(`[role="main"]`),
	cascadia.MustCompile("#content"),
	cascadia.MustCompile(".post-content"),
	cascadia.MustCompile(".article-body"),
	cascadia.MustCompile(".entry-content"),
	cascadia.MustCompile("body"),
}

var headingMatcher = cascadia.MustCompile("h1")

// SelectorExtractor is the fallback engine: a plain selector walk with no
// readability scoring. Cruder output, but it works on pages where the
// readability algorithm gives up, and it needs no pool instance.
type SelectorExtractor struct{}

// NewSelectorExtractor creates the fallback engine.
func NewSelectorExtractor() *SelectorExtractor {
	return &SelectorExtractor{}
}

func (e *SelectorExtractor) Extract(ctx context.Context, rawHTML, pageURL string, mode models.ExtractMode) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base, err := nurl.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("fallback: invalid source URL %q: %w", pageURL, err)
	}

	gq, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("fallback: parse HTML: %w", err)
	}

	doc := &models.Document{
		URL:         pageURL,
		ExtractedBy: "selector-fallback",
		FetchedAt:   time.Now(),
	}
	fillMetadata(doc, gq)
	if doc.Title == "" {
		doc.Title = strings.TrimSpace(gq.FindMatcher(headingMatcher).First().Text())
	}

	if mode == models.ModeMetadata {
		if doc.Title == "" && doc.Description == "" {
			return nil, ErrNoContent
		}
		return doc, nil
	}

	text := selectContent(gq)
	if len(text) < minContentLength {
		return nil, fmt.Errorf("%w: selector walk found %d chars", ErrNoContent, len(text))
	}
	doc.Text = text
	doc.WordCount = wordCount(text)

	if mode == models.ModeFull {
		doc.Links = collectLinks(gq, base)
		doc.Images = collectImages(gq, base)
	}

	return doc, nil
}

// selectContent walks the selector chain and returns the first region with
// enough text. Whitespace is collapsed since raw DOM text is ragged.
func selectContent(gq *goquery.Document) string {
	for _, m := range contentMatchers {
		sel := gq.FindMatcher(m).First()
		if sel.Length() == 0 {
			continue
		}
		// Drop script/style noise before reading text.
		sel.Find("script, style, noscript").Remove()
		text := collapseWhitespace(sel.Text())
		if len(text) >= minContentLength {
			return text
		}
	}
	return ""
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
