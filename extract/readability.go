package extract

import (
	"context"
	"fmt"
	nurl "net/url"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/use-agent/skimmer/models"
)

// ReadabilityExtractor is the primary engine: Mozilla Readability for the
// main content, html-to-markdown for the Markdown rendition, goquery for
// metadata, links, and images.
type ReadabilityExtractor struct {
	conv *converter.Converter
}

// NewReadabilityExtractor creates the engine with a reusable, goroutine-safe
// Markdown converter:
//
//   - base plugin: strips script, style, iframe, noscript, head, meta, link,
//     input, textarea, HTML comments.
//   - commonmark plugin: standard Markdown rendering.
//   - table plugin: preserves table structure with minimal cell padding.
func NewReadabilityExtractor() *ReadabilityExtractor {
	return &ReadabilityExtractor{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(
					table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
				),
			),
		),
	}
}

// Extract runs the readability pipeline. ModeMetadata skips the body
// entirely; ModeFull adds links and images on top of the article content.
func (e *ReadabilityExtractor) Extract(ctx context.Context, rawHTML, pageURL string, mode models.ExtractMode) (*models.Document, error) {
	parsedURL, err := nurl.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("readability: invalid source URL %q: %w", pageURL, err)
	}

	gq, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("readability: parse HTML: %w", err)
	}

	doc := &models.Document{
		URL:         pageURL,
		ExtractedBy: "readability",
		FetchedAt:   time.Now(),
	}
	fillMetadata(doc, gq)

	if mode == models.ModeMetadata {
		if doc.Title == "" && doc.Description == "" {
			return nil, ErrNoContent
		}
		return doc, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), parsedURL)
	if err != nil {
		return nil, fmt.Errorf("readability: extraction failed: %w", err)
	}
	text := strings.TrimSpace(article.TextContent)
	if len(text) < minContentLength {
		return nil, fmt.Errorf("%w: extracted %d chars", ErrNoContent, len(text))
	}

	if article.Title != "" {
		doc.Title = article.Title
	}
	if article.Byline != "" {
		doc.Byline = article.Byline
	}
	if doc.Description == "" {
		doc.Description = article.Excerpt
	}
	if doc.SiteName == "" {
		doc.SiteName = article.SiteName
	}

	doc.Text = text
	doc.WordCount = wordCount(text)

	markdown, err := e.conv.ConvertString(article.Content, converter.WithDomain(parsedURL.Host))
	if err != nil {
		return nil, fmt.Errorf("readability: markdown conversion: %w", err)
	}
	doc.Markdown = strings.TrimSpace(markdown)

	if mode == models.ModeFull {
		doc.Links = collectLinks(gq, parsedURL)
		doc.Images = collectImages(gq, parsedURL)
	}

	return doc, nil
}

// fillMetadata reads title, description, site name, and language from the
// document head, preferring Open Graph tags.
func fillMetadata(doc *models.Document, gq *goquery.Document) {
	doc.Title = strings.TrimSpace(gq.Find("title").First().Text())

	gq.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content, _ := s.Attr("content")
		if content == "" {
			return
		}
		prop, _ := s.Attr("property")
		name, _ := s.Attr("name")
		switch {
		case prop == "og:title":
			doc.Title = content
		case prop == "og:description":
			doc.Description = content
		case prop == "og:site_name":
			doc.SiteName = content
		case name == "description" && doc.Description == "":
			doc.Description = content
		case name == "author":
			doc.Byline = content
		}
	})

	if lang, ok := gq.Find("html").Attr("lang"); ok {
		doc.Language = strings.TrimSpace(lang)
	}
}

// collectLinks returns deduplicated absolute http(s) links.
func collectLinks(gq *goquery.Document, base *nurl.URL) []string {
	var links []string
	seen := make(map[string]struct{})
	gq.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if href == "" {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil {
			return
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		abs := resolved.String()
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})
	return links
}

// collectImages returns deduplicated absolute image URLs, data URIs skipped.
func collectImages(gq *goquery.Document, base *nurl.URL) []string {
	var images []string
	seen := make(map[string]struct{})
	gq.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if src == "" {
			return
		}
		resolved, err := base.Parse(src)
		if err != nil || resolved.Scheme == "data" {
			return
		}
		abs := resolved.String()
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}
		images = append(images, abs)
	})
	return images
}
