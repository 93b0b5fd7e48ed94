package models

import "time"

// ExtractMode controls how much of the page an extractor keeps.
type ExtractMode string

const (
	// ModeArticle keeps the main readable content only.
	ModeArticle ExtractMode = "article"
	// ModeFull keeps the whole body text plus links and media.
	ModeFull ExtractMode = "full"
	// ModeMetadata keeps title/description/metadata only, no body text.
	ModeMetadata ExtractMode = "metadata"
)

// Valid reports whether m is one of the known extract modes.
func (m ExtractMode) Valid() bool {
	switch m {
	case ModeArticle, ModeFull, ModeMetadata:
		return true
	}
	return false
}

// Document is the normalized extraction result shared by every engine.
type Document struct {
	// URL is the requested URL; FinalURL differs after redirects.
	URL      string `json:"url"`
	FinalURL string `json:"final_url,omitempty"`

	Title       string `json:"title,omitempty"`
	Byline      string `json:"byline,omitempty"`
	SiteName    string `json:"site_name,omitempty"`
	Description string `json:"description,omitempty"`
	Language    string `json:"language,omitempty"`

	// Text is the plain extracted text; Markdown the converted content.
	Text     string `json:"text,omitempty"`
	Markdown string `json:"markdown,omitempty"`

	Links  []string `json:"links,omitempty"`
	Images []string `json:"images,omitempty"`

	WordCount int `json:"word_count"`

	// ExtractedBy names the engine that produced the document
	// ("readability", "selector-fallback").
	ExtractedBy string `json:"extracted_by,omitempty"`

	// Strategy is the gate decision that was executed ("raw", "headless",
	// "probes_first", "cached").
	Strategy string `json:"strategy,omitempty"`

	// FallbackUsed marks documents produced by the fallback path after the
	// primary engine was skipped or exhausted.
	FallbackUsed bool `json:"fallback_used,omitempty"`

	FetchedAt time.Time `json:"fetched_at,omitempty"`
}
