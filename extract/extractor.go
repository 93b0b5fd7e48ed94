// Package extract turns fetched or rendered HTML into normalized documents.
package extract

import (
	"context"
	"errors"
	"strings"

	"github.com/use-agent/skimmer/models"
)

// ErrNoContent means the engine could not locate usable content in the page.
// The dispatcher treats it like any other primary failure and falls back.
var ErrNoContent = errors.New("extract: no usable content found")

// ErrMemoryLimit means the instance's resource tracker refused the memory
// the extraction would need.
var ErrMemoryLimit = errors.New("extract: memory limit exceeded")

// Extractor produces a document from HTML. Implementations must be safe for
// concurrent use.
type Extractor interface {
	Extract(ctx context.Context, rawHTML, pageURL string, mode models.ExtractMode) (*models.Document, error)
}

// minContentLength is the minimum extracted text length (in characters) for
// a result to count as content rather than boilerplate.
const minContentLength = 50

func wordCount(s string) int {
	return len(strings.Fields(s))
}
