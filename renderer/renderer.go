// Package renderer runs pages in a headless browser for content that plain
// fetching cannot see.
package renderer

import (
	"context"
	"errors"
	"time"

	"github.com/use-agent/skimmer/gate"
)

// ErrUnavailable means no browser is configured or the browser is gone. The
// pipeline degrades Headless decisions to Raw when it sees this.
var ErrUnavailable = errors.New("renderer: unavailable")

// Result is a rendered page.
type Result struct {
	HTML     string
	Title    string
	FinalURL string
	Duration time.Duration
}

// Renderer renders a URL according to a gate recipe. Implementations must be
// safe for concurrent use.
type Renderer interface {
	Render(ctx context.Context, rawURL string, cfg gate.RenderConfig) (*Result, error)
}

// Unavailable is a Renderer that always reports ErrUnavailable. Used when no
// browser is configured.
var Unavailable Renderer = unavailableRenderer{}

type unavailableRenderer struct{}

func (unavailableRenderer) Render(context.Context, string, gate.RenderConfig) (*Result, error) {
	return nil, ErrUnavailable
}
