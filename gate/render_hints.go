package gate

import (
	"net/url"
	"strings"
	"time"
)

// WaitCondition tells the renderer when a page counts as loaded.
type WaitCondition int

const (
	// WaitDOMStable waits until DOM mutations settle.
	WaitDOMStable WaitCondition = iota
	// WaitNetworkIdle waits until in-flight requests drain.
	WaitNetworkIdle
	// WaitSelector waits for a specific element to appear.
	WaitSelector
)

// ScrollMode tells the renderer whether to scroll before capture.
type ScrollMode int

const (
	ScrollNone ScrollMode = iota
	// ScrollToBottom scrolls once to the page end to trigger lazy loads.
	ScrollToBottom
	// ScrollPaged scrolls in steps, settling between each.
	ScrollPaged
)

// RenderConfig is the per-page render recipe handed to the Renderer.
type RenderConfig struct {
	Wait         WaitCondition
	WaitForCSS   string // only with WaitSelector
	Scroll       ScrollMode
	ScrollSteps  int
	SettleDelay  time.Duration
	UseStealth   bool
	BlockHeavy   bool // block images/fonts/media
}

type renderHint struct {
	substrings []string
	cfg        RenderConfig
}

// renderHints is a fixed lookup table, first match wins. It encodes what we
// know about domains and URL shapes that need more than a plain DOM-stable
// wait. Deliberately not learned at runtime.
var renderHints = []renderHint{
	{
		substrings: []string{"twitter.com", "x.com", "instagram.com", "facebook.com"},
		cfg: RenderConfig{
			Wait:        WaitNetworkIdle,
			SettleDelay: 1500 * time.Millisecond,
			UseStealth:  true,
		},
	},
	{
		substrings: []string{"linkedin.com", "tiktok.com"},
		cfg: RenderConfig{
			Wait:        WaitNetworkIdle,
			SettleDelay: 2 * time.Second,
			UseStealth:  true,
		},
	},
	{
		substrings: []string{"medium.com", "substack.com", "notion.site"},
		cfg: RenderConfig{
			Wait:        WaitDOMStable,
			Scroll:      ScrollToBottom,
			SettleDelay: 500 * time.Millisecond,
			BlockHeavy:  true,
		},
	},
	{
		// Infinite feeds: paged scrolling pulls in enough content to extract.
		substrings: []string{"reddit.com", "news.ycombinator.com/front"},
		cfg: RenderConfig{
			Wait:        WaitDOMStable,
			Scroll:      ScrollPaged,
			ScrollSteps: 3,
			BlockHeavy:  true,
		},
	},
	{
		// Hash routing or an /app/ path means a client-side router owns the page.
		substrings: []string{"/#/", "/app/"},
		cfg: RenderConfig{
			Wait:        WaitNetworkIdle,
			SettleDelay: time.Second,
			BlockHeavy:  true,
		},
	},
}

// defaultRenderConfig is the recipe for pages with no specific hint.
var defaultRenderConfig = RenderConfig{
	Wait:       WaitDOMStable,
	BlockHeavy: true,
}

// HintsFor returns the render recipe for a URL. The lookup is a deterministic
// substring match over host and path; unknown pages get the default recipe.
func HintsFor(rawURL string) RenderConfig {
	haystack := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		haystack = strings.ToLower(u.Host + u.Path + "#" + u.Fragment)
	} else {
		haystack = strings.ToLower(haystack)
	}

	for _, hint := range renderHints {
		for _, sub := range hint.substrings {
			if strings.Contains(haystack, sub) {
				return hint.cfg
			}
		}
	}
	return defaultRenderConfig
}
