package renderer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/skimmer/gate"
)

// Config controls the Rod browser.
type Config struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int // default: 8

	// NavTimeout is the hard deadline for one render.
	NavTimeout time.Duration // default: 20s

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is an optional proxy URL for all requests.
	Proxy string
}

// Rod renders pages in a shared headless Chromium with a reusable page pool.
// Safe for concurrent use.
type Rod struct {
	browser     *rod.Browser
	pagePool    rod.Pool[rod.Page]
	cfg         Config
	activePages atomic.Int32
	log         *slog.Logger
}

// NewRod launches a headless browser and initialises the page pool.
func NewRod(cfg Config, log *slog.Logger) (*Rod, error) {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 8
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 20 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-prompt-on-repost"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: launch browser: %v", ErrUnavailable, err)
	}
	log.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("%w: connect to browser: %v", ErrUnavailable, err)
	}

	return &Rod{
		browser:  browser,
		pagePool: rod.NewPagePool(cfg.MaxPages),
		cfg:      cfg,
		log:      log,
	}, nil
}

// ActivePages reports how many tabs are rendering right now.
func (r *Rod) ActivePages() int { return int(r.activePages.Load()) }

// Render runs the full page lifecycle.
//
// Lifecycle (numbered steps match the inline comments):
//
//	1. Timeout guard     – hard deadline on the entire operation
//	2. Acquire page      – borrow a tab from the pool (or create one)
//	3. DEFER: cleanup    – about:blank + return to pool (leak prevention)
//	4. Stealth injection – mask navigator.webdriver etc. (before navigation!)
//	5. Hijack mount      – block heavy resources + ad domains (before navigation!)
//	6. Context binding   – propagate timeout to all Rod operations
//	7. Navigate          – triggers page load
//	8. Wait strategy     – from the gate recipe
//	9. Scroll strategy   – from the gate recipe
//	10. Overlay removal  – cookie banners, popups
//	11. Extract          – page.HTML() + document.title
//
// Why this order matters:
//   - Steps 4-5 MUST happen before step 7: stealth JS and resource blocking
//     only take effect for navigations that happen after they are installed.
//   - Step 3's about:blank uses the ORIGINAL page reference (without request
//     context), so cleanup succeeds even if the request context has expired.
func (r *Rod) Render(ctx context.Context, rawURL string, cfg gate.RenderConfig) (*Result, error) {
	start := time.Now()

	// ── 1. Timeout guard ─────────────────────────────────────────────
	ctx, cancel := context.WithTimeout(ctx, r.cfg.NavTimeout)
	defer cancel()

	// ── 2. Acquire page from pool ────────────────────────────────────
	r.activePages.Add(1)
	defer r.activePages.Add(-1)

	page, acquireErr := r.pagePool.Get(func() (*rod.Page, error) {
		return r.browser.Page(proto.TargetCreateTarget{})
	})
	if acquireErr != nil {
		return nil, fmt.Errorf("%w: acquire page: %v", ErrUnavailable, acquireErr)
	}

	// ── 3. CRITICAL DEFER: prevent DOM memory leak + guarantee pool return
	defer func() {
		if navErr := page.Navigate("about:blank"); navErr != nil {
			r.log.Warn("cleanup: failed to navigate to about:blank", "error", navErr)
		}
		r.pagePool.Put(page)
	}()

	// ── 4. Stealth injection ─────────────────────────────────────────
	if cfg.UseStealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			r.log.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
		}
	}

	// ── 4b. Google Referer so the first navigation looks organic ────
	if u, parseErr := url.Parse(rawURL); parseErr == nil {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: proto.NetworkHeaders{
				"Referer": gson.New("https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())),
			},
		}.Call(page)
	}

	// ── 5. Mount hijack router ───────────────────────────────────────
	router := setupHijack(page, cfg.BlockHeavy)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	// ── 6. Bind request context to page ──────────────────────────────
	p := page.Context(ctx)

	// ── 7. Navigate ──────────────────────────────────────────────────
	if navErr := p.Navigate(rawURL); navErr != nil {
		return nil, categorizeError(navErr, "navigation to target URL failed")
	}

	// ── 8. Wait strategy ─────────────────────────────────────────────
	r.waitLoaded(p, cfg)

	// ── 9. Scroll strategy ───────────────────────────────────────────
	r.scroll(p, cfg)

	if cfg.SettleDelay > 0 {
		select {
		case <-time.After(cfg.SettleDelay):
		case <-ctx.Done():
		}
	}

	// ── 10. Remove overlays (cookie banners, popups) ─────────────────
	removeOverlays(p)

	// ── 11. Extract rendered HTML ────────────────────────────────────
	rawHTML, htmlErr := p.HTML()
	if htmlErr != nil {
		return nil, categorizeError(htmlErr, "failed to extract page HTML")
	}

	title := evalStringOrEmpty(p, `() => document.title`)
	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = rawURL
	}

	return &Result{
		HTML:     rawHTML,
		Title:    title,
		FinalURL: finalURL,
		Duration: time.Since(start),
	}, nil
}

// waitLoaded applies the recipe's wait condition.
//
// NOTE: WaitRequestIdle uses the Fetch domain which conflicts with
// HijackRequests on Chromium 145+, so the network-idle condition is
// approximated with DOM stability plus a longer window.
func (r *Rod) waitLoaded(p *rod.Page, cfg gate.RenderConfig) {
	switch cfg.Wait {
	case gate.WaitSelector:
		if cfg.WaitForCSS != "" {
			if err := p.WaitElementsMoreThan(cfg.WaitForCSS, 0); err != nil {
				r.log.Debug("wait for selector failed, proceeding", "selector", cfg.WaitForCSS, "error", err)
			}
			return
		}
		fallthrough
	case gate.WaitNetworkIdle:
		if err := p.WaitDOMStable(800*time.Millisecond, 0.1); err != nil {
			r.log.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", err)
		}
	default:
		if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
			r.log.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", err)
		}
	}
}

// scroll applies the recipe's scroll strategy to trigger lazy loads.
func (r *Rod) scroll(p *rod.Page, cfg gate.RenderConfig) {
	switch cfg.Scroll {
	case gate.ScrollToBottom:
		if _, err := p.Eval(`() => window.scrollTo(0, document.body.scrollHeight)`); err != nil {
			r.log.Debug("scroll to bottom failed", "error", err)
		}
	case gate.ScrollPaged:
		steps := cfg.ScrollSteps
		if steps <= 0 {
			steps = 3
		}
		res, err := p.Eval(`() => window.innerHeight`)
		if err != nil {
			return
		}
		viewportHeight := res.Value.Int()
		for i := 0; i < steps; i++ {
			if err := p.Mouse.Scroll(0, float64(viewportHeight), 0); err != nil {
				r.log.Debug("paged scroll failed", "step", i, "error", err)
				return
			}
			// Brief pause between scroll steps to let lazy loads trigger.
			time.Sleep(100 * time.Millisecond)
		}
	}
}

// Close drains the page pool and kills the browser process. Call this on
// graceful shutdown to prevent zombie Chrome processes.
func (r *Rod) Close() {
	r.log.Info("renderer shutting down: draining page pool")
	r.pagePool.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	r.log.Info("renderer shutting down: closing browser")
	r.browser.MustClose()
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors (useful for optional metadata extraction).
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// removeOverlays injects JS to remove fixed/sticky positioned elements with
// high z-index, which are typically cookie consent banners and popup overlays.
func removeOverlays(p *rod.Page) {
	const js = `() => {
		const els = document.querySelectorAll('*');
		for (const el of els) {
			const style = window.getComputedStyle(el);
			const pos = style.position;
			if (pos === 'fixed' || pos === 'sticky') {
				const z = parseInt(style.zIndex, 10);
				if (z >= 900 || style.zIndex === 'auto') {
					el.remove();
				}
			}
		}
		const selectors = [
			'[class*="cookie"]', '[class*="consent"]', '[class*="overlay"]',
			'[id*="cookie"]', '[id*="consent"]', '[id*="overlay"]',
			'[class*="popup"]', '[id*="popup"]',
			'[class*="gdpr"]', '[id*="gdpr"]',
		];
		for (const sel of selectors) {
			document.querySelectorAll(sel).forEach(el => {
				const style = window.getComputedStyle(el);
				if (style.position === 'fixed' || style.position === 'sticky' || style.position === 'absolute') {
					el.remove();
				}
			});
		}
		document.documentElement.style.overflow = '';
		document.body.style.overflow = '';
	}`
	_, _ = p.Eval(js)
}

// categorizeError folds context errors into ErrUnavailable-adjacent wrapping
// so the pipeline can tell a dead browser from a slow page.
func categorizeError(err error, msg string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("renderer: %s: %w", msg, context.DeadlineExceeded)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("renderer: request canceled: %w", err)
	default:
		return fmt.Errorf("renderer: %s: %w", msg, err)
	}
}
