package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/skimmer/cache"
	"github.com/use-agent/skimmer/extract"
	"github.com/use-agent/skimmer/fetch"
	"github.com/use-agent/skimmer/gate"
	"github.com/use-agent/skimmer/models"
	"github.com/use-agent/skimmer/pool"
	"github.com/use-agent/skimmer/reliability"
	"github.com/use-agent/skimmer/renderer"
)

type fetcherFunc func(ctx context.Context, rawURL string) (*fetch.Result, error)

func (f fetcherFunc) Fetch(ctx context.Context, rawURL string) (*fetch.Result, error) {
	return f(ctx, rawURL)
}

type rendererFunc func(ctx context.Context, rawURL string, cfg gate.RenderConfig) (*renderer.Result, error)

func (f rendererFunc) Render(ctx context.Context, rawURL string, cfg gate.RenderConfig) (*renderer.Result, error) {
	return f(ctx, rawURL, cfg)
}

type extractorFunc func(ctx context.Context, rawHTML, pageURL string, mode models.ExtractMode) (*models.Document, error)

func (f extractorFunc) Extract(ctx context.Context, rawHTML, pageURL string, mode models.ExtractMode) (*models.Document, error) {
	return f(ctx, rawHTML, pageURL, mode)
}

// wordyDoc fakes an extraction result with a given word count.
func wordyDoc(n int) extractorFunc {
	return func(_ context.Context, _, pageURL string, _ models.ExtractMode) (*models.Document, error) {
		return &models.Document{URL: pageURL, Title: "t", WordCount: n, ExtractedBy: "stub"}, nil
	}
}

// richHTML scores well above the hi threshold: long prose, title, meta
// description, many paragraphs.
func richHTML() string {
	para := "<p>" + strings.Repeat("Plenty of readable prose in this paragraph to keep the text ratio high. ", 8) + "</p>"
	return `<!doctype html><html><head><title>An Article</title>` +
		`<meta name="description" content="about things"></head><body><article>` +
		strings.Repeat(para, 8) + `</article></body></html>`
}

// midHTML lands in the ambiguous band: big enough to dodge the small-page
// penalty, but with almost no text and no metadata.
func midHTML() string {
	pad := `<div data-pad="` + strings.Repeat("x", 3000) + `"></div>`
	return `<!doctype html><html><head></head><body>` + pad + `<p>thin</p></body></html>`
}

type testEnv struct {
	pipeline *Pipeline
	router   *gate.Router
	cache    *cache.Memory
	pool     *pool.Pool
}

func newTestEnv(t *testing.T, cfg Config, fetcher Fetcher, rend renderer.Renderer, inner extract.Extractor) *testEnv {
	t.Helper()
	if inner == nil {
		inner = extract.NewSelectorExtractor()
	}
	p := pool.New(pool.Config{
		MaxPoolSize:      2,
		MemoryLimitBytes: 1 << 30,
		AcquireTimeout:   time.Second,
	}, extract.NewWorkerFactory(inner), nil, nil)
	t.Cleanup(func() { p.Shutdown(context.Background()) })

	breaker := reliability.NewBreaker(reliability.BreakerConfig{FailureThreshold: 5}, nil)
	dispatcher := reliability.NewDispatcher(breaker, reliability.DispatcherConfig{AttemptTimeout: 2 * time.Second}, nil, nil)

	router := gate.NewRouter(gate.RouterConfig{})
	t.Cleanup(router.Stop)

	store := cache.NewMemory(100)
	t.Cleanup(store.Stop)

	cfg.Retry = reliability.RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond}
	return &testEnv{
		pipeline: New(cfg, fetcher, p, dispatcher, router, rend, store, nil, nil),
		router:   router,
		cache:    store,
		pool:     p,
	}
}

func staticFetcher(html string, calls *int) Fetcher {
	return fetcherFunc(func(_ context.Context, rawURL string) (*fetch.Result, error) {
		if calls != nil {
			*calls++
		}
		return &fetch.Result{HTML: html, StatusCode: 200, FinalURL: rawURL}, nil
	})
}

func TestExtractRawPath(t *testing.T) {
	env := newTestEnv(t, Config{}, staticFetcher(richHTML(), nil), nil, nil)

	resp, err := env.pipeline.Extract(context.Background(),
		models.ExtractRequest{URL: "https://blog.example.com/post"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if resp.Decision != "raw" {
		t.Errorf("Decision = %q, want raw", resp.Decision)
	}
	if resp.Document == nil || resp.Document.Text == "" {
		t.Fatal("no document text extracted")
	}
	if resp.Document.Strategy != "raw" {
		t.Errorf("Strategy = %q, want raw", resp.Document.Strategy)
	}
	if resp.CacheHit {
		t.Error("first request reported a cache hit")
	}
	if resp.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", resp.Attempts)
	}
}

func TestExtractServesFromCache(t *testing.T) {
	fetchCalls := 0
	env := newTestEnv(t, Config{}, staticFetcher(richHTML(), &fetchCalls), nil, nil)
	ctx := context.Background()
	req := models.ExtractRequest{URL: "https://blog.example.com/post", MaxAgeMs: 60_000}

	if _, err := env.pipeline.Extract(ctx, req); err != nil {
		t.Fatalf("first Extract: %v", err)
	}
	resp, err := env.pipeline.Extract(ctx, req)
	if err != nil {
		t.Fatalf("second Extract: %v", err)
	}
	if !resp.CacheHit || resp.Decision != "cached" {
		t.Errorf("CacheHit=%v Decision=%q, want cached hit", resp.CacheHit, resp.Decision)
	}
	if fetchCalls != 1 {
		t.Errorf("fetch calls = %d, want 1 (second request cached)", fetchCalls)
	}
}

func TestExtractMaxAgeZeroSkipsCache(t *testing.T) {
	fetchCalls := 0
	env := newTestEnv(t, Config{}, staticFetcher(richHTML(), &fetchCalls), nil, nil)
	ctx := context.Background()
	req := models.ExtractRequest{URL: "https://blog.example.com/post"}

	for i := 0; i < 2; i++ {
		if _, err := env.pipeline.Extract(ctx, req); err != nil {
			t.Fatalf("Extract %d: %v", i, err)
		}
	}
	if fetchCalls != 2 {
		t.Errorf("fetch calls = %d, want 2 (MaxAgeMs=0 must bypass cache)", fetchCalls)
	}
}

func TestExtractForceHeadlessDegradesWithoutBrowser(t *testing.T) {
	env := newTestEnv(t, Config{}, staticFetcher(richHTML(), nil), renderer.Unavailable, nil)

	resp, err := env.pipeline.Extract(context.Background(),
		models.ExtractRequest{URL: "https://blog.example.com/post", ForceHeadless: true})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if resp.Decision != "headless" {
		t.Errorf("Decision = %q, want headless", resp.Decision)
	}
	if resp.Document == nil || resp.Document.Text == "" {
		t.Error("degraded headless request produced no document")
	}
}

func TestExtractHeadlessUsesRenderedHTML(t *testing.T) {
	rendered := richHTML()
	rend := rendererFunc(func(_ context.Context, rawURL string, _ gate.RenderConfig) (*renderer.Result, error) {
		return &renderer.Result{HTML: rendered, FinalURL: rawURL}, nil
	})
	var sawHTML string
	inner := extractorFunc(func(_ context.Context, rawHTML, pageURL string, _ models.ExtractMode) (*models.Document, error) {
		sawHTML = rawHTML
		return &models.Document{URL: pageURL, WordCount: 500, ExtractedBy: "stub"}, nil
	})
	env := newTestEnv(t, Config{}, staticFetcher("<html><body>shell</body></html>", nil), rend, inner)

	_, err := env.pipeline.Extract(context.Background(),
		models.ExtractRequest{URL: "https://app.example.com/page", ForceHeadless: true})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if sawHTML != rendered {
		t.Error("extractor did not receive the rendered HTML")
	}
}

func TestProbesFirstAcceptsGoodProbe(t *testing.T) {
	renderCalls := 0
	rend := rendererFunc(func(_ context.Context, rawURL string, _ gate.RenderConfig) (*renderer.Result, error) {
		renderCalls++
		return &renderer.Result{HTML: richHTML(), FinalURL: rawURL}, nil
	})
	env := newTestEnv(t, Config{ProbeQualityThreshold: 10},
		staticFetcher(midHTML(), nil), rend, wordyDoc(50))

	resp, err := env.pipeline.Extract(context.Background(),
		models.ExtractRequest{URL: "https://mid.example.com/page"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if resp.Decision != "probes_first" {
		t.Fatalf("Decision = %q, want probes_first", resp.Decision)
	}
	if renderCalls != 0 {
		t.Errorf("render calls = %d, want 0 (probe was good enough)", renderCalls)
	}

	// The host memory should now route this host straight to Raw.
	if d := env.router.Route("https://mid.example.com/other", gate.ContentFeatures{}, false); d != gate.Raw {
		t.Errorf("remembered decision = %v, want Raw", d)
	}
}

func TestProbesFirstEscalatesThinProbe(t *testing.T) {
	// Rendered page has a very different DOM shape than the fetched shell.
	renderCalls := 0
	rend := rendererFunc(func(_ context.Context, rawURL string, _ gate.RenderConfig) (*renderer.Result, error) {
		renderCalls++
		return &renderer.Result{HTML: richHTML(), FinalURL: rawURL}, nil
	})
	env := newTestEnv(t, Config{ProbeQualityThreshold: 1000},
		staticFetcher(midHTML(), nil), rend, wordyDoc(50))

	resp, err := env.pipeline.Extract(context.Background(),
		models.ExtractRequest{URL: "https://mid.example.com/page"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if renderCalls != 1 {
		t.Fatalf("render calls = %d, want 1", renderCalls)
	}
	if resp.Document == nil {
		t.Fatal("no document")
	}

	// Structurally different raw vs rendered DOM: the host should now be
	// remembered as Headless.
	if d := env.router.Route("https://mid.example.com/other", gate.ContentFeatures{}, false); d != gate.Headless {
		t.Errorf("remembered decision = %v, want Headless", d)
	}
}

func TestProbesFirstRemembersRawWhenRenderingChangesNothing(t *testing.T) {
	html := midHTML()
	rend := rendererFunc(func(_ context.Context, rawURL string, _ gate.RenderConfig) (*renderer.Result, error) {
		return &renderer.Result{HTML: html, FinalURL: rawURL}, nil
	})
	env := newTestEnv(t, Config{ProbeQualityThreshold: 1000},
		staticFetcher(html, nil), rend, wordyDoc(50))

	if _, err := env.pipeline.Extract(context.Background(),
		models.ExtractRequest{URL: "https://mid.example.com/page"}); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if d := env.router.Route("https://mid.example.com/other", gate.ContentFeatures{}, false); d != gate.Raw {
		t.Errorf("remembered decision = %v, want Raw (identical DOM)", d)
	}
}

func TestProbesFirstKeepsThinProbeWhenRenderFails(t *testing.T) {
	env := newTestEnv(t, Config{ProbeQualityThreshold: 1000},
		staticFetcher(midHTML(), nil), renderer.Unavailable, wordyDoc(50))

	resp, err := env.pipeline.Extract(context.Background(),
		models.ExtractRequest{URL: "https://mid.example.com/page"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if resp.Document == nil || resp.Document.WordCount != 50 {
		t.Error("thin probe result was not kept after render degradation")
	}
}

func TestExtractFetchFailure(t *testing.T) {
	boom := errors.New("connection refused")
	fetcher := fetcherFunc(func(context.Context, string) (*fetch.Result, error) {
		return nil, boom
	})
	env := newTestEnv(t, Config{}, fetcher, nil, nil)

	_, err := env.pipeline.Extract(context.Background(),
		models.ExtractRequest{URL: "https://down.example.com/"})
	var perr *models.PipelineError
	if !errors.As(err, &perr) || perr.Code != models.ErrCodeFetchFailed {
		t.Fatalf("err = %v, want PipelineError FETCH_FAILED", err)
	}
	if !errors.Is(err, boom) {
		t.Error("cause not wrapped")
	}
}

func TestExtractInvalidMode(t *testing.T) {
	env := newTestEnv(t, Config{}, staticFetcher(richHTML(), nil), nil, nil)

	_, err := env.pipeline.Extract(context.Background(),
		models.ExtractRequest{URL: "https://blog.example.com/", Mode: "nope"})
	var perr *models.PipelineError
	if !errors.As(err, &perr) || perr.Code != models.ErrCodeInvalidInput {
		t.Fatalf("err = %v, want PipelineError INVALID_INPUT", err)
	}
}

func TestExtractFallsBackWhenPrimaryFails(t *testing.T) {
	inner := extractorFunc(func(context.Context, string, string, models.ExtractMode) (*models.Document, error) {
		return nil, errors.New("primary broken")
	})
	env := newTestEnv(t, Config{}, staticFetcher(richHTML(), nil), nil, inner)

	resp, err := env.pipeline.Extract(context.Background(),
		models.ExtractRequest{URL: "https://blog.example.com/post"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !resp.Document.FallbackUsed {
		t.Error("FallbackUsed not set on fallback result")
	}
	if resp.Document.Text == "" {
		t.Error("fallback produced no text")
	}
}
