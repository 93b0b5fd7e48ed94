// Package pipeline wires the fetcher, gate, pool, dispatcher, renderer and
// cache into the end-to-end extract flow.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/skimmer/cache"
	"github.com/use-agent/skimmer/events"
	"github.com/use-agent/skimmer/extract"
	"github.com/use-agent/skimmer/fetch"
	"github.com/use-agent/skimmer/gate"
	"github.com/use-agent/skimmer/models"
	"github.com/use-agent/skimmer/pool"
	"github.com/use-agent/skimmer/reliability"
	"github.com/use-agent/skimmer/renderer"
	"github.com/use-agent/skimmer/simhash"
)

// Fetcher fetches a URL over plain HTTP. *fetch.Client satisfies it; tests
// substitute a stub.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetch.Result, error)
}

// Config tunes the orchestration knobs that sit above the component configs.
type Config struct {
	// ProbeQualityThreshold is the minimum word count a raw-HTML probe
	// must produce before a ProbesFirst request skips rendering.
	ProbeQualityThreshold int // default: 100

	// FingerprintDistance is the maximum Hamming distance between the raw
	// and rendered DOM fingerprints at which rendering is judged to add
	// nothing for the host.
	FingerprintDistance int // default: 3

	// CacheTTL is how long extracted documents stay cached.
	CacheTTL time.Duration // default: 1h

	// Retry governs the primary strategy's retry loop.
	Retry reliability.RetryConfig
}

func (c *Config) defaults() {
	if c.ProbeQualityThreshold <= 0 {
		c.ProbeQualityThreshold = 100
	}
	if c.FingerprintDistance <= 0 {
		c.FingerprintDistance = 3
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
}

// Pipeline is the orchestrator behind POST /v1/extract and the MCP tool.
type Pipeline struct {
	cfg        Config
	fetcher    Fetcher
	pool       *pool.Pool
	dispatcher *reliability.Dispatcher
	router     *gate.Router
	renderer   renderer.Renderer
	fallback   extract.Extractor
	cache      cache.Store
	sink       events.Sink
	log        *slog.Logger
}

// New assembles a pipeline. renderer may be renderer.Unavailable when no
// browser is configured; Headless decisions then degrade to Raw.
func New(cfg Config, fetcher Fetcher, p *pool.Pool, d *reliability.Dispatcher,
	r *gate.Router, rend renderer.Renderer, store cache.Store,
	sink events.Sink, log *slog.Logger) *Pipeline {
	cfg.defaults()
	if rend == nil {
		rend = renderer.Unavailable
	}
	if sink == nil {
		sink = events.Discard
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		cfg:        cfg,
		fetcher:    fetcher,
		pool:       p,
		dispatcher: d,
		router:     r,
		renderer:   rend,
		fallback:   extract.NewSelectorExtractor(),
		cache:      store,
		sink:       sink,
		log:        log,
	}
}

// Extract runs the full flow for one request. Errors are always
// *models.PipelineError so the API layer can map them to status codes.
func (p *Pipeline) Extract(ctx context.Context, req models.ExtractRequest) (*models.ExtractResponse, error) {
	req.Defaults()
	mode := models.ExtractMode(req.Mode)
	if !mode.Valid() {
		return nil, models.NewPipelineError(models.ErrCodeInvalidInput,
			fmt.Sprintf("invalid mode %q", req.Mode), nil)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(req.Timeout)*time.Second)
	defer cancel()

	start := time.Now()
	var timing models.TimingInfo

	// Cache lookup. MaxAgeMs=0 means the client wants a fresh document.
	key := cache.Key(req.URL, mode)
	if doc, ok := p.cache.Get(ctx, key, time.Duration(req.MaxAgeMs)*time.Millisecond); ok {
		p.sink.Emit(ctx, events.Event{Op: events.OpCacheHit, Component: "pipeline", URL: req.URL})
		timing.TotalMs = time.Since(start).Milliseconds()
		return &models.ExtractResponse{
			Success:  true,
			Document: doc,
			Decision: gate.Cached.String(),
			CacheHit: true,
			Timing:   timing,
		}, nil
	}

	fetched, err := p.fetcher.Fetch(ctx, req.URL)
	if err != nil {
		return nil, models.NewPipelineError(models.ErrCodeFetchFailed,
			"failed to fetch page", err)
	}
	timing.FetchMs = fetched.Duration.Milliseconds()

	gateStart := time.Now()
	features := gate.Analyze(fetched.HTML)
	decision := p.router.Route(fetched.FinalURL, features, false)
	if req.ForceHeadless {
		decision = gate.Headless
	}
	timing.GateMs = time.Since(gateStart).Milliseconds()
	p.sink.Emit(ctx, events.Event{
		Op: events.OpGateDecision, Component: "pipeline",
		URL: req.URL, Reason: decision.String(),
	})

	res, err := p.execute(ctx, decision, fetched, mode, &timing)
	if err != nil {
		return nil, err
	}

	doc := res.Doc
	doc.URL = req.URL
	doc.Strategy = decision.String()
	if doc.FetchedAt.IsZero() {
		doc.FetchedAt = time.Now().UTC()
	}

	p.cache.Set(ctx, key, doc, p.cfg.CacheTTL)
	p.sink.Emit(ctx, events.Event{Op: events.OpCacheStore, Component: "pipeline", URL: req.URL})

	timing.TotalMs = time.Since(start).Milliseconds()
	return &models.ExtractResponse{
		Success:  true,
		Document: doc,
		Decision: decision.String(),
		Attempts: res.Attempts,
		Timing:   timing,
	}, nil
}

// execute runs the chosen strategy against the fetched page.
func (p *Pipeline) execute(ctx context.Context, decision gate.Decision,
	fetched *fetch.Result, mode models.ExtractMode, timing *models.TimingInfo) (*reliability.Result, error) {

	switch decision {
	case gate.Raw, gate.Cached:
		// Cached only lands here when the lookup missed after routing
		// remembered it; treat it as Raw.
		return p.dispatch(ctx, fetched.HTML, fetched.FinalURL, mode, timing)

	case gate.Headless:
		rendered, err := p.render(ctx, fetched.FinalURL, timing)
		if err != nil {
			// No browser, or the render blew up: the raw HTML is
			// still worth extracting from.
			p.degrade(ctx, fetched.FinalURL, err)
			return p.dispatch(ctx, fetched.HTML, fetched.FinalURL, mode, timing)
		}
		return p.dispatch(ctx, rendered.HTML, rendered.FinalURL, mode, timing)

	case gate.ProbesFirst:
		return p.probeThenEscalate(ctx, fetched, mode, timing)

	default:
		return nil, models.NewPipelineError(models.ErrCodeInternal,
			fmt.Sprintf("unhandled decision %v", decision), nil)
	}
}

// probeThenEscalate extracts from the raw HTML first and only pays for a
// browser when the probe comes back thin. The structural fingerprints of the
// raw and rendered DOM teach the per-host memory whether rendering actually
// changes the page.
func (p *Pipeline) probeThenEscalate(ctx context.Context, fetched *fetch.Result,
	mode models.ExtractMode, timing *models.TimingInfo) (*reliability.Result, error) {

	probe, probeErr := p.dispatch(ctx, fetched.HTML, fetched.FinalURL, mode, timing)
	if probeErr == nil && probe.Doc.WordCount >= p.cfg.ProbeQualityThreshold {
		p.router.Remember(fetched.FinalURL, gate.Raw)
		return probe, nil
	}

	rendered, err := p.render(ctx, fetched.FinalURL, timing)
	if err != nil {
		p.degrade(ctx, fetched.FinalURL, err)
		if probeErr == nil {
			// Thin, but it is all we have.
			return probe, nil
		}
		return nil, probeErr
	}

	rawFP := simhash.FingerprintDOM(fetched.HTML)
	renderedFP := simhash.FingerprintDOM(rendered.HTML)
	if simhash.Similar(rawFP, renderedFP, p.cfg.FingerprintDistance) {
		p.router.Remember(fetched.FinalURL, gate.Raw)
	} else {
		p.router.Remember(fetched.FinalURL, gate.Headless)
	}

	res, err := p.dispatch(ctx, rendered.HTML, rendered.FinalURL, mode, timing)
	if err != nil {
		if probeErr == nil {
			return probe, nil
		}
		return nil, err
	}
	return res, nil
}

// dispatch runs the pool-backed extractor under the reliable dispatcher, with
// the selector extractor as fallback.
func (p *Pipeline) dispatch(ctx context.Context, htmlStr, pageURL string,
	mode models.ExtractMode, timing *models.TimingInfo) (*reliability.Result, error) {

	primary := func(ctx context.Context) (*models.Document, error) {
		inst, err := p.pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		doc, err := inst.Extract(ctx, htmlStr, pageURL, mode)
		p.pool.Release(ctx, inst, err == nil)
		return doc, err
	}
	fallback := func(ctx context.Context) (*models.Document, error) {
		return p.fallback.Extract(ctx, htmlStr, pageURL, mode)
	}

	extractStart := time.Now()
	res, err := p.dispatcher.Extract(ctx, primary, fallback, p.cfg.Retry)
	timing.ExtractionMs += time.Since(extractStart).Milliseconds()
	if err != nil {
		return nil, models.NewPipelineError(models.ErrCodeAllStrategiesFailed,
			"extraction failed on every strategy", err)
	}
	return res, nil
}

func (p *Pipeline) render(ctx context.Context, rawURL string, timing *models.TimingInfo) (*renderer.Result, error) {
	cfg := gate.HintsFor(rawURL)
	renderStart := time.Now()
	res, err := p.renderer.Render(ctx, rawURL, cfg)
	timing.RenderMs += time.Since(renderStart).Milliseconds()
	return res, err
}

// degrade records a Headless->Raw downgrade and clears any remembered
// Headless preference so the host gets re-scored next time.
func (p *Pipeline) degrade(ctx context.Context, rawURL string, cause error) {
	if !errors.Is(cause, renderer.ErrUnavailable) {
		p.log.Warn("render failed, degrading to raw extraction",
			"url", rawURL, "error", cause)
	}
	p.router.Forget(rawURL)
	p.sink.Emit(ctx, events.Event{
		Op: events.OpRenderDegraded, Component: "pipeline",
		URL: rawURL, Reason: cause.Error(),
	})
}
