package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/use-agent/skimmer/api"
	"github.com/use-agent/skimmer/cache"
	"github.com/use-agent/skimmer/config"
	"github.com/use-agent/skimmer/events"
	"github.com/use-agent/skimmer/extract"
	"github.com/use-agent/skimmer/fetch"
	"github.com/use-agent/skimmer/gate"
	"github.com/use-agent/skimmer/pipeline"
	"github.com/use-agent/skimmer/pool"
	"github.com/use-agent/skimmer/reliability"
	"github.com/use-agent/skimmer/renderer"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("skimmer starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"poolMax", cfg.Pool.MaxSize,
	)

	// ── 3. Event sinks ──────────────────────────────────────────────
	sinks := events.MultiSink{events.NewSlogSink(slog.Default())}
	promSink, err := events.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		slog.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}
	sinks = append(sinks, promSink)
	if cfg.Events.WebhookURL != "" {
		var ops []events.Operation
		for _, op := range cfg.Events.WebhookOps {
			ops = append(ops, events.Operation(op))
		}
		sinks = append(sinks, events.NewWebhookSink(cfg.Events.WebhookURL, cfg.Events.WebhookSecret, ops...))
		slog.Info("webhook sink enabled", "url", cfg.Events.WebhookURL)
	}
	var sink events.Sink = sinks

	// ── 4. Cache store ──────────────────────────────────────────────
	var store cache.Store
	switch cfg.Cache.Backend {
	case "redis":
		rc := cache.NewRedis(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, slog.Default())
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rc.Ping(pingCtx); err != nil {
			slog.Error("redis unreachable", "addr", cfg.Cache.RedisAddr, "error", err)
			cancel()
			os.Exit(1)
		}
		cancel()
		defer rc.Close()
		store = rc
		slog.Info("redis cache enabled", "addr", cfg.Cache.RedisAddr)
	default:
		mc := cache.NewMemory(cfg.Cache.MaxEntries)
		defer mc.Stop()
		store = mc
	}

	// ── 5. Extraction pool + health monitor ─────────────────────────
	factory := extract.NewWorkerFactory(extract.NewReadabilityExtractor())
	workerPool := pool.New(pool.Config{
		MaxPoolSize:         cfg.Pool.MaxSize,
		InitialPoolSize:     cfg.Pool.InitialSize,
		MemoryLimitBytes:    cfg.Pool.MemoryLimitBytes,
		AcquireTimeout:      cfg.Pool.AcquireTimeout,
		HealthCheckInterval: cfg.Pool.HealthCheckInterval,
		InstanceMaxAge:      cfg.Pool.InstanceMaxAge,
		InstanceIdleTimeout: cfg.Pool.InstanceIdleTimeout,
		MaxFailures:         cfg.Pool.MaxFailures,
		MaxGrowFailures:     cfg.Pool.MaxGrowFailures,
	}, factory, sink, slog.Default())
	workerPool.WarmUp(context.Background(), cfg.Pool.InitialSize)

	monitor := pool.NewHealthMonitor(workerPool)
	monitor.Start()
	defer monitor.Stop()

	// ── 6. Breaker + dispatcher ─────────────────────────────────────
	breaker := reliability.NewBreaker(reliability.BreakerConfig{
		FailureThreshold:    cfg.Breaker.FailureThreshold,
		OpenCooldown:        cfg.Breaker.OpenCooldown,
		HalfOpenMaxInFlight: cfg.Breaker.HalfOpenMaxInFlight,
		HalfOpenSuccesses:   cfg.Breaker.HalfOpenSuccesses,
	}, nil)
	dispatcher := reliability.NewDispatcher(breaker, reliability.DispatcherConfig{
		AttemptTimeout: cfg.Retry.AttemptTimeout,
	}, sink, slog.Default())

	// ── 7. Gate router ──────────────────────────────────────────────
	router := gate.NewRouter(gate.RouterConfig{
		HiThreshold:   cfg.Gate.HiThreshold,
		LoThreshold:   cfg.Gate.LoThreshold,
		HostMemoryTTL: cfg.Gate.HostMemoryTTL,
	})
	defer router.Stop()

	// ── 8. Renderer (optional browser) ──────────────────────────────
	var rend renderer.Renderer = renderer.Unavailable
	if cfg.Renderer.Enabled {
		rod, err := renderer.NewRod(renderer.Config{
			Headless:   cfg.Renderer.Headless,
			MaxPages:   cfg.Renderer.MaxPages,
			NavTimeout: cfg.Renderer.NavTimeout,
			NoSandbox:  cfg.Renderer.NoSandbox,
			BrowserBin: cfg.Renderer.BrowserBin,
			Proxy:      cfg.Renderer.Proxy,
		}, slog.Default())
		if err != nil {
			// Headless decisions will degrade to raw extraction.
			slog.Warn("browser unavailable, running fetch-only", "error", err)
		} else {
			defer rod.Close()
			rend = rod
		}
	}

	// ── 9. Pipeline ─────────────────────────────────────────────────
	fetcher := fetch.NewClient(cfg.Fetch.Timeout)
	pipe := pipeline.New(pipeline.Config{
		ProbeQualityThreshold: cfg.Gate.ProbeQualityThreshold,
		CacheTTL:              cfg.Cache.TTL,
		Retry: reliability.RetryConfig{
			MaxAttempts:       cfg.Retry.MaxAttempts,
			InitialDelay:      cfg.Retry.InitialDelay,
			BackoffMultiplier: cfg.Retry.BackoffFactor,
			MaxDelay:          cfg.Retry.MaxDelay,
			Jitter:            true,
		},
	}, fetcher, workerPool, dispatcher, router, rend, store, sink, slog.Default())

	// ── 10. HTTP server ─────────────────────────────────────────────
	startTime := time.Now()
	engine := api.NewRouter(pipe, workerPool, dispatcher, store, cfg, startTime)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 11. Graceful shutdown ───────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight requests 5 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	workerPool.Shutdown(ctx)
	slog.Info("skimmer stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
