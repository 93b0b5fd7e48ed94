package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Pool      PoolConfig
	Breaker   BreakerConfig
	Retry     RetryConfig
	Gate      GateConfig
	Renderer  RendererConfig
	Fetch     FetchConfig
	Cache     CacheConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Events    EventsConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// PoolConfig controls the extraction worker pool.
type PoolConfig struct {
	// MaxSize is the hard cap on live instances.
	MaxSize int // default: 8

	// InitialSize is how many instances are pre-created at startup.
	InitialSize int // default: 2

	// MemoryLimitBytes is the per-instance memory limit.
	MemoryLimitBytes int64 // default: 256 MiB

	// AcquireTimeout bounds how long a request waits for a free instance.
	AcquireTimeout time.Duration // default: 5s

	// HealthCheckInterval is the period of the background health sweep.
	HealthCheckInterval time.Duration // default: 60s

	// InstanceMaxAge retires instances regardless of health.
	InstanceMaxAge time.Duration // default: 1h

	// InstanceIdleTimeout retires instances that sat unused too long.
	InstanceIdleTimeout time.Duration // default: 30m

	// MaxFailures retires instances whose failure count exceeds it.
	MaxFailures int64 // default: 5

	// MaxGrowFailures retires instances whose memory tracker rejected
	// more than this many growth attempts.
	MaxGrowFailures int64 // default: 10
}

// BreakerConfig controls the circuit breaker guarding the primary strategy.
type BreakerConfig struct {
	// FailureThreshold is how many consecutive failures open the circuit.
	FailureThreshold int // default: 5

	// OpenCooldown is how long the circuit stays open before probing.
	OpenCooldown time.Duration // default: 30s

	// HalfOpenMaxInFlight caps concurrent probes while half-open.
	HalfOpenMaxInFlight int // default: 3

	// HalfOpenSuccesses is how many consecutive probe successes close the
	// circuit again. Zero defers to the breaker's default (the in-flight cap).
	HalfOpenSuccesses int // default: 0
}

// RetryConfig controls the primary strategy's retry loop.
type RetryConfig struct {
	MaxAttempts    int           // default: 3
	InitialDelay   time.Duration // default: 500ms
	BackoffFactor  float64       // default: 2.0
	MaxDelay       time.Duration // default: 10s
	AttemptTimeout time.Duration // default: 10s
}

// GateConfig controls the scoring gate and its per-host memory.
type GateConfig struct {
	// HiThreshold is the score at or above which pages extract as-is.
	HiThreshold float64 // default: 0.7

	// LoThreshold is the score at or below which pages render first.
	LoThreshold float64 // default: 0.3

	// ProbeQualityThreshold is the minimum word count a raw probe must
	// produce before an ambiguous page skips rendering.
	ProbeQualityThreshold int // default: 100

	// HostMemoryTTL is how long a learned per-host decision sticks.
	HostMemoryTTL time.Duration // default: 1h
}

// RendererConfig controls the headless browser.
type RendererConfig struct {
	// Enabled toggles the browser entirely. When false, Headless
	// decisions degrade to raw extraction.
	Enabled bool // default: true

	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int // default: 8

	// NavTimeout is the max time for navigation alone.
	NavTimeout time.Duration // default: 20s

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is the proxy URL for all browser traffic.
	Proxy string
}

// FetchConfig controls the plain HTTP fetcher.
type FetchConfig struct {
	// Timeout is the deadline for one fetch.
	Timeout time.Duration // default: 15s
}

// CacheConfig controls the extracted-document cache.
type CacheConfig struct {
	// Backend selects the store: "memory" or "redis".
	Backend string // default: "memory"

	// MaxEntries bounds the in-memory store.
	MaxEntries int // default: 1000

	// TTL is how long documents stay cached.
	TTL time.Duration // default: 1h

	// RedisAddr is the host:port of the Redis server.
	RedisAddr string // default: "localhost:6379"

	// RedisPassword is the Redis AUTH password, if any.
	RedisPassword string

	// RedisDB is the Redis database number.
	RedisDB int // default: 0
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys (for MVP; replace with DB later).
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// EventsConfig controls the operational event sinks.
type EventsConfig struct {
	// WebhookURL, when set, mirrors events to an HTTP endpoint.
	WebhookURL string

	// WebhookSecret signs webhook deliveries (HMAC-SHA256).
	WebhookSecret string

	// WebhookOps filters which operations are delivered; empty means all.
	WebhookOps []string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("SKIMMER_HOST", "0.0.0.0"),
			Port: envIntOr("SKIMMER_PORT", 8080),
			Mode: envOr("SKIMMER_MODE", "release"),
		},
		Pool: PoolConfig{
			MaxSize:             envIntOr("SKIMMER_POOL_MAX", 8),
			InitialSize:         envIntOr("SKIMMER_POOL_INITIAL", 2),
			MemoryLimitBytes:    envInt64Or("SKIMMER_POOL_MEM_LIMIT", 256<<20),
			AcquireTimeout:      envDurationOr("SKIMMER_POOL_ACQUIRE_TIMEOUT", 5*time.Second),
			HealthCheckInterval: envDurationOr("SKIMMER_POOL_HEALTH_INTERVAL", time.Minute),
			InstanceMaxAge:      envDurationOr("SKIMMER_POOL_INSTANCE_MAX_AGE", time.Hour),
			InstanceIdleTimeout: envDurationOr("SKIMMER_POOL_IDLE_TIMEOUT", 30*time.Minute),
			MaxFailures:         envInt64Or("SKIMMER_POOL_MAX_FAILURES", 5),
			MaxGrowFailures:     envInt64Or("SKIMMER_POOL_MAX_GROW_FAILURES", 10),
		},
		Breaker: BreakerConfig{
			FailureThreshold:    envIntOr("SKIMMER_BREAKER_THRESHOLD", 5),
			OpenCooldown:        envDurationOr("SKIMMER_BREAKER_COOLDOWN", 30*time.Second),
			HalfOpenMaxInFlight: envIntOr("SKIMMER_BREAKER_HALF_OPEN_MAX", 3),
			HalfOpenSuccesses:   envIntOr("SKIMMER_BREAKER_HALF_OPEN_SUCCESSES", 0),
		},
		Retry: RetryConfig{
			MaxAttempts:    envIntOr("SKIMMER_RETRY_MAX_ATTEMPTS", 3),
			InitialDelay:   envDurationOr("SKIMMER_RETRY_INITIAL_DELAY", 500*time.Millisecond),
			BackoffFactor:  envFloatOr("SKIMMER_RETRY_BACKOFF_FACTOR", 2.0),
			MaxDelay:       envDurationOr("SKIMMER_RETRY_MAX_DELAY", 10*time.Second),
			AttemptTimeout: envDurationOr("SKIMMER_RETRY_ATTEMPT_TIMEOUT", 10*time.Second),
		},
		Gate: GateConfig{
			HiThreshold:           envFloatOr("SKIMMER_GATE_HI", 0.7),
			LoThreshold:           envFloatOr("SKIMMER_GATE_LO", 0.3),
			ProbeQualityThreshold: envIntOr("SKIMMER_GATE_PROBE_QUALITY", 100),
			HostMemoryTTL:         envDurationOr("SKIMMER_GATE_HOST_TTL", time.Hour),
		},
		Renderer: RendererConfig{
			Enabled:    envBoolOr("SKIMMER_RENDERER_ENABLED", true),
			Headless:   envBoolOr("SKIMMER_HEADLESS", true),
			MaxPages:   envIntOr("SKIMMER_MAX_PAGES", 8),
			NavTimeout: envDurationOr("SKIMMER_NAV_TIMEOUT", 20*time.Second),
			NoSandbox:  envBoolOr("SKIMMER_NO_SANDBOX", false),
			BrowserBin: os.Getenv("SKIMMER_BROWSER_BIN"),
			Proxy:      os.Getenv("SKIMMER_PROXY"),
		},
		Fetch: FetchConfig{
			Timeout: envDurationOr("SKIMMER_FETCH_TIMEOUT", 15*time.Second),
		},
		Cache: CacheConfig{
			Backend:       envOr("SKIMMER_CACHE_BACKEND", "memory"),
			MaxEntries:    envIntOr("SKIMMER_CACHE_MAX_ENTRIES", 1000),
			TTL:           envDurationOr("SKIMMER_CACHE_TTL", time.Hour),
			RedisAddr:     envOr("SKIMMER_REDIS_ADDR", "localhost:6379"),
			RedisPassword: os.Getenv("SKIMMER_REDIS_PASSWORD"),
			RedisDB:       envIntOr("SKIMMER_REDIS_DB", 0),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("SKIMMER_AUTH_ENABLED", true),
			APIKeys: envSliceOr("SKIMMER_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("SKIMMER_RATE_RPS", 5.0),
			Burst:             envIntOr("SKIMMER_RATE_BURST", 10),
		},
		Events: EventsConfig{
			WebhookURL:    os.Getenv("SKIMMER_WEBHOOK_URL"),
			WebhookSecret: os.Getenv("SKIMMER_WEBHOOK_SECRET"),
			WebhookOps:    envSliceOr("SKIMMER_WEBHOOK_OPS", nil),
		},
		Log: LogConfig{
			Level:  envOr("SKIMMER_LOG_LEVEL", "info"),
			Format: envOr("SKIMMER_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envInt64Or(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
