package gate

import (
	"net/url"
	"sync"
	"time"
)

// hostEntry stores the remembered decision for a host with a TTL.
type hostEntry struct {
	decision  Decision
	expiresAt time.Time
}

// HostMemory remembers which strategy worked for each host. Entries expire
// after the configured TTL and are pruned periodically.
type HostMemory struct {
	store sync.Map // host (string) -> *hostEntry
	ttl   time.Duration
	done  chan struct{}
}

// NewHostMemory creates a HostMemory with the given TTL and starts a
// background goroutine that prunes expired entries every hour.
func NewHostMemory(ttl time.Duration) *HostMemory {
	hm := &HostMemory{
		ttl:  ttl,
		done: make(chan struct{}),
	}
	go hm.cleanupLoop()
	return hm
}

// Get returns the remembered decision for a host. ok is false when nothing
// is remembered or the entry expired.
func (hm *HostMemory) Get(host string) (Decision, bool) {
	val, found := hm.store.Load(host)
	if !found {
		return Raw, false
	}
	entry := val.(*hostEntry)
	if time.Now().After(entry.expiresAt) {
		hm.store.Delete(host)
		return Raw, false
	}
	return entry.decision, true
}

// Set records the strategy that worked for a host.
func (hm *HostMemory) Set(host string, d Decision) {
	hm.store.Store(host, &hostEntry{
		decision:  d,
		expiresAt: time.Now().Add(hm.ttl),
	})
}

// Delete removes the memory for a host (e.g. after the remembered strategy fails).
func (hm *HostMemory) Delete(host string) {
	hm.store.Delete(host)
}

// Stop terminates the background cleanup goroutine.
func (hm *HostMemory) Stop() {
	close(hm.done)
}

func (hm *HostMemory) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-hm.done:
			return
		case <-ticker.C:
			now := time.Now()
			hm.store.Range(func(key, value any) bool {
				entry := value.(*hostEntry)
				if now.After(entry.expiresAt) {
					hm.store.Delete(key)
				}
				return true
			})
		}
	}
}

// RouterConfig holds the gate thresholds.
type RouterConfig struct {
	// HiThreshold and above goes Raw; LoThreshold and below goes Headless.
	// Must satisfy Hi > Lo.
	HiThreshold float64 // default: 0.7
	LoThreshold float64 // default: 0.3

	// HostMemoryTTL is how long a learned per-host decision holds.
	HostMemoryTTL time.Duration // default: 1h
}

func (c *RouterConfig) defaults() {
	if c.HiThreshold <= 0 {
		c.HiThreshold = 0.7
	}
	if c.LoThreshold <= 0 {
		c.LoThreshold = 0.3
	}
	if c.HostMemoryTTL <= 0 {
		c.HostMemoryTTL = time.Hour
	}
}

// Router wraps the pure Decide with per-host learned decisions.
type Router struct {
	cfg    RouterConfig
	memory *HostMemory
}

// NewRouter creates a router. Call Stop when done.
func NewRouter(cfg RouterConfig) *Router {
	cfg.defaults()
	return &Router{
		cfg:    cfg,
		memory: NewHostMemory(cfg.HostMemoryTTL),
	}
}

// Route decides the strategy for a URL. A cache hit or a remembered per-host
// decision bypasses scoring; otherwise the decision comes from the score and
// the configured thresholds.
func (r *Router) Route(rawURL string, f ContentFeatures, cacheHit bool) Decision {
	if cacheHit {
		return Cached
	}
	if d, ok := r.memory.Get(hostOf(rawURL)); ok {
		return d
	}
	return Decide(Score(f), r.cfg.HiThreshold, r.cfg.LoThreshold, false)
}

// Remember teaches the router that a strategy worked for a URL's host.
func (r *Router) Remember(rawURL string, d Decision) {
	r.memory.Set(hostOf(rawURL), d)
}

// Forget clears the learned decision for a URL's host, typically after the
// remembered strategy failed.
func (r *Router) Forget(rawURL string) {
	r.memory.Delete(hostOf(rawURL))
}

// Thresholds returns the configured hi/lo pair.
func (r *Router) Thresholds() (hi, lo float64) {
	return r.cfg.HiThreshold, r.cfg.LoThreshold
}

// Stop releases the router's background resources.
func (r *Router) Stop() {
	r.memory.Stop()
}

func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return u.Host
	}
	return rawURL
}
