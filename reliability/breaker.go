// Package reliability wraps extraction strategies with retry, circuit
// breaking, and fallback composition.
package reliability

import (
	"sync"
	"time"
)

// State is the circuit breaker state.
type State int

const (
	// Closed admits every call.
	Closed State = iota
	// Open rejects every call until the cooldown elapses.
	Open
	// HalfOpen admits a bounded number of probe calls.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// BreakerConfig parameterizes a circuit breaker. The named preset
// constructors below cover the common call profiles.
type BreakerConfig struct {
	// FailureThreshold is how many consecutive failures open the circuit.
	FailureThreshold int // default: 5

	// OpenCooldown is how long the circuit stays open before probing.
	OpenCooldown time.Duration // default: 30s

	// HalfOpenMaxInFlight caps concurrent probe calls while half-open.
	HalfOpenMaxInFlight int // default: 3

	// HalfOpenSuccesses is how many consecutive probe successes close the
	// circuit. Zero means HalfOpenMaxInFlight.
	HalfOpenSuccesses int
}

func (c *BreakerConfig) defaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.OpenCooldown <= 0 {
		c.OpenCooldown = 30 * time.Second
	}
	if c.HalfOpenMaxInFlight <= 0 {
		c.HalfOpenMaxInFlight = 3
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = c.HalfOpenMaxInFlight
	}
}

// Aggressive trips fast and probes with a single call. For dependencies
// where failing fast matters more than availability.
func Aggressive() BreakerConfig {
	return BreakerConfig{FailureThreshold: 2, OpenCooldown: 5 * time.Second, HalfOpenMaxInFlight: 1, HalfOpenSuccesses: 1}
}

// Permissive tolerates long failure streaks before tripping.
func Permissive() BreakerConfig {
	return BreakerConfig{FailureThreshold: 10, OpenCooldown: 2 * time.Minute, HalfOpenMaxInFlight: 3, HalfOpenSuccesses: 3}
}

// HTTPDefaults suits outbound HTTP fetches.
func HTTPDefaults() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, OpenCooldown: 30 * time.Second, HalfOpenMaxInFlight: 3, HalfOpenSuccesses: 3}
}

// DatabaseDefaults suits database-backed stores.
func DatabaseDefaults() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, OpenCooldown: time.Minute, HalfOpenMaxInFlight: 2, HalfOpenSuccesses: 2}
}

// CacheDefaults suits cache lookups, where stale beats slow.
func CacheDefaults() BreakerConfig {
	return BreakerConfig{FailureThreshold: 3, OpenCooldown: 10 * time.Second, HalfOpenMaxInFlight: 2, HalfOpenSuccesses: 2}
}

// InternalDefaults suits in-process subsystems such as the renderer.
func InternalDefaults() BreakerConfig {
	return BreakerConfig{FailureThreshold: 3, OpenCooldown: time.Minute, HalfOpenMaxInFlight: 2, HalfOpenSuccesses: 2}
}

// Breaker is a three-state circuit breaker. Callers ask Allow before a call
// and report the outcome with RecordSuccess or RecordFailure. Safe for
// concurrent use.
type Breaker struct {
	cfg   BreakerConfig
	clock Clock

	mu               sync.Mutex
	state            State
	consecFailures   int
	openedAt         time.Time
	halfOpenInFlight int
	halfOpenOK       int
}

// NewBreaker creates a closed breaker. A nil clock uses the system clock.
func NewBreaker(cfg BreakerConfig, clock Clock) *Breaker {
	cfg.defaults()
	if clock == nil {
		clock = SystemClock
	}
	return &Breaker{cfg: cfg, clock: clock}
}

// Allow reports whether a call may proceed. An Open breaker whose cooldown
// has elapsed transitions to HalfOpen here; HalfOpen admission is capped so
// that at most HalfOpenMaxInFlight probes run at once. Every admitted call
// must be concluded with RecordSuccess or RecordFailure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.clock.Now().Sub(b.openedAt) < b.cfg.OpenCooldown {
			return false
		}
		b.state = HalfOpen
		b.halfOpenInFlight = 0
		b.halfOpenOK = 0
		fallthrough
	case HalfOpen:
		if b.halfOpenInFlight >= b.cfg.HalfOpenMaxInFlight {
			return false
		}
		b.halfOpenInFlight++
		return true
	}
	return false
}

// RecordSuccess concludes an admitted call that succeeded.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.consecFailures = 0
	case HalfOpen:
		b.halfOpenInFlight--
		b.halfOpenOK++
		if b.halfOpenOK >= b.cfg.HalfOpenSuccesses {
			b.state = Closed
			b.consecFailures = 0
		}
	case Open:
		// A call that raced the trip; its result no longer matters.
	}
}

// RecordFailure concludes an admitted call that failed. A single failure
// while HalfOpen reopens the circuit and restarts the cooldown clock.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.consecFailures++
		if b.consecFailures >= b.cfg.FailureThreshold {
			b.state = Open
			b.openedAt = b.clock.Now()
		}
	case HalfOpen:
		b.halfOpenInFlight--
		b.state = Open
		b.openedAt = b.clock.Now()
	case Open:
	}
}

// State returns the current state, accounting for an elapsed cooldown.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.clock.Now().Sub(b.openedAt) >= b.cfg.OpenCooldown {
		return HalfOpen
	}
	return b.state
}

// Reset forces the breaker closed. For tests and operator intervention.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.consecFailures = 0
	b.halfOpenInFlight = 0
	b.halfOpenOK = 0
}
