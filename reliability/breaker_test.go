package reliability

import (
	"testing"
	"time"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func tripBreaker(b *Breaker, failures int) {
	for i := 0; i < failures; i++ {
		if b.Allow() {
			b.RecordFailure()
		}
	}
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, OpenCooldown: 30 * time.Second}, clock)

	for i := 0; i < 2; i++ {
		if !b.Allow() {
			t.Fatalf("call %d rejected while closed", i)
		}
		b.RecordFailure()
	}
	if got := b.State(); got != Closed {
		t.Fatalf("state after 2 failures = %v, want Closed", got)
	}

	b.Allow()
	b.RecordFailure()
	if got := b.State(); got != Open {
		t.Fatalf("state after 3 failures = %v, want Open", got)
	}
	if b.Allow() {
		t.Fatal("open breaker admitted a call before cooldown")
	}
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3}, newFakeClock())

	b.Allow()
	b.RecordFailure()
	b.Allow()
	b.RecordFailure()
	b.Allow()
	b.RecordSuccess()

	// The streak restarted; two more failures must not trip it.
	b.Allow()
	b.RecordFailure()
	b.Allow()
	b.RecordFailure()
	if got := b.State(); got != Closed {
		t.Fatalf("state = %v, want Closed (streak was reset)", got)
	}
}

func TestBreakerHalfOpenAfterCooldown(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker(BreakerConfig{FailureThreshold: 2, OpenCooldown: 30 * time.Second}, clock)
	tripBreaker(b, 2)

	clock.Advance(29 * time.Second)
	if b.Allow() {
		t.Fatal("breaker admitted a call before the cooldown elapsed")
	}

	clock.Advance(time.Second)
	if !b.Allow() {
		t.Fatal("breaker rejected the probe after the cooldown elapsed")
	}
	if got := b.State(); got != HalfOpen {
		t.Fatalf("state = %v, want HalfOpen", got)
	}
}

func TestBreakerHalfOpenInFlightCap(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker(BreakerConfig{
		FailureThreshold:    2,
		OpenCooldown:        10 * time.Second,
		HalfOpenMaxInFlight: 2,
		HalfOpenSuccesses:   2,
	}, clock)
	tripBreaker(b, 2)
	clock.Advance(10 * time.Second)

	if !b.Allow() {
		t.Fatal("first probe rejected")
	}
	if !b.Allow() {
		t.Fatal("second probe rejected")
	}
	if b.Allow() {
		t.Fatal("third probe admitted past the in-flight cap")
	}

	// Concluding a probe frees a slot.
	b.RecordSuccess()
	if !b.Allow() {
		t.Fatal("probe rejected after a slot was freed")
	}
}

func TestBreakerClosesAfterProbeSuccesses(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker(BreakerConfig{
		FailureThreshold:    2,
		OpenCooldown:        10 * time.Second,
		HalfOpenMaxInFlight: 2,
		HalfOpenSuccesses:   2,
	}, clock)
	tripBreaker(b, 2)
	clock.Advance(10 * time.Second)

	b.Allow()
	b.RecordSuccess()
	if got := b.State(); got != HalfOpen {
		t.Fatalf("state after 1 probe success = %v, want HalfOpen", got)
	}
	b.Allow()
	b.RecordSuccess()
	if got := b.State(); got != Closed {
		t.Fatalf("state after 2 probe successes = %v, want Closed", got)
	}
}

func TestBreakerHalfOpenFailureReopensAndResetsCooldown(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker(BreakerConfig{
		FailureThreshold:    2,
		OpenCooldown:        10 * time.Second,
		HalfOpenMaxInFlight: 3,
	}, clock)
	tripBreaker(b, 2)
	clock.Advance(10 * time.Second)

	if !b.Allow() {
		t.Fatal("probe rejected")
	}
	b.RecordFailure()
	if got := b.State(); got != Open {
		t.Fatalf("state after probe failure = %v, want Open", got)
	}

	// The cooldown restarted at the probe failure, not the original trip.
	clock.Advance(9 * time.Second)
	if b.Allow() {
		t.Fatal("breaker admitted a call before the restarted cooldown elapsed")
	}
	clock.Advance(time.Second)
	if !b.Allow() {
		t.Fatal("breaker rejected the probe after the restarted cooldown")
	}
}

func TestBreakerReset(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1}, newFakeClock())
	tripBreaker(b, 1)
	if got := b.State(); got != Open {
		t.Fatalf("state = %v, want Open", got)
	}
	b.Reset()
	if got := b.State(); got != Closed {
		t.Fatalf("state after Reset = %v, want Closed", got)
	}
	if !b.Allow() {
		t.Fatal("reset breaker rejected a call")
	}
}

func TestBreakerPresets(t *testing.T) {
	tests := []struct {
		name      string
		cfg       BreakerConfig
		threshold int
		cooldown  time.Duration
		inFlight  int
	}{
		{"aggressive", Aggressive(), 2, 5 * time.Second, 1},
		{"permissive", Permissive(), 10, 2 * time.Minute, 3},
		{"http", HTTPDefaults(), 5, 30 * time.Second, 3},
		{"database", DatabaseDefaults(), 5, time.Minute, 2},
		{"cache", CacheDefaults(), 3, 10 * time.Second, 2},
		{"internal", InternalDefaults(), 3, time.Minute, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.cfg.FailureThreshold != tt.threshold {
				t.Errorf("FailureThreshold = %d, want %d", tt.cfg.FailureThreshold, tt.threshold)
			}
			if tt.cfg.OpenCooldown != tt.cooldown {
				t.Errorf("OpenCooldown = %v, want %v", tt.cfg.OpenCooldown, tt.cooldown)
			}
			if tt.cfg.HalfOpenMaxInFlight != tt.inFlight {
				t.Errorf("HalfOpenMaxInFlight = %d, want %d", tt.cfg.HalfOpenMaxInFlight, tt.inFlight)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		Closed:   "closed",
		Open:     "open",
		HalfOpen: "half_open",
		State(9): "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
