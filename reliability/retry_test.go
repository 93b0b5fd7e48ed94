package reliability

import (
	"testing"
	"time"
)

func TestDelayGrowsMonotonically(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:       5,
		InitialDelay:      100 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxDelay:          10 * time.Second,
		Jitter:            false,
	}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 8; attempt++ {
		d := cfg.Delay(attempt)
		if d < prev {
			t.Fatalf("Delay(%d) = %v decreased from %v", attempt, d, prev)
		}
		prev = d
	}
}

func TestDelayExactSequence(t *testing.T) {
	cfg := RetryConfig{
		InitialDelay:      100 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxDelay:          time.Second,
		Jitter:            false,
	}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second, // capped
		time.Second,
	}
	for i, w := range want {
		if got := cfg.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestDelayJitterStaysBounded(t *testing.T) {
	cfg := RetryConfig{
		InitialDelay:      100 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxDelay:          10 * time.Second,
		Jitter:            true,
	}

	base := 100 * time.Millisecond
	for i := 0; i < 100; i++ {
		d := cfg.Delay(1)
		if d < base {
			t.Fatalf("jittered delay %v below base %v", d, base)
		}
		if limit := base + base/20; d > limit {
			t.Fatalf("jittered delay %v above base+5%% (%v)", d, limit)
		}
	}
}

func TestDelayDefaultsApplied(t *testing.T) {
	var cfg RetryConfig
	if got := cfg.Delay(1); got < 500*time.Millisecond {
		t.Errorf("zero-value Delay(1) = %v, want >= default initial 500ms", got)
	}
}
