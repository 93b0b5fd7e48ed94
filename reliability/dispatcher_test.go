package reliability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/use-agent/skimmer/events"
	"github.com/use-agent/skimmer/models"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:       attempts,
		InitialDelay:      time.Millisecond,
		BackoffMultiplier: 1.0,
		MaxDelay:          time.Millisecond,
	}
}

func okStrategy(name string) Strategy {
	return func(context.Context) (*models.Document, error) {
		return &models.Document{ExtractedBy: name}, nil
	}
}

func failStrategy(err error) Strategy {
	return func(context.Context) (*models.Document, error) {
		return nil, err
	}
}

func newTestDispatcher(cfg BreakerConfig) *Dispatcher {
	return NewDispatcher(NewBreaker(cfg, nil), DispatcherConfig{AttemptTimeout: time.Second}, nil, nil)
}

func TestExtractPrimarySucceeds(t *testing.T) {
	d := newTestDispatcher(HTTPDefaults())

	res, err := d.Extract(context.Background(), okStrategy("primary"), okStrategy("fallback"), fastRetry(3))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.UsedFallback || res.CircuitSkipped {
		t.Errorf("result = %+v, want primary outcome", res)
	}
	if res.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", res.Attempts)
	}
	if res.Doc.ExtractedBy != "primary" {
		t.Errorf("ExtractedBy = %q, want primary", res.Doc.ExtractedBy)
	}
}

func TestExtractRetriesThenSucceeds(t *testing.T) {
	d := newTestDispatcher(HTTPDefaults())

	calls := 0
	primary := func(context.Context) (*models.Document, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("flaky")
		}
		return &models.Document{ExtractedBy: "primary"}, nil
	}

	res, err := d.Extract(context.Background(), primary, okStrategy("fallback"), fastRetry(3))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", res.Attempts)
	}
	if res.UsedFallback {
		t.Error("fallback used despite eventual primary success")
	}
}

func TestExtractFallsBackAfterExhaustion(t *testing.T) {
	d := newTestDispatcher(HTTPDefaults())

	calls := 0
	primary := func(context.Context) (*models.Document, error) {
		calls++
		return nil, errors.New("down")
	}

	res, err := d.Extract(context.Background(), primary, okStrategy("fallback"), fastRetry(3))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if calls != 3 {
		t.Errorf("primary ran %d times, want 3", calls)
	}
	if !res.UsedFallback {
		t.Error("result not tagged as fallback")
	}
	if !res.Doc.FallbackUsed {
		t.Error("document not tagged as fallback")
	}
}

func TestExtractAllStrategiesFailed(t *testing.T) {
	d := newTestDispatcher(HTTPDefaults())

	_, err := d.Extract(context.Background(),
		failStrategy(errors.New("down")),
		failStrategy(errors.New("also down")),
		fastRetry(2))
	if !errors.Is(err, ErrAllStrategiesFailed) {
		t.Fatalf("error = %v, want ErrAllStrategiesFailed", err)
	}
}

func TestOpenBreakerSkipsPrimary(t *testing.T) {
	d := newTestDispatcher(BreakerConfig{FailureThreshold: 3, OpenCooldown: time.Hour})
	ctx := context.Background()

	// Three all-fail dispatches, one primary attempt each, trip the breaker.
	for i := 0; i < 3; i++ {
		res, err := d.Extract(ctx, failStrategy(errors.New("down")), okStrategy("fallback"), fastRetry(1))
		if err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
		if !res.UsedFallback {
			t.Fatalf("dispatch %d: expected fallback", i)
		}
	}
	if got := d.Breaker().State(); got != Open {
		t.Fatalf("breaker state = %v, want Open", got)
	}

	// Fourth dispatch must not touch the primary at all.
	primaryCalls := 0
	primary := func(context.Context) (*models.Document, error) {
		primaryCalls++
		return nil, errors.New("down")
	}
	res, err := d.Extract(ctx, primary, okStrategy("fallback"), fastRetry(3))
	if err != nil {
		t.Fatalf("Extract with open breaker: %v", err)
	}
	if primaryCalls != 0 {
		t.Errorf("primary ran %d times with open breaker, want 0", primaryCalls)
	}
	if !res.CircuitSkipped || !res.UsedFallback {
		t.Errorf("result = %+v, want circuit-skipped fallback", res)
	}
	if res.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", res.Attempts)
	}
}

func TestOpenBreakerFallbackFailureIsFatal(t *testing.T) {
	d := newTestDispatcher(BreakerConfig{FailureThreshold: 1, OpenCooldown: time.Hour})
	ctx := context.Background()

	d.Extract(ctx, failStrategy(errors.New("down")), okStrategy("fallback"), fastRetry(1))

	_, err := d.Extract(ctx, okStrategy("primary"), failStrategy(errors.New("down too")), fastRetry(1))
	if !errors.Is(err, ErrAllStrategiesFailed) {
		t.Fatalf("error = %v, want ErrAllStrategiesFailed", err)
	}
}

func TestAttemptTimeoutCountsAsFailure(t *testing.T) {
	breaker := NewBreaker(BreakerConfig{FailureThreshold: 1, OpenCooldown: time.Hour}, nil)
	d := NewDispatcher(breaker, DispatcherConfig{AttemptTimeout: 10 * time.Millisecond}, nil, nil)

	hung := func(ctx context.Context) (*models.Document, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	res, err := d.Extract(context.Background(), hung, okStrategy("fallback"), fastRetry(1))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !res.UsedFallback {
		t.Error("expected fallback after attempt timeout")
	}
	if got := breaker.State(); got != Open {
		t.Errorf("breaker state = %v, want Open (timeout fed the breaker)", got)
	}
}

type recordingSink struct {
	mu  sync.Mutex
	ops []events.Operation
}

func (s *recordingSink) Emit(_ context.Context, ev events.Event) {
	s.mu.Lock()
	s.ops = append(s.ops, ev.Op)
	s.mu.Unlock()
}

func (s *recordingSink) breakerOps() []events.Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Operation
	for _, op := range s.ops {
		switch op {
		case events.OpBreakerOpened, events.OpBreakerHalfOpen, events.OpBreakerClosed:
			out = append(out, op)
		}
	}
	return out
}

func TestDispatcherEmitsBreakerTransitions(t *testing.T) {
	sink := &recordingSink{}
	breaker := NewBreaker(BreakerConfig{
		FailureThreshold:    1,
		OpenCooldown:        20 * time.Millisecond,
		HalfOpenMaxInFlight: 1,
	}, nil)
	d := NewDispatcher(breaker, DispatcherConfig{AttemptTimeout: time.Second}, sink, nil)
	ctx := context.Background()

	// One failing dispatch trips the breaker.
	if _, err := d.Extract(ctx, failStrategy(errors.New("down")), okStrategy("fallback"), fastRetry(1)); err != nil {
		t.Fatalf("failing dispatch: %v", err)
	}

	// After the cooldown a successful dispatch walks half-open back to closed.
	time.Sleep(30 * time.Millisecond)
	if _, err := d.Extract(ctx, okStrategy("primary"), okStrategy("fallback"), fastRetry(1)); err != nil {
		t.Fatalf("recovering dispatch: %v", err)
	}

	want := []events.Operation{events.OpBreakerOpened, events.OpBreakerHalfOpen, events.OpBreakerClosed}
	got := sink.breakerOps()
	if len(got) != len(want) {
		t.Fatalf("breaker events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("breaker event[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestExtractStopsRetryingOnCancel(t *testing.T) {
	d := newTestDispatcher(HTTPDefaults())
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	primary := func(context.Context) (*models.Document, error) {
		calls++
		cancel()
		return nil, errors.New("down")
	}

	res, err := d.Extract(ctx, primary, okStrategy("fallback"), fastRetry(5))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if calls != 1 {
		t.Errorf("primary ran %d times after cancel, want 1", calls)
	}
	if !res.UsedFallback {
		t.Error("expected fallback result")
	}
}
