package reliability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/use-agent/skimmer/events"
	"github.com/use-agent/skimmer/models"
)

// ErrAllStrategiesFailed is the only fatal error Extract surfaces: the
// primary strategy is exhausted (or skipped by the breaker) and the fallback
// failed too.
var ErrAllStrategiesFailed = errors.New("reliability: all extraction strategies failed")

// ErrAttemptTimeout marks a primary attempt killed by the per-attempt
// deadline. It counts as a failure toward the breaker.
var ErrAttemptTimeout = errors.New("reliability: attempt timed out")

// Strategy produces a document. The function owns its resource lifecycle:
// if it acquires a pool instance it must release it on every path.
type Strategy func(ctx context.Context) (*models.Document, error)

// Result is a successful dispatch outcome with its provenance.
type Result struct {
	Doc *models.Document

	// Attempts is how many primary attempts ran (0 when the breaker
	// skipped the primary entirely).
	Attempts int

	// UsedFallback is true when Doc came from the fallback strategy.
	UsedFallback bool

	// CircuitSkipped is true when the breaker was open and the primary
	// never ran.
	CircuitSkipped bool
}

// DispatcherConfig controls the reliable dispatcher.
type DispatcherConfig struct {
	// AttemptTimeout is the hard deadline for one primary attempt.
	AttemptTimeout time.Duration // default: 10s
}

// Dispatcher composes a primary strategy (retried, breaker-guarded,
// per-attempt deadline) with a fallback strategy.
type Dispatcher struct {
	breaker *Breaker
	cfg     DispatcherConfig
	sink    events.Sink
	log     *slog.Logger

	// lastState is the breaker state the dispatcher last reported, so
	// transitions are emitted exactly once.
	lastState atomic.Int32
}

// NewDispatcher creates a dispatcher around the given breaker.
func NewDispatcher(breaker *Breaker, cfg DispatcherConfig, sink events.Sink, log *slog.Logger) *Dispatcher {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 10 * time.Second
	}
	if sink == nil {
		sink = events.Discard
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{breaker: breaker, cfg: cfg, sink: sink, log: log}
}

// Breaker exposes the dispatcher's breaker for status reporting.
func (d *Dispatcher) Breaker() *Breaker { return d.breaker }

// Extract runs primary under retry and the breaker, falling back when the
// primary is exhausted or the circuit is open. A primary failure is never
// surfaced while the fallback can still answer; only ErrAllStrategiesFailed
// is fatal.
func (d *Dispatcher) Extract(ctx context.Context, primary, fallback Strategy, retry RetryConfig) (*Result, error) {
	retry.defaults()

	allowed := d.breaker.Allow()
	d.observeState(ctx)
	if !allowed {
		d.sink.Emit(ctx, events.Event{
			Op: events.OpFallbackUsed, Component: "dispatcher",
			Reason: "circuit open",
		})
		doc, err := fallback(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: circuit open and fallback failed: %v", ErrAllStrategiesFailed, err)
		}
		doc.FallbackUsed = true
		return &Result{Doc: doc, UsedFallback: true, CircuitSkipped: true}, nil
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt < retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, retry.Delay(attempt)); err != nil {
				lastErr = err
				break
			}
			// Re-check admission: the breaker may have tripped while
			// we were backing off.
			allowed := d.breaker.Allow()
			d.observeState(ctx)
			if !allowed {
				lastErr = errors.New("circuit opened during retries")
				break
			}
		}
		attempts++

		doc, err := d.runAttempt(ctx, primary)
		if err == nil {
			d.breaker.RecordSuccess()
			d.observeState(ctx)
			d.sink.Emit(ctx, events.Event{
				Op: events.OpExtractionCompleted, Component: "dispatcher",
			})
			return &Result{Doc: doc, Attempts: attempts}, nil
		}

		d.breaker.RecordFailure()
		d.observeState(ctx)
		lastErr = err
		op := events.OpExtractionFailed
		if errors.Is(err, ErrAttemptTimeout) {
			op = events.OpExtractionTimeout
		}
		d.sink.Emit(ctx, events.Event{
			Op: op, Component: "dispatcher", Reason: err.Error(),
		})
		d.log.Debug("primary extraction attempt failed",
			"attempt", attempts, "error", err)
	}

	d.sink.Emit(ctx, events.Event{
		Op: events.OpFallbackUsed, Component: "dispatcher",
		Reason: "primary exhausted",
	})
	doc, err := fallback(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: primary: %v; fallback: %v", ErrAllStrategiesFailed, lastErr, err)
	}
	doc.FallbackUsed = true
	return &Result{Doc: doc, Attempts: attempts, UsedFallback: true}, nil
}

// observeState emits a breaker transition event when the breaker state
// changed since the dispatcher last looked. Allow, RecordSuccess, and
// RecordFailure are the only movers, so checking after each keeps the
// event stream complete.
func (d *Dispatcher) observeState(ctx context.Context) {
	state := d.breaker.State()
	prev := State(d.lastState.Swap(int32(state)))
	if prev == state {
		return
	}

	var op events.Operation
	switch state {
	case Open:
		op = events.OpBreakerOpened
	case HalfOpen:
		op = events.OpBreakerHalfOpen
	default:
		op = events.OpBreakerClosed
	}
	d.sink.Emit(ctx, events.Event{
		Op: op, Component: "breaker",
		Reason: prev.String() + " -> " + state.String(),
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// runAttempt runs one primary attempt under the per-attempt deadline. The
// strategy gets a child context, so a timed-out attempt is cancelled rather
// than abandoned.
func (d *Dispatcher) runAttempt(ctx context.Context, primary Strategy) (*models.Document, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.AttemptTimeout)
	defer cancel()

	doc, err := primary(attemptCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %v", ErrAttemptTimeout, err)
		}
		return nil, err
	}
	return doc, nil
}
