// Package events defines the operational event stream emitted by the pool,
// the dispatcher, and the pipeline, plus the sinks that consume it.
//
// Emission is fire-and-forget: a sink failure is the sink's problem and never
// propagates to the code path that emitted the event.
package events

import (
	"context"
	"time"
)

// Operation identifies what happened.
type Operation string

const (
	OpInstanceCreated   Operation = "instance_created"
	OpInstanceAcquired  Operation = "instance_acquired"
	OpInstanceReleased  Operation = "instance_released"
	OpInstanceEvicted   Operation = "instance_evicted"
	OpInstanceUnhealthy Operation = "instance_unhealthy"
	OpPoolExhausted     Operation = "pool_exhausted"
	OpPoolWarmup        Operation = "pool_warmup"
	OpHealthSweep       Operation = "health_sweep"

	OpExtractionCompleted Operation = "extraction_completed"
	OpExtractionFailed    Operation = "extraction_failed"
	OpExtractionTimeout   Operation = "extraction_timeout"
	OpFallbackUsed        Operation = "fallback_used"

	OpBreakerOpened   Operation = "breaker_opened"
	OpBreakerHalfOpen Operation = "breaker_half_open"
	OpBreakerClosed   Operation = "breaker_closed"

	OpGateDecision   Operation = "gate_decision"
	OpRenderDegraded Operation = "render_degraded"
	OpCacheHit       Operation = "cache_hit"
	OpCacheStore     Operation = "cache_store"
)

// Event is a single operational occurrence. Component names the subsystem
// ("pool", "dispatcher", "gate", "pipeline"); the remaining fields are set
// when they apply.
type Event struct {
	Op        Operation
	Component string
	PoolID    string
	Instance  string
	URL       string
	Reason    string
	Duration  time.Duration
	Timestamp time.Time

	// Metrics carries point-in-time gauges keyed by name
	// (e.g. "pool_size", "pool_active", "memory_bytes").
	Metrics map[string]float64
}

// Sink consumes events. Implementations must be safe for concurrent use and
// must not block the caller for long; anything slow belongs behind a
// goroutine or a buffer inside the sink.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// Stamp fills Timestamp if the emitter left it zero.
func (ev Event) Stamp() Event {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	return ev
}

// Discard is a Sink that drops every event. Useful as a default.
var Discard Sink = discardSink{}

type discardSink struct{}

func (discardSink) Emit(context.Context, Event) {}

// MultiSink fans an event out to every child sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, ev Event) {
	for _, s := range m {
		s.Emit(ctx, ev)
	}
}
