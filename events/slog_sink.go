package events

import (
	"context"
	"log/slog"
)

// SlogSink writes events to a structured logger. Failure-shaped operations
// log at WARN, everything else at DEBUG so the steady-state stream stays out
// of production logs unless asked for.
type SlogSink struct {
	log *slog.Logger
}

// NewSlogSink creates a sink over the given logger. A nil logger uses the
// process default.
func NewSlogSink(log *slog.Logger) *SlogSink {
	if log == nil {
		log = slog.Default()
	}
	return &SlogSink{log: log}
}

func (s *SlogSink) Emit(ctx context.Context, ev Event) {
	ev = ev.Stamp()

	attrs := make([]any, 0, 12)
	attrs = append(attrs, "component", ev.Component)
	if ev.PoolID != "" {
		attrs = append(attrs, "pool_id", ev.PoolID)
	}
	if ev.Instance != "" {
		attrs = append(attrs, "instance", ev.Instance)
	}
	if ev.URL != "" {
		attrs = append(attrs, "url", ev.URL)
	}
	if ev.Reason != "" {
		attrs = append(attrs, "reason", ev.Reason)
	}
	if ev.Duration > 0 {
		attrs = append(attrs, "duration_ms", ev.Duration.Milliseconds())
	}
	for k, v := range ev.Metrics {
		attrs = append(attrs, k, v)
	}

	level := slog.LevelDebug
	switch ev.Op {
	case OpPoolExhausted, OpInstanceUnhealthy, OpExtractionFailed,
		OpExtractionTimeout, OpBreakerOpened, OpRenderDegraded:
		level = slog.LevelWarn
	}

	s.log.Log(ctx, level, string(ev.Op), attrs...)
}
