package events

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink mirrors the event stream into Prometheus collectors.
type PrometheusSink struct {
	events    *prometheus.CounterVec
	durations *prometheus.HistogramVec
	gauges    *prometheus.GaugeVec
}

// NewPrometheusSink creates a sink and registers its collectors on reg.
// Pass prometheus.DefaultRegisterer for the process-wide registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	s := &PrometheusSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skimmer",
			Name:      "events_total",
			Help:      "Operational events by component and operation.",
		}, []string{"component", "op"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "skimmer",
			Name:      "operation_duration_seconds",
			Help:      "Duration of timed operations by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"op"}),
		gauges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "skimmer",
			Name:      "state",
			Help:      "Point-in-time gauges reported alongside events.",
		}, []string{"component", "name"}),
	}

	for _, c := range []prometheus.Collector{s.events, s.durations, s.gauges} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *PrometheusSink) Emit(_ context.Context, ev Event) {
	s.events.WithLabelValues(ev.Component, string(ev.Op)).Inc()
	if ev.Duration > 0 {
		s.durations.WithLabelValues(string(ev.Op)).Observe(ev.Duration.Seconds())
	}
	for name, v := range ev.Metrics {
		s.gauges.WithLabelValues(ev.Component, name).Set(v)
	}
}
