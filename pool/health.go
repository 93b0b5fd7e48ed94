package pool

import (
	"context"
	"time"

	"github.com/use-agent/skimmer/events"
)

// unhealthyReason returns why an idle instance must be evicted, or "" if it
// is healthy. Criteria, any one of which retires the instance:
//   - older than InstanceMaxAge
//   - more than MaxFailures failed uses
//   - memory high-water mark over the limit
//   - more than MaxGrowFailures rejected growth attempts
//   - idle longer than InstanceIdleTimeout
func (p *Pool) unhealthyReason(inst *Instance) string {
	switch {
	case inst.Age() > p.cfg.InstanceMaxAge:
		return "max age exceeded"
	case inst.FailureCount() > p.cfg.MaxFailures:
		return "failure count exceeded"
	case inst.MemoryUsage() > p.cfg.MemoryLimitBytes:
		return "memory limit exceeded"
	case inst.Tracker().GrowFailures() > p.cfg.MaxGrowFailures:
		return "grow failures exceeded"
	case inst.IdleFor() > p.cfg.InstanceIdleTimeout:
		return "idle timeout"
	}
	return ""
}

// sweep examines every idle instance once, evicting unhealthy ones and
// eagerly constructing replacements. Checked-out instances are judged on
// release by their next sweep. Returns how many instances were evicted.
func (p *Pool) sweep(ctx context.Context) int {
	evicted := 0
	for _, inst := range p.drainIdle() {
		reason := p.unhealthyReason(inst)
		if reason == "" {
			p.park(ctx, inst)
			continue
		}

		p.sink.Emit(ctx, events.Event{
			Op: events.OpInstanceUnhealthy, Component: "pool",
			PoolID: p.id, Instance: inst.ID, Reason: reason,
		})
		p.destroy(ctx, inst, reason)
		evicted++
		p.replaceEvicted(ctx)
	}

	p.sink.Emit(ctx, events.Event{
		Op: events.OpHealthSweep, Component: "pool",
		PoolID:  p.id,
		Metrics: p.sizeMetrics(),
	})
	return evicted
}

// replaceEvicted constructs one replacement instance outside the lock.
// Creation failure is logged, never fatal: the next Acquire will retry.
func (p *Pool) replaceEvicted(ctx context.Context) {
	p.mu.Lock()
	if p.closed || len(p.all)+p.pending >= p.cfg.MaxPoolSize {
		p.mu.Unlock()
		return
	}
	p.pending++
	p.mu.Unlock()

	inst, err := newInstance(p.factory, p.cfg.MemoryLimitBytes)

	p.mu.Lock()
	p.pending--
	if err == nil {
		p.all[inst.ID] = inst
	}
	p.mu.Unlock()

	if err != nil {
		p.log.Warn("pool: replacement instance creation failed", "error", err)
		return
	}
	if !p.park(ctx, inst) {
		return
	}
	p.sink.Emit(ctx, events.Event{
		Op: events.OpInstanceCreated, Component: "pool",
		PoolID: p.id, Instance: inst.ID, Reason: "replacement",
		Metrics: p.sizeMetrics(),
	})
}

// HealthMonitor runs the pool's sweep on a fixed interval. It is created
// stopped; the owner decides when it runs.
type HealthMonitor struct {
	pool     *Pool
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewHealthMonitor creates a monitor for p using p's configured interval.
func NewHealthMonitor(p *Pool) *HealthMonitor {
	return &HealthMonitor{
		pool:     p,
		interval: p.cfg.HealthCheckInterval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. Call Stop to end it.
func (m *HealthMonitor) Start() {
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.pool.sweep(context.Background())
			}
		}
	}()
}

// Stop ends the sweep loop and waits for it to exit.
func (m *HealthMonitor) Stop() {
	close(m.stop)
	<-m.done
}
