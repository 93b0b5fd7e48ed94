// Package pool manages a bounded set of sandboxed extraction workers with
// per-instance resource tracking and background health eviction.
package pool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/use-agent/skimmer/events"
)

// ErrPoolExhausted is returned by Acquire when the pool is at capacity and no
// instance was released within the acquire timeout.
var ErrPoolExhausted = errors.New("pool: exhausted, no instance available")

// ErrPoolClosed is returned by Acquire after Shutdown.
var ErrPoolClosed = errors.New("pool: closed")

// Config controls pool sizing and health thresholds.
type Config struct {
	// MaxPoolSize is the hard cap on live instances.
	MaxPoolSize int // default: 8

	// InitialPoolSize is how many instances WarmUp pre-creates at startup.
	InitialPoolSize int // default: 2

	// MemoryLimitBytes is the per-instance memory limit enforced by the
	// instance's ResourceTracker.
	MemoryLimitBytes int64 // default: 256 MiB

	// AcquireTimeout bounds how long Acquire waits for a release once the
	// pool is at capacity.
	AcquireTimeout time.Duration // default: 5s

	// HealthCheckInterval is the sweep period of the health monitor.
	HealthCheckInterval time.Duration // default: 60s

	// InstanceMaxAge retires instances regardless of health.
	InstanceMaxAge time.Duration // default: 1h

	// InstanceIdleTimeout retires instances that sat unused too long.
	InstanceIdleTimeout time.Duration // default: 30m

	// MaxFailures retires instances whose failure count exceeds it.
	MaxFailures int64 // default: 5

	// MaxGrowFailures retires instances whose tracker rejected more than
	// this many growth attempts.
	MaxGrowFailures int64 // default: 10
}

func (c *Config) defaults() {
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = 8
	}
	if c.InitialPoolSize < 0 {
		c.InitialPoolSize = 0
	}
	if c.InitialPoolSize > c.MaxPoolSize {
		c.InitialPoolSize = c.MaxPoolSize
	}
	if c.MemoryLimitBytes <= 0 {
		c.MemoryLimitBytes = 256 << 20
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 5 * time.Second
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = 60 * time.Second
	}
	if c.InstanceMaxAge <= 0 {
		c.InstanceMaxAge = time.Hour
	}
	if c.InstanceIdleTimeout <= 0 {
		c.InstanceIdleTimeout = 30 * time.Minute
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.MaxGrowFailures <= 0 {
		c.MaxGrowFailures = 10
	}
}

// Pool is a bounded instance pool. Instances are created lazily up to
// MaxPoolSize; beyond that Acquire waits for a release.
type Pool struct {
	cfg     Config
	id      string
	factory WorkerFactory
	sink    events.Sink
	log     *slog.Logger

	idle chan *Instance

	mu      sync.Mutex
	all     map[string]*Instance
	pending int // constructions in flight, counted against MaxPoolSize
	closed  bool
}

// New creates a pool. The factory is invoked outside the pool lock.
func New(cfg Config, factory WorkerFactory, sink events.Sink, log *slog.Logger) *Pool {
	cfg.defaults()
	if sink == nil {
		sink = events.Discard
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		cfg:     cfg,
		id:      uuid.NewString(),
		factory: factory,
		sink:    sink,
		log:     log,
		idle:    make(chan *Instance, cfg.MaxPoolSize),
		all:     make(map[string]*Instance),
	}
}

// ID returns the pool's identity, carried on its events.
func (p *Pool) ID() string { return p.id }

// Acquire returns an instance, creating one if the pool is under capacity.
// At capacity it waits up to AcquireTimeout for a release, then returns
// ErrPoolExhausted. Every successful Acquire must be paired with Release.
func (p *Pool) Acquire(ctx context.Context) (*Instance, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}

	// Fast path: grab an idle instance without blocking. The grab happens
	// under the lock so it cannot interleave with Shutdown's idle drain.
	select {
	case inst := <-p.idle:
		p.mu.Unlock()
		p.emitAcquired(ctx, inst)
		return inst, nil
	default:
	}

	// Under capacity: reserve a slot and construct outside the lock.
	if len(p.all)+p.pending < p.cfg.MaxPoolSize {
		p.pending++
		p.mu.Unlock()

		inst, err := newInstance(p.factory, p.cfg.MemoryLimitBytes)

		p.mu.Lock()
		p.pending--
		if err == nil && p.closed {
			p.mu.Unlock()
			inst.close()
			return nil, ErrPoolClosed
		}
		if err == nil {
			p.all[inst.ID] = inst
		}
		p.mu.Unlock()

		if err != nil {
			return nil, err
		}
		p.sink.Emit(ctx, events.Event{
			Op: events.OpInstanceCreated, Component: "pool",
			PoolID: p.id, Instance: inst.ID,
			Metrics: p.sizeMetrics(),
		})
		p.emitAcquired(ctx, inst)
		return inst, nil
	}
	p.mu.Unlock()

	// At capacity: wait for a release.
	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()
	select {
	case inst := <-p.idle:
		p.emitAcquired(ctx, inst)
		return inst, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		p.sink.Emit(ctx, events.Event{
			Op: events.OpPoolExhausted, Component: "pool",
			PoolID:  p.id,
			Metrics: p.sizeMetrics(),
		})
		return nil, ErrPoolExhausted
	}
}

// Release returns an instance to the pool, recording whether its use
// succeeded. After Shutdown the instance is destroyed instead.
func (p *Pool) Release(ctx context.Context, inst *Instance, success bool) {
	if inst == nil {
		return
	}
	inst.recordUse(success)

	if p.park(ctx, inst) {
		p.sink.Emit(ctx, events.Event{
			Op: events.OpInstanceReleased, Component: "pool",
			PoolID: p.id, Instance: inst.ID,
		})
	}
}

// park returns an instance to the idle set, holding the lock across the
// liveness check and the send so neither can interleave with Shutdown's
// drain. Reports whether the instance was parked; otherwise it is destroyed.
func (p *Pool) park(ctx context.Context, inst *Instance) bool {
	p.mu.Lock()
	if p.closed || p.all[inst.ID] == nil {
		closed := p.closed
		p.mu.Unlock()
		reason := "evicted while checked out"
		if closed {
			reason = "released after shutdown"
		}
		p.destroy(ctx, inst, reason)
		return false
	}

	select {
	case p.idle <- inst:
		p.mu.Unlock()
		return true
	default:
		// Idle channel is sized to MaxPoolSize, so this means the instance
		// is no longer tracked. Drop it.
		p.mu.Unlock()
		p.destroy(ctx, inst, "idle set full")
		return false
	}
}

// WarmUp pre-creates up to n instances and parks them idle. Creation
// failures are logged and skipped, never fatal.
func (p *Pool) WarmUp(ctx context.Context, n int) int {
	created := 0
	for i := 0; i < n; i++ {
		p.mu.Lock()
		if p.closed || len(p.all)+p.pending >= p.cfg.MaxPoolSize {
			p.mu.Unlock()
			break
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
			p.log.Warn("pool: warmup instance creation failed", "error", err)
			continue
		}
		if !p.park(ctx, inst) {
			break
		}
		created++
		p.sink.Emit(ctx, events.Event{
			Op: events.OpInstanceCreated, Component: "pool",
			PoolID: p.id, Instance: inst.ID, Reason: "warmup",
			Metrics: p.sizeMetrics(),
		})
	}
	p.sink.Emit(ctx, events.Event{
		Op: events.OpPoolWarmup, Component: "pool",
		PoolID:  p.id,
		Metrics: map[string]float64{"created": float64(created)},
	})
	return created
}

// ClearHighMemoryInstances evicts idle instances above 80% of the memory
// limit and returns how many were destroyed. Intended for external memory
// pressure; checked-out instances are untouched.
func (p *Pool) ClearHighMemoryInstances(ctx context.Context) int {
	threshold := p.cfg.MemoryLimitBytes * 8 / 10
	evicted := 0

	kept := p.drainIdle()
	for _, inst := range kept {
		if inst.MemoryUsage() > threshold {
			p.destroy(ctx, inst, "high memory")
			evicted++
			continue
		}
		p.park(ctx, inst)
	}
	return evicted
}

// Stats is a point-in-time view of pool occupancy.
type Stats struct {
	Size    int   `json:"size"`
	Idle    int   `json:"idle"`
	Active  int   `json:"active"`
	MaxSize int   `json:"max_size"`
	Memory  int64 `json:"memory_bytes"`
}

// Stats reports current occupancy. Active counts checked-out instances.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	size := len(p.all)
	p.mu.Unlock()
	idle := len(p.idle)

	var mem int64
	p.mu.Lock()
	for _, inst := range p.all {
		mem += inst.MemoryUsage()
	}
	p.mu.Unlock()

	return Stats{
		Size:    size,
		Idle:    idle,
		Active:  size - idle,
		MaxSize: p.cfg.MaxPoolSize,
		Memory:  mem,
	}
}

// Shutdown destroys all instances and rejects further Acquires. Checked-out
// instances are destroyed when released.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	for _, inst := range p.drainIdle() {
		p.destroy(ctx, inst, "shutdown")
	}

	// Anything still tracked is checked out; forget it so Release destroys it.
	p.mu.Lock()
	p.all = make(map[string]*Instance)
	p.mu.Unlock()
}

// drainIdle empties the idle channel without blocking.
func (p *Pool) drainIdle() []*Instance {
	var out []*Instance
	for {
		select {
		case inst := <-p.idle:
			out = append(out, inst)
		default:
			return out
		}
	}
}

func (p *Pool) destroy(ctx context.Context, inst *Instance, reason string) {
	p.mu.Lock()
	delete(p.all, inst.ID)
	p.mu.Unlock()

	if err := inst.close(); err != nil {
		p.log.Warn("pool: instance close failed", "instance", inst.ID, "error", err)
	}
	p.sink.Emit(ctx, events.Event{
		Op: events.OpInstanceEvicted, Component: "pool",
		PoolID: p.id, Instance: inst.ID, Reason: reason,
		Metrics: p.sizeMetrics(),
	})
}

func (p *Pool) emitAcquired(ctx context.Context, inst *Instance) {
	p.sink.Emit(ctx, events.Event{
		Op: events.OpInstanceAcquired, Component: "pool",
		PoolID: p.id, Instance: inst.ID,
	})
}

func (p *Pool) sizeMetrics() map[string]float64 {
	p.mu.Lock()
	size := len(p.all)
	p.mu.Unlock()
	return map[string]float64{
		"pool_size": float64(size),
		"pool_idle": float64(len(p.idle)),
		"pool_max":  float64(p.cfg.MaxPoolSize),
	}
}
