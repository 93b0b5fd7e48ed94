package pool

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/use-agent/skimmer/models"
)

// Worker is the sandboxed extraction engine an instance wraps. The pool does
// not care how extraction works, only that the worker honors its tracker and
// can be closed.
type Worker interface {
	Extract(ctx context.Context, html, pageURL string, mode models.ExtractMode) (*models.Document, error)
	Close() error
}

// WorkerFactory constructs a worker bound to the given tracker. The factory
// must wire the tracker in as the worker's memory growth gate.
type WorkerFactory func(tracker *ResourceTracker) (Worker, error)

// Instance is a pooled extraction worker with health bookkeeping.
type Instance struct {
	ID        string
	createdAt time.Time

	tracker *ResourceTracker
	worker  Worker

	mu           sync.Mutex
	lastUsed     time.Time
	useCount     int64
	failureCount int64
}

func newInstance(factory WorkerFactory, limitBytes int64) (*Instance, error) {
	tracker := NewResourceTracker(limitBytes)
	worker, err := factory(tracker)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Instance{
		ID:        uuid.NewString(),
		createdAt: now,
		lastUsed:  now,
		tracker:   tracker,
		worker:    worker,
	}, nil
}

// Extract runs the wrapped worker.
func (i *Instance) Extract(ctx context.Context, html, pageURL string, mode models.ExtractMode) (*models.Document, error) {
	return i.worker.Extract(ctx, html, pageURL, mode)
}

// Tracker returns the instance's resource tracker.
func (i *Instance) Tracker() *ResourceTracker { return i.tracker }

// MemoryUsage is the instance's memory high-water mark in bytes. Sandboxed
// linear memory does not shrink, so the peak is the honest figure.
func (i *Instance) MemoryUsage() int64 { return i.tracker.PeakBytes() }

// Age returns how long the instance has existed.
func (i *Instance) Age() time.Duration { return time.Since(i.createdAt) }

// IdleFor returns how long since the instance was last used.
func (i *Instance) IdleFor() time.Duration {
	i.mu.Lock()
	defer i.mu.Unlock()
	return time.Since(i.lastUsed)
}

// UseCount returns the total number of checkouts.
func (i *Instance) UseCount() int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.useCount
}

// FailureCount returns the number of failed uses.
func (i *Instance) FailureCount() int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.failureCount
}

// recordUse updates counters and the last-used timestamp on release.
func (i *Instance) recordUse(success bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.useCount++
	if !success {
		i.failureCount++
	}
	i.lastUsed = time.Now()
}

func (i *Instance) close() error {
	return i.worker.Close()
}
