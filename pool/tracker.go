package pool

import "sync/atomic"

// ResourceTracker is the per-instance memory growth gate. The worker runtime
// calls MemoryGrowing synchronously on every allocation step; the tracker
// either admits the new footprint or rejects it and counts the failure.
//
// A tracker belongs to exactly one instance and is never shared.
type ResourceTracker struct {
	limitBytes   int64
	currentBytes atomic.Int64
	peakBytes    atomic.Int64
	growFailures atomic.Int64
}

// NewResourceTracker creates a tracker enforcing limitBytes.
func NewResourceTracker(limitBytes int64) *ResourceTracker {
	return &ResourceTracker{limitBytes: limitBytes}
}

// MemoryGrowing reports whether the worker may grow from current to desired
// bytes. Growth is admitted iff desired <= limit; every rejection increments
// the grow-failure counter. On admission the current footprint is recorded
// and the peak high-water mark updated.
func (t *ResourceTracker) MemoryGrowing(current, desired int64) bool {
	_ = current
	if desired > t.limitBytes {
		t.growFailures.Add(1)
		return false
	}
	t.currentBytes.Store(desired)
	for {
		peak := t.peakBytes.Load()
		if desired <= peak {
			break
		}
		if t.peakBytes.CompareAndSwap(peak, desired) {
			break
		}
	}
	return true
}

// LimitBytes returns the configured memory limit.
func (t *ResourceTracker) LimitBytes() int64 { return t.limitBytes }

// CurrentBytes returns the last admitted footprint.
func (t *ResourceTracker) CurrentBytes() int64 { return t.currentBytes.Load() }

// PeakBytes returns the high-water mark over the tracker's lifetime.
func (t *ResourceTracker) PeakBytes() int64 { return t.peakBytes.Load() }

// GrowFailures returns how many growth attempts were rejected.
func (t *ResourceTracker) GrowFailures() int64 { return t.growFailures.Load() }
