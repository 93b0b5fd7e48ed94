package pool

import "testing"

func TestTrackerAdmitsWithinLimit(t *testing.T) {
	tr := NewResourceTracker(1000)

	if !tr.MemoryGrowing(0, 400) {
		t.Fatal("growth to 400 within limit 1000 was rejected")
	}
	if !tr.MemoryGrowing(400, 1000) {
		t.Fatal("growth to exactly the limit was rejected")
	}
	if got := tr.CurrentBytes(); got != 1000 {
		t.Errorf("CurrentBytes = %d, want 1000", got)
	}
	if got := tr.GrowFailures(); got != 0 {
		t.Errorf("GrowFailures = %d, want 0", got)
	}
}

func TestTrackerRejectsOverLimit(t *testing.T) {
	tr := NewResourceTracker(1000)
	tr.MemoryGrowing(0, 500)

	for i := 0; i < 3; i++ {
		if tr.MemoryGrowing(500, 1001) {
			t.Fatal("growth over the limit was admitted")
		}
	}

	if got := tr.GrowFailures(); got != 3 {
		t.Errorf("GrowFailures = %d, want 3", got)
	}
	// A rejection must not disturb the recorded footprint.
	if got := tr.CurrentBytes(); got != 500 {
		t.Errorf("CurrentBytes after rejection = %d, want 500", got)
	}
}

func TestTrackerPeakIsHighWaterMark(t *testing.T) {
	tr := NewResourceTracker(1000)
	tr.MemoryGrowing(0, 800)
	tr.MemoryGrowing(800, 300)

	if got := tr.CurrentBytes(); got != 300 {
		t.Errorf("CurrentBytes = %d, want 300", got)
	}
	if got := tr.PeakBytes(); got != 800 {
		t.Errorf("PeakBytes = %d, want 800", got)
	}
}
