package utils

import (
	"testing"
	"time"
)

func TestLatencyTrackerPercentile(t *testing.T) {
	tracker := NewLatencyTracker(10)
	for _, ms := range []int{30, 10, 50, 20, 40} {
		tracker.Observe(time.Duration(ms) * time.Millisecond)
	}

	if got := tracker.Percentile(95); got != 40*time.Millisecond {
		t.Fatalf("expected p95 40ms over 5 samples, got %v", got)
	}
	if tracker.Percentile(0) != 10*time.Millisecond || tracker.Percentile(100) != 50*time.Millisecond {
		t.Fatalf("unexpected extremes %v / %v", tracker.Percentile(0), tracker.Percentile(100))
	}
	if NewLatencyTracker(0).Percentile(50) != 0 {
		t.Fatal("empty tracker should report zero")
	}
}

func TestLatencyTrackerWindowKeepsCounting(t *testing.T) {
	tracker := NewLatencyTracker(3)
	var total int
	for i := 1; i <= 10; i++ {
		total = tracker.Observe(time.Duration(i) * time.Millisecond)
	}
	if tracker.Count() != 3 || total != 10 || tracker.Total() != 10 {
		t.Fatalf("expected window 3 and total 10, got %d/%d", tracker.Count(), tracker.Total())
	}
	// only 8, 9 and 10 remain in the window
	if got := tracker.Percentile(0); got != 8*time.Millisecond {
		t.Fatalf("oldest samples should be overwritten, min is %v", got)
	}

	tracker.Reset()
	if tracker.Count() != 0 || tracker.Total() != 0 || tracker.Percentile(95) != 0 {
		t.Fatalf("reset should drop every sample")
	}
	tracker.Observe(time.Millisecond)
	if tracker.Count() != 1 || tracker.Percentile(100) != time.Millisecond {
		t.Fatalf("tracker unusable after reset")
	}
}
