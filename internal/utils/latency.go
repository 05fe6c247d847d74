package utils

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps a sliding window of recent durations and computes
// percentiles over it. Total keeps counting after the window is full.
type LatencyTracker struct {
	mu      sync.RWMutex
	samples []time.Duration
	next    int
	total   int
	maxSize int
}

// NewLatencyTracker creates a tracker storing up to maxSize samples.
func NewLatencyTracker(maxSize int) *LatencyTracker {
	if maxSize <= 0 {
		maxSize = 512
	}
	return &LatencyTracker{maxSize: maxSize}
}

// Observe records a new duration, overwriting the oldest sample once the window
// is full, and returns the number of durations observed so far.
func (l *LatencyTracker) Observe(d time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.samples) < l.maxSize {
		l.samples = append(l.samples, d)
	} else {
		l.samples[l.next] = d
		l.next = (l.next + 1) % l.maxSize
	}
	l.total++
	return l.total
}

// Percentile returns the percentile (0-100) duration over the window. Returns zero
// if no samples.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	l.mu.RLock()
	sorted := append([]time.Duration(nil), l.samples...)
	l.mu.RUnlock()

	if len(sorted) == 0 {
		return 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	switch {
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[len(sorted)-1]
	}
	index := int((p / 100.0) * float64(len(sorted)-1))
	return sorted[index]
}

// Count returns the number of samples in the window.
func (l *LatencyTracker) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.samples)
}

// Total returns the number of durations observed since creation or the last Reset.
func (l *LatencyTracker) Total() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// Reset drops every sample.
func (l *LatencyTracker) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.samples = l.samples[:0]
	l.next = 0
	l.total = 0
}
