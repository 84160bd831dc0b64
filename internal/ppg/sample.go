// Package ppg implements the photoplethysmography signal chain: a sliding
// sample window, a moving-average smoother, a band-limiting filter cascade,
// and an autocorrelation-based heart rate estimator. All stages are pure
// functions over snapshots of the window; the pipeline controller owns the
// mutable state.
package ppg

import "time"

// Sample is a single intensity reading extracted from a video frame or
// sensor, stamped with the time it was captured.
type Sample struct {
	Time  time.Time
	Value float64
}

// Window accumulates samples in arrival order up to a fixed capacity. It is
// not safe for concurrent use; callers must own it exclusively.
type Window struct {
	capacity int
	samples  []Sample
}

// NewWindow returns an empty window that reports Full at the given capacity.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{
		capacity: capacity,
		samples:  make([]Sample, 0, capacity),
	}
}

// Append adds a sample at the end of the window. It always accepts; bounding
// the window is the caller's job via DrainKeepingTail.
func (w *Window) Append(s Sample) {
	w.samples = append(w.samples, s)
}

// Len returns the current number of buffered samples.
func (w *Window) Len() int {
	return len(w.samples)
}

// Capacity returns the fill threshold the window was created with.
func (w *Window) Capacity() int {
	return w.capacity
}

// Full reports whether the window holds at least its capacity of samples.
func (w *Window) Full() bool {
	return len(w.samples) >= w.capacity
}

// Values returns a copy of the buffered sample values in arrival order.
func (w *Window) Values() []float64 {
	values := make([]float64, len(w.samples))
	for i, s := range w.samples {
		values[i] = s.Value
	}
	return values
}

// DrainKeepingTail discards all but the most recent n samples. If the window
// holds fewer than n samples it is left unchanged. The retained samples are
// copied into a fresh slice so the drained prefix can be collected.
func (w *Window) DrainKeepingTail(n int) {
	if n < 0 {
		n = 0
	}
	if len(w.samples) <= n {
		return
	}
	tail := make([]Sample, n, w.capacity)
	copy(tail, w.samples[len(w.samples)-n:])
	w.samples = tail
}

// Reset discards all buffered samples.
func (w *Window) Reset() {
	w.samples = w.samples[:0]
}
