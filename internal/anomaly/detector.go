package anomaly

import (
	"fmt"
)

// Kind classifies a reading value
type Kind int

const (
	None Kind = iota
	// Negative values would move a cumulative total backwards and are rejected.
	Negative
	// Spike values are far above the rolling average; they are reported but kept.
	Spike
)

// Result is the outcome of checking one value
type Result struct {
	Kind   Kind
	Reason string
}

// Reject reports whether the value must not be applied
func (r Result) Reject() bool {
	return r.Kind == Negative
}

// Detector handles anomaly detection with configurable thresholds
type Detector struct {
	spikeThreshold            float64
	minDataPointsForDetection int
}

// NewDetector creates a new anomaly detector with the specified thresholds
func NewDetector(spikeThreshold float64, minDataPointsForDetection int) *Detector {
	return &Detector{
		spikeThreshold:            spikeThreshold,
		minDataPointsForDetection: minDataPointsForDetection,
	}
}

// Check classifies value against the recently accepted values
func (d *Detector) Check(value float64, window *Window) Result {
	if value < 0 {
		return Result{Kind: Negative, Reason: "negative value"}
	}

	if window == nil || window.Len() < d.minDataPointsForDetection {
		return Result{}
	}

	average := window.Average()
	if average > 0 && value > d.spikeThreshold*average {
		return Result{
			Kind: Spike,
			Reason: fmt.Sprintf("sudden spike detected: value %.2f exceeds %.1fx rolling average %.2f",
				value, d.spikeThreshold, average),
		}
	}

	return Result{}
}

// Window keeps the last N accepted values for spike detection
type Window struct {
	values []float64
	size   int
	next   int
	full   bool
}

// NewWindow creates a rolling window holding at most size values
func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{values: make([]float64, size), size: size}
}

// Push records an accepted value, evicting the oldest when full
func (w *Window) Push(value float64) {
	w.values[w.next] = value
	w.next = (w.next + 1) % w.size
	if w.next == 0 {
		w.full = true
	}
}

// Len returns the number of values held
func (w *Window) Len() int {
	if w.full {
		return w.size
	}
	return w.next
}

// Average returns the mean of the held values, 0 when empty
func (w *Window) Average() float64 {
	n := w.Len()
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range w.values[:n] {
		sum += v
	}
	return sum / float64(n)
}
