// Package metrics keeps the rolling statistics of a benchmark run: overall
// throughput over a trailing time window and processing-stage latency over
// the last K round trips.
package metrics

import "time"

// Supported throughput windows.
const (
	Window1s = 1000 * time.Millisecond
	Window2s = 2000 * time.Millisecond
)

// Throughput counts completions inside a trailing window. The window is
// inclusive: an entry at exactly now-window still counts.
type Throughput struct {
	window time.Duration
	stamps []time.Time
}

// NewThroughput returns a counter over the given window.
func NewThroughput(window time.Duration) *Throughput {
	if window <= 0 {
		window = Window1s
	}
	return &Throughput{window: window, stamps: make([]time.Time, 0, 64)}
}

// Window returns the configured window.
func (t *Throughput) Window() time.Duration { return t.window }

// Observe records a completion at now and returns the rate in frames/sec.
func (t *Throughput) Observe(now time.Time) float64 {
	t.stamps = append(t.stamps, now)
	return t.RateAt(now)
}

// RateAt drops entries older than now-window and returns count/window.
func (t *Throughput) RateAt(now time.Time) float64 {
	cutoff := now.Add(-t.window)
	i := 0
	for i < len(t.stamps) && t.stamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		t.stamps = append(t.stamps[:0], t.stamps[i:]...)
	}
	return float64(len(t.stamps)) / t.window.Seconds()
}

// Len is the number of timestamps currently retained.
func (t *Throughput) Len() int { return len(t.stamps) }
