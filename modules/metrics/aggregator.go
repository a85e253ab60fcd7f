package metrics

import (
	"fmt"
	"time"
)

// Snapshot is the state of the aggregator after one update.
type Snapshot struct {
	FPS           float64 // completions per second over the throughput window
	ProcessingFPS float64 // 1000 / mean round trip (ms)
	MeanLatency   time.Duration
	P95Latency    time.Duration
	MaxLatency    time.Duration
	Iterations    uint64
}

// Aggregator combines throughput and latency. It is owned by one run loop
// and is not safe for concurrent use.
type Aggregator struct {
	throughput *Throughput
	latency    *LatencyWindow
	iterations uint64
	last       Snapshot
}

// NewAggregator validates the window (1s or 2s) and ring size (30 or 60).
func NewAggregator(window time.Duration, samples int) (*Aggregator, error) {
	if window != Window1s && window != Window2s {
		return nil, fmt.Errorf("metrics: throughput window must be 1000ms or 2000ms, got %v", window)
	}
	if samples != DefaultLatencySamples && samples != MaxLatencySamples {
		return nil, fmt.Errorf("metrics: latency samples must be 30 or 60, got %d", samples)
	}
	return &Aggregator{
		throughput: NewThroughput(window),
		latency:    NewLatencyWindow(samples),
	}, nil
}

// Update records one completed iteration.
func (a *Aggregator) Update(now time.Time, roundTrip time.Duration) Snapshot {
	a.iterations++
	fps := a.throughput.Observe(now)
	a.latency.AddSample(float64(roundTrip) / float64(time.Millisecond))

	mean, p95, max := a.latency.GetStats()
	a.last = Snapshot{
		FPS:         fps,
		MeanLatency: msToDuration(mean),
		P95Latency:  msToDuration(p95),
		MaxLatency:  msToDuration(max),
		Iterations:  a.iterations,
	}
	if mean > 0 {
		a.last.ProcessingFPS = 1000 / mean
	}
	return a.last
}

// Window returns the throughput window.
func (a *Aggregator) Window() time.Duration { return a.throughput.Window() }

// Last returns the most recent snapshot.
func (a *Aggregator) Last() Snapshot { return a.last }

func msToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
