package metrics

import (
	"math"
	"sort"
)

// Supported latency ring sizes.
const (
	DefaultLatencySamples = 30
	MaxLatencySamples     = 60
)

// LatencyWindow is a ring of the most recent latency samples in
// milliseconds. The zero value holds DefaultLatencySamples.
type LatencyWindow struct {
	Samples []float64
	Index   int // next write position
	Count   int // valid samples, at most len(Samples)
}

// NewLatencyWindow returns a ring of k samples.
func NewLatencyWindow(k int) *LatencyWindow {
	if k <= 0 {
		k = DefaultLatencySamples
	}
	return &LatencyWindow{Samples: make([]float64, k)}
}

// AddSample records ms, evicting the oldest sample once full.
func (w *LatencyWindow) AddSample(ms float64) {
	if len(w.Samples) == 0 {
		w.Samples = make([]float64, DefaultLatencySamples)
	}
	w.Samples[w.Index] = ms
	w.Index = (w.Index + 1) % len(w.Samples)
	if w.Count < len(w.Samples) {
		w.Count++
	}
}

// GetStats returns mean, p95 and max over the valid samples. An empty
// window returns zeros.
func (w *LatencyWindow) GetStats() (mean, p95, max float64) {
	if w.Count == 0 {
		return 0, 0, 0
	}
	valid := make([]float64, w.Count)
	copy(valid, w.Samples[:w.Count])
	sort.Float64s(valid)

	var sum float64
	for _, v := range valid {
		sum += v
	}
	mean = sum / float64(w.Count)
	p95 = valid[int(math.Ceil(0.95*float64(w.Count)))-1]
	max = valid[w.Count-1]
	return mean, p95, max
}

// Rate returns 1000/mean, the processing-stage frames per second implied
// by the window. Zero when empty.
func (w *LatencyWindow) Rate() float64 {
	mean, _, _ := w.GetStats()
	if mean <= 0 {
		return 0
	}
	return 1000 / mean
}
