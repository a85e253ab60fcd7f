package warmup

import (
	"math"
	"time"
)

const (
	// A stream is stable when the instantaneous rate deviates less than 15%
	// from the mean rate.
	fpsStabilityThreshold = 0.15

	// ...and when mean jitter stays under 20% of the expected inter-frame interval.
	jitterStabilityThreshold = 0.20
)

// Stats summarises the cadence of a warm-up window.
type Stats struct {
	FramesReceived int
	Duration       time.Duration
	FPSMean        float64
	FPSStdDev      float64
	FPSMin         float64
	FPSMax         float64
	IsStable       bool
	JitterMean     float64 // seconds
	JitterStdDev   float64 // seconds
	JitterMax      float64 // seconds
}

// CalculateFPSStats derives rate and jitter statistics from arrival times
// observed over totalDuration.
func CalculateFPSStats(frameTimes []time.Time, totalDuration time.Duration) *Stats {
	n := len(frameTimes)
	stats := &Stats{FramesReceived: n, Duration: totalDuration}
	if n == 0 || totalDuration <= 0 {
		return stats
	}
	stats.FPSMean = float64(n) / totalDuration.Seconds()

	intervals := make([]float64, 0, n-1)
	rates := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		iv := frameTimes[i].Sub(frameTimes[i-1]).Seconds()
		intervals = append(intervals, iv)
		if iv > 0 {
			rates = append(rates, 1/iv)
		}
	}
	if len(rates) == 0 {
		return stats
	}

	stats.FPSMin, stats.FPSMax = minMax(rates)
	stats.FPSStdDev = deviation(rates, stats.FPSMean)

	expected := 1 / stats.FPSMean
	jitters := make([]float64, len(intervals))
	for i, iv := range intervals {
		jitters[i] = math.Abs(iv - expected)
	}
	stats.JitterMean = mean(jitters)
	stats.JitterStdDev = deviation(jitters, stats.JitterMean)
	_, stats.JitterMax = minMax(jitters)

	stats.IsStable = stats.FPSStdDev < stats.FPSMean*fpsStabilityThreshold &&
		stats.JitterMean < expected*jitterStabilityThreshold
	return stats
}

// OptimalRate caps a requested processing rate by what the stream actually
// delivers, keeping a 10% margin below the measured rate.
func OptimalRate(stats *Stats, maxRate float64) float64 {
	if stats == nil || stats.FPSMean >= maxRate {
		return maxRate
	}
	return stats.FPSMean * 0.9
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func deviation(xs []float64, around float64) float64 {
	var sq float64
	for _, x := range xs {
		d := x - around
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(xs)))
}

func minMax(xs []float64) (lo, hi float64) {
	lo, hi = xs[0], xs[0]
	for _, x := range xs[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return lo, hi
}
