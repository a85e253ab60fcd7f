package streamcapture

import (
	"context"
	"time"

	"github.com/e7canasta/framebench/modules/stream-capture/internal/warmup"
)

// Warmup pulls and immediately releases frames from src for d, then
// reports the cadence observed. The source stays usable afterwards.
func Warmup(ctx context.Context, src Source, d time.Duration) (*WarmupStats, error) {
	stats, err := warmup.Run(ctx, func(ctx context.Context) (time.Time, error) {
		f, err := src.Next(ctx)
		if err != nil {
			return time.Time{}, err
		}
		ts := f.Timestamp
		_ = f.Release()
		return ts, nil
	}, d)
	if err != nil {
		return nil, err
	}
	return fromInternal(stats), nil
}

// CalculateFPSStats derives rate and jitter statistics from frame arrival
// times. Stable means FPS stddev < 15% of mean and mean jitter < 20% of
// the expected interval.
func CalculateFPSStats(frameTimes []time.Time, totalDuration time.Duration) *WarmupStats {
	return fromInternal(warmup.CalculateFPSStats(frameTimes, totalDuration))
}

// OptimalRate caps maxRate at 90% of the measured rate when the source is
// slower than requested.
func OptimalRate(stats *WarmupStats, maxRate float64) float64 {
	if stats == nil {
		return maxRate
	}
	return warmup.OptimalRate(&warmup.Stats{FPSMean: stats.FPSMean}, maxRate)
}

func fromInternal(s *warmup.Stats) *WarmupStats {
	return &WarmupStats{
		FramesReceived: s.FramesReceived,
		Duration:       s.Duration,
		FPSMean:        s.FPSMean,
		FPSStdDev:      s.FPSStdDev,
		FPSMin:         s.FPSMin,
		FPSMax:         s.FPSMax,
		IsStable:       s.IsStable,
		JitterMean:     s.JitterMean,
		JitterStdDev:   s.JitterStdDev,
		JitterMax:      s.JitterMax,
	}
}
