package warmup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// NextFunc yields the arrival time of the next frame. Implementations
// release the frame before returning.
type NextFunc func(ctx context.Context) (time.Time, error)

// Run consumes frames for the given duration without processing them and
// reports the cadence observed. An unstable stream is reported together
// with its statistics so callers may decide whether to proceed.
func Run(ctx context.Context, next NextFunc, duration time.Duration) (*Stats, error) {
	slog.Info("warmup: starting source warm-up", "duration", duration)

	start := time.Now()
	times := make([]time.Time, 0, 128)

	wctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	for {
		ts, err := next(wctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				break
			}
			return nil, fmt.Errorf("warmup: source failed after %d frames: %w", len(times), err)
		}
		times = append(times, ts)
		slog.Debug("warmup: frame received", "frames_collected", len(times))
	}

	if len(times) < 2 {
		return nil, fmt.Errorf("warmup: not enough frames received (got %d, need at least 2)", len(times))
	}

	stats := CalculateFPSStats(times, time.Since(start))
	slog.Info("warmup: source warm-up complete",
		"frames", stats.FramesReceived,
		"duration", stats.Duration,
		"fps_mean", fmt.Sprintf("%.2f", stats.FPSMean),
		"fps_stddev", fmt.Sprintf("%.2f", stats.FPSStdDev),
		"fps_range", fmt.Sprintf("%.1f-%.1f", stats.FPSMin, stats.FPSMax),
		"jitter_mean", fmt.Sprintf("%.3fs", stats.JitterMean),
		"stable", stats.IsStable,
	)
	return stats, nil
}
