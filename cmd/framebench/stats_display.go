package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/e7canasta/framebench/internal/config"
	"github.com/e7canasta/framebench/modules/metrics"
	streamcapture "github.com/e7canasta/framebench/modules/stream-capture"
)

type statsReporter struct {
	cfg    *config.Config
	p      *pipeline
	logger *slog.Logger
	start  time.Time
}

func newStatsReporter(cfg *config.Config, p *pipeline, logger *slog.Logger) *statsReporter {
	return &statsReporter{cfg: cfg, p: p, logger: logger, start: time.Now()}
}

// run periodically prints statistics from all pipeline components
func (r *statsReporter) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.printLive()
			if path := r.cfg.Metrics.Textfile; path != "" {
				if err := r.p.exporter.WriteTextfile(path); err != nil {
					r.logger.Error("Failed to write metrics textfile", "error", err)
				}
			}
		}
	}
}

func (r *statsReporter) snapshot() metrics.Snapshot {
	if s := r.p.last.Load(); s != nil {
		return *s
	}
	return metrics.Snapshot{}
}

// printLive prints current statistics from all components
func (r *statsReporter) printLive() {
	src := r.p.source.Stats()
	counters := r.p.session.Stats()
	snap := r.snapshot()
	ok, failed := r.p.worker.Processed()

	fmt.Println()
	fmt.Println("╭─────────────────────────────────────────────────────────────────╮")
	fmt.Printf("│ Benchmark Statistics (Uptime: %v)\n", time.Since(r.start).Round(time.Second))
	fmt.Println("├─────────────────────────────────────────────────────────────────┤")

	fmt.Println("│ Stream Capture:")
	fmt.Printf("│   Method:             %s (%s)\n", src.Method, src.Discipline)
	fmt.Printf("│   Frames Delivered:   %6d frames\n", src.Delivered)
	fmt.Printf("│   Duplicates:         %6d frames (%.1f%%)\n", src.Duplicates, rate(src.Delivered, src.Duplicates))
	fmt.Printf("│   Discarded:          %6d frames\n", src.Discarded)
	if src.Discipline == streamcapture.PushBuffered {
		b := src.Buffer
		fmt.Println("│")
		fmt.Println("│ Frame Buffer:")
		fmt.Printf("│   Capacity:           %6d\n", b.Capacity)
		fmt.Printf("│   Arrivals:           %6d\n", b.Arrivals)
		fmt.Printf("│   Direct Handoffs:    %6d\n", b.DirectHandoffs)
		fmt.Printf("│   Dropped:            %6d frames (%.1f%%)\n", b.Dropped, rate(b.Arrivals, b.Dropped))
		fmt.Printf("│   Queued:             %6d\n", b.Queued)
	}

	fmt.Println("│")
	fmt.Println("│ Processing:")
	fmt.Printf("│   Encoding:           %s\n", r.p.disp.Encoding())
	fmt.Printf("│   Processed:          %6d ok, %d failed\n", ok, failed)
	fmt.Printf("│   Buffer Allocations: %6d\n", r.p.worker.Allocations())
	fmt.Printf("│   Invalidated:        %6d\n", counters.Invalidated)
	fmt.Printf("│   Unknown Responses:  %6d\n", r.p.disp.Unknown())

	fmt.Println("│")
	fmt.Println("│ Metrics:")
	fmt.Printf("│   Iterations:         %6d\n", counters.Iterations)
	fmt.Printf("│   Overall FPS:        %6.2f fps\n", snap.FPS)
	fmt.Printf("│   Worker FPS:         %6.2f fps\n", snap.ProcessingFPS)
	fmt.Printf("│   Round Trip:         mean=%v p95=%v max=%v\n",
		snap.MeanLatency.Round(time.Microsecond),
		snap.P95Latency.Round(time.Microsecond),
		snap.MaxLatency.Round(time.Microsecond))
	fmt.Printf("│   Errors:             capture=%d processing=%d\n", counters.CaptureErrors, counters.ProcessingErrors)

	if r.p.snapshot != nil {
		saved, failed := r.p.snapshot.Stats()
		fmt.Println("│")
		fmt.Println("│ Snapshots:")
		fmt.Printf("│   Saved:              %6d (%d failed)\n", saved, failed)
	}

	fmt.Println("╰─────────────────────────────────────────────────────────────────╯")
	fmt.Println()
}

// printFinal prints final statistics at shutdown
func (r *statsReporter) printFinal() {
	src := r.p.source.Stats()
	counters := r.p.session.Stats()
	snap := r.snapshot()

	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println("                     Final Statistics                         ")
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Printf("  Run Time:              %v\n", time.Since(r.start).Round(time.Millisecond))
	fmt.Printf("  Iterations:            %d\n", counters.Iterations)
	fmt.Printf("  Error Policy:          %s\n", r.p.session.Policy())
	fmt.Printf("  Overall FPS:           %.2f fps\n", snap.FPS)
	fmt.Printf("  Worker FPS:            %.2f fps\n", snap.ProcessingFPS)
	fmt.Printf("  Mean Round Trip:       %v\n", snap.MeanLatency.Round(time.Microsecond))
	fmt.Println()
	fmt.Printf("  Frames Delivered:      %d\n", src.Delivered)
	fmt.Printf("  Duplicates:            %d\n", src.Duplicates)
	fmt.Printf("  Buffer Drops:          %d\n", counters.Dropped)
	fmt.Printf("  Discarded:             %d\n", counters.Discarded)
	fmt.Printf("  Capture Errors:        %d\n", counters.CaptureErrors)
	fmt.Printf("  Processing Errors:     %d\n", counters.ProcessingErrors)
	fmt.Printf("  Transfers Invalidated: %d\n", counters.Invalidated)
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println()
}

// rate calculates a percentage of total
func rate(total, part uint64) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

func printWarmup(ws *streamcapture.WarmupStats, target float64) {
	fmt.Println()
	fmt.Println("Warmup:")
	fmt.Printf("  Frames Received: %d in %v\n", ws.FramesReceived, ws.Duration.Round(time.Millisecond))
	fmt.Printf("  FPS:             mean=%.2f stddev=%.2f min=%.2f max=%.2f\n",
		ws.FPSMean, ws.FPSStdDev, ws.FPSMin, ws.FPSMax)
	fmt.Printf("  Jitter:          mean=%.1fms max=%.1fms\n", ws.JitterMean*1000, ws.JitterMax*1000)
	fmt.Printf("  Stable:          %v\n", ws.IsStable)
	fmt.Printf("  Suggested Rate:  %.2f fps (target %.2f)\n", streamcapture.OptimalRate(ws, target), target)
	fmt.Println()
}
