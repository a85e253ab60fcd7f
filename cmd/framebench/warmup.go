package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/e7canasta/framebench/modules/frame"
	streamcapture "github.com/e7canasta/framebench/modules/stream-capture"
)

func newWarmupCmd(c *cli) *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:     "warmup",
		Short:   "Measure the capture source's frame rate and jitter",
		Example: "  framebench warmup --duration 10s\n  framebench --config bench.yaml warmup",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			src, err := openSource(ctx, c.cfg, frame.NewRegistry(), c.logger)
			if err != nil {
				return fmt.Errorf("failed to open source: %w", err)
			}
			defer src.Close()

			fmt.Printf("Running warmup (%v) on %s/%s...\n", duration, c.cfg.Capture.Device, c.cfg.Capture.Method)
			ws, err := streamcapture.Warmup(ctx, src, duration)
			if err != nil {
				return fmt.Errorf("warmup failed: %w", err)
			}
			printWarmup(ws, c.cfg.Capture.FrameRate)
			if !ws.IsStable {
				fmt.Printf("⚠️  WARNING: Source is unstable (high FPS variance or jitter)\n\n")
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 5*time.Second, "Warmup duration")
	return cmd
}
