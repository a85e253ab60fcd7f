package config

import (
	"fmt"
	"strings"

	"github.com/e7canasta/framebench/modules/dispatch"
	"github.com/e7canasta/framebench/modules/dispatch/wire"
	"github.com/e7canasta/framebench/modules/runloop"
	streamcapture "github.com/e7canasta/framebench/modules/stream-capture"
)

// Validate checks the configuration, filling defaults for zero values.
func Validate(cfg *Config) error {
	if err := validateCapture(&cfg.Capture); err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	if cfg.Buffer.Capacity == 0 {
		cfg.Buffer.Capacity = 2
	}
	if cfg.Buffer.Capacity < 1 {
		return fmt.Errorf("buffer.capacity must be >= 1, got %d", cfg.Buffer.Capacity)
	}

	if err := validateProcessing(&cfg.Processing); err != nil {
		return fmt.Errorf("processing: %w", err)
	}

	// Throughput window and latency ring only take the two documented values.
	if cfg.Metrics.WindowMS == 0 {
		cfg.Metrics.WindowMS = 2000
	}
	if cfg.Metrics.WindowMS != 1000 && cfg.Metrics.WindowMS != 2000 {
		return fmt.Errorf("metrics.window_ms must be 1000 or 2000, got %d", cfg.Metrics.WindowMS)
	}
	if cfg.Metrics.LatencySamples == 0 {
		cfg.Metrics.LatencySamples = 60
	}
	if cfg.Metrics.LatencySamples != 30 && cfg.Metrics.LatencySamples != 60 {
		return fmt.Errorf("metrics.latency_samples must be 30 or 60, got %d", cfg.Metrics.LatencySamples)
	}

	if cfg.Display.SnapshotFormat == "" {
		cfg.Display.SnapshotFormat = "png"
	}
	if cfg.Display.SnapshotFormat != "png" && cfg.Display.SnapshotFormat != "jpeg" {
		return fmt.Errorf("display.snapshot_format must be png or jpeg, got %q", cfg.Display.SnapshotFormat)
	}
	if cfg.Display.SnapshotEvery <= 0 {
		cfg.Display.SnapshotEvery = 100
	}
	if cfg.Display.LogEvery <= 0 {
		cfg.Display.LogEvery = 100
	}

	if _, err := runloop.ParsePolicy(cfg.Run.Policy); err != nil {
		return err
	}
	if cfg.Run.Policy == "" {
		cfg.Run.Policy = "lenient"
	}
	if cfg.Run.WarmupS < 0 {
		return fmt.Errorf("run.warmup_s must be >= 0")
	}
	if cfg.Run.StatsIntervalS <= 0 {
		cfg.Run.StatsIntervalS = 5
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "":
		cfg.Log.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "":
		cfg.Log.Format = "text"
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", cfg.Log.Format)
	}

	return nil
}

func validateCapture(c *CaptureConfig) error {
	switch c.Device {
	case "":
		c.Device = "synthetic"
	case "synthetic", "gstreamer":
	default:
		return fmt.Errorf("device must be synthetic or gstreamer, got %q", c.Device)
	}
	if c.Source == "" {
		c.Source = "test"
	}
	if c.Method == "" {
		c.Method = string(streamcapture.MethodOnFrame)
	}
	if err := streamcapture.Method(c.Method).Validate(); err != nil {
		return err
	}
	if _, err := streamcapture.ParseResolution(c.Resolution); err != nil {
		return err
	}
	if c.Resolution == "" {
		c.Resolution = "720p"
	}
	if c.FrameRate == 0 {
		c.FrameRate = 30
	}
	if c.FrameRate < 0 {
		return fmt.Errorf("frame_rate must be > 0")
	}
	if c.Buffers == 0 {
		c.Buffers = 3
	}
	if c.Buffers < 2 {
		return fmt.Errorf("buffers must be >= 2, got %d", c.Buffers)
	}
	return nil
}

func validateProcessing(p *ProcessingConfig) error {
	if p.Encoding == "" {
		p.Encoding = string(dispatch.EncodingRaw)
	}
	if _, err := dispatch.ParseEncoding(p.Encoding); err != nil {
		return err
	}
	switch wire.Method(p.Method) {
	case "":
		p.Method = string(wire.MethodBitmap)
	case wire.MethodBitmap, wire.MethodOffscreen:
	default:
		return fmt.Errorf("method must be offscreen or bitmap, got %q", p.Method)
	}
	if p.Neuter && wire.Method(p.Method) != wire.MethodBitmap {
		return fmt.Errorf("neuter requires the bitmap method")
	}
	return nil
}
