package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/e7canasta/framebench/internal/config"
	"github.com/e7canasta/framebench/modules/frame"
	streamcapture "github.com/e7canasta/framebench/modules/stream-capture"
	"github.com/e7canasta/framebench/modules/stream-capture/gstdevice"
)

// newDevice builds the configured capture device. reg is set on the device
// when capture.handles asks for external-handle frames.
func newDevice(cc config.CaptureConfig, reg *frame.Registry, logger *slog.Logger) (streamcapture.Device, error) {
	res, err := streamcapture.ParseResolution(cc.Resolution)
	if err != nil {
		return nil, err
	}
	w, h := res.Dimensions()
	if !cc.Handles {
		reg = nil
	}

	switch cc.Device {
	case "synthetic":
		return streamcapture.NewSyntheticDevice(streamcapture.SyntheticConfig{
			Width:     w,
			Height:    h,
			FrameRate: cc.FrameRate,
			Buffers:   cc.Buffers,
			Registry:  reg,
			Logger:    logger,
		}), nil
	case "gstreamer":
		return gstdevice.New(gstdevice.Config{
			Source:    cc.Source,
			Width:     w,
			Height:    h,
			FrameRate: cc.FrameRate,
			Buffers:   cc.Buffers,
			Registry:  reg,
			Logger:    logger,
		}), nil
	}
	return nil, fmt.Errorf("unknown capture device %q", cc.Device)
}

// openSource opens the device and wraps it in the configured capture method.
func openSource(ctx context.Context, cfg *config.Config, reg *frame.Registry, logger *slog.Logger) (streamcapture.Source, error) {
	dev, err := newDevice(cfg.Capture, reg, logger)
	if err != nil {
		return nil, err
	}
	res, _ := streamcapture.ParseResolution(cfg.Capture.Resolution)
	src, err := streamcapture.Open(ctx, dev, streamcapture.Config{
		Method:         streamcapture.Method(cfg.Capture.Method),
		Resolution:     res,
		FrameRate:      cfg.Capture.FrameRate,
		BufferCapacity: cfg.Buffer.Capacity,
	}, logger)
	if err != nil {
		dev.Close()
		return nil, err
	}
	return src, nil
}
