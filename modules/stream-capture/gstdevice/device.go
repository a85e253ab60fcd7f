// Package gstdevice captures frames from a GStreamer pipeline (a live
// videotestsrc or a V4L2 camera) and exposes them as a streamcapture.Device.
//
// Requires the gstreamer1.0 runtime with the base and good plugin sets.
package gstdevice

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/framebench/modules/frame"
	streamcapture "github.com/e7canasta/framebench/modules/stream-capture"
)

// Config describes the capture pipeline.
type Config struct {
	// Source is "test" for videotestsrc or a V4L2 device path.
	Source    string
	Width     int
	Height    int
	FrameRate float64

	Buffers  int             // device buffer ring, default 3
	Registry *frame.Registry // emit external-handle frames when set

	// OpenTimeout bounds the wait for the first sample. Default 5s.
	OpenTimeout time.Duration

	Logger *slog.Logger
}

// Device is a streamcapture.Device backed by a GStreamer appsink.
type Device struct {
	cfg    Config
	logger *slog.Logger
	ring   *streamcapture.FrameRing
	notify streamcapture.Notifier

	mu     sync.Mutex
	el     *elements
	cancel context.CancelFunc
	wg     sync.WaitGroup
	opened bool
	closed bool

	ready     chan struct{}
	readyOnce sync.Once
	stopped   streamcapture.Stopped

	samples   atomic.Uint64
	skipped   atomic.Uint64
	busErrors atomic.Uint64
}

var _ streamcapture.Device = (*Device)(nil)

// New returns an unopened device.
func New(cfg Config) *Device {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = streamcapture.Res720p.Dimensions()
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	if cfg.Buffers <= 0 {
		cfg.Buffers = 3
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Device{
		cfg:    cfg,
		logger: cfg.Logger,
		ring:   streamcapture.NewFrameRing(cfg.Width, cfg.Height, cfg.Buffers, cfg.Registry),
		ready:  make(chan struct{}),
	}
}

// Open builds the pipeline, sets it playing and waits for the first
// sample. Permission and missing-device errors map to
// streamcapture.ErrAcquisitionDenied.
func (d *Device) Open(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return streamcapture.ErrSourceClosed
	}
	if d.opened {
		d.mu.Unlock()
		return nil
	}

	el, err := buildPipeline(d.cfg)
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("%w: %v", streamcapture.ErrAcquisitionDenied, err)
	}
	el.sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: d.onSample,
	})

	monCtx, cancel := context.WithCancel(context.Background())
	d.el = el
	d.cancel = cancel
	d.opened = true
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.monitor(monCtx)
	}()

	if err := el.pipeline.SetState(gst.StatePlaying); err != nil {
		d.mu.Unlock()
		d.Close()
		return fmt.Errorf("%w: failed to start pipeline: %v", streamcapture.ErrAcquisitionDenied, err)
	}
	d.mu.Unlock()

	timer := time.NewTimer(d.cfg.OpenTimeout)
	defer timer.Stop()

	select {
	case <-d.ready:
		d.logger.Info("gstdevice: device opened",
			"source", d.cfg.Source,
			"width", d.cfg.Width,
			"height", d.cfg.Height,
			"fps", d.cfg.FrameRate,
		)
		return nil
	case <-d.stopped.Done():
		err := d.stopped.Err()
		d.Close()
		return err
	case <-timer.C:
		d.Close()
		return fmt.Errorf("%w: no frame within %s", streamcapture.ErrAcquisitionDenied, d.cfg.OpenTimeout)
	case <-ctx.Done():
		d.Close()
		return ctx.Err()
	}
}

// onSample runs on the GStreamer streaming thread.
func (d *Device) onSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		d.skipped.Add(1)
		d.logger.Warn("gstdevice: failed to pull sample from appsink, skipping frame")
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		d.skipped.Add(1)
		d.logger.Warn("gstdevice: failed to get buffer from sample, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	want := d.cfg.Width * d.cfg.Height * 4
	if len(data) != want {
		buffer.Unmap()
		d.skipped.Add(1)
		d.logger.Warn("gstdevice: unexpected buffer size, skipping frame", "got", len(data), "want", want)
		return gst.FlowOK
	}

	a := d.ring.Write(func(_ uint64, dst *image.RGBA) {
		copy(dst.Pix, data)
	})
	buffer.Unmap()

	d.samples.Add(1)
	d.readyOnce.Do(func() { close(d.ready) })
	d.notify.Emit(a)
	return gst.FlowOK
}

func (d *Device) monitor(ctx context.Context) {
	bus := d.el.pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			d.logger.Warn("gstdevice: end of stream", "samples", d.samples.Load())
			d.stopped.Stop(errors.New("gstdevice: end of stream"))
			return

		case gst.MessageError:
			gerr := msg.ParseError()
			category := Classify(gerr.Error(), gerr.DebugString())
			d.busErrors.Add(1)
			d.logger.Error("gstdevice: pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
				"category", category.String(),
				"samples", d.samples.Load(),
			)
			err := fmt.Errorf("pipeline error [%s]: %s", category, gerr.Error())
			if category.Denied() {
				err = fmt.Errorf("%w: %v", streamcapture.ErrAcquisitionDenied, err)
			}
			d.stopped.Stop(err)
			return

		case gst.MessageStateChanged:
			if msg.Source() == d.el.pipeline.GetName() {
				old, current := msg.ParseStateChanged()
				d.logger.Debug("gstdevice: pipeline state changed", "from", old, "to", current)
			}
		}
	}
}

// Grab copies the latest sample, waiting for the first one if needed.
// Once the pipeline stopped it returns the reason instead.
func (d *Device) Grab(ctx context.Context) (*frame.Frame, error) {
	select {
	case <-d.ready:
	case <-d.stopped.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := d.stopped.Err(); err != nil {
		return nil, err
	}
	return d.ring.Latest()
}

// Notify registers fn for every sample.
func (d *Device) Notify(fn func(streamcapture.Arrival)) func() {
	return d.notify.Add(fn)
}

// Done is closed when the pipeline stopped: on Close, end of stream or a
// bus error.
func (d *Device) Done() <-chan struct{} { return d.stopped.Done() }

// Err reports why the pipeline stopped, nil while it runs.
func (d *Device) Err() error { return d.stopped.Err() }

// Samples returns the number of samples copied and skipped so far.
func (d *Device) Samples() (copied, skipped uint64) {
	return d.samples.Load(), d.skipped.Load()
}

// BusErrors returns the number of pipeline errors seen on the bus.
func (d *Device) BusErrors() uint64 { return d.busErrors.Load() }

// Close stops the pipeline. Idempotent.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	el, cancel := d.el, d.cancel
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.wg.Wait()

	var errs []error
	if el != nil {
		if err := el.pipeline.SetState(gst.StateNull); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop pipeline: %w", err))
		}
	}
	d.stopped.Stop(nil)
	d.logger.Debug("gstdevice: device closed",
		"samples", d.samples.Load(),
		"skipped", d.skipped.Load(),
		"bus_errors", d.busErrors.Load(),
	)
	return errors.Join(errs...)
}
