package streamcapture

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/e7canasta/framebench/modules/frame"
)

// SyntheticConfig configures a SyntheticDevice.
type SyntheticConfig struct {
	Width, Height int
	FrameRate     float64 // Hz, default 30

	// Buffers is the size of the device's buffer ring. A pending
	// notification whose buffer is reused before Commit is discarded.
	// Default 3.
	Buffers int

	// Registry, when set, makes the device emit external-handle frames
	// registered there instead of owned byte frames.
	Registry *frame.Registry

	// Deny makes Open fail with ErrAcquisitionDenied.
	Deny bool

	Logger *slog.Logger
}

// SyntheticDevice is an in-process camera painting a solid colour that
// changes with every frame. Notifications are dispatched from a single
// goroutine in device order, decoupled from the device clock.
type SyntheticDevice struct {
	cfg    SyntheticConfig
	logger *slog.Logger
	ring    *FrameRing
	notify  Notifier
	stopped Stopped

	mu     sync.Mutex
	notes  chan Arrival
	cancel context.CancelFunc
	wg     sync.WaitGroup
	opened bool
	closed bool
}

// NewSyntheticDevice creates a device; Open starts it.
func NewSyntheticDevice(cfg SyntheticConfig) *SyntheticDevice {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = Res720p.Dimensions()
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	if cfg.Buffers <= 0 {
		cfg.Buffers = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SyntheticDevice{
		cfg:    cfg,
		logger: cfg.Logger,
		ring:   NewFrameRing(cfg.Width, cfg.Height, cfg.Buffers, cfg.Registry),
		notes:  make(chan Arrival, 2*cfg.Buffers),
	}
}

// Open paints the first frame and starts the device clock.
func (d *SyntheticDevice) Open(ctx context.Context) error {
	if d.cfg.Deny {
		return fmt.Errorf("%w: synthetic device configured to deny access", ErrAcquisitionDenied)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrSourceClosed
	}
	if err := d.stopped.Err(); err != nil {
		return err
	}
	if d.opened {
		return nil
	}
	d.opened = true
	d.paint()

	runCtx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.wg.Add(2)
	go d.tick(runCtx)
	go d.dispatch(runCtx)

	d.logger.Info("stream-capture: synthetic device opened",
		"width", d.cfg.Width,
		"height", d.cfg.Height,
		"fps", d.cfg.FrameRate,
		"handles", d.cfg.Registry != nil,
	)
	return nil
}

func (d *SyntheticDevice) paint() Arrival {
	return d.ring.Write(func(seq uint64, dst *image.RGBA) {
		fill(dst, colorFor(seq))
	})
}

func (d *SyntheticDevice) tick(ctx context.Context) {
	defer d.wg.Done()
	t := time.NewTicker(time.Duration(float64(time.Second) / d.cfg.FrameRate))
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		a := d.paint()
		select {
		case d.notes <- a:
		case <-ctx.Done():
			return
		}
	}
}

func (d *SyntheticDevice) dispatch(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-d.notes:
			d.notify.Emit(a)
		}
	}
}

// Grab copies the most recent device frame.
func (d *SyntheticDevice) Grab(ctx context.Context) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.stopped.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	opened := d.opened
	d.mu.Unlock()
	if !opened {
		return nil, ErrSourceClosed
	}
	return d.ring.Latest()
}

// Notify registers fn for every device frame.
func (d *SyntheticDevice) Notify(fn func(Arrival)) func() {
	return d.notify.Add(fn)
}

// Done is closed once the device stopped.
func (d *SyntheticDevice) Done() <-chan struct{} { return d.stopped.Done() }

// Err reports why the device stopped, nil while it runs.
func (d *SyntheticDevice) Err() error { return d.stopped.Err() }

// Fail simulates losing the device mid-run: the clock stops and Done is
// closed with cause. Safe to call from a Notify listener.
func (d *SyntheticDevice) Fail(cause error) {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if d.stopped.Stop(cause) {
		d.logger.Error("stream-capture: synthetic device lost", "error", cause, "frames", d.Seq())
	}
}

// Close stops the device clock. Idempotent.
func (d *SyntheticDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	cancel := d.cancel
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
	d.stopped.Stop(nil)
	d.logger.Debug("stream-capture: synthetic device closed", "frames", d.Seq())
	return nil
}

// Seq returns the latest device sequence number.
func (d *SyntheticDevice) Seq() uint64 { return d.ring.Seq() }

// colorFor walks the hue wheel so consecutive frames differ.
func colorFor(seq uint64) [4]byte {
	h := int(seq*7) % 360
	x := byte(255 * (60 - abs(h%120-60)) / 60)
	switch h / 60 {
	case 0:
		return [4]byte{255, x, 0, 255}
	case 1:
		return [4]byte{x, 255, 0, 255}
	case 2:
		return [4]byte{0, 255, x, 255}
	case 3:
		return [4]byte{0, x, 255, 255}
	case 4:
		return [4]byte{x, 0, 255, 255}
	default:
		return [4]byte{255, 0, x, 255}
	}
}

func fill(img *image.RGBA, c [4]byte) {
	if len(img.Pix) == 0 {
		return
	}
	row := img.Pix[:img.Rect.Dx()*4]
	for i := 0; i < len(row); i += 4 {
		copy(row[i:i+4], c[:])
	}
	for y := 1; y < img.Rect.Dy(); y++ {
		copy(img.Pix[y*img.Stride:], row)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
