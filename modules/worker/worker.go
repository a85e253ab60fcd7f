// Package worker is the processing context: it receives transferred frames
// as wire requests, decodes them to RGBA and reduces them to an average
// colour.
package worker

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/e7canasta/framebench/modules/dispatch/wire"
	"github.com/e7canasta/framebench/modules/frame"
)

// Worker holds the processing-side decode state. A Worker is not safe for
// concurrent Process calls; Serve drives it from one goroutine.
type Worker struct {
	registry *frame.Registry
	logger   *slog.Logger

	// canvas is the persistent offscreen surface.
	canvas *image.RGBA
	// scratch is the reusable decode buffer for the bitmap method. Its
	// contents are overwritten by the next decode.
	scratch *image.RGBA

	allocations atomic.Uint64
	processed   atomic.Uint64
	failed      atomic.Uint64
}

// New returns a worker decoding handles from reg. reg may be nil when only
// raw and no-op requests are expected.
func New(reg *frame.Registry, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{registry: reg, logger: logger}
}

// Allocations is the number of pixel buffers the worker allocated.
func (w *Worker) Allocations() uint64 { return w.allocations.Load() }

// Processed returns the number of successful and failed requests.
func (w *Worker) Processed() (ok, failed uint64) {
	return w.processed.Load(), w.failed.Load()
}

// Process handles one request and always produces a response with the
// request's id.
func (w *Worker) Process(req wire.Request) wire.Response {
	color, err := w.process(req)
	resp := wire.Response{ID: req.ID, R: color.R, G: color.G, B: color.B}
	if err != nil {
		w.failed.Add(1)
		resp = wire.Response{ID: req.ID, Code: codeFor(err), Error: err.Error()}
		w.logger.Debug("worker: request failed",
			"id", req.ID,
			"seq", req.Seq,
			"trace_id", req.TraceID,
			"kind", req.Kind,
			"error", err,
		)
		return resp
	}
	w.processed.Add(1)
	return resp
}

var errBadRequest = errors.New("worker: bad request")

func codeFor(err error) wire.Code {
	if errors.Is(err, frame.ErrHandleInvalidated) {
		return wire.CodeInvalidated
	}
	return wire.CodeBadRequest
}

func (w *Worker) process(req wire.Request) (Color, error) {
	switch req.Kind {
	case wire.KindNoOp:
		if req.Handle != 0 && w.registry != nil {
			w.release(frame.HandleID(req.Handle))
		}
		return Color{}, nil

	case wire.KindRawPixels:
		img, err := rawView(req)
		if err != nil {
			return Color{}, err
		}
		return AverageColor(img), nil

	case wire.KindOpaqueHandle:
		img, err := w.decode(req)
		if err != nil {
			return Color{}, err
		}
		return AverageColor(img), nil
	}
	return Color{}, fmt.Errorf("%w: unknown kind %v", errBadRequest, req.Kind)
}

// rawView reconstructs an RGBA view over the transferred bytes without
// copying them.
func rawView(req wire.Request) (*image.RGBA, error) {
	w, h := int(req.Width), int(req.Height)
	if len(req.Pixels) != w*h*4 {
		return nil, fmt.Errorf("%w: %d pixel bytes for %dx%d", errBadRequest, len(req.Pixels), w, h)
	}
	return &image.RGBA{Pix: req.Pixels, Stride: w * 4, Rect: image.Rect(0, 0, w, h)}, nil
}

// decode turns a handle request into pixels according to its options.
func (w *Worker) decode(req wire.Request) (*image.RGBA, error) {
	if w.registry == nil {
		return nil, fmt.Errorf("%w: no handle registry", errBadRequest)
	}
	id := frame.HandleID(req.Handle)
	rect := image.Rect(0, 0, int(req.Width), int(req.Height))

	switch req.Options.Method {
	case wire.MethodOffscreen, "":
		w.canvas = w.surface(w.canvas, rect)
		err := w.registry.Decode(id, w.canvas)
		w.release(id)
		if err != nil {
			return nil, err
		}
		return w.canvas, nil

	case wire.MethodBitmap:
		if req.Options.Neuter {
			return w.registry.Neuter(id)
		}
		var dst *image.RGBA
		if req.Options.ReuseBuffer {
			w.scratch = w.surface(w.scratch, rect)
			dst = w.scratch
		} else {
			dst = w.surface(nil, rect)
		}
		err := w.registry.Decode(id, dst)
		w.release(id)
		if err != nil {
			return nil, err
		}
		return dst, nil
	}
	return nil, fmt.Errorf("%w: unknown method %q", errBadRequest, req.Options.Method)
}

// release returns a decoded handle to the host. An already invalidated
// handle was reported by the decode itself.
func (w *Worker) release(id frame.HandleID) {
	if err := w.registry.Release(id); err != nil {
		w.logger.Debug("worker: handle already released", "handle", id, "error", err)
	}
}

// surface returns buf when it already has the wanted bounds, otherwise a
// newly allocated image.
func (w *Worker) surface(buf *image.RGBA, rect image.Rectangle) *image.RGBA {
	if buf != nil && buf.Rect == rect {
		return buf
	}
	w.allocations.Add(1)
	return image.NewRGBA(rect)
}

// Serve reads requests from conn and answers each one until ctx is done or
// the peer closes the connection.
//
// conn is closed on return, so the peer's next write fails instead of
// blocking on a reader that is gone.
func (w *Worker) Serve(ctx context.Context, conn *wire.Conn) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	w.logger.Debug("worker: serving")
	for {
		var req wire.Request
		if err := conn.ReadMessage(&req); err != nil {
			if errors.Is(err, io.EOF) {
				w.logger.Debug("worker: connection closed", "processed", w.processed.Load(), "failed", w.failed.Load())
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return nil
			}
			return fmt.Errorf("worker: read request: %w", err)
		}

		resp := w.Process(req)
		if err := conn.WriteMessage(resp); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("worker: write response %d: %w", req.ID, err)
		}
	}
}
