// Package dispatch moves frames to a processing context over a message
// stream and correlates each response with its request.
//
// One long-lived listener goroutine reads responses and resolves the
// pending Call whose id matches. At most one call is in flight: the run
// loop pipelines capture against processing, never two processing
// requests, so a second Send before the first resolves is rejected with
// ErrInFlight rather than risking a misrouted response.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/framebench/modules/dispatch/wire"
	"github.com/e7canasta/framebench/modules/frame"
	"github.com/e7canasta/framebench/modules/worker"
)

// Options configure a Dispatcher.
type Options struct {
	Encoding    Encoding
	Method      wire.Method // handle encoding only; default bitmap
	ReuseBuffer bool
	Neuter      bool
	Logger      *slog.Logger
}

// Result is the reduced output of one processed frame.
type Result struct {
	Color     worker.Color
	RoundTrip time.Duration
	Seq       uint64
}

// Call is a pending request.
type Call struct {
	id   uint64
	seq  uint64
	sent time.Time
	done chan struct{}

	result Result
	err    error
}

// ID returns the request id.
func (c *Call) ID() uint64 { return c.id }

// Wait blocks until the response arrives or ctx ends. Abandoning a call
// does not cancel it; the dispatcher stays busy until its response arrives.
func (c *Call) Wait(ctx context.Context) (Result, error) {
	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (c *Call) resolve(res Result, err error) {
	c.result, c.err = res, err
	close(c.done)
}

// Dispatcher sends frames to a processing context.
type Dispatcher struct {
	conn     *wire.Conn
	registry *frame.Registry
	opts     Options
	logger   *slog.Logger

	mu      sync.Mutex
	nextID  uint64
	pending *Call
	closed  bool
	err     error

	listenerDone chan struct{}

	sent    atomic.Uint64
	unknown atomic.Uint64
}

// New starts the response listener on conn. reg is the host registry used
// to wrap owned frames for the handle encoding.
func New(conn *wire.Conn, reg *frame.Registry, opts Options) *Dispatcher {
	if opts.Encoding == "" {
		opts.Encoding = EncodingRaw
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	d := &Dispatcher{
		conn:         conn,
		registry:     reg,
		opts:         opts,
		logger:       opts.Logger,
		listenerDone: make(chan struct{}),
	}
	go d.listen()
	return d
}

// Encoding returns the configured encoding.
func (d *Dispatcher) Encoding() Encoding { return d.opts.Encoding }

// Send transfers f and returns its pending call. f is consumed whether or
// not Send succeeds.
func (d *Dispatcher) Send(ctx context.Context, f *frame.Frame) (*Call, error) {
	if err := ctx.Err(); err != nil {
		_ = f.Release()
		return nil, err
	}

	d.mu.Lock()
	if d.closed {
		err := d.closedErrLocked()
		d.mu.Unlock()
		_ = f.Release()
		return nil, err
	}
	if d.pending != nil {
		d.mu.Unlock()
		_ = f.Release()
		return nil, ErrInFlight
	}
	d.nextID++
	call := &Call{id: d.nextID, seq: f.Seq, done: make(chan struct{})}
	d.pending = call
	d.mu.Unlock()

	req, err := encode(call.id, f, d.registry, d.opts.Encoding, wire.Options{
		Method:      d.opts.Method,
		ReuseBuffer: d.opts.ReuseBuffer,
		Neuter:      d.opts.Neuter,
	})
	if err != nil {
		d.clear(call)
		return nil, err
	}

	call.sent = time.Now()
	if err := d.conn.WriteMessage(req); err != nil {
		d.clear(call)
		if req.Handle != 0 {
			d.releaseHandle(f, frame.HandleID(req.Handle))
		}
		if errors.Is(err, wire.ErrMessageTooLarge) {
			// Nothing reached the stream; the connection stays usable.
			return nil, fmt.Errorf("%w: %v", ErrProcessing, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrClosed, err)
	}
	d.sent.Add(1)

	d.logger.Debug("dispatch: request sent",
		"id", call.id,
		"seq", req.Seq,
		"trace_id", req.TraceID,
		"kind", req.Kind,
	)
	return call, nil
}

// releaseHandle gives back a handle whose request never reached the
// processing context. f is the neutered sender, which still knows its
// registry.
func (d *Dispatcher) releaseHandle(f *frame.Frame, id frame.HandleID) {
	reg := f.Registry()
	if reg == nil {
		reg = d.registry
	}
	if reg == nil {
		return
	}
	if err := reg.Release(id); err != nil {
		d.logger.Debug("dispatch: unsent handle already released", "handle", id, "error", err)
	}
}

func (d *Dispatcher) clear(call *Call) {
	d.mu.Lock()
	if d.pending == call {
		d.pending = nil
	}
	d.mu.Unlock()
}

func (d *Dispatcher) listen() {
	defer close(d.listenerDone)
	for {
		var resp wire.Response
		err := d.conn.ReadMessage(&resp)
		if err != nil {
			d.fail(err)
			return
		}
		received := time.Now()

		d.mu.Lock()
		call := d.pending
		if call == nil || call.id != resp.ID {
			d.mu.Unlock()
			d.unknown.Add(1)
			d.logger.Warn("dispatch: response for unknown request", "id", resp.ID)
			continue
		}
		d.pending = nil
		d.mu.Unlock()

		call.resolve(Result{
			Color:     worker.Color{R: resp.R, G: resp.G, B: resp.B},
			RoundTrip: received.Sub(call.sent),
			Seq:       call.seq,
		}, responseErr(resp))
	}
}

func responseErr(resp wire.Response) error {
	switch resp.Code {
	case wire.CodeOK:
		return nil
	case wire.CodeInvalidated:
		return fmt.Errorf("%w: %s", ErrTransferInvalidated, resp.Error)
	default:
		return fmt.Errorf("%w: %s", ErrProcessing, resp.Error)
	}
}

// fail marks the dispatcher closed and resolves the pending call.
func (d *Dispatcher) fail(err error) {
	d.mu.Lock()
	if !errors.Is(err, io.EOF) && d.err == nil {
		d.err = err
	}
	d.closed = true
	call := d.pending
	d.pending = nil
	cerr := d.closedErrLocked()
	d.mu.Unlock()

	if errors.Is(err, io.EOF) {
		d.logger.Debug("dispatch: listener stopped", "sent", d.sent.Load())
	} else {
		d.logger.Error("dispatch: listener failed", "error", err)
	}
	if call != nil {
		call.resolve(Result{Seq: call.seq}, cerr)
	}
}

func (d *Dispatcher) closedErrLocked() error {
	if d.err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, d.err)
	}
	return ErrClosed
}

// Unknown returns the number of responses that matched no pending call.
func (d *Dispatcher) Unknown() uint64 { return d.unknown.Load() }

// Close closes the connection and waits for the listener to exit. A
// pending call resolves with ErrClosed.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	err := d.conn.Close()
	<-d.listenerDone
	return err
}

// StartWorker runs w on the processing end of a fresh pipe and returns the
// producer end. The returned channel yields Serve's result once it exits.
func StartWorker(ctx context.Context, w *worker.Worker) (*wire.Conn, <-chan error) {
	producer, processing := wire.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- w.Serve(ctx, processing)
	}()
	return producer, done
}
