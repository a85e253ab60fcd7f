// Package framesupplier implements the bounded frame buffer that sits between
// a push-driven device and the pull-driven benchmark loop.
//
// Philosophy: "Bound the memory, keep the freshest, never block the producer."
//
// Design:
//   - Non-blocking Publish() (device notification path)
//   - Blocking Next() with a single pending waiter (consumer path)
//   - Drop-oldest overflow with explicit release of the evicted frame
//   - Direct handoff when the consumer is already waiting (zero added latency)
package framesupplier

import (
	"context"
	"log/slog"

	"github.com/e7canasta/framebench/modules/frame"
	"github.com/e7canasta/framebench/modules/framesupplier/internal"
)

// DefaultCapacity bounds memory and staleness while absorbing one burst of
// producer/consumer skew.
const DefaultCapacity = 2

// Frame is re-exported so callers do not need to import modules/frame for the
// common case.
type Frame = frame.Frame

// SupplierStats is re-exported from internal package.
// See internal/types.go for full documentation.
type SupplierStats = internal.SupplierStats

var (
	// ErrWaiterPending is returned by Next when another Next call is
	// already suspended. The second waiter is rejected, never queued.
	ErrWaiterPending = internal.ErrWaiterPending

	// ErrClosed is returned by Next after Close.
	ErrClosed = internal.ErrClosed
)

// Supplier is the public interface for the frame buffer.
//
// Lifecycle: New() → Publish()/Next() → Close()
//
// Thread-safety: all methods safe for concurrent use, but Next is designed for
// a single consumer; a concurrent second Next fails with ErrWaiterPending.
type Supplier interface {
	// Publish hands an arriving frame to the buffer (on_arrival).
	//
	// Semantics:
	//   - Pending waiter: frame goes straight to it, bypassing the queue
	//   - Queue full: oldest frame is evicted, released and counted as dropped
	//   - Otherwise: frame is appended (FIFO)
	//
	// Ownership of frame passes to the supplier. Never blocks.
	Publish(f *Frame)

	// Next returns the oldest buffered frame, or suspends until one arrives.
	//
	// Returns:
	//   - ErrWaiterPending if another Next is already suspended
	//   - ErrClosed after Close
	//   - ctx.Err() on cancellation (a frame handed over concurrently is
	//     put back at the head of the queue, not lost)
	//
	// Ownership of the returned frame passes to the caller.
	Next(ctx context.Context) (*Frame, error)

	// Close wakes the pending waiter with ErrClosed and releases buffered frames.
	// Idempotent.
	Close()

	// Stats returns a non-blocking snapshot of buffer counters.
	Stats() SupplierStats
}

// Option configures a Supplier.
type Option func(*internal.Config)

// WithCapacity sets the slot queue capacity (values < 1 fall back to DefaultCapacity).
func WithCapacity(n int) Option {
	return func(c *internal.Config) {
		c.Capacity = n
	}
}

// WithLogger sets the logger used for drop and lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(c *internal.Config) {
		c.Logger = l
	}
}

// New creates a Supplier with capacity DefaultCapacity unless overridden.
func New(opts ...Option) Supplier {
	cfg := internal.Config{Capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Capacity < 1 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return internal.NewSupplier(cfg)
}
