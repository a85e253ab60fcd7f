// Package internal implements the framesupplier buffer.
//
// This package is INTERNAL - clients MUST use public API in parent package.
package internal

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/e7canasta/framebench/modules/frame"
)

// Config holds construction parameters (filled by the public Options).
type Config struct {
	Capacity int
	Logger   *slog.Logger
}

// supplier is the concrete implementation of framesupplier.Supplier.
//
// Goroutine topology: none owned. Publish runs on the device's notification
// goroutine, Next on the consumer's.
type supplier struct {
	// --- Slot queue + waiter ---
	// Both protected by mu so that "queue empty ⇒ maybe waiter" stays atomic.

	mu     sync.Mutex
	queue  *ringQueue
	waiter chan *frame.Frame // pending waiter (nil = none), buffered 1
	closed bool

	// --- Counters (atomic, read by Stats without lock) ---

	arrivals       uint64
	delivered      uint64
	directHandoffs uint64
	dropped        uint64

	logger *slog.Logger
}

// NewSupplier creates a new supplier instance (called by public New()).
func NewSupplier(cfg Config) *supplier {
	return &supplier{
		queue:  newRingQueue(cfg.Capacity),
		logger: cfg.Logger,
	}
}

// Close implements Supplier.Close.
//
// Behavior:
//  1. Marks the supplier closed (Publish releases, Next fails)
//  2. Wakes the pending waiter (closed channel → ErrClosed)
//  3. Releases every buffered frame
func (s *supplier) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	w := s.waiter
	s.waiter = nil
	leftover := s.queue.Drain()
	s.mu.Unlock()

	if w != nil {
		close(w)
	}
	for _, f := range leftover {
		_ = f.Release()
	}

	s.logger.Debug("framesupplier: closed",
		"released", len(leftover),
		"dropped_total", atomic.LoadUint64(&s.dropped),
	)
}

// drop releases an unconsumed frame and records the event.
func (s *supplier) drop(f *frame.Frame, reason string) {
	atomic.AddUint64(&s.dropped, 1)
	_ = f.Release()
	s.logger.Debug("framesupplier: frame dropped",
		"reason", reason,
		"seq", f.Seq,
		"trace_id", f.TraceID,
	)
}
