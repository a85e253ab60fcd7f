package internal

import (
	"sync/atomic"

	"github.com/e7canasta/framebench/modules/frame"
)

// Publish hands an arriving frame to the buffer (implements Supplier.Publish).
//
// Algorithm:
//  1. Lock
//  2. Waiter pending → hand frame over directly, clear waiter (fast path)
//  3. Queue full → evict oldest (released + counted outside the lock)
//  4. Enqueue
//
// Latency: O(1), never blocks (the waiter channel has one free slot by
// construction).
func (s *supplier) Publish(f *frame.Frame) {
	atomic.AddUint64(&s.arrivals, 1)

	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		s.drop(f, "closed")
		return
	}

	if w := s.waiter; w != nil {
		s.waiter = nil
		w <- f
		s.mu.Unlock()
		atomic.AddUint64(&s.directHandoffs, 1)
		return
	}

	evicted := s.queue.Push(f)
	s.mu.Unlock()

	if evicted != nil {
		s.drop(evicted, "overflow")
	}
}
