package internal

import (
	"context"
	"sync/atomic"

	"github.com/e7canasta/framebench/modules/frame"
)

// Next returns the oldest frame or suspends as the single pending waiter
// (implements Supplier.Next).
//
// Algorithm:
//  1. Lock
//  2. Queue non-empty → pop oldest, return immediately
//  3. Waiter already pending → ErrWaiterPending
//  4. Register one-shot channel as waiter, unlock, block
//
// Cancellation: if ctx ends after Publish already handed a frame to this
// waiter, the frame is put back at the head of the queue.
func (s *supplier) Next(ctx context.Context) (*frame.Frame, error) {
	s.mu.Lock()

	if f := s.queue.Pop(); f != nil {
		s.mu.Unlock()
		atomic.AddUint64(&s.delivered, 1)
		return f, nil
	}

	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}

	if s.waiter != nil {
		s.mu.Unlock()
		return nil, ErrWaiterPending
	}

	w := make(chan *frame.Frame, 1)
	s.waiter = w
	s.mu.Unlock()

	select {
	case f, ok := <-w:
		if !ok {
			return nil, ErrClosed
		}
		atomic.AddUint64(&s.delivered, 1)
		return f, nil

	case <-ctx.Done():
		s.mu.Lock()
		if s.waiter == w {
			s.waiter = nil
			s.mu.Unlock()
			return nil, ctx.Err()
		}
		s.mu.Unlock()

		// Publish or Close got to the waiter first; w is either holding a
		// frame or closed, so this receive never blocks.
		if f, ok := <-w; ok {
			s.requeue(f)
		}
		return nil, ctx.Err()
	}
}

// requeue returns a frame that was handed to a cancelled waiter.
func (s *supplier) requeue(f *frame.Frame) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.drop(f, "closed")
		return
	}
	ok := s.queue.PushFront(f)
	s.mu.Unlock()

	if !ok {
		// Newer frames filled the queue meanwhile; f is the oldest.
		s.drop(f, "overflow")
	}
}
