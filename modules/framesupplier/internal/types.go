package internal

import "errors"

var (
	ErrWaiterPending = errors.New("framesupplier: a waiter is already pending")
	ErrClosed        = errors.New("framesupplier: supplier closed")
)

// SupplierStats is a snapshot of supplier operational state.
type SupplierStats struct {
	// Capacity is the slot queue bound.
	Capacity int

	// Arrivals counts every Publish call.
	Arrivals uint64

	// Delivered counts frames returned by Next (queued or direct).
	Delivered uint64

	// DirectHandoffs counts arrivals that bypassed the queue because a
	// waiter was pending.
	DirectHandoffs uint64

	// Dropped counts frames evicted by overflow, plus arrivals after Close.
	// Drops are expected when the consumer is slower than the device.
	Dropped uint64

	// Queued is the current queue length (0..Capacity).
	Queued int

	// WaiterPending reports whether a consumer is suspended in Next.
	WaiterPending bool
}
