// Package framesupplier implements the backpressure-aware frame buffer of the
// benchmark pipeline.
//
// # Philosophy
//
// "Bound the memory, keep the freshest, never block the producer."
//
// A push-driven device delivers frames at its own cadence; the benchmark loop
// pulls one frame per iteration. The supplier mediates between the two with a
// slot queue of capacity 2 and at most one pending waiter.
//
// # Architecture
//
//	device notifications → Publish() → [slot queue, cap 2] → Next() → run loop
//	                            │                                ↑
//	                            └──── waiter pending: direct handoff ┘
//
// # Overflow Policy
//
// Drop-oldest: when a frame arrives and the queue is full, the oldest frame is
// evicted, released, and counted in Stats().Dropped. Delivery order is always
// arrival order (FIFO). For a throughput benchmark only the latest signal
// matters, so freshness wins over completeness.
//
// Drops are NOT errors. A consumer slower than the device produces drops by
// design.
//
// # Basic Usage
//
// Producer side (device callback):
//
//	supplier := framesupplier.New()
//	defer supplier.Close()
//
//	device.Notify(func(a streamcapture.Arrival) {
//	    f, err := a.Commit()
//	    if err != nil {
//	        return // discarded, never reached the buffer
//	    }
//	    supplier.Publish(f) // non-blocking
//	})
//
// Consumer side (single goroutine):
//
//	for {
//	    f, err := supplier.Next(ctx) // blocks until a frame is available
//	    if err != nil {
//	        break
//	    }
//	    process(f) // f is owned by the consumer now
//	}
//
// # Ownership
//
// Publish transfers ownership of the frame to the supplier; Next transfers it
// to the caller. Frames evicted on overflow or left over at Close are released
// by the supplier. A frame is therefore consumed exactly once.
//
// # Thread Safety
//
//   - Publish(): safe for concurrent calls (typically 1 device goroutine)
//   - Next(): one consumer; a second concurrent call returns ErrWaiterPending
//   - Stats(), Close(): safe for concurrent calls
package framesupplier
