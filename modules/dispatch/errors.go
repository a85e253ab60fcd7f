package dispatch

import "errors"

var (
	// ErrInFlight is returned by Send while the previous call is unresolved.
	ErrInFlight = errors.New("dispatch: request already in flight")

	// ErrTransferInvalidated is returned when the frame's handle was
	// invalidated before the processing context could decode it.
	ErrTransferInvalidated = errors.New("dispatch: transfer invalidated")

	// ErrProcessing wraps any other processing-side failure.
	ErrProcessing = errors.New("dispatch: processing failed")

	// ErrClosed is returned after Close or when the connection dropped.
	ErrClosed = errors.New("dispatch: dispatcher closed")
)
