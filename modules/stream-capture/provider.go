package streamcapture

import (
	"context"

	"github.com/e7canasta/framebench/modules/frame"
)

// Source yields frames one at a time. Exactly one Next may be outstanding;
// a concurrent call fails with ErrConcurrentPull. The caller owns every
// returned frame and must Release or Transfer it.
type Source interface {
	Next(ctx context.Context) (*frame.Frame, error)
	Stats() SourceStats
	Close() error
}

// Device is the capture hardware (or a stand-in for it).
//
// Grab materialises the device's current frame synchronously. Notify
// registers fn for every new device frame; the returned stop function
// unregisters it and guarantees fn is not running and will not run again
// once stop returns. stop must not be called from inside fn.
//
// Done is closed when the device stops producing frames, on Close or
// because it was lost (unplugged, end of stream, pipeline error). Err then
// reports why and matches ErrSourceClosed.
type Device interface {
	Open(ctx context.Context) error
	Grab(ctx context.Context) (*frame.Frame, error)
	Notify(fn func(Arrival)) (stop func())
	Done() <-chan struct{}
	Err() error
	Close() error
}

// Arrival is a device notification for a frame not yet materialised.
// Commit copies it out of the device; it fails with ErrRecycled when the
// device reused the buffer first.
type Arrival interface {
	Seq() uint64
	Commit() (*frame.Frame, error)
}
