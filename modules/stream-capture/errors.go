package streamcapture

import "errors"

var (
	// ErrAcquisitionDenied is returned by Open when the device refuses access
	// (permissions, missing hardware, unsupported format).
	ErrAcquisitionDenied = errors.New("streamcapture: acquisition denied")

	// ErrFrameDiscarded marks a frame that was lost between notification and
	// commit. Callers skip the iteration.
	ErrFrameDiscarded = errors.New("streamcapture: frame discarded")

	// ErrRecycled is returned by Arrival.Commit when the device reused the
	// backing buffer before the frame could be materialised.
	ErrRecycled = errors.New("streamcapture: device buffer recycled")

	// ErrConcurrentPull is returned when Next is called while another Next on
	// the same source is still outstanding.
	ErrConcurrentPull = errors.New("streamcapture: concurrent Next on source")

	// ErrSourceClosed is returned by Next after Close or once the device
	// was lost; a lost device wraps its cause.
	ErrSourceClosed = errors.New("streamcapture: source closed")
)
