package streamcapture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/e7canasta/framebench/modules/frame"
)

// PullSource implements the pull-direct discipline: every Next captures the
// device's current state. For MethodTakePhoto the capture is a one-shot
// notification instead of a synchronous grab.
type PullSource struct {
	dev    Device
	method Method
	logger *slog.Logger

	busy   atomic.Bool
	closed atomic.Bool
	once   sync.Once

	delivered  atomic.Uint64
	discarded  atomic.Uint64
	duplicates atomic.Uint64
	lastSeq    uint64 // guarded by busy
}

// NewPullSource wraps an opened device.
func NewPullSource(dev Device, method Method, logger *slog.Logger) *PullSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &PullSource{dev: dev, method: method, logger: logger}
}

// Next captures one frame.
func (s *PullSource) Next(ctx context.Context) (*frame.Frame, error) {
	if s.closed.Load() {
		return nil, ErrSourceClosed
	}
	if err := s.dev.Err(); err != nil {
		return nil, err
	}
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrConcurrentPull
	}
	defer s.busy.Store(false)

	var (
		f   *frame.Frame
		err error
	)
	if s.method == MethodTakePhoto {
		f, err = s.snap(ctx)
	} else {
		f, err = s.dev.Grab(ctx)
	}
	if err != nil {
		return nil, err
	}

	if f.Seq == s.lastSeq {
		s.duplicates.Add(1)
	}
	s.lastSeq = f.Seq
	s.delivered.Add(1)
	return f, nil
}

// snap waits for the first committable device frame.
func (s *PullSource) snap(ctx context.Context) (*frame.Frame, error) {
	got := make(chan *frame.Frame, 1)
	stop := s.dev.Notify(func(a Arrival) {
		f, err := a.Commit()
		if err != nil {
			s.discarded.Add(1)
			s.logger.Debug("stream-capture: photo discarded", "seq", a.Seq(), "error", err)
			return
		}
		select {
		case got <- f:
		default:
			_ = f.Release()
		}
	})

	select {
	case f := <-got:
		stop()
		s.drain(got)
		return f, nil
	case <-s.dev.Done():
		stop()
		s.drain(got)
		return nil, s.dev.Err()
	case <-ctx.Done():
		stop()
		s.drain(got)
		return nil, fmt.Errorf("streamcapture: take-photo: %w", ctx.Err())
	}
}

func (s *PullSource) drain(ch chan *frame.Frame) {
	select {
	case f := <-ch:
		_ = f.Release()
	default:
	}
}

// Stats returns the source counters.
func (s *PullSource) Stats() SourceStats {
	return SourceStats{
		Method:     s.method,
		Discipline: PullDirect,
		Delivered:  s.delivered.Load(),
		Discarded:  s.discarded.Load(),
		Duplicates: s.duplicates.Load(),
	}
}

// Close closes the device. Safe to call more than once.
func (s *PullSource) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		err = s.dev.Close()
	})
	return err
}
