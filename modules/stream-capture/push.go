package streamcapture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/e7canasta/framebench/modules/frame"
	"github.com/e7canasta/framebench/modules/framesupplier"
)

// PushSource implements the push-buffered discipline. Device notifications
// are committed on the device's goroutine and published into a bounded
// supplier; Next hands them out oldest first.
type PushSource struct {
	dev      Device
	supplier framesupplier.Supplier
	logger   *slog.Logger
	stop     func()

	busy atomic.Bool
	once sync.Once

	delivered atomic.Uint64
	discarded atomic.Uint64
}

// NewPushSource subscribes to dev and buffers into supplier.
func NewPushSource(dev Device, supplier framesupplier.Supplier, logger *slog.Logger) *PushSource {
	if logger == nil {
		logger = slog.Default()
	}
	s := &PushSource{dev: dev, supplier: supplier, logger: logger}
	s.stop = dev.Notify(s.onArrival)
	go s.watch()
	return s
}

// watch closes the supplier when the device stops on its own, so a pending
// Next wakes instead of waiting for a frame that never comes.
func (s *PushSource) watch() {
	<-s.dev.Done()
	s.supplier.Close()
}

func (s *PushSource) onArrival(a Arrival) {
	f, err := a.Commit()
	if err != nil {
		s.discarded.Add(1)
		s.logger.Debug("stream-capture: frame discarded", "seq", a.Seq(), "error", err)
		return
	}
	s.supplier.Publish(f)
}

// Next returns the oldest buffered frame, waiting for one if needed.
func (s *PushSource) Next(ctx context.Context) (*frame.Frame, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrConcurrentPull
	}
	defer s.busy.Store(false)

	f, err := s.supplier.Next(ctx)
	if err != nil {
		if errors.Is(err, framesupplier.ErrClosed) {
			if lost := s.dev.Err(); lost != nil {
				return nil, lost
			}
			return nil, ErrSourceClosed
		}
		return nil, err
	}
	s.delivered.Add(1)
	return f, nil
}

// Stats returns the source and buffer counters.
func (s *PushSource) Stats() SourceStats {
	return SourceStats{
		Method:     MethodOnFrame,
		Discipline: PushBuffered,
		Delivered:  s.delivered.Load(),
		Discarded:  s.discarded.Load(),
		Buffer:     s.supplier.Stats(),
	}
}

// Close unsubscribes, releases buffered frames and closes the device.
func (s *PushSource) Close() error {
	var err error
	s.once.Do(func() {
		s.stop()
		s.supplier.Close()
		err = s.dev.Close()
	})
	return err
}
