package streamcapture

import (
	"errors"
	"fmt"
	"sync"
)

// Stopped latches the first reason a device stopped producing frames,
// whether it was closed or lost mid-run. The zero value is ready to use.
type Stopped struct {
	mu   sync.Mutex
	done chan struct{}
	err  error
}

// Stop records why the device stopped and closes Done. Only the first call
// has effect; it reports whether this call was that one. The recorded error
// always matches ErrSourceClosed, so a lost device ends a run like a closed
// one.
func (s *Stopped) Stop(cause error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initLocked()
	if s.err != nil {
		return false
	}
	switch {
	case cause == nil:
		s.err = ErrSourceClosed
	case errors.Is(cause, ErrSourceClosed):
		s.err = cause
	default:
		s.err = fmt.Errorf("%w: %w", ErrSourceClosed, cause)
	}
	close(s.done)
	return true
}

// Done is closed once Stop was called.
func (s *Stopped) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initLocked()
	return s.done
}

// Err returns nil while the device runs.
func (s *Stopped) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stopped) initLocked() {
	if s.done == nil {
		s.done = make(chan struct{})
	}
}
