// Package runloop drives the benchmark: capture, dispatch, await, record,
// display, forever (or until the context ends).
//
// The loop is pipelined. Frame N is sent to the processing context before
// frame N+1 is requested from the source, and the result of N is awaited
// only afterwards, so capture latency overlaps processing latency:
//
//	Send(N) ──► Next() = N+1 ──► Wait(N) ──► record ──► Send(N+1) ...
package runloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/e7canasta/framebench/modules/dispatch"
	"github.com/e7canasta/framebench/modules/display"
	"github.com/e7canasta/framebench/modules/frame"
	"github.com/e7canasta/framebench/modules/metrics"
	streamcapture "github.com/e7canasta/framebench/modules/stream-capture"
)

// DefaultBackoff is the pause after a lenient capture error.
const DefaultBackoff = 10 * time.Millisecond

// Dispatcher is the part of *dispatch.Dispatcher the loop needs.
type Dispatcher interface {
	Send(ctx context.Context, f *frame.Frame) (*dispatch.Call, error)
	Encoding() dispatch.Encoding
}

// Option configures a Session.
type Option func(*Session)

// WithPolicy sets the error policy (default Lenient).
func WithPolicy(p Policy) Option { return func(s *Session) { s.policy = p } }

// WithExporter publishes every snapshot to e.
func WithExporter(e *metrics.Exporter) Option { return func(s *Session) { s.exporter = e } }

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option { return func(s *Session) { s.logger = l } }

// WithMaxIterations stops Run with a nil error after n completed
// iterations. Zero means unbounded.
func WithMaxIterations(n uint64) Option { return func(s *Session) { s.maxIterations = n } }

// WithBackoff sets the pause after a lenient capture error.
func WithBackoff(d time.Duration) Option { return func(s *Session) { s.backoff = d } }

// WithObserver calls fn after every completed iteration, from the loop
// goroutine.
func WithObserver(fn func(metrics.Snapshot, dispatch.Result)) Option {
	return func(s *Session) { s.observer = fn }
}

// Session owns one benchmark run: the source, the dispatcher, the
// aggregator and the display sink. It replaces process-wide state with an
// explicit object handed to Run.
type Session struct {
	src      streamcapture.Source
	disp     Dispatcher
	agg      *metrics.Aggregator
	sink     display.Sink
	exporter *metrics.Exporter
	observer func(metrics.Snapshot, dispatch.Result)

	policy        Policy
	maxIterations uint64
	backoff       time.Duration
	logger        *slog.Logger
	now           func() time.Time

	running atomic.Bool

	iterations       atomic.Uint64
	captureErrors    atomic.Uint64
	processingErrors atomic.Uint64
	invalidated      atomic.Uint64
}

// NewSession validates its collaborators and applies opts.
func NewSession(src streamcapture.Source, disp Dispatcher, agg *metrics.Aggregator, sink display.Sink, opts ...Option) (*Session, error) {
	switch {
	case src == nil:
		return nil, errors.New("runloop: source is required")
	case disp == nil:
		return nil, errors.New("runloop: dispatcher is required")
	case agg == nil:
		return nil, errors.New("runloop: aggregator is required")
	}
	if sink == nil {
		sink = display.Discard{}
	}
	s := &Session{
		src:     src,
		disp:    disp,
		agg:     agg,
		sink:    sink,
		policy:  Lenient,
		backoff: DefaultBackoff,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Policy returns the configured error policy.
func (s *Session) Policy() Policy { return s.policy }

// Run executes the loop until ctx ends, a fatal error occurs, or the
// iteration limit is reached. Cancellation returns ctx.Err(). Run must not
// be called twice concurrently.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("runloop: session already running")
	}
	defer s.running.Store(false)

	s.logger.Info("runloop: started",
		"policy", s.policy,
		"encoding", s.disp.Encoding(),
		"window", s.agg.Window(),
		"max_iterations", s.maxIterations,
	)

	f, err := s.capture(ctx)
	if err != nil {
		return s.stop(err)
	}

	for {
		call, err := s.disp.Send(ctx, f)
		if err != nil {
			if fatal := s.processingFailed(ctx, err); fatal != nil {
				return s.stop(fatal)
			}
			if f, err = s.capture(ctx); err != nil {
				return s.stop(err)
			}
			continue
		}

		// Overlap: next capture runs while the processing context works.
		next, capErr := s.capture(ctx)

		res, err := call.Wait(ctx)
		if err != nil {
			if fatal := s.processingFailed(ctx, err); fatal != nil {
				release(next)
				return s.stop(fatal)
			}
		} else {
			s.complete(call.ID(), res)
		}

		if capErr != nil {
			return s.stop(capErr)
		}
		if s.maxIterations > 0 && s.iterations.Load() >= s.maxIterations {
			release(next)
			return s.stop(nil)
		}
		f = next
	}
}

func (s *Session) stop(err error) error {
	c := s.Stats()
	s.logger.Info("runloop: stopped",
		"iterations", c.Iterations,
		"capture_errors", c.CaptureErrors,
		"processing_errors", c.ProcessingErrors,
		"invalidated", c.Invalidated,
		"dropped", c.Dropped,
		"discarded", c.Discarded,
		"error", err,
	)
	return err
}

// capture pulls the next frame, absorbing non-fatal errors. It returns an
// error only when the loop must end.
func (s *Session) capture(ctx context.Context) (*frame.Frame, error) {
	for {
		f, err := s.src.Next(ctx)
		if err == nil {
			return f, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		switch {
		case errors.Is(err, streamcapture.ErrFrameDiscarded):
			// Counted by the source.
			s.logger.Debug("runloop: frame discarded", "error", err)
			continue
		case errors.Is(err, streamcapture.ErrSourceClosed):
			return nil, err
		}

		s.captureErrors.Add(1)
		if s.policy == Strict {
			return nil, fmt.Errorf("runloop: capture: %w", err)
		}
		s.logger.Warn("runloop: capture failed, retrying", "error", err, "backoff", s.backoff)
		if err := sleep(ctx, s.backoff); err != nil {
			return nil, err
		}
	}
}

// processingFailed classifies a Send or Wait error. A nil return means the
// loop continues.
func (s *Session) processingFailed(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, dispatch.ErrClosed) {
		return err
	}

	if errors.Is(err, dispatch.ErrTransferInvalidated) {
		s.invalidated.Add(1)
	} else {
		s.processingErrors.Add(1)
	}
	if s.policy == Strict {
		return fmt.Errorf("runloop: processing: %w", err)
	}
	s.logger.Warn("runloop: processing failed, continuing", "error", err)
	return nil
}

func (s *Session) complete(id uint64, res dispatch.Result) {
	s.iterations.Add(1)
	snap := s.agg.Update(s.now(), res.RoundTrip)

	s.sink.SetBackground(res.Color.R, res.Color.G, res.Color.B)
	s.sink.SetLabel(Label(snap, s.disp.Encoding() == dispatch.EncodingNoOp))

	if s.exporter != nil {
		s.exporter.Observe(snap, res.RoundTrip)
	}
	if s.observer != nil {
		s.observer(snap, res)
	}

	s.logger.Debug("runloop: iteration",
		"call", id,
		"seq", res.Seq,
		"round_trip", res.RoundTrip,
		"fps", snap.FPS,
		"processing_fps", snap.ProcessingFPS,
	)
}

// Stats returns the counters of the run so far. Dropped and discarded come
// from the source.
func (s *Session) Stats() metrics.Counters {
	src := s.src.Stats()
	return metrics.Counters{
		Iterations:       s.iterations.Load(),
		Dropped:          src.Buffer.Dropped,
		Discarded:        src.Discarded,
		CaptureErrors:    s.captureErrors.Load(),
		ProcessingErrors: s.processingErrors.Load(),
		Invalidated:      s.invalidated.Load(),
	}
}

// Last returns the latest aggregator snapshot. Call it from an observer
// or after Run returned; the aggregator is owned by the loop goroutine.
func (s *Session) Last() metrics.Snapshot { return s.agg.Last() }

func release(f *frame.Frame) {
	if f != nil {
		_ = f.Release()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
