package runloop

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/e7canasta/framebench/modules/dispatch"
	"github.com/e7canasta/framebench/modules/frame"
	"github.com/e7canasta/framebench/modules/framesupplier"
	"github.com/e7canasta/framebench/modules/metrics"
	streamcapture "github.com/e7canasta/framebench/modules/stream-capture"
	"github.com/e7canasta/framebench/modules/worker"
)

type recorder struct {
	mu     sync.Mutex
	bgs    [][3]float64
	labels []string
}

func (r *recorder) SetBackground(red, g, b float64) {
	r.mu.Lock()
	r.bgs = append(r.bgs, [3]float64{red, g, b})
	r.mu.Unlock()
}

func (r *recorder) SetLabel(text string) {
	r.mu.Lock()
	r.labels = append(r.labels, text)
	r.mu.Unlock()
}

// scriptedSource replays a fixed list of Next results, then reports closed.
type scriptedSource struct {
	mu    sync.Mutex
	steps []func() (*frame.Frame, error)
	i     int
}

func (s *scriptedSource) Next(ctx context.Context) (*frame.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.i >= len(s.steps) {
		return nil, streamcapture.ErrSourceClosed
	}
	step := s.steps[s.i]
	s.i++
	return step()
}

func (s *scriptedSource) Stats() streamcapture.SourceStats { return streamcapture.SourceStats{} }
func (s *scriptedSource) Close() error                     { return nil }

func solid(seq uint64) func() (*frame.Frame, error) {
	return func() (*frame.Frame, error) {
		pix := make([]byte, 20*20*4)
		for i := 0; i < len(pix); i += 4 {
			pix[i], pix[i+3] = 200, 255
		}
		return frame.NewOwned(seq, 20, 20, pix), nil
	}
}

func fail(err error) func() (*frame.Frame, error) {
	return func() (*frame.Frame, error) { return nil, err }
}

func handle(reg *frame.Registry, seq uint64, invalidate bool) func() (*frame.Frame, error) {
	return func() (*frame.Frame, error) {
		img := image.NewRGBA(image.Rect(0, 0, 20, 20))
		for i := 0; i < len(img.Pix); i += 4 {
			img.Pix[i+1], img.Pix[i+3] = 100, 255
		}
		id := reg.Register(img)
		if invalidate {
			reg.Release(id)
		}
		return frame.NewHandle(reg, seq, 20, 20, id), nil
	}
}

// handDevice lets a test write ring slots and emit arrivals itself.
type handDevice struct {
	ring    *streamcapture.FrameRing
	notify  streamcapture.Notifier
	stopped streamcapture.Stopped
}

func (d *handDevice) Open(context.Context) error { return nil }
func (d *handDevice) Grab(context.Context) (*frame.Frame, error) {
	return d.ring.Latest()
}
func (d *handDevice) Notify(fn func(streamcapture.Arrival)) func() { return d.notify.Add(fn) }
func (d *handDevice) Done() <-chan struct{}                         { return d.stopped.Done() }
func (d *handDevice) Err() error                                    { return d.stopped.Err() }
func (d *handDevice) Close() error                                  { d.stopped.Stop(nil); return nil }

func (d *handDevice) write() streamcapture.Arrival {
	return d.ring.Write(func(_ uint64, dst *image.RGBA) {
		for i := 0; i < len(dst.Pix); i += 4 {
			dst.Pix[i], dst.Pix[i+3] = 200, 255
		}
	})
}

func newDispatcher(t *testing.T, reg *frame.Registry, enc dispatch.Encoding) *dispatch.Dispatcher {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	conn, done := dispatch.StartWorker(ctx, worker.New(reg, nil))
	d := dispatch.New(conn, reg, dispatch.Options{Encoding: enc})
	t.Cleanup(func() {
		d.Close()
		cancel()
		<-done
	})
	return d
}

func newSession(t *testing.T, src streamcapture.Source, d Dispatcher, sink *recorder, opts ...Option) *Session {
	t.Helper()
	agg, err := metrics.NewAggregator(metrics.Window1s, metrics.DefaultLatencySamples)
	if err != nil {
		t.Fatal(err)
	}
	opts = append([]Option{WithBackoff(time.Millisecond)}, opts...)
	s, err := NewSession(src, d, agg, sink, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func runWithTimeout(t *testing.T, s *Session) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.Run(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("Run did not finish within 5s")
	}
	return err
}

// No-op processing on every capture method reports black and no worker rate.
func TestRun_NoOpEndToEnd(t *testing.T) {
	for _, method := range streamcapture.Methods() {
		t.Run(string(method), func(t *testing.T) {
			dev := streamcapture.NewSyntheticDevice(streamcapture.SyntheticConfig{Width: 40, Height: 30, FrameRate: 200})
			src, err := streamcapture.Open(context.Background(), dev, streamcapture.Config{Method: method}, nil)
			if err != nil {
				t.Fatal(err)
			}
			defer src.Close()

			reg := frame.NewRegistry()
			sink := &recorder{}
			s := newSession(t, src, newDispatcher(t, reg, dispatch.EncodingNoOp), sink, WithMaxIterations(10))

			if err := runWithTimeout(t, s); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if got := s.Stats().Iterations; got != 10 {
				t.Errorf("iterations = %d, want 10", got)
			}
			if len(sink.bgs) != 10 || len(sink.labels) != 10 {
				t.Fatalf("sink calls = %d/%d, want 10/10", len(sink.bgs), len(sink.labels))
			}
			for i, bg := range sink.bgs {
				if bg != [3]float64{0, 0, 0} {
					t.Errorf("iteration %d: background = %v, want black", i, bg)
				}
			}
			for _, l := range sink.labels {
				if !strings.HasPrefix(l, "Overall: ") || strings.Contains(l, "Worker") {
					t.Errorf("label = %q", l)
				}
			}
			t.Logf("✅ %s: 10 no-op iterations, last label %q", method, sink.labels[9])
		})
	}
}

func TestRun_RawReportsColourAndWorkerRate(t *testing.T) {
	reg := frame.NewRegistry()
	sink := &recorder{}
	src := &scriptedSource{steps: []func() (*frame.Frame, error){solid(1), solid(2), solid(3), solid(4)}}
	s := newSession(t, src, newDispatcher(t, reg, dispatch.EncodingRaw), sink, WithMaxIterations(3))

	if err := runWithTimeout(t, s); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for i, bg := range sink.bgs {
		if bg != [3]float64{200, 0, 0} {
			t.Errorf("iteration %d: background = %v, want (200,0,0)", i, bg)
		}
	}
	if l := sink.labels[len(sink.labels)-1]; !strings.Contains(l, " | Worker: ") {
		t.Errorf("label %q missing worker rate", l)
	}
	t.Logf("✅ raw encoding: %q", sink.labels[len(sink.labels)-1])
}

func TestRun_CaptureErrorPolicy(t *testing.T) {
	boom := errors.New("device hiccup")

	t.Run("lenient", func(t *testing.T) {
		src := &scriptedSource{steps: []func() (*frame.Frame, error){
			solid(1), fail(boom), fail(streamcapture.ErrFrameDiscarded), solid(2), solid(3), solid(4),
		}}
		s := newSession(t, src, newDispatcher(t, frame.NewRegistry(), dispatch.EncodingRaw), &recorder{}, WithMaxIterations(3))

		if err := runWithTimeout(t, s); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		st := s.Stats()
		if st.Iterations != 3 || st.CaptureErrors != 1 {
			t.Errorf("stats = %+v, want 3 iterations and 1 capture error", st)
		}
		t.Logf("✅ lenient: capture error counted, loop continued")
	})

	t.Run("strict", func(t *testing.T) {
		src := &scriptedSource{steps: []func() (*frame.Frame, error){solid(1), fail(boom), solid(2)}}
		s := newSession(t, src, newDispatcher(t, frame.NewRegistry(), dispatch.EncodingRaw), &recorder{}, WithPolicy(Strict))

		if s.Policy() != Strict {
			t.Fatalf("policy = %v, want strict", s.Policy())
		}
		err := runWithTimeout(t, s)
		if !errors.Is(err, boom) {
			t.Fatalf("Run() error = %v, want %v", err, boom)
		}
		// The in-flight result still completes before the loop ends.
		if st := s.Stats(); st.Iterations != 1 || st.CaptureErrors != 1 {
			t.Errorf("stats = %+v", st)
		}
		t.Logf("✅ strict: %v", err)
	})

	t.Run("discard never fatal", func(t *testing.T) {
		src := &scriptedSource{steps: []func() (*frame.Frame, error){
			fail(streamcapture.ErrFrameDiscarded), solid(1), solid(2),
		}}
		s := newSession(t, src, newDispatcher(t, frame.NewRegistry(), dispatch.EncodingRaw), &recorder{},
			WithPolicy(Strict), WithMaxIterations(1))
		if err := runWithTimeout(t, s); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	})
}

func TestRun_TransferInvalidatedPolicy(t *testing.T) {
	t.Run("lenient", func(t *testing.T) {
		reg := frame.NewRegistry()
		src := &scriptedSource{steps: []func() (*frame.Frame, error){
			handle(reg, 1, false), handle(reg, 2, true), handle(reg, 3, false),
			handle(reg, 4, false), handle(reg, 5, false),
		}}
		sink := &recorder{}
		s := newSession(t, src, newDispatcher(t, reg, dispatch.EncodingHandle), sink, WithMaxIterations(3))

		if err := runWithTimeout(t, s); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		st := s.Stats()
		if st.Iterations != 3 || st.Invalidated != 1 || st.ProcessingErrors != 0 {
			t.Errorf("stats = %+v", st)
		}
		for _, bg := range sink.bgs {
			if bg != [3]float64{0, 100, 0} {
				t.Errorf("background = %v, want (0,100,0)", bg)
			}
		}
		t.Logf("✅ lenient: invalidated transfer counted and skipped")
	})

	t.Run("strict", func(t *testing.T) {
		reg := frame.NewRegistry()
		src := &scriptedSource{steps: []func() (*frame.Frame, error){handle(reg, 1, true), handle(reg, 2, false)}}
		s := newSession(t, src, newDispatcher(t, reg, dispatch.EncodingHandle), &recorder{}, WithPolicy(Strict))

		err := runWithTimeout(t, s)
		if !errors.Is(err, dispatch.ErrTransferInvalidated) {
			t.Fatalf("Run() error = %v, want ErrTransferInvalidated", err)
		}
		if st := s.Stats(); st.Invalidated != 1 || st.Iterations != 0 {
			t.Errorf("stats = %+v", st)
		}
		t.Logf("✅ strict: %v", err)
	})
}

func TestRun_SourceClosedEndsLoop(t *testing.T) {
	src := &scriptedSource{steps: []func() (*frame.Frame, error){solid(1)}}
	s := newSession(t, src, newDispatcher(t, frame.NewRegistry(), dispatch.EncodingRaw), &recorder{})

	err := runWithTimeout(t, s)
	if !errors.Is(err, streamcapture.ErrSourceClosed) {
		t.Fatalf("Run() error = %v, want ErrSourceClosed", err)
	}
	if got := s.Stats().Iterations; got != 1 {
		t.Errorf("iterations = %d, want 1", got)
	}
}

// Buffer drops and recycled-arrival discards surface as separate counters.
func TestStats_DroppedAndDiscardedSeparate(t *testing.T) {
	dev := &handDevice{ring: streamcapture.NewFrameRing(20, 20, 2, nil)}
	src := streamcapture.NewPushSource(dev, framesupplier.New(), nil)
	defer src.Close()

	for i := 0; i < 2; i++ {
		stale := dev.write()
		dev.write()
		dev.write()
		dev.notify.Emit(stale)
	}
	for i := 0; i < 5; i++ {
		dev.notify.Emit(dev.write())
	}

	s := newSession(t, src, newDispatcher(t, frame.NewRegistry(), dispatch.EncodingRaw), &recorder{}, WithMaxIterations(1))
	if err := runWithTimeout(t, s); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	st := s.Stats()
	if st.Discarded != 2 || st.Dropped != 3 || st.Iterations != 1 {
		t.Errorf("stats = %+v, want 2 discarded, 3 dropped, 1 iteration", st)
	}
	if st.CaptureErrors != 0 {
		t.Errorf("discards counted as capture errors: %+v", st)
	}
	t.Logf("✅ dropped=%d discarded=%d", st.Dropped, st.Discarded)
}

// Losing the device mid-run ends the loop even under the lenient policy.
func TestRun_DeviceLostEndsLoop(t *testing.T) {
	dev := streamcapture.NewSyntheticDevice(streamcapture.SyntheticConfig{Width: 40, Height: 30, FrameRate: 200})
	src, err := streamcapture.Open(context.Background(), dev, streamcapture.Config{Method: streamcapture.MethodOnFrame}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	cause := errors.New("end of stream")
	var observed int
	s := newSession(t, src, newDispatcher(t, frame.NewRegistry(), dispatch.EncodingRaw), &recorder{},
		WithObserver(func(metrics.Snapshot, dispatch.Result) {
			observed++
			if observed == 3 {
				dev.Fail(cause)
			}
		}))

	err = runWithTimeout(t, s)
	if !errors.Is(err, streamcapture.ErrSourceClosed) || !errors.Is(err, cause) {
		t.Fatalf("Run() error = %v, want ErrSourceClosed wrapping %v", err, cause)
	}
	if got := s.Stats().Iterations; got < 3 {
		t.Errorf("iterations = %d, want >= 3", got)
	}
	t.Logf("✅ lost device ended the run after %d iterations: %v", s.Stats().Iterations, err)
}

func TestRun_DispatcherClosedIsFatal(t *testing.T) {
	reg := frame.NewRegistry()
	d := newDispatcher(t, reg, dispatch.EncodingRaw)
	d.Close()

	src := &scriptedSource{steps: []func() (*frame.Frame, error){solid(1), solid(2)}}
	s := newSession(t, src, d, &recorder{})

	if err := runWithTimeout(t, s); !errors.Is(err, dispatch.ErrClosed) {
		t.Fatalf("Run() error = %v, want dispatch.ErrClosed", err)
	}
}

func TestRun_CancelReturnsContextError(t *testing.T) {
	dev := streamcapture.NewSyntheticDevice(streamcapture.SyntheticConfig{Width: 40, Height: 30, FrameRate: 200})
	src, err := streamcapture.Open(context.Background(), dev, streamcapture.Config{Method: streamcapture.MethodOnFrame}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var observed int
	s := newSession(t, src, newDispatcher(t, frame.NewRegistry(), dispatch.EncodingRaw), &recorder{},
		WithObserver(func(metrics.Snapshot, dispatch.Result) {
			observed++
			if observed == 5 {
				cancel()
			}
		}))

	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if got := s.Stats().Iterations; got < 5 {
		t.Errorf("iterations = %d, want >= 5", got)
	}
	t.Logf("✅ cancelled after %d iterations", s.Stats().Iterations)
}

func TestNewSession_RequiresCollaborators(t *testing.T) {
	agg, _ := metrics.NewAggregator(metrics.Window2s, metrics.MaxLatencySamples)
	if _, err := NewSession(nil, nil, agg, nil); err == nil {
		t.Error("expected error for nil source")
	}
	if _, err := NewSession(&scriptedSource{}, nil, agg, nil); err == nil {
		t.Error("expected error for nil dispatcher")
	}
}

func TestLabel(t *testing.T) {
	tests := []struct {
		name string
		snap metrics.Snapshot
		noop bool
		want string
	}{
		{"floors both", metrics.Snapshot{FPS: 29.9, ProcessingFPS: 61.7}, false, "Overall: 29 FPS | Worker: 61 FPS"},
		{"noop omits worker", metrics.Snapshot{FPS: 3, ProcessingFPS: 900}, true, "Overall: 3 FPS"},
		{"no samples", metrics.Snapshot{}, false, "Overall: 0 FPS | Worker: 0 FPS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Label(tt.snap, tt.noop); got != tt.want {
				t.Errorf("Label() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{"": Lenient, "lenient": Lenient, "STRICT": Strict} {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParsePolicy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParsePolicy("panic"); err == nil {
		t.Error("expected error")
	}
}
