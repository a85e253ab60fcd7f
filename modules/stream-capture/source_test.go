package streamcapture

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"
	"time"

	"github.com/e7canasta/framebench/modules/frame"
	"github.com/e7canasta/framebench/modules/framesupplier"
)

// ringDevice is driven by hand from the test goroutine: write paints the
// next ring slot and Emit delivers arrivals in whatever order the test wants.
type ringDevice struct {
	ring    *FrameRing
	notify  Notifier
	stopped Stopped
}

func (d *ringDevice) Open(context.Context) error                 { return nil }
func (d *ringDevice) Grab(context.Context) (*frame.Frame, error) { return d.ring.Latest() }
func (d *ringDevice) Notify(fn func(Arrival)) func()             { return d.notify.Add(fn) }
func (d *ringDevice) Done() <-chan struct{}                      { return d.stopped.Done() }
func (d *ringDevice) Err() error                                 { return d.stopped.Err() }
func (d *ringDevice) Close() error                               { d.stopped.Stop(nil); return nil }

func (d *ringDevice) write() Arrival {
	return d.ring.Write(func(uint64, *image.RGBA) {})
}

func openSynthetic(t *testing.T, method Method, cfg SyntheticConfig) (Source, *SyntheticDevice) {
	t.Helper()
	if cfg.Width == 0 {
		cfg.Width, cfg.Height = 64, 48
	}
	dev := NewSyntheticDevice(cfg)
	src, err := Open(context.Background(), dev, Config{Method: method, Resolution: Res480p}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { src.Close() })
	return src, dev
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached within 2s")
		}
		time.Sleep(time.Millisecond)
	}
}

// Pull-direct may hand back the same device frame on consecutive calls.
func TestPullDirectRepeatsDeviceFrame(t *testing.T) {
	src, _ := openSynthetic(t, MethodGrabFrame, SyntheticConfig{FrameRate: 0.5})
	ctx := context.Background()

	a, err := src.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	b, err := src.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Release()
	defer b.Release()

	if a.Seq != b.Seq {
		t.Fatalf("expected same device frame, got seq %d and %d", a.Seq, b.Seq)
	}
	if a == b || &a.Pix[0] == &b.Pix[0] {
		t.Fatal("each Next must yield an independently owned frame")
	}
	st := src.Stats()
	if st.Duplicates != 1 || st.Delivered != 2 || st.Discipline != PullDirect {
		t.Errorf("stats = %+v", st)
	}
	t.Logf("✅ pull-direct duplicate counted (seq=%d)", a.Seq)
}

// Push-buffered never returns the same device frame twice.
func TestPushBufferedStrictlyIncreasing(t *testing.T) {
	src, _ := openSynthetic(t, MethodOnFrame, SyntheticConfig{FrameRate: 200})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var last uint64
	for i := 0; i < 10; i++ {
		f, err := src.Next(ctx)
		if err != nil {
			t.Fatalf("Next #%d: %v", i, err)
		}
		if f.Seq <= last {
			t.Fatalf("seq %d after %d", f.Seq, last)
		}
		last = f.Seq
		f.Release()
	}
	if st := src.Stats(); st.Discipline != PushBuffered || st.Buffer.Capacity != 2 {
		t.Errorf("stats = %+v", st)
	}
	t.Logf("✅ 10 push-buffered frames in device order")
}

func TestConcurrentNextRejected(t *testing.T) {
	src, _ := openSynthetic(t, MethodOnFrame, SyntheticConfig{FrameRate: 0.1})

	done := make(chan error, 1)
	go func() {
		_, err := src.Next(context.Background())
		done <- err
	}()
	eventually(t, func() bool { return src.Stats().Buffer.WaiterPending })

	if _, err := src.Next(context.Background()); !errors.Is(err, ErrConcurrentPull) {
		t.Fatalf("second Next: got %v, want ErrConcurrentPull", err)
	}

	src.Close()
	select {
	case err := <-done:
		if !errors.Is(err, ErrSourceClosed) {
			t.Errorf("pending Next after Close: got %v, want ErrSourceClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pending Next not woken by Close")
	}
	t.Logf("✅ concurrent Next rejected, pending Next woken by Close")
}

func TestTakePhotoWaitsForNewFrame(t *testing.T) {
	src, dev := openSynthetic(t, MethodTakePhoto, SyntheticConfig{FrameRate: 100})
	opened := dev.Seq()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f, err := src.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Release()
	if f.Seq <= opened {
		t.Errorf("photo seq %d not newer than open seq %d", f.Seq, opened)
	}
}

func TestTakePhotoCancelled(t *testing.T) {
	src, _ := openSynthetic(t, MethodTakePhoto, SyntheticConfig{FrameRate: 0.1})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := src.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want DeadlineExceeded", err)
	}
}

func TestOpenDenied(t *testing.T) {
	dev := NewSyntheticDevice(SyntheticConfig{Deny: true})
	_, err := Open(context.Background(), dev, Config{Method: MethodGrabFrame}, nil)
	if !errors.Is(err, ErrAcquisitionDenied) {
		t.Fatalf("got %v, want ErrAcquisitionDenied", err)
	}
}

func TestOpenUnknownMethod(t *testing.T) {
	dev := NewSyntheticDevice(SyntheticConfig{})
	if _, err := Open(context.Background(), dev, Config{Method: "telepathy"}, nil); err == nil {
		t.Fatal("expected error for unknown method")
	}
}

// An arrival whose ring slot was repainted fails to commit.
func TestArrivalRecycled(t *testing.T) {
	dev := NewSyntheticDevice(SyntheticConfig{Width: 8, Height: 8, FrameRate: 200, Buffers: 2})
	if err := dev.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	first := make(chan Arrival, 1)
	stop := dev.Notify(func(a Arrival) {
		select {
		case first <- a:
		default:
		}
	})
	a := <-first
	stop()

	eventually(t, func() bool { return dev.Seq() >= a.Seq()+2 })
	if _, err := a.Commit(); !errors.Is(err, ErrRecycled) {
		t.Fatalf("got %v, want ErrRecycled", err)
	}
	t.Logf("✅ seq %d recycled after device reached %d", a.Seq(), dev.Seq())
}

func TestHandleFrames(t *testing.T) {
	reg := frame.NewRegistry()
	src, _ := openSynthetic(t, MethodVideoElement, SyntheticConfig{Registry: reg})

	f, err := src.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if f.Kind != frame.ExternalHandle || f.Registry() != reg {
		t.Fatalf("kind=%v registry=%p", f.Kind, f.Registry())
	}
	if reg.Len() != 1 {
		t.Fatalf("registry holds %d, want 1", reg.Len())
	}
	f.Release()
	if reg.Len() != 0 {
		t.Errorf("handle not returned to host, registry holds %d", reg.Len())
	}
}

func TestWarmupSynthetic(t *testing.T) {
	src, _ := openSynthetic(t, MethodOnFrame, SyntheticConfig{FrameRate: 100})
	stats, err := Warmup(context.Background(), src, 300*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if stats.FramesReceived < 2 || stats.FPSMean <= 0 {
		t.Errorf("stats = %+v", stats)
	}
	t.Logf("✅ warmup: %d frames, %.1f fps, stable=%v", stats.FramesReceived, stats.FPSMean, stats.IsStable)
}

func TestParseResolution(t *testing.T) {
	for in, want := range map[string]Resolution{"480p": Res480p, "720P": Res720p, "1080p": Res1080p} {
		got, err := ParseResolution(in)
		if err != nil || got != want {
			t.Errorf("ParseResolution(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseResolution("4k"); err == nil {
		t.Error("expected error for 4k")
	}
	if w, h := Res1080p.Dimensions(); w != 1920 || h != 1080 {
		t.Errorf("1080p = %dx%d", w, h)
	}
}

// Recycled arrivals are discards; overflow evictions are drops. The two
// counters never feed each other.
func TestPushDiscardsCountedApartFromDrops(t *testing.T) {
	dev := &ringDevice{ring: NewFrameRing(8, 8, 2, nil)}
	src := NewPushSource(dev, framesupplier.New(), nil)
	defer src.Close()

	stale := dev.write()
	dev.write()
	dev.write() // reuses the slot of stale
	dev.notify.Emit(stale)

	for i := 0; i < 3; i++ {
		dev.notify.Emit(dev.write())
	}

	st := src.Stats()
	if st.Discarded != 1 {
		t.Errorf("Discarded = %d, want 1", st.Discarded)
	}
	if st.Buffer.Dropped != 1 || st.Buffer.Arrivals != 3 {
		t.Errorf("buffer = %+v, want 3 arrivals and 1 dropped", st.Buffer)
	}

	f, err := src.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer f.Release()
	if f.Seq != 5 {
		t.Errorf("oldest buffered seq = %d, want 5 (4 evicted)", f.Seq)
	}
	t.Logf("✅ discarded=%d dropped=%d", st.Discarded, st.Buffer.Dropped)
}

// A device lost mid-run wakes the pending Next with its cause.
func TestDeviceLostEndsPushSource(t *testing.T) {
	src, dev := openSynthetic(t, MethodOnFrame, SyntheticConfig{FrameRate: 0.1})

	done := make(chan error, 1)
	go func() {
		_, err := src.Next(context.Background())
		done <- err
	}()
	eventually(t, func() bool { return src.Stats().Buffer.WaiterPending })

	dev.Fail(errors.New("usb unplugged"))

	select {
	case err := <-done:
		if !errors.Is(err, ErrSourceClosed) || !strings.Contains(err.Error(), "usb unplugged") {
			t.Fatalf("pending Next: got %v, want ErrSourceClosed with cause", err)
		}
		t.Logf("✅ %v", err)
	case <-time.After(time.Second):
		t.Fatal("pending Next not woken by device loss")
	}

	if _, err := src.Next(context.Background()); !errors.Is(err, ErrSourceClosed) {
		t.Errorf("Next after loss: got %v, want ErrSourceClosed", err)
	}
}

func TestDeviceLostEndsPullSource(t *testing.T) {
	for _, method := range []Method{MethodGrabFrame, MethodTakePhoto} {
		t.Run(string(method), func(t *testing.T) {
			src, dev := openSynthetic(t, method, SyntheticConfig{FrameRate: 0.1})
			cause := errors.New("pipeline error [device]: gone")

			done := make(chan error, 1)
			go func() {
				if method == MethodGrabFrame {
					if f, err := src.Next(context.Background()); err == nil {
						f.Release()
					}
					<-dev.Done()
				}
				_, err := src.Next(context.Background())
				done <- err
			}()
			dev.Fail(cause)

			select {
			case err := <-done:
				if !errors.Is(err, ErrSourceClosed) || !errors.Is(err, cause) {
					t.Fatalf("got %v, want ErrSourceClosed wrapping the cause", err)
				}
			case <-time.After(time.Second):
				t.Fatal("Next not ended by device loss")
			}
		})
	}
}

func TestStoppedLatchesFirstCause(t *testing.T) {
	var s Stopped
	if s.Err() != nil {
		t.Fatal("Err before Stop")
	}
	cause := errors.New("end of stream")
	if !s.Stop(cause) {
		t.Fatal("first Stop reported false")
	}
	if s.Stop(nil) {
		t.Error("second Stop reported true")
	}
	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed")
	}
	if err := s.Err(); !errors.Is(err, ErrSourceClosed) || !errors.Is(err, cause) {
		t.Errorf("Err = %v", err)
	}

	var closed Stopped
	closed.Stop(nil)
	if closed.Err() != ErrSourceClosed {
		t.Errorf("plain close: Err = %v, want ErrSourceClosed", closed.Err())
	}
}
