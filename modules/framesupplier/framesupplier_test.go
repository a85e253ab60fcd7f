package framesupplier_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/e7canasta/framebench/modules/frame"
	"github.com/e7canasta/framebench/modules/framesupplier"
)

func newFrame(seq uint64) *frame.Frame {
	return frame.NewOwned(seq, 10, 10, make([]byte, 10*10*4))
}

// --- Test 1: Drop-oldest overflow ---

// TestOverflowDropsOldest validates the drop count and retained frames for N
// arrivals with no consumer activity.
//
// Contract:
//   - exactly max(0, N-2) drops
//   - the 2 retained frames are the 2 most recent, in arrival order
//   - evicted frames are released
func TestOverflowDropsOldest(t *testing.T) {
	for _, n := range []int{0, 1, 2, 3, 5, 10} {
		n := n
		t.Run(fmt.Sprintf("N=%d", n), func(t *testing.T) {
			supplier := framesupplier.New()
			defer supplier.Close()

			frames := make([]*frame.Frame, n)
			for i := range frames {
				frames[i] = newFrame(uint64(i + 1))
				supplier.Publish(frames[i])
			}

			stats := supplier.Stats()
			wantDrops := n - 2
			if wantDrops < 0 {
				wantDrops = 0
			}
			if stats.Dropped != uint64(wantDrops) {
				t.Fatalf("N=%d: Dropped=%d, want %d", n, stats.Dropped, wantDrops)
			}

			for i := 0; i < wantDrops; i++ {
				if frames[i].Live() {
					t.Errorf("N=%d: evicted frame seq=%d not released", n, frames[i].Seq)
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			for i := wantDrops; i < n; i++ {
				f, err := supplier.Next(ctx)
				if err != nil {
					t.Fatalf("N=%d: Next() failed: %v", n, err)
				}
				if f.Seq != uint64(i+1) {
					t.Errorf("N=%d: got seq=%d, want %d", n, f.Seq, i+1)
				}
			}

			t.Logf("✅ N=%d arrivals → %d drops", n, stats.Dropped)
		})
	}
}

// --- Test 2: Single pending waiter ---

// TestSecondWaiterRejected validates that a second concurrent Next is rejected.
func TestSecondWaiterRejected(t *testing.T) {
	supplier := framesupplier.New()
	defer supplier.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := make(chan *frame.Frame, 1)
	go func() {
		f, _ := supplier.Next(ctx)
		first <- f
	}()

	waitFor(t, func() bool { return supplier.Stats().WaiterPending })

	if _, err := supplier.Next(ctx); !errors.Is(err, framesupplier.ErrWaiterPending) {
		t.Fatalf("second Next() = %v, want ErrWaiterPending", err)
	}

	supplier.Publish(newFrame(1))

	select {
	case f := <-first:
		if f == nil || f.Seq != 1 {
			t.Fatalf("first waiter got %v, want seq=1", f)
		}
	case <-time.After(time.Second):
		t.Fatal("first waiter never woke up")
	}
}

// --- Test 3: Direct handoff ---

// TestDirectHandoffBypassesQueue validates the fast path when a consumer waits.
func TestDirectHandoffBypassesQueue(t *testing.T) {
	supplier := framesupplier.New()
	defer supplier.Close()

	got := make(chan *frame.Frame, 1)
	go func() {
		f, _ := supplier.Next(context.Background())
		got <- f
	}()

	waitFor(t, func() bool { return supplier.Stats().WaiterPending })
	supplier.Publish(newFrame(42))

	f := <-got
	if f.Seq != 42 {
		t.Fatalf("got seq=%d, want 42", f.Seq)
	}

	stats := supplier.Stats()
	if stats.DirectHandoffs != 1 || stats.Queued != 0 || stats.WaiterPending {
		t.Errorf("unexpected stats after handoff: %+v", stats)
	}
}

// --- Test 4: Cancellation ---

func TestNextCancelled(t *testing.T) {
	supplier := framesupplier.New()
	defer supplier.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := supplier.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Next() = %v, want DeadlineExceeded", err)
	}
	if supplier.Stats().WaiterPending {
		t.Errorf("waiter still registered after cancellation")
	}

	// A new waiter can register once the cancelled one is gone.
	supplier.Publish(newFrame(1))
	f, err := supplier.Next(context.Background())
	if err != nil || f.Seq != 1 {
		t.Fatalf("Next() after cancellation = %v, %v", f, err)
	}
}

// --- Test 5: Close ---

func TestCloseWakesWaiterAndReleasesFrames(t *testing.T) {
	supplier := framesupplier.New()

	errCh := make(chan error, 1)
	go func() {
		_, err := supplier.Next(context.Background())
		errCh <- err
	}()
	waitFor(t, func() bool { return supplier.Stats().WaiterPending })

	supplier.Close()

	if err := <-errCh; !errors.Is(err, framesupplier.ErrClosed) {
		t.Fatalf("waiter got %v, want ErrClosed", err)
	}

	late := newFrame(9)
	supplier.Publish(late)
	if late.Live() {
		t.Errorf("frame published after Close was not released")
	}
	if _, err := supplier.Next(context.Background()); !errors.Is(err, framesupplier.ErrClosed) {
		t.Errorf("Next() after Close = %v, want ErrClosed", err)
	}

	supplier.Close() // idempotent
}

func TestCloseReleasesQueuedFrames(t *testing.T) {
	supplier := framesupplier.New()
	a, b := newFrame(1), newFrame(2)
	supplier.Publish(a)
	supplier.Publish(b)

	supplier.Close()

	if a.Live() || b.Live() {
		t.Errorf("queued frames not released on Close")
	}
}

// --- Test 6: Concurrent producer / consumer ---

// TestConcurrentDeliveryIsOrdered runs a fast producer against a slow consumer
// and checks FIFO order plus frame accounting (delivered + dropped = arrivals).
func TestConcurrentDeliveryIsOrdered(t *testing.T) {
	supplier := framesupplier.New()
	const total = 500

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= total; i++ {
			supplier.Publish(newFrame(uint64(i)))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var last uint64
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		select {
		case <-done:
			// Drain what is left, then stop.
			for supplier.Stats().Queued > 0 {
				f, err := supplier.Next(ctx)
				if err != nil {
					t.Fatalf("Next() failed: %v", err)
				}
				if f.Seq <= last {
					t.Fatalf("out of order: %d after %d", f.Seq, last)
				}
				last = f.Seq
				_ = f.Release()
			}
			stats := supplier.Stats()
			if stats.Delivered+stats.Dropped != stats.Arrivals {
				t.Errorf("accounting mismatch: %+v", stats)
			}
			t.Logf("✅ %d arrivals → %d delivered, %d dropped", stats.Arrivals, stats.Delivered, stats.Dropped)
			supplier.Close()
			return
		default:
		}

		if supplier.Stats().Queued == 0 {
			time.Sleep(time.Microsecond)
			continue
		}
		f, err := supplier.Next(ctx)
		if err != nil {
			t.Fatalf("Next() failed: %v", err)
		}
		if f.Seq <= last {
			t.Fatalf("out of order: %d after %d", f.Seq, last)
		}
		last = f.Seq
		_ = f.Release()
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached within 1s")
		}
		time.Sleep(time.Millisecond)
	}
}
