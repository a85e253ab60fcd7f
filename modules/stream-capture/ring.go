package streamcapture

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/e7canasta/framebench/modules/frame"
)

// FrameRing is a device-side pool of reusable image buffers. Writes cycle
// through the slots; an Arrival stays committable only until its slot is
// written again.
type FrameRing struct {
	mu       sync.Mutex
	width    int
	height   int
	registry *frame.Registry

	seq   uint64
	slots []*image.RGBA
	gens  []uint64
	times []time.Time
}

// NewFrameRing allocates buffers slots of width x height. When reg is set,
// materialised frames are external handles registered there.
func NewFrameRing(width, height, buffers int, reg *frame.Registry) *FrameRing {
	if buffers < 1 {
		buffers = 1
	}
	r := &FrameRing{
		width:    width,
		height:   height,
		registry: reg,
		slots:    make([]*image.RGBA, buffers),
		gens:     make([]uint64, buffers),
		times:    make([]time.Time, buffers),
	}
	for i := range r.slots {
		r.slots[i] = image.NewRGBA(image.Rect(0, 0, width, height))
	}
	return r
}

// Write advances the device sequence and lets paint fill the next slot.
func (r *FrameRing) Write(paint func(seq uint64, dst *image.RGBA)) Arrival {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	slot := int(r.seq % uint64(len(r.slots)))
	paint(r.seq, r.slots[slot])
	r.gens[slot] = r.seq
	r.times[slot] = time.Now()
	return &ringArrival{ring: r, slot: slot, seq: r.seq}
}

// Latest materialises the most recently written slot.
func (r *FrameRing) Latest() (*frame.Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seq == 0 {
		return nil, fmt.Errorf("%w: no frame captured yet", ErrFrameDiscarded)
	}
	return r.materializeLocked(int(r.seq % uint64(len(r.slots)))), nil
}

// Seq returns the latest written sequence number.
func (r *FrameRing) Seq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// Size reports the frame dimensions.
func (r *FrameRing) Size() (width, height int) { return r.width, r.height }

func (r *FrameRing) materializeLocked(slot int) *frame.Frame {
	src := r.slots[slot]
	var f *frame.Frame
	if r.registry != nil {
		img := image.NewRGBA(src.Rect)
		copy(img.Pix, src.Pix)
		f = frame.NewHandle(r.registry, r.gens[slot], r.width, r.height, r.registry.Register(img))
	} else {
		pix := make([]byte, len(src.Pix))
		copy(pix, src.Pix)
		f = frame.NewOwned(r.gens[slot], r.width, r.height, pix)
	}
	f.Timestamp = r.times[slot]
	return f
}

type ringArrival struct {
	ring *FrameRing
	slot int
	seq  uint64
}

func (a *ringArrival) Seq() uint64 { return a.seq }

func (a *ringArrival) Commit() (*frame.Frame, error) {
	r := a.ring
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gens[a.slot] != a.seq {
		return nil, fmt.Errorf("%w: seq %d overwritten by %d", ErrRecycled, a.seq, r.gens[a.slot])
	}
	return r.materializeLocked(a.slot), nil
}

// Notifier is a set of arrival listeners. Emit runs them serially; the
// stop function returned by Add waits for a running Emit to finish.
type Notifier struct {
	mu        sync.Mutex
	listeners map[int]func(Arrival)
	next      int
}

// Add registers fn and returns its stop function.
func (n *Notifier) Add(fn func(Arrival)) (stop func()) {
	n.mu.Lock()
	if n.listeners == nil {
		n.listeners = make(map[int]func(Arrival))
	}
	id := n.next
	n.next++
	n.listeners[id] = fn
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.listeners, id)
			n.mu.Unlock()
		})
	}
}

// Emit delivers a to every listener.
func (n *Notifier) Emit(a Arrival) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, fn := range n.listeners {
		fn(a)
	}
}

// Len returns the number of registered listeners.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners)
}
