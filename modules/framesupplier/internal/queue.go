package internal

import "github.com/e7canasta/framebench/modules/frame"

// ringQueue is a fixed-capacity FIFO of frames with drop-oldest overflow.
//
// Not thread-safe: the supplier mutex protects it.
type ringQueue struct {
	items []*frame.Frame
	head  int
	size  int
}

func newRingQueue(capacity int) *ringQueue {
	return &ringQueue{items: make([]*frame.Frame, capacity)}
}

func (q *ringQueue) Len() int { return q.size }
func (q *ringQueue) Cap() int { return len(q.items) }

// Push appends f. When the queue is full the oldest frame is removed first
// and returned so the caller can release it.
func (q *ringQueue) Push(f *frame.Frame) (evicted *frame.Frame) {
	if q.size == len(q.items) {
		evicted = q.Pop()
	}
	q.items[(q.head+q.size)%len(q.items)] = f
	q.size++
	return evicted
}

// PushFront puts f back at the head. Returns false when the queue is full.
func (q *ringQueue) PushFront(f *frame.Frame) bool {
	if q.size == len(q.items) {
		return false
	}
	q.head = (q.head - 1 + len(q.items)) % len(q.items)
	q.items[q.head] = f
	q.size++
	return true
}

// Pop removes and returns the oldest frame, or nil when empty.
func (q *ringQueue) Pop() *frame.Frame {
	if q.size == 0 {
		return nil
	}
	f := q.items[q.head]
	q.items[q.head] = nil
	q.head = (q.head + 1) % len(q.items)
	q.size--
	return f
}

// Drain removes every frame, oldest first.
func (q *ringQueue) Drain() []*frame.Frame {
	out := make([]*frame.Frame, 0, q.size)
	for f := q.Pop(); f != nil; f = q.Pop() {
		out = append(out, f)
	}
	return out
}
