package internal

import "sync/atomic"

// Stats returns operational statistics snapshot (implements Supplier.Stats).
//
// Counters are atomic; queue length and waiter state are read under the lock
// so the pair is consistent.
func (s *supplier) Stats() SupplierStats {
	s.mu.Lock()
	queued := s.queue.Len()
	capacity := s.queue.Cap()
	waiting := s.waiter != nil
	s.mu.Unlock()

	return SupplierStats{
		Capacity:       capacity,
		Arrivals:       atomic.LoadUint64(&s.arrivals),
		Delivered:      atomic.LoadUint64(&s.delivered),
		DirectHandoffs: atomic.LoadUint64(&s.directHandoffs),
		Dropped:        atomic.LoadUint64(&s.dropped),
		Queued:         queued,
		WaiterPending:  waiting,
	}
}
