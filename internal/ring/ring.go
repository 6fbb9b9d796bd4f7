// Package ring implements the lock-free single-producer/single-consumer
// queues that connect the stages of the trade pipeline.
package ring

import "sync/atomic"

// Broadcast is the in-place-read SPSC ring used for the hot and event
// rings. The consumer reads slots directly with Read and publishes its
// progress with UpdateTail; it never copies out through a channel-style
// Pop. Capacity must be a power of two.
type Broadcast[T any] struct {
	_    [64]byte
	head atomic.Uint64
	_    [56]byte
	tail atomic.Uint64
	_    [56]byte

	mask uint64
	buf  []T
}

// NewBroadcast allocates a Broadcast ring of the given capacity, which
// must be a power of two. The backing storage is allocated once; nothing
// on the hot path allocates afterward.
func NewBroadcast[T any](capacity uint64) *Broadcast[T] {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		panic("ring: capacity must be a power of two")
	}
	return &Broadcast[T]{
		mask: capacity - 1,
		buf:  make([]T, capacity),
	}
}

// Capacity returns the ring's fixed slot count.
func (r *Broadcast[T]) Capacity() uint64 { return r.mask + 1 }

// CanWrite reports whether count more items fit without crossing the 90%
// high-water mark reserved to avoid producer/consumer cache-line
// ping-pong on tail.
func (r *Broadcast[T]) CanWrite(count uint64) bool {
	highWater := r.Capacity() * 9 / 10
	head := r.head.Load()
	tail := r.tail.Load()
	return head-tail+count <= highWater
}

// PushBatch writes src starting at the current head, wrapping with a
// split copy if the run crosses the end of the backing array, then
// publishes head with a release store. The caller must have verified
// CanWrite(len(src)) first; PushBatch does not check capacity itself.
func (r *Broadcast[T]) PushBatch(src []T) {
	if len(src) == 0 {
		return
	}
	head := r.head.Load()
	start := head & r.mask
	n := uint64(len(src))
	cap := r.Capacity()

	if start+n <= cap {
		copy(r.buf[start:start+n], src)
	} else {
		first := cap - start
		copy(r.buf[start:], src[:first])
		copy(r.buf[:n-first], src[first:])
	}
	r.head.Store(head + n)
}

// Read returns the item at idx, which must lie in [Tail(), Head()).
func (r *Broadcast[T]) Read(idx uint64) *T {
	return &r.buf[idx&r.mask]
}

// UpdateTail publishes the consumer's progress. newTail must be monotone
// and no greater than the current head.
func (r *Broadcast[T]) UpdateTail(newTail uint64) {
	r.tail.Store(newTail)
}

// Head is an acquire load of the producer's published position, used by
// the consumer to discover new work.
func (r *Broadcast[T]) Head() uint64 { return r.head.Load() }

// Tail is an acquire load of the consumer's published position, used by
// the producer to compute occupancy.
func (r *Broadcast[T]) Tail() uint64 { return r.tail.Load() }

// Session is the bounded per-client ring between the EventDispatcher and
// a SessionWriter. Unlike Broadcast it gates on absolute capacity, not a
// high-water mark, and a failed TryPush is a counted drop rather than a
// backpressure signal the producer must honor.
type Session[T any] struct {
	_    [64]byte
	head atomic.Uint64
	_    [56]byte
	tail atomic.Uint64
	_    [56]byte

	mask uint64
	buf  []T
}

// NewSession allocates a Session ring of the given capacity (power of
// two). Whale-event sessions use at least 256Ki entries.
func NewSession[T any](capacity uint64) *Session[T] {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		panic("ring: capacity must be a power of two")
	}
	return &Session[T]{
		mask: capacity - 1,
		buf:  make([]T, capacity),
	}
}

// Capacity returns the ring's fixed slot count.
func (r *Session[T]) Capacity() uint64 { return r.mask + 1 }

// TryPush writes item if the ring is not full and reports whether it
// succeeded. A false return is a drop, counted by the caller.
func (r *Session[T]) TryPush(item T) bool {
	head := r.head.Load()
	tail := r.tail.Load()
	if head-tail >= r.Capacity() {
		return false
	}
	r.buf[head&r.mask] = item
	r.head.Store(head + 1)
	return true
}

// PopBatch copies up to len(dst) items starting at tail into dst,
// advances tail, and returns the count copied.
func (r *Session[T]) PopBatch(dst []T) int {
	head := r.head.Load()
	tail := r.tail.Load()
	if tail == head {
		return 0
	}
	available := head - tail
	toRead := uint64(len(dst))
	if available < toRead {
		toRead = available
	}
	if toRead == 0 {
		return 0
	}

	start := tail & r.mask
	cap := r.Capacity()
	first := cap - start
	if toRead <= first {
		copy(dst[:toRead], r.buf[start:start+toRead])
	} else {
		copy(dst[:first], r.buf[start:])
		copy(dst[first:toRead], r.buf[:toRead-first])
	}

	r.tail.Store(tail + toRead)
	return int(toRead)
}

// Head is an acquire load of the producer's published position.
func (r *Session[T]) Head() uint64 { return r.head.Load() }

// Tail is an acquire load of the consumer's published position.
func (r *Session[T]) Tail() uint64 { return r.tail.Load() }
