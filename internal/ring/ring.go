// Package ring implements the MPMC bounded ring queue (§4.1 of the spec):
// a lock-free, cache-line-aligned, guard-byte-synchronized FIFO used both
// as the free list inside every Block and as a general producer/consumer
// buffer.
package ring

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/arcaflux/slabmem/internal/slaberrors"
)

// Result is the outcome of a single try-enqueue/try-dequeue attempt.
type Result int

const (
	// Success indicates the value was enqueued/dequeued.
	Success Result = iota
	// Full indicates the queue had no free slot (enqueue only).
	Full
	// Empty indicates the queue had no available value (dequeue only).
	Empty
	// Busy indicates the target cell's guard had not yet settled into
	// the state the caller needed (another goroutine is mid-transfer).
	Busy
	// Beaten indicates the index CAS lost a race with another producer
	// or consumer; the caller should retry.
	Beaten
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case Full:
		return "queue_full"
	case Empty:
		return "queue_empty"
	case Busy:
		return "busy"
	case Beaten:
		return "beaten"
	default:
		return "unknown"
	}
}

const (
	guardUnused uint32 = 0
	guardUsed   uint32 = 1
)

type cell[T any] struct {
	guard atomic.Uint32
	value T
	_     cpu.CacheLinePad
}

// Ring is a bounded, lock-free, multi-producer multi-consumer FIFO of
// capacity T values. Its zero value is not usable; construct with New.
type Ring[T any] struct {
	_ cpu.CacheLinePad
	// head is the next slot a producer will claim.
	head atomic.Uint64
	_    cpu.CacheLinePad
	// tail is the next slot a consumer will claim.
	tail atomic.Uint64
	_    cpu.CacheLinePad

	buffer      []cell[T]
	capacity    uint64
	handleLimit uint16
	producers   atomic.Uint32
	consumers   atomic.Uint32
}

// New constructs a Ring with room for capacity values. handleLimit bounds
// how many producer and consumer handles may be issued (independently);
// a handleLimit of 0 means unlimited.
func New[T any](capacity uint32, handleLimit uint16) *Ring[T] {
	r := &Ring[T]{
		buffer:      make([]cell[T], capacity),
		capacity:    uint64(capacity),
		handleLimit: handleLimit,
	}
	return r
}

// Cap returns the queue's usable capacity.
func (r *Ring[T]) Cap() uint32 {
	return uint32(r.capacity)
}

// Producer is a lightweight, copyable handle authorizing enqueue calls.
// Its only purpose is to let callers enforce a ceiling on the number of
// concurrent producers via GetProducer's HandleExhausted error.
type Producer[T any] struct {
	ring *Ring[T]
}

// Consumer is the dequeue-side counterpart of Producer.
type Consumer[T any] struct {
	ring *Ring[T]
}

// GetProducer issues a new producer handle, failing with HandleExhausted
// once handleLimit handles have been issued.
func (r *Ring[T]) GetProducer() (Producer[T], error) {
	if r.handleLimit != 0 && r.producers.Add(1) > uint32(r.handleLimit) {
		r.producers.Add(^uint32(0)) // undo; keep the counter accurate
		return Producer[T]{}, slaberrors.New(slaberrors.HandleExhausted, "ring.GetProducer", "")
	}
	return Producer[T]{ring: r}, nil
}

// GetConsumer issues a new consumer handle, failing with HandleExhausted
// once handleLimit handles have been issued.
func (r *Ring[T]) GetConsumer() (Consumer[T], error) {
	if r.handleLimit != 0 && r.consumers.Add(1) > uint32(r.handleLimit) {
		r.consumers.Add(^uint32(0))
		return Consumer[T]{}, slaberrors.New(slaberrors.HandleExhausted, "ring.GetConsumer", "")
	}
	return Consumer[T]{ring: r}, nil
}

// TryEnqueue attempts to enqueue v. Capacity is tracked via unsigned
// subtraction of head - tail, which tolerates index wraparound across the
// full uint64 range.
func (p Producer[T]) TryEnqueue(v T) Result {
	return p.ring.tryEnqueue(v)
}

func (r *Ring[T]) tryEnqueue(v T) Result {
	head := r.head.Load()
	tail := r.tail.Load()
	if head-tail >= r.capacity {
		return Full
	}

	slot := &r.buffer[head%r.capacity]
	if slot.guard.Load() == guardUsed {
		return Busy
	}

	if !r.head.CompareAndSwap(head, head+1) {
		return Beaten
	}

	slot.value = v
	slot.guard.Store(guardUsed) // release: publishes value to consumers
	return Success
}

// TryDequeue attempts to dequeue a value into *out.
func (c Consumer[T]) TryDequeue(out *T) Result {
	return c.ring.tryDequeue(out)
}

func (r *Ring[T]) tryDequeue(out *T) Result {
	head := r.head.Load()
	tail := r.tail.Load()
	if tail == head {
		return Empty
	}

	slot := &r.buffer[tail%r.capacity]
	if slot.guard.Load() != guardUsed {
		return Busy
	}

	if !r.tail.CompareAndSwap(tail, tail+1) {
		return Beaten
	}

	*out = slot.value
	var zero T
	slot.value = zero
	slot.guard.Store(guardUnused)
	return Success
}

// Len returns a point-in-time estimate of the number of enqueued values.
func (r *Ring[T]) Len() uint64 {
	return r.head.Load() - r.tail.Load()
}
