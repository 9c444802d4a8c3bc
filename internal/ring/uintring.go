package ring

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// UintRing is the pointer-width-unsigned-integer specialization named in
// §4.1: since the payload itself fits in a single atomic word, no guard
// byte is needed. The index CAS alone sequences each slot (a slot is only
// visited by the producer that won the head CAS and the consumer that
// wins the corresponding tail CAS), at the cost of reserving one sentinel
// value to mean "unwritten" so a premature dequeue can be rejected.
type UintRing struct {
	_ cpu.CacheLinePad
	head atomic.Uint64
	_    cpu.CacheLinePad
	tail atomic.Uint64
	_    cpu.CacheLinePad

	buffer   []atomic.Uint64
	capacity uint64
}

// sentinelEmpty marks a slot a consumer has not yet been handed off by a
// finished producer write.
const sentinelEmpty = ^uint64(0)

// NewUintRing constructs a UintRing of the given capacity. Values equal
// to ^uint64(0) are not representable (reserved as the empty sentinel),
// matching the restriction the free list inside Block relies on: slot
// indices are always < capacity, so the all-ones sentinel never collides
// with a real value.
func NewUintRing(capacity uint32) *UintRing {
	r := &UintRing{
		buffer:   make([]atomic.Uint64, capacity),
		capacity: uint64(capacity),
	}
	for i := range r.buffer {
		r.buffer[i].Store(sentinelEmpty)
	}
	return r
}

// Cap returns the queue's usable capacity.
func (r *UintRing) Cap() uint32 {
	return uint32(r.capacity)
}

// TryEnqueue enqueues v (must not equal ^uint64(0)).
func (r *UintRing) TryEnqueue(v uint64) Result {
	head := r.head.Load()
	tail := r.tail.Load()
	if head-tail >= r.capacity {
		return Full
	}

	slot := &r.buffer[head%r.capacity]
	if slot.Load() != sentinelEmpty {
		return Busy
	}

	if !r.head.CompareAndSwap(head, head+1) {
		return Beaten
	}

	slot.Store(v)
	return Success
}

// TryDequeue dequeues a value into *out.
func (r *UintRing) TryDequeue(out *uint64) Result {
	head := r.head.Load()
	tail := r.tail.Load()
	if tail == head {
		return Empty
	}

	slot := &r.buffer[tail%r.capacity]
	v := slot.Load()
	if v == sentinelEmpty {
		return Busy
	}

	if !r.tail.CompareAndSwap(tail, tail+1) {
		return Beaten
	}

	slot.Store(sentinelEmpty)
	*out = v
	return Success
}

// Len returns a point-in-time estimate of queue occupancy.
func (r *UintRing) Len() uint64 {
	return r.head.Load() - r.tail.Load()
}
