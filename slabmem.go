// Package slabmem is the public facade over the sized-slab concurrent
// memory allocator: a lock-free MPMC ring queue, a tagged pointer, a
// fixed-capacity block, an append-only block list, a calibrated sized
// slab, a bitwise trie, and an untyped malloc/free allocator built from
// the three below it.
package slabmem

import (
	"unsafe"

	"go.uber.org/zap"

	"github.com/arcaflux/slabmem/internal/block"
	"github.com/arcaflux/slabmem/internal/blocklist"
	"github.com/arcaflux/slabmem/internal/ring"
	"github.com/arcaflux/slabmem/internal/slab"
	"github.com/arcaflux/slabmem/internal/slaberrors"
	"github.com/arcaflux/slabmem/internal/tagged"
	"github.com/arcaflux/slabmem/internal/trie"
	"github.com/arcaflux/slabmem/internal/untyped"
)

// Error is the structured error type every layer of this module raises.
// Use errors.As/errors.Is against it, never string-match on Error().
type Error = slaberrors.Error

// ErrorKind discriminates Error's taxonomy.
type ErrorKind = slaberrors.Kind

// Re-exported error kinds, for callers that want to branch on the
// failure reason without importing internal/slaberrors directly.
const (
	ErrOutOfMemory              = slaberrors.OutOfMemory
	ErrInvalidValueSize         = slaberrors.InvalidValueSize
	ErrInvalidAlignmentRequest  = slaberrors.InvalidAlignmentRequest
	ErrOutOfMemoryForAlignment  = slaberrors.OutOfMemoryForAlignment
	ErrMisalignedFreePointer    = slaberrors.MisalignedFreePointer
	ErrPointerNotInBlock        = slaberrors.PointerNotInBlock
	ErrUnalignedTaggedPointer   = slaberrors.UnalignedTaggedPointer
	ErrInvalidDereference       = slaberrors.InvalidDereference
	ErrHandleExhausted          = slaberrors.HandleExhausted
	ErrCapacityArgumentInvalid  = slaberrors.CapacityArgumentInvalid
	ErrSlabFull                 = slaberrors.SlabFull
)

// Block is a fixed-capacity arena of fixed-size, fixed-alignment slots
// with a lock-free free list (§4.3).
type Block = block.Block

// NewBlock constructs a Block of capacity slots, each valueSize bytes
// rounded up to a multiple of alignment (0 means alignof(pointer)).
func NewBlock(valueSize uint64, capacity uint32, alignment uint64, logger *zap.Logger) (*Block, error) {
	return block.New(valueSize, capacity, alignment, logger)
}

// BlockList is an append-only, CAS-linked chain of same-value-size
// Blocks (§4.4).
type BlockList = blocklist.List

// NewBlockList constructs a BlockList whose first node has the given
// capacity.
func NewBlockList(valueSize uint64, capacity uint32, alignment uint64, logger *zap.Logger) (*BlockList, error) {
	return blocklist.New(valueSize, capacity, alignment, logger)
}

// BucketConfig describes one (size, capacity, growth) row of a Slab's
// layout, both as supplied and as emitted by calibration (§4.8).
type BucketConfig = slab.BucketConfig

// Slab is a calibrated vector of BlockLists bucketed by consecutive
// power-of-two value size (§4.5).
type Slab = slab.Slab

// NewSlab calibrates configs and constructs a Slab.
func NewSlab(contingencyCapacity uint32, configs []BucketConfig, logger *zap.Logger) (*Slab, error) {
	return slab.New(contingencyCapacity, configs, logger)
}

// Owner holds a single slab-backed value of type T and its owning Slab,
// releasing the slot back to the Slab on Release (§4.5 make_unique).
type Owner[T any] = slab.Owner[T]

// MakeResult reports the outcome of MakeUnique.
type MakeResult = slab.MakeResult

const (
	MakeSuccess  = slab.MakeSuccess
	MakeSlabFull = slab.MakeSlabFull
)

// MakeUnique allocates a single T from s and copies value into it.
func MakeUnique[T any](s *Slab, value T) (MakeResult, *Owner[T]) {
	return slab.MakeUnique(s, value)
}

// Trie is a fixed-depth-64 bitwise radix-2 trie keyed by uint64, backed
// by a caller-supplied node Slab (§4.6).
type Trie[V any] = trie.Trie[V]

// NewTrie constructs a Trie whose branch and leaf nodes are allocated
// from nodeSlab.
func NewTrie[V any](nodeSlab *Slab) *Trie[V] {
	return trie.New[V](nodeSlab)
}

// Allocator is the untyped malloc/free facade combining an allocation
// Slab, a trie-node Slab, and an address trie mapping each live block's
// base address to its value size (§4.7).
type Allocator = untyped.Allocator

// NewAllocator constructs an Allocator over the given bucket layout.
func NewAllocator(contingencyCapacity uint32, configs []BucketConfig, logger *zap.Logger) (*Allocator, error) {
	return untyped.New(contingencyCapacity, configs, logger)
}

// Malloc allocates size bytes from a, or returns nil if size falls
// outside a's configured range.
func Malloc(a *Allocator, size uint64) unsafe.Pointer { return a.Malloc(size) }

// Free returns p to its owning block in a.
func Free(a *Allocator, p unsafe.Pointer) error { return a.Free(p) }

// Ring is a lock-free, bounded-capacity MPMC ring queue with a capped
// number of live Producer/Consumer handles (§4.1).
type Ring[T any] = ring.Ring[T]

// NewRing constructs a Ring of the given capacity, allowing up to
// handleLimit live producers and handleLimit live consumers.
func NewRing[T any](capacity uint32, handleLimit uint16) *Ring[T] {
	return ring.New[T](capacity, handleLimit)
}

// Producer and Consumer are handles obtained from a Ring via
// GetProducer/GetConsumer.
type Producer[T any] = ring.Producer[T]
type Consumer[T any] = ring.Consumer[T]

// RingResult is the outcome of a single try-enqueue/try-dequeue
// attempt against a Ring or UintRing.
type RingResult = ring.Result

const (
	RingSuccess = ring.Success
	RingFull    = ring.Full
	RingEmpty   = ring.Empty
	RingBusy    = ring.Busy
	RingBeaten  = ring.Beaten
)

// UintRing is the guard-byte-free specialization of Ring for uint64
// payloads, used where the zero value must be a legal payload (§4.1).
type UintRing = ring.UintRing

// NewUintRing constructs a UintRing of the given capacity.
func NewUintRing(capacity uint32) *UintRing { return ring.NewUintRing(capacity) }

// Tag discriminates the variant stored behind a tagged Pointer (§4.2).
type Tag = tagged.Tag

// TaggedPointer is a pointer packed with a small tag in its low bits,
// CAS'd atomically via TaggedAtomic (§4.2).
type TaggedPointer[T any] = tagged.Pointer[T]

// TaggedAtomic is the CAS-capable atomic cell for a TaggedPointer.
type TaggedAtomic[T any] = tagged.Atomic[T]
