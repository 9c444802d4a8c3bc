// Package block implements the Block component (§4.3): a fixed-capacity
// arena of uniform-size, uniform-alignment value slots backed by an MPMC
// free list of slot indices.
package block

import (
	"unsafe"

	"go.uber.org/zap"

	"github.com/arcaflux/slabmem/internal/backoff"
	"github.com/arcaflux/slabmem/internal/ring"
	"github.com/arcaflux/slabmem/internal/sizeutil"
	"github.com/arcaflux/slabmem/internal/slaberrors"
)

// Block is a fixed-size arena: value_size-byte slots, capacity of them,
// handed out and reclaimed through a lock-free free list of slot
// indices. A Block never resizes once constructed; capacity growth for a
// size class happens one level up, in a block list (§4.4).
type Block struct {
	valueSize  uint64
	alignment  uint64
	capacity   uint32
	usableSize uint64

	storage []byte
	base    uintptr

	freeList *ring.UintRing
	log      *zap.Logger
}

// alignofPointer is the alignment used when the caller doesn't specify
// one, matching the spec's default of alignof(pointer).
const alignofPointer = uint64(unsafe.Sizeof(uintptr(0)))

// New constructs a Block of capacity slots aligned to alignment (0 means
// alignof(pointer)). Each slot is valueSize bytes rounded up to a
// multiple of alignment, so every slot address is aligned; ValueSize
// reports that rounded size. It allocates a buffer oversized by one slot
// to absorb alignment slack, aligns the usable
// region upward, and recomputes the effective capacity; if that leaves
// fewer than the requested capacity, construction fails with
// OutOfMemoryForAlignment.
func New(valueSize uint64, capacity uint32, alignment uint64, logger *zap.Logger) (*Block, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if valueSize == 0 {
		return nil, slaberrors.New(slaberrors.InvalidValueSize, "block.New", "value_size must be > 0")
	}
	if alignment == 0 {
		alignment = alignofPointer
	}
	valueSize = sizeutil.CalcTotalAlignedSize(valueSize, alignment, 1)

	// The buffer is oversized by one slot worth of alignment slack. The
	// slack is max(value_size, alignment); since value_size has just been
	// rounded up to a multiple of alignment, that is one value_size-byte
	// slot, which leaves room for up to alignment-1 bytes of padding ahead
	// of the requested capacity (S1: value_size=8, alignment=64 gives
	// 64-byte slots and 64 bytes of slack).
	slack := valueSize
	if alignment > slack {
		slack = alignment
	}
	bufSize := valueSize*uint64(capacity) + slack
	storage := make([]byte, bufSize)
	if capacity == 0 {
		return &Block{
			valueSize: valueSize,
			alignment: alignment,
			capacity:  0,
			storage:   storage,
			freeList:  ring.NewUintRing(1),
			log:       logger,
		}, nil
	}

	var bufAddr uintptr
	if len(storage) > 0 {
		bufAddr = uintptr(unsafe.Pointer(&storage[0]))
	}
	space := bufSize
	base, ok := sizeutil.Align(alignment, valueSize, bufAddr, &space)
	if !ok {
		return nil, slaberrors.New(slaberrors.InvalidAlignmentRequest, "block.New",
			"alignment exceeds total block storage").WithAlignment(alignment).WithSize(bufSize)
	}

	effectiveCapacity := space / valueSize
	if effectiveCapacity < uint64(capacity) {
		return nil, slaberrors.New(slaberrors.OutOfMemoryForAlignment, "block.New",
			"aligning storage left fewer usable slots than requested").
			WithAlignment(alignment).WithSize(uint64(capacity))
	}

	usable := uint64(capacity) * valueSize
	b := &Block{
		valueSize:  valueSize,
		alignment:  alignment,
		capacity:   capacity,
		usableSize: usable,
		storage:    storage,
		base:       base,
		freeList:   ring.NewUintRing(capacity),
		log:        logger,
	}

	for i := uint32(0); i < capacity; i++ {
		// Construction-time fill can't contend, but go through the same
		// retry contract as a normal free for uniformity.
		backoff.RetryWithRandomBackoff(func() backoff.State {
			if b.freeList.TryEnqueue(uint64(i)) == ring.Success {
				return backoff.Done
			}
			return backoff.Retry
		}, 0)
	}

	return b, nil
}

// ValueSize returns the size in bytes of each slot.
func (b *Block) ValueSize() uint64 { return b.valueSize }

// Capacity returns the number of slots.
func (b *Block) Capacity() uint32 { return b.capacity }

// UsableSize returns the number of bytes from Base to the end of the
// last slot.
func (b *Block) UsableSize() uint64 { return b.usableSize }

// Base returns the aligned start-of-storage address.
func (b *Block) Base() uintptr { return b.base }

// InRange reports whether p falls within [Base, Base+UsableSize).
func (b *Block) InRange(p uintptr) bool {
	if b.capacity == 0 {
		return false
	}
	return p >= b.base && p < b.base+uintptr(b.usableSize)
}

// Allocate pops a free slot index and returns its address, or nil if the
// block has no capacity or no slot is currently free. Contention on the
// free list is resolved internally via retry-with-backoff; only a
// genuinely empty free list returns nil.
func (b *Block) Allocate() unsafe.Pointer {
	if b.capacity == 0 {
		return nil
	}

	var idx uint64
	var found bool
	backoff.RetryWithRandomBackoff(func() backoff.State {
		switch b.freeList.TryDequeue(&idx) {
		case ring.Success:
			found = true
			return backoff.Done
		case ring.Empty:
			return backoff.Done
		default: // Busy, Beaten
			return backoff.Retry
		}
	}, 0)

	if !found {
		return nil
	}
	return unsafe.Pointer(b.base + uintptr(idx)*uintptr(b.valueSize))
}

// Free returns the slot at p to the free list. A nil pointer, or a
// pointer outside an empty (zero-capacity) block, is a silent no-op. A
// pointer that isn't slot-aligned, or that falls outside this block's
// range, is reported as an error. A free-list push that reports the
// queue already full (free-list corruption: more frees than outstanding
// allocations) is dropped and logged, never propagated, since raising
// from a release path would unbalance ownership (§7, §9 open question
// resolved: drop + warn).
func (b *Block) Free(p unsafe.Pointer) error {
	if p == nil || b.capacity == 0 {
		return nil
	}

	addr := uintptr(p)
	if addr < b.base {
		return slaberrors.New(slaberrors.PointerNotInBlock, "block.Free", "").WithPointer(addr)
	}
	offset := addr - b.base
	if offset%uintptr(b.valueSize) != 0 {
		return slaberrors.New(slaberrors.MisalignedFreePointer, "block.Free", "").WithPointer(addr)
	}
	idx := uint64(offset / uintptr(b.valueSize))
	if idx >= uint64(b.capacity) {
		return slaberrors.New(slaberrors.PointerNotInBlock, "block.Free", "").WithPointer(addr)
	}

	var dropped bool
	backoff.RetryWithRandomBackoff(func() backoff.State {
		switch b.freeList.TryEnqueue(idx) {
		case ring.Success:
			return backoff.Done
		case ring.Full:
			dropped = true
			return backoff.Done
		default: // Busy, Beaten
			return backoff.Retry
		}
	}, 0)

	if dropped {
		b.log.Warn("block: free list full on release, dropping index (free-list corruption indicator)",
			zap.Uint64("value_size", b.valueSize),
			zap.Uint64("slot_index", idx),
		)
	}
	return nil
}

// Clone performs a deep, test-only copy of storage and free-list state,
// mirroring the original's copy constructor (exercised by TestBlockClone).
// Move is intentionally not provided: a Block's storage address is part
// of its identity once pointers have been handed out.
func (b *Block) Clone() *Block {
	clone := &Block{
		valueSize:  b.valueSize,
		alignment:  b.alignment,
		capacity:   b.capacity,
		usableSize: b.usableSize,
		storage:    make([]byte, len(b.storage)),
		log:        b.log,
	}
	copy(clone.storage, b.storage)
	if len(clone.storage) > 0 && b.capacity > 0 {
		offset := b.base - uintptr(unsafe.Pointer(&b.storage[0]))
		clone.base = uintptr(unsafe.Pointer(&clone.storage[0])) + offset
	}

	clone.freeList = ring.NewUintRing(maxu32(b.capacity, 1))
	// Drain a snapshot of the source free list's contents without
	// mutating it permanently: dequeue every index, then re-enqueue each
	// one on the source in the same order and push a copy onto the clone.
	var drained []uint64
	for {
		var v uint64
		if b.freeList.TryDequeue(&v) != ring.Success {
			break
		}
		drained = append(drained, v)
	}
	for _, v := range drained {
		b.freeList.TryEnqueue(v)
		clone.freeList.TryEnqueue(v)
	}

	return clone
}

func maxu32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// FreeListLen returns the current number of free slot indices, for use
// by tests asserting the free-list-completeness invariant (§8 property
// 4): a block with capacity C and k outstanding allocations has exactly
// C - k free indices.
func (b *Block) FreeListLen() uint32 {
	return uint32(b.freeList.Len())
}
