// Package slab implements the Sized slab component (§4.5): a vector of
// block lists bucketed by power-of-two value size, with allocate/
// deallocate routed by find_block_bucket and on-demand bucket growth.
package slab

import (
	"unsafe"

	"go.uber.org/zap"

	"github.com/arcaflux/slabmem/internal/bitutil"
	"github.com/arcaflux/slabmem/internal/blocklist"
	"github.com/arcaflux/slabmem/internal/sizeutil"
	"github.com/arcaflux/slabmem/internal/slaberrors"
)

// BucketConfig is a caller-supplied (size, capacity, growth) row, an
// alias of sizeutil.BucketConfig so callers of this package don't also
// need to import internal/sizeutil directly.
type BucketConfig = sizeutil.BucketConfig

// MakeResult reports the outcome of MakeUnique.
type MakeResult int

const (
	MakeSuccess MakeResult = iota
	MakeSlabFull
)

type bucket struct {
	list         *blocklist.List
	growthFactor uint32
	contingency  uint32
	lastCapacity uint32
}

// Slab is a vector of buckets, each a block list of a distinct,
// consecutive power-of-two value size.
type Slab struct {
	smallestExponent uint
	buckets          []*bucket
	log              *zap.Logger
}

// New calibrates configs (§4.8) and constructs one block list per
// resulting bucket.
func New(contingencyCapacity uint32, configs []BucketConfig, logger *zap.Logger) (*Slab, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	calibrated := sizeutil.Calibrate(contingencyCapacity, configs)
	if len(calibrated) == 0 {
		return nil, slaberrors.New(slaberrors.CapacityArgumentInvalid, "slab.New", "no bucket configuration supplied")
	}

	s := &Slab{
		smallestExponent: bitutil.Log2Ceil(calibrated[0].BlockSize),
		log:              logger,
	}
	for _, cfg := range calibrated {
		list, err := blocklist.New(cfg.BlockSize, cfg.InitialCapacity, 0, logger)
		if err != nil {
			return nil, err
		}
		s.buckets = append(s.buckets, &bucket{
			list:         list,
			growthFactor: cfg.GrowthFactor,
			contingency:  cfg.GrowthContingency,
			lastCapacity: cfg.InitialCapacity,
		})
	}
	return s, nil
}

// BucketConfigs reports the slab's current layout, one entry per bucket,
// reflecting each bucket's most recently appended block capacity (the
// head block's until the bucket first grows) and growth parameters —
// supplemented feature used by tests and the demo CLI to print a slab's
// effective layout after calibration.
func (s *Slab) BucketConfigs() []BucketConfig {
	out := make([]BucketConfig, len(s.buckets))
	for i, b := range s.buckets {
		out[i] = BucketConfig{
			BlockSize:         b.list.ValueSize(),
			InitialCapacity:   b.lastCapacity,
			GrowthContingency: b.contingency,
			GrowthFactor:      b.growthFactor,
		}
	}
	return out
}

// FindBlockBucket maps a total allocation size to a bucket index. A size
// of 0 maps to bucket 0; sizes below the smallest configured bucket also
// map to bucket 0 (to avoid exponent underflow); otherwise the index is
// ceil(log2(size)) - smallest_block_exponent. The caller must still check
// the result against len(buckets) since an oversized request yields an
// out-of-range index.
func (s *Slab) FindBlockBucket(size uint64) int {
	if size == 0 {
		return 0
	}
	exp := bitutil.Log2Ceil(size)
	if exp < s.smallestExponent {
		return 0
	}
	return int(exp - s.smallestExponent)
}

// Allocate computes the bucket for quantity values of valueSize bytes
// aligned to valueAlignment, and serves one slot from it. Returns nil if
// the request is empty or the computed bucket is out of range.
func (s *Slab) Allocate(valueSize, valueAlignment uint64, quantity uint32) unsafe.Pointer {
	return s.AllocateObserveGrowth(valueSize, valueAlignment, quantity, nil)
}

// AllocateObserveGrowth behaves like Allocate, but additionally invokes
// onGrowth (if non-nil) with the base address of any new tail block this
// call causes to be appended and the value size of its bucket. The untyped allocator
// (§4.7) uses this to keep its base-address trie in sync with the
// allocation slab without a separate before/after list-length scan.
func (s *Slab) AllocateObserveGrowth(valueSize, valueAlignment uint64, quantity uint32, onGrowth func(base uintptr, valueSize uint64)) unsafe.Pointer {
	total := sizeutil.CalcTotalAlignedSize(valueSize, valueAlignment, uint64(quantity))
	if total == 0 {
		return nil
	}
	idx := s.FindBlockBucket(total)
	if idx < 0 || idx >= len(s.buckets) {
		return nil
	}
	return s.allocateFromBucket(s.buckets[idx], onGrowth)
}

// allocateFromBucket walks the bucket's block list for the first
// non-full block; if every existing node is full, it appends a new node
// sized at the previous tail's capacity times the bucket's growth
// factor, then retries.
func (s *Slab) allocateFromBucket(b *bucket, onGrowth func(uintptr, uint64)) unsafe.Pointer {
	for {
		it := b.list.Begin()
		for {
			node, err := it.Node()
			if err != nil {
				return nil
			}
			if p := node.Block().Allocate(); p != nil {
				return p
			}
			if it.IsLast() {
				break
			}
			it.Next()
		}

		newCapacity := b.lastCapacity * b.growthFactor
		if newCapacity == 0 {
			newCapacity = b.contingency
		}
		successor, err := b.list.CreateNode(newCapacity)
		if err != nil {
			return nil
		}
		res, err := it.TryAppend(successor)
		if err != nil {
			return nil
		}
		if res == blocklist.AppendSuccess {
			b.lastCapacity = newCapacity
			s.log.Debug("slab: bucket grew",
				zap.Uint64("value_size", b.list.ValueSize()),
				zap.Uint32("new_capacity", newCapacity),
			)
			if onGrowth != nil {
				onGrowth(successor.Block().Base(), b.list.ValueSize())
			}
		}
		// Whether we won the append race or lost it to a concurrent
		// grower, the list now has a node beyond where we started;
		// loop and walk again from the head.
	}
}

// Deallocate computes the bucket for the given (valueSize, alignment,
// quantity) triple and walks its block list for the block claiming p,
// handing it back. A pointer matching no block (double-free or foreign
// pointer) is dropped silently, per spec.
func (s *Slab) Deallocate(valueSize, valueAlignment uint64, p unsafe.Pointer, quantity uint32) error {
	total := sizeutil.CalcTotalAlignedSize(valueSize, valueAlignment, uint64(quantity))
	idx := s.FindBlockBucket(total)
	if idx < 0 || idx >= len(s.buckets) {
		return nil
	}
	b := s.buckets[idx]
	it := b.list.Begin()
	addr := uintptr(p)
	for {
		node, err := it.Node()
		if err != nil {
			return nil
		}
		if node.Block().InRange(addr) {
			return node.Block().Free(p)
		}
		if it.IsLast() {
			return nil
		}
		it.Next()
	}
}

// InConfiguredRange reports whether valueSize maps to a real bucket.
func (s *Slab) InConfiguredRange(valueSize uint64) bool {
	if valueSize == 0 {
		return false
	}
	idx := s.FindBlockBucket(sizeutil.CalcTotalAlignedSize(valueSize, valueSize, 1))
	return idx >= 0 && idx < len(s.buckets)
}

// Buckets returns the number of configured buckets.
func (s *Slab) Buckets() int { return len(s.buckets) }

// WalkBlocks visits every block of every bucket, in bucket then chain
// order, reporting each block's base address and its bucket's value size
// — used to seed the untyped allocator's address trie at construction
// time (§4.7).
func (s *Slab) WalkBlocks(visit func(base uintptr, valueSize uint64)) {
	for _, b := range s.buckets {
		it := b.list.Begin()
		for {
			node, err := it.Node()
			if err != nil {
				break
			}
			visit(node.Block().Base(), b.list.ValueSize())
			if it.IsLast() {
				break
			}
			it.Next()
		}
	}
}
