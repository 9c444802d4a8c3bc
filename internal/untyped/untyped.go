// Package untyped implements the untyped allocator (§4.7): a malloc/free
// facade combining an allocation slab, a trie-node slab, and a bitwise
// trie mapping each live block's base address to its value size.
package untyped

import (
	"unsafe"

	"go.uber.org/zap"

	"github.com/arcaflux/slabmem/internal/sizeutil"
	"github.com/arcaflux/slabmem/internal/slab"
	"github.com/arcaflux/slabmem/internal/trie"
)

// growthContingency scales the trie node slab's provisioning relative to
// the number of allocation buckets, matching the original's
// untyped_allocator::growth_contingency.
const growthContingency = 2

// Allocator combines an allocation slab, a trie-node slab, and a
// uintptr-keyed trie recording base_address -> value_size for every live
// block, so Free can recover the size class of an arbitrary live
// pointer.
type Allocator struct {
	allocationSlab *slab.Slab
	nodeSlab       *slab.Slab
	addressMap     *trie.Trie[uint64]
	log            *zap.Logger
}

// New builds the allocation slab from (contingencyCapacity, configs),
// derives the trie-node slab's layout from the calibrated bucket count
// (an initial capacity of bucketCount × growthContingency branch nodes
// and bucketCount × growthContingency × maxPrefixCapacity leaf nodes;
// contingencyCapacity sets only the node slab's growth contingency and
// does not scale these counts), and records every initial block's
// (base, value_size) pair in the address trie.
func New(contingencyCapacity uint32, configs []slab.BucketConfig, logger *zap.Logger) (*Allocator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	allocationSlab, err := slab.New(contingencyCapacity, configs, logger)
	if err != nil {
		return nil, err
	}

	calibrated := sizeutil.Calibrate(contingencyCapacity, configs)
	nodeSlab, err := slab.New(contingencyCapacity, deriveTrieConfig(contingencyCapacity, len(calibrated)), logger)
	if err != nil {
		return nil, err
	}

	a := &Allocator{
		allocationSlab: allocationSlab,
		nodeSlab:       nodeSlab,
		addressMap:     trie.New[uint64](nodeSlab),
		log:            logger,
	}

	var seedErr error
	allocationSlab.WalkBlocks(func(base uintptr, valueSize uint64) {
		if seedErr != nil {
			return
		}
		if _, _, _, err := a.addressMap.Emplace(uint64(base), valueSize); err != nil {
			seedErr = err
		}
	})
	if seedErr != nil {
		return nil, seedErr
	}

	return a, nil
}

// maxPrefixCapacity is the worst-case number of branch hops a single
// trie insert can create: one per bit of the uintptr key.
const maxPrefixCapacity = 64

func deriveTrieConfig(contingencyCapacity uint32, bucketCount int) []slab.BucketConfig {
	branchSize, _, leafSize, _ := trie.NodeSizes[uint64]()
	branchCount := uint32(bucketCount) * growthContingency
	leafCount := uint32(bucketCount) * growthContingency * maxPrefixCapacity
	return []slab.BucketConfig{
		{BlockSize: branchSize, InitialCapacity: branchCount, GrowthContingency: contingencyCapacity, GrowthFactor: 2},
		{BlockSize: leafSize, InitialCapacity: leafCount, GrowthContingency: contingencyCapacity, GrowthFactor: 2},
	}
}

// BlockCount returns the number of live base-address entries tracked,
// i.e. the address trie's size.
func (a *Allocator) BlockCount() uint64 {
	return a.addressMap.Size()
}

// Malloc returns a pointer to size bytes, or nil if size falls outside
// the allocator's configured range. When serving the request grows the
// owning bucket's block list with a new tail block, the new block's
// (base, value_size) pair is recorded in the address trie.
func (a *Allocator) Malloc(size uint64) unsafe.Pointer {
	if !a.allocationSlab.InConfiguredRange(size) {
		return nil
	}
	var growthErr error
	p := a.allocationSlab.AllocateObserveGrowth(size, size, 1, func(base uintptr, valueSize uint64) {
		if _, _, _, err := a.addressMap.Emplace(uint64(base), valueSize); err != nil {
			growthErr = err
		}
	})
	if growthErr != nil {
		a.log.Warn("untyped: failed to record new block in address trie",
			zap.Error(growthErr),
		)
	}
	return p
}

// Free recovers p's owning block's value size from the address trie
// (the greatest recorded base address <= p) and returns the slot to the
// allocation slab. A pointer with no recorded ancestor block is a
// silent no-op, matching the slab's own double-free/foreign-pointer
// handling.
func (a *Allocator) Free(p unsafe.Pointer) error {
	if p == nil {
		return nil
	}
	_, valueSize, ok := a.addressMap.FindLessEqual(uint64(uintptr(p)))
	if !ok {
		return nil
	}
	return a.allocationSlab.Deallocate(valueSize, valueSize, p, 1)
}
