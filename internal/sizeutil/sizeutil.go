// Package sizeutil implements the alignment and size arithmetic (§4.8):
// align(), calc_total_aligned_size() and calibrate(). These are pure
// functions shared by internal/block (aligning a single storage buffer)
// and internal/slab (calibrating a user-supplied bucket layout), kept in
// their own package so neither of those needs to import the other.
package sizeutil

import (
	"sort"

	"github.com/arcaflux/slabmem/internal/bitutil"
)

// Align aligns buf upward to the given alignment, shrinking *space by the
// padding consumed. It returns the aligned address and true, or 0 and
// false if alignment exceeds *space or there isn't room for elementSize
// plus padding. A zero alignment is a no-op pass-through. A zero
// elementSize is treated as 1 for the room check, matching the contract
// of a single-element placement-new call with unknown element size.
func Align(alignment uint64, elementSize uint64, buf uintptr, space *uint64) (uintptr, bool) {
	if alignment == 0 {
		return buf, true
	}
	if elementSize == 0 {
		elementSize = 1
	}
	if alignment > *space {
		return 0, false
	}

	misalignment := uint64(buf) % alignment
	var padding uint64
	if misalignment != 0 {
		padding = alignment - misalignment
	}
	if padding+elementSize > *space {
		return 0, false
	}

	*space -= padding
	return buf + uintptr(padding), true
}

// CalcTotalAlignedSize returns the total storage an allocation of
// quantity values of valueSize bytes needs once alignment padding is
// accounted for, per §4.8:
//
//   - 0 if valueSize or quantity is 0.
//   - valueSize * quantity if alignment is 0 or equals valueSize.
//   - alignment * quantity if alignment > valueSize.
//   - otherwise, the smallest multiple of alignment >= valueSize, times
//     quantity.
func CalcTotalAlignedSize(valueSize, alignment, quantity uint64) uint64 {
	if valueSize == 0 || quantity == 0 {
		return 0
	}
	if alignment == 0 || alignment == valueSize {
		return valueSize * quantity
	}
	if alignment > valueSize {
		return alignment * quantity
	}
	perValue := roundUp(valueSize, alignment)
	return perValue * quantity
}

func roundUp(n, m uint64) uint64 {
	if m == 0 {
		return n
	}
	rem := n % m
	if rem == 0 {
		return n
	}
	return n + (m - rem)
}

// BucketConfig is a single (size, initial_capacity, growth_contingency,
// growth_factor) record, both as supplied by a caller and as emitted by
// Calibrate.
type BucketConfig struct {
	BlockSize          uint64
	InitialCapacity    uint32
	GrowthContingency  uint32
	GrowthFactor       uint32
}

// Calibrate normalizes a user-supplied bucket layout into strictly
// consecutive power-of-two block sizes with no gaps, per §4.8:
//
//  1. Stable-sort configs by ascending block size.
//  2. desired starts at 2^ceil(log2(smallest_input_size)).
//  3. For each desired size, sum the initial capacities of every input
//     entry with block_size <= desired that hasn't been consumed yet; if
//     none, emit a zero-capacity gap filler with the contingency
//     capacity; otherwise emit the summed capacity and the smallest
//     power-of-two >= the group's growth factor.
//  4. Double desired and repeat until the input is exhausted.
func Calibrate(contingencyCapacity uint32, configs []BucketConfig) []BucketConfig {
	if len(configs) == 0 {
		return nil
	}

	sorted := make([]BucketConfig, len(configs))
	copy(sorted, configs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].BlockSize < sorted[j].BlockSize
	})

	desired := bitutil.NextPowerOfTwo(sorted[0].BlockSize)
	var result []BucketConfig
	idx := 0
	for idx < len(sorted) {
		groupStart := idx
		var capacitySum uint32
		var growthFactor uint32
		for idx < len(sorted) && sorted[idx].BlockSize <= desired {
			capacitySum += sorted[idx].InitialCapacity
			if sorted[idx].GrowthFactor > growthFactor {
				growthFactor = sorted[idx].GrowthFactor
			}
			idx++
		}

		if idx == groupStart {
			// No input entry is small enough yet: emit a gap filler so
			// bucket sizes stay a consecutive power-of-two sequence.
			result = append(result, BucketConfig{
				BlockSize:         desired,
				InitialCapacity:   0,
				GrowthContingency: contingencyCapacity,
				GrowthFactor:      2,
			})
		} else {
			if growthFactor == 0 {
				growthFactor = 2
			}
			result = append(result, BucketConfig{
				BlockSize:         desired,
				InitialCapacity:   capacitySum,
				GrowthContingency: contingencyCapacity,
				GrowthFactor:      uint32(bitutil.NextPowerOfTwo(uint64(growthFactor))),
			})
		}

		desired *= 2
	}

	return result
}
