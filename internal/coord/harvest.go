package coord

// HarvestingMasks bundles the five per-chip bitmasks spec.md §3 describes:
// bit k set means the k-th unit of that type, in NOC0 order, is disabled.
type HarvestingMasks struct {
	Tensix uint32
	Dram   uint32
	Eth    uint32
	Pcie   uint32
	L2CPU  uint32
}

func bitSet(mask uint32, k int) bool {
	if k < 0 || k >= 32 {
		return false
	}

	return mask&(uint32(1)<<uint(k)) != 0
}

// invertPermutation returns perm's inverse: inv[perm[k]] == k.
func invertPermutation(perm []int) []int {
	inv := make([]int, len(perm))
	for k, v := range perm {
		inv[v] = k
	}

	return inv
}

// ShuffleTensixHarvestingMask reorders bits from firmware-reported physical
// scan order into NOC0-row order using the arch's harvesting_noc_locations
// table (spec.md §4.B). Bit k of physicalMask, if set, becomes bit
// locations[k] of the returned NOC0-order mask.
func ShuffleTensixHarvestingMask(locations []int, physicalMask uint32) uint32 {
	var out uint32

	for k, noc0Row := range locations {
		if bitSet(physicalMask, k) {
			out |= uint32(1) << uint(noc0Row)
		}
	}

	return out
}

// LogicalHarvestingLayout returns the inverse of harvesting_noc_locations:
// logical_harvesting_layout[k] is the physical bit position whose shuffle
// lands at NOC0 row k. This is the table the idempotence law in spec.md §8
// is stated against.
func LogicalHarvestingLayout(locations []int) []int {
	return invertPermutation(locations)
}
