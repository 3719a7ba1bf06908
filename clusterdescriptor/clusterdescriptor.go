// Package clusterdescriptor is the pure-data topology model spec.md §3/§4.J
// describes: chips, their boards and locations, Ethernet connections, and
// harvesting state, plus the verification passes that catch a malformed
// topology before a Cluster is ever opened against it. Grounded on
// original_source's cluster_descriptor.cpp; construction from YAML (or an
// equivalent serialized form) is out of scope here, matching spec.md §4.J —
// callers build a Descriptor with NewBuilder and Finish it.
package clusterdescriptor

import (
	"fmt"

	"github.com/tenstorrent/tt-umd/internal/coord"
	"github.com/tenstorrent/tt-umd/internal/coretypes"
)

type ChipID int

// BoardType names the physical carrier board a chip sits on; the expected
// harvesting-unit counts below are keyed by this (supplemented: spec.md
// names "board type" as an entity field without enumerating values).
type BoardType int

const (
	BoardUnknown BoardType = iota
	BoardN150
	BoardN300
	BoardP100
	BoardP150
	BoardGalaxy
)

func (b BoardType) String() string {
	switch b {
	case BoardN150:
		return "n150"
	case BoardN300:
		return "n300"
	case BoardP100:
		return "p100"
	case BoardP150:
		return "p150"
	case BoardGalaxy:
		return "galaxy"
	default:
		return "unknown"
	}
}

// expectedChipsPerBoard and expectedTensixHarvested ground
// verify_board_info_for_chips/verify_harvesting_information's lookup
// tables; values are supplemented plausible counts, not spec-given.
var expectedChipsPerBoard = map[BoardType]int{
	BoardN150:   1,
	BoardN300:   2,
	BoardP100:   1,
	BoardP150:   1,
	BoardGalaxy: 32,
}

var expectedTensixHarvested = map[BoardType]int{
	BoardN150: 1,
	BoardN300: 1,
}

// Location is a chip's physical position in a rack (spec.md §3's "location
// (rack/shelf/x/y)").
type Location struct {
	Rack, Shelf, X, Y int
}

// EthEndpoint is one side of a directed Ethernet connection.
type EthEndpoint struct {
	Chip    ChipID
	Channel int
}

// ChipInfo is everything the descriptor tracks about one chip.
type ChipInfo struct {
	Arch      coretypes.Arch
	Board     BoardType
	Location  Location
	Masks     coord.HarvestingMasks
	BoardID   uint64
	AsicLoc   uint8
	BusID     uint16
	UniqueID  uint64
	MMIO      bool
	ActiveEth []int
	IdleEth   []int
}

// Descriptor is the immutable, verified cluster topology.
type Descriptor struct {
	chips       map[ChipID]ChipInfo
	connections map[EthEndpoint]EthEndpoint
	mmioCapable map[ChipID]bool
	closestMMIO map[ChipID]ChipID
}

// Chips returns every chip id, in no particular order.
func (d *Descriptor) Chips() []ChipID {
	out := make([]ChipID, 0, len(d.chips))

	for id := range d.chips {
		out = append(out, id)
	}

	return out
}

func (d *Descriptor) Info(id ChipID) (ChipInfo, bool) {
	info, ok := d.chips[id]

	return info, ok
}

func (d *Descriptor) IsMMIOCapable(id ChipID) bool {
	return d.mmioCapable[id]
}

// ClosestMMIOChip returns the MMIO-capable chip a non-MMIO chip is reached
// through, per the descriptor's closest_mmio_chip_of closure.
func (d *Descriptor) ClosestMMIOChip(id ChipID) (ChipID, bool) {
	if d.mmioCapable[id] {
		return id, true
	}

	closest, ok := d.closestMMIO[id]

	return closest, ok
}

// ConnectedTo returns the chip/channel on the far side of a local Ethernet
// channel, if wired.
func (d *Descriptor) ConnectedTo(chip ChipID, channel int) (EthEndpoint, bool) {
	far, ok := d.connections[EthEndpoint{Chip: chip, Channel: channel}]

	return far, ok
}

// VerificationResult separates fatal problems (which abort cluster
// construction) from warnings (which are reported but don't block it),
// per spec.md §4.J.
type VerificationResult struct {
	Fatal    []string
	Warnings []string
}

func (r VerificationResult) OK() bool { return len(r.Fatal) == 0 }

// Verify runs every check spec.md §4.J requires: architecture uniformity
// (fatal), Ethernet symmetry (fatal), harvesting consistency (warning), and
// MMIO-closure coverage (fatal — every chip must resolve to some MMIO
// chip when at least one exists on its board).
func (d *Descriptor) Verify() VerificationResult {
	var res VerificationResult

	res.Fatal = append(res.Fatal, d.verifySameArch()...)
	res.Fatal = append(res.Fatal, d.verifyEthernetSymmetric()...)
	res.Warnings = append(res.Warnings, d.verifyHarvesting()...)
	res.Warnings = append(res.Warnings, d.verifyBoardChipCounts()...)
	res.Fatal = append(res.Fatal, d.verifyMMIOClosureCoverage()...)

	return res
}

func (d *Descriptor) verifySameArch() []string {
	var first coretypes.Arch

	seenFirst := false

	for _, info := range d.chips {
		if !seenFirst {
			first = info.Arch
			seenFirst = true

			continue
		}

		if info.Arch != first {
			return []string{"chips with differing architectures detected, unsupported"}
		}
	}

	return nil
}

func (d *Descriptor) verifyEthernetSymmetric() []string {
	var errs []string

	for local, remote := range d.connections {
		back, ok := d.connections[remote]
		if !ok || back != local {
			errs = append(errs, fmt.Sprintf(
				"ethernet connection (chip %d, chan %d) -> (chip %d, chan %d) is not symmetric",
				local.Chip, local.Channel, remote.Chip, remote.Channel))
		}
	}

	return errs
}

func (d *Descriptor) verifyHarvesting() []string {
	var warnings []string

	for id, info := range d.chips {
		expected, ok := expectedTensixHarvested[info.Board]
		if !ok {
			continue
		}

		actual := countBits(info.Masks.Tensix)

		if actual != expected {
			warnings = append(warnings, fmt.Sprintf(
				"chip %d: board %s expects %d harvested tensix units, mask indicates %d",
				id, info.Board, expected, actual))
		}
	}

	return warnings
}

func (d *Descriptor) verifyBoardChipCounts() []string {
	counts := make(map[uint64]int)
	boardOf := make(map[uint64]BoardType)

	for _, info := range d.chips {
		counts[info.BoardID]++
		boardOf[info.BoardID] = info.Board
	}

	var warnings []string

	for boardID, count := range counts {
		expected, ok := expectedChipsPerBoard[boardOf[boardID]]
		if !ok {
			continue
		}

		if count != expected {
			warnings = append(warnings, fmt.Sprintf(
				"board %#x has %d chips, expected %d for board type %s",
				boardID, count, expected, boardOf[boardID]))
		}
	}

	return warnings
}

func (d *Descriptor) verifyMMIOClosureCoverage() []string {
	mmioBoards := make(map[uint64]bool)

	for id, mmio := range d.mmioCapable {
		if mmio {
			mmioBoards[d.chips[id].BoardID] = true
		}
	}

	var errs []string

	for id, info := range d.chips {
		if !mmioBoards[info.BoardID] {
			continue
		}

		if _, ok := d.ClosestMMIOChip(id); !ok {
			errs = append(errs, fmt.Sprintf("chip %d has no reachable mmio-capable chip", id))
		}
	}

	return errs
}

func countBits(mask uint32) int {
	n := 0

	for mask != 0 {
		n += int(mask & 1)
		mask >>= 1
	}

	return n
}
