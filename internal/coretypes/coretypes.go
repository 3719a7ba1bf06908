// Package coretypes holds the small value types shared by every layer of
// the driver: core identifiers, coordinate systems, ordering modes, and the
// architecture/generation tag. Keeping them dependency-free avoids import
// cycles between coord, tlb, arc and ttdevice.
package coretypes

// CoreType enumerates the kinds of on-chip tile a CoreCoord can name.
type CoreType int

const (
	Tensix CoreType = iota
	DRAM
	Ethernet
	ARC
	PCIe
	Router
	Security
	L2CPU
)

func (t CoreType) String() string {
	switch t {
	case Tensix:
		return "tensix"
	case DRAM:
		return "dram"
	case Ethernet:
		return "eth"
	case ARC:
		return "arc"
	case PCIe:
		return "pcie"
	case Router:
		return "router"
	case Security:
		return "security"
	case L2CPU:
		return "l2cpu"
	default:
		return "unknown"
	}
}

// CoordSystem enumerates the coordinate spaces a CoreCoord can be expressed in.
type CoordSystem int

const (
	Logical CoordSystem = iota
	NOC0
	NOC1
	Translated
)

func (s CoordSystem) String() string {
	switch s {
	case Logical:
		return "logical"
	case NOC0:
		return "noc0"
	case NOC1:
		return "noc1"
	case Translated:
		return "translated"
	default:
		return "unknown"
	}
}

// CoreCoord identifies a core by (x, y, type, coordinate system). All four
// fields participate in equality and hashing, so CoreCoord is safe to use
// directly as a map key.
type CoreCoord struct {
	X           int
	Y           int
	CoreType    CoreType
	CoordSystem CoordSystem
}

// Arch tags which chip generation a value belongs to.
type Arch int

const (
	ArchA Arch = iota // Wormhole-class: row/column harvesting, mailbox ARC protocol
	ArchB             // Blackhole-class: queue ARC protocol, DMA-capable
)

func (a Arch) String() string {
	switch a {
	case ArchA:
		return "arch-a"
	case ArchB:
		return "arch-b"
	default:
		return "unknown-arch"
	}
}

// Ordering is the NoC transaction ordering mode programmed into a TLB.
type Ordering int

const (
	Relaxed Ordering = iota
	Strict
	Posted
)

// MappingKind is the BAR mapping attribute fixed at TLB allocation time.
type MappingKind int

const (
	WriteCombine MappingKind = iota
	Uncached
)

// PowerState is the AICLK power target used by wait_for_aiclk_value.
type PowerState int

const (
	PowerIdle PowerState = iota
	PowerBusy
)

// RiscCore is the set of RISC-V mini-cores gated by the per-tensix-core
// soft-reset register. Bit values match spec.md §6 exactly.
type RiscCore uint32

const (
	RiscBrisc          RiscCore = 1 << 11
	RiscTrisc0         RiscCore = 1 << 12
	RiscTrisc1         RiscCore = 1 << 13
	RiscTrisc2         RiscCore = 1 << 14
	RiscNcrisc         RiscCore = 1 << 18
	RiscStaggeredStart RiscCore = 1 << 31

	RiscAllTrisc = RiscTrisc0 | RiscTrisc1 | RiscTrisc2
	RiscAll      = RiscBrisc | RiscAllTrisc | RiscNcrisc
)

// MutexKind names a class of named, optionally cross-process mutex (§4.K).
type MutexKind int

const (
	MutexArcMessage MutexKind = iota
	MutexRemoteArcMessage
	MutexMemBarrier
	MutexChipInUse
	MutexNoc0TlbCache
	MutexNoc1TlbCache
	MutexPcieDmaTlbCache
)

func (k MutexKind) String() string {
	switch k {
	case MutexArcMessage:
		return "arc_message"
	case MutexRemoteArcMessage:
		return "remote_arc_message"
	case MutexMemBarrier:
		return "mem_barrier"
	case MutexChipInUse:
		return "chip_in_use"
	case MutexNoc0TlbCache:
		return "noc0_tlb_cache"
	case MutexNoc1TlbCache:
		return "noc1_tlb_cache"
	case MutexPcieDmaTlbCache:
		return "pcie_dma_tlb_cache"
	default:
		return "unknown_mutex"
	}
}
