package archimpl

import (
	"fmt"

	"github.com/tenstorrent/tt-umd/internal/coretypes"
	"github.com/tenstorrent/tt-umd/internal/errs"
)

// archA implements Implementation for the generation-A ("Wormhole-class")
// family: row/column harvesting, mailbox ARC protocol, no host DMA, 8-byte
// TLB control registers.
type archA struct {
	tensixCols, tensixRows int
	tensixRowsNoc0Y        []int // NOC0 y for logical tensix row 0..tensixRows-1
	tensixColsNoc0X        []int

	dramBanks, dramPorts int
	dramNoc0             [][]Point

	ethChannels int
	ethNoc0     []Point

	arcNoc0, pcieNoc0, routerNoc0, securityNoc0, l2cpuNoc0 []Point

	harvestingNocLocations []int
	translatedOriginX      int
	translatedOriginY      int
}

// NewA constructs the generation-A architecture table.
func NewA() Implementation {
	a := &archA{
		tensixCols:  9,
		tensixRows:  10,
		dramBanks:   3,
		dramPorts:   2,
		ethChannels: 10,

		arcNoc0:      []Point{{X: 0, Y: 0}},
		pcieNoc0:     []Point{{X: 9, Y: 0}},
		routerNoc0:   []Point{{X: 1, Y: 0}, {X: 2, Y: 0}},
		securityNoc0: []Point{{X: 3, Y: 0}},
		l2cpuNoc0:    []Point{{X: 4, Y: 0}},

		translatedOriginX: 1,
		translatedOriginY: 1,
	}

	for x := 0; x < 10; x++ {
		if x == 5 {
			continue // reserved for DRAM column
		}

		a.tensixColsNoc0X = append(a.tensixColsNoc0X, x)
	}

	for y := 0; y < a.tensixRows; y++ {
		a.tensixRowsNoc0Y = append(a.tensixRowsNoc0Y, 1+y)
	}

	a.dramNoc0 = make([][]Point, a.dramBanks)
	for bank := 0; bank < a.dramBanks; bank++ {
		a.dramNoc0[bank] = make([]Point, a.dramPorts)
		for port := 0; port < a.dramPorts; port++ {
			a.dramNoc0[bank][port] = Point{X: 5, Y: 1 + bank*a.dramPorts + port}
		}
	}

	a.ethNoc0 = make([]Point, a.ethChannels)
	for ch := 0; ch < a.ethChannels; ch++ {
		a.ethNoc0[ch] = Point{X: ch, Y: 11}
	}

	// harvesting_noc_locations: firmware reports harvested rows in a
	// physical scan order distinct from NOC0 row order; shuffle maps
	// physical bit k to NOC0 row harvestingNocLocations[k].
	a.harvestingNocLocations = []int{9, 0, 8, 1, 7, 2, 6, 3, 5, 4}

	return a
}

func (a *archA) Arch() coretypes.Arch { return coretypes.ArchA }

func (a *archA) SocLayout() SocLayout {
	return SocLayout{
		L1SizeBytes:        1536 * 1024,
		DramChannelBytes:   12 << 30,
		TensixBarrierAddr:  0x1ffe0000 + 16,
		EthBarrierAddr:     0x1c000000 + 16,
		DramBarrierAddr:    0x0,
		NumNocRouters:      2,
		StaticVCCount:      4,
		ArcApbBar0Offset:   0x1FF70000,
		ArcCsmBar0Offset:   0x1FE80000,
		IatuGranularity:    1 << 30,
		IatuMaxRegionBytes: 4 << 30,
	}
}

func (a *archA) GridSize(t coretypes.CoreType) (int, int) {
	switch t {
	case coretypes.Tensix:
		return a.tensixCols, a.tensixRows
	case coretypes.DRAM:
		return a.dramPorts, a.dramBanks
	case coretypes.Ethernet:
		return a.ethChannels, 1
	default:
		return 1, 1
	}
}

func (a *archA) CoresNoc0(t coretypes.CoreType) []Point {
	switch t {
	case coretypes.Tensix:
		out := make([]Point, 0, len(a.tensixColsNoc0X)*len(a.tensixRowsNoc0Y))
		for _, y := range a.tensixRowsNoc0Y {
			for _, x := range a.tensixColsNoc0X {
				out = append(out, Point{X: x, Y: y})
			}
		}

		return out
	case coretypes.DRAM:
		var out []Point
		for _, row := range a.dramNoc0 {
			out = append(out, row...)
		}

		return out
	case coretypes.Ethernet:
		return append([]Point(nil), a.ethNoc0...)
	case coretypes.ARC:
		return append([]Point(nil), a.arcNoc0...)
	case coretypes.PCIe:
		return append([]Point(nil), a.pcieNoc0...)
	case coretypes.Router:
		return append([]Point(nil), a.routerNoc0...)
	case coretypes.Security:
		return append([]Point(nil), a.securityNoc0...)
	case coretypes.L2CPU:
		return append([]Point(nil), a.l2cpuNoc0...)
	default:
		return nil
	}
}

func (a *archA) DramCoresNoc0() [][]Point { return a.dramNoc0 }

func (a *archA) HarvestingNocLocations() []int {
	return append([]int(nil), a.harvestingNocLocations...)
}

func (a *archA) TensixTranslatedOrigin() (int, int) {
	return a.translatedOriginX, a.translatedOriginY
}

func (a *archA) NocTranslationCapable() bool { return true }

func (a *archA) Noc0ToNoc1() map[Point]Point {
	// Generation A's NOC1 is the NOC0 grid read in the opposite direction
	// on each axis (a fixed, chip-wide permutation).
	maxX, maxY := 9, 11
	out := make(map[Point]Point)

	for x := 0; x <= maxX; x++ {
		for y := 0; y <= maxY; y++ {
			out[Point{X: x, Y: y}] = Point{X: maxX - x, Y: maxY - y}
		}
	}

	return out
}

func (a *archA) TlbSizeClasses() []TlbSizeClass {
	return []TlbSizeClass{Size1MiB, Size2MiB, Size16MiB}
}

func (a *archA) TlbCount(size TlbSizeClass) (int, error) {
	switch size {
	case Size1MiB:
		return 156, nil
	case Size2MiB:
		return 10, nil
	case Size16MiB:
		return 20, nil
	default:
		return 0, unsupported(coretypes.ArchA, "archimpl.TlbCount")
	}
}

// TlbOffsetsFor returns the bit-exact layout from spec.md §6 for the 1 MiB
// class, and an analogous (not bit-exact-specified) derived layout for the
// other two classes: a smaller local_offset field fits entirely below the
// coordinate fields, whose relative bit order is preserved.
func (a *archA) TlbOffsetsFor(size TlbSizeClass) (TlbOffsets, error) {
	switch size {
	case Size1MiB:
		return TlbOffsets{
			LocalOffset: BitField{0, 15},
			XEnd:        BitField{16, 21},
			YEnd:        BitField{22, 27},
			XStart:      BitField{28, 33},
			YStart:      BitField{34, 39},
			NocSel:      BitField{40, 40},
			Mcast:       BitField{41, 41},
			Ordering:    BitField{42, 43},
			Linked:      BitField{44, 44},
			StaticVC:    BitField{45, 46},
		}, nil
	case Size2MiB:
		return TlbOffsets{
			LocalOffset: BitField{0, 14},
			XEnd:        BitField{15, 20},
			YEnd:        BitField{21, 26},
			XStart:      BitField{27, 32},
			YStart:      BitField{33, 38},
			NocSel:      BitField{39, 39},
			Mcast:       BitField{40, 40},
			Ordering:    BitField{41, 42},
			Linked:      BitField{43, 43},
			StaticVC:    BitField{44, 45},
		}, nil
	case Size16MiB:
		return TlbOffsets{
			LocalOffset: BitField{0, 11},
			XEnd:        BitField{12, 17},
			YEnd:        BitField{18, 23},
			XStart:      BitField{24, 29},
			YStart:      BitField{30, 35},
			NocSel:      BitField{36, 36},
			Mcast:       BitField{37, 37},
			Ordering:    BitField{38, 39},
			Linked:      BitField{40, 40},
			StaticVC:    BitField{41, 42},
		}, nil
	default:
		return TlbOffsets{}, unsupported(coretypes.ArchA, "archimpl.TlbOffsetsFor")
	}
}

func (a *archA) TlbRegisterBytes(size TlbSizeClass) int { return 8 }

func (a *archA) TlbBaseAddress(size TlbSizeClass) (uint64, error) {
	const mib = 1 << 20

	switch size {
	case Size1MiB:
		return 0, nil
	case Size2MiB:
		return 156 * mib, nil
	case Size16MiB:
		return 156*mib + 20*mib, nil
	default:
		return 0, unsupported(coretypes.ArchA, "archimpl.TlbBaseAddress")
	}
}

// staticTlbBaseIndex returns the absolute pool index of the first TLB in
// the 16 MiB class, used by the static reservations in spec.md §6.
func (a *archA) staticTlbBaseIndex() int {
	n1, _ := a.TlbCount(Size1MiB)
	n2, _ := a.TlbCount(Size2MiB)

	return n1 + n2
}

func (a *archA) StaticTlbIndex(name StaticTlb) (int, error) {
	base16M := a.staticTlbBaseIndex()
	n1, _ := a.TlbCount(Size1MiB)

	switch name {
	case RegTLB:
		return base16M + 18, nil
	case MemLargeWriteTLB:
		return base16M + 17, nil
	case MemLargeReadTLB:
		return base16M + 0, nil
	case MemSmallRWTLB:
		return n1 + 1, nil
	default:
		return 0, errs.New(errs.Unsupported, "archimpl.StaticTlbIndex", fmt.Sprintf("unknown static tlb %v", name))
	}
}

func (a *archA) ArcMsgCode(name ArcMsgName) (uint32, error) {
	prefix, _ := a.ArcMsgCommonPrefix()

	switch name {
	case MsgNop:
		return prefix | 0x11, nil
	case MsgGetAiclk:
		return prefix | 0x34, nil
	case MsgGoBusy:
		return prefix | 0x52, nil
	case MsgGoShortIdle:
		return prefix | 0x53, nil
	case MsgGoLongIdle:
		return prefix | 0x54, nil
	case MsgGetHarvesting:
		return prefix | 0x57, nil
	case MsgTest:
		return prefix | 0x90, nil
	case MsgSetupIatuP2P:
		return prefix | 0x97, nil
	case MsgDeassertRiscvReset:
		return prefix | 0xBA, nil
	case MsgGetSmbusTelemetryAddr:
		return prefix | 0x2C, nil
	case MsgArcState3:
		return prefix | 0xA3, nil
	case MsgTriggerReset:
		return prefix | 0x56, nil
	default:
		return 0, errs.New(errs.Unsupported, "archimpl.ArcMsgCode", "unknown message name")
	}
}

func (a *archA) ArcMsgCommonPrefix() (uint32, bool) { return 0xAA00, true }

func (a *archA) ArcScratchLayout() ArcScratchLayout {
	return ArcScratchLayout{
		Scratch0:      0x1FF30060,
		StatusScratch: 0x1FF30068,
		MiscControl:   0x1FF30100,
	}
}

func (a *archA) MinClockMHz() int { return 500 }
func (a *archA) MaxClockMHz() int { return 1202 }

func (a *archA) SupportsHostDMA() bool { return false }

func (a *archA) NocAddressBase(t coretypes.CoreType, noc int) uint64 {
	// Generation A's NoC address space is flat; base is NoC-selector
	// dependent only (NOC1 mirrors the address space of NOC0).
	if noc == 1 {
		return 0x0
	}

	return 0x0
}
