package archimpl

import (
	"fmt"

	"github.com/tenstorrent/tt-umd/internal/coretypes"
	"github.com/tenstorrent/tt-umd/internal/errs"
)

// archB implements Implementation for the generation-B ("Blackhole-class")
// family: queue ARC protocol, host DMA, 12-byte (96-bit) TLB control
// registers split as an 8-byte + 4-byte store pair.
type archB struct {
	tensixCols, tensixRows int
	tensixRowsNoc0Y        []int
	tensixColsNoc0X        []int

	dramBanks, dramPorts int
	dramNoc0             [][]Point

	ethChannels int
	ethNoc0     []Point

	arcNoc0, pcieNoc0, routerNoc0, securityNoc0, l2cpuNoc0 []Point

	harvestingNocLocations []int
}

// NewB constructs the generation-B architecture table.
func NewB() Implementation {
	b := &archB{
		tensixCols:  14,
		tensixRows:  10,
		dramBanks:   4,
		dramPorts:   2,
		ethChannels: 14,

		arcNoc0:      []Point{{X: 0, Y: 0}},
		pcieNoc0:     []Point{{X: 11, Y: 0}, {X: 2, Y: 0}},
		routerNoc0:   []Point{{X: 1, Y: 0}},
		securityNoc0: []Point{{X: 3, Y: 0}},
		l2cpuNoc0:    []Point{{X: 4, Y: 0}, {X: 5, Y: 0}},
	}

	for x := 0; x < 16; x++ {
		if x == 6 || x == 7 {
			continue // reserved for DRAM columns
		}

		b.tensixColsNoc0X = append(b.tensixColsNoc0X, x)
	}

	for y := 0; y < b.tensixRows; y++ {
		b.tensixRowsNoc0Y = append(b.tensixRowsNoc0Y, 1+y)
	}

	b.dramNoc0 = make([][]Point, b.dramBanks)
	for bank := 0; bank < b.dramBanks; bank++ {
		b.dramNoc0[bank] = make([]Point, b.dramPorts)
		for port := 0; port < b.dramPorts; port++ {
			b.dramNoc0[bank][port] = Point{X: 6 + port, Y: 1 + bank}
		}
	}

	b.ethNoc0 = make([]Point, b.ethChannels)
	for ch := 0; ch < b.ethChannels; ch++ {
		b.ethNoc0[ch] = Point{X: ch, Y: 11}
	}

	b.harvestingNocLocations = []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	return b
}

func (b *archB) Arch() coretypes.Arch { return coretypes.ArchB }

func (b *archB) SocLayout() SocLayout {
	return SocLayout{
		L1SizeBytes:        1536 * 1024,
		DramChannelBytes:   32 << 30,
		TensixBarrierAddr:  0x1ffe0000 + 16,
		EthBarrierAddr:     0x1c000000 + 16,
		DramBarrierAddr:    0x0,
		NumNocRouters:      2,
		StaticVCCount:      4,
		ArcApbBar0Offset:   0x80050000,
		ArcCsmBar0Offset:   0x80000000,
		IatuGranularity:    1 << 30,
		IatuMaxRegionBytes: 4 << 30,
	}
}

func (b *archB) GridSize(t coretypes.CoreType) (int, int) {
	switch t {
	case coretypes.Tensix:
		return b.tensixCols, b.tensixRows
	case coretypes.DRAM:
		return b.dramPorts, b.dramBanks
	case coretypes.Ethernet:
		return b.ethChannels, 1
	default:
		return 1, 1
	}
}

func (b *archB) CoresNoc0(t coretypes.CoreType) []Point {
	switch t {
	case coretypes.Tensix:
		out := make([]Point, 0, len(b.tensixColsNoc0X)*len(b.tensixRowsNoc0Y))
		for _, y := range b.tensixRowsNoc0Y {
			for _, x := range b.tensixColsNoc0X {
				out = append(out, Point{X: x, Y: y})
			}
		}

		return out
	case coretypes.DRAM:
		var out []Point
		for _, row := range b.dramNoc0 {
			out = append(out, row...)
		}

		return out
	case coretypes.Ethernet:
		return append([]Point(nil), b.ethNoc0...)
	case coretypes.ARC:
		return append([]Point(nil), b.arcNoc0...)
	case coretypes.PCIe:
		return append([]Point(nil), b.pcieNoc0...)
	case coretypes.Router:
		return append([]Point(nil), b.routerNoc0...)
	case coretypes.Security:
		return append([]Point(nil), b.securityNoc0...)
	case coretypes.L2CPU:
		return append([]Point(nil), b.l2cpuNoc0...)
	default:
		return nil
	}
}

func (b *archB) DramCoresNoc0() [][]Point { return b.dramNoc0 }

// TranslateDramBankOrder keeps the surviving DRAM banks in NOC0 order and
// moves the harvested banks to the back of the translated order.
func (b *archB) TranslateDramBankOrder(surviving, harvestedBanks []int) []int {
	order := append([]int(nil), surviving...)

	return append(order, harvestedBanks...)
}

func (b *archB) HarvestingNocLocations() []int {
	return append([]int(nil), b.harvestingNocLocations...)
}

func (b *archB) TensixTranslatedOrigin() (int, int) { return 1, 2 }

func (b *archB) NocTranslationCapable() bool { return true }

// Noc0ToNoc1 is nil for generation B in configurations without a second
// physical NoC identity exposed to software; callers must treat NOC1 as
// absent and fall back to Translated.
func (b *archB) Noc0ToNoc1() map[Point]Point { return nil }

func (b *archB) TlbSizeClasses() []TlbSizeClass {
	return []TlbSizeClass{Size2MiB, Size4GiB}
}

func (b *archB) TlbCount(size TlbSizeClass) (int, error) {
	switch size {
	case Size2MiB:
		return 202, nil
	case Size4GiB:
		return 8, nil
	default:
		return 0, unsupported(coretypes.ArchB, "archimpl.TlbCount")
	}
}

func (b *archB) TlbOffsetsFor(size TlbSizeClass) (TlbOffsets, error) {
	switch size {
	case Size2MiB:
		return TlbOffsets{
			LocalOffset: BitField{0, 14},
			XEnd:        BitField{43, 49},
			YEnd:        BitField{50, 55},
			XStart:      BitField{55, 60},
			YStart:      BitField{61, 66},
			NocSel:      BitField{67, 67},
			Mcast:       BitField{68, 68},
			Ordering:    BitField{69, 70},
			Linked:      BitField{71, 71},
			StaticVC:    BitField{72, 74},
		}, nil
	case Size4GiB:
		// Derived analogously: local_offset widens to cover a 4 GiB
		// region (32 bits), coordinate fields shift up by the same
		// amount relative to the 2 MiB layout. Not bit-exact-specified
		// by spec.md §6; preserved relative field order.
		return TlbOffsets{
			LocalOffset: BitField{0, 31},
			XEnd:        BitField{60, 66},
			YEnd:        BitField{67, 72},
			XStart:      BitField{72, 77},
			YStart:      BitField{78, 83},
			NocSel:      BitField{84, 84},
			Mcast:       BitField{85, 85},
			Ordering:    BitField{86, 87},
			Linked:      BitField{88, 88},
			StaticVC:    BitField{89, 91},
		}, nil
	default:
		return TlbOffsets{}, unsupported(coretypes.ArchB, "archimpl.TlbOffsetsFor")
	}
}

func (b *archB) TlbRegisterBytes(size TlbSizeClass) int {
	switch size {
	case Size2MiB:
		return 12
	case Size4GiB:
		return 12
	default:
		return 0
	}
}

func (b *archB) TlbBaseAddress(size TlbSizeClass) (uint64, error) {
	switch size {
	case Size2MiB:
		return 0, nil // BAR0
	case Size4GiB:
		return 0, nil // BAR4, distinct mapping handled by the caller
	default:
		return 0, unsupported(coretypes.ArchB, "archimpl.TlbBaseAddress")
	}
}

func (b *archB) StaticTlbIndex(name StaticTlb) (int, error) {
	switch name {
	case RegTLB:
		return 191, nil
	case MemLargeWriteTLB:
		return 181, nil
	case MemLargeReadTLB:
		return 182, nil
	case MemSmallRWTLB:
		return 183, nil
	default:
		return 0, errs.New(errs.Unsupported, "archimpl.StaticTlbIndex", fmt.Sprintf("unknown static tlb %v", name))
	}
}

func (b *archB) ArcMsgCode(name ArcMsgName) (uint32, error) {
	switch name {
	case MsgNop:
		return 0x11, nil
	case MsgGetAiclk:
		return 0x34, nil
	case MsgGoBusy:
		return 0x52, nil
	case MsgGoShortIdle:
		return 0x53, nil
	case MsgGoLongIdle:
		return 0x54, nil
	case MsgGetHarvesting:
		return 0x57, nil
	case MsgTest:
		return 0x90, nil
	case MsgSetupIatuP2P:
		return 0x97, nil
	case MsgDeassertRiscvReset:
		return 0xBA, nil
	case MsgGetSmbusTelemetryAddr:
		return 0, unsupported(coretypes.ArchB, "archimpl.ArcMsgCode")
	default:
		return 0, errs.New(errs.Unsupported, "archimpl.ArcMsgCode", "unknown message name")
	}
}

func (b *archB) ArcMsgCommonPrefix() (uint32, bool) { return 0, false }

func (b *archB) ArcScratchLayout() ArcScratchLayout {
	return ArcScratchLayout{
		ScratchRam11: 0x8003002C,
		FwIntAddr:    0x80030000,
		FwIntVal:     0xc0000000,
	}
}

func (b *archB) MinClockMHz() int { return 800 }
func (b *archB) MaxClockMHz() int { return 1350 }

func (b *archB) SupportsHostDMA() bool { return true }

func (b *archB) NocAddressBase(t coretypes.CoreType, noc int) uint64 {
	if noc == 1 {
		return 0x1000_0000_0000
	}

	return 0x0
}
