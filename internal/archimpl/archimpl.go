// Package archimpl isolates every generation-dependent constant and layout
// table behind a single Implementation value per architecture, so the rest
// of the driver reads fields/methods instead of branching on arch everywhere
// (spec.md §4.A, §9 "Dynamic dispatch").
package archimpl

import (
	"fmt"

	"github.com/tenstorrent/tt-umd/internal/coretypes"
	"github.com/tenstorrent/tt-umd/internal/errs"
)

// Point is a plain (x, y) pair in some physical coordinate system.
type Point struct{ X, Y int }

// ArcMsgName identifies one of the ARC message codes in spec.md §6.
type ArcMsgName int

const (
	MsgNop ArcMsgName = iota
	MsgGetAiclk
	MsgGoBusy
	MsgGoShortIdle
	MsgGoLongIdle
	MsgGetHarvesting
	MsgTest
	MsgSetupIatuP2P
	MsgDeassertRiscvReset
	MsgGetSmbusTelemetryAddr // generation A only
	MsgArcState3             // generation A only, warm reset sequence
	MsgTriggerReset          // generation A only, warm reset sequence
)

// SocLayout holds the derived memory/barrier layout constants spec.md §3
// says a SocDescriptor carries (supplemented from original_source's
// soc_descriptor.h — see DESIGN.md).
type SocLayout struct {
	L1SizeBytes        uint64
	DramChannelBytes   uint64
	TensixBarrierAddr  uint64
	EthBarrierAddr     uint64
	DramBarrierAddr    uint64
	NumNocRouters      int
	StaticVCCount      int
	ArcApbBar0Offset   uint64
	ArcCsmBar0Offset   uint64
	IatuGranularity    uint64
	IatuMaxRegionBytes uint64
}

// ArcScratchLayout gives the fixed scratch-register offsets (within the
// ARC core's own address space) the ARC messenger protocols need. Values
// are supplemented from original_source's arc_msg offsets (spec.md is
// silent on exact addresses, only on protocol shape — see DESIGN.md).
type ArcScratchLayout struct {
	Scratch0      uint64 // generation A: packed-args scratch register
	StatusScratch uint64 // generation A: msg_code/status/exit_code scratch register
	MiscControl   uint64 // generation A: bit 16 triggers the firmware interrupt

	ScratchRam11  uint64 // generation B: holds the queue control-block pointer
	FwIntAddr     uint64 // generation B: firmware interrupt doorbell address
	FwIntVal      uint32 // generation B: value written to FwIntAddr to trigger it
}

// Implementation exposes every generation-dependent constant used elsewhere
// in the driver. The two concrete values (A, B) are constructed once and
// shared by reference; callers read fields/methods rather than switching on
// architecture (spec.md §4.A rationale).
type Implementation interface {
	Arch() coretypes.Arch
	SocLayout() SocLayout

	// Grid geometry and NOC0 physical inventories, pre-harvesting.
	GridSize(t coretypes.CoreType) (cols, rows int)
	CoresNoc0(t coretypes.CoreType) []Point
	DramCoresNoc0() [][]Point // [bank][noc_port]
	HarvestingNocLocations() []int

	// Translated-coordinate hooks (§4.B step 7): the translated Tensix
	// origin and whether the arch supports NOC translation at all.
	TensixTranslatedOrigin() (x, y int)
	NocTranslationCapable() bool

	// NOC0<->NOC1 permutation, nil if the arch has no second NoC identity.
	Noc0ToNoc1() map[Point]Point

	// TLB layout.
	TlbSizeClasses() []TlbSizeClass
	TlbCount(size TlbSizeClass) (int, error)
	TlbOffsetsFor(size TlbSizeClass) (TlbOffsets, error)
	TlbRegisterBytes(size TlbSizeClass) int
	TlbBaseAddress(size TlbSizeClass) (uint64, error)
	StaticTlbIndex(name StaticTlb) (int, error)

	// ARC.
	ArcMsgCode(name ArcMsgName) (uint32, error)
	ArcMsgCommonPrefix() (uint32, bool) // generation A only
	ArcScratchLayout() ArcScratchLayout

	// Clock / DMA / IATU capability.
	MinClockMHz() int
	MaxClockMHz() int
	SupportsHostDMA() bool

	// NoC address base per core type per NoC selector.
	NocAddressBase(t coretypes.CoreType, noc int) uint64
}

// unsupported builds the spec's standard ErrorKind::Unsupported error for
// "operation not supported on this generation" (spec.md §4.A).
func unsupported(arch coretypes.Arch, op string) error {
	return errs.New(errs.Unsupported, op, fmt.Sprintf("not supported on %s", arch))
}
