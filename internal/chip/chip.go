// Package chip implements the per-chip façade (spec.md §4.H) that
// combines coordinate translation, the I/O engine, TLB/sysmem ownership,
// and (for chips with no direct MMIO path) the Ethernet tunnel into one
// public-shaped API, mirroring gokvm's Machine as the thing that owns a
// vCPU/device's full lifetime.
package chip

import (
	"time"

	"github.com/google/uuid"

	"github.com/tenstorrent/tt-umd/internal/archimpl"
	"github.com/tenstorrent/tt-umd/internal/arc"
	"github.com/tenstorrent/tt-umd/internal/coord"
	"github.com/tenstorrent/tt-umd/internal/coretypes"
	"github.com/tenstorrent/tt-umd/internal/errs"
	"github.com/tenstorrent/tt-umd/internal/lockmgr"
	"github.com/tenstorrent/tt-umd/internal/remote"
	"github.com/tenstorrent/tt-umd/internal/sysmem"
	"github.com/tenstorrent/tt-umd/internal/tlbmgr"
	"github.com/tenstorrent/tt-umd/internal/ttdevice"
)

// SocDescriptor bundles an architecture's constant table with the
// harvesting-adjusted coordinate manager derived from this chip's actual
// fuse state, plus the layout constants memory barriers and sysmem need.
type SocDescriptor struct {
	Arch   archimpl.Implementation
	Coord  *coord.Manager
	Layout archimpl.SocLayout
}

func NewSocDescriptor(arch archimpl.Implementation, masks coord.HarvestingMasks, nocTranslationEnabled bool) (*SocDescriptor, error) {
	cm, err := coord.New(arch, masks, nocTranslationEnabled)
	if err != nil {
		return nil, err
	}

	return &SocDescriptor{Arch: arch, Coord: cm, Layout: arch.SocLayout()}, nil
}

// Barrier flag values spec.md §4.H's handshake writes/reads back.
const (
	barrierSet   = 0xAA
	barrierReset = 0x00
)

// Chip is either local (owns a TTDevice with direct MMIO) or remote
// (reached only through a local sibling's Ethernet tunnel). Exactly one of
// the local/remote fields is populated.
type Chip struct {
	ID       int
	SessionID uuid.UUID

	soc   *SocDescriptor
	locks *lockmgr.Manager

	// routing is the coordinate system WriteToDevice/ReadFromDevice
	// translate caller coordinates into before reaching the I/O engine or
	// tunnel: Translated on generation B always, NOC1 or Translated on
	// generation A depending on a runtime flag (spec.md §4.H).
	routing coretypes.CoordSystem

	dev       *ttdevice.TTDevice // nil for remote chips
	tlbs      *tlbmgr.Manager    // nil for remote chips
	sysmemMgr *sysmem.Manager    // nil for remote chips
	comm      *remote.Communication

	remoteTarget remote.EthCoord
	isRemote     bool

	lifetimeGuard *lockmgr.Guard
}

// NewLocal builds a Chip with direct MMIO access.
func NewLocal(
	id int,
	soc *SocDescriptor,
	locks *lockmgr.Manager,
	dev *ttdevice.TTDevice,
	tlbs *tlbmgr.Manager,
	sysmemMgr *sysmem.Manager,
	comm *remote.Communication,
	nocTranslation bool,
) *Chip {
	return &Chip{
		ID:        id,
		SessionID: uuid.New(),
		soc:       soc,
		locks:     locks,
		routing:   routingFor(soc.Arch.Arch(), nocTranslation),
		dev:       dev,
		tlbs:      tlbs,
		sysmemMgr: sysmemMgr,
		comm:      comm,
	}
}

// NewRemote builds a Chip reached only through via's Ethernet tunnel.
func NewRemote(id int, soc *SocDescriptor, locks *lockmgr.Manager, via *remote.Communication, target remote.EthCoord, nocTranslation bool) *Chip {
	return &Chip{
		ID:           id,
		SessionID:    uuid.New(),
		soc:          soc,
		locks:        locks,
		routing:      routingFor(soc.Arch.Arch(), nocTranslation),
		comm:         via,
		remoteTarget: target,
		isRemote:     true,
	}
}

func routingFor(a coretypes.Arch, nocTranslation bool) coretypes.CoordSystem {
	if a == coretypes.ArchB {
		return coretypes.Translated
	}

	if nocTranslation {
		return coretypes.Translated
	}

	return coretypes.NOC1
}

func (c *Chip) translate(core coretypes.CoreCoord) (coretypes.CoreCoord, error) {
	return c.soc.Coord.Translate(core, c.routing)
}

// WriteToDevice and ReadFromDevice translate the caller's coordinate into
// this chip's routing system, then forward to the local I/O engine or
// tunnel the write through Ethernet for a remote chip. Reads against a
// remote chip are not modeled: spec.md §4.G only describes a
// write_to_non_mmio path, no read counterpart.
func (c *Chip) WriteToDevice(data []byte, core coretypes.CoreCoord, addr uint64) error {
	target, err := c.translate(core)
	if err != nil {
		return err
	}

	if c.isRemote {
		return c.comm.WriteToNonMmio(c.remoteTarget, remote.NocXY{X: target.X, Y: target.Y}, addr, data, false, 0, 10*time.Second)
	}

	return c.dev.WriteToDevice(data, target, addr)
}

func (c *Chip) ReadFromDevice(core coretypes.CoreCoord, addr uint64, size int) ([]byte, error) {
	if c.isRemote {
		return nil, errs.New(errs.Unsupported, "chip.Chip.ReadFromDevice", "remote chips have no non-mmio read path")
	}

	target, err := c.translate(core)
	if err != nil {
		return nil, err
	}

	return c.dev.ReadFromDevice(target, addr, size)
}

func (c *Chip) NocMulticastWrite(data []byte, coreStart, coreEnd coretypes.CoreCoord, addr uint64) error {
	if c.isRemote {
		return errs.New(errs.Unsupported, "chip.Chip.NocMulticastWrite", "multicast requires direct mmio")
	}

	start, err := c.translate(coreStart)
	if err != nil {
		return err
	}

	end, err := c.translate(coreEnd)
	if err != nil {
		return err
	}

	return c.dev.NocMulticastWrite(data, start, end, addr)
}

func (c *Chip) WriteToDeviceReg(core coretypes.CoreCoord, addr uint64, value uint32) error {
	if c.isRemote {
		return errs.New(errs.Unsupported, "chip.Chip.WriteToDeviceReg", "register access requires direct mmio")
	}

	target, err := c.translate(core)
	if err != nil {
		return err
	}

	return c.dev.WriteRegister(target, addr, value)
}

func (c *Chip) ReadFromDeviceReg(core coretypes.CoreCoord, addr uint64) (uint32, error) {
	if c.isRemote {
		return 0, errs.New(errs.Unsupported, "chip.Chip.ReadFromDeviceReg", "register access requires direct mmio")
	}

	target, err := c.translate(core)
	if err != nil {
		return 0, err
	}

	return c.dev.ReadRegister(target, addr)
}

func (c *Chip) WriteToSysmem(bufIndex, offset int, data []byte) error {
	if c.sysmemMgr == nil {
		return errs.New(errs.Unsupported, "chip.Chip.WriteToSysmem", "no sysmem manager on this chip")
	}

	return c.sysmemMgr.WriteToSysmem(bufIndex, offset, data)
}

func (c *Chip) ReadFromSysmem(bufIndex, offset, size int) ([]byte, error) {
	if c.sysmemMgr == nil {
		return nil, errs.New(errs.Unsupported, "chip.Chip.ReadFromSysmem", "no sysmem manager on this chip")
	}

	return c.sysmemMgr.ReadFromSysmem(bufIndex, offset, size)
}

func (c *Chip) DmaWriteToDevice(core coretypes.CoreCoord, addr uint64, data []byte) error {
	if c.isRemote {
		return errs.New(errs.Unsupported, "chip.Chip.DmaWriteToDevice", "dma requires direct mmio")
	}

	target, err := c.translate(core)
	if err != nil {
		return err
	}

	return c.dev.DmaWriteToDevice(target, addr, data)
}

func (c *Chip) DmaReadFromDevice(core coretypes.CoreCoord, addr uint64, size int) ([]byte, error) {
	if c.isRemote {
		return nil, errs.New(errs.Unsupported, "chip.Chip.DmaReadFromDevice", "dma requires direct mmio")
	}

	target, err := c.translate(core)
	if err != nil {
		return nil, err
	}

	return c.dev.DmaReadFromDevice(target, addr, size)
}

// barrier runs the four-step host-to-device memory barrier handshake
// against every core in cores at addr (spec.md §4.H).
func (c *Chip) barrier(cores []coretypes.CoreCoord, addr uint64) error {
	guard, err := c.locks.Acquire(coretypes.MutexMemBarrier, c.ID)
	if err != nil {
		return err
	}
	defer guard.Release()

	targets := make([]coretypes.CoreCoord, len(cores))

	for i, core := range cores {
		t, err := c.translate(core)
		if err != nil {
			return err
		}

		targets[i] = t
	}

	if err := c.setBarrierFlags(targets, addr, barrierSet); err != nil {
		return err
	}

	if err := c.setBarrierFlags(targets, addr, barrierReset); err != nil {
		return err
	}

	return nil
}

func (c *Chip) setBarrierFlags(targets []coretypes.CoreCoord, addr uint64, value uint32) error {
	for _, t := range targets {
		if err := c.dev.WriteRegister(t, addr, value); err != nil {
			return err
		}
	}

	for _, t := range targets {
		for {
			v, err := c.dev.ReadRegister(t, addr)
			if err != nil {
				return err
			}

			if v == value {
				break
			}
		}
	}

	return nil
}

// L1Membar is the host-to-device barrier for Tensix/Ethernet L1 memory.
func (c *Chip) L1Membar(cores []coretypes.CoreCoord) error {
	var tensix, eth []coretypes.CoreCoord

	for _, core := range cores {
		if core.CoreType == coretypes.Ethernet {
			eth = append(eth, core)
		} else {
			tensix = append(tensix, core)
		}
	}

	if err := c.barrier(tensix, c.soc.Layout.TensixBarrierAddr); err != nil {
		return err
	}

	return c.barrier(eth, c.soc.Layout.EthBarrierAddr)
}

// DramMembar is L1Membar's counterpart for DRAM channels.
func (c *Chip) DramMembar(cores []coretypes.CoreCoord) error {
	return c.barrier(cores, c.soc.Layout.DramBarrierAddr)
}

// AssertRiscReset/DeassertRiscReset scope to one core; the AllTensix
// variants apply the same operation to every Tensix core this chip has.
func (c *Chip) AssertRiscReset(core coretypes.CoreCoord, which coretypes.RiscCore) error {
	target, err := c.translate(core)
	if err != nil {
		return err
	}

	return c.dev.AssertRiscReset(target, which)
}

func (c *Chip) DeassertRiscReset(core coretypes.CoreCoord, which coretypes.RiscCore, staggered bool) error {
	target, err := c.translate(core)
	if err != nil {
		return err
	}

	return c.dev.DeassertRiscReset(target, which, staggered)
}

func (c *Chip) AssertRiscResetAllTensix(which coretypes.RiscCore) error {
	for _, core := range c.soc.Coord.GetCores(coretypes.Tensix) {
		if err := c.dev.AssertRiscReset(core, which); err != nil {
			return err
		}
	}

	return nil
}

func (c *Chip) DeassertRiscResetAllTensix(which coretypes.RiscCore, staggered bool) error {
	for _, core := range c.soc.Coord.GetCores(coretypes.Tensix) {
		if err := c.dev.DeassertRiscReset(core, which, staggered); err != nil {
			return err
		}
	}

	return nil
}

// SendTensixRiscReset is the legacy mask-style call: it writes mask
// directly to every Tensix core's soft-reset register with no
// read-modify-write.
func (c *Chip) SendTensixRiscReset(mask coretypes.RiscCore) error {
	for _, core := range c.soc.Coord.GetCores(coretypes.Tensix) {
		if err := c.dev.SetRiscResetState(core, mask); err != nil {
			return err
		}
	}

	return nil
}

// GetClock reports this chip's current AICLK in MHz.
func (c *Chip) GetClock() (int, error) {
	if c.isRemote {
		return 0, errs.New(errs.Unsupported, "chip.Chip.GetClock", "remote chips have no direct clock reader")
	}

	return c.dev.GetClock()
}

// WaitForNonMmioFlush waits for every Ethernet-tunnelled write this chip has
// issued through its Communication to drain. Chips with no tunnel have
// nothing to flush.
func (c *Chip) WaitForNonMmioFlush() error {
	if c.comm == nil {
		return nil
	}

	return c.comm.WaitForNonMmioFlush()
}

// ArcMsg is the chip-level convenience wrapper over the I/O engine's
// messenger.
func (c *Chip) ArcMsg(code uint32, args []uint16, timeout time.Duration) (arc.Response, error) {
	if c.isRemote {
		return arc.Response{}, errs.New(errs.Unsupported, "chip.Chip.ArcMsg", "remote chips have no direct arc messenger")
	}

	resp, err := c.dev.ArcMsg(code, args, timeout)

	return arc.Response{ExitCode: resp.ExitCode, Values: resp.Values}, err
}

// EthernetBroadcastWrite fans data out to every chip reachable through
// this chip's Ethernet tunnel in one frame.
func (c *Chip) EthernetBroadcastWrite(nocXY remote.NocXY, addr uint64, data []byte, broadcastHeader uint32) error {
	if c.comm == nil {
		return errs.New(errs.Unsupported, "chip.Chip.EthernetBroadcastWrite", "no ethernet tunnel configured")
	}

	return c.comm.WriteToNonMmio(remote.EthCoord{}, nocXY, addr, data, true, broadcastHeader, 10*time.Second)
}

// ConfigureSysmemIATU programs a PCIe inbound address translation region
// against an already-allocated sysmem buffer, for kernel drivers that don't
// program iATU themselves at page-pinning time (spec.md §4.H). This module's
// abstracted kerneldriver.Driver has no "does the driver already handle
// this" query, so StartDevice never calls this automatically; callers that
// know their driver needs it invoke it per buffer after allocation.
func (c *Chip) ConfigureSysmemIATU(bufIndex int) error {
	if c.sysmemMgr == nil {
		return errs.New(errs.Unsupported, "chip.Chip.ConfigureSysmemIATU", "no sysmem manager on this chip")
	}

	iova, err := c.sysmemMgr.IOVA(bufIndex)
	if err != nil {
		return err
	}

	size, err := c.sysmemMgr.Size(bufIndex)
	if err != nil {
		return err
	}

	return c.dev.ConfigureIATU(bufIndex, iova, uint64(size))
}

// StartDevice acquires the chip-in-use lifetime lock and initializes every
// membar flag word this chip exposes to RESET, per spec.md §4.H. PCIe iATU
// programming and sysmem hugepage pinning are driven by the caller through
// SysmemManager/kerneldriver directly (spec.md §1 excludes hugepage
// filesystem scanning from this module's scope).
func (c *Chip) StartDevice() error {
	guard, err := c.locks.Acquire(coretypes.MutexChipInUse, c.ID)
	if err != nil {
		return err
	}

	c.lifetimeGuard = guard

	if c.isRemote {
		return nil
	}

	for _, core := range c.soc.Coord.GetCores(coretypes.Tensix) {
		if err := c.dev.WriteRegister(core, c.soc.Layout.TensixBarrierAddr, barrierReset); err != nil {
			return err
		}
	}

	for _, core := range c.soc.Coord.GetCores(coretypes.Ethernet) {
		if err := c.dev.WriteRegister(core, c.soc.Layout.EthBarrierAddr, barrierReset); err != nil {
			return err
		}
	}

	for _, core := range c.soc.Coord.GetCores(coretypes.DRAM) {
		if err := c.dev.WriteRegister(core, c.soc.Layout.DramBarrierAddr, barrierReset); err != nil {
			return err
		}
	}

	return nil
}

// CloseDevice closes the I/O engine (which releases its cached WC TLB) and
// then the sysmem manager, and finally releases the lifetime lock. The TLB
// manager's static windows and the Ethernet tunnel are not closed here;
// neither has a close step.
func (c *Chip) CloseDevice() error {
	var first error

	record := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	if !c.isRemote {
		record(c.dev.Close())

		if c.sysmemMgr != nil {
			record(c.sysmemMgr.Close())
		}
	}

	if c.lifetimeGuard != nil {
		c.lifetimeGuard.Release()
		c.lifetimeGuard = nil
	}

	return first
}
