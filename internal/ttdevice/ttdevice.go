// Package ttdevice implements the per-chip I/O engine: memory I/O, ARC
// access, power/clock, RISC-core reset, training waits, and DMA for one
// chip (spec.md §4.F). Callers are expected to have already translated
// core coordinates into the chip's routing system (NOC0/NOC1/Translated).
package ttdevice

import (
	"time"

	"github.com/tenstorrent/tt-umd/internal/archimpl"
	"github.com/tenstorrent/tt-umd/internal/arc"
	"github.com/tenstorrent/tt-umd/internal/coretypes"
	"github.com/tenstorrent/tt-umd/internal/errs"
	"github.com/tenstorrent/tt-umd/internal/kerneldriver"
	"github.com/tenstorrent/tt-umd/internal/lockmgr"
	"github.com/tenstorrent/tt-umd/internal/tlb"
	"github.com/tenstorrent/tt-umd/internal/tlbmgr"
)

// Telemetry is the small subset of internal/telemetry's API ttdevice needs;
// kept as a local interface so ttdevice never imports telemetry directly.
// Callers that don't care about metrics pass nil; every TTDevice method
// treats a nil Telemetry as a no-op.
type Telemetry interface {
	ObserveAiclk(mhz int)
	IncHang()
	ObserveArcLatency(d time.Duration)
}

// TTDevice is the per-chip I/O engine. It owns one dynamic write-combine
// TLB used for general memory traffic (the "WC TLB cache" spec.md §4.F
// describes) and talks to the static register TLB and ARC messenger
// through the shared TlbManager/Messenger.
type TTDevice struct {
	driver   kerneldriver.Driver
	arch     archimpl.Implementation
	tlbs     *tlbmgr.Manager
	locks    *lockmgr.Manager
	deviceID int
	messenger arc.Messenger
	arcCoord  coretypes.CoreCoord
	telemetry Telemetry

	wcHandle *tlb.Handle
	wcSize   archimpl.TlbSizeClass

	dmaMu     chanMutex
}

// chanMutex is a channel-based mutex so DMA operations can respect
// context cancellation in later callers without pulling in sync here too;
// for now it's used exactly like sync.Mutex.
type chanMutex chan struct{}

func newChanMutex() chanMutex {
	c := make(chanMutex, 1)
	c <- struct{}{}

	return c
}

func (c chanMutex) Lock()   { <-c }
func (c chanMutex) Unlock() { c <- struct{}{} }

// New builds a TTDevice for deviceID, reserving one dynamic WC TLB sized to
// the largest size class the architecture supports (maximizing chunk size
// for bulk transfers).
func New(driver kerneldriver.Driver, arch archimpl.Implementation, tlbs *tlbmgr.Manager, locks *lockmgr.Manager, deviceID int, messenger arc.Messenger, arcX, arcY int, telemetry Telemetry) (*TTDevice, error) {
	classes := arch.TlbSizeClasses()

	wcSize := classes[0]
	for _, c := range classes[1:] {
		if c > wcSize {
			wcSize = c
		}
	}

	h, err := tlbs.AllocateTlbIndex(wcSize, coretypes.WriteCombine)
	if err != nil {
		return nil, err
	}

	return &TTDevice{
		driver:    driver,
		arch:      arch,
		tlbs:      tlbs,
		locks:     locks,
		deviceID:  deviceID,
		messenger: messenger,
		arcCoord:  coretypes.CoreCoord{X: arcX, Y: arcY, CoreType: coretypes.ARC, CoordSystem: coretypes.NOC0},
		telemetry: telemetry,
		wcHandle:  h,
		wcSize:    wcSize,
		dmaMu:     newChanMutex(),
	}, nil
}

// Close releases the cached WC TLB. Static register TLBs live for the
// process lifetime and are released when the underlying driver closes.
func (d *TTDevice) Close() error {
	return d.tlbs.DeallocateTlbIndex(d.wcHandle)
}

func (d *TTDevice) wcLock() (*lockmgr.Guard, error) {
	return d.locks.Acquire(coretypes.MutexNoc0TlbCache, d.deviceID)
}

// WriteToDevice writes data to core at addr via the cached WC TLB,
// chunking across multiple TLB reconfigurations if data exceeds one
// window's worth of bytes.
func (d *TTDevice) WriteToDevice(data []byte, core coretypes.CoreCoord, addr uint64) error {
	guard, err := d.wcLock()
	if err != nil {
		return err
	}
	defer guard.Release()

	w := tlb.Open(d.wcHandle, core, 0)
	base := archimpl.TlbConfig{XEnd: core.X, YEnd: core.Y, Noc: 0, Ordering: coretypes.Relaxed}

	return w.WriteBlockReconfigure(base, addr, data)
}

// ReadFromDevice is WriteToDevice's read counterpart.
func (d *TTDevice) ReadFromDevice(core coretypes.CoreCoord, addr uint64, size int) ([]byte, error) {
	guard, err := d.wcLock()
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	w := tlb.Open(d.wcHandle, core, 0)
	base := archimpl.TlbConfig{XEnd: core.X, YEnd: core.Y, Noc: 0, Ordering: coretypes.Relaxed}

	return w.ReadBlockReconfigure(base, addr, size)
}

// WriteRegister and ReadRegister serve 4-byte-aligned, 4-byte-multiple
// register accesses through the shared static register TLB with Strict
// ordering, per spec.md §4.F.
func (d *TTDevice) WriteRegister(core coretypes.CoreCoord, addr uint64, value uint32) error {
	if addr%4 != 0 {
		return errs.New(errs.Alignment, "ttdevice.WriteRegister", "register address not 4-byte aligned")
	}

	guard, err := d.wcLock()
	if err != nil {
		return err
	}
	defer guard.Release()

	w, err := d.tlbs.GetTlbWindow(archimpl.RegTLB, core, addr, coretypes.Strict)
	if err != nil {
		return err
	}

	return w.Write32(0, value)
}

func (d *TTDevice) ReadRegister(core coretypes.CoreCoord, addr uint64) (uint32, error) {
	if addr%4 != 0 {
		return 0, errs.New(errs.Alignment, "ttdevice.ReadRegister", "register address not 4-byte aligned")
	}

	guard, err := d.wcLock()
	if err != nil {
		return 0, err
	}
	defer guard.Release()

	w, err := d.tlbs.GetTlbWindow(archimpl.RegTLB, core, addr, coretypes.Strict)
	if err != nil {
		return 0, err
	}

	return w.Read32(0)
}

// NocMulticastWrite fans data out to every Tensix core in the inclusive
// rectangle [coreStart, coreEnd] via the WC TLB's multicast mode.
func (d *TTDevice) NocMulticastWrite(data []byte, coreStart, coreEnd coretypes.CoreCoord, addr uint64) error {
	if coreStart.CoreType != coretypes.Tensix || coreEnd.CoreType != coretypes.Tensix {
		return errs.New(errs.UnsupportedCoreType, "ttdevice.NocMulticastWrite", "multicast targets must be tensix cores")
	}

	guard, err := d.wcLock()
	if err != nil {
		return err
	}
	defer guard.Release()

	w := tlb.Open(d.wcHandle, coreStart, 0)
	base := archimpl.TlbConfig{
		XStart: coreStart.X, YStart: coreStart.Y,
		XEnd: coreEnd.X, YEnd: coreEnd.Y,
		Multicast: true,
		Ordering:  coretypes.Relaxed,
	}

	return w.NocMulticastWriteReconfigure(base, addr, data)
}
