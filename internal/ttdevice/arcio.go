package ttdevice

import (
	"encoding/binary"
	"time"

	"github.com/tenstorrent/tt-umd/internal/coretypes"
	"github.com/tenstorrent/tt-umd/internal/errs"
)

func (d *TTDevice) readBar32(barIndex int, offset uint64) (uint32, error) {
	if offset%4 != 0 {
		return 0, errs.New(errs.Alignment, "ttdevice.readBar32", "bar offset not 4-byte aligned")
	}

	bar, err := d.driver.BAR(barIndex)
	if err != nil {
		return 0, errs.Wrap(errs.Io, "ttdevice.readBar32", err)
	}

	if offset+4 > uint64(len(bar)) {
		return 0, errs.New(errs.OutOfBounds, "ttdevice.readBar32", "offset exceeds bar size")
	}

	return binary.LittleEndian.Uint32(bar[offset : offset+4]), nil
}

func (d *TTDevice) writeBar32(barIndex int, offset uint64, v uint32) error {
	if offset%4 != 0 {
		return errs.New(errs.Alignment, "ttdevice.writeBar32", "bar offset not 4-byte aligned")
	}

	bar, err := d.driver.BAR(barIndex)
	if err != nil {
		return errs.Wrap(errs.Io, "ttdevice.writeBar32", err)
	}

	if offset+4 > uint64(len(bar)) {
		return errs.New(errs.OutOfBounds, "ttdevice.writeBar32", "offset exceeds bar size")
	}

	binary.LittleEndian.PutUint32(bar[offset:offset+4], v)

	return nil
}

// arcOverAxi reports whether this chip's ARC APB/CSM regions are accessed
// directly over BAR0. It is always true on generation A. On generation B it
// is true when the architecture's PCIe tile list contains a tile at x==11;
// that list holds both x==11 and x==2, so it is true for every generation B
// chip. The PCIe tile the chip actually trained against is not read.
func (d *TTDevice) arcOverAxi() bool {
	if d.arch.Arch() == coretypes.ArchA {
		return true
	}

	for _, p := range d.arch.CoresNoc0(coretypes.PCIe) {
		if p.X == 11 {
			return true
		}
	}

	return false
}

// ReadFromArcApb and WriteToArcApb access the ARC APB register region: a
// direct BAR0 access when the PCIe tile exposes AXI, otherwise routed
// through the NoC via the shared register TLB pointed at the ARC core.
func (d *TTDevice) ReadFromArcApb(addr uint64) (uint32, error) {
	layout := d.arch.SocLayout()

	if d.arcOverAxi() {
		return d.readBar32(0, layout.ArcApbBar0Offset+addr)
	}

	return d.ReadRegister(d.arcCoord, addr)
}

func (d *TTDevice) WriteToArcApb(addr uint64, v uint32) error {
	layout := d.arch.SocLayout()

	if d.arcOverAxi() {
		return d.writeBar32(0, layout.ArcApbBar0Offset+addr, v)
	}

	return d.WriteRegister(d.arcCoord, addr, v)
}

// ReadFromArcCsm and WriteToArcCsm are ReadFromArcApb/WriteToArcApb's
// counterparts for the ARC CSM (shared RAM) region.
func (d *TTDevice) ReadFromArcCsm(addr uint64) (uint32, error) {
	layout := d.arch.SocLayout()

	if d.arcOverAxi() {
		return d.readBar32(0, layout.ArcCsmBar0Offset+addr)
	}

	return d.ReadRegister(d.arcCoord, addr)
}

func (d *TTDevice) WriteToArcCsm(addr uint64, v uint32) error {
	layout := d.arch.SocLayout()

	if d.arcOverAxi() {
		return d.writeBar32(0, layout.ArcCsmBar0Offset+addr, v)
	}

	return d.WriteRegister(d.arcCoord, addr, v)
}

// ArcMsg is the convenience wrapper over the chip's Messenger, holding the
// per-chip ARC message mutex for the full round trip (spec.md §4.K).
// Remote chips have no ARC messenger (chip.Chip.ArcMsg returns
// Unsupported for them), so the mutex serializes local messages only.
func (d *TTDevice) ArcMsg(code uint32, args []uint16, timeout time.Duration) (arcResponse, error) {
	guard, err := d.locks.Acquire(coretypes.MutexArcMessage, d.deviceID)
	if err != nil {
		return arcResponse{}, err
	}
	defer guard.Release()

	start := time.Now()

	resp, err := d.messenger.SendMessage(code, args, timeout)

	if d.telemetry != nil {
		d.telemetry.ObserveArcLatency(time.Since(start))
	}

	return arcResponse(resp), err
}

// arcResponse mirrors arc.Response without forcing every ttdevice caller to
// import the arc package just to read a field.
type arcResponse struct {
	ExitCode uint32
	Values   [3]uint32
}
