package ttdevice

import (
	"encoding/binary"
	"time"

	"github.com/tenstorrent/tt-umd/internal/coretypes"
	"github.com/tenstorrent/tt-umd/internal/errs"
)

// DMA controller register offsets within BAR2 (supplemented, spec.md §4.F
// names the protocol shape — doorbell, completion magic, 10s timeout — but
// not concrete addresses).
const (
	dmaSrcAddrLoOff = 0x00
	dmaSrcAddrHiOff = 0x04
	dmaDstAddrLoOff = 0x08
	dmaDstAddrHiOff = 0x0C
	dmaSizeOff      = 0x10
	dmaDoorbellOff  = 0x14
	dmaCompleteOff  = 0x18

	dmaCompleteMagic = 0xFACA
	dmaTimeout       = 10 * time.Second

	dmaBufferSize = 1 << 20 // largest single transfer DmaWriteToDevice/DmaReadFromDevice issue
)

// dmaEngine is the optional capability a driver can satisfy to service a
// doorbell ring itself instead of real DMA hardware completing it.
// SimulatedDriver implements it so tests can exercise the H2D/D2H round
// trip end to end; SiliconDriver does not, so its doorbell write falls
// through to the real completion-word poll below.
type dmaEngine interface {
	RunDma(srcIova, dstIova uint64, size int) error
}

func (d *TTDevice) dmaSupported() bool { return d.arch.SupportsHostDMA() }

func checkDmaAlignment(op string, devAddr uint64, size int) error {
	if devAddr%4 != 0 {
		return errs.New(errs.Alignment, op, "device address not 4-byte aligned")
	}

	if size%4 != 0 {
		return errs.New(errs.Alignment, op, "size not a multiple of 4 bytes")
	}

	return nil
}

// ringDoorbellAndWait programs the BAR2 DMA controller with (srcIova,
// dstIova, size), rings the doorbell, and polls the completion word for
// dmaCompleteMagic, failing with ErrorKind::DmaTimeout after dmaTimeout.
func (d *TTDevice) ringDoorbellAndWait(srcIova, dstIova uint64, size int) error {
	if eng, ok := d.driver.(dmaEngine); ok {
		return eng.RunDma(srcIova, dstIova, size)
	}

	bar2, err := d.driver.BAR(2)
	if err != nil {
		return errs.Wrap(errs.Io, "ttdevice.ringDoorbellAndWait", err)
	}

	binary.LittleEndian.PutUint32(bar2[dmaSrcAddrLoOff:], uint32(srcIova))
	binary.LittleEndian.PutUint32(bar2[dmaSrcAddrHiOff:], uint32(srcIova>>32))
	binary.LittleEndian.PutUint32(bar2[dmaDstAddrLoOff:], uint32(dstIova))
	binary.LittleEndian.PutUint32(bar2[dmaDstAddrHiOff:], uint32(dstIova>>32))
	binary.LittleEndian.PutUint32(bar2[dmaSizeOff:], uint32(size))
	binary.LittleEndian.PutUint32(bar2[dmaCompleteOff:], 0)
	binary.LittleEndian.PutUint32(bar2[dmaDoorbellOff:], 1)

	deadline := time.Now().Add(dmaTimeout)

	for {
		if binary.LittleEndian.Uint32(bar2[dmaCompleteOff:]) == dmaCompleteMagic {
			return nil
		}

		if time.Now().After(deadline) {
			return errs.New(errs.DmaTimeout, "ttdevice.ringDoorbellAndWait", "dma completion word never read magic")
		}

		time.Sleep(time.Microsecond * 50)
	}
}

// DmaH2D copies src to the device at devAxiAddr (the "copy variant"). It
// pins src itself for the duration of the transfer; there is no separate
// bounce buffer and no host-side copy. Generation A has no host DMA path.
func (d *TTDevice) DmaH2D(devAxiAddr uint64, src []byte) error {
	if !d.dmaSupported() {
		return errs.New(errs.Unsupported, "ttdevice.DmaH2D", "generation does not support host dma")
	}

	if err := checkDmaAlignment("ttdevice.DmaH2D", devAxiAddr, len(src)); err != nil {
		return err
	}

	d.dmaMu.Lock()
	defer d.dmaMu.Unlock()

	iova, err := d.driver.MapForDMA(src)
	if err != nil {
		return errs.Wrap(errs.Io, "ttdevice.DmaH2D", err)
	}
	defer d.driver.UnmapForDMA(src)

	return d.ringDoorbellAndWait(iova, devAxiAddr, len(src))
}

// DmaD2H is DmaH2D's read counterpart: dst receives devAxiAddr's contents.
func (d *TTDevice) DmaD2H(dst []byte, devAxiAddr uint64) error {
	if !d.dmaSupported() {
		return errs.New(errs.Unsupported, "ttdevice.DmaD2H", "generation does not support host dma")
	}

	if err := checkDmaAlignment("ttdevice.DmaD2H", devAxiAddr, len(dst)); err != nil {
		return err
	}

	d.dmaMu.Lock()
	defer d.dmaMu.Unlock()

	iova, err := d.driver.MapForDMA(dst)
	if err != nil {
		return errs.Wrap(errs.Io, "ttdevice.DmaD2H", err)
	}
	defer d.driver.UnmapForDMA(dst)

	return d.ringDoorbellAndWait(devAxiAddr, iova, len(dst))
}

// DmaH2DZeroCopy and DmaD2HZeroCopy skip the per-call pin and target an
// IOVA the caller already owns (e.g. a sysmem hugepage mapping).
func (d *TTDevice) DmaH2DZeroCopy(devAxiAddr uint64, hostIova uint64, size int) error {
	if !d.dmaSupported() {
		return errs.New(errs.Unsupported, "ttdevice.DmaH2DZeroCopy", "generation does not support host dma")
	}

	if err := checkDmaAlignment("ttdevice.DmaH2DZeroCopy", devAxiAddr, size); err != nil {
		return err
	}

	d.dmaMu.Lock()
	defer d.dmaMu.Unlock()

	return d.ringDoorbellAndWait(hostIova, devAxiAddr, size)
}

func (d *TTDevice) DmaD2HZeroCopy(hostIova uint64, devAxiAddr uint64, size int) error {
	if !d.dmaSupported() {
		return errs.New(errs.Unsupported, "ttdevice.DmaD2HZeroCopy", "generation does not support host dma")
	}

	if err := checkDmaAlignment("ttdevice.DmaD2HZeroCopy", devAxiAddr, size); err != nil {
		return err
	}

	d.dmaMu.Lock()
	defer d.dmaMu.Unlock()

	return d.ringDoorbellAndWait(devAxiAddr, hostIova, size)
}

// dmaChunkSize bounds a single DMA transfer by the cached WC TLB's size
// class and dmaBufferSize, mirroring WriteBlockReconfigure's
// windowing so DMA and MMIO bulk transfers share one chunking policy.
func (d *TTDevice) dmaChunkSize() int {
	chunk := int(d.wcSize)
	if chunk > dmaBufferSize {
		chunk = dmaBufferSize
	}

	return chunk
}

// DmaWriteToDevice and DmaReadFromDevice take a (core, on-chip address)
// pair instead of a raw AXI address, resolving the device-side address via
// the architecture's NoC address base for the core's type and chunking
// across dmaChunkSize()-sized transfers.
func (d *TTDevice) DmaWriteToDevice(core coretypes.CoreCoord, addr uint64, data []byte) error {
	chunk := d.dmaChunkSize()
	base := d.arch.NocAddressBase(core.CoreType, 0)

	for off := 0; off < len(data); off += chunk {
		end := off + chunk
		if end > len(data) {
			end = len(data)
		}

		if err := d.DmaH2D(base+addr+uint64(off), data[off:end]); err != nil {
			return err
		}
	}

	return nil
}

func (d *TTDevice) DmaReadFromDevice(core coretypes.CoreCoord, addr uint64, size int) ([]byte, error) {
	chunk := d.dmaChunkSize()
	base := d.arch.NocAddressBase(core.CoreType, 0)
	out := make([]byte, size)

	for off := 0; off < size; off += chunk {
		end := off + chunk
		if end > size {
			end = size
		}

		if err := d.DmaD2H(out[off:end], base+addr+uint64(off)); err != nil {
			return nil, err
		}
	}

	return out, nil
}
