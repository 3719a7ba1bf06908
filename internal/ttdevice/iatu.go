package ttdevice

import (
	"time"

	"github.com/tenstorrent/tt-umd/internal/archimpl"
	"github.com/tenstorrent/tt-umd/internal/coretypes"
	"github.com/tenstorrent/tt-umd/internal/errs"
)

// Generation-B iATU register block inside BAR2 (supplemented: spec.md §4.H
// names "program PCIe iATU regions if the kernel does not" without giving
// addresses; these match original_source's blackhole_tt_device.cpp).
const (
	iatuOffsetInBar2    = 0x1200
	iatuRegionStride    = 0x200
	iatuRegionCtrl1Off  = 0x00
	iatuRegionCtrl2Off  = 0x04
	iatuBaseLoOff       = 0x08
	iatuBaseHiOff       = 0x0C
	iatuLimitOff        = 0x10
	iatuTargetLoOff     = 0x14
	iatuTargetHiOff     = 0x18
	iatuLimitHiOff      = 0x1C
	iatuRegionCtrl3Off  = 0x20
	iatuRegionEnableBit = 1 << 31
)

// ConfigureIATU maps a host buffer's physical address into one of the
// chip's PCIe inbound address translation regions, the way LocalChip's
// init_pcie_iatus does when the kernel driver hasn't already programmed it
// at page-pinning time (spec.md §4.H). Generation A routes the request
// through an ARC message; generation B uses direct BAR2 register access and
// enforces the size constraint with no ARC round trip.
func (d *TTDevice) ConfigureIATU(region int, target uint64, regionSize uint64) error {
	if d.arch.Arch() == coretypes.ArchA {
		return d.configureIatuViaArc(region, target, regionSize)
	}

	return d.configureIatuDirect(region, target, regionSize)
}

// validateIatuRegionSize enforces the rule both generations share: a region
// must be a whole multiple of the chip's iATU granularity and no larger than
// its max region size (spec.md §8 boundary behavior).
func (d *TTDevice) validateIatuRegionSize(regionSize uint64) error {
	layout := d.arch.SocLayout()

	if regionSize%layout.IatuGranularity != 0 || regionSize > layout.IatuMaxRegionBytes {
		return errs.New(errs.OutOfBounds, "ttdevice.ConfigureIATU",
			"region_size must be a multiple of the iATU granularity and at most the max region size")
	}

	return nil
}

func (d *TTDevice) configureIatuViaArc(region int, target uint64, regionSize uint64) error {
	if err := d.validateIatuRegionSize(regionSize); err != nil {
		return err
	}

	if err := d.WriteToArcCsm(0x0, uint32(region)); err != nil {
		return err
	}

	if err := d.WriteToArcCsm(0x4, uint32(target)); err != nil {
		return err
	}

	if err := d.WriteToArcCsm(0x8, uint32(target>>32)); err != nil {
		return err
	}

	if err := d.WriteToArcCsm(0xC, uint32(regionSize)); err != nil {
		return err
	}

	code, err := d.arch.ArcMsgCode(archimpl.MsgSetupIatuP2P)
	if err != nil {
		return err
	}

	_, err = d.ArcMsg(code, []uint16{0, 0}, 2*time.Second)

	return err
}

func (d *TTDevice) configureIatuDirect(region int, target uint64, regionSize uint64) error {
	if err := d.validateIatuRegionSize(regionSize); err != nil {
		return err
	}

	base := uint64(region) * regionSize
	limit := (base + regionSize - 1) & 0xffffffff
	regBase := uint64(iatuOffsetInBar2 + region*iatuRegionStride)

	writes := []struct {
		off uint64
		v   uint32
	}{
		{iatuRegionCtrl1Off, 0},
		{iatuRegionCtrl2Off, iatuRegionEnableBit},
		{iatuBaseLoOff, uint32(base)},
		{iatuBaseHiOff, uint32(base >> 32)},
		{iatuLimitOff, uint32(limit)},
		{iatuTargetLoOff, uint32(target)},
		{iatuTargetHiOff, uint32(target >> 32)},
		{iatuLimitHiOff, 0},
		{iatuRegionCtrl3Off, 0},
	}

	for _, w := range writes {
		if err := d.writeBar32(2, regBase+w.off, w.v); err != nil {
			return err
		}
	}

	return nil
}
