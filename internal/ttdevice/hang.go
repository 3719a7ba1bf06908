package ttdevice

// hangSentinel is the all-ones value a hung chip reads back on essentially
// any register (spec.md §9: "the source ... notes this is incorrect
// because writing 0xFFFFFFFF to device memory and reading it back should
// not imply hang"). Treated as advisory only, per the DESIGN.md decision:
// it must be corroborated by the ARC scratch-status register before this
// package reports a hang.
const hangSentinel = 0xFFFFFFFF

// IsHardwareHung reads a known scratch register and corroborates a
// sentinel reading against the ARC status scratch register before
// reporting true.
func (d *TTDevice) IsHardwareHung() (bool, error) {
	layout := d.arch.ArcScratchLayout()

	v, err := d.ReadFromArcApb(layout.StatusScratch)
	if err != nil {
		return false, err
	}

	if v != hangSentinel {
		return false, nil
	}

	corroborate, err := d.ReadRegister(d.arcCoord, layout.StatusScratch)
	if err != nil {
		return false, err
	}

	hung := corroborate == hangSentinel

	if hung && d.telemetry != nil {
		d.telemetry.IncHang()
	}

	return hung, nil
}

// DetectHangRead checks whether a just-observed read value looks like the
// hang sentinel, and if so escalates to IsHardwareHung's corroborated
// check. It returns false without the extra round trip for any value that
// is not the sentinel, since most reads are not followed by a hang check.
func (d *TTDevice) DetectHangRead(lastValue uint32) (bool, error) {
	if lastValue != hangSentinel {
		return false, nil
	}

	return d.IsHardwareHung()
}
