// Package warmreset implements the staged PCI-link/M3 reset sequence
// (spec.md §4.F's reset orchestration, grounded on original_source's
// device/warm_reset.cpp): toggle the PCIe link, trigger the ASIC or M3
// reset ioctl, wait for the board to settle, then restore PCI config
// state. A generation A (wormhole-class) ARC-message variant is kept
// alongside it for boards whose kernel driver predates the arch-agnostic
// reset ioctls.
package warmreset

import (
	"errors"
	"time"

	"github.com/tenstorrent/tt-umd/internal/archimpl"
	"github.com/tenstorrent/tt-umd/internal/arc"
	"github.com/tenstorrent/tt-umd/internal/kerneldriver"
)

const (
	minPostResetWait       = 2 * time.Second
	perDevicePostResetWait = 400 * time.Millisecond
	legacyPostResetWait    = 500 * time.Millisecond
)

// postResetWait scales with device count (original_source: "minimum 2
// seconds, 0.4 seconds per device"), or uses m3Timeout verbatim when
// resetM3 is set and the caller supplies one.
func postResetWait(deviceCount int, resetM3 bool, m3Timeout time.Duration) time.Duration {
	if resetM3 && m3Timeout > 0 {
		return m3Timeout
	}

	wait := time.Duration(deviceCount) * perDevicePostResetWait
	if wait < minPostResetWait {
		wait = minPostResetWait
	}

	return wait
}

// WarmReset runs the arch-agnostic reset ioctl sequence across every
// driver in devices: PCIe link reset, then ASIC (or ASIC+DMC for an M3
// reset) reset, a settle wait, then config restore. Every driver is reset
// even if one fails, the same way the original issues one ioctl per PCI
// index rather than stopping at the first error; all errors are returned
// joined.
func WarmReset(devices []kerneldriver.Driver, resetM3 bool, m3Timeout time.Duration) error {
	var errList []error

	for _, d := range devices {
		errList = append(errList, d.Reset(kerneldriver.ResetPcieLink))
	}

	asicResetKind := kerneldriver.AsicReset
	if resetM3 {
		asicResetKind = kerneldriver.AsicDmcReset
	}

	for _, d := range devices {
		errList = append(errList, d.Reset(asicResetKind))
	}

	time.Sleep(postResetWait(len(devices), resetM3, m3Timeout))

	for _, d := range devices {
		errList = append(errList, d.Reset(kerneldriver.PostReset))
	}

	return errors.Join(errList...)
}

// BlackholeLegacy is the pre-arch-agnostic-ioctl fallback for generation B
// boards: it issues a config-space rewrite and restores driver state after
// a fixed settle wait. The original polls a PCI config-space command byte
// for a reset-complete bit; this module's kerneldriver.Driver has no
// config-space read primitive, so the poll is replaced by the fixed
// legacyPostResetWait (documented simplification, see DESIGN.md).
func BlackholeLegacy(devices []kerneldriver.Driver) error {
	for _, d := range devices {
		if err := d.Reset(kerneldriver.ConfigWrite); err != nil {
			return err
		}
	}

	time.Sleep(legacyPostResetWait)

	for _, d := range devices {
		if err := d.Reset(kerneldriver.RestoreState); err != nil {
			return err
		}
	}

	return nil
}

// WormholeLegacy runs the ARC-message warm reset sequence generation A
// boards used before the arch-agnostic reset ioctls existed: PCIe link
// reset, then for each chip an ARC_STATE3 message followed by a
// TRIGGER_RESET message (carrying an M3-specific argument when resetM3 is
// set), then config restore.
func WormholeLegacy(devices []kerneldriver.Driver, messengers []arc.Messenger, arch archimpl.Implementation, resetM3 bool) error {
	for _, d := range devices {
		if err := d.Reset(kerneldriver.ResetPcieLink); err != nil {
			return err
		}
	}

	state3, err := arch.ArcMsgCode(archimpl.MsgArcState3)
	if err != nil {
		return err
	}

	triggerReset, err := arch.ArcMsgCode(archimpl.MsgTriggerReset)
	if err != nil {
		return err
	}

	const defaultArg = 0xFFFF

	for _, m := range messengers {
		if _, err := m.SendMessage(state3, []uint16{defaultArg, defaultArg}, 5*time.Second); err != nil {
			return err
		}

		time.Sleep(30 * time.Millisecond)

		resetArgs := []uint16{defaultArg, defaultArg}
		if resetM3 {
			resetArgs = []uint16{3, defaultArg}
		}

		if _, err := m.SendMessage(triggerReset, resetArgs, 5*time.Second); err != nil {
			return err
		}
	}

	time.Sleep(legacyPostResetWait)

	for _, d := range devices {
		if err := d.Reset(kerneldriver.RestoreState); err != nil {
			return err
		}
	}

	return nil
}
