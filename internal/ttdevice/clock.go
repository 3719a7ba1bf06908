package ttdevice

import (
	"time"

	"github.com/tenstorrent/tt-umd/internal/archimpl"
	"github.com/tenstorrent/tt-umd/internal/coretypes"
	"github.com/tenstorrent/tt-umd/internal/errs"
)

// riscResetRegOffset is the per-tensix-core soft-reset register's offset
// within the core's own register space (supplemented, spec.md §6 names the
// bit layout but not the address).
const riscResetRegOffset = 0xFFB121B0

// GetClock returns AICLK in MHz, read on both generations through the
// MsgGetAiclk ARC message (the exit code carries the value). ttdevice has no
// telemetry reader, so generation B's firmware telemetry entry is not read.
func (d *TTDevice) GetClock() (int, error) {
	msg, err := d.arch.ArcMsgCode(archimpl.MsgGetAiclk)
	if err != nil {
		return 0, err
	}

	resp, err := d.ArcMsg(msg, nil, 2*time.Second)
	if err != nil {
		return 0, err
	}

	mhz := int(resp.ExitCode)

	if d.telemetry != nil {
		d.telemetry.ObserveAiclk(mhz)
	}

	return mhz, nil
}

func (d *TTDevice) GetMinClockFreq() int { return d.arch.MinClockMHz() }
func (d *TTDevice) GetMaxClockFreq() int { return d.arch.MaxClockMHz() }

// WaitForAiclkValue polls GetClock until it reaches the boundary frequency
// for the requested power state or timeout elapses. A timeout here is
// advisory: the caller gets the last observed clock and no error, since
// failing to settle at the target clock does not by itself mean the chip
// is unusable.
func (d *TTDevice) WaitForAiclkValue(state coretypes.PowerState, timeout time.Duration) (int, error) {
	target := d.arch.MinClockMHz()
	if state == coretypes.PowerBusy {
		target = d.arch.MaxClockMHz()
	}

	deadline := time.Now().Add(timeout)

	var last int

	for {
		mhz, err := d.GetClock()
		if err != nil {
			return last, err
		}

		last = mhz

		if mhz == target {
			return last, nil
		}

		if time.Now().After(deadline) {
			return last, nil
		}

		time.Sleep(5 * time.Millisecond)
	}
}

// riscResetAddr returns the per-core soft-reset register address, which
// lives in the core's own register space regardless of generation.
func riscResetAddr() uint64 { return riscResetRegOffset }

// SetRiscResetState writes the full 32-bit per-RISC reset mask for core.
func (d *TTDevice) SetRiscResetState(core coretypes.CoreCoord, mask coretypes.RiscCore) error {
	return d.WriteRegister(core, riscResetAddr(), uint32(mask))
}

// GetRiscResetState reads the mask back.
func (d *TTDevice) GetRiscResetState(core coretypes.CoreCoord) (coretypes.RiscCore, error) {
	v, err := d.ReadRegister(core, riscResetAddr())
	return coretypes.RiscCore(v), err
}

// AssertRiscReset sets the bits in which without disturbing any other bit
// already set in the register (read-modify-write).
func (d *TTDevice) AssertRiscReset(core coretypes.CoreCoord, which coretypes.RiscCore) error {
	cur, err := d.GetRiscResetState(core)
	if err != nil {
		return err
	}

	return d.SetRiscResetState(core, cur|which)
}

// DeassertRiscReset clears the bits in which, optionally leaving the
// staggered-start bit set so the cores released this call come up offset
// from any already running.
func (d *TTDevice) DeassertRiscReset(core coretypes.CoreCoord, which coretypes.RiscCore, staggered bool) error {
	cur, err := d.GetRiscResetState(core)
	if err != nil {
		return err
	}

	next := cur &^ which
	if staggered {
		next |= coretypes.RiscStaggeredStart
	}

	return d.SetRiscResetState(core, next)
}

// Well-known ARC core start status sentinels (original_source's
// arc_messenger status words, spec.md §4.F names the categories only).
const (
	arcStatusNoAccess        = 0xFFFFFFFF
	arcStatusWatchdogTrigger = 0xDEAD0000
	arcStatusInitDone        = 0x00000001
	arcStatusQueued          = 0x00000002
	arcStatusHandling        = 0x00000003
)

// WaitArcCoreStart polls the ARC scratch-status register until it reports
// init-done, a terminal failure sentinel, or timeout. On timeout it returns
// an ErrorKind::Timeout error; whether that is fatal is left to the caller.
func (d *TTDevice) WaitArcCoreStart(timeout time.Duration) error {
	layout := d.arch.ArcScratchLayout()
	deadline := time.Now().Add(timeout)

	for {
		v, err := d.ReadFromArcApb(layout.StatusScratch)
		if err != nil {
			return err
		}

		switch v {
		case arcStatusNoAccess:
			return errs.New(errs.HardwareHung, "ttdevice.WaitArcCoreStart", "arc core reports no-access")
		case arcStatusWatchdogTrigger:
			return errs.New(errs.HardwareHung, "ttdevice.WaitArcCoreStart", "arc watchdog triggered")
		case arcStatusInitDone:
			return nil
		case arcStatusQueued, arcStatusHandling:
			// still coming up, keep polling
		}

		if time.Now().After(deadline) {
			return errs.New(errs.Timeout, "ttdevice.WaitArcCoreStart", "arc core did not report init-done")
		}

		time.Sleep(5 * time.Millisecond)
	}
}

// ethTrainingStatusAddr is the per-Ethernet-core training status word's
// address within the core's own register space.
const ethTrainingStatusAddr = 0x1EC0

const ethTrainingComplete = 0x00000001

// WaitEthCoreTraining polls an Ethernet core's training status word. On
// timeout it always returns ErrorKind::Timeout, whatever the board; any
// non-fatal handling of flaky boards is left to the caller.
func (d *TTDevice) WaitEthCoreTraining(ethCore coretypes.CoreCoord, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		v, err := d.ReadRegister(ethCore, ethTrainingStatusAddr)
		if err != nil {
			return err
		}

		if v == ethTrainingComplete {
			return nil
		}

		if time.Now().After(deadline) {
			return errs.New(errs.Timeout, "ttdevice.WaitEthCoreTraining", "ethernet core did not finish training")
		}

		time.Sleep(5 * time.Millisecond)
	}
}

// dramTrainingStatusAddr is the per-DRAM-channel training status word,
// read via the channel's first NOC port core.
const dramTrainingStatusAddr = 0x2EC0

const dramTrainingComplete = 0x00000001

// WaitDramChannelTraining polls one DRAM channel's training status.
func (d *TTDevice) WaitDramChannelTraining(channelCore coretypes.CoreCoord, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		v, err := d.ReadRegister(channelCore, dramTrainingStatusAddr)
		if err != nil {
			return err
		}

		if v == dramTrainingComplete {
			return nil
		}

		if time.Now().After(deadline) {
			return errs.New(errs.Timeout, "ttdevice.WaitDramChannelTraining", "dram channel did not finish training")
		}

		time.Sleep(5 * time.Millisecond)
	}
}
