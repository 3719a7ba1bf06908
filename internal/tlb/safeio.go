package tlb

import (
	"runtime/debug"

	"github.com/tenstorrent/tt-umd/internal/errs"
)

// SafeRead32 and SafeWrite32 are the signal-safe counterparts to Read32 and
// Write32: a guarded MMIO access against a window whose backing core may be
// in reset or otherwise unresponsive, converting a PCI bus fault into
// errs.BusError instead of crashing the process.
//
// spec.md §4.C/§5/§9 describe this as a setjmp/longjmp pair around the
// access with a SIGBUS handler installed for its duration. Go has neither
// primitive; runtime/debug.SetPanicOnFault plus a deferred recover is the
// idiomatic replacement, turning the fault into an ordinary Go panic that
// this function's own recover converts into a typed error. The guard is
// scoped to exactly the call below: SetPanicOnFault is turned back off
// before returning, so a fault anywhere else in the process still crashes
// it, matching the "process crashes outside the guarded scope" semantics
// the original longjmp scope had.
func (w *Window) SafeRead32(offset uint64) (value uint32, err error) {
	if w.rw != nil {
		// The simulated driver never faults; go through the plain path.
		return w.Read32(offset)
	}

	debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(false)

	defer func() {
		if r := recover(); r != nil {
			value, err = 0, errs.New(errs.BusError, "tlb.Window.SafeRead32", "bus fault reading mmio window")
		}
	}()

	return w.Read32(offset)
}

// SafeWrite32 is SafeRead32's write counterpart.
func (w *Window) SafeWrite32(offset uint64, v uint32) (err error) {
	if w.rw != nil {
		return w.Write32(offset, v)
	}

	debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(false)

	defer func() {
		if r := recover(); r != nil {
			err = errs.New(errs.BusError, "tlb.Window.SafeWrite32", "bus fault writing mmio window")
		}
	}()

	return w.Write32(offset, v)
}

// SafeReadBlock and SafeWriteBlock extend the same guard to bulk transfers,
// for callers that must keep running after a chip wedges mid-access rather
// than crash.
func (w *Window) SafeReadBlock(offset uint64, size int) (buf []byte, err error) {
	if w.rw != nil {
		return w.ReadBlock(offset, size)
	}

	debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(false)

	defer func() {
		if r := recover(); r != nil {
			buf, err = nil, errs.New(errs.BusError, "tlb.Window.SafeReadBlock", "bus fault reading mmio window")
		}
	}()

	return w.ReadBlock(offset, size)
}

func (w *Window) SafeWriteBlock(offset uint64, data []byte) (err error) {
	if w.rw != nil {
		return w.WriteBlock(offset, data)
	}

	debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(false)

	defer func() {
		if r := recover(); r != nil {
			err = errs.New(errs.BusError, "tlb.Window.SafeWriteBlock", "bus fault writing mmio window")
		}
	}()

	return w.WriteBlock(offset, data)
}
