// Package arc implements the two generation-specific ARC messenger
// protocols: generation A's scratch-register mailbox and generation B's
// scratch-memory ring-buffer queue (spec.md §4.E).
package arc

import (
	"time"

	"github.com/tenstorrent/tt-umd/internal/coretypes"
	"github.com/tenstorrent/tt-umd/internal/errs"
)

const hangSentinel = 0xFFFFFFFF

// Response is what a successful SendMessage returns: the firmware's
// 16-bit exit code and whatever return values the protocol carried back.
type Response struct {
	ExitCode uint32
	Values   [3]uint32
}

// Messenger is the protocol-agnostic request/response contract the chip and
// ttdevice layers call through; callers never see which generation's wire
// format is underneath.
type Messenger interface {
	SendMessage(code uint32, args []uint16, timeout time.Duration) (Response, error)
}

// pollUntil busy-waits cond, sleeping briefly between checks, until it
// returns true or deadline passes; it never spins a tight CPU loop the way
// a raw `for {}` would.
func pollUntil(deadline time.Time, interval time.Duration, cond func() (bool, error)) error {
	for {
		ok, err := cond()
		if err != nil {
			return err
		}

		if ok {
			return nil
		}

		if time.Now().After(deadline) {
			return errs.New(errs.Timeout, "arc.pollUntil", "deadline exceeded waiting for arc response")
		}

		time.Sleep(interval)
	}
}

func validateArgs(args []uint16) error {
	if len(args) > 2 {
		return errs.New(errs.Unsupported, "arc.validateArgs", "mailbox protocol accepts at most 2 args")
	}

	return nil
}

// coordFor is a tiny helper the two protocol implementations share: both
// need the ARC core's coordinate in the chip's routing system to address
// register windows through the TLB manager.
func coordFor(x, y int) coretypes.CoreCoord {
	return coretypes.CoreCoord{X: x, Y: y, CoreType: coretypes.ARC, CoordSystem: coretypes.NOC0}
}
