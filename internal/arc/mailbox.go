package arc

import (
	"time"

	"github.com/tenstorrent/tt-umd/internal/archimpl"
	"github.com/tenstorrent/tt-umd/internal/coretypes"
	"github.com/tenstorrent/tt-umd/internal/errs"
)

// RegisterWindow is the minimal tlb.Window surface the protocols use.
type RegisterWindow interface {
	Read32(offset uint64) (uint32, error)
	Write32(offset uint64, value uint32) error
}

// WindowOpener opens a register window at an absolute ARC-local address. A
// plain func type rather than a named interface wrapping tlbmgr.Manager
// directly, so arc never imports tlbmgr (tlbmgr already imports tlb, and
// ttdevice will import both arc and tlbmgr; keeping arc's dependency
// surface to tlb's method shapes only avoids a three-way import cycle).
// Callers (ttdevice) pass a closure wrapping their *tlbmgr.Manager.
type WindowOpener func(name archimpl.StaticTlb, core coretypes.CoreCoord, addr uint64, ordering coretypes.Ordering) (RegisterWindow, error)

// Flusher lets the messenger flush pending non-MMIO (Ethernet-tunnelled)
// traffic before triggering a firmware interrupt, per spec.md §4.E step 3.
// Local chips have nothing to flush; remote chips pass their
// RemoteCommunication's flush method here.
type Flusher interface {
	WaitForNonMmioFlush() error
}

type noopFlusher struct{}

func (noopFlusher) WaitForNonMmioFlush() error { return nil }

// NoopFlusher is the Flusher used by local chips, which have no
// Ethernet-tunnel traffic to drain before an ARC message.
var NoopFlusher Flusher = noopFlusher{}

// Mailbox implements generation A's scratch-register mailbox protocol.
type Mailbox struct {
	windows WindowOpener
	arc     coretypes.CoreCoord
	layout  archimpl.ArcScratchLayout
	prefix  uint32
	flusher Flusher
	pollInterval time.Duration
}

// NewMailbox builds a Mailbox messenger against the ARC core at (x, y) in
// NOC0, using arch's scratch-register layout and message-code prefix.
func NewMailbox(windows WindowOpener, arch archimpl.Implementation, arcX, arcY int, flusher Flusher) *Mailbox {
	prefix, _ := arch.ArcMsgCommonPrefix()

	if flusher == nil {
		flusher = NoopFlusher
	}

	return &Mailbox{
		windows:      windows,
		arc:          coordFor(arcX, arcY),
		layout:       arch.ArcScratchLayout(),
		prefix:       prefix,
		flusher:      flusher,
		pollInterval: 100 * time.Microsecond,
	}
}

func (m *Mailbox) reg(addr uint64) (RegisterWindow, error) {
	return m.windows(archimpl.RegTLB, m.arc, addr, coretypes.Strict)
}

// SendMessage implements spec.md §4.E's generation-A mailbox protocol.
func (m *Mailbox) SendMessage(code uint32, args []uint16, timeout time.Duration) (Response, error) {
	if code&0xff00 != m.prefix {
		return Response{}, errs.New(errs.ProtocolError, "arc.Mailbox.SendMessage", "message code missing common prefix")
	}

	if err := validateArgs(args); err != nil {
		return Response{}, err
	}

	var packed uint32
	if len(args) > 0 {
		packed |= uint32(args[0])
	}

	if len(args) > 1 {
		packed |= uint32(args[1]) << 16
	}

	scratch0, err := m.reg(m.layout.Scratch0)
	if err != nil {
		return Response{}, err
	}

	status, err := m.reg(m.layout.StatusScratch)
	if err != nil {
		return Response{}, err
	}

	misc, err := m.reg(m.layout.MiscControl)
	if err != nil {
		return Response{}, err
	}

	if err := scratch0.Write32(0, packed); err != nil {
		return Response{}, err
	}

	if err := status.Write32(0, code); err != nil {
		return Response{}, err
	}

	if err := m.flusher.WaitForNonMmioFlush(); err != nil {
		return Response{}, err
	}

	ctrl, err := misc.Read32(0)
	if err != nil {
		return Response{}, err
	}

	if ctrl&(1<<16) != 0 {
		return Response{}, errs.New(errs.Busy, "arc.Mailbox.SendMessage", "firmware interrupt bit already set")
	}

	if err := misc.Write32(0, ctrl|(1<<16)); err != nil {
		return Response{}, err
	}

	deadline := time.Now().Add(timeout)

	var statusWord uint32

	waitErr := pollUntil(deadline, m.pollInterval, func() (bool, error) {
		v, err := status.Read32(0)
		if err != nil {
			return false, err
		}

		if v == hangSentinel {
			return false, errs.New(errs.HardwareHung, "arc.Mailbox.SendMessage", "status scratch reads all-ones")
		}

		statusWord = v

		return v&0xffff == code&0xff, nil
	})
	if waitErr != nil {
		return Response{}, waitErr
	}

	retval, err := scratch0.Read32(0)
	if err != nil {
		return Response{}, err
	}

	return Response{
		ExitCode: (statusWord >> 16) & 0xffff,
		Values:   [3]uint32{retval, 0, 0},
	}, nil
}
