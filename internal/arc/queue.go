package arc

import (
	"time"

	"github.com/tenstorrent/tt-umd/internal/archimpl"
	"github.com/tenstorrent/tt-umd/internal/coretypes"
	"github.com/tenstorrent/tt-umd/internal/errs"
)

// Fixed layout of the generation-B ring buffer control block: a pointer to
// it is read out of SCRATCH_RAM_11 once at discovery time, then the header
// and entries are addressed relative to that base for the life of the
// chip.
const (
	queueHeaderWords     = 4 // request_wptr, request_rptr, response_wptr, response_rptr
	queueEntryWords      = 8
	queueEntriesPerQueue = 16 // fixed N; spec.md leaves the exact count firmware-defined, this is a plausible default
)

// Queue implements generation B's scratch-memory ring-buffer protocol.
type Queue struct {
	windows WindowOpener
	arc     coretypes.CoreCoord
	layout  archimpl.ArcScratchLayout

	pollInterval time.Duration

	discovered bool
	base       uint64
	entries    int
}

// NewQueue builds a Queue messenger against the ARC core at (x, y) in NOC0.
func NewQueue(windows WindowOpener, arch archimpl.Implementation, arcX, arcY int) *Queue {
	return &Queue{
		windows:      windows,
		arc:          coordFor(arcX, arcY),
		layout:       arch.ArcScratchLayout(),
		pollInterval: 100 * time.Microsecond,
		entries:      queueEntriesPerQueue,
	}
}

func (q *Queue) reg(addr uint64) (RegisterWindow, error) {
	return q.windows(archimpl.RegTLB, q.arc, addr, coretypes.Strict)
}

// discover reads the queue control-block pointer out of SCRATCH_RAM_11 the
// first time it's needed; firmware populates it once at boot and it never
// moves afterward.
func (q *Queue) discover() error {
	if q.discovered {
		return nil
	}

	ptrReg, err := q.reg(q.layout.ScratchRam11)
	if err != nil {
		return err
	}

	base, err := ptrReg.Read32(0)
	if err != nil {
		return err
	}

	q.base = uint64(base)
	q.discovered = true

	return nil
}

func (q *Queue) headerWord(index int) (RegisterWindow, uint64, error) {
	w, err := q.reg(q.base)
	return w, uint64(index * 4), err
}

func (q *Queue) entryWord(slot, word int) (RegisterWindow, uint64, error) {
	addr := q.base + uint64(queueHeaderWords*4) + uint64(slot*queueEntryWords*4) + uint64(word*4)

	w, err := q.reg(addr)

	return w, 0, err
}

const (
	hdrRequestWptr = iota
	hdrRequestRptr
	hdrResponseWptr
	hdrResponseRptr
)

// SendMessage implements spec.md §4.E's generation-B queue protocol.
func (q *Queue) SendMessage(code uint32, args []uint16, timeout time.Duration) (Response, error) {
	if err := q.discover(); err != nil {
		return Response{}, err
	}

	deadline := time.Now().Add(timeout)
	n := uint32(q.entries)

	reqWptrW, reqWptrOff, err := q.headerWord(hdrRequestWptr)
	if err != nil {
		return Response{}, err
	}

	reqRptrW, reqRptrOff, err := q.headerWord(hdrRequestRptr)
	if err != nil {
		return Response{}, err
	}

	var wptr, rptr uint32

	if err := pollUntil(deadline, q.pollInterval, func() (bool, error) {
		var err error

		wptr, err = reqWptrW.Read32(reqWptrOff)
		if err != nil {
			return false, err
		}

		rptr, err = reqRptrW.Read32(reqRptrOff)
		if err != nil {
			return false, err
		}

		diff := (wptr + 2*n - rptr) % (2 * n)

		return diff != n, nil
	}); err != nil {
		return Response{}, err
	}

	slot := int(wptr % n)

	entry := make([]uint32, queueEntryWords)
	entry[0] = code

	for i, a := range args {
		if i+1 >= queueEntryWords {
			break
		}

		entry[i+1] = uint32(a)
	}

	for w := 0; w < queueEntryWords; w++ {
		reg, off, err := q.entryWord(slot, w)
		if err != nil {
			return Response{}, err
		}

		if err := reg.Write32(off, entry[w]); err != nil {
			return Response{}, err
		}
	}

	if err := reqWptrW.Write32(reqWptrOff, (wptr+1)%(2*n)); err != nil {
		return Response{}, err
	}

	fwInt, err := q.reg(q.layout.FwIntAddr)
	if err != nil {
		return Response{}, err
	}

	if err := fwInt.Write32(0, q.layout.FwIntVal); err != nil {
		return Response{}, err
	}

	respWptrW, respWptrOff, err := q.headerWord(hdrResponseWptr)
	if err != nil {
		return Response{}, err
	}

	respRptrW, respRptrOff, err := q.headerWord(hdrResponseRptr)
	if err != nil {
		return Response{}, err
	}

	var respRptr uint32

	if err := pollUntil(deadline, q.pollInterval, func() (bool, error) {
		respWptr, err := respWptrW.Read32(respWptrOff)
		if err != nil {
			return false, err
		}

		respRptr, err = respRptrW.Read32(respRptrOff)
		if err != nil {
			return false, err
		}

		return respWptr != respRptr, nil
	}); err != nil {
		return Response{}, err
	}

	respSlot := int(respRptr % n)

	response := make([]uint32, queueEntryWords)

	for w := 0; w < queueEntryWords; w++ {
		reg, off, err := q.entryWord(respSlot, w)
		if err != nil {
			return Response{}, err
		}

		v, err := reg.Read32(off)
		if err != nil {
			return Response{}, err
		}

		response[w] = v
	}

	if err := respRptrW.Write32(respRptrOff, (respRptr+1)%(2*n)); err != nil {
		return Response{}, err
	}

	status := response[0] & 0xff

	const okLimit = 240

	switch {
	case status < okLimit:
		return Response{ExitCode: response[0] >> 16, Values: [3]uint32{response[1], response[2], response[3]}}, nil
	case status == 0xff:
		return Response{}, errs.New(errs.UnknownMessage, "arc.Queue.SendMessage", "firmware returned unknown-message status")
	default:
		return Response{}, errs.New(errs.ProtocolError, "arc.Queue.SendMessage", "malformed arc queue response")
	}
}
