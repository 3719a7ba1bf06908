package arc_test

import (
	"sync"
	"testing"
	"time"

	"github.com/tenstorrent/tt-umd/internal/archimpl"
	"github.com/tenstorrent/tt-umd/internal/arc"
	"github.com/tenstorrent/tt-umd/internal/coretypes"
	"github.com/tenstorrent/tt-umd/internal/errs"
)

// fakeMemory is a byte-addressed register space keyed by absolute address,
// standing in for the chip's ARC scratch registers without going through
// the tlb/tlbmgr layers at all.
type fakeMemory struct {
	mu   sync.Mutex
	regs map[uint64]uint32
}

func newFakeMemory() *fakeMemory { return &fakeMemory{regs: make(map[uint64]uint32)} }

func (m *fakeMemory) opener() arc.WindowOpener {
	return func(name archimpl.StaticTlb, core coretypes.CoreCoord, addr uint64, ordering coretypes.Ordering) (arc.RegisterWindow, error) {
		return &fakeWindow{mem: m, base: addr}, nil
	}
}

type fakeWindow struct {
	mem  *fakeMemory
	base uint64
}

func (w *fakeWindow) Read32(offset uint64) (uint32, error) {
	w.mem.mu.Lock()
	defer w.mem.mu.Unlock()

	return w.mem.regs[w.base+offset], nil
}

func (w *fakeWindow) Write32(offset uint64, v uint32) error {
	w.mem.mu.Lock()
	defer w.mem.mu.Unlock()

	w.mem.regs[w.base+offset] = v

	return nil
}

// TestMailboxSendMessageHappyPath drives generation A's protocol with a
// goroutine standing in for firmware: it waits for the interrupt bit, then
// writes the expected status/return words.
func TestMailboxSendMessageHappyPath(t *testing.T) {
	arch := archimpl.NewA()
	mem := newFakeMemory()
	layout := arch.ArcScratchLayout()

	msg, err := arch.ArcMsgCode(archimpl.MsgGetAiclk)
	if err != nil {
		t.Fatalf("ArcMsgCode: %v", err)
	}

	done := make(chan struct{})

	go func() {
		defer close(done)

		deadline := time.Now().Add(time.Second)

		for time.Now().Before(deadline) {
			mem.mu.Lock()
			ctrl := mem.regs[layout.MiscControl]
			mem.mu.Unlock()

			if ctrl&(1<<16) != 0 {
				mem.mu.Lock()
				mem.regs[layout.Scratch0] = 777
				mem.regs[layout.StatusScratch] = (42 << 16) | uint32(msg&0xff)
				mem.mu.Unlock()

				return
			}

			time.Sleep(time.Millisecond)
		}
	}()

	mb := arc.NewMailbox(mem.opener(), arch, 0, 0, nil)

	resp, err := mb.SendMessage(msg, nil, 2*time.Second)
	<-done

	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if resp.ExitCode != 42 {
		t.Fatalf("exit code = %d, want 42", resp.ExitCode)
	}

	if resp.Values[0] != 777 {
		t.Fatalf("return value = %d, want 777", resp.Values[0])
	}
}

func TestMailboxRejectsBadPrefix(t *testing.T) {
	arch := archimpl.NewA()
	mem := newFakeMemory()

	mb := arc.NewMailbox(mem.opener(), arch, 0, 0, nil)

	if _, err := mb.SendMessage(0x1234, nil, time.Second); errs.Of(err) != errs.ProtocolError {
		t.Fatalf("expected ProtocolError for bad prefix, got %v", err)
	}
}

func TestMailboxDetectsHang(t *testing.T) {
	arch := archimpl.NewA()
	mem := newFakeMemory()
	layout := arch.ArcScratchLayout()

	msg, _ := arch.ArcMsgCode(archimpl.MsgNop)

	done := make(chan struct{})

	go func() {
		defer close(done)

		deadline := time.Now().Add(time.Second)

		for time.Now().Before(deadline) {
			mem.mu.Lock()
			ctrl := mem.regs[layout.MiscControl]
			if ctrl&(1<<16) != 0 {
				mem.regs[layout.StatusScratch] = 0xFFFFFFFF
			}
			mem.mu.Unlock()

			if ctrl&(1<<16) != 0 {
				return
			}

			time.Sleep(time.Millisecond)
		}
	}()

	mb := arc.NewMailbox(mem.opener(), arch, 0, 0, nil)

	_, err := mb.SendMessage(msg, nil, 200*time.Millisecond)
	<-done

	if errs.Of(err) != errs.HardwareHung {
		t.Fatalf("expected HardwareHung, got %v", err)
	}
}

// TestQueueSendMessageHappyPath drives generation B's ring-buffer protocol
// with a fake firmware goroutine that answers the first request it sees.
func TestQueueSendMessageHappyPath(t *testing.T) {
	arch := archimpl.NewB()
	mem := newFakeMemory()
	layout := arch.ArcScratchLayout()

	const base = 0x1000

	mem.mu.Lock()
	mem.regs[layout.ScratchRam11] = base
	mem.mu.Unlock()

	msg, err := arch.ArcMsgCode(archimpl.MsgTest)
	if err != nil {
		t.Fatalf("ArcMsgCode: %v", err)
	}

	done := make(chan struct{})

	go func() {
		defer close(done)

		deadline := time.Now().Add(time.Second)

		for time.Now().Before(deadline) {
			mem.mu.Lock()
			reqWptr := mem.regs[base]
			reqRptr := mem.regs[base+4]
			mem.mu.Unlock()

			if reqWptr != reqRptr {
				mem.mu.Lock()
				entryAddr := uint64(base) + 16 // header is 4 words
				msgType := mem.regs[entryAddr]
				_ = msgType
				mem.regs[entryAddr] = mem.regs[entryAddr] // no-op touch

				mem.regs[base+16] = (7 << 16) | 1 // status=1 (< OK_LIMIT), exit code 7
				mem.regs[base+4] = reqRptr + 1
				mem.regs[base+8] = mem.regs[base+8] + 1 // response_wptr advances

				mem.mu.Unlock()

				return
			}

			time.Sleep(time.Millisecond)
		}
	}()

	q := arc.NewQueue(mem.opener(), arch, 0, 0)

	resp, err := q.SendMessage(msg, []uint16{1, 2, 3}, 2*time.Second)
	<-done

	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if resp.ExitCode != 7 {
		t.Fatalf("exit code = %d, want 7", resp.ExitCode)
	}
}
