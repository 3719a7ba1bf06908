package tlb

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/tenstorrent/tt-umd/internal/coretypes"
	"github.com/tenstorrent/tt-umd/internal/errs"
)

// windowRW is the optional capability a kernel driver can satisfy to service
// window reads/writes itself instead of the plain mmap'd byte slice being
// dereferenced directly. SimulatedDriver implements it so tests can run
// without touching unsafe.Pointer at all; SiliconDriver does not, so its
// windows go through the slice.
type windowRW interface {
	ReadWindow(id int, offset uint64, buf []byte)
	WriteWindow(id int, offset uint64, buf []byte)
}

// Window is a TLB handle paired with the residue (offset_from_aligned_addr)
// left over when the requested on-chip address wasn't aligned to the TLB's
// size class, per spec.md §4.C. All accesses are expressed relative to the
// unaligned address the caller originally asked for, so callers never see
// the alignment padding.
type Window struct {
	h       *Handle
	residue uint64
	core    coretypes.CoreCoord
	rw      windowRW
}

// openWindow is the real constructor used by higher layers (tlbmgr): it
// takes an already-allocated, already-configured Handle and wraps it with
// the residue/core bookkeeping a Window needs for bounds-checked accesses.
func openWindow(h *Handle, rw windowRW, core coretypes.CoreCoord, residue uint64) *Window {
	return &Window{h: h, residue: residue, core: core, rw: rw}
}

// Open wraps an already-configured Handle into a Window. residue is the
// number of bytes between the TLB's aligned base and the address the caller
// actually wanted to reach; every offset the caller passes in is relative to
// that unaligned address, so Open folds residue in once here.
func Open(h *Handle, core coretypes.CoreCoord, residue uint64) *Window {
	var rw windowRW
	if r, ok := h.driver.(windowRW); ok {
		rw = r
	}

	return openWindow(h, rw, core, residue)
}

func (w *Window) usableSize() uint64 {
	return uint64(len(w.h.base)) - w.residue
}

// checkBounds enforces spec.md §4.C's "offset+size <= handle.size - residue"
// invariant.
func (w *Window) checkBounds(offset uint64, size int) error {
	if size < 0 || offset+uint64(size) > w.usableSize() {
		return errs.New(errs.OutOfBounds, "tlb.Window", "access exceeds usable window size")
	}

	return nil
}

func (w *Window) absOffset(offset uint64) uint64 { return offset + w.residue }

func (w *Window) read(offset uint64, buf []byte) {
	abs := w.absOffset(offset)

	if w.rw != nil {
		w.rw.ReadWindow(w.h.id, abs, buf)
		return
	}

	copy(buf, w.h.base[abs:abs+uint64(len(buf))])
}

func (w *Window) write(offset uint64, buf []byte) {
	abs := w.absOffset(offset)

	if w.rw != nil {
		w.rw.WriteWindow(w.h.id, abs, buf)
		return
	}

	copy(w.h.base[abs:abs+uint64(len(buf))], buf)
}

// Read32 performs a single 4-byte load at offset, which must be 4-byte
// aligned (spec.md §4.C register-access invariant).
func (w *Window) Read32(offset uint64) (uint32, error) {
	if offset%4 != 0 {
		return 0, errs.New(errs.Alignment, "tlb.Window.Read32", "offset not 4-byte aligned")
	}

	if err := w.checkBounds(offset, 4); err != nil {
		return 0, err
	}

	memoryFence()

	var buf [4]byte
	w.read(offset, buf[:])

	return binary.LittleEndian.Uint32(buf[:]), nil
}

// Write32 performs a single 4-byte store at offset, 4-byte aligned.
func (w *Window) Write32(offset uint64, value uint32) error {
	if offset%4 != 0 {
		return errs.New(errs.Alignment, "tlb.Window.Write32", "offset not 4-byte aligned")
	}

	if err := w.checkBounds(offset, 4); err != nil {
		return err
	}

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	w.write(offset, buf[:])

	memoryFence()

	return nil
}

// ReadRegister and WriteRegister are Read32/Write32 with the terminology
// spec.md §4.C uses for control/status register access (as opposed to bulk
// memory access); the alignment and fencing rules are identical.
func (w *Window) ReadRegister(offset uint64) (uint32, error)      { return w.Read32(offset) }
func (w *Window) WriteRegister(offset uint64, value uint32) error { return w.Write32(offset, value) }

// ReadBlock copies size bytes starting at offset into a freshly allocated
// slice. On generation A, device memory access below a 4-byte granularity at
// either end of the range requires a read-modify-write of the boundary word;
// ReadBlock itself never needs RMW (reads are never destructive), so it reads
// the range directly on both generations.
func (w *Window) ReadBlock(offset uint64, size int) ([]byte, error) {
	if err := w.checkBounds(offset, size); err != nil {
		return nil, err
	}

	buf := make([]byte, size)

	memoryFence()
	w.read(offset, buf)

	return buf, nil
}

// WriteBlock copies data into the window at offset. Generation A requires
// every device-memory access to be 4-byte aligned; a misaligned leading or
// trailing byte range is folded into a read-modify-write of that boundary
// word so the caller never has to special-case it. Generation B has no such
// restriction and writes the misaligned ends directly.
func (w *Window) WriteBlock(offset uint64, data []byte) error {
	if err := w.checkBounds(offset, len(data)); err != nil {
		return err
	}

	if w.h.arch.Arch() != coretypes.ArchA {
		w.write(offset, data)
		memoryFence()

		return nil
	}

	return w.writeBlockAligned(offset, data)
}

// writeBlockAligned implements generation A's RMW-at-the-edges rule: the
// aligned middle of the range is written directly, and any partial leading
// or trailing word is read, merged with the caller's bytes, and written
// back as a whole 4-byte word.
func (w *Window) writeBlockAligned(offset uint64, data []byte) error {
	start := offset
	end := offset + uint64(len(data))

	alignedStart := (start + 3) &^ 3
	alignedEnd := end &^ 3

	if alignedStart > end {
		alignedStart = end
	}

	if alignedEnd < start {
		alignedEnd = start
	}

	if start != alignedStart {
		if err := w.rmwEdge(start&^3, start-(start&^3), data[:alignedStart-start]); err != nil {
			return err
		}
	}

	if alignedEnd > alignedStart {
		w.write(alignedStart, data[alignedStart-start:alignedEnd-start])
	}

	// When the whole range falls inside one word, alignedStart lands at end
	// and alignedEnd at start (both clamped above), crossing over each
	// other: the leading branch already wrote the entire range, so the
	// trailing edge must not fire a second, misaligned RMW over it.
	if end != alignedEnd && alignedEnd >= alignedStart {
		if err := w.rmwEdge(alignedEnd, 0, data[alignedEnd-start:]); err != nil {
			return err
		}
	}

	memoryFence()

	return nil
}

// rmwEdge reads the 4-byte word at wordOffset, overwrites the bytes starting
// at skip within it with overlay, and writes the word back.
func (w *Window) rmwEdge(wordOffset, skip uint64, overlay []byte) error {
	var word [4]byte

	w.read(wordOffset, word[:])
	copy(word[skip:], overlay)
	w.write(wordOffset, word[:])

	return nil
}

// memoryFence forces a full compiler and (on amd64/arm64 with
// runtime.GOARCH assumptions the teacher's machine package already makes)
// hardware store/load barrier around MMIO accesses so register writes are
// observed by the device in program order, mirroring spec.md §5's volatile
// word-by-word access rule. Go's memory model has no user-visible fence
// primitive, so this uses the same atomic-store trick unsafe MMIO code
// elsewhere in the ecosystem relies on: a no-op atomic operation that the
// compiler cannot reorder across.
func memoryFence() {
	var x uint32
	atomic.AddUint32(&x, 0)
}
