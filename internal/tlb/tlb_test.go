package tlb_test

import (
	"testing"

	"github.com/tenstorrent/tt-umd/internal/archimpl"
	"github.com/tenstorrent/tt-umd/internal/coretypes"
	"github.com/tenstorrent/tt-umd/internal/errs"
	"github.com/tenstorrent/tt-umd/internal/kerneldriver"
	"github.com/tenstorrent/tt-umd/internal/tlb"
)

// TestTlbExhaustion is end-to-end scenario 6 from spec.md §8: allocating
// every 2 MiB TLB generation B has should succeed, the next allocation
// should fail with Exhausted, and freeing one should let the next
// allocation through.
func TestTlbExhaustion(t *testing.T) {
	arch := archimpl.NewB()
	driver := kerneldriver.NewSimulated(arch)

	count, err := arch.TlbCount(archimpl.Size2MiB)
	if err != nil {
		t.Fatalf("TlbCount: %v", err)
	}

	handles := make([]*tlb.Handle, 0, count)

	for i := 0; i < count; i++ {
		h, err := tlb.New(driver, arch, archimpl.Size2MiB, coretypes.WriteCombine)
		if err != nil {
			t.Fatalf("allocate %d/%d: %v", i, count, err)
		}

		handles = append(handles, h)
	}

	if _, err := tlb.New(driver, arch, archimpl.Size2MiB, coretypes.WriteCombine); errs.Of(err) != errs.Exhausted {
		t.Fatalf("expected Exhausted allocating past pool capacity, got %v", err)
	}

	if err := handles[0].Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	if _, err := tlb.New(driver, arch, archimpl.Size2MiB, coretypes.WriteCombine); err != nil {
		t.Fatalf("allocate after release: %v", err)
	}
}

// TestWindowReadWriteRoundTrip exercises Configure + Window read/write
// against the simulated driver's chip model.
func TestWindowReadWriteRoundTrip(t *testing.T) {
	arch := archimpl.NewA()
	driver := kerneldriver.NewSimulated(arch)

	h, err := tlb.New(driver, arch, archimpl.Size1MiB, coretypes.WriteCombine)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cfg := archimpl.TlbConfig{LocalOffset: 0x1000, XEnd: 1, YEnd: 1, Noc: 0, Ordering: coretypes.Relaxed}
	if err := h.Configure(cfg); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	w := tlb.Open(h, coretypes.CoreCoord{X: 1, Y: 1, CoreType: coretypes.Tensix, CoordSystem: coretypes.NOC0}, 0)

	if err := w.Write32(0, 0xdeadbeef); err != nil {
		t.Fatalf("Write32: %v", err)
	}

	got, err := w.Read32(0)
	if err != nil {
		t.Fatalf("Read32: %v", err)
	}

	if got != 0xdeadbeef {
		t.Fatalf("read back %#x, want 0xdeadbeef", got)
	}
}

// TestWindowAlignmentEnforced checks the 4-byte alignment invariant on
// register accesses.
func TestWindowAlignmentEnforced(t *testing.T) {
	arch := archimpl.NewA()
	driver := kerneldriver.NewSimulated(arch)

	h, err := tlb.New(driver, arch, archimpl.Size1MiB, coretypes.WriteCombine)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := h.Configure(archimpl.TlbConfig{XEnd: 1, YEnd: 1}); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	w := tlb.Open(h, coretypes.CoreCoord{X: 1, Y: 1, CoreType: coretypes.Tensix, CoordSystem: coretypes.NOC0}, 0)

	if _, err := w.Read32(3); errs.Of(err) != errs.Alignment {
		t.Fatalf("expected Alignment error for unaligned offset, got %v", err)
	}
}

// TestWriteBlockAlignedSingleWordUnaligned covers generation A's RMW-at-edges
// rule when a write's start and end both fall inside the same 4-byte word
// (e.g. offset=1, len=2): only the leading edge's read-modify-write may fire,
// and it must leave every neighboring byte, including the one just past the
// written range, untouched.
func TestWriteBlockAlignedSingleWordUnaligned(t *testing.T) {
	arch := archimpl.NewA()
	driver := kerneldriver.NewSimulated(arch)

	h, err := tlb.New(driver, arch, archimpl.Size1MiB, coretypes.WriteCombine)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := h.Configure(archimpl.TlbConfig{XEnd: 1, YEnd: 1}); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	w := tlb.Open(h, coretypes.CoreCoord{X: 1, Y: 1, CoreType: coretypes.Tensix, CoordSystem: coretypes.NOC0}, 0)

	if err := w.Write32(0, 0xaaaaaaaa); err != nil {
		t.Fatalf("Write32(0): %v", err)
	}

	if err := w.WriteBlock(1, []byte{0x11, 0x22}); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}

	got, err := w.ReadBlock(0, 4)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}

	want := []byte{0xaa, 0x11, 0x22, 0xaa}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d: got %#x want %#x (full word %x)", i, got[i], want[i], got)
		}
	}
}

// TestWriteBlockReconfigureChunksAcrossWindows streams more data than fits
// in a single window and checks it lands contiguously in the chip model via
// a second read using the same chunking.
func TestWriteBlockReconfigureChunksAcrossWindows(t *testing.T) {
	arch := archimpl.NewB()
	driver := kerneldriver.NewSimulated(arch)

	h, err := tlb.New(driver, arch, archimpl.Size2MiB, coretypes.WriteCombine)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	w := tlb.Open(h, coretypes.CoreCoord{X: 2, Y: 2, CoreType: coretypes.Tensix, CoordSystem: coretypes.NOC0}, 0)

	base := archimpl.TlbConfig{XEnd: 2, YEnd: 2, Noc: 0, Ordering: coretypes.Relaxed}

	data := make([]byte, 1<<20+16)
	for i := range data {
		data[i] = byte(i)
	}

	if err := w.WriteBlockReconfigure(base, 0, data); err != nil {
		t.Fatalf("WriteBlockReconfigure: %v", err)
	}

	got, err := w.ReadBlockReconfigure(base, 0, len(data))
	if err != nil {
		t.Fatalf("ReadBlockReconfigure: %v", err)
	}

	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("byte %d: got %#x want %#x", i, got[i], data[i])
		}
	}
}
