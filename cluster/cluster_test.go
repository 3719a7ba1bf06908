package cluster_test

import (
	"testing"
	"time"

	cd "github.com/tenstorrent/tt-umd/clusterdescriptor"
	"github.com/tenstorrent/tt-umd/cluster"
	"github.com/tenstorrent/tt-umd/internal/archimpl"
	"github.com/tenstorrent/tt-umd/internal/arc"
	"github.com/tenstorrent/tt-umd/internal/chip"
	"github.com/tenstorrent/tt-umd/internal/coord"
	"github.com/tenstorrent/tt-umd/internal/coretypes"
	"github.com/tenstorrent/tt-umd/internal/kerneldriver"
	"github.com/tenstorrent/tt-umd/internal/lockmgr"
	"github.com/tenstorrent/tt-umd/internal/tlbmgr"
	"github.com/tenstorrent/tt-umd/internal/ttdevice"
)

type fakeMessenger struct{ exitCode uint32 }

func (m *fakeMessenger) SendMessage(code uint32, args []uint16, timeout time.Duration) (arc.Response, error) {
	return arc.Response{ExitCode: m.exitCode}, nil
}

func newTestChip(t *testing.T, id int) *chip.Chip {
	t.Helper()

	arch := archimpl.NewB()
	driver := kerneldriver.NewSimulated(arch)
	tlbs := tlbmgr.New(driver, arch)
	locks := lockmgr.New("")

	dev, err := ttdevice.New(driver, arch, tlbs, locks, id, &fakeMessenger{}, 0, 0, nil)
	if err != nil {
		t.Fatalf("ttdevice.New: %v", err)
	}

	soc, err := chip.NewSocDescriptor(arch, coord.HarvestingMasks{}, true)
	if err != nil {
		t.Fatalf("NewSocDescriptor: %v", err)
	}

	c := chip.NewLocal(id, soc, locks, dev, tlbs, nil, nil, true)

	if err := c.StartDevice(); err != nil {
		t.Fatalf("StartDevice: %v", err)
	}

	t.Cleanup(func() { c.CloseDevice() })

	return c
}

func twoChipCluster(t *testing.T) *cluster.Cluster {
	t.Helper()

	b := cd.NewBuilder()
	b.AddChip(0, cd.ChipInfo{Arch: coretypes.ArchB, MMIO: true})
	b.AddChip(1, cd.ChipInfo{Arch: coretypes.ArchB, MMIO: true})

	desc, res := b.Finish()
	if !res.OK() {
		t.Fatalf("descriptor failed verification: %v", res.Fatal)
	}

	chips := map[cd.ChipID]*chip.Chip{
		0: newTestChip(t, 0),
		1: newTestChip(t, 1),
	}

	c, err := cluster.New(desc, chips)
	if err != nil {
		t.Fatalf("cluster.New: %v", err)
	}

	return c
}

func tensixCore(x, y int) coretypes.CoreCoord {
	return coretypes.CoreCoord{X: x, Y: y, CoreType: coretypes.Tensix, CoordSystem: coretypes.NOC0}
}

func TestNewRejectsUnverifiedDescriptor(t *testing.T) {
	b := cd.NewBuilder()
	b.AddChip(0, cd.ChipInfo{Arch: coretypes.ArchA, MMIO: true})
	b.AddChip(1, cd.ChipInfo{Arch: coretypes.ArchB, MMIO: true})

	desc, _ := b.Finish()

	if _, err := cluster.New(desc, map[cd.ChipID]*chip.Chip{0: nil, 1: nil}); err == nil {
		t.Fatalf("expected error constructing cluster from an unverified descriptor")
	}
}

func TestBroadcastWriteReachesEveryChip(t *testing.T) {
	c := twoChipCluster(t)

	core := tensixCore(1, 1)
	want := []byte{1, 2, 3, 4}

	if err := c.BroadcastWrite(cluster.AllChips, want, core, 0x3000); err != nil {
		t.Fatalf("BroadcastWrite: %v", err)
	}

	for _, id := range []cd.ChipID{0, 1} {
		ch, err := c.Chip(id)
		if err != nil {
			t.Fatalf("Chip(%d): %v", id, err)
		}

		got, err := ch.ReadFromDevice(core, 0x3000, len(want))
		if err != nil {
			t.Fatalf("ReadFromDevice on chip %d: %v", id, err)
		}

		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("chip %d byte %d = %d, want %d", id, i, got[i], want[i])
			}
		}
	}
}

func TestClockMapReportsEveryChip(t *testing.T) {
	c := twoChipCluster(t)

	clocks, err := c.ClockMap()
	if err != nil {
		t.Fatalf("ClockMap: %v", err)
	}

	if len(clocks) != 2 {
		t.Fatalf("ClockMap returned %d entries, want 2", len(clocks))
	}
}

func TestWaitForNonMmioFlushNoopForLocalOnlyCluster(t *testing.T) {
	c := twoChipCluster(t)

	if err := c.WaitForNonMmioFlush(); err != nil {
		t.Fatalf("WaitForNonMmioFlush: %v", err)
	}
}
