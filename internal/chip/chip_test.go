package chip_test

import (
	"testing"
	"time"

	"github.com/tenstorrent/tt-umd/internal/archimpl"
	"github.com/tenstorrent/tt-umd/internal/arc"
	"github.com/tenstorrent/tt-umd/internal/chip"
	"github.com/tenstorrent/tt-umd/internal/coord"
	"github.com/tenstorrent/tt-umd/internal/coretypes"
	"github.com/tenstorrent/tt-umd/internal/errs"
	"github.com/tenstorrent/tt-umd/internal/kerneldriver"
	"github.com/tenstorrent/tt-umd/internal/lockmgr"
	"github.com/tenstorrent/tt-umd/internal/remote"
	"github.com/tenstorrent/tt-umd/internal/sysmem"
	"github.com/tenstorrent/tt-umd/internal/tlbmgr"
	"github.com/tenstorrent/tt-umd/internal/ttdevice"
)

type fakeMessenger struct{ exitCode uint32 }

func (m *fakeMessenger) SendMessage(code uint32, args []uint16, timeout time.Duration) (arc.Response, error) {
	return arc.Response{ExitCode: m.exitCode}, nil
}

func newLocalChip(t *testing.T, arch archimpl.Implementation) *chip.Chip {
	t.Helper()

	driver := kerneldriver.NewSimulated(arch)
	tlbs := tlbmgr.New(driver, arch)
	locks := lockmgr.New("")

	dev, err := ttdevice.New(driver, arch, tlbs, locks, 0, &fakeMessenger{}, 0, 0, nil)
	if err != nil {
		t.Fatalf("ttdevice.New: %v", err)
	}

	soc, err := chip.NewSocDescriptor(arch, coord.HarvestingMasks{}, true)
	if err != nil {
		t.Fatalf("NewSocDescriptor: %v", err)
	}

	sysmemMgr := sysmem.New(driver)

	c := chip.NewLocal(0, soc, locks, dev, tlbs, sysmemMgr, nil, true)

	if err := c.StartDevice(); err != nil {
		t.Fatalf("StartDevice: %v", err)
	}

	t.Cleanup(func() { c.CloseDevice() })

	return c
}

func tensixCore(x, y int) coretypes.CoreCoord {
	return coretypes.CoreCoord{X: x, Y: y, CoreType: coretypes.Tensix, CoordSystem: coretypes.NOC0}
}

func TestWriteReadDeviceTranslatesCoordinate(t *testing.T) {
	c := newLocalChip(t, archimpl.NewB())

	core := tensixCore(1, 1)
	want := []byte{9, 8, 7, 6}

	if err := c.WriteToDevice(want, core, 0x2000); err != nil {
		t.Fatalf("WriteToDevice: %v", err)
	}

	got, err := c.ReadFromDevice(core, 0x2000, len(want))
	if err != nil {
		t.Fatalf("ReadFromDevice: %v", err)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRegisterRoundTrip(t *testing.T) {
	c := newLocalChip(t, archimpl.NewB())

	core := tensixCore(2, 2)

	if err := c.WriteToDeviceReg(core, 0x4, 0xDEADBEEF); err != nil {
		t.Fatalf("WriteToDeviceReg: %v", err)
	}

	v, err := c.ReadFromDeviceReg(core, 0x4)
	if err != nil {
		t.Fatalf("ReadFromDeviceReg: %v", err)
	}

	if v != 0xDEADBEEF {
		t.Fatalf("got %#x, want 0xDEADBEEF", v)
	}
}

func TestL1MembarRunsHandshake(t *testing.T) {
	c := newLocalChip(t, archimpl.NewB())

	if err := c.L1Membar([]coretypes.CoreCoord{tensixCore(1, 1), tensixCore(1, 2)}); err != nil {
		t.Fatalf("L1Membar: %v", err)
	}
}

func TestSysmemReadRejectsUnallocatedBuffer(t *testing.T) {
	c := newLocalChip(t, archimpl.NewB())

	if _, err := c.ReadFromSysmem(0, 0, 1); errs.Of(err) != errs.OutOfBounds {
		t.Fatalf("expected OutOfBounds, got %v", err)
	}
}

func TestAssertDeassertRiscResetAllTensix(t *testing.T) {
	c := newLocalChip(t, archimpl.NewB())

	if err := c.AssertRiscResetAllTensix(coretypes.RiscBrisc); err != nil {
		t.Fatalf("AssertRiscResetAllTensix: %v", err)
	}

	if err := c.DeassertRiscResetAllTensix(coretypes.RiscBrisc, false); err != nil {
		t.Fatalf("DeassertRiscResetAllTensix: %v", err)
	}
}

func TestArcMsgThroughChip(t *testing.T) {
	c := newLocalChip(t, archimpl.NewB())

	if _, err := c.ArcMsg(0x90, nil, time.Second); err != nil {
		t.Fatalf("ArcMsg: %v", err)
	}
}

func TestConfigureSysmemIATU(t *testing.T) {
	arch := archimpl.NewB()
	driver := kerneldriver.NewSimulated(arch)
	sysmemMgr := sysmem.New(driver)

	c := chip.NewLocal(0, socFor(t, arch), lockmgr.New(""), ttdeviceFor(t, driver), tlbmgr.New(driver, arch), sysmemMgr, nil, true)
	t.Cleanup(func() { c.CloseDevice() })

	idx, err := sysmemMgr.Allocate(1 << 30)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if err := c.ConfigureSysmemIATU(idx); err != nil {
		t.Fatalf("ConfigureSysmemIATU: %v", err)
	}
}

func socFor(t *testing.T, arch archimpl.Implementation) *chip.SocDescriptor {
	t.Helper()

	soc, err := chip.NewSocDescriptor(arch, coord.HarvestingMasks{}, true)
	if err != nil {
		t.Fatalf("NewSocDescriptor: %v", err)
	}

	return soc
}

func ttdeviceFor(t *testing.T, driver kerneldriver.Driver) *ttdevice.TTDevice {
	t.Helper()

	arch := archimpl.NewB()
	tlbs := tlbmgr.New(driver, arch)
	locks := lockmgr.New("")

	dev, err := ttdevice.New(driver, arch, tlbs, locks, 0, &fakeMessenger{}, 0, 0, nil)
	if err != nil {
		t.Fatalf("ttdevice.New: %v", err)
	}

	return dev
}

func TestRemoteChipHasNoMmioReadPath(t *testing.T) {
	arch := archimpl.NewA()

	soc, err := chip.NewSocDescriptor(arch, coord.HarvestingMasks{}, false)
	if err != nil {
		t.Fatalf("NewSocDescriptor: %v", err)
	}

	locks := lockmgr.New("")

	c := chip.NewRemote(1, soc, locks, nil, remote.EthCoord{}, false)

	if _, err := c.ReadFromDevice(tensixCore(1, 1), 0, 4); errs.Of(err) != errs.Unsupported {
		t.Fatalf("expected Unsupported, got %v", err)
	}
}
