package kerneldriver

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/tenstorrent/tt-umd/internal/archimpl"
	"github.com/tenstorrent/tt-umd/internal/coretypes"
	"github.com/tenstorrent/tt-umd/internal/errs"
)

// ioctl opcodes for /dev/tenstorrent/<n>. Numeric values follow the
// character-device convention gokvm's kvm package uses for /dev/kvm:
// plain untyped constants, no _IOW/_IOR macro expansion, because Go has no
// portable equivalent and the kernel only cares about the final number.
const (
	ioctlAllocateTLB     = 0x5401
	ioctlFreeTLB         = 0x5402
	ioctlMapForDMA       = 0x5403
	ioctlUnmapForDMA     = 0x5404
	ioctlMapBufferToNoc  = 0x5405
	ioctlResetDevice     = 0x5406
	ioctlQueryMmapOffset = 0x5407
)

type allocateTLBArg struct {
	SizeBytes  uint64
	MappingWC  uint32
	_          uint32
	OutID      int32
	_          int32
	OutOffset  uint64 // mmap offset within the character device for pread/mmap
}

type mapForDMAArg struct {
	VA       uint64
	Size     uint64
	OutIOVA  uint64
}

type mapBufferToNocArg struct {
	VA              uint64
	Size            uint64
	OutNocAddr      uint64
	OutDeviceIOAddr uint64
}

type resetDeviceArg struct {
	Kind int32
	_    int32
}

func ioctl(fd, op uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, op, uintptr(arg))
	if errno != 0 {
		return errno
	}

	return nil
}

// SiliconDriver talks to a real /dev/tenstorrent/<n> character device via
// ioctl and mmap, the way gokvm's kvm package drives /dev/kvm.
type SiliconDriver struct {
	file *os.File
	fd   uintptr

	mu   sync.Mutex
	bars map[int][]byte
}

// OpenSilicon opens the device node for one chip's kernel driver.
func OpenSilicon(path string) (*SiliconDriver, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, errs.Wrap(errs.Io, "kerneldriver.OpenSilicon", err)
	}

	return &SiliconDriver{file: f, fd: f.Fd(), bars: make(map[int][]byte)}, nil
}

func (d *SiliconDriver) AllocateTLB(size archimpl.TlbSizeClass, mapping coretypes.MappingKind) (TlbHandle, error) {
	arg := allocateTLBArg{SizeBytes: uint64(size)}
	if mapping == coretypes.WriteCombine {
		arg.MappingWC = 1
	}

	if err := ioctl(d.fd, ioctlAllocateTLB, unsafe.Pointer(&arg)); err != nil {
		return TlbHandle{}, errs.Wrap(errs.Io, "kerneldriver.AllocateTLB", err)
	}

	window, err := unix.Mmap(int(d.fd), int64(arg.OutOffset), int(size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return TlbHandle{}, errs.Wrap(errs.Io, "kerneldriver.AllocateTLB", err)
	}

	return TlbHandle{ID: int(arg.OutID), Window: window}, nil
}

func (d *SiliconDriver) FreeTLB(id int) error {
	idArg := int32(id)
	if err := ioctl(d.fd, ioctlFreeTLB, unsafe.Pointer(&idArg)); err != nil {
		return errs.Wrap(errs.Io, "kerneldriver.FreeTLB", err)
	}

	return nil
}

func (d *SiliconDriver) ConfigureTLB(id int, regBytes []byte) error {
	type configureTLBArg struct {
		ID  int32
		Len int32
		Ptr uint64
	}

	arg := configureTLBArg{ID: int32(id), Len: int32(len(regBytes)), Ptr: uint64(uintptr(unsafe.Pointer(&regBytes[0])))}
	if err := ioctl(d.fd, ioctlAllocateTLB+0x10, unsafe.Pointer(&arg)); err != nil {
		return errs.Wrap(errs.Io, "kerneldriver.ConfigureTLB", err)
	}

	return nil
}

func (d *SiliconDriver) MapForDMA(buf []byte) (uint64, error) {
	if len(buf) == 0 {
		return 0, errs.New(errs.Io, "kerneldriver.MapForDMA", "empty buffer")
	}

	arg := mapForDMAArg{VA: uint64(uintptr(unsafe.Pointer(&buf[0]))), Size: uint64(len(buf))}
	if err := ioctl(d.fd, ioctlMapForDMA, unsafe.Pointer(&arg)); err != nil {
		return 0, errs.Wrap(errs.Io, "kerneldriver.MapForDMA", err)
	}

	return arg.OutIOVA, nil
}

func (d *SiliconDriver) UnmapForDMA(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}

	arg := mapForDMAArg{VA: uint64(uintptr(unsafe.Pointer(&buf[0]))), Size: uint64(len(buf))}
	if err := ioctl(d.fd, ioctlUnmapForDMA, unsafe.Pointer(&arg)); err != nil {
		return errs.Wrap(errs.Io, "kerneldriver.UnmapForDMA", err)
	}

	return nil
}

func (d *SiliconDriver) MapBufferToNoc(buf []byte) (uint64, uint64, error) {
	if len(buf) == 0 {
		return 0, 0, errs.New(errs.Io, "kerneldriver.MapBufferToNoc", "empty buffer")
	}

	arg := mapBufferToNocArg{VA: uint64(uintptr(unsafe.Pointer(&buf[0]))), Size: uint64(len(buf))}
	if err := ioctl(d.fd, ioctlMapBufferToNoc, unsafe.Pointer(&arg)); err != nil {
		return 0, 0, errs.Wrap(errs.Unsupported, "kerneldriver.MapBufferToNoc", err)
	}

	return arg.OutNocAddr, arg.OutDeviceIOAddr, nil
}

func (d *SiliconDriver) Reset(kind ResetKind) error {
	arg := resetDeviceArg{Kind: int32(kind)}
	if err := ioctl(d.fd, ioctlResetDevice, unsafe.Pointer(&arg)); err != nil {
		return errs.Wrap(errs.Io, "kerneldriver.Reset", err)
	}

	return nil
}

func (d *SiliconDriver) BAR(index int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if b, ok := d.bars[index]; ok {
		return b, nil
	}

	type queryMmapArg struct {
		BarIndex int32
		_        int32
		OutSize  uint64
		OutOff   uint64
	}

	q := queryMmapArg{BarIndex: int32(index)}
	if err := ioctl(d.fd, ioctlQueryMmapOffset, unsafe.Pointer(&q)); err != nil {
		return nil, errs.Wrap(errs.Io, "kerneldriver.BAR", err)
	}

	b, err := unix.Mmap(int(d.fd), int64(q.OutOff), int(q.OutSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errs.Wrap(errs.Io, "kerneldriver.BAR", err)
	}

	d.bars[index] = b

	return b, nil
}

func (d *SiliconDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error

	for idx, b := range d.bars {
		if err := unix.Munmap(b); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("munmap bar %d: %w", idx, err)
		}
	}

	if err := d.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}
