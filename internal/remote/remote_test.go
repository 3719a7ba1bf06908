package remote_test

import (
	"sync"
	"testing"
	"time"

	"github.com/tenstorrent/tt-umd/internal/coretypes"
	"github.com/tenstorrent/tt-umd/internal/errs"
	"github.com/tenstorrent/tt-umd/internal/remote"
)

// fakeEthCore stands in for TTDevice's block/register access to one
// Ethernet core's own address space, without going through tlb/tlbmgr.
type fakeEthCore struct {
	mu   sync.Mutex
	mem  map[uint64]byte
	regs map[uint64]uint32
}

func newFakeEthCore() *fakeEthCore {
	return &fakeEthCore{mem: make(map[uint64]byte), regs: make(map[uint64]uint32)}
}

func (f *fakeEthCore) WriteToDevice(data []byte, core coretypes.CoreCoord, addr uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, b := range data {
		f.mem[addr+uint64(i)] = b
	}

	return nil
}

func (f *fakeEthCore) ReadRegister(core coretypes.CoreCoord, addr uint64) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.regs[addr], nil
}

func (f *fakeEthCore) WriteRegister(core coretypes.CoreCoord, addr uint64, value uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.regs[addr] = value

	return nil
}

func ethCoreCoord() coretypes.CoreCoord {
	return coretypes.CoreCoord{X: 9, Y: 0, CoreType: coretypes.Ethernet, CoordSystem: coretypes.NOC0}
}

// runFirmware advances the request ring's rptr to match wptr after a short
// delay, standing in for the ERISC firmware draining the queue.
func runFirmware(t *testing.T, io *fakeEthCore, n int) chan struct{} {
	t.Helper()

	done := make(chan struct{})

	go func() {
		defer close(done)

		core := ethCoreCoord()
		consumed := 0
		deadline := time.Now().Add(2 * time.Second)

		for consumed < n && time.Now().Before(deadline) {
			w, _ := io.ReadRegister(core, 0x19000)
			r, _ := io.ReadRegister(core, 0x19004)

			if w != r {
				io.WriteRegister(core, 0x19004, r+1)
				consumed++
			}

			time.Sleep(time.Millisecond)
		}
	}()

	return done
}

func TestWriteToNonMmioNoTransferCoresConfigured(t *testing.T) {
	io := newFakeEthCore()
	c := remote.New(io)

	err := c.WriteToNonMmio(remote.EthCoord{X: 1, Y: 1}, remote.NocXY{X: 2, Y: 2}, 0x1000, []byte{1, 2, 3, 4}, false, 0, time.Second)
	if errs.Of(err) != errs.Unsupported {
		t.Fatalf("expected Unsupported, got %v", err)
	}
}

func TestWriteToNonMmioSingleFrame(t *testing.T) {
	io := newFakeEthCore()
	c := remote.New(io)
	c.SetRemoteTransferEthernetCores([]coretypes.CoreCoord{ethCoreCoord()})

	done := runFirmware(t, io, 1)

	err := c.WriteToNonMmio(remote.EthCoord{X: 1, Y: 1}, remote.NocXY{X: 2, Y: 2}, 0x1000, []byte{1, 2, 3, 4}, false, 0, 2*time.Second)
	<-done

	if err != nil {
		t.Fatalf("WriteToNonMmio: %v", err)
	}
}

func TestWriteToNonMmioChunksAcrossFrames(t *testing.T) {
	io := newFakeEthCore()
	c := remote.New(io)
	c.SetRemoteTransferEthernetCores([]coretypes.CoreCoord{ethCoreCoord()})

	payload := make([]byte, 1024+16)
	for i := range payload {
		payload[i] = byte(i)
	}

	done := runFirmware(t, io, 2)

	err := c.WriteToNonMmio(remote.EthCoord{X: 1, Y: 1}, remote.NocXY{X: 2, Y: 2}, 0x2000, payload, false, 0, 2*time.Second)
	<-done

	if err != nil {
		t.Fatalf("WriteToNonMmio: %v", err)
	}
}

func TestWaitForNonMmioFlushDrainsQueue(t *testing.T) {
	io := newFakeEthCore()
	c := remote.New(io)
	c.SetRemoteTransferEthernetCores([]coretypes.CoreCoord{ethCoreCoord()})

	done := runFirmware(t, io, 1)

	if err := c.WriteToNonMmio(remote.EthCoord{X: 1, Y: 1}, remote.NocXY{X: 2, Y: 2}, 0x1000, []byte{1, 2, 3, 4}, false, 0, 2*time.Second); err != nil {
		t.Fatalf("WriteToNonMmio: %v", err)
	}

	if err := c.WaitForNonMmioFlushTimeout(2 * time.Second); err != nil {
		t.Fatalf("WaitForNonMmioFlush: %v", err)
	}

	<-done
}
