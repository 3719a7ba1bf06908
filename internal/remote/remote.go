// Package remote implements Ethernet-tunnelled access to chips with no
// direct MMIO path (spec.md §4.G): requests are framed and pushed through a
// ring-buffer command queue owned by the local chip's transfer Ethernet
// cores, which the ERISC firmware drains and relays over the Ethernet
// fabric to the target chip.
package remote

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/tenstorrent/tt-umd/internal/coretypes"
	"github.com/tenstorrent/tt-umd/internal/errs"
)

// CoreIO is the subset of TTDevice's API the tunnel needs to talk to its
// own chip's transfer Ethernet cores: block transfers for command frames,
// register access for the ring's head/tail pointers.
type CoreIO interface {
	WriteToDevice(data []byte, core coretypes.CoreCoord, addr uint64) error
	ReadRegister(core coretypes.CoreCoord, addr uint64) (uint32, error)
	WriteRegister(core coretypes.CoreCoord, addr uint64, value uint32) error
}

// EthCoord identifies a remote chip by its Ethernet routing coordinate
// (spec.md's "eth_coord"), distinct from any chip's NoC coordinate space.
type EthCoord struct{ X, Y int }

// NocXY is the (core, noc selector) pair a non-MMIO write ultimately lands
// on once the ERISC firmware on the target chip relays it.
type NocXY struct{ X, Y int }

// ERISC command-queue layout within the transfer Ethernet core's own
// register space (supplemented: spec.md §4.G names the ring discipline and
// 4-byte alignment requirement but not concrete offsets).
const (
	cmdQueueBase    = 0x19000
	cmdQueueSlots   = 4
	cmdHeaderWords  = 4 // request_wptr, request_rptr, response_wptr, response_rptr
	cmdFrameWords   = 8 // opcode, target, noc_xy, addr_lo, addr_hi, size, broadcast_header, reserved
	maxBlockSize    = 1024
	cmdSlotStride   = cmdFrameWords*4 + maxBlockSize
	cmdPayloadBase  = cmdQueueBase + cmdHeaderWords*4
	requestWptrAddr = cmdQueueBase + 0
	requestRptrAddr = cmdQueueBase + 4

	opcodeWrite     = 0
	opcodeBroadcast = 1
)

func slotAddr(slot int) uint64 { return uint64(cmdPayloadBase + slot*cmdSlotStride) }

// Communication owns the non-MMIO write path for chips reachable only
// through this chip's transfer Ethernet cores.
type Communication struct {
	io        CoreIO
	mu        sync.Mutex
	ethCores  []coretypes.CoreCoord
	pollEvery time.Duration
}

// New builds a Communication with no transfer cores configured; callers
// must call SetRemoteTransferEthernetCores before WriteToNonMmio.
func New(io CoreIO) *Communication {
	return &Communication{io: io, pollEvery: time.Millisecond}
}

// SetRemoteTransferEthernetCores configures the local Ethernet cores used
// to reach remote chips. All traffic in this module goes through cores[0];
// the remaining cores are accepted (and kept) for parity with the spec's
// API but this module makes no attempt to load-balance across them, since
// nothing in spec.md requires throughput optimization over correctness.
func (c *Communication) SetRemoteTransferEthernetCores(cores []coretypes.CoreCoord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ethCores = cores
}

func (c *Communication) primaryCore() (coretypes.CoreCoord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.ethCores) == 0 {
		return coretypes.CoreCoord{}, errs.New(errs.Unsupported, "remote.Communication", "no transfer ethernet cores configured")
	}

	return c.ethCores[0], nil
}

func buildFrame(opcode uint32, target EthCoord, nocXY NocXY, addr uint64, payload []byte, broadcastHeader uint32) []byte {
	frame := make([]byte, cmdFrameWords*4+len(payload))

	binary.LittleEndian.PutUint32(frame[0:], opcode)
	binary.LittleEndian.PutUint32(frame[4:], uint32(target.X)<<16|uint32(uint16(target.Y)))
	binary.LittleEndian.PutUint32(frame[8:], uint32(nocXY.X)<<16|uint32(uint16(nocXY.Y)))
	binary.LittleEndian.PutUint32(frame[12:], uint32(addr))
	binary.LittleEndian.PutUint32(frame[16:], uint32(addr>>32))
	binary.LittleEndian.PutUint32(frame[20:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(frame[24:], broadcastHeader)
	copy(frame[cmdFrameWords*4:], payload)

	return frame
}

// waitForFreeSlot blocks until the ring has room for one more request,
// mirroring internal/arc's queue ring discipline: a slot is free once
// wptr-rptr (mod 2*cmdQueueSlots) is less than cmdQueueSlots.
func (c *Communication) waitForFreeSlot(core coretypes.CoreCoord, timeout time.Duration) (wptr uint32, err error) {
	deadline := time.Now().Add(timeout)

	for {
		w, err := c.io.ReadRegister(core, requestWptrAddr)
		if err != nil {
			return 0, err
		}

		r, err := c.io.ReadRegister(core, requestRptrAddr)
		if err != nil {
			return 0, err
		}

		if (w+2*cmdQueueSlots-r)%(2*cmdQueueSlots) < cmdQueueSlots {
			return w, nil
		}

		if time.Now().After(deadline) {
			return 0, errs.New(errs.Timeout, "remote.Communication.waitForFreeSlot", "command ring has no free slot")
		}

		time.Sleep(c.pollEvery)
	}
}

func (c *Communication) sendFrame(target EthCoord, nocXY NocXY, addr uint64, payload []byte, broadcast bool, broadcastHeader uint32, timeout time.Duration) error {
	core, err := c.primaryCore()
	if err != nil {
		return err
	}

	wptr, err := c.waitForFreeSlot(core, timeout)
	if err != nil {
		return err
	}

	opcode := uint32(opcodeWrite)
	if broadcast {
		opcode = opcodeBroadcast
	}

	frame := buildFrame(opcode, target, nocXY, addr, payload, broadcastHeader)
	slot := int(wptr % cmdQueueSlots)

	if err := c.io.WriteToDevice(frame, core, slotAddr(slot)); err != nil {
		return err
	}

	// The payload lands before wptr advances so firmware never observes a
	// slot claimed by the ring before its contents are committed.
	return c.io.WriteRegister(core, requestWptrAddr, wptr+1)
}

// WriteToNonMmio packs src into command frames of at most maxBlockSize
// bytes and pushes them through the ring addressed by (target, nocXY,
// coreAddr). Writes to the same (target, nocXY, coreAddr) triple preserve
// program order because they are pushed into one FIFO ring in call order;
// cross-core ordering is the caller's responsibility (spec.md §4.G).
func (c *Communication) WriteToNonMmio(target EthCoord, nocXY NocXY, coreAddr uint64, src []byte, broadcast bool, broadcastHeader uint32, timeout time.Duration) error {
	for off := 0; off < len(src); off += maxBlockSize {
		end := off + maxBlockSize
		if end > len(src) {
			end = len(src)
		}

		if err := c.sendFrame(target, nocXY, coreAddr+uint64(off), src[off:end], broadcast, broadcastHeader, timeout); err != nil {
			return err
		}

		if broadcast {
			// A broadcast fans out from a single frame; only one is ever sent
			// regardless of how many bytes src holds past maxBlockSize.
			return nil
		}
	}

	return nil
}

// WaitForNonMmioFlush drains outstanding Ethernet commands by blocking
// until the ring's request pointers meet, i.e. the firmware has consumed
// everything queued so far. It satisfies internal/arc.Flusher so a
// Communication can be passed directly as a Mailbox/Queue's flusher.
func (c *Communication) WaitForNonMmioFlush() error {
	return c.WaitForNonMmioFlushTimeout(10 * time.Second)
}

func (c *Communication) WaitForNonMmioFlushTimeout(timeout time.Duration) error {
	core, err := c.primaryCore()
	if err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)

	for {
		w, err := c.io.ReadRegister(core, requestWptrAddr)
		if err != nil {
			return err
		}

		r, err := c.io.ReadRegister(core, requestRptrAddr)
		if err != nil {
			return err
		}

		if w == r {
			return nil
		}

		if time.Now().After(deadline) {
			return errs.New(errs.Timeout, "remote.Communication.WaitForNonMmioFlush", "commands still outstanding")
		}

		time.Sleep(c.pollEvery)
	}
}
