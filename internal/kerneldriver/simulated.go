package kerneldriver

import (
	"sync"

	"github.com/tenstorrent/tt-umd/internal/archimpl"
	"github.com/tenstorrent/tt-umd/internal/coretypes"
	"github.com/tenstorrent/tt-umd/internal/errs"
)

// chipModel is the tiny address-space emulation a SimulatedDriver serves
// reads and writes against: a map from (core, addr) to byte, good enough
// to exercise TLB reconfiguration and multicast without hardware. DMA
// transfers use the separate axiMem space instead.
type chipModel struct {
	mu  sync.Mutex
	mem map[coretypes.CoreCoord]map[uint64]byte
}

func newChipModel() *chipModel {
	return &chipModel{mem: make(map[coretypes.CoreCoord]map[uint64]byte)}
}

func (c *chipModel) Read(core coretypes.CoreCoord, addr uint64) byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.mem[core]; ok {
		return m[addr]
	}

	return 0
}

func (c *chipModel) Write(core coretypes.CoreCoord, addr uint64, v byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.mem[core]
	if !ok {
		m = make(map[uint64]byte)
		c.mem[core] = m
	}

	m[addr] = v
}

// axiMem is the flat device-AXI-address space DMA targets, separate from
// chipModel's per-core address space that TLB windows address: a DMA engine
// moves bytes between a host buffer and a device AXI address with no NoC
// core involved.
type axiMem struct {
	mu  sync.Mutex
	mem map[uint64]byte
}

func newAxiMem() *axiMem { return &axiMem{mem: make(map[uint64]byte)} }

func (a *axiMem) read(addr uint64, buf []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range buf {
		buf[i] = a.mem[addr+uint64(i)]
	}
}

func (a *axiMem) write(addr uint64, buf []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, b := range buf {
		a.mem[addr+uint64(i)] = b
	}
}

// simulatedTLB is one allocated TLB slot in the simulated pool: it owns a
// plain Go byte slice standing in for its BAR window, and tracks the
// config (core + base address) currently routed to that window so reads
// and writes against the window can be serviced against chipModel.
type simulatedTLB struct {
	id     int
	size   archimpl.TlbSizeClass
	window []byte
	free   bool

	core     coretypes.CoreCoord
	hasCore  bool
	baseAddr uint64
}

// SimulatedDriver is the in-memory fake kernel driver, satisfying the same
// Driver interface as SiliconDriver, used by tests and by callers without
// real hardware (spec.md §9's simulator interface, kept in scope).
type SimulatedDriver struct {
	mu     sync.Mutex
	arch   archimpl.Implementation
	pool   map[archimpl.TlbSizeClass][]*simulatedTLB
	byID   map[int]*simulatedTLB
	nextID int
	model  *chipModel
	bars   map[int][]byte
	axi    *axiMem

	dmaBufs  map[uint64][]byte
	nextIova uint64
}

// NewSimulated builds a simulated driver whose TLB pool matches arch's
// size classes and counts exactly (so TestTlbExhaustion-style tests can
// run against it without real hardware).
func NewSimulated(arch archimpl.Implementation) *SimulatedDriver {
	d := &SimulatedDriver{
		arch:     arch,
		pool:     make(map[archimpl.TlbSizeClass][]*simulatedTLB),
		byID:     make(map[int]*simulatedTLB),
		model:    newChipModel(),
		bars:     make(map[int][]byte),
		axi:      newAxiMem(),
		dmaBufs:  make(map[uint64][]byte),
		nextIova: 1 << 40, // keep simulated host IOVAs well clear of any device AXI address a test uses
	}

	id := 0

	for _, size := range arch.TlbSizeClasses() {
		count, _ := arch.TlbCount(size)
		windowSize := int(size)

		if windowSize > 1<<20 {
			windowSize = 1 << 20 // cap simulated window allocation; callers only touch in-bounds offsets in tests
		}

		for i := 0; i < count; i++ {
			tlb := &simulatedTLB{id: id, size: size, window: make([]byte, windowSize), free: true}
			d.pool[size] = append(d.pool[size], tlb)
			d.byID[id] = tlb
			id++
		}
	}

	d.nextID = id

	return d
}

func (d *SimulatedDriver) AllocateTLB(size archimpl.TlbSizeClass, _ coretypes.MappingKind) (TlbHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, tlb := range d.pool[size] {
		if tlb.free {
			tlb.free = false

			return TlbHandle{ID: tlb.id, Window: tlb.window}, nil
		}
	}

	return TlbHandle{}, errs.New(errs.Exhausted, "kerneldriver.AllocateTLB", "no free TLB of requested size class")
}

func (d *SimulatedDriver) FreeTLB(id int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tlb, ok := d.byID[id]
	if !ok {
		return errs.New(errs.Io, "kerneldriver.FreeTLB", "unknown tlb id")
	}

	tlb.free = true
	tlb.hasCore = false

	return nil
}

// ConfigureTLB decodes regBytes is not attempted here (that would require
// inverting apply_offset); instead the simulated TLB is driven directly via
// SetRoute, which TLB-layer tests call after computing the same TlbConfig
// they pass to the real Configure path.
func (d *SimulatedDriver) ConfigureTLB(id int, regBytes []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.byID[id]; !ok {
		return errs.New(errs.Io, "kerneldriver.ConfigureTLB", "unknown tlb id")
	}

	return nil
}

// SetRoute is the simulated-driver-only hook the TLB layer uses to tell the
// fake which (core, base address) a window is now aimed at, mirroring what
// the real control register write would do. It is not part of the Driver
// interface because real hardware has no such callback -- the TLB layer
// type-asserts for it.
func (d *SimulatedDriver) SetRoute(id int, core coretypes.CoreCoord, baseAddr uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tlb, ok := d.byID[id]
	if !ok {
		return
	}

	tlb.core, tlb.hasCore, tlb.baseAddr = core, true, baseAddr
}

// ReadWindow / WriteWindow service a TLB window access against the backing
// chip model, keeping the byte slice itself in sync so plain slice reads
// (used by register/bulk accessors) also observe the right data.
func (d *SimulatedDriver) ReadWindow(id int, offset uint64, buf []byte) {
	d.mu.Lock()
	tlb, ok := d.byID[id]
	d.mu.Unlock()

	if !ok || !tlb.hasCore {
		return
	}

	for i := range buf {
		buf[i] = d.model.Read(tlb.core, tlb.baseAddr+offset+uint64(i))
		if int(offset)+i < len(tlb.window) {
			tlb.window[int(offset)+i] = buf[i]
		}
	}
}

func (d *SimulatedDriver) WriteWindow(id int, offset uint64, buf []byte) {
	d.mu.Lock()
	tlb, ok := d.byID[id]
	d.mu.Unlock()

	if !ok || !tlb.hasCore {
		return
	}

	for i, b := range buf {
		d.model.Write(tlb.core, tlb.baseAddr+offset+uint64(i), b)
		if int(offset)+i < len(tlb.window) {
			tlb.window[int(offset)+i] = b
		}
	}
}

// MapForDMA hands back a simulated IOVA and retains buf under it so RunDma
// can move real bytes in and out of it, letting DmaH2D/DmaD2H round-trip
// through the simulated driver instead of touching disconnected memory.
func (d *SimulatedDriver) MapForDMA(buf []byte) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	iova := d.nextIova
	d.nextIova += uint64(len(buf)) + 1
	d.dmaBufs[iova] = buf

	return iova, nil
}

func (d *SimulatedDriver) UnmapForDMA(buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(buf) == 0 {
		return nil
	}

	for iova, b := range d.dmaBufs {
		if len(b) > 0 && &b[0] == &buf[0] {
			delete(d.dmaBufs, iova)
			break
		}
	}

	return nil
}

// RunDma is the optional capability ttdevice's DMA doorbell handshake uses
// to self-complete a transfer instead of polling real hardware: it copies
// size bytes from srcIova to dstIova, where either side may be a host
// buffer handed to MapForDMA or a device AXI address.
func (d *SimulatedDriver) RunDma(srcIova, dstIova uint64, size int) error {
	d.mu.Lock()
	srcBuf, srcIsHost := d.dmaBufs[srcIova]
	dstBuf, dstIsHost := d.dmaBufs[dstIova]
	d.mu.Unlock()

	switch {
	case srcIsHost && !dstIsHost:
		d.axi.write(dstIova, srcBuf[:size])
	case dstIsHost && !srcIsHost:
		d.axi.read(srcIova, dstBuf[:size])
	default:
		return errs.New(errs.Io, "kerneldriver.RunDma", "dma transfer must have exactly one host-mapped side")
	}

	return nil
}

func (d *SimulatedDriver) MapBufferToNoc(buf []byte) (uint64, uint64, error) {
	return 0, 0, errs.New(errs.Unsupported, "kerneldriver.MapBufferToNoc", "simulated driver expects caller-programmed IATU")
}

func (d *SimulatedDriver) Reset(kind ResetKind) error { return nil }

func (d *SimulatedDriver) BAR(index int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.bars[index]
	if !ok {
		b = make([]byte, 1<<20)
		d.bars[index] = b
	}

	return b, nil
}

func (d *SimulatedDriver) Close() error { return nil }
