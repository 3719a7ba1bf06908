// Package tlb implements the TLB handle and TLB window abstractions from
// spec.md §4.C: a programmable address window into a PCI BAR that can be
// repeatedly reconfigured to point at arbitrary (core, on-chip-address)
// pairs, plus a signal-safe variant for bus-error recovery.
package tlb

import (
	"sync"

	"github.com/tenstorrent/tt-umd/internal/archimpl"
	"github.com/tenstorrent/tt-umd/internal/coretypes"
	"github.com/tenstorrent/tt-umd/internal/errs"
	"github.com/tenstorrent/tt-umd/internal/kerneldriver"
)

// Handle owns one TLB index: its size, its mapping kind (fixed at
// allocation), its current configuration, and the mmap'd base into the
// process's BAR region.
type Handle struct {
	driver  kerneldriver.Driver
	arch    archimpl.Implementation
	id      int
	size    archimpl.TlbSizeClass
	mapping coretypes.MappingKind
	base    []byte

	mu        sync.Mutex
	config    archimpl.TlbConfig
	hasConfig bool
	released  bool
}

// New allocates a TLB of size via the kernel driver (real hardware) or the
// simulated pool, with mapping fixed for the handle's lifetime.
func New(driver kerneldriver.Driver, arch archimpl.Implementation, size archimpl.TlbSizeClass, mapping coretypes.MappingKind) (*Handle, error) {
	h, err := driver.AllocateTLB(size, mapping)
	if err != nil {
		return nil, err
	}

	return &Handle{
		driver:  driver,
		arch:    arch,
		id:      h.ID,
		size:    size,
		mapping: mapping,
		base:    h.Window,
	}, nil
}

// Configure writes the generation-specific encoding of cfg to the TLB's
// control register: an 8-byte store on generation A, an 8-byte + 4-byte
// store pair (in that order) on generation B. A full memory fence precedes
// and follows so subsequent data accesses see the new routing.
func (h *Handle) Configure(cfg archimpl.TlbConfig) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return errs.New(errs.Io, "tlb.Handle.Configure", "use of released tlb handle")
	}

	offsets, err := h.arch.TlbOffsetsFor(h.size)
	if err != nil {
		return errs.Wrap(errs.Unsupported, "tlb.Handle.Configure", err)
	}

	low, high := archimpl.ApplyOffset(offsets, cfg)
	regBytes := h.arch.TlbRegisterBytes(h.size)

	buf := make([]byte, regBytes)
	putLE64(buf[:8], low)

	if regBytes > 8 {
		putLE32(buf[8:12], uint32(high))
	}

	memoryFence()

	if err := h.driver.ConfigureTLB(h.id, buf); err != nil {
		return errs.Wrap(errs.Io, "tlb.Handle.Configure", err)
	}

	if sim, ok := h.driver.(interface {
		SetRoute(id int, core coretypes.CoreCoord, baseAddr uint64)
	}); ok {
		sim.SetRoute(h.id, coretypes.CoreCoord{X: cfg.XEnd, Y: cfg.YEnd, CoordSystem: coretypes.NOC0}, cfg.LocalOffset)
	}

	memoryFence()

	h.config, h.hasConfig = cfg, true

	return nil
}

func putLE64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func putLE32(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func (h *Handle) GetBase() []byte { return h.base }

func (h *Handle) GetSize() archimpl.TlbSizeClass { return h.size }

func (h *Handle) GetConfig() (archimpl.TlbConfig, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.config, h.hasConfig
}

func (h *Handle) GetMapping() coretypes.MappingKind { return h.mapping }

func (h *Handle) GetTlbID() int { return h.id }

// Release returns the TLB index to the pool exactly once; subsequent calls
// are no-ops, matching spec.md §3's "release returns the index to the pool
// exactly once" lifecycle rule.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return nil
	}

	h.released = true

	return h.driver.FreeTLB(h.id)
}
