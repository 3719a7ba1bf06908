// Package tlbmgr owns the pool of dynamically-allocatable TLB indices for
// one chip and the small set of statically-reserved indices firmware and
// the kernel driver agree on ahead of time (spec.md §4.D).
package tlbmgr

import (
	"sync"

	"github.com/tenstorrent/tt-umd/internal/archimpl"
	"github.com/tenstorrent/tt-umd/internal/coretypes"
	"github.com/tenstorrent/tt-umd/internal/errs"
	"github.com/tenstorrent/tt-umd/internal/kerneldriver"
	"github.com/tenstorrent/tt-umd/internal/tlb"
)

// Manager hands out tlb.Handle/tlb.Window values against one chip's driver,
// tracking which dynamic indices are currently checked out so double-free
// and over-allocation are caught locally instead of only at the driver.
type Manager struct {
	driver kerneldriver.Driver
	arch   archimpl.Implementation

	mu       sync.Mutex
	inUse    map[int]*tlb.Handle // dynamic index -> live handle
	static   map[archimpl.StaticTlb]*tlb.Handle
}

// New builds an empty Manager; it configures and reserves nothing. Static
// TLB windows are opened lazily by GetTlbWindow at the architecture's fixed
// indices, and AllocateTlbIndex takes whatever index the driver hands out
// without excluding those static indices.
func New(driver kerneldriver.Driver, arch archimpl.Implementation) *Manager {
	return &Manager{
		driver: driver,
		arch:   arch,
		inUse:  make(map[int]*tlb.Handle),
		static: make(map[archimpl.StaticTlb]*tlb.Handle),
	}
}

// AllocateTlbIndex reserves one dynamic TLB of the given size class and
// mapping attribute, returning its pool index. The caller later configures
// and uses it via the returned *tlb.Handle, and must DeallocateTlbIndex
// exactly once when done.
func (m *Manager) AllocateTlbIndex(size archimpl.TlbSizeClass, mapping coretypes.MappingKind) (*tlb.Handle, error) {
	h, err := tlb.New(m.driver, m.arch, size, mapping)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.inUse[h.GetTlbID()] = h
	m.mu.Unlock()

	return h, nil
}

// DeallocateTlbIndex releases a handle obtained from AllocateTlbIndex. It is
// safe to call more than once; only the first call has effect, matching
// Handle.Release's own exactly-once semantics.
func (m *Manager) DeallocateTlbIndex(h *tlb.Handle) error {
	m.mu.Lock()
	delete(m.inUse, h.GetTlbID())
	m.mu.Unlock()

	return h.Release()
}

// AllocateTlbWindow is the common case: allocate a dynamic TLB sized to
// cover size bytes starting at addr on core, configure it, and return a
// ready-to-use Window. addr need not be aligned to size's granularity; the
// residual offset is folded into the returned Window so callers always
// index from addr.
func (m *Manager) AllocateTlbWindow(core coretypes.CoreCoord, addr uint64, size archimpl.TlbSizeClass, mapping coretypes.MappingKind, ordering coretypes.Ordering) (*tlb.Window, error) {
	aligned := addr &^ (uint64(size) - 1)
	residue := addr - aligned

	h, err := m.AllocateTlbIndex(size, mapping)
	if err != nil {
		return nil, err
	}

	cfg := archimpl.TlbConfig{
		LocalOffset: aligned,
		XEnd:        core.X,
		YEnd:        core.Y,
		Noc:         0,
		Ordering:    ordering,
	}

	if err := h.Configure(cfg); err != nil {
		_ = m.DeallocateTlbIndex(h)
		return nil, err
	}

	return tlb.Open(h, core, residue), nil
}

// GetTlbSizeFromIndex and GetTlbAddressFromIndex answer queries about the
// architecture's statically-reserved indices (spec.md §4.D "static TLB
// inventory"), independent of whether that index has been opened yet.
func (m *Manager) GetTlbSizeFromIndex(name archimpl.StaticTlb) (archimpl.TlbSizeClass, error) {
	switch name {
	case archimpl.RegTLB, archimpl.MemSmallRWTLB:
		return smallestSize(m.arch), nil
	case archimpl.MemLargeWriteTLB, archimpl.MemLargeReadTLB:
		return largestSize(m.arch), nil
	default:
		return 0, errs.New(errs.Unsupported, "tlbmgr.GetTlbSizeFromIndex", "unknown static tlb name")
	}
}

func (m *Manager) GetTlbAddressFromIndex(name archimpl.StaticTlb) (uint64, error) {
	size, err := m.GetTlbSizeFromIndex(name)
	if err != nil {
		return 0, err
	}

	base, err := m.arch.TlbBaseAddress(size)
	if err != nil {
		return 0, err
	}

	idx, err := m.arch.StaticTlbIndex(name)
	if err != nil {
		return 0, err
	}

	return base + uint64(idx)*uint64(size), nil
}

func smallestSize(arch archimpl.Implementation) archimpl.TlbSizeClass {
	classes := arch.TlbSizeClasses()

	smallest := classes[0]
	for _, c := range classes[1:] {
		if c < smallest {
			smallest = c
		}
	}

	return smallest
}

func largestSize(arch archimpl.Implementation) archimpl.TlbSizeClass {
	classes := arch.TlbSizeClasses()

	largest := classes[0]
	for _, c := range classes[1:] {
		if c > largest {
			largest = c
		}
	}

	return largest
}

// IsTlbMapped reports whether name has already been opened as a live
// static window on this Manager (firmware boot leaves REG_TLB and the
// MEM_LARGE_* windows pre-routed to fixed cores; callers check this before
// deciding whether to reconfigure or reuse).
func (m *Manager) IsTlbMapped(name archimpl.StaticTlb) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.static[name]
	return ok
}

// GetTlbWindow returns the live Window for a statically-mapped index,
// opening and configuring it against core/addr the first time it's asked
// for and reusing it on subsequent calls.
func (m *Manager) GetTlbWindow(name archimpl.StaticTlb, core coretypes.CoreCoord, addr uint64, ordering coretypes.Ordering) (*tlb.Window, error) {
	m.mu.Lock()
	h, ok := m.static[name]
	m.mu.Unlock()

	size, err := m.GetTlbSizeFromIndex(name)
	if err != nil {
		return nil, err
	}

	if !ok {
		idx, err := m.arch.StaticTlbIndex(name)
		if err != nil {
			return nil, err
		}

		hh, err := tlb.New(staticDriver{m.driver, idx}, m.arch, size, coretypes.Uncached)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.static[name] = hh
		m.mu.Unlock()

		h = hh
	}

	aligned := addr &^ (uint64(size) - 1)
	residue := addr - aligned

	cfg := archimpl.TlbConfig{LocalOffset: aligned, XEnd: core.X, YEnd: core.Y, Noc: 0, Ordering: ordering}
	if err := h.Configure(cfg); err != nil {
		return nil, err
	}

	return tlb.Open(h, core, residue), nil
}

// staticDriver wraps a Driver so AllocateTLB always returns the fixed index
// reserved for a static TLB name, instead of pulling from the dynamic pool.
type staticDriver struct {
	kerneldriver.Driver
	fixedIndex int
}

func (s staticDriver) AllocateTLB(size archimpl.TlbSizeClass, mapping coretypes.MappingKind) (kerneldriver.TlbHandle, error) {
	window, err := s.Driver.BAR(0)
	if err != nil {
		return kerneldriver.TlbHandle{}, err
	}

	base, err := staticWindowOffset(size, s.fixedIndex)
	if err != nil {
		return kerneldriver.TlbHandle{}, err
	}

	end := base + uint64(size)
	if end > uint64(len(window)) {
		end = uint64(len(window))
	}

	if base >= uint64(len(window)) {
		return kerneldriver.TlbHandle{ID: s.fixedIndex, Window: make([]byte, size)}, nil
	}

	return kerneldriver.TlbHandle{ID: s.fixedIndex, Window: window[base:end]}, nil
}

func staticWindowOffset(size archimpl.TlbSizeClass, index int) (uint64, error) {
	return uint64(index) * uint64(size), nil
}

func (s staticDriver) FreeTLB(id int) error { return nil } // static TLBs are never released
