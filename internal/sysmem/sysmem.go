// Package sysmem implements the pinned host-memory buffer pool a Chip
// hands to its DMA engine and its write_to_sysmem/read_from_sysmem calls
// (spec.md §4.H, §9's "Sysmem / hugepage" glossary entry). Scanning the
// hugepage filesystem to find backing pages is explicitly out of scope
// (spec.md §1); this package only owns the pinned buffers once allocated.
package sysmem

import (
	"sync"

	"github.com/tenstorrent/tt-umd/internal/errs"
	"github.com/tenstorrent/tt-umd/internal/kerneldriver"
)

// Buffer is one pinned host allocation: plain Go memory the kernel driver
// has pinned and mapped for device DMA, addressable by the device at iova.
type Buffer struct {
	mem  []byte
	iova uint64
}

func (b *Buffer) IOVA() uint64 { return b.iova }
func (b *Buffer) Bytes() []byte { return b.mem }

// Manager owns every pinned buffer allocated for one chip, keyed by the
// order they were requested in so WriteToSysmem/ReadFromSysmem can address
// them by a simple (buffer index, offset) pair the way sysmem callers do.
type Manager struct {
	driver kerneldriver.Driver

	mu      sync.Mutex
	buffers []*Buffer
}

func New(driver kerneldriver.Driver) *Manager {
	return &Manager{driver: driver}
}

// Allocate pins a size-byte host buffer and returns its index.
func (m *Manager) Allocate(size int) (int, error) {
	mem := make([]byte, size)

	iova, err := m.driver.MapForDMA(mem)
	if err != nil {
		return 0, errs.Wrap(errs.Io, "sysmem.Manager.Allocate", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.buffers = append(m.buffers, &Buffer{mem: mem, iova: iova})

	return len(m.buffers) - 1, nil
}

// Release unpins and drops buffer index.
func (m *Manager) Release(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if index < 0 || index >= len(m.buffers) || m.buffers[index] == nil {
		return errs.New(errs.OutOfBounds, "sysmem.Manager.Release", "invalid buffer index")
	}

	if err := m.driver.UnmapForDMA(m.buffers[index].mem); err != nil {
		return errs.Wrap(errs.Io, "sysmem.Manager.Release", err)
	}

	m.buffers[index] = nil

	return nil
}

func (m *Manager) buffer(index int) (*Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if index < 0 || index >= len(m.buffers) || m.buffers[index] == nil {
		return nil, errs.New(errs.OutOfBounds, "sysmem.Manager", "invalid buffer index")
	}

	return m.buffers[index], nil
}

// WriteToSysmem and ReadFromSysmem copy directly into/out of a pinned
// buffer at offset; no device round trip is needed since the buffer is
// host memory the device DMAs against independently.
func (m *Manager) WriteToSysmem(index int, offset int, data []byte) error {
	buf, err := m.buffer(index)
	if err != nil {
		return err
	}

	if offset+len(data) > len(buf.mem) {
		return errs.New(errs.OutOfBounds, "sysmem.Manager.WriteToSysmem", "write exceeds buffer size")
	}

	copy(buf.mem[offset:], data)

	return nil
}

func (m *Manager) ReadFromSysmem(index int, offset int, size int) ([]byte, error) {
	buf, err := m.buffer(index)
	if err != nil {
		return nil, err
	}

	if offset+size > len(buf.mem) {
		return nil, errs.New(errs.OutOfBounds, "sysmem.Manager.ReadFromSysmem", "read exceeds buffer size")
	}

	out := make([]byte, size)
	copy(out, buf.mem[offset:offset+size])

	return out, nil
}

// IOVA returns the device-visible address of buffer index, for callers
// handing a sysmem buffer to DmaD2HZeroCopy/DmaH2DZeroCopy.
func (m *Manager) IOVA(index int) (uint64, error) {
	buf, err := m.buffer(index)
	if err != nil {
		return 0, err
	}

	return buf.iova, nil
}

// Size returns the byte length of buffer index, for callers programming a
// PCIe iATU region against it.
func (m *Manager) Size(index int) (int, error) {
	buf, err := m.buffer(index)
	if err != nil {
		return 0, err
	}

	return len(buf.mem), nil
}

// Close releases every still-allocated buffer.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var first error

	for i, buf := range m.buffers {
		if buf == nil {
			continue
		}

		if err := m.driver.UnmapForDMA(buf.mem); err != nil && first == nil {
			first = err
		}

		m.buffers[i] = nil
	}

	return first
}
