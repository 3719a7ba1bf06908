// Package kerneldriver models the consumed-not-defined kernel-driver
// contract from spec.md §6: TLB allocation, DMA mapping, and device reset
// ioctls. Driver is an interface so the rest of the module can run against
// either the real ioctl-backed implementation or the in-memory simulated
// one (spec.md §9's "simulator-backend glue beyond its abstract interface"
// is out of scope, but the interface itself is in scope).
package kerneldriver

import (
	"github.com/tenstorrent/tt-umd/internal/archimpl"
	"github.com/tenstorrent/tt-umd/internal/coretypes"
)

// ResetKind names one of the reset_device_ioctl kinds spec.md §6 lists.
type ResetKind int

const (
	ResetPcieLink ResetKind = iota
	AsicReset
	AsicDmcReset
	PostReset
	ConfigWrite
	RestoreState
)

// TlbHandle is what AllocateTLB hands back: the pool index the kernel
// assigned and the mmap'd window into the BAR that index's register
// currently addresses.
type TlbHandle struct {
	ID     int
	Window []byte
}

// Driver is the kernel-driver contract every TTDevice talks to. Real
// hardware implements it over ioctl/mmap against /dev/tenstorrent/<n>; the
// simulated implementation backs it with plain Go memory for tests.
type Driver interface {
	// AllocateTLB reserves one TLB of the given size class with the given
	// mapping attribute and returns its pool index and BAR-mapped window.
	AllocateTLB(size archimpl.TlbSizeClass, mapping coretypes.MappingKind) (TlbHandle, error)
	FreeTLB(id int) error

	// ConfigureTLB writes regBytes (8 or 12 bytes per spec.md §4.C) to the
	// control register for TLB id.
	ConfigureTLB(id int, regBytes []byte) error

	// MapForDMA pins a host buffer and returns the IOVA the device sees it
	// at; UnmapForDMA releases the pin.
	MapForDMA(buf []byte) (iova uint64, err error)
	UnmapForDMA(buf []byte) error

	// MapBufferToNoc programs (or asks the kernel driver to program) an
	// IATU-style mapping from a NoC address to a device-visible IO address.
	// Returns an errs.Unsupported error if the driver expects the caller to program
	// IATU itself (see ttdevice.ConfigureIATU).
	MapBufferToNoc(buf []byte) (nocAddr, deviceIOAddr uint64, err error)

	Reset(kind ResetKind) error

	// BAR returns the full mmap'd region for the given BAR index (0, 2, or
	// 4), so callers needing raw offsets (register accesses, IATU windows)
	// can slice into it directly.
	BAR(index int) ([]byte, error)

	Close() error
}
