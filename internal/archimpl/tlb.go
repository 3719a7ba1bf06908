package archimpl

import "github.com/tenstorrent/tt-umd/internal/coretypes"

// TlbSizeClass names one of the fixed TLB window sizes an architecture
// supports. Values are byte sizes so callers can compare directly.
type TlbSizeClass uint64

const (
	Size1MiB  TlbSizeClass = 1 << 20
	Size2MiB  TlbSizeClass = 1 << 21
	Size4GiB  TlbSizeClass = 1 << 32
	Size16MiB TlbSizeClass = 1 << 24
)

// BitField gives the inclusive [Low, High] bit positions of one TlbConfig
// field within a generation's packed TLB control register. Fields may
// straddle the 64-bit boundary (generation B's 96-bit register).
type BitField struct {
	Low, High int
}

func (b BitField) width() int { return b.High - b.Low + 1 }

// TlbOffsets gives the bit layout of every TlbConfig field for one size
// class of one architecture, as specified in spec.md §6.
type TlbOffsets struct {
	LocalOffset BitField
	XEnd        BitField
	YEnd        BitField
	XStart      BitField
	YStart      BitField
	NocSel      BitField
	Mcast       BitField
	Ordering    BitField
	Linked      BitField
	StaticVC    BitField
}

// TlbConfig bundles the fields a TLB control register encodes: an on-chip
// address prefix, a target (and, for multicast, source) coordinate
// rectangle, a NoC selector, ordering mode, and linked/static-VC flags.
type TlbConfig struct {
	LocalOffset uint64 // 36-bit on-chip address prefix
	XEnd, YEnd  int
	XStart      int // only meaningful when Multicast
	YStart      int // only meaningful when Multicast
	Noc         int // 0 or 1
	Multicast   bool
	Ordering    coretypes.Ordering
	Linked      bool
	StaticVC    bool
}

func setBits(lo, hi *uint64, f BitField, value uint64) {
	width := f.width()

	var mask uint64
	if width >= 64 {
		mask = ^uint64(0)
	} else {
		mask = (uint64(1) << uint(width)) - 1
	}

	value &= mask

	switch {
	case f.High < 64:
		*lo |= value << uint(f.Low)
	case f.Low >= 64:
		*hi |= value << uint(f.Low-64)
	default:
		lowWidth := 64 - f.Low
		*lo |= (value & ((uint64(1) << uint(lowWidth)) - 1)) << uint(f.Low)
		*hi |= value >> uint(lowWidth)
	}
}

// ApplyOffset encodes cfg into the register's (low64, high64) halves per
// the offsets layout. For 64-bit-register generations the high half is
// always zero and callers issue a single 64-bit store.
func ApplyOffset(o TlbOffsets, cfg TlbConfig) (low64, high64 uint64) {
	setBits(&low64, &high64, o.LocalOffset, cfg.LocalOffset)
	setBits(&low64, &high64, o.XEnd, uint64(cfg.XEnd))
	setBits(&low64, &high64, o.YEnd, uint64(cfg.YEnd))

	if cfg.Multicast {
		setBits(&low64, &high64, o.XStart, uint64(cfg.XStart))
		setBits(&low64, &high64, o.YStart, uint64(cfg.YStart))
	}

	setBits(&low64, &high64, o.NocSel, uint64(cfg.Noc))

	if cfg.Multicast {
		setBits(&low64, &high64, o.Mcast, 1)
	}

	setBits(&low64, &high64, o.Ordering, uint64(cfg.Ordering))

	if cfg.Linked {
		setBits(&low64, &high64, o.Linked, 1)
	}

	if cfg.StaticVC {
		setBits(&low64, &high64, o.StaticVC, 1)
	}

	return low64, high64
}

// StaticTlb names a pre-reserved TLB index an architecture's kernel driver
// and firmware agree on; the pool allocator never hands these out.
type StaticTlb int

const (
	RegTLB StaticTlb = iota
	MemLargeWriteTLB
	MemLargeReadTLB
	MemSmallRWTLB
)
