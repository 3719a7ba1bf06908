package tlb

import (
	"github.com/tenstorrent/tt-umd/internal/archimpl"
	"github.com/tenstorrent/tt-umd/internal/errs"
)

// ReadBlockReconfigure and WriteBlockReconfigure serve ranges larger than
// one TLB window by walking the handle's own size class one chunk at a
// time, reconfiguring the single TLB to a new LocalOffset before each chunk
// (spec.md §4.C's "reconfigure-and-stream" bulk-access mode, the one TLB
// windows have that sysmem buffers mapped via DMA don't need).
//
// base describes everything about the access except the address: target
// core/rectangle, NoC selector, ordering. Its LocalOffset field is
// overwritten per chunk and the caller's value there is ignored.
func (w *Window) WriteBlockReconfigure(base archimpl.TlbConfig, addr uint64, data []byte) error {
	chunk := int(w.usableSize())
	if chunk <= 0 {
		return errs.New(errs.OutOfBounds, "tlb.Window.WriteBlockReconfigure", "zero-size tlb window")
	}

	for off := 0; off < len(data); off += chunk {
		end := off + chunk
		if end > len(data) {
			end = len(data)
		}

		cfg := base
		cfg.LocalOffset = addr + uint64(off)

		if err := w.h.Configure(cfg); err != nil {
			return err
		}

		if err := w.WriteBlock(0, data[off:end]); err != nil {
			return err
		}
	}

	return nil
}

// ReadBlockReconfigure is WriteBlockReconfigure's read counterpart.
func (w *Window) ReadBlockReconfigure(base archimpl.TlbConfig, addr uint64, size int) ([]byte, error) {
	chunk := int(w.usableSize())
	if chunk <= 0 {
		return nil, errs.New(errs.OutOfBounds, "tlb.Window.ReadBlockReconfigure", "zero-size tlb window")
	}

	out := make([]byte, size)

	for off := 0; off < size; off += chunk {
		end := off + chunk
		if end > size {
			end = size
		}

		cfg := base
		cfg.LocalOffset = addr + uint64(off)

		if err := w.h.Configure(cfg); err != nil {
			return nil, err
		}

		got, err := w.ReadBlock(0, end-off)
		if err != nil {
			return nil, err
		}

		copy(out[off:end], got)
	}

	return out, nil
}

// NocMulticastWriteReconfigure programs base as a multicast TLB covering the
// rectangle [XStart,YStart]-[XEnd,YEnd] and streams data to it in one shot:
// multicast writes fan out to every core in the rectangle simultaneously, so
// unlike the unicast reconfigure loop there is nothing to chunk across
// multiple target addresses, only across the window's own size if data is
// larger than one window.
func (w *Window) NocMulticastWriteReconfigure(base archimpl.TlbConfig, addr uint64, data []byte) error {
	base.Multicast = true
	return w.WriteBlockReconfigure(base, addr, data)
}
