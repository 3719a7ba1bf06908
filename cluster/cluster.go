// Package cluster implements the top-level façade spec.md §4.I describes:
// an immutable topology plus the map of every chip it owns, brought up and
// torn down in dependency order. Grounded on gokvm's main.go/vmm package,
// which sequences a VM's device construction and teardown the same way —
// build every piece, start them in dependency order, and reverse that order
// on the way down.
package cluster

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	cd "github.com/tenstorrent/tt-umd/clusterdescriptor"
	"github.com/tenstorrent/tt-umd/internal/chip"
	"github.com/tenstorrent/tt-umd/internal/coretypes"
	"github.com/tenstorrent/tt-umd/internal/errs"
)

// Cluster owns a verified topology and every chip built against it.
// Construction (enumerating local chips via the kernel driver, wiring
// RemoteChips through their closest MMIO-capable sibling) is the caller's
// responsibility via New — the kernel-driver device-enumeration glue is
// explicitly out of this module's abstracted scope (spec.md §1), so Cluster
// takes already-built chips rather than walking /dev itself.
type Cluster struct {
	desc  *cd.Descriptor
	chips map[cd.ChipID]*chip.Chip

	// startOrder is leaves-first (non-MMIO chips before the MMIO chip that
	// tunnels to them), closeOrder is its reverse, per spec.md §4.I.
	startOrder []cd.ChipID
	closeOrder []cd.ChipID
}

// New builds a Cluster from a verified descriptor and a complete chip map.
// It returns an error if the descriptor failed fatal verification or if
// chips is missing an entry the descriptor names.
func New(desc *cd.Descriptor, chips map[cd.ChipID]*chip.Chip) (*Cluster, error) {
	if res := desc.Verify(); !res.OK() {
		return nil, errs.New(errs.Verification, "cluster.New", res.Fatal[0])
	}

	for _, id := range desc.Chips() {
		if _, ok := chips[id]; !ok {
			return nil, errs.New(errs.Verification, "cluster.New", "descriptor names a chip with no matching Chip instance")
		}
	}

	order := leavesFirstOrder(desc)
	reversed := make([]cd.ChipID, len(order))

	for i, id := range order {
		reversed[len(order)-1-i] = id
	}

	return &Cluster{desc: desc, chips: chips, startOrder: order, closeOrder: reversed}, nil
}

// leavesFirstOrder places every non-MMIO chip before the MMIO chip it's
// tunnelled through, so StartAll never starts a RemoteChip before the local
// chip whose Communication it needs is already up.
func leavesFirstOrder(desc *cd.Descriptor) []cd.ChipID {
	ids := desc.Chips()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var leaves, mmio []cd.ChipID

	for _, id := range ids {
		if desc.IsMMIOCapable(id) {
			mmio = append(mmio, id)
		} else {
			leaves = append(leaves, id)
		}
	}

	return append(leaves, mmio...)
}

func (c *Cluster) Descriptor() *cd.Descriptor { return c.desc }

func (c *Cluster) Chip(id cd.ChipID) (*chip.Chip, error) {
	ch, ok := c.chips[id]
	if !ok {
		return nil, errs.New(errs.OutOfBounds, "cluster.Cluster.Chip", "unknown chip id")
	}

	return ch, nil
}

// StartAll brings every chip up in leaves-first order, in parallel within
// the same tier isn't attempted since tiers overlap only by one hop; each
// chip's own StartDevice call is itself cheap and safe to serialize.
func (c *Cluster) StartAll() error {
	for _, id := range c.startOrder {
		if err := c.chips[id].StartDevice(); err != nil {
			return err
		}
	}

	return nil
}

// CloseAll tears every chip down in the reverse of StartAll's order.
func (c *Cluster) CloseAll() error {
	var first error

	for _, id := range c.closeOrder {
		if err := c.chips[id].CloseDevice(); err != nil && first == nil {
			first = err
		}
	}

	return first
}

// ChipFilter selects a subset of chips for a broadcast operation.
type ChipFilter func(id cd.ChipID, info cd.ChipInfo) bool

// AllChips is the trivial ChipFilter that selects every chip.
func AllChips(cd.ChipID, cd.ChipInfo) bool { return true }

// BroadcastWrite writes data to core at addr on every chip filter selects,
// running one goroutine per matching chip via errgroup so a slow or wedged
// chip doesn't block the others (grounded on gokvm's vmm construction
// sequencing, which fans out per-device setup the same way).
func (c *Cluster) BroadcastWrite(filter ChipFilter, data []byte, core coretypes.CoreCoord, addr uint64) error {
	g, _ := errgroup.WithContext(context.Background())

	for _, id := range c.startOrder {
		info, ok := c.desc.Info(id)
		if !ok || !filter(id, info) {
			continue
		}

		target := c.chips[id]

		g.Go(func() error {
			return target.WriteToDevice(data, core, addr)
		})
	}

	return g.Wait()
}

// WaitForNonMmioFlush waits for every chip's outstanding Ethernet-tunnelled
// writes to drain, cluster-wide.
func (c *Cluster) WaitForNonMmioFlush() error {
	g, _ := errgroup.WithContext(context.Background())

	for _, id := range c.startOrder {
		target := c.chips[id]

		g.Go(func() error {
			return target.WaitForNonMmioFlush()
		})
	}

	return g.Wait()
}

// DeassertRiscResetAll deassert-resets which on every Tensix core of every
// chip in the cluster.
func (c *Cluster) DeassertRiscResetAll(which coretypes.RiscCore, staggered bool) error {
	for _, id := range c.startOrder {
		if err := c.chips[id].DeassertRiscResetAllTensix(which, staggered); err != nil {
			return err
		}
	}

	return nil
}

// ClockMap reports every chip's current AICLK, keyed by chip id.
func (c *Cluster) ClockMap() (map[cd.ChipID]int, error) {
	out := make(map[cd.ChipID]int, len(c.chips))

	for _, id := range c.startOrder {
		mhz, err := c.chips[id].GetClock()
		if err != nil {
			return nil, err
		}

		out[id] = mhz
	}

	return out, nil
}
