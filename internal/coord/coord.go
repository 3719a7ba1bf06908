// Package coord implements the multi-system coordinate translator (spec.md
// §4.B): given per-chip harvesting and a NOC-translation flag, it builds
// bidirectional maps among Logical, NOC0, NOC1, and Translated coordinates
// for every core type, so downstream callers can work in whichever system
// is convenient.
package coord

import (
	"fmt"

	"github.com/tenstorrent/tt-umd/internal/archimpl"
	"github.com/tenstorrent/tt-umd/internal/coretypes"
	"github.com/tenstorrent/tt-umd/internal/errs"
)

// physKey identifies one physical (NOC0) location of one core type, the
// key every coordinate system's mapping for that core is filed under.
type physKey struct {
	T    coretypes.CoreType
	X, Y int
}

// Manager is a built, immutable coordinate translator for one chip.
type Manager struct {
	arch           archimpl.Implementation
	nocTranslation bool

	harvested map[coretypes.CoreType]map[int]bool // type -> NOC0-order index -> harvested?
	noc0Order map[coretypes.CoreType][]archimpl.Point

	// toPhys maps any (system, coord) to the core's physical NOC0 point;
	// byPhys maps the physical point back to that core's coordinate in
	// every system it has one in -- together these implement translate,
	// to_noc0, from_noc0 and to_core_type from spec.md §4.B.
	toPhys map[coretypes.CoreCoord]archimpl.Point
	byPhys map[physKey]map[coretypes.CoordSystem]coretypes.CoreCoord

	// byPoint supports to_core_type((x,y), system) -> CoreCoord without
	// knowing the type in advance.
	byPoint map[coretypes.CoordSystem]map[archimpl.Point]coretypes.CoreCoord

	gridUnharvested map[coretypes.CoreType][2]int
}

var allCoreTypes = []coretypes.CoreType{
	coretypes.Tensix, coretypes.DRAM, coretypes.Ethernet, coretypes.ARC,
	coretypes.PCIe, coretypes.Router, coretypes.Security, coretypes.L2CPU,
}

// New builds a Manager for one chip's harvesting state.
func New(arch archimpl.Implementation, masks HarvestingMasks, nocTranslationEnabled bool) (*Manager, error) {
	m := &Manager{
		arch:            arch,
		nocTranslation:  nocTranslationEnabled,
		harvested:       make(map[coretypes.CoreType]map[int]bool),
		noc0Order:       make(map[coretypes.CoreType][]archimpl.Point),
		toPhys:          make(map[coretypes.CoreCoord]archimpl.Point),
		byPhys:          make(map[physKey]map[coretypes.CoordSystem]coretypes.CoreCoord),
		byPoint:         make(map[coretypes.CoordSystem]map[archimpl.Point]coretypes.CoreCoord),
		gridUnharvested: make(map[coretypes.CoreType][2]int),
	}

	for _, sys := range []coretypes.CoordSystem{coretypes.Logical, coretypes.NOC0, coretypes.NOC1, coretypes.Translated} {
		m.byPoint[sys] = make(map[archimpl.Point]coretypes.CoreCoord)
	}

	m.computeHarvesting(masks)
	m.buildNoc0Identity()
	m.buildTensixLogical()
	m.buildDramLogical()
	m.build1DLogical(coretypes.Ethernet)
	m.build1DLogical(coretypes.ARC)
	m.build1DLogical(coretypes.PCIe)
	m.buildNoLogical(coretypes.Router)
	m.buildNoLogical(coretypes.Security)
	m.buildNoLogical(coretypes.L2CPU)
	m.buildTranslated()
	m.buildNoc1()

	return m, nil
}

func (m *Manager) computeHarvesting(masks HarvestingMasks) {
	maskFor := func(t coretypes.CoreType) uint32 {
		switch t {
		case coretypes.Tensix:
			return masks.Tensix
		case coretypes.DRAM:
			return masks.Dram
		case coretypes.Ethernet:
			return masks.Eth
		case coretypes.PCIe:
			return masks.Pcie
		case coretypes.L2CPU:
			return masks.L2CPU
		default:
			return 0
		}
	}

	countFor := func(t coretypes.CoreType) int {
		switch t {
		case coretypes.Tensix:
			_, rows := m.arch.GridSize(coretypes.Tensix)
			return rows
		case coretypes.DRAM:
			return len(m.arch.DramCoresNoc0())
		default:
			return len(m.arch.CoresNoc0(t))
		}
	}

	for _, t := range allCoreTypes {
		m.harvested[t] = indicesFromMask(maskFor(t), countFor(t))
	}
}

func indicesFromMask(mask uint32, n int) map[int]bool {
	h := make(map[int]bool)

	for k := 0; k < 32 && k < n; k++ {
		if mask&(uint32(1)<<uint(k)) != 0 {
			h[k] = true
		}
	}

	return h
}

// register files coord (some system) as naming the physical core at phys.
func (m *Manager) register(t coretypes.CoreType, sys coretypes.CoordSystem, x, y int, phys archimpl.Point) {
	c := coretypes.CoreCoord{X: x, Y: y, CoreType: t, CoordSystem: sys}
	m.toPhys[c] = phys

	pk := physKey{t, phys.X, phys.Y}
	if m.byPhys[pk] == nil {
		m.byPhys[pk] = make(map[coretypes.CoordSystem]coretypes.CoreCoord)
	}

	m.byPhys[pk][sys] = c
	m.byPoint[sys][archimpl.Point{X: x, Y: y}] = c
}

// buildNoc0Identity implements construction step 1: identity-map every
// NOC0 core of every type to itself, absent any Logical semantics computed
// later.
func (m *Manager) buildNoc0Identity() {
	for _, t := range allCoreTypes {
		pts := m.arch.CoresNoc0(t)
		m.noc0Order[t] = pts

		for _, p := range pts {
			m.register(t, coretypes.NOC0, p.X, p.Y, p)
		}
	}
}

// buildTensixLogical implements construction step 2.
func (m *Manager) buildTensixLogical() {
	cols, rows := m.arch.GridSize(coretypes.Tensix)
	pts := m.noc0Order[coretypes.Tensix]

	logicalY := 0

	for row := 0; row < rows; row++ {
		if m.harvested[coretypes.Tensix][row] {
			continue
		}

		for x := 0; x < cols; x++ {
			idx := row*cols + x
			if idx >= len(pts) {
				continue
			}

			m.register(coretypes.Tensix, coretypes.Logical, x, logicalY, pts[idx])
		}

		logicalY++
	}

	m.gridUnharvested[coretypes.Tensix] = [2]int{cols, logicalY}
}

// buildDramLogical implements construction step 3.
func (m *Manager) buildDramLogical() {
	dramNoc0 := m.arch.DramCoresNoc0()
	logicalBank := 0

	for bank := range dramNoc0 {
		if m.harvested[coretypes.DRAM][bank] {
			continue
		}

		for port, p := range dramNoc0[bank] {
			m.register(coretypes.DRAM, coretypes.Logical, port, logicalBank, p)
		}

		logicalBank++
	}

	ports := 0
	if len(dramNoc0) > 0 {
		ports = len(dramNoc0[0])
	}

	m.gridUnharvested[coretypes.DRAM] = [2]int{ports, logicalBank}
}

// build1DLogical implements construction steps 4-5: a 1D logical index maps
// directly through the arch's NOC0 list for the type, skipping harvested
// units and compacting the remaining ones.
func (m *Manager) build1DLogical(t coretypes.CoreType) {
	pts := m.noc0Order[t]
	logical := 0

	for k, p := range pts {
		if m.harvested[t][k] {
			continue
		}

		m.register(t, coretypes.Logical, logical, 0, p)
		logical++
	}

	m.gridUnharvested[t] = [2]int{logical, 1}
}

// buildNoLogical implements construction step 6: Router, Security, and
// L2CPU have no Logical coordinate.
func (m *Manager) buildNoLogical(t coretypes.CoreType) {
	m.gridUnharvested[t] = [2]int{0, 0}
}

// dramTranslator is an optional capability an Implementation can satisfy to
// override the default Translated-DRAM bank ordering (generation B's "move
// harvested bank to the back" rule, spec.md §4.B step 7).
type dramTranslator interface {
	TranslateDramBankOrder(surviving, harvestedBanks []int) []int
}

// buildTranslated implements construction step 7.
func (m *Manager) buildTranslated() {
	if !m.nocTranslation || !m.arch.NocTranslationCapable() {
		for _, t := range allCoreTypes {
			for _, p := range m.noc0Order[t] {
				m.register(t, coretypes.Translated, p.X, p.Y, p)
			}
		}

		return
	}

	m.buildTranslatedTensix()
	m.buildTranslatedDram()

	for _, t := range []coretypes.CoreType{
		coretypes.Ethernet, coretypes.ARC, coretypes.PCIe,
		coretypes.Router, coretypes.Security, coretypes.L2CPU,
	} {
		for _, p := range m.noc0Order[t] {
			m.register(t, coretypes.Translated, p.X, p.Y, p)
		}
	}
}

// buildTranslatedTensix places unharvested rows starting at the arch's
// translated origin and appends harvested rows after.
func (m *Manager) buildTranslatedTensix() {
	cols, rows := m.arch.GridSize(coretypes.Tensix)
	originX, originY := m.arch.TensixTranslatedOrigin()
	pts := m.noc0Order[coretypes.Tensix]

	var unharvestedRows, harvestedRows []int

	for row := 0; row < rows; row++ {
		if m.harvested[coretypes.Tensix][row] {
			harvestedRows = append(harvestedRows, row)
		} else {
			unharvestedRows = append(unharvestedRows, row)
		}
	}

	assign := func(row, translatedY int) {
		for x := 0; x < cols; x++ {
			idx := row*cols + x
			if idx >= len(pts) {
				continue
			}

			m.register(coretypes.Tensix, coretypes.Translated, originX+x, translatedY, pts[idx])
		}
	}

	for i, row := range unharvestedRows {
		assign(row, originY+i)
	}

	for i, row := range harvestedRows {
		assign(row, originY+len(unharvestedRows)+i)
	}
}

// buildTranslatedDram implements the DRAM reordering rule described in
// spec.md §4.B step 7. Generation B overrides via the optional
// dramTranslator hook; generation A's variant (first bank Ethernet-aligned
// and fixed, remaining banks Tensix-aligned with the harvested one moved to
// the tail) is the default when no hook is present.
func (m *Manager) buildTranslatedDram() {
	dramNoc0 := m.arch.DramCoresNoc0()
	if len(dramNoc0) == 0 {
		return
	}

	var surviving, harvestedBanks []int

	for bank := range dramNoc0 {
		if m.harvested[coretypes.DRAM][bank] {
			harvestedBanks = append(harvestedBanks, bank)
		} else {
			surviving = append(surviving, bank)
		}
	}

	var order []int

	if dt, ok := m.arch.(dramTranslator); ok {
		order = dt.TranslateDramBankOrder(surviving, harvestedBanks)
	} else {
		fixed := 0
		rest := make([]int, 0, len(dramNoc0)-1)

		for bank := 1; bank < len(dramNoc0); bank++ {
			if !m.harvested[coretypes.DRAM][bank] {
				rest = append(rest, bank)
			}
		}

		for bank := 1; bank < len(dramNoc0); bank++ {
			if m.harvested[coretypes.DRAM][bank] {
				rest = append(rest, bank)
			}
		}

		order = append([]int{fixed}, rest...)
	}

	for translatedY, bank := range order {
		if bank < 0 || bank >= len(dramNoc0) {
			continue
		}

		for port, p := range dramNoc0[bank] {
			m.register(coretypes.DRAM, coretypes.Translated, port, translatedY, p)
		}
	}
}

// buildNoc1 implements construction step 8.
func (m *Manager) buildNoc1() {
	perm := m.arch.Noc0ToNoc1()
	if perm == nil {
		return
	}

	for _, t := range allCoreTypes {
		for _, p := range m.noc0Order[t] {
			n1, ok := perm[p]
			if !ok {
				continue
			}

			m.register(t, coretypes.NOC1, n1.X, n1.Y, p)
		}
	}
}

// Translate converts c into the target coordinate system. It fails with
// errs.NoSuchCoordinate if c is not a known coordinate, or if c names a
// harvested unit and target has no coordinate for it (e.g. Logical).
func (m *Manager) Translate(c coretypes.CoreCoord, target coretypes.CoordSystem) (coretypes.CoreCoord, error) {
	phys, ok := m.toPhys[c]
	if !ok {
		return coretypes.CoreCoord{}, errs.New(errs.NoSuchCoordinate, "coord.Translate",
			fmt.Sprintf("no such %s coordinate %+v", c.CoordSystem, c))
	}

	out, ok := m.byPhys[physKey{c.CoreType, phys.X, phys.Y}][target]
	if !ok {
		return coretypes.CoreCoord{}, errs.New(errs.NoSuchCoordinate, "coord.Translate",
			fmt.Sprintf("core at noc0(%d,%d) type %s has no %s coordinate (harvested?)", phys.X, phys.Y, c.CoreType, target))
	}

	return out, nil
}

// ToCoreType recovers the core at a physical point in the given system,
// e.g. to identify what occupies a NOC0 (x, y) pair.
func (m *Manager) ToCoreType(x, y int, sys coretypes.CoordSystem) (coretypes.CoreCoord, error) {
	c, ok := m.byPoint[sys][archimpl.Point{X: x, Y: y}]
	if !ok {
		return coretypes.CoreCoord{}, errs.New(errs.NoSuchCoordinate, "coord.ToCoreType",
			fmt.Sprintf("no core at %s (%d,%d)", sys, x, y))
	}

	return c, nil
}

// GetCores returns every unharvested NOC0 coordinate of the given type.
func (m *Manager) GetCores(t coretypes.CoreType) []coretypes.CoreCoord {
	var out []coretypes.CoreCoord

	harvested := make(map[archimpl.Point]bool)
	for _, c := range m.GetHarvestedCores(t) {
		harvested[archimpl.Point{X: c.X, Y: c.Y}] = true
	}

	for _, p := range m.noc0Order[t] {
		if harvested[p] {
			continue
		}

		if c, ok := m.byPhys[physKey{t, p.X, p.Y}][coretypes.NOC0]; ok {
			out = append(out, c)
		}
	}

	return out
}

// GetHarvestedCores returns the NOC0 coordinates of harvested units of t.
func (m *Manager) GetHarvestedCores(t coretypes.CoreType) []coretypes.CoreCoord {
	var out []coretypes.CoreCoord

	switch t {
	case coretypes.Tensix:
		cols, rows := m.arch.GridSize(coretypes.Tensix)
		pts := m.noc0Order[coretypes.Tensix]

		for row := 0; row < rows; row++ {
			if !m.harvested[coretypes.Tensix][row] {
				continue
			}

			for x := 0; x < cols; x++ {
				idx := row*cols + x
				if idx < len(pts) {
					p := pts[idx]
					out = append(out, coretypes.CoreCoord{X: p.X, Y: p.Y, CoreType: t, CoordSystem: coretypes.NOC0})
				}
			}
		}
	case coretypes.DRAM:
		for bank, ports := range m.arch.DramCoresNoc0() {
			if !m.harvested[coretypes.DRAM][bank] {
				continue
			}

			for _, p := range ports {
				out = append(out, coretypes.CoreCoord{X: p.X, Y: p.Y, CoreType: t, CoordSystem: coretypes.NOC0})
			}
		}
	default:
		pts := m.noc0Order[t]
		for k, p := range pts {
			if m.harvested[t][k] {
				out = append(out, coretypes.CoreCoord{X: p.X, Y: p.Y, CoreType: t, CoordSystem: coretypes.NOC0})
			}
		}
	}

	return out
}

// GetGridSize returns the post-harvest dense grid dimensions for t.
func (m *Manager) GetGridSize(t coretypes.CoreType) (int, int) {
	g := m.gridUnharvested[t]

	return g[0], g[1]
}
