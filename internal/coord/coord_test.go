package coord_test

import (
	"testing"

	"github.com/tenstorrent/tt-umd/internal/archimpl"
	"github.com/tenstorrent/tt-umd/internal/coord"
	"github.com/tenstorrent/tt-umd/internal/coretypes"
)

// TestHarvestedRowTranslation is end-to-end scenario 3 from spec.md §8:
// harvesting row 0 of Tensix should make logical (0,0) land on the NOC0
// row that used to be row 1.
func TestHarvestedRowTranslation(t *testing.T) {
	arch := archimpl.NewA()

	m, err := coord.New(arch, coord.HarvestingMasks{Tensix: 0b1}, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := m.Translate(coretypes.CoreCoord{X: 0, Y: 0, CoreType: coretypes.Tensix, CoordSystem: coretypes.Logical}, coretypes.NOC0)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	if got.Y != 2 {
		t.Fatalf("expected NOC0 y=2 for logical row 0 with row 0 harvested, got %d", got.Y)
	}
}

func TestTranslateRoundTrip(t *testing.T) {
	for _, arch := range []archimpl.Implementation{archimpl.NewA(), archimpl.NewB()} {
		m, err := coord.New(arch, coord.HarvestingMasks{}, false)
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		for _, c := range m.GetCores(coretypes.Tensix) {
			logical, err := m.Translate(c, coretypes.Logical)
			if err != nil {
				t.Fatalf("translate to logical: %v", err)
			}

			back, err := m.Translate(logical, coretypes.NOC0)
			if err != nil {
				t.Fatalf("translate back to noc0: %v", err)
			}

			if back != c {
				t.Fatalf("round trip mismatch: %+v != %+v", back, c)
			}
		}
	}
}

func TestGetCoresWithinUnharvestedGrid(t *testing.T) {
	arch := archimpl.NewA()

	m, err := coord.New(arch, coord.HarvestingMasks{Tensix: 0b11}, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	gx, gy := m.GetGridSize(coretypes.Tensix)

	for _, c := range m.GetCores(coretypes.Tensix) {
		logical, err := m.Translate(c, coretypes.Logical)
		if err != nil {
			t.Fatalf("translate: %v", err)
		}

		if logical.X >= gx || logical.Y >= gy {
			t.Fatalf("logical coord %+v out of dense grid (%d,%d)", logical, gx, gy)
		}
	}
}

func TestHarvestedCoreHasNoLogical(t *testing.T) {
	arch := archimpl.NewA()

	m, err := coord.New(arch, coord.HarvestingMasks{Tensix: 0b1}, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	harvested := m.GetHarvestedCores(coretypes.Tensix)
	if len(harvested) == 0 {
		t.Fatal("expected at least one harvested core")
	}

	if _, err := m.Translate(harvested[0], coretypes.Logical); err == nil {
		t.Fatal("expected NoSuchCoordinate translating a harvested core to Logical")
	}
}

func TestShuffleIdempotenceLaw(t *testing.T) {
	locations := []int{9, 0, 8, 1, 7, 2, 6, 3, 5, 4}
	layout := coord.LogicalHarvestingLayout(locations)

	for k := range locations {
		single := uint32(1) << uint(layout[k])

		shuffled := coord.ShuffleTensixHarvestingMask(locations, single)
		if shuffled != uint32(1)<<uint(k) {
			t.Fatalf("shuffle(single bit at layout[%d]=%d) = %#x, want bit %d set", k, layout[k], shuffled, k)
		}
	}
}
