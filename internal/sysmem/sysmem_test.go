package sysmem_test

import (
	"testing"

	"github.com/tenstorrent/tt-umd/internal/archimpl"
	"github.com/tenstorrent/tt-umd/internal/errs"
	"github.com/tenstorrent/tt-umd/internal/kerneldriver"
	"github.com/tenstorrent/tt-umd/internal/sysmem"
)

func TestWriteReadRoundTrip(t *testing.T) {
	driver := kerneldriver.NewSimulated(archimpl.NewB())
	m := sysmem.New(driver)

	idx, err := m.Allocate(64)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	want := []byte{1, 2, 3, 4}

	if err := m.WriteToSysmem(idx, 8, want); err != nil {
		t.Fatalf("WriteToSysmem: %v", err)
	}

	got, err := m.ReadFromSysmem(idx, 8, len(want))
	if err != nil {
		t.Fatalf("ReadFromSysmem: %v", err)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestReadFromSysmemRejectsOutOfBounds(t *testing.T) {
	driver := kerneldriver.NewSimulated(archimpl.NewB())
	m := sysmem.New(driver)

	idx, err := m.Allocate(16)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if _, err := m.ReadFromSysmem(idx, 10, 32); errs.Of(err) != errs.OutOfBounds {
		t.Fatalf("expected OutOfBounds, got %v", err)
	}
}

func TestReleaseThenAccessFails(t *testing.T) {
	driver := kerneldriver.NewSimulated(archimpl.NewB())
	m := sysmem.New(driver)

	idx, err := m.Allocate(16)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if err := m.Release(idx); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if _, err := m.ReadFromSysmem(idx, 0, 1); errs.Of(err) != errs.OutOfBounds {
		t.Fatalf("expected OutOfBounds after release, got %v", err)
	}
}
