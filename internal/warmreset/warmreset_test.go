package warmreset_test

import (
	"testing"
	"time"

	"github.com/tenstorrent/tt-umd/internal/archimpl"
	"github.com/tenstorrent/tt-umd/internal/arc"
	"github.com/tenstorrent/tt-umd/internal/kerneldriver"
	"github.com/tenstorrent/tt-umd/internal/warmreset"
)

type fakeMessenger struct{ calls int }

func (m *fakeMessenger) SendMessage(code uint32, args []uint16, timeout time.Duration) (arc.Response, error) {
	m.calls++
	return arc.Response{}, nil
}

func TestWarmResetRunsAllStages(t *testing.T) {
	if testing.Short() {
		t.Skip("exercises the real (>=2s) minimum post-reset wait")
	}

	arch := archimpl.NewB()
	devices := []kerneldriver.Driver{kerneldriver.NewSimulated(arch), kerneldriver.NewSimulated(arch)}

	if err := warmreset.WarmReset(devices, false, 0); err != nil {
		t.Fatalf("WarmReset: %v", err)
	}
}

func TestWarmResetM3UsesSuppliedTimeout(t *testing.T) {
	arch := archimpl.NewB()
	devices := []kerneldriver.Driver{kerneldriver.NewSimulated(arch)}

	start := time.Now()

	if err := warmreset.WarmReset(devices, true, 50*time.Millisecond); err != nil {
		t.Fatalf("WarmReset: %v", err)
	}

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("WarmReset took %v, expected to honor the short m3 timeout", elapsed)
	}
}

func TestBlackholeLegacy(t *testing.T) {
	arch := archimpl.NewB()
	devices := []kerneldriver.Driver{kerneldriver.NewSimulated(arch)}

	if err := warmreset.BlackholeLegacy(devices); err != nil {
		t.Fatalf("BlackholeLegacy: %v", err)
	}
}

func TestWormholeLegacySendsStateThenTriggerPerChip(t *testing.T) {
	arch := archimpl.NewA()
	devices := []kerneldriver.Driver{kerneldriver.NewSimulated(arch)}
	msgr := &fakeMessenger{}

	if err := warmreset.WormholeLegacy(devices, []arc.Messenger{msgr}, arch, true); err != nil {
		t.Fatalf("WormholeLegacy: %v", err)
	}

	if msgr.calls != 2 {
		t.Fatalf("expected 2 arc messages (state3 + trigger reset), got %d", msgr.calls)
	}
}
