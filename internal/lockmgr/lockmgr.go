// Package lockmgr implements the named, optionally cross-process mutexes
// spec.md §4.K describes: acquisition by (MutexKind, device id) returns a
// scoped guard that releases exactly once.
package lockmgr

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/tenstorrent/tt-umd/internal/coretypes"
	"github.com/tenstorrent/tt-umd/internal/errs"
)

type key struct {
	Kind     coretypes.MutexKind
	DeviceID int
}

// Guard is released exactly once, by Release or by the caller's own
// deferred call; a second Release is a no-op.
type Guard struct {
	release func()
	once    sync.Once
}

func (g *Guard) Release() {
	g.once.Do(func() {
		if g.release != nil {
			g.release()
		}
	})
}

// Manager owns one in-process sync.Mutex per (kind, device) pair, and
// optionally a cross-process flock file per pair when lockDir is non-empty
// (needed so two separate driver processes opening the same chip serialize
// against each other, not just goroutines within one process).
//
// Robustness policy (spec.md §9's open question): flock is released by the
// kernel the instant the holding process's file descriptor is closed,
// including on crash or kill -9, so a crashed holder never leaves the lock
// stuck — this module relies on that kernel guarantee instead of
// implementing its own stale-owner detection.
type Manager struct {
	mu      sync.Mutex
	locks   map[key]*sync.Mutex
	lockDir string
}

// New builds a Manager. If lockDir is empty, mutexes are process-local
// only (adequate for tests and single-process use); otherwise each
// (kind, device) pair also serializes across processes via flock on a file
// under lockDir.
func New(lockDir string) *Manager {
	return &Manager{locks: make(map[key]*sync.Mutex), lockDir: lockDir}
}

func (m *Manager) localMutex(k key) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	mu, ok := m.locks[k]
	if !ok {
		mu = &sync.Mutex{}
		m.locks[k] = mu
	}

	return mu
}

// Acquire blocks until the named mutex for (kind, deviceID) is held by no
// one else in this process, then (if lockDir is set) blocks on the
// cross-process flock too. The returned Guard releases both in reverse
// order.
func (m *Manager) Acquire(kind coretypes.MutexKind, deviceID int) (*Guard, error) {
	k := key{Kind: kind, DeviceID: deviceID}

	local := m.localMutex(k)
	local.Lock()

	var file *os.File

	if m.lockDir != "" {
		path := filepath.Join(m.lockDir, fmt.Sprintf("tt-umd-%s-%d.lock", kind, deviceID))

		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			local.Unlock()
			return nil, errs.Wrap(errs.Io, "lockmgr.Acquire", err)
		}

		if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
			f.Close()
			local.Unlock()

			return nil, errs.Wrap(errs.Io, "lockmgr.Acquire", err)
		}

		file = f
	}

	return &Guard{release: func() {
		if file != nil {
			unix.Flock(int(file.Fd()), unix.LOCK_UN)
			file.Close()
		}

		local.Unlock()
	}}, nil
}

// TryAcquire is Acquire's non-blocking counterpart, returning
// errs.Busy if the mutex is already held.
func (m *Manager) TryAcquire(kind coretypes.MutexKind, deviceID int) (*Guard, error) {
	k := key{Kind: kind, DeviceID: deviceID}

	local := m.localMutex(k)
	if !local.TryLock() {
		return nil, errs.New(errs.Busy, "lockmgr.TryAcquire", "mutex already held")
	}

	var file *os.File

	if m.lockDir != "" {
		path := filepath.Join(m.lockDir, fmt.Sprintf("tt-umd-%s-%d.lock", kind, deviceID))

		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			local.Unlock()
			return nil, errs.Wrap(errs.Io, "lockmgr.TryAcquire", err)
		}

		if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
			f.Close()
			local.Unlock()

			if err == unix.EWOULDBLOCK {
				return nil, errs.New(errs.Busy, "lockmgr.TryAcquire", "mutex already held by another process")
			}

			return nil, errs.Wrap(errs.Io, "lockmgr.TryAcquire", err)
		}

		file = f
	}

	return &Guard{release: func() {
		if file != nil {
			unix.Flock(int(file.Fd()), unix.LOCK_UN)
			file.Close()
		}

		local.Unlock()
	}}, nil
}
