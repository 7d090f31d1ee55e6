package coordinator

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/vncbridge/rfbcache/internal/fsx"
)

// Create determines this process's role for dir and returns a ready-to-use
// Coordinator, implementing the election algorithm of §4.G exactly:
//
//  1. Ensure dir exists. On failure: Standalone.
//  2. Derive coord.lock / coord.pid / coord.sock under dir.
//  3. Try a non-blocking exclusive lock on coord.lock.
//  4. Lock acquired: clean up a stale master's socket if coord.pid names a
//     dead process, record our PID, become Master.
//  5. Lock contended: if coord.pid names a dead process, wait briefly and
//     retry once; otherwise become Slave directly.
//  6. Any other filesystem error: Standalone.
//
// Create never returns a non-nil error for a degraded-but-valid outcome —
// Standalone is itself success, matching an implementation that always has
// a working (if uncoordinated) cache.
func Create(dir string, opts Options) (Coordinator, error) {
	opts = opts.withDefaults()

	real := fsx.NewReal()

	if err := real.MkdirAll(dir, 0o755); err != nil {
		opts.Logger.Info("coordinator: dir creation failed, falling back to standalone", map[string]any{"dir": dir, "error": err.Error()})

		return newStandalone(opts), nil
	}

	paths := layoutFor(dir)
	locker := fsx.NewLocker(real)

	lock, err := locker.TryLock(paths.lockPath)
	if err == nil {
		return becomeMaster(paths, real, lock, opts)
	}

	if !errors.Is(err, fsx.ErrWouldBlock) {
		opts.Logger.Info("coordinator: lock attempt failed, falling back to standalone", map[string]any{"error": err.Error()})

		return newStandalone(opts), nil
	}

	// Contended. If the holder's recorded PID is dead, it may be mid-exit
	// without having released the lock yet; give it a moment and retry once.
	pid, _ := readPIDFile(real, paths.pidPath)
	if !isProcessAlive(pid) {
		time.Sleep(staleRetryDelay)

		lock, err = locker.TryLock(paths.lockPath)
		if err == nil {
			return becomeMaster(paths, real, lock, opts)
		}

		if !errors.Is(err, fsx.ErrWouldBlock) {
			opts.Logger.Info("coordinator: retry lock attempt failed, falling back to standalone", map[string]any{"error": err.Error()})

			return newStandalone(opts), nil
		}
	}

	return newSlave(paths.sockPath, opts), nil
}

func becomeMaster(paths layout, fs fsx.FS, lock *fsx.Lock, opts Options) (Coordinator, error) {
	pid, _ := readPIDFile(fs, paths.pidPath)
	if pid != 0 && !isProcessAlive(pid) {
		_ = fs.Remove(paths.sockPath)
	}

	writer := fsx.NewAtomicWriter(fs)
	ourPID := strconv.Itoa(os.Getpid()) + "\n"

	if err := writer.WriteWithDefaults(paths.pidPath, strings.NewReader(ourPID)); err != nil {
		opts.Logger.Error("coordinator: writing pid file failed, falling back to standalone", err, nil)

		_ = lock.Close()

		return newStandalone(opts), nil
	}

	return newMaster(paths, fs, lock, opts), nil
}

// readPIDFile reads and parses the PID recorded at path. Returns (0, err)
// if the file is absent, empty, or not a valid integer — callers treat a
// zero PID the same as "no recorded master".
func readPIDFile(fs fsx.FS, path string) (int, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return 0, err
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, nil
	}

	pid, err := strconv.Atoi(text)
	if err != nil {
		return 0, err
	}

	return pid, nil
}

// isProcessAlive reports whether pid names a live process, using the
// signal-0 probe convention: sending signal 0 performs error checking
// without actually sending a signal.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}

	// EPERM means the process exists but we lack permission to signal it —
	// still alive, from our point of view.
	return errors.Is(err, unix.EPERM)
}
