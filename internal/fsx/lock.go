package fsx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by [Locker.TryLock] when the lock is held by
// another process, or by [Locker.LockWithTimeout] when the acquisition
// timeout expires.
var ErrWouldBlock = errors.New("fsx: lock would block")

// Locker provides exclusive file-based locking using flock(2).
//
// flock locks an inode (the open file), not a pathname: callers should lock
// a dedicated, stable sentinel path (coord.lock) and never replace that file
// while a lock may be held. Locker has no internal mutable state beyond its
// dependencies and is safe for concurrent use.
type Locker struct {
	fs FS
}

// NewLocker creates a Locker that uses the given filesystem for file operations.
func NewLocker(fs FS) *Locker {
	return &Locker{fs: fs}
}

// Lock represents a held exclusive file lock. Call [Lock.Close] to release it.
type Lock struct {
	mu   sync.Mutex
	file File
}

// Close releases the lock and closes the underlying file descriptor.
//
// Close is idempotent. On Unix, closing a file descriptor also releases any
// flock held by that descriptor, so Close attempts an explicit unlock first
// on a best-effort basis.
func (lk *Lock) Close() error {
	lk.mu.Lock()
	defer lk.mu.Unlock()

	if lk.file == nil {
		return nil
	}

	fd := int(lk.file.Fd())

	unlockErr := flockRetryEINTR(fd, unix.LOCK_UN)
	closeErr := lk.file.Close()
	lk.file = nil

	if unlockErr != nil {
		return fmt.Errorf("fsx: unlocking lock: %w", unlockErr)
	}

	if closeErr != nil {
		return fmt.Errorf("fsx: closing lock fd: %w", closeErr)
	}

	return nil
}

const (
	lockFilePerm = 0o644
	lockDirPerm  = 0o755
)

// Lock acquires an exclusive lock on the file at path, blocking until the
// lock is available. If the file or its parent directories do not exist,
// they are created lazily.
func (l *Locker) Lock(path string) (*Lock, error) {
	file, err := l.openLockFile(path)
	if err != nil {
		return nil, fmt.Errorf("fsx: opening lock file: %w", err)
	}

	if err := flockRetryEINTR(int(file.Fd()), unix.LOCK_EX); err != nil {
		_ = file.Close()

		return nil, fmt.Errorf("fsx: acquiring lock: %w", err)
	}

	return &Lock{file: file}, nil
}

// TryLock attempts to acquire an exclusive lock without blocking.
//
// Returns [ErrWouldBlock] immediately if the lock is held by another
// process. This is the primitive role election (§4.G step 3) is built on.
func (l *Locker) TryLock(path string) (*Lock, error) {
	file, err := l.openLockFile(path)
	if err != nil {
		return nil, fmt.Errorf("fsx: opening lock file: %w", err)
	}

	err = flockRetryEINTR(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		return &Lock{file: file}, nil
	}

	_ = file.Close()

	if isWouldBlock(err) {
		return nil, ErrWouldBlock
	}

	return nil, fmt.Errorf("fsx: acquiring lock: %w", err)
}

// LockWithTimeout attempts to acquire an exclusive lock, retrying with
// backoff until the timeout expires.
//
// Returns [ErrWouldBlock] if the timeout expires before the lock is
// acquired.
func (l *Locker) LockWithTimeout(path string, timeout time.Duration) (*Lock, error) {
	deadline := time.Now().Add(timeout)
	backoff := time.Millisecond

	for {
		lock, err := l.TryLock(path)
		if err == nil {
			return lock, nil
		}

		if !errors.Is(err, ErrWouldBlock) {
			return nil, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: timed out after %s", ErrWouldBlock, timeout)
		}

		sleep := backoff
		if sleep > remaining {
			sleep = remaining
		}

		time.Sleep(sleep)

		if backoff < 25*time.Millisecond {
			backoff *= 2
			if backoff > 25*time.Millisecond {
				backoff = 25 * time.Millisecond
			}
		}
	}
}

func (l *Locker) openLockFile(path string) (File, error) {
	flag := os.O_RDWR | os.O_CREATE

	f, err := l.fs.OpenFile(path, flag, lockFilePerm)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		return f, err
	}

	if err := l.fs.MkdirAll(filepath.Dir(path), lockDirPerm); err != nil {
		return nil, err
	}

	return l.fs.OpenFile(path, flag, lockFilePerm)
}

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN)
}

// flockRetryEINTR wraps flock, retrying on EINTR.
//
// EINTR means the syscall was interrupted by a signal before it could
// complete; the lock attempt itself didn't fail, it just needs retrying.
func flockRetryEINTR(fd int, how int) error {
	const maxEINTRRetries = 10000

	var err error
	for range maxEINTRRetries {
		err = unix.Flock(fd, how)
		if err == nil || !errors.Is(err, unix.EINTR) {
			return err
		}
	}

	return err
}
