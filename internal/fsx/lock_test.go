package fsx

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func Test_Locker_TryLock_Returns_ErrWouldBlock_When_Path_Is_Locked(t *testing.T) {
	t.Parallel()

	locker := NewLocker(NewReal())
	path := filepath.Join(t.TempDir(), "coord.lock")

	lock1, err := locker.TryLock(path)
	if err != nil {
		t.Fatalf("TryLock(%q): %v", path, err)
	}
	t.Cleanup(func() { _ = lock1.Close() })

	lock2, err := locker.TryLock(path)
	if !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("TryLock(%q) while locked: err=%v, want %v", path, err, ErrWouldBlock)
	}
	if lock2 != nil {
		_ = lock2.Close()
		t.Fatalf("TryLock(%q) while locked: want lock=nil, got non-nil", path)
	}

	if err := lock1.Close(); err != nil {
		t.Fatalf("Close(): %v", err)
	}

	lock3, err := locker.TryLock(path)
	if err != nil {
		t.Fatalf("TryLock(%q) after release: %v", path, err)
	}
	if err := lock3.Close(); err != nil {
		t.Fatalf("Close(): %v", err)
	}
}

func Test_Locker_LockWithTimeout_Returns_ErrWouldBlock_When_Path_Is_Locked(t *testing.T) {
	t.Parallel()

	locker := NewLocker(NewReal())
	path := filepath.Join(t.TempDir(), "coord.lock")

	lock1, err := locker.Lock(path)
	if err != nil {
		t.Fatalf("Lock(%q): %v", path, err)
	}
	defer lock1.Close()

	_, err = locker.LockWithTimeout(path, 50*time.Millisecond)
	if !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("LockWithTimeout(%q): err=%v, want %v", path, err, ErrWouldBlock)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("LockWithTimeout(%q): err=%q, want substring %q", path, err.Error(), "timed out")
	}
}

func Test_Locker_Lock_Creates_Missing_Parent_Dirs(t *testing.T) {
	t.Parallel()

	locker := NewLocker(NewReal())
	path := filepath.Join(t.TempDir(), "nested", "dir", "coord.lock")

	lock, err := locker.Lock(path)
	if err != nil {
		t.Fatalf("Lock(%q): %v", path, err)
	}
	defer lock.Close()
}

func Test_Lock_Close_Is_Idempotent(t *testing.T) {
	t.Parallel()

	locker := NewLocker(NewReal())
	path := filepath.Join(t.TempDir(), "coord.lock")

	lock, err := locker.Lock(path)
	if err != nil {
		t.Fatalf("Lock(%q): %v", path, err)
	}

	if err := lock.Close(); err != nil {
		t.Fatalf("first Close(): %v", err)
	}
	if err := lock.Close(); err != nil {
		t.Fatalf("second Close(): %v", err)
	}
}

// A released lock must be immediately re-acquirable by a different Locker,
// simulating a second process racing to become master.
func Test_Locker_Second_Locker_Acquires_After_Release(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "coord.lock")

	lockerA := NewLocker(NewReal())
	lockerB := NewLocker(NewReal())

	lockA, err := lockerA.TryLock(path)
	if err != nil {
		t.Fatalf("lockerA.TryLock: %v", err)
	}

	if _, err := lockerB.TryLock(path); !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("lockerB.TryLock while held: err=%v, want %v", err, ErrWouldBlock)
	}

	if err := lockA.Close(); err != nil {
		t.Fatalf("lockA.Close(): %v", err)
	}

	lockB, err := lockerB.TryLock(path)
	if err != nil {
		t.Fatalf("lockerB.TryLock after release: %v", err)
	}
	defer lockB.Close()
}
