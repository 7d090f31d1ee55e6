// Package fsx provides the small filesystem seam the cache coordinator
// needs: pluggable file I/O (for tests), advisory exclusive locking, and
// atomic writes.
//
// [Real] is the production implementation, wrapping the [os] package.
package fsx

import (
	"io"
	"os"
)

// File represents an open file descriptor.
//
// Satisfied by [os.File] and usable with all stdlib io functions.
type File interface {
	io.ReadWriteCloser
	io.Seeker

	// Fd returns the file descriptor. Used for flock(2).
	Fd() uintptr

	// Chmod sets the file's permissions. See [os.File.Chmod].
	Chmod(mode os.FileMode) error

	// Sync commits the file's contents to disk. See [os.File.Sync].
	Sync() error
}

// FS defines the filesystem operations the coordinator depends on.
//
// [Real] wraps the [os] package; another implementation can be substituted.
type FS interface {
	// Open opens a file (or directory, for fsync) for reading. See [os.Open].
	Open(path string) (File, error)

	// OpenFile opens a file with specified flags and permissions. See [os.OpenFile].
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// ReadFile reads an entire file into memory. See [os.ReadFile].
	ReadFile(path string) ([]byte, error)

	// MkdirAll creates a directory and all parents. See [os.MkdirAll].
	// No error if the directory already exists.
	MkdirAll(path string, perm os.FileMode) error

	// Remove deletes a file. See [os.Remove].
	Remove(path string) error

	// Rename moves/renames a file, atomic on the same filesystem. See [os.Rename].
	Rename(oldpath, newpath string) error
}

// Compile-time interface check.
var _ File = (*os.File)(nil)
