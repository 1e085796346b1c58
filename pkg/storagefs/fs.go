// Package storagefs provides the filesystem abstraction the blob store is
// built on.
//
// The main types are:
//   - [FS]: filesystem operations needed to mount, grow, and recover a data
//     file
//   - [File]: an open file descriptor (satisfied by [os.File])
//   - [Real]: production implementation backed by the [os] package
//   - [Chaos]: a fault-injecting implementation used by crash-recovery tests
//   - [Locker]: flock(2)-based advisory locking for the per-store lock file
//
// Every disk access inside pkg/blockfs goes through an [FS]/[File] pair;
// nothing in the store calls [os] directly. That indirection is what lets
// the crash-recovery properties in the store's test suite be exercised
// against induced torn writes instead of merely asserted.
package storagefs

import (
	"io"
	"os"
)

// File represents an open data-file or lock-file descriptor.
//
// Satisfied by [os.File]. The store relies on [io.Seeker] for the
// seek-then-read/write idiom its write and read paths use, and on Fd for
// flock-based locking.
type File interface {
	io.ReadWriteCloser
	io.Seeker

	// Fd returns the file descriptor, used for [syscall.Flock].
	Fd() uintptr

	// Stat returns file info, used to recover a data file's current size
	// on mount and to verify lock-file identity.
	Stat() (os.FileInfo, error)

	// Sync commits the file's contents and metadata to stable storage.
	// The write path calls this twice per write (see pkg/blockfs), and the
	// crash-recovery properties in SPEC_FULL.md §8 only hold because every
	// Sync call here is a real fsync, never a no-op.
	Sync() error
}

// FS defines the filesystem operations the store needs: opening and growing
// a data file, atomically replacing the small mount-map file, and the
// directory/stat operations mount and close use.
type FS interface {
	// Open opens a file for reading. See [os.Open].
	Open(path string) (File, error)

	// OpenFile opens a file with explicit flags and permissions. The store
	// uses this for the data file (O_RDWR, created if absent) and for the
	// advisory lock file. See [os.OpenFile].
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// ReadFile reads an entire file into memory. Used to read the small
	// fixed-size mount-map file.
	ReadFile(path string) ([]byte, error)

	// WriteFileAtomic replaces a file's contents via temp-file-then-rename,
	// so a crash mid-write never leaves a half-written mount-map file. Used
	// only for that tiny bootstrap file, never for the data file itself
	// (which is updated in place per the node write path).
	WriteFileAtomic(path string, data []byte, perm os.FileMode) error

	// MkdirAll creates a directory and all parents, ignoring an
	// already-exists error. See [os.MkdirAll].
	MkdirAll(path string, perm os.FileMode) error

	// Stat returns file info. See [os.Stat].
	Stat(path string) (os.FileInfo, error)

	// Exists reports whether path exists. Returns (false, nil), not an
	// error, when the path is simply absent.
	Exists(path string) (bool, error)

	// Remove deletes a single file. Used by Store.Close when the caller
	// asks for an empty store's files to be removed.
	Remove(path string) error

	// Rename moves a file, kept on the interface alongside the rest of the
	// generic file operations even though the current mount-map-versioning
	// scheme (see pkg/blockfs/rotate.go) swaps identities by bumping the
	// version pointer rather than renaming a data file in place.
	Rename(oldpath, newpath string) error
}

// Compile-time interface check.
var _ File = (*os.File)(nil)
