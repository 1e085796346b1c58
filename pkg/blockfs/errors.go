package blockfs

import "errors"

// Error classification. Implementations and callers classify with
// [errors.Is]; these sentinels are wrapped with additional context via
// fmt.Errorf("...: %w", ...) wherever more detail is available.
var (
	// ErrNotFound indicates the requested name is absent from the index.
	ErrNotFound = errors.New("blockfs: not found")

	// ErrReadOnly indicates a write/unlink was attempted on a store that is
	// not the data owner (it failed to acquire the advisory lock at mount).
	ErrReadOnly = errors.New("blockfs: read-only store")

	// ErrCorrupt indicates damage that cannot be resynced: a mount-map magic
	// mismatch, or a short read of required header fields that is not EOF.
	ErrCorrupt = errors.New("blockfs: corrupt")

	// ErrIoFailure wraps a seek/read/write/fsync failure.
	ErrIoFailure = errors.New("blockfs: io failure")

	// ErrAlreadyMounted indicates a caller explicitly asked to detect the
	// non-owner case (see [MountOptions.FailIfNotOwner]) and the advisory
	// lock was already held.
	ErrAlreadyMounted = errors.New("blockfs: already mounted")

	// ErrInvalidOptions indicates MountOptions failed validation before any
	// I/O was attempted.
	ErrInvalidOptions = errors.New("blockfs: invalid options")

	// ErrClosed indicates an operation was attempted on a closed store.
	ErrClosed = errors.New("blockfs: store closed")
)
