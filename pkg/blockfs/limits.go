package blockfs

// Hardcoded implementation limits.
//
// These exist to keep arithmetic safely away from overflow boundaries and
// to bound resource use for configurations nothing here tests. Violations
// are reported as [ErrInvalidOptions]: MountOptions limits before a store is
// mounted, the name-length limit by [Store.Write].
const (
	// minBlockSize is the smallest allocation quantum accepted. Smaller
	// values make the per-node header overhead dominate any realistic
	// payload.
	minBlockSize = 16

	// maxBlockSize bounds how much a single new-name write can overallocate
	// by rounding up.
	maxBlockSize = 1 << 30 // 1 GiB

	// maxNameLen bounds a node's persisted name length.
	maxNameLen = 4096

	// maxDataSize bounds the data_size the recovery scanner accepts. Guards
	// against a corrupt on-disk data_size field driving an enormous
	// allocation during recovery.
	maxDataSize = 1 << 34 // 16 GiB

	// maxMaxCacheSize bounds MountOptions.MaxCacheSize.
	maxMaxCacheSize = 1 << 30 // 1 GiB
)
