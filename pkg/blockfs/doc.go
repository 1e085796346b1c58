// Package blockfs implements a single-file, keyed blob store: an embedded
// "filesystem" mapping string names to opaque byte payloads, held
// contiguously in one backing data file with an in-memory index, a
// size-sorted free list for first-fit reuse, and a crash-recovery scanner
// that resynchronizes on self-synchronizing status words.
//
// Basic usage:
//
//	store, err := blockfs.Mount(blockfs.MountOptions{
//		MountMapPath:           "/var/lib/app/store",
//		BlockSize:              4096,
//		FragmentationThreshold: 1.0,
//	})
//	if err != nil {
//		return err
//	}
//	defer store.Close(false)
//
//	if err := store.Write("greeting", []byte("hello")); err != nil {
//		return err
//	}
//
//	out := make([]byte, store.MustFilesize("greeting"))
//	if err := store.Read("greeting", out); err != nil {
//		return err
//	}
//
// Concurrency: a single [Store] may be used from many goroutines. Reads run
// in parallel with each other; writes and unlinks exclude all other
// operations on that store for their duration. A store opened while another
// process already holds its advisory lock mounts read-only: every mutating
// call returns [ErrReadOnly].
//
// Non-goals: no multi-node transactions, no payload checksums beyond the
// structural sentinel tags, no compaction beyond whole-node reuse, and no
// coordination between multiple writer processes (the second writer simply
// fails to acquire the lock and mounts read-only).
package blockfs
