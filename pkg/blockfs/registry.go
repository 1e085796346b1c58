package blockfs

import (
	"fmt"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/blockfs/blockfs/pkg/storagefs"
)

// fileIdentity identifies a data file by device and inode, so that two
// Mount calls against the same path within one process share one rw-lock
// and one I/O mutex instead of each constructing an independent,
// unsynchronized pair. Mirrors the fileRegistry pattern used for the
// slot-cache's mmap coordination, generalized here to guard ordinary
// seek+read/write access rather than an mmap seqlock.
type fileIdentity struct {
	dev uint64
	ino uint64
}

// sharedState is the per-file state shared across every in-process Store
// handle backed by the same data file.
type sharedState struct {
	rw       sync.RWMutex
	ioMu     sync.Mutex
	refCount atomic.Int32
}

var registry sync.Map // map[fileIdentity]*sharedState

func getFileIdentity(f storagefs.File) (fileIdentity, error) {
	var stat syscall.Stat_t
	if err := syscall.Fstat(int(f.Fd()), &stat); err != nil {
		return fileIdentity{}, fmt.Errorf("%w: stat data file: %w", ErrIoFailure, err)
	}

	return fileIdentity{dev: uint64(stat.Dev), ino: stat.Ino}, nil
}

// acquireShared returns the sharedState for id, creating it if this is the
// first handle for that file in this process.
func acquireShared(id fileIdentity) *sharedState {
	for {
		if val, ok := registry.Load(id); ok {
			entry, ok := val.(*sharedState)
			if !ok {
				registry.CompareAndDelete(id, val)
				continue
			}

			for {
				old := entry.refCount.Load()
				if old <= 0 {
					break // being torn down concurrently; create a fresh entry below
				}

				if entry.refCount.CompareAndSwap(old, old+1) {
					return entry
				}
			}
		}

		entry := &sharedState{}
		entry.refCount.Store(1)

		if _, loaded := registry.LoadOrStore(id, entry); loaded {
			// Another goroutine won the race and stored first (or the entry we
			// saw on Load above is mid-teardown by releaseShared). Our fresh
			// entry was never stored, so don't return it, and don't touch
			// whatever is stored now either — retry from the top and let the
			// Load branch above sort out whether it's live or still tearing
			// down.
			continue
		}

		return entry
	}
}

// releaseShared decrements id's reference count and evicts the entry once
// no Store handle references it.
func releaseShared(id fileIdentity) {
	val, ok := registry.Load(id)
	if !ok {
		return
	}

	entry, ok := val.(*sharedState)
	if !ok {
		registry.CompareAndDelete(id, val)
		return
	}

	if entry.refCount.Add(-1) <= 0 {
		registry.CompareAndDelete(id, entry)
	}
}
