package blockfs

import (
	"fmt"
	"os"

	"github.com/blockfs/blockfs/pkg/storagefs"
)

// Rotate forces a rotation for inspection (see [cmd/blockfsctl]'s "rotate"
// command). Exported only as a manual escape hatch: nothing in the write
// path ever calls it itself (see rotate's doc comment).
func (s *Store) Rotate() error {
	return s.rotate()
}

// rotate implements SPEC_FULL.md §4.9: bump the mount-map version, open a
// second store against the new version, copy every live name across, close
// the old store, and atomically swap identities.
//
// Defined for completeness and directly testable, but never invoked by the
// write path: the fragmentation threshold is pinned to 1.0 (SPEC_FULL.md
// §9 first open question), so the ratio that would trigger it never
// exceeds the limit. Reachable from outside the package only through
// [Store.Rotate].
func (s *Store) rotate() error {
	s.shared.rw.Lock()
	defer s.shared.rw.Unlock()

	if s.closed {
		return ErrClosed
	}

	if !s.dataOwner {
		return ErrReadOnly
	}

	newVersion := s.version + 1

	names := make([]string, 0, len(s.index))
	for name := range s.index {
		names = append(names, name)
	}

	payloads := make(map[string][]byte, len(names))

	for _, name := range names {
		size := s.index[name].dataSize
		buf := make([]byte, size)

		if err := s.readPayloadUnlocked(s.index[name], buf); err != nil {
			return fmt.Errorf("rotate: reading %q: %w", name, err)
		}

		payloads[name] = buf
	}

	newDataPath := dataFilePath(s.mountMapPath, newVersion)
	newLockPath := lockFilePath(s.mountMapPath, newVersion)

	newFile, err := s.fsys.OpenFile(newDataPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("rotate: creating new data file: %w", err)
	}

	fresh := &Store{
		opts:               s.opts,
		mountMapPath:       s.mountMapPath,
		dataPath:           newDataPath,
		lockPath:           newLockPath,
		version:            newVersion,
		fsys:               s.fsys,
		dataFile:           newFile,
		dataOwner:          true,
		fragmentationLimit: 1.0,
		index:              make(map[string]*node),
		shared:             &sharedState{},
	}

	for _, name := range names {
		if err := fresh.Write(name, payloads[name]); err != nil {
			_ = newFile.Close()
			return fmt.Errorf("rotate: rewriting %q: %w", name, err)
		}
	}

	if err := writeMountMap(s.fsys, s.mountMapPath, newVersion); err != nil {
		_ = newFile.Close()
		return fmt.Errorf("rotate: updating mount-map: %w", err)
	}

	oldDataPath, oldLockPath := s.dataPath, s.lockPath

	_ = s.dataFile.Close()
	releaseLock(s.lock)
	releaseShared(s.identity)

	s.dataPath = newDataPath
	s.lockPath = newLockPath
	s.version = newVersion
	s.dataFile = fresh.dataFile
	s.index = fresh.index
	s.free = freeList{}
	s.nodes = fresh.nodes
	s.dataFileSize = fresh.dataFileSize
	s.writeCount = 0

	identity, err := getFileIdentity(s.dataFile)
	if err != nil {
		return err
	}

	s.identity = identity
	s.shared = acquireShared(identity)

	locker := storagefs.NewLocker(s.fsys)

	lock, err := locker.TryLock(newLockPath)
	if err != nil {
		return fmt.Errorf("rotate: relocking: %w", err)
	}

	s.lock = lock

	_ = s.fsys.Remove(oldDataPath)
	_ = s.fsys.Remove(oldLockPath)

	return nil
}
