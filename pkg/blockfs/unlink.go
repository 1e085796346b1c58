package blockfs

import "fmt"

// Unlink removes name from the store. Its region becomes free and is
// returned to the free list.
func (s *Store) Unlink(name string) error {
	s.shared.rw.Lock()
	defer s.shared.rw.Unlock()

	if s.closed {
		return ErrClosed
	}

	if !s.dataOwner {
		return ErrReadOnly
	}

	if _, ok := s.index[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	return s.unlinkLocked(name)
}

// unlinkLocked implements SPEC_FULL.md §4.6. Must be called with the store
// write lock held and name known to be present in the index.
func (s *Store) unlinkLocked(name string) error {
	n := s.index[name]
	delete(s.index, name)

	n.clearCache()
	n.dataOffset = 0
	n.dataSize = 0
	n.name = ""

	header := encodeFreeHeader(n.nodeSize)

	if err := s.dataFile.Sync(); err != nil {
		return fmt.Errorf("%w: pre-unlink sync: %w", ErrIoFailure, err)
	}

	if err := s.writeAt(n.nodeOffset, header); err != nil {
		return err
	}

	if err := s.writeAt(n.nodeOffset+n.nodeSize-tailTagSize, encodeTailTag(endTag)); err != nil {
		return err
	}

	if err := s.dataFile.Sync(); err != nil {
		return fmt.Errorf("%w: post-unlink sync: %w", ErrIoFailure, err)
	}

	s.free.insert(n)

	return nil
}
