package blockfs

import (
	"fmt"

	"github.com/blockfs/blockfs/pkg/storagefs"
)

// mountMapMagic identifies a mount-map file. A mismatch is fatal to mount
// (SPEC_FULL.md §7).
const mountMapMagic uint32 = 0x00873F2A

const mountMapSize = 8 // magic(4) + version(4)

// dataFilePath and lockFilePath derive the data and lock file paths
// from the mount-map path, per SPEC_FULL.md §6.
func dataFilePath(mountMapPath string, version int32) string {
	return fmt.Sprintf("%s.data_%d", mountMapPath, version)
}

func lockFilePath(mountMapPath string, version int32) string {
	return fmt.Sprintf("%s.lock_%d", mountMapPath, version)
}

// readOrCreateMountMap reads the mount-map file at path, creating it at
// version 0 if absent. The create is atomic (temp-file-then-rename via
// storagefs.FS.WriteFileAtomic) so a crash while bootstrapping never leaves
// a half-written magic.
func readOrCreateMountMap(fsys storagefs.FS, path string) (int32, error) {
	exists, err := fsys.Exists(path)
	if err != nil {
		return 0, fmt.Errorf("%w: checking mount-map: %w", ErrIoFailure, err)
	}

	if !exists {
		if err := writeMountMap(fsys, path, 0); err != nil {
			return 0, err
		}

		return 0, nil
	}

	data, err := fsys.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: reading mount-map: %w", ErrIoFailure, err)
	}

	if len(data) != mountMapSize {
		return 0, fmt.Errorf("%w: mount-map %q has size %d, want %d", ErrCorrupt, path, len(data), mountMapSize)
	}

	magic := byteOrder.Uint32(data[0:4])
	if magic != mountMapMagic {
		return 0, fmt.Errorf("%w: mount-map %q magic %#x, want %#x", ErrCorrupt, path, magic, mountMapMagic)
	}

	version := int32(byteOrder.Uint32(data[4:8]))

	return version, nil
}

func writeMountMap(fsys storagefs.FS, path string, version int32) error {
	buf := make([]byte, mountMapSize)
	byteOrder.PutUint32(buf[0:4], mountMapMagic)
	byteOrder.PutUint32(buf[4:8], uint32(version))

	if err := fsys.WriteFileAtomic(path, buf, 0o644); err != nil {
		return fmt.Errorf("%w: writing mount-map: %w", ErrIoFailure, err)
	}

	return nil
}
