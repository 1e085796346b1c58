package blockfs

import (
	"errors"
	"fmt"
	"io"

	"github.com/blockfs/blockfs/pkg/storagefs"
)

// recoveredError records one region the scanner could not parse as a
// well-formed node. The fix-up pass turns each of these into a free node of
// the given size; regions shorter than minRegionSize are dropped instead.
type recoveredError struct {
	offset int64
	size   int64
}

// recoveryResult is everything the scan produces: the nodes found (both
// live and free, in file order), the damaged regions to fix up, and the
// highest valid node end observed.
type recoveryResult struct {
	nodes        []*node
	errors       []recoveredError
	dataFileSize int64
}

// scanDataFile walks f sequentially from offset 0, parsing one node per
// iteration. Matches SPEC_FULL.md §4.4: a region whose status is InUse or
// Free and whose tail tag equals endTag is installed; anything else is
// recorded and skipped via resync.
func scanDataFile(f storagefs.File, fileSize int64) (recoveryResult, error) {
	var result recoveryResult

	cursor := int64(0)

	for cursor < fileSize {
		statusBuf, err := readRegionAt(f, cursor, 4)
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				result.errors = append(result.errors, recoveredError{offset: cursor, size: fileSize - cursor})
				break
			}

			return recoveryResult{}, err
		}

		st := status(byteOrder.Uint32(statusBuf))

		n, ok, err := tryParseNode(f, cursor, st, fileSize)
		if err != nil {
			return recoveryResult{}, err
		}

		if ok {
			result.nodes = append(result.nodes, n)

			end := n.nodeOffset + n.nodeSize
			if end > result.dataFileSize {
				result.dataFileSize = end
			}

			cursor = end

			continue
		}

		boundary, found, err := resync(f, fileSize, cursor+1)
		if err != nil {
			return recoveryResult{}, err
		}

		if !found {
			result.errors = append(result.errors, recoveredError{offset: cursor, size: fileSize - cursor})
			break
		}

		result.errors = append(result.errors, recoveredError{offset: cursor, size: boundary - cursor})
		cursor = boundary
	}

	return result, nil
}

// tryParseNode attempts to parse a well-formed node at offset given its
// already-read status word. Returns ok=false (not an error) for any
// region that fails validation, letting the caller fall back to resync.
func tryParseNode(f storagefs.File, offset int64, st status, fileSize int64) (*node, bool, error) {
	switch st {
	case statusInUse:
		return tryParseLiveNode(f, offset, fileSize)
	case statusFree:
		return tryParseFreeNode(f, offset, fileSize)
	default:
		return nil, false, nil
	}
}

func tryParseLiveNode(f storagefs.File, offset int64, fileSize int64) (*node, bool, error) {
	// Read status(4) + name_len(4) first; the name's length determines how
	// many more bytes make up the rest of the header.
	head, err := readRegionAt(f, offset, 8)
	if err != nil {
		return nil, false, nil //nolint:nilerr // short/odd read here just means "not a valid node here"
	}

	nameLen := int(byteOrder.Uint32(head[4:8]))
	if nameLen < 0 || nameLen > maxNameLen {
		return nil, false, nil
	}

	restLen := nameLen + 1 + 4 + 4
	if offset+8+int64(restLen) > fileSize {
		return nil, false, nil
	}

	rest, err := readRegionAt(f, offset+8, restLen)
	if err != nil {
		return nil, false, nil //nolint:nilerr
	}

	hdr, err := decodeHeaderLive(head[0:4], append(head[4:8], rest...))
	if err != nil {
		return nil, false, nil //nolint:nilerr
	}

	if hdr.nodeSize < headerSize(nameLen)+tailTagSize || offset+hdr.nodeSize > fileSize {
		return nil, false, nil
	}

	if hdr.dataSize < 0 || hdr.dataSize > maxDataSize {
		return nil, false, nil
	}

	dataOffset := offset + headerSize(nameLen)
	if dataOffset+hdr.dataSize > offset+hdr.nodeSize-tailTagSize {
		return nil, false, nil
	}

	tailBuf, err := readRegionAt(f, offset+hdr.nodeSize-tailTagSize, tailTagSize)
	if err != nil {
		return nil, false, nil //nolint:nilerr
	}

	tag, err := decodeTailTag(tailBuf)
	if err != nil || tag != endTag {
		return nil, false, nil
	}

	n := &node{
		nodeOffset: offset,
		nodeSize:   hdr.nodeSize,
		dataOffset: dataOffset,
		dataSize:   hdr.dataSize,
		status:     statusInUse,
		name:       hdr.name,
	}

	return n, true, nil
}

func tryParseFreeNode(f storagefs.File, offset int64, fileSize int64) (*node, bool, error) {
	buf, err := readRegionAt(f, offset, freeHeaderSize)
	if err != nil {
		return nil, false, nil //nolint:nilerr
	}

	hdr, err := decodeHeaderFree(buf)
	if err != nil {
		return nil, false, nil //nolint:nilerr
	}

	if hdr.nodeSize < minRegionSize || offset+hdr.nodeSize > fileSize {
		return nil, false, nil
	}

	tailBuf, err := readRegionAt(f, offset+hdr.nodeSize-tailTagSize, tailTagSize)
	if err != nil {
		return nil, false, nil //nolint:nilerr
	}

	tag, err := decodeTailTag(tailBuf)
	if err != nil || tag != endTag {
		return nil, false, nil
	}

	n := &node{
		nodeOffset: offset,
		nodeSize:   hdr.nodeSize,
		status:     statusFree,
	}

	return n, true, nil
}

// resync scans byte by byte starting at from, looking for a position whose
// 4-byte word fully matches statusInUse or statusFree.
//
// SPEC_FULL.md §9 / spec.md §9 third open question: the original
// implementation's secondary check compares against a single byte
// (NODE_FREE_BYTE) rather than the full 32-bit NODE_FREE word, which lets a
// stray 0xAA byte that is not actually the start of a free-node header be
// misidentified as a resync point. This implementation always compares the
// full 4-byte word for both statuses, per the corrected behavior spec.md
// §9 mandates.
func resync(f storagefs.File, fileSize int64, from int64) (int64, bool, error) {
	for pos := from; pos < fileSize; pos++ {
		b, err := readRegionAt(f, pos, 1)
		if err != nil {
			return 0, false, nil //nolint:nilerr
		}

		if b[0] != 0x55 && b[0] != 0xAA {
			continue
		}

		if pos+4 > fileSize {
			continue
		}

		word, err := readRegionAt(f, pos, 4)
		if err != nil {
			return 0, false, nil //nolint:nilerr
		}

		st := status(byteOrder.Uint32(word))
		if st == statusInUse || st == statusFree {
			return pos, true, nil
		}
	}

	return 0, false, nil
}

// readRegionAt seeks to offset and reads exactly n bytes. A clean EOF with
// zero bytes read, or a short read, both return io.ErrUnexpectedEOF so
// callers can distinguish "ran off the end of the file" from a real I/O
// failure.
func readRegionAt(f storagefs.File, offset int64, n int) ([]byte, error) {
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: seeking to %d: %w", ErrIoFailure, offset, err)
	}

	buf := make([]byte, n)

	read, err := io.ReadFull(f, buf)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return buf[:read], io.ErrUnexpectedEOF
		}

		return nil, fmt.Errorf("%w: reading %d bytes at %d: %w", ErrIoFailure, n, offset, err)
	}

	return buf, nil
}

// fixUp rewrites every damaged region found during the scan as a
// well-formed free node, appending each to nodes and advancing
// dataFileSize to cover it. Only called when the store is the data owner;
// a non-owner store leaves damaged regions untouched and simply never
// reuses them.
func fixUp(f storagefs.File, result recoveryResult) (recoveryResult, error) {
	for _, e := range result.errors {
		if e.size < minRegionSize {
			// Too small to host even a free header and tail tag (a few
			// stray bytes left by a crash at end-of-file); drop it rather
			// than writing a node that would overrun the fragment.
			continue
		}

		buf := encodeFreeHeader(e.size)

		if _, err := f.Seek(e.offset, io.SeekStart); err != nil {
			return recoveryResult{}, fmt.Errorf("%w: seeking to fix up %d: %w", ErrIoFailure, e.offset, err)
		}

		if _, err := f.Write(buf); err != nil {
			return recoveryResult{}, fmt.Errorf("%w: writing fix-up header at %d: %w", ErrIoFailure, e.offset, err)
		}

		if _, err := f.Seek(e.offset+e.size-tailTagSize, io.SeekStart); err != nil {
			return recoveryResult{}, fmt.Errorf("%w: seeking to fix-up tail at %d: %w", ErrIoFailure, e.offset, err)
		}

		if _, err := f.Write(encodeTailTag(endTag)); err != nil {
			return recoveryResult{}, fmt.Errorf("%w: writing fix-up tail at %d: %w", ErrIoFailure, e.offset, err)
		}

		n := &node{nodeOffset: e.offset, nodeSize: e.size, status: statusFree}
		result.nodes = append(result.nodes, n)

		end := e.offset + e.size
		if end > result.dataFileSize {
			result.dataFileSize = end
		}
	}

	if err := f.Sync(); err != nil {
		return recoveryResult{}, fmt.Errorf("%w: syncing after fix-up: %w", ErrIoFailure, err)
	}

	result.errors = nil

	return result, nil
}
