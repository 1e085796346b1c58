package blockfs

import (
	"encoding/binary"
	"fmt"
)

// status is the 32-bit word at the start of every region. Values and names
// are taken from the original C implementation's node_status_type
// (block_fs.c); statusInUse and statusFree are bitwise self-synchronizing —
// every byte of the word equals a fixed repeating pattern — so a linear
// byte scan can resynchronize to a region boundary by looking for either
// byte and then confirming all four match.
type status uint32

const (
	// statusInUse marks a live region reachable from the index. Every byte
	// is 0x55.
	statusInUse status = 0x55555555

	// statusFree marks a free region reachable from the free list. Every
	// byte is 0xAA.
	statusFree status = 0xAAAAAAAA

	// statusWriteActiveStart marks a region mid-write: the payload has not
	// yet been committed. Not self-synchronizing; must never persist in a
	// clean file.
	statusWriteActiveStart status = 77162

	// statusInvalid never appears on disk in a clean file; it exists only
	// as an explicit "impossible" sentinel for in-memory bookkeeping.
	statusInvalid status = 13
)

// writeActiveEndTag is written at the tail-tag position while a region is
// mid-write, replacing endTag until the write commits. Distinct from every
// status value and from endTag so a crash mid-write is distinguishable from
// a clean region by the tail alone.
const writeActiveEndTag uint32 = 776512

// endTag is the constant 32-bit marker at the last four bytes of every
// well-formed (InUse or Free) region.
const endTag uint32 = 0x00FF00FF

const tailTagSize = 4

// byteOrder is the fixed wire byte order for every multi-byte integer in
// the node format, making a data file portable across machines regardless
// of which one wrote it.
var byteOrder = binary.LittleEndian

// fixedHeaderSize is the portion of headerSize that does not depend on the
// name: status(4) + name_len(4) + node_size(4) + data_size(4).
const fixedHeaderSize = 16

// headerSize returns the number of bytes occupied by a live region's
// header, for a name of the given byte length: status + name_len prefix +
// name bytes + NUL + node_size + data_size.
func headerSize(nameLen int) int64 {
	return fixedHeaderSize + int64(nameLen) + 1
}

// freeHeaderSize is the header size of a free region, which omits the name
// entirely: status(4) + node_size(4) + data_size(4).
const freeHeaderSize = 12

// minRegionSize is the smallest legal region: a free header plus tail tag.
const minRegionSize = freeHeaderSize + tailTagSize

// encodeLiveHeader writes a live region's header (everything up to and
// including data_size) into a freshly sized buffer, ready to be written at
// node_offset. The caller writes the payload and tail tag separately (see
// the write path, which bridges WriteActive and InUse states across two
// header writes).
func encodeLiveHeader(st status, name string, nodeSize, dataSize int64) []byte {
	buf := make([]byte, headerSize(len(name)))

	byteOrder.PutUint32(buf[0:4], uint32(st))
	byteOrder.PutUint32(buf[4:8], uint32(len(name)))
	copy(buf[8:8+len(name)], name)
	buf[8+len(name)] = 0 // NUL terminator

	rest := buf[8+len(name)+1:]
	byteOrder.PutUint32(rest[0:4], uint32(nodeSize))
	byteOrder.PutUint32(rest[4:8], uint32(dataSize))

	return buf
}

// encodeFreeHeader writes a free region's header: status, node_size,
// data_size=0. Free regions never persist a name.
func encodeFreeHeader(nodeSize int64) []byte {
	buf := make([]byte, freeHeaderSize)
	byteOrder.PutUint32(buf[0:4], uint32(statusFree))
	byteOrder.PutUint32(buf[4:8], uint32(nodeSize))
	byteOrder.PutUint32(buf[8:12], 0)

	return buf
}

// decodedHeader is the result of parsing a region's header during the
// recovery scan.
type decodedHeader struct {
	status   status
	name     string // empty for Free regions
	nodeSize int64
	dataSize int64
}

// decodeHeaderLive parses a live region's header. statusBuf holds the
// already-read status word; nameAndSizes holds name_len, the name, its NUL,
// node_size, and data_size, in that order. The recovery scanner reads
// name_len first to know how many more bytes to fetch before calling this.
// Neither argument is read from disk here; see recovery.go for the scan
// loop that does.
func decodeHeaderLive(statusBuf []byte, nameAndSizes []byte) (decodedHeader, error) {
	if len(statusBuf) < 4 {
		return decodedHeader{}, fmt.Errorf("%w: short status read", ErrCorrupt)
	}

	st := status(byteOrder.Uint32(statusBuf))

	if len(nameAndSizes) < 4 {
		return decodedHeader{}, fmt.Errorf("%w: short name_len read", ErrCorrupt)
	}

	nameLen := int(byteOrder.Uint32(nameAndSizes[0:4]))
	if nameLen < 0 || nameLen > maxNameLen {
		return decodedHeader{}, fmt.Errorf("%w: implausible name length %d", ErrCorrupt, nameLen)
	}

	need := 4 + nameLen + 1 + 4 + 4
	if len(nameAndSizes) < need {
		return decodedHeader{}, fmt.Errorf("%w: short node header read", ErrCorrupt)
	}

	name := string(nameAndSizes[4 : 4+nameLen])
	rest := nameAndSizes[4+nameLen+1:]
	nodeSize := int64(byteOrder.Uint32(rest[0:4]))
	dataSize := int64(byteOrder.Uint32(rest[4:8]))

	return decodedHeader{status: st, name: name, nodeSize: nodeSize, dataSize: dataSize}, nil
}

// decodeHeaderFree parses a free region's fixed-size header.
func decodeHeaderFree(buf []byte) (decodedHeader, error) {
	if len(buf) < freeHeaderSize {
		return decodedHeader{}, fmt.Errorf("%w: short free header read", ErrCorrupt)
	}

	st := status(byteOrder.Uint32(buf[0:4]))
	nodeSize := int64(byteOrder.Uint32(buf[4:8]))

	return decodedHeader{status: st, nodeSize: nodeSize, dataSize: 0}, nil
}

func encodeTailTag(tag uint32) []byte {
	buf := make([]byte, tailTagSize)
	byteOrder.PutUint32(buf, tag)

	return buf
}

// encodeWord encodes a single 32-bit value, used for both tail tags and
// bare status words (both are 4-byte fields on disk).
func encodeWord(v uint32) []byte {
	return encodeTailTag(v)
}

func decodeTailTag(buf []byte) (uint32, error) {
	if len(buf) < tailTagSize {
		return 0, fmt.Errorf("%w: short tail tag read", ErrCorrupt)
	}

	return byteOrder.Uint32(buf), nil
}

// alignUp rounds size up to the next multiple of blockSize.
func alignUp(size, blockSize int64) int64 {
	if size%blockSize == 0 {
		return size
	}

	return (size/blockSize + 1) * blockSize
}
